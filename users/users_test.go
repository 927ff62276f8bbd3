package users_test

import (
	"testing"

	"github.com/jrsteele09/go-attendance/kvstore"
	"github.com/jrsteele09/go-attendance/users"
	fakeuserrepo "github.com/jrsteele09/go-attendance/users/repofake"
	"github.com/stretchr/testify/require"
)

func repos() map[string]users.UserRepo {
	return map[string]users.UserRepo{
		"kv":   users.NewKVRepo(kvstore.NewMemory()),
		"fake": fakeuserrepo.NewFakeUserRepo(),
	}
}

func TestUpsertAndLookup(t *testing.T) {
	for name, repo := range repos() {
		t.Run(name, func(t *testing.T) {
			u := &users.User{Username: "teacher1", Name: "John Smith", Role: users.RoleTeacher}
			require.NoError(t, repo.Upsert(u))
			require.NotEmpty(t, u.ID)

			got, err := repo.GetByID(u.ID)
			require.NoError(t, err)
			require.Equal(t, "John Smith", got.Name)

			got, err = repo.GetByUsername("teacher1")
			require.NoError(t, err)
			require.Equal(t, u.ID, got.ID)

			// returned users are copies
			got.Name = "changed"
			again, err := repo.GetByID(u.ID)
			require.NoError(t, err)
			require.Equal(t, "John Smith", again.Name)

			u.Name = "J. Smith"
			require.NoError(t, repo.Upsert(u))
			got, err = repo.GetByID(u.ID)
			require.NoError(t, err)
			require.Equal(t, "J. Smith", got.Name)
		})
	}
}

func TestUpsertValidation(t *testing.T) {
	for name, repo := range repos() {
		t.Run(name, func(t *testing.T) {
			require.ErrorIs(t, repo.Upsert(&users.User{Role: users.RoleStudent}), users.ErrInvalidArgument)
			require.ErrorIs(t, repo.Upsert(&users.User{Username: "x", Role: "janitor"}), users.ErrInvalidArgument)

			require.NoError(t, repo.Upsert(&users.User{ID: "1", Username: "dup", Role: users.RoleStudent}))
			require.ErrorIs(t, repo.Upsert(&users.User{ID: "2", Username: "dup", Role: users.RoleStudent}), users.ErrInvalidArgument)
		})
	}
}

func TestRejectedUpsertLeavesInputUntouched(t *testing.T) {
	for name, repo := range repos() {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, repo.Upsert(&users.User{Username: "dup", Role: users.RoleStudent}))

			u := &users.User{Username: "dup", Role: users.RoleStudent}
			require.ErrorIs(t, repo.Upsert(u), users.ErrInvalidArgument)
			require.Empty(t, u.ID)
			require.True(t, u.CreatedAt.IsZero())
		})
	}
}

func TestListAndDelete(t *testing.T) {
	for name, repo := range repos() {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, repo.Upsert(&users.User{ID: "2", Username: "teacher1", Role: users.RoleTeacher}))
			require.NoError(t, repo.Upsert(&users.User{ID: "3", Username: "student1", Role: users.RoleStudent}))
			require.NoError(t, repo.Upsert(&users.User{ID: "1", Username: "admin", Role: users.RoleAdmin}))

			all, err := repo.List("")
			require.NoError(t, err)
			require.Len(t, all, 3)
			require.Equal(t, "1", all[0].ID)

			students, err := repo.List(users.RoleStudent)
			require.NoError(t, err)
			require.Len(t, students, 1)
			require.Equal(t, "student1", students[0].Username)

			require.NoError(t, repo.Delete("3"))
			_, err = repo.GetByID("3")
			require.ErrorIs(t, err, users.ErrNotFound)
			_, err = repo.GetByUsername("student1")
			require.ErrorIs(t, err, users.ErrNotFound)
			require.ErrorIs(t, repo.Delete("3"), users.ErrNotFound)
		})
	}
}

func TestKVRepoCorruptData(t *testing.T) {
	store := kvstore.NewMemory()
	require.NoError(t, store.Set(users.StorageKey, "{oops"))
	repo := users.NewKVRepo(store)

	list, err := repo.List("")
	require.NoError(t, err)
	require.Empty(t, list)

	require.NoError(t, repo.Upsert(&users.User{Username: "admin", Role: users.RoleAdmin}))
	list, err = repo.List("")
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestSeedDefaults(t *testing.T) {
	repo := users.NewKVRepo(kvstore.NewMemory())

	seeded, err := users.SeedDefaults(repo)
	require.NoError(t, err)
	require.True(t, seeded)

	seeded, err = users.SeedDefaults(repo)
	require.NoError(t, err)
	require.False(t, seeded)

	student, err := repo.GetByUsername("student1")
	require.NoError(t, err)
	require.Equal(t, users.RoleStudent, student.Role)
	require.Equal(t, "S001", student.AttendanceID())
	require.True(t, student.CheckPassword("student123"))
	require.False(t, student.CheckPassword("teacher123"))
	require.Empty(t, student.Public().PasswordHash)
}

func TestRoleValid(t *testing.T) {
	require.True(t, users.RoleAdmin.Valid())
	require.True(t, users.RoleTeacher.Valid())
	require.True(t, users.RoleStudent.Valid())
	require.False(t, users.RoleType("").Valid())
}
