package users

import "fmt"

// DefaultUser is a demo account created on an empty directory.
type DefaultUser struct {
	User     User
	Password string
}

// Defaults mirrors the accounts the demo ships with.
func Defaults() []DefaultUser {
	return []DefaultUser{
		{User: User{ID: "1", Username: "admin", Name: "System Administrator", Role: RoleAdmin}, Password: "admin123"},
		{User: User{ID: "2", Username: "teacher1", Name: "John Smith", Role: RoleTeacher}, Password: "teacher123"},
		{User: User{ID: "3", Username: "student1", Name: "Alice Johnson", Role: RoleStudent, StudentID: "S001"}, Password: "student123"},
	}
}

// SeedDefaults stores the default accounts when repo is empty and reports whether it did.
func SeedDefaults(repo UserRepo) (bool, error) {
	existing, err := repo.List("")
	if err != nil {
		return false, err
	}
	if len(existing) > 0 {
		return false, nil
	}

	for _, d := range Defaults() {
		hash, err := HashPassword(d.Password)
		if err != nil {
			return false, fmt.Errorf("hash password for %s: %w", d.User.Username, err)
		}
		u := d.User
		u.PasswordHash = hash
		if err := repo.Upsert(&u); err != nil {
			return false, fmt.Errorf("seed %s: %w", u.Username, err)
		}
	}
	return true, nil
}
