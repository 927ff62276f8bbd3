package fakeuserrepo

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-attendance/internal/errors"
	"github.com/jrsteele09/go-attendance/users"
)

var _ users.UserRepo = (*FakeUserRepo)(nil)

type FakeUserRepo struct {
	users       map[string]users.User
	usernameIDs map[string]string // username to user id
	lock        sync.RWMutex
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		users:       make(map[string]users.User),
		usernameIDs: make(map[string]string),
	}
}

func (ur *FakeUserRepo) Upsert(user *users.User) error {
	if user.Username == "" || !user.Role.Valid() {
		return errors.Wrapf(users.ErrInvalidArgument, "user %q", user.Username)
	}

	ur.lock.Lock()
	defer ur.lock.Unlock()

	stored := *user
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if id, ok := ur.usernameIDs[stored.Username]; ok && id != stored.ID {
		return errors.Wrapf(users.ErrInvalidArgument, "username %q is taken", stored.Username)
	}
	if prev, ok := ur.users[stored.ID]; ok {
		delete(ur.usernameIDs, prev.Username)
	}
	ur.users[stored.ID] = stored
	ur.usernameIDs[stored.Username] = stored.ID
	user.ID = stored.ID
	return nil
}

func (ur *FakeUserRepo) Delete(id string) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	u, ok := ur.users[id]
	if !ok {
		return users.ErrNotFound
	}
	delete(ur.usernameIDs, u.Username)
	delete(ur.users, id)
	return nil
}

func (ur *FakeUserRepo) GetByID(id string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	u, ok := ur.users[id]
	if !ok {
		return nil, users.ErrNotFound
	}
	return &u, nil
}

func (ur *FakeUserRepo) GetByUsername(username string) (*users.User, error) {
	ur.lock.RLock()
	id, ok := ur.usernameIDs[username]
	ur.lock.RUnlock()

	if !ok {
		return nil, users.ErrNotFound
	}
	return ur.GetByID(id)
}

func (ur *FakeUserRepo) List(role users.RoleType) ([]*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	userList := make([]*users.User, 0, len(ur.users))
	for _, v := range ur.users {
		if role != "" && v.Role != role {
			continue
		}
		u := v
		userList = append(userList, &u)
	}

	sort.Slice(userList, func(i, j int) bool {
		return userList[i].ID < userList[j].ID
	})
	return userList, nil
}
