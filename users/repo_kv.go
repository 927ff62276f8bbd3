package users

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-attendance/internal/errors"
	"github.com/jrsteele09/go-attendance/kvstore"
	"github.com/rs/zerolog/log"
)

// StorageKey holds the directory as a JSON array of users.
const StorageKey = "attendance_users"

var _ UserRepo = (*KVRepo)(nil)

// KVRepo keeps the user directory in the durable store next to the sessions.
type KVRepo struct {
	store   kvstore.Store
	nowTime func() time.Time
}

func NewKVRepo(store kvstore.Store) *KVRepo {
	return &KVRepo{store: store, nowTime: time.Now}
}

func (r *KVRepo) Upsert(user *User) error {
	if err := validate(user); err != nil {
		return err
	}
	stored := *user
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = r.nowTime().UTC()
	}

	err := kvstore.WithLatest(r.store, StorageKey, func(cur string, _ bool) (string, bool, error) {
		list := decodeUsers(cur)
		replaced := false
		for i := range list {
			if list[i].Username == stored.Username && list[i].ID != stored.ID {
				return "", false, errors.Wrapf(ErrInvalidArgument, "username %q is taken", stored.Username)
			}
			if list[i].ID == stored.ID {
				list[i] = stored
				replaced = true
			}
		}
		if !replaced {
			list = append(list, stored)
		}
		next, err := kvstore.EncodeJSON(list)
		return next, true, err
	})
	if err != nil {
		return err
	}

	// the caller only sees the assigned id once the write has landed
	user.ID, user.CreatedAt = stored.ID, stored.CreatedAt
	return nil
}

func (r *KVRepo) Delete(id string) error {
	return kvstore.WithLatest(r.store, StorageKey, func(cur string, _ bool) (string, bool, error) {
		list := decodeUsers(cur)
		for i := range list {
			if list[i].ID == id {
				list = append(list[:i], list[i+1:]...)
				next, err := kvstore.EncodeJSON(list)
				return next, true, err
			}
		}
		return "", false, errors.Wrapf(ErrNotFound, "user %q", id)
	})
}

func (r *KVRepo) GetByID(id string) (*User, error) {
	return r.find(func(u User) bool { return u.ID == id }, id)
}

func (r *KVRepo) GetByUsername(username string) (*User, error) {
	return r.find(func(u User) bool { return u.Username == username }, username)
}

func (r *KVRepo) List(role RoleType) ([]*User, error) {
	list, err := r.load()
	if err != nil {
		return nil, err
	}
	out := make([]*User, 0, len(list))
	for i := range list {
		if role == "" || list[i].Role == role {
			u := list[i]
			out = append(out, &u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *KVRepo) find(match func(User) bool, what string) (*User, error) {
	list, err := r.load()
	if err != nil {
		return nil, err
	}
	for _, u := range list {
		if match(u) {
			return &u, nil
		}
	}
	return nil, errors.Wrapf(ErrNotFound, "user %q", what)
}

func (r *KVRepo) load() ([]User, error) {
	raw, _, err := r.store.Get(StorageKey)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	return decodeUsers(raw), nil
}

func decodeUsers(raw string) []User {
	list, err := kvstore.DecodeJSON[[]User](StorageKey, raw)
	if err != nil {
		log.Warn().Err(err).Msg("user directory unreadable, treating as empty")
		return nil
	}
	return list
}
