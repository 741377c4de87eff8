package repomemory

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	gwerrors "github.com/agrisense/geogateway/internal/errors"
	"github.com/agrisense/geogateway/users"
)

var _ users.UserRepo = (*UserRepo)(nil)

// UserRepo is an in-memory users.UserRepo. It backs the gateway in
// single-instance deployments and doubles as the fake for tests.
type UserRepo struct {
	users    map[string]*users.User
	emailIds map[string]string // email to user id
	lock     sync.RWMutex
}

func NewUserRepo() *UserRepo {
	return &UserRepo{
		users:    make(map[string]*users.User),
		emailIds: make(map[string]string),
	}
}

func (ur *UserRepo) Upsert(user *users.User) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	ur.users[user.ID] = user
	ur.emailIds[user.Email] = user.ID
	return nil
}

func (ur *UserRepo) Delete(email string) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	userID, ok := ur.emailIds[email]
	if !ok {
		return gwerrors.ErrUserNotFound
	}
	delete(ur.emailIds, email)
	delete(ur.users, userID)
	return nil
}

func (ur *UserRepo) GetByEmail(email string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	userID, ok := ur.emailIds[email]
	if !ok {
		return nil, gwerrors.ErrUserNotFound
	}
	return ur.users[userID], nil
}

func (ur *UserRepo) GetByID(id string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	user, ok := ur.users[id]
	if !ok {
		return nil, gwerrors.ErrUserNotFound
	}
	return user, nil
}

func (ur *UserRepo) List(offset, limit int) ([]*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	all := make([]*users.User, 0, len(ur.users))
	for _, u := range ur.users {
		all = append(all, u)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Email < all[j].Email })

	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) {
		return []*users.User{}, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (ur *UserRepo) SetBlocked(email string, blocked bool) error {
	return ur.update(email, func(u *users.User) { u.Blocked = blocked })
}

func (ur *UserRepo) SetLoggedIn(email string, loggedIn bool) error {
	return ur.update(email, func(u *users.User) { u.LoggedIn = loggedIn })
}

func (ur *UserRepo) update(email string, fn func(*users.User)) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	userID, ok := ur.emailIds[email]
	if !ok {
		return gwerrors.ErrUserNotFound
	}
	fn(ur.users[userID])
	return nil
}
