package editor

import (
	"context"
	"sync"

	"docbroker/internal/model"
)

// UserLookup resolves portal user ids to identities. Identity storage is
// external to this service; implementations wrap whatever directory the
// portal provides.
type UserLookup interface {
	Find(ctx context.Context, userID string) (model.User, error)
}

// Directory is an in-memory UserLookup.
type Directory struct {
	mu    sync.RWMutex
	users map[string]model.User
}

func NewDirectory() *Directory {
	return &Directory{users: make(map[string]model.User)}
}

func (d *Directory) Add(user model.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[user.ID] = user
}

func (d *Directory) Find(ctx context.Context, userID string) (model.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	user, ok := d.users[userID]
	if !ok {
		return model.User{}, ErrUserNotFound
	}
	return user, nil
}

// TokenIdentities resolves users straight from authenticated token
// subjects, for deployments without a user directory.
type TokenIdentities struct{}

func (TokenIdentities) Find(ctx context.Context, userID string) (model.User, error) {
	if userID == "" {
		return model.User{}, ErrUserNotFound
	}
	return model.User{ID: userID}, nil
}
