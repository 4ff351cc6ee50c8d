package repositories

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/sbilibin2017/gw-user-signup/internal/models"
)

// MemoryUserRepository keeps users in process memory. It is meant for local runs and tests.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users []models.UserDB
}

// NewMemoryUserRepository returns an empty in-memory repository.
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{}
}

// Name returns the display name of the store.
func (r *MemoryUserRepository) Name() string {
	return "Memory"
}

// Ping always succeeds.
func (r *MemoryUserRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

// GetByUsernameOrEmail returns a copy of the first user matching username or email, or nil.
func (r *MemoryUserRepository) GetByUsernameOrEmail(ctx context.Context, username, email string) (*models.UserDB, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.Username == username || u.Email == email {
			user := u
			return &user, nil
		}
	}
	return nil, nil
}

// Save stores a copy of user under a new UUID.
func (r *MemoryUserRepository) Save(ctx context.Context, user *models.UserDB) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *user
	stored.UserID = uuid.NewString()
	r.users = append(r.users, stored)
	return stored.UserID, nil
}

// List returns copies of all stored users in insertion order.
func (r *MemoryUserRepository) List() []models.UserDB {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.UserDB, len(r.users))
	copy(out, r.users)
	return out
}
