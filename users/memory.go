package users

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/user/memories-go/apperror"
	"github.com/user/memories-go/clock"
)

// MemoryStore keeps users in process memory. It backs STORE_BACKEND=memory and the tests.
// The email index is checked and written under one lock, so duplicate inserts
// behave like the unique constraint of the Postgres table.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]*User
	byEmail map[string]string
	clock   clock.Clock
}

func NewMemoryStore(c clock.Clock) *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]*User),
		byEmail: make(map[string]string),
		clock:   c,
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Create(_ context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[user.Email]; taken {
		return apperror.NewConflictError(MsgUserExists, nil)
	}
	if user.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return apperror.NewInternalError("failed to generate user id", err)
		}
		user.ID = id.String()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.clock.NowUtc()
	}

	stored := *user
	s.byID[stored.ID] = &stored
	s.byEmail[stored.Email] = stored.ID
	return nil
}

func (s *MemoryStore) GetByEmail(_ context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, apperror.NewNotFoundError(MsgUserNotFound, nil)
	}
	u := *s.byID[id]
	return &u, nil
}

func (s *MemoryStore) GetByID(_ context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.byID[id]
	if !ok {
		return nil, apperror.NewNotFoundError(MsgUserNotFound, nil)
	}
	u := *stored
	return &u, nil
}

// Count returns the number of stored users.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
