package trigger

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// User is one registration. ID correlates log lines and events; it is never
// used for identity, so registering the same name twice yields two users.
type User struct {
	ID           uuid.UUID `json:"id"`
	Seq          int       `json:"seq"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	RegisteredAt time.Time `json:"registered_at"`
}

// UserStore is an append-only, process-lifetime collection.
type UserStore struct {
	mu    sync.RWMutex
	users []User
}

func (s *UserStore) add(name, email string, at time.Time) User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := User{
		ID:           uuid.New(),
		Seq:          len(s.users),
		Name:         name,
		Email:        email,
		RegisteredAt: at,
	}
	s.users = append(s.users, u)
	return u
}

func (s *UserStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// All returns a copy in insertion order.
func (s *UserStore) All() []User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]User, len(s.users))
	copy(out, s.users)
	return out
}
