package auth

import (
	"context"
	"sync"
)

// MemoryStore implements Store in process. It backs the HTTP-layer tests and
// local development without a database.
type MemoryStore struct {
	mu     sync.RWMutex
	users  map[string]*User
	tokens map[string]*RefreshToken
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:  make(map[string]*User),
		tokens: make(map[string]*RefreshToken),
	}
}

func (s *MemoryStore) Users(context.Context) UserStore                 { return (*memUserStore)(s) }
func (s *MemoryStore) RefreshTokens(context.Context) RefreshTokenStore { return (*memTokenStore)(s) }

type memUserStore MemoryStore

func (s *memUserStore) Create(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return ErrEmailTaken
		}
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *memUserStore) Find(_ context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memUserStore) FindByEmail(_ context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

type memTokenStore MemoryStore

func (s *memTokenStore) Create(_ context.Context, tok *RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *tok
	s.tokens[tok.ID] = &cp
	return nil
}

func (s *memTokenStore) ByUser(_ context.Context, userID string) ([]*RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []*RefreshToken
	for _, tok := range s.tokens {
		if tok.UserID == userID {
			cp := *tok
			res = append(res, &cp)
		}
	}
	return res, nil
}

func (s *memTokenStore) All(_ context.Context) ([]*RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []*RefreshToken
	for _, tok := range s.tokens {
		cp := *tok
		res = append(res, &cp)
	}
	return res, nil
}

func (s *memTokenStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, id)
	return nil
}
