package memory

import (
	"context"
	"sync"

	"github.com/tejashwikalptaru/adzantune/internal/domain"
	"github.com/tejashwikalptaru/adzantune/internal/ports"
)

// TokenStore keeps the remote credential in memory.
type TokenStore struct {
	cred *domain.Credential
	mu   sync.RWMutex
}

// NewTokenStore creates a store, optionally seeded with cred.
func NewTokenStore(cred *domain.Credential) *TokenStore {
	s := &TokenStore{}
	if cred != nil {
		c := *cred
		s.cred = &c
	}
	return s
}

// LoadToken returns a copy of the stored credential or domain.ErrNotFound.
func (s *TokenStore) LoadToken(_ context.Context) (*domain.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cred == nil {
		return nil, domain.ErrNotFound
	}
	c := *s.cred
	return &c, nil
}

// SaveToken stores a copy of cred.
func (s *TokenStore) SaveToken(_ context.Context, cred *domain.Credential) error {
	if cred == nil {
		return domain.NewValidationError("credential", nil, "must not be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := *cred
	s.cred = &c
	return nil
}

var _ ports.TokenStore = (*TokenStore)(nil)
