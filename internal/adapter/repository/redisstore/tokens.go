package redisstore

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/tejashwikalptaru/adzantune/internal/domain"
	"github.com/tejashwikalptaru/adzantune/internal/ports"
)

// TokenStore persists the remote credential as JSON.
type TokenStore struct {
	client redis.UniversalClient
}

// NewTokenStore creates a store on client.
func NewTokenStore(client redis.UniversalClient) *TokenStore {
	return &TokenStore{client: client}
}

// LoadToken returns domain.ErrNotFound when no credential is stored.
func (s *TokenStore) LoadToken(ctx context.Context) (*domain.Credential, error) {
	var cred domain.Credential
	if err := getJSON(ctx, s.client, KeyCredential, &cred); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, domain.NewRepositoryError("load", "token", "get failed", err)
	}
	return &cred, nil
}

// SaveToken overwrites the stored credential.
func (s *TokenStore) SaveToken(ctx context.Context, cred *domain.Credential) error {
	if cred == nil {
		return domain.NewValidationError("credential", nil, "must not be nil")
	}
	if err := setJSON(ctx, s.client, KeyCredential, cred); err != nil {
		return domain.NewRepositoryError("save", "token", "set failed", err)
	}
	return nil
}

var _ ports.TokenStore = (*TokenStore)(nil)
