// Package credentials keeps a usable bearer token for the remote session,
// refreshing it through the OAuth2 token endpoint before it expires.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/tejashwikalptaru/adzantune/internal/domain"
	"github.com/tejashwikalptaru/adzantune/internal/ports"
)

// Refresh buffers. Development refreshes far earlier so the refresh path is
// exercised within a normal session.
const (
	RefreshBuffer            = 5 * time.Minute
	DevelopmentRefreshBuffer = 55 * time.Minute
)

// Config contains the OAuth client settings.
type Config struct {
	ClientID     string
	ClientSecret string
	TokenURL     string // empty for the public endpoint
	RefreshToken string // seed used when the store holds nothing
	Development  bool
}

// Provider implements ports.CredentialProvider.
type Provider struct {
	logger *slog.Logger
	store  ports.TokenStore
	oauth  *oauth2.Config
	seed   string
	buffer time.Duration
	now    func() time.Time

	cred *domain.Credential
	mu   sync.Mutex
}

// NewProvider creates a provider backed by store.
func NewProvider(logger *slog.Logger, store ports.TokenStore, cfg Config) *Provider {
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = spotifyauth.TokenURL
	}

	buffer := RefreshBuffer
	if cfg.Development {
		buffer = DevelopmentRefreshBuffer
	}

	return &Provider{
		logger: logger,
		store:  store,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  spotifyauth.AuthURL,
				TokenURL: tokenURL,
			},
		},
		seed:   cfg.RefreshToken,
		buffer: buffer,
		now:    time.Now,
	}
}

// Token returns an access token valid for at least the refresh buffer.
func (p *Provider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cred == nil {
		if err := p.loadLocked(ctx); err != nil {
			return "", err
		}
	}

	if p.cred.AccessToken != "" && p.cred.Expiry.Sub(p.now()) > p.buffer {
		return p.cred.AccessToken, nil
	}

	if err := p.refreshLocked(ctx); err != nil {
		return "", err
	}
	return p.cred.AccessToken, nil
}

// Invalidate forces a refresh on the next Token call.
func (p *Provider) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cred != nil {
		p.cred.AccessToken = ""
	}
}

func (p *Provider) loadLocked(ctx context.Context) error {
	cred, err := p.store.LoadToken(ctx)
	switch {
	case err == nil:
		p.cred = cred
	case errors.Is(err, domain.ErrNotFound):
		if p.seed == "" {
			return fmt.Errorf("no stored credential: %w", domain.ErrUnauthorized)
		}
		p.cred = &domain.Credential{RefreshToken: p.seed, TokenType: "Bearer"}
	default:
		return fmt.Errorf("load credential: %w", err)
	}
	return nil
}

func (p *Provider) refreshLocked(ctx context.Context) error {
	if p.cred.RefreshToken == "" {
		return fmt.Errorf("no refresh token: %w", domain.ErrUnauthorized)
	}

	// A past expiry makes the token source refresh unconditionally
	stale := &oauth2.Token{
		AccessToken:  p.cred.AccessToken,
		RefreshToken: p.cred.RefreshToken,
		TokenType:    p.cred.TokenType,
		Expiry:       time.Unix(1, 0),
	}

	tok, err := p.oauth.TokenSource(ctx, stale).Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			p.logger.Warn("token refresh rejected", slog.Any("error", err))
			return fmt.Errorf("refresh rejected: %w", errors.Join(domain.ErrUnauthorized, err))
		}
		return fmt.Errorf("refresh token: %w", err)
	}

	p.cred = &domain.Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
	}

	if err := p.store.SaveToken(ctx, p.cred); err != nil {
		p.logger.Warn("failed to persist refreshed token", slog.Any("error", err))
	}

	p.logger.Debug("access token refreshed", slog.Time("expiry", tok.Expiry))
	return nil
}

var _ ports.CredentialProvider = (*Provider)(nil)
