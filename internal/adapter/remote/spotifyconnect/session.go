// Package spotifyconnect drives a Spotify Connect device over the Web API.
package spotifyconnect

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"

	"github.com/tejashwikalptaru/adzantune/internal/domain"
	"github.com/tejashwikalptaru/adzantune/internal/ports"
)

const productPremium = "premium"

// Config selects the target device. DeviceID wins over DeviceName; with
// neither, the currently active device is used.
type Config struct {
	DeviceID   string
	DeviceName string
	BaseURL    string // API root ending in "/", empty for the public API
}

// Session implements ports.RemoteSession on zmb3/spotify.
//
// Calls are serialized so commands reach the device in issue order.
type Session struct {
	logger *slog.Logger
	client *spotify.Client
	creds  ports.CredentialProvider
	cfg    Config

	readiness domain.RemoteReadiness
	stateMu   sync.RWMutex

	callMu sync.Mutex
}

// NewSession creates a session whose requests carry bearer tokens from creds.
func NewSession(logger *slog.Logger, creds ports.CredentialProvider, cfg Config) *Session {
	httpClient := &http.Client{
		Transport: &bearerTransport{creds: creds, base: http.DefaultTransport},
	}

	opts := []spotify.ClientOption{spotify.WithRetry(false)}
	if cfg.BaseURL != "" {
		baseURL := cfg.BaseURL
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		opts = append(opts, spotify.WithBaseURL(baseURL))
	}

	return &Session{
		logger: logger,
		client: spotify.New(httpClient, opts...),
		creds:  creds,
		cfg:    cfg,
	}
}

// bearerTransport authorizes each request with a token fetched under that
// request's context, so a cancelled command also cancels a token refresh.
type bearerTransport struct {
	creds ports.CredentialProvider
	base  http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	rt := &oauth2.Transport{
		Source: &tokenSource{ctx: req.Context(), creds: t.creds},
		Base:   t.base,
	}
	return rt.RoundTrip(req)
}

// tokenSource adapts a CredentialProvider for one request. The provider
// owns refresh and caching, so every request asks it afresh.
type tokenSource struct {
	ctx   context.Context
	creds ports.CredentialProvider
}

func (s *tokenSource) Token() (*oauth2.Token, error) {
	access, err := s.creds.Token(s.ctx)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{AccessToken: access, TokenType: "Bearer"}, nil
}

// Connect checks the account tier and resolves the target device.
func (s *Session) Connect(ctx context.Context) (domain.RemoteReadiness, error) {
	s.callMu.Lock()
	defer s.callMu.Unlock()

	user, err := s.client.CurrentUser(ctx)
	if err != nil {
		s.setReadiness(domain.RemoteReadiness{})
		return domain.RemoteReadiness{}, s.wrap("current_user", err)
	}
	premium := user.Product == productPremium

	devices, err := s.client.PlayerDevices(ctx)
	if err != nil {
		s.setReadiness(domain.RemoteReadiness{Premium: premium})
		return domain.RemoteReadiness{Premium: premium}, s.wrap("devices", err)
	}

	deviceID := s.cfg.DeviceID
	if deviceID == "" {
		for _, d := range devices {
			if s.cfg.DeviceName != "" && strings.EqualFold(d.Name, s.cfg.DeviceName) {
				deviceID = string(d.ID)
				break
			}
			if s.cfg.DeviceName == "" && d.Active {
				deviceID = string(d.ID)
				break
			}
		}
	}

	r := domain.RemoteReadiness{Ready: deviceID != "", Premium: premium, DeviceID: deviceID}
	s.setReadiness(r)

	s.logger.Info("remote session connected",
		slog.String("user", user.ID),
		slog.Bool("premium", premium),
		slog.String("device_id", deviceID),
		slog.Int("devices", len(devices)))

	return r, nil
}

// Readiness returns the result of the last Connect.
func (s *Session) Readiness() domain.RemoteReadiness {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.readiness
}

func (s *Session) setReadiness(r domain.RemoteReadiness) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.readiness = r
}

func playOptions(deviceID string) *spotify.PlayOptions {
	opt := &spotify.PlayOptions{}
	if deviceID != "" {
		id := spotify.ID(deviceID)
		opt.DeviceID = &id
	}
	return opt
}

// PlayItems plays uris, starting at offsetURI when set.
func (s *Session) PlayItems(ctx context.Context, deviceID string, uris []string, offsetURI string) error {
	opt := playOptions(deviceID)
	for _, u := range uris {
		opt.URIs = append(opt.URIs, spotify.URI(u))
	}
	if offsetURI != "" {
		opt.PlaybackOffset = &spotify.PlaybackOffset{URI: spotify.URI(offsetURI)}
	}
	return s.call("play_items", func() error { return s.client.PlayOpt(ctx, opt) })
}

// PlayContext plays an album, playlist or artist, starting at offsetURI when set.
func (s *Session) PlayContext(ctx context.Context, deviceID, contextURI, offsetURI string) error {
	opt := playOptions(deviceID)
	uri := spotify.URI(contextURI)
	opt.PlaybackContext = &uri
	if offsetURI != "" {
		opt.PlaybackOffset = &spotify.PlaybackOffset{URI: spotify.URI(offsetURI)}
	}
	return s.call("play_context", func() error { return s.client.PlayOpt(ctx, opt) })
}

// Pause pauses the device.
func (s *Session) Pause(ctx context.Context, deviceID string) error {
	return s.call("pause", func() error { return s.client.PauseOpt(ctx, playOptions(deviceID)) })
}

// Resume resumes whatever the device had loaded.
func (s *Session) Resume(ctx context.Context, deviceID string) error {
	return s.call("resume", func() error { return s.client.PlayOpt(ctx, playOptions(deviceID)) })
}

// Seek moves the playhead.
func (s *Session) Seek(ctx context.Context, deviceID string, positionMs int) error {
	return s.call("seek", func() error { return s.client.SeekOpt(ctx, positionMs, playOptions(deviceID)) })
}

// SetShuffle toggles shuffle on the device.
func (s *Session) SetShuffle(ctx context.Context, deviceID string, shuffle bool) error {
	return s.call("shuffle", func() error { return s.client.ShuffleOpt(ctx, shuffle, playOptions(deviceID)) })
}

// SetRepeat maps mode onto off|context|track.
func (s *Session) SetRepeat(ctx context.Context, deviceID string, mode domain.RepeatMode) error {
	return s.call("repeat", func() error { return s.client.RepeatOpt(ctx, mode.RemoteState(), playOptions(deviceID)) })
}

// SetVolume sets the device volume in percent.
func (s *Session) SetVolume(ctx context.Context, deviceID string, percent int) error {
	if percent < 0 || percent > 100 {
		return domain.ErrInvalidVolume
	}
	return s.call("volume", func() error { return s.client.VolumeOpt(ctx, percent, playOptions(deviceID)) })
}

// Next skips forward natively.
func (s *Session) Next(ctx context.Context, deviceID string) error {
	return s.call("next", func() error { return s.client.NextOpt(ctx, playOptions(deviceID)) })
}

// Previous skips back natively.
func (s *Session) Previous(ctx context.Context, deviceID string) error {
	return s.call("previous", func() error { return s.client.PreviousOpt(ctx, playOptions(deviceID)) })
}

// Queue returns the upcoming items.
func (s *Session) Queue(ctx context.Context) ([]domain.RemoteItem, error) {
	var items []domain.RemoteItem
	err := s.call("queue", func() error {
		q, err := s.client.GetQueue(ctx)
		if err != nil {
			return err
		}
		items = make([]domain.RemoteItem, 0, len(q.Items))
		for i := range q.Items {
			items = append(items, domain.RemoteItem{URI: string(q.Items[i].URI), Name: q.Items[i].Name})
		}
		return nil
	})
	return items, err
}

// RecentlyPlayed returns up to limit recently played items, newest first.
func (s *Session) RecentlyPlayed(ctx context.Context, limit int) ([]domain.RemoteItem, error) {
	var items []domain.RemoteItem
	err := s.call("recently_played", func() error {
		played, err := s.client.PlayerRecentlyPlayedOpt(ctx, &spotify.RecentlyPlayedOptions{Limit: spotify.Numeric(limit)})
		if err != nil {
			return err
		}
		items = make([]domain.RemoteItem, 0, len(played))
		for _, p := range played {
			items = append(items, domain.RemoteItem{
				URI:      string(p.Track.URI),
				Name:     p.Track.Name,
				PlayedAt: p.PlayedAt,
			})
		}
		return nil
	})
	return items, err
}

// State reports what the device is doing.
func (s *Session) State(ctx context.Context) (domain.RemoteState, error) {
	var st domain.RemoteState
	err := s.call("state", func() error {
		ps, err := s.client.PlayerState(ctx)
		if err != nil {
			return err
		}
		st = domain.RemoteState{
			Playing:    ps.Playing,
			DeviceID:   string(ps.Device.ID),
			ContextURI: string(ps.PlaybackContext.URI),
			Shuffle:    ps.ShuffleState,
			Repeat:     domain.ParseRepeatMode(ps.RepeatState),
		}
		if ps.Item != nil {
			st.ItemURI = string(ps.Item.URI)
		}
		return nil
	})
	return st, err
}

func (s *Session) call(op string, fn func() error) error {
	s.callMu.Lock()
	defer s.callMu.Unlock()

	if err := fn(); err != nil {
		return s.wrap(op, err)
	}
	return nil
}

// wrap converts a client error into *domain.RemoteError. A 401 also tells a
// credential provider that can be invalidated to refresh on the next call.
func (s *Session) wrap(op string, err error) error {
	status := 0

	var apiErr spotify.Error
	var apiErrPtr *spotify.Error
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.Status
	case errors.As(err, &apiErrPtr):
		status = apiErrPtr.Status
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusUnauthorized
	}

	if status == http.StatusUnauthorized {
		if inv, ok := s.creds.(interface{ Invalidate() }); ok {
			inv.Invalidate()
		}
	}

	s.logger.Debug("remote call failed",
		slog.String("op", op),
		slog.Int("status", status),
		slog.Any("error", err))

	return domain.NewRemoteError(op, status, err)
}

var _ ports.RemoteSession = (*Session)(nil)
