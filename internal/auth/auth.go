// Package auth obtains Spotify app tokens with the client-credentials flow
// and caches them on disk between runs.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// ErrMissingCredentials is returned when the client ID or secret is empty.
var ErrMissingCredentials = errors.New("missing Spotify client ID or secret")

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithTokenURL overrides Spotify's token endpoint.
func WithTokenURL(url string) Option {
	return func(a *Authenticator) {
		a.cfg.TokenURL = url
	}
}

// WithTokenCache persists tokens between runs.
func WithTokenCache(c *TokenCache) Option {
	return func(a *Authenticator) {
		a.cache = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Authenticator) {
		a.logger = logger
	}
}

// Authenticator obtains app tokens with the client credentials flow. Track
// analysis needs no user scopes, so no browser round trip is involved.
type Authenticator struct {
	cfg    clientcredentials.Config
	cache  *TokenCache
	logger *zap.Logger
}

// New creates an Authenticator for the given app credentials.
// Returns ErrMissingCredentials if either is empty.
func New(clientID, clientSecret string, opts ...Option) (*Authenticator, error) {
	if clientID == "" || clientSecret == "" {
		return nil, ErrMissingCredentials
	}

	a := &Authenticator{
		cfg: clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     spotifyauth.TokenURL,
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// TokenSource returns a token source that starts from a still valid cached
// token when there is one and saves every newly issued token.
func (a *Authenticator) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	var cached *oauth2.Token
	if a.cache != nil {
		tok, err := a.cache.Load()
		if err != nil {
			return nil, fmt.Errorf("loading cached token: %w", err)
		}
		if tok.Valid() {
			cached = tok
			a.logger.Debug("using cached token", zap.Time("expiry", tok.Expiry))
		}
	}

	base := oauth2.ReuseTokenSource(cached, a.cfg.TokenSource(ctx))
	if a.cache == nil {
		return base, nil
	}
	return &savingTokenSource{src: base, cache: a.cache, logger: a.logger, last: cached}, nil
}

// Authenticate returns a Spotify client authorised with an app token. A
// token is obtained up front so bad credentials fail here rather than on the
// first request.
func (a *Authenticator) Authenticate(ctx context.Context, opts ...spotify.ClientOption) (*spotify.Client, error) {
	ts, err := a.TokenSource(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := ts.Token(); err != nil {
		return nil, fmt.Errorf("obtaining token: %w", err)
	}

	opts = append([]spotify.ClientOption{spotify.WithRetry(true)}, opts...)
	return spotify.New(oauth2.NewClient(ctx, ts), opts...), nil
}

// Logout removes the cached token.
func (a *Authenticator) Logout() error {
	if a.cache == nil {
		return nil
	}
	return a.cache.Delete()
}

// savingTokenSource writes each new token to the cache.
type savingTokenSource struct {
	src    oauth2.TokenSource
	cache  *TokenCache
	logger *zap.Logger

	mu   sync.Mutex
	last *oauth2.Token
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil || s.last.AccessToken != tok.AccessToken {
		// Failing to cache does not fail the request.
		if err := s.cache.Save(tok); err != nil {
			s.logger.Warn("failed to cache token", zap.Error(err))
		}
		s.last = tok
	}
	return tok, nil
}
