// Package session caches backend auth tokens across API calls and stream
// connects.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// TokenSource yields a valid auth token. Implementations decide how tokens
// are minted and for how long they stay usable.
type TokenSource interface {
	// Token returns a token valid at the time of the call.
	Token(ctx context.Context) (string, error)
	// Invalidate discards any cached token so the next Token call mints a
	// fresh one. Called after a 401.
	Invalidate()
}

// FetchFunc mints a new token and reports its expiry. A zero expiry means the
// token does not expire.
type FetchFunc func(ctx context.Context) (token string, expiresAt time.Time, err error)

// CachedTokenSource caches a token until shortly before expiry. Safe for
// concurrent use; only one fetch runs at a time.
type CachedTokenSource struct {
	fetch FetchFunc
	skew  time.Duration
	now   func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewCachedTokenSource wraps fetch with caching. Tokens are refreshed skew
// ahead of their expiry.
func NewCachedTokenSource(fetch FetchFunc, skew time.Duration) *CachedTokenSource {
	if skew <= 0 {
		skew = 30 * time.Second
	}
	return &CachedTokenSource{fetch: fetch, skew: skew, now: time.Now}
}

// WithNow fixes the clock for tests.
func (s *CachedTokenSource) WithNow(now func() time.Time) *CachedTokenSource {
	s.now = now
	return s
}

// Token returns the cached token, minting a new one when the cache is empty
// or within skew of expiry.
func (s *CachedTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && (s.expiresAt.IsZero() || s.now().Before(s.expiresAt.Add(-s.skew))) {
		return s.token, nil
	}

	token, expiresAt, err := s.fetch(ctx)
	if err != nil {
		return "", eris.Wrap(err, "session: fetch token")
	}
	s.token = token
	s.expiresAt = expiresAt
	return token, nil
}

// Invalidate drops the cached token.
func (s *CachedTokenSource) Invalidate() {
	s.mu.Lock()
	s.token = ""
	s.expiresAt = time.Time{}
	s.mu.Unlock()
}

// StaticTokenSource returns the same token forever. Useful for API keys and
// tests.
type StaticTokenSource string

func (s StaticTokenSource) Token(context.Context) (string, error) { return string(s), nil }

func (StaticTokenSource) Invalidate() {}
