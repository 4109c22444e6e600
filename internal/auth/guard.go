package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"qrstudio/internal/domain"
	"qrstudio/internal/secret"
)

const (
	refreshTokenKey = "auth.refresh_token"
	expirySkew      = 30 * time.Second
)

// Refresher reissues sessions. *Client implements it.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*Session, error)
}

// Guard holds the current session. Actions that need one run through Do,
// which refreshes an expired session once before giving up.
type Guard struct {
	client  Refresher
	secrets secret.SecretStore // may be nil

	mu      sync.Mutex
	session *Session
	now     func() time.Time
}

func NewGuard(client Refresher, secrets secret.SecretStore) *Guard {
	return &Guard{client: client, secrets: secrets, now: time.Now}
}

// SetSession installs a new session and persists its refresh token.
func (g *Guard) SetSession(s *Session) error {
	g.mu.Lock()
	g.session = s
	g.mu.Unlock()
	if g.secrets == nil || s == nil || s.RefreshToken == "" {
		return nil
	}
	if err := g.secrets.Set(refreshTokenKey, []byte(s.RefreshToken)); err != nil {
		return fmt.Errorf("save refresh token: %w", err)
	}
	return nil
}

// Restore signs in again from the persisted refresh token, if any.
func (g *Guard) Restore(ctx context.Context) (*Session, error) {
	if g.secrets == nil {
		return nil, domain.ErrUnauthenticated
	}
	rt, err := g.secrets.Get(refreshTokenKey)
	if err != nil {
		return nil, fmt.Errorf("load refresh token: %w", err)
	}
	if len(rt) == 0 {
		return nil, domain.ErrUnauthenticated
	}
	g.mu.Lock()
	g.session = &Session{RefreshToken: string(rt)}
	g.mu.Unlock()
	return g.Session(ctx)
}

// SignOut drops the session and the persisted refresh token.
func (g *Guard) SignOut() error {
	g.mu.Lock()
	g.session = nil
	g.mu.Unlock()
	if g.secrets != nil {
		return g.secrets.Delete(refreshTokenKey)
	}
	return nil
}

// Current returns the session without refreshing it.
func (g *Guard) Current() *Session {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.session == nil {
		return nil
	}
	s := *g.session
	return &s
}

// Session returns a valid session, refreshing once if it has expired.
func (g *Guard) Session(ctx context.Context) (*Session, error) {
	g.mu.Lock()
	s := g.session
	g.mu.Unlock()
	if s == nil {
		return nil, domain.ErrUnauthenticated
	}
	if !s.Expired(g.now(), expirySkew) {
		cp := *s
		return &cp, nil
	}
	return g.refresh(ctx, s.AccessToken)
}

// refresh reissues the session that carried staleAccess.
func (g *Guard) refresh(ctx context.Context, staleAccess string) (*Session, error) {
	g.mu.Lock()
	cur := g.session
	g.mu.Unlock()
	if cur == nil || cur.RefreshToken == "" || g.client == nil {
		return nil, domain.ErrUnauthenticated
	}
	// Someone else already refreshed.
	if cur.AccessToken != staleAccess && !cur.Expired(g.now(), expirySkew) {
		cp := *cur
		return &cp, nil
	}

	fresh, err := g.client.Refresh(ctx, cur.RefreshToken)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthenticated) {
			log.Printf("[Auth] refresh rejected, signing out")
			if err := g.SignOut(); err != nil {
				log.Printf("[Auth] clear refresh token: %v", err)
			}
			return nil, domain.ErrUnauthenticated
		}
		return nil, fmt.Errorf("refresh session: %w", err)
	}
	if err := g.SetSession(fresh); err != nil {
		log.Printf("[Auth] %v", err)
	}
	cp := *fresh
	return &cp, nil
}

// Do runs fn with a valid session. If fn reports ErrUnauthenticated the
// session is refreshed and fn runs once more.
func (g *Guard) Do(ctx context.Context, fn func(ctx context.Context, s *Session) error) error {
	s, err := g.Session(ctx)
	if err != nil {
		return err
	}
	err = fn(ctx, s)
	if !errors.Is(err, domain.ErrUnauthenticated) {
		return err
	}
	log.Printf("[Auth] action rejected as unauthenticated, refreshing once")
	s, err = g.refresh(ctx, s.AccessToken)
	if err != nil {
		return err
	}
	return fn(ctx, s)
}
