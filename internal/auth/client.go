// Package auth keeps the signed-in session against the hosted identity
// provider and refreshes it when the access token runs out.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"qrstudio/internal/domain"
)

// Session is a signed-in user.
type Session struct {
	UserID       string    `json:"userId"`
	Email        string    `json:"email,omitempty"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// Expired reports whether the access token is past its expiry, less skew.
func (s *Session) Expired(now time.Time, skew time.Duration) bool {
	return s == nil || s.AccessToken == "" || !now.Add(skew).Before(s.ExpiresAt)
}

// Client talks to the identity provider.
type Client struct {
	*http.Client // [Embedded]
	BaseURL      string
	ClientID     string // ID of this app as a client of the provider
}

func NewClient(baseURL, clientID string) *Client {
	return &Client{
		Client:   &http.Client{Timeout: 15 * time.Second},
		BaseURL:  strings.TrimRight(baseURL, "/"),
		ClientID: clientID,
	}
}

type signInRequestBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type reissueRequestBody struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// SignIn exchanges credentials for a session.
func (c *Client) SignIn(ctx context.Context, email, password string) (*Session, error) {
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", domain.ErrValidation)
	}
	return c.token(ctx, "/token", signInRequestBody{Email: email, Password: password}, "")
}

// Refresh reissues the access token with a refresh token. A provider that
// keeps the old refresh token returns none; the old one is carried over.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, domain.ErrUnauthenticated
	}
	return c.token(ctx, "/token/refresh", reissueRequestBody{RefreshToken: refreshToken}, refreshToken)
}

func (c *Client) token(ctx context.Context, endpoint string, body any, prevRefresh string) (*Session, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Client-Id", c.ClientID)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	res, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: identity provider: %v", domain.ErrRemote, err)
	}
	defer func() {
		if err := res.Body.Close(); err != nil {
			log.Printf("[Auth] close response body: %v", err)
		}
	}()

	switch {
	case res.StatusCode == http.StatusUnauthorized, res.StatusCode == http.StatusForbidden:
		return nil, domain.ErrUnauthenticated
	case res.StatusCode == http.StatusBadRequest && endpoint == "/token/refresh":
		return nil, domain.ErrUnauthenticated
	case res.StatusCode/100 != 2:
		return nil, fmt.Errorf("%w: identity provider status %d", domain.ErrRemote, res.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(res.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("%w: decode token response: %v", domain.ErrRemote, err)
	}
	if tr.RefreshToken == "" {
		tr.RefreshToken = prevRefresh
	}
	return SessionFromTokens(tr.AccessToken, tr.RefreshToken)
}

// SessionFromTokens reads the user and expiry from the access token claims.
// The signature is not verified: the token came straight from the provider
// over TLS and is only ever sent back to it.
func SessionFromTokens(accessToken, refreshToken string) (*Session, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return nil, fmt.Errorf("%w: malformed access token: %v", domain.ErrRemote, err)
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("%w: access token has no subject", domain.ErrRemote)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, fmt.Errorf("%w: access token has no expiry", domain.ErrRemote)
	}
	s := &Session{
		UserID:       sub,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    exp.Time,
	}
	if email, ok := claims["email"].(string); ok {
		s.Email = email
	}
	return s, nil
}
