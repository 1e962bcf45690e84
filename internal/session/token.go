package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// TokenSource returns an oauth2.TokenSource seeded with the stored token.
// Tokens it refreshes are written back to the session, so the gateway picks
// them up on the next call.
func (m *Manager) TokenSource(ctx context.Context, cfg *oauth2.Config) oauth2.TokenSource {
	m.mu.RLock()
	seed := &oauth2.Token{
		AccessToken:  m.session.Token,
		RefreshToken: m.session.RefreshToken,
		TokenType:    "Bearer",
	}
	if m.session.TokenExpiry != nil {
		seed.Expiry = *m.session.TokenExpiry
	}
	m.mu.RUnlock()

	return &persistingSource{
		base:  cfg.TokenSource(ctx, seed),
		store: m,
		last:  seed.AccessToken,
	}
}

type persistingSource struct {
	mu    sync.Mutex
	base  oauth2.TokenSource
	store *Manager
	last  string
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		if err := s.store.SaveOAuthToken(tok); err != nil {
			return nil, err
		}
		s.last = tok.AccessToken
	}
	return tok, nil
}

// SaveOAuthToken stores an oauth2 token in the session
func (m *Manager) SaveOAuthToken(tok *oauth2.Token) error {
	var expiry *time.Time
	if !tok.Expiry.IsZero() {
		e := tok.Expiry
		expiry = &e
	}
	return m.SetToken(tok.AccessToken, tok.RefreshToken, expiry)
}

// RefreshIfNeeded refreshes the stored token when it has expired and a
// refresh token is available. It is a no-op otherwise.
func (m *Manager) RefreshIfNeeded(ctx context.Context, cfg *oauth2.Config) error {
	m.mu.RLock()
	expiry := m.session.TokenExpiry
	hasRefresh := m.session.RefreshToken != ""
	m.mu.RUnlock()

	if expiry == nil || !hasRefresh || time.Until(*expiry) > 10*time.Second {
		return nil
	}
	if _, err := m.TokenSource(ctx, cfg).Token(); err != nil {
		return fmt.Errorf("failed to refresh token: %w", err)
	}
	return nil
}

// TokenInfo is what can be read from a JWT access token without verifying it
type TokenInfo struct {
	Subject   string         `json:"subject,omitempty" yaml:"subject,omitempty"`
	Issuer    string         `json:"issuer,omitempty" yaml:"issuer,omitempty"`
	Audience  []string       `json:"audience,omitempty" yaml:"audience,omitempty"`
	IssuedAt  *time.Time     `json:"issuedAt,omitempty" yaml:"issuedAt,omitempty"`
	ExpiresAt *time.Time     `json:"expiresAt,omitempty" yaml:"expiresAt,omitempty"`
	Expired   bool           `json:"expired" yaml:"expired"`
	Claims    map[string]any `json:"claims" yaml:"claims"`
}

// InspectToken decodes a JWT's claims. The signature is not checked: the
// token belongs to the server, this is for display only.
func InspectToken(token string) (*TokenInfo, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("token is not a JWT: %w", err)
	}

	info := &TokenInfo{Claims: claims}
	info.Subject, _ = claims.GetSubject()
	info.Issuer, _ = claims.GetIssuer()
	if aud, err := claims.GetAudience(); err == nil {
		info.Audience = aud
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		t := iat.Time
		info.IssuedAt = &t
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		t := exp.Time
		info.ExpiresAt = &t
		info.Expired = time.Now().After(t)
	}
	return info, nil
}
