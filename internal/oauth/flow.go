package oauth

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/studiowebux/reqgate/internal/logger"
	"github.com/studiowebux/reqgate/internal/types"
	"golang.org/x/oauth2"
)

const (
	// OAuthCallbackTimeout is the maximum time to wait for OAuth callback
	OAuthCallbackTimeout = 5 * time.Minute
	// DefaultCallbackPort is used when the profile sets no webhook port
	DefaultCallbackPort = 8888
)

// Config converts profile settings to an oauth2 configuration.
// redirectURL is used when the profile sets none.
func Config(c types.OAuthConfig, redirectURL string) *oauth2.Config {
	cfg := &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  c.AuthURL,
			TokenURL: c.TokenURL,
		},
		RedirectURL: c.RedirectURI,
	}
	if cfg.RedirectURL == "" {
		cfg.RedirectURL = redirectURL
	}
	if c.Scope != "" {
		cfg.Scopes = strings.FieldsFunc(c.Scope, func(r rune) bool {
			return r == ' ' || r == ','
		})
	}
	return cfg
}

// Login runs the authorization code flow with PKCE. open is handed the
// authorization URL; pass nil to open the system browser. Progress is
// logged to the logger carried by ctx.
func Login(ctx context.Context, c types.OAuthConfig, open func(string) error) (*oauth2.Token, error) {
	log := logger.FromContext(ctx)
	if c.AuthURL == "" || c.TokenURL == "" || c.ClientID == "" {
		return nil, fmt.Errorf("oauth requires authUrl, tokenUrl and clientId")
	}
	if open == nil {
		open = OpenBrowser
	}

	port := c.WebhookPort
	if port == 0 {
		port = DefaultCallbackPort
	}
	server, err := NewCallbackServer(port)
	if err != nil {
		return nil, fmt.Errorf("failed to start callback server: %w", err)
	}
	server.Start()
	defer server.Shutdown(context.Background())

	cfg := Config(c, fmt.Sprintf("http://localhost:%d/callback", server.Port()))
	log.Debug().Int("port", server.Port()).Str("redirect", cfg.RedirectURL).Msg("callback server started")

	verifier := oauth2.GenerateVerifier()
	// CSRF protection
	state := oauth2.GenerateVerifier()

	authURL := cfg.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
	if err := open(authURL); err != nil {
		return nil, fmt.Errorf("failed to open browser: %w\nPlease visit: %s", err, authURL)
	}

	result, err := server.WaitForCallback(ctx, OAuthCallbackTimeout)
	if err != nil {
		return nil, err
	}
	if result.Error != "" {
		return nil, fmt.Errorf("authorization failed: %s", result.Error)
	}
	if result.Code == "" {
		return nil, fmt.Errorf("no authorization code received")
	}
	if result.State != state {
		return nil, fmt.Errorf("state mismatch (possible CSRF attack)")
	}
	log.Debug().Msg("authorization code received, exchanging")

	token, err := cfg.Exchange(ctx, result.Code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code for token: %w", err)
	}
	return token, nil
}

// OpenBrowser opens the default browser with the given URL
func OpenBrowser(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("unsupported platform")
	}

	return cmd.Start()
}
