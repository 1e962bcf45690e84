package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/studiowebux/reqgate/internal/chain"
	"github.com/studiowebux/reqgate/internal/config"
	"github.com/studiowebux/reqgate/internal/events"
	"github.com/studiowebux/reqgate/internal/executor"
	"github.com/studiowebux/reqgate/internal/gateway"
	"github.com/studiowebux/reqgate/internal/history"
	"github.com/studiowebux/reqgate/internal/oauth"
	"github.com/studiowebux/reqgate/internal/session"
	"github.com/studiowebux/reqgate/internal/types"
)

// App holds everything a command needs. Commands build one per process.
type App struct {
	Config    *config.Config
	Session   *session.Manager
	History   *history.Manager // nil when history is disabled
	Transport gateway.Transport
	Bus       *events.Bus
	Log       zerolog.Logger
	In        io.Reader // keyboard input for the TUI; nil disables it
	Out       io.Writer
	ErrOut    io.Writer
	// Interactive allows prompts for missing variables and request selection
	Interactive bool
}

// NewApp creates an app writing to stdout/stderr with an HTTP transport
func NewApp(cfg *config.Config, mgr *session.Manager, log zerolog.Logger) *App {
	return &App{
		Config:      cfg,
		Session:     mgr,
		Transport:   executor.NewHTTPTransport(executor.WithLogger(log)),
		Bus:         events.NewBus(),
		Log:         log,
		In:          os.Stdin,
		Out:         os.Stdout,
		ErrOut:      os.Stderr,
		Interactive: isInteractive(),
	}
}

// OpenHistory attaches the history database when both the config and the
// session allow it
func (a *App) OpenHistory(dbPath string) error {
	if !a.Config.History || !a.Session.IsHistoryEnabled() {
		return nil
	}
	h, err := history.NewManager(dbPath)
	if err != nil {
		return err
	}
	a.History = h
	return nil
}

// Close releases the history database
func (a *App) Close() error {
	if a.History != nil {
		return a.History.Close()
	}
	return nil
}

// useProfile switches the active profile when name differs from it.
// Switching clears the session token.
func (a *App) useProfile(name string) (types.Profile, error) {
	if name != "" && name != a.Session.GetActiveProfile().Name {
		if err := a.Session.SetActiveProfile(name); err != nil {
			return types.Profile{}, err
		}
	}
	return a.Session.GetActiveProfile(), nil
}

// oauthSettings returns the profile's OAuth settings, falling back to the
// global ones
func (a *App) oauthSettings(profile types.Profile) (types.OAuthConfig, bool) {
	if profile.OAuth != nil && profile.OAuth.Enabled {
		return *profile.OAuth, true
	}
	if a.Config.OAuth.Enabled {
		return a.Config.OAuth, true
	}
	return types.OAuthConfig{}, false
}

// refreshToken renews an expiring OAuth token before calls read it.
// Failures are logged; the call then goes out with whatever token is stored.
func (a *App) refreshToken(ctx context.Context, profile types.Profile) {
	settings, ok := a.oauthSettings(profile)
	if !ok {
		return
	}
	if err := a.Session.RefreshIfNeeded(ctx, oauth.Config(settings, "")); err != nil {
		a.Log.Warn().Err(err).Str("profile", profile.Name).Msg("token refresh failed")
	}
}

// newGateway builds a gateway for one command invocation
func (a *App) newGateway(profile types.Profile, notifier gateway.Notifier) *gateway.Gateway {
	opts := []gateway.Option{
		gateway.WithCredentials(a.Session),
		gateway.WithLoadingBus(a.Bus),
		gateway.WithNotifier(notifier),
		gateway.WithLogger(a.Log),
		gateway.WithProfile(profile.Name),
	}
	if a.History != nil {
		opts = append(opts, gateway.WithRecorder(a.History))
	}
	return gateway.New(a.Transport, opts...)
}

// storeExtracted saves the values named by a request's extract rules
func (a *App) storeExtracted(payload []byte, rules map[string]string) error {
	values, err := chain.Extract(payload, rules)
	if err != nil {
		return err
	}
	for _, name := range chain.Names(values) {
		if name == session.TokenKey {
			err = a.Session.SetToken(values[name], "", nil)
		} else {
			err = a.Session.SetSessionVariable(name, values[name])
		}
		if err != nil {
			return fmt.Errorf("failed to store %s: %w", name, err)
		}
		a.Log.Debug().Str("variable", name).Msg("extracted from payload")
	}
	return nil
}

// isInteractive checks if stdin is a terminal (not piped)
func isInteractive() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}
