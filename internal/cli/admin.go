package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/studiowebux/reqgate/internal/executor"
	"github.com/studiowebux/reqgate/internal/history"
	"github.com/studiowebux/reqgate/internal/logger"
	"github.com/studiowebux/reqgate/internal/mock"
	"github.com/studiowebux/reqgate/internal/oauth"
	"github.com/studiowebux/reqgate/internal/session"
	"github.com/studiowebux/reqgate/internal/types"
)

// Login runs the OAuth flow for the profile and stores the token.
// open receives the authorization URL; nil opens the system browser.
func (a *App) Login(ctx context.Context, profileName string, open func(string) error) error {
	profile, err := a.useProfile(profileName)
	if err != nil {
		return fmt.Errorf("failed to set profile: %w", err)
	}
	settings, ok := a.oauthSettings(profile)
	if !ok {
		return fmt.Errorf("oauth is not enabled for profile %s", profile.Name)
	}

	if open == nil {
		open = func(url string) error {
			fmt.Fprintf(a.ErrOut, "Opening browser for authorization...\nIf it does not open, visit: %s\n", url)
			return oauth.OpenBrowser(url)
		}
	}

	token, err := oauth.Login(logger.WithContext(ctx, a.Log), settings, open)
	if err != nil {
		return err
	}
	if err := a.Session.SaveOAuthToken(token); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}

	a.Log.Info().Str("profile", profile.Name).Msg("token stored")
	fmt.Fprintln(a.ErrOut, "Login successful")
	return nil
}

// TokenSet stores a token obtained elsewhere, e.g. from a login call
func (a *App) TokenSet(token string, expiresIn time.Duration) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("token is empty")
	}
	var expiry *time.Time
	if expiresIn > 0 {
		e := time.Now().Add(expiresIn)
		expiry = &e
	}
	return a.Session.SetToken(token, "", expiry)
}

// TokenShow prints the stored token. JWT claims are decoded for display.
func (a *App) TokenShow(format string) error {
	token, ok := a.Session.Get(session.TokenKey)
	if !ok || token == "" {
		return fmt.Errorf("no token stored")
	}

	out := map[string]any{"token": token}
	if info, err := session.InspectToken(token); err == nil {
		out["jwt"] = info
	}
	if expiry := a.Session.GetSession().TokenExpiry; expiry != nil {
		out["expiry"] = expiry.Format(time.RFC3339)
	}

	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	output, err := formatOutput(data, format)
	if err != nil {
		return err
	}
	fmt.Fprint(a.Out, output)
	return nil
}

// TokenClear removes the stored token
func (a *App) TokenClear() error {
	return a.Session.ClearToken()
}

// HistoryList prints recorded calls
func (a *App) HistoryList(ctx context.Context, opts history.ListOptions, format string) error {
	if a.History == nil {
		return fmt.Errorf("history is disabled")
	}
	records, err := a.History.List(ctx, opts)
	if err != nil {
		return err
	}

	if format == "text" {
		tw := tabwriter.NewWriter(a.Out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTIME\tPROFILE\tREQUEST\tMETHOD\tSTATUS\tOUTCOME\tDURATION\tMESSAGE")
		for _, r := range records {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
				r.ID, r.Timestamp.Local().Format("2006-01-02 15:04:05"), r.ProfileName, r.RequestName,
				r.Method, r.Status, r.Outcome, executor.FormatDuration(r.Duration), r.Message)
		}
		return tw.Flush()
	}

	if records == nil {
		records = []types.CallRecord{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}
	output, err := formatOutput(data, format)
	if err != nil {
		return err
	}
	fmt.Fprint(a.Out, output)
	return nil
}

// HistoryDelete removes one recorded call
func (a *App) HistoryDelete(ctx context.Context, id int64) error {
	if a.History == nil {
		return fmt.Errorf("history is disabled")
	}
	if err := a.History.Delete(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(a.ErrOut, "Deleted entry %d\n", id)
	return nil
}

// HistoryStats prints a summary of recorded calls
func (a *App) HistoryStats(ctx context.Context, profile, format string) error {
	if a.History == nil {
		return fmt.Errorf("history is disabled")
	}
	stats, err := a.History.Stats(ctx, profile)
	if err != nil {
		return err
	}

	if format == "text" {
		fmt.Fprintf(a.Out, "Total: %d  Success: %d  Failure: %d\n", stats.Total, stats.Successes, stats.Failures)
		fmt.Fprintf(a.Out, "Avg: %s  Max: %s\n",
			executor.FormatDuration(int64(stats.AvgDuration)), executor.FormatDuration(stats.MaxDuration))
		for kind, n := range stats.ByKind {
			fmt.Fprintf(a.Out, "  %s: %d\n", kind, n)
		}
		return nil
	}

	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to encode stats: %w", err)
	}
	output, err := formatOutput(data, format)
	if err != nil {
		return err
	}
	fmt.Fprint(a.Out, output)
	return nil
}

// HistoryClear deletes recorded calls for a profile, or all of them
func (a *App) HistoryClear(ctx context.Context, profile string) error {
	if a.History == nil {
		return fmt.Errorf("history is disabled")
	}
	n, err := a.History.Clear(ctx, profile)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.ErrOut, "Deleted %d entries\n", n)
	return nil
}

// Mock serves the mock configuration at path until ctx is done
func (a *App) Mock(ctx context.Context, path string, port int) error {
	cfg, err := mock.LoadConfig(path)
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Port = port
	}

	server := mock.NewServer(cfg, filepath.Dir(path), a.Log)
	if err := server.Start(); err != nil {
		return err
	}
	fmt.Fprintf(a.ErrOut, "Mock server listening on %s (ctrl+c to stop)\n", server.GetAddress())

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		return err
	}
	return writeRequestLog(a.ErrOut, server.GetLogs())
}

// writeRequestLog prints the requests a mock server answered
func writeRequestLog(w io.Writer, logs []mock.RequestLog) error {
	fmt.Fprintf(w, "Served %d requests\n", len(logs))
	if len(logs) == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tMETHOD\tPATH\tSTATUS\tROUTE\tDURATION")
	for _, l := range logs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			l.Timestamp.Local().Format("15:04:05"), l.Method, l.Path, l.Status, l.MatchedRule,
			executor.FormatDuration(l.Duration.Milliseconds()))
	}
	return tw.Flush()
}

// MockInit writes a sample mock configuration
func (a *App) MockInit(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if err := mock.SaveConfig(mock.SampleConfig(), path); err != nil {
		return err
	}
	fmt.Fprintf(a.ErrOut, "Sample mock configuration written to %s\n", path)
	return nil
}
