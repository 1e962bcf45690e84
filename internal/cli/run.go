package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/studiowebux/reqgate/internal/config"
	"github.com/studiowebux/reqgate/internal/events"
	"github.com/studiowebux/reqgate/internal/filter"
	"github.com/studiowebux/reqgate/internal/gateway"
	"github.com/studiowebux/reqgate/internal/notify"
	"github.com/studiowebux/reqgate/internal/parser"
	"github.com/studiowebux/reqgate/internal/tui"
	"github.com/studiowebux/reqgate/internal/types"
	"golang.org/x/sync/errgroup"
)

// ErrCallsFailed is returned by RunBatch when at least one call failed
var ErrCallsFailed = errors.New("one or more calls failed")

// CallOptions are the flags shared by run, call and batch
type CallOptions struct {
	Profile   string
	ExtraVars []string // key=value pairs from -e flag
	EnvFile   string   // path to .env file
	Output    string   // json, yaml, text
	Filter    string   // JMESPath filter expression
	Query     string   // JMESPath query or $(shell command)
	SavePath  string
	Copy      bool
	TUI       bool
	// Overrides are applied on top of the request itself
	Overrides types.RequestOverrides
}

// RunOptions selects a request from a file
type RunOptions struct {
	CallOptions
	FilePath string
	Name     string
}

// Run executes one request from a request file
func (a *App) Run(ctx context.Context, opts RunOptions) error {
	profile, err := a.useProfile(opts.Profile)
	if err != nil {
		return fmt.Errorf("failed to set profile: %w", err)
	}

	requests, err := a.loadRequests(opts.FilePath, profile)
	if err != nil {
		return err
	}

	name := opts.Name
	if name == "" && len(requests) > 1 && a.Interactive && !opts.TUI {
		if name, err = promptForRequest(requests); err != nil {
			return err
		}
	}
	req, err := parser.Find(requests, name)
	if err != nil {
		return err
	}

	return a.Call(ctx, req, opts.CallOptions)
}

// Call executes one request: variables are resolved, defaults layered,
// the gateway called and the payload written out
func (a *App) Call(ctx context.Context, req types.NamedRequest, opts CallOptions) error {
	profile, err := a.useProfile(opts.Profile)
	if err != nil {
		return fmt.Errorf("failed to set profile: %w", err)
	}
	a.refreshToken(ctx, profile)

	cliVars, envVars, err := variableSources(opts)
	if err != nil {
		return err
	}
	resolved, err := a.resolve(req, profile, opts, cliVars, envVars)
	if err != nil {
		return err
	}
	filterExpr, queryExpr := firstNonEmpty(opts.Filter, resolved.Filter), firstNonEmpty(opts.Query, resolved.Query)
	if err := filter.Validate(filterExpr, queryExpr); err != nil {
		return err
	}
	spec := resolved.Apply(types.DefaultRequestSpec())

	var (
		payload json.RawMessage
		callErr error
	)
	if opts.TUI {
		model, err := tui.Run(a.Bus, 1, func(b *tui.Bridge) {
			start := time.Now()
			payload, callErr = a.newGateway(profile, b).ExecuteNamed(ctx, resolved.Name, spec)
			b.Result(tui.Result{Name: resolved.Name, Payload: payload, Err: callErr, Duration: time.Since(start)})
		}, a.teaOptions()...)
		if err != nil {
			return fmt.Errorf("failed to run TUI: %w", err)
		}
		if model.Interrupted() {
			return fmt.Errorf("interrupted")
		}
	} else {
		unsubscribe := a.Bus.Subscribe(a.logLoading)
		defer unsubscribe()
		payload, callErr = a.newGateway(profile, notify.NewConsole(a.ErrOut)).ExecuteNamed(ctx, resolved.Name, spec)
	}
	if callErr != nil {
		return callErr
	}
	if err := a.storeExtracted(payload, resolved.Extract); err != nil {
		return err
	}

	output, err := a.render(payload, filterExpr, queryExpr, a.outputFormat(opts, profile))
	if err != nil {
		return err
	}
	return a.emit(output, opts)
}

// BatchResult is one entry of a batch run
type BatchResult struct {
	Name  string          `json:"name"`
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

// RunBatch executes every request of a file concurrently, at most
// Config.Concurrency at a time. Failed calls do not cancel the others.
func (a *App) RunBatch(ctx context.Context, opts RunOptions) error {
	profile, err := a.useProfile(opts.Profile)
	if err != nil {
		return fmt.Errorf("failed to set profile: %w", err)
	}
	a.refreshToken(ctx, profile)

	requests, err := a.loadRequests(opts.FilePath, profile)
	if err != nil {
		return err
	}

	cliVars, envVars, err := variableSources(opts.CallOptions)
	if err != nil {
		return err
	}

	specs := make([]types.RequestSpec, len(requests))
	resolved := make([]types.NamedRequest, len(requests))
	for i, req := range requests {
		if resolved[i], err = a.resolve(req, profile, opts.CallOptions, cliVars, envVars); err != nil {
			return fmt.Errorf("request %s: %w", req.Name, err)
		}
		if err := filter.Validate(firstNonEmpty(opts.Filter, resolved[i].Filter), firstNonEmpty(opts.Query, resolved[i].Query)); err != nil {
			return fmt.Errorf("request %s: %w", req.Name, err)
		}
		specs[i] = resolved[i].Apply(types.DefaultRequestSpec())
	}

	results := make([]BatchResult, len(requests))
	var report func(tui.Result)

	run := func(notifier gateway.Notifier) {
		g := a.newGateway(profile, notifier)
		group, gctx := errgroup.WithContext(ctx)
		group.SetLimit(max(1, a.Config.Concurrency))

		for i := range specs {
			group.Go(func() error {
				start := time.Now()
				payload, err := g.ExecuteNamed(gctx, resolved[i].Name, specs[i])
				results[i] = BatchResult{Name: resolved[i].Name, OK: err == nil, Data: payload}
				if err != nil {
					results[i].Error = err.Error()
				} else if xerr := a.storeExtracted(payload, resolved[i].Extract); xerr != nil {
					results[i].OK = false
					results[i].Error = xerr.Error()
				} else if data, ferr := filter.Apply(payload, firstNonEmpty(opts.Filter, resolved[i].Filter), firstNonEmpty(opts.Query, resolved[i].Query)); ferr != nil {
					results[i].OK = false
					results[i].Error = ferr.Error()
				} else {
					results[i].Data = data
				}
				if report != nil {
					report(tui.Result{Name: resolved[i].Name, Payload: payload, Err: err, Duration: time.Since(start)})
				}
				// failures are reported per call, never abort the batch
				return nil
			})
		}
		// every goroutine returns nil
		_ = group.Wait()
	}

	if opts.TUI {
		model, err := tui.Run(a.Bus, len(specs), func(b *tui.Bridge) {
			report = b.Result
			run(b)
		}, a.teaOptions()...)
		if err != nil {
			return fmt.Errorf("failed to run TUI: %w", err)
		}
		if model.Interrupted() {
			return fmt.Errorf("interrupted")
		}
	} else {
		unsubscribe := a.Bus.Subscribe(a.logLoading)
		defer unsubscribe()
		run(notify.NewConsole(a.ErrOut))
	}

	output, err := formatBatch(results, a.outputFormat(opts.CallOptions, profile))
	if err != nil {
		return err
	}
	if err := a.emit(output, opts.CallOptions); err != nil {
		return err
	}

	for _, r := range results {
		if !r.OK {
			return ErrCallsFailed
		}
	}
	return nil
}

// resolve layers config defaults, profile defaults, the request and the
// flag overrides, then resolves variables in the result. Unresolved
// variables are prompted for when interactive.
func (a *App) resolve(req types.NamedRequest, profile types.Profile, opts CallOptions, cliVars, envVars map[string]string) (types.NamedRequest, error) {
	merged := req
	merged.RequestOverrides = opts.Overrides.Merge(req.RequestOverrides.Merge(profile.Defaults.Merge(a.Config.Defaults)))

	sessionVars := a.Session.GetSession().Variables
	resolver := parser.NewVariableResolver(profile.Variables, sessionVars, cliVars, envVars)
	resolved, err := resolver.ResolveRequest(merged)
	if err != nil {
		return req, fmt.Errorf("failed to resolve variables: %w", err)
	}

	if unresolved := resolver.GetUnresolvedVariables(); len(unresolved) > 0 {
		if !a.Interactive || opts.TUI {
			a.Log.Warn().Strs("variables", unresolved).Str("request", req.Name).Msg("unresolved variables")
			return resolved, nil
		}
		for _, name := range unresolved {
			value, err := promptForVariable(name)
			if err != nil {
				return req, fmt.Errorf("failed to read input for '%s': %w", name, err)
			}
			cliVars[name] = value
		}
		resolver = parser.NewVariableResolver(profile.Variables, sessionVars, cliVars, envVars)
		if resolved, err = resolver.ResolveRequest(merged); err != nil {
			return req, fmt.Errorf("failed to resolve variables: %w", err)
		}
	}
	for _, msg := range resolver.GetShellErrors() {
		a.Log.Warn().Str("request", req.Name).Msg(msg)
	}
	return resolved, nil
}

// variableSources parses -e flags and loads the environment, with the
// optional .env file overriding system variables
func variableSources(opts CallOptions) (map[string]string, map[string]string, error) {
	cliVars := make(map[string]string, len(opts.ExtraVars))
	for _, ev := range opts.ExtraVars {
		key, value, _ := strings.Cut(ev, "=")
		if key != "" {
			cliVars[key] = value
		}
	}

	envVars := parser.LoadSystemEnv()
	if opts.EnvFile != "" {
		fileVars, err := parser.LoadEnvFile(opts.EnvFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load env file: %w", err)
		}
		for k, v := range fileVars {
			envVars[k] = v
		}
	}
	return cliVars, envVars, nil
}

func (a *App) loadRequests(path string, profile types.Profile) ([]types.NamedRequest, error) {
	workdir, err := config.GetWorkingDirectory(profile.Workdir)
	if err != nil {
		return nil, err
	}
	filePath, err := resolveFilePath(path, workdir)
	if err != nil {
		return nil, err
	}
	requests, err := parser.Parse(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to parse file: %w", err)
	}
	return requests, nil
}

func (a *App) outputFormat(opts CallOptions, profile types.Profile) string {
	return firstNonEmpty(opts.Output, profile.Output, a.Config.Output, "json")
}

func (a *App) logLoading(evt events.Event) {
	a.Log.Debug().Str("event", string(evt.Name)).Str("text", evt.Payload).Msg("loading")
}

// resolveFilePath attempts to find the actual file path, trying common extensions
// if the exact path doesn't exist. Returns the resolved path and any error.
func resolveFilePath(basePath, workdir string) (string, error) {
	extensions := []string{"", ".yaml", ".yml", ".json", ".jsonc", ".http"}

	if filepath.IsAbs(basePath) {
		for _, ext := range extensions {
			candidate := basePath + ext
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}
		return "", fmt.Errorf("file not found: %s (tried .yaml, .yml, .json, .jsonc, .http extensions)", basePath)
	}

	// Check in current directory first
	for _, ext := range extensions {
		candidate := basePath + ext
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	for _, ext := range extensions {
		candidate := filepath.Join(workdir, basePath+ext)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("file not found: %s (searched current directory and %s)", basePath, workdir)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
