package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/studiowebux/reqgate/internal/cli"
	"github.com/studiowebux/reqgate/internal/config"
	"github.com/studiowebux/reqgate/internal/gateway"
	"github.com/studiowebux/reqgate/internal/history"
	"github.com/studiowebux/reqgate/internal/logger"
	"github.com/studiowebux/reqgate/internal/session"
	"github.com/studiowebux/reqgate/internal/types"
	reqversion "github.com/studiowebux/reqgate/internal/version"
)

var (
	version = "0.1.0"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		// gateway failures were already shown by the notifier
		var gerr *gateway.Error
		if !errors.As(err, &gerr) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "reqgate [file]",
	Short: "reqgate - envelope-aware HTTP request runner",
	Long: `reqgate runs HTTP requests described in .http, YAML or JSON files through a
gateway that injects the session token, tracks loading, and accepts a call
only when the response envelope carries code "0".

File extension is optional - 'get-user' resolves to 'get-user.yaml',
'get-user.http' and so on.

Examples:
  reqgate users                          # Run the first (or picked) request in users.*
  reqgate run users --name list -p dev   # Run a named request with the 'dev' profile
  reqgate run users -e userId=123        # Provide a variable
  reqgate batch users --tui              # Run every request in the file
  reqgate call /api/items --base-url http://localhost:8080
  reqgate mock mock.yaml                 # Serve a mock backend
  reqgate token show`,
	Version:       version,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}
		return withApp(cmd, func(app *cli.App) error {
			opts, err := runOptions(app, args[0])
			if err != nil {
				return err
			}
			return app.Run(cmd.Context(), opts)
		})
	},
}

var runCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Execute one request from a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(app *cli.App) error {
			opts, err := runOptions(app, args[0])
			if err != nil {
				return err
			}
			return app.Run(cmd.Context(), opts)
		})
	},
}

var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Execute every request in a file concurrently",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(app *cli.App) error {
			opts, err := runOptions(app, args[0])
			if err != nil {
				return err
			}
			return app.RunBatch(cmd.Context(), opts)
		})
	},
}

var callCmd = &cobra.Command{
	Use:   "call <url>",
	Short: "Execute an ad-hoc request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := types.NamedRequest{Name: "call"}
		req.URL = args[0]
		req.Method = strings.ToUpper(flagMethod)

		params, err := parsePairs(flagParams, "=")
		if err != nil {
			return fmt.Errorf("invalid --param: %w", err)
		}
		req.Params = params

		if flagData != "" {
			var body any
			if err := json.Unmarshal([]byte(flagData), &body); err != nil {
				body = flagData
			}
			req.Data = body
		}

		return withApp(cmd, func(app *cli.App) error {
			opts, err := callOptions(app)
			if err != nil {
				return err
			}
			return app.Call(cmd.Context(), req, opts)
		})
	},
}

var mockCmd = &cobra.Command{
	Use:   "mock <config>",
	Short: "Serve a mock backend from a YAML or JSON configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(app *cli.App) error {
			return app.Mock(cmd.Context(), args[0], flagMockPort)
		})
	},
}

var mockInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a sample mock configuration",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "mock.yaml"
		if len(args) > 0 {
			path = args[0]
		}
		return withApp(cmd, func(app *cli.App) error {
			return app.MockInit(path)
		})
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Run the OAuth flow for the active profile and store the token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(app *cli.App) error {
			return app.Login(cmd.Context(), flagProfile, nil)
		})
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage the stored session token",
}

var tokenSetCmd = &cobra.Command{
	Use:   "set <token>",
	Short: "Store a token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(app *cli.App) error {
			return app.TokenSet(args[0], flagExpiresIn)
		})
	},
}

var tokenShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the stored token and its JWT claims",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(app *cli.App) error {
			return app.TokenShow(outputOr("json"))
		})
	},
}

var tokenClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the stored token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(app *cli.App) error {
			return app.TokenClear()
		})
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and optionally check for a newer release",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "reqgate %s\n", version)
		if !flagCheck {
			return nil
		}
		update, err := reqversion.NewChecker().Check(cmd.Context(), version)
		if err != nil {
			return err
		}
		if update.Available {
			fmt.Fprintf(cmd.OutOrStdout(), "A newer version is available: %s\n%s\n", update.Latest, update.URL)
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "You are on the latest version")
		}
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect recorded calls",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded calls",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(app *cli.App) error {
			return app.HistoryList(cmd.Context(), history.ListOptions{
				Profile: flagProfile,
				Outcome: flagOutcome,
				Limit:   flagLimit,
			}, outputOr("text"))
		})
	},
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize recorded calls",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(app *cli.App) error {
			return app.HistoryStats(cmd.Context(), flagProfile, outputOr("text"))
		})
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete recorded calls (all, or the -p profile's)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(app *cli.App) error {
			return app.HistoryClear(cmd.Context(), flagProfile)
		})
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete one recorded call",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid history id %q", args[0])
		}
		return withApp(cmd, func(app *cli.App) error {
			return app.HistoryDelete(cmd.Context(), id)
		})
	},
}

// Flags shared by every command
var (
	flagProfile   string
	flagOutput    string
	flagSave      string
	flagFilter    string
	flagQuery     string
	flagCopy      bool
	flagTUI       bool
	flagExtraVars []string
	flagEnvFile   string
	flagLogLevel  string
)

// Request override flags
var (
	flagName     string
	flagBaseURL  string
	flagHeaders  []string
	flagTimeout  int
	flagMaxSize  int64
	flagNoToken  bool
	flagMethod   string
	flagParams   []string
	flagData     string
	flagMockPort int
)

// Flags for token and history
var (
	flagExpiresIn time.Duration
	flagOutcome   string
	flagLimit     int
	flagCheck     bool
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagProfile, "profile", "p", "", "Profile to use")
	pf.StringVarP(&flagOutput, "output", "o", "", "Output format (json/yaml/text)")
	pf.StringVarP(&flagSave, "save", "s", "", "Save response to file")
	pf.StringVar(&flagFilter, "filter", "", "JMESPath filter applied to the payload")
	pf.StringVar(&flagQuery, "query", "", "JMESPath query or $(shell command) applied after the filter")
	pf.BoolVar(&flagCopy, "copy", false, "Copy output to the clipboard")
	pf.BoolVar(&flagTUI, "tui", false, "Show loading and notices in a terminal UI")
	pf.StringArrayVarP(&flagExtraVars, "extra-vars", "e", []string{}, "Set variable (key=value), can be repeated")
	pf.StringVar(&flagEnvFile, "env-file", "", "Load environment variables from file")
	pf.StringVar(&flagLogLevel, "log-level", "", "Log level (debug/info/warn/error)")

	for _, cmd := range []*cobra.Command{rootCmd, runCmd, batchCmd, callCmd} {
		f := cmd.Flags()
		f.StringVar(&flagBaseURL, "base-url", "", "Override the base URL")
		f.StringArrayVarP(&flagHeaders, "header", "H", []string{}, "Set header (Name: value), can be repeated")
		f.IntVar(&flagTimeout, "timeout", -1, "Timeout in milliseconds (0 disables)")
		f.Int64Var(&flagMaxSize, "max-size", -1, "Maximum response size in bytes")
		f.BoolVar(&flagNoToken, "no-token", false, "Do not append the session token")
	}
	rootCmd.Flags().StringVar(&flagName, "name", "", "Request name within the file")
	runCmd.Flags().StringVar(&flagName, "name", "", "Request name within the file")

	callCmd.Flags().StringVarP(&flagMethod, "method", "X", "GET", "HTTP method")
	callCmd.Flags().StringArrayVar(&flagParams, "param", []string{}, "Query parameter (key=value), can be repeated")
	callCmd.Flags().StringVarP(&flagData, "data", "d", "", "Request body (JSON or raw text)")

	mockCmd.Flags().IntVar(&flagMockPort, "port", 0, "Override the configured port")
	mockCmd.AddCommand(mockInitCmd)

	tokenSetCmd.Flags().DurationVar(&flagExpiresIn, "expires-in", 0, "Token lifetime, e.g. 1h")
	tokenCmd.AddCommand(tokenSetCmd, tokenShowCmd, tokenClearCmd)

	historyListCmd.Flags().StringVar(&flagOutcome, "outcome", "", "Only show success or failure")
	historyListCmd.Flags().IntVar(&flagLimit, "limit", 50, "Maximum entries to show")
	historyCmd.AddCommand(historyListCmd, historyStatsCmd, historyClearCmd, historyDeleteCmd)

	versionCmd.Flags().BoolVar(&flagCheck, "check", false, "Check GitHub for a newer release")

	rootCmd.AddCommand(runCmd, batchCmd, callCmd, mockCmd, loginCmd, tokenCmd, historyCmd, versionCmd)
}

// withApp loads configuration and session state, runs fn and releases the
// history database
func withApp(cmd *cobra.Command, fn func(*cli.App) error) error {
	if err := config.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}
	cfg, err := config.Load(config.ConfigFile)
	if err != nil {
		return err
	}

	level := cfg.LogLevel
	if flagLogLevel != "" {
		level = flagLogLevel
	}
	log := logger.New(os.Stderr, level, true)

	mgr := session.NewManager()
	if err := mgr.Load(); err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	app := cli.NewApp(cfg, mgr, log)
	if err := app.OpenHistory(config.DatabasePath); err != nil {
		log.Warn().Err(err).Msg("history disabled")
	}
	defer app.Close()

	return fn(app)
}

func runOptions(app *cli.App, filePath string) (cli.RunOptions, error) {
	opts, err := callOptions(app)
	if err != nil {
		return cli.RunOptions{}, err
	}
	return cli.RunOptions{CallOptions: opts, FilePath: filePath, Name: flagName}, nil
}

// callOptions collects the shared flags. The tui setting in the config file
// applies when --tui is not given.
func callOptions(app *cli.App) (cli.CallOptions, error) {
	headers, err := parsePairs(flagHeaders, ":")
	if err != nil {
		return cli.CallOptions{}, fmt.Errorf("invalid --header: %w", err)
	}

	overrides := types.RequestOverrides{BaseURL: flagBaseURL, Headers: headers}
	if flagTimeout >= 0 {
		overrides.TimeoutMs = &flagTimeout
	}
	if flagMaxSize >= 0 {
		overrides.MaxContentLength = &flagMaxSize
	}
	if flagNoToken {
		needToken := false
		overrides.NeedToken = &needToken
	}

	return cli.CallOptions{
		Profile:   flagProfile,
		ExtraVars: flagExtraVars,
		EnvFile:   flagEnvFile,
		Output:    flagOutput,
		Filter:    flagFilter,
		Query:     flagQuery,
		SavePath:  flagSave,
		Copy:      flagCopy,
		TUI:       flagTUI || app.Config.TUI,
		Overrides: overrides,
	}, nil
}

func outputOr(fallback string) string {
	if flagOutput != "" {
		return flagOutput
	}
	return fallback
}

// parsePairs splits "key<sep>value" entries
func parsePairs(entries []string, sep string) (map[string]string, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(entries))
	for _, entry := range entries {
		key, value, ok := strings.Cut(entry, sep)
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("%q is not in key%svalue form", entry, sep)
		}
		out[key] = strings.TrimSpace(value)
	}
	return out, nil
}
