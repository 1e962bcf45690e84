package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"github.com/studiowebux/reqgate/internal/types"
)

const (
	// FilePermissions is the default permission mode for regular files (read/write for owner, read for others)
	FilePermissions = 0644
	// DirPermissions is the default permission mode for directories (rwxr-xr-x)
	DirPermissions = 0755

	// EnvPrefix prefixes environment overrides, e.g. REQGATE_LOGLEVEL
	EnvPrefix = "REQGATE"

	localSessionFile  = ".session.json"
	localProfilesFile = ".profiles.jsonc"
)

var (
	// ConfigDir is the global configuration directory (~/.reqgate)
	ConfigDir string

	// RequestsDir is the default requests directory
	RequestsDir string

	// DatabasePath is the SQLite database file for call history
	DatabasePath string

	// SessionFile is the session state file
	SessionFile string

	// ProfilesFile is the profiles configuration file (JSON with comments)
	ProfilesFile string

	// ConfigFile is the global settings file
	ConfigFile string
)

const defaultConfig = `# reqgate settings
logLevel: warn
history: true
tui: false
output: json
concurrency: 4
defaults:
  timeout: 2000
  maxContentLength: 2000
`

const defaultProfiles = `// Profiles: request defaults and variables per environment
[
  {
    "name": "Default",
    "workdir": "requests",
    "variables": {},
    "defaults": {}
  }
]
`

// Config holds global settings loaded from config.yaml and the environment
type Config struct {
	LogLevel    string                 `mapstructure:"logLevel"`
	History     bool                   `mapstructure:"history"`
	TUI         bool                   `mapstructure:"tui"`
	Output      string                 `mapstructure:"output"`
	Concurrency int                    `mapstructure:"concurrency"`
	Defaults    types.RequestOverrides `mapstructure:"defaults"`
	OAuth       types.OAuthConfig      `mapstructure:"oauth"`
}

// Initialize sets up the configuration directories and files
// It creates ~/.reqgate/ if it doesn't exist
func Initialize() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	return InitializeAt(filepath.Join(homeDir, ".reqgate"))
}

// InitializeAt is Initialize with an explicit configuration directory
func InitializeAt(dir string) error {
	ConfigDir = dir
	RequestsDir = filepath.Join(ConfigDir, "requests")
	DatabasePath = filepath.Join(ConfigDir, "reqgate.db")
	SessionFile = filepath.Join(ConfigDir, localSessionFile)
	ProfilesFile = filepath.Join(ConfigDir, localProfilesFile)
	ConfigFile = filepath.Join(ConfigDir, "config.yaml")

	for _, d := range []string{ConfigDir, RequestsDir} {
		if err := os.MkdirAll(d, DirPermissions); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", d, err)
		}
	}

	defaults := []struct {
		path    string
		content string
	}{
		{SessionFile, `{"variables":{},"historyEnabled":true}`},
		{ProfilesFile, defaultProfiles},
		{ConfigFile, defaultConfig},
	}
	for _, f := range defaults {
		if _, err := os.Stat(f.path); os.IsNotExist(err) {
			if err := os.WriteFile(f.path, []byte(f.content), FilePermissions); err != nil {
				return fmt.Errorf("failed to create %s: %w", filepath.Base(f.path), err)
			}
		}
	}

	return nil
}

// Load reads settings from path, falling back to built-in defaults when the
// file does not exist. REQGATE_* environment variables override both.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("logLevel", "warn")
	v.SetDefault("history", true)
	v.SetDefault("tui", false)
	v.SetDefault("output", "json")
	v.SetDefault("concurrency", 4)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}

	return &cfg, nil
}

// GetWorkingDirectory returns the working directory for a profile
// Falls back to global requests directory if profile workdir is not set
func GetWorkingDirectory(profileWorkdir string) (string, error) {
	if profileWorkdir == "" {
		return RequestsDir, nil
	}

	// Expand tilde to home directory
	if strings.HasPrefix(profileWorkdir, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		profileWorkdir = filepath.Join(homeDir, profileWorkdir[2:])
	}

	if filepath.IsAbs(profileWorkdir) {
		return profileWorkdir, nil
	}

	// Otherwise, it's relative to config directory
	workdir := filepath.Join(ConfigDir, profileWorkdir)
	if err := os.MkdirAll(workdir, DirPermissions); err != nil {
		return "", fmt.Errorf("failed to create working directory %s: %w", workdir, err)
	}

	return workdir, nil
}

// LocalConfigExists checks if there's a local .session.json or .profiles.jsonc
func LocalConfigExists() bool {
	_, sessionErr := os.Stat(localSessionFile)
	_, profilesErr := os.Stat(localProfilesFile)
	return sessionErr == nil || profilesErr == nil
}

// GetSessionFilePath returns the session file path (local or global)
func GetSessionFilePath() string {
	if _, err := os.Stat(localSessionFile); err == nil {
		return localSessionFile
	}
	return SessionFile
}

// GetProfilesFilePath returns the profiles file path (local or global)
func GetProfilesFilePath() string {
	if _, err := os.Stat(localProfilesFile); err == nil {
		return localProfilesFile
	}
	return ProfilesFile
}
