package mock

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// LoadConfig loads a mock configuration from a file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s (use .yaml, .yml, .json or .jsonc)", ext)
	}

	// Validate config
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// validateConfig validates the mock configuration
func validateConfig(config *Config) error {
	if len(config.Routes) == 0 && config.Auth == nil {
		return fmt.Errorf("no routes defined")
	}

	for i, route := range config.Routes {
		if route.Method == "" {
			return fmt.Errorf("route %d: method is required", i)
		}
		if route.Path == "" {
			return fmt.Errorf("route %d: path is required", i)
		}
		switch route.PathType {
		case "", "exact", "prefix":
		case "regex":
			if _, err := regexp.Compile(route.Path); err != nil {
				return fmt.Errorf("route %d: invalid regex: %w", i, err)
			}
		default:
			return fmt.Errorf("route %d: pathType must be 'exact', 'prefix', or 'regex'", i)
		}
		if route.Auth && config.Auth == nil {
			return fmt.Errorf("route %d: auth requires an auth section", i)
		}
	}

	if config.Auth != nil && config.Auth.Secret == "" {
		return fmt.Errorf("auth: secret is required")
	}

	return nil
}

// SaveConfig saves a mock configuration to a file
func SaveConfig(config *Config, path string) error {
	var data []byte
	var err error

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(config)
		if err != nil {
			return fmt.Errorf("failed to marshal YAML: %w", err)
		}
	case ".json", ".jsonc":
		data, err = json.MarshalIndent(config, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file format: %s (use .yaml, .yml, or .json)", ext)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SampleConfig returns a starter configuration with a login route, a public
// route, a protected route and a business failure
func SampleConfig() *Config {
	return &Config{
		Port:    8080,
		Host:    "localhost",
		Logging: true,
		Auth: &AuthConfig{
			Secret:   "change-me",
			Username: "admin",
			Password: "admin",
		},
		Routes: []Route{
			{
				Name:   "list items",
				Method: "GET",
				Path:   "/api/items",
				Data:   []any{map[string]any{"id": 1, "name": "widget"}},
			},
			{
				Name:     "item detail",
				Method:   "GET",
				Path:     "^/api/items/[0-9]+$",
				PathType: "regex",
				Auth:     true,
				Data:     map[string]any{"id": 1, "name": "widget"},
			},
			{
				Name:   "create item",
				Method: "POST",
				Path:   "/api/items",
				Code:   "1001",
				Msg:    "name is required",
				Delay:  300,
			},
		},
	}
}
