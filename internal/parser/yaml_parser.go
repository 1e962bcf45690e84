package parser

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/studiowebux/reqgate/internal/types"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// ParseYAMLFile parses a YAML, JSON or JSONC file containing requests
func ParseYAMLFile(filePath string) ([]types.NamedRequest, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".json", ".jsonc":
		return parseJSON(data)
	default:
		return parseYAML(data)
	}
}

// parseJSON parses JSON format. Comments and trailing commas are allowed.
func parseJSON(data []byte) ([]types.NamedRequest, error) {
	data = jsonc.ToJSON(data)

	// Try to unmarshal as array first
	var requests []types.NamedRequest
	if err := json.Unmarshal(data, &requests); err == nil {
		return requests, nil
	}

	var request types.NamedRequest
	if err := json.Unmarshal(data, &request); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	return []types.NamedRequest{request}, nil
}

// parseYAML parses YAML format
func parseYAML(data []byte) ([]types.NamedRequest, error) {
	var requests []types.NamedRequest
	if err := yaml.Unmarshal(data, &requests); err == nil {
		// Validate that we actually got an array
		if len(requests) > 0 || strings.TrimSpace(string(data)) == "[]" {
			return requests, nil
		}
	}

	var request types.NamedRequest
	if err := yaml.Unmarshal(data, &request); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return []types.NamedRequest{request}, nil
}

// DetectFormat detects whether a file is .http format, YAML or JSON
func DetectFormat(filePath string) (string, error) {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".yaml", ".yml":
		return "yaml", nil
	case ".json", ".jsonc":
		return "json", nil
	case ".http":
		data, err := os.ReadFile(filePath)
		if err != nil {
			return "", err
		}

		// structured content in a .http file
		content := strings.TrimSpace(string(data))
		if strings.HasPrefix(content, "{") || strings.HasPrefix(content, "[") {
			return "json", nil
		}
		if strings.HasPrefix(content, "---") {
			return "yaml", nil
		}
		return "http", nil
	default:
		return "", fmt.Errorf("unsupported file extension: %s", filepath.Ext(filePath))
	}
}

// Parse is the main entry point for parsing any supported file format.
// Every request must have a URL; unnamed requests are named after their
// position.
func Parse(filePath string) ([]types.NamedRequest, error) {
	format, err := DetectFormat(filePath)
	if err != nil {
		return nil, err
	}

	var requests []types.NamedRequest
	switch format {
	case "yaml":
		requests, err = ParseYAMLFile(filePath)
	case "json":
		data, readErr := os.ReadFile(filePath)
		if readErr != nil {
			return nil, fmt.Errorf("failed to read file: %w", readErr)
		}
		requests, err = parseJSON(data)
	case "http":
		requests, err = ParseHTTPFile(filePath)
	}
	if err != nil {
		return nil, err
	}

	if len(requests) == 0 {
		return nil, fmt.Errorf("no requests found in %s", filePath)
	}
	for i := range requests {
		if requests[i].URL == "" {
			return nil, fmt.Errorf("request %d in %s has no url", i+1, filePath)
		}
		if requests[i].Name == "" {
			requests[i].Name = fmt.Sprintf("request-%d", i+1)
		}
	}
	return requests, nil
}

// Find returns the request with the given name. An empty name selects the
// first request.
func Find(requests []types.NamedRequest, name string) (types.NamedRequest, error) {
	if len(requests) == 0 {
		return types.NamedRequest{}, fmt.Errorf("no requests")
	}
	if name == "" {
		return requests[0], nil
	}
	for _, r := range requests {
		if r.Name == name {
			return r, nil
		}
	}
	return types.NamedRequest{}, fmt.Errorf("request not found: %s", name)
}
