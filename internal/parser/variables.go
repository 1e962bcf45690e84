package parser

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/studiowebux/reqgate/internal/types"
)

var (
	// Variable placeholder pattern: {{varName}}
	varPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

	// Shell command pattern: $(command)
	shellPattern = regexp.MustCompile(`\$\(([^)]+)\)`)
)

// VariableResolver handles variable resolution for requests
type VariableResolver struct {
	// Variables are resolved in order: cliVars (highest) -> envVars -> session vars -> profile vars (lowest)
	profileVars map[string]string
	sessionVars map[string]string
	cliVars     map[string]string // CLI vars from -e flag (highest priority)
	envVars     map[string]string // Environment variables (accessed via {{env.VAR_NAME}})
	unresolved  []string          // Track unresolved variable names
	shellErrors []string          // Track shell command errors
}

// NewVariableResolver creates a new variable resolver
// cliVars and envVars can be nil if not using them
func NewVariableResolver(profileVars map[string]string, sessionVars map[string]string, cliVars map[string]string, envVars map[string]string) *VariableResolver {
	if profileVars == nil {
		profileVars = make(map[string]string)
	}
	if sessionVars == nil {
		sessionVars = make(map[string]string)
	}
	if cliVars == nil {
		cliVars = make(map[string]string)
	}
	if envVars == nil {
		envVars = make(map[string]string)
	}

	return &VariableResolver{
		profileVars: profileVars,
		sessionVars: sessionVars,
		cliVars:     cliVars,
		envVars:     envVars,
		unresolved:  []string{},
		shellErrors: []string{},
	}
}

// GetUnresolvedVariables returns a list of variable names that couldn't be resolved
func (vr *VariableResolver) GetUnresolvedVariables() []string {
	// Return unique values
	seen := make(map[string]bool)
	unique := []string{}
	for _, v := range vr.unresolved {
		if !seen[v] {
			seen[v] = true
			unique = append(unique, v)
		}
	}
	return unique
}

// GetShellErrors returns a list of shell command errors that occurred during resolution
func (vr *VariableResolver) GetShellErrors() []string {
	return vr.shellErrors
}

// ExtractVariableNames extracts all unique variable names from a string
// Returns variable names without the {{ }} brackets
func ExtractVariableNames(input string) []string {
	matches := varPattern.FindAllStringSubmatch(input, -1)
	seen := make(map[string]bool)
	var names []string
	for _, match := range matches {
		if len(match) > 1 {
			name := strings.TrimSpace(match[1])
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names
}

// ExtractRequestVariables extracts all unique variable names from a request
// Includes variables from URL, params, headers and body
func ExtractRequestVariables(req types.NamedRequest) []string {
	seen := make(map[string]bool)
	var names []string

	addNames := func(vars []string) {
		for _, name := range vars {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}

	addNames(ExtractVariableNames(req.BaseURL))
	addNames(ExtractVariableNames(req.URL))
	for _, v := range req.Params {
		addNames(ExtractVariableNames(v))
	}
	for _, v := range req.Headers {
		addNames(ExtractVariableNames(v))
	}
	walkStrings(req.Data, func(s string) {
		addNames(ExtractVariableNames(s))
	})

	return names
}

// LoadEnvFile loads environment variables from a .env file
func LoadEnvFile(path string) (map[string]string, error) {
	envVars := make(map[string]string)

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open env file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse key=value
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue // Skip malformed lines
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		envVars[key] = value
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading env file: %w", err)
	}

	return envVars, nil
}

// LoadSystemEnv loads all system environment variables
func LoadSystemEnv() map[string]string {
	envVars := make(map[string]string)
	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 {
			envVars[parts[0]] = parts[1]
		}
	}
	return envVars
}

// ResolveRequest resolves all variables in a request: base URL, URL,
// params, headers, basic auth and every string inside the body
func (vr *VariableResolver) ResolveRequest(req types.NamedRequest) (types.NamedRequest, error) {
	resolved := req
	var err error

	if resolved.BaseURL, err = vr.Resolve(req.BaseURL); err != nil {
		return req, fmt.Errorf("failed to resolve base URL: %w", err)
	}
	if resolved.URL, err = vr.Resolve(req.URL); err != nil {
		return req, fmt.Errorf("failed to resolve URL: %w", err)
	}

	if req.Params != nil {
		resolved.Params = make(map[string]string, len(req.Params))
		for key, value := range req.Params {
			if resolved.Params[key], err = vr.Resolve(value); err != nil {
				return req, fmt.Errorf("failed to resolve param %s: %w", key, err)
			}
		}
	}

	if req.Headers != nil {
		resolved.Headers = make(map[string]string, len(req.Headers))
		for key, value := range req.Headers {
			if resolved.Headers[key], err = vr.Resolve(value); err != nil {
				return req, fmt.Errorf("failed to resolve header %s: %w", key, err)
			}
		}
	}

	if req.Auth != nil {
		auth := *req.Auth
		if auth.Username, err = vr.Resolve(auth.Username); err != nil {
			return req, fmt.Errorf("failed to resolve auth username: %w", err)
		}
		if auth.Password, err = vr.Resolve(auth.Password); err != nil {
			return req, fmt.Errorf("failed to resolve auth password: %w", err)
		}
		resolved.Auth = &auth
	}

	if resolved.Data, err = vr.resolveValue(req.Data); err != nil {
		return req, fmt.Errorf("failed to resolve body: %w", err)
	}

	return resolved, nil
}

// resolveValue walks decoded JSON/YAML data and resolves every string.
// Maps and slices are copied.
func (vr *VariableResolver) resolveValue(v any) (any, error) {
	switch val := v.(type) {
	case string:
		return vr.Resolve(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			r, err := vr.resolveValue(item)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			r, err := vr.resolveValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return v, nil
	}
}

func walkStrings(v any, fn func(string)) {
	switch val := v.(type) {
	case string:
		fn(val)
	case map[string]any:
		for _, item := range val {
			walkStrings(item, fn)
		}
	case []any:
		for _, item := range val {
			walkStrings(item, fn)
		}
	}
}

// Resolve resolves variables and shell commands in a string
func (vr *VariableResolver) Resolve(input string) (string, error) {
	// First pass: resolve shell commands
	result, err := vr.resolveShellCommands(input)
	if err != nil {
		return "", err
	}

	// Second pass: resolve variables
	result = vr.resolveVariables(result)

	// Third pass: resolve any shell commands that were in variables
	result, err = vr.resolveShellCommands(result)
	if err != nil {
		return "", err
	}

	return result, nil
}

// resolveVariables resolves {{varName}} placeholders
func (vr *VariableResolver) resolveVariables(input string) string {
	return varPattern.ReplaceAllStringFunc(input, func(match string) string {
		// Extract variable name (remove {{ and }})
		varName := strings.TrimSpace(match[2 : len(match)-2])

		// Check for env.VAR_NAME syntax
		if strings.HasPrefix(varName, "env.") {
			envKey := varName[4:] // Remove "env." prefix
			if value, ok := vr.envVars[envKey]; ok {
				return value
			}
			// Track unresolved env variable
			vr.unresolved = append(vr.unresolved, varName)
			return match
		}

		// Look up in CLI vars first (highest priority - from -e flag)
		if value, ok := vr.cliVars[varName]; ok {
			return value
		}

		// Then look up in session vars
		if value, ok := vr.sessionVars[varName]; ok {
			return value
		}

		// Then look up in profile vars (lowest priority)
		if value, ok := vr.profileVars[varName]; ok {
			return value
		}

		// Track unresolved variable
		vr.unresolved = append(vr.unresolved, varName)
		return match
	})
}

// resolveShellCommands executes shell commands in $(command) syntax
func (vr *VariableResolver) resolveShellCommands(input string) (string, error) {
	var lastErr error

	result := shellPattern.ReplaceAllStringFunc(input, func(match string) string {
		// Extract command (remove $( and ))
		command := strings.TrimSpace(match[2 : len(match)-1])

		// Execute with 5-second timeout
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		// Use sh -c to execute the command
		cmd := exec.CommandContext(ctx, "sh", "-c", command)

		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		err := cmd.Run()
		if err != nil {
			// Track error for display
			errMsg := fmt.Sprintf("$(%s): %v", command, err)
			if stderr.Len() > 0 {
				errMsg = fmt.Sprintf("$(%s): %s", command, strings.TrimSpace(stderr.String()))
			}
			vr.shellErrors = append(vr.shellErrors, errMsg)
			lastErr = fmt.Errorf("shell command failed: %w\nstderr: %s", err, stderr.String())
			return match
		}

		// Return trimmed output
		return strings.TrimSpace(stdout.String())
	})

	return result, lastErr
}

// AddSessionVariable adds or updates a session variable
func (vr *VariableResolver) AddSessionVariable(name, value string) {
	vr.sessionVars[name] = value
}

// GetSessionVariables returns all session variables
func (vr *VariableResolver) GetSessionVariables() map[string]string {
	return vr.sessionVars
}
