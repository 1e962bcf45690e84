package filter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/jmespath/go-jmespath"
)

const (
	// QueryShellTimeout is the maximum time allowed for query shell command execution
	QueryShellTimeout = 30 * time.Second
)

var (
	// Shell command pattern: $(command), which may span lines
	shellPattern = regexp.MustCompile(`(?s)^\$\((.+)\)$`)
)

// Apply applies filter and query expressions to a JSON payload
// Filter narrows results (e.g., items[?status==`active`])
// Query transforms/selects fields (e.g., [].name)
// If query starts with $(...), it's executed as a shell command with the
// payload piped to stdin. Empty expressions leave the payload unchanged.
func Apply(payload []byte, filter string, query string) ([]byte, error) {
	result := payload

	if filter != "" {
		filtered, err := applyJMESPath(result, filter)
		if err != nil {
			return nil, fmt.Errorf("failed to apply filter: %w", err)
		}
		result = filtered
	}

	if query != "" {
		if IsShellCommand(query) {
			queried, err := executeShellCommand(result, shellPattern.FindStringSubmatch(query)[1])
			if err != nil {
				return nil, fmt.Errorf("failed to execute query shell command: %w", err)
			}
			result = queried
		} else {
			queried, err := applyJMESPath(result, query)
			if err != nil {
				return nil, fmt.Errorf("failed to apply query: %w", err)
			}
			result = queried
		}
	}

	return result, nil
}

// applyJMESPath applies a JMESPath expression to a JSON string
func applyJMESPath(payload []byte, expression string) ([]byte, error) {
	var data interface{}
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	// Compile the JMESPath expression
	jp, err := jmespath.Compile(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid JMESPath expression '%s': %w", expression, err)
	}

	// Search/apply the expression
	result, err := jp.Search(data)
	if err != nil {
		return nil, fmt.Errorf("JMESPath search failed: %w", err)
	}

	// Handle null result
	if result == nil {
		return []byte("null"), nil
	}

	// Convert result back to JSON
	output, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	return output, nil
}

// executeShellCommand executes a shell command with the body piped to stdin
func executeShellCommand(body []byte, command string) ([]byte, error) {
	// Execute with timeout
	ctx, cancel := context.WithTimeout(context.Background(), QueryShellTimeout)
	defer cancel()

	// Use sh -c to execute the command
	cmd := exec.CommandContext(ctx, "sh", "-c", command)

	// Pipe body to stdin
	cmd.Stdin = bytes.NewReader(body)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		errMsg := err.Error()
		if stderr.Len() > 0 {
			errMsg = strings.TrimSpace(stderr.String())
		}
		return nil, fmt.Errorf("command '%s' failed: %s", command, errMsg)
	}

	return bytes.TrimSpace(stdout.Bytes()), nil
}

// Validate checks filter and query before a request is sent, so a typo
// does not cost a round trip. Shell queries are not checked.
func Validate(filter, query string) error {
	if filter != "" {
		if _, err := jmespath.Compile(filter); err != nil {
			return fmt.Errorf("invalid filter '%s': %w", filter, err)
		}
	}
	if query != "" && !IsShellCommand(query) {
		if _, err := jmespath.Compile(query); err != nil {
			return fmt.Errorf("invalid query '%s': %w", query, err)
		}
	}
	return nil
}

// IsShellCommand checks if a query is a shell command (starts with $(...))
func IsShellCommand(query string) bool {
	return shellPattern.MatchString(query)
}
