package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/studiowebux/reqgate/internal/config"
	"github.com/studiowebux/reqgate/internal/filter"
	"gopkg.in/yaml.v3"
)

// render applies filter and query to the payload and formats it
func (a *App) render(payload json.RawMessage, filterExpr, queryExpr, format string) (string, error) {
	data := []byte(payload)
	if filterExpr != "" || queryExpr != "" {
		filtered, err := filter.Apply(data, filterExpr, queryExpr)
		if err != nil {
			return "", err
		}
		data = filtered
	}
	return formatOutput(data, format)
}

// formatOutput formats a JSON payload. Payloads that are not JSON, such as
// shell query output, are returned as text.
func formatOutput(payload []byte, format string) (string, error) {
	if len(payload) == 0 {
		payload = []byte("null")
	}
	if !json.Valid(payload) {
		return strings.TrimRight(string(payload), "\n") + "\n", nil
	}

	switch format {
	case "json", "":
		var buf bytes.Buffer
		if err := json.Indent(&buf, payload, "", "  "); err != nil {
			return "", fmt.Errorf("failed to format output: %w", err)
		}
		buf.WriteByte('\n')
		return buf.String(), nil

	case "yaml":
		var v any
		if err := json.Unmarshal(payload, &v); err != nil {
			return "", fmt.Errorf("failed to format output: %w", err)
		}
		out, err := yaml.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("failed to format output: %w", err)
		}
		return string(out), nil

	case "text":
		var s string
		if json.Unmarshal(payload, &s) == nil {
			return s + "\n", nil
		}
		var buf bytes.Buffer
		if err := json.Indent(&buf, payload, "", "  "); err != nil {
			return "", fmt.Errorf("failed to format output: %w", err)
		}
		buf.WriteByte('\n')
		return buf.String(), nil

	default:
		return "", fmt.Errorf("unsupported output format: %s (use json, yaml or text)", format)
	}
}

// formatBatch formats batch results as a list
func formatBatch(results []BatchResult, format string) (string, error) {
	switch format {
	case "text":
		var sb strings.Builder
		for _, r := range results {
			if !r.OK {
				fmt.Fprintf(&sb, "✗ %s: %s\n", r.Name, r.Error)
				continue
			}
			body, err := formatOutput(r.Data, "text")
			if err != nil {
				return "", err
			}
			fmt.Fprintf(&sb, "✓ %s\n%s", r.Name, body)
		}
		return sb.String(), nil

	case "json", "yaml", "":
		data, err := json.Marshal(results)
		if err != nil {
			return "", fmt.Errorf("failed to format output: %w", err)
		}
		return formatOutput(data, format)

	default:
		return "", fmt.Errorf("unsupported output format: %s (use json, yaml or text)", format)
	}
}

// emit writes output to the save path or stdout, and to the clipboard
// when asked
func (a *App) emit(output string, opts CallOptions) error {
	if opts.SavePath != "" {
		if err := os.WriteFile(opts.SavePath, []byte(output), config.FilePermissions); err != nil {
			return fmt.Errorf("failed to save response: %w", err)
		}
		fmt.Fprintf(a.ErrOut, "Response saved to %s\n", opts.SavePath)
	} else {
		fmt.Fprint(a.Out, output)
	}

	if opts.Copy {
		if err := clipboard.WriteAll(strings.TrimRight(output, "\n")); err != nil {
			a.Log.Warn().Err(err).Msg("failed to copy to clipboard")
		}
	}
	return nil
}

// teaOptions draws the TUI on ErrOut so stdout stays pipeable
func (a *App) teaOptions() []tea.ProgramOption {
	return []tea.ProgramOption{tea.WithOutput(a.ErrOut), tea.WithInput(a.In)}
}
