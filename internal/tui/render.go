package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/studiowebux/reqgate/internal/executor"
	"github.com/studiowebux/reqgate/internal/notify"
)

var (
	colorGreen = lipgloss.AdaptiveColor{Light: "#006400", Dark: "#00ff00"}
	colorRed   = lipgloss.AdaptiveColor{Light: "#8b0000", Dark: "#ff0000"}
	colorGray  = lipgloss.AdaptiveColor{Light: "#555555", Dark: "#888888"}
	colorCyan  = lipgloss.AdaptiveColor{Light: "#008b8b", Dark: "#00ffff"}
)

var (
	styleTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan)

	styleSpinner = lipgloss.NewStyle().
			Foreground(colorCyan)

	styleSuccess = lipgloss.NewStyle().
			Foreground(colorGreen)

	styleError = lipgloss.NewStyle().
			Foreground(colorRed)

	styleSubtle = lipgloss.NewStyle().
			Foreground(colorGray)

	styleNotice = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)
)

// View renders the indicator, the notification and the results
func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(styleTitle.Render("reqgate"))
	if m.expected > 0 {
		b.WriteString(styleSubtle.Render(fmt.Sprintf("  %d/%d", len(m.results), m.expected)))
	}
	if n := m.notice.Count(); n > 1 {
		b.WriteString(styleSubtle.Render(fmt.Sprintf("  %d notices", n)))
	}
	b.WriteString("\n\n")

	if m.loading {
		b.WriteString(m.spinner.View() + " " + m.loadingText + "\n\n")
	}

	if notice, ok := m.notice.Current(); ok {
		border := colorGreen
		if notice.Level == notify.LevelError {
			border = colorRed
		}
		b.WriteString(styleNotice.BorderForeground(border).Render(notify.Render(notice)))
		b.WriteString("\n\n")
	}

	for _, r := range m.results {
		b.WriteString(renderResult(r))
		b.WriteString("\n")
	}

	if !m.done {
		b.WriteString("\n" + styleSubtle.Render("q: quit  esc: dismiss"))
	}
	b.WriteString("\n")
	return b.String()
}

func renderResult(r Result) string {
	duration := executor.FormatDuration(r.Duration.Milliseconds())
	if r.Err != nil {
		return styleError.Render("✗ "+r.Name) + " " + r.Err.Error() + styleSubtle.Render(" ("+duration+")")
	}
	return styleSuccess.Render("✓ "+r.Name) + " " +
		styleSubtle.Render(executor.FormatSize(len(r.Payload))+", "+duration)
}
