package tui

import (
	"encoding/json"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/studiowebux/reqgate/internal/notify"
)

// noticeTimeout is how long a notification stays on screen
const noticeTimeout = 3 * time.Second

// Result is the outcome of one call shown in the result list
type Result struct {
	Name     string
	Payload  json.RawMessage
	Err      error
	Duration time.Duration
}

type loadingMsg struct {
	active bool
	text   string
}

type noticeMsg struct {
	msg notify.Message
}

type clearNoticeMsg struct {
	at time.Time
}

type resultMsg struct {
	result Result
}

// Model represents the TUI state: one loading indicator shared by every
// in-flight call, the latest notification and the settled results
type Model struct {
	spinner     spinner.Model
	loading     bool
	loadingText string
	notice      notify.Latest
	results     []Result
	expected    int
	done        bool
	quitting    bool
	width       int
	height      int
}

// New creates a model that finishes once expected results have arrived
func New(expected int) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styleSpinner

	return &Model{
		spinner:  s,
		expected: expected,
	}
}

// Init starts the spinner
func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles incoming messages
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		case "esc":
			m.notice.Dismiss()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case loadingMsg:
		m.loading = msg.active
		m.loadingText = msg.text

	case noticeMsg:
		// one notification at a time, the newest wins
		notice := msg.msg
		m.notice.Show(notice)
		return m, tea.Tick(noticeTimeout, func(time.Time) tea.Msg {
			return clearNoticeMsg{at: notice.At}
		})

	case clearNoticeMsg:
		m.notice.Expire(msg.at)

	case resultMsg:
		m.results = append(m.results, msg.result)
		if m.expected > 0 && len(m.results) >= m.expected {
			m.done = true
			return m, tea.Quit
		}
	}

	return m, nil
}

// Results returns the settled calls in arrival order
func (m *Model) Results() []Result {
	return append([]Result(nil), m.results...)
}

// Loading reports whether the indicator is shown
func (m *Model) Loading() bool {
	return m.loading
}

// Notice returns the displayed notification, if any
func (m *Model) Notice() (notify.Message, bool) {
	return m.notice.Current()
}

// Notices returns how many notifications were shown in total
func (m *Model) Notices() int {
	return m.notice.Count()
}

// Interrupted reports whether the user quit before every result arrived
func (m *Model) Interrupted() bool {
	return m.quitting && !m.done
}
