package notify

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Level of a notification
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Message is one displayed notification
type Message struct {
	Level Level
	Text  string
	At    time.Time
}

var (
	colorGreen = lipgloss.AdaptiveColor{Light: "#006400", Dark: "#00ff00"}
	colorRed   = lipgloss.AdaptiveColor{Light: "#8b0000", Dark: "#ff0000"}

	styleSuccess = lipgloss.NewStyle().Foreground(colorGreen)
	styleError   = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
)

// Render formats a message the way the console sink prints it
func Render(msg Message) string {
	switch msg.Level {
	case LevelSuccess:
		return styleSuccess.Render("✓ " + msg.Text)
	case LevelError:
		return styleError.Render("✗ " + msg.Text)
	default:
		return msg.Text
	}
}

// Console prints notifications as styled lines
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsole creates a console sink writing to out
func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

func (c *Console) NotifySuccess(text string) {
	c.write(Message{Level: LevelSuccess, Text: text, At: time.Now()})
}

func (c *Console) NotifyError(text string) {
	c.write(Message{Level: LevelError, Text: text, At: time.Now()})
}

func (c *Console) write(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, Render(msg))
}

// Latest keeps only the most recent notification, replacing whatever was
// displayed before. The TUI holds its notice in one.
type Latest struct {
	mu      sync.RWMutex
	current *Message
	count   int
}

func (l *Latest) NotifySuccess(text string) {
	l.Show(Message{Level: LevelSuccess, Text: text, At: time.Now()})
}

func (l *Latest) NotifyError(text string) {
	l.Show(Message{Level: LevelError, Text: text, At: time.Now()})
}

// Show replaces the displayed message
func (l *Latest) Show(msg Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.current = &msg
	l.count++
}

// Current returns the displayed message, if any
func (l *Latest) Current() (Message, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.current == nil {
		return Message{}, false
	}
	return *l.current, true
}

// Count returns how many notifications were received in total
func (l *Latest) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count
}

// Dismiss clears the displayed message
func (l *Latest) Dismiss() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.current = nil
}

// Expire clears the displayed message only if it is the one shown at at.
// A newer message survives the timer of the one it replaced.
func (l *Latest) Expire(at time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current == nil || !l.current.At.Equal(at) {
		return false
	}
	l.current = nil
	return true
}

// Sink is the notification surface used by the gateway
type Sink interface {
	NotifySuccess(text string)
	NotifyError(text string)
}

type discard struct{}

func (discard) NotifySuccess(string) {}
func (discard) NotifyError(string)   {}

// Discard drops every notification
var Discard Sink = discard{}
