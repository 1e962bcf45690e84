package tui

import (
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/studiowebux/reqgate/internal/events"
	"github.com/studiowebux/reqgate/internal/notify"
)

// Sender delivers messages to a running program. *tea.Program implements it.
type Sender interface {
	Send(msg tea.Msg)
}

// Subscriber is the part of events.Bus the bridge needs
type Subscriber interface {
	Subscribe(h events.Handler) (unsubscribe func())
}

// Bridge connects the gateway to the program: loading signals from the bus
// drive the spinner, and it doubles as the gateway's notifier
type Bridge struct {
	sender      Sender
	tracker     *events.Tracker
	unsubscribe func()
	once        sync.Once
}

// NewBridge subscribes to bus and forwards state changes to sender
func NewBridge(bus Subscriber, sender Sender) *Bridge {
	b := &Bridge{sender: sender}
	b.tracker = events.NewTracker(func(active bool, text string) {
		sender.Send(loadingMsg{active: active, text: text})
	})
	b.unsubscribe = bus.Subscribe(b.tracker.Handle)
	return b
}

func (b *Bridge) NotifySuccess(text string) {
	b.sender.Send(noticeMsg{msg: notify.Message{Level: notify.LevelSuccess, Text: text, At: time.Now()}})
}

func (b *Bridge) NotifyError(text string) {
	b.sender.Send(noticeMsg{msg: notify.Message{Level: notify.LevelError, Text: text, At: time.Now()}})
}

// Result reports one settled call
func (b *Bridge) Result(r Result) {
	b.sender.Send(resultMsg{result: r})
}

// Pending returns the number of calls still loading
func (b *Bridge) Pending() int {
	return b.tracker.Pending()
}

// Close stops listening to the bus
func (b *Bridge) Close() {
	b.once.Do(b.unsubscribe)
}

// Run shows the model while work runs in the background. work receives the
// bridge to use as notifier and result sink; the program exits once every
// expected result has been reported or the user quits.
func Run(bus Subscriber, expected int, work func(b *Bridge), opts ...tea.ProgramOption) (*Model, error) {
	m := New(expected)
	p := tea.NewProgram(m, opts...)
	b := NewBridge(bus, p)
	defer b.Close()

	go work(b)

	final, err := p.Run()
	if err != nil {
		return m, err
	}
	return final.(*Model), nil
}
