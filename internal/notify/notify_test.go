package notify

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestConsole_WritesOneLinePerNotification(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)

	c.NotifySuccess("Data loaded successfully")
	c.NotifyError("Failed to load data-500：Internal Server Error")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], "Data loaded successfully") {
		t.Errorf("success line missing text: %q", lines[0])
	}
	if !strings.Contains(lines[1], "-500：Internal Server Error") {
		t.Errorf("error line missing text: %q", lines[1])
	}
}

func TestLatest_KeepsOnlyMostRecent(t *testing.T) {
	var l Latest

	if _, ok := l.Current(); ok {
		t.Fatal("expected no message initially")
	}

	l.NotifySuccess("first")
	l.NotifyError("second")

	msg, ok := l.Current()
	if !ok {
		t.Fatal("expected a message")
	}
	if msg.Text != "second" || msg.Level != LevelError {
		t.Errorf("unexpected current message: %+v", msg)
	}
	if l.Count() != 2 {
		t.Errorf("expected count 2, got %d", l.Count())
	}

	l.Dismiss()
	if _, ok := l.Current(); ok {
		t.Error("expected no message after dismiss")
	}
}

func TestLatest_Expire(t *testing.T) {
	var l Latest
	first := Message{Level: LevelSuccess, Text: "first", At: time.Now()}
	second := Message{Level: LevelError, Text: "second", At: first.At.Add(time.Millisecond)}

	l.Show(first)
	l.Show(second)

	if l.Expire(first.At) {
		t.Error("expired a message that was already replaced")
	}
	if msg, ok := l.Current(); !ok || msg.Text != "second" {
		t.Fatalf("Current() = %+v, %v", msg, ok)
	}
	if !l.Expire(second.At) {
		t.Error("expected the current message to expire")
	}
	if _, ok := l.Current(); ok {
		t.Error("expected no message after expiry")
	}
}
