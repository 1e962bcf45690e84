package events

import "sync"

// Tracker folds start/stop signals from concurrent calls into a single
// indicator state. The indicator stays active until every start has been
// matched by a stop.
type Tracker struct {
	// deliver is held from state change to callback return so callbacks
	// observe changes in the order they were made
	deliver  sync.Mutex
	mu       sync.Mutex
	active   int
	text     string
	onChange func(active bool, text string)
}

// NewTracker creates a tracker. onChange, if not nil, is called whenever the
// visible state changes. Calls are serialized; onChange must not call Handle.
func NewTracker(onChange func(active bool, text string)) *Tracker {
	return &Tracker{onChange: onChange}
}

// Handle consumes one event; pass it to Bus.Subscribe
func (t *Tracker) Handle(evt Event) {
	t.deliver.Lock()
	defer t.deliver.Unlock()

	t.mu.Lock()
	wasActive := t.active > 0
	prevText := t.text

	switch evt.Name {
	case StartLoading:
		t.active++
		t.text = evt.Payload
	case StopLoading:
		// stop without start happens when a caller sets hideLoading
		// but not showLoading
		if t.active > 0 {
			t.active--
		}
		if t.active == 0 {
			t.text = ""
		}
	}

	active, text := t.active > 0, t.text
	onChange := t.onChange
	t.mu.Unlock()

	if onChange != nil && (active != wasActive || text != prevText) {
		onChange(active, text)
	}
}

// Active reports whether at least one call is still loading
func (t *Tracker) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active > 0
}

// Pending returns the number of unmatched starts
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Text returns the loading text of the most recent start
func (t *Tracker) Text() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.text
}
