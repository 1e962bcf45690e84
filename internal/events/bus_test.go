package events

import (
	"sync"
	"testing"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus()

	var got []Event
	unsubscribe := bus.Subscribe(func(e Event) {
		got = append(got, e)
	})

	bus.Publish(StartLoading, "Loading data")
	bus.Publish(StopLoading, "")

	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Name != StartLoading || got[0].Payload != "Loading data" {
		t.Errorf("unexpected first event: %+v", got[0])
	}
	if got[1].Name != StopLoading {
		t.Errorf("unexpected second event: %+v", got[1])
	}

	unsubscribe()
	unsubscribe()
	bus.Publish(StartLoading, "ignored")

	if len(got) != 2 {
		t.Errorf("handler called after unsubscribe")
	}
	if bus.Len() != 0 {
		t.Errorf("expected no subscribers, got %d", bus.Len())
	}
}

func TestBus_ConcurrentPublish(t *testing.T) {
	bus := NewBus()

	var mu sync.Mutex
	count := 0
	bus.Subscribe(func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(StartLoading, "x")
		}()
	}
	wg.Wait()

	if count != 50 {
		t.Errorf("expected 50 deliveries, got %d", count)
	}
}

func TestTracker_InterleavedCalls(t *testing.T) {
	var changes []bool
	tracker := NewTracker(func(active bool, text string) {
		changes = append(changes, active)
	})

	tracker.Handle(Event{Name: StartLoading, Payload: "first"})
	tracker.Handle(Event{Name: StartLoading, Payload: "second"})

	if tracker.Pending() != 2 {
		t.Fatalf("expected 2 pending, got %d", tracker.Pending())
	}
	if tracker.Text() != "second" {
		t.Errorf("expected latest text, got %q", tracker.Text())
	}

	tracker.Handle(Event{Name: StopLoading})
	if !tracker.Active() {
		t.Fatal("indicator should stay active while a call is pending")
	}

	tracker.Handle(Event{Name: StopLoading})
	if tracker.Active() {
		t.Fatal("indicator should be inactive after all stops")
	}

	// unmatched stop is ignored
	tracker.Handle(Event{Name: StopLoading})
	if tracker.Pending() != 0 {
		t.Errorf("pending went negative: %d", tracker.Pending())
	}

	if len(changes) == 0 || changes[len(changes)-1] {
		t.Errorf("expected last change to be inactive, got %v", changes)
	}
}

func TestTracker_DeliversInOrder(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})

	var (
		mu        sync.Mutex
		delivered []bool
		first     = true
	)
	tracker := NewTracker(func(active bool, text string) {
		mu.Lock()
		hold := first
		first = false
		mu.Unlock()
		// the first callback is held back before it records its state
		if hold {
			close(entered)
			<-release
		}
		mu.Lock()
		delivered = append(delivered, active)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		tracker.Handle(Event{Name: StartLoading, Payload: "loading"})
	}()
	<-entered
	go func() {
		defer wg.Done()
		tracker.Handle(Event{Name: StopLoading})
	}()
	close(release)
	wg.Wait()

	if len(delivered) != 2 || !delivered[0] || delivered[1] {
		t.Fatalf("delivered = %v, want [true false]", delivered)
	}
	if tracker.Active() != delivered[len(delivered)-1] {
		t.Errorf("last delivered state %v does not match Active() %v", delivered[1], tracker.Active())
	}
}
