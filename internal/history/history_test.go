package history

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/studiowebux/reqgate/internal/types"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(filepath.Join(t.TempDir(), "nested", "history.db"))
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func record(profile, outcome, kind string, duration int64, at time.Time) types.CallRecord {
	return types.CallRecord{
		Timestamp:   at,
		ProfileName: profile,
		RequestName: "list",
		Method:      "GET",
		URL:         "http://localhost/api?token=***",
		Status:      200,
		Outcome:     outcome,
		ErrorKind:   kind,
		Duration:    duration,
	}
}

func TestRecordAndList(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	m.Record(ctx, record("dev", types.OutcomeSuccess, "", 10, base))
	m.Record(ctx, record("dev", types.OutcomeFailure, "server", 30, base.Add(time.Second)))
	m.Record(ctx, record("prod", types.OutcomeSuccess, "", 20, base.Add(500*time.Millisecond)))

	all, err := m.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 records, got %d", len(all))
	}
	if !all[0].Timestamp.Equal(base.Add(time.Second)) || !all[1].Timestamp.Equal(base.Add(500*time.Millisecond)) {
		t.Errorf("records not newest first: %v, %v", all[0].Timestamp, all[1].Timestamp)
	}
	if all[0].CallID == "" || all[0].ID == 0 {
		t.Errorf("expected generated ids: %+v", all[0])
	}

	dev, _ := m.List(ctx, ListOptions{Profile: "dev"})
	if len(dev) != 2 {
		t.Errorf("expected 2 dev records, got %d", len(dev))
	}
	failures, _ := m.List(ctx, ListOptions{Outcome: types.OutcomeFailure})
	if len(failures) != 1 || failures[0].ErrorKind != "server" {
		t.Errorf("unexpected failures: %+v", failures)
	}
	limited, _ := m.List(ctx, ListOptions{Limit: 1})
	if len(limited) != 1 {
		t.Errorf("limit ignored: %d", len(limited))
	}
}

func TestStats(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	now := time.Now()

	m.Record(ctx, record("dev", types.OutcomeSuccess, "", 10, now))
	m.Record(ctx, record("dev", types.OutcomeFailure, "server", 30, now))
	m.Record(ctx, record("dev", types.OutcomeFailure, "network", 50, now))
	m.Record(ctx, record("prod", types.OutcomeFailure, "server", 100, now))

	stats, err := m.Stats(ctx, "dev")
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Total != 3 || stats.Successes != 1 || stats.Failures != 2 {
		t.Errorf("counts = %+v", stats)
	}
	if stats.AvgDuration != 30 || stats.MaxDuration != 50 {
		t.Errorf("durations = %v / %v", stats.AvgDuration, stats.MaxDuration)
	}
	if stats.ByKind["server"] != 1 || stats.ByKind["network"] != 1 {
		t.Errorf("by kind = %v", stats.ByKind)
	}
	if stats.LastCallTime == nil {
		t.Error("expected last call time")
	}

	all, _ := m.Stats(ctx, "")
	if all.Total != 4 || all.ByKind["server"] != 2 {
		t.Errorf("global stats = %+v", all)
	}

	empty := newTestManager(t)
	none, err := empty.Stats(ctx, "")
	if err != nil {
		t.Fatalf("Stats() on empty db error = %v", err)
	}
	if none.Total != 0 || none.LastCallTime != nil {
		t.Errorf("empty stats = %+v", none)
	}
}

func TestClearAndDelete(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	m.Record(ctx, record("dev", types.OutcomeSuccess, "", 1, time.Now()))
	m.Record(ctx, record("prod", types.OutcomeSuccess, "", 1, time.Now()))

	n, err := m.Clear(ctx, "dev")
	if err != nil || n != 1 {
		t.Fatalf("Clear() = %d, %v", n, err)
	}

	remaining, _ := m.List(ctx, ListOptions{})
	if len(remaining) != 1 || remaining[0].ProfileName != "prod" {
		t.Fatalf("unexpected remaining: %+v", remaining)
	}

	if err := m.Delete(ctx, remaining[0].ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := m.Delete(ctx, remaining[0].ID); err == nil {
		t.Error("expected not found error")
	}
}

func TestRecord_Concurrent(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.Record(ctx, record("dev", types.OutcomeSuccess, "", 1, time.Now())); err != nil {
				t.Errorf("Record() error = %v", err)
			}
		}()
	}
	wg.Wait()

	stats, _ := m.Stats(ctx, "")
	if stats.Total != 25 {
		t.Errorf("Total = %d, want 25", stats.Total)
	}
}
