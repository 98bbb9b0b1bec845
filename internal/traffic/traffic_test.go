package traffic

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

// TestTracker_Counts verifies each outcome kind is counted in the right totals.
func TestTracker_Counts(t *testing.T) {
	tr := NewTracker(clockwork.NewFakeClock(), 0)
	tr.RecordSuccess()
	tr.RecordSuccess()
	tr.RecordError()
	tr.RecordDenied()

	if got := tr.RequestCount(time.Minute); got != 4 {
		t.Errorf("RequestCount() = %d, want 4", got)
	}
	if got := tr.DenialCount(time.Minute); got != 1 {
		t.Errorf("DenialCount() = %d, want 1", got)
	}
	errs, total := tr.ErrorRate(time.Minute)
	if errs != 1 || total != 3 {
		t.Errorf("ErrorRate() = %d/%d, want 1/3 (denials excluded)", errs, total)
	}
}

// TestTracker_Window verifies outcomes age out of the window.
func TestTracker_Window(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tr := NewTracker(clock, 0)
	tr.RecordError()
	clock.Advance(45 * time.Second)
	tr.RecordSuccess()
	clock.Advance(30 * time.Second)

	errs, total := tr.ErrorRate(time.Minute)
	if errs != 0 || total != 1 {
		t.Errorf("ErrorRate(1m) = %d/%d, want 0/1", errs, total)
	}
	if got := tr.RequestCount(2 * time.Minute); got != 2 {
		t.Errorf("RequestCount(2m) = %d, want 2", got)
	}
}

// TestTracker_PrunesBeyondMaxAge verifies old outcomes are dropped on the next record.
func TestTracker_PrunesBeyondMaxAge(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tr := NewTracker(clock, time.Minute)
	tr.RecordSuccess()
	tr.RecordDenied()
	clock.Advance(2 * time.Minute)
	tr.RecordError()

	if got := tr.RequestCount(time.Hour); got != 1 {
		t.Errorf("RequestCount(1h) = %d, want 1 after pruning", got)
	}
	if len(tr.successTimes) != 0 || len(tr.deniedTimes) != 0 {
		t.Errorf("retained %d successes, %d denials; want 0", len(tr.successTimes), len(tr.deniedTimes))
	}
}

// TestTracker_Reset verifies Reset clears every window.
func TestTracker_Reset(t *testing.T) {
	tr := NewTracker(nil, 0)
	tr.RecordSuccess()
	tr.RecordError()
	tr.RecordDenied()
	tr.Reset()
	if got := tr.RequestCount(time.Minute); got != 0 {
		t.Errorf("RequestCount() after Reset = %d, want 0", got)
	}
}

// TestTracker_Concurrent verifies concurrent recording is safe and nothing is lost.
func TestTracker_Concurrent(t *testing.T) {
	tr := NewTracker(clockwork.NewFakeClock(), 0)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(3)
		go func() { defer wg.Done(); tr.RecordSuccess() }()
		go func() { defer wg.Done(); tr.RecordError() }()
		go func() { defer wg.Done(); tr.RecordDenied() }()
	}
	wg.Wait()
	if got := tr.RequestCount(time.Minute); got != 150 {
		t.Errorf("RequestCount() = %d, want 150", got)
	}
}
