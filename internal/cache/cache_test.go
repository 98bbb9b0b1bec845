package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kjstillabower/temperature-predictor/internal/models"
)

var testDate = models.NewDate(2024, time.June, 1)

func testObservation(date models.Date, tmax float64) models.Observation {
	return models.Observation{Date: date, TMin: 20, TMax: tmax, Precipitation: 0, WindSpeed: 5, Source: models.SourceArchive}
}

// countingProducer returns obs and counts invocations.
func countingProducer(calls *atomic.Int32, obs models.Observation, err error) Producer {
	return func(ctx context.Context) (models.Observation, error) {
		calls.Add(1)
		if err != nil {
			return models.Observation{}, err
		}
		return obs, nil
	}
}

// failingStore fails every operation.
type failingStore struct{}

func (failingStore) Get(context.Context, string) (Entry, bool, error) {
	return Entry{}, false, errors.New("store down")
}
func (failingStore) Set(context.Context, string, Entry, time.Duration) error {
	return errors.New("store down")
}
func (failingStore) Delete(context.Context, string) error { return errors.New("store down") }

// TestResultCache_FreshWithinWindow verifies a second lookup inside the window is served from
// the cache without calling the producer.
func TestResultCache_FreshWithinWindow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := New(NewInMemoryStore(), WithClock(clock))
	ctx := context.Background()
	var calls atomic.Int32
	want := testObservation(testDate, 30)

	got, cached, err := c.GetOrFetch(ctx, testDate, countingProducer(&calls, want, nil))
	if err != nil || cached || got != want {
		t.Fatalf("first GetOrFetch() = %+v, %v, %v; want %+v, false, nil", got, cached, err, want)
	}

	clock.Advance(59 * time.Minute)
	got, cached, err = c.GetOrFetch(ctx, testDate, countingProducer(&calls, testObservation(testDate, 99), nil))
	if err != nil {
		t.Fatalf("second GetOrFetch() error = %v", err)
	}
	if !cached || got != want {
		t.Errorf("second GetOrFetch() = %+v, cached=%v; want cached %+v", got, cached, want)
	}
	if calls.Load() != 1 {
		t.Errorf("producer calls = %d, want 1", calls.Load())
	}
}

// TestResultCache_StaleAtWindow verifies an entry exactly one window old is refetched and overwritten.
func TestResultCache_StaleAtWindow(t *testing.T) {
	tests := []struct {
		name    string
		advance time.Duration
		refetch bool
	}{
		{"just inside", time.Hour - time.Nanosecond, false},
		{"exactly window", time.Hour, true},
		{"past window", 2 * time.Hour, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := clockwork.NewFakeClock()
			c := New(nil, WithClock(clock))
			ctx := context.Background()
			var calls atomic.Int32

			if _, _, err := c.GetOrFetch(ctx, testDate, countingProducer(&calls, testObservation(testDate, 30), nil)); err != nil {
				t.Fatalf("GetOrFetch() error = %v", err)
			}
			clock.Advance(tt.advance)
			fresh := testObservation(testDate, 31)
			got, cached, err := c.GetOrFetch(ctx, testDate, countingProducer(&calls, fresh, nil))
			if err != nil {
				t.Fatalf("GetOrFetch() error = %v", err)
			}

			wantCalls := int32(1)
			if tt.refetch {
				wantCalls = 2
				if cached || got != fresh {
					t.Errorf("GetOrFetch() = %+v, cached=%v; want refetched %+v", got, cached, fresh)
				}
				// The overwrite restarts the window.
				clock.Advance(time.Minute)
				again, cached, _ := c.GetOrFetch(ctx, testDate, countingProducer(&calls, testObservation(testDate, 50), nil))
				if !cached || again != fresh {
					t.Errorf("after overwrite GetOrFetch() = %+v, cached=%v; want %+v", again, cached, fresh)
				}
			}
			if calls.Load() != wantCalls {
				t.Errorf("producer calls = %d, want %d", calls.Load(), wantCalls)
			}
		})
	}
}

// TestResultCache_CustomWindow verifies WithWindow changes the freshness boundary.
func TestResultCache_CustomWindow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := New(nil, WithClock(clock), WithWindow(10*time.Minute))
	if c.Window() != 10*time.Minute {
		t.Fatalf("Window() = %v, want 10m", c.Window())
	}
	ctx := context.Background()
	var calls atomic.Int32
	p := countingProducer(&calls, testObservation(testDate, 30), nil)

	_, _, _ = c.GetOrFetch(ctx, testDate, p)
	clock.Advance(10 * time.Minute)
	_, _, _ = c.GetOrFetch(ctx, testDate, p)
	if calls.Load() != 2 {
		t.Errorf("producer calls = %d, want 2", calls.Load())
	}
}

// TestResultCache_ProducerErrorNotCached verifies failures are returned unchanged and leave no entry.
func TestResultCache_ProducerErrorNotCached(t *testing.T) {
	store := NewInMemoryStore()
	c := New(store, WithClock(clockwork.NewFakeClock()))
	ctx := context.Background()
	var calls atomic.Int32
	wantErr := errors.New("upstream exploded")

	_, _, err := c.GetOrFetch(ctx, testDate, countingProducer(&calls, models.Observation{}, wantErr))
	if err != wantErr {
		t.Fatalf("GetOrFetch() error = %v, want the producer error unchanged", err)
	}
	if store.Len() != 0 {
		t.Errorf("store has %d entries after failure, want 0", store.Len())
	}

	want := testObservation(testDate, 30)
	got, cached, err := c.GetOrFetch(ctx, testDate, countingProducer(&calls, want, nil))
	if err != nil || cached || got != want {
		t.Errorf("retry GetOrFetch() = %+v, %v, %v; want fresh fetch", got, cached, err)
	}
	if calls.Load() != 2 {
		t.Errorf("producer calls = %d, want 2", calls.Load())
	}
}

// TestResultCache_StaleEntryKeptOnFailure verifies a failed refetch does not erase the stale entry.
func TestResultCache_StaleEntryKeptOnFailure(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := NewInMemoryStore()
	c := New(store, WithClock(clock))
	ctx := context.Background()
	var calls atomic.Int32
	first := testObservation(testDate, 30)

	_, _, _ = c.GetOrFetch(ctx, testDate, countingProducer(&calls, first, nil))
	clock.Advance(2 * time.Hour)
	if _, _, err := c.GetOrFetch(ctx, testDate, countingProducer(&calls, models.Observation{}, errors.New("down"))); err == nil {
		t.Fatal("GetOrFetch() expected error")
	}
	entry, ok, _ := store.Get(ctx, testDate.String())
	if !ok || entry.Observation != first {
		t.Errorf("stored entry = %+v, %v; want stale entry kept", entry, ok)
	}
}

// TestResultCache_KeysIndependent verifies different dates are cached separately.
func TestResultCache_KeysIndependent(t *testing.T) {
	c := New(nil, WithClock(clockwork.NewFakeClock()))
	ctx := context.Background()
	var calls atomic.Int32
	other := testDate.AddDays(1)

	a, _, _ := c.GetOrFetch(ctx, testDate, countingProducer(&calls, testObservation(testDate, 30), nil))
	b, _, _ := c.GetOrFetch(ctx, other, countingProducer(&calls, testObservation(other, 10), nil))
	if a.TMax != 30 || b.TMax != 10 {
		t.Errorf("GetOrFetch() returned %v and %v, want 30 and 10", a.TMax, b.TMax)
	}
	if calls.Load() != 2 {
		t.Errorf("producer calls = %d, want 2", calls.Load())
	}
}

// TestResultCache_ConcurrentSameKeyProducesOnce verifies concurrent callers for a cold date
// share a single producer call.
func TestResultCache_ConcurrentSameKeyProducesOnce(t *testing.T) {
	c := New(nil, WithClock(clockwork.NewFakeClock()))
	ctx := context.Background()
	var calls atomic.Int32
	release := make(chan struct{})
	want := testObservation(testDate, 30)
	producer := func(ctx context.Context) (models.Observation, error) {
		calls.Add(1)
		<-release
		return want, nil
	}

	const n = 20
	var wg sync.WaitGroup
	results := make([]models.Observation, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _, errs[i] = c.GetOrFetch(ctx, testDate, producer)
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("producer calls = %d, want 1", calls.Load())
	}
	for i := range results {
		if errs[i] != nil || results[i] != want {
			t.Errorf("caller %d got %+v, %v", i, results[i], errs[i])
		}
	}
	if c.locks.size() != 0 {
		t.Errorf("key locks retained = %d, want 0", c.locks.size())
	}
}

// TestResultCache_DifferentKeysDoNotBlock verifies a slow producer for one date does not
// delay lookups for another.
func TestResultCache_DifferentKeysDoNotBlock(t *testing.T) {
	c := New(nil, WithClock(clockwork.NewFakeClock()))
	ctx := context.Background()
	block := make(chan struct{})
	defer close(block)
	started := make(chan struct{})

	go func() {
		_, _, _ = c.GetOrFetch(ctx, testDate, func(ctx context.Context) (models.Observation, error) {
			close(started)
			<-block
			return testObservation(testDate, 1), nil
		})
	}()
	<-started

	other := testDate.AddDays(1)
	done := make(chan struct{})
	go func() {
		_, _, _ = c.GetOrFetch(ctx, other, func(ctx context.Context) (models.Observation, error) {
			return testObservation(other, 2), nil
		})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lookup for a different date blocked")
	}
}

// TestResultCache_WaitHonorsContext verifies a waiter gives up when its context ends.
func TestResultCache_WaitHonorsContext(t *testing.T) {
	c := New(nil, WithClock(clockwork.NewFakeClock()))
	block := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_, _, _ = c.GetOrFetch(context.Background(), testDate, func(ctx context.Context) (models.Observation, error) {
			close(started)
			<-block
			return testObservation(testDate, 1), nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, _, err := c.GetOrFetch(ctx, testDate, func(ctx context.Context) (models.Observation, error) {
		t.Error("producer should not run for a canceled waiter")
		return models.Observation{}, nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("GetOrFetch() error = %v, want deadline exceeded", err)
	}
	close(block)
}

// TestResultCache_StoreFailuresDegradeToFetch verifies store errors count as misses and the
// fetched value is still returned.
func TestResultCache_StoreFailuresDegradeToFetch(t *testing.T) {
	c := New(failingStore{}, WithClock(clockwork.NewFakeClock()))
	var calls atomic.Int32
	want := testObservation(testDate, 30)

	for i := 0; i < 2; i++ {
		got, cached, err := c.GetOrFetch(context.Background(), testDate, countingProducer(&calls, want, nil))
		if err != nil || cached || got != want {
			t.Errorf("GetOrFetch() = %+v, %v, %v; want uncached fetch", got, cached, err)
		}
	}
	if calls.Load() != 2 {
		t.Errorf("producer calls = %d, want 2", calls.Load())
	}
}

// TestResultCache_Invalidate verifies Invalidate forces the next lookup to fetch.
func TestResultCache_Invalidate(t *testing.T) {
	c := New(nil, WithClock(clockwork.NewFakeClock()))
	ctx := context.Background()
	var calls atomic.Int32
	p := countingProducer(&calls, testObservation(testDate, 30), nil)

	_, _, _ = c.GetOrFetch(ctx, testDate, p)
	if err := c.Invalidate(ctx, testDate); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	_, cached, _ := c.GetOrFetch(ctx, testDate, p)
	if cached || calls.Load() != 2 {
		t.Errorf("after Invalidate cached=%v calls=%d; want false and 2", cached, calls.Load())
	}
}
