package refdata

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andresuchdata/po-tool/internal/retry"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
}

func TestTableGetBeforeLoad(t *testing.T) {
	tbl := NewTable("prices", func(context.Context) (map[string]float64, error) {
		return map[string]float64{"A": 1}, nil
	}, Options{})

	if _, err := tbl.Get(); !errors.Is(err, ErrCacheEmpty) {
		t.Fatalf("err = %v, want ErrCacheEmpty", err)
	}
	if st := tbl.Status(); st.State != StatePending || st.UpdatedAt != nil {
		t.Fatalf("status = %+v", st)
	}
}

func TestTableStaleness(t *testing.T) {
	clock := newClock()
	tbl := NewTable("prices", func(context.Context) (map[string]float64, error) {
		return map[string]float64{"A": 1}, nil
	}, Options{Now: clock.Now})

	if err := tbl.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	clock.Advance(25 * time.Hour)
	if _, err := tbl.Get(); err != nil {
		t.Fatalf("25h old snapshot should still be served: %v", err)
	}

	clock.Advance(13 * time.Minute)
	if _, err := tbl.Get(); !errors.Is(err, ErrCacheStale) {
		t.Fatalf("err = %v, want ErrCacheStale", err)
	}
}

func TestTableRefreshRetries(t *testing.T) {
	var calls int32
	tbl := NewTable("brands", func(context.Context) (map[string]string, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return nil, errors.New("quota exceeded")
		}
		return map[string]string{"Acme": "ACM"}, nil
	}, Options{Retry: retry.Fixed(5, 0)})

	if err := tbl.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	got, err := tbl.Get()
	if err != nil || got["Acme"] != "ACM" {
		t.Fatalf("get = %v, %v", got, err)
	}
}

func TestTableBacksOffExponentially(t *testing.T) {
	var delays []time.Duration
	prev := retry.Sleep
	retry.Sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	defer func() { retry.Sleep = prev }()

	tbl := NewTable("types", func(context.Context) (SizeSet, error) {
		return nil, errors.New("sheet unavailable")
	}, Options{})
	if err := tbl.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh error")
	}

	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("delays = %v, want %v", delays, want)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("delay %d = %v, want %v", i, delays[i], want[i])
		}
	}
}

func TestServiceRetryPolicy(t *testing.T) {
	svc := NewService(Sources{}, nil, nil, ServiceConfig{Retries: 3, MaxRetryDelay: 30 * time.Second})
	want := retry.Policy{Attempts: 3, Base: time.Second, Max: 30 * time.Second}
	if got := svc.BrandCodes.policy; got != want {
		t.Errorf("policy = %+v, want %+v", got, want)
	}
}

func TestTableFailedRefreshKeepsSnapshot(t *testing.T) {
	fail := false
	tbl := NewTable("sizes", func(context.Context) (SizeSet, error) {
		if fail {
			return nil, errors.New("sheet unavailable")
		}
		return NewSizeSet("S", "M"), nil
	}, Options{Retry: retry.Fixed(2, 0)})

	if err := tbl.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	fail = true
	if err := tbl.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh error")
	}

	sizes, err := tbl.Get()
	if err != nil || !sizes.Has("M") {
		t.Fatalf("previous snapshot lost: %v, %v", sizes, err)
	}
	st := tbl.Status()
	if st.State != StateFailed || st.LastError == "" {
		t.Fatalf("status = %+v", st)
	}
}

func TestTableSnapshotIsReplacedWhole(t *testing.T) {
	version := 0
	tbl := NewTable("types", func(context.Context) (map[string]ItemType, error) {
		version++
		if version == 1 {
			return map[string]ItemType{"Tops": {Gender: "Women"}}, nil
		}
		return map[string]ItemType{"Pants": {Gender: "Men"}}, nil
	}, Options{})

	ctx := context.Background()
	if err := tbl.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	before, _ := tbl.Get()
	if err := tbl.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	after, _ := tbl.Get()

	if _, ok := before["Pants"]; ok {
		t.Fatal("reader saw an update to a snapshot it already held")
	}
	if _, ok := after["Tops"]; ok {
		t.Fatal("new snapshot carries entries from the old one")
	}
}

type memorySnapshots struct {
	payload   []byte
	updatedAt time.Time
}

func (m *memorySnapshots) Load(_ context.Context, _ string) ([]byte, time.Time, bool, error) {
	if m.payload == nil {
		return nil, time.Time{}, false, nil
	}
	return m.payload, m.updatedAt, true, nil
}

func (m *memorySnapshots) Save(_ context.Context, _ string, payload []byte, updatedAt time.Time) error {
	m.payload = payload
	m.updatedAt = updatedAt
	return nil
}

func (m *memorySnapshots) Clear(context.Context) (int, error) {
	m.payload = nil
	return 1, nil
}

func TestTableRestoreKeepsTimestamp(t *testing.T) {
	clock := newClock()
	store := &memorySnapshots{}
	load := func(context.Context) (SizeSet, error) { return NewSizeSet("XL"), nil }

	first := NewTable("sizes", load, Options{Snapshots: store, Now: clock.Now})
	if err := first.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	clock.Advance(2 * time.Hour)
	second := NewTable("sizes", load, Options{Snapshots: store, Now: clock.Now})
	if err := second.Restore(context.Background()); err != nil {
		t.Fatalf("restore: %v", err)
	}
	sizes, err := second.Get()
	if err != nil || !sizes.Has("XL") {
		t.Fatalf("get = %v, %v", sizes, err)
	}
	if !second.LastUpdated().Equal(first.LastUpdated()) {
		t.Fatalf("restored at %v, want %v", second.LastUpdated(), first.LastUpdated())
	}

	clock.Advance(24 * time.Hour)
	if _, err := second.Get(); !errors.Is(err, ErrCacheStale) {
		t.Fatalf("restored snapshot should age out, err = %v", err)
	}
}
