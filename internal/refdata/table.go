package refdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andresuchdata/po-tool/internal/cache"
	"github.com/andresuchdata/po-tool/internal/retry"
	"github.com/rs/zerolog/log"
)

// DefaultMaxAge is how old a snapshot may get before readers refuse it (1.05 days).
const DefaultMaxAge = 25*time.Hour + 12*time.Minute

var (
	ErrCacheEmpty = errors.New("cache has not been loaded")
	ErrCacheStale = errors.New("cache is stale")
)

// State is the refresh state shown to operators.
type State string

const (
	StatePending  State = "Pending Initial Update"
	StateUpdating State = "Updating..."
	StateUpdated  State = "Updated"
	StateFailed   State = "Error while updating"
)

// Status describes a table for the admin endpoints.
type Status struct {
	Name      string     `json:"name"`
	State     State      `json:"status"`
	UpdatedAt *time.Time `json:"update_time,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

// Reader is the read side of a Table used by the pipeline stages.
type Reader[T any] interface {
	Get() (T, error)
}

// Loader produces a complete new value for a table.
type Loader[T any] func(ctx context.Context) (T, error)

// Options tune a Table. Zero values pick the defaults.
type Options struct {
	MaxAge    time.Duration
	Retry     retry.Policy
	Snapshots cache.SnapshotStore
	Now       func() time.Time
}

type snapshot[T any] struct {
	value     T
	updatedAt time.Time
}

// Table holds one reference data set. Readers always see a whole snapshot;
// a refresh replaces the snapshot pointer in one step.
type Table[T any] struct {
	name      string
	load      Loader[T]
	maxAge    time.Duration
	policy    retry.Policy
	snapshots cache.SnapshotStore
	now       func() time.Time

	current   atomic.Pointer[snapshot[T]]
	refreshMu sync.Mutex

	stateMu sync.RWMutex
	state   State
	lastErr string
}

func NewTable[T any](name string, load Loader[T], opts Options) *Table[T] {
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultMaxAge
	}
	if opts.Retry.Attempts <= 0 {
		opts.Retry = retry.Exponential(5)
	}
	if opts.Snapshots == nil {
		opts.Snapshots = cache.NewNoopSnapshotStore()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Table[T]{
		name:      name,
		load:      load,
		maxAge:    opts.MaxAge,
		policy:    opts.Retry,
		snapshots: opts.Snapshots,
		now:       opts.Now,
		state:     StatePending,
	}
}

func (t *Table[T]) Name() string { return t.name }

// Get returns the current snapshot. It fails when nothing was loaded yet or the
// snapshot is older than the table's max age.
func (t *Table[T]) Get() (T, error) {
	var zero T
	snap := t.current.Load()
	if snap == nil {
		return zero, fmt.Errorf("%s: %w", t.name, ErrCacheEmpty)
	}
	if age := t.now().Sub(snap.updatedAt); age > t.maxAge {
		return zero, fmt.Errorf("%s: %w (last updated %s ago)", t.name, ErrCacheStale, age.Round(time.Minute))
	}
	return snap.value, nil
}

// LastUpdated returns when the current snapshot was produced, or the zero time.
func (t *Table[T]) LastUpdated() time.Time {
	if snap := t.current.Load(); snap != nil {
		return snap.updatedAt
	}
	return time.Time{}
}

// Set replaces the snapshot.
func (t *Table[T]) Set(value T, updatedAt time.Time) {
	t.current.Store(&snapshot[T]{value: value, updatedAt: updatedAt})
	t.setState(StateUpdated, "")
}

// Refresh loads a new value, retrying per the table policy, and publishes it.
// Concurrent calls are serialized.
func (t *Table[T]) Refresh(ctx context.Context) error {
	t.refreshMu.Lock()
	defer t.refreshMu.Unlock()

	t.setState(StateUpdating, "")
	logger := log.With().Str("cache", t.name).Logger()

	var value T
	err := retry.Do(ctx, t.policy, func(ctx context.Context, attempt int) error {
		v, err := t.load(ctx)
		if err != nil {
			logger.Warn().Err(err).Int("attempt", attempt).Msg("cache refresh attempt failed")
			return err
		}
		value = v
		return nil
	})
	if err != nil {
		t.setState(StateFailed, err.Error())
		return fmt.Errorf("refresh %s: %w", t.name, err)
	}

	now := t.now()
	t.Set(value, now)
	logger.Info().Msg("cache updated")

	if payload, err := json.Marshal(value); err != nil {
		logger.Warn().Err(err).Msg("could not encode cache snapshot")
	} else if err := t.snapshots.Save(ctx, t.name, payload, now); err != nil {
		logger.Warn().Err(err).Msg("could not persist cache snapshot")
	}
	return nil
}

// Restore loads a previously persisted snapshot, if any. A restored snapshot
// keeps its original timestamp so staleness still applies.
func (t *Table[T]) Restore(ctx context.Context) error {
	payload, updatedAt, ok, err := t.snapshots.Load(ctx, t.name)
	if err != nil {
		return fmt.Errorf("restore %s: %w", t.name, err)
	}
	if !ok {
		return nil
	}
	var value T
	if err := json.Unmarshal(payload, &value); err != nil {
		return fmt.Errorf("restore %s: %w", t.name, err)
	}
	t.Set(value, updatedAt)
	log.Info().Str("cache", t.name).Time("updated_at", updatedAt).Msg("cache restored from snapshot")
	return nil
}

func (t *Table[T]) Status() Status {
	t.stateMu.RLock()
	defer t.stateMu.RUnlock()
	st := Status{Name: t.name, State: t.state, LastError: t.lastErr}
	if snap := t.current.Load(); snap != nil {
		at := snap.updatedAt
		st.UpdatedAt = &at
	}
	return st
}

func (t *Table[T]) setState(s State, lastErr string) {
	t.stateMu.Lock()
	t.state = s
	t.lastErr = lastErr
	t.stateMu.Unlock()
}
