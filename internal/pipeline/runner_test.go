package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/andresuchdata/po-tool/internal/cache"
	"github.com/andresuchdata/po-tool/internal/domain"
	"github.com/andresuchdata/po-tool/internal/notify"
	"github.com/andresuchdata/po-tool/internal/repository/memory"
)

type stubStage struct {
	name    domain.Stage
	status  domain.Status
	err     error
	panics  bool
	started chan struct{}
	block   chan struct{}
	calls   int
}

func (s *stubStage) Name() domain.Stage { return s.name }

func (s *stubStage) Run(ctx context.Context, run *Run) (domain.Status, error) {
	s.calls++
	if s.started != nil {
		close(s.started)
	}
	if s.block != nil {
		<-s.block
	}
	if s.panics {
		panic("boom")
	}
	run.Log(ctx, "working")
	return s.status, s.err
}

func newStore(status domain.Status) *memory.Store {
	store := memory.NewStore()
	ws := "sheet-1"
	store.Put(&domain.PurchaseOrder{ID: 1, Name: "PO", Status: status, WorksheetID: &ws})
	return store
}

func lastLog(t *testing.T, store *memory.Store) domain.LogEntry {
	t.Helper()
	po, err := store.Get(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(po.Logs) == 0 {
		t.Fatal("no log entries")
	}
	return po.Logs[len(po.Logs)-1]
}

func TestRunnerRecordsStatusAndLogs(t *testing.T) {
	store := newStore(domain.StatusWorksheetCreated)
	stage := &stubStage{name: domain.StageBreakdown, status: domain.StatusBreakdownCreated}
	runner := NewRunner(store, nil, nil, stage)

	if _, err := runner.Trigger(context.Background(), 1, domain.StageBreakdown); err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}
	runner.Wait()

	po, _ := store.Get(context.Background(), 1)
	if po.Status != domain.StatusBreakdownCreated {
		t.Errorf("status = %q, want %q", po.Status, domain.StatusBreakdownCreated)
	}
	if len(po.Logs) != 2 || po.Logs[0].Message != "Starting breakdown." || po.Logs[1].Message != "working" {
		t.Errorf("logs = %+v", po.Logs)
	}
	if po.LastStage != domain.StageBreakdown {
		t.Errorf("last stage = %q", po.LastStage)
	}
}

func TestRunnerRejectsInvalidTransition(t *testing.T) {
	store := newStore(domain.StatusCreatingWorksheet)
	stage := &stubStage{name: domain.StageNetSales, status: domain.StatusNetSalesCalculated}
	runner := NewRunner(store, nil, nil, stage)

	_, err := runner.Trigger(context.Background(), 1, domain.StageNetSales)
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("Trigger() error = %v, want ErrInvalidTransition", err)
	}
	if stage.calls != 0 {
		t.Error("stage ran despite invalid transition")
	}
}

func TestRunnerRejectsConcurrentTrigger(t *testing.T) {
	store := newStore(domain.StatusWorksheetCreated)
	stage := &stubStage{
		name:    domain.StageBreakdown,
		status:  domain.StatusBreakdownCreated,
		started: make(chan struct{}),
		block:   make(chan struct{}),
	}
	runner := NewRunner(store, cache.NewMemoryLocker(), nil, stage)

	if _, err := runner.Trigger(context.Background(), 1, domain.StageBreakdown); err != nil {
		t.Fatal(err)
	}
	<-stage.started

	// Creating Breakdown is not a valid source, so the transition check fails first.
	if _, err := runner.Trigger(context.Background(), 1, domain.StageBreakdown); err == nil {
		t.Fatal("second Trigger() succeeded while the first was running")
	}
	close(stage.block)
	runner.Wait()
}

func TestRunnerLockRejectsSecondRun(t *testing.T) {
	store := newStore(domain.StatusWorksheetCreated)
	locker := cache.NewMemoryLocker()
	release, err := locker.Acquire(context.Background(), "po-tool:po:1:stage")
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	runner := NewRunner(store, locker, nil, &stubStage{name: domain.StageBreakdown})
	if _, err := runner.Trigger(context.Background(), 1, domain.StageBreakdown); !errors.Is(err, ErrStageInProgress) {
		t.Fatalf("Trigger() error = %v, want ErrStageInProgress", err)
	}
}

func TestRunnerConvertsFailures(t *testing.T) {
	tests := []struct {
		name    string
		stage   *stubStage
		message string
	}{
		{
			name:    "error",
			stage:   &stubStage{name: domain.StageBreakdown, err: errors.New("sheet unavailable")},
			message: "sheet unavailable",
		},
		{
			name:    "panic",
			stage:   &stubStage{name: domain.StageBreakdown, panics: true},
			message: "unexpected failure: boom",
		},
		{
			name:    "status outside transition table",
			stage:   &stubStage{name: domain.StageBreakdown, status: domain.StatusPOCreated},
			message: "unexpected status",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newStore(domain.StatusWorksheetCreated)
			rec := &notify.Recorder{}
			runner := NewRunner(store, nil, rec, tt.stage)

			status, err := runner.RunSync(context.Background(), 1, domain.StageBreakdown)
			if err != nil {
				t.Fatalf("RunSync() error = %v", err)
			}
			if status != domain.StatusInternalError {
				t.Errorf("status = %q, want Internal Error", status)
			}
			entry := lastLog(t, store)
			if entry.Category != domain.LogCategoryError || !strings.Contains(entry.Message, tt.message) {
				t.Errorf("last log = %+v, want error containing %q", entry, tt.message)
			}
			msgs := rec.Messages()
			if len(msgs) != 1 || msgs[0].Subject != "PO #1 Breakdown Error" {
				t.Errorf("notifications = %+v", msgs)
			}
		})
	}
}

func TestRunnerRetryAfterInternalError(t *testing.T) {
	store := newStore(domain.StatusWorksheetCreated)
	failing := &stubStage{name: domain.StageBreakdown, err: errors.New("boom")}
	runner := NewRunner(store, nil, nil, failing)
	if _, err := runner.RunSync(context.Background(), 1, domain.StageBreakdown); err != nil {
		t.Fatal(err)
	}

	failing.err = nil
	failing.status = domain.StatusBreakdownCreated
	status, err := runner.RunSync(context.Background(), 1, domain.StageBreakdown)
	if err != nil {
		t.Fatalf("retry error = %v", err)
	}
	if status != domain.StatusBreakdownCreated {
		t.Errorf("status = %q", status)
	}

	other := NewRunner(store, nil, nil, &stubStage{name: domain.StageNetSales})
	store.Put(&domain.PurchaseOrder{ID: 2, Status: domain.StatusInternalError, LastStage: domain.StageBreakdown})
	if _, err := other.RunSync(context.Background(), 2, domain.StageNetSales); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("net sales after breakdown failure: error = %v, want ErrInvalidTransition", err)
	}
}

func TestRunnerChainsStages(t *testing.T) {
	store := newStore(domain.StatusNetSalesCalculated)
	skus := &stubStage{name: domain.StageSKUs, status: domain.StatusSKUsCreated}
	finalize := &stubStage{name: domain.StageFinalize, status: domain.StatusPOCreated}
	runner := NewRunner(store, nil, nil, skus, finalize).
		Chain(domain.StageSKUs, domain.StatusSKUsCreated, domain.StageFinalize)

	if _, err := runner.Trigger(context.Background(), 1, domain.StageSKUs); err != nil {
		t.Fatal(err)
	}
	runner.Wait()

	po, _ := store.Get(context.Background(), 1)
	if po.Status != domain.StatusPOCreated {
		t.Errorf("status = %q, want %q", po.Status, domain.StatusPOCreated)
	}
	if skus.calls != 1 || finalize.calls != 1 {
		t.Errorf("calls = %d/%d", skus.calls, finalize.calls)
	}
}
