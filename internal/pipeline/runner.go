package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/andresuchdata/po-tool/internal/cache"
	"github.com/andresuchdata/po-tool/internal/domain"
	"github.com/andresuchdata/po-tool/internal/notify"
	"github.com/andresuchdata/po-tool/internal/repository"
	"github.com/andresuchdata/po-tool/pkg/logger"
	"github.com/google/uuid"
)

var startMessages = map[domain.Stage]string{
	domain.StageCreateWorksheet: "Starting worksheet creation.",
	domain.StageBreakdown:       "Starting breakdown.",
	domain.StageNetSales:        "Starting net sales calculation.",
	domain.StageSKUs:            "Starting SKU and PO creation.",
	domain.StageFinalize:        "Starting PO creation.",
}

var stageTitles = map[domain.Stage]string{
	domain.StageCreateWorksheet: "Creating PO Worksheet",
	domain.StageBreakdown:       "Breakdown",
	domain.StageNetSales:        "Net Sales",
	domain.StageSKUs:            "Create SKUs and PO",
	domain.StageFinalize:        "Create PO",
}

type chainKey struct {
	stage  domain.Stage
	status domain.Status
}

// Runner starts stages for purchase orders. It enforces the transition table,
// allows one running stage per order and turns every failure into a log entry,
// an Internal Error status and an operator notification.
type Runner struct {
	orders   repository.PurchaseOrderRepository
	locker   cache.Locker
	notifier notify.Notifier
	stages   map[domain.Stage]Stage
	chains   map[chainKey]domain.Stage

	wg sync.WaitGroup
}

func NewRunner(orders repository.PurchaseOrderRepository, locker cache.Locker, notifier notify.Notifier, stages ...Stage) *Runner {
	if locker == nil {
		locker = cache.NewMemoryLocker()
	}
	if notifier == nil {
		notifier = notify.NewNoopNotifier()
	}
	r := &Runner{
		orders:   orders,
		locker:   locker,
		notifier: notifier,
		stages:   make(map[domain.Stage]Stage, len(stages)),
		chains:   make(map[chainKey]domain.Stage),
	}
	for _, s := range stages {
		r.stages[s.Name()] = s
	}
	return r
}

// Chain starts next automatically when from settles on status.
func (r *Runner) Chain(from domain.Stage, status domain.Status, next domain.Stage) *Runner {
	r.chains[chainKey{from, status}] = next
	return r
}

// Trigger starts stage for the purchase order in the background and returns
// the run id once the running status has been recorded.
func (r *Runner) Trigger(ctx context.Context, poID int64, stage domain.Stage) (string, error) {
	run, release, err := r.begin(ctx, poID, stage)
	if err != nil {
		return "", err
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		bg := context.WithoutCancel(ctx)
		status := r.execute(bg, run, release)
		if next, ok := r.chains[chainKey{stage, status}]; ok {
			if _, err := r.Trigger(bg, poID, next); err != nil {
				run.Logger.Error().Err(err).Str("next", string(next)).Msg("failed to chain stage")
			}
		}
	}()
	return run.ID, nil
}

// RunSync runs stage and any chained stages in the foreground and returns the
// final status.
func (r *Runner) RunSync(ctx context.Context, poID int64, stage domain.Stage) (domain.Status, error) {
	for {
		run, release, err := r.begin(ctx, poID, stage)
		if err != nil {
			return "", err
		}
		status := r.execute(ctx, run, release)
		next, ok := r.chains[chainKey{stage, status}]
		if !ok {
			return status, nil
		}
		stage = next
	}
}

// Wait blocks until every background run has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) begin(ctx context.Context, poID int64, stage domain.Stage) (*Run, func(), error) {
	s, ok := r.stages[stage]
	if !ok {
		return nil, nil, fmt.Errorf("%w: stage %q is not registered", domain.ErrInvalidTransition, stage)
	}

	po, err := r.orders.Get(ctx, poID)
	if err != nil {
		return nil, nil, err
	}
	if err := domain.CanStart(stage, po); err != nil {
		return nil, nil, err
	}

	release, err := r.locker.Acquire(ctx, fmt.Sprintf("po-tool:po:%d:stage", poID))
	if errors.Is(err, cache.ErrLocked) {
		return nil, nil, ErrStageInProgress
	}
	if err != nil {
		return nil, nil, err
	}

	running := domain.Transitions[s.Name()].Running
	if err := r.orders.CompareAndSetStatus(ctx, poID, po.Status, running, stage); err != nil {
		release()
		if errors.Is(err, repository.ErrStatusConflict) {
			return nil, nil, ErrStageInProgress
		}
		return nil, nil, err
	}
	po.Status = running
	po.LastStage = stage

	id := uuid.NewString()
	run := NewRun(id, stage, po, r.orders, logger.ForStage(poID, string(stage), id))
	run.Log(ctx, startMessages[stage])
	run.Logger.Info().Msg("stage started")
	return run, release, nil
}

// execute runs the stage and records its outcome. The lock is released before
// it returns.
func (r *Runner) execute(ctx context.Context, run *Run, release func()) domain.Status {
	defer release()

	status, err := r.safeRun(ctx, run)
	if err == nil && !domain.CanFinish(run.Stage, status) {
		err = fmt.Errorf("stage %s ended with unexpected status %q", run.Stage, status)
	}
	if err != nil {
		status = domain.StatusInternalError
		run.Logger.Error().Err(err).Msg("stage failed")
		run.Error(ctx, err.Error())
		subject := fmt.Sprintf("PO #%d %s Error", run.PO.ID, stageTitles[run.Stage])
		if nerr := r.notifier.Notify(ctx, subject, err.Error()); nerr != nil {
			run.Logger.Warn().Err(nerr).Msg("failed to send error notification")
		}
	}

	if err := r.orders.SetStatus(ctx, run.PO.ID, status); err != nil {
		run.Logger.Error().Err(err).Str("status", string(status)).Msg("failed to record stage status")
	}
	run.PO.Status = status
	run.Logger.Info().Str("status", string(status)).Msg("stage finished")
	return status
}

func (r *Runner) safeRun(ctx context.Context, run *Run) (status domain.Status, err error) {
	defer func() {
		if p := recover(); p != nil {
			run.Logger.Error().Bytes("stack", debug.Stack()).Msg("stage panicked")
			err = fmt.Errorf("unexpected failure: %v", p)
		}
	}()
	return r.stages[run.Stage].Run(ctx, run)
}
