package pipeline

import (
	"context"
	"errors"

	"github.com/andresuchdata/po-tool/internal/domain"
	"github.com/andresuchdata/po-tool/internal/repository"
	"github.com/rs/zerolog"
)

// ErrStageInProgress is returned when a stage is already running for the purchase order.
var ErrStageInProgress = errors.New("a stage is already running for this purchase order")

// Stage is one unit of pipeline work over a purchase order. Run returns the
// status the order settles on. Validation problems are reported through the
// returned status; a non-nil error is treated as an internal failure.
type Stage interface {
	Name() domain.Stage
	Run(ctx context.Context, run *Run) (domain.Status, error)
}

// Run is a single execution of a stage for one purchase order.
type Run struct {
	ID     string
	Stage  domain.Stage
	PO     *domain.PurchaseOrder
	Logger zerolog.Logger

	orders repository.PurchaseOrderRepository
}

// NewRun builds a run outside the runner, used by tests and one-off tools.
func NewRun(id string, stage domain.Stage, po *domain.PurchaseOrder, orders repository.PurchaseOrderRepository, logger zerolog.Logger) *Run {
	return &Run{ID: id, Stage: stage, PO: po, Logger: logger, orders: orders}
}

// Log appends an informational entry to the purchase order log.
func (r *Run) Log(ctx context.Context, message string) {
	r.Append(ctx, domain.InfoLog(message))
}

// Error appends an error entry to the purchase order log.
func (r *Run) Error(ctx context.Context, message string) {
	r.Append(ctx, domain.ErrorLog(message))
}

// Append writes entry to the purchase order log. A failed write is only
// reported to the operator log so it never aborts the stage.
func (r *Run) Append(ctx context.Context, entry domain.LogEntry) {
	ev := r.Logger.Info()
	if entry.Category == domain.LogCategoryError {
		ev = r.Logger.Warn()
	}
	ev.Str("po_log", entry.Message).Msg("purchase order log")

	if r.orders == nil {
		return
	}
	if err := r.orders.AppendLog(ctx, r.PO.ID, entry); err != nil {
		r.Logger.Error().Err(err).Msg("failed to append purchase order log")
	}
}

// Worksheet returns the backing worksheet id of the run's purchase order.
func (r *Run) Worksheet() (string, error) {
	return r.PO.Worksheet()
}
