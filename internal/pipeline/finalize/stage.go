package finalize

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/andresuchdata/po-tool/internal/domain"
	"github.com/andresuchdata/po-tool/internal/pipeline"
	"github.com/andresuchdata/po-tool/internal/repository"
	"github.com/andresuchdata/po-tool/internal/retry"
	"github.com/andresuchdata/po-tool/internal/sellercloud"
	"github.com/andresuchdata/po-tool/internal/sheets"
)

var (
	// ErrJobTimeout is returned when the catalog import job does not finish in time.
	ErrJobTimeout = errors.New("catalog import job did not finish")
	// ErrJobFailed is returned when the catalog import job fails outright.
	ErrJobFailed = errors.New("catalog import job failed")

	errJobPending = errors.New("catalog import job still running")
)

const missingSKUMessage = "SKU not found in Sellercloud"

// Catalog is the part of the catalog API the purchase order is finalized with.
type Catalog interface {
	SetJobPriority(ctx context.Context, jobID int64, priority int) error
	JobStatus(ctx context.Context, jobID int64) (sellercloud.JobStatus, error)
	ExistingProducts(ctx context.Context, skus []string) ([]string, error)
	CreatePurchaseOrder(ctx context.Context, in sellercloud.NewPurchaseOrder) (int64, error)
	AddItems(ctx context.Context, poID int64, products []sellercloud.POProduct) error
	Receive(ctx context.Context, poID int64, items []sellercloud.ReceiveItem) error
}

type Config struct {
	CompanyID   int
	VendorID    int
	WarehouseID int
	// JobPoll bounds the wait for the catalog import job.
	JobPoll retry.Policy
}

// Stage waits for the catalog import, checks every SKU exists, and creates
// or fills the purchase order in the catalog.
type Stage struct {
	sheets  sheets.Store
	orders  repository.PurchaseOrderRepository
	catalog Catalog
	cfg     Config
}

func NewStage(store sheets.Store, orders repository.PurchaseOrderRepository, catalog Catalog, cfg Config) *Stage {
	if cfg.JobPoll.Attempts == 0 {
		cfg.JobPoll = retry.Exponential(10)
	}
	return &Stage{sheets: store, orders: orders, catalog: catalog, cfg: cfg}
}

func (s *Stage) Name() domain.Stage { return domain.StageFinalize }

func (s *Stage) Run(ctx context.Context, run *pipeline.Run) (domain.Status, error) {
	worksheetID, err := run.Worksheet()
	if err != nil {
		return "", err
	}
	ref := sheets.Ref{SpreadsheetID: worksheetID, Sheet: sheets.TabWorksheet}
	ws, err := s.sheets.ReadRows(ctx, ref, []string{domain.ColProductID, domain.ColUnitCost, domain.ColQty, domain.ColErrors})
	if err != nil {
		return "", fmt.Errorf("read worksheet: %w", err)
	}

	if job := run.PO.CatalogJobID; job != nil {
		if err := s.waitForJob(ctx, run, *job); err != nil {
			return "", err
		}
	}

	lines, err := orderLines(ws.Rows)
	if err != nil {
		return "", err
	}

	run.Log(ctx, "Checking that all SKUs exist in Sellercloud.")
	if missing, err := s.missingSKUs(ctx, lines); err != nil {
		return "", err
	} else if len(missing) > 0 {
		for _, row := range ws.Rows {
			if missing[row.Get(domain.ColProductID)] {
				row.SetErrors([]string{missingSKUMessage})
			} else {
				row.SetErrors(nil)
			}
		}
		if err := s.sheets.WriteRows(ctx, ref, ws.Rows); err != nil {
			return "", fmt.Errorf("post missing skus: %w", err)
		}
		run.Error(ctx, fmt.Sprintf("%d SKUs were not found in Sellercloud. Errors posted to worksheet.", len(missing)))
		return domain.StatusSKUErrors, nil
	}

	status := domain.StatusPOCreated
	if run.PO.IsATS {
		if err := s.receive(ctx, run, lines); err != nil {
			return "", err
		}
		status = domain.StatusPOReceived
	} else if err := s.fill(ctx, run, lines); err != nil {
		return "", err
	}

	if err := s.orders.SetCatalogJobID(ctx, run.PO.ID, nil); err != nil {
		return "", fmt.Errorf("clear catalog job: %w", err)
	}
	run.PO.CatalogJobID = nil
	return status, nil
}

// waitForJob raises the job's priority and polls it until it finishes.
func (s *Stage) waitForJob(ctx context.Context, run *pipeline.Run, jobID int64) error {
	run.Log(ctx, fmt.Sprintf("Waiting for Sellercloud import job %d.", jobID))
	if err := s.catalog.SetJobPriority(ctx, jobID, sellercloud.PriorityCritical); err != nil {
		run.Logger.Warn().Err(err).Int64("job_id", jobID).Msg("could not raise job priority")
	}

	var final sellercloud.JobStatus
	err := retry.Do(ctx, s.cfg.JobPoll, func(ctx context.Context, attempt int) error {
		status, err := s.catalog.JobStatus(ctx, jobID)
		if err != nil {
			return err
		}
		run.Logger.Debug().Int64("job_id", jobID).Int("attempt", attempt).Stringer("status", status).Msg("polled import job")
		if !status.Finished() {
			return errJobPending
		}
		if status == sellercloud.JobFailed {
			return retry.Permanent(fmt.Errorf("%w: job %d", ErrJobFailed, jobID))
		}
		final = status
		return nil
	})
	switch {
	case errors.Is(err, errJobPending):
		return fmt.Errorf("%w: job %d after %d checks", ErrJobTimeout, jobID, s.cfg.JobPoll.Attempts)
	case err != nil:
		return err
	}

	if final == sellercloud.JobCompletedWithErrors {
		run.Error(ctx, fmt.Sprintf("Sellercloud import job %d completed with errors.", jobID))
	} else {
		run.Log(ctx, fmt.Sprintf("Sellercloud import job %d completed.", jobID))
	}
	return nil
}

func (s *Stage) missingSKUs(ctx context.Context, lines []line) (map[string]bool, error) {
	skus := make([]string, len(lines))
	for i, l := range lines {
		skus[i] = l.sku
	}
	found, err := s.catalog.ExistingProducts(ctx, skus)
	if err != nil {
		return nil, fmt.Errorf("check catalog products: %w", err)
	}
	exists := make(map[string]bool, len(found))
	for _, sku := range found {
		exists[sku] = true
	}
	missing := make(map[string]bool)
	for _, sku := range skus {
		if !exists[sku] {
			missing[sku] = true
		}
	}
	return missing, nil
}

// receive creates the ATS purchase order once and receives every line into stock.
func (s *Stage) receive(ctx context.Context, run *pipeline.Run, lines []line) error {
	poID, err := s.ensureOrder(ctx, run, poProducts(lines))
	if err != nil {
		return err
	}
	items := make([]sellercloud.ReceiveItem, len(lines))
	for i, l := range lines {
		items[i] = sellercloud.ReceiveItem{ID: l.sku, QtyToReceive: l.qty}
	}
	run.Log(ctx, fmt.Sprintf("Receiving %d items on Sellercloud PO %d.", len(items), poID))
	if err := s.catalog.Receive(ctx, poID, items); err != nil {
		return fmt.Errorf("receive purchase order %d: %w", poID, err)
	}
	run.Log(ctx, "PO received.")
	return nil
}

// fill adds the order lines to the purchase order's external order, creating
// the order with them when it does not exist yet.
func (s *Stage) fill(ctx context.Context, run *pipeline.Run, lines []line) error {
	products := poProducts(lines)
	if run.PO.ExternalPOID == nil {
		if _, err := s.ensureOrder(ctx, run, products); err != nil {
			return err
		}
	} else {
		poID := *run.PO.ExternalPOID
		run.Log(ctx, fmt.Sprintf("Adding %d items to Sellercloud PO %d.", len(products), poID))
		if err := s.catalog.AddItems(ctx, poID, products); err != nil {
			return fmt.Errorf("add items to purchase order %d: %w", poID, err)
		}
	}
	run.Log(ctx, "PO created.")
	return nil
}

// ensureOrder returns the external order of the purchase order, creating it
// with products when none is recorded.
func (s *Stage) ensureOrder(ctx context.Context, run *pipeline.Run, products []sellercloud.POProduct) (int64, error) {
	if id := run.PO.ExternalPOID; id != nil {
		return *id, nil
	}
	run.Log(ctx, "Creating PO in Sellercloud.")
	id, err := s.catalog.CreatePurchaseOrder(ctx, sellercloud.NewPurchaseOrder{
		CompanyID:          s.cfg.CompanyID,
		VendorID:           s.cfg.VendorID,
		Description:        strings.TrimSpace(run.PO.Name),
		Products:           products,
		DefaultWarehouseID: s.cfg.WarehouseID,
	})
	if err != nil {
		return 0, fmt.Errorf("create purchase order: %w", err)
	}
	if err := s.orders.SetExternalPOID(ctx, run.PO.ID, id); err != nil {
		return 0, fmt.Errorf("record purchase order %d: %w", id, err)
	}
	run.PO.ExternalPOID = &id
	run.Log(ctx, fmt.Sprintf("Sellercloud PO %d created.", id))
	return id, nil
}
