package repository

import (
	"context"
	"errors"

	"github.com/andresuchdata/po-tool/internal/domain"
)

var (
	ErrNotFound            = errors.New("record not found")
	ErrWorksheetAlreadySet = errors.New("worksheet already assigned to purchase order")
	ErrStatusConflict      = errors.New("purchase order status changed concurrently")
)

// PurchaseOrderRepository persists purchase orders and their append-only logs.
type PurchaseOrderRepository interface {
	// Create assigns the next sequential id and stores the order as "Creating Worksheet".
	Create(ctx context.Context, in domain.NewPurchaseOrder) (*domain.PurchaseOrder, error)
	Get(ctx context.Context, id int64) (*domain.PurchaseOrder, error)
	List(ctx context.Context) ([]*domain.PurchaseOrder, error)
	Update(ctx context.Context, id int64, upd domain.PurchaseOrderUpdate) (*domain.PurchaseOrder, error)
	// SetWorksheet records the backing worksheet. It fails with ErrWorksheetAlreadySet on a second call.
	SetWorksheet(ctx context.Context, id int64, worksheetID string) error
	SetStatus(ctx context.Context, id int64, status domain.Status) error
	// CompareAndSetStatus moves the order from expected to next and records stage as the
	// last stage started. It fails with ErrStatusConflict when the status is no longer expected.
	CompareAndSetStatus(ctx context.Context, id int64, expected, next domain.Status, stage domain.Stage) error
	SetExternalPOID(ctx context.Context, id int64, externalID int64) error
	// SetCatalogJobID records the pending catalog import job. Nil clears it.
	SetCatalogJobID(ctx context.Context, id int64, jobID *int64) error
	// SetPendingCatalogSKUs records SKUs created in the POS that still need a
	// catalog import. Nil or empty clears them.
	SetPendingCatalogSKUs(ctx context.Context, id int64, systemIDs map[string]string) error
	AppendLog(ctx context.Context, id int64, entry domain.LogEntry) error
	Delete(ctx context.Context, id int64) error
}

// SettingsRepository stores the named configuration aggregates read by each stage.
type SettingsRepository interface {
	BreakdownSettings(ctx context.Context) (*domain.BreakdownSettings, error)
	SaveBreakdownSettings(ctx context.Context, s domain.BreakdownSettings) error
	CatalogSettings(ctx context.Context) (*domain.CatalogSettings, error)
	SaveCatalogSettings(ctx context.Context, s domain.CatalogSettings) error
	// NextATSSKUNumber atomically increments the ATS SKU counter and returns the new value.
	NextATSSKUNumber(ctx context.Context) (int64, error)
}
