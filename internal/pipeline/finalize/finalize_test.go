package finalize

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/andresuchdata/po-tool/internal/domain"
	"github.com/andresuchdata/po-tool/internal/pipeline"
	"github.com/andresuchdata/po-tool/internal/repository/memory"
	"github.com/andresuchdata/po-tool/internal/retry"
	"github.com/andresuchdata/po-tool/internal/sellercloud"
	"github.com/andresuchdata/po-tool/internal/sheets"
	"github.com/rs/zerolog"
)

type fakeCatalog struct {
	statuses    []sellercloud.JobStatus
	polls       int
	priorityErr error
	existing    map[string]bool

	created  []sellercloud.NewPurchaseOrder
	added    map[int64][]sellercloud.POProduct
	received map[int64][]sellercloud.ReceiveItem
}

func newFakeCatalog(existing ...string) *fakeCatalog {
	f := &fakeCatalog{
		existing: make(map[string]bool),
		added:    make(map[int64][]sellercloud.POProduct),
		received: make(map[int64][]sellercloud.ReceiveItem),
	}
	for _, sku := range existing {
		f.existing[sku] = true
	}
	return f
}

func (f *fakeCatalog) SetJobPriority(context.Context, int64, int) error { return f.priorityErr }

func (f *fakeCatalog) JobStatus(context.Context, int64) (sellercloud.JobStatus, error) {
	i := f.polls
	f.polls++
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	return f.statuses[i], nil
}

func (f *fakeCatalog) ExistingProducts(_ context.Context, skus []string) ([]string, error) {
	var out []string
	for _, sku := range skus {
		if f.existing[sku] {
			out = append(out, sku)
		}
	}
	return out, nil
}

func (f *fakeCatalog) CreatePurchaseOrder(_ context.Context, in sellercloud.NewPurchaseOrder) (int64, error) {
	f.created = append(f.created, in)
	return 900 + int64(len(f.created)), nil
}

func (f *fakeCatalog) AddItems(_ context.Context, poID int64, products []sellercloud.POProduct) error {
	f.added[poID] = append(f.added[poID], products...)
	return nil
}

func (f *fakeCatalog) Receive(_ context.Context, poID int64, items []sellercloud.ReceiveItem) error {
	f.received[poID] = append(f.received[poID], items...)
	return nil
}

const sheetID = "sheet-1"

var wsRef = sheets.Ref{SpreadsheetID: sheetID, Sheet: sheets.TabWorksheet}

type fixture struct {
	store   *sheets.MemoryStore
	orders  *memory.Store
	catalog *fakeCatalog
}

func newFixture(t *testing.T, po domain.PurchaseOrder, catalog *fakeCatalog) *fixture {
	t.Helper()
	orig := retry.Sleep
	retry.Sleep = func(context.Context, time.Duration) error { return nil }
	t.Cleanup(func() { retry.Sleep = orig })

	f := &fixture{store: sheets.NewMemoryStore(), orders: memory.NewStore(), catalog: catalog}
	f.store.Put(wsRef, domain.WorksheetColumns, []domain.Row{
		{domain.ColProductID: "GUC-LOF-0001/M", domain.ColUnitCost: "40", domain.ColQty: "2"},
		{domain.ColProductID: "GUC-LOF-0001/M", domain.ColUnitCost: "46", domain.ColQty: "1"},
		{domain.ColProductID: "PRD-SNK-0001/42", domain.ColUnitCost: "80", domain.ColQty: "1"},
	})
	ws := sheetID
	po.ID = 1
	po.Name = "Spring order"
	po.Status = domain.StatusCreatingPO
	po.WorksheetID = &ws
	f.orders.Put(&po)
	return f
}

func (f *fixture) run(t *testing.T) (domain.Status, error) {
	t.Helper()
	po, err := f.orders.Get(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	stage := NewStage(f.store, f.orders, f.catalog, Config{CompanyID: 1, VendorID: 2, WarehouseID: 3})
	return stage.Run(context.Background(), pipeline.NewRun("run-1", domain.StageFinalize, po, f.orders, zerolog.Nop()))
}

func TestOrderLinesMergesSKUs(t *testing.T) {
	lines, err := orderLines([]domain.Row{
		{domain.ColProductID: "A/M", domain.ColUnitCost: "40", domain.ColQty: "2"},
		{domain.ColProductID: "B/M", domain.ColUnitCost: "10", domain.ColQty: "1"},
		{domain.ColProductID: "A/M", domain.ColUnitCost: "46", domain.ColQty: "1"},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []line{{sku: "A/M", qty: 3, unitPrice: 42}, {sku: "B/M", qty: 1, unitPrice: 10}}
	if len(lines) != len(want) {
		t.Fatalf("lines = %+v", lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %+v, want %+v", i, lines[i], want[i])
		}
	}

	if _, err := orderLines([]domain.Row{{domain.ColQty: "1", domain.ColUnitCost: "1"}}); err == nil {
		t.Error("row without a SKU was accepted")
	}
}

func TestNonATSAddsItemsToExistingPO(t *testing.T) {
	job := int64(77)
	external := int64(500)
	catalog := newFakeCatalog("GUC-LOF-0001/M", "PRD-SNK-0001/42")
	catalog.statuses = []sellercloud.JobStatus{sellercloud.JobQueued, sellercloud.JobInProgress, sellercloud.JobCompleted}
	catalog.priorityErr = errors.New("priority endpoint down")
	f := newFixture(t, domain.PurchaseOrder{CatalogJobID: &job, ExternalPOID: &external}, catalog)

	status, err := f.run(t)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if status != domain.StatusPOCreated {
		t.Errorf("status = %q, want %q", status, domain.StatusPOCreated)
	}
	if catalog.polls != 3 {
		t.Errorf("polls = %d, want 3", catalog.polls)
	}
	items := catalog.added[500]
	if len(items) != 2 || items[0].QtyUnitsOrdered != 3 || items[0].UnitPrice != 42 {
		t.Errorf("added items = %+v", items)
	}
	if len(catalog.created) != 0 {
		t.Error("created a new PO although one exists")
	}
	po, _ := f.orders.Get(context.Background(), 1)
	if po.CatalogJobID != nil {
		t.Errorf("CatalogJobID = %d, want cleared", *po.CatalogJobID)
	}
}

func TestATSCreatesAndReceivesPO(t *testing.T) {
	catalog := newFakeCatalog("GUC-LOF-0001/M", "PRD-SNK-0001/42")
	f := newFixture(t, domain.PurchaseOrder{IsATS: true}, catalog)

	status, err := f.run(t)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if status != domain.StatusPOReceived {
		t.Errorf("status = %q, want %q", status, domain.StatusPOReceived)
	}
	if len(catalog.created) != 1 {
		t.Fatalf("created = %d purchase orders, want 1", len(catalog.created))
	}
	in := catalog.created[0]
	if in.CompanyID != 1 || in.VendorID != 2 || in.DefaultWarehouseID != 3 || in.Description != "Spring order" || len(in.Products) != 2 {
		t.Errorf("created = %+v", in)
	}
	if got := catalog.received[901]; len(got) != 2 || got[0].QtyToReceive != 3 {
		t.Errorf("received = %+v", got)
	}
	po, _ := f.orders.Get(context.Background(), 1)
	if po.ExternalPOID == nil || *po.ExternalPOID != 901 {
		t.Errorf("ExternalPOID = %v, want 901", po.ExternalPOID)
	}
}

func TestMissingSKUsAreFlagged(t *testing.T) {
	catalog := newFakeCatalog("GUC-LOF-0001/M")
	f := newFixture(t, domain.PurchaseOrder{}, catalog)

	status, err := f.run(t)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if status != domain.StatusSKUErrors {
		t.Fatalf("status = %q, want %q", status, domain.StatusSKUErrors)
	}
	rows := f.store.Rows(wsRef)
	if rows[0][domain.ColErrors] != "" || rows[2][domain.ColErrors] != missingSKUMessage {
		t.Errorf("errors = %q, %q", rows[0][domain.ColErrors], rows[2][domain.ColErrors])
	}
	if len(catalog.created) != 0 || len(catalog.added) != 0 {
		t.Error("purchase order touched despite missing SKUs")
	}
}

func TestJobTimeout(t *testing.T) {
	job := int64(77)
	catalog := newFakeCatalog("GUC-LOF-0001/M", "PRD-SNK-0001/42")
	catalog.statuses = []sellercloud.JobStatus{sellercloud.JobInProgress}
	f := newFixture(t, domain.PurchaseOrder{CatalogJobID: &job}, catalog)

	if _, err := f.run(t); !errors.Is(err, ErrJobTimeout) {
		t.Fatalf("Run() error = %v, want ErrJobTimeout", err)
	}
	if catalog.polls != 10 {
		t.Errorf("polls = %d, want 10", catalog.polls)
	}
}

func TestJobFailureStopsPolling(t *testing.T) {
	job := int64(77)
	catalog := newFakeCatalog("GUC-LOF-0001/M", "PRD-SNK-0001/42")
	catalog.statuses = []sellercloud.JobStatus{sellercloud.JobQueued, sellercloud.JobFailed}
	f := newFixture(t, domain.PurchaseOrder{CatalogJobID: &job}, catalog)

	if _, err := f.run(t); !errors.Is(err, ErrJobFailed) {
		t.Fatalf("Run() error = %v, want ErrJobFailed", err)
	}
	if catalog.polls != 2 {
		t.Errorf("polls = %d, want 2", catalog.polls)
	}
}
