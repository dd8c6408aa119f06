package skus

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/andresuchdata/po-tool/internal/domain"
	"github.com/andresuchdata/po-tool/internal/lightspeed"
	"github.com/andresuchdata/po-tool/internal/pipeline"
	"github.com/andresuchdata/po-tool/internal/refdata"
	"github.com/andresuchdata/po-tool/internal/repository"
	"github.com/andresuchdata/po-tool/internal/sellercloud"
	"github.com/andresuchdata/po-tool/internal/sheets"
	"github.com/andresuchdata/po-tool/internal/storage"
)

// POSUploader pushes an import file to the retail POS and returns the
// custom SKU to system ID map.
type POSUploader interface {
	Upload(ctx context.Context, file []byte, logf lightspeed.Logger) (map[string]string, error)
}

// CatalogImporter queues a product import in the catalog.
type CatalogImporter interface {
	ImportProducts(ctx context.Context, products []sellercloud.CreateProduct) (int64, error)
}

// AliasSource reads the index of SKUs created so far.
type AliasSource interface {
	Aliases(ctx context.Context) (refdata.Aliases, error)
}

// References are the lookups non-ATS SKUs are validated and built from.
type References struct {
	BrandCodes refdata.Reader[map[string]string]
	ItemTypes  refdata.Reader[map[string]refdata.ItemType]
	ValidSizes refdata.Reader[refdata.SizeSet]
	Aliases    AliasSource
}

var breakdownTotalsColumns = []string{
	domain.ColProductGroup, domain.ColTotalCost, domain.ColBreakdownMSRP, domain.ColWeightedCost,
}

// Stage assigns SKUs to worksheet rows and creates the new products in the
// POS and the catalog.
type Stage struct {
	sheets   sheets.Store
	orders   repository.PurchaseOrderRepository
	settings repository.SettingsRepository
	refs     References
	pos      POSUploader
	catalog  CatalogImporter
	archive  storage.ObjectStorage
}

func NewStage(store sheets.Store, orders repository.PurchaseOrderRepository, settings repository.SettingsRepository, refs References, pos POSUploader, catalog CatalogImporter) *Stage {
	return &Stage{
		sheets:   store,
		orders:   orders,
		settings: settings,
		refs:     refs,
		pos:      pos,
		catalog:  catalog,
	}
}

// WithArchive keeps a copy of every POS import file in object storage.
func (s *Stage) WithArchive(archive storage.ObjectStorage) *Stage {
	s.archive = archive
	return s
}

func (s *Stage) Name() domain.Stage { return domain.StageSKUs }

func (s *Stage) Run(ctx context.Context, run *pipeline.Run) (domain.Status, error) {
	catalogCfg, err := s.settings.CatalogSettings(ctx)
	if err != nil {
		return "", fmt.Errorf("load catalog settings: %w", err)
	}
	cfg := *catalogCfg
	worksheetID, err := run.Worksheet()
	if err != nil {
		return "", err
	}
	ats := run.PO.IsATS
	wsRef := sheets.Ref{SpreadsheetID: worksheetID, Sheet: sheets.TabWorksheet}

	required := domain.NetSalesWorksheetColumns
	if ats {
		required = domain.WorksheetColumns
	}
	ws, ok, err := s.read(ctx, run, wsRef, required, "Worksheet")
	if err != nil || !ok {
		return domain.StatusSKUErrors, err
	}

	var mismatches map[string][]string
	if !ats {
		bd, ok, err := s.read(ctx, run, sheets.Ref{SpreadsheetID: worksheetID, Sheet: sheets.TabBreakdown}, breakdownTotalsColumns, "Breakdown")
		if err != nil || !ok {
			return domain.StatusSKUErrors, err
		}
		mismatches = reconcile(ws.Rows, bd.Rows)
	}

	run.Log(ctx, "Validating worksheet for SKU creation.")
	needsSKUs := false
	for _, row := range ws.Rows {
		if row.Get(domain.ColProductID) == "" {
			needsSKUs = true
			break
		}
	}
	var refs references
	if needsSKUs && !ats {
		if refs, err = s.loadReferences(); err != nil {
			return "", err
		}
	}

	c := newChecker(ws.Rows, ats, refs)
	hasErrors := false
	for _, row := range ws.Rows {
		msgs := append(c.check(row), mismatches[row.Get(domain.ColGroup)]...)
		if row.SetErrors(msgs) {
			hasErrors = true
		}
	}
	if hasErrors {
		if err := s.sheets.WriteRows(ctx, wsRef, ws.Rows); err != nil {
			return "", fmt.Errorf("post worksheet errors: %w", err)
		}
		run.Error(ctx, "Errors found and posted to worksheet.")
		return domain.StatusSKUErrors, nil
	}
	run.Log(ctx, "Worksheet content validated")

	products, err := s.assign(ctx, run, ws.Rows, needsSKUs, refs, cfg)
	if err != nil {
		return "", err
	}

	pending := pendingProducts(ws.Rows, run.PO.PendingCatalogSKUs)
	systemIDs := make(map[string]string, len(run.PO.PendingCatalogSKUs)+len(products))
	for sku, id := range run.PO.PendingCatalogSKUs {
		systemIDs[sku] = id
	}
	if len(products) > 0 {
		created, err := s.uploadToPOS(ctx, run, products)
		if err != nil {
			return "", err
		}
		for sku, id := range created {
			systemIDs[sku] = id
		}
		// Products now exist in the POS; a later failure must not mint them again.
		if err := s.orders.SetPendingCatalogSKUs(ctx, run.PO.ID, systemIDs); err != nil {
			return "", fmt.Errorf("record pending catalog skus: %w", err)
		}
		run.PO.PendingCatalogSKUs = systemIDs
	}

	if err := s.sheets.WriteRows(ctx, wsRef, ws.Rows); err != nil {
		return "", fmt.Errorf("post skus: %w", err)
	}
	run.Log(ctx, "SKUs posted to worksheet.")

	var jobID *int64
	if toImport := append(pending, products...); len(toImport) > 0 {
		id, err := s.importToCatalog(ctx, run, toImport, systemIDs, cfg)
		if err != nil {
			return "", err
		}
		jobID = &id
		if err := s.orders.SetPendingCatalogSKUs(ctx, run.PO.ID, nil); err != nil {
			return "", fmt.Errorf("clear pending catalog skus: %w", err)
		}
		run.PO.PendingCatalogSKUs = nil
	}
	if err := s.orders.SetCatalogJobID(ctx, run.PO.ID, jobID); err != nil {
		return "", fmt.Errorf("record catalog job: %w", err)
	}
	run.PO.CatalogJobID = jobID
	return domain.StatusSKUsCreated, nil
}

// pendingProducts rebuilds the products an earlier run created in the POS but
// could not import into the catalog, one per SKU still present in rows.
func pendingProducts(rows []domain.Row, systemIDs map[string]string) []NewProduct {
	if len(systemIDs) == 0 {
		return nil
	}
	var out collector
	for _, row := range rows {
		sku := row.Get(domain.ColProductID)
		if _, ok := systemIDs[sku]; ok {
			out.add(sku, row)
		}
	}
	return out.products
}

func (s *Stage) assign(ctx context.Context, run *pipeline.Run, rows []domain.Row, needsSKUs bool, refs references, cfg domain.CatalogSettings) ([]NewProduct, error) {
	if run.PO.IsATS {
		run.Log(ctx, "Creating SKUs for all rows.")
	} else {
		run.Log(ctx, "Creating/Finding SKUs for all rows missing SKUs.")
	}
	if !needsSKUs {
		run.Log(ctx, "No rows with missing SKUs found.")
		return nil, nil
	}

	run.Log(ctx, "Assigning SKUs.")
	var products []NewProduct
	if run.PO.IsATS {
		var err error
		products, err = assignATS(ctx, rows, cfg.ATSBrandCode, s.settings.NextATSSKUNumber)
		if err != nil {
			return nil, err
		}
	} else {
		aliases, err := s.refs.Aliases.Aliases(ctx)
		if err != nil {
			return nil, err
		}
		products = assignNonATS(rows, refs, aliases)
	}

	if len(products) == 0 {
		run.Log(ctx, "No new skus found.")
	} else {
		run.Log(ctx, fmt.Sprintf("Found %d new SKUs. Preparing for upload", len(products)))
	}
	return products, nil
}

// uploadToPOS creates products in the POS and returns the system ID the POS
// assigned to each SKU.
func (s *Stage) uploadToPOS(ctx context.Context, run *pipeline.Run, products []NewProduct) (map[string]string, error) {
	file, err := lightspeed.BuildImportFile(posProducts(products))
	if err != nil {
		return nil, err
	}
	s.archiveFile(ctx, run, file)

	systemIDs, err := s.pos.Upload(ctx, file, func(e domain.LogEntry) { run.Append(ctx, e) })
	if err != nil {
		return nil, fmt.Errorf("upload products to POS: %w", err)
	}
	return systemIDs, nil
}

// importToCatalog queues the catalog import of products and returns its job ID.
func (s *Stage) importToCatalog(ctx context.Context, run *pipeline.Run, products []NewProduct, systemIDs map[string]string, cfg domain.CatalogSettings) (int64, error) {
	payload, err := catalogProducts(products, systemIDs, run.PO.IsATS, cfg)
	if err != nil {
		return 0, err
	}
	run.Log(ctx, "Importing products to Sellercloud.")
	jobID, err := s.catalog.ImportProducts(ctx, payload)
	if err != nil {
		return 0, fmt.Errorf("import products to catalog: %w", err)
	}
	run.Log(ctx, fmt.Sprintf("Catalog import queued (Job ID: %d).", jobID))
	return jobID, nil
}

// archiveFile stores the POS import file. A failed upload is only logged.
func (s *Stage) archiveFile(ctx context.Context, run *pipeline.Run, file []byte) {
	if s.archive == nil {
		return
	}
	key := fmt.Sprintf("imports/po-%d/%s-lightspeed.xlsx", run.PO.ID, run.ID)
	if err := s.archive.UploadObject(ctx, key, file, lightspeed.ContentType); err != nil {
		run.Logger.Warn().Err(err).Str("key", key).Msg("failed to archive import file")
	}
}

func (s *Stage) loadReferences() (references, error) {
	var (
		refs references
		err  error
	)
	if refs.brandCodes, err = s.refs.BrandCodes.Get(); err != nil {
		return refs, fmt.Errorf("brand codes: %w", err)
	}
	if refs.itemTypes, err = s.refs.ItemTypes.Get(); err != nil {
		return refs, fmt.Errorf("item types: %w", err)
	}
	if refs.sizes, err = s.refs.ValidSizes.Get(); err != nil {
		return refs, fmt.Errorf("valid sizes: %w", err)
	}
	return refs, nil
}

func (s *Stage) read(ctx context.Context, run *pipeline.Run, ref sheets.Ref, required []string, label string) (*sheets.Table, bool, error) {
	table, err := s.sheets.ReadRows(ctx, ref, required)
	var missing *sheets.MissingHeadersError
	switch {
	case errors.Is(err, sheets.ErrNoDataRows):
		run.Error(ctx, label+" is empty.")
		return nil, false, nil
	case errors.As(err, &missing):
		run.Error(ctx, label+" is missing columns: "+strings.Join(missing.Missing, ", "))
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("read %s: %w", strings.ToLower(label), err)
	}
	return table, true, nil
}
