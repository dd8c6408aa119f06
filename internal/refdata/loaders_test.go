package refdata

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/andresuchdata/po-tool/internal/domain"
	"github.com/andresuchdata/po-tool/internal/drive"
	"github.com/andresuchdata/po-tool/internal/notify"
	"github.com/andresuchdata/po-tool/internal/repository/memory"
	"github.com/andresuchdata/po-tool/internal/retry"
	"github.com/andresuchdata/po-tool/internal/sheets"
	"github.com/xuri/excelize/v2"
)

type fakeDrive struct {
	folders map[string][]*drive.File
	files   map[string][]byte
}

func (d *fakeDrive) ListFolder(_ context.Context, id string) ([]*drive.File, error) {
	files, ok := d.folders[id]
	if !ok {
		return nil, errors.New("folder not found")
	}
	return files, nil
}

func (d *fakeDrive) Download(_ context.Context, id string) ([]byte, error) {
	content, ok := d.files[id]
	if !ok {
		return nil, errors.New("file not found")
	}
	return content, nil
}

func marketplaceWorkbook(t *testing.T, rows [][]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", MarketplacesSheet); err != nil {
		t.Fatalf("rename sheet: %v", err)
	}
	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(MarketplacesSheet, cell, &r); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf.Bytes()
}

var groups = []string{"Ecom", "Retail", "Wholesale", "Scarce"}

func TestLoadMarketplacesOverrides(t *testing.T) {
	src := Sources{
		MarketplacesFileID: "mkt",
		Drive: &fakeDrive{files: map[string][]byte{"mkt": marketplaceWorkbook(t, [][]interface{}{
			{"Marketplace", "Group"},
			{"Amazon", "Ecom"},
			{"Misc", "Other"},
			{"Scarce Website", "Ecom"},
		})}},
	}

	got, err := LoadMarketplaces(context.Background(), src, groups)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]string{"Amazon": "Ecom", "Misc": "Wholesale", "Scarce Website": "Scarce"}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}
}

func TestLoadMarketplacesRejectsUnknownGroup(t *testing.T) {
	src := Sources{
		MarketplacesFileID: "mkt",
		Drive: &fakeDrive{files: map[string][]byte{"mkt": marketplaceWorkbook(t, [][]interface{}{
			{"Marketplace", "Group"},
			{"Walmart", "Outlet"},
		})}},
	}

	_, err := LoadMarketplaces(context.Background(), src, groups)
	if err == nil || !strings.Contains(err.Error(), "Walmart") {
		t.Fatalf("err = %v, want invalid group error", err)
	}
}

func TestLoadItemTypesJoinsAcronyms(t *testing.T) {
	store := sheets.NewMemoryStore()
	store.Put(sheets.Ref{SpreadsheetID: "types", Sheet: ItemTypesSheet},
		[]string{"ProductTypeName", "Gender", "Reporting Category"},
		[]domain.Row{
			{"ProductTypeName": "Tops", "Gender": "Women", "Reporting Category": "Apparel"},
			{"ProductTypeName": "Boots", "Gender": "Men", "Reporting Category": "Shoes"},
		})
	store.Put(sheets.Ref{SpreadsheetID: "types", Sheet: AcronymsSheet},
		[]string{"ProductTypeName", "SKU Acronym"},
		[]domain.Row{{"ProductTypeName": "Tops", "SKU Acronym": "TOP"}})

	got, err := LoadItemTypes(context.Background(), Sources{Sheets: store, ItemTypesSpreadsheetID: "types"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["Tops"] != (ItemType{Gender: "Women", Category: "Apparel", Acronym: "TOP"}) {
		t.Errorf("Tops = %+v", got["Tops"])
	}
	if got["Boots"].Acronym != "" {
		t.Errorf("Boots acronym = %q", got["Boots"].Acronym)
	}
}

func TestLoadAliases(t *testing.T) {
	store := sheets.NewMemoryStore()
	store.Put(sheets.Ref{SpreadsheetID: "aliases", Sheet: AliasesSheet},
		[]string{"Old Custom SKU", "MPN"},
		[]domain.Row{
			{"Old Custom SKU": "ACM-TOP-0001/S", "MPN": "ab-12"},
			{"Old Custom SKU": "ACM-TOP-0001/M", "MPN": "AB12"},
			{"Old Custom SKU": "ACM-TOP-0007/M", "MPN": "zz 9"},
		})

	got, err := LoadAliases(context.Background(), Sources{Sheets: store, AliasesSpreadsheetID: "aliases"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := len(got.BrandMPN["ACMAB12"]); n != 2 {
		t.Errorf("ACMAB12 skus = %d, want 2", n)
	}
	if n := len(got.BrandType["ACM-TOP"]); n != 3 {
		t.Errorf("ACM-TOP skus = %d, want 3", n)
	}
}

// serial converts a calendar day to a spreadsheet serial number.
func serial(y, m, d int) string {
	days := int(time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC).Sub(serialEpoch).Hours() / 24)
	return strconv.Itoa(days)
}

func salesFixture(t *testing.T) (Sources, *sheets.MemoryStore) {
	t.Helper()
	store := sheets.NewMemoryStore()
	dr := &fakeDrive{folders: map[string][]*drive.File{
		"root": {
			{ID: "y2025", Name: "2025", MimeType: drive.FolderMimeType},
			{ID: "y2026", Name: "2026", MimeType: drive.FolderMimeType},
			{ID: "y2024", Name: "2024", MimeType: drive.FolderMimeType},
			{ID: "notes", Name: "README", MimeType: "text/plain"},
		},
		"y2026": {
			{ID: "jan26", Name: "01 January", MimeType: drive.SpreadsheetMimeType},
			{ID: "feb26", Name: "02 February", MimeType: drive.SpreadsheetMimeType},
		},
		"y2025": {
			{ID: "nov25", Name: "11 November", MimeType: drive.SpreadsheetMimeType},
			{ID: "dec25", Name: "12 December", MimeType: drive.SpreadsheetMimeType},
		},
	}}

	put := func(id string, rows ...domain.Row) {
		store.Put(sheets.Ref{SpreadsheetID: id, Sheet: SalesReportSheet}, SalesReportColumns, rows)
	}
	put("feb26", domain.Row{"Order Date": serial(2026, 2, 15), "Marketplace": "Amazon", "SKU": "A1", "Qty": "2", "Brand": "Acme", "Gender": "Women", "Type": "Tops", SalesAmountColumn: "80"})
	put("jan26",
		domain.Row{"Order Date": serial(2026, 1, 10), "Marketplace": "Store", "SKU": "A1", "Qty": "1", "Brand": "Acme", "Gender": "Women", "Type": "Tops", SalesAmountColumn: "45"},
		domain.Row{"Order Date": serial(2026, 1, 11), "Marketplace": "Store", "SKU": "NOPRICE", "Qty": "1", "Brand": "Acme", "Gender": "Women", "Type": "Tops", SalesAmountColumn: "10"},
	)
	put("dec25",
		domain.Row{"Order Date": serial(2025, 12, 20), "Marketplace": "Amazon", "SKU": "A1", "Qty": "1", "Brand": "Acme", "Gender": "Women", "Type": "Tops", SalesAmountColumn: "40"},
		domain.Row{"Order Date": serial(2025, 12, 1), "Marketplace": "Amazon", "SKU": "A1", "Qty": "1", "Brand": "Acme", "Gender": "Women", "Type": "Tops", SalesAmountColumn: "40"},
	)
	put("nov25", domain.Row{"Order Date": serial(2025, 11, 3), "Marketplace": "Amazon", "SKU": "A1", "Qty": "1", "Brand": "Acme", "Gender": "Women", "Type": "Tops", SalesAmountColumn: "40"})

	return Sources{Sheets: store, Drive: dr, SalesReportsFolderID: "root"}, store
}

func TestLoadSalesReportWindow(t *testing.T) {
	src, _ := salesFixture(t)

	report, err := LoadSalesReport(context.Background(), src, SalesInputs{
		Months:       2,
		ListPrices:   map[string]float64{"A1": 50},
		Marketplaces: map[string]string{"Amazon": "Ecom", "Store": "Retail"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Feb 15 minus two months is Dec 15: Dec 1 and November fall out, the
	// row without a list price is skipped.
	if len(report.Rows) != 3 {
		t.Fatalf("rows = %d, want 3: %+v", len(report.Rows), report.Rows)
	}
	var msrp, sales float64
	for _, r := range report.Rows {
		if r.BrandGenderCategory != "acme Women Tops" {
			t.Errorf("key = %q", r.BrandGenderCategory)
		}
		msrp += r.MSRP
		sales += r.Sales
	}
	if msrp != 200 || sales != 165 {
		t.Errorf("msrp = %v, sales = %v", msrp, sales)
	}
}

func TestLoadSalesReportUnknownMarketplace(t *testing.T) {
	src, _ := salesFixture(t)

	_, err := LoadSalesReport(context.Background(), src, SalesInputs{
		Months:       2,
		ListPrices:   map[string]float64{"A1": 50},
		Marketplaces: map[string]string{"Amazon": "Ecom"},
	})
	if err == nil || !strings.Contains(err.Error(), "Store") {
		t.Fatalf("err = %v, want unknown marketplace error", err)
	}
}

func TestServiceRefreshAllNotifiesFailures(t *testing.T) {
	store := sheets.NewMemoryStore()
	store.Put(sheets.Ref{SpreadsheetID: "brands", Sheet: BrandCodesSheet},
		[]string{"Brand", "Brand Code"},
		[]domain.Row{{"Brand": "Acme", "Brand Code": "ACM"}})

	settings := memory.NewStore().WithSettings(domain.DefaultBreakdownSettings(), domain.DefaultCatalogSettings())
	rec := &notify.Recorder{}
	svc := NewService(Sources{Sheets: store, Drive: &fakeDrive{}, BrandCodesSpreadsheetID: "brands"}, settings, rec, ServiceConfig{Retries: 1})

	err := svc.RefreshAll(context.Background())
	if err == nil {
		t.Fatal("expected errors for the unconfigured caches")
	}

	codes, err := svc.BrandCodes.Get()
	if err != nil || codes["Acme"] != "ACM" {
		t.Fatalf("brand codes = %v, %v", codes, err)
	}
	if n := len(rec.Messages()); n != 5 {
		t.Fatalf("notifications = %d, want 5", n)
	}
	st, _ := svc.Status(CacheSalesReports)
	if st.State != StateFailed {
		t.Fatalf("sales reports state = %q", st.State)
	}
	if err := svc.Refresh(context.Background(), "nope"); !errors.Is(err, ErrUnknownCache) {
		t.Fatalf("err = %v, want ErrUnknownCache", err)
	}
}

func TestServiceAliasesRetries(t *testing.T) {
	prev := retry.Sleep
	retry.Sleep = func(context.Context, time.Duration) error { return nil }
	defer func() { retry.Sleep = prev }()

	svc := NewService(Sources{Sheets: sheets.NewMemoryStore(), AliasesSpreadsheetID: "missing"}, memory.NewStore(), nil, ServiceConfig{})
	if _, err := svc.Aliases(context.Background()); err == nil {
		t.Fatal("expected error for a missing aliases sheet")
	}
}
