package breakdown

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/andresuchdata/po-tool/internal/domain"
	"github.com/andresuchdata/po-tool/internal/pipeline"
	"github.com/andresuchdata/po-tool/internal/pipeline/worksheet"
	"github.com/andresuchdata/po-tool/internal/refdata"
	"github.com/andresuchdata/po-tool/internal/repository/memory"
	"github.com/andresuchdata/po-tool/internal/sheets"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func stats(sales ...string) map[string]MarketStats {
	out := make(map[string]MarketStats)
	for i, s := range sales {
		out[string(rune('A'+i))] = MarketStats{Sales: dec(s), MSRP: dec(s).Mul(dec("2"))}
	}
	return out
}

func TestEstimatesSharesSumToOne(t *testing.T) {
	tests := []struct {
		name         string
		marketplaces []string
		stats        map[string]MarketStats
		want         map[string]string
	}{
		{
			name:         "even split rounds up the first",
			marketplaces: []string{"A", "B", "C"},
			stats:        stats("1", "1", "1"),
			want:         map[string]string{"A": "0.3334", "B": "0.3333", "C": "0.3333"},
		},
		{
			name:         "residual lands on the largest share",
			marketplaces: []string{"A", "B", "C", "D"},
			stats:        stats("1", "1", "1", "3"),
			want:         map[string]string{"A": "0.1667", "B": "0.1667", "C": "0.1667", "D": "0.4999"},
		},
		{
			name:         "missing marketplace gets nothing",
			marketplaces: []string{"A", "B", "C"},
			stats:        stats("2", "1"),
			want:         map[string]string{"A": "0.6667", "B": "0.3333", "C": "0"},
		},
		{
			name:         "negative sales are ignored",
			marketplaces: []string{"A", "B"},
			stats:        stats("-5", "10"),
			want:         map[string]string{"A": "0", "B": "1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Estimates(tt.marketplaces, tt.stats)
			sum := decimal.Zero
			for _, m := range tt.marketplaces {
				sum = sum.Add(got[m].Share)
				if !got[m].Share.Equal(dec(tt.want[m])) {
					t.Errorf("share[%s] = %s, want %s", m, got[m].Share, tt.want[m])
				}
			}
			if !sum.Equal(decimal.NewFromInt(1)) {
				t.Errorf("shares sum to %s, want 1", sum)
			}
		})
	}
}

func TestEstimatesZeroSalesFallback(t *testing.T) {
	marketplaces := []string{"Ecom", "Retail", "Wholesale", "Scarce"}
	for _, in := range []map[string]MarketStats{nil, {"Ecom": {MSRP: dec("100")}}} {
		got := Estimates(marketplaces, in)
		for _, m := range marketplaces {
			if !got[m].Share.Equal(dec("0.25")) {
				t.Errorf("share[%s] = %s, want 0.25", m, got[m].Share)
			}
			if !got[m].Discount.IsZero() {
				t.Errorf("discount[%s] = %s, want 0", m, got[m].Discount)
			}
		}
	}
}

func TestDiscount(t *testing.T) {
	tests := []struct {
		sales, msrp, want string
	}{
		{"75", "100", "0.25"},
		{"100", "100", "0"},
		{"0", "100", "0"},
		{"2", "3", "0.3333"},
	}
	for _, tt := range tests {
		got := discount(MarketStats{Sales: dec(tt.sales), MSRP: dec(tt.msrp)})
		if !got.Equal(dec(tt.want)) {
			t.Errorf("discount(%s/%s) = %s, want %s", tt.sales, tt.msrp, got, tt.want)
		}
	}
}

const sheetID = "sheet-1"

type fixture struct {
	store  *sheets.MemoryStore
	orders *memory.Store
	sales  *refdata.Table[refdata.SalesReport]
	stage  *Stage
}

func wsRow(brand, itemType, grade, cost, retail, qty string) domain.Row {
	return domain.Row{
		domain.ColBrand:    brand,
		domain.ColItemType: itemType,
		domain.ColGrade:    grade,
		domain.ColUnitCost: cost,
		domain.ColRetail:   retail,
		domain.ColQty:      qty,
		domain.ColSize:     "M",
		domain.ColMPN:      "MPN-1",
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	settings := domain.DefaultBreakdownSettings()
	f := &fixture{
		store:  sheets.NewMemoryStore(),
		orders: memory.NewStore().WithSettings(settings, domain.DefaultCatalogSettings()),
	}

	ref := func(tab string) sheets.Ref { return sheets.Ref{SpreadsheetID: sheetID, Sheet: tab} }
	f.store.Put(ref(sheets.TabWorksheet), domain.BreakdownWorksheetColumns, []domain.Row{
		wsRow("Gucci", "Loafers", "A", "5.00", "10.00", "10"),
		wsRow("Prada", "Sneakers", "B", "20", "50", "1"),
		wsRow("Gucci", "Loafers", "A", "7.5", "20", "2"),
	})
	f.store.Put(ref(sheets.TabValidation), []string{"Brand", "General Types"}, []domain.Row{
		{"Brand": "Gucci", "General Types": "Loafers"},
		{"Brand": "Prada", "General Types": "Sneakers"},
	})
	f.store.Put(ref(sheets.TabBreakdown), domain.BreakdownColumns(settings.MarketplaceGroups), nil)
	f.store.Put(ref(sheets.TabRelevantSales), []string{"Brand", "Marketplace"}, nil)

	itemTypes := refdata.NewTable[map[string]refdata.ItemType](refdata.CacheItemTypes, nil, refdata.Options{})
	itemTypes.Set(map[string]refdata.ItemType{
		"Loafers":  {Gender: "Men", Category: "Shoes"},
		"Sneakers": {Gender: "Women", Category: "Shoes"},
	}, time.Now())
	brandCodes := refdata.NewTable[map[string]string](refdata.CacheBrandCodes, nil, refdata.Options{})
	brandCodes.Set(map[string]string{}, time.Now())

	f.sales = refdata.NewTable[refdata.SalesReport](refdata.CacheSalesReports, nil, refdata.Options{})
	f.sales.Set(refdata.SalesReport{Rows: []refdata.SalesRow{
		{BrandGenderCategory: "gucci Men Shoes", Group: "Ecom", Sales: 300, MSRP: 400, Values: domain.Row{"Brand": "Gucci", "Marketplace": "eBay"}},
		{BrandGenderCategory: "gucci Men Shoes", Group: "Retail", Sales: 100, MSRP: 100, Values: domain.Row{"Brand": "Gucci", "Marketplace": "Store"}},
		{BrandGenderCategory: "fendi Men Bags", Group: "Ecom", Sales: 999, MSRP: 999, Values: domain.Row{"Brand": "Fendi", "Marketplace": "eBay"}},
	}}, time.Now())

	validator := worksheet.NewValidator(f.store, itemTypes, brandCodes)
	f.stage = NewStage(f.store, f.orders, validator, f.sales)

	ws := sheetID
	f.orders.Put(&domain.PurchaseOrder{ID: 1, Status: domain.StatusCreatingBreakdown, WorksheetID: &ws})
	return f
}

func (f *fixture) run(t *testing.T) (domain.Status, error) {
	t.Helper()
	po, err := f.orders.Get(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	return f.stage.Run(context.Background(), pipeline.NewRun("test", domain.StageBreakdown, po, f.orders, zerolog.Nop()))
}

func TestStageBuildsSortedBreakdown(t *testing.T) {
	f := newFixture(t)

	status, err := f.run(t)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if status != domain.StatusBreakdownCreated {
		t.Fatalf("status = %q", status)
	}

	rows := f.store.Rows(sheets.Ref{SpreadsheetID: sheetID, Sheet: sheets.TabBreakdown})
	if len(rows) != 2 {
		t.Fatalf("breakdown rows = %d, want 2", len(rows))
	}
	want := []map[string]string{
		{
			domain.ColProductGroup:               "Gucci Loafers A",
			domain.ColTotalCost:                  "65",
			domain.ColBreakdownMSRP:              "140",
			domain.SalesShareColumn("Ecom"):      "0.75",
			domain.StartDiscountColumn("Ecom"):   "0.25",
			domain.SalesShareColumn("Retail"):    "0.25",
			domain.StartDiscountColumn("Retail"): "0",
			domain.SalesShareColumn("Scarce"):    "0",
		},
		{
			domain.ColProductGroup:              "Prada Sneakers B",
			domain.ColTotalCost:                 "20",
			domain.SalesShareColumn("Ecom"):     "0.25",
			domain.SalesShareColumn("Scarce"):   "0.25",
			domain.StartDiscountColumn("Ecom"): "0",
		},
	}
	for i, w := range want {
		for col, v := range w {
			if rows[i][col] != v {
				t.Errorf("row %d %s = %q, want %q", i, col, rows[i][col], v)
			}
		}
	}

	ws := f.store.Rows(sheets.Ref{SpreadsheetID: sheetID, Sheet: sheets.TabWorksheet})
	if ws[0][domain.ColGroup] != "Gucci Loafers A" || ws[0][domain.ColBrandGenderType] != "gucci Men Shoes" {
		t.Errorf("worksheet row 0 = %v", ws[0])
	}
	if ws[2][domain.ColTotalCost] != "15" || ws[2][domain.ColTotalMsrp] != "40" {
		t.Errorf("worksheet row 2 totals = %q/%q", ws[2][domain.ColTotalCost], ws[2][domain.ColTotalMsrp])
	}

	relevant := f.store.Rows(sheets.Ref{SpreadsheetID: sheetID, Sheet: sheets.TabRelevantSales})
	if len(relevant) != 2 {
		t.Errorf("relevant sales = %d rows, want 2", len(relevant))
	}
}

func TestStageStopsOnWorksheetErrors(t *testing.T) {
	f := newFixture(t)
	ref := sheets.Ref{SpreadsheetID: sheetID, Sheet: sheets.TabWorksheet}
	f.store.Put(ref, domain.BreakdownWorksheetColumns, []domain.Row{wsRow("Gucci", "Loafers", "", "5", "10", "1")})

	status, err := f.run(t)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if status != domain.StatusBreakdownErrors {
		t.Errorf("status = %q, want %q", status, domain.StatusBreakdownErrors)
	}
	if n := f.store.Writes(sheets.Ref{SpreadsheetID: sheetID, Sheet: sheets.TabBreakdown}); n != 0 {
		t.Errorf("breakdown written %d times", n)
	}
}

func TestStageRejectsStaleSales(t *testing.T) {
	f := newFixture(t)
	f.sales.Set(refdata.SalesReport{}, time.Now().Add(-48*time.Hour))

	if _, err := f.run(t); !errors.Is(err, refdata.ErrCacheStale) {
		t.Fatalf("Run() error = %v, want ErrCacheStale", err)
	}
}
