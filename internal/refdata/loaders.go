package refdata

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/andresuchdata/po-tool/internal/domain"
	"github.com/andresuchdata/po-tool/internal/drive"
	"github.com/andresuchdata/po-tool/internal/sheets"
	"golang.org/x/sync/errgroup"
)

// Sheet layouts of the reference sources.
const (
	MarketplacesSheet = "Marketplaces"
	ListPricesSheet   = "Prices"
	ItemTypesSheet    = "Item Types"
	AcronymsSheet     = "Item Type Acronyms"
	BrandCodesSheet   = "Brand Codes"
	ValidSizesSheet   = "Valid Sizes"
	AliasesSheet      = "Aliases/Created SKUs"
	SalesReportSheet  = "Sheet1"

	SalesAmountColumn = "Grand Total + Adjustmensts - Tax + Accrual Refunds"
)

// SalesReportColumns are the columns every monthly sales report carries, in
// the order they are written to the Relevant Sales tab.
var SalesReportColumns = []string{
	"Transaction Date", "Trans Type", "Order #", "Order Date", "Ship Date",
	"Marketplace", "Channel Order #", "SKU", "Qty", "Tax", "Discount", "Grand Total",
	"Accrual Refund", "Payments", "Refunds", "Adjustments",
	SalesAmountColumn, "Items Cost", "Shipping Cost",
	"Commission", "Profit", "Brand", "ProductName", "ProductTypeName", "Type", "Gender",
	"Age Since Received", "Vendor", "Sales Rep",
}

// marketplaceOverrides pin marketplaces whose group in the source file is wrong.
var marketplaceOverrides = map[string]string{
	"Misc":           "Wholesale",
	"Scarce Website": "Scarce",
}

// serialEpoch is day zero of spreadsheet serial dates.
var serialEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// DriveReader is the part of the Drive client the loaders need.
type DriveReader interface {
	ListFolder(ctx context.Context, folderID string) ([]*drive.File, error)
	Download(ctx context.Context, fileID string) ([]byte, error)
}

// Sources locates every reference data set.
type Sources struct {
	Sheets sheets.Store
	Drive  DriveReader

	MarketplacesFileID      string
	ListPricesSpreadsheetID string
	ItemTypesSpreadsheetID  string
	BrandCodesSpreadsheetID string
	ValidSizesSpreadsheetID string
	AliasesSpreadsheetID    string
	SalesReportsFolderID    string
}

// LoadMarketplaces reads the marketplace to group map from the xlsx export on Drive.
func LoadMarketplaces(ctx context.Context, src Sources, groups []string) (map[string]string, error) {
	content, err := src.Drive.Download(ctx, src.MarketplacesFileID)
	if err != nil {
		return nil, err
	}
	rows, err := drive.ReadXLSXRows(content, MarketplacesSheet, []string{"Marketplace", "Group"})
	if err != nil {
		return nil, err
	}

	valid := make(map[string]struct{}, len(groups))
	for _, g := range groups {
		valid[g] = struct{}{}
	}

	out := make(map[string]string, len(rows))
	var invalid []string
	for _, row := range rows {
		marketplace, group := row.Get("Marketplace"), row.Get("Group")
		if marketplace == "" {
			continue
		}
		if override, ok := marketplaceOverrides[marketplace]; ok {
			group = override
		}
		if _, ok := valid[group]; !ok {
			invalid = append(invalid, fmt.Sprintf("%s (%s)", marketplace, group))
			continue
		}
		out[marketplace] = group
	}
	if len(invalid) > 0 {
		return nil, fmt.Errorf("marketplaces with invalid groups: %s", strings.Join(invalid, ", "))
	}
	return out, nil
}

// LoadListPrices reads the SKU to list price map.
func LoadListPrices(ctx context.Context, src Sources) (map[string]float64, error) {
	table, err := src.Sheets.ReadRows(ctx, sheets.Ref{SpreadsheetID: src.ListPricesSpreadsheetID, Sheet: ListPricesSheet}, []string{"ProductID", "ListPrice"})
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(table.Rows))
	for _, row := range table.Rows {
		sku := row.Get("ProductID")
		price, err := row.Float("ListPrice")
		if sku == "" || err != nil {
			continue
		}
		out[sku] = price
	}
	return out, nil
}

// LoadItemTypes reads item type metadata and joins in the SKU acronyms.
func LoadItemTypes(ctx context.Context, src Sources) (map[string]ItemType, error) {
	types, err := src.Sheets.ReadRows(ctx, sheets.Ref{SpreadsheetID: src.ItemTypesSpreadsheetID, Sheet: ItemTypesSheet}, []string{"ProductTypeName", "Gender", "Reporting Category"})
	if err != nil {
		return nil, err
	}
	acronyms, err := src.Sheets.ReadRows(ctx, sheets.Ref{SpreadsheetID: src.ItemTypesSpreadsheetID, Sheet: AcronymsSheet}, []string{"ProductTypeName", "SKU Acronym"})
	if err != nil {
		return nil, err
	}

	out := make(map[string]ItemType, len(types.Rows))
	for _, row := range types.Rows {
		name := row.Get("ProductTypeName")
		if name == "" {
			continue
		}
		out[name] = ItemType{Gender: row.Get("Gender"), Category: row.Get("Reporting Category")}
	}
	for _, row := range acronyms.Rows {
		name := row.Get("ProductTypeName")
		it, ok := out[name]
		if !ok {
			continue
		}
		it.Acronym = row.Get("SKU Acronym")
		out[name] = it
	}
	return out, nil
}

// LoadBrandCodes reads the brand name to brand code map.
func LoadBrandCodes(ctx context.Context, src Sources) (map[string]string, error) {
	table, err := src.Sheets.ReadRows(ctx, sheets.Ref{SpreadsheetID: src.BrandCodesSpreadsheetID, Sheet: BrandCodesSheet}, []string{"Brand", "Brand Code"})
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(table.Rows))
	for _, row := range table.Rows {
		if brand := row.Get("Brand"); brand != "" {
			out[brand] = row.Get("Brand Code")
		}
	}
	return out, nil
}

// LoadValidSizes reads the accepted size labels.
func LoadValidSizes(ctx context.Context, src Sources) (SizeSet, error) {
	table, err := src.Sheets.ReadRows(ctx, sheets.Ref{SpreadsheetID: src.ValidSizesSpreadsheetID, Sheet: ValidSizesSheet}, []string{"Size"})
	if err != nil {
		return nil, err
	}
	out := make(SizeSet, len(table.Rows))
	for _, row := range table.Rows {
		if size := row.Get("Size"); size != "" {
			out[size] = struct{}{}
		}
	}
	return out, nil
}

// LoadAliases indexes previously created SKUs by brand+MPN and by brand-type prefix.
func LoadAliases(ctx context.Context, src Sources) (Aliases, error) {
	out := Aliases{BrandMPN: map[string][]string{}, BrandType: map[string][]string{}}
	table, err := src.Sheets.ReadRows(ctx, sheets.Ref{SpreadsheetID: src.AliasesSpreadsheetID, Sheet: AliasesSheet}, []string{"Old Custom SKU", "MPN"})
	if err != nil {
		return out, err
	}
	for _, row := range table.Rows {
		sku := row.Get("Old Custom SKU")
		if sku == "" {
			continue
		}
		brandMPN := domain.BrandCodeOf(sku) + domain.NormalizeMPN(row.Get("MPN"))
		out.BrandMPN[brandMPN] = append(out.BrandMPN[brandMPN], sku)
		if brandType, ok := domain.BrandTypeOf(sku); ok {
			out.BrandType[brandType] = append(out.BrandType[brandType], sku)
		}
	}
	return out, nil
}

// SalesInputs are the other tables a sales report refresh joins against.
type SalesInputs struct {
	Months       int
	ListPrices   map[string]float64
	Marketplaces map[string]string
}

// LoadSalesReport collects the monthly sales files covering the history window
// and enriches each relevant row with its group, sales amount and MSRP.
func LoadSalesReport(ctx context.Context, src Sources, in SalesInputs) (SalesReport, error) {
	files, err := salesReportFiles(ctx, src, in.Months)
	if err != nil {
		return SalesReport{}, err
	}

	tables := make([]*sheets.Table, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			t, err := src.Sheets.ReadRows(gctx, sheets.Ref{SpreadsheetID: f.ID, Sheet: SalesReportSheet}, SalesReportColumns)
			if err != nil {
				return fmt.Errorf("sales report %s: %w", f.Name, err)
			}
			tables[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return SalesReport{}, err
	}

	var all []domain.Row
	for _, t := range tables {
		all = append(all, t.Rows...)
	}
	return buildSalesReport(all, in)
}

func buildSalesReport(all []domain.Row, in SalesInputs) (SalesReport, error) {
	var latest time.Time
	for _, row := range all {
		if d, ok := orderDate(row); ok && d.After(latest) {
			latest = d
		}
	}
	if latest.IsZero() {
		return SalesReport{}, fmt.Errorf("sales reports have no order dates")
	}
	start := latest.AddDate(0, -in.Months, 0)

	report := SalesReport{Headers: SalesReportColumns}
	for _, row := range all {
		d, ok := orderDate(row)
		if !ok || d.Before(start) {
			continue
		}
		marketplace := row.Get("Marketplace")
		listPrice := in.ListPrices[row.Get("SKU")]
		if marketplace == "" || listPrice == 0 {
			continue
		}
		group, ok := in.Marketplaces[marketplace]
		if !ok {
			return SalesReport{}, fmt.Errorf("could not find %q in marketplace groups", marketplace)
		}
		qty, err := row.Float("Qty")
		if err != nil {
			continue
		}
		sales, _ := row.Float(SalesAmountColumn)

		report.Rows = append(report.Rows, SalesRow{
			BrandGenderCategory: BrandGenderCategory(row.Get("Brand"), row.Get("Gender"), row.Get("Type")),
			Group:               group,
			Sales:               sales,
			MSRP:                qty * listPrice,
			Values:              row,
		})
	}
	return report, nil
}

// BrandGenderCategory builds the product group key shared by sales rows and worksheet rows.
func BrandGenderCategory(brand, gender, category string) string {
	return strings.ToLower(brand) + " " + gender + " " + category
}

func orderDate(row domain.Row) (time.Time, bool) {
	serial, err := row.Float("Order Date")
	if err != nil || serial <= 0 {
		return time.Time{}, false
	}
	return serialEpoch.AddDate(0, 0, int(serial)), true
}

type monthFile struct {
	year, month int
	file        *drive.File
}

// salesReportFiles returns the latest months+1 monthly reports, walking into the
// previous year's folder when the latest year is short.
func salesReportFiles(ctx context.Context, src Sources, months int) ([]*drive.File, error) {
	root, err := src.Drive.ListFolder(ctx, src.SalesReportsFolderID)
	if err != nil {
		return nil, err
	}

	type yearFolder struct {
		year int
		id   string
	}
	var years []yearFolder
	for _, f := range root {
		if !f.IsFolder() {
			continue
		}
		if y, err := strconv.Atoi(strings.TrimSpace(f.Name)); err == nil {
			years = append(years, yearFolder{year: y, id: f.ID})
		}
	}
	if len(years) == 0 {
		return nil, fmt.Errorf("no year folders in sales reports folder")
	}
	sort.Slice(years, func(i, j int) bool { return years[i].year > years[j].year })
	if len(years) > 2 {
		years = years[:2]
	}

	want := months + 1
	var found []monthFile
	for _, y := range years {
		files, err := src.Drive.ListFolder(ctx, y.id)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			if !f.IsSpreadsheet() || len(f.Name) < 2 {
				continue
			}
			m, err := strconv.Atoi(f.Name[:2])
			if err != nil || m < 1 || m > 12 {
				continue
			}
			found = append(found, monthFile{year: y.year, month: m, file: f})
		}
		if len(found) >= want {
			break
		}
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("no monthly sales reports found")
	}

	sort.Slice(found, func(i, j int) bool {
		if found[i].year != found[j].year {
			return found[i].year > found[j].year
		}
		return found[i].month > found[j].month
	})
	if len(found) > want {
		found = found[:want]
	}
	out := make([]*drive.File, len(found))
	for i, mf := range found {
		out[i] = mf.file
	}
	return out, nil
}
