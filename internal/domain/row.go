package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Worksheet and breakdown column names.
const (
	ColBrand           = "Brand"
	ColDescription     = "Description"
	ColItemType        = "Item Type"
	ColColor           = "Color"
	ColSize            = "Size"
	ColMPN             = "MPN"
	ColRetail          = "Retail"
	ColUnitCost        = "Unit Cost"
	ColQty             = "Qty"
	ColGrade           = "Grade"
	ColProductID       = "ProductID"
	ColErrors          = "Errors"
	ColGroup           = "Group"
	ColCategory        = "Category"
	ColGender          = "Gender"
	ColBrandGenderType = "BrandGenderType"
	ColTotalCost       = "Total Cost"
	ColTotalMsrp       = "Total Msrp"
	ColWeightedCost    = "Weighted Cost"

	ColProductGroup      = "Product Group"
	ColBreakdownMSRP     = "Total MSRP"
	ColConfidence        = "Confidence"
	ColSellThrough       = "Sell-through"
	ColProjectedSales    = "Projected Sales"
	ColProjectedFees     = "Projected Fees"
	ColProjectedNetSales = "Projected Net Sales"
	ColHoldingCost       = "Holding Cost"
	ColProjectedProfit   = "Projected Profit"
	ColMonthlyROI        = "Monthly ROI"
	ColNewDiscount       = "New Discount"
)

// StartDiscountColumn is the breakdown column holding a marketplace's starting discount.
func StartDiscountColumn(marketplace string) string {
	return marketplace + " Start Discount"
}

// SalesShareColumn is the breakdown column holding a marketplace's share of sales.
func SalesShareColumn(marketplace string) string {
	return marketplace + " Sales %"
}

// WorksheetColumns must be present in every worksheet.
var WorksheetColumns = []string{
	ColBrand, ColDescription, ColItemType, ColColor, ColSize, ColMPN,
	ColRetail, ColUnitCost, ColQty, ColGrade, ColErrors, ColProductID,
}

// BreakdownWorksheetColumns adds the columns the breakdown stage derives.
var BreakdownWorksheetColumns = append(append([]string(nil), WorksheetColumns...),
	ColGroup, ColCategory, ColGender, ColBrandGenderType, ColTotalCost, ColTotalMsrp,
)

// NetSalesWorksheetColumns adds the weighted cost written by the net-sales stage.
var NetSalesWorksheetColumns = append(append([]string(nil), BreakdownWorksheetColumns...), ColWeightedCost)

// BreakdownColumns returns the columns a breakdown sheet must carry for the given marketplaces.
func BreakdownColumns(marketplaces []string) []string {
	cols := []string{ColProductGroup, ColTotalCost, ColBreakdownMSRP}
	for _, m := range marketplaces {
		cols = append(cols, StartDiscountColumn(m), SalesShareColumn(m))
	}
	return append(cols, ColConfidence, ColSellThrough, ColErrors)
}

// BreakdownProjectionColumns are written to the breakdown by the net-sales stage.
var BreakdownProjectionColumns = []string{
	ColWeightedCost, ColProjectedSales, ColProjectedFees, ColProjectedNetSales,
	ColHoldingCost, ColProjectedProfit, ColMonthlyROI, ColNewDiscount,
}

// Row is one line of a sheet keyed by column header. Identity is positional.
type Row map[string]string

// Get returns the trimmed value of col.
func (r Row) Get(col string) string {
	return strings.TrimSpace(r[col])
}

func (r Row) Set(col, value string) {
	r[col] = value
}

// SetFloat stores v using the shortest representation that round-trips.
func (r Row) SetFloat(col string, v float64) {
	r[col] = strconv.FormatFloat(v, 'f', -1, 64)
}

func (r Row) SetDecimal(col string, v decimal.Decimal) {
	r[col] = v.String()
}

// Float parses col as a float.
func (r Row) Float(col string) (float64, error) {
	v := r.Get(col)
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%s: %q is not a number", col, v)
	}
	return f, nil
}

// Decimal parses col as an exact decimal.
func (r Row) Decimal(col string) (decimal.Decimal, error) {
	v := r.Get(col)
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %q is not a number", col, v)
	}
	return d, nil
}

// Int parses col as a whole number. Integral floats such as "3.0" are accepted.
func (r Row) Int(col string) (int, error) {
	v := r.Get(col)
	if n, err := strconv.Atoi(v); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, fmt.Errorf("%s: %q is not a whole number", col, v)
	}
	return int(f), nil
}

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// SetErrors overwrites the Errors column with msgs joined the way users read them.
func (r Row) SetErrors(msgs []string) bool {
	r[ColErrors] = strings.Join(msgs, ". ")
	return len(msgs) > 0
}
