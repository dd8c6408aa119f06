package netsales

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/andresuchdata/po-tool/internal/domain"
	"github.com/andresuchdata/po-tool/internal/pipeline"
	"github.com/andresuchdata/po-tool/internal/repository"
	"github.com/andresuchdata/po-tool/internal/sheets"
	"github.com/shopspring/decimal"
)

// Stage validates a breakdown and projects its sales, costs and returns.
type Stage struct {
	sheets   sheets.Store
	settings repository.SettingsRepository
}

func NewStage(store sheets.Store, settings repository.SettingsRepository) *Stage {
	return &Stage{sheets: store, settings: settings}
}

func (s *Stage) Name() domain.Stage { return domain.StageNetSales }

func (s *Stage) Run(ctx context.Context, run *pipeline.Run) (domain.Status, error) {
	cfg, err := s.settings.BreakdownSettings(ctx)
	if err != nil {
		return "", fmt.Errorf("load breakdown settings: %w", err)
	}
	worksheetID, err := run.Worksheet()
	if err != nil {
		return "", err
	}
	wsRef := sheets.Ref{SpreadsheetID: worksheetID, Sheet: sheets.TabWorksheet}
	bdRef := sheets.Ref{SpreadsheetID: worksheetID, Sheet: sheets.TabBreakdown}

	run.Log(ctx, "Validating data for Net Sales.")

	run.Log(ctx, "Retrieving totals from worksheet sheet.")
	ws, ok, err := s.read(ctx, run, wsRef, domain.NetSalesWorksheetColumns, "Worksheet")
	if err != nil || !ok {
		return domain.StatusNetSalesErrors, err
	}
	totals, err := WorksheetTotals(ws.Rows)
	if err != nil {
		return "", fmt.Errorf("retrieve worksheet totals: %w", err)
	}

	bd, ok, err := s.read(ctx, run, bdRef, domain.BreakdownColumns(cfg.MarketplaceGroups), "Breakdown")
	if err != nil || !ok {
		return domain.StatusNetSalesErrors, err
	}

	run.Log(ctx, "Validating all breakdown rows.")
	lines := make([]line, 0, len(bd.Rows))
	hasErrors := false
	for _, row := range bd.Rows {
		l, msgs := validateRow(row, totals, cfg)
		if row.SetErrors(msgs) {
			hasErrors = true
		}
		lines = append(lines, l)
	}
	if hasErrors {
		if err := s.sheets.WriteRows(ctx, bdRef, bd.Rows); err != nil {
			return "", fmt.Errorf("post breakdown errors: %w", err)
		}
		run.Error(ctx, "Errors found and posted to worksheet.")
		return domain.StatusNetSalesErrors, nil
	}
	run.Log(ctx, "Breakdown content validated")

	run.Log(ctx, "Adding Gross, Net, and Selling Fees.")
	ratio, err := feeRatio(lines, run.PO.AdditionalFees)
	if err != nil {
		return "", err
	}
	weighted := applyWeightedCost(ws.Rows, ratio)

	for _, l := range lines {
		wc := weighted[l.group]
		msrp := l.msrp.InexactFloat64()
		sales := ProjectSales(msrp, l.confidence, l.markets)
		ret := ProjectReturns(sales.Net, wc.InexactFloat64(), msrp, l.turnoverDays, cfg.MonthlyOpportunityCost)

		l.row.SetDecimal(domain.ColWeightedCost, wc)
		setMoney(l.row, domain.ColProjectedSales, sales.Gross)
		setMoney(l.row, domain.ColProjectedFees, sales.Fees)
		setMoney(l.row, domain.ColProjectedNetSales, sales.Net)
		setMoney(l.row, domain.ColHoldingCost, ret.HoldingCost)
		setMoney(l.row, domain.ColProjectedProfit, ret.Profit)
		setRatio(l.row, domain.ColMonthlyROI, ret.MonthlyROI)
		setRatio(l.row, domain.ColNewDiscount, ret.NewDiscount)
	}

	if err := s.sheets.WriteRows(ctx, bdRef, bd.Rows); err != nil {
		return "", fmt.Errorf("post net sales: %w", err)
	}
	if err := s.sheets.WriteRows(ctx, wsRef, ws.Rows); err != nil {
		return "", fmt.Errorf("post weighted cost: %w", err)
	}
	run.Log(ctx, "Posted Net Sales.")
	return domain.StatusNetSalesCalculated, nil
}

// read loads a tab, reporting an empty or malformed sheet to the purchase order log.
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

// feeRatio spreads the purchase order's additional fees over product cost.
func feeRatio(lines []line, fees domain.AdditionalFees) (decimal.Decimal, error) {
	products := decimal.Zero
	for _, l := range lines {
		products = products.Add(l.cost)
	}
	if !products.IsPositive() {
		return decimal.Zero, fmt.Errorf("breakdown total cost must be greater than zero")
	}
	total := products.Add(decimal.NewFromFloat(fees.Total()))
	return total.Div(products), nil
}

// applyWeightedCost returns each group's fee-weighted cost, the group's cost
// times ratio rounded to the cent, and writes every worksheet row's share of
// it. Row shares are rounded to the cent and the rounding residual goes to the
// group's costliest row, so the rows of a group sum to the group value.
func applyWeightedCost(rows []domain.Row, ratio decimal.Decimal) map[string]decimal.Decimal {
	type group struct {
		cost    decimal.Decimal
		shares  decimal.Decimal
		largest domain.Row
		maxCost decimal.Decimal
	}
	groups := make(map[string]*group)
	for _, row := range rows {
		// Totals were validated against the breakdown, so these parse.
		cost, _ := row.Decimal(domain.ColUnitCost)
		qty, _ := row.Decimal(domain.ColQty)
		total := cost.Mul(qty)
		wc := total.Mul(ratio).Round(2)
		row.SetDecimal(domain.ColWeightedCost, wc)

		g := groups[row.Get(domain.ColGroup)]
		if g == nil {
			g = &group{}
			groups[row.Get(domain.ColGroup)] = g
		}
		g.cost = g.cost.Add(total)
		g.shares = g.shares.Add(wc)
		if g.largest == nil || total.GreaterThan(g.maxCost) {
			g.largest, g.maxCost = row, total
		}
	}

	out := make(map[string]decimal.Decimal, len(groups))
	for name, g := range groups {
		wc := g.cost.Mul(ratio).Round(2)
		if residual := wc.Sub(g.shares); !residual.IsZero() {
			current, _ := g.largest.Decimal(domain.ColWeightedCost)
			g.largest.SetDecimal(domain.ColWeightedCost, current.Add(residual))
		}
		out[name] = wc
	}
	return out
}

func setMoney(row domain.Row, col string, v float64) {
	row.SetDecimal(col, decimal.NewFromFloat(v).Round(2))
}

func setRatio(row domain.Row, col string, v float64) {
	row.SetDecimal(col, decimal.NewFromFloat(v).Round(4))
}
