package breakdown

import (
	"context"
	"fmt"
	"sort"

	"github.com/andresuchdata/po-tool/internal/domain"
	"github.com/andresuchdata/po-tool/internal/pipeline"
	"github.com/andresuchdata/po-tool/internal/pipeline/worksheet"
	"github.com/andresuchdata/po-tool/internal/refdata"
	"github.com/andresuchdata/po-tool/internal/repository"
	"github.com/andresuchdata/po-tool/internal/sheets"
	"github.com/shopspring/decimal"
)

// Stage builds the per product group breakdown of a validated worksheet.
type Stage struct {
	sheets    sheets.Store
	settings  repository.SettingsRepository
	validator *worksheet.Validator
	sales     refdata.Reader[refdata.SalesReport]
}

func NewStage(store sheets.Store, settings repository.SettingsRepository, validator *worksheet.Validator, sales refdata.Reader[refdata.SalesReport]) *Stage {
	return &Stage{sheets: store, settings: settings, validator: validator, sales: sales}
}

func (s *Stage) Name() domain.Stage { return domain.StageBreakdown }

func (s *Stage) Run(ctx context.Context, run *pipeline.Run) (domain.Status, error) {
	cfg, err := s.settings.BreakdownSettings(ctx)
	if err != nil {
		return "", fmt.Errorf("load breakdown settings: %w", err)
	}

	table, ok, err := s.validator.Validate(ctx, run)
	if err != nil {
		return "", err
	}
	if !ok {
		return domain.StatusBreakdownErrors, nil
	}

	run.Log(ctx, "Creating breakdown.")

	report, err := s.sales.Get()
	if err != nil {
		return "", err
	}

	groups, keys, err := deriveGroups(table.Rows)
	if err != nil {
		return "", err
	}

	stats, relevant := collectSales(report, keys)
	rows := buildRows(groups, stats, cfg.MarketplaceGroups)

	id := table.Ref.SpreadsheetID
	if err := s.sheets.WriteRows(ctx, sheets.Ref{SpreadsheetID: id, Sheet: sheets.TabBreakdown}, rows); err != nil {
		return "", fmt.Errorf("post breakdown: %w", err)
	}
	if err := s.sheets.WriteRows(ctx, sheets.Ref{SpreadsheetID: id, Sheet: sheets.TabRelevantSales}, relevant); err != nil {
		return "", fmt.Errorf("post relevant sales: %w", err)
	}
	if err := s.sheets.WriteRows(ctx, table.Ref, table.Rows); err != nil {
		return "", fmt.Errorf("post worksheet: %w", err)
	}

	run.Logger.Info().Int("groups", len(rows)).Int("relevant_sales", len(relevant)).Msg("breakdown posted")
	run.Log(ctx, fmt.Sprintf("Breakdown created with %d product groups.", len(rows)))
	return domain.StatusBreakdownCreated, nil
}

// group is one breakdown line before marketplace estimates are attached.
type group struct {
	name            string
	brandGenderType string
	totalCost       decimal.Decimal
	totalMSRP       decimal.Decimal
}

// deriveGroups fills in the derived worksheet columns and sums cost and MSRP
// per group. It also returns the set of brand/gender/type keys present.
func deriveGroups(rows []domain.Row) (map[string]*group, map[string]struct{}, error) {
	groups := make(map[string]*group)
	keys := make(map[string]struct{})

	for i, row := range rows {
		unitCost, err := row.Decimal(domain.ColUnitCost)
		if err != nil {
			return nil, nil, fmt.Errorf("worksheet row %d: %w", i+2, err)
		}
		retail, err := row.Decimal(domain.ColRetail)
		if err != nil {
			return nil, nil, fmt.Errorf("worksheet row %d: %w", i+2, err)
		}
		qty, err := row.Decimal(domain.ColQty)
		if err != nil {
			return nil, nil, fmt.Errorf("worksheet row %d: %w", i+2, err)
		}

		bgt := refdata.BrandGenderCategory(row.Get(domain.ColBrand), row.Get(domain.ColGender), row.Get(domain.ColCategory))
		name := GroupName(row)
		totalCost := unitCost.Mul(qty)
		totalMSRP := retail.Mul(qty)

		row.Set(domain.ColBrandGenderType, bgt)
		row.Set(domain.ColGroup, name)
		row.SetDecimal(domain.ColTotalCost, totalCost)
		row.SetDecimal(domain.ColTotalMsrp, totalMSRP)
		keys[bgt] = struct{}{}

		g, ok := groups[name]
		if !ok {
			g = &group{name: name, brandGenderType: bgt}
			groups[name] = g
		}
		g.totalCost = g.totalCost.Add(totalCost)
		g.totalMSRP = g.totalMSRP.Add(totalMSRP)
	}
	return groups, keys, nil
}

// GroupName is the brand + item type + grade key rows are aggregated under.
func GroupName(row domain.Row) string {
	return row.Get(domain.ColBrand) + " " + row.Get(domain.ColItemType) + " " + row.Get(domain.ColGrade)
}

// collectSales accumulates sales per brand/gender/type and marketplace group,
// and returns the matching history rows for the audit sheet.
func collectSales(report refdata.SalesReport, keys map[string]struct{}) (map[string]map[string]MarketStats, []domain.Row) {
	stats := make(map[string]map[string]MarketStats)
	var relevant []domain.Row
	for _, sr := range report.Rows {
		if _, ok := keys[sr.BrandGenderCategory]; !ok {
			continue
		}
		relevant = append(relevant, sr.Values)

		byMarket, ok := stats[sr.BrandGenderCategory]
		if !ok {
			byMarket = make(map[string]MarketStats)
			stats[sr.BrandGenderCategory] = byMarket
		}
		m := byMarket[sr.Group]
		m.Sales = m.Sales.Add(decimal.NewFromFloat(sr.Sales))
		m.MSRP = m.MSRP.Add(decimal.NewFromFloat(sr.MSRP))
		byMarket[sr.Group] = m
	}
	return stats, relevant
}

// buildRows lays out one breakdown row per group, sorted by group name.
func buildRows(groups map[string]*group, stats map[string]map[string]MarketStats, marketplaces []string) []domain.Row {
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([]domain.Row, 0, len(names))
	for _, name := range names {
		g := groups[name]
		row := domain.Row{
			domain.ColProductGroup:  g.name,
			domain.ColTotalCost:     g.totalCost.String(),
			domain.ColBreakdownMSRP: g.totalMSRP.String(),
			domain.ColConfidence:    "",
			domain.ColSellThrough:   "",
			domain.ColErrors:        "",
		}
		for m, est := range Estimates(marketplaces, stats[g.brandGenderType]) {
			row.SetDecimal(domain.StartDiscountColumn(m), est.Discount)
			row.SetDecimal(domain.SalesShareColumn(m), est.Share)
		}
		rows = append(rows, row)
	}
	return rows
}
