package netsales

import (
	"fmt"
	"strconv"

	"github.com/andresuchdata/po-tool/internal/domain"
	"github.com/shopspring/decimal"
)

// GroupTotals are the cost and MSRP sums of one worksheet group.
type GroupTotals struct {
	Cost decimal.Decimal
	MSRP decimal.Decimal
}

// WorksheetTotals sums unit cost × qty and retail × qty per group.
func WorksheetTotals(rows []domain.Row) (map[string]GroupTotals, error) {
	out := make(map[string]GroupTotals)
	for i, row := range rows {
		cost, err := row.Decimal(domain.ColUnitCost)
		if err != nil {
			return nil, fmt.Errorf("worksheet row %d: %w", i+2, err)
		}
		retail, err := row.Decimal(domain.ColRetail)
		if err != nil {
			return nil, fmt.Errorf("worksheet row %d: %w", i+2, err)
		}
		qty, err := row.Decimal(domain.ColQty)
		if err != nil {
			return nil, fmt.Errorf("worksheet row %d: %w", i+2, err)
		}
		g := row.Get(domain.ColGroup)
		t := out[g]
		t.Cost = t.Cost.Add(cost.Mul(qty))
		t.MSRP = t.MSRP.Add(retail.Mul(qty))
		out[g] = t
	}
	return out, nil
}

// line is a breakdown row that passed validation.
type line struct {
	row          domain.Row
	group        string
	cost         decimal.Decimal
	msrp         decimal.Decimal
	markets      []MarketInput
	confidence   float64
	turnoverDays int
}

// validateRow checks one breakdown row against the worksheet totals and the
// settings. It returns the parsed row and the error messages for it.
func validateRow(row domain.Row, totals map[string]GroupTotals, cfg *domain.BreakdownSettings) (line, []string) {
	var msgs []string
	l := line{row: row, group: row.Get(domain.ColProductGroup)}
	want, known := totals[l.group]

	if cost, err := row.Decimal(domain.ColTotalCost); err != nil {
		msgs = append(msgs, "Total Cost must be a number")
	} else if l.cost = cost; !known || !cost.Equal(want.Cost) {
		msgs = append(msgs, "Total Cost does not match values in Worksheet")
	}

	if msrp, err := row.Decimal(domain.ColBreakdownMSRP); err != nil {
		msgs = append(msgs, "Total MSRP must be a number")
	} else if l.msrp = msrp; !known || !msrp.Equal(want.MSRP) {
		msgs = append(msgs, "Total MSRP does not match values in Worksheet")
	}

	one := decimal.NewFromInt(1)
	totalShare := decimal.Zero
	for _, m := range cfg.MarketplaceGroups {
		discountCol := domain.StartDiscountColumn(m)
		shareCol := domain.SalesShareColumn(m)
		in := MarketInput{NetPercentage: cfg.NetSalesPercentages[m]}

		if d, err := row.Decimal(discountCol); err != nil {
			msgs = append(msgs, discountCol+" must be a number")
		} else if d.GreaterThan(one) {
			msgs = append(msgs, "Invalid "+discountCol)
		} else {
			in.Discount = d.InexactFloat64()
		}

		if s, err := row.Decimal(shareCol); err != nil {
			msgs = append(msgs, shareCol+" must be a number")
		} else if s.IsNegative() || s.GreaterThan(one) {
			msgs = append(msgs, "Invalid "+shareCol)
		} else {
			totalShare = totalShare.Add(s)
			in.Share = s.InexactFloat64()
		}
		l.markets = append(l.markets, in)
	}
	if !totalShare.Equal(one) {
		msgs = append(msgs, "'Sales %' does not add up to 100%")
	}

	if d, ok := cfg.ConfidenceDiscounts[row.Get(domain.ColConfidence)]; ok {
		l.confidence = d
	} else {
		msgs = append(msgs, "Invalid Confidence value")
	}

	sellThrough := row.Get(domain.ColSellThrough)
	if days, err := strconv.Atoi(sellThrough); err == nil && cfg.HasSellThrough(sellThrough) {
		l.turnoverDays = days
	} else {
		msgs = append(msgs, "Invalid Sell-through value")
	}
	return l, msgs
}
