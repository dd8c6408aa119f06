package finalize

import (
	"fmt"

	"github.com/andresuchdata/po-tool/internal/domain"
	"github.com/andresuchdata/po-tool/internal/sellercloud"
	"github.com/shopspring/decimal"
)

// line is one SKU of the purchase order.
type line struct {
	sku       string
	qty       int
	unitPrice float64
}

// orderLines merges worksheet rows by SKU in sheet order. Rows sharing a SKU
// add their quantities and are priced at the quantity-weighted unit cost.
func orderLines(rows []domain.Row) ([]line, error) {
	type total struct {
		qty  int
		cost decimal.Decimal
	}
	var order []string
	totals := make(map[string]*total)
	for i, row := range rows {
		sku := row.Get(domain.ColProductID)
		if sku == "" {
			return nil, fmt.Errorf("worksheet row %d has no SKU", i+2)
		}
		qty, err := row.Int(domain.ColQty)
		if err != nil {
			return nil, fmt.Errorf("worksheet row %d: %w", i+2, err)
		}
		cost, err := row.Decimal(domain.ColUnitCost)
		if err != nil {
			return nil, fmt.Errorf("worksheet row %d: %w", i+2, err)
		}
		t, ok := totals[sku]
		if !ok {
			t = &total{}
			totals[sku] = t
			order = append(order, sku)
		}
		t.qty += qty
		t.cost = t.cost.Add(cost.Mul(decimal.NewFromInt(int64(qty))))
	}

	out := make([]line, 0, len(order))
	for _, sku := range order {
		t := totals[sku]
		l := line{sku: sku, qty: t.qty}
		if t.qty > 0 {
			l.unitPrice = t.cost.Div(decimal.NewFromInt(int64(t.qty))).Round(2).InexactFloat64()
		}
		out = append(out, l)
	}
	return out, nil
}

func poProducts(lines []line) []sellercloud.POProduct {
	out := make([]sellercloud.POProduct, len(lines))
	for i, l := range lines {
		out[i] = sellercloud.POProduct{ProductID: l.sku, QtyUnitsOrdered: l.qty, UnitPrice: l.unitPrice}
	}
	return out
}
