package skus

import (
	"github.com/andresuchdata/po-tool/internal/domain"
	"github.com/andresuchdata/po-tool/internal/refdata"
	"github.com/shopspring/decimal"
)

// references are the cached lookups new SKUs are checked against.
type references struct {
	brandCodes map[string]string
	itemTypes  map[string]refdata.ItemType
	sizes      refdata.SizeSet
}

// checker validates worksheet rows before SKUs are assigned.
type checker struct {
	ats  bool
	refs references

	colors       map[string]map[string]struct{}
	descriptions map[string]map[string]struct{}
	types        map[string]map[string]struct{}
}

func newChecker(rows []domain.Row, ats bool, refs references) *checker {
	return &checker{
		ats:          ats,
		refs:         refs,
		colors:       distinctPerMPN(rows, domain.ColColor),
		descriptions: distinctPerMPN(rows, domain.ColDescription),
		types:        distinctPerMPN(rows, domain.ColItemType),
	}
}

// productKey identifies a product by brand and MPN; brands may reuse MPNs.
func productKey(row domain.Row) string {
	return row.Get(domain.ColBrand) + "\x00" + row.Get(domain.ColMPN)
}

// distinctPerMPN collects the distinct non-empty values of col for every
// brand and MPN pair.
func distinctPerMPN(rows []domain.Row, col string) map[string]map[string]struct{} {
	out := make(map[string]map[string]struct{})
	for _, row := range rows {
		v := row.Get(col)
		if row.Get(domain.ColMPN) == "" || v == "" {
			continue
		}
		key := productKey(row)
		if out[key] == nil {
			out[key] = make(map[string]struct{})
		}
		out[key][v] = struct{}{}
	}
	return out
}

func (c *checker) conflicting(set map[string]map[string]struct{}, row domain.Row) bool {
	return len(set[productKey(row)]) > 1
}

// check returns the error messages of one row.
func (c *checker) check(row domain.Row) []string {
	var msgs []string
	if row.Get(domain.ColProductID) == "" {
		msgs = append(msgs, c.checkNew(row)...)
	}

	msgs = append(msgs, positiveNumber(row, domain.ColUnitCost)...)
	if row.Get(domain.ColQty) == "" {
		msgs = append(msgs, "Missing Qty")
	} else if n, err := row.Int(domain.ColQty); err != nil || n <= 0 {
		msgs = append(msgs, "Qty is not a valid number")
	}

	if !c.ats {
		msgs = append(msgs, positiveNumber(row, domain.ColWeightedCost)...)
		if row.Get(domain.ColGroup) == "" {
			msgs = append(msgs, "Missing Group")
		}
	}
	return msgs
}

// checkNew validates the product fields of a row that still needs a SKU.
func (c *checker) checkNew(row domain.Row) []string {
	var msgs []string
	mpn := row.Get(domain.ColMPN)

	brand := row.Get(domain.ColBrand)
	switch {
	case brand == "":
		msgs = append(msgs, "Missing Brand")
	case !c.ats && c.refs.brandCodes[brand] == "":
		msgs = append(msgs, "Invalid Brand")
	}

	if row.Get(domain.ColDescription) == "" {
		msgs = append(msgs, "Missing Description")
	} else if c.conflicting(c.descriptions, row) {
		msgs = append(msgs, "This MPN has more than one description assigned in this sheet")
	}

	itemType := row.Get(domain.ColItemType)
	switch {
	case itemType == "":
		msgs = append(msgs, "Missing Item Type")
	case !c.ats && c.refs.itemTypes[itemType].Acronym == "":
		msgs = append(msgs, "Invalid Item Type")
	case c.conflicting(c.types, row):
		msgs = append(msgs, "This MPN has more than one item type assigned in this sheet")
	}

	if row.Get(domain.ColColor) == "" {
		msgs = append(msgs, "Missing Color")
	} else if c.conflicting(c.colors, row) {
		msgs = append(msgs, "This MPN has more than one color assigned in this sheet")
	}

	size := row.Get(domain.ColSize)
	switch {
	case size == "":
		msgs = append(msgs, "Missing Size")
	case !c.ats && !c.refs.sizes.Has(size):
		msgs = append(msgs, "Invalid Size")
	}

	if mpn == "" {
		msgs = append(msgs, "Missing MPN")
	}
	return append(msgs, positiveNumber(row, domain.ColRetail)...)
}

func positiveNumber(row domain.Row, col string) []string {
	if row.Get(col) == "" {
		return []string{"Missing " + col}
	}
	if d, err := row.Decimal(col); err != nil || !d.IsPositive() {
		return []string{col + " is not a valid number"}
	}
	return nil
}

// groupTotals are the worksheet sums reconciled against one breakdown row.
type groupTotals struct {
	cost, msrp, weighted decimal.Decimal
}

// reconcile compares the worksheet's per-group totals with the breakdown and
// returns the messages for every worksheet row of a group that disagrees.
// Rows whose numbers failed validation are left out of the sums.
func reconcile(rows []domain.Row, breakdown []domain.Row) map[string][]string {
	sums := make(map[string]groupTotals)
	for _, row := range rows {
		cost, err1 := row.Decimal(domain.ColUnitCost)
		retail, err2 := row.Decimal(domain.ColRetail)
		qty, err3 := row.Decimal(domain.ColQty)
		wc, err4 := row.Decimal(domain.ColWeightedCost)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			continue
		}
		g := row.Get(domain.ColGroup)
		t := sums[g]
		t.cost = t.cost.Add(cost.Mul(qty))
		t.msrp = t.msrp.Add(retail.Mul(qty))
		t.weighted = t.weighted.Add(wc)
		sums[g] = t
	}

	out := make(map[string][]string)
	seen := make(map[string]bool)
	for _, b := range breakdown {
		g := b.Get(domain.ColProductGroup)
		if g == "" {
			continue
		}
		seen[g] = true
		got := sums[g]
		var msgs []string
		if d, err := b.Decimal(domain.ColTotalCost); err != nil || !d.Equal(got.cost) {
			msgs = append(msgs, "Total Cost does not match Breakdown")
		}
		if d, err := b.Decimal(domain.ColBreakdownMSRP); err != nil || !d.Equal(got.msrp) {
			msgs = append(msgs, "Total MSRP does not match Breakdown")
		}
		if d, err := b.Decimal(domain.ColWeightedCost); err != nil || !d.Equal(got.weighted) {
			msgs = append(msgs, "Weighted Cost does not match Breakdown")
		}
		if len(msgs) > 0 {
			out[g] = msgs
		}
	}
	for g := range sums {
		if g != "" && !seen[g] {
			out[g] = []string{"Group not found in Breakdown"}
		}
	}
	return out
}
