package skus

import (
	"context"
	"fmt"

	"github.com/andresuchdata/po-tool/internal/domain"
	"github.com/andresuchdata/po-tool/internal/refdata"
)

const (
	atsNumberWidth    = 8
	nonATSNumberWidth = 4
)

// NewProduct is an assigned SKU that does not exist downstream yet.
type NewProduct struct {
	SKU string
	Row domain.Row
}

// collector dedupes new products by child SKU, keeping the first row seen.
type collector struct {
	seen     map[string]bool
	products []NewProduct
}

func (c *collector) add(sku string, row domain.Row) {
	if c.seen == nil {
		c.seen = make(map[string]bool)
	}
	if c.seen[sku] {
		return
	}
	c.seen[sku] = true
	c.products = append(c.products, NewProduct{SKU: sku, Row: row})
}

// assignATS gives every distinct MPN without a SKU a fresh parent from the
// ATS counter. Sizes of the same MPN share the parent; MPNs are compared
// exactly as written.
func assignATS(ctx context.Context, rows []domain.Row, brandCode string, next func(context.Context) (int64, error)) ([]NewProduct, error) {
	parents := make(map[string]string)
	var out collector
	for _, row := range rows {
		if row.Get(domain.ColProductID) != "" {
			continue
		}
		mpn := row.Get(domain.ColMPN)
		parent, ok := parents[mpn]
		if !ok {
			n, err := next(ctx)
			if err != nil {
				return nil, fmt.Errorf("next ATS SKU number: %w", err)
			}
			parent = brandCode + "-" + domain.PadSKUNumber(n, atsNumberWidth)
			parents[mpn] = parent
		}
		sku := domain.ChildSKU(parent, row.Get(domain.ColSize))
		row.Set(domain.ColProductID, sku)
		out.add(sku, row)
	}
	return out.products, nil
}

// sequencer finds or mints non-ATS SKUs. It works on copies of the alias
// lists so SKUs minted earlier in the batch are seen by later rows.
type sequencer struct {
	brandCodes map[string]string
	itemTypes  map[string]refdata.ItemType
	byMPN      map[string][]string
	byType     map[string][]string
}

func newSequencer(refs references, aliases refdata.Aliases) *sequencer {
	return &sequencer{
		brandCodes: refs.brandCodes,
		itemTypes:  refs.itemTypes,
		byMPN:      copyLists(aliases.BrandMPN),
		byType:     copyLists(aliases.BrandType),
	}
}

func copyLists(in map[string][]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for k, v := range in {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// assign returns the SKU of row and whether it already exists downstream.
func (s *sequencer) assign(row domain.Row) (string, bool) {
	code := s.brandCodes[row.Get(domain.ColBrand)]
	size := row.Get(domain.ColSize)
	key := code + domain.NormalizeMPN(row.Get(domain.ColMPN))

	if known := s.byMPN[key]; len(known) > 0 {
		sku := domain.ChildSKU(domain.ParentSKU(known[0]), size)
		for _, k := range known {
			if k == sku {
				return sku, true
			}
		}
		s.byMPN[key] = append(known, sku)
		return sku, false
	}

	brandType := code + "-" + s.itemTypes[row.Get(domain.ColItemType)].Acronym
	next := 1
	for _, k := range s.byType[brandType] {
		if n, err := domain.SKUNumber(k); err == nil && n >= next {
			next = n + 1
		}
	}
	sku := domain.ChildSKU(brandType+"-"+domain.PadSKUNumber(int64(next), nonATSNumberWidth), size)
	s.byType[brandType] = append(s.byType[brandType], sku)
	s.byMPN[key] = append(s.byMPN[key], sku)
	return sku, false
}

// assignNonATS looks up or mints a SKU for every row without one. Rows that
// map onto an existing SKU are filled in but not returned as new.
func assignNonATS(rows []domain.Row, refs references, aliases refdata.Aliases) []NewProduct {
	seq := newSequencer(refs, aliases)
	var out collector
	for _, row := range rows {
		if row.Get(domain.ColProductID) != "" {
			continue
		}
		sku, exists := seq.assign(row)
		row.Set(domain.ColProductID, sku)
		if !exists {
			out.add(sku, row)
		}
	}
	return out.products
}
