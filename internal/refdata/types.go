package refdata

import (
	"encoding/json"
	"sort"

	"github.com/andresuchdata/po-tool/internal/domain"
)

// ItemType is the reporting metadata of one product type.
type ItemType struct {
	Gender   string `json:"gender"`
	Category string `json:"category"`
	Acronym  string `json:"acronym,omitempty"`
}

// SizeSet is the set of sizes accepted on non-ATS worksheets.
type SizeSet map[string]struct{}

func NewSizeSet(sizes ...string) SizeSet {
	s := make(SizeSet, len(sizes))
	for _, size := range sizes {
		s[size] = struct{}{}
	}
	return s
}

func (s SizeSet) Has(size string) bool {
	_, ok := s[size]
	return ok
}

func (s SizeSet) MarshalJSON() ([]byte, error) {
	out := make([]string, 0, len(s))
	for size := range s {
		out = append(out, size)
	}
	sort.Strings(out)
	return json.Marshal(out)
}

func (s *SizeSet) UnmarshalJSON(data []byte) error {
	var sizes []string
	if err := json.Unmarshal(data, &sizes); err != nil {
		return err
	}
	*s = NewSizeSet(sizes...)
	return nil
}

// Aliases index the SKUs that already exist in the catalog.
type Aliases struct {
	// BrandMPN maps brand code + normalized MPN to the SKUs created for it.
	BrandMPN map[string][]string `json:"brand_mpn"`
	// BrandType maps "BRD-TYP" to every SKU in that sequence.
	BrandType map[string][]string `json:"brand_type"`
}

// SalesRow is one historical sales line enriched for the breakdown.
type SalesRow struct {
	BrandGenderCategory string     `json:"brand_gender_category"`
	Group               string     `json:"group"`
	Sales               float64    `json:"sales"`
	MSRP                float64    `json:"msrp"`
	Values              domain.Row `json:"values"`
}

// SalesReport is the relevant sales history window.
type SalesReport struct {
	Headers []string   `json:"headers"`
	Rows    []SalesRow `json:"rows"`
}
