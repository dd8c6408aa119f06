package domain

import (
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Settings aggregate names.
const (
	SettingsBreakdownNetSales = "breakdown_net_sales"
	SettingsCatalog           = "catalog"
)

// BreakdownSettings drives the breakdown and net-sales stages.
type BreakdownSettings struct {
	ConfidenceDiscounts    map[string]float64 `json:"confidence_discounts" validate:"required,min=1,dive,gte=0,lte=1"`
	ConfidenceOptions      []string           `json:"confidence_options" validate:"dive,required"`
	MarketplaceGroups      []string           `json:"marketplace_groups" validate:"required,min=1,unique,dive,required"`
	MonthlyOpportunityCost float64            `json:"monthly_opportunity_cost" validate:"gte=0"`
	NetSalesPercentages    map[string]float64 `json:"net_sales_percentages" validate:"required,dive,gte=0,lte=1"`
	SalesHistoryMonths     int                `json:"sales_history_months" validate:"gte=1,lte=24"`
	SellThroughOptions     []string           `json:"sell_through_options" validate:"required,min=1,dive,numeric"`
}

// Validate checks field constraints and cross-field consistency.
func (s *BreakdownSettings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid breakdown settings: %w", err)
	}
	for _, m := range s.MarketplaceGroups {
		if _, ok := s.NetSalesPercentages[m]; !ok {
			return fmt.Errorf("invalid breakdown settings: no net sales percentage for marketplace group %q", m)
		}
	}
	for _, opt := range s.SellThroughOptions {
		if days, err := strconv.Atoi(opt); err != nil || days <= 0 {
			return fmt.Errorf("invalid breakdown settings: sell-through option %q must be a positive number of days", opt)
		}
	}
	return nil
}

// HasSellThrough reports whether v is one of the configured sell-through options.
func (s *BreakdownSettings) HasSellThrough(v string) bool {
	for _, opt := range s.SellThroughOptions {
		if opt == v {
			return true
		}
	}
	return false
}

// BreakdownSettingsPatch is a partial update. Nil fields are kept.
type BreakdownSettingsPatch struct {
	ConfidenceDiscounts    map[string]float64 `json:"confidence_discounts,omitempty"`
	ConfidenceOptions      []string           `json:"confidence_options,omitempty"`
	MarketplaceGroups      []string           `json:"marketplace_groups,omitempty"`
	MonthlyOpportunityCost *float64           `json:"monthly_opportunity_cost,omitempty"`
	NetSalesPercentages    map[string]float64 `json:"net_sales_percentages,omitempty"`
	SalesHistoryMonths     *int               `json:"sales_history_months,omitempty"`
	SellThroughOptions     []string           `json:"sell_through_options,omitempty"`
}

// Apply returns a copy of s with the patch applied.
func (p BreakdownSettingsPatch) Apply(s BreakdownSettings) BreakdownSettings {
	if p.ConfidenceDiscounts != nil {
		s.ConfidenceDiscounts = p.ConfidenceDiscounts
	}
	if p.ConfidenceOptions != nil {
		s.ConfidenceOptions = p.ConfidenceOptions
	}
	if p.MarketplaceGroups != nil {
		s.MarketplaceGroups = p.MarketplaceGroups
	}
	if p.MonthlyOpportunityCost != nil {
		s.MonthlyOpportunityCost = *p.MonthlyOpportunityCost
	}
	if p.NetSalesPercentages != nil {
		s.NetSalesPercentages = p.NetSalesPercentages
	}
	if p.SalesHistoryMonths != nil {
		s.SalesHistoryMonths = *p.SalesHistoryMonths
	}
	if p.SellThroughOptions != nil {
		s.SellThroughOptions = p.SellThroughOptions
	}
	return s
}

// DefaultBreakdownSettings seeds a fresh settings store.
func DefaultBreakdownSettings() BreakdownSettings {
	return BreakdownSettings{
		ConfidenceDiscounts: map[string]float64{"Low": 0.2, "Medium": 0.1, "Sure": 0},
		ConfidenceOptions:   []string{"Low", "Medium", "Sure"},
		MarketplaceGroups:   []string{"Ecom", "Retail", "Wholesale", "Scarce"},
		NetSalesPercentages: map[string]float64{
			"Ecom":      0.8,
			"Retail":    0.9,
			"Wholesale": 0.95,
			"Scarce":    0.85,
		},
		MonthlyOpportunityCost: 2,
		SalesHistoryMonths:     12,
		SellThroughOptions:     []string{"30", "60", "90", "120", "180"},
	}
}

// CatalogSettings drive SKU creation and catalog payloads.
type CatalogSettings struct {
	ATSBrandCode string  `json:"ats_brand_code" validate:"required,alphanum"`
	EbayDiscount float64 `json:"ebay_discount" validate:"gte=0,lt=1"`
}

func (s *CatalogSettings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid catalog settings: %w", err)
	}
	return nil
}

func DefaultCatalogSettings() CatalogSettings {
	return CatalogSettings{ATSBrandCode: "ATS", EbayDiscount: 0.1}
}
