package skus

import (
	"fmt"
	"strings"

	"github.com/andresuchdata/po-tool/internal/domain"
	"github.com/andresuchdata/po-tool/internal/lightspeed"
	"github.com/andresuchdata/po-tool/internal/sellercloud"
	"github.com/shopspring/decimal"
)

const upcBodyWidth = 11

// AddCheckDigit appends the mod-10 check digit to a string of digits.
// Digits are weighted 3 and 1 alternately starting from the rightmost.
func AddCheckDigit(upc string) (string, error) {
	sum := 0
	for i := len(upc) - 1; i >= 0; i-- {
		c := upc[i]
		if c < '0' || c > '9' {
			return "", fmt.Errorf("upc %q is not numeric", upc)
		}
		d := int(c - '0')
		if (len(upc)-i)%2 == 1 {
			d *= 3
		}
		sum += d
	}
	check := (sum+9)/10*10 - sum
	return fmt.Sprintf("%s%d", upc, check), nil
}

// UPCFromSystemID derives a UPC-A code from a POS system ID.
func UPCFromSystemID(systemID string) (string, error) {
	if len(systemID) > upcBodyWidth {
		return "", fmt.Errorf("system id %q is too long for a upc", systemID)
	}
	return AddCheckDigit(strings.Repeat("0", upcBodyWidth-len(systemID)) + systemID)
}

// BuyItNow discounts the list price by the configured ebay discount.
func BuyItNow(listPrice decimal.Decimal, ebayDiscount float64) decimal.Decimal {
	return listPrice.Mul(decimal.NewFromInt(1).Sub(decimal.NewFromFloat(ebayDiscount))).Round(2)
}

// productDescription is the display name shared by the POS and the catalog.
func productDescription(p NewProduct) string {
	parts := make([]string, 0, 6)
	for _, v := range []string{
		p.SKU,
		p.Row.Get(domain.ColMPN),
		p.Row.Get(domain.ColColor),
		p.Row.Get(domain.ColBrand),
		p.Row.Get(domain.ColDescription),
		p.Row.Get(domain.ColSize),
	} {
		if v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " ")
}

func posProducts(products []NewProduct) []lightspeed.ImportProduct {
	out := make([]lightspeed.ImportProduct, 0, len(products))
	for _, p := range products {
		out = append(out, lightspeed.ImportProduct{
			Description:     productDescription(p),
			CustomSKU:       p.SKU,
			ManufacturerSKU: p.Row.Get(domain.ColMPN),
			Brand:           p.Row.Get(domain.ColBrand),
			DefaultCost:     p.Row.Get(domain.ColUnitCost),
			DefaultPrice:    p.Row.Get(domain.ColRetail),
			MSRP:            p.Row.Get(domain.ColRetail),
			Category:        p.Row.Get(domain.ColItemType),
		})
	}
	return out
}

// catalogProducts builds the catalog import lines. Every product must have a
// POS system ID.
func catalogProducts(products []NewProduct, systemIDs map[string]string, ats bool, cfg domain.CatalogSettings) ([]sellercloud.CreateProduct, error) {
	out := make([]sellercloud.CreateProduct, 0, len(products))
	for _, p := range products {
		systemID, ok := systemIDs[p.SKU]
		if !ok {
			return nil, fmt.Errorf("no POS system id returned for %s", p.SKU)
		}
		upc, err := UPCFromSystemID(systemID)
		if err != nil {
			return nil, err
		}
		retail, err := p.Row.Decimal(domain.ColRetail)
		if err != nil {
			return nil, err
		}
		price := retail.StringFixed(2)
		out = append(out, sellercloud.CreateProduct{
			ProductID:            p.SKU,
			ProductName:          productDescription(p),
			ManufacturerSKU:      p.Row.Get(domain.ColMPN),
			BrandName:            p.Row.Get(domain.ColBrand),
			ListPrice:            price,
			WebsitePrice:         price,
			SitePrice:            price,
			BuyItNowPrice:        BuyItNow(retail, cfg.EbayDiscount).StringFixed(2),
			ProductTypeName:      p.Row.Get(domain.ColItemType),
			LightspeedPOSEnabled: "TRUE",
			LightspeedSystemID:   systemID,
			UPC:                  upc,
			AssignToATS:          ats,
		})
	}
	return out, nil
}
