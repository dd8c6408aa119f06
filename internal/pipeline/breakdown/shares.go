package breakdown

import (
	"github.com/shopspring/decimal"
)

// SharePlaces is the precision of market shares and discounts written to the breakdown.
const SharePlaces = 4

// MarketStats accumulates historical sales of one product group in one marketplace group.
type MarketStats struct {
	Sales decimal.Decimal
	MSRP  decimal.Decimal
}

// Estimate is the projected share of sales and starting discount of a marketplace group.
type Estimate struct {
	Share    decimal.Decimal
	Discount decimal.Decimal
}

// Estimates derives the share and discount of every marketplace. Shares always
// sum to exactly one: the rounding residual goes to the largest share. With no
// positive sales every marketplace gets 1/N and no discount.
func Estimates(marketplaces []string, stats map[string]MarketStats) map[string]Estimate {
	out := make(map[string]Estimate, len(marketplaces))
	if len(marketplaces) == 0 {
		return out
	}

	total := decimal.Zero
	for _, m := range marketplaces {
		if s := stats[m].Sales; s.IsPositive() {
			total = total.Add(s)
		}
	}

	one := decimal.NewFromInt(1)
	sum := decimal.Zero
	maxIdx := 0
	shares := make([]decimal.Decimal, len(marketplaces))
	for i, m := range marketplaces {
		var share decimal.Decimal
		if total.IsZero() {
			share = one.DivRound(decimal.NewFromInt(int64(len(marketplaces))), SharePlaces)
		} else if s := stats[m].Sales; s.IsPositive() {
			share = s.DivRound(total, SharePlaces)
		}
		shares[i] = share
		sum = sum.Add(share)
		if share.GreaterThan(shares[maxIdx]) {
			maxIdx = i
		}
	}
	shares[maxIdx] = shares[maxIdx].Add(one.Sub(sum))

	for i, m := range marketplaces {
		out[m] = Estimate{Share: shares[i], Discount: discount(stats[m])}
	}
	return out
}

// discount is 1 - sales/msrp, or zero when the marketplace sold nothing.
func discount(s MarketStats) decimal.Decimal {
	if !s.Sales.IsPositive() || !s.MSRP.IsPositive() {
		return decimal.Zero
	}
	return decimal.NewFromInt(1).Sub(s.Sales.DivRound(s.MSRP, SharePlaces+2)).Round(SharePlaces)
}
