package netsales

// MarketInput is the validated estimate for one marketplace group of a breakdown row.
type MarketInput struct {
	Share         float64
	Discount      float64
	NetPercentage float64
}

// Sales are the projected sales of one product group.
type Sales struct {
	Gross float64
	Net   float64
	Fees  float64
}

// ProjectSales sums gross and net sales across marketplaces and applies the
// confidence adjustment to both.
func ProjectSales(msrp, confidenceDiscount float64, markets []MarketInput) Sales {
	adj := 1 - confidenceDiscount
	var gross, net float64
	for _, m := range markets {
		g := msrp * m.Share * (1 - m.Discount)
		gross += g
		net += g * m.NetPercentage
	}
	gross *= adj
	net *= adj
	return Sales{Gross: gross, Net: net, Fees: gross - net}
}

// HoldingCost estimates the opportunity cost of capital tied up in stock that
// sells down evenly over turnoverDays. Interest accrues daily on the
// outstanding balance at monthlyRate percent per 30 days.
func HoldingCost(weightedCost float64, turnoverDays int, monthlyRate float64) float64 {
	if turnoverDays <= 0 {
		return 0
	}
	dailyRate := monthlyRate / 100 / 30
	dailyRevenue := weightedCost / float64(turnoverDays)

	outstanding := weightedCost
	total := 0.0
	for day := 0; day < turnoverDays; day++ {
		interest := outstanding * dailyRate
		total += interest
		outstanding += interest
		outstanding -= dailyRevenue
	}
	return total
}

// Returns are the profitability figures of one product group.
type Returns struct {
	HoldingCost float64
	Profit      float64
	MonthlyROI  float64
	NewDiscount float64
}

// ProjectReturns derives holding cost, profit, monthly ROI and the revised
// discount from the group's net sales and fee-weighted cost.
func ProjectReturns(net, weightedCost, msrp float64, turnoverDays int, monthlyRate float64) Returns {
	holding := HoldingCost(weightedCost, turnoverDays, monthlyRate)
	profit := net - weightedCost - holding

	r := Returns{HoldingCost: holding, Profit: profit}
	if turnoverDays > 0 && weightedCost != 0 {
		r.MonthlyROI = (profit / (float64(turnoverDays) / 30)) / (weightedCost / 2)
	}
	if msrp != 0 {
		r.NewDiscount = weightedCost / msrp
	}
	return r
}
