package rule37

import (
	"github.com/shopspring/decimal"
)

// buildSummary reduces the full row sequence into the calculation result.
//
// TotalInterest sums every row (AT_RISK rows carry zero, so they cannot
// contribute). TotalItcReversal sums UNPAID rows only: a late payment has
// already settled its ITC. Totals are re-rounded after summation.
func buildSummary(rows []InterestRow, asOnDate Date) CalculationSummary {
	totalInterest := decimal.Zero
	totalItcReversal := decimal.Zero
	atRiskAmount := decimal.Zero
	atRiskCount := 0
	breachedCount := 0

	for _, row := range rows {
		totalInterest = totalInterest.Add(row.Interest)
		if row.Status == StatusUnpaid {
			totalItcReversal = totalItcReversal.Add(row.ItcAmount)
		}
		switch row.RiskCategory {
		case RiskAtRisk:
			atRiskCount++
			atRiskAmount = atRiskAmount.Add(row.Principal)
		case RiskBreached:
			breachedCount++
		}
	}

	return CalculationSummary{
		TotalInterest:    round2(totalInterest),
		TotalItcReversal: round2(totalItcReversal),
		Rows:             rows,
		AtRiskCount:      atRiskCount,
		AtRiskAmount:     round2(atRiskAmount),
		BreachedCount:    breachedCount,
		AsOnDate:         asOnDate,
	}
}
