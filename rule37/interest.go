/*
interest.go - ITC and interest formulas

PURPOSE:
  The two money formulas of Rule 37, plus risk categorization and the
  GSTR-3B reporting-period derivation. Everything here is a pure function
  of its arguments.

FORMULAS (GST compliant):
  ITC Amount = principal x (18 / 118)      -- GST-inclusive 18% extraction
  Interest   = itcAmount x 0.18 x delayDays / 365

PRECISION:
  decimal.Decimal throughout. Division carries shopspring's default 16
  digits of precision before the final half-up rounding to 2 decimals.

SEE ALSO:
  - engine.go: Callers
  - types.go: RiskCategory definitions
*/
package rule37

import (
	"github.com/shopspring/decimal"
)

// Statutory constants. These are fixed business constants of Rule 37, not
// runtime configuration.
const (
	// DaysThreshold is the statutory payment window: a delay strictly
	// greater than this triggers reversal.
	DaysThreshold = 180

	// AtRiskThreshold opens the early-warning zone: 151-180 days unpaid.
	AtRiskThreshold = 150

	moneyScale = 2
)

var (
	itcNumerator   = decimal.NewFromInt(18)
	itcDenominator = decimal.NewFromInt(118)
	interestRate   = decimal.RequireFromString("0.18") // annual, per Section 50
	daysInYear     = decimal.NewFromInt(365)

	// amountEpsilon is the exhaustion threshold for matched queue items.
	// Upstream spreadsheet parsing can leave sub-paisa float residue on
	// amounts; treating remainders <= 0.001 as exhausted keeps the FIFO
	// loop terminating and suppresses rows for negligible dust. Tied to
	// 2-decimal currency; revisit if upstream precision ever changes.
	amountEpsilon = decimal.RequireFromString("0.001")
)

// ComputeItcInterest maps (principal, delayDays) to the reversible ITC
// amount and the interest owed on it, both rounded half-up to 2 decimals.
// Interest is computed from the rounded ITC amount, matching how the
// figures appear on a filed return. A zero principal yields 0/0.
func ComputeItcInterest(principal decimal.Decimal, delayDays int) (itcAmount, interest decimal.Decimal) {
	itcAmount = round2(principal.Mul(itcNumerator).Div(itcDenominator))
	interest = round2(itcAmount.
		Mul(interestRate).
		Mul(decimal.NewFromInt(int64(delayDays))).
		Div(daysInYear))
	return itcAmount, interest
}

// round2 rounds half-up to 2 decimal places. Amounts are never negative
// here, so shopspring's round-half-away-from-zero is exactly half-up.
func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(moneyScale)
}

// CategorizeRisk is a pure function of the delay: SAFE <= 150,
// AT_RISK 151-180, BREACHED > 180.
func CategorizeRisk(delayDays int) RiskCategory {
	switch {
	case delayDays <= AtRiskThreshold:
		return RiskSafe
	case delayDays <= DaysThreshold:
		return RiskAtRisk
	default:
		return RiskBreached
	}
}

// reportingPeriod derives the GSTR-3B filing period for a deadline: the
// calendar month one month after it, formatted "Jan 2006".
func reportingPeriod(deadline Date) string {
	return deadline.AddMonthsClamped(1).Time.Format("Jan 2006")
}
