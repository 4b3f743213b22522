/*
Package rule37 implements the GST Rule 37 (180-day ITC reversal) calculation
engine.

PURPOSE:
  Under GST Rule 37, a buyer who claims Input Tax Credit on a purchase must
  pay the supplier within 180 days of the invoice date. If not, the claimed
  ITC must be reversed and interest paid on it. This package takes a ledger
  of dated purchase/payment events and computes that liability.

KEY CONCEPTS IN THIS FILE (types.go):
  - LedgerEntry: An immutable dated monetary event (purchase or payment)
  - InterestRow: One finding (a late-paid or unpaid purchase)
  - CalculationSummary: Aggregated totals over all findings

DESIGN PRINCIPLES:
  1. Purity: the engine reads entries, computes, returns. No I/O, no state.
  2. Precision: decimal.Decimal for every amount; floats never touch money.
  3. Totality: any finite list of valid entries yields a summary, no errors.

USAGE:
  engine := &rule37.Engine{}
  summary := engine.Calculate(entries, rule37.NewDate(2025, time.June, 1))

SEE ALSO:
  - engine.go: Partitioning, FIFO matching, unpaid classification
  - interest.go: ITC and interest formulas, risk categorization
  - date.go: Day-granularity date type
*/
package rule37

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// LEDGER ENTRY - Input event
// =============================================================================

// EntryKind distinguishes purchases from payments in a supplier ledger.
type EntryKind string

const (
	EntryPurchase EntryKind = "PURCHASE"
	EntryPayment  EntryKind = "PAYMENT"
)

// LedgerEntry is a single dated monetary event from a supplier ledger.
// Entries may arrive in any order; the engine sorts internally and never
// mutates the caller's slice.
//
// The upstream parser guarantees a non-empty supplier and a non-negative
// amount. The engine does not re-validate; zero amounts pass through and
// produce no rows.
type LedgerEntry struct {
	Date     Date
	Kind     EntryKind
	Supplier string
	Amount   decimal.Decimal
}

// NewPurchase is a convenience constructor used heavily in tests.
func NewPurchase(date Date, supplier string, amount decimal.Decimal) LedgerEntry {
	return LedgerEntry{Date: date, Kind: EntryPurchase, Supplier: supplier, Amount: amount}
}

// NewPayment is a convenience constructor used heavily in tests.
func NewPayment(date Date, supplier string, amount decimal.Decimal) LedgerEntry {
	return LedgerEntry{Date: date, Kind: EntryPayment, Supplier: supplier, Amount: amount}
}

// =============================================================================
// INTEREST ROW - One finding
// =============================================================================

// InterestStatus says whether the flagged principal was eventually paid.
type InterestStatus string

const (
	// StatusPaidLate marks a purchase matched by a payment more than 180
	// days after the invoice date.
	StatusPaidLate InterestStatus = "PAID_LATE"

	// StatusUnpaid marks a purchase with no matching payment as of the
	// calculation date.
	StatusUnpaid InterestStatus = "UNPAID"
)

// RiskCategory classifies how far a purchase is into the 180-day window.
type RiskCategory string

const (
	RiskSafe     RiskCategory = "SAFE"     // <= 150 days
	RiskAtRisk   RiskCategory = "AT_RISK"  // 151-180 days, early warning only
	RiskBreached RiskCategory = "BREACHED" // > 180 days, reversal due
)

// InterestRow is one emitted finding. Created once, never modified.
//
// AT_RISK rows are early warnings: they always carry zero ItcAmount and
// Interest and are excluded from summary money totals.
type InterestRow struct {
	Supplier     string
	PurchaseDate Date
	PaymentDate  *Date // nil for UNPAID rows
	Principal    decimal.Decimal
	DelayDays    int
	ItcAmount    decimal.Decimal
	Interest     decimal.Decimal
	Status       InterestStatus

	PaymentDeadline Date         // PurchaseDate + 180 days
	RiskCategory    RiskCategory
	ReportingPeriod string       // GSTR-3B filing period, e.g. "Jul 2025"
	DaysToDeadline  int          // negative once the deadline has passed
}

// =============================================================================
// CALCULATION SUMMARY - Aggregate result
// =============================================================================

// CalculationSummary is the aggregate over all rows of one calculation.
// Built once at the end, immutable thereafter.
//
// TotalItcReversal sums UNPAID rows only: ITC on a late-paid purchase is
// already consumed by the payment itself and is not a standing reversal.
type CalculationSummary struct {
	TotalInterest    decimal.Decimal
	TotalItcReversal decimal.Decimal
	Rows             []InterestRow

	AtRiskCount   int
	AtRiskAmount  decimal.Decimal
	BreachedCount int

	AsOnDate Date
}

// Disclaimer accompanies every rendered summary. Interest here is computed
// from the invoice date; per Section 50 + Rule 88B the statutory figure
// depends on ITC availment and utilization dates.
const Disclaimer = "Interest calculated from invoice date. Per Section 50 + Rule 88B, actual interest " +
	"depends on ITC availment and utilization dates. Consult CA for precise liability."
