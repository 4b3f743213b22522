/*
engine.go - Supplier partitioning, FIFO matching, unpaid classification

PURPOSE:
  The calculation pipeline. Entries are partitioned per supplier into a
  purchase queue and a payment queue (each date-sorted), the queues are
  consumed in lock-step FIFO order to find late payments, and whatever
  purchase principal is left unmatched is classified by age against the
  calculation date.

ALGORITHM:
  partition -> per supplier: fifo match -> classify residual -> aggregate

TERMINATION:
  Each FIFO iteration reduces both queue heads by min(remaining) and
  advances past any head whose remainder falls to <= epsilon. At least one
  head is exhausted per iteration, so the loop is bounded by the total
  queue length even when upstream float residue keeps remainders from
  reaching exactly zero.

OWNERSHIP:
  The queues are fresh mutable copies local to one supplier's pass. The
  caller's entries are never touched, and no state survives Calculate.

SEE ALSO:
  - interest.go: Money formulas applied to each finding
  - summary.go: Reduction of rows into CalculationSummary
*/
package rule37

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Engine computes Rule 37 liability. It is stateless; the zero value is
// ready to use and safe to share across goroutines.
type Engine struct{}

// Calculate runs the full pipeline over a ledger. Entries may be in any
// order and mix all suppliers; asOnDate is the reference date for unpaid
// classification. Total over its input domain: never returns an error.
func (e *Engine) Calculate(entries []LedgerEntry, asOnDate Date) CalculationSummary {
	queues := partitionBySupplier(entries)

	var rows []InterestRow
	for _, supplier := range queues.order {
		matched, residual := matchFifo(supplier, queues.purchases[supplier], queues.payments[supplier], asOnDate)
		rows = append(rows, matched...)
		rows = append(rows, classifyUnpaid(supplier, residual, asOnDate)...)
	}

	return buildSummary(rows, asOnDate)
}

// =============================================================================
// SUPPLIER PARTITIONING
// =============================================================================

// ledgerItem is the mutable working copy of one queued entry. Owned
// exclusively by a single supplier's matching pass.
type ledgerItem struct {
	date      Date
	remaining decimal.Decimal
}

func (it *ledgerItem) exhausted() bool {
	return it.remaining.LessThanOrEqual(amountEpsilon)
}

// supplierQueues holds the partitioned, date-sorted queues. order lists
// suppliers by first purchase appearance in the sorted stream, making the
// row sequence deterministic. Suppliers with payments but no purchases are
// never visited: only purchase-side ITC risk is tracked.
type supplierQueues struct {
	order     []string
	purchases map[string][]*ledgerItem
	payments  map[string][]*ledgerItem
}

func partitionBySupplier(entries []LedgerEntry) supplierQueues {
	sorted := make([]LedgerEntry, len(entries))
	copy(sorted, entries)
	// Stable: equal dates keep their relative input order, which fixes
	// FIFO tie-breaking.
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	q := supplierQueues{
		purchases: make(map[string][]*ledgerItem),
		payments:  make(map[string][]*ledgerItem),
	}
	for _, entry := range sorted {
		item := &ledgerItem{date: entry.Date, remaining: entry.Amount}
		switch entry.Kind {
		case EntryPurchase:
			if _, seen := q.purchases[entry.Supplier]; !seen {
				q.order = append(q.order, entry.Supplier)
			}
			q.purchases[entry.Supplier] = append(q.purchases[entry.Supplier], item)
		case EntryPayment:
			q.payments[entry.Supplier] = append(q.payments[entry.Supplier], item)
		}
	}
	return q
}

// =============================================================================
// FIFO MATCHING
// =============================================================================

// matchFifo consumes one supplier's queues in lock-step FIFO order: oldest
// outstanding purchase against oldest outstanding payment. A PAID_LATE row
// is emitted for each matched slice whose delay strictly exceeds 180 days.
// Returns the rows and the residual (unmatched) purchase items; leftover
// payments are dropped.
func matchFifo(supplier string, purchases, payments []*ledgerItem, asOnDate Date) ([]InterestRow, []*ledgerItem) {
	var rows []InterestRow

	pi, yi := 0, 0
	for pi < len(purchases) && yi < len(payments) {
		purchase, payment := purchases[pi], payments[yi]

		// Zero-amount entries and epsilon dust never pair: an exhausted
		// head is skipped before any row can be emitted for it.
		if purchase.exhausted() {
			pi++
			continue
		}
		if payment.exhausted() {
			yi++
			continue
		}

		matched := decimal.Min(purchase.remaining, payment.remaining)
		delay := DaysBetween(purchase.date, payment.date)

		if delay > DaysThreshold {
			paymentDate := payment.date
			rows = append(rows, newInterestRow(
				supplier, purchase.date, &paymentDate, matched, delay, StatusPaidLate, asOnDate))
		}

		purchase.remaining = purchase.remaining.Sub(matched)
		payment.remaining = payment.remaining.Sub(matched)
		if purchase.exhausted() {
			pi++
		}
		if payment.exhausted() {
			yi++
		}
	}

	return rows, purchases[pi:]
}

// =============================================================================
// UNPAID CLASSIFICATION
// =============================================================================

// classifyUnpaid turns each residual purchase into at most one row based
// on its age at the calculation date:
//
//	> 180 days:   UNPAID / BREACHED with full ITC and interest
//	151-180 days: UNPAID / AT_RISK early warning, zero ITC and interest
//	<= 150 days:  SAFE, no row
func classifyUnpaid(supplier string, residual []*ledgerItem, asOnDate Date) []InterestRow {
	var rows []InterestRow
	for _, purchase := range residual {
		if purchase.exhausted() {
			continue
		}
		days := DaysBetween(purchase.date, asOnDate)

		switch {
		case days > DaysThreshold:
			rows = append(rows, newInterestRow(
				supplier, purchase.date, nil, purchase.remaining, days, StatusUnpaid, asOnDate))
		case days > AtRiskThreshold:
			rows = append(rows, newAtRiskRow(supplier, purchase.date, purchase.remaining, days, asOnDate))
		}
	}
	return rows
}

// =============================================================================
// ROW CONSTRUCTION
// =============================================================================

func newInterestRow(supplier string, purchaseDate Date, paymentDate *Date,
	principal decimal.Decimal, delayDays int, status InterestStatus, asOnDate Date) InterestRow {

	deadline := purchaseDate.AddDays(DaysThreshold)
	itcAmount, interest := ComputeItcInterest(principal, delayDays)

	return InterestRow{
		Supplier:        supplier,
		PurchaseDate:    purchaseDate,
		PaymentDate:     paymentDate,
		Principal:       round2(principal),
		DelayDays:       delayDays,
		ItcAmount:       itcAmount,
		Interest:        interest,
		Status:          status,
		PaymentDeadline: deadline,
		RiskCategory:    CategorizeRisk(delayDays),
		ReportingPeriod: reportingPeriod(deadline),
		DaysToDeadline:  DaysBetween(asOnDate, deadline),
	}
}

func newAtRiskRow(supplier string, purchaseDate Date,
	principal decimal.Decimal, delayDays int, asOnDate Date) InterestRow {

	deadline := purchaseDate.AddDays(DaysThreshold)

	return InterestRow{
		Supplier:        supplier,
		PurchaseDate:    purchaseDate,
		PaymentDate:     nil,
		Principal:       round2(principal),
		DelayDays:       delayDays,
		ItcAmount:       decimal.Zero,
		Interest:        decimal.Zero,
		Status:          StatusUnpaid,
		PaymentDeadline: deadline,
		RiskCategory:    RiskAtRisk,
		ReportingPeriod: reportingPeriod(deadline),
		DaysToDeadline:  DaysBetween(asOnDate, deadline),
	}
}
