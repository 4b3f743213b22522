/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract. Domain types
  carry decimal.Decimal and the day-granularity Date; DTOs carry strings
  so the wire format stays exact and stable.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Result/*Results: Complex response wrappers

CONVENTIONS:
  - snake_case JSON field names
  - Money as fixed two-decimal strings ("18000.00"), never floats
  - Dates as YYYY-MM-DD

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - upload.go: UploadResult assembly
*/
package api

import (
	"github.com/gstledger/itc-engine/rule37"
)

// =============================================================================
// ERROR RESPONSE
// =============================================================================

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CALCULATION RESULTS
// =============================================================================

// InterestRowDTO is one finding as serialized to clients and into the
// stored run's results_json.
type InterestRowDTO struct {
	Supplier        string  `json:"supplier"`
	PurchaseDate    string  `json:"purchase_date"`
	PaymentDate     *string `json:"payment_date,omitempty"`
	Principal       string  `json:"principal"`
	DelayDays       int     `json:"delay_days"`
	ItcAmount       string  `json:"itc_amount"`
	Interest        string  `json:"interest"`
	Status          string  `json:"status"`
	PaymentDeadline string  `json:"payment_deadline"`
	RiskCategory    string  `json:"risk_category"`
	ReportingPeriod string  `json:"reporting_period"`
	DaysToDeadline  int     `json:"days_to_deadline"`
}

// SummaryDTO is the aggregate of one ledger's calculation.
type SummaryDTO struct {
	TotalInterest    string           `json:"total_interest"`
	TotalItcReversal string           `json:"total_itc_reversal"`
	AtRiskCount      int              `json:"at_risk_count"`
	AtRiskAmount     string           `json:"at_risk_amount"`
	BreachedCount    int              `json:"breached_count"`
	Rows             []InterestRowDTO `json:"rows"`
}

// LedgerResultDTO pairs a parsed ledger's display name with its summary.
type LedgerResultDTO struct {
	Name       string     `json:"name"`
	EntryCount int        `json:"entry_count"`
	Summary    SummaryDTO `json:"summary"`
}

// RunResults is the full payload persisted as results_json on a run and
// returned by GET /api/v1/runs/{id}. One run may cover several ledgers.
type RunResults struct {
	AsOnDate   string            `json:"as_on_date"`
	Ledgers    []LedgerResultDTO `json:"ledgers"`
	Disclaimer string            `json:"disclaimer"`
}

// =============================================================================
// UPLOAD
// =============================================================================

// FileErrorDTO reports one rejected upload file.
type FileErrorDTO struct {
	File   string `json:"file"`
	Reason string `json:"reason"`
}

// UploadResult is the 201 body of POST /api/v1/ledgers/upload.
type UploadResult struct {
	RunID            string            `json:"run_id"`
	AsOnDate         string            `json:"as_on_date"`
	TotalInterest    string            `json:"total_interest"`
	TotalItcReversal string            `json:"total_itc_reversal"`
	Ledgers          []LedgerResultDTO `json:"ledgers"`
	Errors           []FileErrorDTO    `json:"errors,omitempty"`
	CreditsConsumed  int               `json:"credits_consumed"`
	RemainingCredits int               `json:"remaining_credits"`
	Disclaimer       string            `json:"disclaimer"`
}

// =============================================================================
// SAVED RUNS
// =============================================================================

// RunDTO is a stored run's metadata plus, for single-run fetches, its
// full results.
type RunDTO struct {
	ID               string      `json:"id"`
	Filename         string      `json:"filename"`
	AsOnDate         string      `json:"as_on_date"`
	TotalInterest    string      `json:"total_interest"`
	TotalItcReversal string      `json:"total_itc_reversal"`
	CreatedBy        string      `json:"created_by"`
	CreatedAt        string      `json:"created_at"`
	ExpiresAt        string      `json:"expires_at"`
	Results          *RunResults `json:"results,omitempty"`
}

// RunListDTO is the paginated body of GET /api/v1/runs.
type RunListDTO struct {
	Runs   []RunDTO `json:"runs"`
	Total  int      `json:"total"`
	Limit  int      `json:"limit"`
	Offset int      `json:"offset"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toInterestRowDTO(row rule37.InterestRow) InterestRowDTO {
	dto := InterestRowDTO{
		Supplier:        row.Supplier,
		PurchaseDate:    row.PurchaseDate.String(),
		Principal:       row.Principal.StringFixed(2),
		DelayDays:       row.DelayDays,
		ItcAmount:       row.ItcAmount.StringFixed(2),
		Interest:        row.Interest.StringFixed(2),
		Status:          string(row.Status),
		PaymentDeadline: row.PaymentDeadline.String(),
		RiskCategory:    string(row.RiskCategory),
		ReportingPeriod: row.ReportingPeriod,
		DaysToDeadline:  row.DaysToDeadline,
	}
	if row.PaymentDate != nil {
		s := row.PaymentDate.String()
		dto.PaymentDate = &s
	}
	return dto
}

func toSummaryDTO(summary rule37.CalculationSummary) SummaryDTO {
	rows := make([]InterestRowDTO, len(summary.Rows))
	for i, row := range summary.Rows {
		rows[i] = toInterestRowDTO(row)
	}
	return SummaryDTO{
		TotalInterest:    summary.TotalInterest.StringFixed(2),
		TotalItcReversal: summary.TotalItcReversal.StringFixed(2),
		AtRiskCount:      summary.AtRiskCount,
		AtRiskAmount:     summary.AtRiskAmount.StringFixed(2),
		BreachedCount:    summary.BreachedCount,
		Rows:             rows,
	}
}
