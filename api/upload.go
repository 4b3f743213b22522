/*
upload.go - Ledger upload orchestration

PURPOSE:
  Implements POST /api/v1/ledgers/upload: the one flow that ties the
  whole service together. Accepts multipart ledger workbooks, parses
  each, charges one credit per successfully parsed file, runs the
  engine, and persists a single calculation run.

BILLING CONTRACT:
  Parse first, charge second. A file the parser rejects costs nothing.
  Each consumed credit carries a fresh idempotency key, so a retried
  consume (after a transient credit-service failure) never double
  charges. When the wallet runs dry mid-batch the remaining files fail
  with a credit error while already-processed files keep their results.

FAILURE SHAPE:
  - Invalid request (no files, too many, too large, bad extension): 400
  - Per-tenant run cap reached: 409
  - Wallet empty before any file: 402
  - Every file failed: 400 with the joined per-file reasons
  - Some files failed: 201 with per-file errors alongside the results

SEE ALSO:
  - ledger/parser.go: Workbook parsing
  - credit/client.go: Wallet operations
  - store/sqlite: Run persistence
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gstledger/itc-engine/credit"
	"github.com/gstledger/itc-engine/ledger"
	"github.com/gstledger/itc-engine/rule37"
	"github.com/gstledger/itc-engine/store/sqlite"
)

// multipartMemory caps how much of the request body is buffered in
// memory before spilling to temp files.
const multipartMemory = 10 << 20

// UploadLedgers handles POST /api/v1/ledgers/upload.
func (h *Handler) UploadLedgers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant := tenantID(r)
	user := userID(r)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart request", err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "No files uploaded (use form field 'files')", nil)
		return
	}
	if len(files) > h.Limits.MaxFiles {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("Too many files: %d uploaded, limit is %d", len(files), h.Limits.MaxFiles), nil)
		return
	}

	asOnDate, err := parseAsOnDate(r.FormValue("as_on_date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_on_date (use YYYY-MM-DD)", err)
		return
	}

	for _, fh := range files {
		if err := validateUploadFile(fh, h.Limits.MaxFileSizeBytes); err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
	}

	// Saved-run cap before doing any work.
	count, err := h.Store.CountRuns(ctx, tenant)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to check run count", err)
		return
	}
	if count >= h.Limits.MaxRunsPerTenant {
		writeError(w, http.StatusConflict,
			fmt.Sprintf("Saved run limit reached (%d); delete old runs first", h.Limits.MaxRunsPerTenant), nil)
		return
	}

	// Wallet pre-check: at least one credit before touching any file.
	wallet, err := h.Credits.CheckBalance(ctx, user, 1)
	if err != nil {
		if errors.Is(err, credit.ErrInsufficientCredits) {
			writeError(w, http.StatusPaymentRequired, "Insufficient credits", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Credit service unavailable", err)
		return
	}

	runID := uuid.NewString()
	outcome := h.processFiles(r, files, asOnDate, user, runID)
	remaining := wallet.Remaining - outcome.creditsConsumed
	if outcome.wallet != nil {
		remaining = outcome.wallet.Remaining
	}

	if len(outcome.ledgers) == 0 {
		reasons := make([]string, len(outcome.fileErrors))
		for i, fe := range outcome.fileErrors {
			reasons[i] = fmt.Sprintf("%s: %s", fe.File, fe.Reason)
		}
		writeError(w, http.StatusBadRequest,
			"All files failed: "+strings.Join(reasons, "; "), nil)
		return
	}

	now := time.Now().UTC()
	run := sqlite.Run{
		ID:               runID,
		TenantID:         tenant,
		Filename:         runFilename(outcome.ledgers, asOnDate),
		AsOnDate:         asOnDate,
		TotalInterest:    outcome.totalInterest,
		TotalItcReversal: outcome.totalItcReversal,
		CreatedBy:        user,
		CreatedAt:        now,
		ExpiresAt:        now.AddDate(0, 0, h.Limits.RetentionDays),
	}

	resultsJSON, err := json.Marshal(RunResults{
		AsOnDate:   asOnDate.String(),
		Ledgers:    outcome.ledgers,
		Disclaimer: rule37.Disclaimer,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to serialize results", err)
		return
	}
	run.ResultsJSON = string(resultsJSON)

	if err := h.Store.SaveRun(ctx, run); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save run", err)
		return
	}

	log.Printf("[Upload] tenant=%s run=%s files=%d ok=%d failed=%d credits=%d",
		tenant, runID, len(files), len(outcome.ledgers), len(outcome.fileErrors), outcome.creditsConsumed)

	writeJSON(w, http.StatusCreated, UploadResult{
		RunID:            runID,
		AsOnDate:         asOnDate.String(),
		TotalInterest:    outcome.totalInterest.StringFixed(2),
		TotalItcReversal: outcome.totalItcReversal.StringFixed(2),
		Ledgers:          outcome.ledgers,
		Errors:           outcome.fileErrors,
		CreditsConsumed:  outcome.creditsConsumed,
		RemainingCredits: remaining,
		Disclaimer:       rule37.Disclaimer,
	})
}

// uploadOutcome accumulates the per-file results of one batch.
type uploadOutcome struct {
	ledgers          []LedgerResultDTO
	fileErrors       []FileErrorDTO
	creditsConsumed  int
	totalInterest    decimal.Decimal
	totalItcReversal decimal.Decimal

	// wallet is the credit service's view after the last consume,
	// nil when nothing was charged.
	wallet *credit.Wallet
}

// processFiles runs the per-file pipeline: parse, charge, calculate.
func (h *Handler) processFiles(r *http.Request, files []*multipart.FileHeader, asOnDate rule37.Date, user, runID string) uploadOutcome {
	ctx := r.Context()
	outcome := uploadOutcome{
		totalInterest:    decimal.Zero,
		totalItcReversal: decimal.Zero,
	}
	creditsExhausted := false

	for _, fh := range files {
		if creditsExhausted {
			outcome.fileErrors = append(outcome.fileErrors, FileErrorDTO{
				File: fh.Filename, Reason: "insufficient credits",
			})
			continue
		}

		parsed, err := parseUploadFile(fh)
		if err != nil {
			outcome.fileErrors = append(outcome.fileErrors, FileErrorDTO{
				File: fh.Filename, Reason: err.Error(),
			})
			continue
		}

		// Parse succeeded: this file is billable.
		wallet, err := h.Credits.Consume(ctx, user, 1, runID, uuid.NewString())
		if err != nil {
			if errors.Is(err, credit.ErrInsufficientCredits) {
				creditsExhausted = true
				outcome.fileErrors = append(outcome.fileErrors, FileErrorDTO{
					File: fh.Filename, Reason: "insufficient credits",
				})
				continue
			}
			outcome.fileErrors = append(outcome.fileErrors, FileErrorDTO{
				File: fh.Filename, Reason: "credit service unavailable",
			})
			continue
		}
		outcome.creditsConsumed++
		outcome.wallet = wallet

		summary := h.Engine.Calculate(parsed.Entries, asOnDate)
		outcome.ledgers = append(outcome.ledgers, LedgerResultDTO{
			Name:       parsed.Name,
			EntryCount: len(parsed.Entries),
			Summary:    toSummaryDTO(summary),
		})
		outcome.totalInterest = outcome.totalInterest.Add(summary.TotalInterest)
		outcome.totalItcReversal = outcome.totalItcReversal.Add(summary.TotalItcReversal)
	}

	return outcome
}

func parseUploadFile(fh *multipart.FileHeader) (*ledger.File, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("could not read file: %v", err)
	}
	defer f.Close()

	return ledger.ParseWorkbook(f, fh.Filename)
}

func validateUploadFile(fh *multipart.FileHeader, maxSize int64) error {
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if ext != ".xlsx" && ext != ".xls" {
		return fmt.Errorf("unsupported file type %q for %s (only .xlsx/.xls)", ext, fh.Filename)
	}
	if fh.Size > maxSize {
		return fmt.Errorf("file %s exceeds the %d MB size limit", fh.Filename, maxSize>>20)
	}
	return nil
}

// parseAsOnDate resolves the calculation date, defaulting to today.
func parseAsOnDate(raw string) (rule37.Date, error) {
	if raw == "" {
		return rule37.Today(), nil
	}
	return rule37.ParseDate(raw)
}

// runFilename labels a run after its single ledger, or after the batch.
func runFilename(ledgers []LedgerResultDTO, asOnDate rule37.Date) string {
	if len(ledgers) == 1 {
		return ledgers[0].Name
	}
	return fmt.Sprintf("%d files - %s", len(ledgers), asOnDate.String())
}
