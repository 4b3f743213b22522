/*
export.go - Download a saved run as a workbook or PDF

PURPOSE:
  GET /api/v1/runs/{id}/export?format=xlsx|pdf renders a stored run's
  results into a file accountants can hand to their CA: a summary block
  plus one findings table per uploaded ledger.

FORMATS:
  xlsx  One summary sheet plus one sheet per ledger (excelize)
  pdf   One page flow, summary then per-ledger tables (gofpdf)

SEE ALSO:
  - dto.go: RunResults, the stored shape being rendered
*/
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"github.com/gstledger/itc-engine/store/sqlite"
)

// ExportRun handles GET /api/v1/runs/{id}/export.
func (h *Handler) ExportRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := h.Store.GetRun(r.Context(), id, tenantID(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get run", err)
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "Run not found", nil)
		return
	}

	var results RunResults
	if err := json.Unmarshal([]byte(run.ResultsJSON), &results); err != nil {
		writeError(w, http.StatusInternalServerError, "Stored results are unreadable", err)
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "xlsx"
	}

	switch format {
	case "xlsx":
		data, err := BuildRunXLSX(run, &results)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to build workbook", err)
			return
		}
		w.Header().Set("Content-Type",
			"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", run.Filename+".xlsx"))
		w.Write(data)

	case "pdf":
		data, err := BuildRunPDF(run, &results)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to build PDF", err)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", run.Filename+".pdf"))
		w.Write(data)

	default:
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("Unsupported format %q (use xlsx or pdf)", format), nil)
	}
}

var rowTableHeaders = []string{
	"Supplier", "Purchase Date", "Payment Date", "Principal",
	"Delay (days)", "ITC Amount", "Interest", "Status", "GSTR-3B Period",
}

// BuildRunXLSX renders a run into a workbook: a summary sheet plus one
// findings sheet per ledger.
func BuildRunXLSX(run *sqlite.Run, results *RunResults) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	summarySheet := "Summary"
	f.SetSheetName("Sheet1", summarySheet)

	_ = f.SetCellValue(summarySheet, "A1", "Rule 37 ITC Reversal Report")
	_ = f.SetCellValue(summarySheet, "A3", "Run")
	_ = f.SetCellValue(summarySheet, "B3", run.Filename)
	_ = f.SetCellValue(summarySheet, "A4", "As-on Date")
	_ = f.SetCellValue(summarySheet, "B4", results.AsOnDate)
	_ = f.SetCellValue(summarySheet, "A5", "Total Interest")
	_ = f.SetCellValue(summarySheet, "B5", run.TotalInterest.StringFixed(2))
	_ = f.SetCellValue(summarySheet, "A6", "Total ITC Reversal")
	_ = f.SetCellValue(summarySheet, "B6", run.TotalItcReversal.StringFixed(2))
	_ = f.SetCellValue(summarySheet, "A8", results.Disclaimer)

	for i, lr := range results.Ledgers {
		sheet := fmt.Sprintf("Ledger %d", i+1)
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}

		_ = f.SetCellValue(sheet, "A1", lr.Name)
		_ = f.SetCellValue(sheet, "A2", "Interest: "+lr.Summary.TotalInterest)
		_ = f.SetCellValue(sheet, "C2", "ITC Reversal: "+lr.Summary.TotalItcReversal)

		for col, header := range rowTableHeaders {
			cell, err := excelize.CoordinatesToCellName(col+1, 4)
			if err != nil {
				return nil, err
			}
			_ = f.SetCellValue(sheet, cell, header)
		}

		for rowIdx, row := range lr.Summary.Rows {
			values := []any{
				row.Supplier, row.PurchaseDate, orDash(row.PaymentDate),
				row.Principal, row.DelayDays, row.ItcAmount, row.Interest,
				row.Status, row.ReportingPeriod,
			}
			for col, v := range values {
				cell, err := excelize.CoordinatesToCellName(col+1, rowIdx+5)
				if err != nil {
					return nil, err
				}
				_ = f.SetCellValue(sheet, cell, v)
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildRunPDF renders a run into a single-flow PDF.
func BuildRunPDF(run *sqlite.Run, results *RunResults) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Rule 37 ITC Reversal Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Run: %s", run.Filename))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("As-on Date: %s", results.AsOnDate))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Total Interest: %s", run.TotalInterest.StringFixed(2)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Total ITC Reversal: %s", run.TotalItcReversal.StringFixed(2)))
	pdf.Ln(8)

	widths := []float64{50, 28, 28, 30, 24, 30, 30, 26, 30}

	for _, lr := range results.Ledgers {
		pdf.SetFont("Arial", "B", 10)
		pdf.Cell(0, 6, lr.Name)
		pdf.Ln(7)

		for i, header := range rowTableHeaders {
			pdf.CellFormat(widths[i], 6, header, "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)

		pdf.SetFont("Arial", "", 9)
		for _, row := range lr.Summary.Rows {
			cells := []string{
				row.Supplier, row.PurchaseDate, orDash(row.PaymentDate),
				row.Principal, fmt.Sprintf("%d", row.DelayDays),
				row.ItcAmount, row.Interest, row.Status, row.ReportingPeriod,
			}
			for i, c := range cells {
				align := "R"
				if i == 0 || i == 7 || i == 8 {
					align = "L"
				}
				pdf.CellFormat(widths[i], 6, c, "1", 0, align, false, 0, "")
			}
			pdf.Ln(-1)
		}
		pdf.Ln(6)
		pdf.SetFont("Arial", "", 10)
	}

	pdf.SetFont("Arial", "I", 8)
	pdf.MultiCell(0, 4, results.Disclaimer, "", "L", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func orDash(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
