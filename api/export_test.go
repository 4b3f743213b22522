/*
export_test.go - Tests for run export rendering

Tests for:
- XLSX rendering (summary sheet + per-ledger sheets, readable back)
- PDF rendering (well-formed output)
- Export handler content types and error cases
*/
package api

import (
	"bytes"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestExportRun_XLSX(t *testing.T) {
	// GIVEN: A saved run
	h, store, _ := newTestHandler(t, 5)
	savedRun(t, store, "run-1", "tenant-a", time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))

	// WHEN: Exporting as a workbook
	rec := doRequest(h, http.MethodGet, "/api/v1/runs/run-1/export?format=xlsx", "tenant-a")

	// THEN: A readable workbook with the summary and the findings table
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "acme-ledger.xlsx")

	wb, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer wb.Close()

	total, err := wb.GetCellValue("Summary", "B5")
	require.NoError(t, err)
	assert.Equal(t, "1881.86", total)

	supplier, err := wb.GetCellValue("Ledger 1", "A5")
	require.NoError(t, err)
	assert.Equal(t, "Acme Traders", supplier)

	status, err := wb.GetCellValue("Ledger 1", "H5")
	require.NoError(t, err)
	assert.Equal(t, "UNPAID", status)
}

func TestExportRun_PDF(t *testing.T) {
	h, store, _ := newTestHandler(t, 5)
	savedRun(t, store, "run-1", "tenant-a", time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))

	rec := doRequest(h, http.MethodGet, "/api/v1/runs/run-1/export?format=pdf", "tenant-a")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	// PDF magic bytes
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")))
}

func TestExportRun_DefaultsToXLSX(t *testing.T) {
	h, store, _ := newTestHandler(t, 5)
	savedRun(t, store, "run-1", "tenant-a", time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))

	rec := doRequest(h, http.MethodGet, "/api/v1/runs/run-1/export", "tenant-a")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "spreadsheetml")
}

func TestExportRun_UnsupportedFormat(t *testing.T) {
	h, store, _ := newTestHandler(t, 5)
	savedRun(t, store, "run-1", "tenant-a", time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))

	rec := doRequest(h, http.MethodGet, "/api/v1/runs/run-1/export?format=docx", "tenant-a")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportRun_NotFound(t *testing.T) {
	h, _, _ := newTestHandler(t, 5)

	rec := doRequest(h, http.MethodGet, "/api/v1/runs/nope/export?format=pdf", "tenant-a")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportRun_WrongTenant_NotFound(t *testing.T) {
	h, store, _ := newTestHandler(t, 5)
	savedRun(t, store, "run-1", "tenant-a", time.Now().UTC())

	rec := doRequest(h, http.MethodGet, "/api/v1/runs/run-1/export?format=pdf", "tenant-b")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
