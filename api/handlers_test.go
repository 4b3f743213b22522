/*
handlers_test.go - Unit tests for run handlers

Tests for:
- Listing, fetching, deleting saved runs through the router
- Tenant scoping via X-Tenant-Id
- Health probe
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gstledger/itc-engine/credit"
	"github.com/gstledger/itc-engine/rule37"
	"github.com/gstledger/itc-engine/store/sqlite"
)

// =============================================================================
// TEST FIXTURES
// =============================================================================

// creditStub is a fake credit service with a finite wallet.
type creditStub struct {
	remaining int
	consumed  int
}

func (c *creditStub) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if c.remaining < 1 {
				http.Error(w, "wallet empty", http.StatusPaymentRequired)
				return
			}
			c.remaining--
			c.consumed++
		}
		json.NewEncoder(w).Encode(credit.Wallet{
			UserID:    "user-1",
			Total:     c.remaining + c.consumed,
			Consumed:  c.consumed,
			Remaining: c.remaining,
		})
	}
}

// newTestHandler wires a handler against an in-memory store and a stub
// credit service with the given balance.
func newTestHandler(t *testing.T, credits int) (*Handler, *sqlite.Store, *creditStub) {
	t.Helper()

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	stub := &creditStub{remaining: credits}
	srv := httptest.NewServer(stub.handler())
	t.Cleanup(srv.Close)

	return NewHandler(store, credit.New(srv.URL), DefaultLimits()), store, stub
}

func savedRun(t *testing.T, store *sqlite.Store, id, tenant string, createdAt time.Time) sqlite.Run {
	t.Helper()

	results, err := json.Marshal(RunResults{
		AsOnDate: "2025-06-01",
		Ledgers: []LedgerResultDTO{{
			Name:       "acme-ledger",
			EntryCount: 2,
			Summary: SummaryDTO{
				TotalInterest:    "1881.86",
				TotalItcReversal: "18000.00",
				AtRiskAmount:     "0.00",
				BreachedCount:    1,
				Rows: []InterestRowDTO{{
					Supplier:        "Acme Traders",
					PurchaseDate:    "2024-11-01",
					Principal:       "118000.00",
					DelayDays:       212,
					ItcAmount:       "18000.00",
					Interest:        "1881.86",
					Status:          "UNPAID",
					PaymentDeadline: "2025-04-30",
					RiskCategory:    "BREACHED",
					ReportingPeriod: "May 2025",
					DaysToDeadline:  -32,
				}},
			},
		}},
		Disclaimer: rule37.Disclaimer,
	})
	require.NoError(t, err)

	run := sqlite.Run{
		ID:               id,
		TenantID:         tenant,
		Filename:         "acme-ledger",
		AsOnDate:         rule37.NewDate(2025, time.June, 1),
		TotalInterest:    decimal.RequireFromString("1881.86"),
		TotalItcReversal: decimal.RequireFromString("18000.00"),
		ResultsJSON:      string(results),
		CreatedBy:        "user-1",
		CreatedAt:        createdAt,
		ExpiresAt:        createdAt.AddDate(0, 0, 7),
	}
	require.NoError(t, store.SaveRun(context.Background(), run))
	return run
}

func doRequest(h *Handler, method, path, tenant string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if tenant != "" {
		req.Header.Set("X-Tenant-Id", tenant)
	}
	rec := httptest.NewRecorder()
	NewRouter(h).ServeHTTP(rec, req)
	return rec
}

// =============================================================================
// RUN HANDLER TESTS
// =============================================================================

func TestListRuns_NewestFirst(t *testing.T) {
	// GIVEN: Three saved runs for one tenant
	h, store, _ := newTestHandler(t, 10)
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		savedRun(t, store, fmt.Sprintf("run-%d", i), "tenant-a", base.Add(time.Duration(i)*time.Minute))
	}

	// WHEN: Listing runs
	rec := doRequest(h, http.MethodGet, "/api/v1/runs", "tenant-a")

	// THEN: All three come back, newest first
	require.Equal(t, http.StatusOK, rec.Code)
	var list RunListDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 3, list.Total)
	require.Len(t, list.Runs, 3)
	assert.Equal(t, "run-2", list.Runs[0].ID)
	assert.Equal(t, "run-0", list.Runs[2].ID)
	// List entries do not carry full results
	assert.Nil(t, list.Runs[0].Results)
}

func TestListRuns_Pagination(t *testing.T) {
	h, store, _ := newTestHandler(t, 10)
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		savedRun(t, store, fmt.Sprintf("run-%d", i), "tenant-a", base.Add(time.Duration(i)*time.Minute))
	}

	rec := doRequest(h, http.MethodGet, "/api/v1/runs?limit=2&offset=2", "tenant-a")

	require.Equal(t, http.StatusOK, rec.Code)
	var list RunListDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 5, list.Total)
	require.Len(t, list.Runs, 2)
	assert.Equal(t, "run-2", list.Runs[0].ID)
	assert.Equal(t, "run-1", list.Runs[1].ID)
}

func TestGetRun_IncludesResults(t *testing.T) {
	// GIVEN: A saved run
	h, store, _ := newTestHandler(t, 10)
	savedRun(t, store, "run-1", "tenant-a", time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))

	// WHEN: Fetching it
	rec := doRequest(h, http.MethodGet, "/api/v1/runs/run-1", "tenant-a")

	// THEN: Metadata and full results are present
	require.Equal(t, http.StatusOK, rec.Code)
	var dto RunDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dto))
	assert.Equal(t, "run-1", dto.ID)
	assert.Equal(t, "1881.86", dto.TotalInterest)
	require.NotNil(t, dto.Results)
	require.Len(t, dto.Results.Ledgers, 1)
	assert.Equal(t, "Acme Traders", dto.Results.Ledgers[0].Summary.Rows[0].Supplier)
}

func TestGetRun_WrongTenant_NotFound(t *testing.T) {
	h, store, _ := newTestHandler(t, 10)
	savedRun(t, store, "run-1", "tenant-a", time.Now().UTC())

	rec := doRequest(h, http.MethodGet, "/api/v1/runs/run-1", "tenant-b")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteRun(t *testing.T) {
	// GIVEN: A saved run
	h, store, _ := newTestHandler(t, 10)
	savedRun(t, store, "run-1", "tenant-a", time.Now().UTC())

	// WHEN: Deleting it
	rec := doRequest(h, http.MethodDelete, "/api/v1/runs/run-1", "tenant-a")

	// THEN: Gone, and a second delete is a 404
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = doRequest(h, http.MethodDelete, "/api/v1/runs/run-1", "tenant-a")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteRun_WrongTenant_NotFound(t *testing.T) {
	h, store, _ := newTestHandler(t, 10)
	savedRun(t, store, "run-1", "tenant-a", time.Now().UTC())

	rec := doRequest(h, http.MethodDelete, "/api/v1/runs/run-1", "tenant-b")

	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Still there for the owner
	run, err := store.GetRun(context.Background(), "run-1", "tenant-a")
	require.NoError(t, err)
	assert.NotNil(t, run)
}

func TestHealth(t *testing.T) {
	h, _, _ := newTestHandler(t, 10)

	rec := doRequest(h, http.MethodGet, "/api/v1/health", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
