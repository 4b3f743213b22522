/*
Package ledger parses Tally/Busy-style Excel ledger exports into the
engine's entry type.

PURPOSE:
  Accountants upload supplier ledgers as .xlsx/.xls workbooks. This
  package turns the first data sheet into []rule37.LedgerEntry, enforcing
  the engine's input contract (valid dates, non-empty supplier,
  non-negative amounts) so the engine itself never has to validate.

SUPPORTED LAYOUTS (header names matched case-insensitively):
  1. Typed:        Date | Type | Supplier/Particulars | Amount
                   Type in {purchase, invoice, bill} or {payment, paid}
  2. Debit/Credit: Date | Supplier/Particulars | Debit | Credit
                   Debit column = purchase, Credit column = payment

  Rows above the header (report titles, company names) are skipped, as
  are fully blank rows. Any other malformed row fails the file with a
  *ParseError carrying the row number.

DATE FORMATS:
  ISO (2006-01-02), Indian day-first (02-01-2006, 02/01/2006, 2-Jan-2006)
  and raw Excel serial numbers.

SEE ALSO:
  - errors.go: ParseError and sentinels
  - rule37: The engine consuming the parsed entries
*/
package ledger

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/gstledger/itc-engine/rule37"
)

// File is one parsed ledger: the workbook's display name and its entries.
type File struct {
	Name    string
	Entries []rule37.LedgerEntry
}

// ParseWorkbook reads an .xlsx/.xls stream and extracts ledger entries
// from the first sheet that has a recognizable header.
func ParseWorkbook(r io.Reader, filename string) (*File, error) {
	wb, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer wb.Close()

	for _, sheet := range wb.GetSheetList() {
		rows, err := wb.GetRows(sheet)
		if err != nil {
			return nil, err
		}
		layout, headerRow := detectHeader(rows)
		if layout == nil {
			continue
		}
		entries, err := parseRows(rows, layout, headerRow)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			return nil, ErrEmptyWorkbook
		}
		return &File{Name: displayName(filename), Entries: entries}, nil
	}

	return nil, ErrHeaderNotFound
}

func displayName(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// =============================================================================
// HEADER DETECTION
// =============================================================================

// columnLayout maps semantic columns to indexes in a row. amountCol is -1
// in debit/credit layout; debitCol/creditCol are -1 in typed layout.
type columnLayout struct {
	dateCol     int
	supplierCol int
	typeCol     int
	amountCol   int
	debitCol    int
	creditCol   int
}

func (l *columnLayout) debitCredit() bool { return l.amountCol < 0 }

var (
	supplierHeaders = []string{"supplier", "particulars", "party", "vendor"}
	typeHeaders     = []string{"type", "voucher type", "voucher", "kind"}
)

// detectHeader scans for the first row carrying date + supplier columns
// plus either a single amount column or a debit/credit pair. Returns nil
// if the sheet has no such row.
func detectHeader(rows [][]string) (*columnLayout, int) {
	for i, row := range rows {
		layout := columnLayout{dateCol: -1, supplierCol: -1, typeCol: -1, amountCol: -1, debitCol: -1, creditCol: -1}
		for col, cell := range row {
			name := strings.ToLower(strings.TrimSpace(cell))
			switch {
			case name == "date" || strings.HasSuffix(name, " date"):
				if layout.dateCol < 0 {
					layout.dateCol = col
				}
			case matchesAny(name, supplierHeaders):
				if layout.supplierCol < 0 {
					layout.supplierCol = col
				}
			case matchesAny(name, typeHeaders):
				if layout.typeCol < 0 {
					layout.typeCol = col
				}
			case name == "amount":
				layout.amountCol = col
			case name == "debit" || name == "debit amount" || name == "dr":
				layout.debitCol = col
			case name == "credit" || name == "credit amount" || name == "cr":
				layout.creditCol = col
			}
		}

		if layout.dateCol < 0 || layout.supplierCol < 0 {
			continue
		}
		if layout.amountCol >= 0 && layout.typeCol >= 0 {
			return &layout, i
		}
		if layout.debitCol >= 0 && layout.creditCol >= 0 {
			layout.amountCol = -1
			return &layout, i
		}
	}
	return nil, 0
}

func matchesAny(name string, candidates []string) bool {
	for _, c := range candidates {
		if name == c {
			return true
		}
	}
	return false
}

// =============================================================================
// ROW PARSING
// =============================================================================

func parseRows(rows [][]string, layout *columnLayout, headerRow int) ([]rule37.LedgerEntry, error) {
	var entries []rule37.LedgerEntry
	for i := headerRow + 1; i < len(rows); i++ {
		row := rows[i]
		if blankRow(row) {
			continue
		}
		excelRow := i + 1 // 1-based, as shown in Excel

		date, ok := parseCellDate(cellAt(row, layout.dateCol))
		if !ok {
			return nil, parseErrf(excelRow, "Date", "unparsable date %q", cellAt(row, layout.dateCol))
		}
		supplier := strings.TrimSpace(cellAt(row, layout.supplierCol))
		if supplier == "" {
			return nil, parseErrf(excelRow, "Supplier", "missing supplier name")
		}

		if layout.debitCredit() {
			entry, err := parseDebitCredit(row, layout, excelRow, date, supplier)
			if err != nil {
				return nil, err
			}
			if entry != nil {
				entries = append(entries, *entry)
			}
			continue
		}

		kind, ok := parseKind(cellAt(row, layout.typeCol))
		if !ok {
			return nil, parseErrf(excelRow, "Type", "unrecognized entry type %q", cellAt(row, layout.typeCol))
		}
		amount, err := parseCellAmount(cellAt(row, layout.amountCol))
		if err != nil {
			return nil, parseErrf(excelRow, "Amount", "%v", err)
		}
		entries = append(entries, rule37.LedgerEntry{Date: date, Kind: kind, Supplier: supplier, Amount: amount})
	}
	return entries, nil
}

// parseDebitCredit reads a debit/credit layout row. A row where both
// sides are empty or zero is skipped (running-balance lines); both sides
// populated is malformed.
func parseDebitCredit(row []string, layout *columnLayout, excelRow int, date rule37.Date, supplier string) (*rule37.LedgerEntry, error) {
	debitRaw := strings.TrimSpace(cellAt(row, layout.debitCol))
	creditRaw := strings.TrimSpace(cellAt(row, layout.creditCol))

	if debitRaw != "" && creditRaw != "" {
		return nil, parseErrf(excelRow, "Debit/Credit", "row has both debit and credit amounts")
	}

	raw, column, kind := debitRaw, "Debit", rule37.EntryPurchase
	if creditRaw != "" {
		raw, column, kind = creditRaw, "Credit", rule37.EntryPayment
	}
	if raw == "" {
		return nil, nil
	}

	amount, err := parseCellAmount(raw)
	if err != nil {
		return nil, parseErrf(excelRow, column, "%v", err)
	}
	if amount.IsZero() {
		return nil, nil
	}
	return &rule37.LedgerEntry{Date: date, Kind: kind, Supplier: supplier, Amount: amount}, nil
}

func parseKind(cell string) (rule37.EntryKind, bool) {
	switch strings.ToLower(strings.TrimSpace(cell)) {
	case "purchase", "pur", "invoice", "bill":
		return rule37.EntryPurchase, true
	case "payment", "pay", "paid", "pmt":
		return rule37.EntryPayment, true
	default:
		return "", false
	}
}

var dateLayouts = []string{
	"2006-01-02",
	"02-01-2006",
	"02/01/2006",
	"2-1-2006",
	"2/1/2006",
	"2-Jan-2006",
	"02-Jan-2006",
	"2006/01/02",
}

// excel serial day 0 is Dec 30, 1899 (the 1900 leap-year bug is baked in)
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

func parseCellDate(cell string) (rule37.Date, bool) {
	raw := strings.TrimSpace(cell)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return rule37.DateOf(t), true
		}
	}
	if serial, err := strconv.ParseFloat(raw, 64); err == nil && serial > 0 {
		return rule37.DateOf(excelEpoch.AddDate(0, 0, int(serial))), true
	}
	return rule37.Date{}, false
}

func parseCellAmount(cell string) (decimal.Decimal, error) {
	raw := strings.TrimSpace(cell)
	raw = strings.ReplaceAll(raw, ",", "")
	raw = strings.TrimPrefix(raw, "₹")
	raw = strings.TrimSpace(raw)

	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("unparsable amount %q", cell)
	}
	if amount.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("negative amount %q", cell)
	}
	return amount, nil
}

func cellAt(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return row[col]
}

func blankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
