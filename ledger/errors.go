/*
errors.go - Parse error types for ledger ingestion

PURPOSE:
  One place for everything that can go wrong reading a ledger workbook.
  The upload layer maps these onto per-file error messages; a parse
  failure fails the whole file, never a silent partial import.

SEE ALSO:
  - parser.go: Where these are raised
*/
package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyWorkbook is returned when the workbook has no data rows.
	ErrEmptyWorkbook = errors.New("workbook contains no ledger rows")

	// ErrHeaderNotFound is returned when no row looks like a ledger
	// header (date + supplier + amount columns).
	ErrHeaderNotFound = errors.New("no recognizable header row found")
)

// ParseError reports a malformed cell with enough context to fix the
// spreadsheet. Row is 1-based as shown in Excel.
type ParseError struct {
	Row    int
	Column string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("row %d, column %q: %s", e.Row, e.Column, e.Reason)
}

func parseErrf(row int, column, format string, args ...any) *ParseError {
	return &ParseError{Row: row, Column: column, Reason: fmt.Sprintf(format, args...)}
}
