package sheets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/andresuchdata/po-tool/internal/domain"
)

// Tab names inside a purchase order spreadsheet.
const (
	TabWorksheet     = "Worksheet"
	TabBreakdown     = "Breakdown"
	TabRelevantSales = "Relevant Sales"
	TabValidation    = "Validation"
)

// ErrNoDataRows is returned when a sheet has headers but no rows below them.
var ErrNoDataRows = errors.New("sheet has no cell values in non-header rows")

// MissingHeadersError lists required columns absent from a sheet's header row.
type MissingHeadersError struct {
	Ref     Ref
	Missing []string
}

func (e *MissingHeadersError) Error() string {
	return fmt.Sprintf("sheet %s is missing headers: %s", e.Ref, strings.Join(e.Missing, ", "))
}

// Ref points at one tab of a spreadsheet.
type Ref struct {
	SpreadsheetID string
	Sheet         string
}

func (r Ref) String() string {
	return r.SpreadsheetID + "!" + r.Sheet
}

// Table is the result of reading a sheet: the header row and each data row keyed by header.
type Table struct {
	Ref     Ref
	Headers []string
	Rows    []domain.Row
}

// Store is the tabular data capability the pipeline reads and writes through.
type Store interface {
	// ReadRows returns every data row. It fails with *MissingHeadersError when a
	// required column is absent and with ErrNoDataRows when only headers exist.
	ReadRows(ctx context.Context, ref Ref, required []string) (*Table, error)
	// WriteRows overwrites the sheet from row 2 in header order and deletes any
	// stale rows below the written ones.
	WriteRows(ctx context.Context, ref Ref, rows []domain.Row) error
	// DeleteRowRange removes rows [start, end) using zero-based indices.
	DeleteRowRange(ctx context.Context, ref Ref, start, end int) error
}

// buildTable turns a header line plus raw rows into keyed rows.
func buildTable(ref Ref, headers []string, raw [][]string, required []string) (*Table, error) {
	present := make(map[string]struct{}, len(headers))
	for i, h := range headers {
		headers[i] = strings.TrimSpace(h)
		present[headers[i]] = struct{}{}
	}
	var missing []string
	for _, col := range required {
		if _, ok := present[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingHeadersError{Ref: ref, Missing: missing}
	}

	rows := make([]domain.Row, 0, len(raw))
	for _, values := range raw {
		if isBlank(values) {
			continue
		}
		row := make(domain.Row, len(headers))
		for i, h := range headers {
			if h == "" {
				continue
			}
			if i < len(values) {
				row[h] = values[i]
			} else {
				row[h] = ""
			}
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, ErrNoDataRows
	}
	return &Table{Ref: ref, Headers: headers, Rows: rows}, nil
}

// rowValues lays rows out in header order. Columns the sheet does not have are dropped.
func rowValues(headers []string, rows []domain.Row) [][]string {
	out := make([][]string, len(rows))
	for i, row := range rows {
		values := make([]string, len(headers))
		for j, h := range headers {
			values[j] = row[h]
		}
		out[i] = values
	}
	return out
}

func isBlank(values []string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
