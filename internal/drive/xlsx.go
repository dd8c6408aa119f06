package drive

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/andresuchdata/po-tool/internal/domain"
	"github.com/xuri/excelize/v2"
)

// ReadXLSXRows parses one sheet of an xlsx workbook into rows keyed by the header line.
// An empty sheet name selects the first sheet.
func ReadXLSXRows(content []byte, sheet string, required []string) ([]domain.Row, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("xlsx has no sheets")
		}
		sheet = sheets[0]
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows from sheet %s: %w", sheet, err)
	}
	defer rows.Close()

	var (
		headers []string
		out     []domain.Row
	)
	for rows.Next() {
		record, err := rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("failed to read row from sheet %s: %w", sheet, err)
		}
		if headers == nil {
			headers = make([]string, len(record))
			for i, h := range record {
				headers[i] = strings.TrimSpace(h)
			}
			if err := checkHeaders(headers, required); err != nil {
				return nil, fmt.Errorf("sheet %s: %w", sheet, err)
			}
			continue
		}
		row := make(domain.Row, len(headers))
		for i, h := range headers {
			if i < len(record) {
				row[h] = strings.TrimSpace(record[i])
			} else {
				row[h] = ""
			}
		}
		out = append(out, row)
	}
	if err := rows.Error(); err != nil {
		return nil, fmt.Errorf("error iterating rows in %s: %w", sheet, err)
	}
	if headers == nil {
		return nil, fmt.Errorf("sheet %s has no header row", sheet)
	}

	return out, nil
}

func checkHeaders(headers, required []string) error {
	present := make(map[string]struct{}, len(headers))
	for _, h := range headers {
		present[h] = struct{}{}
	}
	var missing []string
	for _, col := range required {
		if _, ok := present[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing headers: %s", strings.Join(missing, ", "))
	}
	return nil
}
