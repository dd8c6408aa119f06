package lightspeed

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// ContentType is the media type of an import file.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ImportColumns is the header row of a product import file.
var ImportColumns = []string{
	"Description", "Custom SKU", "Manufacturer SKU", "Brand",
	"Default Cost", "Default - Price", "MSRP = Price", "Category",
}

// ImportProduct is one line of a POS product import.
type ImportProduct struct {
	Description     string
	CustomSKU       string
	ManufacturerSKU string
	Brand           string
	DefaultCost     string
	DefaultPrice    string
	MSRP            string
	Category        string
}

func (p ImportProduct) values() []interface{} {
	return []interface{}{
		p.Description, p.CustomSKU, p.ManufacturerSKU, p.Brand,
		p.DefaultCost, p.DefaultPrice, p.MSRP, p.Category,
	}
}

// BuildImportFile renders products as a single-sheet xlsx workbook.
func BuildImportFile(products []ImportProduct) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	header := make([]interface{}, len(ImportColumns))
	for i, c := range ImportColumns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("failed to write import header: %w", err)
	}
	for i, p := range products {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := p.values()
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write import row %d: %w", i+1, err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode import file: %w", err)
	}
	return buf.Bytes(), nil
}
