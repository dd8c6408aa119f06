package worksheet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/andresuchdata/po-tool/internal/domain"
	"github.com/andresuchdata/po-tool/internal/pipeline"
	"github.com/andresuchdata/po-tool/internal/refdata"
	"github.com/andresuchdata/po-tool/internal/sheets"
)

// Columns of the Validation tab shipped with every worksheet template.
const (
	validationBrand = "Brand"
	validationTypes = "General Types"
)

var numericColumns = []string{domain.ColRetail, domain.ColUnitCost, domain.ColQty}

// Validator checks merchandiser input before a breakdown is built.
type Validator struct {
	sheets     sheets.Store
	itemTypes  refdata.Reader[map[string]refdata.ItemType]
	brandCodes refdata.Reader[map[string]string]
	required   []string
}

func NewValidator(store sheets.Store, itemTypes refdata.Reader[map[string]refdata.ItemType], brandCodes refdata.Reader[map[string]string]) *Validator {
	return &Validator{
		sheets:     store,
		itemTypes:  itemTypes,
		brandCodes: brandCodes,
		required:   domain.BreakdownWorksheetColumns,
	}
}

// WithRequired overrides the columns the worksheet must carry.
func (v *Validator) WithRequired(cols []string) *Validator {
	v.required = cols
	return v
}

// Validate returns the worksheet when every row is clean. When any row has an
// error, all rows are written back with their Errors column filled in and ok
// is false. An empty or malformed worksheet is also reported with ok false.
func (v *Validator) Validate(ctx context.Context, run *pipeline.Run) (table *sheets.Table, ok bool, err error) {
	run.Log(ctx, "Validating worksheet contents.")

	worksheetID, err := run.Worksheet()
	if err != nil {
		return nil, false, err
	}
	ref := sheets.Ref{SpreadsheetID: worksheetID, Sheet: sheets.TabWorksheet}

	table, err = v.sheets.ReadRows(ctx, ref, v.required)
	var missing *sheets.MissingHeadersError
	switch {
	case errors.Is(err, sheets.ErrNoDataRows):
		run.Error(ctx, "Worksheet is empty.")
		return nil, false, nil
	case errors.As(err, &missing):
		run.Error(ctx, "Worksheet is missing columns: "+strings.Join(missing.Missing, ", "))
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("read worksheet: %w", err)
	}

	itemTypes, err := v.itemTypes.Get()
	if err != nil {
		return nil, false, err
	}
	brands, types, err := v.allowedValues(ctx, worksheetID, itemTypes)
	if err != nil {
		return nil, false, err
	}

	hasErrors := false
	for _, row := range table.Rows {
		if row.SetErrors(validateRow(row, brands, types, itemTypes)) {
			hasErrors = true
		}
	}

	if hasErrors {
		if err := v.sheets.WriteRows(ctx, ref, table.Rows); err != nil {
			return nil, false, fmt.Errorf("post worksheet errors: %w", err)
		}
		run.Error(ctx, "Errors found and posted to worksheet.")
		return nil, false, nil
	}

	run.Log(ctx, "Worksheet content validated")
	return table, true, nil
}

// validateRow returns the error messages for one row and fills in the
// category and gender of its item type.
func validateRow(row domain.Row, brands, types map[string]struct{}, itemTypes map[string]refdata.ItemType) []string {
	var msgs []string

	brand := row.Get(domain.ColBrand)
	if brand == "" {
		msgs = append(msgs, "Missing Brand")
	} else if _, ok := brands[brand]; !ok {
		msgs = append(msgs, "Invalid Brand")
	}

	itemType := row.Get(domain.ColItemType)
	if itemType == "" {
		msgs = append(msgs, "Missing Type")
	} else if _, ok := types[itemType]; !ok {
		msgs = append(msgs, "Invalid Type")
	} else if info, ok := itemTypes[itemType]; !ok {
		// allowed by the worksheet but not yet in the refreshed item types
		msgs = append(msgs, "Unknown Type")
	} else {
		row.Set(domain.ColCategory, info.Category)
		row.Set(domain.ColGender, info.Gender)
	}

	for _, col := range numericColumns {
		n, err := row.Float(col)
		if err != nil {
			msgs = append(msgs, col+" requires a number")
		} else if n <= 0 {
			msgs = append(msgs, col+" must be greater than zero")
		}
	}

	if row.Get(domain.ColGrade) == "" {
		msgs = append(msgs, "Invalid Grade")
	}
	return msgs
}

// allowedValues reads the brands and general types listed in the worksheet's
// Validation tab. Templates without the tab fall back to the reference caches.
func (v *Validator) allowedValues(ctx context.Context, worksheetID string, itemTypes map[string]refdata.ItemType) (brands, types map[string]struct{}, err error) {
	brands = make(map[string]struct{})
	types = make(map[string]struct{})

	ref := sheets.Ref{SpreadsheetID: worksheetID, Sheet: sheets.TabValidation}
	table, err := v.sheets.ReadRows(ctx, ref, []string{validationBrand, validationTypes})
	var missing *sheets.MissingHeadersError
	switch {
	case err == nil:
		for _, row := range table.Rows {
			if b := row.Get(validationBrand); b != "" {
				brands[b] = struct{}{}
			}
			if t := row.Get(validationTypes); t != "" {
				types[t] = struct{}{}
			}
		}
		return brands, types, nil
	case errors.As(err, &missing), errors.Is(err, sheets.ErrNoDataRows):
	default:
		return nil, nil, fmt.Errorf("read validation tab: %w", err)
	}

	codes, err := v.brandCodes.Get()
	if err != nil {
		return nil, nil, err
	}
	for b := range codes {
		brands[b] = struct{}{}
	}
	for t := range itemTypes {
		types[t] = struct{}{}
	}
	return brands, types, nil
}
