package domain

import (
	"errors"
	"testing"
)

func TestCanStart(t *testing.T) {
	tests := []struct {
		name   string
		stage  Stage
		po     PurchaseOrder
		wantOK bool
	}{
		{"breakdown after worksheet", StageBreakdown, PurchaseOrder{Status: StatusWorksheetCreated}, true},
		{"breakdown re-run after errors", StageBreakdown, PurchaseOrder{Status: StatusBreakdownErrors}, true},
		{"breakdown while running", StageBreakdown, PurchaseOrder{Status: StatusCreatingBreakdown}, false},
		{"net sales before breakdown", StageNetSales, PurchaseOrder{Status: StatusWorksheetCreated}, false},
		{"net sales after breakdown", StageNetSales, PurchaseOrder{Status: StatusBreakdownCreated}, true},
		{"skus non-ats needs net sales", StageSKUs, PurchaseOrder{Status: StatusWorksheetCreated}, false},
		{"skus ats from worksheet", StageSKUs, PurchaseOrder{Status: StatusWorksheetCreated, IsATS: true}, true},
		{"skus after net sales", StageSKUs, PurchaseOrder{Status: StatusNetSalesCalculated}, true},
		{"finalize after skus", StageFinalize, PurchaseOrder{Status: StatusSKUsCreated}, true},
		{"finalize after po created", StageFinalize, PurchaseOrder{Status: StatusPOCreated}, false},
		{"internal error re-runs failed stage", StageNetSales, PurchaseOrder{Status: StatusInternalError, LastStage: StageNetSales}, true},
		{"internal error blocks other stages", StageFinalize, PurchaseOrder{Status: StatusInternalError, LastStage: StageNetSales}, false},
		{"unknown stage", Stage("bogus"), PurchaseOrder{Status: StatusWorksheetCreated}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CanStart(tt.stage, &tt.po)
			if tt.wantOK && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.wantOK && !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("err = %v, want ErrInvalidTransition", err)
			}
		})
	}
}

func TestCanFinish(t *testing.T) {
	if !CanFinish(StageBreakdown, StatusBreakdownErrors) {
		t.Error("breakdown may end with errors")
	}
	if !CanFinish(StageNetSales, StatusInternalError) {
		t.Error("any stage may end in internal error")
	}
	if CanFinish(StageBreakdown, StatusNetSalesCalculated) {
		t.Error("breakdown may not end as net sales calculated")
	}
}

func TestUndoTarget(t *testing.T) {
	cases := map[Status]Status{
		StatusBreakdownCreated:   StatusWorksheetCreated,
		StatusNetSalesCalculated: StatusBreakdownCreated,
		StatusNetSalesErrors:     StatusBreakdownCreated,
	}
	for from, want := range cases {
		got, err := UndoTarget(from)
		if err != nil || got != want {
			t.Errorf("UndoTarget(%q) = %q, %v; want %q", from, got, err, want)
		}
	}
	if _, err := UndoTarget(StatusPOCreated); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("undo from PO Created should fail, got %v", err)
	}
}

func TestParseStatus(t *testing.T) {
	if _, ok := ParseStatus("Breakdown Created"); !ok {
		t.Error("known status rejected")
	}
	if _, ok := ParseStatus("Breakdown created"); ok {
		t.Error("status match must be exact")
	}
}

func TestRowParsing(t *testing.T) {
	r := Row{"Qty": " 3 ", "Whole": "4.0", "Frac": "2.5", "Bad": "abc"}
	if n, err := r.Int("Qty"); err != nil || n != 3 {
		t.Errorf("Int(Qty) = %d, %v", n, err)
	}
	if n, err := r.Int("Whole"); err != nil || n != 4 {
		t.Errorf("Int(Whole) = %d, %v", n, err)
	}
	if _, err := r.Int("Frac"); err == nil {
		t.Error("Int(Frac) should fail")
	}
	if _, err := r.Float("Bad"); err == nil {
		t.Error("Float(Bad) should fail")
	}
	if r.SetErrors(nil) || r["Errors"] != "" {
		t.Error("no messages should clear Errors")
	}
	if !r.SetErrors([]string{"Invalid Brand", "Invalid Grade"}) || r["Errors"] != "Invalid Brand. Invalid Grade" {
		t.Errorf("Errors = %q", r["Errors"])
	}
}

func TestSKUHelpers(t *testing.T) {
	if got := NormalizeMPN("ab-12_3 x/y"); got != "AB123XY" {
		t.Errorf("NormalizeMPN = %q", got)
	}
	if got := ParentSKU("BRD-TOP-0012/M"); got != "BRD-TOP-0012" {
		t.Errorf("ParentSKU = %q", got)
	}
	if got := BrandCodeOf("BRD-TOP-0012/M"); got != "BRD" {
		t.Errorf("BrandCodeOf = %q", got)
	}
	if got, ok := BrandTypeOf("BRD-TOP-0012/M"); !ok || got != "BRD-TOP" {
		t.Errorf("BrandTypeOf = %q, %v", got, ok)
	}
	if n, err := SKUNumber("BRD-TOP-0012/M"); err != nil || n != 12 {
		t.Errorf("SKUNumber = %d, %v", n, err)
	}
	if got := PadSKUNumber(42, 8); got != "00000042" {
		t.Errorf("PadSKUNumber = %q", got)
	}
}

func TestNormalizeMPN(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"ab-12_3 x/y", "AB123XY"},
		{"café-ü1", "CAFÉÜ1"},
		{"Ø 42·b", "Ø42B"},
		{"MÜLLER_ü", "MÜLLERÜ"},
		{"--__--", ""},
	}
	for _, tt := range tests {
		if got := NormalizeMPN(tt.in); got != tt.want {
			t.Errorf("NormalizeMPN(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBreakdownSettingsValidate(t *testing.T) {
	s := DefaultBreakdownSettings()
	if err := s.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	missingPct := DefaultBreakdownSettings()
	delete(missingPct.NetSalesPercentages, "Scarce")
	if err := missingPct.Validate(); err == nil {
		t.Error("missing net sales percentage should fail")
	}

	badSellThrough := DefaultBreakdownSettings()
	badSellThrough.SellThroughOptions = []string{"0"}
	if err := badSellThrough.Validate(); err == nil {
		t.Error("zero-day sell-through should fail")
	}

	badDiscount := DefaultBreakdownSettings()
	badDiscount.ConfidenceDiscounts["Low"] = 1.5
	if err := badDiscount.Validate(); err == nil {
		t.Error("confidence discount above 1 should fail")
	}
}

func TestBreakdownSettingsPatch(t *testing.T) {
	months := 6
	patched := BreakdownSettingsPatch{SalesHistoryMonths: &months}.Apply(DefaultBreakdownSettings())
	if patched.SalesHistoryMonths != 6 {
		t.Errorf("months = %d", patched.SalesHistoryMonths)
	}
	if len(patched.MarketplaceGroups) != 4 {
		t.Error("unpatched fields must be kept")
	}
}
