package domain

import (
	"errors"
	"fmt"
)

// Status is the workflow marker of a purchase order.
type Status string

const (
	StatusCreatingWorksheet   Status = "Creating Worksheet"
	StatusWorksheetCreated    Status = "Worksheet Created"
	StatusCreatingBreakdown   Status = "Creating Breakdown"
	StatusBreakdownCreated    Status = "Breakdown Created"
	StatusBreakdownErrors     Status = "Errors in worksheet (Breakdown)"
	StatusCalculatingNetSales Status = "Calculating Net Sales"
	StatusNetSalesCalculated  Status = "Net Sales Calculated"
	StatusNetSalesErrors      Status = "Errors in worksheet (Net Sales)"
	StatusCreatingSKUs        Status = "Creating SKUs and PO"
	StatusSKUErrors           Status = "Errors in worksheet (Create SKUs and PO)"
	StatusSKUsCreated         Status = "SKUs Created"
	StatusCreatingPO          Status = "Creating PO"
	StatusPOCreated           Status = "PO Created"
	StatusPOReceived          Status = "PO Received"
	StatusInternalError       Status = "Internal Error"
)

var knownStatuses = map[Status]struct{}{
	StatusCreatingWorksheet:   {},
	StatusWorksheetCreated:    {},
	StatusCreatingBreakdown:   {},
	StatusBreakdownCreated:    {},
	StatusBreakdownErrors:     {},
	StatusCalculatingNetSales: {},
	StatusNetSalesCalculated:  {},
	StatusNetSalesErrors:      {},
	StatusCreatingSKUs:        {},
	StatusSKUErrors:           {},
	StatusSKUsCreated:         {},
	StatusCreatingPO:          {},
	StatusPOCreated:           {},
	StatusPOReceived:          {},
	StatusInternalError:       {},
}

// ParseStatus returns the status matching label exactly.
func ParseStatus(label string) (Status, bool) {
	s := Status(label)
	_, ok := knownStatuses[s]
	return s, ok
}

// Stage names a unit of pipeline work.
type Stage string

const (
	StageCreateWorksheet Stage = "create_worksheet"
	StageBreakdown       Stage = "breakdown"
	StageNetSales        Stage = "net_sales"
	StageSKUs            Stage = "skus_and_po"
	StageFinalize        Stage = "finalize_po"
)

var ErrInvalidTransition = errors.New("invalid status transition")

// Transition describes where a stage may start from and where it may end.
type Transition struct {
	From    []Status
	ATSFrom []Status
	Running Status
	To      []Status
}

// Transitions is the allowed-transition table, one entry per stage.
var Transitions = map[Stage]Transition{
	StageCreateWorksheet: {
		From:    []Status{StatusCreatingWorksheet},
		Running: StatusCreatingWorksheet,
		To:      []Status{StatusWorksheetCreated},
	},
	StageBreakdown: {
		From:    []Status{StatusWorksheetCreated, StatusBreakdownErrors, StatusBreakdownCreated},
		Running: StatusCreatingBreakdown,
		To:      []Status{StatusBreakdownCreated, StatusBreakdownErrors},
	},
	StageNetSales: {
		From:    []Status{StatusBreakdownCreated, StatusNetSalesErrors, StatusNetSalesCalculated},
		Running: StatusCalculatingNetSales,
		To:      []Status{StatusNetSalesCalculated, StatusNetSalesErrors},
	},
	StageSKUs: {
		From:    []Status{StatusNetSalesCalculated, StatusSKUErrors},
		ATSFrom: []Status{StatusWorksheetCreated, StatusSKUErrors},
		Running: StatusCreatingSKUs,
		To:      []Status{StatusSKUsCreated, StatusSKUErrors},
	},
	StageFinalize: {
		From:    []Status{StatusSKUsCreated},
		Running: StatusCreatingPO,
		To:      []Status{StatusPOCreated, StatusPOReceived, StatusSKUErrors},
	},
}

// CanStart reports whether stage may begin for po. A purchase order in
// Internal Error may only re-run the stage that failed.
func CanStart(stage Stage, po *PurchaseOrder) error {
	t, ok := Transitions[stage]
	if !ok {
		return fmt.Errorf("%w: unknown stage %q", ErrInvalidTransition, stage)
	}
	if po.Status == StatusInternalError && po.LastStage == stage {
		return nil
	}
	from := t.From
	if po.IsATS && t.ATSFrom != nil {
		from = t.ATSFrom
	}
	for _, s := range from {
		if s == po.Status {
			return nil
		}
	}
	return fmt.Errorf("%w: cannot run %s from %q", ErrInvalidTransition, stage, po.Status)
}

// CanFinish reports whether a running stage may settle on status.
// Internal Error is always reachable.
func CanFinish(stage Stage, status Status) bool {
	if status == StatusInternalError {
		return true
	}
	for _, s := range Transitions[stage].To {
		if s == status {
			return true
		}
	}
	return false
}

var undoTargets = map[Status]Status{
	StatusBreakdownCreated:   StatusWorksheetCreated,
	StatusNetSalesCalculated: StatusBreakdownCreated,
	StatusNetSalesErrors:     StatusBreakdownCreated,
}

// UndoTarget returns the status a purchase order returns to when its last step is undone.
func UndoTarget(current Status) (Status, error) {
	prev, ok := undoTargets[current]
	if !ok {
		return "", fmt.Errorf("%w: cannot undo from %q", ErrInvalidTransition, current)
	}
	return prev, nil
}
