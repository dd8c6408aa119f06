package domain

import (
	"errors"
	"time"
)

// ErrWorksheetMissing is returned when a stage needs the backing worksheet of a
// purchase order that has not been created yet.
var ErrWorksheetMissing = errors.New("could not find spreadsheet associated with this purchase order")

// PurchaseOrder is the aggregate every pipeline stage reads and updates.
type PurchaseOrder struct {
	ID                 int64          `json:"id" db:"id"`
	Name               string         `json:"name" db:"name"`
	IsATS              bool           `json:"is_ats" db:"is_ats"`
	Currency           string         `json:"currency" db:"currency"`
	CurrencyConversion float64        `json:"currency_conversion" db:"currency_conversion"`
	DateCreated        time.Time      `json:"date_created" db:"date_created"`
	Status             Status         `json:"status" db:"status"`
	LastStage          Stage          `json:"last_stage,omitempty" db:"last_stage"`
	WorksheetID        *string        `json:"worksheet_id,omitempty" db:"worksheet_id"`
	AdditionalFees     AdditionalFees `json:"additional_fees" db:"-"`
	ExternalPOID       *int64         `json:"po_id,omitempty" db:"external_po_id"`
	CatalogJobID       *int64         `json:"catalog_job_id,omitempty" db:"catalog_job_id"`

	// PendingCatalogSKUs maps SKUs already created in the POS to their POS
	// system IDs until the catalog import for them has been queued.
	PendingCatalogSKUs map[string]string `json:"pending_catalog_skus,omitempty" db:"-"`

	Logs []LogEntry `json:"logs" db:"-"`
}

// AdditionalFees are non-product costs spread across product groups by the net-sales stage.
type AdditionalFees struct {
	Shipping float64 `json:"shipping" db:"shipping_fee"`
	Customs  float64 `json:"customs" db:"customs_fee"`
	Other    float64 `json:"other" db:"other_fee"`
}

// Total returns the sum of all additional fees.
func (f AdditionalFees) Total() float64 {
	return f.Shipping + f.Customs + f.Other
}

// Worksheet returns the worksheet identifier or ErrWorksheetMissing.
func (po *PurchaseOrder) Worksheet() (string, error) {
	if po.WorksheetID == nil || *po.WorksheetID == "" {
		return "", ErrWorksheetMissing
	}
	return *po.WorksheetID, nil
}

type LogCategory string

const (
	LogCategoryLog   LogCategory = "log"
	LogCategoryError LogCategory = "error"
)

// InternalUser is recorded as the author of log entries written by the pipeline.
const InternalUser = "Internal"

// LogEntry is one line of a purchase order's append-only log.
type LogEntry struct {
	User      string      `json:"user" db:"user_name"`
	Message   string      `json:"message" db:"message"`
	Category  LogCategory `json:"type" db:"category"`
	Timestamp time.Time   `json:"timestamp" db:"created_at"`
}

// InfoLog builds an informational entry authored by the pipeline.
func InfoLog(message string) LogEntry {
	return LogEntry{User: InternalUser, Message: message, Category: LogCategoryLog, Timestamp: time.Now().UTC()}
}

// ErrorLog builds an error entry authored by the pipeline.
func ErrorLog(message string) LogEntry {
	return LogEntry{User: InternalUser, Message: message, Category: LogCategoryError, Timestamp: time.Now().UTC()}
}

// NewPurchaseOrder is the input accepted when a user requests a new purchase order.
type NewPurchaseOrder struct {
	Name               string  `json:"name" binding:"required"`
	IsATS              bool    `json:"is_ats"`
	Currency           string  `json:"currency"`
	CurrencyConversion float64 `json:"currency_conversion"`
}

// PurchaseOrderUpdate carries the user-editable fields. Nil fields are left untouched.
type PurchaseOrderUpdate struct {
	Name               *string         `json:"name,omitempty"`
	Currency           *string         `json:"currency,omitempty"`
	CurrencyConversion *float64        `json:"currency_conversion,omitempty"`
	AdditionalFees     *AdditionalFees `json:"additional_fees,omitempty"`
	ExternalPOID       *int64          `json:"po_id,omitempty"`
	Status             *Status         `json:"status,omitempty"`
}
