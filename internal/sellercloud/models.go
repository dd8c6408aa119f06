package sellercloud

// JobStatus is the state code of a queued job.
type JobStatus int

const (
	JobQueued JobStatus = iota
	JobInProgress
	JobCompleted
	JobFailed
	JobCompletedWithErrors
)

// Finished reports whether the job will not change state again.
func (s JobStatus) Finished() bool {
	return s == JobCompleted || s == JobFailed || s == JobCompletedWithErrors
}

func (s JobStatus) String() string {
	switch s {
	case JobQueued:
		return "queued"
	case JobInProgress:
		return "in progress"
	case JobCompleted:
		return "completed"
	case JobFailed:
		return "failed"
	case JobCompletedWithErrors:
		return "completed with errors"
	default:
		return "unknown"
	}
}

// CreateProduct is one catalog import line.
type CreateProduct struct {
	ProductID            string `json:"ProductID"`
	ProductName          string `json:"ProductName"`
	ManufacturerSKU      string `json:"ManufacturerSKU"`
	BrandName            string `json:"BrandName"`
	ListPrice            string `json:"ListPrice"`
	WebsitePrice         string `json:"WebsitePrice"`
	SitePrice            string `json:"SitePrice"`
	BuyItNowPrice        string `json:"BuyItNowPrice"`
	ProductTypeName      string `json:"ProductTypeName"`
	SiteCost             string `json:"SiteCost"`
	LightspeedPOSEnabled string `json:"LightspeedPOSEnabled"`
	LightspeedSystemID   string `json:"LIGHTSPEED_SYSTEM_ID"`
	UPC                  string `json:"UPC"`
	AssignToATS          bool   `json:"ASSIGN_TO_ATS"`
}

// POProduct is an order line.
type POProduct struct {
	ProductID       string  `json:"ProductID"`
	QtyUnitsOrdered int     `json:"QtyUnitsOrdered"`
	UnitPrice       float64 `json:"UnitPrice"`
}

// ReceiveItem receives a quantity of one order line.
type ReceiveItem struct {
	ID           string `json:"ID"`
	QtyToReceive int    `json:"QtyToReceive"`
}

// NewPurchaseOrder is the create-order request.
type NewPurchaseOrder struct {
	CompanyID          int         `json:"CompanyID"`
	VendorID           int         `json:"VendorID"`
	Description        string      `json:"Description"`
	Products           []POProduct `json:"Products"`
	DefaultWarehouseID int         `json:"DefaultWarehouseID"`
}
