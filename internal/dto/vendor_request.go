package dto

import "time"

// VendorRequestResponse is the owner-facing view of an outbound vendor ask.
// The token is included so the owner can resend the link.
type VendorRequestResponse struct {
	ID                int64      `json:"id"`
	QuoteID           int64      `json:"quote_id"`
	VendorName        string     `json:"vendor_name,omitempty"`
	VendorEmail       string     `json:"vendor_email"`
	Token             string     `json:"token"`
	Status            string     `json:"status"`
	Message           string     `json:"message,omitempty"`
	ExpiresAt         time.Time  `json:"expires_at"`
	RespondedAt       *time.Time `json:"responded_at,omitempty"`
	ResponseEditCount int        `json:"response_edit_count"`
	ResponseEditLimit int        `json:"response_edit_limit"`
	CreatedAt         time.Time  `json:"created_at"`
}

// VendorRequestCreatedResponse pairs a created request with the outcome of
// its email dispatch.
type VendorRequestCreatedResponse struct {
	VendorRequestResponse
	EmailSent bool `json:"email_sent"`
}

// SnapshotItemResponse is one frozen quote line as shown to the vendor.
type SnapshotItemResponse struct {
	LineNo        int    `json:"line_no"`
	Name          string `json:"name"`
	Brand         string `json:"brand,omitempty"`
	CatalogNumber string `json:"catalog_number,omitempty"`
	Quantity      int64  `json:"quantity"`
	Unit          string `json:"unit,omitempty"`
	UnitPrice     *int64 `json:"unit_price,omitempty"`
	PackSize      string `json:"pack_size,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

// PublicVendorRequestResponse is the token-addressed view served to vendors.
// It deliberately omits requester identity and internal identifiers.
type PublicVendorRequestResponse struct {
	VendorName        string                       `json:"vendor_name,omitempty"`
	Status            string                       `json:"status"`
	Message           string                       `json:"message,omitempty"`
	ExpiresAt         time.Time                    `json:"expires_at"`
	RespondedAt       *time.Time                   `json:"responded_at,omitempty"`
	ResponseEditCount int                          `json:"response_edit_count"`
	ResponseEditLimit int                          `json:"response_edit_limit"`
	Items             []SnapshotItemResponse       `json:"items"`
	Responses         []VendorResponseItemResponse `json:"responses,omitempty"`
}

// VendorResponseItemResponse is one vendor-priced line.
type VendorResponseItemResponse struct {
	LineNo       int       `json:"line_no"`
	UnitPrice    int64     `json:"unit_price"`
	Currency     string    `json:"currency"`
	LeadTimeDays *int      `json:"lead_time_days,omitempty"`
	MinOrderQty  *int64    `json:"min_order_qty,omitempty"`
	VendorSKU    string    `json:"vendor_sku,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// VendorResponseSubmittedResponse summarizes an accepted submission.
type VendorResponseSubmittedResponse struct {
	Status       string `json:"status"`
	IsEdit       bool   `json:"is_edit"`
	EditCount    int    `json:"edit_count"`
	EditLimit    int    `json:"edit_limit"`
	ChangedLines int    `json:"changed_lines"`
}
