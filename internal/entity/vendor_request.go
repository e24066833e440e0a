package entity

import (
	"encoding/json"
	"time"

	"github.com/uptrace/bun"
)

// VendorRequestStatus enumerates the states of an outbound vendor ask.
type VendorRequestStatus string

const (
	VendorRequestStatusSent      VendorRequestStatus = "SENT"
	VendorRequestStatusResponded VendorRequestStatus = "RESPONDED"
	VendorRequestStatusExpired   VendorRequestStatus = "EXPIRED"
	VendorRequestStatusCancelled VendorRequestStatus = "CANCELLED"
)

// DefaultResponseEditLimit bounds how many times a vendor may revise a
// submitted response.
const DefaultResponseEditLimit = 3

// VendorRequest is one outbound, token-addressed ask to a vendor for a quote.
// The snapshot is written once at creation and never updated, even if the
// live quote's items change afterwards.
type VendorRequest struct {
	bun.BaseModel `bun:"table:vendor_requests,alias:vr"`

	ID                int64               `bun:",pk,autoincrement"`
	QuoteID           int64               `bun:"quote_id,notnull"`
	VendorName        string              `bun:"vendor_name"`
	VendorEmail       string              `bun:"vendor_email,notnull"`
	Token             string              `bun:"token,notnull,unique"`
	Status            VendorRequestStatus `bun:"status,notnull"`
	Snapshot          json.RawMessage     `bun:"snapshot,type:jsonb"`
	Message           string              `bun:"message"`
	ExpiresAt         time.Time           `bun:"expires_at,notnull"`
	RespondedAt       *time.Time          `bun:"responded_at,nullzero"`
	ResponseEditCount int                 `bun:"response_edit_count,notnull,default:0"`
	ResponseEditLimit int                 `bun:"response_edit_limit,notnull"`
	CreatedAt         time.Time           `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time           `bun:"updated_at,nullzero"`
}

// EffectiveStatus re-derives the request status at read time: a SENT request
// past its expiry instant is EXPIRED even if no write has happened yet.
func (r *VendorRequest) EffectiveStatus(now time.Time) VendorRequestStatus {
	if r.Status == VendorRequestStatusSent && now.After(r.ExpiresAt) {
		return VendorRequestStatusExpired
	}
	return r.Status
}

// SnapshotItem is one frozen quote line as shown to the vendor.
type SnapshotItem struct {
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

// SnapshotItems decodes the frozen item list.
func (r *VendorRequest) SnapshotItems() ([]SnapshotItem, error) {
	if len(r.Snapshot) == 0 {
		return nil, nil
	}
	var items []SnapshotItem
	if err := json.Unmarshal(r.Snapshot, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// VendorResponseItem is one vendor-priced line, keyed by request and
// snapshot line number. Superseded values overwrite in place.
type VendorResponseItem struct {
	bun.BaseModel `bun:"table:vendor_response_items,alias:vri"`

	ID              int64     `bun:",pk,autoincrement"`
	VendorRequestID int64     `bun:"vendor_request_id,notnull"`
	LineNo          int       `bun:"line_no,notnull"`
	UnitPrice       int64     `bun:"unit_price,notnull"`
	Currency        string    `bun:"currency,notnull"`
	LeadTimeDays    *int      `bun:"lead_time_days,nullzero"`
	MinOrderQty     *int64    `bun:"min_order_qty,nullzero"`
	VendorSKU       string    `bun:"vendor_sku"`
	Notes           string    `bun:"notes"`
	CreatedAt       time.Time `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time `bun:"updated_at,nullzero"`
}
