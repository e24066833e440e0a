package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// QuoteStatus enumerates the quote lifecycle states.
type QuoteStatus string

const (
	QuoteStatusPending   QuoteStatus = "PENDING"
	QuoteStatusParsed    QuoteStatus = "PARSED"
	QuoteStatusSent      QuoteStatus = "SENT"
	QuoteStatusResponded QuoteStatus = "RESPONDED"
	QuoteStatusCompleted QuoteStatus = "COMPLETED"
	QuoteStatusPurchased QuoteStatus = "PURCHASED"
	QuoteStatusCancelled QuoteStatus = "CANCELLED"
)

// Quote is a request for vendor pricing on a set of line items.
type Quote struct {
	bun.BaseModel `bun:"table:quotes,alias:q"`

	ID             int64       `bun:",pk,autoincrement"`
	UserID         int64       `bun:"user_id,notnull"`
	OrganizationID *int64      `bun:"organization_id,nullzero"`
	Status         QuoteStatus `bun:"status,notnull"`
	TotalAmount    *int64      `bun:"total_amount,nullzero"`
	Currency       string      `bun:"currency,notnull"`
	Message        string      `bun:"message"`
	CreatedAt      time.Time   `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time   `bun:"updated_at,nullzero"`

	Items []*QuoteItem `bun:"rel:has-many,join:id=quote_id"`
}

// QuoteItem is one line of a quote. Product details are denormalized at
// creation time so historical quotes stay readable if the product changes.
type QuoteItem struct {
	bun.BaseModel `bun:"table:quote_items,alias:qi"`

	ID            int64     `bun:",pk,autoincrement"`
	QuoteID       int64     `bun:"quote_id,notnull"`
	ProductID     *int64    `bun:"product_id,nullzero"`
	Name          string    `bun:"name,notnull"`
	Brand         string    `bun:"brand"`
	CatalogNumber string    `bun:"catalog_number"`
	Quantity      int64     `bun:"quantity,notnull"`
	Unit          string    `bun:"unit"`
	UnitPrice     *int64    `bun:"unit_price,nullzero"`
	LineTotal     *int64    `bun:"line_total,nullzero"`
	PackSize      string    `bun:"pack_size"`
	Notes         string    `bun:"notes"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
}
