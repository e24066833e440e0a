package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// OrderStatus enumerates the fulfillment lifecycle states.
type OrderStatus string

const (
	OrderStatusOrdered   OrderStatus = "ORDERED"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusShipping  OrderStatus = "SHIPPING"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// Order is the durable result of converting a completed quote. The total is
// a price snapshot copied at conversion time, not a live recompute.
type Order struct {
	bun.BaseModel `bun:"table:orders,alias:o"`

	ID              int64       `bun:",pk,autoincrement"`
	UserID          int64       `bun:"user_id,notnull"`
	QuoteID         int64       `bun:"quote_id,notnull,unique"`
	OrganizationID  *int64      `bun:"organization_id,nullzero"`
	Number          string      `bun:"number,notnull"`
	Status          OrderStatus `bun:"status,notnull"`
	TotalAmount     int64       `bun:"total_amount,notnull"`
	Currency        string      `bun:"currency,notnull"`
	ShippingAddress string      `bun:"shipping_address"`
	Notes           string      `bun:"notes"`
	ActualDelivery  *time.Time  `bun:"actual_delivery,nullzero"`
	CreatedAt       time.Time   `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time   `bun:"updated_at,nullzero"`

	Items []*OrderItem `bun:"rel:has-many,join:id=order_id"`
}

// OrderItem is a value copy of a quote item taken at conversion time.
type OrderItem struct {
	bun.BaseModel `bun:"table:order_items,alias:oi"`

	ID            int64     `bun:",pk,autoincrement"`
	OrderID       int64     `bun:"order_id,notnull"`
	ProductID     *int64    `bun:"product_id,nullzero"`
	Name          string    `bun:"name,notnull"`
	Brand         string    `bun:"brand"`
	CatalogNumber string    `bun:"catalog_number"`
	Quantity      int64     `bun:"quantity,notnull"`
	Unit          string    `bun:"unit"`
	UnitPrice     *int64    `bun:"unit_price,nullzero"`
	LineTotal     *int64    `bun:"line_total,nullzero"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
}
