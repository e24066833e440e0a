package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// InventoryStatus enumerates stock states.
type InventoryStatus string

const (
	InventoryStatusInStock InventoryStatus = "IN_STOCK"
)

const (
	// DefaultInventoryUnit is used when a delivered order item carries no unit.
	DefaultInventoryUnit = "ea"
	// DefaultInventoryLocation is assigned until stock is physically placed.
	DefaultInventoryLocation = "unassigned"
)

// InventoryItem is a queryable stock position materialized from a delivered
// order line item.
type InventoryItem struct {
	bun.BaseModel `bun:"table:inventory_items,alias:ii"`

	ID            int64           `bun:",pk,autoincrement"`
	UserID        int64           `bun:"user_id,notnull"`
	OrderItemID   *int64          `bun:"order_item_id,nullzero"`
	Name          string          `bun:"name,notnull"`
	Brand         string          `bun:"brand"`
	CatalogNumber string          `bun:"catalog_number"`
	Quantity      int64           `bun:"quantity,notnull"`
	Unit          string          `bun:"unit,notnull"`
	Location      string          `bun:"location,notnull"`
	Status        InventoryStatus `bun:"status,notnull"`
	ReceivedAt    time.Time       `bun:"received_at,notnull"`
	CreatedAt     time.Time       `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
}
