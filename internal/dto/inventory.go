package dto

import "time"

// InventoryItemResponse is a stock position materialized from a delivery.
type InventoryItemResponse struct {
	ID            int64     `json:"id"`
	OrderItemID   *int64    `json:"order_item_id,omitempty"`
	Name          string    `json:"name"`
	Brand         string    `json:"brand,omitempty"`
	CatalogNumber string    `json:"catalog_number,omitempty"`
	Quantity      int64     `json:"quantity"`
	Unit          string    `json:"unit"`
	Location      string    `json:"location"`
	Status        string    `json:"status"`
	ReceivedAt    time.Time `json:"received_at"`
	CreatedAt     time.Time `json:"created_at"`
}
