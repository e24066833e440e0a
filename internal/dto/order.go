package dto

import "time"

// OrderResponse represents an order as exposed via transport layers.
type OrderResponse struct {
	ID              int64               `json:"id"`
	UserID          int64               `json:"user_id"`
	QuoteID         int64               `json:"quote_id"`
	OrganizationID  *int64              `json:"organization_id,omitempty"`
	Number          string              `json:"number"`
	Status          string              `json:"status"`
	TotalAmount     int64               `json:"total_amount"`
	Currency        string              `json:"currency"`
	ShippingAddress string              `json:"shipping_address,omitempty"`
	Notes           string              `json:"notes,omitempty"`
	ActualDelivery  *time.Time          `json:"actual_delivery,omitempty"`
	Items           []OrderItemResponse `json:"items,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// OrderItemResponse is a value copy of a quote item at conversion time.
type OrderItemResponse struct {
	ID            int64  `json:"id"`
	ProductID     *int64 `json:"product_id,omitempty"`
	Name          string `json:"name"`
	Brand         string `json:"brand,omitempty"`
	CatalogNumber string `json:"catalog_number,omitempty"`
	Quantity      int64  `json:"quantity"`
	Unit          string `json:"unit,omitempty"`
	UnitPrice     *int64 `json:"unit_price,omitempty"`
	LineTotal     *int64 `json:"line_total,omitempty"`
}
