package dto

import "time"

// QuoteResponse represents a quote as exposed via transport layers.
type QuoteResponse struct {
	ID             int64               `json:"id"`
	UserID         int64               `json:"user_id"`
	OrganizationID *int64              `json:"organization_id,omitempty"`
	Status         string              `json:"status"`
	TotalAmount    *int64              `json:"total_amount,omitempty"`
	Currency       string              `json:"currency"`
	Message        string              `json:"message,omitempty"`
	Items          []QuoteItemResponse `json:"items,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// QuoteItemResponse is one line of a quote.
type QuoteItemResponse struct {
	ID            int64  `json:"id"`
	ProductID     *int64 `json:"product_id,omitempty"`
	Name          string `json:"name"`
	Brand         string `json:"brand,omitempty"`
	CatalogNumber string `json:"catalog_number,omitempty"`
	Quantity      int64  `json:"quantity"`
	Unit          string `json:"unit,omitempty"`
	UnitPrice     *int64 `json:"unit_price,omitempty"`
	LineTotal     *int64 `json:"line_total,omitempty"`
	PackSize      string `json:"pack_size,omitempty"`
	Notes         string `json:"notes,omitempty"`
}
