package dto

import "time"

// BudgetResponse represents a budget as exposed via transport layers.
type BudgetResponse struct {
	ID              int64      `json:"id"`
	UserID          int64      `json:"user_id"`
	OrganizationID  *int64     `json:"organization_id,omitempty"`
	Name            string     `json:"name,omitempty"`
	TotalAmount     int64      `json:"total_amount"`
	UsedAmount      int64      `json:"used_amount"`
	RemainingAmount int64      `json:"remaining_amount"`
	Currency        string     `json:"currency"`
	IsActive        bool       `json:"is_active"`
	FiscalStart     *time.Time `json:"fiscal_start,omitempty"`
	FiscalEnd       *time.Time `json:"fiscal_end,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// BudgetTransactionResponse is one append-only ledger entry.
type BudgetTransactionResponse struct {
	ID            int64     `json:"id"`
	BudgetID      int64     `json:"budget_id"`
	OrderID       *int64    `json:"order_id,omitempty"`
	Direction     string    `json:"direction"`
	Amount        int64     `json:"amount"`
	Description   string    `json:"description,omitempty"`
	BalanceBefore int64     `json:"balance_before"`
	BalanceAfter  int64     `json:"balance_after"`
	CreatedAt     time.Time `json:"created_at"`
}
