package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// Scope is the user-or-organization key under which a budget is held.
type Scope struct {
	UserID         int64
	OrganizationID *int64
}

// Budget is a monetary allowance bound to a user or organization scope.
// remaining is maintained by the ledger, never by a stored formula.
type Budget struct {
	bun.BaseModel `bun:"table:budgets,alias:b"`

	ID              int64      `bun:",pk,autoincrement"`
	UserID          int64      `bun:"user_id,notnull"`
	OrganizationID  *int64     `bun:"organization_id,nullzero"`
	Name            string     `bun:"name"`
	TotalAmount     int64      `bun:"total_amount,notnull"`
	UsedAmount      int64      `bun:"used_amount,notnull,default:0"`
	RemainingAmount int64      `bun:"remaining_amount,notnull"`
	Currency        string     `bun:"currency,notnull"`
	IsActive        bool       `bun:"is_active,notnull,default:true"`
	FiscalStart     *time.Time `bun:"fiscal_start,nullzero"`
	FiscalEnd       *time.Time `bun:"fiscal_end,nullzero"`
	CreatedAt       time.Time  `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time  `bun:"updated_at,nullzero"`
}

// TransactionDirection marks a ledger entry as a debit or credit.
type TransactionDirection string

const (
	TransactionDebit  TransactionDirection = "DEBIT"
	TransactionCredit TransactionDirection = "CREDIT"
)

// BudgetTransaction is an append-only ledger row. balance_before and
// balance_after are frozen at application time so the budget's remaining
// amount can be reconstructed independently of the mutable budget row.
type BudgetTransaction struct {
	bun.BaseModel `bun:"table:budget_transactions,alias:bt"`

	ID            int64                `bun:",pk,autoincrement"`
	BudgetID      int64                `bun:"budget_id,notnull"`
	OrderID       *int64               `bun:"order_id,nullzero"`
	Direction     TransactionDirection `bun:"direction,notnull"`
	Amount        int64                `bun:"amount,notnull"`
	Description   string               `bun:"description"`
	BalanceBefore int64                `bun:"balance_before,notnull"`
	BalanceAfter  int64                `bun:"balance_after,notnull"`
	CreatedAt     time.Time            `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
}
