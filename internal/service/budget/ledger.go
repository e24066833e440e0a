package budget

import (
	"context"
	"errors"
	"time"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/lablane/procure/internal/config"
	"github.com/lablane/procure/internal/entity"
	"github.com/lablane/procure/internal/principal"
	repo "github.com/lablane/procure/internal/repository/budget"
	"github.com/lablane/procure/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/lablane/procure/service/budget")

// Ledger owns the monetary balance per scope. Debits are applied atomically
// inside the caller's transaction and always leave an append-only
// BudgetTransaction behind.
type Ledger struct {
	repo            *repo.Repository
	logger          *zap.Logger
	defaultCurrency string
}

// Params defines dependencies for constructing Ledger.
type Params struct {
	fx.In

	Repository *repo.Repository
	Config     config.Config
	Logger     *zap.Logger
}

// NewLedger wires a new Ledger instance.
func NewLedger(p Params) *Ledger {
	return &Ledger{
		repo:            p.Repository,
		logger:          p.Logger,
		defaultCurrency: p.Config.Procurement.DefaultCurrency,
	}
}

// Authorize finds the most-recently-created active budget for the scope and
// checks it can cover amount. It runs on the caller's transaction and locks
// the budget row so two concurrent debits against a near-exhausted budget
// cannot both pass the sufficiency check.
func (l *Ledger) Authorize(ctx context.Context, tx bun.Tx, scope entity.Scope, amount int64) (*entity.Budget, error) {
	ctx, span := serviceTracer.Start(ctx, "BudgetLedger.Authorize", trace.WithAttributes(
		attribute.Int64("scope.user_id", scope.UserID),
		attribute.Int64("amount", amount),
	))
	defer span.End()

	budget, err := l.repo.WithTx(tx).ActiveForScope(ctx, scope, true)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, errorbank.Unprocessable("no active budget for scope")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to load budget", errorbank.WithCause(err))
	}

	if budget.RemainingAmount < amount {
		return nil, errorbank.Unprocessable("insufficient budget",
			errorbank.WithDetail("remaining", budget.RemainingAmount),
			errorbank.WithDetail("required", amount),
		)
	}

	return budget, nil
}

// Debit applies amount against an authorized budget. It must run inside the
// same transaction as the caller's other writes. balance_before and
// balance_after are frozen on the ledger row at application time.
func (l *Ledger) Debit(ctx context.Context, tx bun.Tx, budget *entity.Budget, amount int64, description string, orderID *int64) (*entity.BudgetTransaction, error) {
	ctx, span := serviceTracer.Start(ctx, "BudgetLedger.Debit", trace.WithAttributes(
		attribute.Int64("budget.id", budget.ID),
		attribute.Int64("amount", amount),
	))
	defer span.End()

	balanceBefore := budget.RemainingAmount
	balanceAfter := balanceBefore - amount
	if balanceAfter < 0 {
		// Debit without a prior successful Authorize is a programming error.
		return nil, errorbank.Internal("debit exceeds remaining budget")
	}

	txRepo := l.repo.WithTx(tx)
	now := time.Now().UTC()

	budget.UsedAmount += amount
	budget.RemainingAmount = balanceAfter
	budget.UpdatedAt = now
	if err := txRepo.UpdateBalances(ctx, budget); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "balance update failed")
		return nil, errorbank.Internal("failed to update budget balance", errorbank.WithCause(err))
	}

	txn := &entity.BudgetTransaction{
		BudgetID:      budget.ID,
		OrderID:       orderID,
		Direction:     entity.TransactionDebit,
		Amount:        amount,
		Description:   description,
		BalanceBefore: balanceBefore,
		BalanceAfter:  balanceAfter,
		CreatedAt:     now,
	}
	if err := txRepo.InsertTransaction(ctx, txn); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ledger insert failed")
		return nil, errorbank.Internal("failed to record budget transaction", errorbank.WithCause(err))
	}

	return txn, nil
}

// CreateBudget provisions a new allowance for the caller's scope.
// Organization-scoped budgets require the admin role.
func (l *Ledger) CreateBudget(ctx context.Context, p principal.Principal, name string, total int64, currency string, fiscalStart, fiscalEnd *time.Time) (*entity.Budget, error) {
	ctx, span := serviceTracer.Start(ctx, "BudgetLedger.CreateBudget", trace.WithAttributes(attribute.Int64("user.id", p.UserID)))
	defer span.End()

	if total <= 0 {
		return nil, errorbank.BadRequest("budget total must be positive")
	}
	if p.OrganizationID != nil && !p.IsAdmin() {
		return nil, errorbank.Forbidden("organization budgets require the admin role")
	}
	if currency == "" {
		currency = l.defaultCurrency
	}

	now := time.Now().UTC()
	budget := &entity.Budget{
		UserID:          p.UserID,
		OrganizationID:  p.OrganizationID,
		Name:            name,
		TotalAmount:     total,
		UsedAmount:      0,
		RemainingAmount: total,
		Currency:        currency,
		IsActive:        true,
		FiscalStart:     fiscalStart,
		FiscalEnd:       fiscalEnd,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := l.repo.Create(ctx, budget); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to create budget", errorbank.WithCause(err))
	}

	l.logger.Info("budget created",
		zap.Int64("budget_id", budget.ID),
		zap.Int64("total", budget.TotalAmount),
		zap.String("currency", budget.Currency),
	)
	return budget, nil
}

// ListBudgets returns the budgets held under the caller's scope.
func (l *Ledger) ListBudgets(ctx context.Context, p principal.Principal) ([]*entity.Budget, error) {
	ctx, span := serviceTracer.Start(ctx, "BudgetLedger.ListBudgets")
	defer span.End()

	budgets, err := l.repo.ListByScope(ctx, p.Scope())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to list budgets", errorbank.WithCause(err))
	}
	return budgets, nil
}

// Deactivate retires a budget from authorization without deleting it.
func (l *Ledger) Deactivate(ctx context.Context, p principal.Principal, budgetID int64) error {
	ctx, span := serviceTracer.Start(ctx, "BudgetLedger.Deactivate", trace.WithAttributes(attribute.Int64("budget.id", budgetID)))
	defer span.End()

	budget, err := l.repo.GetByID(ctx, budgetID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return errorbank.NotFound("budget not found")
		}
		return errorbank.Internal("failed to load budget", errorbank.WithCause(err))
	}
	if budget.UserID != p.UserID && !p.IsAdmin() {
		return errorbank.Forbidden("not allowed to deactivate this budget")
	}

	if err := l.repo.Deactivate(ctx, budgetID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return errorbank.Internal("failed to deactivate budget", errorbank.WithCause(err))
	}
	return nil
}

// ListTransactions returns the append-only ledger for a budget.
func (l *Ledger) ListTransactions(ctx context.Context, budgetID int64) ([]*entity.BudgetTransaction, error) {
	ctx, span := serviceTracer.Start(ctx, "BudgetLedger.ListTransactions", trace.WithAttributes(attribute.Int64("budget.id", budgetID)))
	defer span.End()

	txns, err := l.repo.ListTransactions(ctx, budgetID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to list transactions", errorbank.WithCause(err))
	}
	return txns, nil
}

// Reconcile replays the ledger from the budget's total and reports whether
// the stored used/remaining amounts match the replayed values.
func (l *Ledger) Reconcile(ctx context.Context, budgetID int64) (bool, int64, error) {
	ctx, span := serviceTracer.Start(ctx, "BudgetLedger.Reconcile", trace.WithAttributes(attribute.Int64("budget.id", budgetID)))
	defer span.End()

	budget, err := l.repo.GetByID(ctx, budgetID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return false, 0, errorbank.NotFound("budget not found")
		}
		return false, 0, errorbank.Internal("failed to load budget", errorbank.WithCause(err))
	}

	txns, err := l.repo.ListTransactions(ctx, budgetID)
	if err != nil {
		return false, 0, errorbank.Internal("failed to list transactions", errorbank.WithCause(err))
	}

	remaining := budget.TotalAmount
	for _, txn := range txns {
		switch txn.Direction {
		case entity.TransactionDebit:
			remaining -= txn.Amount
		case entity.TransactionCredit:
			remaining += txn.Amount
		}
	}

	ok := remaining == budget.RemainingAmount && budget.TotalAmount-remaining == budget.UsedAmount
	if !ok {
		l.logger.Warn("budget ledger drift detected",
			zap.Int64("budget_id", budgetID),
			zap.Int64("stored_remaining", budget.RemainingAmount),
			zap.Int64("replayed_remaining", remaining),
		)
	}
	return ok, remaining, nil
}
