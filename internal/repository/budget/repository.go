package budget

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lablane/procure/internal/database"
	"github.com/lablane/procure/internal/entity"
)

var repoTracer = otel.Tracer("github.com/lablane/procure/repository/budget")

// ErrNotFound is returned when no matching budget exists.
var ErrNotFound = errors.New("budget not found")

// Repository encapsulates read/write access for budgets and their ledger.
type Repository struct {
	writer bun.IDB
	reader bun.IDB
	name   dialect.Name
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{
		writer: conns.Writer,
		reader: conns.Reader,
		name:   conns.Writer.Dialect().Name(),
	}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *Repository) WithTx(tx bun.Tx) *Repository {
	return &Repository{writer: tx, reader: tx, name: r.name}
}

// ActiveForScope finds the most-recently-created active budget for the scope.
// With forUpdate set the row is locked so concurrent debits serialize on it.
func (r *Repository) ActiveForScope(ctx context.Context, scope entity.Scope, forUpdate bool) (*entity.Budget, error) {
	ctx, span := repoTracer.Start(ctx, "BudgetRepository.ActiveForScope", trace.WithAttributes(attribute.Int64("scope.user_id", scope.UserID)))
	defer span.End()

	budget := new(entity.Budget)
	q := r.writer.NewSelect().Model(budget).Where("b.is_active = ?", true)
	if scope.OrganizationID != nil {
		q = q.Where("b.organization_id = ?", *scope.OrganizationID)
	} else {
		q = q.Where("b.user_id = ?", scope.UserID).Where("b.organization_id IS NULL")
	}
	q = q.OrderExpr("b.created_at DESC, b.id DESC").Limit(1)
	if forUpdate && r.name != dialect.SQLite {
		// SQLite serializes writers on its own and rejects FOR UPDATE.
		q = q.For("UPDATE")
	}

	err := q.Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return budget, nil
}

// GetByID fetches a budget by primary key.
func (r *Repository) GetByID(ctx context.Context, id int64) (*entity.Budget, error) {
	ctx, span := repoTracer.Start(ctx, "BudgetRepository.GetByID", trace.WithAttributes(attribute.Int64("budget.id", id)))
	defer span.End()

	budget := new(entity.Budget)
	err := r.reader.NewSelect().Model(budget).Where("b.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return budget, nil
}

// Create persists a new budget.
func (r *Repository) Create(ctx context.Context, budget *entity.Budget) error {
	if budget == nil {
		return errors.New("nil budget")
	}
	ctx, span := repoTracer.Start(ctx, "BudgetRepository.Create")
	defer span.End()

	_, err := r.writer.NewInsert().Model(budget).Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
	}
	return err
}

// UpdateBalances writes the used/remaining amounts computed by the ledger.
func (r *Repository) UpdateBalances(ctx context.Context, budget *entity.Budget) error {
	ctx, span := repoTracer.Start(ctx, "BudgetRepository.UpdateBalances", trace.WithAttributes(attribute.Int64("budget.id", budget.ID)))
	defer span.End()

	_, err := r.writer.NewUpdate().Model(budget).
		Column("used_amount", "remaining_amount", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
	}
	return err
}

// Deactivate flips the active flag; budgets are never hard-deleted so
// historical transactions remain attributable.
func (r *Repository) Deactivate(ctx context.Context, id int64) error {
	ctx, span := repoTracer.Start(ctx, "BudgetRepository.Deactivate", trace.WithAttributes(attribute.Int64("budget.id", id)))
	defer span.End()

	res, err := r.writer.NewUpdate().Model((*entity.Budget)(nil)).
		Set("is_active = ?", false).
		Where("b.id = ?", id).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return err
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByScope returns all budgets held under the scope, newest first.
func (r *Repository) ListByScope(ctx context.Context, scope entity.Scope) ([]*entity.Budget, error) {
	ctx, span := repoTracer.Start(ctx, "BudgetRepository.ListByScope")
	defer span.End()

	var budgets []*entity.Budget
	q := r.reader.NewSelect().Model(&budgets)
	if scope.OrganizationID != nil {
		q = q.Where("b.organization_id = ?", *scope.OrganizationID)
	} else {
		q = q.Where("b.user_id = ?", scope.UserID).Where("b.organization_id IS NULL")
	}
	if err := q.OrderExpr("b.created_at DESC, b.id DESC").Scan(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return budgets, nil
}

// InsertTransaction appends an immutable ledger row.
func (r *Repository) InsertTransaction(ctx context.Context, txn *entity.BudgetTransaction) error {
	if txn == nil {
		return errors.New("nil transaction")
	}
	ctx, span := repoTracer.Start(ctx, "BudgetRepository.InsertTransaction", trace.WithAttributes(attribute.Int64("budget.id", txn.BudgetID)))
	defer span.End()

	_, err := r.writer.NewInsert().Model(txn).Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
	}
	return err
}

// ListTransactions returns the ledger rows for a budget, oldest first, so the
// balance can be replayed from the initial total.
func (r *Repository) ListTransactions(ctx context.Context, budgetID int64) ([]*entity.BudgetTransaction, error) {
	ctx, span := repoTracer.Start(ctx, "BudgetRepository.ListTransactions", trace.WithAttributes(attribute.Int64("budget.id", budgetID)))
	defer span.End()

	var txns []*entity.BudgetTransaction
	err := r.reader.NewSelect().Model(&txns).
		Where("bt.budget_id = ?", budgetID).
		OrderExpr("bt.id ASC").
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return txns, nil
}
