package order

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"go.uber.org/zap"

	"github.com/lablane/procure/internal/cache"
	"github.com/lablane/procure/internal/config"
	"github.com/lablane/procure/internal/database"
	"github.com/lablane/procure/internal/entity"
	"github.com/lablane/procure/internal/notify"
	"github.com/lablane/procure/internal/principal"
	budgetrepo "github.com/lablane/procure/internal/repository/budget"
	inventoryrepo "github.com/lablane/procure/internal/repository/inventory"
	repo "github.com/lablane/procure/internal/repository/order"
	quoterepo "github.com/lablane/procure/internal/repository/quote"
	budgetsvc "github.com/lablane/procure/internal/service/budget"
	"github.com/lablane/procure/pkg/errorbank"
)

type fixture struct {
	svc    *Service
	ledger *budgetsvc.Ledger
	quotes *quoterepo.Repository
	db     *bun.DB
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	sqldb, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	models := []any{
		(*entity.Quote)(nil),
		(*entity.QuoteItem)(nil),
		(*entity.Budget)(nil),
		(*entity.BudgetTransaction)(nil),
		(*entity.Order)(nil),
		(*entity.OrderItem)(nil),
		(*entity.InventoryItem)(nil),
	}
	for _, model := range models {
		_, err := db.NewCreateTable().Model(model).Exec(ctx)
		require.NoError(t, err)
	}

	conns := &database.Connections{Writer: db, Reader: db}
	cfg := config.Config{
		Cache:       config.Cache{DefaultTTL: time.Minute},
		Procurement: config.Procurement{DefaultCurrency: "KRW", OrderNumberPrefix: "ORD"},
	}
	quotes := quoterepo.NewRepository(conns)
	ledger := budgetsvc.NewLedger(budgetsvc.Params{
		Repository: budgetrepo.NewRepository(conns),
		Config:     cfg,
		Logger:     zap.NewNop(),
	})
	svc := NewService(Params{
		Connections: conns,
		Repository:  repo.NewRepository(conns),
		Quotes:      quotes,
		Inventory:   inventoryrepo.NewRepository(conns),
		Ledger:      ledger,
		Cache:       cache.Nop(),
		Config:      cfg,
		Logger:      zap.NewNop(),
		Notifier:    notify.Nop(),
	})
	return &fixture{svc: svc, ledger: ledger, quotes: quotes, db: db}
}

var owner = principal.Principal{UserID: 1}

func (f *fixture) seedBudget(t *testing.T, total int64) *entity.Budget {
	t.Helper()

	budget, err := f.ledger.CreateBudget(context.Background(), owner, "Lab budget", total, "", nil, nil)
	require.NoError(t, err)
	return budget
}

func (f *fixture) seedCompletedQuote(t *testing.T, lineTotals ...int64) *entity.Quote {
	t.Helper()

	now := time.Now().UTC()
	quote := &entity.Quote{
		UserID:    1,
		Status:    entity.QuoteStatusCompleted,
		Currency:  "KRW",
		CreatedAt: now,
		UpdatedAt: now,
	}
	for i, total := range lineTotals {
		lineTotal := total
		unitPrice := total
		quote.Items = append(quote.Items, &entity.QuoteItem{
			Name:      "Item " + string(rune('A'+i)),
			Quantity:  1,
			Unit:      "ea",
			UnitPrice: &unitPrice,
			LineTotal: &lineTotal,
			CreatedAt: now,
		})
	}
	require.NoError(t, f.quotes.Create(context.Background(), quote))
	return quote
}

func TestConvert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	budget := f.seedBudget(t, 100_000)
	quote := f.seedCompletedQuote(t, 30_000, 20_000)

	order, err := f.svc.Convert(ctx, owner, quote.ID, "123 Lab Way", "deliver to loading dock")
	require.NoError(t, err)

	assert.Equal(t, entity.OrderStatusOrdered, order.Status)
	assert.Equal(t, int64(50_000), order.TotalAmount)
	assert.True(t, strings.HasPrefix(order.Number, "ORD-"), "number %q", order.Number)
	require.Len(t, order.Items, 2)

	// The quote is terminal and the budget carries the debit.
	purchased, err := f.quotes.GetByID(ctx, quote.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.QuoteStatusPurchased, purchased.Status)

	reloaded := new(entity.Budget)
	require.NoError(t, f.db.NewSelect().Model(reloaded).Where("b.id = ?", budget.ID).Scan(ctx))
	assert.Equal(t, int64(50_000), reloaded.RemainingAmount)
	assert.Equal(t, int64(50_000), reloaded.UsedAmount)

	var txns []*entity.BudgetTransaction
	require.NoError(t, f.db.NewSelect().Model(&txns).Scan(ctx))
	require.Len(t, txns, 1)
	require.NotNil(t, txns[0].OrderID)
	assert.Equal(t, order.ID, *txns[0].OrderID)
	assert.Equal(t, int64(100_000), txns[0].BalanceBefore)
	assert.Equal(t, int64(50_000), txns[0].BalanceAfter)
}

func TestConvertUsesQuoteTotalWhenSet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedBudget(t, 100_000)
	quote := f.seedCompletedQuote(t, 30_000)

	total := int64(27_500)
	_, err := f.db.NewUpdate().Model((*entity.Quote)(nil)).
		Set("total_amount = ?", total).
		Where("q.id = ?", quote.ID).
		Exec(ctx)
	require.NoError(t, err)

	order, err := f.svc.Convert(ctx, owner, quote.ID, "", "")
	require.NoError(t, err)
	assert.Equal(t, total, order.TotalAmount)
}

func TestConvertRequiresCompletedQuote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedBudget(t, 100_000)
	quote := f.seedCompletedQuote(t, 30_000)

	_, err := f.db.NewUpdate().Model((*entity.Quote)(nil)).
		Set("status = ?", entity.QuoteStatusPending).
		Where("q.id = ?", quote.ID).
		Exec(ctx)
	require.NoError(t, err)

	_, err = f.svc.Convert(ctx, owner, quote.ID, "", "")
	require.Error(t, err)
	appErr := errorbank.From(err)
	assert.Equal(t, errorbank.KindConflict, appErr.Kind())
	assert.Equal(t, entity.QuoteStatusPending, appErr.Details()["current"])
}

func TestConvertTwiceConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	budget := f.seedBudget(t, 100_000)
	quote := f.seedCompletedQuote(t, 30_000)

	_, err := f.svc.Convert(ctx, owner, quote.ID, "", "")
	require.NoError(t, err)

	_, err = f.svc.Convert(ctx, owner, quote.ID, "", "")
	require.Error(t, err)
	assert.Equal(t, errorbank.KindConflict, errorbank.From(err).Kind())

	// Exactly one debit was applied.
	reloaded := new(entity.Budget)
	require.NoError(t, f.db.NewSelect().Model(reloaded).Where("b.id = ?", budget.ID).Scan(ctx))
	assert.Equal(t, int64(70_000), reloaded.RemainingAmount)
}

func TestConvertInsufficientBudgetLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedBudget(t, 10_000)
	quote := f.seedCompletedQuote(t, 30_000)

	_, err := f.svc.Convert(ctx, owner, quote.ID, "", "")
	require.Error(t, err)
	assert.Equal(t, errorbank.KindUnprocessableEntity, errorbank.From(err).Kind())

	// Authorization failure rolls everything back.
	count, err := f.db.NewSelect().Model((*entity.Order)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	count, err = f.db.NewSelect().Model((*entity.BudgetTransaction)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	unchanged, err := f.quotes.GetByID(ctx, quote.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.QuoteStatusCompleted, unchanged.Status)
}

func TestConvertOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedBudget(t, 100_000)
	quote := f.seedCompletedQuote(t, 30_000)

	_, err := f.svc.Convert(ctx, principal.Principal{UserID: 2}, quote.ID, "", "")
	require.Error(t, err)
	assert.Equal(t, errorbank.KindForbidden, errorbank.From(err).Kind())

	_, err = f.svc.Convert(ctx, owner, 9_999, "", "")
	require.Error(t, err)
	assert.Equal(t, errorbank.KindNotFound, errorbank.From(err).Kind())
}

func TestFulfillmentTransitions(t *testing.T) {
	assert.True(t, CanTransition(entity.OrderStatusOrdered, entity.OrderStatusConfirmed))
	assert.True(t, CanTransition(entity.OrderStatusOrdered, entity.OrderStatusCancelled))
	assert.True(t, CanTransition(entity.OrderStatusShipping, entity.OrderStatusDelivered))
	assert.False(t, CanTransition(entity.OrderStatusOrdered, entity.OrderStatusDelivered))
	assert.False(t, CanTransition(entity.OrderStatusDelivered, entity.OrderStatusShipping))
	assert.False(t, CanTransition(entity.OrderStatusCancelled, entity.OrderStatusOrdered))
	assert.Empty(t, AllowedTargets(entity.OrderStatusDelivered))
}

func TestTransitionIllegalMove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedBudget(t, 100_000)
	quote := f.seedCompletedQuote(t, 30_000)

	order, err := f.svc.Convert(ctx, owner, quote.ID, "", "")
	require.NoError(t, err)

	_, err = f.svc.Transition(ctx, owner, order.ID, entity.OrderStatusDelivered, "")
	require.Error(t, err)
	appErr := errorbank.From(err)
	assert.Equal(t, errorbank.KindConflict, appErr.Kind())
	assert.Equal(t, entity.OrderStatusOrdered, appErr.Details()["current"])
}

func TestDeliveryMaterializesInventory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedBudget(t, 100_000)
	quote := f.seedCompletedQuote(t, 30_000, 20_000)

	order, err := f.svc.Convert(ctx, owner, quote.ID, "", "")
	require.NoError(t, err)

	for _, target := range []entity.OrderStatus{
		entity.OrderStatusConfirmed,
		entity.OrderStatusShipping,
		entity.OrderStatusDelivered,
	} {
		order, err = f.svc.Transition(ctx, owner, order.ID, target, "")
		require.NoError(t, err)
	}

	assert.Equal(t, entity.OrderStatusDelivered, order.Status)
	require.NotNil(t, order.ActualDelivery)

	items, err := f.svc.ListInventory(ctx, owner)
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, item := range items {
		assert.Equal(t, entity.InventoryStatusInStock, item.Status)
		assert.Equal(t, entity.DefaultInventoryLocation, item.Location)
		assert.Equal(t, "ea", item.Unit)
		require.NotNil(t, item.OrderItemID)
		assert.False(t, item.ReceivedAt.IsZero())
	}

	// Delivery happens once; no further moves allowed.
	_, err = f.svc.Transition(ctx, owner, order.ID, entity.OrderStatusCancelled, "")
	require.Error(t, err)
	assert.Equal(t, errorbank.KindConflict, errorbank.From(err).Kind())
}

func TestTransitionOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedBudget(t, 100_000)
	quote := f.seedCompletedQuote(t, 30_000)

	order, err := f.svc.Convert(ctx, owner, quote.ID, "", "")
	require.NoError(t, err)

	_, err = f.svc.Transition(ctx, principal.Principal{UserID: 2}, order.ID, entity.OrderStatusConfirmed, "")
	require.Error(t, err)
	assert.Equal(t, errorbank.KindForbidden, errorbank.From(err).Kind())
}
