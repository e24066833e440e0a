package budget

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"go.uber.org/zap"

	"github.com/lablane/procure/internal/config"
	"github.com/lablane/procure/internal/database"
	"github.com/lablane/procure/internal/entity"
	"github.com/lablane/procure/internal/principal"
	repo "github.com/lablane/procure/internal/repository/budget"
	"github.com/lablane/procure/pkg/errorbank"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	for _, model := range []any{(*entity.Budget)(nil), (*entity.BudgetTransaction)(nil)} {
		_, err := db.NewCreateTable().Model(model).Exec(ctx)
		require.NoError(t, err)
	}
	return db
}

func newTestLedger(t *testing.T) (*Ledger, *bun.DB) {
	t.Helper()

	db := newTestDB(t)
	conns := &database.Connections{Writer: db, Reader: db}
	ledger := NewLedger(Params{
		Repository: repo.NewRepository(conns),
		Config:     config.Config{Procurement: config.Procurement{DefaultCurrency: "KRW"}},
		Logger:     zap.NewNop(),
	})
	return ledger, db
}

func TestCreateBudget(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()
	owner := principal.Principal{UserID: 1}

	budget, err := ledger.CreateBudget(ctx, owner, "Lab budget", 100_000, "", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(100_000), budget.TotalAmount)
	assert.Equal(t, int64(100_000), budget.RemainingAmount)
	assert.Equal(t, int64(0), budget.UsedAmount)
	assert.Equal(t, "KRW", budget.Currency)
	assert.True(t, budget.IsActive)

	_, err = ledger.CreateBudget(ctx, owner, "empty", 0, "", nil, nil)
	require.Error(t, err)
	assert.Equal(t, errorbank.KindBadRequest, errorbank.From(err).Kind())
}

func TestCreateBudgetOrganizationRequiresAdmin(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()
	orgID := int64(7)

	member := principal.Principal{UserID: 1, OrganizationID: &orgID}
	_, err := ledger.CreateBudget(ctx, member, "Org budget", 100_000, "", nil, nil)
	require.Error(t, err)
	assert.Equal(t, errorbank.KindForbidden, errorbank.From(err).Kind())

	admin := principal.Principal{UserID: 1, OrganizationID: &orgID, Role: principal.RoleAdmin}
	budget, err := ledger.CreateBudget(ctx, admin, "Org budget", 100_000, "", nil, nil)
	require.NoError(t, err)
	require.NotNil(t, budget.OrganizationID)
	assert.Equal(t, orgID, *budget.OrganizationID)
}

func TestAuthorizeAndDebit(t *testing.T) {
	ledger, db := newTestLedger(t)
	ctx := context.Background()
	owner := principal.Principal{UserID: 1}
	scope := entity.Scope{UserID: 1}

	budget, err := ledger.CreateBudget(ctx, owner, "Lab budget", 100_000, "", nil, nil)
	require.NoError(t, err)

	var txn *entity.BudgetTransaction
	err = db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		authorized, err := ledger.Authorize(ctx, tx, scope, 80_000)
		if err != nil {
			return err
		}
		txn, err = ledger.Debit(ctx, tx, authorized, 80_000, "order ORD-1", nil)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(100_000), txn.BalanceBefore)
	assert.Equal(t, int64(20_000), txn.BalanceAfter)
	assert.Equal(t, entity.TransactionDebit, txn.Direction)

	reloaded := new(entity.Budget)
	require.NoError(t, db.NewSelect().Model(reloaded).Where("b.id = ?", budget.ID).Scan(ctx))
	assert.Equal(t, int64(80_000), reloaded.UsedAmount)
	assert.Equal(t, int64(20_000), reloaded.RemainingAmount)

	// 20,000 remaining cannot cover 30,000.
	err = db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		_, err := ledger.Authorize(ctx, tx, scope, 30_000)
		return err
	})
	require.Error(t, err)
	appErr := errorbank.From(err)
	assert.Equal(t, errorbank.KindUnprocessableEntity, appErr.Kind())
	assert.Equal(t, int64(20_000), appErr.Details()["remaining"])
	assert.Equal(t, int64(30_000), appErr.Details()["required"])

	err = db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		_, err := ledger.Authorize(ctx, tx, scope, 20_000)
		return err
	})
	require.NoError(t, err)
}

func TestAuthorizeWithoutBudget(t *testing.T) {
	ledger, db := newTestLedger(t)
	ctx := context.Background()

	err := db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		_, err := ledger.Authorize(ctx, tx, entity.Scope{UserID: 42}, 1)
		return err
	})
	require.Error(t, err)
	assert.Equal(t, errorbank.KindUnprocessableEntity, errorbank.From(err).Kind())
}

func TestAuthorizePicksNewestActiveBudget(t *testing.T) {
	ledger, db := newTestLedger(t)
	ctx := context.Background()
	owner := principal.Principal{UserID: 1}
	scope := entity.Scope{UserID: 1}

	old, err := ledger.CreateBudget(ctx, owner, "FY25", 50_000, "", nil, nil)
	require.NoError(t, err)
	// Separate creation instants so the newest-first ordering is stable.
	_, err = db.NewUpdate().Model((*entity.Budget)(nil)).
		Set("created_at = ?", time.Now().UTC().Add(-time.Hour)).
		Where("b.id = ?", old.ID).
		Exec(ctx)
	require.NoError(t, err)

	current, err := ledger.CreateBudget(ctx, owner, "FY26", 90_000, "", nil, nil)
	require.NoError(t, err)

	err = db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		authorized, err := ledger.Authorize(ctx, tx, scope, 1_000)
		if err != nil {
			return err
		}
		assert.Equal(t, current.ID, authorized.ID)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, ledger.Deactivate(ctx, owner, current.ID))

	err = db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		authorized, err := ledger.Authorize(ctx, tx, scope, 1_000)
		if err != nil {
			return err
		}
		assert.Equal(t, old.ID, authorized.ID)
		return nil
	})
	require.NoError(t, err)
}

func TestReconcile(t *testing.T) {
	ledger, db := newTestLedger(t)
	ctx := context.Background()
	owner := principal.Principal{UserID: 1}
	scope := entity.Scope{UserID: 1}

	budget, err := ledger.CreateBudget(ctx, owner, "Lab budget", 100_000, "", nil, nil)
	require.NoError(t, err)

	for _, amount := range []int64{10_000, 25_000} {
		err = db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
			authorized, err := ledger.Authorize(ctx, tx, scope, amount)
			if err != nil {
				return err
			}
			_, err = ledger.Debit(ctx, tx, authorized, amount, "test debit", nil)
			return err
		})
		require.NoError(t, err)
	}

	ok, remaining, err := ledger.Reconcile(ctx, budget.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(65_000), remaining)

	// Corrupt the stored balance; the replayed ledger must disagree.
	_, err = db.NewUpdate().Model((*entity.Budget)(nil)).
		Set("remaining_amount = ?", 999).
		Where("b.id = ?", budget.ID).
		Exec(ctx)
	require.NoError(t, err)

	ok, remaining, err = ledger.Reconcile(ctx, budget.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(65_000), remaining)
}

func TestDeactivateOwnership(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()
	owner := principal.Principal{UserID: 1}

	budget, err := ledger.CreateBudget(ctx, owner, "Lab budget", 100_000, "", nil, nil)
	require.NoError(t, err)

	stranger := principal.Principal{UserID: 2}
	err = ledger.Deactivate(ctx, stranger, budget.ID)
	require.Error(t, err)
	assert.Equal(t, errorbank.KindForbidden, errorbank.From(err).Kind())

	admin := principal.Principal{UserID: 2, Role: principal.RoleAdmin}
	require.NoError(t, ledger.Deactivate(ctx, admin, budget.ID))
}
