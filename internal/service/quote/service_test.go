package quote

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

	"github.com/lablane/procure/internal/cache"
	"github.com/lablane/procure/internal/config"
	"github.com/lablane/procure/internal/database"
	"github.com/lablane/procure/internal/entity"
	"github.com/lablane/procure/internal/notify"
	"github.com/lablane/procure/internal/principal"
	repo "github.com/lablane/procure/internal/repository/quote"
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
	for _, model := range []any{(*entity.Quote)(nil), (*entity.QuoteItem)(nil)} {
		_, err := db.NewCreateTable().Model(model).Exec(ctx)
		require.NoError(t, err)
	}
	return db
}

func newTestService(t *testing.T) (*Service, *bun.DB) {
	t.Helper()

	db := newTestDB(t)
	conns := &database.Connections{Writer: db, Reader: db}
	svc := NewService(Params{
		Repository: repo.NewRepository(conns),
		Cache:      cache.Nop(),
		Config: config.Config{
			Cache:       config.Cache{DefaultTTL: time.Minute},
			Procurement: config.Procurement{DefaultCurrency: "KRW"},
		},
		Logger:   zap.NewNop(),
		Notifier: notify.Nop(),
	})
	return svc, db
}

func TestTransitionTable(t *testing.T) {
	legal := []struct {
		from, to entity.QuoteStatus
	}{
		{entity.QuoteStatusPending, entity.QuoteStatusParsed},
		{entity.QuoteStatusPending, entity.QuoteStatusSent},
		{entity.QuoteStatusPending, entity.QuoteStatusCancelled},
		{entity.QuoteStatusParsed, entity.QuoteStatusSent},
		{entity.QuoteStatusSent, entity.QuoteStatusResponded},
		{entity.QuoteStatusResponded, entity.QuoteStatusCompleted},
		{entity.QuoteStatusCompleted, entity.QuoteStatusPurchased},
		{entity.QuoteStatusCancelled, entity.QuoteStatusPending},
	}
	for _, tc := range legal {
		assert.True(t, CanTransition(tc.from, tc.to), "%s -> %s should be legal", tc.from, tc.to)
	}

	illegal := []struct {
		from, to entity.QuoteStatus
	}{
		{entity.QuoteStatusPending, entity.QuoteStatusResponded},
		{entity.QuoteStatusSent, entity.QuoteStatusParsed},
		{entity.QuoteStatusCompleted, entity.QuoteStatusSent},
		{entity.QuoteStatusPurchased, entity.QuoteStatusCancelled},
		{entity.QuoteStatusPurchased, entity.QuoteStatusPending},
		{entity.QuoteStatusCancelled, entity.QuoteStatusCompleted},
	}
	for _, tc := range illegal {
		assert.False(t, CanTransition(tc.from, tc.to), "%s -> %s should be illegal", tc.from, tc.to)
	}

	assert.Empty(t, AllowedTargets(entity.QuoteStatusPurchased))
}

func TestCreateComputesLineTotals(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	owner := principal.Principal{UserID: 1}

	price := int64(45_000)
	quote, err := svc.Create(ctx, owner, []ItemInput{
		{Name: "PBS 10x", Quantity: 2, UnitPrice: &price},
		{Name: "Nitrile gloves", Quantity: 10},
	}, "restock")
	require.NoError(t, err)

	assert.Equal(t, entity.QuoteStatusPending, quote.Status)
	assert.Equal(t, "KRW", quote.Currency)
	require.Len(t, quote.Items, 2)
	require.NotNil(t, quote.Items[0].LineTotal)
	assert.Equal(t, int64(90_000), *quote.Items[0].LineTotal)
	assert.Nil(t, quote.Items[1].LineTotal)
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	owner := principal.Principal{UserID: 1}

	_, err := svc.Create(ctx, owner, nil, "")
	require.Error(t, err)
	assert.Equal(t, errorbank.KindBadRequest, errorbank.From(err).Kind())

	_, err = svc.Create(ctx, owner, []ItemInput{{Name: "", Quantity: 1}}, "")
	require.Error(t, err)
	assert.Equal(t, errorbank.KindBadRequest, errorbank.From(err).Kind())

	_, err = svc.Create(ctx, owner, []ItemInput{{Name: "PBS", Quantity: 0}}, "")
	require.Error(t, err)
	assert.Equal(t, errorbank.KindBadRequest, errorbank.From(err).Kind())
}

func TestGetOwnership(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	owner := principal.Principal{UserID: 1}

	quote, err := svc.Create(ctx, owner, []ItemInput{{Name: "PBS", Quantity: 1}}, "")
	require.NoError(t, err)

	_, err = svc.Get(ctx, principal.Principal{UserID: 2}, quote.ID)
	require.Error(t, err)
	assert.Equal(t, errorbank.KindForbidden, errorbank.From(err).Kind())

	got, err := svc.Get(ctx, owner, quote.ID)
	require.NoError(t, err)
	assert.Equal(t, quote.ID, got.ID)

	_, err = svc.Get(ctx, owner, 9999)
	require.Error(t, err)
	assert.Equal(t, errorbank.KindNotFound, errorbank.From(err).Kind())
}

func TestRequestTransition(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	owner := principal.Principal{UserID: 1}

	quote, err := svc.Create(ctx, owner, []ItemInput{{Name: "PBS", Quantity: 1}}, "")
	require.NoError(t, err)

	moved, err := svc.RequestTransition(ctx, owner, quote.ID, entity.QuoteStatusParsed, "")
	require.NoError(t, err)
	assert.Equal(t, entity.QuoteStatusParsed, moved.Status)

	// PARSED cannot jump straight to RESPONDED.
	_, err = svc.RequestTransition(ctx, owner, quote.ID, entity.QuoteStatusResponded, "")
	require.Error(t, err)
	appErr := errorbank.From(err)
	assert.Equal(t, errorbank.KindConflict, appErr.Kind())
	assert.Equal(t, entity.QuoteStatusParsed, appErr.Details()["current"])
	assert.Equal(t, entity.QuoteStatusResponded, appErr.Details()["requested"])
	assert.NotEmpty(t, appErr.Details()["allowed"])

	_, err = svc.RequestTransition(ctx, principal.Principal{UserID: 2}, quote.ID, entity.QuoteStatusSent, "")
	require.Error(t, err)
	assert.Equal(t, errorbank.KindForbidden, errorbank.From(err).Kind())
}

func TestCancelledReopensToPending(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	owner := principal.Principal{UserID: 1}

	quote, err := svc.Create(ctx, owner, []ItemInput{{Name: "PBS", Quantity: 1}}, "")
	require.NoError(t, err)

	_, err = svc.RequestTransition(ctx, owner, quote.ID, entity.QuoteStatusCancelled, "changed mind")
	require.NoError(t, err)

	reopened, err := svc.RequestTransition(ctx, owner, quote.ID, entity.QuoteStatusPending, "")
	require.NoError(t, err)
	assert.Equal(t, entity.QuoteStatusPending, reopened.Status)
}
