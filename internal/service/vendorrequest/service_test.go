package vendorrequest

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
	quoterepo "github.com/lablane/procure/internal/repository/quote"
	repo "github.com/lablane/procure/internal/repository/vendorrequest"
	"github.com/lablane/procure/pkg/errorbank"
)

type fixture struct {
	svc    *Service
	db     *bun.DB
	quotes *quoterepo.Repository
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
		(*entity.VendorRequest)(nil),
		(*entity.VendorResponseItem)(nil),
	}
	for _, model := range models {
		_, err := db.NewCreateTable().Model(model).Exec(ctx)
		require.NoError(t, err)
	}

	conns := &database.Connections{Writer: db, Reader: db}
	quotes := quoterepo.NewRepository(conns)
	svc := NewService(Params{
		Connections: conns,
		Repository:  repo.NewRepository(conns),
		Quotes:      quotes,
		Cache:       cache.Nop(),
		Config: config.Config{
			Cache: config.Cache{DefaultTTL: time.Minute},
			Procurement: config.Procurement{
				DefaultCurrency:  "KRW",
				VendorExpiryDays: 7,
				VendorEditLimit:  3,
			},
		},
		Logger:   zap.NewNop(),
		Notifier: notify.Nop(),
	})
	return &fixture{svc: svc, db: db, quotes: quotes}
}

func (f *fixture) seedQuote(t *testing.T, userID int64, names ...string) *entity.Quote {
	t.Helper()

	now := time.Now().UTC()
	quote := &entity.Quote{
		UserID:    userID,
		Status:    entity.QuoteStatusPending,
		Currency:  "KRW",
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, name := range names {
		quote.Items = append(quote.Items, &entity.QuoteItem{
			Name:      name,
			Quantity:  2,
			Unit:      "ea",
			CreatedAt: now,
		})
	}
	require.NoError(t, f.quotes.Create(context.Background(), quote))
	return quote
}

var owner = principal.Principal{UserID: 1}

func TestCreateRequestsFreezesSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	quote := f.seedQuote(t, 1, "PBS 10x", "Nitrile gloves")

	results, err := f.svc.CreateRequests(ctx, owner, quote.ID, []VendorInput{
		{Name: "Acme Chemicals", Email: "sales@acme.example"},
	}, "please quote", 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	req := results[0].Request
	assert.Len(t, req.Token, 48)
	assert.Equal(t, entity.VendorRequestStatusSent, req.Status)
	assert.Equal(t, 3, req.ResponseEditLimit)

	// Quote moves to SENT with the batch.
	sent, err := f.quotes.GetByID(ctx, quote.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.QuoteStatusSent, sent.Status)

	// Mutating the live quote afterwards must not reach the vendor view.
	now := time.Now().UTC()
	extra := &entity.QuoteItem{QuoteID: quote.ID, Name: "Added later", Quantity: 1, CreatedAt: now}
	_, err = f.db.NewInsert().Model(extra).Exec(ctx)
	require.NoError(t, err)

	view, err := f.svc.GetByToken(ctx, req.Token)
	require.NoError(t, err)
	require.Len(t, view.SnapshotItems, 2)
	assert.Equal(t, "PBS 10x", view.SnapshotItems[0].Name)
	assert.Equal(t, 1, view.SnapshotItems[0].LineNo)
	assert.Equal(t, 2, view.SnapshotItems[1].LineNo)
}

func TestCreateRequestsValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	quote := f.seedQuote(t, 1, "PBS 10x")

	_, err := f.svc.CreateRequests(ctx, owner, quote.ID, nil, "", 0)
	require.Error(t, err)
	assert.Equal(t, errorbank.KindBadRequest, errorbank.From(err).Kind())

	_, err = f.svc.CreateRequests(ctx, owner, quote.ID, []VendorInput{{Name: "No email"}}, "", 0)
	require.Error(t, err)
	assert.Equal(t, errorbank.KindBadRequest, errorbank.From(err).Kind())

	stranger := principal.Principal{UserID: 2}
	_, err = f.svc.CreateRequests(ctx, stranger, quote.ID, []VendorInput{{Email: "v@x.example"}}, "", 0)
	require.Error(t, err)
	assert.Equal(t, errorbank.KindForbidden, errorbank.From(err).Kind())
}

func TestGetByTokenMalformed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.GetByToken(ctx, "not-a-token")
	require.Error(t, err)
	assert.Equal(t, errorbank.KindBadRequest, errorbank.From(err).Kind())

	_, err = f.svc.GetByToken(ctx, "f00ba7c4d2e8a1b3c5d7e9f1a3b5c7d9e1f3a5b7c9d1e3f5")
	require.Error(t, err)
	assert.Equal(t, errorbank.KindNotFound, errorbank.From(err).Kind())
}

func TestSubmitResponse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	quote := f.seedQuote(t, 1, "PBS 10x", "Nitrile gloves")

	results, err := f.svc.CreateRequests(ctx, owner, quote.ID, []VendorInput{{Email: "v@x.example"}}, "", 0)
	require.NoError(t, err)
	token := results[0].Request.Token

	lead := 5
	result, err := f.svc.SubmitResponse(ctx, token, "Acme", []ResponseItemInput{
		{LineNo: 1, UnitPrice: 42_000, LeadTimeDays: &lead},
		{LineNo: 2, UnitPrice: 9_000},
	})
	require.NoError(t, err)
	assert.False(t, result.IsEdit)
	assert.Equal(t, 0, result.EditCount)
	assert.Equal(t, 2, result.ChangedLines)
	assert.Equal(t, entity.VendorRequestStatusResponded, result.Request.Status)
	require.NotNil(t, result.Request.RespondedAt)

	// First response pulls the quote forward.
	responded, err := f.quotes.GetByID(ctx, quote.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.QuoteStatusResponded, responded.Status)

	view, err := f.svc.GetByToken(ctx, token)
	require.NoError(t, err)
	require.Len(t, view.ResponseItems, 2)
	assert.Equal(t, int64(42_000), view.ResponseItems[0].UnitPrice)
	assert.Equal(t, "KRW", view.ResponseItems[0].Currency)
}

func TestSubmitResponseRejectsUnknownLines(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	quote := f.seedQuote(t, 1, "PBS 10x")

	results, err := f.svc.CreateRequests(ctx, owner, quote.ID, []VendorInput{{Email: "v@x.example"}}, "", 0)
	require.NoError(t, err)
	token := results[0].Request.Token

	_, err = f.svc.SubmitResponse(ctx, token, "", []ResponseItemInput{
		{LineNo: 1, UnitPrice: 1_000},
		{LineNo: 99, UnitPrice: 2_000},
	})
	require.Error(t, err)
	appErr := errorbank.From(err)
	assert.Equal(t, errorbank.KindUnprocessableEntity, appErr.Kind())
	assert.Equal(t, []int{99}, appErr.Details()["invalid_line_nos"])

	// Rejection is atomic: the valid line must not be stored either.
	view, err := f.svc.GetByToken(ctx, token)
	require.NoError(t, err)
	assert.Empty(t, view.ResponseItems)
	assert.Equal(t, entity.VendorRequestStatusSent, view.Request.Status)
}

func TestSubmitResponseInputValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	quote := f.seedQuote(t, 1, "PBS 10x")

	results, err := f.svc.CreateRequests(ctx, owner, quote.ID, []VendorInput{{Email: "v@x.example"}}, "", 0)
	require.NoError(t, err)
	token := results[0].Request.Token

	_, err = f.svc.SubmitResponse(ctx, token, "", nil)
	require.Error(t, err)
	assert.Equal(t, errorbank.KindBadRequest, errorbank.From(err).Kind())

	_, err = f.svc.SubmitResponse(ctx, token, "", []ResponseItemInput{{LineNo: 1, UnitPrice: 0}})
	require.Error(t, err)
	assert.Equal(t, errorbank.KindBadRequest, errorbank.From(err).Kind())

	_, err = f.svc.SubmitResponse(ctx, token, "", []ResponseItemInput{
		{LineNo: 1, UnitPrice: 100},
		{LineNo: 1, UnitPrice: 200},
	})
	require.Error(t, err)
	assert.Equal(t, errorbank.KindBadRequest, errorbank.From(err).Kind())
}

func TestSubmitResponseEditLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	quote := f.seedQuote(t, 1, "PBS 10x")

	results, err := f.svc.CreateRequests(ctx, owner, quote.ID, []VendorInput{{Email: "v@x.example"}}, "", 0)
	require.NoError(t, err)
	token := results[0].Request.Token

	_, err = f.svc.SubmitResponse(ctx, token, "", []ResponseItemInput{{LineNo: 1, UnitPrice: 1_000}})
	require.NoError(t, err)

	// Three edits are allowed on top of the initial submission.
	for i := 1; i <= 3; i++ {
		result, err := f.svc.SubmitResponse(ctx, token, "", []ResponseItemInput{{LineNo: 1, UnitPrice: int64(1_000 + i)}})
		require.NoError(t, err)
		assert.True(t, result.IsEdit)
		assert.Equal(t, i, result.EditCount)
		assert.Equal(t, 1, result.ChangedLines)
	}

	_, err = f.svc.SubmitResponse(ctx, token, "", []ResponseItemInput{{LineNo: 1, UnitPrice: 9_999}})
	require.Error(t, err)
	appErr := errorbank.From(err)
	assert.Equal(t, errorbank.KindConflict, appErr.Kind())
	assert.Equal(t, 3, appErr.Details()["edit_count"])
	assert.Equal(t, 3, appErr.Details()["edit_limit"])
}

func TestSubmitResponseCountsOnlyChangedLines(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	quote := f.seedQuote(t, 1, "PBS 10x", "Nitrile gloves")

	results, err := f.svc.CreateRequests(ctx, owner, quote.ID, []VendorInput{{Email: "v@x.example"}}, "", 0)
	require.NoError(t, err)
	token := results[0].Request.Token

	_, err = f.svc.SubmitResponse(ctx, token, "", []ResponseItemInput{
		{LineNo: 1, UnitPrice: 1_000},
		{LineNo: 2, UnitPrice: 2_000},
	})
	require.NoError(t, err)

	// Identical resubmission still burns an edit but changes nothing.
	result, err := f.svc.SubmitResponse(ctx, token, "", []ResponseItemInput{
		{LineNo: 1, UnitPrice: 1_000},
		{LineNo: 2, UnitPrice: 2_000},
	})
	require.NoError(t, err)
	assert.True(t, result.IsEdit)
	assert.Equal(t, 0, result.ChangedLines)

	result, err = f.svc.SubmitResponse(ctx, token, "", []ResponseItemInput{
		{LineNo: 1, UnitPrice: 1_500},
		{LineNo: 2, UnitPrice: 2_000},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.ChangedLines)
}

func TestLazyExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	quote := f.seedQuote(t, 1, "PBS 10x")

	results, err := f.svc.CreateRequests(ctx, owner, quote.ID, []VendorInput{{Email: "v@x.example"}}, "", 0)
	require.NoError(t, err)
	req := results[0].Request

	_, err = f.db.NewUpdate().Model((*entity.VendorRequest)(nil)).
		Set("expires_at = ?", time.Now().UTC().Add(-time.Hour)).
		Where("vr.id = ?", req.ID).
		Exec(ctx)
	require.NoError(t, err)

	// The read flips the overdue request to EXPIRED.
	view, err := f.svc.GetByToken(ctx, req.Token)
	require.NoError(t, err)
	assert.Equal(t, entity.VendorRequestStatusExpired, view.Request.Status)

	stored := new(entity.VendorRequest)
	require.NoError(t, f.db.NewSelect().Model(stored).Where("vr.id = ?", req.ID).Scan(ctx))
	assert.Equal(t, entity.VendorRequestStatusExpired, stored.Status)

	_, err = f.svc.SubmitResponse(ctx, req.Token, "", []ResponseItemInput{{LineNo: 1, UnitPrice: 1_000}})
	require.Error(t, err)
	assert.Equal(t, errorbank.KindConflict, errorbank.From(err).Kind())
}

func TestGetRequestsExpiresOverdue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	quote := f.seedQuote(t, 1, "PBS 10x")

	results, err := f.svc.CreateRequests(ctx, owner, quote.ID, []VendorInput{
		{Email: "a@x.example"},
		{Email: "b@x.example"},
	}, "", 0)
	require.NoError(t, err)

	_, err = f.db.NewUpdate().Model((*entity.VendorRequest)(nil)).
		Set("expires_at = ?", time.Now().UTC().Add(-time.Hour)).
		Where("vr.id = ?", results[0].Request.ID).
		Exec(ctx)
	require.NoError(t, err)

	reqs, err := f.svc.GetRequests(ctx, owner, quote.ID)
	require.NoError(t, err)
	require.Len(t, reqs, 2)

	statuses := map[entity.VendorRequestStatus]int{}
	for _, r := range reqs {
		statuses[r.Status]++
	}
	assert.Equal(t, 1, statuses[entity.VendorRequestStatusExpired])
	assert.Equal(t, 1, statuses[entity.VendorRequestStatusSent])
}
