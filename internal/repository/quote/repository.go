package quote

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lablane/procure/internal/database"
	"github.com/lablane/procure/internal/entity"
)

var repoTracer = otel.Tracer("github.com/lablane/procure/repository/quote")

// ErrNotFound is returned when a quote is missing.
var ErrNotFound = errors.New("quote not found")

// Repository encapsulates read/write access for quotes and their items.
type Repository struct {
	writer bun.IDB
	reader bun.IDB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{
		writer: conns.Writer,
		reader: conns.Reader,
	}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *Repository) WithTx(tx bun.Tx) *Repository {
	return &Repository{writer: tx, reader: tx}
}

// Create persists a new quote with its items.
func (r *Repository) Create(ctx context.Context, quote *entity.Quote) error {
	if quote == nil {
		return errors.New("nil quote")
	}
	ctx, span := repoTracer.Start(ctx, "QuoteRepository.Create", trace.WithAttributes(attribute.Int64("quote.user_id", quote.UserID)))
	defer span.End()

	if _, err := r.writer.NewInsert().Model(quote).Exec(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return err
	}
	for _, item := range quote.Items {
		item.QuoteID = quote.ID
	}
	if len(quote.Items) > 0 {
		if _, err := r.writer.NewInsert().Model(&quote.Items).Exec(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "insert items failed")
			return err
		}
	}
	return nil
}

// GetByID fetches a quote with its items.
func (r *Repository) GetByID(ctx context.Context, id int64) (*entity.Quote, error) {
	ctx, span := repoTracer.Start(ctx, "QuoteRepository.GetByID", trace.WithAttributes(attribute.Int64("quote.id", id)))
	defer span.End()

	quote := new(entity.Quote)
	err := r.reader.NewSelect().Model(quote).
		Relation("Items", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.OrderExpr("qi.id ASC")
		}).
		Where("q.id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return quote, nil
}

// ListByUser returns the user's quotes, newest first, items included.
func (r *Repository) ListByUser(ctx context.Context, userID int64) ([]*entity.Quote, error) {
	ctx, span := repoTracer.Start(ctx, "QuoteRepository.ListByUser", trace.WithAttributes(attribute.Int64("user.id", userID)))
	defer span.End()

	var quotes []*entity.Quote
	err := r.reader.NewSelect().Model(&quotes).
		Relation("Items").
		Where("q.user_id = ?", userID).
		OrderExpr("q.created_at DESC, q.id DESC").
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return quotes, nil
}

// UpdateStatus writes the quote status with a fresh updated timestamp.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, status entity.QuoteStatus, now time.Time) error {
	ctx, span := repoTracer.Start(ctx, "QuoteRepository.UpdateStatus", trace.WithAttributes(
		attribute.Int64("quote.id", id),
		attribute.String("quote.status", string(status)),
	))
	defer span.End()

	res, err := r.writer.NewUpdate().Model((*entity.Quote)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", now).
		Where("q.id = ?", id).
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
