package inventory

import (
	"context"
	"errors"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lablane/procure/internal/database"
	"github.com/lablane/procure/internal/entity"
)

var repoTracer = otel.Tracer("github.com/lablane/procure/repository/inventory")

// Repository persists stock positions materialized from delivered orders.
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

// CreateBatch inserts one inventory record per delivered order item.
func (r *Repository) CreateBatch(ctx context.Context, items []*entity.InventoryItem) error {
	if len(items) == 0 {
		return errors.New("no inventory items")
	}
	ctx, span := repoTracer.Start(ctx, "InventoryRepository.CreateBatch", trace.WithAttributes(attribute.Int("count", len(items))))
	defer span.End()

	if _, err := r.writer.NewInsert().Model(&items).Exec(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return err
	}
	return nil
}

// ListByUser returns the user's stock positions, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID int64) ([]*entity.InventoryItem, error) {
	ctx, span := repoTracer.Start(ctx, "InventoryRepository.ListByUser")
	defer span.End()

	var items []*entity.InventoryItem
	err := r.reader.NewSelect().Model(&items).
		Where("ii.user_id = ?", userID).
		OrderExpr("ii.created_at DESC, ii.id DESC").
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return items, nil
}
