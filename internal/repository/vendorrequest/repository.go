package vendorrequest

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lablane/procure/internal/database"
	"github.com/lablane/procure/internal/entity"
)

var repoTracer = otel.Tracer("github.com/lablane/procure/repository/vendorrequest")

// ErrNotFound is returned when no vendor request matches.
var ErrNotFound = errors.New("vendor request not found")

// Repository encapsulates access to vendor requests and their response items.
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

// Create persists a new vendor request with its frozen snapshot.
func (r *Repository) Create(ctx context.Context, req *entity.VendorRequest) error {
	if req == nil {
		return errors.New("nil vendor request")
	}
	ctx, span := repoTracer.Start(ctx, "VendorRequestRepository.Create", trace.WithAttributes(attribute.Int64("quote.id", req.QuoteID)))
	defer span.End()

	_, err := r.writer.NewInsert().Model(req).Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
	}
	return err
}

// GetByToken looks a request up by its token, the sole public key.
func (r *Repository) GetByToken(ctx context.Context, token string) (*entity.VendorRequest, error) {
	ctx, span := repoTracer.Start(ctx, "VendorRequestRepository.GetByToken")
	defer span.End()

	req := new(entity.VendorRequest)
	err := r.reader.NewSelect().Model(req).Where("vr.token = ?", token).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return req, nil
}

// GetByTokenForUpdate is the transactional variant used on response
// submission so the edit counter cannot race.
func (r *Repository) GetByTokenForUpdate(ctx context.Context, token string) (*entity.VendorRequest, error) {
	ctx, span := repoTracer.Start(ctx, "VendorRequestRepository.GetByTokenForUpdate")
	defer span.End()

	req := new(entity.VendorRequest)
	q := r.writer.NewSelect().Model(req).Where("vr.token = ?", token)
	if r.name != dialect.SQLite {
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
	return req, nil
}

// ListByQuote returns all requests sent for a quote, newest first.
func (r *Repository) ListByQuote(ctx context.Context, quoteID int64) ([]*entity.VendorRequest, error) {
	ctx, span := repoTracer.Start(ctx, "VendorRequestRepository.ListByQuote", trace.WithAttributes(attribute.Int64("quote.id", quoteID)))
	defer span.End()

	var reqs []*entity.VendorRequest
	err := r.reader.NewSelect().Model(&reqs).
		Where("vr.quote_id = ?", quoteID).
		OrderExpr("vr.created_at DESC, vr.id DESC").
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return reqs, nil
}

// MarkExpired lazily transitions overdue SENT requests to EXPIRED.
func (r *Repository) MarkExpired(ctx context.Context, ids []int64, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	ctx, span := repoTracer.Start(ctx, "VendorRequestRepository.MarkExpired", trace.WithAttributes(attribute.Int("count", len(ids))))
	defer span.End()

	_, err := r.writer.NewUpdate().Model((*entity.VendorRequest)(nil)).
		Set("status = ?", entity.VendorRequestStatusExpired).
		Set("updated_at = ?", now).
		Where("vr.id IN (?)", bun.In(ids)).
		Where("vr.status = ?", entity.VendorRequestStatusSent).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
	}
	return err
}

// UpdateSubmission writes the response status, edit counter, and timestamps.
func (r *Repository) UpdateSubmission(ctx context.Context, req *entity.VendorRequest) error {
	ctx, span := repoTracer.Start(ctx, "VendorRequestRepository.UpdateSubmission", trace.WithAttributes(attribute.Int64("request.id", req.ID)))
	defer span.End()

	_, err := r.writer.NewUpdate().Model(req).
		Column("status", "vendor_name", "responded_at", "response_edit_count", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
	}
	return err
}

// ListResponseItems returns the stored response lines for a request.
func (r *Repository) ListResponseItems(ctx context.Context, requestID int64) ([]*entity.VendorResponseItem, error) {
	ctx, span := repoTracer.Start(ctx, "VendorRequestRepository.ListResponseItems", trace.WithAttributes(attribute.Int64("request.id", requestID)))
	defer span.End()

	var items []*entity.VendorResponseItem
	err := r.reader.NewSelect().Model(&items).
		Where("vri.vendor_request_id = ?", requestID).
		OrderExpr("vri.line_no ASC").
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return items, nil
}

// InsertResponseItem stores a newly priced line.
func (r *Repository) InsertResponseItem(ctx context.Context, item *entity.VendorResponseItem) error {
	ctx, span := repoTracer.Start(ctx, "VendorRequestRepository.InsertResponseItem")
	defer span.End()

	_, err := r.writer.NewInsert().Model(item).Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
	}
	return err
}

// UpdateResponseItem overwrites a previously stored line in place.
func (r *Repository) UpdateResponseItem(ctx context.Context, item *entity.VendorResponseItem) error {
	ctx, span := repoTracer.Start(ctx, "VendorRequestRepository.UpdateResponseItem")
	defer span.End()

	_, err := r.writer.NewUpdate().Model(item).
		Column("unit_price", "currency", "lead_time_days", "min_order_qty", "vendor_sku", "notes", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
	}
	return err
}
