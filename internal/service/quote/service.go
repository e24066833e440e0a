package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/lablane/procure/internal/cache"
	"github.com/lablane/procure/internal/config"
	"github.com/lablane/procure/internal/entity"
	"github.com/lablane/procure/internal/notify"
	"github.com/lablane/procure/internal/principal"
	repo "github.com/lablane/procure/internal/repository/quote"
	"github.com/lablane/procure/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/lablane/procure/service/quote")

// transitions is the authoritative table of legal quote status moves.
// PURCHASED is terminal; CANCELLED may only re-open to PENDING.
var transitions = map[entity.QuoteStatus][]entity.QuoteStatus{
	entity.QuoteStatusPending:   {entity.QuoteStatusParsed, entity.QuoteStatusSent, entity.QuoteStatusCompleted, entity.QuoteStatusCancelled},
	entity.QuoteStatusParsed:    {entity.QuoteStatusSent, entity.QuoteStatusCompleted, entity.QuoteStatusCancelled},
	entity.QuoteStatusSent:      {entity.QuoteStatusResponded, entity.QuoteStatusCompleted, entity.QuoteStatusCancelled},
	entity.QuoteStatusResponded: {entity.QuoteStatusCompleted, entity.QuoteStatusPurchased, entity.QuoteStatusCancelled},
	entity.QuoteStatusCompleted: {entity.QuoteStatusPurchased, entity.QuoteStatusCancelled},
	entity.QuoteStatusPurchased: {},
	entity.QuoteStatusCancelled: {entity.QuoteStatusPending},
}

// AllowedTargets returns the legal next states from a given status.
func AllowedTargets(from entity.QuoteStatus) []entity.QuoteStatus {
	targets := transitions[from]
	out := make([]entity.QuoteStatus, len(targets))
	copy(out, targets)
	return out
}

// CanTransition reports whether from -> to is present in the table.
func CanTransition(from, to entity.QuoteStatus) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// CacheKey is the cache slot for a quote; shared with the order converter so
// it can invalidate on purchase.
func CacheKey(id int64) string {
	return fmt.Sprintf("quotes:%d", id)
}

// ItemInput describes one requested line at quote creation.
type ItemInput struct {
	ProductID     *int64
	Name          string
	Brand         string
	CatalogNumber string
	Quantity      int64
	Unit          string
	UnitPrice     *int64
	PackSize      string
	Notes         string
}

// Service governs the quote lifecycle.
type Service struct {
	repo         *repo.Repository
	cache        cache.Store
	cacheTTL     time.Duration
	cacheEnabled bool
	logger       *zap.Logger
	notifier     notify.Notifier
	currency     string
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Repository *repo.Repository
	Cache      cache.Store
	Config     config.Config
	Logger     *zap.Logger
	Notifier   notify.Notifier
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return &Service{
		repo:         p.Repository,
		cache:        p.Cache,
		cacheTTL:     p.Config.Cache.DefaultTTL,
		cacheEnabled: p.Config.Procurement.QuoteCacheEnabled,
		logger:       p.Logger,
		notifier:     p.Notifier,
		currency:     p.Config.Procurement.DefaultCurrency,
	}
}

// Create opens a new PENDING quote with denormalized item details.
func (s *Service) Create(ctx context.Context, p principal.Principal, items []ItemInput, message string) (*entity.Quote, error) {
	ctx, span := serviceTracer.Start(ctx, "QuoteService.Create", trace.WithAttributes(attribute.Int("items", len(items))))
	defer span.End()

	if len(items) == 0 {
		return nil, errorbank.BadRequest("at least one item is required")
	}

	now := time.Now().UTC()
	quote := &entity.Quote{
		UserID:         p.UserID,
		OrganizationID: p.OrganizationID,
		Status:         entity.QuoteStatusPending,
		Currency:       s.currency,
		Message:        message,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for i, in := range items {
		if in.Name == "" {
			return nil, errorbank.BadRequest(fmt.Sprintf("item %d: name is required", i+1))
		}
		if in.Quantity <= 0 {
			return nil, errorbank.BadRequest(fmt.Sprintf("item %d: quantity must be positive", i+1))
		}
		item := &entity.QuoteItem{
			ProductID:     in.ProductID,
			Name:          in.Name,
			Brand:         in.Brand,
			CatalogNumber: in.CatalogNumber,
			Quantity:      in.Quantity,
			Unit:          in.Unit,
			UnitPrice:     in.UnitPrice,
			PackSize:      in.PackSize,
			Notes:         in.Notes,
			CreatedAt:     now,
		}
		if in.UnitPrice != nil {
			total := in.Quantity * (*in.UnitPrice)
			item.LineTotal = &total
		}
		quote.Items = append(quote.Items, item)
	}

	if err := s.repo.Create(ctx, quote); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to create quote", errorbank.WithCause(err))
	}
	return quote, nil
}

// Get retrieves a quote for its owner, consulting cache when available.
func (s *Service) Get(ctx context.Context, p principal.Principal, id int64) (*entity.Quote, error) {
	ctx, span := serviceTracer.Start(ctx, "QuoteService.Get", trace.WithAttributes(attribute.Int64("quote.id", id)))
	defer span.End()

	if quote, err := s.getFromCache(ctx, id); err == nil {
		if quote.UserID != p.UserID {
			return nil, errorbank.Forbidden("not your quote")
		}
		return quote, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("quotes cache read failed", zap.Int64("id", id), zap.Error(err))
	}

	quote, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, errorbank.NotFound("quote not found")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to load quote", errorbank.WithCause(err))
	}
	if quote.UserID != p.UserID {
		return nil, errorbank.Forbidden("not your quote")
	}

	if err := s.storeInCache(ctx, quote); err != nil {
		s.logger.Warn("quotes cache write failed", zap.Int64("id", id), zap.Error(err))
	}
	return quote, nil
}

// List returns the caller's quotes.
func (s *Service) List(ctx context.Context, p principal.Principal) ([]*entity.Quote, error) {
	ctx, span := serviceTracer.Start(ctx, "QuoteService.List")
	defer span.End()

	quotes, err := s.repo.ListByUser(ctx, p.UserID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to list quotes", errorbank.WithCause(err))
	}
	return quotes, nil
}

// RequestTransition validates and applies a status move. Side effects
// (notifications) are dispatched after the write and are fire-and-forget:
// their failure never reverts the transition.
func (s *Service) RequestTransition(ctx context.Context, p principal.Principal, quoteID int64, target entity.QuoteStatus, reason string) (*entity.Quote, error) {
	ctx, span := serviceTracer.Start(ctx, "QuoteService.RequestTransition", trace.WithAttributes(
		attribute.Int64("quote.id", quoteID),
		attribute.String("target", string(target)),
	))
	defer span.End()

	quote, err := s.repo.GetByID(ctx, quoteID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, errorbank.NotFound("quote not found")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to load quote", errorbank.WithCause(err))
	}
	if quote.UserID != p.UserID {
		return nil, errorbank.Forbidden("not your quote")
	}

	if !CanTransition(quote.Status, target) {
		return nil, errorbank.Conflict("illegal quote status transition",
			errorbank.WithDetail("current", quote.Status),
			errorbank.WithDetail("requested", target),
			errorbank.WithDetail("allowed", AllowedTargets(quote.Status)),
		)
	}

	now := time.Now().UTC()
	if err := s.repo.UpdateStatus(ctx, quote.ID, target, now); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "status write failed")
		return nil, errorbank.Internal("failed to update quote status", errorbank.WithCause(err))
	}

	from := quote.Status
	quote.Status = target
	quote.UpdatedAt = now
	s.invalidateCache(ctx, quote.ID)

	s.dispatchTransitionEffects(ctx, quote, from, reason)
	return quote, nil
}

func (s *Service) dispatchTransitionEffects(ctx context.Context, quote *entity.Quote, from entity.QuoteStatus, reason string) {
	payload := map[string]any{
		"quote_id": quote.ID,
		"user_id":  quote.UserID,
		"from":     from,
		"to":       quote.Status,
	}
	if reason != "" {
		payload["reason"] = reason
	}
	s.notifier.Send(ctx, notify.KindQuoteStatusChanged, payload)

	switch quote.Status {
	case entity.QuoteStatusCompleted:
		s.notifier.Send(ctx, notify.KindQuoteCompleted, payload)
	case entity.QuoteStatusCancelled:
		s.notifier.Send(ctx, notify.KindQuoteCancelled, payload)
	}
}

func (s *Service) getFromCache(ctx context.Context, id int64) (*entity.Quote, error) {
	if !s.cacheEnabled || s.cache == nil {
		return nil, cache.ErrCacheMiss
	}
	bytes, err := s.cache.Get(ctx, CacheKey(id))
	if err != nil {
		return nil, err
	}
	var quote entity.Quote
	if err := json.Unmarshal(bytes, &quote); err != nil {
		return nil, err
	}
	return &quote, nil
}

func (s *Service) storeInCache(ctx context.Context, quote *entity.Quote) error {
	if !s.cacheEnabled || s.cache == nil || quote == nil {
		return nil
	}
	bytes, err := json.Marshal(quote)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, CacheKey(quote.ID), bytes, s.cacheTTL)
}

func (s *Service) invalidateCache(ctx context.Context, id int64) {
	if !s.cacheEnabled || s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, CacheKey(id)); err != nil {
		s.logger.Warn("quotes cache invalidate failed", zap.Int64("id", id), zap.Error(err))
	}
}
