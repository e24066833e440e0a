package vendorrequest

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/lablane/procure/internal/cache"
	"github.com/lablane/procure/internal/config"
	"github.com/lablane/procure/internal/database"
	"github.com/lablane/procure/internal/entity"
	"github.com/lablane/procure/internal/notify"
	"github.com/lablane/procure/internal/principal"
	quoterepo "github.com/lablane/procure/internal/repository/quote"
	repo "github.com/lablane/procure/internal/repository/vendorrequest"
	quotesvc "github.com/lablane/procure/internal/service/quote"
	"github.com/lablane/procure/internal/token"
	"github.com/lablane/procure/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/lablane/procure/service/vendorrequest")

// VendorInput names one vendor to send a quote to.
type VendorInput struct {
	Name  string
	Email string
}

// CreateResult reports the created request and whether the vendor's email
// dispatch succeeded. One vendor's failure never blocks the others.
type CreateResult struct {
	Request   *entity.VendorRequest
	EmailSent bool
}

// ResponseItemInput is one vendor-priced line keyed by snapshot line number.
type ResponseItemInput struct {
	LineNo       int
	UnitPrice    int64
	Currency     string
	LeadTimeDays *int
	MinOrderQty  *int64
	VendorSKU    string
	Notes        string
}

// SubmitResult summarizes a response submission.
type SubmitResult struct {
	Request      *entity.VendorRequest
	IsEdit       bool
	EditCount    int
	EditLimit    int
	ChangedLines int
}

// RequestView is the public, token-addressed view of a request: the frozen
// snapshot plus any previously submitted lines.
type RequestView struct {
	Request       *entity.VendorRequest
	SnapshotItems []entity.SnapshotItem
	ResponseItems []*entity.VendorResponseItem
}

// Service runs the vendor request exchange: immutable snapshots out,
// token-addressed price responses in.
type Service struct {
	db         *bun.DB
	repo       *repo.Repository
	quotes     *quoterepo.Repository
	cache      cache.Store
	logger     *zap.Logger
	notifier   notify.Notifier
	expiryDays int
	editLimit  int
	currency   string
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Connections *database.Connections
	Repository  *repo.Repository
	Quotes      *quoterepo.Repository
	Cache       cache.Store
	Config      config.Config
	Logger      *zap.Logger
	Notifier    notify.Notifier
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return &Service{
		db:         p.Connections.Writer,
		repo:       p.Repository,
		quotes:     p.Quotes,
		cache:      p.Cache,
		logger:     p.Logger,
		notifier:   p.Notifier,
		expiryDays: p.Config.Procurement.VendorExpiryDays,
		editLimit:  p.Config.Procurement.VendorEditLimit,
		currency:   p.Config.Procurement.DefaultCurrency,
	}
}

// CreateRequests snapshots the quote's current items and sends one
// token-addressed request per vendor. The snapshot is a deep, owned copy:
// later changes to the live quote never reach the vendor.
func (s *Service) CreateRequests(ctx context.Context, p principal.Principal, quoteID int64, vendors []VendorInput, message string, expiresInDays int) ([]CreateResult, error) {
	ctx, span := serviceTracer.Start(ctx, "VendorRequestExchange.CreateRequests", trace.WithAttributes(
		attribute.Int64("quote.id", quoteID),
		attribute.Int("vendors", len(vendors)),
	))
	defer span.End()

	if len(vendors) == 0 {
		return nil, errorbank.BadRequest("at least one vendor is required")
	}
	for i, v := range vendors {
		if v.Email == "" {
			return nil, errorbank.BadRequest(fmt.Sprintf("vendor %d: email is required", i+1))
		}
	}
	if expiresInDays <= 0 {
		expiresInDays = s.expiryDays
	}

	quote, err := s.quotes.GetByID(ctx, quoteID)
	if err != nil {
		if errors.Is(err, quoterepo.ErrNotFound) {
			return nil, errorbank.NotFound("quote not found")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to load quote", errorbank.WithCause(err))
	}
	if quote.UserID != p.UserID {
		return nil, errorbank.Forbidden("not your quote")
	}
	if len(quote.Items) == 0 {
		return nil, errorbank.Unprocessable("quote has no items to send")
	}

	snapshot, err := buildSnapshot(quote.Items)
	if err != nil {
		return nil, errorbank.Internal("failed to freeze quote items", errorbank.WithCause(err))
	}

	now := time.Now().UTC()
	expiresAt := now.Add(time.Duration(expiresInDays) * 24 * time.Hour)

	requests := make([]*entity.VendorRequest, 0, len(vendors))
	err = s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		txRepo := s.repo.WithTx(tx)
		for _, v := range vendors {
			tok, err := token.NewVendorToken()
			if err != nil {
				return err
			}
			req := &entity.VendorRequest{
				QuoteID:           quote.ID,
				VendorName:        v.Name,
				VendorEmail:       v.Email,
				Token:             tok,
				Status:            entity.VendorRequestStatusSent,
				Snapshot:          snapshot,
				Message:           message,
				ExpiresAt:         expiresAt,
				ResponseEditLimit: s.editLimit,
				CreatedAt:         now,
				UpdatedAt:         now,
			}
			if err := txRepo.Create(ctx, req); err != nil {
				return err
			}
			requests = append(requests, req)
		}
		if quotesvc.CanTransition(quote.Status, entity.QuoteStatusSent) {
			return s.quotes.WithTx(tx).UpdateStatus(ctx, quote.ID, entity.QuoteStatusSent, now)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		return nil, errorbank.Internal("failed to create vendor requests", errorbank.WithCause(err))
	}
	s.invalidateQuoteCache(ctx, quote.ID)

	// Email dispatch is isolated per vendor: a failure marks that vendor
	// unsent, is logged, and never fails the batch.
	results := make([]CreateResult, 0, len(requests))
	sent := 0
	for _, req := range requests {
		sendErr := s.notifier.Send(ctx, notify.KindVendorRequestCreated, map[string]any{
			"quote_id":     req.QuoteID,
			"vendor_name":  req.VendorName,
			"vendor_email": req.VendorEmail,
			"token":        req.Token,
			"expires_at":   req.ExpiresAt,
			"message":      req.Message,
		})
		if sendErr != nil {
			s.logger.Warn("vendor request email dispatch failed",
				zap.Int64("request_id", req.ID),
				zap.String("vendor_email", req.VendorEmail),
				zap.Error(sendErr),
			)
		} else {
			sent++
		}
		results = append(results, CreateResult{Request: req, EmailSent: sendErr == nil})
	}
	s.logger.Info("vendor requests created",
		zap.Int64("quote_id", quote.ID),
		zap.Int("requested", len(requests)),
		zap.Int("emails_sent", sent),
	)

	return results, nil
}

// GetRequests returns the requests sent for a quote. Expiry is detected
// lazily here: overdue SENT requests are flipped to EXPIRED on read.
func (s *Service) GetRequests(ctx context.Context, p principal.Principal, quoteID int64) ([]*entity.VendorRequest, error) {
	ctx, span := serviceTracer.Start(ctx, "VendorRequestExchange.GetRequests", trace.WithAttributes(attribute.Int64("quote.id", quoteID)))
	defer span.End()

	quote, err := s.quotes.GetByID(ctx, quoteID)
	if err != nil {
		if errors.Is(err, quoterepo.ErrNotFound) {
			return nil, errorbank.NotFound("quote not found")
		}
		return nil, errorbank.Internal("failed to load quote", errorbank.WithCause(err))
	}
	if quote.UserID != p.UserID {
		return nil, errorbank.Forbidden("not your quote")
	}

	reqs, err := s.repo.ListByQuote(ctx, quoteID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to list vendor requests", errorbank.WithCause(err))
	}

	now := time.Now().UTC()
	var overdue []int64
	for _, req := range reqs {
		if req.Status == entity.VendorRequestStatusSent && req.EffectiveStatus(now) == entity.VendorRequestStatusExpired {
			overdue = append(overdue, req.ID)
			req.Status = entity.VendorRequestStatusExpired
		}
	}
	if len(overdue) > 0 {
		if err := s.repo.MarkExpired(ctx, overdue, now); err != nil {
			s.logger.Warn("lazy expiry write failed", zap.Int64("quote_id", quoteID), zap.Error(err))
		}
	}

	return reqs, nil
}

// GetByToken is the public, unauthenticated view used by vendors. The token
// is the sole lookup key; its format is checked before any database access.
func (s *Service) GetByToken(ctx context.Context, tok string) (*RequestView, error) {
	ctx, span := serviceTracer.Start(ctx, "VendorRequestExchange.GetByToken")
	defer span.End()

	if !token.ValidVendorToken(tok) {
		return nil, errorbank.BadRequest("malformed token")
	}

	req, err := s.repo.GetByToken(ctx, tok)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, errorbank.NotFound("vendor request not found")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to load vendor request", errorbank.WithCause(err))
	}

	now := time.Now().UTC()
	if req.Status == entity.VendorRequestStatusSent && req.EffectiveStatus(now) == entity.VendorRequestStatusExpired {
		if err := s.repo.MarkExpired(ctx, []int64{req.ID}, now); err != nil {
			s.logger.Warn("lazy expiry write failed", zap.Int64("request_id", req.ID), zap.Error(err))
		}
		req.Status = entity.VendorRequestStatusExpired
	}

	items, err := req.SnapshotItems()
	if err != nil {
		return nil, errorbank.Internal("failed to decode snapshot", errorbank.WithCause(err))
	}
	responses, err := s.repo.ListResponseItems(ctx, req.ID)
	if err != nil {
		return nil, errorbank.Internal("failed to load response items", errorbank.WithCause(err))
	}

	return &RequestView{Request: req, SnapshotItems: items, ResponseItems: responses}, nil
}

// SubmitResponse records a vendor's priced lines against the frozen
// snapshot. Line upserts, the status flip, and the edit counter move as one
// atomic unit.
func (s *Service) SubmitResponse(ctx context.Context, tok string, vendorName string, items []ResponseItemInput) (*SubmitResult, error) {
	ctx, span := serviceTracer.Start(ctx, "VendorRequestExchange.SubmitResponse", trace.WithAttributes(attribute.Int("items", len(items))))
	defer span.End()

	if !token.ValidVendorToken(tok) {
		return nil, errorbank.BadRequest("malformed token")
	}
	if len(items) == 0 {
		return nil, errorbank.BadRequest("at least one priced line is required")
	}
	seen := make(map[int]bool, len(items))
	for _, in := range items {
		if in.UnitPrice <= 0 {
			return nil, errorbank.BadRequest(fmt.Sprintf("line %d: unit price must be positive", in.LineNo))
		}
		if seen[in.LineNo] {
			return nil, errorbank.BadRequest(fmt.Sprintf("line %d submitted twice", in.LineNo))
		}
		seen[in.LineNo] = true
	}

	var result *SubmitResult
	var quoteID int64
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		txRepo := s.repo.WithTx(tx)

		req, err := txRepo.GetByTokenForUpdate(ctx, tok)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return errorbank.NotFound("vendor request not found")
			}
			return errorbank.Internal("failed to load vendor request", errorbank.WithCause(err))
		}

		now := time.Now().UTC()
		if req.Status == entity.VendorRequestStatusCancelled {
			return errorbank.Conflict("vendor request was cancelled")
		}
		if req.EffectiveStatus(now) == entity.VendorRequestStatusExpired || req.Status == entity.VendorRequestStatusExpired {
			return errorbank.Conflict("vendor request expired",
				errorbank.WithDetail("expired_at", req.ExpiresAt))
		}

		isEdit := req.Status == entity.VendorRequestStatusResponded
		if isEdit && req.ResponseEditCount >= req.ResponseEditLimit {
			return errorbank.Conflict("response edit limit exceeded",
				errorbank.WithDetail("edit_count", req.ResponseEditCount),
				errorbank.WithDetail("edit_limit", req.ResponseEditLimit),
			)
		}

		// Submitted lines are validated against the frozen snapshot, never
		// the live quote: a vendor cannot be made to quote items added
		// after they received the request.
		snapshotItems, err := req.SnapshotItems()
		if err != nil {
			return errorbank.Internal("failed to decode snapshot", errorbank.WithCause(err))
		}
		known := make(map[int]bool, len(snapshotItems))
		for _, si := range snapshotItems {
			known[si.LineNo] = true
		}
		var invalid []int
		for _, in := range items {
			if !known[in.LineNo] {
				invalid = append(invalid, in.LineNo)
			}
		}
		if len(invalid) > 0 {
			return errorbank.Unprocessable("submitted lines are not in the snapshot",
				errorbank.WithDetail("invalid_line_nos", invalid))
		}

		existing, err := txRepo.ListResponseItems(ctx, req.ID)
		if err != nil {
			return errorbank.Internal("failed to load response items", errorbank.WithCause(err))
		}
		byLine := make(map[int]*entity.VendorResponseItem, len(existing))
		for _, it := range existing {
			byLine[it.LineNo] = it
		}

		changed := 0
		for _, in := range items {
			currency := in.Currency
			if currency == "" {
				currency = s.currency
			}
			prev, ok := byLine[in.LineNo]
			if !ok {
				item := &entity.VendorResponseItem{
					VendorRequestID: req.ID,
					LineNo:          in.LineNo,
					UnitPrice:       in.UnitPrice,
					Currency:        currency,
					LeadTimeDays:    in.LeadTimeDays,
					MinOrderQty:     in.MinOrderQty,
					VendorSKU:       in.VendorSKU,
					Notes:           in.Notes,
					CreatedAt:       now,
					UpdatedAt:       now,
				}
				if err := txRepo.InsertResponseItem(ctx, item); err != nil {
					return errorbank.Internal("failed to store response line", errorbank.WithCause(err))
				}
				changed++
				continue
			}
			if !responseLineEqual(prev, in, currency) {
				prev.UnitPrice = in.UnitPrice
				prev.Currency = currency
				prev.LeadTimeDays = in.LeadTimeDays
				prev.MinOrderQty = in.MinOrderQty
				prev.VendorSKU = in.VendorSKU
				prev.Notes = in.Notes
				prev.UpdatedAt = now
				if err := txRepo.UpdateResponseItem(ctx, prev); err != nil {
					return errorbank.Internal("failed to update response line", errorbank.WithCause(err))
				}
				changed++
			}
		}

		if vendorName != "" {
			req.VendorName = vendorName
		}
		if isEdit {
			req.ResponseEditCount++
		} else {
			req.Status = entity.VendorRequestStatusResponded
			req.RespondedAt = &now
		}
		req.UpdatedAt = now
		if err := txRepo.UpdateSubmission(ctx, req); err != nil {
			return errorbank.Internal("failed to update vendor request", errorbank.WithCause(err))
		}

		// First response moves the quote forward when the table allows it.
		if !isEdit {
			quoteTx := s.quotes.WithTx(tx)
			if quote, err := quoteTx.GetByID(ctx, req.QuoteID); err == nil {
				if quotesvc.CanTransition(quote.Status, entity.QuoteStatusResponded) {
					if err := quoteTx.UpdateStatus(ctx, quote.ID, entity.QuoteStatusResponded, now); err != nil {
						return errorbank.Internal("failed to update quote status", errorbank.WithCause(err))
					}
				}
			}
		}

		quoteID = req.QuoteID
		result = &SubmitResult{
			Request:      req,
			IsEdit:       isEdit,
			EditCount:    req.ResponseEditCount,
			EditLimit:    req.ResponseEditLimit,
			ChangedLines: changed,
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submit failed")
		return nil, errorbank.From(err)
	}
	s.invalidateQuoteCache(ctx, quoteID)

	return result, nil
}

func buildSnapshot(items []*entity.QuoteItem) (json.RawMessage, error) {
	frozen := make([]entity.SnapshotItem, 0, len(items))
	for i, item := range items {
		frozen = append(frozen, entity.SnapshotItem{
			LineNo:        i + 1,
			Name:          item.Name,
			Brand:         item.Brand,
			CatalogNumber: item.CatalogNumber,
			Quantity:      item.Quantity,
			Unit:          item.Unit,
			UnitPrice:     item.UnitPrice,
			PackSize:      item.PackSize,
			Notes:         item.Notes,
		})
	}
	return json.Marshal(frozen)
}

func responseLineEqual(prev *entity.VendorResponseItem, in ResponseItemInput, currency string) bool {
	if prev.UnitPrice != in.UnitPrice || prev.Currency != currency {
		return false
	}
	if !intPtrEqual(prev.LeadTimeDays, in.LeadTimeDays) || !int64PtrEqual(prev.MinOrderQty, in.MinOrderQty) {
		return false
	}
	return prev.VendorSKU == in.VendorSKU && prev.Notes == in.Notes
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func int64PtrEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (s *Service) invalidateQuoteCache(ctx context.Context, quoteID int64) {
	if s.cache == nil || quoteID == 0 {
		return
	}
	if err := s.cache.Delete(ctx, quotesvc.CacheKey(quoteID)); err != nil {
		s.logger.Warn("quotes cache invalidate failed", zap.Int64("id", quoteID), zap.Error(err))
	}
}
