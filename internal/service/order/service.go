package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
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
	inventoryrepo "github.com/lablane/procure/internal/repository/inventory"
	repo "github.com/lablane/procure/internal/repository/order"
	quoterepo "github.com/lablane/procure/internal/repository/quote"
	budgetsvc "github.com/lablane/procure/internal/service/budget"
	quotesvc "github.com/lablane/procure/internal/service/quote"
	"github.com/lablane/procure/internal/token"
	"github.com/lablane/procure/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/lablane/procure/service/order")

// fulfillmentTransitions is the authoritative table of legal order status
// moves. DELIVERED and CANCELLED are terminal.
var fulfillmentTransitions = map[entity.OrderStatus][]entity.OrderStatus{
	entity.OrderStatusOrdered:   {entity.OrderStatusConfirmed, entity.OrderStatusCancelled},
	entity.OrderStatusConfirmed: {entity.OrderStatusShipping, entity.OrderStatusCancelled},
	entity.OrderStatusShipping:  {entity.OrderStatusDelivered, entity.OrderStatusCancelled},
	entity.OrderStatusDelivered: {},
	entity.OrderStatusCancelled: {},
}

// AllowedTargets returns the legal next states from a given order status.
func AllowedTargets(from entity.OrderStatus) []entity.OrderStatus {
	targets := fulfillmentTransitions[from]
	out := make([]entity.OrderStatus, len(targets))
	copy(out, targets)
	return out
}

// CanTransition reports whether from -> to is present in the table.
func CanTransition(from, to entity.OrderStatus) bool {
	for _, t := range fulfillmentTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Service converts completed quotes into orders against the budget ledger
// and runs the fulfillment lifecycle.
type Service struct {
	db        *bun.DB
	repo      *repo.Repository
	quotes    *quoterepo.Repository
	inventory *inventoryrepo.Repository
	ledger    *budgetsvc.Ledger
	cache     cache.Store
	logger    *zap.Logger
	notifier  notify.Notifier
	prefix    string
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Connections *database.Connections
	Repository  *repo.Repository
	Quotes      *quoterepo.Repository
	Inventory   *inventoryrepo.Repository
	Ledger      *budgetsvc.Ledger
	Cache       cache.Store
	Config      config.Config
	Logger      *zap.Logger
	Notifier    notify.Notifier
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return &Service{
		db:        p.Connections.Writer,
		repo:      p.Repository,
		quotes:    p.Quotes,
		inventory: p.Inventory,
		ledger:    p.Ledger,
		cache:     p.Cache,
		logger:    p.Logger,
		notifier:  p.Notifier,
		prefix:    p.Config.Procurement.OrderNumberPrefix,
	}
}

// Convert turns a COMPLETED quote into an order, debiting the caller's
// budget. Order creation, item copies, the ledger debit, and the quote's
// flip to PURCHASED commit as one atomic unit; authorization failure means
// no writes at all.
func (s *Service) Convert(ctx context.Context, p principal.Principal, quoteID int64, shippingAddress, notes string) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderConversion.Convert", trace.WithAttributes(attribute.Int64("quote.id", quoteID)))
	defer span.End()

	var order *entity.Order
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		quoteTx := s.quotes.WithTx(tx)
		orderTx := s.repo.WithTx(tx)

		quote, err := quoteTx.GetByID(ctx, quoteID)
		if err != nil {
			if errors.Is(err, quoterepo.ErrNotFound) {
				return errorbank.NotFound("quote not found")
			}
			return errorbank.Internal("failed to load quote", errorbank.WithCause(err))
		}
		if quote.UserID != p.UserID {
			return errorbank.Forbidden("not your quote")
		}
		if quote.Status != entity.QuoteStatusCompleted {
			return errorbank.Conflict("quote is not ready to order",
				errorbank.WithDetail("current", quote.Status),
				errorbank.WithDetail("required", entity.QuoteStatusCompleted),
			)
		}
		if _, err := orderTx.GetByQuote(ctx, quote.ID); err == nil {
			return errorbank.Conflict("quote already has an order")
		} else if !errors.Is(err, repo.ErrNotFound) {
			return errorbank.Internal("failed to check existing order", errorbank.WithCause(err))
		}

		total := computeTotal(quote)
		if total <= 0 {
			return errorbank.Unprocessable("quote total must be positive")
		}

		budget, err := s.ledger.Authorize(ctx, tx, entity.Scope{UserID: quote.UserID, OrganizationID: quote.OrganizationID}, total)
		if err != nil {
			return err
		}

		number, err := s.newOrderNumber()
		if err != nil {
			return errorbank.Internal("failed to generate order number", errorbank.WithCause(err))
		}

		now := time.Now().UTC()
		order = &entity.Order{
			UserID:          quote.UserID,
			QuoteID:         quote.ID,
			OrganizationID:  quote.OrganizationID,
			Number:          number,
			Status:          entity.OrderStatusOrdered,
			TotalAmount:     total,
			Currency:        quote.Currency,
			ShippingAddress: shippingAddress,
			Notes:           notes,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		for _, item := range quote.Items {
			order.Items = append(order.Items, copyQuoteItem(item, now))
		}
		if err := orderTx.Create(ctx, order); err != nil {
			return errorbank.Internal("failed to create order", errorbank.WithCause(err))
		}

		if _, err := s.ledger.Debit(ctx, tx, budget, total, fmt.Sprintf("order %s", number), &order.ID); err != nil {
			return err
		}

		// Internal, already-validated move; the general transition side
		// effects are intentionally bypassed here.
		if err := quoteTx.UpdateStatus(ctx, quote.ID, entity.QuoteStatusPurchased, now); err != nil {
			return errorbank.Internal("failed to mark quote purchased", errorbank.WithCause(err))
		}

		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "conversion failed")
		return nil, errorbank.From(err)
	}

	s.invalidateQuoteCache(ctx, quoteID)
	s.notifier.Send(ctx, notify.KindOrderCreated, map[string]any{
		"order_id":     order.ID,
		"order_number": order.Number,
		"quote_id":     order.QuoteID,
		"user_id":      order.UserID,
		"total_amount": order.TotalAmount,
		"currency":     order.Currency,
	})
	s.logger.Info("quote converted to order",
		zap.Int64("quote_id", quoteID),
		zap.Int64("order_id", order.ID),
		zap.String("number", order.Number),
		zap.Int64("total", order.TotalAmount),
	)

	return order, nil
}

// Get retrieves an order for its owner.
func (s *Service) Get(ctx context.Context, p principal.Principal, id int64) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Get", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, errorbank.NotFound("order not found")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to load order", errorbank.WithCause(err))
	}
	if order.UserID != p.UserID {
		return nil, errorbank.Forbidden("not your order")
	}
	return order, nil
}

// List returns the caller's orders.
func (s *Service) List(ctx context.Context, p principal.Principal) ([]*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.List")
	defer span.End()

	orders, err := s.repo.ListByUser(ctx, p.UserID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to list orders", errorbank.WithCause(err))
	}
	return orders, nil
}

// ListInventory returns the caller's stock positions materialized from
// delivered orders.
func (s *Service) ListInventory(ctx context.Context, p principal.Principal) ([]*entity.InventoryItem, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.ListInventory")
	defer span.End()

	items, err := s.inventory.ListByUser(ctx, p.UserID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to list inventory", errorbank.WithCause(err))
	}
	return items, nil
}

// Transition applies a fulfillment status move. DELIVERED carries a
// mandatory same-transaction side effect: every order item is materialized
// into the owner's inventory.
func (s *Service) Transition(ctx context.Context, p principal.Principal, orderID int64, target entity.OrderStatus, notes string) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderFulfillment.Transition", trace.WithAttributes(
		attribute.Int64("order.id", orderID),
		attribute.String("target", string(target)),
	))
	defer span.End()

	var order *entity.Order
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		orderTx := s.repo.WithTx(tx)

		var err error
		order, err = orderTx.GetByID(ctx, orderID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return errorbank.NotFound("order not found")
			}
			return errorbank.Internal("failed to load order", errorbank.WithCause(err))
		}
		if order.UserID != p.UserID {
			return errorbank.Forbidden("not your order")
		}

		if !CanTransition(order.Status, target) {
			return errorbank.Conflict("illegal order status transition",
				errorbank.WithDetail("current", order.Status),
				errorbank.WithDetail("requested", target),
				errorbank.WithDetail("allowed", AllowedTargets(order.Status)),
			)
		}

		now := time.Now().UTC()
		order.Status = target
		if notes != "" {
			order.Notes = notes
		}
		if target == entity.OrderStatusDelivered {
			order.ActualDelivery = &now
		}
		if err := orderTx.UpdateStatus(ctx, order, now); err != nil {
			return errorbank.Internal("failed to update order status", errorbank.WithCause(err))
		}

		if target == entity.OrderStatusDelivered {
			if items := materializeInventory(order, now); len(items) > 0 {
				if err := s.inventory.WithTx(tx).CreateBatch(ctx, items); err != nil {
					return errorbank.Internal("failed to materialize inventory", errorbank.WithCause(err))
				}
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transition failed")
		return nil, errorbank.From(err)
	}

	if target == entity.OrderStatusDelivered {
		s.notifier.Send(ctx, notify.KindOrderDelivered, map[string]any{
			"order_id":     order.ID,
			"order_number": order.Number,
			"user_id":      order.UserID,
			"delivered_at": order.ActualDelivery,
		})
	}

	return order, nil
}

func computeTotal(quote *entity.Quote) int64 {
	if quote.TotalAmount != nil {
		return *quote.TotalAmount
	}
	var total int64
	for _, item := range quote.Items {
		if item.LineTotal != nil {
			total += *item.LineTotal
		}
	}
	return total
}

func copyQuoteItem(item *entity.QuoteItem, now time.Time) *entity.OrderItem {
	return &entity.OrderItem{
		ProductID:     item.ProductID,
		Name:          item.Name,
		Brand:         item.Brand,
		CatalogNumber: item.CatalogNumber,
		Quantity:      item.Quantity,
		Unit:          item.Unit,
		UnitPrice:     item.UnitPrice,
		LineTotal:     item.LineTotal,
		CreatedAt:     now,
	}
}

func materializeInventory(order *entity.Order, now time.Time) []*entity.InventoryItem {
	items := make([]*entity.InventoryItem, 0, len(order.Items))
	for _, oi := range order.Items {
		itemID := oi.ID
		unit := oi.Unit
		if unit == "" {
			unit = entity.DefaultInventoryUnit
		}
		items = append(items, &entity.InventoryItem{
			UserID:        order.UserID,
			OrderItemID:   &itemID,
			Name:          oi.Name,
			Brand:         oi.Brand,
			CatalogNumber: oi.CatalogNumber,
			Quantity:      oi.Quantity,
			Unit:          unit,
			Location:      entity.DefaultInventoryLocation,
			Status:        entity.InventoryStatusInStock,
			ReceivedAt:    now,
			CreatedAt:     now,
		})
	}
	return items
}

func (s *Service) newOrderNumber() (string, error) {
	suffix, err := token.NewOrderSuffix()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%s", s.prefix, time.Now().UTC().Format("20060102"), strings.ToUpper(suffix)), nil
}

func (s *Service) invalidateQuoteCache(ctx context.Context, quoteID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, quotesvc.CacheKey(quoteID)); err != nil {
		s.logger.Warn("quotes cache invalidate failed", zap.Int64("id", quoteID), zap.Error(err))
	}
}
