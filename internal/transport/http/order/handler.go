package order

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lablane/procure/internal/dto"
	"github.com/lablane/procure/internal/entity"
	"github.com/lablane/procure/internal/presentation/http/response"
	service "github.com/lablane/procure/internal/service/order"
	"github.com/lablane/procure/internal/transport/http/auth"
	"github.com/lablane/procure/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/lablane/procure/transport/http/order")

// Handler exposes order and inventory endpoints over HTTP.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs an order Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/orders")
	g.POST("", h.convert)
	g.GET("", h.list)
	g.GET("/:id", h.getByID)
	g.POST("/:id/transitions", h.transition)

	e.GET("/inventory", h.inventory)
}

func (h *Handler) convert(c echo.Context) error {
	b := response.New(c)

	p, err := auth.Resolve(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	var payload struct {
		QuoteID         int64  `json:"quote_id"`
		ShippingAddress string `json:"shipping_address"`
		Notes           string `json:"notes"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	if payload.QuoteID <= 0 {
		return b.WithError(errorbank.BadRequest("quote_id is required")).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.convert", trace.WithAttributes(attribute.Int64("quote.id", payload.QuoteID)))
	defer span.End()

	order, err := h.svc.Convert(ctx, p, payload.QuoteID, payload.ShippingAddress, payload.Notes)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithStatus(http.StatusCreated).WithData(toDTO(order)).Build()
}

func (h *Handler) list(c echo.Context) error {
	b := response.New(c)

	p, err := auth.Resolve(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.list")
	defer span.End()

	orders, err := h.svc.List(ctx, p)
	if err != nil {
		return b.WithError(err).Build()
	}

	out := make([]dto.OrderResponse, 0, len(orders))
	for _, order := range orders {
		out = append(out, toDTO(order))
	}
	return b.WithData(out).Build()
}

func (h *Handler) getByID(c echo.Context) error {
	b := response.New(c)

	p, err := auth.Resolve(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid id", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.getByID", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	order, err := h.svc.Get(ctx, p, id)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(toDTO(order)).Build()
}

func (h *Handler) transition(c echo.Context) error {
	b := response.New(c)

	p, err := auth.Resolve(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid id", errorbank.WithCause(err))).Build()
	}

	var payload struct {
		Status string `json:"status"`
		Notes  string `json:"notes"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	if payload.Status == "" {
		return b.WithError(errorbank.BadRequest("status is required")).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.transition", trace.WithAttributes(
		attribute.Int64("order.id", id),
		attribute.String("target", payload.Status),
	))
	defer span.End()

	order, err := h.svc.Transition(ctx, p, id, entity.OrderStatus(payload.Status), payload.Notes)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(toDTO(order)).Build()
}

func (h *Handler) inventory(c echo.Context) error {
	b := response.New(c)

	p, err := auth.Resolve(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "inventory.list")
	defer span.End()

	items, err := h.svc.ListInventory(ctx, p)
	if err != nil {
		return b.WithError(err).Build()
	}

	out := make([]dto.InventoryItemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, dto.InventoryItemResponse{
			ID:            item.ID,
			OrderItemID:   item.OrderItemID,
			Name:          item.Name,
			Brand:         item.Brand,
			CatalogNumber: item.CatalogNumber,
			Quantity:      item.Quantity,
			Unit:          item.Unit,
			Location:      item.Location,
			Status:        string(item.Status),
			ReceivedAt:    item.ReceivedAt,
			CreatedAt:     item.CreatedAt,
		})
	}
	return b.WithData(out).Build()
}

func toDTO(order *entity.Order) dto.OrderResponse {
	out := dto.OrderResponse{
		ID:              order.ID,
		UserID:          order.UserID,
		QuoteID:         order.QuoteID,
		OrganizationID:  order.OrganizationID,
		Number:          order.Number,
		Status:          string(order.Status),
		TotalAmount:     order.TotalAmount,
		Currency:        order.Currency,
		ShippingAddress: order.ShippingAddress,
		Notes:           order.Notes,
		ActualDelivery:  order.ActualDelivery,
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}
	for _, item := range order.Items {
		out.Items = append(out.Items, dto.OrderItemResponse{
			ID:            item.ID,
			ProductID:     item.ProductID,
			Name:          item.Name,
			Brand:         item.Brand,
			CatalogNumber: item.CatalogNumber,
			Quantity:      item.Quantity,
			Unit:          item.Unit,
			UnitPrice:     item.UnitPrice,
			LineTotal:     item.LineTotal,
		})
	}
	return out
}
