package quote

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
	service "github.com/lablane/procure/internal/service/quote"
	"github.com/lablane/procure/internal/transport/http/auth"
	"github.com/lablane/procure/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/lablane/procure/transport/http/quote")

// Handler exposes quote endpoints over HTTP.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs a quote Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/quotes")
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.getByID)
	g.POST("/:id/transitions", h.transition)
}

type itemPayload struct {
	ProductID     *int64 `json:"product_id"`
	Name          string `json:"name"`
	Brand         string `json:"brand"`
	CatalogNumber string `json:"catalog_number"`
	Quantity      int64  `json:"quantity"`
	Unit          string `json:"unit"`
	UnitPrice     *int64 `json:"unit_price"`
	PackSize      string `json:"pack_size"`
	Notes         string `json:"notes"`
}

func (h *Handler) create(c echo.Context) error {
	b := response.New(c)

	p, err := auth.Resolve(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	var payload struct {
		Message string        `json:"message"`
		Items   []itemPayload `json:"items"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	items := make([]service.ItemInput, 0, len(payload.Items))
	for _, in := range payload.Items {
		items = append(items, service.ItemInput{
			ProductID:     in.ProductID,
			Name:          in.Name,
			Brand:         in.Brand,
			CatalogNumber: in.CatalogNumber,
			Quantity:      in.Quantity,
			Unit:          in.Unit,
			UnitPrice:     in.UnitPrice,
			PackSize:      in.PackSize,
			Notes:         in.Notes,
		})
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "quotes.create", trace.WithAttributes(attribute.Int("items", len(items))))
	defer span.End()

	quote, err := h.svc.Create(ctx, p, items, payload.Message)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithStatus(http.StatusCreated).WithData(toDTO(quote)).Build()
}

func (h *Handler) list(c echo.Context) error {
	b := response.New(c)

	p, err := auth.Resolve(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "quotes.list")
	defer span.End()

	quotes, err := h.svc.List(ctx, p)
	if err != nil {
		return b.WithError(err).Build()
	}

	out := make([]dto.QuoteResponse, 0, len(quotes))
	for _, q := range quotes {
		out = append(out, toDTO(q))
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

	ctx, span := httpTracer.Start(c.Request().Context(), "quotes.getByID", trace.WithAttributes(attribute.Int64("quote.id", id)))
	defer span.End()

	quote, err := h.svc.Get(ctx, p, id)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(toDTO(quote)).Build()
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
		Reason string `json:"reason"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	if payload.Status == "" {
		return b.WithError(errorbank.BadRequest("status is required")).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "quotes.transition", trace.WithAttributes(
		attribute.Int64("quote.id", id),
		attribute.String("target", payload.Status),
	))
	defer span.End()

	quote, err := h.svc.RequestTransition(ctx, p, id, entity.QuoteStatus(payload.Status), payload.Reason)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(toDTO(quote)).Build()
}

func toDTO(quote *entity.Quote) dto.QuoteResponse {
	out := dto.QuoteResponse{
		ID:             quote.ID,
		UserID:         quote.UserID,
		OrganizationID: quote.OrganizationID,
		Status:         string(quote.Status),
		TotalAmount:    quote.TotalAmount,
		Currency:       quote.Currency,
		Message:        quote.Message,
		CreatedAt:      quote.CreatedAt,
		UpdatedAt:      quote.UpdatedAt,
	}
	for _, item := range quote.Items {
		out.Items = append(out.Items, dto.QuoteItemResponse{
			ID:            item.ID,
			ProductID:     item.ProductID,
			Name:          item.Name,
			Brand:         item.Brand,
			CatalogNumber: item.CatalogNumber,
			Quantity:      item.Quantity,
			Unit:          item.Unit,
			UnitPrice:     item.UnitPrice,
			LineTotal:     item.LineTotal,
			PackSize:      item.PackSize,
			Notes:         item.Notes,
		})
	}
	return out
}
