package vendorrequest

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
	service "github.com/lablane/procure/internal/service/vendorrequest"
	"github.com/lablane/procure/internal/transport/http/auth"
	"github.com/lablane/procure/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/lablane/procure/transport/http/vendorrequest")

// Handler exposes vendor request endpoints: owner-facing routes under
// /quotes, and the public token-addressed routes vendors use.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs a vendor request Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo instance. The /vendor-responses group
// is deliberately unauthenticated: possession of the token is the
// credential.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/quotes/:id/vendor-requests")
	g.POST("", h.create)
	g.GET("", h.list)

	pub := e.Group("/vendor-responses/:token")
	pub.GET("", h.getByToken)
	pub.POST("", h.submit)
}

func (h *Handler) create(c echo.Context) error {
	b := response.New(c)

	p, err := auth.Resolve(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	quoteID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid id", errorbank.WithCause(err))).Build()
	}

	var payload struct {
		Vendors []struct {
			Name  string `json:"name"`
			Email string `json:"email"`
		} `json:"vendors"`
		Message       string `json:"message"`
		ExpiresInDays int    `json:"expires_in_days"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	vendors := make([]service.VendorInput, 0, len(payload.Vendors))
	for _, v := range payload.Vendors {
		vendors = append(vendors, service.VendorInput{Name: v.Name, Email: v.Email})
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "vendorRequests.create", trace.WithAttributes(
		attribute.Int64("quote.id", quoteID),
		attribute.Int("vendors", len(vendors)),
	))
	defer span.End()

	results, err := h.svc.CreateRequests(ctx, p, quoteID, vendors, payload.Message, payload.ExpiresInDays)
	if err != nil {
		return b.WithError(err).Build()
	}

	out := make([]dto.VendorRequestCreatedResponse, 0, len(results))
	for _, res := range results {
		out = append(out, dto.VendorRequestCreatedResponse{
			VendorRequestResponse: toDTO(res.Request),
			EmailSent:             res.EmailSent,
		})
	}
	return b.WithStatus(http.StatusCreated).WithData(out).Build()
}

func (h *Handler) list(c echo.Context) error {
	b := response.New(c)

	p, err := auth.Resolve(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	quoteID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid id", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "vendorRequests.list", trace.WithAttributes(attribute.Int64("quote.id", quoteID)))
	defer span.End()

	reqs, err := h.svc.GetRequests(ctx, p, quoteID)
	if err != nil {
		return b.WithError(err).Build()
	}

	out := make([]dto.VendorRequestResponse, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, toDTO(req))
	}
	return b.WithData(out).Build()
}

func (h *Handler) getByToken(c echo.Context) error {
	b := response.New(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "vendorResponses.getByToken")
	defer span.End()

	view, err := h.svc.GetByToken(ctx, c.Param("token"))
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(toPublicDTO(view)).Build()
}

func (h *Handler) submit(c echo.Context) error {
	b := response.New(c)

	var payload struct {
		VendorName string `json:"vendor_name"`
		Items      []struct {
			LineNo       int    `json:"line_no"`
			UnitPrice    int64  `json:"unit_price"`
			Currency     string `json:"currency"`
			LeadTimeDays *int   `json:"lead_time_days"`
			MinOrderQty  *int64 `json:"min_order_qty"`
			VendorSKU    string `json:"vendor_sku"`
			Notes        string `json:"notes"`
		} `json:"items"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	items := make([]service.ResponseItemInput, 0, len(payload.Items))
	for _, in := range payload.Items {
		items = append(items, service.ResponseItemInput{
			LineNo:       in.LineNo,
			UnitPrice:    in.UnitPrice,
			Currency:     in.Currency,
			LeadTimeDays: in.LeadTimeDays,
			MinOrderQty:  in.MinOrderQty,
			VendorSKU:    in.VendorSKU,
			Notes:        in.Notes,
		})
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "vendorResponses.submit", trace.WithAttributes(attribute.Int("items", len(items))))
	defer span.End()

	result, err := h.svc.SubmitResponse(ctx, c.Param("token"), payload.VendorName, items)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(dto.VendorResponseSubmittedResponse{
		Status:       string(result.Request.Status),
		IsEdit:       result.IsEdit,
		EditCount:    result.EditCount,
		EditLimit:    result.EditLimit,
		ChangedLines: result.ChangedLines,
	}).Build()
}

func toDTO(req *entity.VendorRequest) dto.VendorRequestResponse {
	return dto.VendorRequestResponse{
		ID:                req.ID,
		QuoteID:           req.QuoteID,
		VendorName:        req.VendorName,
		VendorEmail:       req.VendorEmail,
		Token:             req.Token,
		Status:            string(req.Status),
		Message:           req.Message,
		ExpiresAt:         req.ExpiresAt,
		RespondedAt:       req.RespondedAt,
		ResponseEditCount: req.ResponseEditCount,
		ResponseEditLimit: req.ResponseEditLimit,
		CreatedAt:         req.CreatedAt,
	}
}

func toPublicDTO(view *service.RequestView) dto.PublicVendorRequestResponse {
	out := dto.PublicVendorRequestResponse{
		VendorName:        view.Request.VendorName,
		Status:            string(view.Request.Status),
		Message:           view.Request.Message,
		ExpiresAt:         view.Request.ExpiresAt,
		RespondedAt:       view.Request.RespondedAt,
		ResponseEditCount: view.Request.ResponseEditCount,
		ResponseEditLimit: view.Request.ResponseEditLimit,
		Items:             make([]dto.SnapshotItemResponse, 0, len(view.SnapshotItems)),
	}
	for _, si := range view.SnapshotItems {
		out.Items = append(out.Items, dto.SnapshotItemResponse{
			LineNo:        si.LineNo,
			Name:          si.Name,
			Brand:         si.Brand,
			CatalogNumber: si.CatalogNumber,
			Quantity:      si.Quantity,
			Unit:          si.Unit,
			UnitPrice:     si.UnitPrice,
			PackSize:      si.PackSize,
			Notes:         si.Notes,
		})
	}
	for _, ri := range view.ResponseItems {
		out.Responses = append(out.Responses, dto.VendorResponseItemResponse{
			LineNo:       ri.LineNo,
			UnitPrice:    ri.UnitPrice,
			Currency:     ri.Currency,
			LeadTimeDays: ri.LeadTimeDays,
			MinOrderQty:  ri.MinOrderQty,
			VendorSKU:    ri.VendorSKU,
			Notes:        ri.Notes,
			UpdatedAt:    ri.UpdatedAt,
		})
	}
	return out
}
