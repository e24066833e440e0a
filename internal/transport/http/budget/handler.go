package budget

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lablane/procure/internal/dto"
	"github.com/lablane/procure/internal/entity"
	"github.com/lablane/procure/internal/presentation/http/response"
	service "github.com/lablane/procure/internal/service/budget"
	"github.com/lablane/procure/internal/transport/http/auth"
	"github.com/lablane/procure/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/lablane/procure/transport/http/budget")

// Handler exposes budget endpoints over HTTP.
type Handler struct {
	ledger *service.Ledger
}

// NewHandler constructs a budget Handler.
func NewHandler(ledger *service.Ledger) *Handler {
	return &Handler{ledger: ledger}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/budgets")
	g.POST("", h.create)
	g.GET("", h.list)
	g.DELETE("/:id", h.deactivate)
	g.GET("/:id/transactions", h.transactions)
}

func (h *Handler) create(c echo.Context) error {
	b := response.New(c)

	p, err := auth.Resolve(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	var payload struct {
		Name        string     `json:"name"`
		TotalAmount int64      `json:"total_amount"`
		Currency    string     `json:"currency"`
		FiscalStart *time.Time `json:"fiscal_start"`
		FiscalEnd   *time.Time `json:"fiscal_end"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "budgets.create", trace.WithAttributes(attribute.Int64("total", payload.TotalAmount)))
	defer span.End()

	budget, err := h.ledger.CreateBudget(ctx, p, payload.Name, payload.TotalAmount, payload.Currency, payload.FiscalStart, payload.FiscalEnd)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithStatus(http.StatusCreated).WithData(toDTO(budget)).Build()
}

func (h *Handler) list(c echo.Context) error {
	b := response.New(c)

	p, err := auth.Resolve(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "budgets.list")
	defer span.End()

	budgets, err := h.ledger.ListBudgets(ctx, p)
	if err != nil {
		return b.WithError(err).Build()
	}

	out := make([]dto.BudgetResponse, 0, len(budgets))
	for _, budget := range budgets {
		out = append(out, toDTO(budget))
	}
	return b.WithData(out).Build()
}

func (h *Handler) deactivate(c echo.Context) error {
	b := response.New(c)

	p, err := auth.Resolve(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid id", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "budgets.deactivate", trace.WithAttributes(attribute.Int64("budget.id", id)))
	defer span.End()

	if err := h.ledger.Deactivate(ctx, p, id); err != nil {
		return b.WithError(err).Build()
	}

	return b.WithStatus(http.StatusNoContent).Build()
}

func (h *Handler) transactions(c echo.Context) error {
	b := response.New(c)

	p, err := auth.Resolve(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid id", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "budgets.transactions", trace.WithAttributes(attribute.Int64("budget.id", id)))
	defer span.End()

	// Visibility piggybacks on Deactivate's ownership rule: the ledger is
	// readable by the budget owner or an admin.
	budgets, err := h.ledger.ListBudgets(ctx, p)
	if err != nil {
		return b.WithError(err).Build()
	}
	owned := false
	for _, bd := range budgets {
		if bd.ID == id {
			owned = true
			break
		}
	}
	if !owned && !p.IsAdmin() {
		return b.WithError(errorbank.Forbidden("not your budget")).Build()
	}

	txns, err := h.ledger.ListTransactions(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}

	out := make([]dto.BudgetTransactionResponse, 0, len(txns))
	for _, txn := range txns {
		out = append(out, dto.BudgetTransactionResponse{
			ID:            txn.ID,
			BudgetID:      txn.BudgetID,
			OrderID:       txn.OrderID,
			Direction:     string(txn.Direction),
			Amount:        txn.Amount,
			Description:   txn.Description,
			BalanceBefore: txn.BalanceBefore,
			BalanceAfter:  txn.BalanceAfter,
			CreatedAt:     txn.CreatedAt,
		})
	}
	return b.WithData(out).Build()
}

func toDTO(budget *entity.Budget) dto.BudgetResponse {
	return dto.BudgetResponse{
		ID:              budget.ID,
		UserID:          budget.UserID,
		OrganizationID:  budget.OrganizationID,
		Name:            budget.Name,
		TotalAmount:     budget.TotalAmount,
		UsedAmount:      budget.UsedAmount,
		RemainingAmount: budget.RemainingAmount,
		Currency:        budget.Currency,
		IsActive:        budget.IsActive,
		FiscalStart:     budget.FiscalStart,
		FiscalEnd:       budget.FiscalEnd,
		CreatedAt:       budget.CreatedAt,
		UpdatedAt:       budget.UpdatedAt,
	}
}
