package po

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-wms/meridian-wms/internal/platform/httpx"
	"github.com/meridian-wms/meridian-wms/internal/shared"
)

// Handler wires HTTP endpoints for purchase order reconciliation views.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers purchase order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Post("/{id}/approve", h.approve)
	r.Post("/{id}/cancel", h.cancel)
}

type createRequest struct {
	Number       string        `json:"number" validate:"omitempty,max=60"`
	SupplierID   int64         `json:"supplier_id" validate:"required,gt=0"`
	ExpectedDate *time.Time    `json:"expected_date,omitempty"`
	Note         string        `json:"note,omitempty"`
	Lines        []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

type lineRequest struct {
	SKUID      int64   `json:"sku_id" validate:"required,gt=0"`
	OrderedQty float64 `json:"ordered_qty" validate:"required,gt=0"`
	Price      string  `json:"price" validate:"omitempty"`
	Note       string  `json:"note,omitempty"`
}

type actionRequest struct {
	ActorID int64 `json:"actor_id" validate:"gte=0"`
}

type detailResponse struct {
	Order PurchaseOrder `json:"order"`
	Lines []Line        `json:"lines"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	perPage := 20
	orders, total, err := h.service.List(r.Context(), perPage, (page-1)*perPage)
	if err != nil {
		h.logger.Error("list purchase orders", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items":      orders,
		"pagination": shared.NewPagination(page, perPage, total),
	})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := CreateInput{Number: req.Number, SupplierID: req.SupplierID, ExpectedDate: req.ExpectedDate, Note: req.Note}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, LineInput{SKUID: line.SKUID, OrderedQty: line.OrderedQty, Price: line.Price, Note: line.Note})
	}
	order, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "purchase order id must be numeric")
		return
	}
	order, lines, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, detailResponse{Order: order, Lines: lines})
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, h.service.Approve)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, h.service.Cancel)
}

func (h *Handler) action(w http.ResponseWriter, r *http.Request, fn func(context.Context, int64, int64) error) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "purchase order id must be numeric")
		return
	}
	var req actionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil && err.Error() != "EOF" {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := fn(r.Context(), id, req.ActorID); err != nil {
		h.respondError(w, err)
		return
	}
	order, lines, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, detailResponse{Order: order, Lines: lines})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrPONotFound), errors.Is(err, ErrLineNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrNotReceivable):
		httpx.Problem(w, http.StatusConflict, "Invalid State", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("purchase order operation", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func parseID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
