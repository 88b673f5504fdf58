package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-wms/meridian-wms/internal/platform/httpx"
)

// Handler wires HTTP endpoints for lot inspection and consumption.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listLots)
	r.Post("/{id}/consume", h.consume)
}

type consumeRequest struct {
	Qty     float64 `json:"qty" validate:"required,gt=0"`
	ActorID int64   `json:"actor_id" validate:"gte=0"`
}

func (h *Handler) listLots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	skuID, err := strconv.ParseInt(q.Get("sku_id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "sku_id must be numeric")
		return
	}
	locationID, err := strconv.ParseInt(q.Get("location_id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "location_id must be numeric")
		return
	}
	activeOnly := q.Get("include_reversed") != "1"

	lots, err := h.service.ListLots(r.Context(), skuID, locationID, activeOnly)
	if err != nil {
		h.logger.Error("list lots", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"lots": lots})
}

func (h *Handler) consume(w http.ResponseWriter, r *http.Request) {
	lotID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "lot id must be numeric")
		return
	}
	var req consumeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	lot, err := h.service.MarkConsumed(r.Context(), lotID, req.Qty, req.ActorID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lot)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrLotNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInsufficientRemaining), errors.Is(err, ErrLotReversed):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid Consumption", err.Error())
	default:
		h.logger.Error("ledger operation", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
