package masterdata

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-wms/meridian-wms/internal/platform/httpx"
	"github.com/meridian-wms/meridian-wms/internal/shared"
)

// Handler wires HTTP endpoints for master data.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers master data routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/skus", h.listSKUs)
	r.Post("/skus", h.createSKU)
	r.Get("/skus/{id}", h.getSKU)
	r.Get("/locations", h.listLocations)
	r.Post("/locations", h.createLocation)
	r.Get("/locations/{id}", h.getLocation)
}

type createSKURequest struct {
	Code string `json:"code" validate:"required,max=60"`
	Name string `json:"name" validate:"required,max=200"`
	UOM  string `json:"uom" validate:"omitempty,max=20"`
}

type createLocationRequest struct {
	Code string `json:"code" validate:"required,max=60"`
	Name string `json:"name" validate:"required,max=200"`
}

type listResponse[T any] struct {
	Items      []T               `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) listSKUs(w http.ResponseWriter, r *http.Request) {
	page, perPage := pageParams(r)
	skus, total, err := h.service.ListSKUs(r.Context(), r.URL.Query().Get("search"), perPage, (page-1)*perPage)
	if err != nil {
		h.logger.Error("list skus", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse[SKU]{Items: skus, Pagination: shared.NewPagination(page, perPage, total)})
}

func (h *Handler) createSKU(w http.ResponseWriter, r *http.Request) {
	var req createSKURequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	sku, err := h.service.CreateSKU(r.Context(), SKU{Code: req.Code, Name: req.Name, UOM: req.UOM})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sku)
}

func (h *Handler) getSKU(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "sku id must be numeric")
		return
	}
	sku, err := h.service.GetSKU(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sku)
}

func (h *Handler) listLocations(w http.ResponseWriter, r *http.Request) {
	page, perPage := pageParams(r)
	locations, total, err := h.service.ListLocations(r.Context(), perPage, (page-1)*perPage)
	if err != nil {
		h.logger.Error("list locations", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse[Location]{Items: locations, Pagination: shared.NewPagination(page, perPage, total)})
}

func (h *Handler) createLocation(w http.ResponseWriter, r *http.Request) {
	var req createLocationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	loc, err := h.service.CreateLocation(r.Context(), Location{Code: req.Code, Name: req.Name})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, loc)
}

func (h *Handler) getLocation(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "location id must be numeric")
		return
	}
	loc, err := h.service.GetLocation(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, loc)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrSKUNotFound), errors.Is(err, ErrLocationNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicateCode):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}

func pageParams(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage < 1 || perPage > 200 {
		perPage = 20
	}
	return page, perPage
}
