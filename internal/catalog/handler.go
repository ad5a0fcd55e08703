package catalog

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/freshledger/freshledger/internal/platform/httpx"
)

// Handler wires catalog JSON endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the catalog handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/categories", h.handleListCategories)
	r.Post("/categories", h.handleCreateCategory)
	r.Get("/categories/{id}", h.handleGetCategory)
	r.Put("/categories/{id}", h.handleUpdateCategory)
	r.Delete("/categories/{id}", h.handleDeleteCategory)

	r.Get("/products", h.handleListProducts)
	r.Post("/products", h.handleCreateProduct)
	r.Get("/products/{id}", h.handleGetProduct)

	r.Get("/vendors", h.handleListVendors)
}

type categoryRequest struct {
	Name               string  `json:"name" validate:"required,max=120"`
	Description        string  `json:"description"`
	ReorderThresholdKg float64 `json:"reorder_threshold_kg" validate:"gte=0"`
}

type productRequest struct {
	CategoryID      int64   `json:"category_id" validate:"required"`
	Name            string  `json:"name" validate:"required,max=120"`
	SaleUnit        string  `json:"sale_unit" validate:"required,oneof=WEIGHT PACKAGE PIECE"`
	PackageWeightKg float64 `json:"package_weight_kg" validate:"gte=0"`
	Price           float64 `json:"price" validate:"gte=0"`
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Body", "request body is not valid JSON")
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func (h *Handler) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.ListCategories(r.Context())
	if err != nil {
		h.respondError(w, "list categories", err)
		return
	}
	httpx.JSON(w, http.StatusOK, categories)
}

func (h *Handler) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if !h.decode(w, r, &req) {
		return
	}
	category, err := h.service.CreateCategory(r.Context(), req.Name, req.Description, req.ReorderThresholdKg)
	if err != nil {
		h.respondError(w, "create category", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, category)
}

func (h *Handler) handleGetCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "category id must be an integer")
		return
	}
	category, err := h.service.GetCategory(r.Context(), id)
	if err != nil {
		h.respondError(w, "get category", err)
		return
	}
	httpx.JSON(w, http.StatusOK, category)
}

func (h *Handler) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "category id must be an integer")
		return
	}
	var req categoryRequest
	if !h.decode(w, r, &req) {
		return
	}
	category, err := h.service.UpdateCategory(r.Context(), id, req.Name, req.Description, req.ReorderThresholdKg)
	if err != nil {
		h.respondError(w, "update category", err)
		return
	}
	httpx.JSON(w, http.StatusOK, category)
}

func (h *Handler) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "category id must be an integer")
		return
	}
	if err := h.service.DeleteCategory(r.Context(), id); err != nil {
		h.respondError(w, "delete category", err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	categoryID, _ := strconv.ParseInt(r.URL.Query().Get("category_id"), 10, 64)
	products, err := h.service.ListProducts(r.Context(), categoryID)
	if err != nil {
		h.respondError(w, "list products", err)
		return
	}
	httpx.JSON(w, http.StatusOK, products)
}

func (h *Handler) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if !h.decode(w, r, &req) {
		return
	}
	product, err := h.service.CreateProduct(r.Context(), Product{
		CategoryID:      req.CategoryID,
		Name:            req.Name,
		SaleUnit:        SaleUnit(req.SaleUnit),
		PackageWeightKg: req.PackageWeightKg,
		Price:           req.Price,
	})
	if err != nil {
		h.respondError(w, "create product", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, product)
}

func (h *Handler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "product id must be an integer")
		return
	}
	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		h.respondError(w, "get product", err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) handleListVendors(w http.ResponseWriter, r *http.Request) {
	vendors, err := h.service.ListVendors(r.Context())
	if err != nil {
		h.respondError(w, "list vendors", err)
		return
	}
	httpx.JSON(w, http.StatusOK, vendors)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrInvalidName), errors.Is(err, ErrInvalidThreshold), errors.Is(err, ErrInvalidSaleUnit):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrCategoryNotFound), errors.Is(err, ErrProductNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrCategoryInUse):
		httpx.Problem(w, http.StatusConflict, "Category In Use", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
