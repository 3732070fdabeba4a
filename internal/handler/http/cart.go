package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/cartstore/internal/cart"
	"github.com/utafrali/cartstore/internal/domain"
	apperrors "github.com/utafrali/cartstore/pkg/errors"
	"github.com/utafrali/cartstore/pkg/httputil"
	"github.com/utafrali/cartstore/pkg/validator"
)

// CartHandler handles HTTP requests for cart endpoints.
type CartHandler struct {
	store  *cart.Store
	logger *slog.Logger
}

// NewCartHandler creates a new cart HTTP handler.
func NewCartHandler(store *cart.Store, logger *slog.Logger) *CartHandler {
	return &CartHandler{
		store:  store,
		logger: logger,
	}
}

// --- Request DTOs ---

// AddItemRequest is the JSON request body for adding an item to the cart.
type AddItemRequest struct {
	ID            string   `json:"id" validate:"required,max=200"`
	Name          string   `json:"name" validate:"required,min=1,max=500"`
	Price         float64  `json:"price" validate:"gte=0"`
	OriginalPrice *float64 `json:"originalPrice" validate:"omitempty,gte=0"`
	Image         string   `json:"image" validate:"max=2048"`
	Unit          string   `json:"unit" validate:"max=50"`
	Stock         int      `json:"stock"`
	// Quantity defaults to 1 when omitted.
	Quantity      *int     `json:"quantity"`
}

func (r AddItemRequest) quantity() int {
	if r.Quantity == nil {
		return 1
	}
	return *r.Quantity
}

// UpdateQuantityRequest is the JSON request body for updating a line's quantity.
// Quantities below 1 are accepted and ignored by the store.
type UpdateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

// MarkOutOfStockRequest lists product names reported as unavailable.
type MarkOutOfStockRequest struct {
	Names []string `json:"names" validate:"required,min=1,dive,max=500"`
}

// --- Response DTOs ---

// CartView is the cart as returned to clients.
type CartView struct {
	Key        string       `json:"key"`
	Lines      domain.Lines `json:"lines"`
	TotalItems int          `json:"totalItems"`
}

// MutationResponse is returned by every cart mutation.
type MutationResponse struct {
	Cart         CartView             `json:"cart"`
	Notification *domain.Notification `json:"notification,omitempty"`
}

// ReconcileResponse is returned by a manual reconciliation.
type ReconcileResponse struct {
	Cart   CartView             `json:"cart"`
	Result cart.ReconcileResult `json:"result"`
}

// --- Handlers ---

// GetCart handles GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	httputil.WriteData(w, http.StatusOK, h.view())
}

// AddItem handles POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if !h.decode(w, r, &req) {
		return
	}

	n := h.store.AddItem(r.Context(), domain.Item{
		ID:            req.ID,
		Name:          req.Name,
		Price:         req.Price,
		OriginalPrice: req.OriginalPrice,
		Image:         req.Image,
		Unit:          req.Unit,
		Stock:         req.Stock,
	}, req.quantity())

	h.writeMutation(w, n)
}

// UpdateItemQuantity handles PUT /api/v1/cart/items/{id}
func (h *CartHandler) UpdateItemQuantity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		httputil.WriteError(w, r, apperrors.InvalidInput("item id is required"), h.logger)
		return
	}

	var req UpdateQuantityRequest
	if !h.decode(w, r, &req) {
		return
	}

	n := h.store.UpdateQuantity(r.Context(), id, req.Quantity)
	h.writeMutation(w, n)
}

// RemoveItem handles DELETE /api/v1/cart/items/{id}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		httputil.WriteError(w, r, apperrors.InvalidInput("item id is required"), h.logger)
		return
	}

	h.store.RemoveItem(r.Context(), id)
	h.writeMutation(w, nil)
}

// ClearCart handles DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	h.store.ClearCart(r.Context())
	h.writeMutation(w, nil)
}

// MarkOutOfStock handles POST /api/v1/cart/out-of-stock
func (h *CartHandler) MarkOutOfStock(w http.ResponseWriter, r *http.Request) {
	var req MarkOutOfStockRequest
	if !h.decode(w, r, &req) {
		return
	}

	h.store.MarkItemsAsOutOfStock(r.Context(), req.Names)
	h.writeMutation(w, nil)
}

// Reconcile handles POST /api/v1/cart/reconcile
func (h *CartHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	result := h.store.Reconcile(r.Context())
	httputil.WriteData(w, http.StatusOK, ReconcileResponse{
		Cart:   h.view(),
		Result: result,
	})
}

// --- Helpers ---

func (h *CartHandler) view() CartView {
	return viewOf(h.store)
}

func viewOf(store *cart.Store) CartView {
	lines := store.Lines()
	return CartView{
		Key:        store.Key(),
		Lines:      lines,
		TotalItems: lines.TotalItems(),
	}
}

func (h *CartHandler) writeMutation(w http.ResponseWriter, n *domain.Notification) {
	httputil.WriteData(w, http.StatusOK, MutationResponse{
		Cart:         h.view(),
		Notification: n,
	})
}

// decode reads and validates the request body, writing a 400 on failure.
func (h *CartHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := validator.DecodeAndValidate(r, dst)
	if err == nil {
		return true
	}
	var valErr *validator.ValidationError
	if !errors.As(err, &valErr) {
		err = apperrors.InvalidInput("invalid request body: " + err.Error())
	}
	httputil.WriteError(w, r, err, h.logger)
	return false
}
