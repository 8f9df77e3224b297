package cart

import (
	"encoding/json"
	"errors"
	"net/http"

	validator "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-cart/internal/common"
	"github.com/noah-isme/toko-cart/internal/pricing"
)

// Handler exposes the shopper's cart over HTTP. The cart itself is resolved from the
// request context, see WithStore.
type Handler struct {
	Validate *validator.Validate
}

// DiscountView is the wire form of a discount.
type DiscountView struct {
	Percentage int             `json:"percentage"`
	Amount     decimal.Decimal `json:"amount"`
}

// LineView is the wire form of a cart line.
type LineView struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	SrcURL            string          `json:"srcUrl"`
	Slug              string          `json:"slug"`
	Attributes        []string        `json:"attributes"`
	Size              string          `json:"size,omitempty"`
	Color             string          `json:"color,omitempty"`
	Quantity          int             `json:"quantity"`
	Price             decimal.Decimal `json:"price"`
	Discount          DiscountView    `json:"discount"`
	EffectivePrice    decimal.Decimal `json:"effectivePrice"`
	LineTotal         decimal.Decimal `json:"lineTotal"`
	AdjustedLineTotal decimal.Decimal `json:"adjustedLineTotal"`
}

// SummaryView is the wire form of the order summary.
type SummaryView struct {
	Subtotal           decimal.Decimal `json:"subtotal"`
	DiscountAmount     decimal.Decimal `json:"discountAmount"`
	DiscountPercentage int             `json:"discountPercentage"`
	DeliveryFee        decimal.Decimal `json:"deliveryFee"`
	Total              decimal.Decimal `json:"total"`
}

// View is the wire form of the cart read model.
type View struct {
	Items              []LineView      `json:"items"`
	TotalPrice         decimal.Decimal `json:"totalPrice"`
	AdjustedTotalPrice decimal.Decimal `json:"adjustedTotalPrice"`
	Summary            SummaryView     `json:"summary"`
	Empty              bool            `json:"empty"`
}

type discountPayload struct {
	Percentage int             `json:"percentage" validate:"gte=0,lte=100"`
	Amount     decimal.Decimal `json:"amount"`
}

type addItemPayload struct {
	ID         string          `json:"id" validate:"required"`
	Name       string          `json:"name" validate:"required"`
	SrcURL     string          `json:"srcUrl"`
	Price      decimal.Decimal `json:"price"`
	Discount   discountPayload `json:"discount"`
	Attributes []string        `json:"attributes"`
	Quantity   *int            `json:"quantity" validate:"omitempty,lte=1000000"`
}

type linePayload struct {
	ID         string   `json:"id" validate:"required"`
	Attributes []string `json:"attributes"`
	Quantity   int      `json:"quantity"`
}

// Get returns the cart read model.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	common.Data(w, http.StatusOK, NewView(store.Snapshot()))
}

// Summary returns only the order summary.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	common.Data(w, http.StatusOK, newSummaryView(store.Snapshot().Summary()))
}

// AddItem adds units of a product variant, one unless quantity is given.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	var payload addItemPayload
	if !h.decode(w, r, &payload) {
		return
	}
	discount, err := pricing.DiscountFrom(payload.Discount.Percentage, payload.Discount.Amount)
	if err != nil {
		h.writeError(w, err)
		return
	}
	qty := 1
	if payload.Quantity != nil {
		qty = *payload.Quantity
	}
	snap, err := store.AddItem(Item{
		ID:         payload.ID,
		Name:       payload.Name,
		SrcURL:     payload.SrcURL,
		Price:      payload.Price,
		Discount:   discount,
		Attributes: payload.Attributes,
	}, qty)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, NewView(snap))
}

// Increment adds one unit to an existing line.
func (h *Handler) Increment(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	var payload linePayload
	if !h.decode(w, r, &payload) {
		return
	}
	snap, err := store.Increment(payload.ID, payload.Attributes)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, NewView(snap))
}

// Decrement removes one unit from a line, deleting it at zero.
func (h *Handler) Decrement(w http.ResponseWriter, r *http.Request) {
	h.lineOp(w, r, func(s *Store, p linePayload) Snapshot { return s.DecrementItem(p.ID, p.Attributes) })
}

// Remove deletes a line regardless of its quantity.
func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	h.lineOp(w, r, func(s *Store, p linePayload) Snapshot { return s.RemoveItem(p.ID, p.Attributes) })
}

// Clear empties the cart.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	common.Data(w, http.StatusOK, NewView(store.Clear()))
}

func (h *Handler) lineOp(w http.ResponseWriter, r *http.Request, apply func(*Store, linePayload) Snapshot) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	var payload linePayload
	if !h.decode(w, r, &payload) {
		return
	}
	common.Data(w, http.StatusOK, NewView(apply(store, payload)))
}

func (h *Handler) store(w http.ResponseWriter, r *http.Request) (*Store, bool) {
	store, ok := StoreFrom(r.Context())
	if !ok {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart session not resolved", nil)
		return nil, false
	}
	return store, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return false
	}
	if h.Validate == nil {
		return true
	}
	if err := h.Validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Namespace()] = fe.Tag()
			}
			common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid payload", fields)
			return false
		}
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		common.WriteAppError(w, appErr)
		return
	}
	switch {
	case errors.Is(err, ErrInvalidQuantity):
		common.JSONError(w, http.StatusBadRequest, "INVALID_QUANTITY", err.Error(), nil)
	case errors.Is(err, ErrInvalidItem), errors.Is(err, pricing.ErrInvalidDiscount):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
	}
}

// NewView converts a snapshot to its wire form.
func NewView(s Snapshot) View {
	items := make([]LineView, 0, len(s.Items))
	for _, l := range s.Items {
		attrs := l.Attributes
		if attrs == nil {
			attrs = []string{}
		}
		items = append(items, LineView{
			ID:                l.ID,
			Name:              l.Name,
			SrcURL:            l.SrcURL,
			Slug:              l.Slug(),
			Attributes:        attrs,
			Size:              l.Size(),
			Color:             l.Color(),
			Quantity:          l.Quantity,
			Price:             l.Price,
			Discount:          DiscountView{Percentage: l.Discount.Percentage(), Amount: l.Discount.Amount()},
			EffectivePrice:    l.EffectivePrice(),
			LineTotal:         l.LineTotal(),
			AdjustedLineTotal: l.AdjustedLineTotal(),
		})
	}
	return View{
		Items:              items,
		TotalPrice:         s.TotalPrice,
		AdjustedTotalPrice: s.AdjustedTotalPrice,
		Summary:            newSummaryView(s.Summary()),
		Empty:              s.Empty(),
	}
}

func newSummaryView(s pricing.Summary) SummaryView {
	return SummaryView{
		Subtotal:           s.Subtotal,
		DiscountAmount:     s.DiscountAmount,
		DiscountPercentage: s.DiscountPercentage,
		DeliveryFee:        s.DeliveryFee,
		Total:              s.Total,
	}
}
