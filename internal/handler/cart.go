package handler

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/xenking/cartd/internal/domain/cart"
)

type cartItemView struct {
	ItemableType string          `json:"itemable_type"`
	ItemableID   int64           `json:"itemable_id"`
	Quantity     int             `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
	LineTotal    decimal.Decimal `json:"line_total"`
	Options      map[string]any  `json:"options,omitempty"`
}

type cartView struct {
	ID              string          `json:"id"`
	UserID          int64           `json:"user_id,omitempty"`
	Items           []cartItemView  `json:"items"`
	TotalQuantity   int             `json:"total_quantity"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Total           decimal.Decimal `json:"total"`
	Currency        string          `json:"currency"`
}

func (h *Handler) viewCart(c *cart.Cart) cartView {
	items := make([]cartItemView, 0, len(c.Items))
	for _, it := range c.Items {
		items = append(items, cartItemView{
			ItemableType: it.Key.Type,
			ItemableID:   it.Key.ID,
			Quantity:     it.Quantity,
			Price:        it.Price,
			LineTotal:    it.LineTotal(),
			Options:      it.Options,
		})
	}
	return cartView{
		ID:              c.ID,
		UserID:          c.UserID,
		Items:           items,
		TotalQuantity:   c.TotalQuantity(),
		DiscountPercent: c.DiscountPercent,
		Subtotal:        c.Subtotal(),
		Total:           c.Total(),
		Currency:        h.cfg.Currency,
	}
}

// GetCart returns the current cart, creating an empty one for first-time
// guests. This is the endpoint that mints guest tokens.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	sess, err := h.session(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	c, err := sess.Cart(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	h.applyCookie(w, sess)
	writeJSON(w, http.StatusOK, h.viewCart(c))
}

type addItemRequest struct {
	ProductID int64            `json:"product_id"`
	Quantity  int              `json:"quantity"`
	Price     *decimal.Decimal `json:"price,omitempty"`
	Options   map[string]any   `json:"options,omitempty"`
}

// AddItem puts a product into the cart, accumulating quantity when the line
// already exists.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	p, err := h.products.GetByID(r.Context(), req.ProductID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	sess, err := h.session(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	c, err := sess.AddItem(r.Context(), p, cart.AddOptions{
		Quantity: req.Quantity,
		Price:    req.Price,
		Options:  req.Options,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	h.applyCookie(w, sess)
	writeJSON(w, http.StatusCreated, h.viewCart(c))
}

// GetItem returns a single cart line.
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	p, err := h.pathProduct(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	sess, err := h.session(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	item, err := sess.GetItem(r.Context(), p)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if item == nil {
		respondError(w, r, &cart.ItemNotFoundError{Key: p.CartItemRef()})
		return
	}

	h.applyCookie(w, sess)
	writeJSON(w, http.StatusOK, cartItemView{
		ItemableType: item.Key.Type,
		ItemableID:   item.Key.ID,
		Quantity:     item.Quantity,
		Price:        item.Price,
		LineTotal:    item.LineTotal(),
		Options:      item.Options,
	})
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

// UpdateItemQuantity sets a line's quantity to an absolute value.
func (h *Handler) UpdateItemQuantity(w http.ResponseWriter, r *http.Request) {
	var req quantityRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	h.mutateItem(w, r, func(sess *cart.Session, p cart.Cartable) (*cart.Cart, error) {
		return sess.UpdateItemQuantity(r.Context(), p, req.Quantity)
	})
}

// IncreaseQuantity bumps a line's quantity. The body is optional; the step
// defaults to 1.
func (h *Handler) IncreaseQuantity(w http.ResponseWriter, r *http.Request) {
	step := h.stepFrom(r)
	h.mutateItem(w, r, func(sess *cart.Session, p cart.Cartable) (*cart.Cart, error) {
		return sess.IncreaseQuantity(r.Context(), p, step)
	})
}

// DecreaseQuantity lowers a line's quantity, stopping at 1. Use DELETE on
// the item to drop the line entirely.
func (h *Handler) DecreaseQuantity(w http.ResponseWriter, r *http.Request) {
	step := h.stepFrom(r)
	h.mutateItem(w, r, func(sess *cart.Session, p cart.Cartable) (*cart.Cart, error) {
		return sess.DecreaseQuantity(r.Context(), p, step)
	})
}

func (h *Handler) stepFrom(r *http.Request) int {
	if r.ContentLength == 0 {
		return 1
	}
	var req quantityRequest
	if err := decodeBody(r, &req); err != nil || req.Quantity == 0 {
		return 1
	}
	return req.Quantity
}

// RemoveItem drops a line from the cart. Removing an absent line succeeds.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	h.mutateItem(w, r, func(sess *cart.Session, p cart.Cartable) (*cart.Cart, error) {
		return sess.RemoveItem(r.Context(), p)
	})
}

func (h *Handler) mutateItem(w http.ResponseWriter, r *http.Request, op func(*cart.Session, cart.Cartable) (*cart.Cart, error)) {
	p, err := h.pathProduct(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	sess, err := h.session(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	c, err := op(sess, p)
	if err != nil {
		respondError(w, r, err)
		return
	}

	h.applyCookie(w, sess)
	writeJSON(w, http.StatusOK, h.viewCart(c))
}

// ClearCart empties the cart but keeps it, including any discount.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	sess, err := h.session(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	c, err := sess.Clear(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	h.applyCookie(w, sess)
	writeJSON(w, http.StatusOK, h.viewCart(c))
}

type discountRequest struct {
	Percent decimal.Decimal `json:"percent"`
}

// SetDiscount applies a percentage discount to the whole cart.
func (h *Handler) SetDiscount(w http.ResponseWriter, r *http.Request) {
	var req discountRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	sess, err := h.session(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	c, err := sess.SetDiscount(r.Context(), req.Percent)
	if err != nil {
		respondError(w, r, err)
		return
	}

	h.applyCookie(w, sess)
	writeJSON(w, http.StatusOK, h.viewCart(c))
}

type assignRequest struct {
	UserID int64 `json:"user_id"`
}

// AssignCart hands the current cart to a user, merging with any cart that
// user already owns. Authenticated callers may omit the body to assign to
// themselves.
func (h *Handler) AssignCart(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			respondError(w, r, err)
			return
		}
	}
	if req.UserID == 0 {
		uid, ok := UserFromContext(r.Context())
		if !ok {
			respondError(w, r, errUnauthorized)
			return
		}
		req.UserID = uid
	}

	sess, err := h.session(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	c, err := sess.AssignToUser(r.Context(), req.UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	h.applyCookie(w, sess)
	writeJSON(w, http.StatusOK, h.viewCart(c))
}
