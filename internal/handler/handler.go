// Package handler exposes the cart engine over JSON HTTP. Identity plumbing
// lives here: the guest token cookie and the api_key header are translated
// into a cart session, and the session's resolution decides whether the
// response sets or clears the cookie.
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/cartd/internal/domain/cart"
	"github.com/xenking/cartd/internal/domain/product"
)

var errUnauthorized = errors.New("unauthorized")

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// Currency is the ISO 4217 code reported in cart responses. Prices are
	// stored as plain decimals; the currency is presentation metadata.
	Currency string

	// GuestCookieName is the cookie carrying the guest cart token.
	GuestCookieName string

	// GuestCookieTTL bounds the guest cookie lifetime. It should match the
	// ephemeral backend's guest cart TTL.
	GuestCookieTTL time.Duration

	// CookieSecure marks issued cookies Secure. Off only for local setups
	// without TLS.
	CookieSecure bool
}

// Handler serves the cart and catalog endpoints.
type Handler struct {
	cfg      Config
	carts    *cart.Service
	products product.Repository
}

// New constructs a Handler with the required domain dependencies.
func New(cfg Config, carts *cart.Service, products product.Repository) *Handler {
	return &Handler{
		cfg:      cfg,
		carts:    carts,
		products: products,
	}
}

// Routes registers all endpoints on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/product", h.ListProducts)
	mux.HandleFunc("GET /api/product/{productID}", h.GetProduct)

	mux.HandleFunc("GET /api/cart", h.GetCart)
	mux.HandleFunc("POST /api/cart/items", h.AddItem)
	mux.HandleFunc("GET /api/cart/items/{productID}", h.GetItem)
	mux.HandleFunc("PATCH /api/cart/items/{productID}", h.UpdateItemQuantity)
	mux.HandleFunc("DELETE /api/cart/items/{productID}", h.RemoveItem)
	mux.HandleFunc("POST /api/cart/items/{productID}/increase", h.IncreaseQuantity)
	mux.HandleFunc("POST /api/cart/items/{productID}/decrease", h.DecreaseQuantity)
	mux.HandleFunc("POST /api/cart/clear", h.ClearCart)
	mux.HandleFunc("PUT /api/cart/discount", h.SetDiscount)
	mux.HandleFunc("POST /api/cart/assign", h.AssignCart)
}

// session opens a cart session for the request's identity: the authenticated
// user from the api_key middleware plus any guest token cookie.
func (h *Handler) session(r *http.Request) (*cart.Session, error) {
	var a cart.Auth
	if uid, ok := UserFromContext(r.Context()); ok {
		a.UserID = uid
	}
	if c, err := r.Cookie(h.cfg.GuestCookieName); err == nil {
		a.GuestToken = c.Value
	}
	return h.carts.Session(r.Context(), a)
}

// applyCookie materializes the session resolution's cookie directive. Call
// it after the last session operation of the request: AssignToUser can turn
// a pending token issue into a clear.
func (h *Handler) applyCookie(w http.ResponseWriter, sess *cart.Session) {
	res := sess.Resolution()
	switch {
	case res.IssueToken != "":
		http.SetCookie(w, &http.Cookie{
			Name:     h.cfg.GuestCookieName,
			Value:    res.IssueToken,
			Path:     "/",
			MaxAge:   int(h.cfg.GuestCookieTTL.Seconds()),
			HttpOnly: true,
			Secure:   h.cfg.CookieSecure,
			SameSite: http.SameSiteLaxMode,
		})
	case res.ClearToken:
		http.SetCookie(w, &http.Cookie{
			Name:     h.cfg.GuestCookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   h.cfg.CookieSecure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

// pathProduct loads the product named by the {productID} path segment.
func (h *Handler) pathProduct(r *http.Request) (*product.Product, error) {
	id, err := strconv.ParseInt(r.PathValue("productID"), 10, 64)
	if err != nil {
		return nil, errors.Wrap(errBadRequest, "invalid product id")
	}
	return h.products.GetByID(r.Context(), id)
}

var errBadRequest = errors.New("bad request")

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.Wrap(errBadRequest, "malformed request body")
	}
	return nil
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, errorResponse{Code: code, Message: message})
}

// respondError maps domain errors to HTTP status codes.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		invalidQty *cart.InvalidQuantityError
		notInCart  *cart.ItemNotFoundError
	)
	switch {
	case errors.Is(err, errBadRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &invalidQty):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &notInCart):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, product.ErrNotFound):
		writeError(w, http.StatusNotFound, "product not found")
	case errors.Is(err, cart.ErrEmptyItemKey):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, errUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	default:
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
