package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/cartd/internal/domain/auth"
	"github.com/xenking/cartd/internal/domain/cart"
	"github.com/xenking/cartd/internal/domain/product"
	redisstore "github.com/xenking/cartd/internal/storage/redis"
)

type stubProducts map[int64]*product.Product

func (s stubProducts) List(context.Context) ([]product.Product, error) {
	out := make([]product.Product, 0, len(s))
	for _, p := range s {
		out = append(out, *p)
	}
	return out, nil
}

func (s stubProducts) GetByID(_ context.Context, id int64) (*product.Product, error) {
	p, ok := s[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

type stubKeys map[string]*auth.APIKeyInfo

func (s stubKeys) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	info, ok := s[hash]
	if !ok {
		return nil, errUnauthorized
	}
	return info, nil
}

func newTestMux(t *testing.T) *http.ServeMux {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := redisstore.NewCartStore(client, redisstore.Options{
		GuestTTL: time.Hour,
		UserTTL:  time.Hour,
	})

	catalog := stubProducts{
		1: {ID: 1, Name: "Waffle", Price: decimal.RequireFromString("4.50"), Category: "Waffle"},
		2: {ID: 2, Name: "Smoothie", Price: decimal.RequireFromString("6.00"), Category: "Drinks"},
	}

	h := New(Config{
		Currency:        "USD",
		GuestCookieName: "cart_token",
		GuestCookieTTL:  time.Hour,
	}, cart.NewService(store, nil), catalog)

	mux := http.NewServeMux()
	h.Routes(mux)
	return mux
}

type reqOption func(*http.Request)

func asUser(id int64) reqOption {
	return func(r *http.Request) {
		*r = *r.WithContext(withUser(r.Context(), id))
	}
}

func withToken(token string) reqOption {
	return func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "cart_token", Value: token})
	}
}

func do(t *testing.T, mux *http.ServeMux, method, path string, body any, opts ...reqOption) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(req)
	}

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decodeCart(t *testing.T, w *httptest.ResponseRecorder) cartView {
	t.Helper()
	var view cartView
	require.NoError(t, json.NewDecoder(w.Body).Decode(&view))
	return view
}

func guestCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == "cart_token" {
			return c
		}
	}
	t.Fatal("no cart_token cookie in response")
	return nil
}

func TestGetCart_MintsGuestToken(t *testing.T) {
	mux := newTestMux(t)

	w := do(t, mux, http.MethodGet, "/api/cart", nil)
	require.Equal(t, http.StatusOK, w.Code)

	c := guestCookie(t, w)
	assert.True(t, cart.ValidGuestToken(c.Value))
	assert.True(t, c.HttpOnly)
	assert.Positive(t, c.MaxAge)

	view := decodeCart(t, w)
	assert.Empty(t, view.Items)
	assert.Equal(t, "USD", view.Currency)
	assert.Zero(t, view.UserID)
}

func TestGetCart_ReusesToken(t *testing.T) {
	mux := newTestMux(t)

	token := guestCookie(t, do(t, mux, http.MethodGet, "/api/cart", nil)).Value

	w := do(t, mux, http.MethodGet, "/api/cart", nil, withToken(token))
	require.Equal(t, http.StatusOK, w.Code)
	for _, c := range w.Result().Cookies() {
		assert.NotEqual(t, "cart_token", c.Name, "existing valid token must not be reissued")
	}
}

func TestAddItem(t *testing.T) {
	mux := newTestMux(t)
	token := guestCookie(t, do(t, mux, http.MethodGet, "/api/cart", nil)).Value

	w := do(t, mux, http.MethodPost, "/api/cart/items",
		addItemRequest{ProductID: 1, Quantity: 2}, withToken(token))
	require.Equal(t, http.StatusCreated, w.Code)

	view := decodeCart(t, w)
	require.Len(t, view.Items, 1)
	assert.Equal(t, "product", view.Items[0].ItemableType)
	assert.Equal(t, int64(1), view.Items[0].ItemableID)
	assert.Equal(t, 2, view.Items[0].Quantity)
	assert.True(t, decimal.RequireFromString("9.00").Equal(view.Items[0].LineTotal))
	assert.True(t, decimal.RequireFromString("9.00").Equal(view.Total))
}

func TestAddItem_PriceOverride(t *testing.T) {
	mux := newTestMux(t)
	token := guestCookie(t, do(t, mux, http.MethodGet, "/api/cart", nil)).Value

	sale := decimal.RequireFromString("3.25")
	w := do(t, mux, http.MethodPost, "/api/cart/items",
		addItemRequest{ProductID: 1, Quantity: 2, Price: &sale}, withToken(token))
	require.Equal(t, http.StatusCreated, w.Code)

	view := decodeCart(t, w)
	require.Len(t, view.Items, 1)
	assert.True(t, sale.Equal(view.Items[0].Price))
	assert.True(t, decimal.RequireFromString("6.50").Equal(view.Total))
}

func TestAddItem_UnknownProduct(t *testing.T) {
	mux := newTestMux(t)

	w := do(t, mux, http.MethodPost, "/api/cart/items", addItemRequest{ProductID: 99})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetItem(t *testing.T) {
	mux := newTestMux(t)
	token := guestCookie(t, do(t, mux, http.MethodGet, "/api/cart", nil)).Value

	// The product exists in the catalog but is not in the cart yet.
	w := do(t, mux, http.MethodGet, "/api/cart/items/1", nil, withToken(token))
	assert.Equal(t, http.StatusNotFound, w.Code)

	do(t, mux, http.MethodPost, "/api/cart/items", addItemRequest{ProductID: 1, Quantity: 2}, withToken(token))

	w = do(t, mux, http.MethodGet, "/api/cart/items/1", nil, withToken(token))
	require.Equal(t, http.StatusOK, w.Code)

	var item cartItemView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &item))
	assert.Equal(t, int64(1), item.ItemableID)
	assert.Equal(t, 2, item.Quantity)
}

func TestIncreaseQuantity_NegativeStepRejected(t *testing.T) {
	mux := newTestMux(t)
	token := guestCookie(t, do(t, mux, http.MethodGet, "/api/cart", nil)).Value
	do(t, mux, http.MethodPost, "/api/cart/items", addItemRequest{ProductID: 1, Quantity: 2}, withToken(token))

	w := do(t, mux, http.MethodPost, "/api/cart/items/1/increase",
		quantityRequest{Quantity: -5}, withToken(token))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	view := decodeCart(t, do(t, mux, http.MethodGet, "/api/cart", nil, withToken(token)))
	require.Len(t, view.Items, 1)
	assert.Equal(t, 2, view.Items[0].Quantity)
}

func TestAddItem_MalformedBody(t *testing.T) {
	mux := newTestMux(t)

	req := httptest.NewRequest(http.MethodPost, "/api/cart/items", bytes.NewBufferString("{nope"))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateItemQuantity(t *testing.T) {
	mux := newTestMux(t)
	token := guestCookie(t, do(t, mux, http.MethodGet, "/api/cart", nil)).Value
	do(t, mux, http.MethodPost, "/api/cart/items", addItemRequest{ProductID: 1, Quantity: 2}, withToken(token))

	w := do(t, mux, http.MethodPatch, "/api/cart/items/1", quantityRequest{Quantity: 7}, withToken(token))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 7, decodeCart(t, w).Items[0].Quantity)

	w = do(t, mux, http.MethodPatch, "/api/cart/items/1", quantityRequest{Quantity: 0}, withToken(token))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(t, mux, http.MethodPatch, "/api/cart/items/2", quantityRequest{Quantity: 3}, withToken(token))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestIncreaseDecrease_DefaultStep(t *testing.T) {
	mux := newTestMux(t)
	token := guestCookie(t, do(t, mux, http.MethodGet, "/api/cart", nil)).Value
	do(t, mux, http.MethodPost, "/api/cart/items", addItemRequest{ProductID: 1, Quantity: 2}, withToken(token))

	w := do(t, mux, http.MethodPost, "/api/cart/items/1/increase", nil, withToken(token))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, decodeCart(t, w).Items[0].Quantity)

	w = do(t, mux, http.MethodPost, "/api/cart/items/1/decrease", quantityRequest{Quantity: 10}, withToken(token))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decodeCart(t, w).Items[0].Quantity, "decrease floors at one")
}

func TestRemoveItem_AbsentIsNoop(t *testing.T) {
	mux := newTestMux(t)
	token := guestCookie(t, do(t, mux, http.MethodGet, "/api/cart", nil)).Value

	w := do(t, mux, http.MethodDelete, "/api/cart/items/1", nil, withToken(token))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeCart(t, w).Items)
}

func TestClearCart_KeepsDiscount(t *testing.T) {
	mux := newTestMux(t)
	token := guestCookie(t, do(t, mux, http.MethodGet, "/api/cart", nil)).Value
	do(t, mux, http.MethodPost, "/api/cart/items", addItemRequest{ProductID: 1, Quantity: 2}, withToken(token))
	do(t, mux, http.MethodPut, "/api/cart/discount", discountRequest{Percent: decimal.RequireFromString("10")}, withToken(token))

	w := do(t, mux, http.MethodPost, "/api/cart/clear", nil, withToken(token))
	require.Equal(t, http.StatusOK, w.Code)

	view := decodeCart(t, w)
	assert.Empty(t, view.Items)
	assert.True(t, decimal.RequireFromString("10").Equal(view.DiscountPercent))
}

func TestSetDiscount_AffectsTotal(t *testing.T) {
	mux := newTestMux(t)
	token := guestCookie(t, do(t, mux, http.MethodGet, "/api/cart", nil)).Value
	do(t, mux, http.MethodPost, "/api/cart/items", addItemRequest{ProductID: 2, Quantity: 2}, withToken(token))

	w := do(t, mux, http.MethodPut, "/api/cart/discount", discountRequest{Percent: decimal.RequireFromString("25")}, withToken(token))
	require.Equal(t, http.StatusOK, w.Code)

	view := decodeCart(t, w)
	assert.True(t, decimal.RequireFromString("12.00").Equal(view.Subtotal))
	assert.True(t, decimal.RequireFromString("9.00").Equal(view.Total))
}

func TestLogin_MergesGuestCart(t *testing.T) {
	mux := newTestMux(t)

	// Guest shops anonymously.
	token := guestCookie(t, do(t, mux, http.MethodGet, "/api/cart", nil)).Value
	do(t, mux, http.MethodPost, "/api/cart/items", addItemRequest{ProductID: 1, Quantity: 2}, withToken(token))

	// The same user already has a cart from another device.
	do(t, mux, http.MethodPost, "/api/cart/items", addItemRequest{ProductID: 1, Quantity: 3}, asUser(7))

	// First authenticated request with the guest token folds the carts.
	w := do(t, mux, http.MethodGet, "/api/cart", nil, asUser(7), withToken(token))
	require.Equal(t, http.StatusOK, w.Code)

	view := decodeCart(t, w)
	assert.Equal(t, int64(7), view.UserID)
	require.Len(t, view.Items, 1)
	assert.Equal(t, 5, view.Items[0].Quantity)

	cleared := guestCookie(t, w)
	assert.Empty(t, cleared.Value)
	assert.Negative(t, cleared.MaxAge)

	// The stale token is harmless afterwards.
	w = do(t, mux, http.MethodGet, "/api/cart", nil, asUser(7), withToken(token))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, decodeCart(t, w).Items[0].Quantity)
}

func TestAssignCart(t *testing.T) {
	mux := newTestMux(t)
	token := guestCookie(t, do(t, mux, http.MethodGet, "/api/cart", nil)).Value
	do(t, mux, http.MethodPost, "/api/cart/items", addItemRequest{ProductID: 1, Quantity: 2}, withToken(token))

	w := do(t, mux, http.MethodPost, "/api/cart/assign", assignRequest{UserID: 42}, withToken(token))
	require.Equal(t, http.StatusOK, w.Code)

	view := decodeCart(t, w)
	assert.Equal(t, int64(42), view.UserID)
	require.Len(t, view.Items, 1)
	assert.Negative(t, guestCookie(t, w).MaxAge, "token must be cleared after assignment")
}

func TestAssignCart_AnonymousWithoutBody(t *testing.T) {
	mux := newTestMux(t)

	w := do(t, mux, http.MethodPost, "/api/cart/assign", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProducts(t *testing.T) {
	mux := newTestMux(t)

	w := do(t, mux, http.MethodGet, "/api/product", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []productView
	require.NoError(t, json.NewDecoder(w.Body).Decode(&list))
	assert.Len(t, list, 2)

	w = do(t, mux, http.MethodGet, "/api/product/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var p productView
	require.NoError(t, json.NewDecoder(w.Body).Decode(&p))
	assert.Equal(t, "Waffle", p.Name)

	w = do(t, mux, http.MethodGet, "/api/product/99", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, mux, http.MethodGet, "/api/product/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPIKeyAuth(t *testing.T) {
	pepper := []byte("test-pepper")
	keys := stubKeys{
		auth.HashKey(pepper, "good-key"): {ID: "k1", KeyHash: auth.HashKey(pepper, "good-key"), UserID: 7},
	}

	var gotUser int64
	var gotOK bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotOK = UserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	h := NewAPIKeyAuth(keys, pepper).Middleware()(inner)

	// Valid key authenticates.
	req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
	req.Header.Set(apiKeyHeader, "good-key")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, gotOK)
	assert.Equal(t, int64(7), gotUser)

	// Wrong key is rejected, not downgraded to guest.
	req = httptest.NewRequest(http.MethodGet, "/api/cart", nil)
	req.Header.Set(apiKeyHeader, "wrong-key")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// No key passes through anonymously.
	gotOK = false
	req = httptest.NewRequest(http.MethodGet, "/api/cart", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, gotOK)
}
