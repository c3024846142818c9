//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func TestGuestFlow(t *testing.T) {
	c := newClient(t, baseURL)

	// First touch mints a guest token and an empty cart.
	view := c.cart(t)
	if len(view.Items) != 0 {
		t.Fatalf("expected empty cart, got %d items", len(view.Items))
	}
	if !c.hasGuestToken(t) {
		t.Fatal("expected a cart_token cookie after first request")
	}

	// Add twice: the line accumulates.
	c.addItem(t, 1, 2)
	view = c.addItem(t, 1, 3)
	l := line(view, 1)
	if l == nil {
		t.Fatal("product 1 not in cart")
	}
	if l.Quantity != 5 {
		t.Errorf("quantity: got %d, want 5", l.Quantity)
	}
	if view.Total != "32.5" {
		t.Errorf("total: got %q, want %q", view.Total, "32.5")
	}

	// The cart survives across requests under the same token.
	view = c.cart(t)
	if view.TotalQuantity != 5 {
		t.Errorf("total quantity after reload: got %d, want 5", view.TotalQuantity)
	}
}

func TestItemOperations(t *testing.T) {
	c := newClient(t, baseURL)
	c.addItem(t, 3, 2)

	// Absolute update.
	resp := c.do(t, http.MethodPatch, "/api/cart/items/3", quantityRequest{Quantity: 4})
	view := decodeJSON[cartResponse](t, resp)
	resp.Body.Close()
	if got := line(view, 3).Quantity; got != 4 {
		t.Errorf("after update: got %d, want 4", got)
	}

	// Increase defaults to one step.
	resp = c.do(t, http.MethodPost, "/api/cart/items/3/increase", nil)
	view = decodeJSON[cartResponse](t, resp)
	resp.Body.Close()
	if got := line(view, 3).Quantity; got != 5 {
		t.Errorf("after increase: got %d, want 5", got)
	}

	// Decrease floors at one instead of removing the line.
	resp = c.do(t, http.MethodPost, "/api/cart/items/3/decrease", quantityRequest{Quantity: 99})
	view = decodeJSON[cartResponse](t, resp)
	resp.Body.Close()
	if got := line(view, 3).Quantity; got != 1 {
		t.Errorf("after decrease: got %d, want 1", got)
	}

	// Delete drops the line; deleting again still succeeds.
	for range 2 {
		resp = c.do(t, http.MethodDelete, "/api/cart/items/3", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("DELETE: expected 200, got %d", resp.StatusCode)
		}
		view = decodeJSON[cartResponse](t, resp)
		resp.Body.Close()
	}
	if len(view.Items) != 0 {
		t.Errorf("expected empty cart after delete, got %d items", len(view.Items))
	}
}

func TestInvalidQuantityRejected(t *testing.T) {
	c := newClient(t, baseURL)
	c.addItem(t, 2, 1)

	resp := c.do(t, http.MethodPatch, "/api/cart/items/2", quantityRequest{Quantity: 0})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}

	body := decodeJSON[errorResponse](t, resp)
	if body.Code != http.StatusUnprocessableEntity {
		t.Errorf("body code: got %d, want 422", body.Code)
	}
}

func TestUnknownProduct(t *testing.T) {
	c := newClient(t, baseURL)

	resp := c.do(t, http.MethodPost, "/api/cart/items", addItemRequest{ProductID: 999, Quantity: 1})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestDiscountAndClear(t *testing.T) {
	c := newClient(t, baseURL)
	c.addItem(t, 2, 2) // 2 x 7.00

	resp := c.do(t, http.MethodPut, "/api/cart/discount", discountRequest{Percent: "50"})
	view := decodeJSON[cartResponse](t, resp)
	resp.Body.Close()
	if view.Total != "7" {
		t.Errorf("discounted total: got %q, want %q", view.Total, "7")
	}

	// Clear empties the cart but keeps the discount.
	resp = c.do(t, http.MethodPost, "/api/cart/clear", nil)
	view = decodeJSON[cartResponse](t, resp)
	resp.Body.Close()
	if len(view.Items) != 0 {
		t.Errorf("expected empty cart, got %d items", len(view.Items))
	}
	if view.DiscountPercent != "50" {
		t.Errorf("discount after clear: got %q, want %q", view.DiscountPercent, "50")
	}
}

func TestLoginMergesGuestCart(t *testing.T) {
	// User 7 already has a cart from a previous authenticated session.
	authed := newClient(t, baseURL).login(userKey)
	authed.addItem(t, 1, 3)

	// A guest on another device fills a cart.
	c := newClient(t, baseURL)
	c.addItem(t, 1, 2)
	c.addItem(t, 4, 1)

	// The guest logs in: carts fold together, token is cleared.
	view := c.login(userKey).cart(t)
	if view.UserID != 7 {
		t.Fatalf("user id: got %d, want 7", view.UserID)
	}
	if got := line(view, 1).Quantity; got != 5 {
		t.Errorf("merged quantity: got %d, want 5", got)
	}
	if l := line(view, 4); l == nil || l.Quantity != 1 {
		t.Errorf("unmatched guest line not copied: %+v", l)
	}
	if c.hasGuestToken(t) {
		t.Error("guest token cookie should be cleared after merge")
	}

	// Repeating the request changes nothing.
	again := c.cart(t)
	if got := line(again, 1).Quantity; got != 5 {
		t.Errorf("quantity after repeat: got %d, want 5", got)
	}
}

func TestAssignCart(t *testing.T) {
	c := newClient(t, baseURL)
	c.addItem(t, 5, 2)

	resp := c.do(t, http.MethodPost, "/api/cart/assign", assignRequest{UserID: 8})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	view := decodeJSON[cartResponse](t, resp)
	if view.UserID != 8 {
		t.Errorf("user id: got %d, want 8", view.UserID)
	}

	// The assigned cart is what user 8 now sees.
	owner := newClient(t, baseURL).login(userKeyAlt)
	got := owner.cart(t)
	if l := line(got, 5); l == nil || l.Quantity != 2 {
		t.Errorf("assigned line missing for owner: %+v", l)
	}
}

func TestInvalidAPIKeyRejected(t *testing.T) {
	c := newClient(t, baseURL).login("definitely-not-a-key")

	resp := c.get(t, "/api/cart")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}
