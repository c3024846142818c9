//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func TestListProducts(t *testing.T) {
	resp := doGet(t, "/api/product")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	products := decodeJSON[[]productResponse](t, resp)
	if len(products) != 6 {
		t.Fatalf("expected 6 products, got %d", len(products))
	}
}

func TestGetProduct(t *testing.T) {
	resp := doGet(t, "/api/product/1")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	p := decodeJSON[productResponse](t, resp)
	if p.Name != "Waffle with Berries" {
		t.Errorf("name: got %q, want %q", p.Name, "Waffle with Berries")
	}
	if p.Price != "6.5" {
		t.Errorf("price: got %q, want %q", p.Price, "6.5")
	}
	if p.Category != "Waffle" {
		t.Errorf("category: got %q, want %q", p.Category, "Waffle")
	}
	if v, ok := p.Attributes["vegetarian"].(bool); !ok || !v {
		t.Errorf("attributes: got %v, want vegetarian=true", p.Attributes)
	}
}

func TestGetProduct_NotFound(t *testing.T) {
	resp := doGet(t, "/api/product/999")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}

	body := decodeJSON[errorResponse](t, resp)
	if body.Code != http.StatusNotFound {
		t.Errorf("body code: got %d, want 404", body.Code)
	}
}

func TestGetProduct_BadID(t *testing.T) {
	resp := doGet(t, "/api/product/not-a-number")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}
