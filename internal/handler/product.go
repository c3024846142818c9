package handler

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/xenking/cartd/internal/domain/product"
)

type productView struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Category   string          `json:"category,omitempty"`
	Attributes map[string]any  `json:"attributes,omitempty"`
}

func viewProduct(p *product.Product) productView {
	return productView{
		ID:         p.ID,
		Name:       p.Name,
		Price:      p.Price,
		Category:   p.Category,
		Attributes: p.Attributes,
	}
}

// ListProducts returns the full catalog.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	views := make([]productView, 0, len(products))
	for i := range products {
		views = append(views, viewProduct(&products[i]))
	}
	writeJSON(w, http.StatusOK, views)
}

// GetProduct returns one catalog item.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.pathProduct(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewProduct(p))
}
