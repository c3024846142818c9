// Package product is the catalog collaborator of the cart core. Products are
// the only Cartable implementation this service ships; the cart engine itself
// never depends on this package.
package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/cartd/internal/domain/cart"
)

// ItemableType is the type tag products carry in cart item keys.
const ItemableType = "product"

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase.
type Product struct {
	ID         int64
	Name       string
	Price      decimal.Decimal
	Category   string
	Attributes map[string]any
}

var _ cart.Cartable = (*Product)(nil)

// CartItemRef returns the product's stable cart identity.
func (p *Product) CartItemRef() cart.ItemKey {
	return cart.ItemKey{Type: ItemableType, ID: p.ID}
}

// CartItemPrice returns the current catalog price.
func (p *Product) CartItemPrice() decimal.Decimal {
	return p.Price
}

// CartItemName returns the product's display name.
func (p *Product) CartItemName() string {
	return p.Name
}

// CartItemOptions returns the product's attribute bag, carried onto cart
// lines as default options.
func (p *Product) CartItemOptions() map[string]any {
	return p.Attributes
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id int64) (*Product, error)
}
