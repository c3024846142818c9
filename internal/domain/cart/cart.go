// Package cart implements the cart state model: line items keyed by their
// catalog identity, a cart-level percentage discount, and the guest-to-user
// merge protocol that runs when an anonymous shopper authenticates.
package cart

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ItemKey is the natural identity of a line item inside a cart: what kind of
// catalog object it refers to, and which one. Options never participate in
// identity matching.
type ItemKey struct {
	Type string
	ID   int64
}

// Zero reports whether the key is missing either component. Items with zero
// keys cannot be addressed and are treated as malformed during merge.
func (k ItemKey) Zero() bool {
	return k.Type == "" || k.ID <= 0
}

// CartItem is one line entry in a cart. Quantity is always >= 1; removal is a
// separate operation and never happens implicitly through quantity math.
type CartItem struct {
	Key      ItemKey
	Quantity int
	Price    decimal.Decimal
	Options  map[string]any
}

// LineTotal returns price * quantity for this line.
func (i *CartItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart aggregates the line items for a single identity. Exactly one of UserID
// and GuestToken is set at any time.
type Cart struct {
	ID              string
	UserID          int64  // 0 when owned by a guest
	GuestToken      string // empty when owned by a user
	DiscountPercent decimal.Decimal
	Items           []CartItem
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewGuestCart creates an empty cart owned by the given guest token.
func NewGuestCart(token string) *Cart {
	return &Cart{
		ID:         uuid.New().String(),
		GuestToken: token,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
}

// NewUserCart creates an empty cart owned by the given user.
func NewUserCart(userID int64) *Cart {
	return &Cart{
		ID:        uuid.New().String(),
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
}

// Item returns the line item with the given key, or nil.
func (c *Cart) Item(key ItemKey) *CartItem {
	for i := range c.Items {
		if c.Items[i].Key == key {
			return &c.Items[i]
		}
	}
	return nil
}

// Count returns the number of unique line items.
func (c *Cart) Count() int {
	return len(c.Items)
}

// TotalQuantity returns the sum of all line quantities.
func (c *Cart) TotalQuantity() int {
	total := 0
	for i := range c.Items {
		total += c.Items[i].Quantity
	}
	return total
}

// IsEmpty reports whether the cart has no line items.
func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Subtotal returns the sum of all line totals before discount.
func (c *Cart) Subtotal() decimal.Decimal {
	subtotal := decimal.Zero
	for i := range c.Items {
		subtotal = subtotal.Add(c.Items[i].LineTotal())
	}
	return subtotal
}

// Total returns subtotal * (1 - discount/100). The discount is applied as
// stored: out-of-range percentages produce totals above the subtotal or below
// zero, by contract (see SetDiscount on the store).
func (c *Cart) Total() decimal.Decimal {
	factor := decimal.NewFromInt(100).Sub(c.DiscountPercent)
	return c.Subtotal().Mul(factor).Div(decimal.NewFromInt(100))
}

// Add folds quantity of the keyed item into the cart: existing lines
// accumulate, missing lines are created with the given price snapshot and
// options. It returns the affected line and whether it was newly created.
func (c *Cart) Add(key ItemKey, quantity int, price decimal.Decimal, options map[string]any) (*CartItem, bool) {
	if item := c.Item(key); item != nil {
		item.Quantity += quantity
		return item, false
	}
	c.Items = append(c.Items, CartItem{
		Key:      key,
		Quantity: quantity,
		Price:    price,
		Options:  options,
	})
	return &c.Items[len(c.Items)-1], true
}

// SetQuantity sets the keyed line to an absolute quantity.
func (c *Cart) SetQuantity(key ItemKey, quantity int) (*CartItem, error) {
	if quantity < 1 {
		return nil, &InvalidQuantityError{Quantity: quantity}
	}
	item := c.Item(key)
	if item == nil {
		return nil, &ItemNotFoundError{Key: key}
	}
	item.Quantity = quantity
	return item, nil
}

// Decrease lowers the keyed line's quantity by the given amount, flooring at 1.
// Decreasing never removes a line; use Remove for that.
func (c *Cart) Decrease(key ItemKey, quantity int) (*CartItem, error) {
	if quantity < 1 {
		return nil, &InvalidQuantityError{Quantity: quantity}
	}
	item := c.Item(key)
	if item == nil {
		return nil, &ItemNotFoundError{Key: key}
	}
	item.Quantity = max(1, item.Quantity-quantity)
	return item, nil
}

// Remove deletes the keyed line entirely. It returns the removed line, or nil
// when the key was absent (removal of a missing item is not an error).
func (c *Cart) Remove(key ItemKey) *CartItem {
	for i := range c.Items {
		if c.Items[i].Key == key {
			removed := c.Items[i]
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return &removed
		}
	}
	return nil
}

// ClearItems removes every line item. The cart itself and its discount
// survive: clearing empties the basket, it does not reset the cart.
func (c *Cart) ClearItems() {
	c.Items = nil
}
