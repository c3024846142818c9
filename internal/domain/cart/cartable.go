package cart

import "github.com/shopspring/decimal"

// Cartable is the capability a catalog object must expose to be added to a
// cart. The cart core never inspects concrete catalog types; it snapshots the
// price at add time and uses the ItemKey as the line's identity.
type Cartable interface {
	// CartItemRef returns the stable (type, id) identity of the object.
	CartItemRef() ItemKey
	// CartItemPrice returns the object's current unit price.
	CartItemPrice() decimal.Decimal
	// CartItemName returns a display name for the object.
	CartItemName() string
	// CartItemOptions returns default option data carried onto the line item.
	CartItemOptions() map[string]any
}
