package cart

import (
	"context"

	"github.com/shopspring/decimal"
)

// AddOptions carries the optional parameters of an add operation.
type AddOptions struct {
	// Quantity of the item to add. Zero means 1.
	Quantity int
	// Price overrides the Cartable's own price when non-nil and non-negative.
	Price *decimal.Decimal
	// Options is opaque line-item data (size, color, ...). Never used for
	// identity matching.
	Options map[string]any
}

// EffectiveQuantity returns the quantity to fold into the line, defaulting
// zero to 1. Negative quantities are invalid: an add must never be able to
// drive an existing line below 1.
func (o AddOptions) EffectiveQuantity() (int, error) {
	if o.Quantity < 0 {
		return 0, &InvalidQuantityError{Quantity: o.Quantity}
	}
	if o.Quantity == 0 {
		return 1, nil
	}
	return o.Quantity, nil
}

// EffectivePrice returns the price to snapshot onto a new line: the override
// when set and non-negative, otherwise the Cartable's current price.
func (o AddOptions) EffectivePrice(item Cartable) decimal.Decimal {
	if o.Price != nil && !o.Price.IsNegative() {
		return *o.Price
	}
	return item.CartItemPrice()
}

// EffectiveOptions returns the option bag for a new line: the caller's
// options when given, otherwise the Cartable's defaults.
func (o AddOptions) EffectiveOptions(item Cartable) map[string]any {
	if o.Options != nil {
		return o.Options
	}
	return item.CartItemOptions()
}

// Store is the storage backend contract. Both the durable relational backend
// and the ephemeral blob backend implement exactly this interface and must
// produce identical observable behavior through it.
//
// Resolve is the only operation with identity side effects (merge, re-key,
// token minting). Every other operation is a plain read or a single-cart
// mutation against an already-resolved identity.
type Store interface {
	// Resolve determines the canonical identity for the request. When the
	// caller is authenticated and a guest cart exists for the presented token,
	// the guest cart is folded into the user cart (or re-keyed when no user
	// cart exists) and the token is invalidated. Resolve is idempotent: a
	// second call with the same inputs finds no guest cart and changes
	// nothing.
	Resolve(ctx context.Context, auth Auth) (*Resolution, error)

	// GetCart returns the cart owned by the identity, creating an empty one
	// when none exists.
	GetCart(ctx context.Context, id Identity) (*Cart, error)

	// AddItem folds quantity of the item into the cart, creating the line
	// with a price snapshot when absent. There is no upper quantity bound.
	AddItem(ctx context.Context, id Identity, item Cartable, opt AddOptions) (*Cart, error)

	// GetItem returns the cart's line for the item, or nil when absent.
	GetItem(ctx context.Context, id Identity, item Cartable) (*CartItem, error)

	// RemoveItem deletes the item's line. Removing an absent item is a no-op.
	RemoveItem(ctx context.Context, id Identity, item Cartable) (*Cart, error)

	// UpdateItemQuantity sets an absolute quantity. It fails with
	// InvalidQuantityError when quantity < 1 and ItemNotFoundError when the
	// item is absent; no partial mutation occurs on failure.
	UpdateItemQuantity(ctx context.Context, id Identity, item Cartable, quantity int) (*Cart, error)

	// IncreaseQuantity adds quantity to the item's line, creating it when
	// absent. Equivalent to AddItem.
	IncreaseQuantity(ctx context.Context, id Identity, item Cartable, quantity int) (*Cart, error)

	// DecreaseQuantity lowers the item's quantity, flooring at 1. It fails
	// with ItemNotFoundError when absent and InvalidQuantityError when
	// quantity < 1. Use RemoveItem to delete a line.
	DecreaseQuantity(ctx context.Context, id Identity, item Cartable, quantity int) (*Cart, error)

	// Clear removes all line items. The cart and its discount survive.
	Clear(ctx context.Context, id Identity) (*Cart, error)

	// SetDiscount stores the raw discount percentage. No clamping is
	// performed: out-of-range values are the caller's responsibility and
	// produce the documented out-of-range totals.
	SetDiscount(ctx context.Context, id Identity, percent decimal.Decimal) (*Cart, error)

	// AssignToUser re-keys the identity's cart to the given user. When the
	// user already owns a cart, the current cart is merged into it.
	AssignToUser(ctx context.Context, id Identity, userID int64) (*Cart, error)
}
