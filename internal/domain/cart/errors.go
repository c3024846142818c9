package cart

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Sentinel errors shared by both storage backends.
var (
	// ErrCartNotFound is returned by lookups that require an existing cart.
	ErrCartNotFound = errors.New("cart not found")
	// ErrEmptyItemKey is returned when a Cartable reports a key with a missing
	// type tag or non-positive ID.
	ErrEmptyItemKey = errors.New("itemable key must have a type and a positive id")
)

// ItemNotFoundError indicates an operation referenced an item key that is not
// present in the cart.
type ItemNotFoundError struct {
	Key ItemKey
}

func (e *ItemNotFoundError) Error() string {
	return fmt.Sprintf("item %s/%d not found in cart", e.Key.Type, e.Key.ID)
}

// InvalidQuantityError indicates a non-positive quantity was passed to an
// operation that requires at least 1.
type InvalidQuantityError struct {
	Quantity int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0, got %d", e.Quantity)
}
