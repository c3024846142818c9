// Package storetest is a conformance suite for cart.Store implementations.
// Both storage backends must pass it unchanged: the suite pins the observable
// behavior the backends are required to share.
package storetest

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/cartd/internal/domain/cart"
)

// Item is a minimal Cartable used by the suite.
type Item struct {
	ID      int64
	Price   decimal.Decimal
	Options map[string]any
}

func (i Item) CartItemRef() cart.ItemKey       { return cart.ItemKey{Type: "product", ID: i.ID} }
func (i Item) CartItemPrice() decimal.Decimal  { return i.Price }
func (i Item) CartItemName() string            { return "conformance item" }
func (i Item) CartItemOptions() map[string]any { return i.Options }

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Run exercises the full backend contract against stores produced by
// newStore. Each subtest receives a fresh store.
func Run(t *testing.T, newStore func(t *testing.T) cart.Store) {
	t.Helper()

	t.Run("GetCartCreates", testGetCartCreates(newStore))
	t.Run("AddAccumulates", testAddAccumulates(newStore))
	t.Run("NegativeAddRejected", testNegativeAddRejected(newStore))
	t.Run("PriceOverride", testPriceOverride(newStore))
	t.Run("UpdateQuantity", testUpdateQuantity(newStore))
	t.Run("DecreaseFloors", testDecreaseFloors(newStore))
	t.Run("RemoveIsIdempotent", testRemoveIsIdempotent(newStore))
	t.Run("ClearKeepsDiscount", testClearKeepsDiscount(newStore))
	t.Run("DiscountNotClamped", testDiscountNotClamped(newStore))
	t.Run("ResolveAnonymousMintsToken", testResolveAnonymousMintsToken(newStore))
	t.Run("ResolveKeepsValidToken", testResolveKeepsValidToken(newStore))
	t.Run("ResolveMergesBothCarts", testResolveMergesBothCarts(newStore))
	t.Run("ResolveRekeysGuestOnly", testResolveRekeysGuestOnly(newStore))
	t.Run("ResolveUserOnly", testResolveUserOnly(newStore))
	t.Run("ResolveIsIdempotent", testResolveIsIdempotent(newStore))
	t.Run("AssignToUser", testAssignToUser(newStore))
	t.Run("AssignMergesExistingUserCart", testAssignMergesExistingUserCart(newStore))
}

func guest(t *testing.T, s cart.Store) cart.Identity {
	t.Helper()
	res, err := s.Resolve(context.Background(), cart.Auth{})
	require.NoError(t, err)
	require.NotEmpty(t, res.IssueToken)
	return res.Identity
}

func testGetCartCreates(newStore func(t *testing.T) cart.Store) func(*testing.T) {
	return func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id := cart.UserIdentity(7)

		c, err := s.GetCart(ctx, id)
		require.NoError(t, err)
		assert.True(t, c.IsEmpty())
		assert.Equal(t, int64(7), c.UserID)

		// Get-or-create is stable: the same cart comes back.
		again, err := s.GetCart(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, c.ID, again.ID)
	}
}

func testAddAccumulates(newStore func(t *testing.T) cart.Store) func(*testing.T) {
	return func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id := cart.UserIdentity(7)
		item := Item{ID: 1, Price: dec("10.00"), Options: map[string]any{"size": "M"}}

		c, err := s.AddItem(ctx, id, item, cart.AddOptions{Quantity: 2})
		require.NoError(t, err)
		require.Equal(t, 1, c.Count())

		c, err = s.AddItem(ctx, id, item, cart.AddOptions{Quantity: 3})
		require.NoError(t, err)

		line := c.Item(item.CartItemRef())
		require.NotNil(t, line)
		assert.Equal(t, 5, line.Quantity)
		assert.True(t, dec("10.00").Equal(line.Price))
		assert.Equal(t, map[string]any{"size": "M"}, line.Options)
		assert.Equal(t, 5, c.TotalQuantity())
		assert.True(t, dec("50.00").Equal(c.Total()), "total = %s", c.Total())
	}
}

func testNegativeAddRejected(newStore func(t *testing.T) cart.Store) func(*testing.T) {
	return func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id := cart.UserIdentity(7)
		item := Item{ID: 1, Price: dec("10.00")}

		_, err := s.AddItem(ctx, id, item, cart.AddOptions{Quantity: 2})
		require.NoError(t, err)

		var iqErr *cart.InvalidQuantityError
		_, err = s.AddItem(ctx, id, item, cart.AddOptions{Quantity: -5})
		require.ErrorAs(t, err, &iqErr)

		_, err = s.IncreaseQuantity(ctx, id, item, -5)
		require.ErrorAs(t, err, &iqErr)

		// The rejected adds must not touch the line.
		c, err := s.GetCart(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 2, c.Item(item.CartItemRef()).Quantity)
	}
}

func testPriceOverride(newStore func(t *testing.T) cart.Store) func(*testing.T) {
	return func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id := cart.UserIdentity(7)

		override := dec("7.50")
		c, err := s.AddItem(ctx, id, Item{ID: 1, Price: dec("10.00")}, cart.AddOptions{Price: &override})
		require.NoError(t, err)
		assert.True(t, dec("7.50").Equal(c.Item(cart.ItemKey{Type: "product", ID: 1}).Price))
	}
}

func testUpdateQuantity(newStore func(t *testing.T) cart.Store) func(*testing.T) {
	return func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id := cart.UserIdentity(7)
		item := Item{ID: 1, Price: dec("10.00")}

		_, err := s.AddItem(ctx, id, item, cart.AddOptions{Quantity: 2})
		require.NoError(t, err)

		c, err := s.UpdateItemQuantity(ctx, id, item, 9)
		require.NoError(t, err)
		assert.Equal(t, 9, c.Item(item.CartItemRef()).Quantity)

		_, err = s.UpdateItemQuantity(ctx, id, item, 0)
		var iqErr *cart.InvalidQuantityError
		require.ErrorAs(t, err, &iqErr)

		_, err = s.UpdateItemQuantity(ctx, id, Item{ID: 42, Price: dec("1.00")}, 3)
		var nfErr *cart.ItemNotFoundError
		require.ErrorAs(t, err, &nfErr)

		// Failed updates leave the cart untouched.
		c, err = s.GetCart(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 9, c.Item(item.CartItemRef()).Quantity)
	}
}

func testDecreaseFloors(newStore func(t *testing.T) cart.Store) func(*testing.T) {
	return func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id := cart.UserIdentity(7)
		item := Item{ID: 1, Price: dec("10.00")}

		_, err := s.AddItem(ctx, id, item, cart.AddOptions{Quantity: 3})
		require.NoError(t, err)

		c, err := s.DecreaseQuantity(ctx, id, item, 100)
		require.NoError(t, err)
		line := c.Item(item.CartItemRef())
		require.NotNil(t, line, "decrease must never remove the line")
		assert.Equal(t, 1, line.Quantity)

		_, err = s.DecreaseQuantity(ctx, id, item, 0)
		var iqErr *cart.InvalidQuantityError
		require.ErrorAs(t, err, &iqErr)

		_, err = s.DecreaseQuantity(ctx, id, Item{ID: 42, Price: dec("1.00")}, 1)
		var nfErr *cart.ItemNotFoundError
		require.ErrorAs(t, err, &nfErr)
	}
}

func testRemoveIsIdempotent(newStore func(t *testing.T) cart.Store) func(*testing.T) {
	return func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id := cart.UserIdentity(7)
		item := Item{ID: 1, Price: dec("10.00")}

		_, err := s.AddItem(ctx, id, item, cart.AddOptions{})
		require.NoError(t, err)

		c, err := s.RemoveItem(ctx, id, item)
		require.NoError(t, err)
		assert.True(t, c.IsEmpty())

		// Removing again is a no-op, not an error.
		c, err = s.RemoveItem(ctx, id, item)
		require.NoError(t, err)
		assert.True(t, c.IsEmpty())
	}
}

func testClearKeepsDiscount(newStore func(t *testing.T) cart.Store) func(*testing.T) {
	return func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id := cart.UserIdentity(7)

		_, err := s.AddItem(ctx, id, Item{ID: 1, Price: dec("10.00")}, cart.AddOptions{Quantity: 2})
		require.NoError(t, err)
		_, err = s.SetDiscount(ctx, id, dec("25"))
		require.NoError(t, err)

		c, err := s.Clear(ctx, id)
		require.NoError(t, err)
		assert.True(t, c.IsEmpty())
		assert.True(t, c.Total().IsZero())
		assert.True(t, dec("25").Equal(c.DiscountPercent))

		// The cart itself survives a clear.
		again, err := s.GetCart(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, c.ID, again.ID)
	}
}

func testDiscountNotClamped(newStore func(t *testing.T) cart.Store) func(*testing.T) {
	return func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id := cart.UserIdentity(7)

		_, err := s.AddItem(ctx, id, Item{ID: 1, Price: dec("10.00")}, cart.AddOptions{})
		require.NoError(t, err)

		c, err := s.SetDiscount(ctx, id, dec("150"))
		require.NoError(t, err)
		assert.True(t, c.Total().IsNegative())
	}
}

func testResolveAnonymousMintsToken(newStore func(t *testing.T) cart.Store) func(*testing.T) {
	return func(t *testing.T) {
		s := newStore(t)

		res, err := s.Resolve(context.Background(), cart.Auth{})
		require.NoError(t, err)

		assert.NotEmpty(t, res.IssueToken)
		assert.True(t, cart.ValidGuestToken(res.IssueToken))
		assert.Equal(t, cart.GuestIdentity(res.IssueToken), res.Identity)
		assert.False(t, res.ClearToken)
		assert.Nil(t, res.Merge)
	}
}

func testResolveKeepsValidToken(newStore func(t *testing.T) cart.Store) func(*testing.T) {
	return func(t *testing.T) {
		s := newStore(t)
		token := cart.NewGuestToken()

		res, err := s.Resolve(context.Background(), cart.Auth{GuestToken: token})
		require.NoError(t, err)

		assert.Empty(t, res.IssueToken)
		assert.Equal(t, cart.GuestIdentity(token), res.Identity)
	}
}

func testResolveMergesBothCarts(newStore func(t *testing.T) cart.Store) func(*testing.T) {
	return func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		// Guest cart: {itemA: 2, itemB: 1}, discount 15.
		gid := guest(t, s)
		itemA := Item{ID: 1, Price: dec("10.00")}
		itemB := Item{ID: 2, Price: dec("5.00")}
		_, err := s.AddItem(ctx, gid, itemA, cart.AddOptions{Quantity: 2})
		require.NoError(t, err)
		_, err = s.AddItem(ctx, gid, itemB, cart.AddOptions{Quantity: 1})
		require.NoError(t, err)
		_, err = s.SetDiscount(ctx, gid, dec("15"))
		require.NoError(t, err)

		// User cart: {itemA: 3}, discount 10.
		uid := cart.UserIdentity(7)
		_, err = s.AddItem(ctx, uid, itemA, cart.AddOptions{Quantity: 3})
		require.NoError(t, err)
		_, err = s.SetDiscount(ctx, uid, dec("10"))
		require.NoError(t, err)

		res, err := s.Resolve(ctx, cart.Auth{UserID: 7, GuestToken: gid.GuestToken})
		require.NoError(t, err)

		assert.Equal(t, uid, res.Identity)
		assert.True(t, res.ClearToken)
		require.NotNil(t, res.Merge)
		assert.Equal(t, 1, res.Merge.Folded)
		assert.Equal(t, 1, res.Merge.Copied)

		c, err := s.GetCart(ctx, uid)
		require.NoError(t, err)
		require.Equal(t, 2, c.Count())
		assert.Equal(t, 5, c.Item(itemA.CartItemRef()).Quantity)
		assert.Equal(t, 1, c.Item(itemB.CartItemRef()).Quantity)
		assert.True(t, dec("15").Equal(c.DiscountPercent))

		// The guest cart is gone: its identity now resolves to a fresh cart.
		gc, err := s.GetCart(ctx, gid)
		require.NoError(t, err)
		assert.True(t, gc.IsEmpty())
	}
}

func testResolveRekeysGuestOnly(newStore func(t *testing.T) cart.Store) func(*testing.T) {
	return func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		gid := guest(t, s)
		item := Item{ID: 1, Price: dec("10.00")}
		before, err := s.AddItem(ctx, gid, item, cart.AddOptions{Quantity: 2})
		require.NoError(t, err)

		res, err := s.Resolve(ctx, cart.Auth{UserID: 7, GuestToken: gid.GuestToken})
		require.NoError(t, err)
		assert.True(t, res.ClearToken)
		assert.Nil(t, res.Merge)

		c, err := s.GetCart(ctx, cart.UserIdentity(7))
		require.NoError(t, err)
		assert.Equal(t, before.ID, c.ID, "re-key must move the cart, not copy it")
		assert.Equal(t, int64(7), c.UserID)
		assert.Empty(t, c.GuestToken)
		assert.Equal(t, 2, c.Item(item.CartItemRef()).Quantity)
	}
}

func testResolveUserOnly(newStore func(t *testing.T) cart.Store) func(*testing.T) {
	return func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		uid := cart.UserIdentity(7)

		before, err := s.AddItem(ctx, uid, Item{ID: 1, Price: dec("10.00")}, cart.AddOptions{Quantity: 2})
		require.NoError(t, err)

		res, err := s.Resolve(ctx, cart.Auth{UserID: 7})
		require.NoError(t, err)
		assert.Equal(t, uid, res.Identity)
		assert.False(t, res.ClearToken)

		c, err := s.GetCart(ctx, uid)
		require.NoError(t, err)
		assert.Equal(t, before.ID, c.ID)
		assert.Equal(t, 2, c.TotalQuantity())
	}
}

func testResolveIsIdempotent(newStore func(t *testing.T) cart.Store) func(*testing.T) {
	return func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		gid := guest(t, s)
		itemA := Item{ID: 1, Price: dec("10.00")}
		_, err := s.AddItem(ctx, gid, itemA, cart.AddOptions{Quantity: 2})
		require.NoError(t, err)

		uid := cart.UserIdentity(7)
		_, err = s.AddItem(ctx, uid, itemA, cart.AddOptions{Quantity: 3})
		require.NoError(t, err)

		auth := cart.Auth{UserID: 7, GuestToken: gid.GuestToken}
		_, err = s.Resolve(ctx, auth)
		require.NoError(t, err)

		// A second resolution with the same (now stale) token must not merge
		// again or fail.
		res, err := s.Resolve(ctx, auth)
		require.NoError(t, err)
		assert.Nil(t, res.Merge)

		c, err := s.GetCart(ctx, uid)
		require.NoError(t, err)
		assert.Equal(t, 5, c.Item(itemA.CartItemRef()).Quantity, "totals must not change on repeat resolution")
	}
}

func testAssignToUser(newStore func(t *testing.T) cart.Store) func(*testing.T) {
	return func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		gid := guest(t, s)
		item := Item{ID: 1, Price: dec("10.00")}
		_, err := s.AddItem(ctx, gid, item, cart.AddOptions{Quantity: 2})
		require.NoError(t, err)

		c, err := s.AssignToUser(ctx, gid, 42)
		require.NoError(t, err)
		assert.Equal(t, int64(42), c.UserID)
		assert.Empty(t, c.GuestToken)
		assert.Equal(t, 2, c.Item(item.CartItemRef()).Quantity)
	}
}

func testAssignMergesExistingUserCart(newStore func(t *testing.T) cart.Store) func(*testing.T) {
	return func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		gid := guest(t, s)
		item := Item{ID: 1, Price: dec("10.00")}
		_, err := s.AddItem(ctx, gid, item, cart.AddOptions{Quantity: 2})
		require.NoError(t, err)

		uid := cart.UserIdentity(42)
		_, err = s.AddItem(ctx, uid, item, cart.AddOptions{Quantity: 3})
		require.NoError(t, err)

		c, err := s.AssignToUser(ctx, gid, 42)
		require.NoError(t, err)
		assert.Equal(t, 5, c.Item(item.CartItemRef()).Quantity)
		assert.Equal(t, 1, c.Count())
	}
}
