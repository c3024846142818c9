package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/cartd/internal/domain/cart"
)

const (
	getCartByUserSQL = `SELECT id, user_id, guest_token, discount_percent, created_at, updated_at
		FROM carts WHERE user_id = $1`

	getCartByGuestSQL = `SELECT id, user_id, guest_token, discount_percent, created_at, updated_at
		FROM carts WHERE guest_token = $1`

	insertCartSQL = `INSERT INTO carts (id, user_id, guest_token, discount_percent)
		VALUES ($1, $2, $3, $4)`

	getItemsSQL = `SELECT itemable_type, itemable_id, quantity, price, options
		FROM cart_items WHERE cart_id = $1 ORDER BY id`

	getItemSQL = `SELECT itemable_type, itemable_id, quantity, price, options
		FROM cart_items WHERE cart_id = $1 AND itemable_type = $2 AND itemable_id = $3`

	// Add accumulates into an existing row; the price snapshot and options of
	// the first add are kept on conflict.
	addItemSQL = `INSERT INTO cart_items (cart_id, itemable_type, itemable_id, quantity, price, options)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (cart_id, itemable_type, itemable_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, updated_at = now()`

	insertItemSQL = `INSERT INTO cart_items (cart_id, itemable_type, itemable_id, quantity, price, options)
		VALUES ($1, $2, $3, $4, $5, $6)`

	updateItemQuantitySQL = `UPDATE cart_items SET quantity = $4, updated_at = now()
		WHERE cart_id = $1 AND itemable_type = $2 AND itemable_id = $3`

	// Decrease floors at 1 in SQL so the invariant holds even under
	// concurrent writers racing on the same row.
	decreaseItemQuantitySQL = `UPDATE cart_items SET quantity = GREATEST(1, quantity - $4), updated_at = now()
		WHERE cart_id = $1 AND itemable_type = $2 AND itemable_id = $3`

	removeItemSQL = `DELETE FROM cart_items
		WHERE cart_id = $1 AND itemable_type = $2 AND itemable_id = $3`

	clearItemsSQL = `DELETE FROM cart_items WHERE cart_id = $1`

	setDiscountSQL = `UPDATE carts SET discount_percent = $2, updated_at = now() WHERE id = $1`

	rekeyCartSQL = `UPDATE carts SET user_id = $2, guest_token = NULL, updated_at = now() WHERE id = $1`

	deleteCartSQL = `DELETE FROM carts WHERE id = $1`
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx so cart loading can
// run inside or outside a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

var _ cart.Store = (*CartStore)(nil)

// CartStore implements cart.Store backed by PostgreSQL. Items are stored as
// individual rows, so concurrent writers to different items within one cart
// interleave at row granularity.
type CartStore struct {
	pool *pgxpool.Pool
}

// NewCartStore returns a CartStore that uses the given pool.
func NewCartStore(pool *pgxpool.Pool) *CartStore {
	return &CartStore{pool: pool}
}

// Resolve implements the identity transition protocol. All merge work runs in
// a single transaction so a failed merge leaves both carts untouched.
func (s *CartStore) Resolve(ctx context.Context, auth cart.Auth) (*cart.Resolution, error) {
	if !auth.Authenticated() {
		if cart.ValidGuestToken(auth.GuestToken) {
			return &cart.Resolution{Identity: cart.GuestIdentity(auth.GuestToken)}, nil
		}
		token := cart.NewGuestToken()
		return &cart.Resolution{Identity: cart.GuestIdentity(token), IssueToken: token}, nil
	}

	res := &cart.Resolution{Identity: cart.UserIdentity(auth.UserID)}
	if !cart.ValidGuestToken(auth.GuestToken) {
		return res, nil
	}

	// A guest token was presented: it is consumed by this resolution whether
	// or not a guest cart still exists behind it.
	res.ClearToken = true

	guestCart, err := s.findCart(ctx, s.pool, cart.GuestIdentity(auth.GuestToken))
	if err != nil {
		if errors.Is(err, cart.ErrCartNotFound) {
			return res, nil
		}
		return nil, err
	}

	userCart, err := s.findCart(ctx, s.pool, res.Identity)
	if err != nil {
		if errors.Is(err, cart.ErrCartNotFound) {
			// Only the guest cart exists: re-key it in place, no copy.
			if _, err := s.pool.Exec(ctx, rekeyCartSQL, guestCart.ID, auth.UserID); err != nil {
				return nil, fmt.Errorf("re-keying cart %q to user %d: %w", guestCart.ID, auth.UserID, err)
			}
			return res, nil
		}
		return nil, err
	}

	// Both exist: fold guest into user, drop the guest cart.
	stats := cart.Merge(guestCart, userCart)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning merge transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if err := s.replaceItems(ctx, tx, userCart); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, setDiscountSQL, userCart.ID, userCart.DiscountPercent); err != nil {
		return nil, fmt.Errorf("updating merged discount: %w", err)
	}
	if _, err := tx.Exec(ctx, deleteCartSQL, guestCart.ID); err != nil {
		return nil, fmt.Errorf("deleting guest cart %q: %w", guestCart.ID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing merge: %w", err)
	}

	res.Merge = &stats
	return res, nil
}

// GetCart returns the identity's cart with items loaded, creating an empty
// cart when none exists.
func (s *CartStore) GetCart(ctx context.Context, id cart.Identity) (*cart.Cart, error) {
	c, err := s.findCart(ctx, s.pool, id)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, cart.ErrCartNotFound) {
		return nil, err
	}
	return s.createCart(ctx, id)
}

// AddItem folds quantity of the item into the cart via a single upsert.
func (s *CartStore) AddItem(ctx context.Context, id cart.Identity, item cart.Cartable, opt cart.AddOptions) (*cart.Cart, error) {
	key := item.CartItemRef()
	if key.Zero() {
		return nil, cart.ErrEmptyItemKey
	}
	qty, err := opt.EffectiveQuantity()
	if err != nil {
		return nil, err
	}

	c, err := s.GetCart(ctx, id)
	if err != nil {
		return nil, err
	}

	price := opt.EffectivePrice(item)
	options := opt.EffectiveOptions(item)
	if _, err := s.pool.Exec(ctx, addItemSQL, c.ID, key.Type, key.ID, qty, price, options); err != nil {
		return nil, fmt.Errorf("adding item %s/%d: %w", key.Type, key.ID, err)
	}

	return s.findCart(ctx, s.pool, id)
}

// GetItem returns the cart's line for the item, or nil when absent.
func (s *CartStore) GetItem(ctx context.Context, id cart.Identity, item cart.Cartable) (*cart.CartItem, error) {
	c, err := s.GetCart(ctx, id)
	if err != nil {
		return nil, err
	}

	key := item.CartItemRef()
	rows, err := s.pool.Query(ctx, getItemSQL, c.ID, key.Type, key.ID)
	if err != nil {
		return nil, fmt.Errorf("getting item %s/%d: %w", key.Type, key.ID, err)
	}
	line, err := pgx.CollectExactlyOneRow(rows, scanItem)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting item %s/%d: %w", key.Type, key.ID, err)
	}
	return &line, nil
}

// RemoveItem deletes the item's row. Removing an absent item is a no-op.
func (s *CartStore) RemoveItem(ctx context.Context, id cart.Identity, item cart.Cartable) (*cart.Cart, error) {
	c, err := s.GetCart(ctx, id)
	if err != nil {
		return nil, err
	}

	key := item.CartItemRef()
	if _, err := s.pool.Exec(ctx, removeItemSQL, c.ID, key.Type, key.ID); err != nil {
		return nil, fmt.Errorf("removing item %s/%d: %w", key.Type, key.ID, err)
	}

	return s.findCart(ctx, s.pool, id)
}

// UpdateItemQuantity sets an absolute quantity on the item's row.
func (s *CartStore) UpdateItemQuantity(ctx context.Context, id cart.Identity, item cart.Cartable, quantity int) (*cart.Cart, error) {
	if quantity < 1 {
		return nil, &cart.InvalidQuantityError{Quantity: quantity}
	}

	c, err := s.GetCart(ctx, id)
	if err != nil {
		return nil, err
	}

	key := item.CartItemRef()
	tag, err := s.pool.Exec(ctx, updateItemQuantitySQL, c.ID, key.Type, key.ID, quantity)
	if err != nil {
		return nil, fmt.Errorf("updating quantity of %s/%d: %w", key.Type, key.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, &cart.ItemNotFoundError{Key: key}
	}

	return s.findCart(ctx, s.pool, id)
}

// IncreaseQuantity adds quantity to the item's row, creating it when absent.
func (s *CartStore) IncreaseQuantity(ctx context.Context, id cart.Identity, item cart.Cartable, quantity int) (*cart.Cart, error) {
	return s.AddItem(ctx, id, item, cart.AddOptions{Quantity: quantity})
}

// DecreaseQuantity lowers the item's quantity, flooring at 1 in SQL.
func (s *CartStore) DecreaseQuantity(ctx context.Context, id cart.Identity, item cart.Cartable, quantity int) (*cart.Cart, error) {
	if quantity < 1 {
		return nil, &cart.InvalidQuantityError{Quantity: quantity}
	}

	c, err := s.GetCart(ctx, id)
	if err != nil {
		return nil, err
	}

	key := item.CartItemRef()
	tag, err := s.pool.Exec(ctx, decreaseItemQuantitySQL, c.ID, key.Type, key.ID, quantity)
	if err != nil {
		return nil, fmt.Errorf("decreasing quantity of %s/%d: %w", key.Type, key.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, &cart.ItemNotFoundError{Key: key}
	}

	return s.findCart(ctx, s.pool, id)
}

// Clear deletes all item rows. The cart row and its discount survive.
func (s *CartStore) Clear(ctx context.Context, id cart.Identity) (*cart.Cart, error) {
	c, err := s.GetCart(ctx, id)
	if err != nil {
		return nil, err
	}

	if _, err := s.pool.Exec(ctx, clearItemsSQL, c.ID); err != nil {
		return nil, fmt.Errorf("clearing cart %q: %w", c.ID, err)
	}

	return s.findCart(ctx, s.pool, id)
}

// SetDiscount stores the raw percentage on the cart row.
func (s *CartStore) SetDiscount(ctx context.Context, id cart.Identity, percent decimal.Decimal) (*cart.Cart, error) {
	c, err := s.GetCart(ctx, id)
	if err != nil {
		return nil, err
	}

	if _, err := s.pool.Exec(ctx, setDiscountSQL, c.ID, percent); err != nil {
		return nil, fmt.Errorf("setting discount on cart %q: %w", c.ID, err)
	}

	return s.findCart(ctx, s.pool, id)
}

// AssignToUser re-keys the identity's cart to the given user. When the user
// already owns a cart the current cart is folded into it, mirroring Resolve.
func (s *CartStore) AssignToUser(ctx context.Context, id cart.Identity, userID int64) (*cart.Cart, error) {
	current, err := s.GetCart(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.UserID == userID {
		return current, nil
	}

	userIdentity := cart.UserIdentity(userID)
	existing, err := s.findCart(ctx, s.pool, userIdentity)
	if err != nil {
		if !errors.Is(err, cart.ErrCartNotFound) {
			return nil, err
		}
		if _, err := s.pool.Exec(ctx, rekeyCartSQL, current.ID, userID); err != nil {
			return nil, fmt.Errorf("re-keying cart %q to user %d: %w", current.ID, userID, err)
		}
		return s.findCart(ctx, s.pool, userIdentity)
	}

	cart.Merge(current, existing)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning assign transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if err := s.replaceItems(ctx, tx, existing); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, setDiscountSQL, existing.ID, existing.DiscountPercent); err != nil {
		return nil, fmt.Errorf("updating merged discount: %w", err)
	}
	if _, err := tx.Exec(ctx, deleteCartSQL, current.ID); err != nil {
		return nil, fmt.Errorf("deleting cart %q: %w", current.ID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing assign: %w", err)
	}

	return s.findCart(ctx, s.pool, userIdentity)
}

// findCart loads the cart owned by the identity with its items, or
// cart.ErrCartNotFound.
func (s *CartStore) findCart(ctx context.Context, q querier, id cart.Identity) (*cart.Cart, error) {
	var row pgx.Row
	switch {
	case id.UserID > 0:
		row = q.QueryRow(ctx, getCartByUserSQL, id.UserID)
	case id.GuestToken != "":
		row = q.QueryRow(ctx, getCartByGuestSQL, id.GuestToken)
	default:
		return nil, cart.ErrCartNotFound
	}

	var (
		c          cart.Cart
		userID     *int64
		guestToken *string
	)
	err := row.Scan(&c.ID, &userID, &guestToken, &c.DiscountPercent, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrCartNotFound
		}
		return nil, fmt.Errorf("finding cart: %w", err)
	}
	if userID != nil {
		c.UserID = *userID
	}
	if guestToken != nil {
		c.GuestToken = *guestToken
	}

	rows, err := q.Query(ctx, getItemsSQL, c.ID)
	if err != nil {
		return nil, fmt.Errorf("loading items of cart %q: %w", c.ID, err)
	}
	c.Items, err = pgx.CollectRows(rows, scanItem)
	if err != nil {
		return nil, fmt.Errorf("loading items of cart %q: %w", c.ID, err)
	}
	return &c, nil
}

// createCart inserts an empty cart for the identity.
func (s *CartStore) createCart(ctx context.Context, id cart.Identity) (*cart.Cart, error) {
	var c *cart.Cart
	switch {
	case id.UserID > 0:
		c = cart.NewUserCart(id.UserID)
	case id.GuestToken != "":
		c = cart.NewGuestCart(id.GuestToken)
	default:
		return nil, cart.ErrCartNotFound
	}

	var (
		userID     *int64
		guestToken *string
	)
	if c.UserID > 0 {
		userID = &c.UserID
	}
	if c.GuestToken != "" {
		guestToken = &c.GuestToken
	}

	if _, err := s.pool.Exec(ctx, insertCartSQL, c.ID, userID, guestToken, c.DiscountPercent); err != nil {
		// A concurrent request may have created the cart first; the unique
		// owner index makes the existing row authoritative.
		if existing, findErr := s.findCart(ctx, s.pool, id); findErr == nil {
			return existing, nil
		}
		return nil, fmt.Errorf("creating cart for identity: %w", err)
	}
	return c, nil
}

// replaceItems rewrites the cart's item rows from its in-memory state.
func (s *CartStore) replaceItems(ctx context.Context, tx pgx.Tx, c *cart.Cart) error {
	if _, err := tx.Exec(ctx, clearItemsSQL, c.ID); err != nil {
		return fmt.Errorf("clearing items of cart %q: %w", c.ID, err)
	}
	for i := range c.Items {
		item := &c.Items[i]
		_, err := tx.Exec(ctx, insertItemSQL,
			c.ID, item.Key.Type, item.Key.ID, item.Quantity, item.Price, item.Options)
		if err != nil {
			return fmt.Errorf("writing item %s/%d of cart %q: %w", item.Key.Type, item.Key.ID, c.ID, err)
		}
	}
	return nil
}

func scanItem(row pgx.CollectableRow) (cart.CartItem, error) {
	var (
		item  cart.CartItem
		price decimal.Decimal
	)
	err := row.Scan(&item.Key.Type, &item.Key.ID, &item.Quantity, &price, &item.Options)
	item.Price = price
	return item, err
}
