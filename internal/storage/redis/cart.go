// Package redis implements the ephemeral storage backend: each cart is one
// serialized blob keyed by its identity, fully reconstructed on every read.
// Every mutation rewrites the whole blob, so concurrent writers to the same
// identity race at whole-cart granularity: last writer wins, which is
// strictly weaker than the durable backend's row-level writes.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/xenking/cartd/internal/domain/cart"
)

// Options configures blob lifetimes.
type Options struct {
	// GuestTTL is the lifetime of guest-keyed carts. It matches the guest
	// token cookie lifetime so the cart and its token expire together.
	GuestTTL time.Duration
	// UserTTL is the lifetime of user-keyed carts, refreshed on every write.
	UserTTL time.Duration
}

var _ cart.Store = (*CartStore)(nil)

// CartStore implements cart.Store backed by Redis.
type CartStore struct {
	client goredis.UniversalClient
	opts   Options
}

// NewCartStore returns a CartStore on the given client.
func NewCartStore(client goredis.UniversalClient, opts Options) *CartStore {
	return &CartStore{client: client, opts: opts}
}

func userKey(userID int64) string {
	return fmt.Sprintf("cart:user:%d", userID)
}

func guestKey(token string) string {
	return "cart:guest:" + token
}

func identityKey(id cart.Identity) string {
	if id.UserID > 0 {
		return userKey(id.UserID)
	}
	return guestKey(id.GuestToken)
}

// Resolve implements the identity transition protocol against blobs.
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
	res.ClearToken = true

	guestCart, err := s.load(ctx, guestKey(auth.GuestToken))
	if err != nil {
		if errors.Is(err, cart.ErrCartNotFound) {
			return res, nil
		}
		return nil, err
	}

	userCart, err := s.load(ctx, userKey(auth.UserID))
	if err != nil && !errors.Is(err, cart.ErrCartNotFound) {
		return nil, err
	}
	if userCart == nil {
		// Only the guest cart exists: re-key the blob to the user identity.
		guestCart.UserID = auth.UserID
		guestCart.GuestToken = ""
		if err := s.save(ctx, guestCart); err != nil {
			return nil, err
		}
		if err := s.delete(ctx, guestKey(auth.GuestToken)); err != nil {
			return nil, err
		}
		return res, nil
	}

	stats := cart.Merge(guestCart, userCart)
	if err := s.save(ctx, userCart); err != nil {
		return nil, err
	}
	if err := s.delete(ctx, guestKey(auth.GuestToken)); err != nil {
		return nil, err
	}

	res.Merge = &stats
	return res, nil
}

// GetCart returns the identity's cart, creating an empty one when no blob
// exists.
func (s *CartStore) GetCart(ctx context.Context, id cart.Identity) (*cart.Cart, error) {
	c, err := s.load(ctx, identityKey(id))
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, cart.ErrCartNotFound) {
		return nil, err
	}

	if id.UserID > 0 {
		c = cart.NewUserCart(id.UserID)
	} else {
		c = cart.NewGuestCart(id.GuestToken)
	}
	if err := s.save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// AddItem folds quantity of the item into the blob.
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
	c.Add(key, qty, opt.EffectivePrice(item), opt.EffectiveOptions(item))
	if err := s.save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// GetItem returns the blob's line for the item, or nil when absent.
func (s *CartStore) GetItem(ctx context.Context, id cart.Identity, item cart.Cartable) (*cart.CartItem, error) {
	c, err := s.GetCart(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.Item(item.CartItemRef()), nil
}

// RemoveItem deletes the item's line. Removing an absent item is a no-op.
func (s *CartStore) RemoveItem(ctx context.Context, id cart.Identity, item cart.Cartable) (*cart.Cart, error) {
	c, err := s.GetCart(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Remove(item.CartItemRef()) == nil {
		return c, nil
	}
	if err := s.save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateItemQuantity sets an absolute quantity on the item's line.
func (s *CartStore) UpdateItemQuantity(ctx context.Context, id cart.Identity, item cart.Cartable, quantity int) (*cart.Cart, error) {
	c, err := s.GetCart(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := c.SetQuantity(item.CartItemRef(), quantity); err != nil {
		return nil, err
	}
	if err := s.save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// IncreaseQuantity adds quantity to the item's line, creating it when absent.
func (s *CartStore) IncreaseQuantity(ctx context.Context, id cart.Identity, item cart.Cartable, quantity int) (*cart.Cart, error) {
	return s.AddItem(ctx, id, item, cart.AddOptions{Quantity: quantity})
}

// DecreaseQuantity lowers the item's quantity, flooring at 1.
func (s *CartStore) DecreaseQuantity(ctx context.Context, id cart.Identity, item cart.Cartable, quantity int) (*cart.Cart, error) {
	c, err := s.GetCart(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := c.Decrease(item.CartItemRef(), quantity); err != nil {
		return nil, err
	}
	if err := s.save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Clear removes all line items. The blob and its discount survive.
func (s *CartStore) Clear(ctx context.Context, id cart.Identity) (*cart.Cart, error) {
	c, err := s.GetCart(ctx, id)
	if err != nil {
		return nil, err
	}
	c.ClearItems()
	if err := s.save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// SetDiscount stores the raw percentage on the blob.
func (s *CartStore) SetDiscount(ctx context.Context, id cart.Identity, percent decimal.Decimal) (*cart.Cart, error) {
	c, err := s.GetCart(ctx, id)
	if err != nil {
		return nil, err
	}
	c.DiscountPercent = percent
	if err := s.save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// AssignToUser re-keys the identity's blob to the given user, folding into an
// existing user blob when one exists.
func (s *CartStore) AssignToUser(ctx context.Context, id cart.Identity, userID int64) (*cart.Cart, error) {
	current, err := s.GetCart(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.UserID == userID {
		return current, nil
	}
	oldKey := identityKey(id)

	existing, err := s.load(ctx, userKey(userID))
	if err != nil && !errors.Is(err, cart.ErrCartNotFound) {
		return nil, err
	}
	if existing != nil {
		cart.Merge(current, existing)
		if err := s.save(ctx, existing); err != nil {
			return nil, err
		}
		if err := s.delete(ctx, oldKey); err != nil {
			return nil, err
		}
		return existing, nil
	}

	current.UserID = userID
	current.GuestToken = ""
	if err := s.save(ctx, current); err != nil {
		return nil, err
	}
	if err := s.delete(ctx, oldKey); err != nil {
		return nil, err
	}
	return current, nil
}

// load reads and reconstructs a cart blob, or cart.ErrCartNotFound.
func (s *CartStore) load(ctx context.Context, key string) (*cart.Cart, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, cart.ErrCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %q: %w", key, err)
	}

	var snap cart.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal cart blob %q: %w", key, err)
	}
	return cart.FromSnapshot(snap), nil
}

// save serializes the cart and rewrites its blob with the identity's TTL.
func (s *CartStore) save(ctx context.Context, c *cart.Cart) error {
	c.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(c.Snapshot())
	if err != nil {
		return fmt.Errorf("marshal cart %q: %w", c.ID, err)
	}

	ttl := s.opts.GuestTTL
	if c.UserID > 0 {
		ttl = s.opts.UserTTL
	}

	key := identityKey(cart.Identity{UserID: c.UserID, GuestToken: c.GuestToken})
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

func (s *CartStore) delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %q: %w", key, err)
	}
	return nil
}
