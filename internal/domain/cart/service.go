package cart

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Service is the public cart API surface. It owns the configured storage
// backend and hands out request-scoped Sessions. A Service has no per-request
// state of its own.
type Service struct {
	store Store
	sink  EventSink

	// resolveGroup collapses concurrent resolutions of the same identity
	// (e.g. two browser tabs authenticating at once) into a single Resolve
	// call so the merge runs at most once.
	resolveGroup singleflight.Group
}

// NewService creates a Service on the given backend. A nil sink disables
// event notifications.
func NewService(store Store, sink EventSink) *Service {
	if sink == nil {
		sink = NopSink{}
	}
	return &Service{store: store, sink: sink}
}

// WithStore returns a shallow copy of the Service bound to a different
// backend. Intended for tests and per-tenant backend selection.
func (s *Service) WithStore(store Store) *Service {
	return &Service{store: store, sink: s.sink}
}

// Session resolves the request's identity exactly once and returns a handle
// scoped to it. All cart operations for the request go through the returned
// Session; repeated reads within it hit an in-memory cache that every
// mutation refreshes.
func (s *Service) Session(ctx context.Context, auth Auth) (*Session, error) {
	key := fmt.Sprintf("u%d:g%s", auth.UserID, auth.GuestToken)
	v, err, _ := s.resolveGroup.Do(key, func() (any, error) {
		return s.store.Resolve(ctx, auth)
	})
	if err != nil {
		return nil, errors.Wrap(err, "resolve identity")
	}
	res := v.(*Resolution)

	if res.Merge != nil {
		lg := zctx.From(ctx)
		lg.Info("guest cart merged",
			zap.Int64("user_id", res.Identity.UserID),
			zap.Int("folded", res.Merge.Folded),
			zap.Int("copied", res.Merge.Copied),
			zap.Int("skipped", res.Merge.Skipped),
		)
		if res.Merge.Skipped > 0 {
			lg.Warn("malformed guest items skipped during merge",
				zap.Int("skipped", res.Merge.Skipped))
		}
	}

	return &Session{
		store:      s.store,
		sink:       s.sink,
		resolution: res,
	}, nil
}

// Session is a request-scoped cart handle: one resolved identity, one cached
// cart. Sessions are not safe for concurrent use; each request gets its own.
type Session struct {
	store      Store
	sink       EventSink
	resolution *Resolution
	cached     *Cart
}

// Resolution returns the identity resolution outcome, including the guest
// token directives the transport layer must relay to the client.
func (s *Session) Resolution() *Resolution {
	return s.resolution
}

// Identity returns the resolved cart owner.
func (s *Session) Identity() Identity {
	return s.resolution.Identity
}

// Cart returns the authoritative cart, loading it on first use and from the
// session cache afterwards.
func (s *Session) Cart(ctx context.Context) (*Cart, error) {
	if s.cached != nil {
		return s.cached, nil
	}
	c, err := s.store.GetCart(ctx, s.resolution.Identity)
	if err != nil {
		return nil, err
	}
	s.cached = c
	return c, nil
}

// AddItem adds quantity of the item to the cart, accumulating into an
// existing line or creating one with a price snapshot.
func (s *Session) AddItem(ctx context.Context, item Cartable, opt AddOptions) (*Cart, error) {
	key := item.CartItemRef()
	if key.Zero() {
		return nil, ErrEmptyItemKey
	}

	before, err := s.Cart(ctx)
	if err != nil {
		return nil, err
	}
	var oldQty int
	if line := before.Item(key); line != nil {
		oldQty = line.Quantity
	}

	c, err := s.store.AddItem(ctx, s.resolution.Identity, item, opt)
	if err != nil {
		return nil, err
	}
	s.cached = c

	if line := c.Item(key); line != nil {
		if oldQty == 0 {
			s.sink.ItemAdded(ctx, c, line)
		} else {
			s.sink.ItemQuantityChanged(ctx, c, line, oldQty, line.Quantity)
		}
	}
	return c, nil
}

// GetItem returns the cart's line for the item, or nil when absent.
func (s *Session) GetItem(ctx context.Context, item Cartable) (*CartItem, error) {
	c, err := s.Cart(ctx)
	if err != nil {
		return nil, err
	}
	return c.Item(item.CartItemRef()), nil
}

// RemoveItem deletes the item's line. A no-op when the item is absent.
func (s *Session) RemoveItem(ctx context.Context, item Cartable) (*Cart, error) {
	key := item.CartItemRef()
	before, err := s.Cart(ctx)
	if err != nil {
		return nil, err
	}
	removed := before.Item(key)

	c, err := s.store.RemoveItem(ctx, s.resolution.Identity, item)
	if err != nil {
		return nil, err
	}
	s.cached = c

	if removed != nil {
		s.sink.ItemRemoved(ctx, c, removed)
	}
	return c, nil
}

// UpdateItemQuantity sets the item's line to an absolute quantity.
func (s *Session) UpdateItemQuantity(ctx context.Context, item Cartable, quantity int) (*Cart, error) {
	key := item.CartItemRef()
	before, err := s.Cart(ctx)
	if err != nil {
		return nil, err
	}
	var oldQty int
	if line := before.Item(key); line != nil {
		oldQty = line.Quantity
	}

	c, err := s.store.UpdateItemQuantity(ctx, s.resolution.Identity, item, quantity)
	if err != nil {
		return nil, err
	}
	s.cached = c

	if line := c.Item(key); line != nil && line.Quantity != oldQty {
		s.sink.ItemQuantityChanged(ctx, c, line, oldQty, line.Quantity)
	}
	return c, nil
}

// IncreaseQuantity adds quantity to the item's line, creating it when absent.
func (s *Session) IncreaseQuantity(ctx context.Context, item Cartable, quantity int) (*Cart, error) {
	return s.AddItem(ctx, item, AddOptions{Quantity: quantity})
}

// DecreaseQuantity lowers the item's quantity, flooring at 1.
func (s *Session) DecreaseQuantity(ctx context.Context, item Cartable, quantity int) (*Cart, error) {
	key := item.CartItemRef()
	before, err := s.Cart(ctx)
	if err != nil {
		return nil, err
	}
	var oldQty int
	if line := before.Item(key); line != nil {
		oldQty = line.Quantity
	}

	c, err := s.store.DecreaseQuantity(ctx, s.resolution.Identity, item, quantity)
	if err != nil {
		return nil, err
	}
	s.cached = c

	if line := c.Item(key); line != nil && line.Quantity != oldQty {
		s.sink.ItemQuantityChanged(ctx, c, line, oldQty, line.Quantity)
	}
	return c, nil
}

// Clear removes all items from the cart. The cart and its discount survive.
func (s *Session) Clear(ctx context.Context) (*Cart, error) {
	before, err := s.Cart(ctx)
	if err != nil {
		return nil, err
	}
	removed := make([]CartItem, len(before.Items))
	copy(removed, before.Items)

	c, err := s.store.Clear(ctx, s.resolution.Identity)
	if err != nil {
		return nil, err
	}
	s.cached = c

	for i := range removed {
		s.sink.ItemRemoved(ctx, c, &removed[i])
	}
	return c, nil
}

// SetDiscount stores the raw discount percentage.
func (s *Session) SetDiscount(ctx context.Context, percent decimal.Decimal) (*Cart, error) {
	c, err := s.store.SetDiscount(ctx, s.resolution.Identity, percent)
	if err != nil {
		return nil, err
	}
	s.cached = c
	return c, nil
}

// AssignToUser re-keys the session's cart to the given user, merging into an
// existing user cart when one exists. The session continues under the user
// identity.
func (s *Session) AssignToUser(ctx context.Context, userID int64) (*Cart, error) {
	wasGuest := s.resolution.Identity.GuestToken != ""
	c, err := s.store.AssignToUser(ctx, s.resolution.Identity, userID)
	if err != nil {
		return nil, err
	}
	s.cached = c
	s.resolution.Identity = UserIdentity(userID)
	s.resolution.IssueToken = ""
	if wasGuest {
		// The client's token no longer keys a cart, pending mint or not.
		s.resolution.ClearToken = true
	}
	return c, nil
}

// Count returns the number of unique line items.
func (s *Session) Count(ctx context.Context) (int, error) {
	c, err := s.Cart(ctx)
	if err != nil {
		return 0, err
	}
	return c.Count(), nil
}

// TotalQuantity returns the sum of all line quantities.
func (s *Session) TotalQuantity(ctx context.Context) (int, error) {
	c, err := s.Cart(ctx)
	if err != nil {
		return 0, err
	}
	return c.TotalQuantity(), nil
}

// Total returns the discounted cart total.
func (s *Session) Total(ctx context.Context) (decimal.Decimal, error) {
	c, err := s.Cart(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return c.Total(), nil
}

// Items returns the cart's line items.
func (s *Session) Items(ctx context.Context) ([]CartItem, error) {
	c, err := s.Cart(ctx)
	if err != nil {
		return nil, err
	}
	return c.Items, nil
}

// IsEmpty reports whether the cart has no line items.
func (s *Session) IsEmpty(ctx context.Context) (bool, error) {
	c, err := s.Cart(ctx)
	if err != nil {
		return false, err
	}
	return c.IsEmpty(), nil
}
