package cart

import (
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is the persisted representation of a cart used by blob-style
// storage. It round-trips exactly: FromSnapshot(c.Snapshot()) yields a cart
// with identical owner, discount, and items.
type Snapshot struct {
	ID              string          `json:"id"`
	UserID          int64           `json:"user_id,omitempty"`
	GuestToken      string          `json:"guest_token,omitempty"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	Items           []ItemSnapshot  `json:"items"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// ItemSnapshot is the persisted representation of one line item.
type ItemSnapshot struct {
	ItemableType string          `json:"itemable_type"`
	ItemableID   int64           `json:"itemable_id"`
	Quantity     int             `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
	Options      map[string]any  `json:"options,omitempty"`
}

// Snapshot converts the cart to its persisted representation.
func (c *Cart) Snapshot() Snapshot {
	items := make([]ItemSnapshot, len(c.Items))
	for i := range c.Items {
		items[i] = ItemSnapshot{
			ItemableType: c.Items[i].Key.Type,
			ItemableID:   c.Items[i].Key.ID,
			Quantity:     c.Items[i].Quantity,
			Price:        c.Items[i].Price,
			Options:      c.Items[i].Options,
		}
	}
	return Snapshot{
		ID:              c.ID,
		UserID:          c.UserID,
		GuestToken:      c.GuestToken,
		DiscountPercent: c.DiscountPercent,
		Items:           items,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

// FromSnapshot reconstructs a cart from its persisted representation.
func FromSnapshot(s Snapshot) *Cart {
	items := make([]CartItem, len(s.Items))
	for i, it := range s.Items {
		items[i] = CartItem{
			Key:      ItemKey{Type: it.ItemableType, ID: it.ItemableID},
			Quantity: it.Quantity,
			Price:    it.Price,
			Options:  it.Options,
		}
	}
	return &Cart{
		ID:              s.ID,
		UserID:          s.UserID,
		GuestToken:      s.GuestToken,
		DiscountPercent: s.DiscountPercent,
		Items:           items,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}
