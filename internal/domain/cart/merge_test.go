package cart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge_Completeness(t *testing.T) {
	guest := NewGuestCart(NewGuestToken())
	guest.Add(ItemKey{Type: "product", ID: 1}, 2, dec("10.00"), nil)
	guest.Add(ItemKey{Type: "product", ID: 2}, 1, dec("5.00"), map[string]any{"size": "M"})

	user := NewUserCart(7)
	user.Add(ItemKey{Type: "product", ID: 1}, 3, dec("10.00"), nil)

	stats := Merge(guest, user)

	assert.Equal(t, 1, stats.Folded)
	assert.Equal(t, 1, stats.Copied)
	assert.Equal(t, 0, stats.Skipped)

	require.Equal(t, 2, user.Count())
	assert.Equal(t, 5, user.Item(ItemKey{Type: "product", ID: 1}).Quantity)

	copied := user.Item(ItemKey{Type: "product", ID: 2})
	require.NotNil(t, copied)
	assert.Equal(t, 1, copied.Quantity)
	assert.True(t, dec("5.00").Equal(copied.Price))
	assert.Equal(t, map[string]any{"size": "M"}, copied.Options)
}

func TestMerge_DiscountDominance(t *testing.T) {
	tests := []struct {
		name   string
		guest  string
		user   string
		merged string
	}{
		{"guest wins", "15", "10", "15"},
		{"user wins", "5", "20", "20"},
		{"equal", "10", "10", "10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			guest := NewGuestCart(NewGuestToken())
			guest.DiscountPercent = dec(tt.guest)
			user := NewUserCart(7)
			user.DiscountPercent = dec(tt.user)

			Merge(guest, user)

			assert.True(t, dec(tt.merged).Equal(user.DiscountPercent),
				"want %s, got %s", tt.merged, user.DiscountPercent)
		})
	}
}

func TestMerge_SkipsMalformedItems(t *testing.T) {
	guest := NewGuestCart(NewGuestToken())
	guest.Add(ItemKey{Type: "product", ID: 1}, 2, dec("10.00"), nil)
	// Malformed lines: missing type, non-positive id.
	guest.Items = append(guest.Items,
		CartItem{Key: ItemKey{Type: "", ID: 5}, Quantity: 1, Price: dec("1.00")},
		CartItem{Key: ItemKey{Type: "product", ID: 0}, Quantity: 1, Price: dec("1.00")},
	)

	user := NewUserCart(7)
	stats := Merge(guest, user)

	assert.Equal(t, 2, stats.Skipped)
	assert.Equal(t, 1, stats.Copied)
	assert.Equal(t, 1, user.Count())
}

func TestMerge_EmptyGuestIsNoop(t *testing.T) {
	guest := NewGuestCart(NewGuestToken())
	user := NewUserCart(7)
	user.Add(ItemKey{Type: "product", ID: 1}, 2, dec("10.00"), nil)

	stats := Merge(guest, user)

	assert.Equal(t, MergeStats{}, stats)
	assert.Equal(t, 2, user.Item(ItemKey{Type: "product", ID: 1}).Quantity)
}
