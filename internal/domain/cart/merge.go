package cart

// MergeStats describes the outcome of folding a guest cart into a user cart.
type MergeStats struct {
	// Folded counts guest lines whose quantity was added to an existing user
	// line with the same key.
	Folded int
	// Copied counts guest lines that had no user counterpart and were copied
	// verbatim.
	Copied int
	// Skipped counts malformed guest lines (zero item key) dropped from the
	// merge. Skipping is a data-integrity recovery, not an error; the count is
	// surfaced so operators can observe it.
	Skipped int
}

// Merge folds every line of the guest cart into the user cart: quantities of
// matching keys accumulate, unmatched lines are copied verbatim (key,
// quantity, price snapshot, options), and the resulting discount is the
// greater of the two carts' discounts. Malformed guest lines are skipped and
// counted rather than aborting the merge.
//
// Merge mutates user in memory only; persisting the merged cart and deleting
// the guest cart is the storage backend's job.
func Merge(guest, user *Cart) MergeStats {
	var stats MergeStats
	for i := range guest.Items {
		gi := &guest.Items[i]
		if gi.Key.Zero() {
			stats.Skipped++
			continue
		}
		if item := user.Item(gi.Key); item != nil {
			item.Quantity += gi.Quantity
			stats.Folded++
			continue
		}
		user.Items = append(user.Items, CartItem{
			Key:      gi.Key,
			Quantity: gi.Quantity,
			Price:    gi.Price,
			Options:  gi.Options,
		})
		stats.Copied++
	}

	// Merge never silently drops the better discount.
	if guest.DiscountPercent.GreaterThan(user.DiscountPercent) {
		user.DiscountPercent = guest.DiscountPercent
	}
	return stats
}
