package catalog

import (
	"time"

	"github.com/go-faster/errors"
)

// ErrUserNotFound is returned when a requested user does not exist.
var ErrUserNotFound = errors.New("user not found")

// User represents a registered customer.
type User struct {
	ID        string
	Name      string
	Email     string
	CreatedAt time.Time
}

// WishlistItem is a wishlisted product reference together with the
// product's category, so category seeds can be derived without another
// lookup. A user's wishlist never contains duplicate products.
type WishlistItem struct {
	ProductID  string
	CategoryID string
}

// Profile is everything the recommendation engine needs to know about a
// user: identity, order history with lines, and wishlist. It is loaded
// once per request and treated as immutable afterwards.
type Profile struct {
	User     User
	Orders   []Order
	Lines    []PurchasedLine
	Wishlist []WishlistItem
}

// ProductIDSet returns the set of product ids the user has purchased.
func (p *Profile) ProductIDSet() map[string]struct{} {
	set := make(map[string]struct{}, len(p.Lines))
	for _, l := range p.Lines {
		set[l.ProductID] = struct{}{}
	}
	return set
}

// PurchasedProductIDs returns the purchased product ids, deduplicated,
// in first-seen order.
func (p *Profile) PurchasedProductIDs() []string {
	seen := make(map[string]struct{}, len(p.Lines))
	ids := make([]string, 0, len(p.Lines))
	for _, l := range p.Lines {
		if _, ok := seen[l.ProductID]; ok {
			continue
		}
		seen[l.ProductID] = struct{}{}
		ids = append(ids, l.ProductID)
	}
	return ids
}

// CategorySet returns the set of category ids derived from the user's
// purchase history.
func (p *Profile) CategorySet() map[string]struct{} {
	set := make(map[string]struct{}, len(p.Lines))
	for _, l := range p.Lines {
		set[l.CategoryID] = struct{}{}
	}
	return set
}

// CategoryIDs returns the purchase-history category ids, deduplicated,
// in first-seen order.
func (p *Profile) CategoryIDs() []string {
	seen := make(map[string]struct{}, len(p.Lines))
	ids := make([]string, 0, len(p.Lines))
	for _, l := range p.Lines {
		if _, ok := seen[l.CategoryID]; ok {
			continue
		}
		seen[l.CategoryID] = struct{}{}
		ids = append(ids, l.CategoryID)
	}
	return ids
}

// WishlistProductIDs returns the wishlisted product ids in list order.
func (p *Profile) WishlistProductIDs() []string {
	ids := make([]string, len(p.Wishlist))
	for i, w := range p.Wishlist {
		ids[i] = w.ProductID
	}
	return ids
}

// WishlistCategoryIDs returns the wishlist category ids, deduplicated,
// in first-seen order.
func (p *Profile) WishlistCategoryIDs() []string {
	seen := make(map[string]struct{}, len(p.Wishlist))
	ids := make([]string, 0, len(p.Wishlist))
	for _, w := range p.Wishlist {
		if _, ok := seen[w.CategoryID]; ok {
			continue
		}
		seen[w.CategoryID] = struct{}{}
		ids = append(ids, w.CategoryID)
	}
	return ids
}
