package catalog

import (
	"context"

	"github.com/go-faster/errors"
)

// Repository enumerates every read shape the recommendation engine
// issues against the catalog/order store. Each query accepts explicit
// filters and a result cap; none of them ever writes.
//
// Queries that feed shopper-facing recommendations only return products
// with positive stock. The two exceptions are ProductsByIDs and
// CoPurchasedLines, which back the co-purchase lookup and may surface
// anything that was ever ordered.
//
// A missing anchor entity (the user, product, or category the request
// is about) is reported with the matching ErrXxxNotFound sentinel.
// Every other empty result is an empty slice, not an error.
type Repository interface {
	// GetProduct returns the product with the given id.
	GetProduct(ctx context.Context, id string) (*Product, error)
	// GetCategory returns the category with the given id.
	GetCategory(ctx context.Context, id string) (*Category, error)
	// UserProfile loads a user together with their orders, order lines
	// (joined with product categories), and wishlist.
	UserProfile(ctx context.Context, userID string) (*Profile, error)

	// RecentPurchasers returns up to limit users other than excludeUserID
	// that have placed at least one order, most recently active first.
	RecentPurchasers(ctx context.Context, excludeUserID string, limit int) ([]User, error)
	// PurchasesByUsers returns all purchase facts for the given users in
	// a single in-list query.
	PurchasesByUsers(ctx context.Context, userIDs []string) ([]Purchase, error)

	// InStockByCategories returns up to limit in-stock products in any of
	// the given categories, excluding the given product ids.
	InStockByCategories(ctx context.Context, categoryIDs, excludeProductIDs []string, limit int) ([]Product, error)
	// InStockByIDs returns the in-stock subset of the given product ids,
	// excluding the given exclusions, up to limit.
	InStockByIDs(ctx context.Context, productIDs, excludeProductIDs []string, limit int) ([]Product, error)
	// TrendingByCategories returns up to limit in-stock products in the
	// given categories ordered by total quantity sold descending, then by
	// creation recency.
	TrendingByCategories(ctx context.Context, categoryIDs []string, limit int) ([]Product, error)

	// CoPurchasedLines returns every line of every order that contains
	// the given product, including the anchor's own lines.
	CoPurchasedLines(ctx context.Context, productID string) ([]Purchase, error)
	// ProductsByIDs returns the given products regardless of stock.
	ProductsByIDs(ctx context.Context, ids []string) ([]Product, error)
}

// IsNotFound reports whether err is any of the anchor-missing sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrCategoryNotFound)
}
