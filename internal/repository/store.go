package repository

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront-recs/internal/domain/catalog"
)

const (
	getUserSQL = `SELECT id, name, email, created_at FROM users WHERE id = $1`

	getCategorySQL = `SELECT id, name FROM categories WHERE id = $1`

	userOrdersSQL = `SELECT id, user_id, status, created_at
		FROM orders WHERE user_id = $1 ORDER BY created_at DESC`

	userLinesSQL = `SELECT ol.order_id, ol.product_id, p.category_id, ol.quantity
		FROM order_lines ol
		JOIN orders o ON o.id = ol.order_id
		JOIN products p ON p.id = ol.product_id
		WHERE o.user_id = $1`

	userWishlistSQL = `SELECT w.product_id, p.category_id
		FROM wishlists w
		JOIN products p ON p.id = w.product_id
		WHERE w.user_id = $1
		ORDER BY w.added_at`
)

var _ catalog.Repository = (*Store)(nil)

// Store implements catalog.Repository backed by PostgreSQL. Every query
// is bounded by the configured read timeout.
type Store struct {
	pool        *pgxpool.Pool
	readTimeout time.Duration
}

// NewStore returns a Store using the given pool. A non-positive
// readTimeout falls back to DefaultReadTimeout.
func NewStore(pool *pgxpool.Pool, readTimeout time.Duration) *Store {
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	return &Store{pool: pool, readTimeout: readTimeout}
}

func (s *Store) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.readTimeout)
}

// GetCategory returns a single category by its identifier.
func (s *Store) GetCategory(ctx context.Context, id string) (*catalog.Category, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, getCategorySQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "getting category %q", id)
	}

	c, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (catalog.Category, error) {
		var c catalog.Category
		err := row.Scan(&c.ID, &c.Name)
		return c, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrCategoryNotFound
		}
		return nil, errors.Wrapf(err, "getting category %q", id)
	}
	return &c, nil
}

// UserProfile loads the user row, order history, order lines joined
// with product categories, and wishlist. A fixed four queries, however
// large the history.
func (s *Store) UserProfile(ctx context.Context, userID string) (*catalog.Profile, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, getUserSQL, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "getting user %q", userID)
	}
	u, err := pgx.CollectExactlyOneRow(rows, scanUser)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrUserNotFound
		}
		return nil, errors.Wrapf(err, "getting user %q", userID)
	}

	profile := &catalog.Profile{User: u}

	rows, err = s.pool.Query(ctx, userOrdersSQL, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "listing orders for user %q", userID)
	}
	profile.Orders, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.Order, error) {
		var o catalog.Order
		err := row.Scan(&o.ID, &o.UserID, &o.Status, &o.CreatedAt)
		return o, err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "listing orders for user %q", userID)
	}

	rows, err = s.pool.Query(ctx, userLinesSQL, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "listing order lines for user %q", userID)
	}
	profile.Lines, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.PurchasedLine, error) {
		var l catalog.PurchasedLine
		err := row.Scan(&l.OrderID, &l.ProductID, &l.CategoryID, &l.Quantity)
		return l, err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "listing order lines for user %q", userID)
	}

	rows, err = s.pool.Query(ctx, userWishlistSQL, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "listing wishlist for user %q", userID)
	}
	profile.Wishlist, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.WishlistItem, error) {
		var w catalog.WishlistItem
		err := row.Scan(&w.ProductID, &w.CategoryID)
		return w, err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "listing wishlist for user %q", userID)
	}

	return profile, nil
}

func scanUser(row pgx.CollectableRow) (catalog.User, error) {
	var u catalog.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.CreatedAt)
	return u, err
}
