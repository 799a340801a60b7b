package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront-recs/internal/domain/catalog"
)

const (
	recentPurchasersSQL = `SELECT u.id, u.name, u.email, u.created_at
		FROM users u
		WHERE u.id <> $1
		  AND EXISTS (SELECT 1 FROM orders o WHERE o.user_id = u.id)
		ORDER BY (SELECT MAX(o.created_at) FROM orders o WHERE o.user_id = u.id) DESC
		LIMIT $2`

	purchasesByUsersSQL = `SELECT o.user_id, ol.order_id, ol.product_id, ol.quantity
		FROM order_lines ol
		JOIN orders o ON o.id = ol.order_id
		WHERE o.user_id = ANY($1)`

	coPurchasedLinesSQL = `SELECT o.user_id, ol.order_id, ol.product_id, ol.quantity
		FROM order_lines ol
		JOIN orders o ON o.id = ol.order_id
		WHERE ol.order_id IN (
			SELECT order_id FROM order_lines WHERE product_id = $1
		)`
)

// RecentPurchasers returns users other than excludeUserID that have at
// least one order, most recently active first.
func (s *Store) RecentPurchasers(ctx context.Context, excludeUserID string, limit int) ([]catalog.User, error) {
	if limit <= 0 {
		return nil, nil
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, recentPurchasersSQL, excludeUserID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "listing recent purchasers")
	}
	return pgx.CollectRows(rows, scanUser)
}

// PurchasesByUsers returns all purchase facts for the given users in a
// single in-list query.
func (s *Store) PurchasesByUsers(ctx context.Context, userIDs []string) ([]catalog.Purchase, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, purchasesByUsersSQL, userIDs)
	if err != nil {
		return nil, errors.Wrap(err, "listing purchases by users")
	}
	return pgx.CollectRows(rows, scanPurchase)
}

// CoPurchasedLines returns every line of every order containing the
// given product, the anchor's own lines included.
func (s *Store) CoPurchasedLines(ctx context.Context, productID string) ([]catalog.Purchase, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, coPurchasedLinesSQL, productID)
	if err != nil {
		return nil, errors.Wrapf(err, "listing co-purchases for product %q", productID)
	}
	return pgx.CollectRows(rows, scanPurchase)
}

func scanPurchase(row pgx.CollectableRow) (catalog.Purchase, error) {
	var p catalog.Purchase
	err := row.Scan(&p.UserID, &p.OrderID, &p.ProductID, &p.Quantity)
	return p, err
}
