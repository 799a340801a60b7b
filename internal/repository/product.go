package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-recs/internal/domain/catalog"
)

// productColumns is shared by every product query so all of them carry
// the order-line count needed for relevance scoring.
const productColumns = `p.id, p.name, p.price, p.category_id, p.stock, p.created_at,
	(SELECT COUNT(*) FROM order_lines ol WHERE ol.product_id = p.id) AS times_ordered`

const (
	getProductSQL = `SELECT ` + productColumns + ` FROM products p WHERE p.id = $1`

	productsByIDsSQL = `SELECT ` + productColumns + ` FROM products p WHERE p.id = ANY($1)`

	inStockByCategoriesSQL = `SELECT ` + productColumns + `
		FROM products p
		WHERE p.category_id = ANY($1)
		  AND p.stock > 0
		  AND NOT (p.id = ANY($2))
		ORDER BY p.created_at DESC
		LIMIT $3`

	inStockByIDsSQL = `SELECT ` + productColumns + `
		FROM products p
		WHERE p.id = ANY($1)
		  AND p.stock > 0
		  AND NOT (p.id = ANY($2))
		ORDER BY p.created_at DESC
		LIMIT $3`

	trendingByCategoriesSQL = `SELECT ` + productColumns + `
		FROM products p
		LEFT JOIN (
			SELECT product_id, SUM(quantity) AS sold
			FROM order_lines
			GROUP BY product_id
		) s ON s.product_id = p.id
		WHERE p.category_id = ANY($1)
		  AND p.stock > 0
		ORDER BY COALESCE(s.sold, 0) DESC, p.created_at DESC
		LIMIT $2`
)

// GetProduct returns a single product by its identifier.
func (s *Store) GetProduct(ctx context.Context, id string) (*catalog.Product, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, getProductSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "getting product %q", id)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrProductNotFound
		}
		return nil, errors.Wrapf(err, "getting product %q", id)
	}
	return &p, nil
}

// ProductsByIDs returns the given products regardless of stock level.
func (s *Store) ProductsByIDs(ctx context.Context, ids []string) ([]catalog.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, productsByIDsSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "getting products by ids")
	}
	return pgx.CollectRows(rows, scanProduct)
}

// InStockByCategories returns in-stock products in any of the given
// categories, excluding the given product ids, newest first.
func (s *Store) InStockByCategories(ctx context.Context, categoryIDs, excludeProductIDs []string, limit int) ([]catalog.Product, error) {
	if len(categoryIDs) == 0 || limit <= 0 {
		return nil, nil
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, inStockByCategoriesSQL, categoryIDs, emptyAsSlice(excludeProductIDs), limit)
	if err != nil {
		return nil, errors.Wrap(err, "listing products by categories")
	}
	return pgx.CollectRows(rows, scanProduct)
}

// InStockByIDs returns the in-stock subset of the given product ids,
// excluding the given exclusions.
func (s *Store) InStockByIDs(ctx context.Context, productIDs, excludeProductIDs []string, limit int) ([]catalog.Product, error) {
	if len(productIDs) == 0 || limit <= 0 {
		return nil, nil
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, inStockByIDsSQL, productIDs, emptyAsSlice(excludeProductIDs), limit)
	if err != nil {
		return nil, errors.Wrap(err, "listing products by ids")
	}
	return pgx.CollectRows(rows, scanProduct)
}

// TrendingByCategories returns in-stock products in the given
// categories ordered by aggregate quantity sold, then recency.
func (s *Store) TrendingByCategories(ctx context.Context, categoryIDs []string, limit int) ([]catalog.Product, error) {
	if len(categoryIDs) == 0 || limit <= 0 {
		return nil, nil
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, trendingByCategoriesSQL, categoryIDs, limit)
	if err != nil {
		return nil, errors.Wrap(err, "listing trending products")
	}
	return pgx.CollectRows(rows, scanProduct)
}

func scanProduct(row pgx.CollectableRow) (catalog.Product, error) {
	var (
		p     catalog.Product
		price decimal.Decimal
	)
	err := row.Scan(
		&p.ID, &p.Name, &price, &p.CategoryID,
		&p.Stock, &p.CreatedAt, &p.TimesOrdered,
	)
	p.Price = price
	return p, err
}

// emptyAsSlice keeps ANY($n) well-typed when there is nothing to
// exclude.
func emptyAsSlice(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
