package catalog

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrProductNotFound is returned when a requested product does not exist.
var ErrProductNotFound = errors.New("product not found")

// ErrCategoryNotFound is returned when a requested category does not exist.
var ErrCategoryNotFound = errors.New("category not found")

// Product represents a catalog item available for purchase.
//
// TimesOrdered is the number of historical order lines referencing the
// product. It is populated by every product query so that downstream
// scoring never needs a second round trip.
type Product struct {
	ID           string
	Name         string
	Price        decimal.Decimal
	CategoryID   string
	Stock        int
	CreatedAt    time.Time
	TimesOrdered int
}

// InStock reports whether the product can currently be purchased.
func (p Product) InStock() bool {
	return p.Stock > 0
}

// Category is a flat grouping key for products.
type Category struct {
	ID   string
	Name string
}
