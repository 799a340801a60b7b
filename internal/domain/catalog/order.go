package catalog

import "time"

// Order is a historical purchase belonging to exactly one user. Orders
// and their lines are immutable facts as far as this engine is
// concerned; the lifecycle status is carried but never interpreted.
type Order struct {
	ID        string
	UserID    string
	Status    string
	CreatedAt time.Time
}

// PurchasedLine is one order line joined with the purchased product's
// category. The join happens in the store so profile assembly stays a
// fixed number of queries regardless of history size.
type PurchasedLine struct {
	OrderID    string
	ProductID  string
	CategoryID string
	Quantity   int
}

// Purchase is a flattened purchase fact used by batch queries: which
// user bought which product in which order.
type Purchase struct {
	UserID    string
	OrderID   string
	ProductID string
	Quantity  int
}
