package recommend

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xenking/storefront-recs/internal/domain/catalog"
)

// --- Fake catalog store ---

type fakeCatalog struct {
	profiles   map[string]*catalog.Profile
	products   map[string]catalog.Product
	categories map[string]catalog.Category
	pool       []catalog.User
	purchases  []catalog.Purchase

	trendingErr   error
	byCategoryErr error
	coPurchaseErr error
	purchasesErr  error

	// Guards the recorded call arguments below; generators run
	// concurrently.
	mu              sync.Mutex
	trendingSeeds   []string
	trendingLimit   int
	byCategoryLimit int
}

func (f *fakeCatalog) GetProduct(_ context.Context, id string) (*catalog.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, catalog.ErrProductNotFound
	}
	return &p, nil
}

func (f *fakeCatalog) GetCategory(_ context.Context, id string) (*catalog.Category, error) {
	c, ok := f.categories[id]
	if !ok {
		return nil, catalog.ErrCategoryNotFound
	}
	return &c, nil
}

func (f *fakeCatalog) UserProfile(_ context.Context, userID string) (*catalog.Profile, error) {
	p, ok := f.profiles[userID]
	if !ok {
		return nil, catalog.ErrUserNotFound
	}
	return p, nil
}

func (f *fakeCatalog) RecentPurchasers(_ context.Context, excludeUserID string, limit int) ([]catalog.User, error) {
	var out []catalog.User
	for _, u := range f.pool {
		if u.ID == excludeUserID {
			continue
		}
		out = append(out, u)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeCatalog) PurchasesByUsers(_ context.Context, userIDs []string) ([]catalog.Purchase, error) {
	if f.purchasesErr != nil {
		return nil, f.purchasesErr
	}
	want := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		want[id] = struct{}{}
	}
	var out []catalog.Purchase
	for _, p := range f.purchases {
		if _, ok := want[p.UserID]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeCatalog) InStockByCategories(_ context.Context, categoryIDs, excludeProductIDs []string, limit int) ([]catalog.Product, error) {
	if f.byCategoryErr != nil {
		return nil, f.byCategoryErr
	}
	f.mu.Lock()
	f.byCategoryLimit = limit
	f.mu.Unlock()
	return f.inStockByCategories(categoryIDs, excludeProductIDs, limit), nil
}

func (f *fakeCatalog) inStockByCategories(categoryIDs, excludeProductIDs []string, limit int) []catalog.Product {
	cats := toSet(categoryIDs)
	excl := toSet(excludeProductIDs)
	var out []catalog.Product
	for _, p := range f.orderedProducts() {
		if _, ok := cats[p.CategoryID]; !ok {
			continue
		}
		if _, ok := excl[p.ID]; ok {
			continue
		}
		if p.Stock <= 0 {
			continue
		}
		out = append(out, p)
		if len(out) == limit {
			break
		}
	}
	return out
}

func (f *fakeCatalog) InStockByIDs(_ context.Context, productIDs, excludeProductIDs []string, limit int) ([]catalog.Product, error) {
	want := toSet(productIDs)
	excl := toSet(excludeProductIDs)
	var out []catalog.Product
	for _, p := range f.orderedProducts() {
		if _, ok := want[p.ID]; !ok {
			continue
		}
		if _, ok := excl[p.ID]; ok {
			continue
		}
		if p.Stock <= 0 {
			continue
		}
		out = append(out, p)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeCatalog) TrendingByCategories(_ context.Context, categoryIDs []string, limit int) ([]catalog.Product, error) {
	if f.trendingErr != nil {
		return nil, f.trendingErr
	}
	f.mu.Lock()
	f.trendingSeeds = append([]string(nil), categoryIDs...)
	f.trendingLimit = limit
	f.mu.Unlock()
	return f.inStockByCategories(categoryIDs, nil, limit), nil
}

func (f *fakeCatalog) CoPurchasedLines(_ context.Context, productID string) ([]catalog.Purchase, error) {
	if f.coPurchaseErr != nil {
		return nil, f.coPurchaseErr
	}
	orders := make(map[string]struct{})
	for _, p := range f.purchases {
		if p.ProductID == productID {
			orders[p.OrderID] = struct{}{}
		}
	}
	var out []catalog.Purchase
	for _, p := range f.purchases {
		if _, ok := orders[p.OrderID]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeCatalog) ProductsByIDs(_ context.Context, ids []string) ([]catalog.Product, error) {
	var out []catalog.Product
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// orderedProducts returns products sorted by id so fake query results
// are deterministic.
func (f *fakeCatalog) orderedProducts() []catalog.Product {
	ids := make([]string, 0, len(f.products))
	for id := range f.products {
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j] < ids[j-1]; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
	out := make([]catalog.Product, len(ids))
	for i, id := range ids {
		out[i] = f.products[id]
	}
	return out
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// --- Helpers ---

func newTestProduct(id, categoryID string, stock, timesOrdered int, createdAt time.Time) catalog.Product {
	return catalog.Product{
		ID:           id,
		Name:         "Product " + id,
		Price:        decimal.RequireFromString("9.99"),
		CategoryID:   categoryID,
		Stock:        stock,
		TimesOrdered: timesOrdered,
		CreatedAt:    createdAt,
	}
}

func newService(f *fakeCatalog) *Service {
	return NewService(f, zap.NewNop())
}

// --- Tests ---

func TestForUser_UnknownUser(t *testing.T) {
	svc := newService(&fakeCatalog{profiles: map[string]*catalog.Profile{}})

	_, err := svc.ForUser(context.Background(), "ghost", 0)
	require.ErrorIs(t, err, catalog.ErrUserNotFound)
}

func TestForUser_NoOrdersNoWishlist(t *testing.T) {
	f := &fakeCatalog{
		profiles: map[string]*catalog.Profile{
			"u1": {User: catalog.User{ID: "u1"}},
		},
		products: map[string]catalog.Product{},
	}
	svc := newService(f)

	res, err := svc.ForUser(context.Background(), "u1", 0)
	require.NoError(t, err)
	assert.Empty(t, res.PurchaseHistory)
	assert.Empty(t, res.Wishlist)
	assert.Empty(t, res.SimilarUsers)
	assert.Empty(t, res.Trending)
	assert.Empty(t, res.RecentlyViewed)
}

func TestForUser_PurchaseHistorySection(t *testing.T) {
	now := time.Now()
	f := &fakeCatalog{
		profiles: map[string]*catalog.Profile{
			"u1": {
				User:   catalog.User{ID: "u1"},
				Orders: []catalog.Order{{ID: "o1", UserID: "u1"}},
				Lines: []catalog.PurchasedLine{
					{OrderID: "o1", ProductID: "p1", CategoryID: "c1", Quantity: 1},
					{OrderID: "o1", ProductID: "p2", CategoryID: "c1", Quantity: 1},
				},
			},
		},
		products: map[string]catalog.Product{
			"p1": newTestProduct("p1", "c1", 3, 1, now.Add(-200*24*time.Hour)),
			"p2": newTestProduct("p2", "c1", 3, 1, now.Add(-200*24*time.Hour)),
			// Never purchased, in stock, created today.
			"p3": newTestProduct("p3", "c1", 5, 0, now),
		},
	}
	svc := newService(f)

	res, err := svc.ForUser(context.Background(), "u1", 10)
	require.NoError(t, err)
	require.Len(t, res.PurchaseHistory, 1)

	got := res.PurchaseHistory[0]
	assert.Equal(t, "p3", got.Product.ID)
	// Category affinity (+50), created today (+20), in stock (+15).
	assert.GreaterOrEqual(t, got.RelevanceScore, float64(70))
}

func TestForUser_WishlistSection(t *testing.T) {
	now := time.Now()
	f := &fakeCatalog{
		profiles: map[string]*catalog.Profile{
			"u1": {
				User:     catalog.User{ID: "u1"},
				Wishlist: []catalog.WishlistItem{{ProductID: "p1", CategoryID: "c1"}},
			},
		},
		products: map[string]catalog.Product{
			"p1": newTestProduct("p1", "c1", 3, 0, now),
			"p2": newTestProduct("p2", "c1", 3, 0, now),
		},
	}
	svc := newService(f)

	res, err := svc.ForUser(context.Background(), "u1", 10)
	require.NoError(t, err)
	require.Len(t, res.Wishlist, 1)
	// The wishlisted product itself is excluded.
	assert.Equal(t, "p2", res.Wishlist[0].Product.ID)
}

func TestForUser_FailingGeneratorDegradesToEmptySection(t *testing.T) {
	now := time.Now()
	f := &fakeCatalog{
		profiles: map[string]*catalog.Profile{
			"u1": {
				User:   catalog.User{ID: "u1"},
				Orders: []catalog.Order{{ID: "o1", UserID: "u1"}},
				Lines: []catalog.PurchasedLine{
					{OrderID: "o1", ProductID: "p1", CategoryID: "c1", Quantity: 1},
				},
			},
		},
		products: map[string]catalog.Product{
			"p1": newTestProduct("p1", "c1", 3, 1, now),
			"p2": newTestProduct("p2", "c1", 3, 0, now),
		},
		trendingErr: errors.New("store timeout"),
	}
	svc := newService(f)

	res, err := svc.ForUser(context.Background(), "u1", 10)
	require.NoError(t, err)
	assert.Empty(t, res.Trending)
	assert.NotEmpty(t, res.PurchaseHistory)
}

func TestForUser_TrendingSeedUnionsHistoryAndWishlist(t *testing.T) {
	now := time.Now()
	f := &fakeCatalog{
		profiles: map[string]*catalog.Profile{
			"u1": {
				User:   catalog.User{ID: "u1"},
				Orders: []catalog.Order{{ID: "o1", UserID: "u1"}},
				Lines: []catalog.PurchasedLine{
					{OrderID: "o1", ProductID: "p1", CategoryID: "c1", Quantity: 1},
				},
				Wishlist: []catalog.WishlistItem{
					{ProductID: "w1", CategoryID: "c2"},
					// Overlaps the purchase-history category.
					{ProductID: "w2", CategoryID: "c1"},
				},
			},
		},
		products: map[string]catalog.Product{
			"p1": newTestProduct("p1", "c1", 3, 1, now),
			"t1": newTestProduct("t1", "c1", 3, 4, now),
			"t2": newTestProduct("t2", "c2", 3, 2, now),
			"w1": newTestProduct("w1", "c2", 3, 1, now),
			"w2": newTestProduct("w2", "c1", 3, 1, now),
		},
	}
	svc := newService(f)

	res, err := svc.ForUser(context.Background(), "u1", 10)
	require.NoError(t, err)

	// The seed is the deduplicated union: c1 appears in both history and
	// wishlist but is queried once.
	assert.Equal(t, []string{"c1", "c2"}, f.trendingSeeds)

	cats := make(map[string]struct{})
	for _, c := range res.Trending {
		cats[c.Product.CategoryID] = struct{}{}
	}
	assert.Contains(t, cats, "c1")
	assert.Contains(t, cats, "c2")
}

func TestForUser_DefaultLimit(t *testing.T) {
	now := time.Now()
	f := &fakeCatalog{
		profiles: map[string]*catalog.Profile{
			"u1": {
				User:   catalog.User{ID: "u1"},
				Orders: []catalog.Order{{ID: "o1", UserID: "u1"}},
				Lines: []catalog.PurchasedLine{
					{OrderID: "o1", ProductID: "p1", CategoryID: "c1", Quantity: 1},
				},
			},
		},
		products: map[string]catalog.Product{
			"p1": newTestProduct("p1", "c1", 3, 1, now),
		},
	}
	svc := newService(f)

	_, err := svc.ForUser(context.Background(), "u1", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultUserLimit, f.byCategoryLimit)
	assert.Equal(t, DefaultUserLimit, f.trendingLimit)
}

func TestForProduct_UnknownAnchor(t *testing.T) {
	svc := newService(&fakeCatalog{products: map[string]catalog.Product{}})

	_, err := svc.ForProduct(context.Background(), "ghost", 0)
	require.ErrorIs(t, err, catalog.ErrProductNotFound)
}

func TestForProduct_CombinesCategoryAndCoPurchase(t *testing.T) {
	now := time.Now()
	f := &fakeCatalog{
		products: map[string]catalog.Product{
			"x": newTestProduct("x", "c1", 3, 2, now),
			"a": newTestProduct("a", "c1", 3, 0, now),
			"b": newTestProduct("b", "c2", 3, 1, now),
		},
		purchases: []catalog.Purchase{
			{UserID: "u1", OrderID: "o1", ProductID: "x", Quantity: 1},
			{UserID: "u1", OrderID: "o1", ProductID: "b", Quantity: 1},
		},
	}
	svc := newService(f)

	cs, err := svc.ForProduct(context.Background(), "x", 6)
	require.NoError(t, err)

	ids := candidateIDs(cs)
	assert.ElementsMatch(t, []string{"a", "b"}, ids)
	assert.NotContains(t, ids, "x")
}

func TestForProduct_DefaultLimitAndSplit(t *testing.T) {
	f := &fakeCatalog{
		products: map[string]catalog.Product{
			"x": newTestProduct("x", "c1", 3, 0, time.Now()),
		},
	}
	svc := newService(f)

	_, err := svc.ForProduct(context.Background(), "x", 0)
	require.NoError(t, err)
	// Half the slots go to same-category candidates, the rest to
	// co-purchase ones.
	assert.Equal(t, DefaultProductLimit/2, f.byCategoryLimit)
}

func TestForCategory_UnknownAnchor(t *testing.T) {
	svc := newService(&fakeCatalog{categories: map[string]catalog.Category{}})

	_, err := svc.ForCategory(context.Background(), "ghost", 0)
	require.ErrorIs(t, err, catalog.ErrCategoryNotFound)
}

func TestForCategory_RanksInStockProducts(t *testing.T) {
	now := time.Now()
	f := &fakeCatalog{
		categories: map[string]catalog.Category{"c1": {ID: "c1", Name: "Coffee"}},
		products: map[string]catalog.Product{
			"p1": newTestProduct("p1", "c1", 3, 5, now),
			"p2": newTestProduct("p2", "c1", 0, 9, now), // out of stock
			"p3": newTestProduct("p3", "c1", 3, 1, now),
		},
	}
	svc := newService(f)

	cs, err := svc.ForCategory(context.Background(), "c1", 8)
	require.NoError(t, err)

	require.Len(t, cs, 2)
	// p1 has more order lines, so it outranks p3.
	assert.Equal(t, "p1", cs[0].Product.ID)
	assert.Equal(t, "p3", cs[1].Product.ID)
}

func TestForCategory_DefaultLimit(t *testing.T) {
	f := &fakeCatalog{
		categories: map[string]catalog.Category{"c1": {ID: "c1", Name: "Coffee"}},
		products:   map[string]catalog.Product{},
	}
	svc := newService(f)

	_, err := svc.ForCategory(context.Background(), "c1", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultCategoryLimit, f.trendingLimit)
}

func TestFrequentlyBoughtTogether_CountsDistinctOrders(t *testing.T) {
	now := time.Now()
	f := &fakeCatalog{
		products: map[string]catalog.Product{
			"x": newTestProduct("x", "c1", 3, 3, now),
			"y": newTestProduct("y", "c1", 3, 2, now),
			"z": newTestProduct("z", "c1", 0, 2, now),
		},
		purchases: []catalog.Purchase{
			// O1 = {X, Y}, O2 = {X, Y, Z}, O3 = {X, Z}
			{UserID: "u1", OrderID: "o1", ProductID: "x", Quantity: 1},
			{UserID: "u1", OrderID: "o1", ProductID: "y", Quantity: 1},
			{UserID: "u2", OrderID: "o2", ProductID: "x", Quantity: 1},
			{UserID: "u2", OrderID: "o2", ProductID: "y", Quantity: 1},
			{UserID: "u2", OrderID: "o2", ProductID: "z", Quantity: 1},
			{UserID: "u3", OrderID: "o3", ProductID: "x", Quantity: 1},
			{UserID: "u3", OrderID: "o3", ProductID: "z", Quantity: 1},
		},
	}
	svc := newService(f)

	cs, err := svc.FrequentlyBoughtTogether(context.Background(), "x", 2)
	require.NoError(t, err)

	ids := candidateIDs(cs)
	assert.ElementsMatch(t, []string{"y", "z"}, ids)
	assert.NotContains(t, ids, "x")
}

func TestFrequentlyBoughtTogether_SurfacesOutOfStock(t *testing.T) {
	now := time.Now()
	f := &fakeCatalog{
		products: map[string]catalog.Product{
			"x": newTestProduct("x", "c1", 3, 1, now),
			"y": newTestProduct("y", "c1", 0, 1, now),
		},
		purchases: []catalog.Purchase{
			{UserID: "u1", OrderID: "o1", ProductID: "x", Quantity: 1},
			{UserID: "u1", OrderID: "o1", ProductID: "y", Quantity: 1},
		},
	}
	svc := newService(f)

	cs, err := svc.FrequentlyBoughtTogether(context.Background(), "x", 4)
	require.NoError(t, err)

	// Co-purchase is driven by order history, not current availability.
	require.Len(t, cs, 1)
	assert.Equal(t, "y", cs[0].Product.ID)
	assert.Equal(t, 0, cs[0].Product.Stock)
}

func TestFrequentlyBoughtTogether_DefaultLimit(t *testing.T) {
	now := time.Now()
	products := map[string]catalog.Product{
		"x": newTestProduct("x", "c1", 3, 5, now),
	}
	var purchases []catalog.Purchase
	for i := 1; i <= 5; i++ {
		id := fmt.Sprintf("y%d", i)
		order := fmt.Sprintf("o%d", i)
		products[id] = newTestProduct(id, "c1", 3, 1, now)
		purchases = append(purchases,
			catalog.Purchase{UserID: "u1", OrderID: order, ProductID: "x", Quantity: 1},
			catalog.Purchase{UserID: "u1", OrderID: order, ProductID: id, Quantity: 1},
		)
	}
	svc := newService(&fakeCatalog{products: products, purchases: purchases})

	cs, err := svc.FrequentlyBoughtTogether(context.Background(), "x", 0)
	require.NoError(t, err)
	assert.Len(t, cs, DefaultCoPurchaseLimit)
}

func TestFindSimilarUsers_DefaultLimit(t *testing.T) {
	f := &fakeCatalog{
		profiles: map[string]*catalog.Profile{
			"u1": {
				User:   catalog.User{ID: "u1"},
				Orders: []catalog.Order{{ID: "o0", UserID: "u1"}},
				Lines: []catalog.PurchasedLine{
					{OrderID: "o0", ProductID: "p1", CategoryID: "c1", Quantity: 1},
				},
			},
		},
	}
	for i := 1; i <= 6; i++ {
		id := fmt.Sprintf("v%d", i)
		f.pool = append(f.pool, catalog.User{ID: id})
		f.purchases = append(f.purchases, catalog.Purchase{
			UserID: id, OrderID: fmt.Sprintf("o%d", i), ProductID: "p1", Quantity: 1,
		})
	}
	svc := newService(f)

	sims, err := svc.FindSimilarUsers(context.Background(), "u1", 0)
	require.NoError(t, err)
	assert.Len(t, sims, DefaultSimilarUsersLimit)
}

func TestFrequentlyBoughtTogether_NeverOrderedAnchor(t *testing.T) {
	f := &fakeCatalog{
		products: map[string]catalog.Product{
			"x": newTestProduct("x", "c1", 3, 0, time.Now()),
		},
	}
	svc := newService(f)

	cs, err := svc.FrequentlyBoughtTogether(context.Background(), "x", 0)
	require.NoError(t, err)
	assert.Empty(t, cs)
}

func TestFrequentlyBoughtTogether_UnknownAnchor(t *testing.T) {
	svc := newService(&fakeCatalog{products: map[string]catalog.Product{}})

	_, err := svc.FrequentlyBoughtTogether(context.Background(), "ghost", 0)
	require.ErrorIs(t, err, catalog.ErrProductNotFound)
}

func TestCoPurchaseFrequencies(t *testing.T) {
	lines := []catalog.Purchase{
		{OrderID: "o1", ProductID: "x"},
		{OrderID: "o1", ProductID: "y"},
		{OrderID: "o2", ProductID: "x"},
		{OrderID: "o2", ProductID: "y"},
		{OrderID: "o2", ProductID: "z"},
		{OrderID: "o3", ProductID: "x"},
		{OrderID: "o3", ProductID: "z"},
	}

	freq, ids := coPurchaseFrequencies(lines, "x")

	assert.ElementsMatch(t, []string{"y", "z"}, ids)
	assert.Equal(t, 2, freq["y"])
	assert.Equal(t, 2, freq["z"])
	assert.NotContains(t, freq, "x")
}

func candidateIDs(cs []Candidate) []string {
	ids := make([]string, len(cs))
	for i, c := range cs {
		ids[i] = c.Product.ID
	}
	return ids
}
