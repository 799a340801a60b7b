package recommend

import (
	"context"
	"sort"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront-recs/internal/domain/catalog"
)

// fromPurchaseHistory recommends in-stock products from the categories
// the user has bought in before, excluding everything already
// purchased. No orders, no signal.
func (s *Service) fromPurchaseHistory(ctx context.Context, profile *catalog.Profile, limit int) ([]Candidate, error) {
	if len(profile.Orders) == 0 {
		return nil, nil
	}

	products, err := s.catalog.InStockByCategories(ctx, profile.CategoryIDs(), profile.PurchasedProductIDs(), limit)
	if err != nil {
		return nil, errors.Wrap(err, "purchase history candidates")
	}
	return capped(Rank(products, profile.CategorySet(), s.now()), limit), nil
}

// fromWishlist recommends in-stock products from the categories of
// wishlisted items, excluding the wishlisted items themselves.
func (s *Service) fromWishlist(ctx context.Context, profile *catalog.Profile, limit int) ([]Candidate, error) {
	if len(profile.Wishlist) == 0 {
		return nil, nil
	}

	products, err := s.catalog.InStockByCategories(ctx, profile.WishlistCategoryIDs(), profile.WishlistProductIDs(), limit)
	if err != nil {
		return nil, errors.Wrap(err, "wishlist candidates")
	}
	return capped(Rank(products, profile.CategorySet(), s.now()), limit), nil
}

// fromSimilarUsers recommends in-stock products purchased by users with
// overlapping purchase history, excluding the requester's own
// purchases.
func (s *Service) fromSimilarUsers(ctx context.Context, profile *catalog.Profile, limit int) ([]Candidate, error) {
	similar, poolPurchases, err := s.similarUsers(ctx, profile, DefaultSimilarUsersLimit)
	if err != nil {
		return nil, errors.Wrap(err, "similar users")
	}
	if len(similar) == 0 {
		return nil, nil
	}

	// Union of the similar users' purchased product ids. Their sets are
	// already in memory from the similarity pass.
	seen := make(map[string]struct{})
	seed := make([]string, 0, len(similar)*4)
	for _, su := range similar {
		for id := range poolPurchases[su.User.ID] {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			seed = append(seed, id)
		}
	}

	products, err := s.catalog.InStockByIDs(ctx, seed, profile.PurchasedProductIDs(), limit)
	if err != nil {
		return nil, errors.Wrap(err, "similar user candidates")
	}
	return capped(Rank(products, profile.CategorySet(), s.now()), limit), nil
}

// trending recommends the best-selling in-stock products across the
// categories the user has shown interest in, through purchases or
// wishlist.
func (s *Service) trending(ctx context.Context, profile *catalog.Profile, limit int) ([]Candidate, error) {
	seeds := profile.CategoryIDs()
	seen := make(map[string]struct{}, len(seeds))
	for _, id := range seeds {
		seen[id] = struct{}{}
	}
	for _, id := range profile.WishlistCategoryIDs() {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		seeds = append(seeds, id)
	}
	if len(seeds) == 0 {
		return nil, nil
	}

	products, err := s.catalog.TrendingByCategories(ctx, seeds, limit)
	if err != nil {
		return nil, errors.Wrap(err, "trending candidates")
	}
	return capped(Rank(products, profile.CategorySet(), s.now()), limit), nil
}

// coPurchased returns the products most frequently ordered together
// with the anchor, most frequent first. Out-of-stock products are kept:
// the signal is the order history, not current availability.
func (s *Service) coPurchased(ctx context.Context, productID string, limit int) ([]Candidate, error) {
	lines, err := s.catalog.CoPurchasedLines(ctx, productID)
	if err != nil {
		return nil, errors.Wrap(err, "co-purchased lines")
	}

	freq, ids := coPurchaseFrequencies(lines, productID)
	if len(ids) == 0 {
		return nil, nil
	}

	sort.SliceStable(ids, func(i, j int) bool {
		return freq[ids[i]] > freq[ids[j]]
	})
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	products, err := s.catalog.ProductsByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "co-purchased products")
	}
	byID := make(map[string]catalog.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	// Selection order is by frequency; the relevance score is attached
	// for the response but does not reorder.
	now := s.now()
	out := make([]Candidate, 0, len(ids))
	for _, id := range ids {
		p, ok := byID[id]
		if !ok {
			continue
		}
		out = append(out, Candidate{Product: p, RelevanceScore: score(p, nil, now)})
	}
	return out, nil
}

// coPurchaseFrequencies counts, per non-anchor product, the number of
// distinct orders it shares with the anchor. ids lists the products in
// first-seen order.
func coPurchaseFrequencies(lines []catalog.Purchase, anchorID string) (map[string]int, []string) {
	freq := make(map[string]int)
	seen := make(map[string]map[string]struct{})
	var ids []string
	for _, l := range lines {
		if l.ProductID == anchorID {
			continue
		}
		orders, ok := seen[l.ProductID]
		if !ok {
			orders = make(map[string]struct{})
			seen[l.ProductID] = orders
			ids = append(ids, l.ProductID)
		}
		if _, counted := orders[l.OrderID]; counted {
			continue
		}
		orders[l.OrderID] = struct{}{}
		freq[l.ProductID]++
	}
	return freq, ids
}
