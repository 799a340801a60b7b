package recommend

import (
	"context"
	"sort"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront-recs/internal/domain/catalog"
)

// SimilarityThreshold is the minimum Jaccard similarity for another
// user to count as similar.
const SimilarityThreshold = 0.3

// similarUserPoolCap bounds the candidate pool fetched per request. The
// pool is most-recently-active first, so the cap sheds the stalest
// users.
const similarUserPoolCap = 256

// SimilarUser is a user annotated with a similarity score relative to
// the requesting user, computed fresh per request.
type SimilarUser struct {
	User  catalog.User
	Score float64
}

// jaccard returns |a ∩ b| / |a ∪ b|. ok is false when the union is
// empty, which has no defined similarity.
func jaccard(a, b map[string]struct{}) (sim float64, ok bool) {
	inter := 0
	for id := range a {
		if _, shared := b[id]; shared {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0, false
	}
	return float64(inter) / float64(union), true
}

// rankBySimilarity scores each pool user against the requester's
// purchased set, drops those below the threshold or with an empty
// union, and returns the top limit, most similar first. Ties keep pool
// order.
func rankBySimilarity(purchased map[string]struct{}, pool []catalog.User, poolPurchases map[string]map[string]struct{}, limit int) []SimilarUser {
	similar := make([]SimilarUser, 0, len(pool))
	for _, u := range pool {
		sim, ok := jaccard(purchased, poolPurchases[u.ID])
		if !ok || sim < SimilarityThreshold {
			continue
		}
		similar = append(similar, SimilarUser{User: u, Score: sim})
	}

	sort.SliceStable(similar, func(i, j int) bool {
		return similar[i].Score > similar[j].Score
	})

	if limit > 0 && len(similar) > limit {
		similar = similar[:limit]
	}
	return similar
}

// similarUsers finds users with overlapping purchase history. It also
// returns the pool's purchased-product sets so callers can reuse them
// without re-querying.
//
// The purchase facts for the whole pool come from one in-list query,
// not one query per candidate user.
func (s *Service) similarUsers(ctx context.Context, profile *catalog.Profile, limit int) ([]SimilarUser, map[string]map[string]struct{}, error) {
	purchased := profile.ProductIDSet()
	if len(purchased) == 0 {
		// No purchase history means no similarity signal.
		return nil, nil, nil
	}

	pool, err := s.catalog.RecentPurchasers(ctx, profile.User.ID, similarUserPoolCap)
	if err != nil {
		return nil, nil, errors.Wrap(err, "load candidate users")
	}
	if len(pool) == 0 {
		return nil, nil, nil
	}

	ids := make([]string, len(pool))
	for i, u := range pool {
		ids[i] = u.ID
	}
	facts, err := s.catalog.PurchasesByUsers(ctx, ids)
	if err != nil {
		return nil, nil, errors.Wrap(err, "load pool purchases")
	}

	poolPurchases := make(map[string]map[string]struct{}, len(pool))
	for _, f := range facts {
		set, ok := poolPurchases[f.UserID]
		if !ok {
			set = make(map[string]struct{})
			poolPurchases[f.UserID] = set
		}
		set[f.ProductID] = struct{}{}
	}

	return rankBySimilarity(purchased, pool, poolPurchases, limit), poolPurchases, nil
}
