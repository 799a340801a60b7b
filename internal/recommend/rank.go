package recommend

import (
	"sort"
	"time"

	"github.com/xenking/storefront-recs/internal/domain/catalog"
)

// Relevance formula weights. The score has no absolute meaning; it only
// orders candidates.
const (
	weightTimesOrdered    = 10
	bonusCategoryAffinity = 50
	bonusNew              = 20
	bonusRecent           = 10
	bonusInStock          = 15

	newWindow    = 30 * 24 * time.Hour
	recentWindow = 90 * 24 * time.Hour
)

// Candidate is a product annotated with its computed relevance score.
// It lives for the duration of a single request and is never written
// back to the store.
type Candidate struct {
	Product        catalog.Product
	RelevanceScore float64
}

// Rank scores the given products and returns them as candidates sorted
// by descending relevance. The sort is stable, so ties keep input
// order and two runs over the same input produce the same output.
//
// affinity is the requesting user's purchase-history category set; pass
// nil for anonymous requests and the category bonus is simply omitted.
func Rank(products []catalog.Product, affinity map[string]struct{}, now time.Time) []Candidate {
	out := make([]Candidate, len(products))
	for i, p := range products {
		out[i] = Candidate{
			Product:        p,
			RelevanceScore: score(p, affinity, now),
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RelevanceScore > out[j].RelevanceScore
	})
	return out
}

func score(p catalog.Product, affinity map[string]struct{}, now time.Time) float64 {
	s := float64(weightTimesOrdered * p.TimesOrdered)

	if affinity != nil {
		if _, ok := affinity[p.CategoryID]; ok {
			s += bonusCategoryAffinity
		}
	}

	switch age := now.Sub(p.CreatedAt); {
	case age < newWindow:
		s += bonusNew
	case age < recentWindow:
		s += bonusRecent
	}

	if p.InStock() {
		s += bonusInStock
	}

	return s
}

// capped truncates candidates to at most limit entries.
func capped(cs []Candidate, limit int) []Candidate {
	if limit > 0 && len(cs) > limit {
		return cs[:limit]
	}
	return cs
}
