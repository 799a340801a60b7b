// Package recommend computes personalized and contextual product
// suggestions from purchase history, wishlists, user similarity, and
// co-purchase statistics. Everything is derived from current relational
// data per request; nothing is trained, cached, or written back.
package recommend

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront-recs/internal/domain/catalog"
)

// Per-operation default result limits, applied when the caller passes a
// non-positive limit.
const (
	DefaultUserLimit         = 10
	DefaultProductLimit      = 6
	DefaultCategoryLimit     = 8
	DefaultCoPurchaseLimit   = 4
	DefaultSimilarUsersLimit = 5
)

// UserRecommendations is the multi-section result of a user-scoped
// request. Section order is fixed; sections without signal are empty.
// RecentlyViewed is always empty: view tracking lives upstream.
type UserRecommendations struct {
	PurchaseHistory []Candidate
	Wishlist        []Candidate
	SimilarUsers    []Candidate
	Trending        []Candidate
	RecentlyViewed  []Candidate
}

// Service is the recommendation orchestrator. It owns no state beyond
// its dependencies; every operation is a pure read/compute/return.
type Service struct {
	catalog catalog.Repository
	lg      *zap.Logger
	now     func() time.Time

	tracer            trace.Tracer
	generatorFailures metric.Int64Counter
}

// NewService creates the orchestrator over the given read-only catalog
// store.
func NewService(repo catalog.Repository, lg *zap.Logger) *Service {
	s := &Service{
		catalog: repo,
		lg:      lg,
		now:     time.Now,
		tracer:  otel.Tracer("storefront-recs/recommend"),
	}

	meter := otel.Meter("storefront-recs/recommend")
	counter, err := meter.Int64Counter("recommend.generator_failures",
		metric.WithDescription("Generators that failed and degraded to an empty section"))
	if err != nil {
		lg.Warn("create generator failure counter", zap.Error(err))
	} else {
		s.generatorFailures = counter
	}

	return s
}

// ForUser returns the full multi-section recommendation set for a user.
// The four generators run concurrently; a failing generator is logged
// and degrades to an empty section rather than failing the request.
// catalog.ErrUserNotFound is returned when the user id does not
// resolve.
func (s *Service) ForUser(ctx context.Context, userID string, limit int) (*UserRecommendations, error) {
	ctx, span := s.tracer.Start(ctx, "recommend.ForUser")
	defer span.End()

	if limit <= 0 {
		limit = DefaultUserLimit
	}

	profile, err := s.catalog.UserProfile(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "load profile")
	}

	var (
		res UserRecommendations
		g   errgroup.Group
	)
	g.Go(s.section(ctx, "purchase_history", &res.PurchaseHistory, func(ctx context.Context) ([]Candidate, error) {
		return s.fromPurchaseHistory(ctx, profile, limit)
	}))
	g.Go(s.section(ctx, "wishlist", &res.Wishlist, func(ctx context.Context) ([]Candidate, error) {
		return s.fromWishlist(ctx, profile, limit)
	}))
	g.Go(s.section(ctx, "similar_users", &res.SimilarUsers, func(ctx context.Context) ([]Candidate, error) {
		return s.fromSimilarUsers(ctx, profile, limit)
	}))
	g.Go(s.section(ctx, "trending", &res.Trending, func(ctx context.Context) ([]Candidate, error) {
		return s.trending(ctx, profile, limit)
	}))

	// Section closures never return errors; degraded sections are
	// already empty.
	_ = g.Wait()

	return &res, nil
}

// section adapts a generator into an errgroup task with failure
// isolation: on error the section stays empty and the failure is logged
// and counted.
func (s *Service) section(ctx context.Context, name string, out *[]Candidate, gen func(context.Context) ([]Candidate, error)) func() error {
	return func() error {
		cs, err := gen(ctx)
		if err != nil {
			s.lg.Warn("recommendation generator failed",
				zap.String("generator", name),
				zap.Error(err),
			)
			if s.generatorFailures != nil {
				s.generatorFailures.Add(ctx, 1,
					metric.WithAttributes(attribute.String("generator", name)))
			}
			return nil
		}
		*out = cs
		return nil
	}
}

// ForProduct recommends products related to one anchor product: half
// the limit from the anchor's category, the rest from co-purchase
// history, ranked together without a requester context.
// catalog.ErrProductNotFound is returned when the anchor does not
// resolve.
func (s *Service) ForProduct(ctx context.Context, productID string, limit int) ([]Candidate, error) {
	ctx, span := s.tracer.Start(ctx, "recommend.ForProduct")
	defer span.End()

	if limit <= 0 {
		limit = DefaultProductLimit
	}

	anchor, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, errors.Wrap(err, "load anchor product")
	}

	sameCategory, err := s.catalog.InStockByCategories(ctx,
		[]string{anchor.CategoryID}, []string{anchor.ID}, limit/2)
	if err != nil {
		s.lg.Warn("same-category lookup failed", zap.String("product", productID), zap.Error(err))
		sameCategory = nil
	}

	together, err := s.coPurchased(ctx, productID, limit-len(sameCategory))
	if err != nil {
		s.lg.Warn("co-purchase lookup failed", zap.String("product", productID), zap.Error(err))
		together = nil
	}

	combined := make([]catalog.Product, 0, len(sameCategory)+len(together))
	seen := make(map[string]struct{}, cap(combined))
	for _, p := range sameCategory {
		seen[p.ID] = struct{}{}
		combined = append(combined, p)
	}
	for _, c := range together {
		if _, ok := seen[c.Product.ID]; ok {
			continue
		}
		seen[c.Product.ID] = struct{}{}
		combined = append(combined, c.Product)
	}

	return capped(Rank(combined, nil, s.now()), limit), nil
}

// ForCategory returns the category's in-stock products, best sellers
// first at the store level, re-ranked by the shared relevance formula.
// catalog.ErrCategoryNotFound is returned when the category does not
// resolve.
func (s *Service) ForCategory(ctx context.Context, categoryID string, limit int) ([]Candidate, error) {
	ctx, span := s.tracer.Start(ctx, "recommend.ForCategory")
	defer span.End()

	if limit <= 0 {
		limit = DefaultCategoryLimit
	}

	if _, err := s.catalog.GetCategory(ctx, categoryID); err != nil {
		return nil, errors.Wrap(err, "load anchor category")
	}

	products, err := s.catalog.TrendingByCategories(ctx, []string{categoryID}, limit)
	if err != nil {
		return nil, errors.Wrap(err, "category candidates")
	}
	return capped(Rank(products, nil, s.now()), limit), nil
}

// FrequentlyBoughtTogether returns the products most often appearing in
// the same orders as the anchor product. An anchor that was never
// ordered yields an empty list; a missing anchor yields
// catalog.ErrProductNotFound.
func (s *Service) FrequentlyBoughtTogether(ctx context.Context, productID string, limit int) ([]Candidate, error) {
	ctx, span := s.tracer.Start(ctx, "recommend.FrequentlyBoughtTogether")
	defer span.End()

	if limit <= 0 {
		limit = DefaultCoPurchaseLimit
	}

	if _, err := s.catalog.GetProduct(ctx, productID); err != nil {
		return nil, errors.Wrap(err, "load anchor product")
	}

	return s.coPurchased(ctx, productID, limit)
}

// FindSimilarUsers exposes the similarity engine directly, for
// administrative and diagnostic use. catalog.ErrUserNotFound is
// returned when the user id does not resolve.
func (s *Service) FindSimilarUsers(ctx context.Context, userID string, limit int) ([]SimilarUser, error) {
	ctx, span := s.tracer.Start(ctx, "recommend.FindSimilarUsers")
	defer span.End()

	if limit <= 0 {
		limit = DefaultSimilarUsersLimit
	}

	profile, err := s.catalog.UserProfile(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "load profile")
	}

	similar, _, err := s.similarUsers(ctx, profile, limit)
	return similar, err
}
