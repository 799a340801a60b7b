// Command recsctl runs a single recommendation engine operation against
// the catalog store and prints the ranked candidates as JSON. It exists
// for diagnostics and for exercising the engine without the storefront
// in front of it.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	appcfg "github.com/xenking/storefront-recs/internal/app"
	"github.com/xenking/storefront-recs/internal/domain/catalog"
	"github.com/xenking/storefront-recs/internal/recommend"
	"github.com/xenking/storefront-recs/internal/repository"
)

func main() {
	var (
		op    string
		id    string
		limit int
	)
	flag.StringVar(&op, "op", "user", "operation: user | product | category | together | similar-users")
	flag.StringVar(&id, "id", "", "anchor id (user, product, or category depending on -op)")
	flag.IntVar(&limit, "limit", 0, "result limit (0 uses the operation default)")
	flag.Parse()

	app.Run(func(ctx context.Context, lg *zap.Logger, _ *app.Telemetry) error {
		return run(ctx, lg, op, id, limit)
	})
}

func run(ctx context.Context, lg *zap.Logger, op, id string, limit int) error {
	if id == "" {
		return errors.New("-id is required")
	}

	cfg, err := appcfg.LoadConfig()
	if err != nil {
		return err
	}

	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	store := repository.NewStore(pool, cfg.ReadTimeout)
	svc := recommend.NewService(store, lg)

	var e jx.Encoder
	switch op {
	case "user":
		res, err := svc.ForUser(ctx, id, limit)
		if err != nil {
			return err
		}
		encodeSections(&e, res)
	case "product":
		cs, err := svc.ForProduct(ctx, id, limit)
		if err != nil {
			return err
		}
		encodeCandidates(&e, cs)
	case "category":
		cs, err := svc.ForCategory(ctx, id, limit)
		if err != nil {
			return err
		}
		encodeCandidates(&e, cs)
	case "together":
		cs, err := svc.FrequentlyBoughtTogether(ctx, id, limit)
		if err != nil {
			return err
		}
		encodeCandidates(&e, cs)
	case "similar-users":
		sims, err := svc.FindSimilarUsers(ctx, id, limit)
		if err != nil {
			return err
		}
		encodeSimilarUsers(&e, sims)
	default:
		return errors.Errorf("unknown operation %q", op)
	}

	out := append(e.Bytes(), '\n')
	if _, err := os.Stdout.Write(out); err != nil {
		return errors.Wrap(err, "write output")
	}
	return nil
}

func encodeSections(e *jx.Encoder, res *recommend.UserRecommendations) {
	e.ObjStart()
	e.FieldStart("basedOnPurchaseHistory")
	encodeCandidates(e, res.PurchaseHistory)
	e.FieldStart("basedOnWishlist")
	encodeCandidates(e, res.Wishlist)
	e.FieldStart("basedOnSimilarUsers")
	encodeCandidates(e, res.SimilarUsers)
	e.FieldStart("trendingInCategories")
	encodeCandidates(e, res.Trending)
	e.FieldStart("recentlyViewed")
	encodeCandidates(e, res.RecentlyViewed)
	e.ObjEnd()
}

func encodeCandidates(e *jx.Encoder, cs []recommend.Candidate) {
	e.ArrStart()
	for _, c := range cs {
		encodeCandidate(e, c)
	}
	e.ArrEnd()
}

func encodeCandidate(e *jx.Encoder, c recommend.Candidate) {
	p := c.Product
	e.ObjStart()
	e.FieldStart("id")
	e.Str(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("price")
	e.Num(jx.Num(p.Price.String()))
	e.FieldStart("categoryId")
	e.Str(p.CategoryID)
	e.FieldStart("stock")
	e.Int(p.Stock)
	e.FieldStart("createdAt")
	e.Str(p.CreatedAt.UTC().Format(time.RFC3339))
	e.FieldStart("timesOrdered")
	e.Int(p.TimesOrdered)
	e.FieldStart("relevanceScore")
	e.Float64(c.RelevanceScore)
	e.ObjEnd()
}

func encodeSimilarUsers(e *jx.Encoder, sims []recommend.SimilarUser) {
	e.ArrStart()
	for _, su := range sims {
		encodeSimilarUser(e, su)
	}
	e.ArrEnd()
}

func encodeSimilarUser(e *jx.Encoder, su recommend.SimilarUser) {
	e.ObjStart()
	e.FieldStart("user")
	encodeUser(e, su.User)
	e.FieldStart("similarity")
	e.Float64(su.Score)
	e.ObjEnd()
}

func encodeUser(e *jx.Encoder, u catalog.User) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(u.ID)
	e.FieldStart("name")
	e.Str(u.Name)
	e.FieldStart("email")
	e.Str(u.Email)
	e.ObjEnd()
}
