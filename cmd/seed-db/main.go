// Command seed-db loads a JSON fixture of categories, products, users,
// orders, and wishlists into the catalog store for local development.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-recs/internal/repository"
)

type fixture struct {
	Categories []categoryJSON `json:"categories"`
	Products   []productJSON  `json:"products"`
	Users      []userJSON     `json:"users"`
	Orders     []orderJSON    `json:"orders"`
	Wishlists  []wishlistJSON `json:"wishlists"`
}

type categoryJSON struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type productJSON struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	CategoryID string          `json:"categoryId"`
	Stock      int             `json:"stock"`
	CreatedAt  *time.Time      `json:"createdAt,omitempty"`
}

type userJSON struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type orderJSON struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	Lines     []struct {
		ProductID string `json:"productId"`
		Quantity  int    `json:"quantity"`
	} `json:"lines"`
}

type wishlistJSON struct {
	UserID     string   `json:"userId"`
	ProductIDs []string `json:"productIds"`
}

func main() {
	var (
		databaseURL string
		fixtureFile string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&fixtureFile, "fixture-file", "db/seed/catalog.json", "path to catalog fixture JSON file")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, fixtureFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, fixtureFile string) error {
	raw, err := os.ReadFile(fixtureFile)
	if err != nil {
		return errors.Wrapf(err, "read fixture %s", fixtureFile)
	}

	var fx fixture
	if err := json.Unmarshal(raw, &fx); err != nil {
		return errors.Wrap(err, "parse fixture")
	}

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := insertFixture(ctx, pool, &fx); err != nil {
		return err
	}

	slog.Info("seeded catalog",
		slog.Int("categories", len(fx.Categories)),
		slog.Int("products", len(fx.Products)),
		slog.Int("users", len(fx.Users)),
		slog.Int("orders", len(fx.Orders)),
	)
	return nil
}

func insertFixture(ctx context.Context, pool *pgxpool.Pool, fx *fixture) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, c := range fx.Categories {
		if _, err := tx.Exec(ctx,
			`INSERT INTO categories (id, name) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`,
			c.ID, c.Name,
		); err != nil {
			return errors.Wrapf(err, "insert category %s", c.ID)
		}
	}

	for _, p := range fx.Products {
		createdAt := time.Now()
		if p.CreatedAt != nil {
			createdAt = *p.CreatedAt
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO products (id, name, price, category_id, stock, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (id) DO NOTHING`,
			p.ID, p.Name, p.Price, p.CategoryID, p.Stock, createdAt,
		); err != nil {
			return errors.Wrapf(err, "insert product %s", p.ID)
		}
	}

	for _, u := range fx.Users {
		if _, err := tx.Exec(ctx,
			`INSERT INTO users (id, name, email) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING`,
			u.ID, u.Name, u.Email,
		); err != nil {
			return errors.Wrapf(err, "insert user %s", u.ID)
		}
	}

	for _, o := range fx.Orders {
		createdAt := time.Now()
		if o.CreatedAt != nil {
			createdAt = *o.CreatedAt
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO orders (id, user_id, created_at) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING`,
			o.ID, o.UserID, createdAt,
		); err != nil {
			return errors.Wrapf(err, "insert order %s", o.ID)
		}
		for _, l := range o.Lines {
			if _, err := tx.Exec(ctx,
				`INSERT INTO order_lines (order_id, product_id, quantity)
				 VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
				o.ID, l.ProductID, l.Quantity,
			); err != nil {
				return errors.Wrapf(err, "insert line %s/%s", o.ID, l.ProductID)
			}
		}
	}

	for _, w := range fx.Wishlists {
		for _, pid := range w.ProductIDs {
			if _, err := tx.Exec(ctx,
				`INSERT INTO wishlists (user_id, product_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				w.UserID, pid,
			); err != nil {
				return errors.Wrapf(err, "insert wishlist %s/%s", w.UserID, pid)
			}
		}
	}

	return errors.Wrap(tx.Commit(ctx), "commit")
}
