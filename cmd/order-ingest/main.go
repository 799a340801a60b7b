// Command order-ingest bulk-loads historical orders from gzipped JSONL
// export files into the catalog store. Exports overlap between dumps,
// so every order id is checked against a bloom filter seeded from the
// database; only filter hits pay for an exact existence query.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront-recs/internal/repository"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	progressEvery = 100_000
)

// orderExport is one line of an export file.
type orderExport struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	Status    string     `json:"status"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	Lines     []struct {
		ProductID string `json:"productId"`
		Quantity  int    `json:"quantity"`
	} `json:"lines"`
}

// dedupe tracks order ids seen in the database and in this run. The
// bloom filter answers "definitely new" cheaply; hits fall back to an
// exact query because the filter can report false positives.
type dedupe struct {
	mu     sync.Mutex
	filter *bloom.BloomFilter
	pool   *pgxpool.Pool
}

func main() {
	var (
		dataDir     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.jsonl.gz order export files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
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

	if err := run(ctx, dataDir, databaseURL); err != nil {
		slog.Error("order ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("order ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.jsonl.gz"))
	if err != nil {
		return errors.Wrap(err, "list export files")
	}
	if len(files) == 0 {
		return errors.Errorf("no *.jsonl.gz files in %s", dataDir)
	}

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	d, err := seedFilter(ctx, pool)
	if err != nil {
		return errors.Wrap(err, "seed dedupe filter")
	}

	slog.Info("ingesting order exports", slog.Int("files", len(files)))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(ingestFile(ctx, i, f, d))
	}
	return g.Wait()
}

// seedFilter loads every existing order id into a fresh bloom filter.
func seedFilter(ctx context.Context, pool *pgxpool.Pool) (*dedupe, error) {
	d := &dedupe{
		filter: bloom.NewWithEstimates(bloomCapacity, bloomFPR),
		pool:   pool,
	}

	rows, err := pool.Query(ctx, `SELECT id FROM orders`)
	if err != nil {
		return nil, errors.Wrap(err, "list existing order ids")
	}
	defer rows.Close()

	var count int
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan order id")
		}
		d.filter.AddString(id)
		count++
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate order ids")
	}

	slog.Info("seeded dedupe filter", slog.Int("existing_orders", count))
	return d, nil
}

func ingestFile(ctx context.Context, idx int, path string, d *dedupe) func() error {
	return func() error {
		var total, inserted, skipped uint64

		err := streamGzLines(ctx, path, func(line []byte) error {
			total++
			if total%progressEvery == 0 {
				slog.Info("ingest progress",
					slog.Int("file", idx+1),
					slog.Uint64("orders", total),
				)
			}

			var o orderExport
			if err := json.Unmarshal(line, &o); err != nil {
				return errors.Wrap(err, "parse order line")
			}
			if o.ID == "" {
				o.ID = uuid.New().String()
			}

			ok, err := d.claim(ctx, o.ID)
			if err != nil {
				return err
			}
			if !ok {
				skipped++
				return nil
			}

			if err := insertOrder(ctx, d.pool, &o); err != nil {
				return errors.Wrapf(err, "insert order %s", o.ID)
			}
			inserted++
			return nil
		})
		if err != nil {
			return errors.Wrapf(err, "ingest file %d", idx+1)
		}

		slog.Info("file complete",
			slog.Int("file", idx+1),
			slog.Uint64("orders", total),
			slog.Uint64("inserted", inserted),
			slog.Uint64("skipped", skipped),
		)
		return nil
	}
}

// claim reports whether the order id is new and marks it as seen. A
// filter hit is verified against the database before skipping.
func (d *dedupe) claim(ctx context.Context, id string) (bool, error) {
	d.mu.Lock()
	hit := d.filter.TestString(id)
	if !hit {
		d.filter.AddString(id)
	}
	d.mu.Unlock()

	if !hit {
		return true, nil
	}

	var exists bool
	err := d.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id,
	).Scan(&exists)
	if err != nil {
		return false, errors.Wrapf(err, "check order %s", id)
	}
	return !exists, nil
}

func insertOrder(ctx context.Context, pool *pgxpool.Pool, o *orderExport) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	status := o.Status
	if status == "" {
		status = "completed"
	}
	createdAt := time.Now()
	if o.CreatedAt != nil {
		createdAt = *o.CreatedAt
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO orders (id, user_id, status, created_at)
		 VALUES ($1, $2, $3, $4) ON CONFLICT (id) DO NOTHING`,
		o.ID, o.UserID, status, createdAt,
	); err != nil {
		return errors.Wrap(err, "insert order")
	}

	for _, l := range o.Lines {
		if l.Quantity <= 0 {
			continue
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO order_lines (order_id, product_id, quantity)
			 VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
			o.ID, l.ProductID, l.Quantity,
		); err != nil {
			return errors.Wrapf(err, "insert line %s", l.ProductID)
		}
	}

	return errors.Wrap(tx.Commit(ctx), "commit")
}

// streamGzLines opens a gzip-compressed file and calls fn for each
// line.
func streamGzLines(ctx context.Context, path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(scanner.Bytes()) == 0 {
			continue
		}
		if err := fn(scanner.Bytes()); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}
