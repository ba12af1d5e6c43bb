// Package postgres persists normalized products into a pgvector-enabled
// Postgres table. (source, product_url) is the conflict key; a later
// scrape of the same product fully replaces the earlier row.
package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/wearly-labs/stylefeed/internal/domain"
)

// Store is a pgx-backed product repository.
type Store struct {
	pool       *pgxpool.Pool
	dimensions int
	batchSize  int
	batches    *prometheus.CounterVec
	duration   prometheus.Histogram
	logger     *zap.Logger

	// execBatch runs one batch; swapped out in tests.
	execBatch func(ctx context.Context, products []domain.Product) (inserted, updated int, err error)
}

// Config holds the store settings.
type Config struct {
	DSN        string
	MaxConns   int
	MinConns   int
	Dimensions int // pgvector column width
	BatchSize  int
	Batches    *prometheus.CounterVec // label "status"; optional
	Duration   prometheus.Histogram   // optional
	Logger     *zap.Logger
}

// New opens a connection pool and verifies connectivity.
func New(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{
		pool:       pool,
		dimensions: cfg.Dimensions,
		batchSize:  cfg.BatchSize,
		batches:    cfg.Batches,
		duration:   cfg.Duration,
		logger:     cfg.Logger,
	}
	s.execBatch = s.upsertBatch
	return s, nil
}

// EnsureSchema creates the products table and its indexes. Safe to run on
// every start. Older deployments keyed rows on (source, external_id);
// external IDs turned out unstable across shop migrations, so that index
// is dropped in favor of (source, product_url).
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS products (
			id            TEXT PRIMARY KEY,
			source        TEXT NOT NULL,
			external_id   TEXT,
			product_url   TEXT NOT NULL,
			merchant_name TEXT,
			brand         TEXT,
			title         TEXT NOT NULL,
			price         DOUBLE PRECISION,
			currency      TEXT,
			image_url     TEXT NOT NULL,
			gender        TEXT,
			size          TEXT,
			second_hand   BOOLEAN NOT NULL DEFAULT FALSE,
			country       TEXT,
			embedding     vector(%d),
			metadata      JSONB,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.dimensions),
		`DROP INDEX IF EXISTS products_source_external_id_key`,
		`CREATE UNIQUE INDEX IF NOT EXISTS products_source_product_url_key
			ON products (source, product_url)`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

const upsertQuery = `
	INSERT INTO products (
		id, source, external_id, product_url, merchant_name, brand, title,
		price, currency, image_url, gender, size, second_hand, country,
		embedding, metadata
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
	)
	ON CONFLICT (source, product_url) DO UPDATE SET
		external_id   = EXCLUDED.external_id,
		merchant_name = EXCLUDED.merchant_name,
		brand         = EXCLUDED.brand,
		title         = EXCLUDED.title,
		price         = EXCLUDED.price,
		currency      = EXCLUDED.currency,
		image_url     = EXCLUDED.image_url,
		gender        = EXCLUDED.gender,
		size          = EXCLUDED.size,
		second_hand   = EXCLUDED.second_hand,
		country       = EXCLUDED.country,
		embedding     = EXCLUDED.embedding,
		metadata      = EXCLUDED.metadata,
		updated_at    = now()
	RETURNING (xmax = 0) AS inserted
`

// Upsert writes products in batches. Duplicate IDs within the call
// collapse to the last occurrence. A failed batch is recorded in the
// result and does not stop the remaining batches.
func (s *Store) Upsert(ctx context.Context, products []domain.Product) (domain.UpsertResult, error) {
	var result domain.UpsertResult

	deduped := dedupeByID(products)
	if dropped := len(products) - len(deduped); dropped > 0 {
		s.logger.Debug("Collapsed duplicate product IDs", zap.Int("dropped", dropped))
	}

	for _, batch := range chunk(deduped, s.batchSize) {
		start := time.Now()
		inserted, updated, err := s.execBatch(ctx, batch)

		if s.duration != nil {
			s.duration.Observe(time.Since(start).Seconds())
		}
		if err != nil {
			s.incBatch("error")
			result.Failed += len(batch)
			result.BatchErrors = append(result.BatchErrors, err)
			s.logger.Error("Batch upsert failed",
				zap.Int("batch_size", len(batch)),
				zap.Error(err),
			)
			continue
		}

		s.incBatch("ok")
		result.Inserted += inserted
		result.Updated += updated
	}

	return result, nil
}

func (s *Store) upsertBatch(ctx context.Context, products []domain.Product) (inserted, updated int, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, p := range products {
		batch.Queue(upsertQuery,
			p.ID, p.Source, nullIfEmpty(p.ExternalID), p.ProductURL,
			nullIfEmpty(p.MerchantName), nullIfEmpty(p.Brand), p.Title,
			p.Price, nullIfEmpty(p.Currency), p.ImageURL,
			nullIfEmpty(p.Gender), nullIfEmpty(p.Size), p.SecondHand,
			nullIfEmpty(p.Country), vectorParam(p.Embedding), p.Metadata,
		)
	}

	results := tx.SendBatch(ctx, batch)
	for range products {
		var wasInsert bool
		if scanErr := results.QueryRow().Scan(&wasInsert); scanErr != nil {
			_ = results.Close()
			return 0, 0, fmt.Errorf("upsert product: %w", scanErr)
		}
		if wasInsert {
			inserted++
		} else {
			updated++
		}
	}
	if err := results.Close(); err != nil {
		return 0, 0, fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("commit tx: %w", err)
	}
	return inserted, updated, nil
}

// Count returns the number of persisted products for one source.
func (s *Store) Count(ctx context.Context, source string) (int64, error) {
	var total int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM products WHERE source = $1`, source,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return total, nil
}

// Ping reports database reachability.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() { s.pool.Close() }

func (s *Store) incBatch(status string) {
	if s.batches != nil {
		s.batches.WithLabelValues(status).Inc()
	}
}

// dedupeByID collapses duplicate IDs to the last occurrence while keeping
// the position of the first. Postgres rejects the same conflict key twice
// in one statement, so duplicates must not reach the same batch.
func dedupeByID(products []domain.Product) []domain.Product {
	out := make([]domain.Product, 0, len(products))
	index := make(map[string]int, len(products))
	for _, p := range products {
		if at, seen := index[p.ID]; seen {
			out[at] = p
			continue
		}
		index[p.ID] = len(out)
		out = append(out, p)
	}
	return out
}

func chunk(products []domain.Product, size int) [][]domain.Product {
	if size <= 0 {
		size = 50
	}
	var batches [][]domain.Product
	for start := 0; start < len(products); start += size {
		end := min(start+size, len(products))
		batches = append(batches, products[start:end])
	}
	return batches
}

// vectorParam renders a vector in pgvector text form, or nil for SQL NULL.
func vectorParam(v domain.Vector) *string {
	if v == nil {
		return nil
	}
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = strconv.FormatFloat(float64(f), 'f', -1, 32)
	}
	text := "[" + strings.Join(parts, ",") + "]"
	return &text
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
