package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/valuation-cli/internal/db"
	"github.com/sells-group/valuation-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS valuations (
	id         TEXT PRIMARY KEY,
	batch_id   TEXT,
	brand      TEXT NOT NULL,
	model      TEXT NOT NULL,
	year       INTEGER NOT NULL,
	record     JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS valuation_feedback (
	id                   TEXT PRIMARY KEY,
	valuation_id         TEXT,
	type                 TEXT NOT NULL,
	reasoning            TEXT NOT NULL,
	prior_recommendation TEXT,
	suggested_price      DOUBLE PRECISION,
	market_context       TEXT,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sales (
	id             TEXT PRIMARY KEY,
	brand          TEXT NOT NULL,
	model          TEXT NOT NULL,
	year           INTEGER NOT NULL,
	mileage        INTEGER NOT NULL DEFAULT 0,
	purchase_price DOUBLE PRECISION NOT NULL,
	sale_price     DOUBLE PRECISION NOT NULL,
	days_to_sell   INTEGER NOT NULL DEFAULT 0,
	sold_at        TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_valuations_batch ON valuations(batch_id);
CREATE INDEX IF NOT EXISTS idx_valuations_created ON valuations(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_feedback_created ON valuation_feedback(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_sales_brand_model ON sales(lower(brand), lower(model));
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) SaveValuation(ctx context.Context, rec *model.ValuationRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	recJSON, err := json.Marshal(rec)
	if err != nil {
		return "", eris.Wrap(err, "postgres: marshal valuation")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO valuations (id, batch_id, brand, model, year, record, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.BatchID, rec.Vehicle.Brand, rec.Vehicle.Model, rec.Vehicle.Year, recJSON, rec.CreatedAt,
	)
	if err != nil {
		return "", eris.Wrap(err, "postgres: insert valuation")
	}
	return rec.ID, nil
}

func (s *PostgresStore) GetValuation(ctx context.Context, id string) (*model.ValuationRecord, error) {
	var recJSON []byte
	err := s.pool.QueryRow(ctx, `SELECT record FROM valuations WHERE id = $1`, id).Scan(&recJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get valuation %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get valuation %s", id)
	}

	var rec model.ValuationRecord
	if err := json.Unmarshal(recJSON, &rec); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal valuation")
	}
	return &rec, nil
}

func (s *PostgresStore) ListValuations(ctx context.Context, filter ValuationFilter) ([]model.ValuationRecord, error) {
	query := `SELECT record FROM valuations WHERE 1=1`
	var args []any
	n := 1

	if filter.BatchID != "" {
		query += fmt.Sprintf(` AND batch_id = $%d`, n)
		args = append(args, filter.BatchID)
		n++
	}
	if filter.Brand != "" {
		query += fmt.Sprintf(` AND lower(brand) = $%d`, n)
		args = append(args, strings.ToLower(filter.Brand))
		n++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, n)
	args = append(args, listLimit(filter.Limit))
	n++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, n)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list valuations")
	}
	defer rows.Close()

	var recs []model.ValuationRecord
	for rows.Next() {
		var recJSON []byte
		if err := rows.Scan(&recJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan valuation")
		}
		var rec model.ValuationRecord
		if err := json.Unmarshal(recJSON, &rec); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal valuation")
		}
		recs = append(recs, rec)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: list valuations iterate")
}

func (s *PostgresStore) AddFeedback(ctx context.Context, fb model.FeedbackRecord) (string, error) {
	if fb.ID == "" {
		fb.ID = uuid.New().String()
	}
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO valuation_feedback (id, valuation_id, type, reasoning, prior_recommendation, suggested_price, market_context, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		fb.ID, fb.ValuationID, string(fb.Type), fb.Reasoning, fb.PriorRecommendation, fb.SuggestedPrice, fb.MarketContext, fb.CreatedAt,
	)
	if err != nil {
		return "", eris.Wrap(err, "postgres: insert feedback")
	}
	return fb.ID, nil
}

func (s *PostgresStore) RecentFeedback(ctx context.Context, limit int) ([]model.FeedbackRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, valuation_id, type, reasoning, prior_recommendation, suggested_price, market_context, created_at
		 FROM valuation_feedback ORDER BY created_at DESC LIMIT $1`,
		listLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: recent feedback")
	}
	defer rows.Close()

	var out []model.FeedbackRecord
	for rows.Next() {
		var fb model.FeedbackRecord
		var valuationID, prior, marketCtx *string
		var typ string
		if err := rows.Scan(&fb.ID, &valuationID, &typ, &fb.Reasoning, &prior, &fb.SuggestedPrice, &marketCtx, &fb.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan feedback")
		}
		fb.Type = model.FeedbackType(typ)
		fb.ValuationID = deref(valuationID)
		fb.PriorRecommendation = deref(prior)
		fb.MarketContext = deref(marketCtx)
		out = append(out, fb)
	}
	return out, eris.Wrap(rows.Err(), "postgres: recent feedback iterate")
}

func (s *PostgresStore) RecordSale(ctx context.Context, sale model.Sale) (string, error) {
	if sale.ID == "" {
		sale.ID = uuid.New().String()
	}
	if sale.SoldAt.IsZero() {
		sale.SoldAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sales (id, brand, model, year, mileage, purchase_price, sale_price, days_to_sell, sold_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sale.ID, sale.Brand, sale.Model, sale.Year, sale.Mileage, sale.PurchasePrice, sale.SalePrice, sale.DaysToSell, sale.SoldAt,
	)
	if err != nil {
		return "", eris.Wrap(err, "postgres: insert sale")
	}
	return sale.ID, nil
}

var saleColumns = []string{"id", "brand", "model", "year", "mileage", "purchase_price", "sale_price", "days_to_sell", "sold_at"}

// ImportSales bulk-loads sales history with COPY.
func (s *PostgresStore) ImportSales(ctx context.Context, sales []model.Sale) (int64, error) {
	now := time.Now().UTC()
	n, err := db.CopyRows(ctx, s.pool, "sales", saleColumns, sales, 0, func(sale model.Sale) []any {
		if sale.ID == "" {
			sale.ID = uuid.New().String()
		}
		if sale.SoldAt.IsZero() {
			sale.SoldAt = now
		}
		return []any{
			sale.ID, sale.Brand, sale.Model, sale.Year, sale.Mileage,
			sale.PurchasePrice, sale.SalePrice, sale.DaysToSell, sale.SoldAt,
		}
	})
	if err != nil {
		return n, eris.Wrap(err, "postgres: import sales")
	}
	return n, nil
}

func (s *PostgresStore) InternalComparables(ctx context.Context, v model.Vehicle) (*model.InternalComparables, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, brand, model, year, mileage, purchase_price, sale_price, days_to_sell, sold_at
		 FROM sales
		 WHERE lower(brand) = $1 AND lower(model) = $2 AND year BETWEEN $3 AND $4`,
		strings.ToLower(v.Brand), strings.ToLower(v.Model), v.Year-comparableYearWindow, v.Year+comparableYearWindow,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: internal comparables")
	}
	defer rows.Close()

	var sales []model.Sale
	for rows.Next() {
		var sale model.Sale
		if err := rows.Scan(&sale.ID, &sale.Brand, &sale.Model, &sale.Year, &sale.Mileage,
			&sale.PurchasePrice, &sale.SalePrice, &sale.DaysToSell, &sale.SoldAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan sale")
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: internal comparables iterate")
	}
	return summarizeSales(v, sales), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
