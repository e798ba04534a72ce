package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/valuation-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS valuations (
	id         TEXT PRIMARY KEY,
	batch_id   TEXT,
	brand      TEXT NOT NULL,
	model      TEXT NOT NULL,
	year       INTEGER NOT NULL,
	record     TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS valuation_feedback (
	id                   TEXT PRIMARY KEY,
	valuation_id         TEXT,
	type                 TEXT NOT NULL,
	reasoning            TEXT NOT NULL,
	prior_recommendation TEXT,
	suggested_price      REAL,
	market_context       TEXT,
	created_at           DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS sales (
	id             TEXT PRIMARY KEY,
	brand          TEXT NOT NULL,
	model          TEXT NOT NULL,
	year           INTEGER NOT NULL,
	mileage        INTEGER NOT NULL DEFAULT 0,
	purchase_price REAL NOT NULL,
	sale_price     REAL NOT NULL,
	days_to_sell   INTEGER NOT NULL DEFAULT 0,
	sold_at        DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_valuations_batch ON valuations(batch_id);
CREATE INDEX IF NOT EXISTS idx_valuations_created ON valuations(created_at);
CREATE INDEX IF NOT EXISTS idx_feedback_created ON valuation_feedback(created_at);
CREATE INDEX IF NOT EXISTS idx_sales_brand_model ON sales(brand, model);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveValuation(ctx context.Context, rec *model.ValuationRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	recJSON, err := json.Marshal(rec)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal valuation")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO valuations (id, batch_id, brand, model, year, record, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.BatchID, rec.Vehicle.Brand, rec.Vehicle.Model, rec.Vehicle.Year, string(recJSON), rec.CreatedAt,
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: insert valuation")
	}
	return rec.ID, nil
}

func (s *SQLiteStore) GetValuation(ctx context.Context, id string) (*model.ValuationRecord, error) {
	var recJSON string
	err := s.db.QueryRowContext(ctx, `SELECT record FROM valuations WHERE id = ?`, id).Scan(&recJSON)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "valuation %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get valuation %s", id)
	}

	var rec model.ValuationRecord
	if err := json.Unmarshal([]byte(recJSON), &rec); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal valuation")
	}
	return &rec, nil
}

func (s *SQLiteStore) ListValuations(ctx context.Context, filter ValuationFilter) ([]model.ValuationRecord, error) {
	query := `SELECT record FROM valuations WHERE 1=1`
	var args []any

	if filter.BatchID != "" {
		query += ` AND batch_id = ?`
		args = append(args, filter.BatchID)
	}
	if filter.Brand != "" {
		query += ` AND lower(brand) = ?`
		args = append(args, strings.ToLower(filter.Brand))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list valuations")
	}
	defer rows.Close()

	var recs []model.ValuationRecord
	for rows.Next() {
		var recJSON string
		if err := rows.Scan(&recJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan valuation")
		}
		var rec model.ValuationRecord
		if err := json.Unmarshal([]byte(recJSON), &rec); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal valuation")
		}
		recs = append(recs, rec)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: list valuations iterate")
}

func (s *SQLiteStore) AddFeedback(ctx context.Context, fb model.FeedbackRecord) (string, error) {
	if fb.ID == "" {
		fb.ID = uuid.New().String()
	}
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO valuation_feedback (id, valuation_id, type, reasoning, prior_recommendation, suggested_price, market_context, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		fb.ID, fb.ValuationID, string(fb.Type), fb.Reasoning, fb.PriorRecommendation, fb.SuggestedPrice, fb.MarketContext, fb.CreatedAt,
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: insert feedback")
	}
	return fb.ID, nil
}

func (s *SQLiteStore) RecentFeedback(ctx context.Context, limit int) ([]model.FeedbackRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, valuation_id, type, reasoning, prior_recommendation, suggested_price, market_context, created_at
		 FROM valuation_feedback ORDER BY created_at DESC LIMIT ?`,
		listLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: recent feedback")
	}
	defer rows.Close()

	var out []model.FeedbackRecord
	for rows.Next() {
		var fb model.FeedbackRecord
		var valuationID, prior, marketCtx sql.NullString
		var price sql.NullFloat64
		var typ string
		if err := rows.Scan(&fb.ID, &valuationID, &typ, &fb.Reasoning, &prior, &price, &marketCtx, &fb.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan feedback")
		}
		fb.Type = model.FeedbackType(typ)
		fb.ValuationID = valuationID.String
		fb.PriorRecommendation = prior.String
		fb.MarketContext = marketCtx.String
		if price.Valid {
			p := price.Float64
			fb.SuggestedPrice = &p
		}
		out = append(out, fb)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: recent feedback iterate")
}

func (s *SQLiteStore) RecordSale(ctx context.Context, sale model.Sale) (string, error) {
	if sale.ID == "" {
		sale.ID = uuid.New().String()
	}
	if err := insertSale(ctx, s.db, sale); err != nil {
		return "", err
	}
	return sale.ID, nil
}

// ImportSales inserts all sales in a single transaction.
func (s *SQLiteStore) ImportSales(ctx context.Context, sales []model.Sale) (int64, error) {
	if len(sales) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: import sales: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, sale := range sales {
		if sale.ID == "" {
			sale.ID = uuid.New().String()
		}
		if err := insertSale(ctx, tx, sale); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: import sales: commit")
	}
	return int64(len(sales)), nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertSale(ctx context.Context, db execer, sale model.Sale) error {
	soldAt := sale.SoldAt
	if soldAt.IsZero() {
		soldAt = time.Now().UTC()
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO sales (id, brand, model, year, mileage, purchase_price, sale_price, days_to_sell, sold_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sale.ID, sale.Brand, sale.Model, sale.Year, sale.Mileage, sale.PurchasePrice, sale.SalePrice, sale.DaysToSell, soldAt,
	)
	return eris.Wrap(err, "sqlite: insert sale")
}

func (s *SQLiteStore) InternalComparables(ctx context.Context, v model.Vehicle) (*model.InternalComparables, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, brand, model, year, mileage, purchase_price, sale_price, days_to_sell, sold_at
		 FROM sales
		 WHERE lower(brand) = ? AND lower(model) = ? AND year BETWEEN ? AND ?`,
		strings.ToLower(v.Brand), strings.ToLower(v.Model), v.Year-comparableYearWindow, v.Year+comparableYearWindow,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: internal comparables")
	}
	defer rows.Close()

	var sales []model.Sale
	for rows.Next() {
		var sale model.Sale
		if err := rows.Scan(&sale.ID, &sale.Brand, &sale.Model, &sale.Year, &sale.Mileage,
			&sale.PurchasePrice, &sale.SalePrice, &sale.DaysToSell, &sale.SoldAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan sale")
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: internal comparables iterate")
	}
	return summarizeSales(v, sales), nil
}
