// Package store persists an audit trail of valuation runs in PostgreSQL.
// It sits outside the kernel: the kernel never reads from it, and a stored
// run is never served in place of a fresh computation.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ErrRunNotFound is returned by Get for an unknown id.
var ErrRunNotFound = errors.New("valuation run not found")

// RunKind names the kernel operation a run recorded.
type RunKind string

const (
	KindCalculate   RunKind = "calculate"
	KindSeries      RunKind = "series"
	KindSensitivity RunKind = "sensitivity"
	KindScenarios   RunKind = "scenarios"
	KindReport      RunKind = "report"
)

// RunRecord is one persisted request/result pair.
type RunRecord struct {
	ID            uuid.UUID        `json:"id"`
	Kind          RunKind          `json:"kind"`
	Ticker        string           `json:"ticker,omitempty"`
	Request       json.RawMessage  `json:"request"`
	Result        json.RawMessage  `json:"result"`
	ValuePerShare *decimal.Decimal `json:"value_per_share,omitempty"` // headline figure, when the run has one
	CreatedAt     time.Time        `json:"created_at"`
}

// NewRunRecord marshals request and result into a record with a fresh id.
func NewRunRecord(kind RunKind, ticker string, request, result any, valuePerShare *float64) (RunRecord, error) {
	req, err := json.Marshal(request)
	if err != nil {
		return RunRecord{}, fmt.Errorf("failed to marshal run request: %w", err)
	}
	res, err := json.Marshal(result)
	if err != nil {
		return RunRecord{}, fmt.Errorf("failed to marshal run result: %w", err)
	}
	rec := RunRecord{
		ID:        uuid.New(),
		Kind:      kind,
		Ticker:    ticker,
		Request:   req,
		Result:    res,
		CreatedAt: time.Now().UTC(),
	}
	if valuePerShare != nil {
		d := decimal.NewFromFloat(*valuePerShare).Round(6)
		rec.ValuePerShare = &d
	}
	return rec, nil
}

// Schema creates the runs table.
const Schema = `
CREATE TABLE IF NOT EXISTS valuation_runs (
	id              UUID PRIMARY KEY,
	kind            TEXT NOT NULL,
	ticker          TEXT NOT NULL DEFAULT '',
	request         JSONB NOT NULL,
	result          JSONB NOT NULL,
	value_per_share NUMERIC,
	created_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS valuation_runs_ticker_idx ON valuation_runs (ticker, created_at DESC);
`

// RunRepo reads and writes valuation_runs.
type RunRepo struct {
	pool *pgxpool.Pool
}

// NewRunRepo creates a repository over pool.
func NewRunRepo(pool *pgxpool.Pool) *RunRepo {
	return &RunRepo{pool: pool}
}

// EnsureSchema creates the runs table if it does not exist.
func (r *RunRepo) EnsureSchema(ctx context.Context) error {
	if r.pool == nil {
		return fmt.Errorf("database pool not initialized")
	}
	if _, err := r.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Save inserts rec. Runs are append-only.
func (r *RunRepo) Save(ctx context.Context, rec RunRecord) error {
	if r.pool == nil {
		return fmt.Errorf("database pool not initialized")
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO valuation_runs (id, kind, ticker, request, result, value_per_share, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rec.ID.String(), string(rec.Kind), rec.Ticker, []byte(rec.Request), []byte(rec.Result), rec.ValuePerShare, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// Get loads one run by id.
func (r *RunRepo) Get(ctx context.Context, id uuid.UUID) (RunRecord, error) {
	if r.pool == nil {
		return RunRecord{}, fmt.Errorf("database pool not initialized")
	}
	row := r.pool.QueryRow(ctx, `
		SELECT id::text, kind, ticker, request, result, value_per_share, created_at
		FROM valuation_runs WHERE id = $1
	`, id.String())

	rec, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("failed to load run: %w", err)
	}
	return rec, nil
}

// ListByTicker returns the most recent runs for ticker, newest first.
func (r *RunRepo) ListByTicker(ctx context.Context, ticker string, limit int) ([]RunRecord, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("database pool not initialized")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, kind, ticker, request, result, value_per_share, created_at
		FROM valuation_runs WHERE ticker = $1
		ORDER BY created_at DESC LIMIT $2
	`, ticker, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanRun(row pgx.Row) (RunRecord, error) {
	var (
		rec  RunRecord
		id   string
		kind string
		req  []byte
		res  []byte
		vps  decimal.NullDecimal
	)
	if err := row.Scan(&id, &kind, &rec.Ticker, &req, &res, &vps, &rec.CreatedAt); err != nil {
		return RunRecord{}, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return RunRecord{}, fmt.Errorf("malformed run id %q: %w", id, err)
	}
	rec.ID = parsed
	rec.Kind = RunKind(kind)
	rec.Request = req
	rec.Result = res
	if vps.Valid {
		d := vps.Decimal
		rec.ValuePerShare = &d
	}
	return rec, nil
}
