package store

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	pool *pgxpool.Pool
	once sync.Once
)

// InitDB opens the shared connection pool. An empty dbURL falls back to the
// DATABASE_URL environment variable; maxConns <= 0 keeps the pgxpool default.
// Only the first call has any effect.
func InitDB(ctx context.Context, dbURL string, maxConns int32) error {
	var err error
	once.Do(func() {
		if dbURL == "" {
			dbURL = os.Getenv("DATABASE_URL")
		}
		if dbURL == "" {
			err = fmt.Errorf("DATABASE_URL environment variable not set")
			return
		}

		config, parseErr := pgxpool.ParseConfig(dbURL)
		if parseErr != nil {
			err = fmt.Errorf("failed to parse database config: %w", parseErr)
			return
		}
		if maxConns > 0 {
			config.MaxConns = maxConns
		}

		pool, err = pgxpool.NewWithConfig(ctx, config)
		if err != nil {
			err = fmt.Errorf("failed to open database pool: %w", err)
			return
		}
		if pingErr := pool.Ping(ctx); pingErr != nil {
			pool.Close()
			pool = nil
			err = fmt.Errorf("failed to reach database: %w", pingErr)
		}
	})
	return err
}

// GetPool returns the shared pool, or nil before a successful InitDB.
func GetPool() *pgxpool.Pool {
	return pool
}

// Close closes the shared pool.
func Close() {
	if pool != nil {
		pool.Close()
	}
}
