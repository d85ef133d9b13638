package pgx_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brindle/esrt"
	"github.com/brindle/esrt/internal/logtest"
	"github.com/brindle/esrt/stores/pgx"
)

// TestLog_Compliance requires a reachable Postgres with pgx.Schema applied;
// set DATABASE_URL to run it. It is skipped otherwise since, unlike the
// mem and redisstreams adapters, there is no in-process fake for pgx.
func TestLog_Compliance(t *testing.T) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set; skipping pgx Log compliance suite")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("failed to connect to database: %v", err)
	}
	t.Cleanup(pool.Close)

	if _, err := pool.Exec(ctx, pgx.Schema); err != nil {
		t.Fatalf("failed to apply schema: %v", err)
	}

	logtest.Run(t, func(t *testing.T) esrt.Log {
		t.Helper()
		truncate(ctx, t, pool)
		return pgx.New(pool, pgx.WithInitialDelay(5*time.Millisecond), pgx.WithPollInterval(5*time.Millisecond))
	})
}

func truncate(ctx context.Context, t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	if _, err := pool.Exec(ctx, `TRUNCATE events, stream_meta, snapshots, subscription_cursors`); err != nil {
		t.Fatalf("failed to truncate tables: %v", err)
	}
}
