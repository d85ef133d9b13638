// Package pgx is a PostgreSQL-backed esrt.Log, an alternative to the
// redisstreams adapter for deployments that would rather not run Redis.
// It keeps the same optimistic-concurrency and idempotent-replay contract,
// trading Redis Streams' native fan-out for a polled subscription cursor
// table (spec §4/§6 generalized to a relational backend).
package pgx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brindle/esrt"
)

func init() {
	esrt.RegisterBackend("postgres", func(cfg esrt.EventStoreConfig) (esrt.Log, error) {
		return newFromConfig(cfg)
	})
}

// Log is a PostgreSQL-backed esrt.Log. The schema it expects is in Schema.
type Log struct {
	pool         *pgxpool.Pool
	ownPool      bool
	pollInterval time.Duration
	initialDelay time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Log.
type Option func(*Log)

// WithPollInterval sets the delay between a subscription's polls. Default 1s.
func WithPollInterval(d time.Duration) Option {
	return func(l *Log) { l.pollInterval = d }
}

// WithInitialDelay sets how long a subscription waits before its first
// poll. Default 5s.
func WithInitialDelay(d time.Duration) Option {
	return func(l *Log) { l.initialDelay = d }
}

// New wraps an existing pool. The caller retains ownership of pool and must
// close it themselves; Close will not.
func New(pool *pgxpool.Pool, opts ...Option) *Log {
	ctx, cancel := context.WithCancel(context.Background())
	l := &Log{
		pool:         pool,
		pollInterval: time.Second,
		initialDelay: 5 * time.Second,
		ctx:          ctx,
		cancel:       cancel,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func newFromConfig(cfg esrt.EventStoreConfig) (*Log, error) {
	pool, err := pgxpool.New(context.Background(), cfg.Spec)
	if err != nil {
		return nil, &esrt.BackendError{Op: "pgxpool.New", Err: err}
	}
	l := New(pool)
	l.ownPool = true
	return l, nil
}

// Append implements esrt.Log using a row lock on stream_meta to serialize
// writers for a given stream.
func (l *Log) Append(ctx context.Context, streamID, txnID, expectedVersion string, events []esrt.Event) ([]esrt.Event, esrt.StreamMeta, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, esrt.StreamMeta{}, &esrt.BackendError{Op: "Begin", Err: err}
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var curVersion string
	var lastTxnID *string
	err = tx.QueryRow(ctx,
		`SELECT current_version, last_txn_id FROM stream_meta WHERE stream_id = $1 FOR UPDATE`,
		streamID,
	).Scan(&curVersion, &lastTxnID)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		curVersion = esrt.InitialVersion
	case err != nil:
		return nil, esrt.StreamMeta{}, &esrt.BackendError{Op: "Append/select-meta", Err: err}
	}

	if txnID != "" && lastTxnID != nil && *lastTxnID == txnID {
		if err := tx.Commit(ctx); err != nil {
			return nil, esrt.StreamMeta{}, &esrt.BackendError{Op: "Append/commit", Err: err}
		}
		return nil, esrt.StreamMeta{CurrentVersion: curVersion, LastTxnID: txnID}, nil
	}
	if curVersion != expectedVersion {
		return nil, esrt.StreamMeta{}, &esrt.ConcurrencyError{StreamID: streamID, ExpectedVersion: expectedVersion, ActualVersion: curVersion}
	}

	newMeta := esrt.StreamMeta{CurrentVersion: curVersion, LastTxnID: txnID}
	var assigned []esrt.Event
	if len(events) > 0 {
		versions, err := esrt.NextVersions(curVersion, len(events))
		if err != nil {
			return nil, esrt.StreamMeta{}, err
		}
		now := time.Now().UTC()
		assigned = make([]esrt.Event, len(events))
		for i, e := range events {
			e.Meta = esrt.Meta{TS: now, Version: versions[i]}
			assigned[i] = e

			data, err := json.Marshal(e.Data)
			if err != nil {
				return nil, esrt.StreamMeta{}, fmt.Errorf("esrt/pgx: could not encode event data: %w", err)
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO events (stream_id, version, event_type, data, ts) VALUES ($1, $2, $3, $4, $5)`,
				streamID, e.Meta.Version, e.Type, data, now,
			); err != nil {
				if isUniqueViolation(err) {
					return nil, esrt.StreamMeta{}, &esrt.ConcurrencyError{StreamID: streamID, ExpectedVersion: expectedVersion, ActualVersion: e.Meta.Version}
				}
				return nil, esrt.StreamMeta{}, &esrt.BackendError{Op: "Append/insert-event", Err: err}
			}
		}
		newMeta.CurrentVersion = versions[len(versions)-1]
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO stream_meta (stream_id, current_version, last_txn_id) VALUES ($1, $2, $3)
		 ON CONFLICT (stream_id) DO UPDATE SET current_version = EXCLUDED.current_version, last_txn_id = EXCLUDED.last_txn_id`,
		streamID, newMeta.CurrentVersion, nullableString(txnID),
	); err != nil {
		return nil, esrt.StreamMeta{}, &esrt.BackendError{Op: "Append/upsert-meta", Err: err}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, esrt.StreamMeta{}, &esrt.BackendError{Op: "Append/commit", Err: err}
	}
	return assigned, newMeta, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Read implements esrt.Log.
func (l *Log) Read(ctx context.Context, streamID, startVersion string, limit int) ([]esrt.Event, error) {
	var afterID int64
	if startVersion != "" && startVersion != esrt.InitialVersion {
		err := l.pool.QueryRow(ctx,
			`SELECT id FROM events WHERE stream_id = $1 AND version = $2`,
			streamID, startVersion,
		).Scan(&afterID)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, &esrt.BackendError{Op: "Read/lookup-cursor", Err: err}
		}
	}

	query := `SELECT event_type, data, version, ts FROM events WHERE stream_id = $1 AND id > $2 ORDER BY id ASC`
	args := []any{streamID, afterID}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, &esrt.BackendError{Op: "Read/query", Err: err}
	}
	defer rows.Close()

	var out []esrt.Event
	for rows.Next() {
		var eventType, version string
		var data []byte
		var ts time.Time
		if err := rows.Scan(&eventType, &data, &version, &ts); err != nil {
			return nil, &esrt.BackendError{Op: "Read/scan", Err: err}
		}
		var fields map[string]any
		if err := json.Unmarshal(data, &fields); err != nil {
			return nil, &esrt.BackendError{Op: "Read/decode", Err: err}
		}
		out = append(out, esrt.Event{Type: eventType, Data: fields, Meta: esrt.Meta{TS: ts, Version: version}})
	}
	if err := rows.Err(); err != nil {
		return nil, &esrt.BackendError{Op: "Read/rows", Err: err}
	}
	return out, nil
}

// Subscribe implements esrt.Log by polling the events table in id order,
// tracked by a durable cursor row per (subscriber, stream filter). It is
// the relational stand-in for the Redis adapter's consumer groups: the
// same at-least-once, ack-regardless-of-handler-error semantics apply.
func (l *Log) Subscribe(ctx context.Context, subscriberName string, opts esrt.SubscribeOptions, handler func(context.Context, esrt.Event) error) error {
	streamFilter := opts.Stream
	if streamFilter == "" {
		streamFilter = esrt.AllEventsStream
	}

	var startID int64
	if opts.StartFrom == esrt.StartFromLatest {
		err := l.pool.QueryRow(ctx, `SELECT COALESCE(MAX(id), 0) FROM events`).Scan(&startID)
		if err != nil {
			return &esrt.BackendError{Op: "Subscribe/max-id", Err: err}
		}
	}
	if _, err := l.pool.Exec(ctx,
		`INSERT INTO subscription_cursors (subscriber, stream_filter, last_id) VALUES ($1, $2, $3)
		 ON CONFLICT (subscriber, stream_filter) DO NOTHING`,
		subscriberName, streamFilter, startID,
	); err != nil {
		return &esrt.BackendError{Op: "Subscribe/init-cursor", Err: err}
	}

	l.wg.Add(1)
	go l.runSubscription(subscriberName, streamFilter, handler)
	return nil
}

func (l *Log) runSubscription(subscriberName, streamFilter string, handler func(context.Context, esrt.Event) error) {
	defer l.wg.Done()

	select {
	case <-time.After(l.initialDelay):
	case <-l.ctx.Done():
		return
	}

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()
	for {
		l.poll(subscriberName, streamFilter, handler)
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (l *Log) poll(subscriberName, streamFilter string, handler func(context.Context, esrt.Event) error) {
	var lastID int64
	if err := l.pool.QueryRow(l.ctx,
		`SELECT last_id FROM subscription_cursors WHERE subscriber = $1 AND stream_filter = $2`,
		subscriberName, streamFilter,
	).Scan(&lastID); err != nil {
		return
	}

	var rows pgxRows
	var err error
	if streamFilter == esrt.AllEventsStream {
		rows, err = l.pool.Query(l.ctx,
			`SELECT id, event_type, data, version, ts FROM events WHERE id > $1 ORDER BY id ASC LIMIT 100`,
			lastID,
		)
	} else {
		rows, err = l.pool.Query(l.ctx,
			`SELECT id, event_type, data, version, ts FROM events WHERE stream_id = $1 AND id > $2 ORDER BY id ASC LIMIT 100`,
			streamFilter, lastID,
		)
	}
	if err != nil {
		return
	}
	defer rows.Close()

	advanced := lastID
	for rows.Next() {
		var id int64
		var eventType, version string
		var data []byte
		var ts time.Time
		if err := rows.Scan(&id, &eventType, &data, &version, &ts); err != nil {
			continue
		}
		var fields map[string]any
		if err := json.Unmarshal(data, &fields); err == nil {
			if herr := handler(l.ctx, esrt.Event{Type: eventType, Data: fields, Meta: esrt.Meta{TS: ts, Version: version}}); herr != nil {
				log.Printf("esrt/pgx: subscription %s handler failed on %s event %s; acknowledging anyway: %v", subscriberName, eventType, version, herr)
			}
		}
		advanced = id
	}
	rows.Close()

	if advanced != lastID {
		_, _ = l.pool.Exec(l.ctx,
			`UPDATE subscription_cursors SET last_id = $1 WHERE subscriber = $2 AND stream_filter = $3`,
			advanced, subscriberName, streamFilter,
		)
	}
}

// pgxRows is the subset of pgx.Rows this file uses, kept narrow so poll's
// two query shapes can share one code path.
type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Close()
	Err() error
}

// SaveSnapshot implements esrt.Log.
func (l *Log) SaveSnapshot(ctx context.Context, streamID string, snap esrt.Snapshot) error {
	data, err := json.Marshal(snap.Data)
	if err != nil {
		return fmt.Errorf("esrt/pgx: could not encode snapshot: %w", err)
	}
	_, err = l.pool.Exec(ctx,
		`INSERT INTO snapshots (stream_id, version, data, ts) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (stream_id) DO UPDATE SET version = EXCLUDED.version, data = EXCLUDED.data, ts = EXCLUDED.ts`,
		streamID, snap.Meta.Version, data, snap.Meta.TS,
	)
	if err != nil {
		return &esrt.BackendError{Op: "SaveSnapshot", Err: err}
	}
	return nil
}

// GetSnapshot implements esrt.Log.
func (l *Log) GetSnapshot(ctx context.Context, streamID string) (esrt.Snapshot, error) {
	var version string
	var data []byte
	var ts time.Time
	err := l.pool.QueryRow(ctx,
		`SELECT version, data, ts FROM snapshots WHERE stream_id = $1`,
		streamID,
	).Scan(&version, &data, &ts)
	if errors.Is(err, pgx.ErrNoRows) {
		return esrt.Snapshot{Found: false}, nil
	}
	if err != nil {
		return esrt.Snapshot{}, &esrt.BackendError{Op: "GetSnapshot", Err: err}
	}
	var state any
	if err := json.Unmarshal(data, &state); err != nil {
		return esrt.Snapshot{}, fmt.Errorf("esrt/pgx: could not decode snapshot: %w", err)
	}
	return esrt.Snapshot{Meta: esrt.Meta{TS: ts, Version: version}, Data: state, Found: true}, nil
}

// Close stops every subscription's polling goroutine. If the Log owns its
// pool (constructed from an esrt.EventStoreConfig), it closes that pool too.
func (l *Log) Close() error {
	l.cancel()
	l.wg.Wait()
	if l.ownPool {
		l.pool.Close()
	}
	return nil
}

var _ esrt.Log = (*Log)(nil)
