// Package mem is an in-memory esrt.Log implementation. It is
// concurrency-safe and suitable for tests, prototypes, and local runs.
// NOTE: events, snapshots, and subscription cursors are kept in-process
// and are lost on restart.
package mem

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/brindle/esrt"
)

func init() {
	esrt.RegisterBackend("mem", func(esrt.EventStoreConfig) (esrt.Log, error) {
		return New(), nil
	})
}

// Log is an in-memory esrt.Log.
type Log struct {
	mu        sync.Mutex
	streams   map[string][]esrt.Event
	meta      map[string]esrt.StreamMeta
	snapshots map[string]esrt.Snapshot
	// cursors tracks delivery progress as a count of events already
	// delivered from the front of the target stream's slice, not by
	// version string: the all-events stream interleaves events from many
	// aggregate streams, each minting its own independent "1-0", "2-0", ...
	// sequence, so two unrelated streams can and do mint the same version
	// string. Comparing by version would let one collide with and mask
	// the other.
	cursors map[string]int

	pollInterval time.Duration
	initialDelay time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

// Option configures a mem.Log.
type Option func(*Log)

// WithPollInterval overrides the tick interval subscriptions poll on. The
// default (5ms) favors fast tests over fidelity to the Redis adapter's
// production-scale (~1s) cadence, since this backend targets tests and
// local runs rather than production traffic.
func WithPollInterval(d time.Duration) Option {
	return func(l *Log) { l.pollInterval = d }
}

// WithInitialDelay overrides the delay before a subscription's first poll.
func WithInitialDelay(d time.Duration) Option {
	return func(l *Log) { l.initialDelay = d }
}

// New creates a new in-memory Log.
func New(opts ...Option) *Log {
	ctx, cancel := context.WithCancel(context.Background())
	l := &Log{
		streams:      make(map[string][]esrt.Event),
		meta:         make(map[string]esrt.StreamMeta),
		snapshots:    make(map[string]esrt.Snapshot),
		cursors:      make(map[string]int),
		pollInterval: 5 * time.Millisecond,
		initialDelay: 5 * time.Millisecond,
		ctx:          ctx,
		cancel:       cancel,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append implements esrt.Log.
func (l *Log) Append(_ context.Context, streamID, txnID, expectedVersion string, events []esrt.Event) ([]esrt.Event, esrt.StreamMeta, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur, ok := l.meta[streamID]
	if !ok {
		cur = esrt.StreamMeta{CurrentVersion: esrt.InitialVersion}
	}

	if txnID != "" && cur.LastTxnID == txnID {
		return nil, cur, nil
	}
	if cur.CurrentVersion != expectedVersion {
		return nil, esrt.StreamMeta{}, &esrt.ConcurrencyError{
			StreamID:        streamID,
			ExpectedVersion: expectedVersion,
			ActualVersion:   cur.CurrentVersion,
		}
	}
	if len(events) == 0 {
		return nil, cur, nil
	}

	versions, err := esrt.NextVersions(cur.CurrentVersion, len(events))
	if err != nil {
		return nil, esrt.StreamMeta{}, err
	}

	now := time.Now()
	out := make([]esrt.Event, len(events))
	for i, e := range events {
		e.Meta = esrt.Meta{TS: now, Version: versions[i]}
		out[i] = e
	}

	l.streams[streamID] = append(l.streams[streamID], out...)
	l.streams[esrt.AllEventsStream] = append(l.streams[esrt.AllEventsStream], out...)

	newMeta := esrt.StreamMeta{CurrentVersion: versions[len(versions)-1], LastTxnID: txnID}
	l.meta[streamID] = newMeta

	return out, newMeta, nil
}

// Read implements esrt.Log.
func (l *Log) Read(_ context.Context, streamID, startVersion string, limit int) ([]esrt.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if startVersion == "" {
		startVersion = esrt.InitialVersion
	}
	seq := l.streams[streamID]
	out := make([]esrt.Event, 0, len(seq))
	for _, e := range seq {
		after, err := esrt.VersionAfter(e.Meta.Version, startVersion)
		if err != nil {
			return nil, err
		}
		if !after {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Subscribe implements esrt.Log. Delivery runs on a background goroutine
// that polls the source stream at pollInterval.
func (l *Log) Subscribe(_ context.Context, subscriberName string, opts esrt.SubscribeOptions, handler func(context.Context, esrt.Event) error) error {
	stream := opts.Stream
	if stream == "" {
		stream = esrt.AllEventsStream
	}
	key := subscriberName + "|" + stream

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return errClosed
	}
	if _, exists := l.cursors[key]; !exists {
		if opts.StartFrom == esrt.StartFromLatest {
			l.cursors[key] = len(l.streams[stream])
		} else {
			l.cursors[key] = 0
		}
	}
	l.mu.Unlock()

	l.wg.Add(1)
	go l.poll(key, stream, handler)
	return nil
}

func (l *Log) poll(key, stream string, handler func(context.Context, esrt.Event) error) {
	defer l.wg.Done()

	timer := time.NewTimer(l.initialDelay)
	defer timer.Stop()
	for {
		select {
		case <-l.ctx.Done():
			return
		case <-timer.C:
		}

		l.mu.Lock()
		cursor := l.cursors[key]
		due := append([]esrt.Event(nil), l.streams[stream][cursor:]...)
		l.mu.Unlock()

		for _, e := range due {
			if err := handler(l.ctx, e); err != nil {
				log.Printf("esrt/mem: subscription handler failed on %s event %s; acknowledging anyway: %v", e.Type, e.Meta.Version, err)
			}
		}
		if len(due) > 0 {
			l.mu.Lock()
			l.cursors[key] = cursor + len(due)
			l.mu.Unlock()
		}

		timer.Reset(l.pollInterval)
	}
}

// SaveSnapshot implements esrt.Log.
func (l *Log) SaveSnapshot(_ context.Context, streamID string, snap esrt.Snapshot) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.snapshots[streamID] = snap
	return nil
}

// GetSnapshot implements esrt.Log.
func (l *Log) GetSnapshot(_ context.Context, streamID string) (esrt.Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	snap, ok := l.snapshots[streamID]
	if !ok {
		return esrt.Snapshot{Found: false}, nil
	}
	snap.Found = true
	return snap, nil
}

// Close implements esrt.Log.
func (l *Log) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	l.cancel()
	l.wg.Wait()
	return nil
}

var _ esrt.Log = (*Log)(nil)

type closedError struct{}

func (closedError) Error() string { return "esrt/mem: log is closed" }

var errClosed = closedError{}
