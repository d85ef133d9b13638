// Package redisstreams is the concrete Redis Streams Log adapter (spec
// §4.2/§6.3): one Redis stream per aggregate plus a global fan-out stream,
// a metadata key for optimistic concurrency, and consumer groups for
// durable subscriptions. Its on-wire key layout is a compatibility surface
// and must stay bit-exact with what the spec documents.
package redisstreams

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/brindle/esrt"
)

func init() {
	esrt.RegisterBackend("redis", func(cfg esrt.EventStoreConfig) (esrt.Log, error) {
		return newFromConfig(cfg)
	})
}

// Config holds the Log's operational knobs. PoolSize, InitialDelay, and
// TickInterval are the "only concurrency knobs the adapter exposes" per
// spec §4.2/§5.
type Config struct {
	// PoolSize bounds the number of subscription poll ticks running
	// concurrently across every subscriber. Default 10.
	PoolSize int
	// InitialDelay is how long a subscription waits before its first
	// poll. Default ~5s.
	InitialDelay time.Duration
	// TickInterval is the delay between a subscription's polls. Default ~1s.
	TickInterval time.Duration
	Log          LogConfig
}

func (c Config) withDefaults() Config {
	if c.PoolSize <= 0 {
		c.PoolSize = 10
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 5 * time.Second
	}
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	return c
}

// Log is a Redis-Streams-backed esrt.Log.
type Log struct {
	client    redis.UniversalClient
	ownClient bool
	cfg       Config
	logger    zerolog.Logger

	sem chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wraps an existing Redis client. The caller retains ownership of
// client and must close it themselves; Close will not.
func New(client redis.UniversalClient, cfg Config) *Log {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Log{
		client: client,
		cfg:    cfg,
		logger: withComponent(newLogger(cfg.Log), "redisstreams"),
		sem:    make(chan struct{}, cfg.PoolSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

func newFromConfig(cfg esrt.EventStoreConfig) (*Log, error) {
	opts, err := redis.ParseURL(cfg.Spec)
	if err != nil {
		return nil, &esrt.BackendError{Op: "ParseURL", Err: err}
	}
	if size, ok := cfg.Pool["size"].(int); ok && size > 0 {
		opts.PoolSize = size
	}
	client := redis.NewClient(opts)

	logCfg := Config{}.withDefaults()
	if v, ok := cfg.Pool["workers"].(int); ok && v > 0 {
		logCfg.PoolSize = v
	}

	l := New(client, logCfg)
	l.ownClient = true
	return l, nil
}

// streamKeyFor resolves a subscription source name (either
// esrt.AllEventsStream or a specific full stream id) to its Redis key.
func streamKeyFor(name string) string {
	if name == "" || name == esrt.AllEventsStream {
		return allEventsKey()
	}
	return streamKey(name)
}

// Append implements esrt.Log (spec §4.2's WATCH/MULTI/EXEC protocol).
func (l *Log) Append(ctx context.Context, streamID, txnID, expectedVersion string, events []esrt.Event) ([]esrt.Event, esrt.StreamMeta, error) {
	mkey := metaKey(streamID)
	skey := streamKey(streamID)

	var result []esrt.Event
	var resultMeta esrt.StreamMeta

	txf := func(tx *redis.Tx) error {
		cur, err := readMeta(ctx, tx, mkey)
		if err != nil {
			return err
		}

		if txnID != "" && cur.LastTxnID == txnID {
			result = nil
			resultMeta = cur
			return nil
		}
		if cur.CurrentVersion != expectedVersion {
			return &esrt.ConcurrencyError{StreamID: streamID, ExpectedVersion: expectedVersion, ActualVersion: cur.CurrentVersion}
		}
		if len(events) == 0 {
			result = nil
			resultMeta = cur
			return nil
		}

		versions, err := esrt.NextVersions(cur.CurrentVersion, len(events))
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		assigned := make([]esrt.Event, len(events))
		for i, e := range events {
			e.Meta = esrt.Meta{TS: now, Version: versions[i]}
			assigned[i] = e
		}
		newMeta := esrt.StreamMeta{CurrentVersion: versions[len(versions)-1], LastTxnID: txnID}
		metaBytes, err := json.Marshal(newMeta)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, mkey, metaBytes, 0)
			for _, e := range assigned {
				metaField, eventField, err := esrt.EncodeEventFields(e)
				if err != nil {
					return err
				}
				values := map[string]any{"meta": metaField, "event": eventField}
				pipe.XAdd(ctx, &redis.XAddArgs{Stream: skey, ID: e.Meta.Version, Values: values})
				pipe.XAdd(ctx, &redis.XAddArgs{Stream: allEventsKey(), ID: "*", Values: values})
			}
			return nil
		})
		if err != nil {
			return err
		}
		result = assigned
		resultMeta = newMeta
		return nil
	}

	err := l.client.Watch(ctx, txf, mkey)
	if err != nil {
		var ce *esrt.ConcurrencyError
		if errors.As(err, &ce) {
			return nil, esrt.StreamMeta{}, ce
		}
		if errors.Is(err, redis.TxFailedErr) {
			return nil, esrt.StreamMeta{}, &esrt.ConcurrencyError{StreamID: streamID, ExpectedVersion: expectedVersion}
		}
		return nil, esrt.StreamMeta{}, &esrt.BackendError{Op: "Append", Err: err}
	}
	return result, resultMeta, nil
}

func readMeta(ctx context.Context, cmdable redis.Cmdable, key string) (esrt.StreamMeta, error) {
	raw, err := cmdable.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return esrt.StreamMeta{CurrentVersion: esrt.InitialVersion}, nil
	}
	if err != nil {
		return esrt.StreamMeta{}, err
	}
	var m esrt.StreamMeta
	if err := json.Unmarshal(raw, &m); err != nil {
		return esrt.StreamMeta{}, err
	}
	return m, nil
}

// Read implements esrt.Log.
func (l *Log) Read(ctx context.Context, streamID, startVersion string, limit int) ([]esrt.Event, error) {
	if startVersion == "" {
		startVersion = esrt.InitialVersion
	}
	start := "(" + startVersion

	var msgs []redis.XMessage
	var err error
	if limit > 0 {
		msgs, err = l.client.XRangeN(ctx, streamKey(streamID), start, "+", int64(limit)).Result()
	} else {
		msgs, err = l.client.XRange(ctx, streamKey(streamID), start, "+").Result()
	}
	if err != nil {
		return nil, &esrt.BackendError{Op: "XRange", Err: err}
	}

	out := make([]esrt.Event, 0, len(msgs))
	for _, m := range msgs {
		ev, err := decodeMessage(m)
		if err != nil {
			return nil, &esrt.BackendError{Op: "Read/decode", Err: err}
		}
		out = append(out, ev)
	}
	return out, nil
}

func decodeMessage(m redis.XMessage) (esrt.Event, error) {
	metaStr, _ := m.Values["meta"].(string)
	eventStr, _ := m.Values["event"].(string)
	return esrt.DecodeEventFields([]byte(metaStr), []byte(eventStr))
}

// Subscribe implements esrt.Log using a Redis consumer group named
// subscriberName, with a single consumer "<subscriberName>-0" (spec §4.2).
func (l *Log) Subscribe(ctx context.Context, subscriberName string, opts esrt.SubscribeOptions, handler func(context.Context, esrt.Event) error) error {
	key := streamKeyFor(opts.Stream)
	start := "0"
	if opts.StartFrom == esrt.StartFromLatest {
		start = "$"
	}

	if err := l.client.XGroupCreateMkStream(ctx, key, subscriberName, start).Err(); err != nil && !isBusyGroup(err) {
		return &esrt.BackendError{Op: "XGroupCreateMkStream", Err: err}
	}

	l.wg.Add(1)
	go l.runSubscription(key, subscriberName, handler)
	return nil
}

func isBusyGroup(err error) bool {
	return strings.Contains(err.Error(), "BUSYGROUP")
}

func (l *Log) runSubscription(streamKey, subscriber string, handler func(context.Context, esrt.Event) error) {
	defer l.wg.Done()

	consumer := consumerName(subscriber)
	logger := l.logger.With().Str("subscriber", subscriber).Str("stream", streamKey).Logger()

	timer := time.NewTimer(l.cfg.InitialDelay)
	defer timer.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-timer.C:
		}

		select {
		case l.sem <- struct{}{}:
			l.tick(streamKey, subscriber, consumer, handler, logger)
			<-l.sem
		case <-l.ctx.Done():
			return
		}

		timer.Reset(l.cfg.TickInterval)
	}
}

// tick drains un-acked messages (ID "0") then new ones (ID ">"), per spec
// §4.2. Handler errors are logged and the message acknowledged anyway,
// never retried (at-least-once, not poison-pill-safe by redelivery).
// Read/transport errors are logged and leave the cursor un-advanced.
func (l *Log) tick(streamKey, group, consumer string, handler func(context.Context, esrt.Event) error, logger zerolog.Logger) {
	l.drain(streamKey, group, consumer, "0", handler, logger)
	l.drain(streamKey, group, consumer, ">", handler, logger)
}

func (l *Log) drain(streamKey, group, consumer, id string, handler func(context.Context, esrt.Event) error, logger zerolog.Logger) {
	res, err := l.client.XReadGroup(l.ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{streamKey, id},
		Count:    64,
	}).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Error().Err(err).Str("read_id", id).Msg("subscription read failed; cursor left un-advanced")
		}
		return
	}

	for _, stream := range res {
		for _, msg := range stream.Messages {
			ev, err := decodeMessage(msg)
			if err != nil {
				logger.Error().Err(err).Str("id", msg.ID).Msg("could not decode stream entry; acknowledging to avoid a poison pill")
			} else if herr := handler(l.ctx, ev); herr != nil {
				logger.Error().Err(herr).Str("event_type", ev.Type).Msg("subscription handler failed; acknowledging anyway")
			}
			if ackErr := l.client.XAck(l.ctx, streamKey, group, msg.ID).Err(); ackErr != nil {
				logger.Error().Err(ackErr).Str("id", msg.ID).Msg("ack failed")
			}
		}
	}
}

// SaveSnapshot implements esrt.Log.
func (l *Log) SaveSnapshot(ctx context.Context, streamID string, snap esrt.Snapshot) error {
	b, err := esrt.EncodeSnapshot(snap)
	if err != nil {
		return err
	}
	if err := l.client.Set(ctx, snapshotKey(streamID), b, 0).Err(); err != nil {
		return &esrt.BackendError{Op: "SaveSnapshot", Err: err}
	}
	return nil
}

// GetSnapshot implements esrt.Log.
func (l *Log) GetSnapshot(ctx context.Context, streamID string) (esrt.Snapshot, error) {
	raw, err := l.client.Get(ctx, snapshotKey(streamID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return esrt.Snapshot{Found: false}, nil
	}
	if err != nil {
		return esrt.Snapshot{}, &esrt.BackendError{Op: "GetSnapshot", Err: err}
	}
	snap, err := esrt.DecodeSnapshot(raw)
	if err != nil {
		return esrt.Snapshot{}, &esrt.BackendError{Op: "GetSnapshot/decode", Err: err}
	}
	return snap, nil
}

// Close halts every subscription's background polling. If the Log owns its
// Redis client (constructed from an esrt.EventStoreConfig), it closes that
// client too.
func (l *Log) Close() error {
	l.cancel()
	l.wg.Wait()
	if l.ownClient {
		if err := l.client.Close(); err != nil {
			return &esrt.BackendError{Op: "Close", Err: err}
		}
	}
	return nil
}

var _ esrt.Log = (*Log)(nil)
