// Package logtest is a shared compliance suite for esrt.Log
// implementations, exercising the invariants of spec §3 and the
// properties of spec §8. stores/mem and stores/redisstreams both run it.
package logtest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/brindle/esrt"
)

// Factory creates a new, isolated Log instance for one test. Use
// t.Cleanup for teardown.
type Factory func(t *testing.T) esrt.Log

// Run executes the compliance suite against newLog. Subtests run in
// parallel, so implementations must be concurrency-safe.
func Run(t *testing.T, newLog Factory) {
	t.Run("append assigns increasing base-batch versions", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		log := newLog(t)
		streamID := uuid.NewString()

		out, meta, err := log.Append(ctx, streamID, uuid.NewString(), esrt.InitialVersion, []esrt.Event{
			{Type: "Opened", Data: map[string]any{"id": "1"}},
		})
		if err != nil {
			t.Fatalf("append failed: %v", err)
		}
		if len(out) != 1 || out[0].Meta.Version != "1-0" {
			t.Fatalf("expected version 1-0, got %+v", out)
		}
		if meta.CurrentVersion != "1-0" {
			t.Fatalf("expected current version 1-0, got %s", meta.CurrentVersion)
		}

		out, meta, err = log.Append(ctx, streamID, uuid.NewString(), meta.CurrentVersion, []esrt.Event{
			{Type: "Added", Data: map[string]any{"n": 5}},
			{Type: "Added", Data: map[string]any{"n": 6}},
		})
		if err != nil {
			t.Fatalf("append failed: %v", err)
		}
		if len(out) != 2 || out[0].Meta.Version != "2-0" || out[1].Meta.Version != "2-1" {
			t.Fatalf("expected versions 2-0,2-1, got %+v", out)
		}
		if meta.CurrentVersion != "2-1" {
			t.Fatalf("expected current version 2-1, got %s", meta.CurrentVersion)
		}

		evs, err := log.Read(ctx, streamID, esrt.InitialVersion, 0)
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if len(evs) != 3 {
			t.Fatalf("expected 3 events, got %d", len(evs))
		}
		for i := 1; i < len(evs); i++ {
			after, err := esrt.VersionAfter(evs[i].Meta.Version, evs[i-1].Meta.Version)
			if err != nil || !after {
				t.Fatalf("versions not strictly increasing at %d: %+v", i, evs)
			}
		}
	})

	t.Run("concurrency conflict on stale expected version", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		log := newLog(t)
		streamID := uuid.NewString()

		if _, _, err := log.Append(ctx, streamID, uuid.NewString(), esrt.InitialVersion, []esrt.Event{
			{Type: "Opened", Data: map[string]any{"id": "1"}},
		}); err != nil {
			t.Fatalf("append failed: %v", err)
		}

		_, _, err := log.Append(ctx, streamID, uuid.NewString(), esrt.InitialVersion, []esrt.Event{
			{Type: "Added", Data: map[string]any{"n": 1}},
		})
		var ce *esrt.ConcurrencyError
		if !errors.As(err, &ce) {
			t.Fatalf("expected ConcurrencyError, got %v", err)
		}
		if !errors.Is(err, esrt.ErrConcurrencyError) {
			t.Fatalf("errors.Is(err, ErrConcurrencyError) failed")
		}

		evs, err := log.Read(ctx, streamID, esrt.InitialVersion, 0)
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if len(evs) != 1 {
			t.Fatalf("failing append must not have written events, got %d", len(evs))
		}
	})

	t.Run("idempotent replay of the same txn id is a no-op", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		log := newLog(t)
		streamID := uuid.NewString()
		txnID := uuid.NewString()

		if _, _, err := log.Append(ctx, streamID, txnID, esrt.InitialVersion, []esrt.Event{
			{Type: "Opened", Data: map[string]any{"id": "1"}},
		}); err != nil {
			t.Fatalf("append failed: %v", err)
		}

		if _, meta, err := log.Append(ctx, streamID, txnID, esrt.InitialVersion, []esrt.Event{
			{Type: "Opened", Data: map[string]any{"id": "1"}},
		}); err != nil {
			t.Fatalf("repeated append with same txn id must not error: %v", err)
		} else if meta.CurrentVersion != "1-0" {
			t.Fatalf("expected unchanged metadata version 1-0, got %s", meta.CurrentVersion)
		}

		evs, err := log.Read(ctx, streamID, esrt.InitialVersion, 0)
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if len(evs) != 1 {
			t.Fatalf("stream must be unchanged after idempotent replay, got %d events", len(evs))
		}
	})

	t.Run("snapshot round-trip", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		log := newLog(t)
		streamID := uuid.NewString()

		if snap, err := log.GetSnapshot(ctx, streamID); err != nil {
			t.Fatalf("get snapshot failed: %v", err)
		} else if snap.Found {
			t.Fatalf("expected no snapshot, got %+v", snap)
		}

		want := esrt.Snapshot{
			Meta: esrt.Meta{TS: time.Now().UTC().Truncate(time.Second), Version: "1-0"},
			Data: map[string]any{"balance": float64(10)},
		}
		if err := log.SaveSnapshot(ctx, streamID, want); err != nil {
			t.Fatalf("save snapshot failed: %v", err)
		}

		got, err := log.GetSnapshot(ctx, streamID)
		if err != nil {
			t.Fatalf("get snapshot failed: %v", err)
		}
		if !got.Found || got.Meta.Version != want.Meta.Version {
			t.Fatalf("expected snapshot %+v, got %+v", want, got)
		}
	})

	t.Run("at-least-once delivery on the fan-out stream", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		log := newLog(t)
		t.Cleanup(func() { _ = log.Close() })

		streamID := uuid.NewString()
		if _, _, err := log.Append(ctx, streamID, uuid.NewString(), esrt.InitialVersion, []esrt.Event{
			{Type: "Opened", Data: map[string]any{"id": "1"}},
		}); err != nil {
			t.Fatalf("append failed: %v", err)
		}

		var mu sync.Mutex
		var got []esrt.Event
		done := make(chan struct{}, 1)
		sub := "sub-" + uuid.NewString()
		err := log.Subscribe(ctx, sub, esrt.SubscribeOptions{StartFrom: esrt.StartFromOrigin}, func(_ context.Context, e esrt.Event) error {
			mu.Lock()
			got = append(got, e)
			mu.Unlock()
			select {
			case done <- struct{}{}:
			default:
			}
			return nil
		})
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for delivery")
		}

		mu.Lock()
		defer mu.Unlock()
		if len(got) == 0 {
			t.Fatal("expected at least one delivered event")
		}
	})

	t.Run("start-from-latest skips events appended before subscribe", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		log := newLog(t)
		t.Cleanup(func() { _ = log.Close() })

		streamID := uuid.NewString()
		if _, _, err := log.Append(ctx, streamID, uuid.NewString(), esrt.InitialVersion, []esrt.Event{
			{Type: "MoneyDeposited", Data: map[string]any{"amount": 1}},
		}); err != nil {
			t.Fatalf("append failed: %v", err)
		}

		var mu sync.Mutex
		var count int
		sub := "sub-" + uuid.NewString()
		if err := log.Subscribe(ctx, sub, esrt.SubscribeOptions{StartFrom: esrt.StartFromLatest}, func(_ context.Context, e esrt.Event) error {
			mu.Lock()
			count++
			mu.Unlock()
			return nil
		}); err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}

		time.Sleep(50 * time.Millisecond)
		mu.Lock()
		if count != 0 {
			mu.Unlock()
			t.Fatalf("expected zero deliveries for pre-existing events, got %d", count)
		}
		mu.Unlock()

		if _, _, err := log.Append(ctx, streamID, uuid.NewString(), "1-0", []esrt.Event{
			{Type: "MoneyDeposited", Data: map[string]any{"amount": 2}},
		}); err != nil {
			t.Fatalf("append failed: %v", err)
		}

		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			mu.Lock()
			c := count
			mu.Unlock()
			if c == 1 {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
		t.Fatal("expected exactly one delivery for the post-subscribe deposit")
	})
}
