package redisstreams_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/brindle/esrt"
	"github.com/brindle/esrt/internal/logtest"
	"github.com/brindle/esrt/stores/redisstreams"
)

func newTestLog(t *testing.T) *redisstreams.Log {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	log := redisstreams.New(client, redisstreams.Config{
		PoolSize:     4,
		InitialDelay: 5 * time.Millisecond,
		TickInterval: 5 * time.Millisecond,
	})
	t.Cleanup(func() { log.Close() })
	return log
}

func TestLog_Compliance(t *testing.T) {
	t.Parallel()
	logtest.Run(t, func(t *testing.T) esrt.Log {
		t.Helper()
		return newTestLog(t)
	})
}

func TestLog_KeyLayout(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	log := redisstreams.New(client, redisstreams.Config{
		InitialDelay: 5 * time.Millisecond,
		TickInterval: 5 * time.Millisecond,
	})
	t.Cleanup(func() { log.Close() })

	streamID := esrt.StreamID("bank", "account", "acct-1")
	_, _, err := log.Append(context.Background(), streamID, "txn-1", esrt.InitialVersion, []esrt.Event{
		{Type: "account.opened", Data: map[string]any{"balance": float64(0)}},
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	if !mr.Exists("es:stream/" + streamID) {
		t.Errorf("expected per-stream key es:stream/%s to exist", streamID)
	}
	if !mr.Exists("es:stream/all-events") {
		t.Error("expected global fan-out key es:stream/all-events to exist")
	}
	if !mr.Exists("es:meta/" + streamID) {
		t.Errorf("expected meta key es:meta/%s to exist", streamID)
	}
}
