package esrt

import (
	"testing"
	"time"
)

func TestEncodeDecodeEventFields_RoundTrip(t *testing.T) {
	e := Event{
		Type: "AccountOpened",
		Data: map[string]any{"owner": "Taro", "balance": float64(1000)},
		Meta: Meta{TS: time.Now().UTC().Truncate(time.Second), Version: "1-0"},
	}
	meta, event, err := EncodeEventFields(e)
	if err != nil {
		t.Fatalf("EncodeEventFields: %v", err)
	}
	got, err := DecodeEventFields(meta, event)
	if err != nil {
		t.Fatalf("DecodeEventFields: %v", err)
	}
	if got.Type != e.Type || got.Meta.Version != e.Meta.Version || !got.Meta.TS.Equal(e.Meta.TS) {
		t.Fatalf("got %+v, want %+v", got, e)
	}
	if got.Data["owner"] != "Taro" || got.Data["balance"] != float64(1000) {
		t.Fatalf("data not preserved: %+v", got.Data)
	}
}

func TestEncodeDecodeSnapshot_RoundTrip(t *testing.T) {
	s := Snapshot{
		Meta: Meta{TS: time.Now().UTC().Truncate(time.Second), Version: "3-0"},
		Data: map[string]any{"balance": float64(42)},
	}
	b, err := EncodeSnapshot(s)
	if err != nil {
		t.Fatalf("EncodeSnapshot: %v", err)
	}
	got, err := DecodeSnapshot(b)
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}
	if !got.Found {
		t.Fatal("expected Found true after decode")
	}
	if got.Meta.Version != s.Meta.Version {
		t.Fatalf("got version %q, want %q", got.Meta.Version, s.Meta.Version)
	}
}

func TestStreamID(t *testing.T) {
	cases := []struct {
		app, aggregate, id, want string
	}{
		{"bank", "account", "acct-1", "bank:account:acct-1"},
		{"billing/core", "invoice", "inv-1", "billing.core:invoice:inv-1"},
	}
	for _, c := range cases {
		if got := StreamID(c.app, c.aggregate, c.id); got != c.want {
			t.Fatalf("StreamID(%q,%q,%q) = %q, want %q", c.app, c.aggregate, c.id, got, c.want)
		}
	}
}
