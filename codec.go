package esrt

import (
	"encoding/json"
	"fmt"
	"time"
)

// wireEvent and wireMeta are the two JSON-encoded fields every concrete log
// adapter writes per stream entry (spec §6: "a two-field map: meta ->
// {ts, version}, event -> {type, data}"). Since event data is dynamic-typed
// (plain maps) rather than a generic Go type, adapters no longer need a
// per-event-type codec the way the teacher's EventCodec did — there is
// exactly one wire shape, shared here. stores/redisstreams persists every
// stream entry and snapshot through it; stores/pgx does not use it and
// keeps type, data, version and timestamp in separate table columns.
type wireEvent struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

type wireMeta struct {
	TS      time.Time `json:"ts"`
	Version string    `json:"version"`
}

// EncodeEventFields renders an Event into the two JSON blobs a concrete
// adapter persists alongside each other for one stream entry.
func EncodeEventFields(e Event) (meta []byte, event []byte, err error) {
	meta, err = json.Marshal(wireMeta{TS: e.Meta.TS, Version: e.Meta.Version})
	if err != nil {
		return nil, nil, fmt.Errorf("esrt: could not encode event meta: %w", err)
	}
	event, err = json.Marshal(wireEvent{Type: e.Type, Data: e.Data})
	if err != nil {
		return nil, nil, fmt.Errorf("esrt: could not encode event: %w", err)
	}
	return meta, event, nil
}

// DecodeEventFields is the inverse of EncodeEventFields.
func DecodeEventFields(meta, event []byte) (Event, error) {
	var wm wireMeta
	if err := json.Unmarshal(meta, &wm); err != nil {
		return Event{}, fmt.Errorf("esrt: could not decode event meta: %w", err)
	}
	var we wireEvent
	if err := json.Unmarshal(event, &we); err != nil {
		return Event{}, fmt.Errorf("esrt: could not decode event: %w", err)
	}
	return Event{
		Type: we.Type,
		Data: we.Data,
		Meta: Meta{TS: wm.TS, Version: wm.Version},
	}, nil
}

// EncodeSnapshot/DecodeSnapshot give adapters a single shared representation
// for the opaque {meta, data} snapshot blob (spec §3).
type wireSnapshot struct {
	TS      time.Time `json:"ts"`
	Version string    `json:"version"`
	Data    any       `json:"data"`
}

func EncodeSnapshot(s Snapshot) ([]byte, error) {
	b, err := json.Marshal(wireSnapshot{TS: s.Meta.TS, Version: s.Meta.Version, Data: s.Data})
	if err != nil {
		return nil, fmt.Errorf("esrt: could not encode snapshot: %w", err)
	}
	return b, nil
}

func DecodeSnapshot(b []byte) (Snapshot, error) {
	var ws wireSnapshot
	if err := json.Unmarshal(b, &ws); err != nil {
		return Snapshot{}, fmt.Errorf("esrt: could not decode snapshot: %w", err)
	}
	return Snapshot{Meta: Meta{TS: ws.TS, Version: ws.Version}, Data: ws.Data, Found: true}, nil
}
