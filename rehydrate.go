package esrt

import (
	"context"
	"time"
)

// State is the result of rehydration: the aggregate's current data and the
// meta of the last event folded into it.
type State struct {
	Meta Meta
	Data any
}

// tsMin is the timestamp assigned to State when rehydration starts from
// nothing (no snapshot, no events yet).
var tsMin = time.Time{}

// Rehydrate reproduces an aggregate's current state by folding its event
// stream, optionally starting from a snapshot (spec §4.5). It is pure:
// calling it twice between appends returns an equal result, so it is safe
// to retry freely on concurrency failure.
func Rehydrate(ctx context.Context, log Log, reg *Registry, aggregateName, aggregateID, appName string) (State, error) {
	agg, ok := reg.Aggregate(aggregateName)
	if !ok {
		return State{}, &BackendError{Op: "rehydrate", Err: errUnknownAggregate(aggregateName)}
	}
	streamID := StreamID(appName, aggregateName, aggregateID)

	state := State{Meta: Meta{TS: tsMin, Version: InitialVersion}, Data: nil}
	if agg.Snapshot {
		snap, err := log.GetSnapshot(ctx, streamID)
		if err != nil {
			return State{}, &BackendError{Op: "GetSnapshot", Err: err}
		}
		if snap.Found {
			state = State{Meta: snap.Meta, Data: snap.Data}
		}
	}

	events, err := log.Read(ctx, streamID, state.Meta.Version, 0)
	if err != nil {
		return State{}, &BackendError{Op: "Read", Err: err}
	}
	for _, e := range events {
		reducer := reg.ReducerFor(e.Type)
		state.Data = reducer(state.Data, e.Data)
		state.Meta = e.Meta
	}
	return state, nil
}

type unknownAggregateError struct{ name string }

func (e *unknownAggregateError) Error() string { return "esrt: unknown aggregate " + e.name }

func errUnknownAggregate(name string) error { return &unknownAggregateError{name: name} }
