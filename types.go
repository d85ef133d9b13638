package esrt

import "context"

// StartPosition selects where a subscription's durable cursor begins the
// first time it attaches to a stream.
type StartPosition int

const (
	// StartFromOrigin replays every event already on the stream.
	StartFromOrigin StartPosition = iota
	// StartFromLatest skips every event appended before the subscription
	// first attaches; only subsequent appends are delivered.
	StartFromLatest
)

// AllEventsStream is the name of the global fan-out stream that every
// appended event is also written to, and the default subscription source.
const AllEventsStream = "all-events"

// AggregateConfig describes one registered aggregate type.
type AggregateConfig struct {
	Name     string
	IDField  string
	Schema   Validator
	Snapshot bool
	Doc      string
}

// HandlerFunc is a command handler: a pure function from current aggregate
// state and command data to a raw event-emission result (see EventPair).
// Any side-effectful enrichment belongs in Interceptors, not here.
type HandlerFunc func(state any, data map[string]any) (any, error)

// CommandConfig describes one registered command.
type CommandConfig struct {
	Name         string
	Aggregate    string
	IDField      string
	Schema       Validator
	Interceptors []Interceptor
	Emits        []string
	Handler      HandlerFunc
}

// EventConfig describes one registered event, including the subscriptions
// attached to it, keyed by subscriber name.
type EventConfig struct {
	Name          string
	Command       string
	Schema        Validator
	Subscriptions map[string][]SubscriptionConfig
}

// SubscriptionHandler processes one delivered event. An error is logged and
// the event is still acknowledged (at-least-once, not retried on handler
// failure — spec §7/§9).
type SubscriptionHandler func(ctx context.Context, e Event) error

// SubscriptionConfig describes one registered subscription.
type SubscriptionConfig struct {
	Subscriber string
	StartFrom  StartPosition
	Handler    SubscriptionHandler
	// Stream optionally overrides the subscription's source stream; the
	// zero value means AllEventsStream.
	Stream string
}

func (s SubscriptionConfig) stream() string {
	if s.Stream == "" {
		return AllEventsStream
	}
	return s.Stream
}

// ReducerFunc folds one event's data into the current aggregate state,
// producing the next state. It must be pure.
type ReducerFunc func(state any, data map[string]any) any

// Interceptor wraps command execution with an enter (pre) and leave (post)
// phase. Both receive the same *Context and may mutate it; nil phases are
// skipped. Interceptors are the only place side-effectful enrichment
// belongs (spec §4.6).
type Interceptor struct {
	Name  string
	Enter func(ctx context.Context, c *Context) error
	Leave func(ctx context.Context, c *Context) error
}
