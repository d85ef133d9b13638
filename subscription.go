package esrt

import "context"

// attachSubscriptions is the Subscription Runner (spec §4.8): after
// application start, it walks the registry's (event, subscription) pairs
// and attaches each one to the Log. The actual polling / worker-pool
// mechanics live inside the concrete Log implementation (spec §4.2 for
// Redis); this layer is backend-agnostic and only wires registrations to
// Log.Subscribe, filtering delivered events down to the one type each
// subscription cares about, whichever stream it reads from.
func attachSubscriptions(ctx context.Context, log Log, reg *Registry) error {
	for _, ev := range reg.Events() {
		for _, subs := range ev.Subscriptions {
			for _, sub := range subs {
				opts := SubscribeOptions{StartFrom: sub.StartFrom, Stream: sub.stream()}
				handler := typeFilteredHandler(ev.Name, sub.Handler)
				if err := log.Subscribe(ctx, sub.Subscriber, opts, handler); err != nil {
					return &BackendError{Op: "Subscribe", Err: err}
				}
			}
		}
	}
	return nil
}

// typeFilteredHandler wraps a subscription's handler so it only fires for
// events named eventName — the fan-out stream carries every event type,
// and spec §4.8 requires the handler to ignore the rest. The caller
// (concrete Log) still acknowledges every message it reads, filtered or
// not, so the subscriber's cursor advances past events it isn't
// interested in.
func typeFilteredHandler(eventName string, h SubscriptionHandler) func(context.Context, Event) error {
	return func(ctx context.Context, e Event) error {
		if h == nil || e.Type != eventName {
			return nil
		}
		return h(ctx, e)
	}
}
