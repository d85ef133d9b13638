package esrt

import (
	"fmt"
	"sync"
)

// Registry is the process-wide catalogue of aggregate, command, and event
// configurations, plus the per-event reducer map (spec §4.3). It is built
// during registration and is treated as immutable once an Application
// starts — per spec §9's design note, entry points accept it as an
// explicit parameter rather than reach for a package-level singleton, so
// the runtime stays testable.
type Registry struct {
	mu         sync.RWMutex
	aggregates map[string]AggregateConfig
	commands   map[string]CommandConfig
	events     map[string]EventConfig
	reducers   map[string]ReducerFunc
	runningApp *Application
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		aggregates: make(map[string]AggregateConfig),
		commands:   make(map[string]CommandConfig),
		events:     make(map[string]EventConfig),
		reducers:   make(map[string]ReducerFunc),
	}
}

// DefineAggregate registers an aggregate configuration. It is an error to
// register the same name twice.
func (r *Registry) DefineAggregate(cfg AggregateConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.aggregates[cfg.Name]; exists {
		return fmt.Errorf("esrt: aggregate %q already registered", cfg.Name)
	}
	r.aggregates[cfg.Name] = cfg
	return nil
}

// DefineCommand registers a command configuration. If cfg.IDField is empty
// it is inherited from the target aggregate. Also registers one EventConfig
// per name in cfg.Emits if not already present, so subscriptions can be
// attached to an event before its originating command exists.
func (r *Registry) DefineCommand(cfg CommandConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	agg, ok := r.aggregates[cfg.Aggregate]
	if !ok {
		return fmt.Errorf("esrt: command %q targets unknown aggregate %q", cfg.Name, cfg.Aggregate)
	}
	if _, exists := r.commands[cfg.Name]; exists {
		return fmt.Errorf("esrt: command %q already registered", cfg.Name)
	}
	if cfg.IDField == "" {
		cfg.IDField = agg.IDField
	}
	r.commands[cfg.Name] = cfg

	for _, evName := range cfg.Emits {
		ev, exists := r.events[evName]
		if !exists {
			ev = EventConfig{Name: evName, Subscriptions: make(map[string][]SubscriptionConfig)}
		}
		ev.Command = cfg.Name
		r.events[evName] = ev
	}
	return nil
}

// DefineEvent sets (or overrides) schema validation for a previously
// implicit event configuration. Calling this is optional — DefineCommand
// already creates a bare EventConfig for each declared Emits entry.
func (r *Registry) DefineEvent(cfg EventConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.events[cfg.Name]
	if !ok {
		existing = EventConfig{Name: cfg.Name}
	}
	existing.Schema = cfg.Schema
	if existing.Subscriptions == nil {
		existing.Subscriptions = make(map[string][]SubscriptionConfig)
	}
	r.events[cfg.Name] = existing
	return nil
}

// DefineSubscription attaches a subscription to an event. Per spec §9's
// carried-over open question, registering more than one subscription under
// the same subscriber name for the same event is permitted: they nest in a
// sequence and the Subscription Runner starts each as a separate attach
// call (harmless — only one consumer group is actually created on a
// backend, since group-create is a no-op when the group already exists).
func (r *Registry) DefineSubscription(eventName string, cfg SubscriptionConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev, ok := r.events[eventName]
	if !ok {
		ev = EventConfig{Name: eventName}
	}
	if ev.Subscriptions == nil {
		ev.Subscriptions = make(map[string][]SubscriptionConfig)
	}
	ev.Subscriptions[cfg.Subscriber] = append(ev.Subscriptions[cfg.Subscriber], cfg)
	r.events[eventName] = ev
	return nil
}

// RegisterEventReducer overrides the default deep-merge reducer for a
// specific event name.
func (r *Registry) RegisterEventReducer(eventName string, fn ReducerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reducers[eventName] = fn
}

// ReducerFor returns the registered reducer for eventName, or
// DeepMergeReducer if none was registered.
func (r *Registry) ReducerFor(eventName string) ReducerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if fn, ok := r.reducers[eventName]; ok {
		return fn
	}
	return DeepMergeReducer
}

// ResolvedCommand is a command configuration with its aggregate inlined —
// the registry's getters are join-aware (spec §4.3) so the pipeline works
// from a single resolved record.
type ResolvedCommand struct {
	CommandConfig
	Aggregate AggregateConfig
}

// Command resolves a command by name with its aggregate config inlined.
func (r *Registry) Command(name string) (ResolvedCommand, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[name]
	if !ok {
		return ResolvedCommand{}, false
	}
	agg := r.aggregates[cmd.Aggregate]
	return ResolvedCommand{CommandConfig: cmd, Aggregate: agg}, true
}

// ResolvedEvent is an event configuration with its originating command
// inlined.
type ResolvedEvent struct {
	EventConfig
	Command CommandConfig
}

// Event resolves an event by name with its originating command inlined.
func (r *Registry) Event(name string) (ResolvedEvent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ev, ok := r.events[name]
	if !ok {
		return ResolvedEvent{}, false
	}
	return ResolvedEvent{EventConfig: ev, Command: r.commands[ev.Command]}, true
}

// eventConfig is the unexported, non-join-aware getter normalizeEvents
// uses for schema lookup only.
func (r *Registry) eventConfig(name string) (EventConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ev, ok := r.events[name]
	return ev, ok
}

// Aggregate resolves an aggregate by name.
func (r *Registry) Aggregate(name string) (AggregateConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agg, ok := r.aggregates[name]
	return agg, ok
}

// Events returns every registered event configuration. Used by the
// Subscription Runner to enumerate (event-name, subscription) pairs at
// application start.
func (r *Registry) Events() []EventConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]EventConfig, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev)
	}
	return out
}

// CurrentApplication returns the application currently running against
// this registry, if any.
func (r *Registry) CurrentApplication() *Application {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.runningApp
}

func (r *Registry) setRunningApplication(app *Application) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runningApp = app
}
