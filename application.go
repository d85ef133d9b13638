package esrt

import (
	"context"
	"fmt"
	"sync"
)

// EventStoreConfig selects and configures the Log backend an application
// runs against (spec §6's "Configuration recognized by the runtime").
type EventStoreConfig struct {
	// Type selects a backend registered with RegisterBackend: "redis" is
	// registered by stores/redisstreams, "postgres" by stores/pgx, and
	// "mem" by stores/mem for local runs and tests.
	Type string
	// Pool carries backend-specific connection-pool options, e.g. a pool
	// size or timeout, passed through unchanged.
	Pool map[string]any
	// Spec carries the backend-specific connection spec, e.g. a Redis URI.
	Spec string
}

// Config is the configuration StartApplication accepts.
type Config struct {
	EventStore EventStoreConfig
}

// Factory constructs a Log from an EventStoreConfig. Concrete backends
// register one under their type name via RegisterBackend, following the
// database/sql driver-registration convention.
type Factory func(cfg EventStoreConfig) (Log, error)

var (
	backendsMu sync.RWMutex
	backends   = map[string]Factory{}
)

// RegisterBackend makes a Log factory available under name for
// EventStoreConfig.Type to select. Intended to be called from a backend
// package's init().
func RegisterBackend(name string, f Factory) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[name] = f
}

func newLog(cfg EventStoreConfig) (Log, error) {
	backendsMu.RLock()
	f, ok := backends[cfg.Type]
	backendsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("esrt: unknown event-store backend %q (did you import its package for side effects?)", cfg.Type)
	}
	return f(cfg)
}

// Application is a started runtime: a name, the registry it runs against,
// and the Log it owns. The registry and application pointer are
// process-wide per spec §5, but nothing here prevents running several
// independent applications against separate registries in the same
// process or in tests.
type Application struct {
	Name     string
	Registry *Registry
	Log      Log

	cancel context.CancelFunc
}

// StartApplication constructs the selected backend, marks reg as running
// this application, and attaches every registered subscription (spec §6).
func StartApplication(ctx context.Context, name string, reg *Registry, cfg Config) (*Application, error) {
	log, err := newLog(cfg.EventStore)
	if err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	app := &Application{Name: name, Registry: reg, Log: log, cancel: cancel}

	if err := attachSubscriptions(subCtx, log, reg); err != nil {
		cancel()
		_ = log.Close()
		return nil, err
	}

	reg.setRunningApplication(app)
	return app, nil
}

// StopApplication closes the application's Log — halting every
// subscription's background delivery and releasing connections — and
// clears the registry's running-application pointer.
func StopApplication(app *Application) error {
	if app == nil {
		return nil
	}
	if app.cancel != nil {
		app.cancel()
	}
	err := app.Log.Close()
	app.Registry.setRunningApplication(nil)
	return err
}

// Dispatch is the synchronous, blocking command-dispatch entry point (spec
// §4.7): resolve the command, validate input, run the Command Pipeline,
// and return the events it produced (nil if the handler emitted none).
func Dispatch(ctx context.Context, app *Application, commandName string, data map[string]any) ([]Event, error) {
	if app == nil {
		return nil, &ApplicationNotStartedError{}
	}
	cmd, ok := app.Registry.Command(commandName)
	if !ok {
		return nil, &CommandUnknownError{Command: commandName}
	}
	if cmd.Schema != nil {
		if ok, explain := cmd.Schema.Validate(data); !ok {
			return nil, &CommandInvalidError{Command: commandName, Explain: explain}
		}
	}
	return runPipeline(ctx, app.Log, app.Registry, app.Name, cmd, data)
}

// GetAggregate rehydrates an aggregate and returns its data.
func GetAggregate(ctx context.Context, app *Application, aggregateName, id string) (any, error) {
	if app == nil {
		return nil, &ApplicationNotStartedError{}
	}
	state, err := Rehydrate(ctx, app.Log, app.Registry, aggregateName, id, app.Name)
	if err != nil {
		return nil, err
	}
	return state.Data, nil
}

// Dispatch is a method form of the package-level Dispatch, for callers
// that already have an *Application in hand.
func (a *Application) Dispatch(ctx context.Context, commandName string, data map[string]any) ([]Event, error) {
	return Dispatch(ctx, a, commandName, data)
}

// GetAggregate is a method form of the package-level GetAggregate.
func (a *Application) GetAggregate(ctx context.Context, aggregateName, id string) (any, error) {
	return GetAggregate(ctx, a, aggregateName, id)
}
