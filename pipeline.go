package esrt

import (
	"context"

	"github.com/google/uuid"
)

// Context is threaded through a single command execution's interceptor
// chain (spec §4.6). State and Meta are keyed by aggregate name so that,
// in principle, an interceptor could enrich the context with a second
// aggregate's state — the built-in context interceptor only ever populates
// the command's own target aggregate.
type Context struct {
	Command CommandConfig
	Data    map[string]any
	State   map[string]any
	Meta    map[string]Meta
	Events  []Event

	log Log
	reg *Registry
	app string
}

// runPipeline executes the Command Pipeline (spec §4.6) for a resolved
// command against data already validated by the dispatcher. It returns the
// events appended (with Meta filled in), or nil if the handler emitted
// none.
func runPipeline(ctx context.Context, log Log, reg *Registry, appName string, cmd ResolvedCommand, data map[string]any) ([]Event, error) {
	pctx := &Context{
		Command: cmd.CommandConfig,
		Data:    data,
		State:   make(map[string]any),
		Meta:    make(map[string]Meta),
		log:     log,
		reg:     reg,
		app:     appName,
	}

	if err := contextEnter(ctx, pctx, cmd); err != nil {
		return nil, err
	}

	for _, ic := range cmd.Interceptors {
		if ic.Enter == nil {
			continue
		}
		if err := ic.Enter(ctx, pctx); err != nil {
			return nil, err
		}
	}

	if err := handlerEnter(pctx, cmd); err != nil {
		return nil, err
	}

	for i := len(cmd.Interceptors) - 1; i >= 0; i-- {
		ic := cmd.Interceptors[i]
		if ic.Leave == nil {
			continue
		}
		if err := ic.Leave(ctx, pctx); err != nil {
			return nil, err
		}
	}

	return contextLeave(ctx, pctx, cmd)
}

// contextEnter extracts the target aggregate id from command data,
// rehydrates it, and places the result under state[aggregate] /
// meta[aggregate].
func contextEnter(ctx context.Context, pctx *Context, cmd ResolvedCommand) error {
	id, _ := pctx.Data[cmd.IDField].(string)
	state, err := Rehydrate(ctx, pctx.log, pctx.reg, cmd.Aggregate.Name, id, pctx.app)
	if err != nil {
		return err
	}
	pctx.State[cmd.Aggregate.Name] = state.Data
	pctx.Meta[cmd.Aggregate.Name] = state.Meta
	return nil
}

// handlerEnter invokes the user handler and runs its result through the
// Event Model.
func handlerEnter(pctx *Context, cmd ResolvedCommand) error {
	raw, err := cmd.Handler(pctx.State[cmd.Aggregate.Name], pctx.Data)
	if err != nil {
		return &BusinessRuleViolation{Command: cmd.Name, Err: err}
	}
	events, err := normalizeEvents(pctx.reg, cmd.CommandConfig, raw)
	if err != nil {
		return err
	}
	pctx.Events = events
	return nil
}

// contextLeave folds proposed events onto current state, validates the
// aggregate schema, and appends atomically with a fresh transaction id.
func contextLeave(ctx context.Context, pctx *Context, cmd ResolvedCommand) ([]Event, error) {
	if len(pctx.Events) == 0 {
		return nil, nil
	}

	id, _ := pctx.Data[cmd.IDField].(string)
	streamID := StreamID(pctx.app, cmd.Aggregate.Name, id)

	folded := pctx.State[cmd.Aggregate.Name]
	for _, e := range pctx.Events {
		reducer := pctx.reg.ReducerFor(e.Type)
		folded = reducer(folded, e.Data)
	}
	if cmd.Aggregate.Schema != nil {
		if ok, explain := cmd.Aggregate.Schema.Validate(folded); !ok {
			return nil, &AggregateInvalidError{Aggregate: cmd.Aggregate.Name, StreamID: streamID, Explain: explain}
		}
	}

	expectedVersion := pctx.Meta[cmd.Aggregate.Name].Version
	txnID := uuid.NewString()
	appended, _, err := pctx.log.Append(ctx, streamID, txnID, expectedVersion, pctx.Events)
	if err != nil {
		return nil, err
	}
	return appended, nil
}
