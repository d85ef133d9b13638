package esrt

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// fakeLog is a minimal, single-process Log used only to exercise the
// Command Pipeline and Dispatch without pulling in a concrete backend
// (stores/mem and stores/redisstreams are separate modules that import
// this package, not the other way around).
type fakeLog struct {
	mu      sync.Mutex
	streams map[string][]Event
	meta    map[string]StreamMeta
}

func newFakeLog() *fakeLog {
	return &fakeLog{streams: map[string][]Event{}, meta: map[string]StreamMeta{}}
}

func (f *fakeLog) Append(_ context.Context, streamID, txnID, expectedVersion string, events []Event) ([]Event, StreamMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cur, ok := f.meta[streamID]
	if !ok {
		cur = StreamMeta{CurrentVersion: InitialVersion}
	}
	if txnID != "" && cur.LastTxnID == txnID {
		return nil, cur, nil
	}
	if cur.CurrentVersion != expectedVersion {
		return nil, StreamMeta{}, &ConcurrencyError{StreamID: streamID, ExpectedVersion: expectedVersion, ActualVersion: cur.CurrentVersion}
	}
	if len(events) == 0 {
		return nil, cur, nil
	}

	versions, err := NextVersions(cur.CurrentVersion, len(events))
	if err != nil {
		return nil, StreamMeta{}, err
	}
	assigned := make([]Event, len(events))
	for i, e := range events {
		e.Meta = Meta{Version: versions[i]}
		assigned[i] = e
	}
	f.streams[streamID] = append(f.streams[streamID], assigned...)
	newMeta := StreamMeta{CurrentVersion: versions[len(versions)-1], LastTxnID: txnID}
	f.meta[streamID] = newMeta
	return assigned, newMeta, nil
}

func (f *fakeLog) Read(_ context.Context, streamID, startVersion string, limit int) ([]Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Event
	for _, e := range f.streams[streamID] {
		after, err := VersionAfter(e.Meta.Version, startVersion)
		if err != nil {
			return nil, err
		}
		if after {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeLog) Subscribe(context.Context, string, SubscribeOptions, func(context.Context, Event) error) error {
	return nil
}
func (f *fakeLog) SaveSnapshot(context.Context, string, Snapshot) error { return nil }
func (f *fakeLog) GetSnapshot(context.Context, string) (Snapshot, error) {
	return Snapshot{Found: false}, nil
}
func (f *fakeLog) Close() error { return nil }

var _ Log = (*fakeLog)(nil)

func accountRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	if err := reg.DefineAggregate(AggregateConfig{Name: "account", IDField: "account_id"}); err != nil {
		t.Fatalf("DefineAggregate: %v", err)
	}
	if err := reg.DefineCommand(CommandConfig{
		Name:      "OpenAccount",
		Aggregate: "account",
		Emits:     []string{"AccountOpened"},
		Handler: func(state any, data map[string]any) (any, error) {
			if state != nil {
				return nil, errors.New("account already exists")
			}
			return EventPair{Name: "AccountOpened", Data: map[string]any{"owner": data["owner"], "balance": data["balance"]}}, nil
		},
	}); err != nil {
		t.Fatalf("DefineCommand OpenAccount: %v", err)
	}
	if err := reg.DefineCommand(CommandConfig{
		Name:      "DepositMoney",
		Aggregate: "account",
		Emits:     []string{"MoneyDeposited"},
		Handler: func(state any, data map[string]any) (any, error) {
			acc, ok := state.(map[string]any)
			if !ok {
				return nil, errors.New("account not found")
			}
			balance, _ := acc["balance"].(float64)
			amount, _ := data["amount"].(float64)
			return EventPair{Name: "MoneyDeposited", Data: map[string]any{"balance": balance + amount}}, nil
		},
	}); err != nil {
		t.Fatalf("DefineCommand DepositMoney: %v", err)
	}
	return reg
}

func TestDispatch_OpenThenDeposit(t *testing.T) {
	reg := accountRegistry(t)
	log := newFakeLog()
	app := &Application{Name: "bank-test", Registry: reg, Log: log}

	if _, err := Dispatch(context.Background(), app, "OpenAccount", map[string]any{
		"account_id": "acct-1", "owner": "Taro", "balance": float64(1000),
	}); err != nil {
		t.Fatalf("OpenAccount: %v", err)
	}
	if _, err := Dispatch(context.Background(), app, "DepositMoney", map[string]any{
		"account_id": "acct-1", "amount": float64(500),
	}); err != nil {
		t.Fatalf("DepositMoney: %v", err)
	}

	got, err := GetAggregate(context.Background(), app, "account", "acct-1")
	if err != nil {
		t.Fatalf("GetAggregate: %v", err)
	}
	state := got.(map[string]any)
	if state["balance"] != float64(1500) {
		t.Fatalf("expected balance 1500, got %v", state["balance"])
	}
	if state["owner"] != "Taro" {
		t.Fatalf("expected owner Taro, got %v", state["owner"])
	}
}

func TestDispatch_UnknownCommand(t *testing.T) {
	reg := accountRegistry(t)
	app := &Application{Name: "bank-test", Registry: reg, Log: newFakeLog()}

	_, err := Dispatch(context.Background(), app, "DoesNotExist", nil)
	var cu *CommandUnknownError
	if !errors.As(err, &cu) {
		t.Fatalf("expected CommandUnknownError, got %v", err)
	}
	if !errors.Is(err, ErrCommandUnknown) {
		t.Fatal("errors.Is(err, ErrCommandUnknown) failed")
	}
}

func TestDispatch_NilApplication(t *testing.T) {
	_, err := Dispatch(context.Background(), nil, "OpenAccount", nil)
	if !errors.Is(err, ErrApplicationNotStarted) {
		t.Fatalf("expected ErrApplicationNotStarted, got %v", err)
	}
}

func TestDispatch_HandlerErrorWrappedAsBusinessRuleViolation(t *testing.T) {
	reg := accountRegistry(t)
	log := newFakeLog()
	app := &Application{Name: "bank-test", Registry: reg, Log: log}

	if _, err := Dispatch(context.Background(), app, "OpenAccount", map[string]any{
		"account_id": "acct-2", "owner": "Hana", "balance": float64(0),
	}); err != nil {
		t.Fatalf("OpenAccount: %v", err)
	}

	_, err := Dispatch(context.Background(), app, "OpenAccount", map[string]any{
		"account_id": "acct-2", "owner": "Hana", "balance": float64(0),
	})
	var brv *BusinessRuleViolation
	if !errors.As(err, &brv) {
		t.Fatalf("expected BusinessRuleViolation, got %v", err)
	}
	if brv.Command != "OpenAccount" {
		t.Fatalf("expected command OpenAccount, got %q", brv.Command)
	}
}

func TestDispatch_EventNotDeclaredInEmits(t *testing.T) {
	reg := NewRegistry()
	if err := reg.DefineAggregate(AggregateConfig{Name: "widget", IDField: "id"}); err != nil {
		t.Fatalf("DefineAggregate: %v", err)
	}
	if err := reg.DefineCommand(CommandConfig{
		Name:      "MakeWidget",
		Aggregate: "widget",
		Emits:     []string{"WidgetMade"},
		Handler: func(state any, data map[string]any) (any, error) {
			return EventPair{Name: "SomethingElse", Data: map[string]any{}}, nil
		},
	}); err != nil {
		t.Fatalf("DefineCommand: %v", err)
	}

	app := &Application{Name: "widget-test", Registry: reg, Log: newFakeLog()}
	_, err := Dispatch(context.Background(), app, "MakeWidget", map[string]any{"id": "w-1"})
	var em *EventMalformedError
	if !errors.As(err, &em) {
		t.Fatalf("expected EventMalformedError, got %v", err)
	}
}
