package esrt

import "testing"

func TestRegistry_DefineCommand_InheritsIDField(t *testing.T) {
	reg := NewRegistry()
	if err := reg.DefineAggregate(AggregateConfig{Name: "account", IDField: "account_id"}); err != nil {
		t.Fatalf("DefineAggregate: %v", err)
	}
	if err := reg.DefineCommand(CommandConfig{Name: "OpenAccount", Aggregate: "account", Emits: []string{"AccountOpened"}}); err != nil {
		t.Fatalf("DefineCommand: %v", err)
	}

	resolved, ok := reg.Command("OpenAccount")
	if !ok {
		t.Fatal("expected OpenAccount to resolve")
	}
	if resolved.IDField != "account_id" {
		t.Fatalf("expected inherited IDField account_id, got %q", resolved.IDField)
	}
	if resolved.Aggregate.Name != "account" {
		t.Fatalf("expected inlined aggregate, got %+v", resolved.Aggregate)
	}
}

func TestRegistry_DefineCommand_UnknownAggregate(t *testing.T) {
	reg := NewRegistry()
	err := reg.DefineCommand(CommandConfig{Name: "OpenAccount", Aggregate: "account"})
	if err == nil {
		t.Fatal("expected error targeting an unregistered aggregate")
	}
}

func TestRegistry_DefineCommand_DuplicateRejected(t *testing.T) {
	reg := NewRegistry()
	if err := reg.DefineAggregate(AggregateConfig{Name: "account"}); err != nil {
		t.Fatalf("DefineAggregate: %v", err)
	}
	if err := reg.DefineCommand(CommandConfig{Name: "OpenAccount", Aggregate: "account"}); err != nil {
		t.Fatalf("DefineCommand: %v", err)
	}
	if err := reg.DefineCommand(CommandConfig{Name: "OpenAccount", Aggregate: "account"}); err == nil {
		t.Fatal("expected error re-registering OpenAccount")
	}
}

func TestRegistry_DefineCommand_StubsEventConfig(t *testing.T) {
	reg := NewRegistry()
	if err := reg.DefineAggregate(AggregateConfig{Name: "account"}); err != nil {
		t.Fatalf("DefineAggregate: %v", err)
	}
	if err := reg.DefineCommand(CommandConfig{Name: "OpenAccount", Aggregate: "account", Emits: []string{"AccountOpened"}}); err != nil {
		t.Fatalf("DefineCommand: %v", err)
	}

	resolved, ok := reg.Event("AccountOpened")
	if !ok {
		t.Fatal("expected AccountOpened to be stubbed by DefineCommand")
	}
	if resolved.Command.Name != "OpenAccount" {
		t.Fatalf("expected originating command OpenAccount, got %+v", resolved.Command)
	}
}

func TestRegistry_DefineSubscription_NestsDuplicateSubscriberNames(t *testing.T) {
	reg := NewRegistry()
	if err := reg.DefineSubscription("MoneyDeposited", SubscriptionConfig{Subscriber: "ledger"}); err != nil {
		t.Fatalf("DefineSubscription: %v", err)
	}
	if err := reg.DefineSubscription("MoneyDeposited", SubscriptionConfig{Subscriber: "ledger"}); err != nil {
		t.Fatalf("DefineSubscription: %v", err)
	}

	resolved, ok := reg.Event("MoneyDeposited")
	if !ok {
		t.Fatal("expected MoneyDeposited to exist")
	}
	if len(resolved.Subscriptions["ledger"]) != 2 {
		t.Fatalf("expected two nested subscriptions under 'ledger', got %d", len(resolved.Subscriptions["ledger"]))
	}
}

func TestRegistry_ReducerFor_DefaultsToDeepMerge(t *testing.T) {
	reg := NewRegistry()
	fn := reg.ReducerFor("SomethingNeverRegistered")
	got := fn(map[string]any{"a": 1}, map[string]any{"b": 2})
	m, ok := got.(map[string]any)
	if !ok || m["a"] != 1 || m["b"] != 2 {
		t.Fatalf("expected deep-merged map, got %#v", got)
	}
}

func TestRegistry_RegisterEventReducer_Overrides(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterEventReducer("Counted", func(state any, data map[string]any) any {
		n, _ := state.(int)
		delta, _ := data["delta"].(int)
		return n + delta
	})

	fn := reg.ReducerFor("Counted")
	got := fn(5, map[string]any{"delta": 3})
	if got.(int) != 8 {
		t.Fatalf("expected overridden reducer result 8, got %v", got)
	}
}
