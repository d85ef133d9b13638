// Command bank is a runnable walkthrough of the library: it registers a
// small account aggregate, starts an Application against the in-memory
// Log, dispatches a few commands, and prints both the synchronous result
// and what a fan-out subscriber sees.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/brindle/esrt"
	_ "github.com/brindle/esrt/stores/mem"
)

func main() {
	reg := esrt.NewRegistry()
	if err := registerAccount(reg); err != nil {
		log.Fatalf("register: %v", err)
	}

	ctx := context.Background()
	app, err := esrt.StartApplication(ctx, "bank", reg, esrt.Config{
		EventStore: esrt.EventStoreConfig{Type: "mem"},
	})
	if err != nil {
		log.Fatalf("start application: %v", err)
	}
	defer func() {
		if err := esrt.StopApplication(app); err != nil {
			log.Printf("stop application: %v", err)
		}
	}()

	id := uuid.NewString()

	if _, err := app.Dispatch(ctx, "OpenAccount", map[string]any{
		"account_id": id,
		"owner":      "Taro",
		"balance":    float64(1000),
	}); err != nil {
		log.Fatalf("open account: %v", err)
	}
	fmt.Printf("opened account %s\n", id)

	if _, err := app.Dispatch(ctx, "DepositMoney", map[string]any{
		"account_id": id,
		"amount":     float64(500),
	}); err != nil {
		log.Fatalf("deposit money: %v", err)
	}
	fmt.Println("deposited 500")

	if _, err := app.Dispatch(ctx, "WithdrawMoney", map[string]any{
		"account_id": id,
		"amount":     float64(5000),
	}); err != nil {
		fmt.Printf("withdrawal of 5000 rejected: %v\n", err)
	}

	state, err := app.GetAggregate(ctx, "account", id)
	if err != nil {
		log.Fatalf("get aggregate: %v", err)
	}
	fmt.Printf("account %s: %+v\n", id, state)

	// Give the mem Log's poll loop a moment to deliver to the ledger
	// subscriber before the process exits.
	time.Sleep(50 * time.Millisecond)
}

func registerAccount(reg *esrt.Registry) error {
	if err := reg.DefineAggregate(accountAggregate()); err != nil {
		return err
	}
	for _, cmd := range []esrt.CommandConfig{
		openAccountCommand(),
		depositMoneyCommand(),
		withdrawMoneyCommand(),
	} {
		if err := reg.DefineCommand(cmd); err != nil {
			return err
		}
	}
	return reg.DefineSubscription("MoneyDeposited", esrt.SubscriptionConfig{
		Subscriber: "ledger",
		StartFrom:  esrt.StartFromOrigin,
		Handler:    ledgerHandler,
	})
}

func ledgerHandler(_ context.Context, e esrt.Event) error {
	fmt.Printf("ledger: %s balance=%v amount=%v\n", e.Type, e.Data["balance"], e.Data["amount"])
	return nil
}
