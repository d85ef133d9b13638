package main

import (
	"errors"

	"github.com/brindle/esrt"
)

var (
	errAccountExists    = errors.New("account already exists")
	errAccountNotFound  = errors.New("account not found")
	errInsufficientFunds = errors.New("insufficient funds")
)

func openAccountCommand() esrt.CommandConfig {
	return esrt.CommandConfig{
		Name:      "OpenAccount",
		Aggregate: "account",
		Emits:     []string{"AccountOpened"},
		Handler: func(state any, data map[string]any) (any, error) {
			if state != nil {
				return nil, errAccountExists
			}
			return esrt.EventPair{Name: "AccountOpened", Data: map[string]any{
				"owner":   data["owner"],
				"balance": data["balance"],
			}}, nil
		},
	}
}

func depositMoneyCommand() esrt.CommandConfig {
	return esrt.CommandConfig{
		Name:      "DepositMoney",
		Aggregate: "account",
		Emits:     []string{"MoneyDeposited"},
		Handler: func(state any, data map[string]any) (any, error) {
			acc, ok := state.(map[string]any)
			if !ok {
				return nil, errAccountNotFound
			}
			balance, _ := acc["balance"].(float64)
			amount, _ := data["amount"].(float64)
			return esrt.EventPair{Name: "MoneyDeposited", Data: map[string]any{
				"balance": balance + amount,
				"amount":  amount,
			}}, nil
		},
	}
}

func withdrawMoneyCommand() esrt.CommandConfig {
	return esrt.CommandConfig{
		Name:      "WithdrawMoney",
		Aggregate: "account",
		Emits:     []string{"MoneyWithdrawn"},
		Handler: func(state any, data map[string]any) (any, error) {
			acc, ok := state.(map[string]any)
			if !ok {
				return nil, errAccountNotFound
			}
			balance, _ := acc["balance"].(float64)
			amount, _ := data["amount"].(float64)
			if amount > balance {
				return nil, errInsufficientFunds
			}
			return esrt.EventPair{Name: "MoneyWithdrawn", Data: map[string]any{
				"balance": balance - amount,
				"amount":  amount,
			}}, nil
		},
	}
}
