package main

import "github.com/brindle/esrt"

func accountAggregate() esrt.AggregateConfig {
	return esrt.AggregateConfig{
		Name:     "account",
		IDField:  "account_id",
		Schema:   esrt.ValidatorFunc(validateAccount),
		Snapshot: true,
		Doc:      "a bank account, identified by account_id, tracking owner and balance",
	}
}

func validateAccount(v any) (bool, any) {
	state, ok := v.(map[string]any)
	if !ok {
		return false, "account state must be an object"
	}
	owner, ok := state["owner"].(string)
	if !ok || owner == "" {
		return false, "owner must be a non-empty string"
	}
	balance, ok := state["balance"].(float64)
	if !ok {
		return false, "balance must be a number"
	}
	if balance < 0 {
		return false, "balance must not be negative"
	}
	return true, nil
}
