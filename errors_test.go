package esrt

import (
	"errors"
	"testing"
)

func TestErrorTaxonomy_IsSentinel(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		target error
	}{
		{"ApplicationNotStartedError", &ApplicationNotStartedError{Application: "bank"}, ErrApplicationNotStarted},
		{"CommandUnknownError", &CommandUnknownError{Command: "Nope"}, ErrCommandUnknown},
		{"CommandInvalidError", &CommandInvalidError{Command: "Nope"}, ErrCommandInvalid},
		{"EventMalformedError", &EventMalformedError{Event: "Nope"}, ErrEventMalformed},
		{"AggregateInvalidError", &AggregateInvalidError{Aggregate: "account"}, ErrAggregateInvalid},
		{"ConcurrencyError", &ConcurrencyError{StreamID: "s"}, ErrConcurrencyError},
		{"BackendError", &BackendError{Op: "Append", Err: errors.New("boom")}, ErrBackend},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if !errors.Is(c.err, c.target) {
				t.Fatalf("errors.Is(%v, %v) = false, want true", c.err, c.target)
			}
		})
	}
}

func TestBusinessRuleViolation_Unwraps(t *testing.T) {
	inner := errors.New("insufficient funds")
	err := &BusinessRuleViolation{Command: "WithdrawMoney", Err: inner}
	if !errors.Is(err, inner) {
		t.Fatal("expected errors.Is to find the wrapped handler error")
	}
}

func TestBackendError_Unwraps(t *testing.T) {
	inner := errors.New("connection reset")
	err := &BackendError{Op: "Read", Err: inner}
	if !errors.Is(err, inner) {
		t.Fatal("expected errors.Is to find the wrapped transport error")
	}
}
