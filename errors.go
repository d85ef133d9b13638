package esrt

import "fmt"

// Sentinel errors for the taxonomy of spec §7. Each concrete error type
// below implements Is so errors.Is(err, ErrXxx) matches regardless of the
// structured fields attached, following the teacher's VersionConflictError
// pattern.
var (
	// ErrApplicationNotStarted: dispatch without a running application.
	ErrApplicationNotStarted = fmt.Errorf("esrt: application not started")
	// ErrCommandUnknown: no registration exists for the command name.
	ErrCommandUnknown = fmt.Errorf("esrt: command unknown")
	// ErrCommandInvalid: input data failed the command's schema validation.
	ErrCommandInvalid = fmt.Errorf("esrt: command invalid")
	// ErrEventMalformed: handler return value did not conform to the event shape.
	ErrEventMalformed = fmt.Errorf("esrt: event malformed")
	// ErrAggregateInvalid: applying the handler's events would violate the
	// aggregate schema.
	ErrAggregateInvalid = fmt.Errorf("esrt: aggregate invalid")
	// ErrConcurrencyError: OCC detected a conflicting writer.
	ErrConcurrencyError = fmt.Errorf("esrt: concurrency error")
	// ErrBusinessRuleViolation: a user handler rejected the command.
	ErrBusinessRuleViolation = fmt.Errorf("esrt: business rule violation")
	// ErrBackend: transport/storage failure from the Event Log.
	ErrBackend = fmt.Errorf("esrt: backend error")
)

// ApplicationNotStartedError is raised by Dispatch/GetAggregate when no
// application is running.
type ApplicationNotStartedError struct {
	Application string
}

func (e *ApplicationNotStartedError) Error() string {
	return fmt.Sprintf("esrt: application %q is not started", e.Application)
}

func (e *ApplicationNotStartedError) Is(target error) bool { return target == ErrApplicationNotStarted }

// CommandUnknownError is raised when Dispatch is given a command name with
// no registration.
type CommandUnknownError struct {
	Command string
}

func (e *CommandUnknownError) Error() string {
	return fmt.Sprintf("esrt: command %q is not registered", e.Command)
}

func (e *CommandUnknownError) Is(target error) bool { return target == ErrCommandUnknown }

// CommandInvalidError carries the schema validator's explanation for why
// command input data was rejected.
type CommandInvalidError struct {
	Command string
	Explain any
}

func (e *CommandInvalidError) Error() string {
	return fmt.Sprintf("esrt: command %q rejected input: %v", e.Command, e.Explain)
}

func (e *CommandInvalidError) Is(target error) bool { return target == ErrCommandInvalid }

// EventMalformedError indicates a handler bug: its return value did not
// normalize into a well-formed sequence of (name, data) pairs, or named an
// event the command doesn't declare, or failed the event's own schema.
type EventMalformedError struct {
	Command string
	Event   string
	Reason  string
	Explain any
}

func (e *EventMalformedError) Error() string {
	if e.Event != "" {
		return fmt.Sprintf("esrt: event %q malformed: %s", e.Event, e.Reason)
	}
	return fmt.Sprintf("esrt: malformed handler result: %s", e.Reason)
}

func (e *EventMalformedError) Is(target error) bool { return target == ErrEventMalformed }

// AggregateInvalidError carries the schema validator's explanation for why
// the state resulting from a command's events would violate the aggregate
// schema. The append never occurs.
type AggregateInvalidError struct {
	Aggregate string
	StreamID  string
	Explain   any
}

func (e *AggregateInvalidError) Error() string {
	return fmt.Sprintf("esrt: aggregate %q (%s) would become invalid: %v", e.Aggregate, e.StreamID, e.Explain)
}

func (e *AggregateInvalidError) Is(target error) bool { return target == ErrAggregateInvalid }

// ConcurrencyError generalizes the teacher's VersionConflictError to the
// stream-id-keyed OCC failure of spec §4.2: either another writer's append
// was observed between rehydration and append, or the watched metadata
// changed mid-transaction.
type ConcurrencyError struct {
	StreamID        string
	ExpectedVersion string
	ActualVersion   string
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("esrt: concurrency conflict on stream %s: expected=%s actual=%s", e.StreamID, e.ExpectedVersion, e.ActualVersion)
}

func (e *ConcurrencyError) Is(target error) bool { return target == ErrConcurrencyError }

// BusinessRuleViolation wraps an arbitrary error raised by a user handler,
// propagated to the dispatch caller with the handler's own payload intact.
type BusinessRuleViolation struct {
	Command string
	Err     error
}

func (e *BusinessRuleViolation) Error() string {
	return fmt.Sprintf("esrt: command %q rejected: %v", e.Command, e.Err)
}

func (e *BusinessRuleViolation) Unwrap() error { return e.Err }

func (e *BusinessRuleViolation) Is(target error) bool { return target == ErrBusinessRuleViolation }

// BackendError wraps a transport/storage failure from the Event Log.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("esrt: backend error during %s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

func (e *BackendError) Is(target error) bool { return target == ErrBackend }
