package esrt

import (
	"fmt"
	"time"
)

// Meta is the per-event metadata assigned by the Event Log during append:
// a timestamp and a total-order version within the event's aggregate stream.
// It is never assigned by the Event Model — only the log knows true append
// order.
type Meta struct {
	TS      time.Time
	Version string
}

// Event is the canonical internal record produced by a command handler and,
// once appended, enriched with Meta. Data is a plain map so the runtime never
// needs to know the concrete shape of any particular event — schema
// enforcement is delegated to the Validator configured on its EventConfig.
type Event struct {
	Type string
	Data map[string]any
	Meta Meta
}

// EventPair is the shape a command handler returns for each event it wants
// to emit: a name naming one of the command's declared Emits, and the event
// data. A handler may return a single EventPair, a []EventPair, or nil for
// "no events" — normalizeEvents lifts all three into a uniform []Event.
type EventPair struct {
	Name string
	Data map[string]any
}

// normalizeEvents implements the Event Model (spec §4.4): it lifts a
// handler's raw return value into a slice of Events, validating each data
// payload against its event's registered schema.
func normalizeEvents(reg *Registry, cmd CommandConfig, raw any) ([]Event, error) {
	pairs, err := liftPairs(raw)
	if err != nil {
		return nil, err
	}
	if len(pairs) == 0 {
		return nil, nil
	}

	events := make([]Event, 0, len(pairs))
	for _, p := range pairs {
		if !containsString(cmd.Emits, p.Name) {
			return nil, &EventMalformedError{
				Command: cmd.Name,
				Event:   p.Name,
				Reason:  fmt.Sprintf("command %q does not declare %q among its emitted events", cmd.Name, p.Name),
			}
		}
		evCfg, ok := reg.eventConfig(p.Name)
		if !ok {
			return nil, &EventMalformedError{
				Command: cmd.Name,
				Event:   p.Name,
				Reason:  fmt.Sprintf("event %q is not registered", p.Name),
			}
		}
		if evCfg.Schema != nil {
			if ok, explain := evCfg.Schema.Validate(p.Data); !ok {
				return nil, &EventMalformedError{
					Command: cmd.Name,
					Event:   p.Name,
					Reason:  "event data failed schema validation",
					Explain: explain,
				}
			}
		}
		events = append(events, Event{Type: p.Name, Data: p.Data})
	}
	return events, nil
}

func liftPairs(raw any) ([]EventPair, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case EventPair:
		return []EventPair{v}, nil
	case []EventPair:
		return v, nil
	default:
		return nil, &EventMalformedError{Reason: fmt.Sprintf("handler returned unsupported shape %T", raw)}
	}
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
