package dispatch

import (
	"fmt"
	"strings"
)

// Event drives a status transition.
type Event string

const (
	EventDispatch Event = "DISPATCH"
	EventEnRoute  Event = "EN_ROUTE"
	EventArrive   Event = "ARRIVE"
	EventClear    Event = "CLEAR"
	EventCancel   Event = "CANCEL"
)

var transitions = map[Status]map[Event]Status{
	StatusPending: {
		EventDispatch: StatusDispatched,
		EventCancel:   StatusCancelled,
	},
	StatusDispatched: {
		EventEnRoute: StatusEnRoute,
		EventCancel:  StatusCancelled,
	},
	StatusEnRoute: {
		EventArrive: StatusOnScene,
	},
	StatusOnScene: {
		EventClear: StatusCleared,
	},
}

// Apply returns the status reached by applying ev to current, or
// ErrInvalidTransition when no such edge exists.
func Apply(current Status, ev Event) (Status, error) {
	next, ok := transitions[current][ev]
	if !ok {
		return current, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, ev, current)
	}
	return next, nil
}

// Allowed lists the events accepted from a status.
func Allowed(current Status) []Event {
	out := make([]Event, 0, 2)
	for _, ev := range []Event{EventDispatch, EventEnRoute, EventArrive, EventClear, EventCancel} {
		if _, ok := transitions[current][ev]; ok {
			out = append(out, ev)
		}
	}
	return out
}

// EventForStatus maps a requested target status to the event that reaches it.
func EventForStatus(target Status) (Event, error) {
	switch target {
	case StatusDispatched:
		return EventDispatch, nil
	case StatusEnRoute:
		return EventEnRoute, nil
	case StatusOnScene:
		return EventArrive, nil
	case StatusCleared:
		return EventClear, nil
	case StatusCancelled:
		return EventCancel, nil
	default:
		return "", fmt.Errorf("%w: no event reaches %s", ErrInvalidTransition, target)
	}
}

// ParseEvent accepts an event name or the status it leads to.
func ParseEvent(raw string) (Event, error) {
	norm := strings.ToUpper(strings.TrimSpace(raw))
	switch Event(norm) {
	case EventDispatch, EventEnRoute, EventArrive, EventClear, EventCancel:
		return Event(norm), nil
	}
	status, err := ParseStatus(norm)
	if err != nil {
		return "", fmt.Errorf("%w: unknown event %q", ErrInvalidCommand, raw)
	}
	return EventForStatus(status)
}
