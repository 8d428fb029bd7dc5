package events

import (
	"context"
	"time"

	"github.com/apex/log"
	"github.com/caddyserver/caddy"
	"github.com/google/uuid"
	"github.com/nextdhcp/nextpool/core/lease"
)

const (
	// EventLeaseCreated is emitted when an address has been bound
	// to a client
	EventLeaseCreated caddy.EventName = "lease-created"

	// EventLeaseReleased is emitted when a client released it's address
	EventLeaseReleased caddy.EventName = "lease-released"

	// EventLeaseDeclined is emitted when a client declined it's address
	EventLeaseDeclined caddy.EventName = "lease-declined"
)

type (
	// LeaseEvent is the payload of all lease events
	LeaseEvent struct {
		// ID uniquely identifies the event
		ID uuid.UUID

		// Name is the name of the event
		Name caddy.EventName

		// Lease is a copy of the lease the event is about. For released
		// and declined leases it holds the last known state
		Lease lease.Lease

		// At is the time the event occurred
		At time.Time
	}

	// LeaseEventHook is the function type that can receive lease-based events
	LeaseEventHook func(event caddy.EventName, e *LeaseEvent) error

	// Sink receives lease events from the protocol handler
	Sink interface {
		EmitLeaseEvent(ctx context.Context, event caddy.EventName, l lease.Lease, at time.Time)
	}

	// CaddySink emits lease events through caddy's event system
	CaddySink struct{}

	// Discard drops all events
	Discard struct{}
)

var (
	validLeaseEvents = map[caddy.EventName]struct{}{
		EventLeaseCreated:  {},
		EventLeaseReleased: {},
		EventLeaseDeclined: {},
	}
)

// Valid reports whether name is a known lease event
func Valid(name caddy.EventName) bool {
	_, ok := validLeaseEvents[name]
	return ok
}

// Names returns all known lease event names
func Names() []caddy.EventName {
	return []caddy.EventName{EventLeaseCreated, EventLeaseReleased, EventLeaseDeclined}
}

// NewLeaseEvent returns a new event with a random ID
func NewLeaseEvent(name caddy.EventName, l lease.Lease, at time.Time) *LeaseEvent {
	return &LeaseEvent{
		ID:    uuid.New(),
		Name:  name,
		Lease: *l.Clone(),
		At:    at,
	}
}

// EmitLeaseEvent emits a lease-based event
func EmitLeaseEvent(e *LeaseEvent) {
	if !Valid(e.Name) {
		log.Errorf("invalid lease event type %q", e.Name)
		return
	}

	caddy.EmitEvent(e.Name, e)
}

// RegisterLeaseEventHook registers a new lease event hook. The hook is only
// called for event
func RegisterLeaseEventHook(name string, event caddy.EventName, hook LeaseEventHook) {
	if !Valid(event) {
		panic("invalid lease event name")
	}

	caddy.RegisterEventHook(name, func(e caddy.EventName, value interface{}) error {
		if e != event {
			return nil
		}

		le, ok := value.(*LeaseEvent)
		if !ok {
			return nil
		}

		return hook(event, le)
	})
}

// Subscribe registers hook for all lease events, or only for the given
// ones. Each call registers a new caddy event hook named after plugin
// and returns the name used
func Subscribe(plugin string, hook LeaseEventHook, only ...caddy.EventName) string {
	for _, name := range only {
		if !Valid(name) {
			panic("invalid lease event name")
		}
	}

	name := plugin + "-" + uuid.NewString()

	caddy.RegisterEventHook(name, func(e caddy.EventName, value interface{}) error {
		if len(only) > 0 && !contains(only, e) {
			return nil
		}

		le, ok := value.(*LeaseEvent)
		if !ok {
			return nil
		}

		return hook(e, le)
	})

	return name
}

func contains(names []caddy.EventName, name caddy.EventName) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}

	return false
}

// EmitLeaseEvent implements Sink
func (CaddySink) EmitLeaseEvent(_ context.Context, event caddy.EventName, l lease.Lease, at time.Time) {
	EmitLeaseEvent(NewLeaseEvent(event, l, at))
}

// EmitLeaseEvent implements Sink
func (Discard) EmitLeaseEvent(context.Context, caddy.EventName, lease.Lease, time.Time) {}
