// Package replacer expands {placeholder} templates with values taken from
// lease events. It is used by notification plugins to build topics and
// message bodies
package replacer

import (
	"strings"
	"time"

	"github.com/caddyserver/caddy"
	"github.com/nextdhcp/nextpool/core/events"
)

type (
	// Replacer is capable of replacing variables in a template string
	Replacer interface {
		// Replace replaces all variables in string and returns the result
		Replace(string) string

		// Set adds a custom replacement value
		Set(key string, value Value)

		// Get returns the replacement value for key
		Get(key string) string
	}

	// Value is a getter for string representations of custom fields
	Value interface {
		// Get returns the string representation for the given event
		Get(e *events.LeaseEvent) string
	}

	// ValueGetter implements the Value interface
	ValueGetter func(e *events.LeaseEvent) string

	// StringValue is a utility method to use string constants for
	// the Value interface
	StringValue string

	replacer struct {
		event              *events.LeaseEvent
		customReplacements map[string]Value
	}
)

// Get implements the Value interface and calls g itself
func (g ValueGetter) Get(e *events.LeaseEvent) string {
	return g(e)
}

// Get implements the Value interface and returns s itself
func (s StringValue) Get(_ *events.LeaseEvent) string {
	return string(s)
}

// NewReplacer returns a new replacer for the given lease event
func NewReplacer(e *events.LeaseEvent) Replacer {
	return &replacer{
		event:              e,
		customReplacements: make(map[string]Value),
	}
}

func (r *replacer) Set(key string, val Value) {
	r.customReplacements[key] = val
}

func (r *replacer) Get(key string) string {
	if val, ok := r.customReplacements[key]; ok {
		return val.Get(r.event)
	}

	e := r.event
	if e == nil {
		return ""
	}

	switch key {
	case "event":
		return string(e.Name)

	case "id":
		return e.ID.String()

	case "ip":
		return e.Lease.IP().String()

	case "hwaddr":
		if e.Lease.Owner == nil {
			return ""
		}
		return e.Lease.Owner.String()

	case "expires":
		return e.Lease.Expires.Format(time.RFC3339)

	case "at":
		return e.At.Format(time.RFC3339)

	case "remaining":
		if e.Name != events.EventLeaseCreated || !e.Lease.Expires.After(e.At) {
			return "0s"
		}
		return e.Lease.Expires.Sub(e.At).String()

	case "state":
		return State(e.Name)
	}

	return ""
}

// State returns the state a lease is in after event
func State(event caddy.EventName) string {
	switch event {
	case events.EventLeaseCreated:
		return "bound"
	case events.EventLeaseReleased:
		return "released"
	case events.EventLeaseDeclined:
		return "declined"
	}

	return "unknown"
}

// Replace replaces all keys in s with their counterpart. Braces may be
// escaped with a backslash. The scanning follows caddy's httpserver
// replacer
func (r *replacer) Replace(s string) string {
	if !strings.ContainsAny(s, "{}") {
		return s
	}

	result := ""
Placeholders: // process each placeholder in sequence
	for {
		var idxStart, idxEnd int

		idxOffset := 0
		for { // find first unescaped opening brace
			searchSpace := s[idxOffset:]
			idxStart = strings.Index(searchSpace, "{")
			if idxStart == -1 {
				// no more placeholders
				break Placeholders
			}
			if idxStart == 0 || searchSpace[idxStart-1] != '\\' {
				// preceding character is not an escape
				idxStart += idxOffset
				break
			}
			// the brace we found was escaped
			// search the rest of the string next
			idxOffset += idxStart + 1
		}

		idxOffset = 0
		for { // find first unescaped closing brace
			searchSpace := s[idxStart+idxOffset:]
			idxEnd = strings.Index(searchSpace, "}")
			if idxEnd == -1 {
				// unpaired placeholder
				break Placeholders
			}
			if idxEnd == 0 || searchSpace[idxEnd-1] != '\\' {
				// preceding character is not an escape
				idxEnd += idxOffset + idxStart
				break
			}
			// the brace we found was escaped
			// search the rest of the string next
			idxOffset += idxEnd + 1
		}

		placeholder := unescapeBraces(s[idxStart : idxEnd+1])
		replacement := r.Get(placeholder[1 : len(placeholder)-1])

		result += strings.TrimPrefix(unescapeBraces(s[:idxStart]), "\\") + replacement

		s = s[idxEnd+1:]
	}

	return result + unescapeBraces(s)
}

// unescapeBraces finds escaped braces in s and returns
// a string with those braces unescaped.
func unescapeBraces(s string) string {
	s = strings.Replace(s, "\\{", "{", -1)
	s = strings.Replace(s, "\\}", "}", -1)
	return s
}
