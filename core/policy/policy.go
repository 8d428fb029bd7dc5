// Package policy decides how DHCPv4 messages are answered. It implements
// the DISCOVER/OFFER and REQUEST/ACK exchanges as well as RELEASE and
// DECLINE processing on top of a lease.Store
package policy

import (
	"context"
	"net"
	"time"

	"github.com/insomniacslk/dhcp/dhcpv4"
	"github.com/nextdhcp/nextpool/core/events"
	"github.com/nextdhcp/nextpool/core/lease"
	"github.com/nextdhcp/nextpool/core/log"
)

// DefaultLeaseTime is used if no lease time is configured
const DefaultLeaseTime = 2 * time.Hour

// Kind is the set of message kinds the handler knows how to process
type Kind int

// Handled message kinds. Everything else is KindIgnored
const (
	KindIgnored Kind = iota
	KindDiscover
	KindRequest
	KindRelease
	KindDecline
)

func (k Kind) String() string {
	switch k {
	case KindDiscover:
		return "discover"
	case KindRequest:
		return "request"
	case KindRelease:
		return "release"
	case KindDecline:
		return "decline"
	}

	return "ignored"
}

// Classify maps a DHCP message type to the kind of processing it gets
func Classify(mt dhcpv4.MessageType) Kind {
	switch mt {
	case dhcpv4.MessageTypeDiscover:
		return KindDiscover
	case dhcpv4.MessageTypeRequest:
		return KindRequest
	case dhcpv4.MessageTypeRelease:
		return KindRelease
	case dhcpv4.MessageTypeDecline:
		return KindDecline
	}

	return KindIgnored
}

// Options holds the static server configuration used by the handler
type Options struct {
	// ServerID is the identity of this server. Requests, releases and
	// declines that name a different server are ignored
	ServerID net.IP

	// LeaseTime is the duration of committed leases
	LeaseTime time.Duration

	// Netmask is sent as the subnet mask option
	Netmask net.IPMask

	// Routers is sent as the router option
	Routers []net.IP

	// DNS is sent as the domain name server option
	DNS []net.IP

	// Extra options are appended to every OFFER and ACK
	Extra []dhcpv4.Option

	// Events receives lease events. Defaults to events.Discard
	Events events.Sink

	// Logger defaults to the apex/log default logger
	Logger log.Logger
}

// Handler processes decoded DHCP messages against a lease store. It
// keeps no state of it's own and must only be invoked by the goroutine
// owning the store
type Handler struct {
	store *lease.Store
	opts  Options
}

// New returns a new handler operating on store
func New(store *lease.Store, opts Options) *Handler {
	if opts.LeaseTime <= 0 {
		opts.LeaseTime = DefaultLeaseTime
	}

	if opts.Events == nil {
		opts.Events = events.Discard{}
	}

	return &Handler{
		store: store,
		opts:  opts,
	}
}

// Store returns the lease store used by the handler
func (h *Handler) Store() *lease.Store {
	return h.store
}

// Handle processes req and returns the reply that should be sent. A nil
// reply means the message is dropped silently
func (h *Handler) Handle(ctx context.Context, req *dhcpv4.DHCPv4) *Reply {
	l := log.With(ctx, h.opts.Logger)

	switch kind := Classify(req.MessageType()); kind {
	case KindDiscover:
		return h.discover(ctx, l, req)
	case KindRequest:
		return h.request(ctx, l, req)
	case KindRelease, KindDecline:
		h.release(ctx, l, kind, req)
		return nil
	default:
		l.Debugf("ignoring %s message", req.MessageType())
		return nil
	}
}

// ForThisServer reports whether req is meant for us. Messages without a
// server identifier are accepted
func (h *Handler) ForThisServer(req *dhcpv4.DHCPv4) bool {
	raw := req.Options.Get(dhcpv4.OptionServerIdentifier)
	if raw == nil {
		return true
	}

	id := net.IP(raw)
	if len(raw) == net.IPv4len && id.IsUnspecified() {
		return true
	}

	return len(raw) == net.IPv4len && id.Equal(h.opts.ServerID)
}

// requestedAddress returns the value of the requested IP address option.
// present is false if the option is missing and valid is false if it does
// not hold exactly one IPv4 address
func requestedAddress(req *dhcpv4.DHCPv4) (addr uint32, present, valid bool) {
	raw := req.Options.Get(dhcpv4.OptionRequestedIPAddress)
	if raw == nil {
		return 0, false, false
	}

	if len(raw) != net.IPv4len {
		return 0, true, false
	}

	addr, _ = lease.IP2Int(net.IP(raw))
	return addr, true, true
}
