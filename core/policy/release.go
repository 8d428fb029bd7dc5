package policy

import (
	"context"

	"github.com/caddyserver/caddy"
	"github.com/insomniacslk/dhcp/dhcpv4"
	"github.com/nextdhcp/nextpool/core/events"
	"github.com/nextdhcp/nextpool/core/log"
)

// release frees the address held by the client. DHCPRELEASE and
// DHCPDECLINE are never answered
func (h *Handler) release(ctx context.Context, l log.Logger, kind Kind, req *dhcpv4.DHCPv4) {
	if !h.ForThisServer(req) {
		l.Debugf("ignoring %s for another server", kind)
		return
	}

	addr, ok := h.store.CurrentLease(req.ClientHWAddr)
	if !ok {
		l.Debugf("%s from client without lease", kind)
		return
	}

	released, _ := h.store.Get(addr)
	h.store.Remove(addr)

	var event caddy.EventName = events.EventLeaseReleased
	if kind == KindDecline {
		event = events.EventLeaseDeclined
	}

	l.Infof("%s: freed %s", kind, released.IP())
	h.opts.Events.EmitLeaseEvent(ctx, event, released, h.store.Now())
}
