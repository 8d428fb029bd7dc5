package policy

import (
	"context"
	"net"

	"github.com/insomniacslk/dhcp/dhcpv4"
	"github.com/nextdhcp/nextpool/core/events"
	"github.com/nextdhcp/nextpool/core/lease"
	"github.com/nextdhcp/nextpool/core/log"
)

// NakNotAvailable is the message sent with a DHCPNAK if the requested
// address cannot be leased to the client
const NakNotAvailable = "Requested IP not available"

// request commits the requested address and ACKs it, or NAKs the request
// if the address cannot be leased to the client
func (h *Handler) request(ctx context.Context, l log.Logger, req *dhcpv4.DHCPv4) *Reply {
	if !h.ForThisServer(req) {
		l.Debugf("ignoring request for server %s", net.IP(req.Options.Get(dhcpv4.OptionServerIdentifier)))
		return nil
	}

	addr, present, valid := requestedAddress(req)
	if present && !valid {
		l.Debugf("dropping request with malformed requested IP option")
		return nil
	}

	if !present {
		addr, _ = lease.IP2Int(req.ClientIPAddr)
	}

	owner := req.ClientHWAddr
	now := h.store.Now()

	if !h.store.IsAvailableAt(owner, addr, now) {
		l.Infof("denying request for %s", lease.Int2IP(addr))
		return h.nak(req, NakNotAvailable)
	}

	// a client holds at most one address
	if cur, ok := h.store.CurrentLease(owner); ok && cur != addr {
		l.Debugf("client moves from %s to %s", lease.Int2IP(cur), lease.Int2IP(addr))
		h.store.Remove(cur)
	}

	h.store.Put(addr, owner, now.Add(h.opts.LeaseTime))

	committed, _ := h.store.Get(addr)
	l.Infof("leased %s for %s", committed.IP(), h.opts.LeaseTime)
	h.opts.Events.EmitLeaseEvent(ctx, events.EventLeaseCreated, committed, now)

	return h.ack(req, addr)
}
