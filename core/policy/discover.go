package policy

import (
	"context"

	"github.com/insomniacslk/dhcp/dhcpv4"
	"github.com/nextdhcp/nextpool/core/lease"
	"github.com/nextdhcp/nextpool/core/log"
)

// discover picks an address to offer. Nothing is committed to the store,
// that only happens once the client sends a DHCPREQUEST
func (h *Handler) discover(_ context.Context, l log.Logger, req *dhcpv4.DHCPv4) *Reply {
	owner := req.ClientHWAddr
	now := h.store.Now()

	// prefer the address the client asked for
	if addr, _, ok := requestedAddress(req); ok {
		if h.store.IsAvailableAt(owner, addr, now) {
			l.Debugf("offering requested address %s", lease.Int2IP(addr))
			return h.offer(req, addr)
		}

		l.Debugf("requested address %s not available", lease.Int2IP(addr))
	}

	// then whatever the client had before, even if expired. This also
	// covers clients that missed our previous offer
	if addr, ok := h.store.CurrentLease(owner); ok {
		l.Debugf("offering existing lease %s", lease.Int2IP(addr))
		return h.offer(req, addr)
	}

	pool := h.store.Pool()
	for i := uint32(0); i < pool.Count; i++ {
		addr := h.store.NextCandidate()
		if h.store.IsAvailableAt(owner, addr, now) {
			l.Debugf("offering free address %s", lease.Int2IP(addr))
			return h.offer(req, addr)
		}
	}

	l.Warnf("address pool %s exhausted", pool)
	return nil
}
