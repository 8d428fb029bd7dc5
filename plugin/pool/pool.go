package pool

import (
	"context"

	"github.com/insomniacslk/dhcp/dhcpv4"
	"github.com/nextdhcp/nextpool/core/dhcpserver"
	"github.com/nextdhcp/nextpool/core/lease"
	"github.com/nextdhcp/nextpool/core/policy"
	"github.com/nextdhcp/nextpool/plugin"
)

// poolPlugin answers DISCOVER, REQUEST, RELEASE and DECLINE messages using
// the lease store of the subnet. Other messages are passed on
type poolPlugin struct {
	next    plugin.Handler
	handler *policy.Handler
	shared  *lease.SharedStore
}

// Name returns "pool" and implements plugin.Handler
func (p *poolPlugin) Name() string {
	return "pool"
}

// ServeDHCP implements plugin.Handler
func (p *poolPlugin) ServeDHCP(ctx context.Context, req, res *dhcpv4.DHCPv4) error {
	if policy.Classify(req.MessageType()) == policy.KindIgnored {
		return p.next.ServeDHCP(ctx, req, res)
	}

	var reply *policy.Reply
	err := p.shared.Do(context.Background(), func(*lease.Store) {
		reply = p.handler.Handle(ctx, req)
	})
	if err != nil {
		return err
	}

	if reply == nil {
		return dhcpserver.ErrNoResponse
	}

	reply.Apply(res)

	return nil
}
