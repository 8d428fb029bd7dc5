package prometheus

import (
	"context"
	"errors"
	"time"

	"github.com/caddyserver/caddy"
	"github.com/insomniacslk/dhcp/dhcpv4"
	"github.com/nextdhcp/nextpool/core/dhcpserver"
	"github.com/nextdhcp/nextpool/core/events"
	"github.com/nextdhcp/nextpool/plugin"
)

// Plugin records request metrics. It implements plugin.Handler
type Plugin struct {
	Next    plugin.Handler
	Metrics *Metrics
}

// Name returns "prometheus"
func (p *Plugin) Name() string {
	return "prometheus"
}

// ServeDHCP calls the next handler and records the request and the type
// of the response
func (p *Plugin) ServeDHCP(ctx context.Context, req, res *dhcpv4.DHCPv4) error {
	err := p.Next.ServeDHCP(ctx, req, res)

	requestType := req.MessageType().String()
	responseType := res.MessageType().String()
	if errors.Is(err, dhcpserver.ErrNoResponse) || res.MessageType() == dhcpv4.MessageTypeNone {
		responseType = "none"
	}

	extra := p.Metrics.extraLabelValues()
	took := time.Since(dhcpserver.GetRequestTimeStamp(ctx))

	p.Metrics.requestCount.WithLabelValues(append([]string{requestType}, extra...)...).Inc()
	p.Metrics.requestDuration.WithLabelValues(append([]string{requestType, responseType}, extra...)...).Observe(took.Seconds())

	return err
}

// countLeaseEvent implements events.LeaseEventHook
func (m *Metrics) countLeaseEvent(name caddy.EventName, _ *events.LeaseEvent) error {
	m.leaseEvents.WithLabelValues(append([]string{string(name)}, m.extraLabelValues()...)...).Inc()
	return nil
}
