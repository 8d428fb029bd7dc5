package policy

import (
	"net"

	"github.com/insomniacslk/dhcp/dhcpv4"
	"github.com/nextdhcp/nextpool/core/lease"
)

// Reply describes the message that should be sent in response to
// a request. Turning it into a packet and delivering it is up to the
// transport
type Reply struct {
	// Type is either DHCPOFFER, DHCPACK or DHCPNAK
	Type dhcpv4.MessageType

	// Options are the DHCP options to send, in order
	Options []dhcpv4.Option

	// Target is the address offered or acknowledged. Unspecified for
	// DHCPNAK
	Target net.IP

	// Request is the message being answered
	Request *dhcpv4.DHCPv4
}

// Apply copies the reply into resp, a message prepared with
// dhcpv4.NewReplyFromRequest
func (r *Reply) Apply(resp *dhcpv4.DHCPv4) {
	resp.UpdateOption(dhcpv4.OptMessageType(r.Type))
	resp.YourIPAddr = r.Target

	for _, opt := range r.Options {
		resp.UpdateOption(opt)
	}
}

// Option returns the value of the option with code or nil
func (r *Reply) Option(code dhcpv4.OptionCode) []byte {
	for _, opt := range r.Options {
		if opt.Code.Code() == code.Code() {
			return opt.Value.ToBytes()
		}
	}

	return nil
}

func (h *Handler) offer(req *dhcpv4.DHCPv4, addr uint32) *Reply {
	return h.reply(req, dhcpv4.MessageTypeOffer, addr)
}

func (h *Handler) ack(req *dhcpv4.DHCPv4, addr uint32) *Reply {
	return h.reply(req, dhcpv4.MessageTypeAck, addr)
}

func (h *Handler) reply(req *dhcpv4.DHCPv4, mt dhcpv4.MessageType, addr uint32) *Reply {
	return &Reply{
		Type:    mt,
		Options: h.standardOptions(),
		Target:  lease.Int2IP(addr),
		Request: req,
	}
}

func (h *Handler) nak(req *dhcpv4.DHCPv4, msg string) *Reply {
	return &Reply{
		Type:    dhcpv4.MessageTypeNak,
		Options: []dhcpv4.Option{dhcpv4.OptMessage(msg)},
		Target:  net.IPv4zero.To4(),
		Request: req,
	}
}

// standardOptions returns the options sent with every OFFER and ACK:
// lease time, subnet mask, router and name servers followed by any
// extra option configured
func (h *Handler) standardOptions() []dhcpv4.Option {
	opts := []dhcpv4.Option{
		dhcpv4.OptIPAddressLeaseTime(h.opts.LeaseTime),
	}

	if h.opts.Netmask != nil {
		opts = append(opts, dhcpv4.OptSubnetMask(h.opts.Netmask))
	}

	if len(h.opts.Routers) > 0 {
		opts = append(opts, dhcpv4.OptRouter(h.opts.Routers...))
	}

	if len(h.opts.DNS) > 0 {
		opts = append(opts, dhcpv4.OptDNS(h.opts.DNS...))
	}

	return append(opts, h.opts.Extra...)
}
