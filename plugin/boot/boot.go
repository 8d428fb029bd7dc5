// Package boot adds network boot parameters to offered and acknowledged
// leases
package boot

import (
	"context"
	"net"

	"github.com/insomniacslk/dhcp/dhcpv4"
	"github.com/insomniacslk/dhcp/iana"
	"github.com/nextdhcp/nextpool/core/log"
	"github.com/nextdhcp/nextpool/plugin"
)

// Mode selects the boot file for a client architecture
type Mode string

const (
	// BIOS is used for legacy PC clients
	BIOS Mode = "bios"
	// UEFI is used for EFI clients
	UEFI Mode = "uefi"
)

// Plugin sets next-server, server host name and boot file on OFFER and
// ACK messages. It implements plugin.Handler
type Plugin struct {
	Next       plugin.Handler
	NextServer net.IP
	ServerName string
	Files      map[Mode]string
	L          log.Logger
}

// Name implements the plugin.Handler interface and returns "boot"
func (p *Plugin) Name() string {
	return "boot"
}

// ServeDHCP calls the next handler and decorates the reply if it is an
// OFFER or ACK
func (p *Plugin) ServeDHCP(ctx context.Context, req, res *dhcpv4.DHCPv4) error {
	if err := p.Next.ServeDHCP(ctx, req, res); err != nil {
		return err
	}

	switch res.MessageType() {
	case dhcpv4.MessageTypeOffer, dhcpv4.MessageTypeAck:
	default:
		return nil
	}

	if p.NextServer != nil {
		res.ServerIPAddr = p.NextServer
	}

	if p.ServerName != "" {
		res.ServerHostName = p.ServerName
	}

	if file := p.bootFile(ctx, req); file != "" {
		res.BootFileName = file
		res.UpdateOption(dhcpv4.OptBootFileName(file))
	}

	return nil
}

// bootFile returns the boot file for the architecture announced by the
// client. Clients without architecture option get no boot file
func (p *Plugin) bootFile(ctx context.Context, req *dhcpv4.DHCPv4) string {
	archs := req.ClientArch()
	if len(archs) == 0 {
		return ""
	}

	var mode Mode

	switch archs[0] {
	case iana.INTEL_X86PC, iana.NEC_PC98, iana.DEC_ALPHA, iana.ARC_X86, iana.INTEL_LEAN_CLIENT:
		mode = BIOS
	case iana.EFI_ITANIUM, iana.EFI_IA32, iana.EFI_BC, iana.EFI_XSCALE, iana.EFI_X86_64:
		mode = UEFI
	default:
		return ""
	}

	file := p.Files[mode]
	log.With(ctx, p.L).Debugf("client arch %s, boot mode %s, boot file %q", archs[0], mode, file)

	return file
}
