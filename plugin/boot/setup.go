package boot

import (
	"net"
	"strings"

	"github.com/caddyserver/caddy"
	"github.com/nextdhcp/nextpool/core/dhcpserver"
	"github.com/nextdhcp/nextpool/core/log"
	"github.com/nextdhcp/nextpool/plugin"
)

func init() {
	caddy.RegisterPlugin("boot", caddy.Plugin{
		ServerType: "dhcpv4",
		Action:     setupBoot,
	})
}

func setupBoot(c *caddy.Controller) error {
	p, err := parse(c)
	if err != nil {
		return err
	}

	dhcpserver.GetConfig(c).AddPlugin(func(next plugin.Handler) plugin.Handler {
		p.Next = next
		return p
	})

	return nil
}

// parse parses
//
//	boot {
//		next-server 192.168.0.10
//		server-name tftp.lan
//		bios pxelinux.0
//		uefi bootx64.efi
//	}
func parse(c *caddy.Controller) (*Plugin, error) {
	p := &Plugin{
		Files: make(map[Mode]string),
		L:     log.Named("boot"),
	}

	for c.Next() {
		if len(c.RemainingArgs()) > 0 {
			return nil, c.ArgErr()
		}

		for c.NextBlock() {
			name := strings.ToLower(c.Val())
			values := c.RemainingArgs()
			if len(values) != 1 {
				return nil, c.ArgErr()
			}

			switch name {
			case "next-server":
				ip := net.ParseIP(values[0])
				if ip == nil || ip.To4() == nil {
					return nil, c.Errf("expected IPv4 address but got %s", values[0])
				}
				p.NextServer = ip.To4()
			case "server-name":
				p.ServerName = values[0]
			case "bios", "legacy":
				p.Files[BIOS] = values[0]
			case "uefi":
				p.Files[UEFI] = values[0]
			default:
				return nil, c.Errf("unknown boot setting %q", name)
			}
		}
	}

	if p.NextServer == nil && p.ServerName == "" && len(p.Files) == 0 {
		return nil, c.Err("boot: nothing configured")
	}

	return p, nil
}
