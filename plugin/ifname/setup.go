package ifname

import (
	"net"

	"github.com/caddyserver/caddy"
	"github.com/nextdhcp/nextpool/core/dhcpserver"
)

func init() {
	caddy.RegisterPlugin("interface", caddy.Plugin{
		ServerType: "dhcpv4",
		Action:     setupInterface,
	})
}

// setupInterface configures the network interface of the subnet:
//
//	interface eth0
//
// Without the directive the interface holding the server block address
// is used
func setupInterface(c *caddy.Controller) error {
	if !c.Next() {
		return c.ArgErr()
	}

	if !c.NextArg() {
		return c.ArgErr()
	}

	name := c.Val()

	if len(c.RemainingArgs()) > 0 || c.Next() {
		return c.ArgErr()
	}

	iface, err := interfaceByName(name)
	if err != nil {
		return c.Errf("interface %s: %s", name, err)
	}

	dhcpserver.GetConfig(c).Interface = *iface

	return nil
}

var interfaceByName = net.InterfaceByName
