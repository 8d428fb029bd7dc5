package serverid

import (
	"net"

	"github.com/caddyserver/caddy"
	"github.com/nextdhcp/nextpool/core/dhcpserver"
)

func init() {
	caddy.RegisterPlugin("serverid", caddy.Plugin{
		ServerType: "dhcpv4",
		Action:     setupServerID,
	})
}

// setupServerID overrides the server identifier of the subnet. Without
// an argument the address of the server block is used
func setupServerID(c *caddy.Controller) error {
	c.Next()

	cfg := dhcpserver.GetConfig(c)

	if c.NextArg() {
		ip := net.ParseIP(c.Val()).To4()
		if ip == nil {
			return c.Errf("invalid server identifier %q", c.Val())
		}

		cfg.ServerID = ip
	}

	if c.NextArg() {
		return c.ArgErr()
	}

	if c.Next() {
		return c.Err("serverid can only be set once")
	}

	return nil
}
