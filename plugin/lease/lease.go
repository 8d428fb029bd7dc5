package lease

import (
	"time"

	"github.com/caddyserver/caddy"
	"github.com/nextdhcp/nextpool/core/dhcpserver"
)

func init() {
	caddy.RegisterPlugin("lease", caddy.Plugin{
		ServerType: "dhcpv4",
		Action:     setupLease,
	})
}

// setupLease configures the duration of new leases, e.g. "lease 2h"
func setupLease(c *caddy.Controller) error {
	config := dhcpserver.GetConfig(c)

	for c.Next() {
		if !c.NextArg() {
			return c.ArgErr()
		}

		d, err := time.ParseDuration(c.Val())
		if err != nil {
			return c.SyntaxErr("time.Duration")
		}

		if d < time.Second || d > time.Duration(^uint32(0))*time.Second {
			return c.Errf("lease time %s out of range", d)
		}

		if c.NextArg() {
			return c.ArgErr()
		}

		config.LeaseTime = d
	}

	return nil
}
