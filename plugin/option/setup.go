package option

import (
	"github.com/caddyserver/caddy"
	"github.com/nextdhcp/nextpool/core/dhcpserver"
)

func init() {
	caddy.RegisterPlugin("option", caddy.Plugin{
		ServerType: "dhcpv4",
		Action:     setupOption,
	})
}

// setupOption parses
//
//	option router 192.168.0.1
//	option {
//	    nameserver 8.8.8.8 8.8.4.4
//	    0xaa 0xbeef
//	}
func setupOption(c *caddy.Controller) error {
	cfg := dhcpserver.GetConfig(c)

	parse := func() error {
		name := c.Val()
		values := c.RemainingArgs()
		if len(values) == 0 {
			return c.ArgErr()
		}

		if err := apply(cfg, name, values); err != nil {
			return c.Err(err.Error())
		}

		return nil
	}

	for c.Next() {
		if c.NextBlock() {
			if err := parse(); err != nil {
				return err
			}

			for c.NextBlock() {
				if err := parse(); err != nil {
					return err
				}
			}

			continue
		}

		if !c.NextArg() {
			return c.ArgErr()
		}

		if err := parse(); err != nil {
			return err
		}
	}

	return nil
}
