package logger

import (
	"github.com/apex/log"
	"github.com/caddyserver/caddy"
)

func init() {
	caddy.RegisterPlugin("logger", caddy.Plugin{
		ServerType: "dhcpv4",
		Action:     setupLogging,
	})
}

// setupLogging parses
//
//	logger {
//	    level info
//	    format json
//	    output-file /var/log/nextpool.log
//	}
func setupLogging(c *caddy.Controller) error {
	l := New()

	if c.Next() {
		for c.NextBlock() {
			if err := parseLog(l, c.Val(), c.RemainingArgs()); err != nil {
				return c.Err(err.Error())
			}
		}

		if c.NextArg() {
			return c.ArgErr()
		}
	}

	if c.Next() {
		return c.SyntaxErr("invalid token or multiple \"logger\" configurations")
	}

	log.SetHandler(&Handler{Logger: l})
	c.OnShutdown(func() error {
		return closeOutput(l)
	})

	return nil
}
