package script

import (
	"github.com/caddyserver/caddy"
	"github.com/nextdhcp/nextpool/core/events"
	"github.com/nextdhcp/nextpool/core/log"
)

func init() {
	caddy.RegisterPlugin("script", caddy.Plugin{
		ServerType: "dhcpv4",
		Action:     setupScript,
	})
}

// setupScript parses
//
//	script /etc/nextpool/hooks.lua
//
// Each directive loads its own script with a dedicated Lua VM
func setupScript(c *caddy.Controller) error {
	runners, err := parse(c)
	if err != nil {
		return err
	}

	for _, r := range runners {
		c.OnStartup(r.Start)
		c.OnShutdown(r.Stop)

		events.Subscribe("script", r.Enqueue, r.Events()...)
	}

	return nil
}

func parse(c *caddy.Controller) ([]*Runner, error) {
	var runners []*Runner

	for c.Next() {
		args := c.RemainingArgs()
		if len(args) != 1 {
			return nil, c.ArgErr()
		}

		r, err := Load(args[0], log.Named("script"))
		if err != nil {
			return nil, c.Errf("failed to load script: %s", err)
		}

		runners = append(runners, r)
	}

	return runners, nil
}
