package mqtt

import (
	"context"
	"os/exec"
	"strconv"

	"github.com/caddyserver/caddy"
	"github.com/nextdhcp/nextpool/core/events"
	"github.com/nextdhcp/nextpool/core/log"
	"github.com/nextdhcp/nextpool/core/matcher"
	"github.com/nextdhcp/nextpool/core/replacer"
)

func init() {
	caddy.RegisterPlugin("mqtt", caddy.Plugin{
		ServerType: "dhcpv4",
		Action:     setupMqtt,
	})
}

func setupMqtt(c *caddy.Controller) error {
	plg, err := parse(c)
	if err != nil {
		return err
	}

	events.Subscribe("mqtt", plg.onLeaseEvent)
	c.OnShutdown(plg.close)

	return nil
}

// parse parses one or more mqtt directives:
//
//	mqtt lease-created {
//		name home
//		broker tcp://localhost:1883
//		topic dhcp/{hwaddr}
//		payload "{ip}"
//	}
//	mqtt event == 'lease-released' {
//		if hasPrefix(hwaddr, '00:aa')
//		use home
//		topic dhcp/{hwaddr}/released
//		payload "{ip}"
//	}
func parse(c *caddy.Controller) (*mqttPlugin, error) {
	plg := &mqttPlugin{
		log: log.Named("mqtt"),
	}

	for c.Next() {
		cfg := &mqttConfig{}
		useExisting := false

		line := matcher.LineCondition(c)
		conds := &matcher.Conditions{}

		for c.NextBlock() {
			if ok, err := conds.Parse(c); ok {
				if err != nil {
					return nil, err
				}
				continue
			}

			switch c.Val() {
			case "name", "broker", "user", "password",
				"clean-session", "qos", "client-id":
				if useExisting {
					return nil, c.SyntaxErr("either configure a new connection or \"use\" and existing one")
				}

				if err := parseConnectionSettings(cfg, c); err != nil {
					return nil, err
				}

			case "use":
				if cfg.conn != nil {
					return nil, c.SyntaxErr("either configure a new connection or \"use\" and existing one")
				}
				useExisting = true

				if !c.NextArg() {
					return nil, c.ArgErr()
				}
				cfg.name = c.Val()

			case "topic":
				if !c.NextArg() {
					return nil, c.ArgErr()
				}

				cfg.topic = getStringFactory(c.Val())

			case "payload", "body":
				if !c.NextArg() {
					return nil, c.ArgErr()
				}

				cfg.payload = getStringFactory(c.Val())

			case "payload-from":
				cmd := c.RemainingArgs()
				if len(cmd) == 0 {
					return nil, c.ArgErr()
				}

				cfg.payload = getExecCmdStringFactory(cmd)

			default:
				return nil, c.Errf("unknown property %q", c.Val())
			}
		}

		cond, err := matcher.New(conds.Expr(line))
		if err != nil {
			return nil, c.Errf("invalid condition: %s", err)
		}
		cfg.Matcher = cond

		if !useExisting && cfg.conn == nil {
			return nil, c.SyntaxErr("Either configure a MQTT connection or \"use\" an existing one")
		}

		if cfg.conn != nil && len(cfg.conn.broker) == 0 {
			return nil, c.Err("no MQTT broker configured")
		}

		if cfg.topic == nil {
			return nil, c.Err("no MQTT topic configured")
		}

		if cfg.payload == nil {
			cfg.payload = getStringFactory("{ip}")
		}

		plg.configs = append(plg.configs, cfg)
	}

	return plg, nil
}

func getStringFactory(s string) msgFactory {
	return func(_ context.Context, e *events.LeaseEvent) (string, error) {
		rep := replacer.NewReplacer(e)
		return rep.Replace(s), nil
	}
}

func getExecCmdStringFactory(cmd []string) msgFactory {
	return func(ctx context.Context, e *events.LeaseEvent) (string, error) {
		args := make([]string, len(cmd))
		rep := replacer.NewReplacer(e)

		for i, c := range cmd {
			args[i] = rep.Replace(c)
		}

		output, err := exec.CommandContext(ctx, args[0], args[1:]...).Output()
		return string(output), err
	}
}

func parseConnectionSettings(cfg *mqttConfig, c *caddy.Controller) error {
	if cfg.conn == nil {
		cfg.conn = &mqttConnConfig{}
	}

	action := c.Val()
	if action == "clean-session" {
		cfg.conn.cleanSession = true
		return nil
	}

	if !c.NextArg() {
		return c.ArgErr()
	}

	switch action {
	case "name":
		cfg.name = c.Val()
	case "broker":
		cfg.conn.broker = append([]string{c.Val()}, c.RemainingArgs()...)
	case "user":
		cfg.conn.user = c.Val()
	case "password":
		cfg.conn.password = c.Val()
	case "client-id":
		cfg.conn.clientID = c.Val()
	case "qos":
		i, err := strconv.Atoi(c.Val())
		if err != nil || i < 0 || i > 2 {
			return c.SyntaxErr("expected a number between 0 and 2")
		}
		cfg.conn.qos = i
	}

	return nil
}
