package gotify

import (
	"context"
	"net/url"
	"strconv"

	"github.com/caddyserver/caddy"
	"github.com/nextdhcp/nextpool/core/events"
	"github.com/nextdhcp/nextpool/core/log"
	"github.com/nextdhcp/nextpool/core/matcher"
	"github.com/nextdhcp/nextpool/core/replacer"
)

func init() {
	caddy.RegisterPlugin("gotify", caddy.Plugin{
		ServerType: "dhcpv4",
		Action:     setupGotify,
	})
}

func setupGotify(c *caddy.Controller) error {
	g, err := makeGotifyPlugin(c)
	if err != nil {
		return err
	}

	events.Subscribe("gotify", g.onLeaseEvent)
	c.OnShutdown(func() error {
		g.wg.Wait()
		return nil
	})

	return nil
}

// makeGotifyPlugin parses one or more gotify directives:
//
//	gotify lease-created {
//		server https://gotify.example.com APP-TOKEN
//		title "New lease"
//		message "{hwaddr} got {ip}"
//		priority 8
//		if hasPrefix(hwaddr, '00:aa')
//	}
//
// Server and token are inherited from the previous directive if omitted
func makeGotifyPlugin(c *caddy.Controller) (*gotifyPlugin, error) {
	g := &gotifyPlugin{
		l: log.Named("gotify"),
	}

	for c.Next() {
		line := matcher.LineCondition(c)
		conds := &matcher.Conditions{}

		n := &notification{}
		n.srv, n.token, _ = g.findLastCreds()

		for c.NextBlock() {
			if ok, err := conds.Parse(c); ok {
				if err != nil {
					return nil, err
				}
				continue
			}

			switch c.Val() {
			case "message":
				if !c.NextArg() {
					return nil, c.ArgErr()
				}
				n.msg = getStringFactory(c.Val())

			case "title":
				if !c.NextArg() {
					return nil, c.ArgErr()
				}
				n.title = getStringFactory(c.Val())

			case "priority":
				if !c.NextArg() {
					return nil, c.ArgErr()
				}
				p, err := strconv.Atoi(c.Val())
				if err != nil || p < 0 || p > 10 {
					return nil, c.SyntaxErr("expected a number between 0 and 10")
				}
				n.priority = p

			case "server":
				args := c.RemainingArgs()
				if len(args) != 2 {
					return nil, c.ArgErr()
				}

				if _, err := url.Parse(args[0]); err != nil {
					return nil, c.Errf("invalid gotify server: %s", err)
				}

				n.srv = args[0]
				n.token = args[1]

			default:
				return nil, c.Errf("unknown property %q", c.Val())
			}
		}

		cond, err := matcher.New(conds.Expr(line))
		if err != nil {
			return nil, c.Errf("invalid condition: %s", err)
		}
		n.Matcher = cond

		if n.srv == "" || n.token == "" {
			return nil, c.Err("no gotify server configured")
		}

		if n.msg == nil && !cond.Empty() {
			return nil, c.Err("a message is required when a condition is used")
		}

		g.addNotification(n)
	}

	return g, nil
}

func getStringFactory(s string) msgFactory {
	return func(_ context.Context, e *events.LeaseEvent) (string, error) {
		return replacer.NewReplacer(e).Replace(s), nil
	}
}
