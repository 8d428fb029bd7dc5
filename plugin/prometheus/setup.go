package prometheus

import (
	"strconv"
	"strings"

	"github.com/caddyserver/caddy"
	"github.com/nextdhcp/nextpool/core/dhcpserver"
	"github.com/nextdhcp/nextpool/core/events"
	"github.com/nextdhcp/nextpool/plugin"
)

func init() {
	caddy.RegisterPlugin("prometheus", caddy.Plugin{
		ServerType: "dhcpv4",
		Action:     setupPrometheus,
	})
}

func setupPrometheus(c *caddy.Controller) error {
	metrics, err := parse(c)
	if err != nil {
		return err
	}

	cfg := dhcpserver.GetConfig(c)
	metrics.define(cfg)
	metrics.register(c)

	events.Subscribe("prometheus", metrics.countLeaseEvent)

	plg := &Plugin{Metrics: metrics}
	cfg.AddPlugin(func(next plugin.Handler) plugin.Handler {
		plg.Next = next
		return plg
	})

	return nil
}

//	prometheus {
//		address localhost:9180
//		path /metrics
//		label subnet lan
//		latency_buckets 0.001 0.01 0.1
//	}
//
// Or just: prometheus localhost:9180
func parse(c *caddy.Controller) (*Metrics, error) {
	var metrics *Metrics

	for c.Next() {
		if metrics != nil {
			return nil, c.Err("prometheus: can only have one metrics module per server")
		}

		metrics = NewMetrics("", "")

		for c.NextBlock() {
			if err := parseSetting(c, metrics); err != nil {
				return nil, err
			}
		}

		args := c.RemainingArgs()
		switch len(args) {
		case 0:
		case 1:
			metrics.addr = args[0]
		default:
			return nil, c.ArgErr()
		}
	}

	if metrics == nil {
		metrics = NewMetrics("", "")
	}

	return metrics, nil
}

func parseSetting(c *caddy.Controller, metrics *Metrics) error {
	switch c.Val() {
	case "path":
		args := c.RemainingArgs()
		if len(args) != 1 {
			return c.ArgErr()
		}
		metrics.path = args[0]
	case "address":
		args := c.RemainingArgs()
		if len(args) != 1 {
			return c.ArgErr()
		}
		metrics.addr = args[0]
	case "label":
		args := c.RemainingArgs()
		if len(args) != 2 {
			return c.ArgErr()
		}

		metrics.extraLabels = append(metrics.extraLabels, extraLabel{
			name:  strings.TrimSpace(args[0]),
			value: args[1],
		})
	case "latency_buckets":
		args := c.RemainingArgs()
		if len(args) < 1 {
			return c.Err("prometheus: must specify 1 or more latency buckets")
		}
		metrics.latencyBuckets = make([]float64, len(args))
		for i, v := range args {
			b, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return c.Errf("prometheus: invalid bucket %q - must be a number", v)
			}
			metrics.latencyBuckets[i] = b
		}
	default:
		return c.Errf("prometheus: unknown item: %s", c.Val())
	}

	return nil
}
