package pool

import (
	"net"
	"strconv"

	"github.com/apex/log"
	"github.com/caddyserver/caddy"
	"github.com/nextdhcp/nextpool/core/dhcpserver"
	"github.com/nextdhcp/nextpool/core/lease"
	"github.com/nextdhcp/nextpool/core/policy"
	"github.com/nextdhcp/nextpool/plugin"
)

func init() {
	caddy.RegisterPlugin("pool", caddy.Plugin{
		ServerType: "dhcpv4",
		Action:     setupPool,
	})
}

// setupPool parses
//
//	pool 192.168.0.180 100
//	pool 192.168.0.180 192.168.0.200
//
// The second form is an inclusive range
func setupPool(c *caddy.Controller) error {
	cfg := dhcpserver.GetConfig(c)

	for c.Next() {
		if cfg.Pool != nil {
			return c.Err("only one address pool per subnet is supported")
		}

		args := c.RemainingArgs()
		if len(args) != 2 {
			return c.ArgErr()
		}

		pool, err := parsePool(args[0], args[1])
		if err != nil {
			return c.Err(err.Error())
		}

		if !cfg.Network.Contains(lease.Int2IP(pool.Start)) {
			return c.Errf("pool %s does not start in %s", pool, cfg.Network.String())
		}

		if !cfg.Network.Contains(lease.Int2IP(pool.Last())) {
			log.Warnf("pool %s extends beyond %s", pool, cfg.Network.String())
		}

		cfg.Pool = &pool
	}

	cfg.AddPlugin(func(next plugin.Handler) plugin.Handler {
		return &poolPlugin{
			next:    next,
			handler: policy.New(cfg.Store, cfg.PolicyOptions()),
			shared:  cfg.Shared,
		}
	})

	return nil
}

func parsePool(start, countOrEnd string) (lease.Pool, error) {
	if count, err := strconv.Atoi(countOrEnd); err == nil {
		return lease.ParsePool(start, count)
	}

	first, ok1 := lease.IP2Int(net.ParseIP(start))
	last, ok2 := lease.IP2Int(net.ParseIP(countOrEnd))
	if !ok1 || !ok2 || last < first {
		return lease.Pool{}, lease.ErrInvalidPool
	}

	return lease.ParsePool(start, int(last-first)+1)
}
