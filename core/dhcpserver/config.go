package dhcpserver

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/apex/log"
	"github.com/caddyserver/caddy"
	"github.com/insomniacslk/dhcp/dhcpv4"
	"github.com/nextdhcp/nextpool/core/events"
	"github.com/nextdhcp/nextpool/core/lease"
	"github.com/nextdhcp/nextpool/core/policy"
	"github.com/nextdhcp/nextpool/plugin"
)

// Config configures the DHCP server of a subnet
type Config struct {
	// IP is the IP address of the interface we are listening on
	IP net.IP

	// Network is the network of the subnet
	Network net.IPNet

	// Interface is the network interface where the subnet should be served.
	// If not set it is looked up using IP
	Interface net.Interface

	// ServerID is sent as the server identifier option and used to
	// check whether a message is meant for us. Defaults to IP
	ServerID net.IP

	// LeaseTime is the duration of new leases
	LeaseTime time.Duration

	// Pool is the address pool leases are allocated from. Exactly one
	// pool must be configured per subnet
	Pool *lease.Pool

	// Netmask is sent as the subnet mask option. Defaults to the mask
	// of Network
	Netmask net.IPMask

	// Router and DNS are sent with every OFFER and ACK if set
	Router []net.IP
	DNS    []net.IP

	// Options holds additional DHCP options sent with every OFFER and ACK
	Options []dhcpv4.Option

	// Clock provides the current time to the lease store
	Clock lease.Clock

	// Store is the lease store of the subnet. It is created before the
	// middleware chain is built
	Store *lease.Store

	// Shared guards read access to Store from other goroutines
	Shared *lease.SharedStore

	// Events receives lease events. Defaults to events.CaddySink
	Events events.Sink

	// Logger is the logger used for the subnet
	Logger log.Interface

	// plugins is a list of middleware setup functions
	plugins []plugin.Plugin

	// chain is the beginning of the middleware chain for this subnet
	chain plugin.Handler
}

// AddPlugin adds a new plugin to the middleware chain
func (cfg *Config) AddPlugin(p plugin.Plugin) {
	cfg.plugins = append(cfg.plugins, p)
}

// PolicyOptions returns the options for the policy handler of the subnet
func (cfg *Config) PolicyOptions() policy.Options {
	mask := cfg.Netmask
	if mask == nil {
		mask = cfg.Network.Mask
	}

	return policy.Options{
		ServerID:  cfg.ServerID,
		LeaseTime: cfg.LeaseTime,
		Netmask:   mask,
		Routers:   cfg.Router,
		DNS:       cfg.DNS,
		Extra:     cfg.Options,
		Events:    cfg.Events,
		Logger:    cfg.Logger,
	}
}

// Prepare creates the lease store and builds the middleware chain. It must
// be called after all directives have been parsed
func (cfg *Config) Prepare() error {
	if err := prepareStore(cfg); err != nil {
		return err
	}

	return buildMiddlewareChain(cfg)
}

// Handler returns the first handler of the middleware chain or nil if
// the chain has not been built yet
func (cfg *Config) Handler() plugin.Handler {
	return cfg.chain
}

func keyForConfig(serverBlockIndex, serverBlockKeyIndex int) string {
	return fmt.Sprintf("%d:%d", serverBlockIndex, serverBlockKeyIndex)
}

// GetConfig gets the Config that corresponds to c
// if none exist nil is returned
func GetConfig(c *caddy.Controller) *Config {
	ctx := c.Context().(*dhcpContext)
	key := keyForConfig(c.ServerBlockIndex, c.ServerBlockKeyIndex)

	return ctx.keyToConfig[key]
}

func newConfig(ip net.IP, network net.IPNet) *Config {
	return &Config{
		IP:        ip,
		Network:   network,
		ServerID:  ip,
		LeaseTime: policy.DefaultLeaseTime,
		Clock:     lease.SystemClock{},
		Events:    events.CaddySink{},
		Logger:    log.Log,
	}
}

// prepareStore creates the lease store for the configured pool
func prepareStore(cfg *Config) error {
	if cfg.Store != nil {
		return nil
	}

	if cfg.Pool == nil {
		return fmt.Errorf("no address pool configured")
	}

	if !cfg.Network.Contains(lease.Int2IP(cfg.Pool.Start)) || !cfg.Network.Contains(lease.Int2IP(cfg.Pool.Last())) {
		cfg.Logger.Warnf("pool %s exceeds subnet %s", cfg.Pool, cfg.Network.String())
	}

	cfg.Store = lease.NewStore(*cfg.Pool, cfg.Clock)
	cfg.Shared = lease.NewSharedStore(cfg.Store)

	return nil
}

func buildMiddlewareChain(cfg *Config) error {
	var endOfChainHandler plugin.HandlerFunc = func(ctx context.Context, req, res *dhcpv4.DHCPv4) error {
		cfg.Logger.Debugf("%s from %s not handled. dropping", req.MessageType(), GetPeer(ctx))

		return ErrNoResponse
	}

	var chain plugin.Handler = endOfChainHandler
	for i := len(cfg.plugins) - 1; i >= 0; i-- {
		chain = cfg.plugins[i](chain)
	}

	cfg.chain = chain

	return nil
}
