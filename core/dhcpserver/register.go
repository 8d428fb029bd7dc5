package dhcpserver

import (
	"fmt"
	"net"

	"github.com/caddyserver/caddy"
	"github.com/caddyserver/caddy/caddyfile"
	"github.com/nextdhcp/nextpool/core/socket"
)

const serverType = "dhcpv4"

func init() {
	caddy.RegisterServerType(serverType, caddy.ServerType{
		Directives: func() []string { return Directives },
		DefaultInput: func() caddy.Input {
			return caddy.CaddyfileInput{
				Filepath:       "Dhcpfile",
				Contents:       []byte{},
				ServerTypeName: serverType,
			}
		},
		NewContext: newContext,
	})
}

func newContext(i *caddy.Instance) caddy.Context {
	return &dhcpContext{
		keyToConfig: make(map[string]*Config),
	}
}

type dhcpContext struct {
	configs     []*Config
	keyToConfig map[string]*Config
}

func (c *dhcpContext) addConfig(key string, cfg *Config) {
	c.configs = append(c.configs, cfg)
	c.keyToConfig[key] = cfg
}

func (c *dhcpContext) InspectServerBlocks(sourceFile string, serverBlocks []caddyfile.ServerBlock) ([]caddyfile.ServerBlock, error) {
	for si, s := range serverBlocks {
		for ki, k := range s.Keys {
			ip, ipNet, err := net.ParseCIDR(k)
			if err != nil {
				return nil, fmt.Errorf("invalid IP network address '%s' in server block %d", k, si)
			}

			if ip.To4() == nil {
				return nil, fmt.Errorf("'%s' in server block %d is not an IPv4 network", k, si)
			}

			c.addConfig(keyForConfig(si, ki), newConfig(ip.To4(), *ipNet))
		}
	}

	return serverBlocks, nil
}

func (c *dhcpContext) MakeServers() ([]caddy.Server, error) {
	for _, cfg := range c.configs {
		if err := findInterface(cfg); err != nil {
			return nil, fmt.Errorf("failed to find interface for subnet %s: %w", cfg.Network.String(), err)
		}

		if err := cfg.Prepare(); err != nil {
			return nil, fmt.Errorf("subnet %s: %w", cfg.Network.String(), err)
		}
	}

	var servers []caddy.Server
	for _, cfg := range c.configs {
		s, err := NewServer(cfg)
		if err != nil {
			return servers, err
		}

		servers = append(servers, s)
	}

	return servers, nil
}

func findInterface(cfg *Config) error {
	// configured by the interface directive
	if cfg.Interface.Name != "" {
		return nil
	}

	iface, err := socket.InterfaceByIP(cfg.IP)
	if err != nil {
		return err
	}

	cfg.Interface = *iface
	return nil
}
