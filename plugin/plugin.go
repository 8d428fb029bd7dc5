// Package plugin defines the middleware chain every DHCP message passes
// through
package plugin

import (
	"context"

	"github.com/insomniacslk/dhcp/dhcpv4"
)

type (
	// Handler for DHCP requests created by a plugin factory (see Plugin).
	// Each handler is responsible of calling the next handler in the chain
	// which was passed to Plugin
	Handler interface {
		// Name returns the name of the handler
		Name() string

		// ServeDHCP is called for each DHCPv4 request. resp is prepared
		// as a reply to req and sent unless an error is returned
		ServeDHCP(ctx context.Context, req *dhcpv4.DHCPv4, resp *dhcpv4.DHCPv4) error
	}

	// Plugin wraps the next handler of the chain
	Plugin func(Handler) Handler

	// HandlerFunc allows to easily wrap a function as a Handler type
	HandlerFunc func(ctx context.Context, req *dhcpv4.DHCPv4, resp *dhcpv4.DHCPv4) error
)

// ServeDHCP implements the Handler interface
func (fn HandlerFunc) ServeDHCP(ctx context.Context, req, resp *dhcpv4.DHCPv4) error {
	return fn(ctx, req, resp)
}

// Name returns "HandlerFunc" and implements the Handler interface
func (fn HandlerFunc) Name() string {
	return "HandlerFunc"
}
