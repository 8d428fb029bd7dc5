// Package test contains helpers for testing plugins
package test

import (
	"context"
	"errors"
	"sync"

	"github.com/insomniacslk/dhcp/dhcpv4"
)

type (
	// HandlerFunc implements plugin.Handler
	HandlerFunc func(ctx context.Context, req, res *dhcpv4.DHCPv4) error

	// Recorder is a plugin.Handler that records all requests it
	// has been called with
	Recorder struct {
		l        sync.Mutex
		requests []*dhcpv4.DHCPv4
	}
)

// ServeDHCP implements plugin.Handler
func (fn HandlerFunc) ServeDHCP(ctx context.Context, req, res *dhcpv4.DHCPv4) error {
	return fn(ctx, req, res)
}

// Name implements plugin.Handler
func (fn HandlerFunc) Name() string {
	return "test.HandlerFunc"
}

// ServeDHCP implements plugin.Handler
func (r *Recorder) ServeDHCP(_ context.Context, req, _ *dhcpv4.DHCPv4) error {
	r.l.Lock()
	defer r.l.Unlock()

	r.requests = append(r.requests, req)
	return nil
}

// Name implements plugin.Handler
func (r *Recorder) Name() string {
	return "test.Recorder"
}

// Requests returns all requests recorded so far
func (r *Recorder) Requests() []*dhcpv4.DHCPv4 {
	r.l.Lock()
	defer r.l.Unlock()

	return append([]*dhcpv4.DHCPv4(nil), r.requests...)
}

// Reply returns a handler that answers with the message type mt
func Reply(mt dhcpv4.MessageType) HandlerFunc {
	return func(_ context.Context, req, res *dhcpv4.DHCPv4) error {
		res.UpdateOption(dhcpv4.OptMessageType(mt))
		return nil
	}
}

var (
	// ErrorHandler is a plugin.Handler and always returns an error
	ErrorHandler = HandlerFunc(func(_ context.Context, req, res *dhcpv4.DHCPv4) error {
		return errors.New("simulated error")
	})

	// NoOpHandler is a No-Operation plugin.Handler
	NoOpHandler = HandlerFunc(func(_ context.Context, req, res *dhcpv4.DHCPv4) error {
		return nil
	})
)
