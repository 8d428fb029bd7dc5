// Package log carries per-request logging fields through a context.Context
package log

import (
	"context"

	"github.com/apex/log"
	"github.com/insomniacslk/dhcp/dhcpv4"
)

// Logger is the logging interface used throughout nextpool
type Logger = log.Interface

type requestFieldsKey struct{}

// AddRequestFields returns a new context.Context that carries log fields
// describing req
func AddRequestFields(parent context.Context, req *dhcpv4.DHCPv4) context.Context {
	fields := log.Fields{
		"hwaddr":  req.ClientHWAddr.String(),
		"xid":     req.TransactionID.String(),
		"msgtype": req.MessageType().String(),
	}

	if req.HostName() != "" {
		fields["hostname"] = req.HostName()
	}

	return context.WithValue(parent, requestFieldsKey{}, fields)
}

// With returns l with the request fields stored in ctx attached. If
// ctx has no request fields l is returned as is
func With(ctx context.Context, l Logger) Logger {
	if l == nil {
		l = log.Log
	}

	if fields, ok := ctx.Value(requestFieldsKey{}).(log.Fields); ok {
		return l.WithFields(fields)
	}

	return l
}

// Named returns the default logger with a "plugin" field set to name
func Named(name string) Logger {
	return log.WithField("plugin", name)
}
