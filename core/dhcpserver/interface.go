package dhcpserver

import (
	"context"
	"errors"
	"net"
	"time"
)

// ErrNoResponse is returned by plugins if no response should be sent to the
// client. It's not an actual error
var ErrNoResponse = errors.New("no response should be sent")

type (
	// PeerKey is the key used to associate a net.Addr with a
	// context.Context
	PeerKey struct{}

	requestTimeKey struct{}
)

// GetPeer returns the peer address associated with ctx
func GetPeer(ctx context.Context) net.Addr {
	val, _ := ctx.Value(PeerKey{}).(net.Addr)
	return val
}

// WithPeer associates a peer addr with the ctx
func WithPeer(ctx context.Context, peer net.Addr) context.Context {
	return context.WithValue(ctx, PeerKey{}, peer)
}

// WithRequestTimeStamp stores the time a request has been received in ctx
func WithRequestTimeStamp(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}

// GetRequestTimeStamp returns the time the request has been received. If
// unknown, the current time is returned
func GetRequestTimeStamp(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}

	return time.Now()
}
