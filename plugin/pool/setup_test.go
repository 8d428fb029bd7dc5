package pool

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/discard"
	"github.com/caddyserver/caddy"
	"github.com/insomniacslk/dhcp/dhcpv4"
	"github.com/nextdhcp/nextpool/core/dhcpserver"
	"github.com/nextdhcp/nextpool/core/events"
	"github.com/nextdhcp/nextpool/core/lease"
	"github.com/nextdhcp/nextpool/core/policy"
	"github.com/nextdhcp/nextpool/plugin/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSink struct {
	mock.Mock
}

func (m *mockSink) EmitLeaseEvent(_ context.Context, event caddy.EventName, l lease.Lease, at time.Time) {
	m.Called(event, l.IP().String(), at)
}

var clientMAC = net.HardwareAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0x01}

func TestSetupPool(t *testing.T) {
	cases := []struct {
		input string
		start string
		count uint32
		err   bool
	}{
		{"pool 192.168.0.180 100", "192.168.0.180", 100, false},
		{"pool 192.168.0.100 192.168.0.109", "192.168.0.100", 10, false},
		{"pool 192.168.0.100 192.168.0.100", "192.168.0.100", 1, false},
		{"pool 192.168.0.100 192.168.0.99", "", 0, true},
		{"pool 192.168.0.100 0", "", 0, true},
		{"pool 192.168.0.100", "", 0, true},
		{"pool 10.0.0.1 10", "", 0, true},
		{"pool foo 10", "", 0, true},
		{"pool 192.168.0.10 10\npool 192.168.0.100 10", "", 0, true},
	}

	for _, c := range cases {
		ctrl := test.CreateTestBedFor(t, "192.168.0.76/24", c.input)
		err := setupPool(ctrl)

		if c.err {
			assert.Error(t, err, c.input)
			continue
		}

		if assert.NoError(t, err, c.input) {
			cfg := dhcpserver.GetConfig(ctrl)
			require.NotNil(t, cfg.Pool, c.input)
			assert.Equal(t, c.start, lease.Int2IP(cfg.Pool.Start).String(), c.input)
			assert.Equal(t, c.count, cfg.Pool.Count, c.input)
		}
	}
}

func prepare(t *testing.T) (*dhcpserver.Config, *lease.ManualClock) {
	return prepareWithSink(t, events.Discard{})
}

func prepareWithSink(t *testing.T, sink events.Sink) (*dhcpserver.Config, *lease.ManualClock) {
	ctrl := test.CreateTestBedFor(t, "192.168.0.76/24", "pool 192.168.0.180 100")
	require.NoError(t, setupPool(ctrl))

	clock := lease.NewManualClock(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))

	cfg := dhcpserver.GetConfig(ctrl)
	cfg.Clock = clock
	cfg.Events = sink
	cfg.Logger = &log.Logger{Handler: discard.New(), Level: log.DebugLevel}
	require.NoError(t, cfg.Prepare())

	return cfg, clock
}

func serve(t *testing.T, cfg *dhcpserver.Config, req *dhcpv4.DHCPv4) (*dhcpv4.DHCPv4, error) {
	res, err := dhcpv4.NewReplyFromRequest(req)
	require.NoError(t, err)

	ctx := dhcpserver.WithPeer(context.Background(), &net.UDPAddr{})
	return res, cfg.Handler().ServeDHCP(ctx, req, res)
}

func TestServeDHCP(t *testing.T) {
	cfg, _ := prepare(t)

	discover, err := dhcpv4.NewDiscovery(clientMAC)
	require.NoError(t, err)

	offer, err := serve(t, cfg, discover)
	require.NoError(t, err)
	assert.Equal(t, dhcpv4.MessageTypeOffer, offer.MessageType())
	assert.Equal(t, "192.168.0.180", offer.YourIPAddr.String())
	assert.Equal(t, 2*time.Hour, offer.IPAddressLeaseTime(0))
	assert.Equal(t, net.CIDRMask(24, 32), offer.SubnetMask())
	assert.Equal(t, 0, cfg.Store.Len())

	request, err := dhcpv4.NewRequestFromOffer(offer)
	require.NoError(t, err)

	ack, err := serve(t, cfg, request)
	require.NoError(t, err)
	assert.Equal(t, dhcpv4.MessageTypeAck, ack.MessageType())
	assert.Equal(t, "192.168.0.180", ack.YourIPAddr.String())
	assert.Equal(t, 1, cfg.Store.Len())
}

func TestServeDHCPSilence(t *testing.T) {
	cfg, _ := prepare(t)

	release, err := dhcpv4.New(dhcpv4.WithHwAddr(clientMAC), dhcpv4.WithMessageType(dhcpv4.MessageTypeRelease))
	require.NoError(t, err)

	_, err = serve(t, cfg, release)
	assert.True(t, errors.Is(err, dhcpserver.ErrNoResponse))

	// INFORM is not handled by the pool and reaches the end of the chain
	inform, err := dhcpv4.New(dhcpv4.WithHwAddr(clientMAC), dhcpv4.WithMessageType(dhcpv4.MessageTypeInform))
	require.NoError(t, err)

	_, err = serve(t, cfg, inform)
	assert.True(t, errors.Is(err, dhcpserver.ErrNoResponse))
}

func TestServeDHCPNext(t *testing.T) {
	pool, err := lease.ParsePool("192.168.0.180", 10)
	require.NoError(t, err)

	store := lease.NewStore(pool, nil)
	next := &test.Recorder{}
	p := &poolPlugin{
		next:    next,
		handler: policy.New(store, policy.Options{ServerID: net.IPv4(192, 168, 0, 76)}),
		shared:  lease.NewSharedStore(store),
	}

	discover, err := dhcpv4.NewDiscovery(clientMAC)
	require.NoError(t, err)
	res, err := dhcpv4.NewReplyFromRequest(discover)
	require.NoError(t, err)
	require.NoError(t, p.ServeDHCP(context.Background(), discover, res))
	assert.Equal(t, dhcpv4.MessageTypeOffer, res.MessageType())
	assert.Empty(t, next.Requests())

	inform, err := dhcpv4.New(dhcpv4.WithHwAddr(clientMAC), dhcpv4.WithMessageType(dhcpv4.MessageTypeInform))
	require.NoError(t, err)
	require.NoError(t, p.ServeDHCP(context.Background(), inform, res))
	require.Len(t, next.Requests(), 1)
	assert.Same(t, inform, next.Requests()[0])

	p.next = test.NoOpHandler
	assert.NoError(t, p.ServeDHCP(context.Background(), inform, res))
	assert.Equal(t, 0, store.Len())
}

func TestServeDHCPNak(t *testing.T) {
	cfg, _ := prepare(t)

	request, err := dhcpv4.New(
		dhcpv4.WithHwAddr(clientMAC),
		dhcpv4.WithMessageType(dhcpv4.MessageTypeRequest),
		dhcpv4.WithOption(dhcpv4.OptRequestedIPAddress(net.IPv4(10, 0, 0, 1))),
	)
	require.NoError(t, err)

	nak, err := serve(t, cfg, request)
	require.NoError(t, err)
	assert.Equal(t, dhcpv4.MessageTypeNak, nak.MessageType())
	assert.Equal(t, "Requested IP not available", nak.Message())
	assert.True(t, nak.YourIPAddr.IsUnspecified())
}

func TestServeDHCPEvents(t *testing.T) {
	sink := &mockSink{}
	cfg, clock := prepareWithSink(t, sink)

	sink.On("EmitLeaseEvent", events.EventLeaseCreated, "192.168.0.180", clock.Now()).Once()
	sink.On("EmitLeaseEvent", events.EventLeaseReleased, "192.168.0.180", clock.Now()).Once()

	request, err := dhcpv4.New(
		dhcpv4.WithHwAddr(clientMAC),
		dhcpv4.WithMessageType(dhcpv4.MessageTypeRequest),
		dhcpv4.WithOption(dhcpv4.OptRequestedIPAddress(net.IPv4(192, 168, 0, 180))),
	)
	require.NoError(t, err)

	ack, err := serve(t, cfg, request)
	require.NoError(t, err)
	assert.Equal(t, dhcpv4.MessageTypeAck, ack.MessageType())

	release, err := dhcpv4.New(dhcpv4.WithHwAddr(clientMAC), dhcpv4.WithMessageType(dhcpv4.MessageTypeRelease))
	require.NoError(t, err)

	_, err = serve(t, cfg, release)
	assert.True(t, errors.Is(err, dhcpserver.ErrNoResponse))
	assert.Equal(t, 0, cfg.Store.Len())

	sink.AssertExpectations(t)
}
