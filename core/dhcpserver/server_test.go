package dhcpserver

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/discard"
	"github.com/insomniacslk/dhcp/dhcpv4"
	"github.com/nextdhcp/nextpool/core/lease"
	"github.com/nextdhcp/nextpool/core/socket"
	"github.com/nextdhcp/nextpool/plugin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	clientMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
	serverMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
)

type written struct {
	payload []byte
	addr    net.Addr
}

// packetConn feeds datagrams to the server and records what is written
type packetConn struct {
	in chan []byte

	l   sync.Mutex
	out []written
}

func newPacketConn() *packetConn {
	return &packetConn{in: make(chan []byte, 10)}
}

func (p *packetConn) ReadFrom(b []byte) (int, net.Addr, error) {
	payload, ok := <-p.in
	if !ok {
		return 0, nil, net.ErrClosed
	}

	return copy(b, payload), &socket.Addr{RawAddr: socket.RawAddr{MAC: clientMAC, IP: net.IPv4zero, Port: 68}}, nil
}

func (p *packetConn) WriteTo(b []byte, addr net.Addr) (int, error) {
	p.l.Lock()
	defer p.l.Unlock()
	p.out = append(p.out, written{append([]byte(nil), b...), addr})
	return len(b), nil
}

func (p *packetConn) written() []written {
	p.l.Lock()
	defer p.l.Unlock()
	return append([]written(nil), p.out...)
}

func (p *packetConn) Close() error                       { return nil }
func (p *packetConn) LocalAddr() net.Addr                { return &net.UDPAddr{} }
func (p *packetConn) SetDeadline(t time.Time) error      { return nil }
func (p *packetConn) SetReadDeadline(t time.Time) error  { return nil }
func (p *packetConn) SetWriteDeadline(t time.Time) error { return nil }

func testConfig(t *testing.T) *Config {
	ip, network, err := net.ParseCIDR("192.168.0.76/24")
	require.NoError(t, err)

	cfg := newConfig(ip.To4(), *network)
	cfg.Interface = net.Interface{Name: "eth0", HardwareAddr: serverMAC}
	cfg.Logger = &log.Logger{Handler: discard.New(), Level: log.DebugLevel}
	cfg.Clock = lease.NewManualClock(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))

	pool, err := lease.ParsePool("192.168.0.180", 100)
	require.NoError(t, err)
	cfg.Pool = &pool

	return cfg
}

func discover(t *testing.T) *dhcpv4.DHCPv4 {
	msg, err := dhcpv4.NewDiscovery(clientMAC)
	require.NoError(t, err)
	return msg
}

func TestBuildMiddlewareChain(t *testing.T) {
	cfg := testConfig(t)
	var order []string

	for _, name := range []string{"first", "second"} {
		name := name
		cfg.AddPlugin(func(next plugin.Handler) plugin.Handler {
			return plugin.HandlerFunc(func(ctx context.Context, req, res *dhcpv4.DHCPv4) error {
				order = append(order, name)
				return next.ServeDHCP(ctx, req, res)
			})
		})
	}

	require.NoError(t, buildMiddlewareChain(cfg))

	ctx := WithPeer(context.Background(), &net.UDPAddr{})
	err := cfg.chain.ServeDHCP(ctx, discover(t), discover(t))
	assert.True(t, errors.Is(err, ErrNoResponse))
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestPrepareStore(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, prepareStore(cfg))
	assert.NotNil(t, cfg.Store)
	assert.NotNil(t, cfg.Shared)
	assert.Equal(t, *cfg.Pool, cfg.Store.Pool())

	cfg = testConfig(t)
	cfg.Pool = nil
	assert.Error(t, prepareStore(cfg))

	// an existing store is kept
	cfg = testConfig(t)
	store := lease.NewStore(*cfg.Pool, cfg.Clock)
	cfg.Store = store
	require.NoError(t, prepareStore(cfg))
	assert.Same(t, store, cfg.Store)
}

func TestPolicyOptions(t *testing.T) {
	cfg := testConfig(t)
	cfg.Router = []net.IP{net.IPv4(192, 168, 0, 254)}

	opts := cfg.PolicyOptions()
	assert.Equal(t, cfg.IP, opts.ServerID)
	assert.Equal(t, 2*time.Hour, opts.LeaseTime)
	assert.Equal(t, net.CIDRMask(24, 32), opts.Netmask)
	assert.Equal(t, cfg.Router, opts.Routers)

	cfg.Netmask = net.CIDRMask(16, 32)
	assert.Equal(t, net.CIDRMask(16, 32), cfg.PolicyOptions().Netmask)
}

func TestServePacket(t *testing.T) {
	cfg := testConfig(t)

	var seen []dhcpv4.MessageType
	cfg.AddPlugin(func(next plugin.Handler) plugin.Handler {
		return plugin.HandlerFunc(func(ctx context.Context, req, res *dhcpv4.DHCPv4) error {
			seen = append(seen, req.MessageType())

			switch req.MessageType() {
			case dhcpv4.MessageTypeDiscover:
				res.UpdateOption(dhcpv4.OptMessageType(dhcpv4.MessageTypeOffer))
				res.YourIPAddr = net.IPv4(192, 168, 0, 180).To4()
				return nil
			case dhcpv4.MessageTypeInform:
				panic("boom")
			}

			return next.ServeDHCP(ctx, req, res)
		})
	})
	require.NoError(t, buildMiddlewareChain(cfg))

	srv, err := NewServer(cfg)
	require.NoError(t, err)

	conn := newPacketConn()
	conn.in <- []byte{0x01, 0x02}

	inform, err := dhcpv4.New(dhcpv4.WithHwAddr(clientMAC), dhcpv4.WithMessageType(dhcpv4.MessageTypeInform))
	require.NoError(t, err)
	conn.in <- inform.ToBytes()

	release, err := dhcpv4.New(dhcpv4.WithHwAddr(clientMAC), dhcpv4.WithMessageType(dhcpv4.MessageTypeRelease))
	require.NoError(t, err)
	conn.in <- release.ToBytes()

	d := discover(t)
	d.SetUnicast()
	conn.in <- d.ToBytes()
	close(conn.in)

	assert.ErrorIs(t, srv.ServePacket(conn), net.ErrClosed)

	// the malformed message never reaches the chain and the panic is recovered
	assert.Equal(t, []dhcpv4.MessageType{
		dhcpv4.MessageTypeInform,
		dhcpv4.MessageTypeRelease,
		dhcpv4.MessageTypeDiscover,
	}, seen)

	out := conn.written()
	require.Len(t, out, 1)

	offer, err := dhcpv4.FromBytes(out[0].payload)
	require.NoError(t, err)
	assert.Equal(t, dhcpv4.MessageTypeOffer, offer.MessageType())
	assert.Equal(t, d.TransactionID, offer.TransactionID)
	assert.Equal(t, "192.168.0.76", offer.ServerIdentifier().String())

	addr, ok := out[0].addr.(*socket.Addr)
	require.True(t, ok)
	assert.Equal(t, "192.168.0.180", addr.IP.String())
	assert.Equal(t, serverMAC, addr.Local.MAC)
	assert.Equal(t, "192.168.0.76", addr.Local.IP.String())
}

func TestReplyAddr(t *testing.T) {
	cfg := testConfig(t)

	// newPair returns a request built from mods and the reply the server
	// would start with
	newPair := func(typ dhcpv4.MessageType, mods ...dhcpv4.Modifier) (*dhcpv4.DHCPv4, *dhcpv4.DHCPv4) {
		mods = append([]dhcpv4.Modifier{
			dhcpv4.WithMessageType(dhcpv4.MessageTypeRequest),
			dhcpv4.WithHwAddr(clientMAC),
		}, mods...)
		req, err := dhcpv4.New(mods...)
		require.NoError(t, err)

		resp, err := dhcpv4.NewReplyFromRequest(req, dhcpv4.WithMessageType(typ))
		require.NoError(t, err)
		resp.YourIPAddr = net.IPv4(192, 168, 0, 190).To4()
		return req, resp
	}

	rawPeer := func() *socket.Addr {
		return &socket.Addr{RawAddr: socket.RawAddr{MAC: clientMAC, IP: net.IPv4zero, Port: 68}}
	}

	t.Run("nak", func(t *testing.T) {
		req, resp := newPair(dhcpv4.MessageTypeNak)
		addr := replyAddr(&net.UDPAddr{}, cfg, req, resp)
		assert.Equal(t, "255.255.255.255:68", addr.String())

		raw, ok := replyAddr(rawPeer(), cfg, req, resp).(*socket.Addr)
		require.True(t, ok)
		assert.Equal(t, broadcastMAC, raw.MAC)
		assert.True(t, raw.IP.Equal(net.IPv4bcast))
		assert.Equal(t, serverMAC, raw.Local.MAC)
	})

	t.Run("broadcast flag", func(t *testing.T) {
		req, resp := newPair(dhcpv4.MessageTypeAck, dhcpv4.WithBroadcast(true))
		addr := replyAddr(&net.UDPAddr{}, cfg, req, resp)
		assert.Equal(t, "255.255.255.255:68", addr.String())
	})

	t.Run("relay", func(t *testing.T) {
		req, resp := newPair(dhcpv4.MessageTypeAck, dhcpv4.WithGatewayIP(net.IPv4(10, 0, 0, 1)))
		addr := replyAddr(rawPeer(), cfg, req, resp)
		assert.Equal(t, "10.0.0.1:67", addr.String())
	})

	t.Run("renewing client", func(t *testing.T) {
		req, resp := newPair(dhcpv4.MessageTypeAck, dhcpv4.WithClientIP(net.IPv4(192, 168, 0, 190)))
		require.True(t, resp.ClientIPAddr.IsUnspecified())

		addr, ok := replyAddr(rawPeer(), cfg, req, resp).(*net.UDPAddr)
		require.True(t, ok)
		assert.Equal(t, "192.168.0.190:68", addr.String())
	})

	t.Run("directed unicast", func(t *testing.T) {
		req, resp := newPair(dhcpv4.MessageTypeAck)
		addr, ok := replyAddr(rawPeer(), cfg, req, resp).(*socket.Addr)
		require.True(t, ok)
		assert.Equal(t, "192.168.0.190", addr.IP.String())
		assert.Equal(t, clientMAC, addr.MAC)
		assert.Equal(t, "192.168.0.76", addr.Local.IP.String())
	})
}

func TestRequestTimeStamp(t *testing.T) {
	ts := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	ctx := WithRequestTimeStamp(context.Background(), ts)
	assert.Equal(t, ts, GetRequestTimeStamp(ctx))

	assert.WithinDuration(t, time.Now(), GetRequestTimeStamp(context.Background()), time.Second)
	assert.Nil(t, GetPeer(context.Background()))
}

func TestStartupInfo(t *testing.T) {
	cfg := testConfig(t)
	info := getStartupInfo([]*Config{cfg})
	assert.Contains(t, info, "192.168.0.0/24 on 192.168.0.76 (eth0)")
	assert.Contains(t, info, "pool 192.168.0.180-192.168.1.23")
	assert.Empty(t, getStartupInfo(nil))
}
