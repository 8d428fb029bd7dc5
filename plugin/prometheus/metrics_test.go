package prometheus

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/insomniacslk/dhcp/dhcpv4"
	"github.com/nextdhcp/nextpool/core/dhcpserver"
	"github.com/nextdhcp/nextpool/core/events"
	"github.com/nextdhcp/nextpool/core/lease"
	"github.com/nextdhcp/nextpool/plugin/test"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2020, 1, 1, 12, 0, 0, 0, time.UTC)

func newConfig(t *testing.T) *dhcpserver.Config {
	pool, err := lease.ParsePool("192.168.0.180", 10)
	require.NoError(t, err)

	store := lease.NewStore(pool, lease.NewManualClock(epoch))
	return &dhcpserver.Config{
		Pool:   &pool,
		Store:  store,
		Shared: lease.NewSharedStore(store),
	}
}

func gauge(t *testing.T, families []*dto.MetricFamily, name string) float64 {
	for _, f := range families {
		if f.GetName() == name {
			require.Len(t, f.GetMetric(), 1)
			return f.GetMetric()[0].GetGauge().GetValue()
		}
	}

	t.Fatalf("metric %s not found", name)
	return 0
}

func TestParse(t *testing.T) {
	cases := []struct {
		input   string
		addr    string
		path    string
		labels  int
		buckets []float64
		err     bool
	}{
		{"prometheus", defaultAddr, defaultPath, 0, nil, false},
		{"prometheus 0.0.0.0:9999", "0.0.0.0:9999", defaultPath, 0, nil, false},
		{"prometheus {\n address :9000\n path /m\n}", ":9000", "/m", 0, nil, false},
		{"prometheus {\n label subnet lan\n label site home\n}", defaultAddr, defaultPath, 2, nil, false},
		{"prometheus {\n latency_buckets 0.1 1\n}", defaultAddr, defaultPath, 0, []float64{0.1, 1}, false},
		{"prometheus {\n latency_buckets a\n}", "", "", 0, nil, true},
		{"prometheus {\n latency_buckets\n}", "", "", 0, nil, true},
		{"prometheus {\n label subnet\n}", "", "", 0, nil, true},
		{"prometheus {\n unknown\n}", "", "", 0, nil, true},
		{"prometheus a b", "", "", 0, nil, true},
		{"prometheus\nprometheus", "", "", 0, nil, true},
	}

	for _, c := range cases {
		m, err := parse(test.CreateTestBed(t, c.input))
		if c.err {
			assert.Error(t, err, c.input)
			continue
		}

		if assert.NoError(t, err, c.input) {
			assert.Equal(t, c.addr, m.addr, c.input)
			assert.Equal(t, c.path, m.path, c.input)
			assert.Len(t, m.extraLabels, c.labels, c.input)
			assert.Equal(t, c.buckets, m.latencyBuckets, c.input)
		}
	}
}

func TestServeDHCP(t *testing.T) {
	m := NewMetrics("", "")
	m.define(newConfig(t))

	discover, err := dhcpv4.NewDiscovery(net.HardwareAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0x01})
	require.NoError(t, err)

	serve := func(next test.HandlerFunc) error {
		res, err := dhcpv4.NewReplyFromRequest(discover)
		require.NoError(t, err)
		res.UpdateOption(dhcpv4.OptMessageType(dhcpv4.MessageTypeNone))

		p := &Plugin{Next: next, Metrics: m}
		ctx := dhcpserver.WithRequestTimeStamp(context.Background(), time.Now())
		return p.ServeDHCP(ctx, discover, res)
	}

	assert.NoError(t, serve(test.Reply(dhcpv4.MessageTypeOffer)))
	assert.NoError(t, serve(test.Reply(dhcpv4.MessageTypeOffer)))
	assert.Equal(t, dhcpserver.ErrNoResponse, serve(func(context.Context, *dhcpv4.DHCPv4, *dhcpv4.DHCPv4) error {
		return dhcpserver.ErrNoResponse
	}))

	assert.Equal(t, float64(3), testutil.ToFloat64(m.requestCount.WithLabelValues("DISCOVER")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.requestDuration))
}

func TestStoreCollector(t *testing.T) {
	cfg := newConfig(t)
	m := NewMetrics("", "")
	m.define(cfg)

	owner := net.HardwareAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0x01}
	other := net.HardwareAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0x02}
	cfg.Store.Put(cfg.Pool.Addr(0), owner, epoch.Add(time.Hour))
	cfg.Store.Put(cfg.Pool.Addr(1), other, epoch.Add(-time.Hour))

	families, err := m.registry.Gather()
	require.NoError(t, err)

	assert.Equal(t, float64(10), gauge(t, families, "dhcp_pool_size"))
	assert.Equal(t, float64(1), gauge(t, families, "dhcp_leases_active"))
	assert.Equal(t, float64(2), gauge(t, families, "dhcp_leases_stored"))
}

func TestStoreCollectorBusy(t *testing.T) {
	cfg := newConfig(t)
	m := NewMetrics("", "")
	m.define(cfg)

	locked := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = cfg.Shared.Do(context.Background(), func(*lease.Store) {
			close(locked)
			<-done
		})
	}()
	<-locked
	defer close(done)

	families, err := m.registry.Gather()
	require.NoError(t, err)

	// only the pool size is reported while the store is locked
	assert.Equal(t, float64(10), gauge(t, families, "dhcp_pool_size"))
	for _, f := range families {
		assert.NotEqual(t, "dhcp_leases_active", f.GetName())
	}
}

func TestCountLeaseEvent(t *testing.T) {
	m := NewMetrics("", "")
	m.extraLabels = append(m.extraLabels, extraLabel{name: "subnet", value: "lan"})
	m.define(newConfig(t))

	e := events.NewLeaseEvent(events.EventLeaseCreated, lease.Lease{}, epoch)
	assert.NoError(t, m.countLeaseEvent(events.EventLeaseCreated, e))
	assert.NoError(t, m.countLeaseEvent(events.EventLeaseCreated, e))
	assert.NoError(t, m.countLeaseEvent(events.EventLeaseReleased, e))

	assert.Equal(t, float64(2), testutil.ToFloat64(m.leaseEvents.WithLabelValues("lease-created", "lan")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.leaseEvents.WithLabelValues("lease-released", "lan")))
}

func TestStartStop(t *testing.T) {
	m := NewMetrics("", "127.0.0.1:0")
	m.define(newConfig(t))

	require.NoError(t, m.start())
	assert.NotNil(t, m.ln)
	assert.NoError(t, m.stop())
}
