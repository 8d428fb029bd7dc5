package prometheus

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/apex/log"
	"github.com/caddyserver/caddy"
	"github.com/nextdhcp/nextpool/core/dhcpserver"
	"github.com/nextdhcp/nextpool/core/lease"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultPath = "/metrics"
	defaultAddr = "localhost:9180"

	// collectTimeout bounds how long a scrape waits for the lease store
	collectTimeout = time.Second
)

// Metrics represents prometheus metrics
type Metrics struct {
	addr           string // where to we listen
	path           string
	extraLabels    []extraLabel
	latencyBuckets []float64

	registry        *prometheus.Registry
	requestCount    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	leaseEvents     *prometheus.CounterVec

	srv *http.Server
	ln  net.Listener
}

type extraLabel struct {
	name  string
	value string
}

// NewMetrics create a new Metrics
func NewMetrics(path, addr string) *Metrics {
	p := path
	if path == "" {
		p = defaultPath
	}
	a := addr
	if addr == "" {
		a = defaultAddr
	}
	return &Metrics{
		path:        p,
		addr:        a,
		extraLabels: []extraLabel{},
	}
}

func (m *Metrics) extraLabelNames() []string {
	names := make([]string, 0, len(m.extraLabels))

	for _, label := range m.extraLabels {
		names = append(names, label.name)
	}

	return names
}

func (m *Metrics) extraLabelValues() []string {
	values := make([]string, 0, len(m.extraLabels))

	for _, label := range m.extraLabels {
		values = append(values, label.value)
	}

	return values
}

func (m *Metrics) define(cfg *dhcpserver.Config) {
	if m.latencyBuckets == nil {
		m.latencyBuckets = append(prometheus.DefBuckets, 15, 20, 30, 60)
	}

	extraLabels := m.extraLabelNames()

	m.registry = prometheus.NewRegistry()

	m.requestCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dhcp_request_count_total",
		Help: "Counter of DHCP requests made.",
	}, append([]string{"request_type"}, extraLabels...))

	m.requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dhcp_request_duration_seconds",
		Help:    "Histogram of the time (in seconds) each request took.",
		Buckets: m.latencyBuckets,
	}, append([]string{"request_type", "response_type"}, extraLabels...))

	m.leaseEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dhcp_lease_events_total",
		Help: "Counter of lease events by type.",
	}, append([]string{"event"}, extraLabels...))

	m.registry.MustRegister(
		m.requestCount,
		m.requestDuration,
		m.leaseEvents,
		newStoreCollector(cfg, extraLabels, m.extraLabelValues()),
	)
}

// start starts the HTTP server exposing the metrics
func (m *Metrics) start() error {
	mux := http.NewServeMux()
	mux.Handle(m.path, promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	ln, err := net.Listen("tcp", m.addr)
	if err != nil {
		return err
	}

	m.ln = ln
	m.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := m.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("prometheus: serving metrics: %s", err)
		}
	}()

	return nil
}

func (m *Metrics) stop() error {
	if m.srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return m.srv.Shutdown(ctx)
}

// storeCollector reports the state of the lease store of a subnet
type storeCollector struct {
	cfg         *dhcpserver.Config
	labelValues []string

	poolSize     *prometheus.Desc
	leasesActive *prometheus.Desc
	leasesStored *prometheus.Desc
}

func newStoreCollector(cfg *dhcpserver.Config, labels, values []string) *storeCollector {
	return &storeCollector{
		cfg:         cfg,
		labelValues: values,
		poolSize: prometheus.NewDesc("dhcp_pool_size",
			"Number of addresses in the pool.", labels, nil),
		leasesActive: prometheus.NewDesc("dhcp_leases_active",
			"Number of unexpired leases.", labels, nil),
		leasesStored: prometheus.NewDesc("dhcp_leases_stored",
			"Number of leases kept in the store, including expired ones.", labels, nil),
	}
}

func (c *storeCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.poolSize
	ch <- c.leasesActive
	ch <- c.leasesStored
}

func (c *storeCollector) Collect(ch chan<- prometheus.Metric) {
	shared := c.cfg.Shared
	if shared == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), collectTimeout)
	defer cancel()

	var active, stored int
	err := shared.Do(ctx, func(s *lease.Store) {
		active = s.Active()
		stored = s.Len()
	})

	ch <- prometheus.MustNewConstMetric(c.poolSize, prometheus.GaugeValue, float64(shared.Pool().Count), c.labelValues...)

	if err != nil {
		log.Warnf("prometheus: lease store busy: %s", err)
		return
	}

	ch <- prometheus.MustNewConstMetric(c.leasesActive, prometheus.GaugeValue, float64(active), c.labelValues...)
	ch <- prometheus.MustNewConstMetric(c.leasesStored, prometheus.GaugeValue, float64(stored), c.labelValues...)
}

var _ prometheus.Collector = &storeCollector{}

// register hooks the metrics server into the caddy life cycle
func (m *Metrics) register(c *caddy.Controller) {
	c.OnStartup(m.start)
	c.OnShutdown(m.stop)
}
