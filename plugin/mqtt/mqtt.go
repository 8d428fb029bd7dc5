package mqtt

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/caddyserver/caddy"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/nextdhcp/nextpool/core/events"
	"github.com/nextdhcp/nextpool/core/log"
	"github.com/nextdhcp/nextpool/core/matcher"
)

// publishTimeout bounds connecting, rendering and publishing a single message
const publishTimeout = 10 * time.Second

type (
	// msgFactory creates a topic or payload for a lease event
	msgFactory func(ctx context.Context, e *events.LeaseEvent) (string, error)

	mqttConnConfig struct {
		broker       []string
		user         string
		password     string
		clientID     string
		cleanSession bool
		qos          int

		l sync.Mutex
		c mqtt.Client
	}

	mqttConfig struct {
		*matcher.Matcher

		conn    *mqttConnConfig
		name    string // optional name for the mqtt config
		topic   msgFactory
		payload msgFactory
	}

	mqttPlugin struct {
		configs []*mqttConfig
		log     log.Logger
		wg      sync.WaitGroup
	}
)

// newClient creates the MQTT client for a connection
var newClient = mqtt.NewClient

// onLeaseEvent implements events.LeaseEventHook. Messages are published in
// the background so the serving goroutine is not blocked by the broker
func (m *mqttPlugin) onLeaseEvent(_ caddy.EventName, e *events.LeaseEvent) error {
	for _, cfg := range m.configs {
		m.wg.Add(1)
		go func(cfg *mqttConfig) {
			defer m.wg.Done()

			ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
			defer cancel()

			if err := m.publish(ctx, cfg, e); err != nil {
				m.log.Errorf("%s: %s", cfg.display(), err)
			}
		}(cfg)
	}

	return nil
}

func (m *mqttPlugin) publish(ctx context.Context, cfg *mqttConfig, e *events.LeaseEvent) error {
	match, err := cfg.Match(e)
	if err != nil {
		return fmt.Errorf("matching failed: %w", err)
	}

	if !match {
		return nil
	}

	cli, qos, err := m.getClient(cfg)
	if err != nil {
		return fmt.Errorf("failed to get MQTT connection: %w", err)
	}

	topic, err := cfg.topic(ctx, e)
	if err != nil {
		return fmt.Errorf("failed to get MQTT topic: %w", err)
	}

	payload, err := cfg.payload(ctx, e)
	if err != nil {
		return fmt.Errorf("failed to get MQTT payload: %w", err)
	}

	token := cli.Publish(topic, byte(qos), false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("timeout publishing to %s", topic)
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish MQTT message: %w", err)
	}

	m.log.Debugf("published %s for %s to topic %s", e.Name, e.Lease.IP(), topic)

	return nil
}

// wait blocks until all background publications are done
func (m *mqttPlugin) wait() {
	m.wg.Wait()
}

// close waits for pending messages and disconnects all clients
func (m *mqttPlugin) close() error {
	m.wait()

	for _, cfg := range m.configs {
		if cfg.conn == nil {
			continue
		}

		cfg.conn.l.Lock()
		if cfg.conn.c != nil {
			cfg.conn.c.Disconnect(250)
			cfg.conn.c = nil
		}
		cfg.conn.l.Unlock()
	}

	return nil
}

func (m *mqttPlugin) getClient(cfg *mqttConfig) (mqtt.Client, int, error) {
	// check if we should use a different configuration
	if cfg.name != "" && cfg.conn == nil {
		for _, c := range m.configs {
			if c.name == cfg.name && c.conn != nil {
				return m.getClient(c)
			}
		}
		return nil, 0, fmt.Errorf("MQTT configuration with name %q not found", cfg.name)
	}

	cfg.conn.l.Lock()
	defer cfg.conn.l.Unlock()

	if cfg.conn.c == nil {
		if err := cfg.conn.open(m.log); err != nil {
			return nil, 0, err
		}
	}

	return cfg.conn.c, cfg.conn.qos, nil
}

func (cfg *mqttConfig) display() string {
	if cfg.name != "" {
		return fmt.Sprintf("mqtt %q", cfg.name)
	}
	return "mqtt"
}

func (conn *mqttConnConfig) open(l log.Logger) error {
	opts := mqtt.NewClientOptions()

	for _, b := range conn.broker {
		opts.AddBroker(b)
	}

	if conn.user != "" {
		opts.SetUsername(conn.user)
	}

	if conn.password != "" {
		opts.SetPassword(conn.password)
	}

	if conn.cleanSession {
		opts.SetCleanSession(true)
	}

	if conn.clientID != "" {
		opts.SetClientID(conn.clientID)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(publishTimeout)

	cli := newClient(opts)

	var servers []string
	for _, s := range opts.Servers {
		servers = append(servers, s.String())
	}

	l.Debugf("connecting to MQTT brokers at %s", strings.Join(servers, ", "))
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	l.Infof("connected to MQTT brokers at %s", strings.Join(servers, ", "))

	conn.c = cli

	return nil
}
