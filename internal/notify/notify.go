// Package notify forwards inventory domain events from the internal bus
// to an external MQTT broker. Delivery is best effort: the lifecycle
// transition has already committed by the time an event reaches this
// module, so broker failures are logged and counted, never propagated.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/depotlabs/depot/internal/config"
	"github.com/depotlabs/depot/internal/inventory"
	"github.com/depotlabs/depot/pkg/plugin"
)

var (
	// ErrNotConnected is returned when a publish is attempted before the
	// broker connection is up.
	ErrNotConnected = errors.New("notify: not connected to broker")

	// ErrPublishTimeout is returned when the broker does not acknowledge
	// a publish within the configured timeout.
	ErrPublishTimeout = errors.New("notify: publish timed out")
)

var publishesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "depot",
	Subsystem: "notify",
	Name:      "publishes_total",
	Help:      "Broker publish attempts by topic and outcome.",
}, []string{"topic", "outcome"})

// topics maps internal bus topics to broker topics.
var topics = map[string]string{
	inventory.TopicDeviceCreated:    "depot/inventory/created",
	inventory.TopicDeviceUpdated:    "depot/inventory/updated",
	inventory.TopicDeviceReserved:   "depot/inventory/reserved",
	inventory.TopicDeviceRetired:    "depot/inventory/retired",
	inventory.TopicDeviceTelemetry:  "depot/inventory/telemetry",
	inventory.TopicDeviceEvent:      "depot/inventory/events",
	inventory.TopicDeviceTransition: "depot/inventory/transitions",
}

var (
	_ plugin.Module          = (*Module)(nil)
	_ plugin.EventSubscriber = (*Module)(nil)
	_ plugin.HealthChecker   = (*Module)(nil)
)

// Module is the MQTT notifier.
type Module struct {
	logger *zap.Logger
	client mqtt.Client

	broker         string
	clientID       string
	username       string
	password       string
	qos            byte
	connectTimeout time.Duration
	publishTimeout time.Duration
}

func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.Info {
	return plugin.Info{
		Name:        "notify",
		Version:     "0.1.0",
		Description: "Forwards inventory events to an MQTT broker",
	}
}

func (m *Module) Init(deps plugin.Deps) error {
	m.logger = deps.Logger

	cfg := config.New(deps.Config)
	m.broker = cfg.GetString("broker")
	if m.broker == "" {
		return fmt.Errorf("notify: broker address is required")
	}
	m.clientID = cfg.GetString("client_id")
	if m.clientID == "" {
		m.clientID = "depot"
	}
	m.username = cfg.GetString("username")
	m.password = cfg.GetString("password")
	m.qos = byte(cfg.GetInt("qos"))
	m.connectTimeout = cfg.GetDuration("connect_timeout")
	if m.connectTimeout <= 0 {
		m.connectTimeout = 10 * time.Second
	}
	m.publishTimeout = cfg.GetDuration("publish_timeout")
	if m.publishTimeout <= 0 {
		m.publishTimeout = 5 * time.Second
	}

	return nil
}

// Subscriptions bridges the forwarded bus topics. Events arriving
// before Start connects are dropped with a warning.
func (m *Module) Subscriptions() []plugin.Subscription {
	subs := make([]plugin.Subscription, 0, len(topics))
	for internal := range topics {
		subs = append(subs, plugin.Subscription{Topic: internal, Handler: m.forward})
	}
	return subs
}

func (m *Module) Start(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(m.broker).
		SetClientID(m.clientID).
		SetConnectTimeout(m.connectTimeout).
		SetAutoReconnect(true).
		SetOnConnectHandler(func(mqtt.Client) {
			m.logger.Info("connected to broker", zap.String("broker", m.broker))
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			m.logger.Warn("broker connection lost", zap.Error(err))
		})
	if m.username != "" {
		opts.SetUsername(m.username)
		opts.SetPassword(m.password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(m.connectTimeout) {
		return fmt.Errorf("notify: connect to %s: timeout after %s", m.broker, m.connectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("notify: connect to %s: %w", m.broker, err)
	}

	m.client = client
	return nil
}

func (m *Module) Stop() error {
	if m.client != nil && m.client.IsConnected() {
		m.client.Disconnect(250)
	}
	return nil
}

func (m *Module) Health(ctx context.Context) plugin.HealthStatus {
	if m.client == nil || !m.client.IsConnected() {
		return plugin.HealthStatus{Healthy: false, Detail: "not connected to broker"}
	}
	return plugin.HealthStatus{Healthy: true}
}

// forward serializes one bus event and publishes it to the mapped
// broker topic.
func (m *Module) forward(ctx context.Context, event plugin.Event) {
	topic, ok := topics[event.Topic]
	if !ok {
		return
	}

	payload, err := encodeEvent(event)
	if err != nil {
		m.logger.Warn("event encode failed",
			zap.String("topic", event.Topic), zap.Error(err))
		return
	}

	if err := m.publish(topic, payload); err != nil {
		publishesTotal.WithLabelValues(topic, "error").Inc()
		m.logger.Warn("broker publish failed",
			zap.String("topic", topic), zap.Error(err))
		return
	}
	publishesTotal.WithLabelValues(topic, "ok").Inc()
}

func (m *Module) publish(topic string, payload []byte) error {
	if m.client == nil || !m.client.IsConnected() {
		return ErrNotConnected
	}

	token := m.client.Publish(topic, m.qos, false, payload)
	if !token.WaitTimeout(m.publishTimeout) {
		return ErrPublishTimeout
	}
	return token.Error()
}

// brokerMessage is the envelope published to the broker.
type brokerMessage struct {
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

func encodeEvent(event plugin.Event) ([]byte, error) {
	return json.Marshal(brokerMessage{
		Source:    event.Source,
		Timestamp: event.Timestamp,
		Payload:   event.Payload,
	})
}
