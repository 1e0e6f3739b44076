// Package emitter fans occupancy events out to external consumers. The MQTT
// publisher is the building-automation face of the service: every count
// change goes out as a JSON event, and the current count is kept retained so
// late subscribers see the room state immediately.
package emitter

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/banshee-data/presence.report/internal/monitoring"
	"github.com/banshee-data/presence.report/internal/vision"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second

	// Occupancy events are small and rare; at-least-once delivery to the
	// broker costs nothing and spares consumers a missed transition.
	qosAtLeastOnce = 1
)

// Config describes the broker connection. An empty Broker means MQTT is
// disabled; callers skip constructing the publisher entirely.
type Config struct {
	Broker      string // host:port
	Username    string
	Password    string
	ClientID    string // defaults to "presence-report"
	TopicPrefix string // defaults to "presence"
}

// mqttClient is the slice of the paho client the publisher uses. Tests swap
// in a fake; production code gets the real client from newMQTTClient.
type mqttClient interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// newMQTTClient builds the real paho client. Package variable so tests can
// run the connect path without a live broker.
var newMQTTClient = func(opts *mqtt.ClientOptions) mqttClient {
	return mqtt.NewClient(opts)
}

// MQTTPublisher publishes count events to an MQTT broker. It satisfies the
// worker's sink contract: a failed publish returns an error for the worker to
// count and log, and is never retried here. The paho client reconnects on its
// own; while disconnected, writes fail fast instead of queueing.
type MQTTPublisher struct {
	cfg    Config
	client mqttClient

	mu        sync.RWMutex
	connected bool
	lastCount int
	haveCount bool
	published uint64
	errors    uint64
}

var _ vision.EventSink = (*MQTTPublisher)(nil)

// Stats is a snapshot of publisher counters for the stats endpoint.
type Stats struct {
	Connected bool   `json:"connected"`
	Published uint64 `json:"published"`
	Errors    uint64 `json:"errors"`
}

func NewMQTTPublisher(cfg Config) *MQTTPublisher {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "presence"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "presence-report"
	}
	return &MQTTPublisher{cfg: cfg}
}

// Connect establishes the broker session. The client keeps retrying in the
// background after the initial connect, so a transient broker outage during
// operation does not need caller involvement.
func (p *MQTTPublisher) Connect() error {
	if p.cfg.Broker == "" {
		return fmt.Errorf("mqtt broker address is empty")
	}

	client := newMQTTClient(p.clientOptions())
	p.mu.Lock()
	p.client = client
	p.mu.Unlock()

	monitoring.Logf("Connecting to MQTT broker %s as %s", p.cfg.Broker, p.cfg.ClientID)

	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("mqtt connect to %s timed out", p.cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect to %s: %w", p.cfg.Broker, err)
	}

	p.mu.Lock()
	p.connected = true
	p.mu.Unlock()
	return nil
}

func (p *MQTTPublisher) clientOptions() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker("tcp://" + p.cfg.Broker)
	opts.SetClientID(p.cfg.ClientID)
	if p.cfg.Username != "" {
		opts.SetUsername(p.cfg.Username)
		opts.SetPassword(p.cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetOnConnectHandler(p.onConnect)
	opts.SetConnectionLostHandler(p.onConnectionLost)
	return opts
}

func (p *MQTTPublisher) onConnect(mqtt.Client) {
	p.mu.Lock()
	p.connected = true
	count, have := p.lastCount, p.haveCount
	p.mu.Unlock()

	monitoring.Logf("MQTT connected to %s", p.cfg.Broker)

	// The retained count on the broker may predate a disconnect during which
	// occupancy changed. Refresh it from our state.
	if have {
		if err := p.publishRetainedCount(count); err != nil {
			monitoring.Logf("MQTT retained count refresh failed: %v", err)
		}
	}
}

func (p *MQTTPublisher) onConnectionLost(_ mqtt.Client, err error) {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	monitoring.Logf("MQTT connection lost: %v (auto-reconnect active)", err)
}

// WriteCountEvent publishes the event to <prefix>/events and refreshes the
// retained count on <prefix>/count.
func (p *MQTTPublisher) WriteCountEvent(ev vision.CountEvent) error {
	if !p.isConnected() {
		p.countError()
		return fmt.Errorf("mqtt not connected")
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		p.countError()
		return fmt.Errorf("marshal count event: %w", err)
	}

	if err := p.publish(p.eventsTopic(), payload, false); err != nil {
		p.countError()
		return err
	}

	p.mu.Lock()
	p.lastCount = ev.Count
	p.haveCount = true
	p.published++
	p.mu.Unlock()

	if err := p.publishRetainedCount(ev.Count); err != nil {
		p.countError()
		return err
	}
	return nil
}

func (p *MQTTPublisher) publish(topic string, payload []byte, retained bool) error {
	p.mu.RLock()
	client := p.client
	p.mu.RUnlock()
	if client == nil {
		return fmt.Errorf("mqtt client not initialized")
	}

	token := client.Publish(topic, qosAtLeastOnce, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("mqtt publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish to %s: %w", topic, err)
	}
	return nil
}

func (p *MQTTPublisher) publishRetainedCount(count int) error {
	return p.publish(p.countTopic(), []byte(strconv.Itoa(count)), true)
}

func (p *MQTTPublisher) eventsTopic() string { return p.cfg.TopicPrefix + "/events" }
func (p *MQTTPublisher) countTopic() string  { return p.cfg.TopicPrefix + "/count" }

func (p *MQTTPublisher) isConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

func (p *MQTTPublisher) countError() {
	p.mu.Lock()
	p.errors++
	p.mu.Unlock()
}

// Stats returns publisher counters.
func (p *MQTTPublisher) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Stats{Connected: p.connected, Published: p.published, Errors: p.errors}
}

// Close disconnects from the broker. Safe when never connected.
func (p *MQTTPublisher) Close() {
	p.mu.Lock()
	client := p.client
	p.connected = false
	p.mu.Unlock()

	if client != nil {
		client.Disconnect(250)
		monitoring.Logf("MQTT disconnected")
	}
}
