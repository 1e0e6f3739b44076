package emitter

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/banshee-data/presence.report/internal/vision"
)

type fakeToken struct {
	err     error
	timeout bool
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timeout }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type publishCall struct {
	topic    string
	qos      byte
	retained bool
	payload  string
}

type fakeClient struct {
	mu           sync.Mutex
	calls        []publishCall
	connectErr   error
	publishErr   error
	timeout      bool
	disconnected bool
}

func (c *fakeClient) Connect() mqtt.Token {
	return &fakeToken{err: c.connectErr}
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, _ := payload.([]byte)
	c.calls = append(c.calls, publishCall{topic: topic, qos: qos, retained: retained, payload: string(b)})
	return &fakeToken{err: c.publishErr, timeout: c.timeout}
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
}

func (c *fakeClient) publishes() []publishCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]publishCall(nil), c.calls...)
}

func newConnectedPublisher(c *fakeClient, cfg Config) *MQTTPublisher {
	if cfg.Broker == "" {
		cfg.Broker = "127.0.0.1:1883"
	}
	p := NewMQTTPublisher(cfg)
	p.client = c
	p.connected = true
	return p
}

func TestWriteCountEventPublishesEventAndRetainedCount(t *testing.T) {
	fake := &fakeClient{}
	p := newConnectedPublisher(fake, Config{})

	ts := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	if err := p.WriteCountEvent(vision.CountEvent{Timestamp: ts, Count: 3}); err != nil {
		t.Fatalf("WriteCountEvent: %v", err)
	}

	calls := fake.publishes()
	if len(calls) != 2 {
		t.Fatalf("expected 2 publishes, got %d: %+v", len(calls), calls)
	}

	ev := calls[0]
	if ev.topic != "presence/events" {
		t.Errorf("event topic = %q, want presence/events", ev.topic)
	}
	if ev.retained {
		t.Error("event message should not be retained")
	}
	if ev.qos != 1 {
		t.Errorf("event qos = %d, want 1", ev.qos)
	}
	var decoded vision.CountEvent
	if err := json.Unmarshal([]byte(ev.payload), &decoded); err != nil {
		t.Fatalf("event payload is not valid JSON: %v", err)
	}
	if decoded.Count != 3 || !decoded.Timestamp.Equal(ts) {
		t.Errorf("decoded event = %+v, want count 3 at %v", decoded, ts)
	}

	count := calls[1]
	if count.topic != "presence/count" {
		t.Errorf("count topic = %q, want presence/count", count.topic)
	}
	if !count.retained {
		t.Error("count message should be retained")
	}
	if count.payload != "3" {
		t.Errorf("count payload = %q, want 3", count.payload)
	}

	stats := p.Stats()
	if stats.Published != 1 || stats.Errors != 0 || !stats.Connected {
		t.Errorf("stats = %+v, want 1 published, 0 errors, connected", stats)
	}
}

func TestWriteCountEventTopicPrefix(t *testing.T) {
	fake := &fakeClient{}
	p := newConnectedPublisher(fake, Config{TopicPrefix: "building/floor2"})

	if err := p.WriteCountEvent(vision.CountEvent{Timestamp: time.Now(), Count: 1}); err != nil {
		t.Fatalf("WriteCountEvent: %v", err)
	}

	calls := fake.publishes()
	if calls[0].topic != "building/floor2/events" {
		t.Errorf("event topic = %q", calls[0].topic)
	}
	if calls[1].topic != "building/floor2/count" {
		t.Errorf("count topic = %q", calls[1].topic)
	}
}

func TestWriteCountEventNotConnected(t *testing.T) {
	fake := &fakeClient{}
	p := newConnectedPublisher(fake, Config{})
	p.connected = false

	err := p.WriteCountEvent(vision.CountEvent{Timestamp: time.Now(), Count: 1})
	if err == nil {
		t.Fatal("expected error while disconnected")
	}
	if got := fake.publishes(); len(got) != 0 {
		t.Errorf("expected no publishes while disconnected, got %+v", got)
	}
	if stats := p.Stats(); stats.Errors != 1 {
		t.Errorf("errors = %d, want 1", stats.Errors)
	}
}

func TestWriteCountEventPublishError(t *testing.T) {
	brokenPipe := errors.New("broken pipe")
	fake := &fakeClient{publishErr: brokenPipe}
	p := newConnectedPublisher(fake, Config{})

	err := p.WriteCountEvent(vision.CountEvent{Timestamp: time.Now(), Count: 2})
	if !errors.Is(err, brokenPipe) {
		t.Fatalf("expected wrapped publish error, got %v", err)
	}
	if stats := p.Stats(); stats.Errors != 1 {
		t.Errorf("errors = %d, want 1", stats.Errors)
	}
}

func TestWriteCountEventPublishTimeout(t *testing.T) {
	fake := &fakeClient{timeout: true}
	p := newConnectedPublisher(fake, Config{})

	err := p.WriteCountEvent(vision.CountEvent{Timestamp: time.Now(), Count: 2})
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestReconnectRefreshesRetainedCount(t *testing.T) {
	fake := &fakeClient{}
	p := newConnectedPublisher(fake, Config{})

	if err := p.WriteCountEvent(vision.CountEvent{Timestamp: time.Now(), Count: 4}); err != nil {
		t.Fatalf("WriteCountEvent: %v", err)
	}

	p.onConnectionLost(nil, errors.New("connection reset"))
	if p.isConnected() {
		t.Fatal("expected disconnected after connection lost")
	}

	p.onConnect(nil)
	if !p.isConnected() {
		t.Fatal("expected connected after reconnect")
	}

	calls := fake.publishes()
	last := calls[len(calls)-1]
	if last.topic != "presence/count" || !last.retained || last.payload != "4" {
		t.Errorf("expected retained count refresh on reconnect, got %+v", last)
	}
}

func TestReconnectWithoutObservedCountPublishesNothing(t *testing.T) {
	fake := &fakeClient{}
	p := newConnectedPublisher(fake, Config{})

	p.onConnect(nil)

	if got := fake.publishes(); len(got) != 0 {
		t.Errorf("expected no publishes before first event, got %+v", got)
	}
}

func TestConnect(t *testing.T) {
	orig := newMQTTClient
	defer func() { newMQTTClient = orig }()

	fake := &fakeClient{}
	var gotOpts *mqtt.ClientOptions
	newMQTTClient = func(opts *mqtt.ClientOptions) mqttClient {
		gotOpts = opts
		return fake
	}

	p := NewMQTTPublisher(Config{Broker: "broker.local:1883"})
	if err := p.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !p.isConnected() {
		t.Error("expected connected after Connect")
	}
	if gotOpts == nil {
		t.Fatal("client options were not built")
	}
	if got := gotOpts.Servers[0].String(); got != "tcp://broker.local:1883" {
		t.Errorf("broker URL = %q", got)
	}
}

func TestConnectError(t *testing.T) {
	orig := newMQTTClient
	defer func() { newMQTTClient = orig }()

	refused := errors.New("connection refused")
	newMQTTClient = func(*mqtt.ClientOptions) mqttClient {
		return &fakeClient{connectErr: refused}
	}

	p := NewMQTTPublisher(Config{Broker: "broker.local:1883"})
	if err := p.Connect(); !errors.Is(err, refused) {
		t.Fatalf("expected wrapped connect error, got %v", err)
	}
}

func TestConnectEmptyBroker(t *testing.T) {
	p := NewMQTTPublisher(Config{})
	if err := p.Connect(); err == nil {
		t.Fatal("expected error for empty broker address")
	}
}

func TestClientOptions(t *testing.T) {
	p := NewMQTTPublisher(Config{
		Broker:   "broker.local:1883",
		Username: "sensor",
		Password: "hunter2",
		ClientID: "lobby-cam",
	})
	opts := p.clientOptions()

	if got := opts.Servers[0].String(); got != "tcp://broker.local:1883" {
		t.Errorf("broker URL = %q", got)
	}
	if opts.ClientID != "lobby-cam" {
		t.Errorf("client id = %q", opts.ClientID)
	}
	if opts.Username != "sensor" || opts.Password != "hunter2" {
		t.Error("credentials not applied")
	}
	if !opts.AutoReconnect || !opts.ConnectRetry {
		t.Error("expected auto-reconnect and connect-retry enabled")
	}
	if opts.ConnectRetryInterval != 2*time.Second {
		t.Errorf("connect retry interval = %v", opts.ConnectRetryInterval)
	}
	if opts.MaxReconnectInterval != 30*time.Second {
		t.Errorf("max reconnect interval = %v", opts.MaxReconnectInterval)
	}
	if opts.OnConnect == nil || opts.OnConnectionLost == nil {
		t.Error("connection handlers not installed")
	}
}

func TestDefaults(t *testing.T) {
	p := NewMQTTPublisher(Config{Broker: "127.0.0.1:1883"})
	if p.cfg.TopicPrefix != "presence" {
		t.Errorf("default topic prefix = %q", p.cfg.TopicPrefix)
	}
	if p.cfg.ClientID != "presence-report" {
		t.Errorf("default client id = %q", p.cfg.ClientID)
	}
}

func TestCloseDisconnects(t *testing.T) {
	fake := &fakeClient{}
	p := newConnectedPublisher(fake, Config{})

	p.Close()

	fake.mu.Lock()
	disconnected := fake.disconnected
	fake.mu.Unlock()
	if !disconnected {
		t.Error("expected client disconnect")
	}
	if p.isConnected() {
		t.Error("expected disconnected state after Close")
	}
}

func TestCloseWithoutConnect(t *testing.T) {
	p := NewMQTTPublisher(Config{Broker: "127.0.0.1:1883"})
	p.Close() // must not panic
}
