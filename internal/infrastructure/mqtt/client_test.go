package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/tftbridge/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration for testing.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "tftbridge-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// offlineClient is a Client that never connected. Validation runs before
// any broker access, so it is enough for argument checks.
func offlineClient() *Client {
	return &Client{
		cfg:           testConfig(),
		subscriptions: make(map[string]subscription),
	}
}

// fakeMessage implements pahomqtt.Message.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

// mockLogger implements Logger for testing.
type mockLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *mockLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *mockLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "bridge"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want tcp://127.0.0.1:1883", opts.Servers)
	}
	if opts.ClientID != "tftbridge-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "bridge" || opts.Password != "secret" {
		t.Errorf("credentials not applied: %q", opts.Username)
	}
	if !opts.AutoReconnect || !opts.CleanSession {
		t.Error("expected auto-reconnect and clean session")
	}
	if opts.TLSConfig != nil && opts.TLSConfig.MinVersion != 0 {
		t.Error("TLS configured without broker.tls")
	}

	cfg.Broker.TLS = true
	opts = buildClientOptions(cfg)
	if opts.Servers[0].Scheme != "ssl" {
		t.Errorf("scheme = %q, want ssl", opts.Servers[0].Scheme)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("TLS config missing minimum version")
	}
}

func TestConfigureLWT(t *testing.T) {
	t.Run("default system status", func(t *testing.T) {
		opts := buildClientOptions(testConfig())
		configureLWT(opts, "tftbridge-test", nil)

		if !opts.WillEnabled || opts.WillTopic != "tftbridge/system/status" {
			t.Errorf("will = %v %q", opts.WillEnabled, opts.WillTopic)
		}
		var msg presence
		if err := json.Unmarshal(opts.WillPayload, &msg); err != nil {
			t.Fatalf("will payload not JSON: %v", err)
		}
		if msg.Status != presenceOffline || msg.ClientID != "tftbridge-test" || msg.Reason != "unexpected_disconnect" {
			t.Errorf("will payload = %+v", msg)
		}
	})

	t.Run("custom will", func(t *testing.T) {
		opts := buildClientOptions(testConfig())
		configureLWT(opts, "tftbridge-test", &Will{Topic: "tftbridge/health/printer-1", Payload: []byte(`{"status":"offline"}`)})

		if opts.WillTopic != "tftbridge/health/printer-1" || string(opts.WillPayload) != `{"status":"offline"}` {
			t.Errorf("will = %q %q", opts.WillTopic, opts.WillPayload)
		}
		if !opts.WillRetained || opts.WillQos != 1 {
			t.Error("will should be retained at QoS 1")
		}
	})
}

func TestPresencePayload(t *testing.T) {
	tests := []struct {
		status string
		reason string
	}{
		{presenceOnline, ""},
		{presenceOffline, "graceful_shutdown"},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			var msg presence
			if err := json.Unmarshal(presencePayload("c1", tt.status, tt.reason), &msg); err != nil {
				t.Fatalf("payload not JSON: %v", err)
			}
			if msg.Status != tt.status || msg.ClientID != "c1" || msg.Reason != tt.reason {
				t.Errorf("payload = %+v", msg)
			}
			if _, err := time.Parse(time.RFC3339, msg.Timestamp); err != nil {
				t.Errorf("timestamp %q: %v", msg.Timestamp, err)
			}
		})
	}
}

func TestPublish_Validation(t *testing.T) {
	c := offlineClient()

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		want    error
	}{
		{"empty topic", "", []byte("x"), 1, ErrInvalidTopic},
		{"invalid qos", "tftbridge/x", []byte("x"), 3, ErrInvalidQoS},
		{"payload too large", "tftbridge/x", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
		{"not connected", "tftbridge/x", []byte("x"), 1, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Publish(tt.topic, tt.payload, tt.qos, false); !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPublishJSON_MarshalError(t *testing.T) {
	c := offlineClient()
	err := c.PublishJSON("tftbridge/x", make(chan int), false)
	if !errors.Is(err, ErrPublishFailed) {
		t.Errorf("PublishJSON() error = %v, want ErrPublishFailed", err)
	}
}

func TestSubscribe_Validation(t *testing.T) {
	c := offlineClient()
	handler := func(string, []byte) error { return nil }

	tests := []struct {
		name    string
		topic   string
		qos     byte
		handler MessageHandler
		want    error
	}{
		{"empty topic", "", 1, handler, ErrInvalidTopic},
		{"invalid qos", "tftbridge/host/state", 5, handler, ErrInvalidQoS},
		{"nil handler", "tftbridge/host/state", 1, nil, ErrSubscribeFailed},
		{"not connected", "tftbridge/host/state", 1, handler, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Subscribe(tt.topic, tt.qos, tt.handler); !errors.Is(err, tt.want) {
				t.Errorf("Subscribe() error = %v, want %v", err, tt.want)
			}
		})
	}

	if got := c.Subscriptions(); len(got) != 0 {
		t.Errorf("Subscriptions() = %v, failed subscriptions must not be tracked", got)
	}
}

func TestCloseNil(t *testing.T) {
	c := &Client{}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on unconnected client error = %v", err)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true for a client without a connection")
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestWrapHandler(t *testing.T) {
	c := offlineClient()
	logger := &mockLogger{}
	c.SetLogger(logger)

	var got string
	c.wrapHandler(func(topic string, payload []byte) error {
		got = topic + "=" + string(payload)
		return nil
	})(nil, fakeMessage{topic: "tftbridge/host/state", payload: []byte("ready")})
	if got != "tftbridge/host/state=ready" {
		t.Errorf("handler saw %q", got)
	}

	c.wrapHandler(func(string, []byte) error {
		return errors.New("bad payload")
	})(nil, fakeMessage{topic: "t"})

	c.wrapHandler(func(string, []byte) error {
		panic("handler exploded")
	})(nil, fakeMessage{topic: "t"})

	logger.mu.Lock()
	defer logger.mu.Unlock()
	if len(logger.warns) != 1 || !strings.Contains(logger.warns[0], "error") {
		t.Errorf("warns = %v, want one handler error", logger.warns)
	}
	if len(logger.errors) != 1 || !strings.Contains(logger.errors[0], "panic") {
		t.Errorf("errors = %v, want one recovered panic", logger.errors)
	}
}

func TestTopicBuilders(t *testing.T) {
	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"SystemStatus", Topics{}.SystemStatus(), "tftbridge/system/status"},
		{"BridgeEvents", Topics{}.BridgeEvents("printer-1"), "tftbridge/events/printer-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("got %q, want %q", tt.got, tt.expected)
			}
		})
	}
}
