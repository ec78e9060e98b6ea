package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-knxtest/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-knxtest/internal/knx"
)

// freePort returns a loopback TCP port that was free a moment ago.
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("finding free port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

// testConfig starts an embedded broker on a free loopback port and returns
// a client configuration pointing at it. Skipped under -short.
func testConfig(t *testing.T) config.MQTTConfig {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping broker-backed test in short mode")
	}

	cfg := config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     freePort(t),
			ClientID: "knxtest-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}

	broker, err := StartBroker(cfg, net.JoinHostPort(cfg.Broker.Host, strconv.Itoa(cfg.Broker.Port)), nil)
	if err != nil {
		t.Fatalf("StartBroker() error = %v", err)
	}
	t.Cleanup(func() { broker.Close() })

	return cfg
}

func connect(t *testing.T, cfg config.MQTTConfig) *Client {
	t.Helper()
	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect(t *testing.T) {
	client := connect(t, testConfig(t))

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	if !strings.HasPrefix(client.ClientID(), "knxtest-test-") {
		t.Errorf("ClientID() = %q, want knxtest-test- prefix", client.ClientID())
	}
}

func TestConnect_UniqueClientIDs(t *testing.T) {
	cfg := testConfig(t)
	a := connect(t, cfg)
	b := connect(t, cfg)

	if a.ClientID() == b.ClientID() {
		t.Fatalf("two clients share ID %q", a.ClientID())
	}
	// Neither evicted the other.
	time.Sleep(100 * time.Millisecond)
	if !a.IsConnected() || !b.IsConnected() {
		t.Error("expected both clients to stay connected")
	}
}

func TestClose(t *testing.T) {
	client := connect(t, testConfig(t))

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
}

func TestCloseNil(t *testing.T) {
	client := &Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	client := connect(t, testConfig(t))

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestHealthCheckCancelled(t *testing.T) {
	client := connect(t, testConfig(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := client.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() error = %v, want context.Canceled", err)
	}
}

func TestHealthCheckDisconnected(t *testing.T) {
	client := connect(t, testConfig(t))
	client.Close()

	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

// =============================================================================
// Publish Tests
// =============================================================================

func TestPublish(t *testing.T) {
	client := connect(t, testConfig(t))

	topic := NewTopics("").Bus(knx.MustParseGroupAddress("1/0/1"))
	if err := client.Publish(topic, []byte(`{"data":"01"}`), 1, false); err != nil {
		t.Errorf("Publish() error = %v", err)
	}
	if err := client.Publish(topic, []byte(`{"data":"00"}`), 0, true); err != nil {
		t.Errorf("Publish(retained, qos 0) error = %v", err)
	}
}

func TestPublishValidation(t *testing.T) {
	client := connect(t, testConfig(t))

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{"empty topic", "", []byte("x"), 1, ErrInvalidTopic},
		{"invalid qos", "knxtest/x", []byte("x"), 3, ErrInvalidQoS},
		{"oversized payload", "knxtest/x", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPublishDisconnected(t *testing.T) {
	client := connect(t, testConfig(t))
	client.Close()

	err := client.Publish("knxtest/x", []byte("test"), 1, false)
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
}

// =============================================================================
// Subscribe Tests
// =============================================================================

func TestSubscribeValidation(t *testing.T) {
	client := connect(t, testConfig(t))
	noop := func(string, []byte) error { return nil }

	if err := client.Subscribe("", 1, noop); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe(empty) error = %v, want ErrInvalidTopic", err)
	}
	if err := client.Subscribe("knxtest/x", 3, noop); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Subscribe(qos 3) error = %v, want ErrInvalidQoS", err)
	}
	if err := client.Subscribe("knxtest/x", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe(nil handler) error = %v, want ErrSubscribeFailed", err)
	}
	if err := client.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe(empty) error = %v, want ErrInvalidTopic", err)
	}
}

func TestSubscribeTracking(t *testing.T) {
	client := connect(t, testConfig(t))
	topics := NewTopics("")
	noop := func(string, []byte) error { return nil }

	if got := client.Subscriptions(); len(got) != 0 {
		t.Fatalf("Subscriptions() = %v, want none", got)
	}

	for _, topic := range []string{topics.AllBus(), "knxtest/report/+"} {
		if err := client.Subscribe(topic, 1, noop); err != nil {
			t.Fatalf("Subscribe(%s) error = %v", topic, err)
		}
	}
	got := client.Subscriptions()
	if len(got) != 2 || got[0] != "knxtest/bus/+" || got[1] != "knxtest/report/+" {
		t.Errorf("Subscriptions() = %v", got)
	}

	if err := client.Unsubscribe(topics.AllBus()); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if got := client.Subscriptions(); len(got) != 1 || got[0] != "knxtest/report/+" {
		t.Errorf("Subscriptions() after Unsubscribe = %v", got)
	}
}

func TestSubscribeDisconnected(t *testing.T) {
	client := connect(t, testConfig(t))
	client.Close()

	err := client.Subscribe("knxtest/x", 1, func(string, []byte) error { return nil })
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe() error = %v, want ErrNotConnected", err)
	}
	if got := client.Subscriptions(); len(got) != 0 {
		t.Errorf("Subscriptions() = %v, want none", got)
	}
}

func TestPresenceAnnounced(t *testing.T) {
	cfg := testConfig(t)
	announcer := connect(t, cfg)
	watcher := connect(t, cfg)

	seen := make(chan presence, 4)
	err := watcher.Subscribe(Topics{}.SystemStatus(), 1, func(_ string, payload []byte) error {
		var p presence
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		seen <- p
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	announcer.Close()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case p := <-seen:
			if p.ClientID == announcer.ClientID() && p.Status == statusOffline {
				if p.Reason != reasonShutdown {
					t.Errorf("Reason = %q, want %q", p.Reason, reasonShutdown)
				}
				return
			}
		case <-deadline:
			t.Fatal("no offline presence from closed client")
		}
	}
}

func TestPublishSubscribeRoundtrip(t *testing.T) {
	client := connect(t, testConfig(t))
	topics := NewTopics("")
	ga := knx.MustParseGroupAddress("2/1/17")

	received := make(chan string, 1)
	err := client.Subscribe(topics.AllBus(), 1, func(topic string, payload []byte) error {
		got, err := topics.ParseBus(topic)
		if err != nil {
			return err
		}
		received <- got.String() + "=" + string(payload)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if err := client.Publish(topics.Bus(ga), []byte("hello"), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case got := <-received:
		if got != "2/1/17=hello" {
			t.Errorf("received %q, want %q", got, "2/1/17=hello")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

// recordingLogger captures handler errors and panics.
type recordingLogger struct {
	mu   sync.Mutex
	msgs []string
}

func (l *recordingLogger) Error(msg string, _ ...any) { l.record(msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.record(msg) }

func (l *recordingLogger) record(msg string) {
	l.mu.Lock()
	l.msgs = append(l.msgs, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) contains(sub string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.msgs {
		if strings.Contains(m, sub) {
			return true
		}
	}
	return false
}

func TestHandlerPanicRecovered(t *testing.T) {
	client := connect(t, testConfig(t))
	logger := &recordingLogger{}
	client.SetLogger(logger)

	done := make(chan struct{})
	err := client.Subscribe("knxtest/panic", 1, func(string, []byte) error {
		defer close(done)
		panic("boom")
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if err := client.Publish("knxtest/panic", []byte("x"), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("handler was not invoked")
	}

	deadline := time.Now().Add(time.Second)
	for !logger.contains("panic") && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if !logger.contains("panic") {
		t.Error("expected panic to be logged")
	}
	if !client.IsConnected() {
		t.Error("client disconnected after handler panic")
	}
}

// =============================================================================
// Unit Tests (no broker)
// =============================================================================

func TestTopicBuilders(t *testing.T) {
	topics := NewTopics("lab/bus/")
	ga := knx.MustParseGroupAddress("1/2/3")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"bus", topics.Bus(ga), "lab/bus/1%2F2%2F3"},
		{"all bus", topics.AllBus(), "lab/bus/+"},
		{"default prefix", Topics{}.Bus(ga), "knxtest/bus/1%2F2%2F3"},
		{"system status", Topics{}.SystemStatus(), "knxtest/system/status"},
		{"report", Topics{}.Report("abc"), "knxtest/report/abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestTopicsParseBus(t *testing.T) {
	topics := NewTopics("knxtest/bus")

	ga, err := topics.ParseBus("knxtest/bus/31%2F7%2F255")
	if err != nil {
		t.Fatalf("ParseBus() error = %v", err)
	}
	if ga.String() != "31/7/255" {
		t.Errorf("ParseBus() = %s, want 31/7/255", ga)
	}

	for _, bad := range []string{"other/1%2F2%2F3", "knxtest/bus/", "knxtest/bus/a/b"} {
		if _, err := topics.ParseBus(bad); err == nil {
			t.Errorf("ParseBus(%q) expected error", bad)
		}
	}
}

func TestUniqueClientID(t *testing.T) {
	a := uniqueClientID("knxtest")
	b := uniqueClientID("knxtest")
	if a == b {
		t.Errorf("uniqueClientID() returned %q twice", a)
	}
	if len(a) != len("knxtest-")+clientIDSuffixLen {
		t.Errorf("uniqueClientID() = %q, unexpected length", a)
	}
	if !strings.HasPrefix(uniqueClientID(""), "knxtest-") {
		t.Error("empty base should default to knxtest")
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{Host: "broker", Port: 8883, TLS: true},
		Auth:   config.MQTTAuthConfig{Username: "u", Password: "p"},
	}

	opts := buildClientOptions(cfg, "id-1")

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://broker:8883" {
		t.Errorf("Servers = %v, want ssl://broker:8883", opts.Servers)
	}
	if opts.ClientID != "id-1" {
		t.Errorf("ClientID = %q, want id-1", opts.ClientID)
	}
	if opts.Username != "u" {
		t.Errorf("Username = %q, want u", opts.Username)
	}
	if opts.TLSConfig == nil {
		t.Error("TLSConfig not set for TLS broker")
	}
}

func TestBrokerURL(t *testing.T) {
	tests := []struct {
		broker config.MQTTBrokerConfig
		want   string
	}{
		{config.MQTTBrokerConfig{Host: "localhost", Port: 1883}, "tcp://localhost:1883"},
		{config.MQTTBrokerConfig{Host: "broker", Port: 8883, TLS: true}, "ssl://broker:8883"},
		{config.MQTTBrokerConfig{Host: "::1", Port: 1883}, "tcp://[::1]:1883"},
	}
	for _, tt := range tests {
		if got := brokerURL(tt.broker); got != tt.want {
			t.Errorf("brokerURL(%+v) = %q, want %q", tt.broker, got, tt.want)
		}
	}
}

func TestPresencePayload(t *testing.T) {
	var p presence
	if err := json.Unmarshal(presencePayload("knxtest-1", statusOnline, ""), &p); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if p.Status != statusOnline || p.ClientID != "knxtest-1" || p.Reason != "" {
		t.Errorf("presence = %+v", p)
	}
	if _, err := time.Parse(time.RFC3339, p.Timestamp); err != nil {
		t.Errorf("Timestamp %q: %v", p.Timestamp, err)
	}
}

func TestBroker_Credentials(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping broker-backed test in short mode")
	}

	cfg := config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{Host: "127.0.0.1", Port: freePort(t), ClientID: "auth-test"},
		Auth:   config.MQTTAuthConfig{Username: "tester", Password: "s3cret"},
		QoS:    1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     1,
		},
	}
	broker, err := StartBroker(cfg, net.JoinHostPort("127.0.0.1", strconv.Itoa(cfg.Broker.Port)), nil)
	if err != nil {
		t.Fatalf("StartBroker() error = %v", err)
	}
	defer broker.Close()

	client := connect(t, cfg)
	if !client.IsConnected() {
		t.Fatal("client with valid credentials not connected")
	}
	if broker.ClientCount() < 1 {
		t.Errorf("ClientCount() = %d, want at least 1", broker.ClientCount())
	}
}
