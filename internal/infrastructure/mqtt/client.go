package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-knxtest/internal/infrastructure/config"
)

// Logger receives handler failures and connection warnings.
// Satisfied by logging.Logger and *slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// MessageHandler handles one received message. topic is the concrete topic
// even for wildcard subscriptions. A returned error is logged; the message
// is acknowledged regardless. Handlers run on paho's goroutines and should
// return quickly.
type MessageHandler func(topic string, payload []byte) error

// Client is the broker connection used by the MQTT bus and report
// publishing. It is safe for concurrent use. Subscriptions are remembered
// and replayed whenever paho reconnects.
type Client struct {
	paho     pahomqtt.Client
	clientID string
	qos      byte

	online atomic.Bool
	subs   subscriptionSet

	logMu  sync.RWMutex
	logger Logger
}

// Connect dials the broker described by cfg and waits for the first
// CONNACK. The client ID gets a random suffix, and a retained will marks
// the harness offline on knxtest/system/status if the process dies.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := &Client{
		clientID: uniqueClientID(cfg.Broker.ClientID),
		qos:      byte(cfg.QoS),
		subs:     subscriptionSet{byTopic: make(map[string]subscription)},
	}

	opts := buildClientOptions(cfg, c.clientID).
		SetWill(Topics{}.SystemStatus(), string(presencePayload(c.clientID, statusOffline, reasonDisconnect)), 1, true).
		SetOnConnectHandler(func(pahomqtt.Client) { c.connected() }).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.lost(err) }).
		SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
			c.warn("reconnecting to MQTT broker", "client_id", c.clientID)
		})

	c.paho = pahomqtt.NewClient(opts)
	if err := await(c.paho.Connect(), connectTimeout, ErrConnectionFailed); err != nil {
		return nil, err
	}
	// The connect handler may not have run yet.
	c.online.Store(true)
	return c, nil
}

// connected runs on every (re)connect.
func (c *Client) connected() {
	c.online.Store(true)
	c.subs.each(func(s subscription) {
		c.paho.Subscribe(s.topic, s.qos, c.dispatch(s.handler))
	})
	c.paho.Publish(Topics{}.SystemStatus(), c.qos, true, presencePayload(c.clientID, statusOnline, ""))
}

func (c *Client) lost(err error) {
	c.online.Store(false)
	c.warn("MQTT connection lost", "client_id", c.clientID, "error", err)
}

// Close marks the harness offline, lets in-flight messages drain and
// disconnects. Closing an unconnected client is a no-op.
func (c *Client) Close() error {
	if c.paho == nil {
		return nil
	}
	if c.IsConnected() {
		c.paho.Publish(Topics{}.SystemStatus(), c.qos, true,
			presencePayload(c.clientID, statusOffline, reasonShutdown)).WaitTimeout(ackTimeout)
	}
	c.paho.Disconnect(quiesceMillis)
	c.online.Store(false)
	return nil
}

// HealthCheck reports ErrNotConnected while the broker link is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports whether the client currently has a broker session.
func (c *Client) IsConnected() bool {
	return c.paho != nil && c.online.Load() && c.paho.IsConnected()
}

// ClientID returns the suffixed ID presented to the broker.
func (c *Client) ClientID() string { return c.clientID }

// QoS returns the configured default QoS.
func (c *Client) QoS() byte { return c.qos }

// SetLogger installs the sink for handler errors and connection warnings.
func (c *Client) SetLogger(logger Logger) {
	c.logMu.Lock()
	c.logger = logger
	c.logMu.Unlock()
}

func (c *Client) log() Logger {
	c.logMu.RLock()
	defer c.logMu.RUnlock()
	return c.logger
}

func (c *Client) warn(msg string, args ...any) {
	if l := c.log(); l != nil {
		l.Warn(msg, args...)
	}
}

// dispatch adapts handler to paho. A panicking handler is logged and does
// not take the connection down.
func (c *Client) dispatch(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		topic := msg.Topic()
		defer func() {
			if r := recover(); r != nil {
				if l := c.log(); l != nil {
					l.Error("MQTT handler panic recovered", "topic", topic, "panic", r)
				}
			}
		}()
		if err := handler(topic, msg.Payload()); err != nil {
			c.warn("MQTT handler returned error", "topic", topic, "error", err)
		}
	}
}

// await waits for a paho token and wraps any failure in sentinel.
func await(token pahomqtt.Token, limit time.Duration, sentinel error) error {
	if !token.WaitTimeout(limit) {
		return fmt.Errorf("%w: no acknowledgement within %v", sentinel, limit)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return nil
}
