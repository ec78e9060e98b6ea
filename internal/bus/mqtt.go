package bus

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-knxtest/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-knxtest/internal/knx"
)

// inboxSize bounds telegrams queued between the MQTT client and handlers.
const inboxSize = 1024

// Transport is the subset of the MQTT client used by the MQTT bus.
type Transport interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// wireTelegram is the JSON payload of a bus topic.
type wireTelegram struct {
	GA        string    `json:"ga"`
	Data      string    `json:"data"` // hex
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source,omitempty"`
}

// MQTT is a bus carried over an MQTT broker, one retained topic per
// group address.
//
// Writes are published and take effect when the broker echoes them back
// through the wildcard subscription, so a Read immediately after a Write
// may still see the previous value. Use Subscribe to wait for a change.
//
// Handlers run on a single dispatch goroutine, in arrival order, never on
// the MQTT client's callback goroutine. They may therefore publish.
type MQTT struct {
	transport Transport
	topics    mqtt.Topics
	qos       byte
	logger    Logger

	mu     sync.RWMutex
	values map[knx.GroupAddress][]byte

	subs  *subscribers
	inbox chan Telegram

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	stopped   chan struct{}
}

// NewMQTT creates an MQTT bus. Call Start before use.
func NewMQTT(transport Transport, topics mqtt.Topics, qos byte, logger Logger) *MQTT {
	if logger == nil {
		logger = noopLogger{}
	}
	return &MQTT{
		transport: transport,
		topics:    topics,
		qos:       qos,
		logger:    logger,
		values:    make(map[knx.GroupAddress][]byte),
		subs:      newSubscribers(),
		inbox:     make(chan Telegram, inboxSize),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
}

// Start subscribes to all bus topics and starts the dispatch loop.
// Retained values already on the broker populate the cache.
func (b *MQTT) Start() error {
	var err error
	b.startOnce.Do(func() {
		go b.dispatchLoop()
		err = b.transport.Subscribe(b.topics.AllBus(), b.qos, b.handleMessage)
	})
	if err != nil {
		return fmt.Errorf("subscribing to bus topics: %w", err)
	}
	return nil
}

// Close unsubscribes and stops dispatching.
func (b *MQTT) Close() error {
	var err error
	b.stopOnce.Do(func() {
		err = b.transport.Unsubscribe(b.topics.AllBus())
		close(b.done)
		select {
		case <-b.stopped:
		case <-time.After(time.Second):
		}
	})
	return err
}

// Write implements Bus.
func (b *MQTT) Write(ctx context.Context, ga knx.GroupAddress, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-b.done:
		return ErrClosed
	default:
	}
	if !ga.IsValid() {
		return fmt.Errorf("%w: %s", knx.ErrInvalidGroupAddress, ga)
	}

	payload, err := json.Marshal(wireTelegram{
		GA:        ga.String(),
		Data:      hex.EncodeToString(data),
		Timestamp: time.Now().UTC(),
		Source:    SourceFrom(ctx),
	})
	if err != nil {
		return fmt.Errorf("encoding telegram: %w", err)
	}

	if err := b.transport.Publish(b.topics.Bus(ga), payload, b.qos, true); err != nil {
		return fmt.Errorf("publishing %s: %w", ga, err)
	}
	return nil
}

// Read implements Bus.
func (b *MQTT) Read(ctx context.Context, ga knx.GroupAddress) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	data, ok := b.values[ga]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoValue, ga)
	}
	return append([]byte(nil), data...), nil
}

// Subscribe implements Bus.
func (b *MQTT) Subscribe(ga knx.GroupAddress, h Handler) func() {
	return b.subs.add(ga, h)
}

// SubscribeAll implements Bus.
func (b *MQTT) SubscribeAll(h Handler) func() {
	return b.subs.addAll(h)
}

// handleMessage decodes a bus topic message and queues it for dispatch.
// It runs on the MQTT client goroutine and must not block.
func (b *MQTT) handleMessage(topic string, payload []byte) error {
	t, err := b.decode(topic, payload)
	if err != nil {
		return err
	}

	select {
	case b.inbox <- t:
	default:
		b.logger.Warn("bus inbox full, dropping telegram", "ga", t.GA.String())
	}
	return nil
}

func (b *MQTT) decode(topic string, payload []byte) (Telegram, error) {
	ga, err := b.topics.ParseBus(topic)
	if err != nil {
		return Telegram{}, err
	}

	var wire wireTelegram
	if err := json.Unmarshal(payload, &wire); err != nil {
		return Telegram{}, fmt.Errorf("decoding telegram on %s: %w", topic, err)
	}
	data, err := hex.DecodeString(wire.Data)
	if err != nil {
		return Telegram{}, fmt.Errorf("decoding telegram data on %s: %w", topic, err)
	}

	return Telegram{GA: ga, Data: data, Timestamp: wire.Timestamp, Source: wire.Source}, nil
}

func (b *MQTT) dispatchLoop() {
	defer close(b.stopped)
	for {
		select {
		case <-b.done:
			return
		case t := <-b.inbox:
			b.mu.Lock()
			b.values[t.GA] = t.Data
			b.mu.Unlock()

			b.logger.Debug("bus telegram", "ga", t.GA.String(), "data", hex.EncodeToString(t.Data), "source", t.Source)
			b.subs.dispatch(t)
		}
	}
}
