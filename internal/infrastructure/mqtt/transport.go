package mqtt

import (
	"fmt"
	"sort"
	"sync"
)

type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// subscriptionSet remembers live subscriptions so they can be replayed
// after a reconnect.
type subscriptionSet struct {
	mu      sync.RWMutex
	byTopic map[string]subscription
}

func (s *subscriptionSet) put(sub subscription) {
	s.mu.Lock()
	s.byTopic[sub.topic] = sub
	s.mu.Unlock()
}

func (s *subscriptionSet) drop(topic string) {
	s.mu.Lock()
	delete(s.byTopic, topic)
	s.mu.Unlock()
}

func (s *subscriptionSet) each(fn func(subscription)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.byTopic {
		fn(sub)
	}
}

func checkTopic(topic string, qos byte) error {
	if topic == "" {
		return fmt.Errorf("%w: empty topic", ErrInvalidTopic)
	}
	if qos > maxQoS {
		return fmt.Errorf("%w: got %d", ErrInvalidQoS, qos)
	}
	return nil
}

// Publish sends payload to topic and waits for the broker to acknowledge
// it (QoS 1 and 2). Bus telegrams are published retained so a late
// subscriber sees the current value of every group address.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := checkTopic(topic, qos); err != nil {
		return err
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %d byte payload over %d byte limit", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return await(c.paho.Publish(topic, qos, retained, payload), ackTimeout, ErrPublishFailed)
}

// Subscribe routes messages matching topic, which may contain + and #
// wildcards, to handler. The subscription is replayed after reconnects
// until Unsubscribe is called.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if err := checkTopic(topic, qos); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler for %s", ErrSubscribeFailed, topic)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	sub := subscription{topic: topic, qos: qos, handler: handler}
	c.subs.put(sub)
	if err := await(c.paho.Subscribe(topic, qos, c.dispatch(handler)), ackTimeout, ErrSubscribeFailed); err != nil {
		c.subs.drop(topic)
		return err
	}
	return nil
}

// Unsubscribe stops delivery for a topic previously passed to Subscribe.
// Messages already in flight may still reach the handler.
func (c *Client) Unsubscribe(topic string) error {
	if err := checkTopic(topic, 0); err != nil {
		return err
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	c.subs.drop(topic)
	return await(c.paho.Unsubscribe(topic), ackTimeout, ErrUnsubscribeFailed)
}

// Subscriptions lists the subscribed topic filters in sorted order.
func (c *Client) Subscriptions() []string {
	var topics []string
	c.subs.each(func(s subscription) { topics = append(topics, s.topic) })
	sort.Strings(topics)
	return topics
}
