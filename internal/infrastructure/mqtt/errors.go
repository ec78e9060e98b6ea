package mqtt

import "errors"

var (
	// ErrNotConnected means the broker link is down.
	ErrNotConnected = errors.New("mqtt: not connected to broker")

	// ErrInvalidTopic means a topic was empty or did not have the expected shape.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")

	// ErrInvalidQoS means a QoS outside 0..2 was requested.
	ErrInvalidQoS = errors.New("mqtt: qos must be 0, 1 or 2")

	ErrConnectionFailed  = errors.New("mqtt: connect failed")
	ErrPublishFailed     = errors.New("mqtt: publish failed")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe failed")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrBrokerFailed is returned when the embedded broker cannot start.
	ErrBrokerFailed = errors.New("mqtt: embedded broker failed")
)
