package device

import (
	"context"
	"sync"

	"github.com/nerrad567/gray-logic-knxtest/internal/bus"
)

// Switch is a switching actuator channel: "switch" in, "switch_status" out.
type Switch struct {
	base

	mu sync.Mutex
	on bool
}

// NewSwitch creates a switch actuator with the given bindings.
func NewSwitch(id, name string, bindings map[string]Binding, logger Logger) *Switch {
	return &Switch{base: newBase(id, name, TypeSwitch, bindings, logger)}
}

// Attach implements Device. The current state is published on attach.
func (s *Switch) Attach(ctx context.Context, b bus.Bus) error {
	if err := s.attach(ctx, b, map[string]commandHandler{
		"switch": s.handleSwitch,
	}); err != nil {
		return err
	}
	s.publish("switch_status", s.On())
	return nil
}

// On reports the output state.
func (s *Switch) On() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.on
}

// State implements Device.
func (s *Switch) State() State {
	return State{"on": s.On()}
}

func (s *Switch) handleSwitch(native any) {
	on, ok := asBool(native)
	if !ok {
		return
	}

	s.mu.Lock()
	s.on = on
	s.mu.Unlock()

	s.logger.Info("switch set", "device_id", s.id, "on", on)
	s.publish("switch_status", on)
}
