package device

import (
	"context"
	"fmt"
	"maps"

	"github.com/nerrad567/gray-logic-knxtest/internal/bus"
	"github.com/nerrad567/gray-logic-knxtest/internal/knx"
)

// Type classifies a simulated device.
type Type string

// Supported device types.
const (
	TypeSwitch  Type = "switch"
	TypeDimmer  Type = "dimmer"
	TypeShutter Type = "shutter"
)

// ParseType validates a device type string.
func ParseType(s string) (Type, error) {
	switch t := Type(s); t {
	case TypeSwitch, TypeDimmer, TypeShutter:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDeviceType, s)
}

// State is a snapshot of a device's internal state, keyed by the state
// keys of knx.CanonicalFunctions (e.g. "on", "level", "position").
type State map[string]any

// Clone returns an independent copy.
func (s State) Clone() State {
	return maps.Clone(s)
}

// Device is a simulated KNX actuator. It listens on its command group
// addresses and answers on its status group addresses.
type Device interface {
	ID() string
	Name() string
	Type() Type

	// Attach subscribes the device to b. Telegrams are handled until
	// Detach is called or ctx is cancelled.
	Attach(ctx context.Context, b bus.Bus) error
	Detach()

	// Binding returns the group address bound to a function.
	Binding(function string) (Binding, bool)

	// Bindings returns all function bindings.
	Bindings() map[string]Binding

	// State returns a snapshot of the current state.
	State() State
}

// Binding is a function bound to a group address with its datapoint type.
type Binding struct {
	Function string           `json:"function"`
	GA       knx.GroupAddress `json:"ga"`
	DPT      knx.DPT          `json:"dpt"`
	Flags    []string         `json:"flags,omitempty"`
}

// Info is the JSON view of a device.
type Info struct {
	ID       string             `json:"id"`
	Name     string             `json:"name,omitempty"`
	Type     Type               `json:"type"`
	Bindings map[string]Binding `json:"bindings"`
	State    State              `json:"state"`
}

// Describe returns the JSON view of d.
func Describe(d Device) Info {
	return Info{
		ID:       d.ID(),
		Name:     d.Name(),
		Type:     d.Type(),
		Bindings: d.Bindings(),
		State:    d.State(),
	}
}
