package device

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerrad567/gray-logic-knxtest/internal/bus"
	"github.com/nerrad567/gray-logic-knxtest/internal/infrastructure/config"
)

// Registry holds the simulated devices of a run and attaches them to a bus.
//
// All public methods are thread-safe.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]Device
	order   []string // registration order, for stable listings
	started bool
	logger  Logger
}

// NewRegistry creates an empty device registry.
func NewRegistry() *Registry {
	return &Registry{
		devices: make(map[string]Device),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Register adds a device. Returns ErrDeviceExists for a duplicate ID.
func (r *Registry) Register(d Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.devices[d.ID()]; exists {
		return fmt.Errorf("%w: %s", ErrDeviceExists, d.ID())
	}
	r.devices[d.ID()] = d
	r.order = append(r.order, d.ID())
	return nil
}

// LoadConfig builds and registers every configured device.
func (r *Registry) LoadConfig(devices []config.DeviceConfig) error {
	for _, cfg := range devices {
		d, err := FromConfig(cfg, r.logger)
		if err != nil {
			return err
		}
		if err := r.Register(d); err != nil {
			return err
		}
	}
	r.logger.Info("devices loaded", "count", len(devices))
	return nil
}

// Start attaches every device to b. If any attach fails, devices attached
// so far are detached again.
//
// Attaching publishes initial status values, which the bus may deliver
// synchronously, so no registry lock is held while devices attach.
func (r *Registry) Start(ctx context.Context, b bus.Bus) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return ErrAlreadyAttached
	}
	r.started = true
	devices := r.listLocked()
	r.mu.Unlock()

	for i, d := range devices {
		if err := d.Attach(ctx, b); err != nil {
			for _, prev := range devices[:i] {
				prev.Detach()
			}
			r.mu.Lock()
			r.started = false
			r.mu.Unlock()
			return fmt.Errorf("attaching %s: %w", d.ID(), err)
		}
	}

	r.logger.Info("devices attached", "count", len(devices))
	return nil
}

// Stop detaches every device.
func (r *Registry) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.started = false
	devices := r.listLocked()
	r.mu.Unlock()

	for _, d := range devices {
		d.Detach()
	}
	r.logger.Info("devices detached", "count", len(devices))
}

// Get returns the device with the given ID.
// Returns ErrDeviceNotFound if the device does not exist.
func (r *Registry) Get(id string) (Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	return d, nil
}

// List returns all devices in registration order.
func (r *Registry) List() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked()
}

func (r *Registry) listLocked() []Device {
	out := make([]Device, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.devices[id])
	}
	return out
}

// Count returns the number of registered devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
