package device

import (
	"context"
	"sync"

	"github.com/nerrad567/gray-logic-knxtest/internal/bus"
	"github.com/nerrad567/gray-logic-knxtest/internal/knx"
)

// Dimmer is a dimming actuator channel.
//
// Inputs: switch (1.001), brightness (5.001), dimming_control (3.007).
// Outputs: switch_status, brightness_status.
//
// Switching on restores the last non-zero brightness (100% initially).
// A brightness of 0 switches off and keeps the remembered level.
type Dimmer struct {
	base

	mu        sync.Mutex
	on        bool
	level     float64
	lastLevel float64
}

// NewDimmer creates a dimmer with the given bindings.
func NewDimmer(id, name string, bindings map[string]Binding, logger Logger) *Dimmer {
	return &Dimmer{
		base:      newBase(id, name, TypeDimmer, bindings, logger),
		lastLevel: 100,
	}
}

// Attach implements Device. The current state is published on attach.
func (d *Dimmer) Attach(ctx context.Context, b bus.Bus) error {
	if err := d.attach(ctx, b, map[string]commandHandler{
		"switch":          d.handleSwitch,
		"brightness":      d.handleBrightness,
		"dimming_control": d.handleDimmingControl,
	}); err != nil {
		return err
	}

	d.mu.Lock()
	var out outbox
	d.feedback(&out)
	d.mu.Unlock()
	d.flush(out)
	return nil
}

// Level returns the output brightness (0-100) and whether it is on.
func (d *Dimmer) Level() (float64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.level, d.on
}

// State implements Device.
func (d *Dimmer) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return State{"on": d.on, "level": d.level, "last_level": d.lastLevel}
}

func (d *Dimmer) handleSwitch(native any) {
	on, ok := asBool(native)
	if !ok {
		return
	}

	d.mu.Lock()
	if on {
		d.setLevel(d.lastLevel)
	} else {
		d.setLevel(0)
	}
	var out outbox
	d.feedback(&out)
	d.mu.Unlock()

	d.logger.Info("dimmer switched", "device_id", d.id, "on", on)
	d.flush(out)
}

func (d *Dimmer) handleBrightness(native any) {
	p, ok := asPercent(native)
	if !ok {
		return
	}

	d.mu.Lock()
	d.setLevel(p)
	var out outbox
	d.feedback(&out)
	d.mu.Unlock()

	d.logger.Info("dimmer level set", "device_id", d.id, "level", p)
	d.flush(out)
}

func (d *Dimmer) handleDimmingControl(native any) {
	step, ok := native.(knx.Step)
	if !ok || step.Code == 0 {
		// Stop: instantaneous dimming has nothing to halt.
		return
	}

	d.mu.Lock()
	d.setLevel(d.level + step.Percent())
	var out outbox
	d.feedback(&out)
	d.mu.Unlock()

	d.flush(out)
}

// setLevel applies a brightness. Must hold d.mu.
func (d *Dimmer) setLevel(p float64) {
	p = clampPercent(p)
	d.level = p
	d.on = p > 0
	if p > 0 {
		d.lastLevel = p
	}
}

// feedback queues both status objects. Must hold d.mu.
func (d *Dimmer) feedback(out *outbox) {
	out.add("switch_status", d.on)
	out.add("brightness_status", d.level)
}
