package device

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-knxtest/internal/bus"
	"github.com/nerrad567/gray-logic-knxtest/internal/knx"
)

// defaultStepInterval is the motion simulation tick when none is configured.
const defaultStepInterval = 50 * time.Millisecond

// ShutterSettings configures motion and sun protection.
type ShutterSettings struct {
	// TravelTime is the duration of a full 0→100% run. Zero moves instantly.
	TravelTime time.Duration

	// StepInterval is the simulation tick while moving.
	StepInterval time.Duration

	Sun SunProtection
}

// SunProtection drives the shutter to Position while the brightness is
// above Upper, and back to the user position once it falls below Lower.
// Between the thresholds nothing changes.
type SunProtection struct {
	Enabled  bool
	Upper    float64 // lux
	Lower    float64 // lux
	Position float64 // %
	Slat     float64 // %
}

// Configured reports whether thresholds were set at all.
func (s SunProtection) Configured() bool {
	return s.Upper > 0 && s.Lower < s.Upper
}

// Shutter is a blind/shutter actuator channel. Position 0% is fully open.
//
// Inputs: position, move, stop, slat, blind_control, lock, lux,
// sun_protection_enable.
// Outputs: position_status, slat_status, lock_status, sun_protection_status.
//
// While locked, movement commands and sun protection are ignored. Manual
// commands always win over sun protection and become the position that is
// restored when protection releases.
type Shutter struct {
	base
	settings ShutterSettings

	mu           sync.Mutex
	position     float64
	target       float64
	slat         float64
	locked       bool
	sunEnabled   bool
	sunActive    bool
	userPosition float64
	userSlat     float64
	lux          float64
	haveLux      bool
}

// NewShutter creates a shutter with the given bindings and settings.
func NewShutter(id, name string, bindings map[string]Binding, settings ShutterSettings, logger Logger) *Shutter {
	if settings.StepInterval <= 0 {
		settings.StepInterval = defaultStepInterval
	}
	return &Shutter{
		base:       newBase(id, name, TypeShutter, bindings, logger),
		settings:   settings,
		sunEnabled: settings.Sun.Enabled,
	}
}

// Attach implements Device. The current state is published on attach.
func (s *Shutter) Attach(ctx context.Context, b bus.Bus) error {
	if err := s.attach(ctx, b, map[string]commandHandler{
		"position":              s.handlePosition,
		"move":                  s.handleMove,
		"stop":                  s.handleStop,
		"slat":                  s.handleSlat,
		"blind_control":         s.handleBlindControl,
		"lock":                  s.handleLock,
		"lux":                   s.handleLux,
		"sun_protection_enable": s.handleSunEnable,
	}); err != nil {
		return err
	}

	if s.settings.TravelTime > 0 {
		s.goLoop(s.motionLoop)
	}

	s.mu.Lock()
	var out outbox
	out.add("position_status", s.position)
	out.add("slat_status", s.slat)
	out.add("lock_status", s.locked)
	out.add("sun_protection_status", s.sunActive)
	s.mu.Unlock()
	s.flush(out)
	return nil
}

// Position returns the current and target positions.
func (s *Shutter) Position() (current, target float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position, s.target
}

// Settings returns the motion and sun protection settings.
func (s *Shutter) Settings() ShutterSettings {
	return s.settings
}

// Locked reports whether the lock input is active.
func (s *Shutter) Locked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked
}

// SunProtectionActive reports whether sun protection is driving the shutter.
func (s *Shutter) SunProtectionActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sunActive
}

// State implements Device.
func (s *Shutter) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{
		"position":               s.position,
		"target":                 s.target,
		"moving":                 s.position != s.target,
		"tilt":                   s.slat,
		"locked":                 s.locked,
		"sun_protection_enabled": s.sunEnabled,
		"sun_protection":         s.sunActive,
	}
	if s.haveLux {
		st["lux"] = s.lux
	}
	return st
}

func (s *Shutter) handlePosition(native any) {
	p, ok := asPercent(native)
	if !ok {
		return
	}
	s.manual(func(out *outbox) {
		s.userPosition = clampPercent(p)
		s.moveTo(s.userPosition, out)
	})
}

func (s *Shutter) handleMove(native any) {
	down, ok := asBool(native)
	if !ok {
		return
	}
	target := 0.0
	if down {
		target = 100
	}
	s.manual(func(out *outbox) {
		s.userPosition = target
		s.moveTo(target, out)
	})
}

func (s *Shutter) handleStop(_ any) {
	s.manual(func(out *outbox) {
		s.userPosition = s.position
		s.moveTo(s.position, out)
	})
}

func (s *Shutter) handleBlindControl(native any) {
	step, ok := native.(knx.Step)
	if !ok {
		return
	}
	s.manual(func(out *outbox) {
		if step.Code == 0 {
			s.userPosition = s.position
		} else {
			// Increase closes, matching DPT 3.008 (1 = down).
			s.userPosition = clampPercent(s.position + step.Percent())
		}
		s.moveTo(s.userPosition, out)
	})
}

func (s *Shutter) handleSlat(native any) {
	p, ok := asPercent(native)
	if !ok {
		return
	}
	s.manual(func(out *outbox) {
		s.userSlat = clampPercent(p)
		s.slat = s.userSlat
		out.add("slat_status", s.slat)
	})
}

// manual applies a user command unless the shutter is locked.
func (s *Shutter) manual(apply func(out *outbox)) {
	s.mu.Lock()
	if s.locked {
		s.mu.Unlock()
		s.logger.Info("shutter locked, command ignored", "device_id", s.id)
		return
	}
	var out outbox
	apply(&out)
	s.mu.Unlock()
	s.flush(out)
}

func (s *Shutter) handleLock(native any) {
	locked, ok := asBool(native)
	if !ok {
		return
	}

	s.mu.Lock()
	var out outbox
	s.locked = locked
	if locked {
		// Halt any motion in progress.
		s.moveTo(s.position, &out)
	}
	out.add("lock_status", locked)
	if !locked {
		s.evaluateSun(&out)
	}
	s.mu.Unlock()

	s.logger.Info("shutter lock changed", "device_id", s.id, "locked", locked)
	s.flush(out)
}

func (s *Shutter) handleLux(native any) {
	lux, ok := native.(float64)
	if !ok {
		return
	}

	s.mu.Lock()
	s.lux = lux
	s.haveLux = true
	var out outbox
	s.evaluateSun(&out)
	s.mu.Unlock()

	s.flush(out)
}

func (s *Shutter) handleSunEnable(native any) {
	enabled, ok := asBool(native)
	if !ok {
		return
	}

	s.mu.Lock()
	var out outbox
	s.sunEnabled = enabled
	if !enabled && s.sunActive {
		s.releaseSun(&out)
	} else {
		s.evaluateSun(&out)
	}
	s.mu.Unlock()

	s.logger.Info("sun protection enable changed", "device_id", s.id, "enabled", enabled)
	s.flush(out)
}

// evaluateSun engages or releases sun protection from the last lux value.
// Must hold s.mu.
func (s *Shutter) evaluateSun(out *outbox) {
	sun := s.settings.Sun
	if !s.sunEnabled || s.locked || !s.haveLux || !sun.Configured() {
		return
	}

	switch {
	case !s.sunActive && s.lux > sun.Upper:
		s.sunActive = true
		s.userPosition = s.target
		s.userSlat = s.slat
		s.slat = clampPercent(sun.Slat)
		s.moveTo(clampPercent(sun.Position), out)
		out.add("slat_status", s.slat)
		out.add("sun_protection_status", true)
		s.logger.Info("sun protection engaged", "device_id", s.id, "lux", s.lux)

	case s.sunActive && s.lux < sun.Lower:
		s.releaseSun(out)
	}
}

// releaseSun restores the user position. Must hold s.mu.
func (s *Shutter) releaseSun(out *outbox) {
	s.sunActive = false
	out.add("sun_protection_status", false)
	if !s.locked {
		s.slat = s.userSlat
		s.moveTo(s.userPosition, out)
		out.add("slat_status", s.slat)
	}
	s.logger.Info("sun protection released", "device_id", s.id, "lux", s.lux)
}

// moveTo sets the target. Without a travel time the shutter arrives at
// once; otherwise motionLoop steps towards it. Must hold s.mu.
func (s *Shutter) moveTo(target float64, out *outbox) {
	s.target = target
	if s.settings.TravelTime <= 0 {
		s.position = target
		out.add("position_status", s.position)
	}
}

// motionLoop advances the position by one step per tick.
func (s *Shutter) motionLoop(ctx context.Context) {
	ticker := time.NewTicker(s.settings.StepInterval)
	defer ticker.Stop()

	step := 100 * float64(s.settings.StepInterval) / float64(s.settings.TravelTime)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.position == s.target {
				s.mu.Unlock()
				continue
			}
			delta := s.target - s.position
			if math.Abs(delta) <= step {
				s.position = s.target
			} else {
				s.position += math.Copysign(step, delta)
			}
			pos := s.position
			s.mu.Unlock()

			s.publish("position_status", pos)
		}
	}
}
