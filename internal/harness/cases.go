package harness

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-knxtest/internal/device"
	"github.com/nerrad567/gray-logic-knxtest/internal/knx"
)

const (
	// percentTolerance covers the 1/255 resolution of DPT 5.001.
	percentTolerance = 0.5

	// settleWindow is how long a value must stay put in negative checks.
	settleWindow = 250 * time.Millisecond
)

// DeviceCases returns the built-in behaviour cases for each device, named
// "<type>/<id>/<behaviour>". Cases whose bindings are missing report as
// skipped when run.
func DeviceCases(devices []device.Device) []Case {
	var cases []Case
	for _, d := range devices {
		switch d.Type() {
		case device.TypeSwitch:
			cases = append(cases, switchCases(d)...)
		case device.TypeDimmer:
			cases = append(cases, dimmerCases(d)...)
		case device.TypeShutter:
			cases = append(cases, shutterCases(d)...)
		}
	}
	return cases
}

// target wraps a device with binding-level write and expect helpers.
type target struct {
	dev device.Device
}

func (t target) caseName(behaviour string) string {
	return fmt.Sprintf("%s/%s/%s", t.dev.Type(), t.dev.ID(), behaviour)
}

// require returns ErrSkip unless every function is bound.
func (t target) require(functions ...string) error {
	for _, fn := range functions {
		if _, ok := t.dev.Binding(fn); !ok {
			return fmt.Errorf("%w: %w: %s has no %s address", ErrSkip, ErrMissingBinding, t.dev.ID(), fn)
		}
	}
	return nil
}

func (t target) has(function string) bool {
	_, ok := t.dev.Binding(function)
	return ok
}

func (t target) binding(function string) (device.Binding, error) {
	b, ok := t.dev.Binding(function)
	if !ok {
		return device.Binding{}, fmt.Errorf("%w: %s has no %s address", ErrMissingBinding, t.dev.ID(), function)
	}
	return b, nil
}

func (t target) write(ctx context.Context, h *Harness, function string, native any) error {
	b, err := t.binding(function)
	if err != nil {
		return err
	}
	return h.WriteDPT(ctx, b.GA, b.DPT, native)
}

func (t target) expectBool(ctx context.Context, h *Harness, function string, want bool) error {
	b, err := t.binding(function)
	if err != nil {
		return err
	}
	if kind, err := h.TypeMap().KindFor(b.GA.String()); err == nil && kind == knx.KindBool {
		return h.ExpectTyped(ctx, b.GA, knx.TypedBool(want), 0)
	}
	return h.ExpectBool(ctx, b.GA, want)
}

func (t target) expectPercent(ctx context.Context, h *Harness, function string, want float64) error {
	b, err := t.binding(function)
	if err != nil {
		return err
	}
	if kind, err := h.TypeMap().KindFor(b.GA.String()); err == nil && kind == knx.KindPercent {
		return h.ExpectTyped(ctx, b.GA, knx.TypedPercent(knx.Percent(want)), percentTolerance)
	}
	return h.ExpectPercent(ctx, b.GA, want, percentTolerance)
}

func (t target) steadyPercent(ctx context.Context, h *Harness, function string, want float64) error {
	b, err := t.binding(function)
	if err != nil {
		return err
	}
	return h.ExpectSteady(ctx, b.GA, PercentWithin(want, percentTolerance), settleWindow)
}

// ── Switch ───────────────────────────────────────────────────

func switchCases(d device.Device) []Case {
	t := target{dev: d}
	off := func(ctx context.Context, h *Harness) error { return t.write(ctx, h, "switch", false) }

	return []Case{
		FuncCase{
			CaseName: t.caseName("on-off"),
			SetupFn: func(ctx context.Context, h *Harness) error {
				if err := t.require("switch", "switch_status"); err != nil {
					return err
				}
				return off(ctx, h)
			},
			RunFn: func(ctx context.Context, h *Harness) error {
				for _, on := range []bool{true, false} {
					if err := t.write(ctx, h, "switch", on); err != nil {
						return err
					}
					if err := t.expectBool(ctx, h, "switch_status", on); err != nil {
						return err
					}
				}
				return nil
			},
			TeardownFn: off,
		},
	}
}

// ── Dimmer ───────────────────────────────────────────────────

func dimmerCases(d device.Device) []Case {
	t := target{dev: d}
	dark := func(ctx context.Context, h *Harness) error { return t.write(ctx, h, "brightness", 0.0) }
	setup := func(functions ...string) StepFunc {
		return func(ctx context.Context, h *Harness) error {
			if err := t.require(functions...); err != nil {
				return err
			}
			return dark(ctx, h)
		}
	}

	return []Case{
		FuncCase{
			CaseName: t.caseName("percentage"),
			SetupFn:  setup("brightness", "brightness_status"),
			RunFn: func(ctx context.Context, h *Harness) error {
				if err := t.write(ctx, h, "brightness", 66.0); err != nil {
					return err
				}
				if err := t.expectPercent(ctx, h, "brightness_status", 66); err != nil {
					return err
				}
				if t.has("switch_status") {
					return t.expectBool(ctx, h, "switch_status", true)
				}
				return nil
			},
			TeardownFn: dark,
		},
		FuncCase{
			CaseName: t.caseName("on-restores-level"),
			SetupFn:  setup("switch", "brightness", "brightness_status"),
			RunFn: func(ctx context.Context, h *Harness) error {
				steps := []struct {
					function string
					value    any
					want     float64
				}{
					{"brightness", 40.0, 40},
					{"switch", false, 0},
					{"switch", true, 40},
				}
				for _, s := range steps {
					if err := t.write(ctx, h, s.function, s.value); err != nil {
						return err
					}
					if err := t.expectPercent(ctx, h, "brightness_status", s.want); err != nil {
						return fmt.Errorf("after %s=%v: %w", s.function, s.value, err)
					}
				}
				return nil
			},
			TeardownFn: dark,
		},
		FuncCase{
			CaseName: t.caseName("zero-is-off"),
			SetupFn:  setup("brightness", "switch_status"),
			RunFn: func(ctx context.Context, h *Harness) error {
				if err := t.write(ctx, h, "brightness", 50.0); err != nil {
					return err
				}
				if err := t.expectBool(ctx, h, "switch_status", true); err != nil {
					return err
				}
				if err := t.write(ctx, h, "brightness", 0.0); err != nil {
					return err
				}
				return t.expectBool(ctx, h, "switch_status", false)
			},
			TeardownFn: dark,
		},
	}
}

// ── Shutter ──────────────────────────────────────────────────

type shutterTarget struct {
	target
	settings device.ShutterSettings
}

// harness scales the wait timeout by the simulated travel time.
func (s shutterTarget) harness(h *Harness) *Harness {
	return h.Within(h.Timeout() + s.settings.TravelTime)
}

func (s shutterTarget) sunUsable() error {
	sun := s.settings.Sun
	if !sun.Configured() || sun.Lower <= 0 {
		return fmt.Errorf("%w: %s has no sun protection thresholds", ErrSkip, s.dev.ID())
	}
	if !sun.Enabled && !s.has("sun_protection_enable") {
		return fmt.Errorf("%w: sun protection disabled for %s", ErrSkip, s.dev.ID())
	}
	return s.require("lux", "position_status")
}

func (s shutterTarget) lowLux() float64  { return s.settings.Sun.Lower / 2 }
func (s shutterTarget) highLux() float64 { return s.settings.Sun.Upper * 1.5 }
func (s shutterTarget) midLux() float64 {
	return (s.settings.Sun.Upper + s.settings.Sun.Lower) / 2
}

// enableSun switches sun protection on when the device has an enable input.
func (s shutterTarget) enableSun(ctx context.Context, h *Harness) error {
	if !s.has("sun_protection_enable") {
		return nil
	}
	return s.write(ctx, h, "sun_protection_enable", true)
}

// reset unlocks, releases sun protection and opens the shutter.
func (s shutterTarget) reset(ctx context.Context, h *Harness) error {
	h = s.harness(h)
	if s.has("lock") {
		if err := s.write(ctx, h, "lock", false); err != nil {
			return err
		}
	}
	if s.has("lux") && s.settings.Sun.Lower > 0 {
		if err := s.write(ctx, h, "lux", s.lowLux()); err != nil {
			return err
		}
	}
	if s.has("sun_protection_enable") {
		if err := s.write(ctx, h, "sun_protection_enable", s.settings.Sun.Enabled); err != nil {
			return err
		}
	}
	if err := s.write(ctx, h, "position", 0.0); err != nil {
		return err
	}
	if s.has("position_status") {
		return s.expectPercent(ctx, h, "position_status", 0)
	}
	return nil
}

func (s shutterTarget) setup(check func() error) StepFunc {
	return func(ctx context.Context, h *Harness) error {
		if err := check(); err != nil {
			return err
		}
		return s.reset(ctx, h)
	}
}

func shutterCases(d device.Device) []Case {
	s := shutterTarget{target: target{dev: d}}
	if sh, ok := d.(*device.Shutter); ok {
		s.settings = sh.Settings()
	}
	sun := s.settings.Sun

	return []Case{
		FuncCase{
			CaseName: s.caseName("position"),
			SetupFn:  s.setup(func() error { return s.require("position", "position_status") }),
			RunFn: func(ctx context.Context, h *Harness) error {
				h = s.harness(h)
				for _, p := range []float64{75, 0} {
					if err := s.write(ctx, h, "position", p); err != nil {
						return err
					}
					if err := s.expectPercent(ctx, h, "position_status", p); err != nil {
						return err
					}
				}
				return nil
			},
			TeardownFn: s.reset,
		},
		FuncCase{
			CaseName: s.caseName("lock-blocks-movement"),
			SetupFn:  s.setup(func() error { return s.require("lock", "position", "position_status") }),
			RunFn: func(ctx context.Context, h *Harness) error {
				h = s.harness(h)
				if err := s.write(ctx, h, "lock", true); err != nil {
					return err
				}
				if s.has("lock_status") {
					if err := s.expectBool(ctx, h, "lock_status", true); err != nil {
						return err
					}
				}
				if err := s.write(ctx, h, "position", 100.0); err != nil {
					return err
				}
				if err := s.steadyPercent(ctx, h, "position_status", 0); err != nil {
					return fmt.Errorf("moved while locked: %w", err)
				}

				if err := s.write(ctx, h, "lock", false); err != nil {
					return err
				}
				if err := s.write(ctx, h, "position", 100.0); err != nil {
					return err
				}
				return s.expectPercent(ctx, h, "position_status", 100)
			},
			TeardownFn: s.reset,
		},
		FuncCase{
			CaseName: s.caseName("sun-protection"),
			SetupFn:  s.setup(s.sunUsable),
			RunFn: func(ctx context.Context, h *Harness) error {
				h = s.harness(h)
				if err := s.enableSun(ctx, h); err != nil {
					return err
				}

				if err := s.write(ctx, h, "lux", s.highLux()); err != nil {
					return err
				}
				if err := s.expectPercent(ctx, h, "position_status", sun.Position); err != nil {
					return fmt.Errorf("not engaged above %.0f lux: %w", sun.Upper, err)
				}
				if s.has("sun_protection_status") {
					if err := s.expectBool(ctx, h, "sun_protection_status", true); err != nil {
						return err
					}
				}

				// Between the thresholds nothing changes.
				if err := s.write(ctx, h, "lux", s.midLux()); err != nil {
					return err
				}
				if err := s.steadyPercent(ctx, h, "position_status", sun.Position); err != nil {
					return fmt.Errorf("released inside hysteresis band: %w", err)
				}

				if err := s.write(ctx, h, "lux", s.lowLux()); err != nil {
					return err
				}
				if err := s.expectPercent(ctx, h, "position_status", 0); err != nil {
					return fmt.Errorf("not released below %.0f lux: %w", sun.Lower, err)
				}
				if s.has("sun_protection_status") {
					return s.expectBool(ctx, h, "sun_protection_status", false)
				}
				return nil
			},
			TeardownFn: s.reset,
		},
		FuncCase{
			CaseName: s.caseName("sun-ignored-while-locked"),
			SetupFn: s.setup(func() error {
				if err := s.sunUsable(); err != nil {
					return err
				}
				return s.require("lock")
			}),
			RunFn: func(ctx context.Context, h *Harness) error {
				h = s.harness(h)
				if err := s.enableSun(ctx, h); err != nil {
					return err
				}
				if err := s.write(ctx, h, "lock", true); err != nil {
					return err
				}
				if err := s.write(ctx, h, "lux", s.highLux()); err != nil {
					return err
				}
				if err := s.steadyPercent(ctx, h, "position_status", 0); err != nil {
					return fmt.Errorf("sun protection moved a locked shutter: %w", err)
				}

				// Unlocking re-evaluates the last brightness.
				if err := s.write(ctx, h, "lock", false); err != nil {
					return err
				}
				return s.expectPercent(ctx, h, "position_status", sun.Position)
			},
			TeardownFn: s.reset,
		},
	}
}
