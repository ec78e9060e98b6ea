package device

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-knxtest/internal/bus"
	"github.com/nerrad567/gray-logic-knxtest/internal/knx"
)

// bindings builds a binding table from function → address pairs using the
// default DPT of each function.
func bindings(t *testing.T, pairs ...string) map[string]Binding {
	t.Helper()
	require.Zero(t, len(pairs)%2, "pairs must be function/address")
	out := make(map[string]Binding)
	for i := 0; i < len(pairs); i += 2 {
		fn := knx.LookupFunction(pairs[i])
		require.NotNil(t, fn, "unknown function %s", pairs[i])
		out[fn.Name] = Binding{Function: fn.Name, GA: knx.MustParseGroupAddress(pairs[i+1]), DPT: fn.DPT}
	}
	return out
}

type fixture struct {
	t   *testing.T
	ctx context.Context
	bus *bus.Memory
}

func newFixture(t *testing.T) *fixture {
	return &fixture{t: t, ctx: bus.WithSource(context.Background(), "test"), bus: bus.NewMemory()}
}

func (f *fixture) attach(d Device) {
	f.t.Helper()
	require.NoError(f.t, d.Attach(context.Background(), f.bus))
	f.t.Cleanup(d.Detach)
}

func (f *fixture) write(ga string, v knx.Value) {
	f.t.Helper()
	require.NoError(f.t, f.bus.Write(f.ctx, knx.MustParseGroupAddress(ga), v.Raw()))
}

func (f *fixture) read(ga string) knx.Value {
	f.t.Helper()
	data, err := f.bus.Read(f.ctx, knx.MustParseGroupAddress(ga))
	require.NoError(f.t, err)
	return knx.NewValue(data)
}

func (f *fixture) percent(ga string) float64 {
	f.t.Helper()
	return float64(f.read(ga).AsPercent())
}

func (f *fixture) boolean(ga string) bool {
	f.t.Helper()
	return f.read(ga).AsBoolean()
}

func lux(t *testing.T, v float64) knx.Value {
	t.Helper()
	val, err := knx.EncodeForDPT(knx.DPTLux, v)
	require.NoError(t, err)
	return val
}

// =============================================================================
// Switch
// =============================================================================

func TestSwitch_OnOff(t *testing.T) {
	f := newFixture(t)
	sw := NewSwitch("hall", "Hall light", bindings(t, "switch", "1/0/1", "switch_status", "1/0/2"), nil)
	f.attach(sw)

	// Initial status is published on attach.
	assert.False(t, f.boolean("1/0/2"))

	f.write("1/0/1", knx.FromBool(true))
	assert.True(t, f.boolean("1/0/2"))
	assert.True(t, sw.On())
	assert.Equal(t, State{"on": true}, sw.State())

	f.write("1/0/1", knx.FromBool(false))
	assert.False(t, f.boolean("1/0/2"))
}

func TestSwitch_SharedAddressDoesNotLoop(t *testing.T) {
	f := newFixture(t)
	sw := NewSwitch("s", "", bindings(t, "switch", "1/0/1", "switch_status", "1/0/1"), nil)
	f.attach(sw)

	f.write("1/0/1", knx.FromBool(true))

	// The command plus one status echo, no feedback loop.
	assert.Len(t, f.bus.HistoryFor(knx.MustParseGroupAddress("1/0/1")), 3)
	assert.True(t, sw.On())
}

func TestSwitch_DetachStopsHandling(t *testing.T) {
	f := newFixture(t)
	sw := NewSwitch("s", "", bindings(t, "switch", "1/0/1", "switch_status", "1/0/2"), nil)
	require.NoError(t, sw.Attach(context.Background(), f.bus))

	assert.ErrorIs(t, sw.Attach(context.Background(), f.bus), ErrAlreadyAttached)

	sw.Detach()
	f.write("1/0/1", knx.FromBool(true))
	assert.False(t, sw.On())
}

func TestSwitch_ParentContextCancelDetaches(t *testing.T) {
	f := newFixture(t)
	sw := NewSwitch("s", "", bindings(t, "switch", "1/0/1"), nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, sw.Attach(ctx, f.bus))
	cancel()
	sw.Detach()

	f.write("1/0/1", knx.FromBool(true))
	assert.False(t, sw.On())
}

// =============================================================================
// Dimmer
// =============================================================================

func newTestDimmer(t *testing.T, f *fixture) *Dimmer {
	d := NewDimmer("lounge", "", bindings(t,
		"switch", "1/1/1",
		"brightness", "1/1/2",
		"dimming_control", "1/1/3",
		"switch_status", "1/1/4",
		"brightness_status", "1/1/5",
	), nil)
	f.attach(d)
	return d
}

func TestDimmer_Percentage(t *testing.T) {
	f := newFixture(t)
	d := newTestDimmer(t, f)

	f.write("1/1/2", knx.FromPercent(50))

	assert.InDelta(t, 50, f.percent("1/1/5"), 0.4)
	assert.True(t, f.boolean("1/1/4"))
	level, on := d.Level()
	assert.InDelta(t, 50, level, 0.4)
	assert.True(t, on)
}

func TestDimmer_SwitchOnRestoresLevel(t *testing.T) {
	f := newFixture(t)
	newTestDimmer(t, f)

	// First switch-on uses the initial level.
	f.write("1/1/1", knx.FromBool(true))
	assert.InDelta(t, 100, f.percent("1/1/5"), 0.4)

	f.write("1/1/2", knx.FromPercent(30))
	f.write("1/1/1", knx.FromBool(false))
	assert.Equal(t, 0.0, f.percent("1/1/5"))
	assert.False(t, f.boolean("1/1/4"))

	f.write("1/1/1", knx.FromBool(true))
	assert.InDelta(t, 30, f.percent("1/1/5"), 0.4)
	assert.True(t, f.boolean("1/1/4"))
}

func TestDimmer_ZeroBrightnessIsOff(t *testing.T) {
	f := newFixture(t)
	d := newTestDimmer(t, f)

	f.write("1/1/2", knx.FromPercent(70))
	f.write("1/1/2", knx.FromPercent(0))

	assert.False(t, f.boolean("1/1/4"))
	assert.Equal(t, 0.0, f.percent("1/1/5"))
	assert.InDelta(t, 70, d.State()["last_level"].(float64), 0.4)
}

func TestDimmer_DimmingControl(t *testing.T) {
	f := newFixture(t)
	newTestDimmer(t, f)

	step := func(increase bool, code uint8) knx.Value {
		v, err := knx.EncodeForDPT(knx.DPTDimmingControl, knx.Step{Increase: increase, Code: code})
		require.NoError(t, err)
		return v
	}

	f.write("1/1/3", step(true, 2)) // +50%
	assert.InDelta(t, 50, f.percent("1/1/5"), 0.4)

	f.write("1/1/3", step(true, 0)) // stop changes nothing
	assert.InDelta(t, 50, f.percent("1/1/5"), 0.4)

	f.write("1/1/3", step(false, 1)) // -100%
	assert.Equal(t, 0.0, f.percent("1/1/5"))
	assert.False(t, f.boolean("1/1/4"))
}

// =============================================================================
// Shutter
// =============================================================================

const (
	gaPosition      = "2/1/1"
	gaMove          = "2/1/2"
	gaStop          = "2/1/3"
	gaLock          = "2/1/4"
	gaSlat          = "2/1/5"
	gaSunEnable     = "2/1/6"
	gaPositionState = "2/1/17"
	gaSlatState     = "2/1/18"
	gaSunState      = "2/1/19"
	gaLockState     = "2/1/20"
	gaLux           = "2/1/30"
)

func shutterBindings(t *testing.T) map[string]Binding {
	return bindings(t,
		"position", gaPosition,
		"move", gaMove,
		"stop", gaStop,
		"lock", gaLock,
		"slat", gaSlat,
		"sun_protection_enable", gaSunEnable,
		"position_status", gaPositionState,
		"slat_status", gaSlatState,
		"sun_protection_status", gaSunState,
		"lock_status", gaLockState,
		"lux", gaLux,
	)
}

func sunSettings() ShutterSettings {
	return ShutterSettings{Sun: SunProtection{
		Enabled:  true,
		Upper:    40000,
		Lower:    20000,
		Position: 80,
		Slat:     60,
	}}
}

func TestShutter_Position(t *testing.T) {
	f := newFixture(t)
	s := NewShutter("blind", "", shutterBindings(t), ShutterSettings{}, nil)
	f.attach(s)

	f.write(gaPosition, knx.FromPercent(66))
	assert.InDelta(t, 66, f.percent(gaPositionState), 0.4)

	f.write(gaMove, knx.FromBool(true))
	assert.InDelta(t, 100, f.percent(gaPositionState), 0.4)

	f.write(gaMove, knx.FromBool(false))
	assert.Equal(t, 0.0, f.percent(gaPositionState))

	f.write(gaSlat, knx.FromPercent(25))
	assert.InDelta(t, 25, f.percent(gaSlatState), 0.4)
}

func TestShutter_TypedStatusDecoding(t *testing.T) {
	f := newFixture(t)
	s := NewShutter("blind", "", shutterBindings(t), ShutterSettings{}, nil)
	f.attach(s)

	f.write(gaLock, knx.FromBool(true))

	// The default address table reads sub 17 as a percentage and sub 20 as a lock flag.
	typed, err := f.read(gaLockState).TypedValue(gaLockState)
	require.NoError(t, err)
	locked, ok := typed.Bool()
	require.True(t, ok)
	assert.True(t, locked)

	typed, err = f.read(gaPositionState).TypedValue(gaPositionState)
	require.NoError(t, err)
	_, ok = typed.Percent()
	assert.True(t, ok)
}

func TestShutter_LockBlocksMovement(t *testing.T) {
	f := newFixture(t)
	s := NewShutter("blind", "", shutterBindings(t), ShutterSettings{}, nil)
	f.attach(s)

	f.write(gaPosition, knx.FromPercent(20))
	f.write(gaLock, knx.FromBool(true))
	assert.True(t, f.boolean(gaLockState))

	f.write(gaPosition, knx.FromPercent(90))
	f.write(gaMove, knx.FromBool(true))
	f.write(gaSlat, knx.FromPercent(90))
	assert.InDelta(t, 20, f.percent(gaPositionState), 0.4)
	assert.True(t, s.Locked())

	f.write(gaLock, knx.FromBool(false))
	assert.False(t, f.boolean(gaLockState))
	f.write(gaPosition, knx.FromPercent(90))
	assert.InDelta(t, 90, f.percent(gaPositionState), 0.4)
}

func TestShutter_SunProtectionHysteresis(t *testing.T) {
	f := newFixture(t)
	s := NewShutter("blind", "", shutterBindings(t), sunSettings(), nil)
	f.attach(s)

	f.write(gaPosition, knx.FromPercent(20))

	// Between thresholds: nothing happens.
	f.write(gaLux, lux(t, 30000))
	assert.False(t, f.boolean(gaSunState))
	assert.InDelta(t, 20, f.percent(gaPositionState), 0.4)

	// Above upper: engage.
	f.write(gaLux, lux(t, 50000))
	assert.True(t, f.boolean(gaSunState))
	assert.InDelta(t, 80, f.percent(gaPositionState), 0.4)
	assert.InDelta(t, 60, f.percent(gaSlatState), 0.4)

	// Falling back between thresholds keeps protection.
	f.write(gaLux, lux(t, 30000))
	assert.True(t, s.SunProtectionActive())
	assert.InDelta(t, 80, f.percent(gaPositionState), 0.4)

	// Below lower: release to the user position.
	f.write(gaLux, lux(t, 10000))
	assert.False(t, f.boolean(gaSunState))
	assert.InDelta(t, 20, f.percent(gaPositionState), 0.4)
}

func TestShutter_SunProtectionIgnoredWhileLocked(t *testing.T) {
	f := newFixture(t)
	s := NewShutter("blind", "", shutterBindings(t), sunSettings(), nil)
	f.attach(s)

	f.write(gaPosition, knx.FromPercent(10))
	f.write(gaLock, knx.FromBool(true))
	f.write(gaLux, lux(t, 50000))

	assert.False(t, f.boolean(gaSunState))
	assert.InDelta(t, 10, f.percent(gaPositionState), 0.4)

	// Unlocking re-evaluates with the last brightness.
	f.write(gaLock, knx.FromBool(false))
	assert.True(t, f.boolean(gaSunState))
	assert.InDelta(t, 80, f.percent(gaPositionState), 0.4)
	assert.True(t, s.SunProtectionActive())
}

func TestShutter_SunProtectionDisable(t *testing.T) {
	f := newFixture(t)
	s := NewShutter("blind", "", shutterBindings(t), sunSettings(), nil)
	f.attach(s)

	f.write(gaPosition, knx.FromPercent(0))
	f.write(gaLux, lux(t, 50000))
	require.True(t, f.boolean(gaSunState))

	f.write(gaSunEnable, knx.FromBool(false))
	assert.False(t, f.boolean(gaSunState))
	assert.Equal(t, 0.0, f.percent(gaPositionState))

	// Disabled: bright light does nothing.
	f.write(gaLux, lux(t, 60000))
	assert.False(t, f.boolean(gaSunState))

	// Re-enabling evaluates immediately.
	f.write(gaSunEnable, knx.FromBool(true))
	assert.True(t, f.boolean(gaSunState))
	assert.Equal(t, true, s.State()["sun_protection_enabled"])
}

func TestShutter_ManualCommandDuringSunProtection(t *testing.T) {
	f := newFixture(t)
	s := NewShutter("blind", "", shutterBindings(t), sunSettings(), nil)
	f.attach(s)

	f.write(gaLux, lux(t, 50000))
	f.write(gaPosition, knx.FromPercent(40))
	assert.InDelta(t, 40, f.percent(gaPositionState), 0.4)

	f.write(gaLux, lux(t, 1000))
	assert.InDelta(t, 40, f.percent(gaPositionState), 0.4)
	assert.False(t, s.SunProtectionActive())
}

func TestShutter_TravelSimulation(t *testing.T) {
	f := newFixture(t)
	settings := ShutterSettings{TravelTime: 200 * time.Millisecond, StepInterval: 10 * time.Millisecond}
	s := NewShutter("blind", "", shutterBindings(t), settings, nil)
	f.attach(s)

	f.write(gaPosition, knx.FromPercent(100))

	_, target := s.Position()
	assert.InDelta(t, 100, target, 0.4)

	require.Eventually(t, func() bool {
		current, target := s.Position()
		return current == target
	}, 2*time.Second, 10*time.Millisecond)

	assert.InDelta(t, 100, f.percent(gaPositionState), 0.4)
	// Intermediate positions were reported on the way.
	assert.Greater(t, len(f.bus.HistoryFor(knx.MustParseGroupAddress(gaPositionState))), 3)
}

func TestShutter_StopHaltsTravel(t *testing.T) {
	f := newFixture(t)
	settings := ShutterSettings{TravelTime: time.Second, StepInterval: 10 * time.Millisecond}
	s := NewShutter("blind", "", shutterBindings(t), settings, nil)
	f.attach(s)

	f.write(gaMove, knx.FromBool(true))
	require.Eventually(t, func() bool {
		current, _ := s.Position()
		return current > 10
	}, 2*time.Second, 5*time.Millisecond)

	f.write(gaStop, knx.FromBool(true))
	current, target := s.Position()
	assert.Equal(t, current, target)
	assert.Less(t, current, 100.0)
}

func TestShutter_BlindControlStep(t *testing.T) {
	f := newFixture(t)
	b := shutterBindings(t)
	for k, v := range bindings(t, "blind_control", "2/1/7") {
		b[k] = v
	}
	s := NewShutter("blind", "", b, ShutterSettings{}, nil)
	f.attach(s)

	v, err := knx.EncodeForDPT(knx.DPTBlindControl, knx.Step{Increase: true, Code: 3})
	require.NoError(t, err)
	f.write("2/1/7", v)

	assert.InDelta(t, 25, f.percent(gaPositionState), 0.4)
}
