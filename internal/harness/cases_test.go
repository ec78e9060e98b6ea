package harness

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-knxtest/internal/bus"
	"github.com/nerrad567/gray-logic-knxtest/internal/device"
	"github.com/nerrad567/gray-logic-knxtest/internal/infrastructure/config"
)

func deviceConfigs(travel time.Duration) []config.DeviceConfig {
	return []config.DeviceConfig{
		{
			ID:   "hall",
			Type: "switch",
			Addresses: map[string]config.AddressConfig{
				"switch":        {GA: "1/0/1"},
				"switch_status": {GA: "1/0/2"},
			},
		},
		{
			ID:   "lounge",
			Type: "dimmer",
			Addresses: map[string]config.AddressConfig{
				"switch":            {GA: "1/1/1"},
				"brightness":        {GA: "1/1/2"},
				"switch_status":     {GA: "1/1/4"},
				"brightness_status": {GA: "1/1/5"},
			},
		},
		{
			ID:   "blind",
			Type: "shutter",
			Addresses: map[string]config.AddressConfig{
				"position":              {GA: "2/1/1"},
				"lock":                  {GA: "2/1/3"},
				"lux":                   {GA: "2/1/5"},
				"sun_protection_enable": {GA: "2/1/6"},
				"position_status":       {GA: "2/1/17"},
				"lock_status":           {GA: "2/1/20"},
				"sun_protection_status": {GA: "2/1/21"},
			},
			Shutter: config.ShutterConfig{
				TravelTime:   travel,
				StepInterval: 5 * time.Millisecond,
				SunProtection: config.SunProtectionConfig{
					Enabled:        true,
					UpperThreshold: 40000,
					LowerThreshold: 20000,
					Position:       80,
				},
			},
		},
	}
}

func startDevices(t *testing.T, cfgs []config.DeviceConfig) (*device.Registry, *bus.Memory) {
	t.Helper()
	b := bus.NewMemory()
	r := device.NewRegistry()
	require.NoError(t, r.LoadConfig(cfgs))
	require.NoError(t, r.Start(context.Background(), b))
	t.Cleanup(r.Stop)
	return r, b
}

func TestDeviceCases_Names(t *testing.T) {
	r := device.NewRegistry()
	require.NoError(t, r.LoadConfig(deviceConfigs(0)))

	s := NewSuite("names", New(bus.NewMemory()))
	s.Add(DeviceCases(r.List())...)

	assert.Equal(t, []string{
		"switch/hall/on-off",
		"dimmer/lounge/percentage",
		"dimmer/lounge/on-restores-level",
		"dimmer/lounge/zero-is-off",
		"shutter/blind/position",
		"shutter/blind/lock-blocks-movement",
		"shutter/blind/sun-protection",
		"shutter/blind/sun-ignored-while-locked",
	}, s.Cases())
}

func TestDeviceCases_AllPass(t *testing.T) {
	r, b := startDevices(t, deviceConfigs(0))

	h := New(b, WithTimeout(time.Second))
	s := NewSuite("devices", h)
	s.Add(DeviceCases(r.List())...)

	report := s.Run(context.Background())
	for _, res := range report.Results {
		assert.Equal(t, StatusPassed, res.Status, "%s: %s", res.Name, res.Error)
	}
	assert.True(t, report.OK())
	assert.Equal(t, 8, report.Passed)
}

func TestDeviceCases_WithTravelTime(t *testing.T) {
	if testing.Short() {
		t.Skip("simulated travel in -short mode")
	}
	r, b := startDevices(t, deviceConfigs(100*time.Millisecond))

	s := NewSuite("travel", New(b, WithTimeout(time.Second)), WithFilter("shutter/*"))
	s.Add(DeviceCases(r.List())...)

	report := s.Run(context.Background())
	for _, res := range report.Results {
		if strings.HasPrefix(res.Name, "shutter/") {
			assert.Equal(t, StatusPassed, res.Status, "%s: %s", res.Name, res.Error)
		}
	}
	assert.True(t, report.OK())
}

func TestDeviceCases_MissingBindingsSkip(t *testing.T) {
	cfgs := []config.DeviceConfig{
		{
			ID:        "bare",
			Type:      "shutter",
			Addresses: map[string]config.AddressConfig{"position": {GA: "3/0/1"}},
		},
	}
	r, b := startDevices(t, cfgs)

	s := NewSuite("bare", New(b, WithTimeout(100*time.Millisecond)))
	s.Add(DeviceCases(r.List())...)

	report := s.Run(context.Background())
	assert.True(t, report.OK())
	assert.Equal(t, 4, report.Skipped)

	res, _ := report.Result("shutter/bare/position")
	assert.Contains(t, res.Error, "position_status")
}

func TestDeviceCases_UnresponsiveDeviceFails(t *testing.T) {
	r := device.NewRegistry()
	require.NoError(t, r.LoadConfig(deviceConfigs(0)[:1]))

	// Never attached, so nobody answers on the status address.
	b := bus.NewMemory()
	s := NewSuite("dead", New(b, WithTimeout(50*time.Millisecond)))
	s.Add(DeviceCases(r.List())...)

	report := s.Run(context.Background())
	res, ok := report.Result("switch/hall/on-off")
	require.True(t, ok)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Contains(t, res.Error, "1/0/2")
}
