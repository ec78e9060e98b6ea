package device

import (
	"fmt"

	"github.com/nerrad567/gray-logic-knxtest/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-knxtest/internal/knx"
)

// requiredFunctions lists, per type, functions of which at least one must
// be bound for the device to be controllable.
var requiredFunctions = map[Type][]string{
	TypeSwitch:  {"switch"},
	TypeDimmer:  {"switch", "brightness"},
	TypeShutter: {"position", "move"},
}

// FromConfig builds a device from its configuration entry.
func FromConfig(cfg config.DeviceConfig, logger Logger) (Device, error) {
	typ, err := ParseType(cfg.Type)
	if err != nil {
		return nil, fmt.Errorf("device %q: %w", cfg.ID, err)
	}

	bindings, err := BuildBindings(cfg.Addresses)
	if err != nil {
		return nil, fmt.Errorf("device %q: %w", cfg.ID, err)
	}

	if !hasAny(bindings, requiredFunctions[typ]) {
		return nil, fmt.Errorf("device %q: %w: %s needs one of %v", cfg.ID, ErrInvalidAddress, typ, requiredFunctions[typ])
	}

	switch typ {
	case TypeSwitch:
		return NewSwitch(cfg.ID, cfg.Name, bindings, logger), nil
	case TypeDimmer:
		return NewDimmer(cfg.ID, cfg.Name, bindings, logger), nil
	default:
		return NewShutter(cfg.ID, cfg.Name, bindings, shutterSettings(cfg.Shutter), logger), nil
	}
}

// BuildBindings resolves function names, group addresses and DPTs.
// Aliases are normalised; a missing DPT falls back to the function default.
func BuildBindings(addresses map[string]config.AddressConfig) (map[string]Binding, error) {
	bindings := make(map[string]Binding, len(addresses))

	for name, addr := range addresses {
		fn := knx.LookupFunction(name)
		if fn == nil {
			return nil, fmt.Errorf("%w: unknown function %q", ErrInvalidAddress, name)
		}

		ga, err := knx.ParseGroupAddress(addr.GA)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidAddress, fn.Name, err)
		}

		dpt := fn.DPT
		if addr.DPT != "" {
			dpt = knx.DPT(addr.DPT)
		}
		if _, err := dpt.Main(); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidAddress, fn.Name, err)
		}

		flags := addr.Flags
		if len(flags) == 0 {
			flags = fn.Flags
		}

		bindings[fn.Name] = Binding{
			Function: fn.Name,
			GA:       ga,
			DPT:      dpt,
			Flags:    append([]string(nil), flags...),
		}
	}

	return bindings, nil
}

func shutterSettings(cfg config.ShutterConfig) ShutterSettings {
	return ShutterSettings{
		TravelTime:   cfg.TravelTime,
		StepInterval: cfg.StepInterval,
		Sun: SunProtection{
			Enabled:  cfg.SunProtection.Enabled,
			Upper:    cfg.SunProtection.UpperThreshold,
			Lower:    cfg.SunProtection.LowerThreshold,
			Position: cfg.SunProtection.Position,
			Slat:     cfg.SunProtection.Slat,
		},
	}
}

func hasAny(bindings map[string]Binding, functions []string) bool {
	for _, f := range functions {
		if _, ok := bindings[f]; ok {
			return true
		}
	}
	return false
}
