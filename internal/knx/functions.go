package knx

// FunctionDef defines a canonical device function: the communication object
// a group address is bound to, its state key, default DPT, default flags,
// and accepted aliases. Device config, the address type map and the
// simulated devices all resolve function names through this table.
type FunctionDef struct {
	Name     string   // Canonical name (e.g. "position_status")
	StateKey string   // State object key (e.g. "position")
	DPT      DPT      // Default DPT
	Flags    []string // Default flags
	Aliases  []string // Accepted aliases that normalise to this name
}

// CanonicalFunctions is the exhaustive list of recognised functions.
var CanonicalFunctions = []FunctionDef{
	// ── Switching ────────────────────────────────────────────
	{Name: "switch", StateKey: "on", DPT: DPTSwitch, Flags: []string{"write"}, Aliases: []string{"on_off", "switching"}},
	{Name: "switch_status", StateKey: "on", DPT: DPTSwitch, Flags: []string{"read", "transmit"}, Aliases: []string{"switch_feedback"}},

	// ── Dimming ──────────────────────────────────────────────
	{Name: "brightness", StateKey: "level", DPT: DPTPercentage, Flags: []string{"write"}, Aliases: []string{"dim", "dimming", "level"}},
	{Name: "brightness_status", StateKey: "level", DPT: DPTPercentage, Flags: []string{"read", "transmit"}, Aliases: []string{"dim_status", "dim_feedback"}},
	{Name: "dimming_control", StateKey: "dimming_control", DPT: DPTDimmingControl, Flags: []string{"write"}, Aliases: []string{"relative_dimming"}},

	// ── Shutters ─────────────────────────────────────────────
	{Name: "position", StateKey: "position", DPT: DPTPercentage, Flags: []string{"write"}, Aliases: []string{"blind_position", "height"}},
	{Name: "position_status", StateKey: "position", DPT: DPTPercentage, Flags: []string{"read", "transmit"}, Aliases: []string{"position_feedback"}},
	{Name: "slat", StateKey: "tilt", DPT: DPTPercentage, Flags: []string{"write"}, Aliases: []string{"tilt", "lamelle"}},
	{Name: "slat_status", StateKey: "tilt", DPT: DPTPercentage, Flags: []string{"read", "transmit"}, Aliases: []string{"tilt_status", "tilt_feedback"}},
	{Name: "move", StateKey: "moving", DPT: DPTUpDown, Flags: []string{"write"}, Aliases: []string{"up_down"}},
	{Name: "stop", StateKey: "stop", DPT: DPTStep, Flags: []string{"write"}, Aliases: []string{"step", "step_stop"}},
	{Name: "blind_control", StateKey: "blind_control", DPT: DPTBlindControl, Flags: []string{"write"}, Aliases: []string{"relative_position"}},

	// ── Locking ──────────────────────────────────────────────
	{Name: "lock", StateKey: "locked", DPT: DPTEnable, Flags: []string{"write"}, Aliases: []string{"disable", "block"}},
	{Name: "lock_status", StateKey: "locked", DPT: DPTEnable, Flags: []string{"read", "transmit"}, Aliases: []string{"lock_feedback"}},

	// ── Sun protection ───────────────────────────────────────
	{Name: "lux", StateKey: "lux", DPT: DPTLux, Flags: []string{"read", "transmit"}, Aliases: []string{"light_level", "illuminance", "brightness_sensor"}},
	{Name: "sun_protection_enable", StateKey: "sun_protection_enabled", DPT: DPTEnable, Flags: []string{"write"}, Aliases: []string{"sun_enable", "automatic"}},
	{Name: "sun_protection_status", StateKey: "sun_protection", DPT: DPTBool, Flags: []string{"read", "transmit"}, Aliases: []string{"sun_status"}},

	// ── Sensors ──────────────────────────────────────────────
	{Name: "temperature", StateKey: "temperature", DPT: DPTTemperature, Flags: []string{"read", "transmit"}, Aliases: []string{"actual_temperature", "temp"}},
	{Name: "wind_speed", StateKey: "wind_speed", DPT: DPTSpeed, Flags: []string{"read", "transmit"}, Aliases: []string{"wind"}},

	// ── Generic ──────────────────────────────────────────────
	{Name: "percentage", StateKey: "percentage", DPT: DPTPercentU8, Flags: []string{"write"}, Aliases: []string{"raw"}},
}

// Lookup maps built once at init.
var (
	functionByName  map[string]*FunctionDef
	functionByAlias map[string]*FunctionDef
)

func init() {
	functionByName = make(map[string]*FunctionDef, len(CanonicalFunctions))
	functionByAlias = make(map[string]*FunctionDef, len(CanonicalFunctions)*2)

	for i := range CanonicalFunctions {
		fn := &CanonicalFunctions[i]
		functionByName[fn.Name] = fn
		for _, alias := range fn.Aliases {
			functionByAlias[alias] = fn
		}
	}
}

// LookupFunction returns the definition for a canonical name or alias.
// Returns nil if the name is not recognised.
func LookupFunction(name string) *FunctionDef {
	if fn, ok := functionByName[name]; ok {
		return fn
	}
	if fn, ok := functionByAlias[name]; ok {
		return fn
	}
	return nil
}

// NormalizeFunction resolves a function name to its canonical form.
func NormalizeFunction(name string) (canonical string, known bool) {
	if fn := LookupFunction(name); fn != nil {
		return fn.Name, true
	}
	return name, false
}

// StateKeyForFunction returns the state key for a function name, or the
// name itself for unrecognised functions.
func StateKeyForFunction(name string) string {
	if fn := LookupFunction(name); fn != nil {
		return fn.StateKey
	}
	return name
}

// DefaultDPTForFunction returns the default DPT for a function name.
// Returns "" for unrecognised functions.
func DefaultDPTForFunction(name string) DPT {
	if fn := LookupFunction(name); fn != nil {
		return fn.DPT
	}
	return ""
}

// DefaultFlagsForFunction returns the default flags for a function name.
func DefaultFlagsForFunction(name string) []string {
	if fn := LookupFunction(name); fn != nil {
		return fn.Flags
	}
	return nil
}
