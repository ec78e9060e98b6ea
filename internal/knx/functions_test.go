package knx

import "testing"

func TestNormalizeFunction_CanonicalNames(t *testing.T) {
	for _, fn := range CanonicalFunctions {
		canon, known := NormalizeFunction(fn.Name)
		if !known {
			t.Errorf("NormalizeFunction(%q) not recognised", fn.Name)
		}
		if canon != fn.Name {
			t.Errorf("NormalizeFunction(%q) = %q, want %q", fn.Name, canon, fn.Name)
		}
	}
}

func TestNormalizeFunction_Aliases(t *testing.T) {
	tests := []struct {
		alias     string
		wantCanon string
	}{
		{"on_off", "switch"},
		{"switch_feedback", "switch_status"},
		{"dim", "brightness"},
		{"dim_status", "brightness_status"},
		{"height", "position"},
		{"position_feedback", "position_status"},
		{"tilt", "slat"},
		{"up_down", "move"},
		{"step", "stop"},
		{"block", "lock"},
		{"lock_feedback", "lock_status"},
		{"illuminance", "lux"},
		{"automatic", "sun_protection_enable"},
	}

	for _, tt := range tests {
		canon, known := NormalizeFunction(tt.alias)
		if !known {
			t.Errorf("NormalizeFunction(%q) not recognised", tt.alias)
			continue
		}
		if canon != tt.wantCanon {
			t.Errorf("NormalizeFunction(%q) = %q, want %q", tt.alias, canon, tt.wantCanon)
		}
	}
}

func TestNormalizeFunction_Unknown(t *testing.T) {
	canon, known := NormalizeFunction("hvac_mode")
	if known {
		t.Error("NormalizeFunction(hvac_mode) should not be recognised")
	}
	if canon != "hvac_mode" {
		t.Errorf("NormalizeFunction() = %q, want input echoed", canon)
	}
}

func TestAliasesAreUnique(t *testing.T) {
	seen := make(map[string]string)
	for _, fn := range CanonicalFunctions {
		if _, clash := seen[fn.Name]; clash {
			t.Errorf("canonical name %q duplicated", fn.Name)
		}
		seen[fn.Name] = fn.Name
	}
	for _, fn := range CanonicalFunctions {
		for _, alias := range fn.Aliases {
			if owner, clash := seen[alias]; clash && owner != fn.Name {
				t.Errorf("alias %q of %q clashes with %q", alias, fn.Name, owner)
			}
			seen[alias] = fn.Name
		}
	}
}

func TestDefaultsForFunction(t *testing.T) {
	if got := DefaultDPTForFunction("position_status"); got != DPTPercentage {
		t.Errorf("DefaultDPTForFunction(position_status) = %q, want 5.001", got)
	}
	if got := DefaultDPTForFunction("lock_feedback"); got != DPTEnable {
		t.Errorf("DefaultDPTForFunction(lock_feedback) = %q, want 1.003", got)
	}
	if got := DefaultDPTForFunction("unknown"); got != "" {
		t.Errorf("DefaultDPTForFunction(unknown) = %q, want empty", got)
	}
	if got := StateKeyForFunction("brightness_status"); got != "level" {
		t.Errorf("StateKeyForFunction(brightness_status) = %q, want level", got)
	}
	if got := StateKeyForFunction("custom"); got != "custom" {
		t.Errorf("StateKeyForFunction(custom) = %q, want custom", got)
	}
	if flags := DefaultFlagsForFunction("switch_status"); len(flags) != 2 {
		t.Errorf("DefaultFlagsForFunction(switch_status) = %v, want [read transmit]", flags)
	}
}
