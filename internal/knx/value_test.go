package knx

import (
	"errors"
	"math"
	"strings"
	"testing"
)

// ─── Percentage scale ──────────────────────────────────────────────

func TestPercent_QuantisationRoundTrip(t *testing.T) {
	for b := 0; b <= 255; b++ {
		p := NewValue([]byte{byte(b)}).AsPercent()
		got := int(FromPercent(float64(p)).AsByte())
		if diff := got - b; diff < -1 || diff > 1 {
			t.Errorf("byte %d → %v → byte %d, want within ±1", b, p, got)
		}
	}
}

func TestPercent_ZeroBoundaryIsExact(t *testing.T) {
	v := FromPercent(0.0)
	if got := v.AsPercent(); got != 0 {
		t.Fatalf("FromPercent(0).AsPercent() = %v, want exactly 0", float64(got))
	}
	if got := v.AsPercentageValue(); got != 0 {
		t.Fatalf("FromPercent(0).AsPercentageValue() = %v, want exactly 0", float64(got))
	}
	if v.AsByte() != 0 {
		t.Errorf("FromPercent(0) raw = %d, want 0", v.AsByte())
	}
}

func TestPercent_FullScale(t *testing.T) {
	got := float64(FromPercent(100.0).AsPercent())
	if math.Abs(got-100) > 0.4 {
		t.Errorf("FromPercent(100).AsPercent() = %v, want within 0.4 of 100", got)
	}
}

func TestFromPercent_Clamping(t *testing.T) {
	tests := []struct {
		name  string
		input float64
		want  byte
	}{
		{"negative clamps to 0", -10, 0x00},
		{"above 100 clamps to 255", 150, 0xFF},
		{"NaN encodes 0", math.NaN(), 0x00},
		{"+Inf clamps to 255", math.Inf(1), 0xFF},
		{"50% rounds up", 50, 128},
		{"smallest step", 0.2, 1},
		{"below half step", 0.19, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromPercent(tt.input).AsByte(); got != tt.want {
				t.Errorf("FromPercent(%v) raw = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestPercent_String(t *testing.T) {
	tests := []struct {
		p    Percent
		want string
	}{
		{0, "0.0%"},
		{100, "100.0%"},
		{66.6666, "66.7%"},
		{0.392, "0.4%"},
	}

	for _, tt := range tests {
		if got := tt.p.String(); got != tt.want {
			t.Errorf("Percent(%v).String() = %q, want %q", float64(tt.p), got, tt.want)
		}
	}
}

// ─── Booleans ──────────────────────────────────────────────────────

func TestAsBoolean(t *testing.T) {
	mustString := func(s string) Value {
		v, err := FromString(s)
		if err != nil {
			t.Fatalf("FromString(%q) error = %v", s, err)
		}
		return v
	}

	tests := []struct {
		name  string
		value Value
		want  bool
	}{
		{"FromBool(true)", FromBool(true), true},
		{"FromBool(false)", FromBool(false), false},
		{`FromString("1")`, mustString("1"), true},
		{`FromString("0")`, mustString("0"), false},
		{`FromString("true")`, mustString("true"), true},
		{`FromString("False")`, mustString("False"), false},
		{`FromString("on")`, mustString("on"), true},
		{`FromString("OFF")`, mustString("OFF"), false},
		{"FromByte(1)", FromByte(1), true},
		{"FromByte(0)", FromByte(0), false},
		{"raw 0x80 is non-zero", NewValue([]byte{0x80}), true},
		{"multi-byte with trailing non-zero", NewValue([]byte{0x00, 0x01}), true},
		{"multi-byte all zero", NewValue([]byte{0x00, 0x00}), false},
		{"empty", NewValue(nil), false},
		{"zero value", Value{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.value.AsBoolean(); got != tt.want {
				t.Errorf("AsBoolean() = %v, want %v", got, tt.want)
			}
		})
	}
}

// ─── Construction ──────────────────────────────────────────────────

func TestFromString(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantRaw byte
		wantErr bool
	}{
		{"boolean one", "1", 0x01, false},
		{"boolean zero", "0", 0x00, false},
		{"padded boolean", " 1 ", 0x01, false},
		{"percentage", "50", 128, false},
		{"decimal percentage", "66.7", 170, false},
		{"full scale", "100", 255, false},
		{"zero decimal", "0.0", 0x00, false},
		{"not a number", "abc", 0, true},
		{"empty", "", 0, true},
		{"NaN rejected", "NaN", 0, true},
		{"Inf rejected", "Inf", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := FromString(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FromString(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrConversionFailed) {
					t.Errorf("FromString(%q) error = %v, want ErrConversionFailed", tt.input, err)
				}
				return
			}
			if v.Len() != 1 || v.AsByte() != tt.wantRaw {
				t.Errorf("FromString(%q) raw = %v, want [%d]", tt.input, v.Raw(), tt.wantRaw)
			}
			if v.Native() != tt.input {
				t.Errorf("FromString(%q) native = %v, want original text", tt.input, v.Native())
			}
		})
	}
}

func TestFromNative(t *testing.T) {
	tests := []struct {
		name    string
		input   any
		wantRaw []byte
		wantErr bool
	}{
		{"nil", nil, nil, false},
		{"bool", true, []byte{0x01}, false},
		{"byte", byte(170), []byte{170}, false},
		{"int", 42, []byte{42}, false},
		{"int64 max byte", int64(255), []byte{255}, false},
		{"uint16", uint16(7), []byte{7}, false},
		{"float64 percent", 100.0, []byte{255}, false},
		{"float32 percent", float32(0), []byte{0}, false},
		{"Percent", Percent(50), []byte{128}, false},
		{"string", "1", []byte{0x01}, false},
		{"bytes", []byte{0x0C, 0x33}, []byte{0x0C, 0x33}, false},
		{"Value", FromByte(9), []byte{9}, false},
		{"negative int", -1, nil, true},
		{"int too large", 256, nil, true},
		{"uint64 too large", uint64(1000), nil, true},
		{"struct", struct{}{}, nil, true},
		{"bad string", "north", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := FromNative(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FromNative(%v) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrConversionFailed) {
					t.Errorf("FromNative(%v) error = %v, want ErrConversionFailed", tt.input, err)
				}
				return
			}
			if !v.Equal(NewValue(tt.wantRaw)) {
				t.Errorf("FromNative(%v) raw = %v, want %v", tt.input, v.Raw(), tt.wantRaw)
			}
		})
	}
}

func TestNewValue_CopiesInput(t *testing.T) {
	src := []byte{170}
	v := NewValue(src)
	src[0] = 0

	if v.AsByte() != 170 {
		t.Errorf("NewValue did not copy input: raw = %d, want 170", v.AsByte())
	}

	out := v.Raw()
	out[0] = 1
	if v.AsByte() != 170 {
		t.Errorf("Raw() exposed internal storage: raw = %d, want 170", v.AsByte())
	}
}

func TestNewValue_NativeIsNil(t *testing.T) {
	if n := NewValue([]byte{1}).Native(); n != nil {
		t.Errorf("NewValue native = %v, want nil", n)
	}
	if n := FromBool(true).Native(); n != true {
		t.Errorf("FromBool native = %v, want true", n)
	}
}

// ─── Empty data ────────────────────────────────────────────────────

func TestEmptyValue_Defaults(t *testing.T) {
	v := NewValue([]byte{})

	if !v.IsEmpty() {
		t.Error("IsEmpty() = false, want true")
	}
	if v.AsBoolean() {
		t.Error("AsBoolean() = true, want false")
	}
	if v.AsPercent() != 0 {
		t.Errorf("AsPercent() = %v, want 0", v.AsPercent())
	}
	if v.AsByte() != 0 {
		t.Errorf("AsByte() = %d, want 0", v.AsByte())
	}
	if v.Raw() != nil {
		t.Errorf("Raw() = %v, want nil", v.Raw())
	}
	if got, want := v.String(), "0.0% (Raw: 0, Length: 0)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

// ─── Rendering ─────────────────────────────────────────────────────

func TestValue_String(t *testing.T) {
	s := NewValue([]byte{170}).String()

	for _, want := range []string{"66.7", "Raw: 170", "Length: 1"} {
		if !strings.Contains(s, want) {
			t.Errorf("String() = %q, want it to contain %q", s, want)
		}
	}
	if s != "66.7% (Raw: 170, Length: 1)" {
		t.Errorf("String() = %q", s)
	}
}

func TestValue_Equal(t *testing.T) {
	if !FromBool(true).Equal(FromByte(1)) {
		t.Error("FromBool(true) should equal FromByte(1) on the wire")
	}
	if FromByte(1).Equal(NewValue([]byte{1, 0})) {
		t.Error("values of different length should not be equal")
	}
	if !NewValue(nil).Equal(Value{}) {
		t.Error("empty values should be equal")
	}
}
