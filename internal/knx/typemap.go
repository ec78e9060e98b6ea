package knx

import (
	"fmt"
	"strings"
)

// Sub-addresses with a fixed meaning in the default address type map.
const (
	// SubPositionStatus is the sub-address conventionally used for shutter
	// position feedback.
	SubPositionStatus uint8 = 17

	// SubLockStatus is the sub-address conventionally used for lock
	// feedback.
	SubLockStatus uint8 = 20
)

// TypeRule binds an address pattern to a function. A nil level matches any
// value; all non-nil levels must match.
type TypeRule struct {
	Main     *uint8
	Middle   *uint8
	Sub      *uint8
	Function string
}

// Level returns a pointer to n, for building TypeRule literals.
func Level(n uint8) *uint8 {
	return &n
}

// Matches reports whether ga satisfies every level the rule pins.
func (r TypeRule) Matches(ga GroupAddress) bool {
	if r.Main != nil && *r.Main != ga.Main {
		return false
	}
	if r.Middle != nil && *r.Middle != ga.Middle {
		return false
	}
	if r.Sub != nil && *r.Sub != ga.Sub {
		return false
	}
	return true
}

// String renders the pattern with "*" for unpinned levels, e.g. "*/*/17".
func (r TypeRule) String() string {
	level := func(p *uint8) string {
		if p == nil {
			return "*"
		}
		return fmt.Sprintf("%d", *p)
	}
	return fmt.Sprintf("%s/%s/%s → %s", level(r.Main), level(r.Middle), level(r.Sub), r.Function)
}

// TypeMap is a static lookup table from group address patterns to the
// function (and therefore the decode kind) an address carries.
//
// Rules are evaluated in order and the first match wins. Addresses that
// match no rule use Fallback. The table never inspects data content: the
// same bytes decode differently depending only on the address.
type TypeMap struct {
	Rules    []TypeRule
	Fallback string
}

// DefaultTypeMap returns the built-in conventions:
//
//	*/*/17 → position_status (percent)
//	*/*/20 → lock_status     (bool)
//	other  → switch_status   (bool)
func DefaultTypeMap() TypeMap {
	return TypeMap{
		Rules: []TypeRule{
			{Sub: Level(SubPositionStatus), Function: "position_status"},
			{Sub: Level(SubLockStatus), Function: "lock_status"},
		},
		Fallback: "switch_status",
	}
}

// Validate checks that every rule and the fallback name a known function
// whose DPT has a decode kind.
func (m TypeMap) Validate() error {
	var errs []string

	check := func(where, function string) {
		fn := LookupFunction(function)
		if fn == nil {
			errs = append(errs, fmt.Sprintf("%s: unknown function %q", where, function))
			return
		}
		if _, err := KindForDPT(fn.DPT); err != nil {
			errs = append(errs, fmt.Sprintf("%s: function %q (DPT %s) cannot be decoded to a typed value", where, function, fn.DPT))
		}
	}

	for i, r := range m.Rules {
		check(fmt.Sprintf("rules[%d]", i), r.Function)
	}
	if m.Fallback != "" {
		check("fallback", m.Fallback)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: type map: %s", ErrUnsupportedType, strings.Join(errs, "; "))
	}
	return nil
}

// Resolve returns the function bound to ga. An unmatched address with an
// empty Fallback returns ErrUnsupportedType.
func (m TypeMap) Resolve(ga GroupAddress) (*FunctionDef, error) {
	name := m.Fallback
	for _, r := range m.Rules {
		if r.Matches(ga) {
			name = r.Function
			break
		}
	}
	if name == "" {
		return nil, fmt.Errorf("%w: no type rule for %s", ErrUnsupportedType, ga)
	}
	fn := LookupFunction(name)
	if fn == nil {
		return nil, fmt.Errorf("%w: unknown function %q for %s", ErrUnsupportedType, name, ga)
	}
	return fn, nil
}

// KindFor parses address and returns the kind its function decodes to.
func (m TypeMap) KindFor(address string) (Kind, error) {
	ga, err := ParseGroupAddress(address)
	if err != nil {
		return KindInvalid, err
	}
	fn, err := m.Resolve(ga)
	if err != nil {
		return KindInvalid, err
	}
	return KindForDPT(fn.DPT)
}

// Decode converts v to the kind the address maps to.
func (m TypeMap) Decode(address string, v Value) (Typed, error) {
	kind, err := m.KindFor(address)
	if err != nil {
		return Typed{}, err
	}
	return v.AutoConvert(kind)
}
