package harness

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/nerrad567/gray-logic-knxtest/internal/bus"
	"github.com/nerrad567/gray-logic-knxtest/internal/knx"
)

const (
	// DefaultTimeout bounds WaitFor when no timeout is configured.
	DefaultTimeout = 2 * time.Second

	// Source tags telegrams written by the harness.
	Source = "harness"
)

// Logger is the logging interface used by the harness.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Predicate reports whether a value is the one being waited for.
type Predicate func(knx.Value) bool

// IsBool matches values whose boolean reading is want.
func IsBool(want bool) Predicate {
	return func(v knx.Value) bool { return !v.IsEmpty() && v.AsBoolean() == want }
}

// PercentWithin matches values within tolerance of want on the DPT 5.001 scale.
func PercentWithin(want, tolerance float64) Predicate {
	return func(v knx.Value) bool {
		return !v.IsEmpty() && math.Abs(float64(v.AsPercent())-want) <= tolerance
	}
}

// Harness writes values to a bus and waits for feedback.
//
// Thread Safety: A Harness is safe for concurrent use.
type Harness struct {
	bus     bus.Bus
	logger  Logger
	timeout time.Duration
	typeMap knx.TypeMap
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger sets the logger.
func WithLogger(logger Logger) Option {
	return func(h *Harness) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithTimeout sets the default WaitFor timeout.
func WithTimeout(d time.Duration) Option {
	return func(h *Harness) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// WithTypeMap sets the address type map used by ExpectTyped.
func WithTypeMap(m knx.TypeMap) Option {
	return func(h *Harness) { h.typeMap = m }
}

// New creates a harness on b.
func New(b bus.Bus, opts ...Option) *Harness {
	h := &Harness{
		bus:     b,
		logger:  noopLogger{},
		timeout: DefaultTimeout,
		typeMap: knx.DefaultTypeMap(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Within returns a copy of h whose waits use timeout d.
func (h *Harness) Within(d time.Duration) *Harness {
	c := *h
	if d > 0 {
		c.timeout = d
	}
	return &c
}

// Bus returns the underlying bus.
func (h *Harness) Bus() bus.Bus { return h.bus }

// Timeout returns the default wait timeout.
func (h *Harness) Timeout() time.Duration { return h.timeout }

// TypeMap returns the address type map.
func (h *Harness) TypeMap() knx.TypeMap { return h.typeMap }

// Logger returns the harness logger.
func (h *Harness) Logger() Logger { return h.logger }

// Write sends v to ga. Writes are tagged with Source unless ctx already
// carries a source.
func (h *Harness) Write(ctx context.Context, ga knx.GroupAddress, v knx.Value) error {
	if bus.SourceFrom(ctx) == "" {
		ctx = bus.WithSource(ctx, Source)
	}
	h.logger.Debug("harness write", "ga", ga.String(), "value", v.String())
	if err := h.bus.Write(ctx, ga, v.Raw()); err != nil {
		return fmt.Errorf("writing %s: %w", ga, err)
	}
	return nil
}

// WriteDPT encodes native for dpt and writes it to ga.
func (h *Harness) WriteDPT(ctx context.Context, ga knx.GroupAddress, dpt knx.DPT, native any) error {
	v, err := knx.EncodeForDPT(dpt, native)
	if err != nil {
		return fmt.Errorf("encoding %v for %s: %w", native, ga, err)
	}
	return h.Write(ctx, ga, v)
}

// Read returns the last value seen on ga.
func (h *Harness) Read(ctx context.Context, ga knx.GroupAddress) (knx.Value, error) {
	data, err := h.bus.Read(ctx, ga)
	if err != nil {
		return knx.Value{}, fmt.Errorf("reading %s: %w", ga, err)
	}
	return knx.NewValue(data), nil
}

// WaitFor blocks until ga carries a value matching pred and returns it.
// The current value counts. A non-positive timeout uses the harness
// default. On timeout the error wraps ErrTimeout.
func (h *Harness) WaitFor(ctx context.Context, ga knx.GroupAddress, pred Predicate, timeout time.Duration) (knx.Value, error) {
	if timeout <= 0 {
		timeout = h.timeout
	}

	matched := make(chan knx.Value, 1)
	cancel := h.bus.Subscribe(ga, func(t bus.Telegram) {
		if v := t.Value(); pred(v) {
			select {
			case matched <- v:
			default:
			}
		}
	})
	defer cancel()

	// Subscribed first, so nothing written from here on is lost.
	current, err := h.bus.Read(ctx, ga)
	switch {
	case err == nil:
		if v := knx.NewValue(current); pred(v) {
			return v, nil
		}
	case !errors.Is(err, bus.ErrNoValue):
		return knx.Value{}, fmt.Errorf("reading %s: %w", ga, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case v := <-matched:
		return v, nil
	case <-timer.C:
		return knx.Value{}, fmt.Errorf("%w: %s after %s (last %s)", ErrTimeout, ga, timeout, h.describe(ctx, ga))
	case <-ctx.Done():
		return knx.Value{}, ctx.Err()
	}
}

// ExpectBool waits until ga reads as want.
func (h *Harness) ExpectBool(ctx context.Context, ga knx.GroupAddress, want bool) error {
	return h.expect(ctx, ga, IsBool(want), fmt.Sprintf("%t", want))
}

// ExpectPercent waits until ga reads within tolerance of want percent.
func (h *Harness) ExpectPercent(ctx context.Context, ga knx.GroupAddress, want, tolerance float64) error {
	return h.expect(ctx, ga, PercentWithin(want, tolerance), fmt.Sprintf("%.1f%% ±%.1f", want, tolerance))
}

// ExpectTyped waits until ga, decoded through the address type map,
// equals want. Percentages compare within tolerance.
func (h *Harness) ExpectTyped(ctx context.Context, ga knx.GroupAddress, want knx.Typed, tolerance float64) error {
	kind, err := h.typeMap.KindFor(ga.String())
	if err != nil {
		return err
	}
	if kind != want.Kind() {
		return fmt.Errorf("%w: %s decodes as %s, want %s", ErrExpectation, ga, kind, want.Kind())
	}

	pred := func(v knx.Value) bool {
		if v.IsEmpty() {
			return false
		}
		got, err := h.typeMap.Decode(ga.String(), v)
		if err != nil {
			return false
		}
		return typedEqual(got, want, tolerance)
	}
	return h.expect(ctx, ga, pred, want.String())
}

// ExpectSteady checks that ga matches pred now and keeps matching for the
// whole window. It is used to assert that something does not happen.
func (h *Harness) ExpectSteady(ctx context.Context, ga knx.GroupAddress, pred Predicate, window time.Duration) error {
	violations := make(chan knx.Value, 1)
	cancel := h.bus.Subscribe(ga, func(t bus.Telegram) {
		if v := t.Value(); !pred(v) {
			select {
			case violations <- v:
			default:
			}
		}
	})
	defer cancel()

	current, err := h.Read(ctx, ga)
	if err != nil {
		return err
	}
	if !pred(current) {
		return fmt.Errorf("%w: %s is %s", ErrExpectation, ga, current)
	}

	timer := time.NewTimer(window)
	defer timer.Stop()

	select {
	case v := <-violations:
		return fmt.Errorf("%w: %s changed to %s", ErrExpectation, ga, v)
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Harness) expect(ctx context.Context, ga knx.GroupAddress, pred Predicate, want string) error {
	v, err := h.WaitFor(ctx, ga, pred, 0)
	if errors.Is(err, ErrTimeout) {
		return fmt.Errorf("%w: %s: want %s, got %s", ErrExpectation, ga, want, h.describe(ctx, ga))
	}
	if err != nil {
		return err
	}
	h.logger.Debug("expectation met", "ga", ga.String(), "want", want, "value", v.String())
	return nil
}

func (h *Harness) describe(ctx context.Context, ga knx.GroupAddress) string {
	data, err := h.bus.Read(ctx, ga)
	if err != nil {
		return "no value"
	}
	return knx.NewValue(data).String()
}

func typedEqual(got, want knx.Typed, tolerance float64) bool {
	if got.Kind() != want.Kind() {
		return false
	}
	switch want.Kind() {
	case knx.KindPercent:
		g, _ := got.Percent()
		w, _ := want.Percent()
		return math.Abs(float64(g)-float64(w)) <= tolerance
	case knx.KindByte:
		g, _ := got.Byte()
		w, _ := want.Byte()
		return g == w
	case knx.KindBool:
		g, _ := got.Bool()
		w, _ := want.Bool()
		return g == w
	default:
		return false
	}
}
