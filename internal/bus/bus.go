package bus

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/gray-logic-knxtest/internal/knx"
)

var (
	// ErrNoValue is returned by Read for a group address nobody has written.
	ErrNoValue = errors.New("bus: no value for group address")

	// ErrClosed is returned when writing to a closed bus.
	ErrClosed = errors.New("bus: closed")
)

// Telegram is one group write as seen on the bus.
type Telegram struct {
	GA        knx.GroupAddress
	Data      []byte
	Timestamp time.Time
	Source    string
}

// Value returns the telegram payload as a knx.Value.
func (t Telegram) Value() knx.Value {
	return knx.NewValue(t.Data)
}

// Handler receives telegrams. Handlers may write to the bus.
type Handler func(Telegram)

// Bus carries group values between the harness and simulated devices.
type Bus interface {
	// Write sends data to ga. Subscribers of ga are notified.
	Write(ctx context.Context, ga knx.GroupAddress, data []byte) error

	// Read returns the last value written to ga, or ErrNoValue.
	Read(ctx context.Context, ga knx.GroupAddress) ([]byte, error)

	// Subscribe registers h for writes to ga. The returned func removes it.
	Subscribe(ga knx.GroupAddress, h Handler) (cancel func())

	// SubscribeAll registers h for every write.
	SubscribeAll(h Handler) (cancel func())
}

type sourceKey struct{}

// WithSource tags writes made with ctx, e.g. "harness" or "device:kitchen".
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey{}, source)
}

// SourceFrom returns the source set by WithSource, or "".
func SourceFrom(ctx context.Context) string {
	s, _ := ctx.Value(sourceKey{}).(string) //nolint:errcheck // missing value yields ""
	return s
}

// Logger is the logging interface used by bus implementations.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
