package device

import (
	"context"
	"sync"

	"github.com/nerrad567/gray-logic-knxtest/internal/bus"
	"github.com/nerrad567/gray-logic-knxtest/internal/knx"
)

// Logger defines the logging interface used by devices and the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// commandHandler receives a command decoded with its binding's DPT.
type commandHandler func(native any)

// publication is one pending status write.
type publication struct {
	function string
	value    any
}

// outbox collects status writes computed under a device lock so they can
// be sent after the lock is released.
type outbox []publication

func (o *outbox) add(function string, value any) {
	*o = append(*o, publication{function: function, value: value})
}

// base holds identity, bindings and bus attachment shared by all devices.
type base struct {
	id       string
	name     string
	typ      Type
	bindings map[string]Binding
	logger   Logger

	attachMu sync.Mutex
	bus      bus.Bus
	ctx      context.Context
	cancel   context.CancelFunc
	unsubs   []func()
	wg       sync.WaitGroup
}

func newBase(id, name string, typ Type, bindings map[string]Binding, logger Logger) base {
	if logger == nil {
		logger = noopLogger{}
	}
	return base{
		id:       id,
		name:     name,
		typ:      typ,
		bindings: bindings,
		logger:   logger,
		ctx:      context.Background(),
	}
}

func (b *base) ID() string   { return b.id }
func (b *base) Name() string { return b.name }
func (b *base) Type() Type   { return b.typ }

func (b *base) Binding(function string) (Binding, bool) {
	canonical, _ := knx.NormalizeFunction(function)
	binding, ok := b.bindings[canonical]
	return binding, ok
}

func (b *base) Bindings() map[string]Binding {
	out := make(map[string]Binding, len(b.bindings))
	for k, v := range b.bindings {
		v.Flags = append([]string(nil), v.Flags...)
		out[k] = v
	}
	return out
}

// source tags this device's writes so it can ignore its own echoes.
func (b *base) source() string {
	return "device:" + b.id
}

// attach subscribes the command handlers for every bound function.
// Functions without a binding are skipped.
func (b *base) attach(ctx context.Context, bs bus.Bus, handlers map[string]commandHandler) error {
	b.attachMu.Lock()
	defer b.attachMu.Unlock()

	if b.bus != nil {
		return ErrAlreadyAttached
	}

	devCtx, cancel := context.WithCancel(bus.WithSource(ctx, b.source()))
	b.bus = bs
	b.ctx = devCtx
	b.cancel = cancel

	for function, handle := range handlers {
		binding, ok := b.bindings[function]
		if !ok {
			continue
		}
		b.unsubs = append(b.unsubs, bs.Subscribe(binding.GA, b.dispatch(binding, handle)))
	}

	// Parent cancellation detaches as well.
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		<-devCtx.Done()
		b.unsubscribe()
	}()

	b.logger.Debug("device attached", "device_id", b.id, "type", string(b.typ), "bindings", len(b.bindings))
	return nil
}

func (b *base) dispatch(binding Binding, handle commandHandler) bus.Handler {
	return func(t bus.Telegram) {
		if t.Source == b.source() || b.context().Err() != nil {
			return
		}
		native, err := t.Value().Decode(binding.DPT)
		if err != nil {
			b.logger.Warn("ignoring undecodable telegram",
				"device_id", b.id,
				"function", binding.Function,
				"ga", binding.GA.String(),
				"error", err,
			)
			return
		}
		b.logger.Debug("device command", "device_id", b.id, "function", binding.Function, "value", native)
		handle(native)
	}
}

func (b *base) context() context.Context {
	b.attachMu.Lock()
	defer b.attachMu.Unlock()
	return b.ctx
}

// goLoop runs fn in a goroutine tracked by Detach.
func (b *base) goLoop(fn func(ctx context.Context)) {
	ctx := b.context()
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		fn(ctx)
	}()
}

func (b *base) unsubscribe() {
	b.attachMu.Lock()
	unsubs := b.unsubs
	b.unsubs = nil
	b.bus = nil
	b.attachMu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
}

// Detach stops handling telegrams and waits for background loops.
func (b *base) Detach() {
	b.attachMu.Lock()
	cancel := b.cancel
	b.attachMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	b.wg.Wait()
	b.logger.Debug("device detached", "device_id", b.id)
}

// flush writes the collected status values.
func (b *base) flush(out outbox) {
	for _, p := range out {
		b.publish(p.function, p.value)
	}
}

// publish encodes value with the function's DPT and writes it to the bus.
// Unbound functions are silently skipped.
func (b *base) publish(function string, value any) {
	binding, ok := b.bindings[function]
	if !ok {
		return
	}

	v, err := knx.EncodeForDPT(binding.DPT, value)
	if err != nil {
		b.logger.Error("encoding status failed", "device_id", b.id, "function", function, "error", err)
		return
	}

	b.attachMu.Lock()
	bs, ctx := b.bus, b.ctx
	b.attachMu.Unlock()
	if bs == nil {
		return
	}

	if err := bs.Write(ctx, binding.GA, v.Raw()); err != nil && ctx.Err() == nil {
		b.logger.Warn("status write failed", "device_id", b.id, "function", function, "ga", binding.GA.String(), "error", err)
	}
}

// asBool interprets a decoded command as a boolean.
func asBool(native any) (bool, bool) {
	switch v := native.(type) {
	case bool:
		return v, true
	case byte:
		return v != 0, true
	case knx.Percent:
		return v > 0, true
	}
	return false, false
}

// asPercent interprets a decoded command as a 0-100 percentage.
func asPercent(native any) (float64, bool) {
	switch v := native.(type) {
	case knx.Percent:
		return float64(v), true
	case byte:
		return float64(v) * 100 / 255, true
	case float64: // DPT 5.003 angle
		return v / 360 * 100, true
	case bool:
		if v {
			return 100, true
		}
		return 0, true
	}
	return 0, false
}

func clampPercent(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
