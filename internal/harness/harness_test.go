package harness

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-knxtest/internal/bus"
	"github.com/nerrad567/gray-logic-knxtest/internal/knx"
)

var (
	gaStatus   = knx.MustParseGroupAddress("1/0/2")
	gaPosition = knx.MustParseGroupAddress("2/1/17")
	gaLock     = knx.MustParseGroupAddress("2/1/20")
)

func newTestHarness(t *testing.T) (*Harness, *bus.Memory) {
	t.Helper()
	b := bus.NewMemory()
	return New(b, WithTimeout(100*time.Millisecond)), b
}

func TestWrite_TagsSource(t *testing.T) {
	h, b := newTestHarness(t)
	ctx := context.Background()

	require.NoError(t, h.Write(ctx, gaStatus, knx.FromBool(true)))
	require.NoError(t, h.Write(bus.WithSource(ctx, "other"), gaStatus, knx.FromBool(false)))

	history := b.History()
	require.Len(t, history, 2)
	assert.Equal(t, Source, history[0].Source)
	assert.Equal(t, "other", history[1].Source)

	v, err := h.Read(ctx, gaStatus)
	require.NoError(t, err)
	assert.False(t, v.AsBoolean())
}

func TestWriteDPT(t *testing.T) {
	h, _ := newTestHarness(t)
	ctx := context.Background()

	require.NoError(t, h.WriteDPT(ctx, gaPosition, knx.DPTPercentage, 100.0))
	v, err := h.Read(ctx, gaPosition)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF}, v.Raw())

	err = h.WriteDPT(ctx, gaPosition, knx.DPTPercentage, "high")
	assert.ErrorIs(t, err, knx.ErrEncodingFailed)
}

func TestRead_NoValue(t *testing.T) {
	h, _ := newTestHarness(t)
	_, err := h.Read(context.Background(), gaStatus)
	assert.ErrorIs(t, err, bus.ErrNoValue)
}

func TestWaitFor_CurrentValue(t *testing.T) {
	h, _ := newTestHarness(t)
	ctx := context.Background()
	require.NoError(t, h.Write(ctx, gaStatus, knx.FromBool(true)))

	v, err := h.WaitFor(ctx, gaStatus, IsBool(true), 0)
	require.NoError(t, err)
	assert.True(t, v.AsBoolean())
}

func TestWaitFor_LaterWrite(t *testing.T) {
	h, _ := newTestHarness(t)
	ctx := context.Background()

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = h.Write(ctx, gaPosition, knx.FromPercent(40))
	}()

	v, err := h.WaitFor(ctx, gaPosition, PercentWithin(40, 0.5), time.Second)
	require.NoError(t, err)
	assert.InDelta(t, 40, float64(v.AsPercent()), 0.5)
}

func TestWaitFor_Timeout(t *testing.T) {
	h, _ := newTestHarness(t)
	ctx := context.Background()
	require.NoError(t, h.Write(ctx, gaStatus, knx.FromBool(false)))

	start := time.Now()
	_, err := h.WaitFor(ctx, gaStatus, IsBool(true), 30*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Contains(t, err.Error(), "1/0/2")
}

func TestWaitFor_ContextCancelled(t *testing.T) {
	h, _ := newTestHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.WaitFor(ctx, gaStatus, IsBool(true), time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsBool_EmptyNeverMatches(t *testing.T) {
	assert.False(t, IsBool(false)(knx.NewValue(nil)))
	assert.False(t, PercentWithin(0, 1)(knx.NewValue(nil)))
	assert.True(t, IsBool(false)(knx.FromBool(false)))
}

func TestExpectBool(t *testing.T) {
	h, _ := newTestHarness(t)
	ctx := context.Background()
	require.NoError(t, h.Write(ctx, gaStatus, knx.FromBool(true)))

	assert.NoError(t, h.ExpectBool(ctx, gaStatus, true))

	err := h.ExpectBool(ctx, gaStatus, false)
	require.ErrorIs(t, err, ErrExpectation)
	assert.Contains(t, err.Error(), "want false")
}

func TestExpectPercent(t *testing.T) {
	h, _ := newTestHarness(t)
	ctx := context.Background()
	require.NoError(t, h.Write(ctx, gaPosition, knx.FromPercent(66.7)))

	assert.NoError(t, h.ExpectPercent(ctx, gaPosition, 66.7, 0.2))
	assert.ErrorIs(t, h.ExpectPercent(ctx, gaPosition, 50, 0.5), ErrExpectation)
}

func TestExpectTyped(t *testing.T) {
	h, _ := newTestHarness(t)
	ctx := context.Background()

	// The same raw byte reads as a percentage on a position address and
	// as a boolean on a lock address.
	require.NoError(t, h.Write(ctx, gaPosition, knx.FromByte(1)))
	require.NoError(t, h.Write(ctx, gaLock, knx.FromByte(1)))

	assert.NoError(t, h.ExpectTyped(ctx, gaPosition, knx.TypedPercent(0.4), 0.1))
	assert.NoError(t, h.ExpectTyped(ctx, gaLock, knx.TypedBool(true), 0))

	err := h.ExpectTyped(ctx, gaLock, knx.TypedPercent(0.4), 0.1)
	require.ErrorIs(t, err, ErrExpectation)
	assert.Contains(t, err.Error(), "decodes as bool")
}

func TestExpectTyped_CustomTypeMap(t *testing.T) {
	b := bus.NewMemory()
	m := knx.TypeMap{Fallback: "position_status"}
	h := New(b, WithTimeout(50*time.Millisecond), WithTypeMap(m))
	ctx := context.Background()

	require.NoError(t, h.Write(ctx, gaStatus, knx.FromPercent(50)))
	assert.NoError(t, h.ExpectTyped(ctx, gaStatus, knx.TypedPercent(50), 0.5))
}

func TestExpectSteady(t *testing.T) {
	h, _ := newTestHarness(t)
	ctx := context.Background()
	require.NoError(t, h.Write(ctx, gaPosition, knx.FromPercent(0)))

	assert.NoError(t, h.ExpectSteady(ctx, gaPosition, PercentWithin(0, 0.5), 20*time.Millisecond))

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = h.Write(ctx, gaPosition, knx.FromPercent(30))
	}()
	err := h.ExpectSteady(ctx, gaPosition, PercentWithin(0, 0.5), time.Second)
	require.ErrorIs(t, err, ErrExpectation)
	assert.Contains(t, err.Error(), "changed to")

	err = h.ExpectSteady(ctx, gaPosition, PercentWithin(0, 0.5), time.Millisecond)
	assert.ErrorIs(t, err, ErrExpectation)
}

func TestWithin(t *testing.T) {
	h, _ := newTestHarness(t)
	long := h.Within(time.Minute)

	assert.Equal(t, time.Minute, long.Timeout())
	assert.Equal(t, 100*time.Millisecond, h.Timeout())
	assert.Equal(t, h.Timeout(), h.Within(0).Timeout())
}
