package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-knxtest/internal/knx"
)

// defaultHistoryLimit caps the Memory write log.
const defaultHistoryLimit = 10000

// Memory is an in-process bus.
//
// Writes update a last-value cache and are delivered synchronously to
// subscribers before Write returns. Every write is also appended to a
// bounded history for assertions.
//
// Thread Safety: All methods are safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	values  map[knx.GroupAddress][]byte
	history []Telegram
	limit   int
	closed  bool

	subs *subscribers
	now  func() time.Time
}

// NewMemory creates an empty in-process bus.
func NewMemory() *Memory {
	return &Memory{
		values: make(map[knx.GroupAddress][]byte),
		limit:  defaultHistoryLimit,
		subs:   newSubscribers(),
		now:    time.Now,
	}
}

// Write implements Bus.
func (m *Memory) Write(ctx context.Context, ga knx.GroupAddress, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !ga.IsValid() {
		return fmt.Errorf("%w: %s", knx.ErrInvalidGroupAddress, ga)
	}

	t := Telegram{
		GA:        ga,
		Data:      append([]byte(nil), data...),
		Timestamp: m.now(),
		Source:    SourceFrom(ctx),
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.values[ga] = t.Data
	m.history = append(m.history, t)
	if len(m.history) > m.limit {
		m.history = m.history[len(m.history)-m.limit:]
	}
	m.mu.Unlock()

	m.subs.dispatch(t)
	return nil
}

// Read implements Bus.
func (m *Memory) Read(ctx context.Context, ga knx.GroupAddress) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.values[ga]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoValue, ga)
	}
	return append([]byte(nil), data...), nil
}

// Subscribe implements Bus.
func (m *Memory) Subscribe(ga knx.GroupAddress, h Handler) func() {
	return m.subs.add(ga, h)
}

// SubscribeAll implements Bus.
func (m *Memory) SubscribeAll(h Handler) func() {
	return m.subs.addAll(h)
}

// History returns a copy of every write, oldest first.
func (m *Memory) History() []Telegram {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Telegram, len(m.history))
	copy(out, m.history)
	return out
}

// HistoryFor returns the writes to ga, oldest first.
func (m *Memory) HistoryFor(ga knx.GroupAddress) []Telegram {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Telegram
	for _, t := range m.history {
		if t.GA == ga {
			out = append(out, t)
		}
	}
	return out
}

// Reset clears cached values and history. Subscriptions are kept.
func (m *Memory) Reset() {
	m.mu.Lock()
	m.values = make(map[knx.GroupAddress][]byte)
	m.history = nil
	m.mu.Unlock()
}

// Close rejects further writes.
func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
