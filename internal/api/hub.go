package api

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-knxtest/internal/bus"
	"github.com/nerrad567/gray-logic-knxtest/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-knxtest/internal/infrastructure/logging"
)

// Event channels. Channels nest on "/": a subscription to ChannelTelegram
// also receives every "bus.telegram/<ga>" event.
const (
	ChannelTelegram    = "bus.telegram"
	ChannelRunFinished = "run.finished"
)

// Hub fans events out to connected WebSocket clients.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*WSClient]struct{}
}

func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{cfg: cfg, logger: logger, clients: make(map[*WSClient]struct{})}
}

// Run blocks until ctx ends, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
		if c.conn != nil {
			c.conn.Close()
		}
	}
}

func (h *Hub) Register(c *WSClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

// Unregister drops c and closes its send queue. Whoever removes c from the
// map closes the queue, so repeated calls are harmless.
func (h *Hub) Unregister(c *WSClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		close(c.send)
		h.logger.Debug("websocket client disconnected", "clients", n)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues an event for every client following channel or one of
// its parents. Slow clients drop events rather than stall the bus.
func (h *Hub) Broadcast(channel string, payload any) {
	h.mu.RLock()
	targets := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		if c.follows(channel) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		return
	}

	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "channel", channel, "error", err)
		return
	}
	for _, c := range targets {
		c.offer(data)
	}
}

// relayTelegrams publishes every bus telegram on its address channel until
// the returned func is called.
func (s *Server) relayTelegrams() func() {
	return s.bus.SubscribeAll(func(t bus.Telegram) {
		s.telegrams.Add(1)
		s.hub.Broadcast(ChannelTelegram+"/"+t.GA.String(), s.telegramView(t))
	})
}

// channelSet is the set of channels one client follows.
type channelSet struct {
	mu    sync.RWMutex
	names map[string]struct{}
}

func (s *channelSet) set(names []string, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.names == nil {
		s.names = make(map[string]struct{})
	}
	for _, n := range names {
		if on {
			s.names[n] = struct{}{}
		} else {
			delete(s.names, n)
		}
	}
}

// matches reports whether channel, or a "/"-separated parent of it, is in
// the set.
func (s *channelSet) matches(channel string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for {
		if _, ok := s.names[channel]; ok {
			return true
		}
		i := strings.LastIndexByte(channel, '/')
		if i < 0 {
			return false
		}
		channel = channel[:i]
	}
}
