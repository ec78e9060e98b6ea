package bus

import (
	"sync"

	"github.com/nerrad567/gray-logic-knxtest/internal/knx"
)

// subscribers is the handler table shared by both implementations.
// Handlers are snapshotted under the lock and invoked outside it so that
// a handler may write to the bus or cancel its own subscription.
type subscribers struct {
	mu     sync.Mutex
	nextID uint64
	byGA   map[knx.GroupAddress]map[uint64]Handler
	all    map[uint64]Handler
}

func newSubscribers() *subscribers {
	return &subscribers{
		byGA: make(map[knx.GroupAddress]map[uint64]Handler),
		all:  make(map[uint64]Handler),
	}
}

func (s *subscribers) add(ga knx.GroupAddress, h Handler) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	if s.byGA[ga] == nil {
		s.byGA[ga] = make(map[uint64]Handler)
	}
	s.byGA[ga][id] = h

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.byGA[ga], id)
			if len(s.byGA[ga]) == 0 {
				delete(s.byGA, ga)
			}
		})
	}
}

func (s *subscribers) addAll(h Handler) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.all[id] = h

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.all, id)
			s.mu.Unlock()
		})
	}
}

func (s *subscribers) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.all)
	for _, hs := range s.byGA {
		n += len(hs)
	}
	return n
}

func (s *subscribers) dispatch(t Telegram) {
	s.mu.Lock()
	handlers := make([]Handler, 0, len(s.byGA[t.GA])+len(s.all))
	for _, h := range s.byGA[t.GA] {
		handlers = append(handlers, h)
	}
	for _, h := range s.all {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()

	for _, h := range handlers {
		// Each handler gets its own copy of the payload.
		h(Telegram{GA: t.GA, Data: append([]byte(nil), t.Data...), Timestamp: t.Timestamp, Source: t.Source})
	}
}
