// internal/coordinator/subscribe.go
package coordinator

import (
	"context"
	"sync"

	"github.com/smallnest/chanx"
)

type subscribers struct {
	mu     sync.RWMutex
	next   int
	closed bool
	chans  map[int]*chanx.UnboundedChan[Update]
}

func (s *subscribers) init() {
	s.chans = make(map[int]*chanx.UnboundedChan[Update])
}

// Subscribe returns a stream of snapshot updates and a cancel func.
// The stream is unbounded so a slow reader never stalls a commit.
// It is closed by cancel or by Stop.
func (c *Coordinator) Subscribe() (<-chan Update, func()) {
	return c.subs.add()
}

func (s *subscribers) add() (<-chan Update, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := chanx.NewUnboundedChan[Update](context.Background(), 8)
	if s.closed {
		close(ch.In)
		return ch.Out, func() {}
	}

	id := s.next
	s.next++
	s.chans[id] = ch

	return ch.Out, func() { s.remove(id) }
}

func (s *subscribers) remove(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch, ok := s.chans[id]; ok {
		delete(s.chans, id)
		close(ch.In)
	}
}

func (s *subscribers) publish(u Update) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ch := range s.chans {
		ch.In <- u
	}
}

func (s *subscribers) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for id, ch := range s.chans {
		delete(s.chans, id)
		close(ch.In)
	}
}
