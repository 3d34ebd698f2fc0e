package control

import (
	"sync"
	"sync/atomic"
)

const defaultSubscriberBuffer = 64

// Bus is a broadcast hub: every subscriber receives every published message.
// Subscribers that stop draining lose messages rather than block publishers;
// the protocol tolerates loss the same way a shared browser channel does.
type Bus struct {
	mu      sync.Mutex
	closed  bool
	nextID  int
	subs    map[int]*Subscription
	dropped atomic.Int64
}

type Subscription struct {
	C chan Message

	bus *Bus
	id  int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]*Subscription)}
}

func (b *Bus) Subscribe() *Subscription {
	return b.SubscribeBuffered(defaultSubscriberBuffer)
}

func (b *Bus) SubscribeBuffered(buffer int) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{
		C:   make(chan Message, buffer),
		bus: b,
		id:  b.nextID,
	}
	b.nextID++
	if b.closed {
		close(sub.C)
		return sub
	}
	b.subs[sub.id] = sub
	return sub
}

func (s *Subscription) Close() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if _, ok := s.bus.subs[s.id]; !ok {
		return
	}
	delete(s.bus.subs, s.id)
	close(s.C)
}

func (b *Bus) Publish(m Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		select {
		case sub.C <- m:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped reports how many messages were discarded because a subscriber's
// buffer was full.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.C)
	}
}
