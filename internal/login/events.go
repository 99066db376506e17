package login

import (
	"sort"
	"sync"
)

// Subscription is a registered LoginStatusChanged listener. The caller that
// subscribed owns it and must Unsubscribe when done.
type Subscription struct {
	bus  *eventBus
	id   uint64
	once sync.Once
}

// Unsubscribe stops delivery. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.remove(s.id)
	})
}

type eventBus struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]func(LoginStatusChanged)
}

func newEventBus() *eventBus {
	return &eventBus{subs: make(map[uint64]func(LoginStatusChanged))}
}

func (b *eventBus) add(fn func(LoginStatusChanged)) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.subs[b.nextID] = fn
	return &Subscription{bus: b, id: b.nextID}
}

func (b *eventBus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

// publish calls listeners synchronously in subscription order
func (b *eventBus) publish(ev LoginStatusChanged) {
	b.mu.Lock()
	ids := make([]uint64, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(LoginStatusChanged), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, b.subs[id])
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
