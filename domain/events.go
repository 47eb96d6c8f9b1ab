package domain

import (
	"sync"
	"time"

	"github.com/paylinkd/walletlink_service/entity"
)

// Bus fans domain events out to presentation subscribers. Delivery is
// best-effort: a subscriber that stops draining loses events rather than
// blocking publishers.
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan entity.Event
	next int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan entity.Event)}
}

// Subscribe returns a buffered event channel and a cancel func that closes it.
func (b *Bus) Subscribe() (<-chan entity.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan entity.Event, 16)
	b.subs[id] = ch
	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

func (b *Bus) Publish(name entity.EventName, payload map[string]any) {
	evt := entity.Event{Name: name, At: time.Now().UTC(), Payload: payload}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}
