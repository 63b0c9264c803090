package eventbus

import (
	"sync"

	"github.com/rs/zerolog/log"
)

const subscriberBuffer = 64

// Subscription is a read handle onto the bus. Events arrive FIFO per
// subscription; cross-subscription order is not guaranteed.
type Subscription struct {
	bus *Bus
	id  uint64
	ch  chan AppEvent
}

// Events returns the channel events arrive on.
func (s *Subscription) Events() <-chan AppEvent { return s.ch }

// Unsubscribe stops delivery to this subscription and closes its channel.
func (s *Subscription) Unsubscribe() {
	s.bus.unsubscribe(s.id)
}

// Bus is a broadcast fan-out of AppEvent. Publish never blocks: a
// subscriber whose buffer is full misses that event and its lag counter
// is incremented. No lag notice is delivered on the subscriber's channel;
// the count is only readable through LagCount.
type Bus struct {
	mu      sync.Mutex
	nextID  uint64
	subs    map[uint64]chan AppEvent
	lagged  map[uint64]int
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{
		subs:   make(map[uint64]chan AppEvent),
		lagged: make(map[uint64]int),
	}
}

// Subscribe registers a new reader and returns its Subscription.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan AppEvent, subscriberBuffer)
	b.subs[id] = ch
	return &Subscription{bus: b, id: id, ch: ch}
}

func (b *Bus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		delete(b.lagged, id)
		close(ch)
	}
}

// Publish fans event out to every current subscriber without blocking.
// A subscriber whose buffer is full is skipped and its lag counter is
// incremented; later events are delivered unchanged, with no notice of
// the drop in the event stream itself.
func (b *Bus) Publish(event AppEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		select {
		case ch <- event:
		default:
			b.lagged[id]++
			log.Warn().Uint64("subscriber", id).Int("lagged", b.lagged[id]).Msg("event bus subscriber lagging, event dropped")
		}
	}
}

// LagCount reports how many events a subscriber has missed due to a full
// buffer since it subscribed; the count is never reset.
func (b *Bus) LagCount(s *Subscription) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lagged[s.id]
}

// SubscriberCount reports the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
