package events

import (
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kjannette/curvescan-backend/internal/models"
)

type Type string

const (
	TypeTrade       Type = "trade"
	TypeWhaleAlert  Type = "whale_alert"
	TypePhaseChange Type = "phase_change"
)

// Event is one domain notification. Delivery is best effort and never
// persisted; slow subscribers lose events rather than stalling a publisher.
type Event struct {
	Type      Type          `json:"type"`
	ProjectID int64         `json:"projectId"`
	Trade     *models.Trade `json:"trade,omitempty"`
	Phase     models.Phase  `json:"phase,omitempty"`
	Volume    *big.Int      `json:"volume,omitempty"`
	At        time.Time     `json:"at"`
}

const subscriberBuffer = 64

// Bus is a process-wide broadcast channel. Publish never blocks; a
// subscriber whose buffer is full drops the event.
type Bus struct {
	mu      sync.RWMutex
	nextID  int
	subs    map[int]chan Event
	dropped atomic.Uint64
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a listener and returns its channel plus an
// unsubscribe func. The channel is closed on unsubscribe.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, subscriberBuffer)
	b.subs[id] = ch

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
	return ch, unsubscribe
}

// Publish fans the event out to every subscriber without blocking.
func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped reports how many events were discarded due to full subscriber
// buffers since the bus was created.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Subscribers reports the current listener count.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
