package access

import "sync"

const subscriberBuffer = 16

// Broadcaster fans decisions out to live subscribers such as the SSE
// endpoint. Slow subscribers miss events instead of blocking Process.
type Broadcaster struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Decision
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan Decision)}
}

// Subscribe returns a channel of decisions and a function that cancels the
// subscription and closes the channel.
func (b *Broadcaster) Subscribe() (<-chan Decision, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan Decision, subscriberBuffer)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers d to every subscriber that has room for it.
func (b *Broadcaster) Publish(d Decision) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- d:
		default:
		}
	}
}

// Subscribers returns the number of active subscribers.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
