package session

import "sync"

// RefreshSignal is a monotonically increasing counter that tells gallery views to
// re-query the store. Subscribers receive the latest count; intermediate values may be
// coalesced, which is fine because a re-query is idempotent.
type RefreshSignal struct {
	mu   sync.Mutex
	n    uint64
	subs map[int]chan uint64
	next int
}

func NewRefreshSignal() *RefreshSignal {
	return &RefreshSignal{subs: make(map[int]chan uint64)}
}

// Bump increments the counter and notifies subscribers without blocking.
func (r *RefreshSignal) Bump() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.n++
	for _, ch := range r.subs {
		// keep only the newest value in the one-slot buffer
		select {
		case <-ch:
		default:
		}
		ch <- r.n
	}
	return r.n
}

func (r *RefreshSignal) Count() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

// Subscribe returns a channel of counter values and a cancel func that closes it.
func (r *RefreshSignal) Subscribe() (<-chan uint64, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.next
	r.next++
	ch := make(chan uint64, 1)
	r.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			delete(r.subs, id)
			close(ch)
		})
	}
}
