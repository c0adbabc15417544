package buffer

import (
	"sync"

	"github.com/eapache/queue"
)

// Ring is a byte-budgeted, insertion-ordered message store for a single
// topic. Appending past the budget evicts from the head (oldest first) until
// the buffer fits again, with one exception: a message whose own size exceeds
// the entire budget evicts everything else and is kept alone, so a topic
// carrying oversized payloads still shows its latest message instead of
// rejecting traffic permanently.
//
// Thread Safety: all methods are safe for concurrent use.
type Ring struct {
	mu      sync.Mutex
	fifo    *queue.Queue
	index   map[string]Message
	size    int64
	max     int64
	evicted uint64
}

// NewRing creates an empty ring with the given byte budget.
// The budget must be positive.
func NewRing(maxBytes int64) *Ring {
	return &Ring{
		fifo:  queue.New(),
		index: make(map[string]Message),
		max:   maxBytes,
	}
}

// Append adds msg at the tail, then evicts from the head while the total
// size exceeds the budget and more than one message remains. Returns the
// number of messages evicted to make room.
func (r *Ring) Append(msg Message) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.fifo.Add(msg)
	r.index[msg.ID] = msg
	r.size += msg.Size()

	evicted := 0
	for r.size > r.max && r.fifo.Length() > 1 {
		r.evictOldestLocked()
		evicted++
	}
	return evicted
}

// evictOldestLocked removes the head message. Caller must hold r.mu.
func (r *Ring) evictOldestLocked() {
	msg := r.fifo.Remove().(Message)
	delete(r.index, msg.ID)
	r.size -= msg.Size()
	r.evicted++
}

// Snapshot returns the buffered messages oldest to newest. The returned
// slice is a copy and does not reflect later mutation.
func (r *Ring) Snapshot() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Message, 0, r.fifo.Length())
	for i := 0; i < r.fifo.Length(); i++ {
		out = append(out, r.fifo.Get(i).(Message))
	}
	return out
}

// TryGet looks up a message by identity. The second return is false when the
// identity was evicted or never present.
func (r *Ring) TryGet(id string) (Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg, ok := r.index[id]
	return msg, ok
}

// Clear removes all messages and resets the size to zero. The budget is
// unchanged.
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.fifo = queue.New()
	r.index = make(map[string]Message)
	r.size = 0
}

// Budget returns the configured maximum size in bytes.
func (r *Ring) Budget() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.max
}

// Size returns the current total payload bytes held.
func (r *Ring) Size() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Len returns the number of buffered messages.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fifo.Length()
}

// Evicted returns the cumulative count of messages evicted over the ring's
// lifetime.
func (r *Ring) Evicted() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.evicted
}
