package engine

import (
	"sync"
	"time"

	"github.com/eapache/queue"
	"github.com/google/uuid"

	"github.com/nerrad567/mqttscope/internal/buffer"
	"github.com/nerrad567/mqttscope/internal/infrastructure/mqtt"
)

const (
	// drainInterval is the fixed period between drain ticks.
	drainInterval = 200 * time.Millisecond

	// drainMaxMessages caps how many arrivals one tick may take, so a
	// burst is spread across ticks instead of monopolizing the buffers
	// and the observer.
	drainMaxMessages = 75
)

// arrivalQueue is the handoff between the network callback and the drain
// tick: multi-producer, single-consumer, unbounded. push only appends, so
// the producer never waits on buffer work.
type arrivalQueue struct {
	mu   sync.Mutex
	fifo *queue.Queue
}

func newArrivalQueue() *arrivalQueue {
	return &arrivalQueue{fifo: queue.New()}
}

// push appends one arrival and returns the resulting depth.
func (a *arrivalQueue) push(in mqtt.Inbound) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.fifo.Add(in)
	return a.fifo.Length()
}

// take removes and returns up to n of the oldest arrivals, or nil when the
// queue is empty.
func (a *arrivalQueue) take(n int) []mqtt.Inbound {
	a.mu.Lock()
	defer a.mu.Unlock()

	count := a.fifo.Length()
	if count == 0 {
		return nil
	}
	if count > n {
		count = n
	}

	out := make([]mqtt.Inbound, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, a.fifo.Remove().(mqtt.Inbound))
	}
	return out
}

func (a *arrivalQueue) len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fifo.Length()
}

// enqueue accepts a message from the network callback. It only appends to
// the arrival queue; all buffer work happens on the drain tick.
func (e *Engine) enqueue(in mqtt.Inbound) {
	depth := e.arrivals.push(in)
	e.metrics.IncMessagesReceived()
	e.metrics.SetQueueDepth(depth)
}

// runDrain fires drainOnce on a fixed cadence until Close.
func (e *Engine) runDrain() {
	defer e.wg.Done()

	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.done:
			return
		case <-ticker.C:
			e.drainOnce()
		}
	}
}

// drainOnce moves up to drainMaxMessages arrivals into their topic buffers
// and emits a single batch notification for the whole set. An empty tick
// emits nothing.
func (e *Engine) drainOnce() {
	pending := e.arrivals.take(drainMaxMessages)
	if len(pending) == 0 {
		return
	}

	e.rebuildMu.Lock()
	stored := make([]buffer.Message, 0, len(pending))
	evicted := 0
	for _, in := range pending {
		limit := e.router.Resolve(in.Topic)
		ring := e.store.GetOrCreate(in.Topic, limit)
		if ring.Budget() != limit {
			// The budget moved since this buffer was built, usually
			// because a settings update re-scored the topic.
			if rebuilt := e.store.Rebuild(in.Topic, limit); rebuilt != nil {
				ring = rebuilt
			}
		}

		msg := buffer.Message{
			ID:         uuid.NewString(),
			Topic:      in.Topic,
			Payload:    in.Payload,
			QoS:        in.QoS,
			Retained:   in.Retain,
			ReceivedAt: in.ReceivedAt,
		}
		evicted += ring.Append(msg)
		stored = append(stored, msg)
	}
	e.rebuildMu.Unlock()

	e.processedTotal.Add(uint64(len(stored)))
	e.batchesTotal.Add(1)
	e.metrics.AddMessagesBuffered(len(stored))
	e.metrics.AddBufferEvictions(evicted)
	e.metrics.IncBatchesEmitted()
	e.metrics.ObserveBatchSize(len(stored))
	e.metrics.SetQueueDepth(e.arrivals.len())
	e.refreshBufferGauges()

	cb := e.getOnBatch()
	if cb == nil {
		return
	}
	batch := Batch{Messages: stored}
	e.notifier.post(func() { cb(batch) })
}
