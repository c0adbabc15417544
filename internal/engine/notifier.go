package engine

import (
	"sync"

	"github.com/nerrad567/mqttscope/internal/infrastructure/logging"
)

// notifier delivers observer callbacks from a dedicated goroutine in posting
// order. post never blocks: events accumulate without bound and the
// dispatcher is woken through a single-slot channel, so a slow observer
// delays other observers but never the pipeline.
type notifier struct {
	mu      sync.Mutex
	pending []func()

	wake     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	logger *logging.Logger
}

func newNotifier(logger *logging.Logger) *notifier {
	n := &notifier{
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logger,
	}
	n.wg.Add(1)
	go n.run()
	return n
}

// post queues fn for dispatch. Events posted after close are dropped.
func (n *notifier) post(fn func()) {
	select {
	case <-n.done:
		return
	default:
	}

	n.mu.Lock()
	n.pending = append(n.pending, fn)
	n.mu.Unlock()

	select {
	case n.wake <- struct{}{}:
	default:
	}
}

// close stops the dispatcher. Events not yet dispatched are dropped.
func (n *notifier) close() {
	n.stopOnce.Do(func() { close(n.done) })
	n.wg.Wait()
}

func (n *notifier) run() {
	defer n.wg.Done()

	for {
		select {
		case <-n.done:
			return
		case <-n.wake:
			n.dispatchPending()
		}
	}
}

func (n *notifier) dispatchPending() {
	for {
		n.mu.Lock()
		batch := n.pending
		n.pending = nil
		n.mu.Unlock()

		if len(batch) == 0 {
			return
		}
		for _, fn := range batch {
			n.invoke(fn)
		}
	}
}

// invoke runs one callback, recovering panics so a misbehaving observer
// cannot kill the dispatcher.
func (n *notifier) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("observer callback panicked", "panic", r)
		}
	}()
	fn()
}
