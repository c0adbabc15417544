package engine

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/mqttscope/internal/infrastructure/config"
)

func collectBatches(e *Engine) <-chan Batch {
	ch := make(chan Batch, 64)
	e.SetOnBatch(func(b Batch) { ch <- b })
	return ch
}

func waitBatch(t *testing.T, ch <-chan Batch) Batch {
	t.Helper()
	select {
	case b := <-ch:
		return b
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for batch")
		return Batch{}
	}
}

func TestDrainDeliversOneBatch(t *testing.T) {
	fake := &fakeConn{}
	e := newTestEngine(t, fake, testSettings())
	batches := collectBatches(e)

	for i := 0; i < 10; i++ {
		fake.emitMessage(inbound(fmt.Sprintf("sensor/%d", i), 8))
	}
	e.drainOnce()

	batch := waitBatch(t, batches)
	if len(batch.Messages) != 10 {
		t.Fatalf("batch size = %d, want 10", len(batch.Messages))
	}
	for i, msg := range batch.Messages {
		want := fmt.Sprintf("sensor/%d", i)
		if msg.Topic != want {
			t.Errorf("message %d topic = %q, want %q (arrival order)", i, msg.Topic, want)
		}
		if msg.ID == "" {
			t.Errorf("message %d has empty identity", i)
		}
	}

	select {
	case extra := <-batches:
		t.Fatalf("second batch of %d messages, want exactly one", len(extra.Messages))
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDrainCapsBatchSize(t *testing.T) {
	fake := &fakeConn{}
	e := newTestEngine(t, fake, testSettings())
	batches := collectBatches(e)

	for i := 0; i < 100; i++ {
		fake.emitMessage(inbound("firehose", 4))
	}

	e.drainOnce()
	if got := len(waitBatch(t, batches).Messages); got != drainMaxMessages {
		t.Errorf("first batch size = %d, want %d", got, drainMaxMessages)
	}
	if depth := e.arrivals.len(); depth != 25 {
		t.Errorf("queue depth after first drain = %d, want 25", depth)
	}

	e.drainOnce()
	if got := len(waitBatch(t, batches).Messages); got != 25 {
		t.Errorf("second batch size = %d, want 25", got)
	}
}

func TestEmptyDrainEmitsNothing(t *testing.T) {
	e := newTestEngine(t, &fakeConn{}, testSettings())
	batches := collectBatches(e)

	e.drainOnce()

	select {
	case b := <-batches:
		t.Fatalf("empty drain emitted a batch of %d messages", len(b.Messages))
	case <-time.After(50 * time.Millisecond):
	}
	if got := e.Stats().BatchesEmitted; got != 0 {
		t.Errorf("BatchesEmitted = %d, want 0", got)
	}
}

func TestDrainAssignsRetrievableIdentities(t *testing.T) {
	fake := &fakeConn{}
	e := newTestEngine(t, fake, testSettings())
	batches := collectBatches(e)

	for i := 0; i < 50; i++ {
		fake.emitMessage(inbound("sensor/temp", 8))
	}
	e.drainOnce()

	batch := waitBatch(t, batches)
	seen := make(map[string]bool, len(batch.Messages))
	for _, msg := range batch.Messages {
		if seen[msg.ID] {
			t.Fatalf("duplicate identity %q in batch", msg.ID)
		}
		seen[msg.ID] = true

		got, err := e.TryGetMessage(msg.Topic, msg.ID)
		if err != nil {
			t.Fatalf("TryGetMessage(%q, %q) error = %v", msg.Topic, msg.ID, err)
		}
		if got.ID != msg.ID {
			t.Errorf("TryGetMessage returned identity %q, want %q", got.ID, msg.ID)
		}
	}
}

func TestDrainAppliesBudgetRules(t *testing.T) {
	fake := &fakeConn{}
	e := newTestEngine(t, fake, testSettings(
		config.BufferRule{Filter: "metrics/#", MaxBytes: 2048},
	))

	fake.emitMessage(inbound("metrics/cpu", 8))
	fake.emitMessage(inbound("sensor/temp", 8))
	e.drainOnce()

	metricsRing, ok := e.store.Get("metrics/cpu")
	if !ok {
		t.Fatal("no buffer for metrics/cpu")
	}
	if got := metricsRing.Budget(); got != 2048 {
		t.Errorf("metrics/cpu budget = %d, want 2048", got)
	}

	sensorRing, ok := e.store.Get("sensor/temp")
	if !ok {
		t.Fatal("no buffer for sensor/temp")
	}
	if got := sensorRing.Budget(); got != 1<<20 {
		t.Errorf("sensor/temp budget = %d, want default 1MiB", got)
	}
}

func TestDrainRebuildsDriftedBuffer(t *testing.T) {
	fake := &fakeConn{}
	e := newTestEngine(t, fake, testSettings(
		config.BufferRule{Filter: "metrics/#", MaxBytes: 2048},
	))

	// A buffer built before the rule resolved differently.
	e.store.GetOrCreate("metrics/cpu", 999)

	fake.emitMessage(inbound("metrics/cpu", 8))
	e.drainOnce()

	ring, ok := e.store.Get("metrics/cpu")
	if !ok {
		t.Fatal("no buffer for metrics/cpu")
	}
	if got := ring.Budget(); got != 2048 {
		t.Errorf("budget after drain = %d, want 2048 (rebuilt)", got)
	}
	if got := ring.Len(); got != 1 {
		t.Errorf("messages after rebuild = %d, want 1", got)
	}
}

func TestUpdateSettingsShrinksOversizedBuffers(t *testing.T) {
	fake := &fakeConn{}
	e := newTestEngine(t, fake, testSettings())
	batches := collectBatches(e)

	// Five 100 KiB messages fit comfortably in the 1 MiB default.
	for i := 0; i < 5; i++ {
		fake.emitMessage(inbound("camera/frames", 100*1024))
	}
	e.drainOnce()
	batch := waitBatch(t, batches)
	lastID := batch.Messages[len(batch.Messages)-1].ID

	next := testSettings(config.BufferRule{Filter: "#", MaxBytes: 10 * 1024})
	e.UpdateSettings(next)

	ring, ok := e.store.Get("camera/frames")
	if !ok {
		t.Fatal("buffer dropped by settings update")
	}
	if got := ring.Budget(); got != 10*1024 {
		t.Errorf("budget = %d, want 10KiB", got)
	}
	// Each message alone exceeds the new budget, so only the newest
	// survives under the oversized-message rule.
	msgs, err := e.BufferedMessages("camera/frames")
	if err != nil {
		t.Fatalf("BufferedMessages() error = %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("buffered messages = %d, want 1", len(msgs))
	}
	if msgs[0].ID != lastID {
		t.Errorf("surviving message = %q, want most recent %q", msgs[0].ID, lastID)
	}
}

func TestUpdateSettingsRebuildKeepsRecentWithinBudget(t *testing.T) {
	fake := &fakeConn{}
	e := newTestEngine(t, fake, testSettings())
	batches := collectBatches(e)

	for i := 0; i < 10; i++ {
		fake.emitMessage(inbound("sensor/stream", 100))
	}
	e.drainOnce()
	batch := waitBatch(t, batches)

	e.UpdateSettings(testSettings(config.BufferRule{Filter: "#", MaxBytes: 250}))

	msgs, err := e.BufferedMessages("sensor/stream")
	if err != nil {
		t.Fatalf("BufferedMessages() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("buffered messages = %d, want 2 (250-byte budget, 100-byte messages)", len(msgs))
	}
	if msgs[0].ID != batch.Messages[8].ID || msgs[1].ID != batch.Messages[9].ID {
		t.Error("rebuild did not keep the two most recent messages in order")
	}
}

func TestClearAllBuffersDropsEverything(t *testing.T) {
	fake := &fakeConn{}
	e := newTestEngine(t, fake, testSettings())

	fake.emitMessage(inbound("a/b", 8))
	fake.emitMessage(inbound("c/d", 8))
	e.drainOnce()

	if got := len(e.BufferedTopics()); got != 2 {
		t.Fatalf("BufferedTopics() = %d, want 2", got)
	}

	e.ClearAllBuffers()

	if got := len(e.BufferedTopics()); got != 0 {
		t.Errorf("BufferedTopics() after clear = %d, want 0", got)
	}
	if got := e.Stats().Router.CachedTopics; got != 0 {
		t.Errorf("router cache after clear = %d topics, want 0", got)
	}
	if _, err := e.BufferedMessages("a/b"); err == nil {
		t.Error("BufferedMessages() after clear = nil error, want ErrTopicNotFound")
	}
}

func TestBatchCompletenessUnderConcurrentEnqueue(t *testing.T) {
	fake := &fakeConn{}
	e := newTestEngine(t, fake, testSettings())
	batches := collectBatches(e)
	e.Start()

	const producers = 3
	const perProducer = 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				fake.emitMessage(inbound(fmt.Sprintf("load/%d", p), 4))
			}
		}(p)
	}
	wg.Wait()

	seen := make(map[string]bool)
	total := 0
	deadline := time.After(10 * time.Second)
	for total < producers*perProducer {
		select {
		case batch := <-batches:
			if len(batch.Messages) == 0 {
				t.Fatal("received an empty batch")
			}
			if len(batch.Messages) > drainMaxMessages {
				t.Fatalf("batch size %d exceeds cap %d", len(batch.Messages), drainMaxMessages)
			}
			for _, msg := range batch.Messages {
				if seen[msg.ID] {
					t.Fatalf("identity %q delivered twice", msg.ID)
				}
				seen[msg.ID] = true
				total++
			}
		case <-deadline:
			t.Fatalf("delivered %d of %d messages before deadline", total, producers*perProducer)
		}
	}

	if total != producers*perProducer {
		t.Errorf("delivered = %d, want %d", total, producers*perProducer)
	}
}
