package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/mqttscope/internal/buffer"
	"github.com/nerrad567/mqttscope/internal/infrastructure/config"
	"github.com/nerrad567/mqttscope/internal/infrastructure/logging"
	"github.com/nerrad567/mqttscope/internal/infrastructure/mqtt"
	"github.com/nerrad567/mqttscope/internal/observability"
	"github.com/nerrad567/mqttscope/internal/router"
)

// Connection is the slice of the broker lifecycle the engine drives.
// *mqtt.Manager satisfies it.
type Connection interface {
	Connect()
	Disconnect()
	Publish(ctx context.Context, topic string, payload []byte, retain bool, qos byte) error
	UpdateBroker(cfg config.BrokerConfig)
	IsConnected() bool
	SetOnMessage(fn func(mqtt.Inbound))
	SetOnStateChange(fn func(mqtt.StateChange))
	SetOnLog(fn func(string))
}

// Batch is one drain's worth of stored messages, oldest first. Every
// message already carries its generated identity and lives in its topic
// buffer by the time the batch is delivered.
type Batch struct {
	Messages []buffer.Message
}

// Deps bundles the engine's collaborators.
type Deps struct {
	Conn     Connection
	Logger   *logging.Logger
	Metrics  *observability.Metrics // optional
	Settings config.Settings
}

// Engine owns the ingestion pipeline and exposes the command, query, and
// observer surface the presentation layer consumes. All exported methods
// are safe for concurrent use.
type Engine struct {
	conn    Connection
	logger  *logging.Logger
	metrics *observability.Metrics
	router  *router.Router
	store   *buffer.Store

	arrivals *arrivalQueue
	notifier *notifier

	// rebuildMu serializes drain ticks against settings updates and
	// buffer clears.
	rebuildMu sync.Mutex

	settingsMu sync.RWMutex
	settings   config.Settings

	callbackMu sync.RWMutex
	onBatch    func(Batch)
	onState    func(mqtt.StateChange)
	onLog      func(string)

	done      chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
	wg        sync.WaitGroup

	batchesTotal   atomic.Uint64
	processedTotal atomic.Uint64
}

// Stats is a point-in-time snapshot of pipeline counters.
type Stats struct {
	QueueDepth        int          `json:"queue_depth"`
	BatchesEmitted    uint64       `json:"batches_emitted"`
	MessagesProcessed uint64       `json:"messages_processed"`
	Buffers           buffer.Stats `json:"buffers"`
	Router            router.Stats `json:"router"`
}

// New wires an Engine to its collaborators and registers the connection
// callbacks. Call Start to begin draining and Close to shut down.
func New(deps Deps) (*Engine, error) {
	if deps.Conn == nil {
		return nil, errors.New("engine: connection is required")
	}
	if deps.Logger == nil {
		return nil, errors.New("engine: logger is required")
	}

	rt, err := router.New(deps.Settings.Buffers.Rules, deps.Settings.Buffers.DefaultSize)
	if err != nil {
		return nil, fmt.Errorf("engine: build router: %w", err)
	}

	e := &Engine{
		conn:     deps.Conn,
		logger:   deps.Logger.With("component", "engine"),
		metrics:  deps.Metrics,
		router:   rt,
		store:    buffer.NewStore(),
		arrivals: newArrivalQueue(),
		settings: deps.Settings,
		done:     make(chan struct{}),
	}
	e.notifier = newNotifier(e.logger)

	deps.Conn.SetOnMessage(e.enqueue)
	deps.Conn.SetOnStateChange(e.handleStateChange)
	deps.Conn.SetOnLog(e.postLog)

	return e, nil
}

// Start launches the drain scheduler. Repeated calls are no-ops.
func (e *Engine) Start() {
	e.startOnce.Do(func() {
		e.wg.Add(1)
		go e.runDrain()
	})
}

// Close stops the drain scheduler and the observer dispatcher. Buffered
// messages stay queryable afterwards; the broker connection is owned by
// the caller and is not touched.
func (e *Engine) Close() {
	e.closeOnce.Do(func() { close(e.done) })
	e.wg.Wait()
	e.notifier.close()
}

// Connect asks the broker connection to come up. Progress and outcome
// arrive through the state change observer.
func (e *Engine) Connect() {
	e.metrics.IncConnectAttempts()
	e.conn.Connect()
}

// Disconnect tears the broker connection down deliberately.
func (e *Engine) Disconnect() {
	e.conn.Disconnect()
}

// Publish forwards a message to the broker. Without an established session
// the call is a logged no-op rather than an error, so a UI action racing a
// connection loss degrades quietly.
func (e *Engine) Publish(ctx context.Context, topic string, payload []byte, retain bool, qos byte) error {
	if !e.conn.IsConnected() {
		e.logger.Warn("publish skipped, not connected", "topic", topic)
		e.postLog("publish to " + topic + " skipped: not connected")
		return nil
	}

	if err := e.conn.Publish(ctx, topic, payload, retain, qos); err != nil {
		e.metrics.IncPublishFailures()
		return fmt.Errorf("engine: publish: %w", err)
	}
	return nil
}

// ClearRetainedMessage removes the broker-held retained message for a topic
// by publishing a zero-length retained payload at QoS 0. A logged no-op
// without an established session.
func (e *Engine) ClearRetainedMessage(ctx context.Context, topic string) error {
	if !e.conn.IsConnected() {
		e.logger.Warn("clear retained skipped, not connected", "topic", topic)
		e.postLog("clear retained on " + topic + " skipped: not connected")
		return nil
	}

	if err := e.conn.Publish(ctx, topic, nil, true, 0); err != nil {
		e.metrics.IncPublishFailures()
		return fmt.Errorf("engine: clear retained: %w", err)
	}
	e.postLog("cleared retained message on " + topic)
	return nil
}

// UpdateSettings replaces connection and buffer settings at runtime.
//
// Broker changes apply from the next connection attempt; an established
// session is left alone. Buffer rule changes take effect immediately: the
// router cache is dropped and every buffer whose resolved budget changed is
// rebuilt, under the same lock the drain holds.
func (e *Engine) UpdateSettings(settings config.Settings) {
	e.settingsMu.Lock()
	e.settings = settings
	e.settingsMu.Unlock()

	e.conn.UpdateBroker(settings.Broker)

	e.rebuildMu.Lock()
	e.router.SetRules(settings.Buffers.Rules, settings.Buffers.DefaultSize)
	rebuilt := 0
	for _, topic := range e.store.Topics() {
		limit := e.router.Resolve(topic)
		ring, ok := e.store.Get(topic)
		if !ok || ring.Budget() == limit {
			continue
		}
		e.store.Rebuild(topic, limit)
		rebuilt++
	}
	e.rebuildMu.Unlock()

	e.metrics.IncSettingsUpdates()
	e.refreshBufferGauges()
	e.logger.Info("settings updated",
		"buffer_rules", len(settings.Buffers.Rules),
		"buffers_rebuilt", rebuilt)
	e.postLog(fmt.Sprintf("settings updated, %d buffers rebuilt", rebuilt))
}

// ClearAllBuffers drops every topic buffer and the router's resolution
// cache.
func (e *Engine) ClearAllBuffers() {
	e.rebuildMu.Lock()
	e.store.ClearAll()
	e.router.Invalidate()
	e.rebuildMu.Unlock()

	e.refreshBufferGauges()
	e.logger.Info("cleared all buffers")
	e.postLog("cleared all buffered messages")
}

// BufferedMessages returns a snapshot of a topic's buffered history, oldest
// first. Returns ErrTopicNotFound when no buffer exists for the topic.
func (e *Engine) BufferedMessages(topic string) ([]buffer.Message, error) {
	ring, ok := e.store.Get(topic)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTopicNotFound, topic)
	}
	return ring.Snapshot(), nil
}

// BufferedTopics lists every topic with buffered history, sorted.
func (e *Engine) BufferedTopics() []string {
	return e.store.Topics()
}

// TryGetMessage looks up one message by topic and identity.
func (e *Engine) TryGetMessage(topic, id string) (buffer.Message, error) {
	ring, ok := e.store.Get(topic)
	if !ok {
		return buffer.Message{}, fmt.Errorf("%w: %s", ErrTopicNotFound, topic)
	}
	msg, ok := ring.TryGet(id)
	if !ok {
		return buffer.Message{}, fmt.Errorf("%w: %s", ErrMessageNotFound, id)
	}
	return msg, nil
}

// IsConnected reports whether the broker session is up.
func (e *Engine) IsConnected() bool {
	return e.conn.IsConnected()
}

// Settings returns a copy of the current settings.
func (e *Engine) Settings() config.Settings {
	e.settingsMu.RLock()
	defer e.settingsMu.RUnlock()
	return e.settings
}

// Stats returns a snapshot of pipeline counters.
func (e *Engine) Stats() Stats {
	return Stats{
		QueueDepth:        e.arrivals.len(),
		BatchesEmitted:    e.batchesTotal.Load(),
		MessagesProcessed: e.processedTotal.Load(),
		Buffers:           e.store.GetStats(),
		Router:            e.router.GetStats(),
	}
}

// SetOnBatch registers the observer for drained batches. Delivery is
// asynchronous and in drain order.
func (e *Engine) SetOnBatch(fn func(Batch)) {
	e.callbackMu.Lock()
	e.onBatch = fn
	e.callbackMu.Unlock()
}

// SetOnStateChange registers the observer for connection state changes.
func (e *Engine) SetOnStateChange(fn func(mqtt.StateChange)) {
	e.callbackMu.Lock()
	e.onState = fn
	e.callbackMu.Unlock()
}

// SetOnLog registers the observer for free-form activity messages.
func (e *Engine) SetOnLog(fn func(string)) {
	e.callbackMu.Lock()
	e.onLog = fn
	e.callbackMu.Unlock()
}

// handleStateChange fans a connection state change out to metrics and the
// registered observer.
func (e *Engine) handleStateChange(sc mqtt.StateChange) {
	e.metrics.SetConnected(sc.Connected)
	if sc.State == mqtt.StateConnecting && sc.Err != nil {
		// Connecting with a prior failure attached is a retry attempt.
		e.metrics.IncReconnectAttempts()
	}

	e.callbackMu.RLock()
	cb := e.onState
	e.callbackMu.RUnlock()
	if cb == nil {
		return
	}
	e.notifier.post(func() { cb(sc) })
}

// postLog forwards one activity line to the log observer.
func (e *Engine) postLog(line string) {
	e.callbackMu.RLock()
	cb := e.onLog
	e.callbackMu.RUnlock()
	if cb == nil {
		return
	}
	e.notifier.post(func() { cb(line) })
}

func (e *Engine) getOnBatch() func(Batch) {
	e.callbackMu.RLock()
	defer e.callbackMu.RUnlock()
	return e.onBatch
}

func (e *Engine) refreshBufferGauges() {
	stats := e.store.GetStats()
	e.metrics.SetBufferUsage(stats.TotalBytes, stats.Topics)
}
