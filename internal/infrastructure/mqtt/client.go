package mqtt

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/eclipse/paho.golang/paho"

	"github.com/nerrad567/mqttscope/internal/infrastructure/config"
)

// Logger is the minimal logging interface the manager needs. Satisfied by
// *logging.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger discards all output. Default until SetLogger is called.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// closeOnce is a signal channel that can be closed exactly once from any
// goroutine.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Manager owns the broker connection lifecycle: dialing, CONNECT, the full
// topic space subscription, deliberate disconnects, and the retry loop after
// unexpected connection loss.
//
// All exported methods are safe for concurrent use. Callbacks fire on
// internal goroutines and must not block; panics in callbacks are recovered
// and logged.
type Manager struct {
	mu            sync.RWMutex // guards cfg, client, conn, state, attempt context
	cfg           config.BrokerConfig
	client        *paho.Client
	conn          net.Conn
	state         State
	attemptCtx    context.Context
	attemptCancel context.CancelFunc

	// established is true only while a fully set up session exists
	// (CONNACK accepted and subscription granted). It gates the retry
	// path so attempt failures never trigger it.
	established  atomic.Bool
	reconnecting atomic.Bool
	userStopped  atomic.Bool

	done *closeOnce

	callbackMu    sync.RWMutex
	onMessage     func(Inbound)
	onStateChange func(StateChange)
	onLog         func(string)
	authHandler   paho.Auther

	loggerMu sync.RWMutex
	logger   Logger

	// establishFn and policyFn are overridable in tests.
	establishFn func(context.Context) error
	policyFn    func() backoff.BackOff

	connectsTotal     atomic.Uint64
	reconnectAttempts atomic.Uint64
	reconnectsTotal   atomic.Uint64
	inboundTotal      atomic.Uint64
	publishesTotal    atomic.Uint64
	publishFailures   atomic.Uint64
}

// Stats is a point-in-time snapshot of connection counters.
type Stats struct {
	Connected         bool   `json:"connected"`
	State             string `json:"state"`
	Broker            string `json:"broker"`
	ConnectsTotal     uint64 `json:"connects_total"`
	ReconnectAttempts uint64 `json:"reconnect_attempts"`
	ReconnectsTotal   uint64 `json:"reconnects_total"`
	InboundTotal      uint64 `json:"inbound_total"`
	PublishesTotal    uint64 `json:"publishes_total"`
	PublishFailures   uint64 `json:"publish_failures"`
}

// NewManager creates a disconnected Manager for the given broker settings.
// Call Connect to start the lifecycle and Close to dispose of the manager.
func NewManager(cfg config.BrokerConfig) *Manager {
	m := &Manager{
		cfg:    cfg,
		state:  StateDisconnected,
		done:   newCloseOnce(),
		logger: noopLogger{},
	}
	m.establishFn = m.establish
	m.policyFn = func() backoff.BackOff {
		return newReconnectPolicy(m.Broker().Reconnect)
	}
	return m
}

// Connect starts an asynchronous connection attempt and returns immediately.
//
// If a session is already established the call is ignored. If an attempt or
// retry loop is in flight it is cancelled and replaced, so the most recent
// call always wins. Progress arrives through the state change callback:
// Connecting first, then either Connected or a terminal Disconnected with
// the failure attached. A failed explicit attempt does not start the retry
// loop; the caller decides whether to try again.
func (m *Manager) Connect() {
	if m.isClosed() {
		m.log().Warn("connect requested on closed manager")
		return
	}
	if m.established.Load() {
		m.log().Debug("connect requested while already connected, ignoring")
		return
	}

	m.userStopped.Store(false)
	ctx := m.newAttempt()
	addr := m.Broker().Address()

	m.transition(StateConnecting, nil, "connecting to "+addr, "")
	m.emitLog("connecting to " + addr)

	go func() {
		err := m.establishFn(ctx)
		if err == nil || ctx.Err() != nil || m.isClosed() {
			return
		}
		m.log().Error("connection attempt failed", "broker", addr, "error", err)
		m.emitLog(fmt.Sprintf("connection to %s failed: %v", addr, err))
		m.transition(StateDisconnected, err, "connect failed",
			fmt.Sprintf("Unable to connect to %s: %v", addr, err))
	}()
}

// Disconnect tears the connection down deliberately.
//
// Any in-flight attempt or retry loop is cancelled, a DISCONNECT packet is
// sent when a session is up, and the manager always finishes in
// Disconnected. Safe to call in any state.
func (m *Manager) Disconnect() {
	m.userStopped.Store(true)
	m.cancelAttempt()

	wasUp := m.established.Swap(false)
	m.mu.Lock()
	client := m.client
	conn := m.conn
	m.client = nil
	m.conn = nil
	m.mu.Unlock()

	switch {
	case client != nil && wasUp:
		if err := client.Disconnect(&paho.Disconnect{ReasonCode: 0}); err != nil {
			m.log().Debug("disconnect packet not sent", "error", err)
		}
	case conn != nil:
		conn.Close()
	}

	m.transition(StateDisconnected, nil, "disconnected", "")
	m.emitLog("disconnected")
}

// Close shuts the manager down permanently. Connect calls after Close are
// ignored.
func (m *Manager) Close() {
	m.done.Close()
	m.Disconnect()
}

// Publish sends a message to the broker.
//
// Parameters:
//   - ctx: cancellation; a defaultPublishTimeout deadline is applied when
//     the caller supplies none
//   - topic: destination topic, validated against publish topic rules
//   - payload: message body, at most maxPayloadSize bytes; empty combined
//     with retain clears the broker's retained message for the topic
//   - retain: broker stores the message as the topic's retained message
//   - qos: delivery guarantee, 0 to 2
//
// Returns ErrNotConnected when no session is established and ErrClosed after
// the manager has been shut down.
func (m *Manager) Publish(ctx context.Context, topic string, payload []byte, retain bool, qos byte) error {
	if err := ValidateTopic(topic); err != nil {
		return err
	}
	if qos > maxQoS {
		return fmt.Errorf("%w: %d", ErrInvalidQoS, qos)
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %d bytes (limit %d)", ErrPayloadTooLarge, len(payload), maxPayloadSize)
	}

	if m.isClosed() {
		return ErrClosed
	}

	m.mu.RLock()
	client := m.client
	m.mu.RUnlock()
	if client == nil || !m.established.Load() {
		return ErrNotConnected
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultPublishTimeout)
		defer cancel()
	}

	if _, err := client.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     qos,
		Retain:  retain,
		Payload: payload,
	}); err != nil {
		m.publishFailures.Add(1)
		m.emitLog(fmt.Sprintf("publish to %s failed: %v", topic, err))
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	m.publishesTotal.Add(1)
	return nil
}

// UpdateBroker replaces the broker settings.
//
// A live session is not touched; every attempt builds its transport and
// CONNECT packet fresh from the settings current at that moment, so new
// values apply from the next attempt.
func (m *Manager) UpdateBroker(cfg config.BrokerConfig) {
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
}

// Broker returns a copy of the current broker settings.
func (m *Manager) Broker() config.BrokerConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// IsConnected reports whether a fully established session exists.
func (m *Manager) IsConnected() bool {
	return m.established.Load()
}

// ConnectionState returns the current lifecycle state.
func (m *Manager) ConnectionState() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Stats returns a snapshot of connection counters.
func (m *Manager) Stats() Stats {
	return Stats{
		Connected:         m.established.Load(),
		State:             m.ConnectionState().String(),
		Broker:            m.Broker().Address(),
		ConnectsTotal:     m.connectsTotal.Load(),
		ReconnectAttempts: m.reconnectAttempts.Load(),
		ReconnectsTotal:   m.reconnectsTotal.Load(),
		InboundTotal:      m.inboundTotal.Load(),
		PublishesTotal:    m.publishesTotal.Load(),
		PublishFailures:   m.publishFailures.Load(),
	}
}

// SetOnMessage registers the callback for inbound PUBLISH packets. It fires
// on paho's router goroutine and must not block.
func (m *Manager) SetOnMessage(fn func(Inbound)) {
	m.callbackMu.Lock()
	m.onMessage = fn
	m.callbackMu.Unlock()
}

// SetOnStateChange registers the callback for lifecycle transitions.
func (m *Manager) SetOnStateChange(fn func(StateChange)) {
	m.callbackMu.Lock()
	m.onStateChange = fn
	m.callbackMu.Unlock()
}

// SetOnLog registers the callback for free-form activity messages, the feed
// a UI would append to its log pane.
func (m *Manager) SetOnLog(fn func(string)) {
	m.callbackMu.Lock()
	m.onLog = fn
	m.callbackMu.Unlock()
}

// SetAuthHandler registers a custom handler for MQTT v5 enhanced
// authentication exchanges, replacing the static auther built from settings.
// Needed for challenge-response mechanisms where the reply depends on broker
// data. Applies from the next connection attempt.
func (m *Manager) SetAuthHandler(auther paho.Auther) {
	m.callbackMu.Lock()
	m.authHandler = auther
	m.callbackMu.Unlock()
}

// SetLogger replaces the structured logger.
func (m *Manager) SetLogger(logger Logger) {
	if logger == nil {
		return
	}
	m.loggerMu.Lock()
	m.logger = logger
	m.loggerMu.Unlock()
}

// newAttempt replaces the attempt context, cancelling any in-flight attempt
// or retry loop. The returned context is what Disconnect cancels.
func (m *Manager) newAttempt() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	if m.attemptCancel != nil {
		m.attemptCancel()
	}
	m.attemptCtx = ctx
	m.attemptCancel = cancel
	m.mu.Unlock()
	return ctx
}

func (m *Manager) cancelAttempt() {
	m.mu.Lock()
	if m.attemptCancel != nil {
		m.attemptCancel()
		m.attemptCancel = nil
		m.attemptCtx = nil
	}
	m.mu.Unlock()
}

func (m *Manager) currentAttempt() context.Context {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.attemptCtx == nil {
		return context.Background()
	}
	return m.attemptCtx
}

// establish performs one complete connection attempt: dial, CONNECT, verify
// the CONNACK, subscribe to the full topic space, then publish the Connected
// state. defaultConnectTimeout bounds the whole sequence.
func (m *Manager) establish(ctx context.Context) error {
	b := m.Broker()
	addr := b.Address()
	clientID := effectiveClientID(b)

	attemptCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()

	conn, err := dialBroker(attemptCtx, b)
	if err != nil {
		return err
	}

	clientCfg := paho.ClientConfig{
		ClientID: clientID,
		Conn:     conn,
		OnPublishReceived: []func(paho.PublishReceived) (bool, error){
			m.handleInbound,
		},
		OnServerDisconnect: func(d *paho.Disconnect) {
			m.handleConnectionLost(serverDisconnectError(d))
		},
		OnClientError: func(err error) {
			m.handleConnectionLost(fmt.Errorf("mqtt: transport error: %w", err))
		},
	}
	if auther := m.getAuthHandler(); auther != nil {
		clientCfg.AuthHandler = auther
	} else if auther := autherFor(b); auther != nil {
		clientCfg.AuthHandler = auther
	}
	client := paho.NewClient(clientCfg)

	connack, err := client.Connect(attemptCtx, buildConnectPacket(b, clientID))
	if err != nil {
		conn.Close()
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	if connack.ReasonCode != 0 {
		conn.Close()
		return fmt.Errorf("%w: broker refused connection (reason code %d)",
			ErrConnectionFailed, connack.ReasonCode)
	}

	m.mu.Lock()
	m.client = client
	m.conn = conn
	m.mu.Unlock()

	if err := m.subscribeAll(attemptCtx, client); err != nil {
		m.teardown()
		return err
	}

	m.connectsTotal.Add(1)
	m.established.Store(true)
	m.log().Info("connected to broker",
		"broker", addr,
		"client_id", clientID,
		"session_present", connack.SessionPresent)
	m.transition(StateConnected, nil, "connected to "+addr, "")
	m.emitLog("connected to " + addr)
	return nil
}

// subscribeAll subscribes to the full topic space. Retain As Published keeps
// the retain flag intact on live messages, so retained state is readable
// from the flag alone.
func (m *Manager) subscribeAll(ctx context.Context, client *paho.Client) error {
	suback, err := client.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{
			Topic:             FullTopicSpace,
			QoS:               subscribeQoS,
			RetainAsPublished: true,
		}},
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	if len(suback.Reasons) == 0 || suback.Reasons[0] > maxQoS {
		var reason byte
		if len(suback.Reasons) > 0 {
			reason = suback.Reasons[0]
		}
		return fmt.Errorf("%w: broker rejected subscription (reason code %d)",
			ErrSubscribeFailed, reason)
	}
	return nil
}

// handleInbound adapts a received PUBLISH into the message callback.
func (m *Manager) handleInbound(pr paho.PublishReceived) (bool, error) {
	m.inboundTotal.Add(1)

	cb := m.getOnMessage()
	if cb == nil {
		return true, nil
	}

	pkt := pr.Packet
	msg := Inbound{
		Topic:      pkt.Topic,
		Payload:    pkt.Payload,
		QoS:        pkt.QoS,
		Retain:     pkt.Retain,
		ReceivedAt: time.Now().UTC(),
	}
	m.safeInvoke(func() { cb(msg) })
	return true, nil
}

// handleConnectionLost reacts to the unexpected end of an established
// session. The CAS on established makes the handler idempotent when paho
// reports one loss through both OnServerDisconnect and OnClientError, and
// keeps attempt failures and deliberate disconnects off the retry path.
func (m *Manager) handleConnectionLost(err error) {
	if !m.established.CompareAndSwap(true, false) {
		return
	}
	m.teardown()

	if m.userStopped.Load() || m.isClosed() {
		return
	}

	m.log().Warn("connection lost", "error", err)
	m.emitLog(fmt.Sprintf("connection lost: %v", err))
	go m.retryLoop(m.currentAttempt(), err)
}

// teardown closes and forgets the transport without emitting any state.
func (m *Manager) teardown() {
	m.mu.Lock()
	conn := m.conn
	m.client = nil
	m.conn = nil
	m.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// transition records the new state and notifies the observer.
func (m *Manager) transition(state State, err error, status, userMsg string) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()

	cb := m.getOnStateChange()
	if cb == nil {
		return
	}
	m.safeInvoke(func() {
		cb(StateChange{
			Connected:   state == StateConnected,
			State:       state,
			Err:         err,
			Status:      status,
			UserMessage: userMsg,
		})
	})
}

// safeInvoke runs a callback and recovers panics so a misbehaving observer
// cannot take down the connection machinery.
func (m *Manager) safeInvoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.log().Error("callback panic recovered", "panic", r)
		}
	}()
	fn()
}

func (m *Manager) getOnMessage() func(Inbound) {
	m.callbackMu.RLock()
	defer m.callbackMu.RUnlock()
	return m.onMessage
}

func (m *Manager) getOnStateChange() func(StateChange) {
	m.callbackMu.RLock()
	defer m.callbackMu.RUnlock()
	return m.onStateChange
}

func (m *Manager) getAuthHandler() paho.Auther {
	m.callbackMu.RLock()
	defer m.callbackMu.RUnlock()
	return m.authHandler
}

func (m *Manager) emitLog(msg string) {
	m.callbackMu.RLock()
	cb := m.onLog
	m.callbackMu.RUnlock()
	if cb == nil {
		return
	}
	m.safeInvoke(func() { cb(msg) })
}

func (m *Manager) log() Logger {
	m.loggerMu.RLock()
	defer m.loggerMu.RUnlock()
	return m.logger
}

func (m *Manager) isClosed() bool {
	select {
	case <-m.done.Done():
		return true
	default:
		return false
	}
}

// serverDisconnectError converts a broker DISCONNECT packet into an error.
func serverDisconnectError(d *paho.Disconnect) error {
	if d == nil {
		return errors.New("mqtt: server closed the connection")
	}
	if d.Properties != nil && d.Properties.ReasonString != "" {
		return fmt.Errorf("mqtt: server disconnect: %s (reason code %d)",
			d.Properties.ReasonString, d.ReasonCode)
	}
	return fmt.Errorf("mqtt: server disconnect (reason code %d)", d.ReasonCode)
}
