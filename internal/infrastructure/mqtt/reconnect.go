package mqtt

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/nerrad567/mqttscope/internal/infrastructure/config"
)

// linearBackoff implements backoff.BackOff with linear growth: the Nth call
// to NextBackOff returns min(max, initial*N).
type linearBackoff struct {
	initial time.Duration
	max     time.Duration
	calls   int64
}

func (l *linearBackoff) NextBackOff() time.Duration {
	l.calls++
	next := time.Duration(l.calls) * l.initial
	if next > l.max {
		return l.max
	}
	return next
}

func (l *linearBackoff) Reset() {
	l.calls = 0
}

// newReconnectPolicy builds the retry schedule from settings. A MaxAttempts
// of zero means retry forever.
func newReconnectPolicy(cfg config.ReconnectConfig) backoff.BackOff {
	lin := &linearBackoff{
		initial: cfg.GetInitialDelay(),
		max:     cfg.GetMaxDelay(),
	}
	if lin.initial <= 0 {
		lin.initial = 5 * time.Second
	}
	if lin.max < lin.initial {
		lin.max = lin.initial
	}
	if cfg.MaxAttempts > 0 {
		return backoff.WithMaxRetries(lin, uint64(cfg.MaxAttempts))
	}
	return lin
}

// retryLoop drives reconnection after unexpected connection loss. Only one
// loop runs at a time; the CAS on reconnecting guards against overlapping
// triggers when paho reports the same loss through more than one callback.
//
// The loop exits on successful reconnect, on context cancellation (an
// explicit Disconnect or a fresh Connect), on manager shutdown, or when the
// attempt budget is exhausted, which emits a terminal Disconnected state
// change with a user-facing message.
func (m *Manager) retryLoop(ctx context.Context, cause error) {
	if !m.reconnecting.CompareAndSwap(false, true) {
		return
	}
	defer m.reconnecting.Store(false)

	addr := m.Broker().Address()
	policy := m.policyFn()
	lastErr := cause
	attempt := 0

	for {
		if m.userStopped.Load() || m.isClosed() {
			return
		}

		wait := policy.NextBackOff()
		if wait == backoff.Stop {
			status := fmt.Sprintf("reconnect attempts exhausted after %d tries", attempt)
			userMsg := fmt.Sprintf(
				"Lost connection to %s and could not reconnect after %d attempts. Check the broker and connect again.",
				addr, attempt)
			m.log().Error("reconnect attempts exhausted",
				"broker", addr,
				"attempts", attempt,
				"error", lastErr)
			m.emitLog(status)
			m.transition(StateDisconnected, lastErr, status, userMsg)
			return
		}

		attempt++
		status := fmt.Sprintf("reconnect attempt %d to %s in %s", attempt, addr, wait)
		m.transition(StateConnecting, lastErr, status, "")
		m.emitLog(status)

		select {
		case <-ctx.Done():
			return
		case <-m.done.Done():
			return
		case <-time.After(wait):
		}

		m.reconnectAttempts.Add(1)
		if err := m.establishFn(ctx); err != nil {
			if ctx.Err() != nil || m.isClosed() || m.userStopped.Load() {
				return
			}
			lastErr = err
			m.log().Warn("reconnect attempt failed",
				"broker", addr,
				"attempt", attempt,
				"error", err)
			m.emitLog(fmt.Sprintf("reconnect attempt %d failed: %v", attempt, err))
			continue
		}

		m.reconnectsTotal.Add(1)
		m.log().Info("reconnected", "broker", addr, "attempts", attempt)
		return
	}
}
