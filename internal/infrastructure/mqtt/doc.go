// Package mqtt manages the broker connection for the monitoring client.
//
// The package wraps eclipse/paho.golang with a lifecycle Manager that owns
// dialing, MQTT v5 session establishment, the full topic space subscription,
// and automatic reconnection after unexpected connection loss.
//
// # Connection Lifecycle
//
// A Manager is always in one of three states: Disconnected, Connecting, or
// Connected. Connect() starts an asynchronous attempt and returns immediately;
// progress and outcome are reported through the state change callback.
// Calling Connect() while already connected is a no-op. Calling it while an
// attempt is in flight cancels that attempt and starts a fresh one, so the
// most recent call always wins.
//
// Disconnect() cancels any in-flight attempt or retry loop, sends a clean
// DISCONNECT when a session is up, and always lands in Disconnected.
//
// # Reconnection
//
// When an established connection drops without a Disconnect() call, a single
// retry loop starts. Before attempt N it waits min(maxDelay, initialDelay*N),
// so with the defaults the schedule runs 5s, 10s, 15s, 20s, 25s, then 30s
// forever. The loop stops on success, on cancellation, or when the configured
// attempt limit is exhausted, in which case a terminal Disconnected state
// change carries a user-facing message.
//
// Failures during an explicit Connect() attempt are terminal and do not start
// the retry loop; the caller decides whether to try again.
//
// # Inbound Messages
//
// On every successful connect the Manager subscribes to "#" at QoS 1 with
// Retain As Published, so retained flags survive broker forwarding. Each
// inbound PUBLISH is handed to the message callback on paho's router
// goroutine; callbacks must not block.
package mqtt
