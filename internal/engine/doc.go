// Package engine is the ingestion core: it ties the broker connection,
// the budget router, and the topic buffers together behind one facade.
//
// # Pipeline
//
// Inbound messages are appended to an unbounded arrival queue straight from
// the network callback, which therefore never blocks on buffer work. A fixed
// 200ms tick drains up to 75 queued messages: each one gets its byte budget
// resolved, its topic buffer fetched, created, or rebuilt to match that
// budget, a fresh identity, and a slot in the buffer. Every non-empty drain
// produces exactly one batch notification; an empty tick produces nothing.
//
// # Observers
//
// Batch, state change, and log events are delivered from a single dispatcher
// goroutine in posting order. Delivery is fire and forget: posting never
// blocks the pipeline, and a panicking observer is logged, not fatal.
//
// # Settings Updates
//
// UpdateSettings swaps the broker settings (picked up on the next connection
// attempt), replaces the buffer rules, drops the router's resolution cache,
// and rebuilds every buffer whose resolved budget changed. The rebuild runs
// under the same lock the drain holds, so a tick never observes a
// half-rebuilt buffer.
package engine
