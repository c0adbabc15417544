// Package buffer provides bounded per-topic message storage for mqttscope.
//
// Each monitored topic gets a Ring: a byte-budgeted, insertion-ordered store
// with oldest-first eviction. The Store keys rings by topic name and creates
// them lazily when the first message for a topic arrives.
//
// # Eviction
//
// A ring never exceeds its byte budget, with one exception: a single message
// larger than the whole budget is stored alone after evicting everything
// else, so the topic keeps showing its latest message rather than going
// permanently blank.
//
// # Resizing
//
// Budgets change when the caller swaps buffer rules at runtime. Rather than
// trimming in place, Store.Rebuild constructs a fresh ring with the new
// budget and re-appends the old contents oldest to newest; the ordinary
// eviction rule then enforces the new bound, keeping the most recent
// messages.
//
// # Usage
//
//	store := buffer.NewStore()
//	ring := store.GetOrCreate("sensor/1/temp", 64*1024)
//	ring.Append(buffer.Message{ID: id, Topic: "sensor/1/temp", Payload: p})
//	history := ring.Snapshot()
package buffer
