// Package router resolves per-topic byte budgets from wildcard rules.
//
// Monitoring sessions subscribe to the entire topic space, so buffer budgets
// are configured as (topic filter, byte budget) rules using ordinary MQTT
// wildcards. For each concrete topic the router scores every rule and the
// best-scoring match supplies the budget.
//
// # Scoring
//
// An exact string match scores 1000 and always wins. Otherwise the filter is
// walked against the topic level by level:
//
//   - literal segment equal to the topic segment: +10
//   - '+' matching exactly one segment: +5
//   - terminal '#' matching all remaining segments (even none): +1
//   - '#' before the final segment, or any mismatch: no match
//
// Higher totals therefore mean more specific filters: for metrics/cpu the
// rule metrics/# (11) beats the bare catch-all # (1). Ties break to the rule
// seen first.
//
// # Caching
//
// Resolved budgets are cached per topic in a bounded LRU. Replacing the rule
// set purges the cache outright rather than patching entries.
package router
