package router

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/nerrad567/mqttscope/internal/infrastructure/config"
)

// DefaultLimit is the built-in catch-all byte budget, used when the caller
// configures no default of their own.
const DefaultLimit int64 = 1 << 20

// cacheSize bounds the resolved topic -> budget cache. Cold topics fall out
// of the cache and are simply rescored on their next message.
const cacheSize = 4096

// CatchAllFilter matches every topic. The effective rule set always contains
// it; when the caller's rules do not, one is synthesized with the default
// budget so every topic resolves to something.
const CatchAllFilter = "#"

// Router answers "what is the byte budget for this topic?" by scoring every
// configured rule against the topic and returning the best match's budget.
// Answers are cached per topic; swapping rules purges the cache wholesale.
//
// Thread Safety: all methods are safe for concurrent use. Callers needing a
// resolve-then-act cycle to be atomic against a concurrent SetRules must
// serialise the cycle themselves (the engine holds its rebuild lock across
// both).
type Router struct {
	mu          sync.RWMutex
	rules       []config.BufferRule
	defaultSize int64
	cache       *lru.Cache
}

// New creates a Router with the given rules. defaultSize is the budget of
// the synthesized catch-all rule; non-positive values fall back to
// DefaultLimit.
func New(rules []config.BufferRule, defaultSize int64) (*Router, error) {
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating topic cache: %w", err)
	}

	r := &Router{cache: cache}
	r.SetRules(rules, defaultSize)
	return r, nil
}

// SetRules replaces the rule set and purges the topic cache. A catch-all
// rule is synthesized when the given rules lack one.
func (r *Router) SetRules(rules []config.BufferRule, defaultSize int64) {
	if defaultSize <= 0 {
		defaultSize = DefaultLimit
	}

	effective := make([]config.BufferRule, len(rules), len(rules)+1)
	copy(effective, rules)

	hasCatchAll := false
	for _, rule := range effective {
		if rule.Filter == CatchAllFilter {
			hasCatchAll = true
			break
		}
	}
	if !hasCatchAll {
		effective = append(effective, config.BufferRule{
			Filter:   CatchAllFilter,
			MaxBytes: defaultSize,
		})
	}

	r.mu.Lock()
	r.rules = effective
	r.defaultSize = defaultSize
	r.mu.Unlock()

	r.cache.Purge()
}

// Resolve returns the byte budget for topic, consulting the cache first.
func (r *Router) Resolve(topic string) int64 {
	if v, ok := r.cache.Get(topic); ok {
		return v.(int64)
	}

	limit := r.resolveUncached(topic)
	r.cache.Add(topic, limit)
	return limit
}

// resolveUncached scores every rule against the topic. The highest score
// wins; ties go to the first-seen rule. Rules that do not match (including
// misplaced '#' wildcards) never win. With the synthesized catch-all a match
// always exists, but the default budget is returned should that ever fail.
func (r *Router) resolveUncached(topic string) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	best := 0
	limit := r.defaultSize
	for _, rule := range r.rules {
		if score := matchScore(rule.Filter, topic); score > best {
			best = score
			limit = rule.MaxBytes
		}
	}
	return limit
}

// Invalidate purges the topic cache without touching the rules.
func (r *Router) Invalidate() {
	r.cache.Purge()
}

// Stats is a point-in-time snapshot of the router state.
type Stats struct {
	Rules        int `json:"rules"`
	CachedTopics int `json:"cached_topics"`
}

// GetStats reports the effective rule count and cache occupancy.
func (r *Router) GetStats() Stats {
	r.mu.RLock()
	rules := len(r.rules)
	r.mu.RUnlock()

	return Stats{
		Rules:        rules,
		CachedTopics: r.cache.Len(),
	}
}
