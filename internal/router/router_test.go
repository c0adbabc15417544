package router

import (
	"testing"

	"github.com/nerrad567/mqttscope/internal/infrastructure/config"
)

func TestMatchScore(t *testing.T) {
	tests := []struct {
		name   string
		filter string
		topic  string
		want   int
	}{
		{
			name:   "exact match short-circuits",
			filter: "sensor/1/temp",
			topic:  "sensor/1/temp",
			want:   1000,
		},
		{
			name:   "single-level wildcard",
			filter: "sensor/+/temp",
			topic:  "sensor/1/temp",
			want:   25,
		},
		{
			name:   "terminal multi-level with extra levels",
			filter: "sensor/#",
			topic:  "sensor/a/b",
			want:   11,
		},
		{
			name:   "terminal multi-level with zero extra levels",
			filter: "sensor/#",
			topic:  "sensor",
			want:   11,
		},
		{
			name:   "bare catch-all",
			filter: "#",
			topic:  "metrics/cpu",
			want:   1,
		},
		{
			name:   "non-terminal multi-level never matches",
			filter: "a/#/b",
			topic:  "a/x/b",
			want:   -1,
		},
		{
			name:   "literal mismatch",
			filter: "sensor/1/temp",
			topic:  "sensor/2/temp",
			want:   -1,
		},
		{
			name:   "topic longer than filter",
			filter: "a/b",
			topic:  "a/b/c",
			want:   -1,
		},
		{
			name:   "topic shorter than filter",
			filter: "a/b/c",
			topic:  "a/b",
			want:   -1,
		},
		{
			name:   "plus requires a segment to consume",
			filter: "a/+",
			topic:  "a",
			want:   -1,
		},
		{
			name:   "all single-level wildcards",
			filter: "+/+/+",
			topic:  "a/b/c",
			want:   15,
		},
		{
			name:   "specific prefix beats catch-all in scale",
			filter: "metrics/#",
			topic:  "metrics/cpu",
			want:   11,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchScore(tt.filter, tt.topic); got != tt.want {
				t.Errorf("matchScore(%q, %q) = %d, want %d", tt.filter, tt.topic, got, tt.want)
			}
		})
	}
}

func TestMatchScore_ExactBeatsWildcard(t *testing.T) {
	wildcard := matchScore("sensor/+/temp", "sensor/1/temp")
	exact := matchScore("sensor/1/temp", "sensor/1/temp")

	if wildcard <= 0 {
		t.Fatalf("wildcard score = %d, want > 0", wildcard)
	}
	if wildcard >= exact {
		t.Fatalf("wildcard score %d not below exact score %d", wildcard, exact)
	}
}

func TestRouter_Resolve(t *testing.T) {
	rules := []config.BufferRule{
		{Filter: "#", MaxBytes: 1024 * 1024},
		{Filter: "metrics/#", MaxBytes: 100 * 1024},
		{Filter: "metrics/cpu", MaxBytes: 4096},
	}
	r, err := New(rules, 1024*1024)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tests := []struct {
		topic string
		want  int64
	}{
		{"metrics/cpu", 4096},            // exact beats everything
		{"metrics/mem", 100 * 1024},      // metrics/# beats #
		{"sensor/1/temp", 1024 * 1024},   // only the catch-all matches
		{"metrics/disk/sda", 100 * 1024}, // multi-level under metrics
	}

	for _, tt := range tests {
		if got := r.Resolve(tt.topic); got != tt.want {
			t.Errorf("Resolve(%q) = %d, want %d", tt.topic, got, tt.want)
		}
	}
}

func TestRouter_TieBreaksToFirstRule(t *testing.T) {
	// Both rules score 15 against a/b; the first configured one must win.
	rules := []config.BufferRule{
		{Filter: "a/+", MaxBytes: 111},
		{Filter: "+/b", MaxBytes: 222},
	}
	r, err := New(rules, 0)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if got := r.Resolve("a/b"); got != 111 {
		t.Errorf("Resolve(a/b) = %d, want 111 (first-seen rule wins ties)", got)
	}
}

func TestRouter_SynthesizesCatchAll(t *testing.T) {
	rules := []config.BufferRule{
		{Filter: "metrics/#", MaxBytes: 100 * 1024},
	}
	r, err := New(rules, 64*1024)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if got := r.Resolve("unrelated/topic"); got != 64*1024 {
		t.Errorf("Resolve(unrelated/topic) = %d, want synthesized catch-all 65536", got)
	}

	stats := r.GetStats()
	if stats.Rules != 2 {
		t.Errorf("GetStats().Rules = %d, want 2 (one configured + synthesized #)", stats.Rules)
	}
}

func TestRouter_BuiltinDefaultWhenUnconfigured(t *testing.T) {
	r, err := New(nil, 0)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if got := r.Resolve("any/topic"); got != DefaultLimit {
		t.Errorf("Resolve(any/topic) = %d, want built-in default %d", got, DefaultLimit)
	}
}

func TestRouter_MisplacedWildcardRuleNeverMatches(t *testing.T) {
	rules := []config.BufferRule{
		{Filter: "a/#/b", MaxBytes: 1},
		{Filter: "#", MaxBytes: 2048},
	}
	r, err := New(rules, 0)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if got := r.Resolve("a/x/b"); got != 2048 {
		t.Errorf("Resolve(a/x/b) = %d, want 2048 (misplaced # rule rejected)", got)
	}
}

func TestRouter_SetRulesPurgesCache(t *testing.T) {
	r, err := New([]config.BufferRule{{Filter: "#", MaxBytes: 1024}}, 1024)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if got := r.Resolve("sensor/1"); got != 1024 {
		t.Fatalf("Resolve(sensor/1) = %d, want 1024", got)
	}
	if stats := r.GetStats(); stats.CachedTopics != 1 {
		t.Fatalf("GetStats().CachedTopics = %d, want 1", stats.CachedTopics)
	}

	r.SetRules([]config.BufferRule{{Filter: "#", MaxBytes: 4096}}, 4096)

	if stats := r.GetStats(); stats.CachedTopics != 0 {
		t.Errorf("GetStats().CachedTopics = %d after SetRules, want 0", stats.CachedTopics)
	}
	if got := r.Resolve("sensor/1"); got != 4096 {
		t.Errorf("Resolve(sensor/1) = %d after SetRules, want 4096", got)
	}
}

func TestRouter_Invalidate(t *testing.T) {
	r, err := New(nil, 1024)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	r.Resolve("a")
	r.Resolve("b")
	if stats := r.GetStats(); stats.CachedTopics != 2 {
		t.Fatalf("GetStats().CachedTopics = %d, want 2", stats.CachedTopics)
	}

	r.Invalidate()

	if stats := r.GetStats(); stats.CachedTopics != 0 {
		t.Errorf("GetStats().CachedTopics = %d after Invalidate, want 0", stats.CachedTopics)
	}
}
