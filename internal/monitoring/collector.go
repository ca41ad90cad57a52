// Package monitoring gathers resolution counters and breaker states for
// the status command and endpoint.
package monitoring

import (
	"sync"
	"time"

	"github.com/tunegate/resolver/internal/model"
	"github.com/tunegate/resolver/internal/resilience"
)

// StatusSnapshot holds a point-in-time view of resolver health.
type StatusSnapshot struct {
	// Resolution counters since process start.
	Total      int `json:"total"`
	Resolved   int `json:"resolved"`
	Unresolved int `json:"unresolved"`

	// Cache behavior.
	CacheHits   int     `json:"cache_hits"`
	CacheMisses int     `json:"cache_misses"`
	CacheRate   float64 `json:"cache_rate"`

	// Match provenance.
	ByRule map[string]int `json:"by_rule"`

	// Per-authority health.
	BreakerStates     map[string]string `json:"breaker_states"`
	AuthorityFailures map[string]int    `json:"authority_failures"`

	StartedAt   time.Time `json:"started_at"`
	CollectedAt time.Time `json:"collected_at"`
}

// Collector accumulates resolution events. It satisfies the orchestrator's
// Recorder and is safe for concurrent use.
type Collector struct {
	mu         sync.Mutex
	startedAt  time.Time
	total      int
	resolved   int
	unresolved int
	cacheHits  int
	cacheMiss  int
	byRule     map[model.MatchRule]int
	failures   map[string]int

	breakers *resilience.AuthorityBreakers
}

// NewCollector creates a collector reading breaker states from the given
// registry. breakers may be nil when no authorities are configured.
func NewCollector(breakers *resilience.AuthorityBreakers) *Collector {
	return &Collector{
		startedAt: time.Now().UTC(),
		byRule:    make(map[model.MatchRule]int),
		failures:  make(map[string]int),
		breakers:  breakers,
	}
}

// RecordOutcome counts one finished resolution.
func (c *Collector) RecordOutcome(resolved bool, rule model.MatchRule) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.total++
	if resolved {
		c.resolved++
		c.byRule[rule]++
	} else {
		c.unresolved++
	}
}

// RecordCacheHit counts a cache lookup.
func (c *Collector) RecordCacheHit(hit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hit {
		c.cacheHits++
	} else {
		c.cacheMiss++
	}
}

// RecordAuthorityFailure counts a failed authority call.
func (c *Collector) RecordAuthorityFailure(authority string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[authority]++
}

// Snapshot returns the current counters and breaker states.
func (c *Collector) Snapshot() StatusSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := StatusSnapshot{
		Total:             c.total,
		Resolved:          c.resolved,
		Unresolved:        c.unresolved,
		CacheHits:         c.cacheHits,
		CacheMisses:       c.cacheMiss,
		ByRule:            make(map[string]int, len(c.byRule)),
		BreakerStates:     make(map[string]string),
		AuthorityFailures: make(map[string]int, len(c.failures)),
		StartedAt:         c.startedAt,
		CollectedAt:       time.Now().UTC(),
	}
	for rule, n := range c.byRule {
		snap.ByRule[string(rule)] = n
	}
	for name, n := range c.failures {
		snap.AuthorityFailures[name] = n
	}
	if lookups := c.cacheHits + c.cacheMiss; lookups > 0 {
		snap.CacheRate = float64(c.cacheHits) / float64(lookups)
	}
	if c.breakers != nil {
		for name, state := range c.breakers.States() {
			snap.BreakerStates[name] = state.String()
		}
	}
	return snap
}
