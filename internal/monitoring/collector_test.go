package monitoring

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"

	"github.com/tunegate/resolver/internal/model"
	"github.com/tunegate/resolver/internal/resilience"
)

func TestCollector_Counters(t *testing.T) {
	c := NewCollector(nil)

	c.RecordOutcome(true, model.RulePrimaryName)
	c.RecordOutcome(true, model.RuleCache)
	c.RecordOutcome(false, "")
	c.RecordCacheHit(true)
	c.RecordCacheHit(false)
	c.RecordCacheHit(false)
	c.RecordAuthorityFailure("spotify")
	c.RecordAuthorityFailure("spotify")

	snap := c.Snapshot()
	assert.Equal(t, 3, snap.Total)
	assert.Equal(t, 2, snap.Resolved)
	assert.Equal(t, 1, snap.Unresolved)
	assert.Equal(t, 1, snap.ByRule["primary_name"])
	assert.Equal(t, 1, snap.ByRule["cache"])
	assert.InDelta(t, 1.0/3.0, snap.CacheRate, 1e-9)
	assert.Equal(t, 2, snap.AuthorityFailures["spotify"])
	assert.False(t, snap.CollectedAt.IsZero())
}

func TestCollector_BreakerStates(t *testing.T) {
	breakers := resilience.NewAuthorityBreakers(resilience.CircuitBreakerConfig{
		FailureThreshold: 1,
		FailureWindow:    time.Minute,
		ResetTimeout:     time.Minute,
	})
	fail := func(ctx context.Context) error { return eris.New("down") }
	_ = breakers.Get("deezer").Execute(context.Background(), fail)
	breakers.Get("spotify")

	snap := NewCollector(breakers).Snapshot()
	assert.Equal(t, "open", snap.BreakerStates["deezer"])
	assert.Equal(t, "closed", snap.BreakerStates["spotify"])
}
