package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)
	// second call must not panic on duplicate registration
	Register(reg)

	RecordDecision(OutcomeAdmitted, time.Millisecond)
	families, err := reg.Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["rate_validator_gate_decisions_total"])
	assert.True(t, names["rate_validator_gate_decision_duration_seconds"])
}

func TestRecorders(t *testing.T) {
	before := testutil.ToFloat64(Decisions(OutcomeDuplicate))
	RecordDecision(OutcomeDuplicate, 2*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(Decisions(OutcomeDuplicate)))

	hits := testutil.ToFloat64(Lookups("local", ResultHit))
	RecordLookup("local", ResultHit)
	assert.Equal(t, hits+1, testutil.ToFloat64(Lookups("local", ResultHit)))

	failed := testutil.ToFloat64(cacheWrites.WithLabelValues("shared", ResultError))
	RecordWrite("shared", errors.New("boom"))
	assert.Equal(t, failed+1, testutil.ToFloat64(cacheWrites.WithLabelValues("shared", ResultError)))
}
