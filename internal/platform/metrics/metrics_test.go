package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordGeneration(t *testing.T) {
	before := testutil.ToFloat64(generationRequests.WithLabelValues(OutcomeTimeout))
	RecordGeneration(OutcomeTimeout, 2*time.Second)
	after := testutil.ToFloat64(generationRequests.WithLabelValues(OutcomeTimeout))
	assert.Equal(t, before+1, after)
}

func TestRecordAuthAttempt(t *testing.T) {
	before := testutil.ToFloat64(authAttempts.WithLabelValues("login", "false"))
	RecordAuthAttempt("login", false)
	assert.Equal(t, before+1, testutil.ToFloat64(authAttempts.WithLabelValues("login", "false")))
}
