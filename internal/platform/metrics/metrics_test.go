package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveRequest(t *testing.T) {
	before := testutil.ToFloat64(requestTotal.WithLabelValues("GET", "/api/v1/health", "200"))
	ObserveRequest("GET", "/api/v1/health", 200, 5*time.Millisecond)
	after := testutil.ToFloat64(requestTotal.WithLabelValues("GET", "/api/v1/health", "200"))
	assert.Equal(t, before+1, after)
}

func TestJobResult(t *testing.T) {
	assert.Equal(t, "ok", JobResult(nil))
	assert.Equal(t, "error", JobResult(errors.New("boom")))
}
