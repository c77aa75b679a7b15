package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPrometheus(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg)

	p.AttemptCompleted("Widgets", "CreateWidget", 1, 20*time.Millisecond, errors.New("throttled"))
	p.AttemptCompleted("Widgets", "CreateWidget", 2, 15*time.Millisecond, nil)
	p.CallCompleted("Widgets", "CreateWidget", 2, 40*time.Millisecond, nil)
	p.MarshalCompleted("Widgets", "CreateWidget", time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(p.attempts.WithLabelValues("Widgets", "CreateWidget", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.attempts.WithLabelValues("Widgets", "CreateWidget", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.retries.WithLabelValues("Widgets", "CreateWidget")))

	assert.Equal(t, 1, testutil.CollectAndCount(p.callDuration))
	assert.Equal(t, 1, testutil.CollectAndCount(p.attemptDuration))
	assert.Equal(t, 1, testutil.CollectAndCount(p.marshalDuration))
}

func TestPrometheusFirstAttemptIsNotARetry(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg)

	p.AttemptCompleted("Widgets", "GetWidget", 1, time.Millisecond, nil)

	assert.Equal(t, 0.0, testutil.ToFloat64(p.retries.WithLabelValues("Widgets", "GetWidget")))
}

func TestNop(t *testing.T) {
	c := Nop()
	c.AttemptCompleted("Widgets", "GetWidget", 1, time.Millisecond, nil)
	c.CallCompleted("Widgets", "GetWidget", 1, time.Millisecond, errors.New("boom"))
	c.MarshalCompleted("Widgets", "GetWidget", time.Millisecond)
}
