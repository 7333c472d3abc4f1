package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersAccumulate(t *testing.T) {
	m := New()

	m.Transition("borrow", ResultOK)
	m.Transition("borrow", ResultOK)
	m.Transition("borrow", ResultError)
	m.Notification("borrow_created", ResultDropped)
	m.SetOverdue(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.transitions.WithLabelValues("borrow", ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("borrow", ResultError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("borrow_created", ResultDropped)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.overdue))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Transition("borrow", ResultOK)
		m.Notification("x", ResultSent)
		m.SetOverdue(1)
	})
}
