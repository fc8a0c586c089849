package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/heitortanoue/warehouse-swarm/pkg/logset"
)

func names(t uint8) string {
	if t == 1 {
		return "loaded"
	}
	return "other"
}

func TestObserveExport(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.ObserveExport(100, false)
	m.ObserveExport(300, true)
	m.ObserveRound()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Oversized))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rounds))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ExportSize))
}

func TestDeliveryTracker(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	tr := NewDeliveryTracker(m, 100, logset.Quantum, names)

	a := logset.Entry{Type: 1, Logger: 3, Time: 10, Content: 7}
	b := logset.Entry{Type: 2, Logger: 4, Time: 12, Content: 1}
	tr.Created(logset.FromEntries(a, b))
	tr.Created(logset.FromEntries(a)) // repeated creation is ignored

	assert.Equal(t, 1.0, testutil.ToFloat64(m.LogsCreated.WithLabelValues("loaded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LogsCreated.WithLabelValues("other")))
	assert.False(t, tr.IsDelivered(a))

	fresh := tr.Delivered(logset.FromEntries(a), 3*time.Second) // stamp 30
	assert.Equal(t, logset.FromEntries(a), fresh)
	assert.True(t, tr.IsDelivered(a))
	assert.Equal(t, 0.5, testutil.ToFloat64(m.DeliveryRatio))

	fresh = tr.Delivered(logset.FromEntries(a, b), 3*time.Second)
	assert.Equal(t, logset.FromEntries(b), fresh)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeliveryRatio))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.LogsCollected))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.UniqueDelivered))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NonUnique))

	stats := tr.GetStats()
	assert.Equal(t, 2, stats["logs_created"])
	assert.Equal(t, uint64(1), stats["logs_repeated"])
}

func TestDeliveryBeforeCreation(t *testing.T) {
	m := NewMetrics(nil)
	tr := NewDeliveryTracker(m, 0, 0, nil)
	e := logset.Entry{Type: 9, Logger: 1, Time: 0, Content: 0}

	assert.Len(t, tr.Delivered(logset.FromEntries(e), time.Second), 1)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.DeliveryRatio))
	tr.Created(logset.FromEntries(e))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeliveryRatio))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LogsCreated.WithLabelValues("unknown")))
}
