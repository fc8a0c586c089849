package telemetry

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/heitortanoue/warehouse-swarm/pkg/logset"
)

// DeliveryTracker follows every log from creation to its first delivery at
// a sink. A bloom filter answers the common "never delivered" case; the exact
// set confirms positives.
type DeliveryTracker struct {
	metrics *Metrics
	names   func(uint8) string
	quantum time.Duration

	filter    *bloom.BloomFilter
	delivered map[logset.Entry]struct{}
	created   map[logset.Entry]struct{}
	repeated  uint64
	matched   int // created logs that were delivered
	mutex     sync.Mutex
}

// NewDeliveryTracker sizes the filter for the expected number of logs. names
// labels log types in metrics.
func NewDeliveryTracker(m *Metrics, expected uint, quantum time.Duration, names func(uint8) string) *DeliveryTracker {
	if expected == 0 {
		expected = 10000
	}
	return &DeliveryTracker{
		metrics:   m,
		names:     names,
		quantum:   quantum,
		filter:    bloom.NewWithEstimates(expected, 0.001),
		delivered: make(map[logset.Entry]struct{}),
		created:   make(map[logset.Entry]struct{}),
	}
}

func entryKey(e logset.Entry) []byte {
	var b [10]byte
	b[0] = e.Type
	binary.BigEndian.PutUint32(b[1:5], uint32(e.Logger))
	b[5] = e.Time
	binary.BigEndian.PutUint32(b[6:10], e.Content)
	return b[:]
}

// Created records logs produced by a device
func (t *DeliveryTracker) Created(logs logset.Set) {
	if len(logs) == 0 {
		return
	}
	t.mutex.Lock()
	defer t.mutex.Unlock()
	for _, e := range logs {
		if _, ok := t.created[e]; ok {
			continue
		}
		t.created[e] = struct{}{}
		if _, ok := t.delivered[e]; ok {
			t.matched++
		}
		t.metrics.LogsCreated.WithLabelValues(typeLabel(e, t.names)).Inc()
	}
	t.updateRatio()
}

// Delivered records logs output by a sink whose shared clock reads clock. It
// returns the entries delivered for the first time.
func (t *DeliveryTracker) Delivered(logs logset.Set, clock time.Duration) logset.Set {
	if len(logs) == 0 {
		return nil
	}
	t.mutex.Lock()
	defer t.mutex.Unlock()

	var fresh logset.Set
	for _, e := range logs {
		t.metrics.LogsCollected.Inc()
		key := entryKey(e)
		if t.filter.Test(key) {
			if _, ok := t.delivered[e]; ok {
				t.repeated++
				t.metrics.NonUnique.Inc()
				continue
			}
		}
		t.filter.Add(key)
		t.delivered[e] = struct{}{}
		if _, ok := t.created[e]; ok {
			t.matched++
		}
		fresh = append(fresh, e)
		t.metrics.UniqueDelivered.Inc()
		t.metrics.DeliveryDelay.Observe(logset.Delay(clock, e.Time, t.quantum).Seconds())
	}
	t.updateRatio()
	return fresh
}

func (t *DeliveryTracker) updateRatio() {
	if len(t.created) == 0 {
		return
	}
	t.metrics.DeliveryRatio.Set(float64(t.matched) / float64(len(t.created)))
}

// IsDelivered reports whether a log reached a sink
func (t *DeliveryTracker) IsDelivered(e logset.Entry) bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if !t.filter.Test(entryKey(e)) {
		return false
	}
	_, ok := t.delivered[e]
	return ok
}

// GetStats returns delivery statistics
func (t *DeliveryTracker) GetStats() map[string]interface{} {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return map[string]interface{}{
		"logs_created":   len(t.created),
		"logs_delivered": len(t.delivered),
		"logs_repeated":  t.repeated,
		"filter_fill":    float64(t.filter.ApproximatedSize()) / float64(t.filter.Cap()),
	}
}
