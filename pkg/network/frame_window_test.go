package network

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/heitortanoue/warehouse-swarm/pkg/aggregate"
)

func TestFrameWindowRefusesRepeatedAndOlderRounds(t *testing.T) {
	w := NewFrameWindow(10)
	inc := uuid.New()

	assert.True(t, w.Admit(1, inc, 5))
	assert.False(t, w.Admit(1, inc, 5), "repeated")
	assert.False(t, w.Admit(1, inc, 3), "reordered")
	assert.True(t, w.Admit(1, inc, 6))
	assert.True(t, w.Admit(2, inc, 1), "rounds are per sender")
}

func TestFrameWindowRestartedSender(t *testing.T) {
	w := NewFrameWindow(10)
	assert.True(t, w.Admit(1, uuid.New(), 40))
	assert.True(t, w.Admit(1, uuid.New(), 1))
	assert.Equal(t, uint64(1), w.GetStats()["restarts"])
}

func TestFrameWindowForgetsLeastRecentSender(t *testing.T) {
	w := NewFrameWindow(2)
	inc := uuid.New()
	w.Admit(1, inc, 1)
	w.Admit(2, inc, 1)
	w.Admit(1, inc, 2) // 1 heard last
	w.Admit(3, inc, 1)

	assert.Equal(t, 2, w.GetStats()["senders"])
	assert.False(t, w.Admit(1, inc, 2), "still tracked")
	assert.True(t, w.Admit(2, inc, 1), "evicted, so admitted again")

	w.Forget(2)
	assert.True(t, w.Admit(2, inc, 1))
}

func TestFrameWindowDefaults(t *testing.T) {
	assert.Equal(t, 1000, NewFrameWindow(0).capacity)
	assert.Equal(t, 7, NewFrameWindow(7).capacity)
}

func TestFrameWindowConcurrent(t *testing.T) {
	w := NewFrameWindow(50)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			inc := uuid.New()
			for j := 0; j < 100; j++ {
				w.Admit(aggregate.DeviceID(base*100+j), inc, 1)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, w.GetStats()["senders"])
}
