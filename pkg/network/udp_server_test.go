package network

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heitortanoue/warehouse-swarm/pkg/aggregate"
)

func TestUDPServerBroadcast(t *testing.T) {
	tableB := NewNeighborTable(2, time.Minute)
	b, err := NewUDPServer(2, tableB, UDPConfig{Port: 0})
	require.NoError(t, err)
	require.NoError(t, b.Start())
	defer b.Stop()

	a, err := NewUDPServer(1, NewNeighborTable(1, time.Minute), UDPConfig{
		Port:  0,
		Peers: []string{b.LocalAddr().String()},
	})
	require.NoError(t, err)
	require.NoError(t, a.Start())
	defer a.Stop()

	exp := aggregate.Export{aggregate.Root().At(3).Trace(): "hello"}
	require.NoError(t, a.Broadcast(aggregate.Message{From: 1, Position: aggregate.Vec3{1, 2, 0}, Export: exp}))

	assert.Eventually(t, func() bool { return tableB.Count() == 1 }, 2*time.Second, 10*time.Millisecond)
	msgs := tableB.Snapshot(time.Now())
	require.Len(t, msgs, 1)
	assert.Equal(t, aggregate.DeviceID(1), msgs[0].From)
	assert.Equal(t, exp, msgs[0].Export)
	assert.Equal(t, aggregate.Vec3{1, 2, 0}, msgs[0].Position)
	assert.Equal(t, uint64(1), a.GetStats()["frames_sent"])
}

func TestUDPServerNotStarted(t *testing.T) {
	s, err := NewUDPServer(1, NewNeighborTable(1, time.Minute), UDPConfig{})
	require.NoError(t, err)
	assert.Nil(t, s.LocalAddr())
	assert.Error(t, s.Broadcast(aggregate.Message{From: 1, Export: aggregate.Export{}}))
	assert.NoError(t, s.Stop())
}

func TestReceiverDropsDuplicatesAndSelf(t *testing.T) {
	table := NewNeighborTable(2, time.Minute)
	sender := newReceiver(1, NewNeighborTable(1, time.Minute), 10, 0)
	recv := newReceiver(2, table, 10, 0)

	data, err := sender.frame(aggregate.Message{From: 1, Export: aggregate.Export{}})
	require.NoError(t, err)

	now := time.Unix(5, 0)
	require.NoError(t, recv.accept(data, now))
	require.NoError(t, recv.accept(data, now.Add(time.Second)))
	require.NoError(t, sender.accept(data, now))
	assert.Error(t, recv.accept([]byte{0xc1}, now))

	stats := recv.stats()
	assert.Equal(t, uint64(1), stats["frames_recv"])
	assert.Equal(t, uint64(1), stats["duplicates"])
	assert.Equal(t, uint64(1), stats["decode_errors"])
	assert.Equal(t, now, table.Snapshot(now)[0].Received)
	assert.Equal(t, 0, sender.table.Count())
}

func TestReceiverSizeCeiling(t *testing.T) {
	rec := &sizeRecorder{}
	r := newReceiver(1, NewNeighborTable(1, time.Minute), 10, 4)
	r.observer = rec
	_, err := r.frame(aggregate.Message{From: 1, Export: aggregate.Export{aggregate.Root().Trace(): "too long for the ceiling"}})
	assert.ErrorIs(t, err, ErrOversized)
	assert.Equal(t, 1, rec.oversized)
}

func TestReceiverKeepsNewestRound(t *testing.T) {
	table := NewNeighborTable(2, time.Minute)
	sender := newReceiver(1, NewNeighborTable(1, time.Minute), 10, 0)
	recv := newReceiver(2, table, 10, 0)

	first, err := sender.frame(aggregate.Message{From: 1, Position: aggregate.Vec3{1, 0, 0}, Export: aggregate.Export{}})
	require.NoError(t, err)
	second, err := sender.frame(aggregate.Message{From: 1, Position: aggregate.Vec3{2, 0, 0}, Export: aggregate.Export{}})
	require.NoError(t, err)

	now := time.Unix(5, 0)
	require.NoError(t, recv.accept(second, now))
	require.NoError(t, recv.accept(first, now.Add(time.Second)), "late frame")

	msgs := table.Snapshot(now.Add(time.Second))
	require.Len(t, msgs, 1)
	assert.Equal(t, aggregate.Vec3{2, 0, 0}, msgs[0].Position)
	assert.Equal(t, uint64(1), recv.stats()["duplicates"])
}
