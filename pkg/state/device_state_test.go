package state

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heitortanoue/warehouse-swarm/pkg/logset"
)

func TestNewDeviceState(t *testing.T) {
	ds := NewDeviceState(4, Wearable, 0)
	s := ds.Snapshot()

	assert.Equal(t, Wearable, s.Type)
	assert.Equal(t, NoGoods, s.Loaded)
	assert.Equal(t, NoGoods, s.Loading)
	assert.Equal(t, NoGoods, s.Query)
	assert.Empty(t, s.Collected)
}

func TestUpdateKeepsIdentity(t *testing.T) {
	ds := NewDeviceState(4, Pallet, 0)
	ds.Update(func(s *Snapshot) {
		s.ID = 99
		s.Type = Wearable
		s.Loaded = 12
	})
	s := ds.Snapshot()
	assert.Equal(t, uint32(4), uint32(s.ID))
	assert.Equal(t, Pallet, s.Type)
	assert.Equal(t, Goods(12), s.Loaded)
}

func TestSetIntentIncrementsSeq(t *testing.T) {
	ds := NewDeviceState(1, Wearable, 0)
	assert.Equal(t, uint16(1), ds.SetIntent(5))
	assert.Equal(t, uint16(2), ds.SetIntent(UnloadGoods))
	assert.Equal(t, UnloadGoods, ds.Snapshot().Loading)
}

func TestCollectedIsBounded(t *testing.T) {
	ds := NewDeviceState(1, Wearable, 3)
	for i := 0; i < 5; i++ {
		ds.AddCollected(logset.Entry{Content: uint32(i)})
	}
	s := ds.Snapshot()
	assert.Len(t, s.Collected, 3)
	assert.Equal(t, uint32(2), s.Collected[0].Content)

	// snapshots are copies
	s.Collected[0].Content = 100
	assert.Equal(t, uint32(2), ds.Snapshot().Collected[0].Content)
}

func TestConcurrentUpdates(t *testing.T) {
	ds := NewDeviceState(1, Pallet, 0)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ds.Update(func(s *Snapshot) { s.Loaded++ })
			_ = ds.GetStats()
		}()
	}
	wg.Wait()
	// NoGoods (255) wraps to 0 on the first increment
	assert.Equal(t, Goods(49), ds.Snapshot().Loaded)
}

func TestGoodsString(t *testing.T) {
	assert.Equal(t, "none", NoGoods.String())
	assert.Equal(t, "unload", UnloadGoods.String())
	assert.Equal(t, "goods-7", Goods(7).String())
	assert.Equal(t, "wearable", Wearable.String())
}

func TestRecordRoundtrip(t *testing.T) {
	ds := NewDeviceState(4, Wearable, 0)
	ds.Update(func(s *Snapshot) {
		s.Loaded = 12
		s.Query = 7
		s.Handled = true
	})
	seq := ds.SetIntent(UnloadGoods)

	restored := NewDeviceState(4, Wearable, 0)
	require.NoError(t, restored.RestoreRecord(ds.MarshalRecord()))

	s := restored.Snapshot()
	assert.Equal(t, Goods(12), s.Loaded)
	assert.Equal(t, Goods(7), s.Query)
	assert.Equal(t, UnloadGoods, s.Loading)
	assert.Equal(t, seq, s.LoadingSeq)
	assert.False(t, s.Handled, "transient fields are not persisted")
}

func TestRestoreRecordRejectsGarbage(t *testing.T) {
	ds := NewDeviceState(1, Pallet, 0)
	assert.Error(t, ds.RestoreRecord(nil))
	assert.Error(t, ds.RestoreRecord([]byte{0x92, 0x01, 0x02}))
	assert.Equal(t, NoGoods, ds.Snapshot().Loaded)
}
