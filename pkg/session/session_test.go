package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	closed bool
}

func (f *fakeTransport) Close() error {
	f.closed = true
	return nil
}

func TestReserveInsertTouchClose(t *testing.T) {
	m := New(10, time.Hour, time.Second)
	defer m.Shutdown()

	tracker, ok := m.ReserveSlot()
	require.True(t, ok)
	assert.Equal(t, 1, m.InFlight())

	tr := &fakeTransport{}
	entry := m.Insert(tracker, "sess-1", tr)
	assert.Equal(t, "sess-1", entry.ID)
	assert.Equal(t, 0, m.InFlight())
	assert.Equal(t, 1, m.Count())

	m.Touch("sess-1")
	got, ok := m.Get("sess-1")
	require.True(t, ok)
	assert.Equal(t, "sess-1", got.ID)

	m.Close("sess-1")
	_, ok = m.Get("sess-1")
	assert.False(t, ok)
	assert.True(t, tr.closed)
}

func TestReserveSlotReleaseIsIdempotent(t *testing.T) {
	m := New(10, time.Hour, time.Second)
	defer m.Shutdown()

	tracker, ok := m.ReserveSlot()
	require.True(t, ok)
	tracker.Release()
	tracker.Release()
	assert.Equal(t, 0, m.InFlight())
}

func TestCapacityEvictsOldestToAdmitNew(t *testing.T) {
	m := New(2, time.Hour, time.Second)
	defer m.Shutdown()

	t1, _ := m.ReserveSlot()
	m.Insert(t1, "a", &fakeTransport{})
	t2, _ := m.ReserveSlot()
	m.Insert(t2, "b", &fakeTransport{})

	t3, ok := m.ReserveSlot()
	require.True(t, ok, "reservation should succeed by evicting the oldest session")
	m.Insert(t3, "c", &fakeTransport{})

	_, ok = m.Get("a")
	assert.False(t, ok, "oldest session should have been evicted")
	assert.Equal(t, 2, m.Count())
}

func TestCapacityRejectsWhenFull(t *testing.T) {
	m := New(1, time.Hour, time.Second)
	defer m.Shutdown()

	t1, ok := m.ReserveSlot()
	require.True(t, ok)
	// Slot held but not yet inserted: inFlight occupies the single slot.
	_, ok = m.ReserveSlot()
	assert.False(t, ok)
	t1.Release()
}

func TestInvariant_InFlightPlusSessionsNeverExceedsMax(t *testing.T) {
	m := New(3, time.Hour, time.Second)
	defer m.Shutdown()

	var trackers []*SlotTracker
	admitted := 0
	for i := 0; i < 10; i++ {
		tr, ok := m.ReserveSlot()
		if !ok {
			continue
		}
		admitted++
		trackers = append(trackers, tr)
		assert.LessOrEqual(t, m.InFlight()+m.Count(), 3)
	}
	for _, tr := range trackers {
		tr.Release()
	}
}
