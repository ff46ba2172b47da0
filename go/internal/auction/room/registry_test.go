package room

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) (*Registry, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	reg := NewRegistry(DefaultConfig(), clock, nil)
	t.Cleanup(reg.Close)
	return reg, clock
}

func TestRegistry_GetOrCreate(t *testing.T) {
	reg, _ := newTestRegistry(t)

	a := reg.GetOrCreate("L1")
	b := reg.GetOrCreate("L1")
	c := reg.GetOrCreate("L2")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, 2, reg.Len())
}

func TestRegistry_ConcurrentJoinSharesRoom(t *testing.T) {
	reg, _ := newTestRegistry(t)

	const joiners = 32
	rooms := make([]*Room, joiners)
	var wg sync.WaitGroup
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("T%d", i)
			r, err := reg.Join("L1", newRecorder(id), RoleTrucker, id)
			if err == nil {
				rooms[i] = r
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, 1, reg.Len())
	for _, r := range rooms {
		assert.Same(t, rooms[0], r)
	}
	assert.Len(t, rooms[0].Snapshot().Truckers, joiners)
}

func TestRegistry_Join(t *testing.T) {
	t.Run("empty_load_id", func(t *testing.T) {
		reg, _ := newTestRegistry(t)

		r, err := reg.Join("", newRecorder("s1"), RoleShipper, "S")

		require.ErrorIs(t, err, ErrEmptyLoadID)
		assert.Nil(t, r)
		assert.Equal(t, 0, reg.Len())
	})

	t.Run("rooms_are_independent", func(t *testing.T) {
		reg, clock := newTestRegistry(t)
		s1 := newRecorder("s1")
		s2 := newRecorder("s2")

		r1, err := reg.Join("L1", s1, RoleShipper, "S")
		require.NoError(t, err)
		_, err = reg.Join("L2", s2, RoleShipper, "S")
		require.NoError(t, err)
		s1.drain()
		s2.drain()

		require.NoError(t, r1.StartBidding(RoleShipper, "S"))
		clock.Advance(time.Second)

		_, _ = s1.next(t)
		assert.Equal(t, 45, s1.nextUpdate(t).RemainingTime)
		assert.Equal(t, 44, s1.nextUpdate(t).RemainingTime)
		s2.assertQuiet(t)
	})
}

func TestRegistry_Sweep(t *testing.T) {
	reg, clock := newTestRegistry(t)
	busy := newRecorder("busy")
	gone := newRecorder("gone")

	_, err := reg.Join("busy", busy, RoleShipper, "S")
	require.NoError(t, err)
	emptied, err := reg.Join("emptied", gone, RoleShipper, "S")
	require.NoError(t, err)
	reg.GetOrCreate("never-joined")

	emptied.Leave(gone, RoleShipper, "S")

	clock.Advance(29 * time.Minute)
	assert.Equal(t, 0, reg.Sweep())
	assert.Equal(t, 3, reg.Len())

	clock.Advance(time.Minute)
	assert.Equal(t, 2, reg.Sweep())

	_, ok := reg.Get("busy")
	assert.True(t, ok)
	_, ok = reg.Get("emptied")
	assert.False(t, ok)
	_, ok = reg.Get("never-joined")
	assert.False(t, ok)
}

func TestRegistry_SweepDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RoomTTL = 0
	clock := clockwork.NewFakeClock()
	reg := NewRegistry(cfg, clock, nil)

	reg.GetOrCreate("L1")
	clock.Advance(24 * time.Hour)

	assert.Equal(t, 0, reg.Sweep())
	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_RunSweepsUntilCancelled(t *testing.T) {
	reg, clock := newTestRegistry(t)
	reg.GetOrCreate("L1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		reg.Run(ctx)
		close(done)
	}()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(31 * time.Minute)

	assert.Eventually(t, func() bool { return reg.Len() == 0 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("registry did not stop")
	}
}

func TestRegistry_Stats(t *testing.T) {
	reg, _ := newTestRegistry(t)

	r1, err := reg.Join("L1", newRecorder("s1"), RoleShipper, "S")
	require.NoError(t, err)
	_, err = reg.Join("L1", newRecorder("t1"), RoleTrucker, "T1")
	require.NoError(t, err)
	_, err = reg.Join("L2", newRecorder("s2"), RoleShipper, "S")
	require.NoError(t, err)
	require.NoError(t, r1.StartBidding(RoleShipper, "S"))

	assert.Equal(t, Stats{Rooms: 2, RunningRooms: 1, Sessions: 3}, reg.Stats())
}
