package service

import (
	"errors"
	"testing"
	"time"

	"github.com/Freeeeeet/tutor_chat/internal/repository"
	"github.com/Freeeeeet/tutor_chat/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateCheck(t *testing.T) {
	f := newFixture(t)
	f.student(t, "s1")
	f.instructor(t, "i1")

	active, err := f.gate.Check(f.ctx, "s1", "i1")
	require.NoError(t, err)
	assert.True(t, active, "no record keeps the gate open")

	rel, err := f.relationships.SendRequest(f.ctx, "s1", "i1")
	require.NoError(t, err)
	active, err = f.gate.Check(f.ctx, "i1", "s1")
	require.NoError(t, err)
	assert.True(t, active, "pending keeps the gate open")

	_, err = f.relationships.Deny(f.ctx, "i1", rel.ID)
	require.NoError(t, err)
	active, err = f.gate.Check(f.ctx, "s1", "i1")
	require.NoError(t, err)
	assert.False(t, active, "denied closes the gate")

	_, err = f.gate.Check(f.ctx, "s1", "s1")
	assert.ErrorIs(t, err, ErrInvalidParticipants)
}

func TestGateCheckPropagatesStoreErrors(t *testing.T) {
	f := newFixture(t)
	f.student(t, "s1")
	f.instructor(t, "i1")

	boom := errors.New("query failed")
	f.store.SetFault(func(op, collection, id string) error {
		if op == memory.OpQuery && collection == repository.RelationshipsCollection {
			return boom
		}
		return nil
	})

	_, err := f.gate.Check(f.ctx, "s1", "i1")
	assert.ErrorIs(t, err, boom)
}

func TestGateWatcherFlipsOnBlockAndUnblock(t *testing.T) {
	f := newFixture(t)
	f.student(t, "s1")
	f.instructor(t, "i1")
	f.approved(t, "s1", "i1")

	w := f.gate.NewWatcher()
	defer w.Stop()
	require.NoError(t, w.Watch(f.ctx, "s1", "i1"))
	assert.True(t, w.Active())

	_, err := f.relationships.Block(f.ctx, "i1", "s1")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return !w.Active() }, waitFor, tick)

	require.NoError(t, f.relationships.Unblock(f.ctx, "i1", "s1"))
	require.Eventually(t, w.Active, waitFor, tick)
}

func TestGateWatcherPublishesUpdates(t *testing.T) {
	f := newFixture(t)
	f.student(t, "s1")
	f.instructor(t, "i1")

	w := f.gate.NewWatcher()
	defer w.Stop()
	require.NoError(t, w.Watch(f.ctx, "s1", "i1"))

	_, err := f.relationships.Block(f.ctx, "s1", "i1")
	require.NoError(t, err)

	deadline := time.After(waitFor)
	for {
		select {
		case active := <-w.Updates():
			if !active {
				return
			}
		case <-deadline:
			t.Fatal("gate did not report inactive")
		}
	}
}

func TestGateWatcherSwitchDropsPreviousPair(t *testing.T) {
	f := newFixture(t)
	f.student(t, "s1")
	f.student(t, "s2")
	f.instructor(t, "i1")

	_, err := f.relationships.Block(f.ctx, "i1", "s1")
	require.NoError(t, err)

	w := f.gate.NewWatcher()
	defer w.Stop()
	require.NoError(t, w.Watch(f.ctx, "s1", "i1"))
	require.Eventually(t, func() bool { return !w.Active() }, waitFor, tick)

	require.NoError(t, w.Watch(f.ctx, "s2", "i1"))
	assert.True(t, w.Active(), "switching resets to open")

	// изменения прежней пары больше не влияют на сигнал
	_, err = f.relationships.Block(f.ctx, "s1", "i1")
	require.NoError(t, err)
	assert.Never(t, func() bool { return !w.Active() }, 100*time.Millisecond, tick)
}

func TestGateWatcherStopResetsToOpen(t *testing.T) {
	f := newFixture(t)
	f.student(t, "s1")
	f.instructor(t, "i1")

	_, err := f.relationships.Block(f.ctx, "i1", "s1")
	require.NoError(t, err)

	w := f.gate.NewWatcher()
	require.NoError(t, w.Watch(f.ctx, "s1", "i1"))
	require.Eventually(t, func() bool { return !w.Active() }, waitFor, tick)

	w.Stop()
	assert.True(t, w.Active())
}

func TestGateWatcherFailsOpen(t *testing.T) {
	f := newFixture(t)
	f.student(t, "s1")
	f.instructor(t, "i1")

	_, err := f.relationships.Block(f.ctx, "i1", "s1")
	require.NoError(t, err)

	f.store.SetFault(func(op, collection, id string) error {
		if op == memory.OpQuery && collection == repository.RelationshipsCollection {
			return errors.New("listener failed")
		}
		return nil
	})

	w := f.gate.NewWatcher()
	defer w.Stop()
	require.NoError(t, w.Watch(f.ctx, "s1", "i1"))
	assert.Never(t, func() bool { return !w.Active() }, 100*time.Millisecond, tick)
}

func TestGateWatcherRejectsAmbiguousRoles(t *testing.T) {
	f := newFixture(t)
	f.student(t, "s1")
	f.student(t, "s2")

	w := f.gate.NewWatcher()
	err := w.Watch(f.ctx, "s1", "s2")
	assert.ErrorIs(t, err, ErrInvalidParticipants)
	assert.True(t, w.Active())
}

func TestGateWatcherReadsBlockedPairBeforeFirstSnapshot(t *testing.T) {
	f := newFixture(t)
	f.student(t, "s1")
	f.instructor(t, "i1")

	_, err := f.relationships.Block(f.ctx, "i1", "s1")
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		w := f.gate.NewWatcher()
		require.NoError(t, w.Watch(f.ctx, "s1", "i1"))
		assert.False(t, w.Active(), "attempt %d", i)
		w.Stop()
	}
}

func TestGateWatcherFailedSwitchDropsPreviousPair(t *testing.T) {
	f := newFixture(t)
	f.student(t, "s1")
	f.instructor(t, "i1")

	_, err := f.relationships.Block(f.ctx, "i1", "s1")
	require.NoError(t, err)

	w := f.gate.NewWatcher()
	defer w.Stop()
	require.NoError(t, w.Watch(f.ctx, "s1", "i1"))
	require.False(t, w.Active())

	assert.ErrorIs(t, w.Watch(f.ctx, "s1", "s1"), ErrInvalidParticipants)
	assert.True(t, w.Active(), "failed switch still resets to open")

	// подписка на прежнюю пару отменена
	require.NoError(t, f.relationships.Unblock(f.ctx, "i1", "s1"))
	_, err = f.relationships.Block(f.ctx, "s1", "i1")
	require.NoError(t, err)
	assert.Never(t, func() bool { return !w.Active() }, 100*time.Millisecond, tick)
}
