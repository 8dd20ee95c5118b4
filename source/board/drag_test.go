package board

import (
	"context"
	"crm/source/schemas"
	"crm/source/utils"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitSettlement(t *testing.T, done <-chan Settlement) Settlement {
	t.Helper()
	select {
	case settlement := <-done:
		return settlement
	case <-time.After(2 * time.Second):
		t.Fatal("drop did not settle")
	}
	return Settlement{}
}

func TestOrchestratorCommitsDrop(t *testing.T) {
	cache := NewQueryCache()
	release := make(chan struct{})
	remote := &fakeRemote{during: func() { <-release }}

	settled := []Settlement{}
	orchestrator := NewOrchestrator(NewSynchronizer(cache, remote), testFunnel, schemas.StageFilters{}, func(s Settlement) {
		settled = append(settled, s)
	})
	x := card("X", "NEW")

	require.NoError(t, orchestrator.DragStart(x, "NEW"))
	assert.Equal(t, Dragging, orchestrator.State())
	assert.ErrorIs(t, orchestrator.DragStart(card("Y", "NEW"), "NEW"), ErrDragInProgress)

	done, err := orchestrator.DragEnd(context.Background(), "CONTACTED")
	require.NoError(t, err)
	assert.Equal(t, Committing, orchestrator.State())
	assert.ErrorIs(t, orchestrator.DragStart(card("Y", "NEW"), "NEW"), ErrDragInProgress)
	assert.ErrorIs(t, orchestrator.DragCancel(), ErrDragInProgress)

	close(release)
	settlement := waitSettlement(t, done)

	assert.NoError(t, settlement.Err)
	assert.False(t, settlement.Skipped)
	assert.Equal(t, "NEW", settlement.SourceStageID)
	assert.Equal(t, "CONTACTED", settlement.TargetStageID)
	assert.Equal(t, x.ReferenceID, settlement.Result.ID)
	assert.Equal(t, Idle, orchestrator.State())
	assert.Len(t, settled, 1)
	assert.Equal(t, 1, remote.moveCount())
}

func TestOrchestratorDropOnSameStageIsNoOp(t *testing.T) {
	remote := &fakeRemote{}
	orchestrator := NewOrchestrator(NewSynchronizer(NewQueryCache(), remote), testFunnel, schemas.StageFilters{}, nil)

	require.NoError(t, orchestrator.DragStart(card("X", "NEW"), "NEW"))
	done, err := orchestrator.DragEnd(context.Background(), "NEW")
	require.NoError(t, err)

	settlement := waitSettlement(t, done)
	assert.True(t, settlement.Skipped)
	assert.Equal(t, Idle, orchestrator.State())
	assert.Zero(t, remote.moveCount())
}

func TestOrchestratorCancelAndMisuse(t *testing.T) {
	cache := NewQueryCache()
	remote := &fakeRemote{}
	orchestrator := NewOrchestrator(NewSynchronizer(cache, remote), testFunnel, schemas.StageFilters{}, nil)

	_, err := orchestrator.DragEnd(context.Background(), "WON")
	assert.ErrorIs(t, err, ErrNotDragging)
	assert.NoError(t, orchestrator.DragCancel())

	source := KeyFor(testFunnel, "NEW", schemas.StageFilters{})
	x := card("X", "NEW")
	seed(t, cache, source, x)
	before := cache.Get(source)

	require.NoError(t, orchestrator.DragStart(x, "NEW"))
	require.NoError(t, orchestrator.DragCancel())

	assert.Equal(t, Idle, orchestrator.State())
	assert.Same(t, before, cache.Get(source))
	assert.Zero(t, remote.moveCount())
}

func TestOrchestratorSettlesFailedDrop(t *testing.T) {
	cache := NewQueryCache()
	source := KeyFor(testFunnel, "NEW", schemas.StageFilters{})
	x := card("X", "NEW")
	seed(t, cache, source, x)

	remote := &fakeRemote{moveErr: &RemoteError{Status: 404, Kind: utils.ErrNotFound}}
	orchestrator := NewOrchestrator(NewSynchronizer(cache, remote), testFunnel, schemas.StageFilters{}, nil)

	require.NoError(t, orchestrator.DragStart(x, "NEW"))
	done, err := orchestrator.DragEnd(context.Background(), "LOST")
	require.NoError(t, err)

	settlement := waitSettlement(t, done)
	assert.True(t, errors.Is(settlement.Err, utils.ErrNotFound))
	assert.Equal(t, Idle, orchestrator.State())
	assert.Equal(t, []schemas.KanbanItem{x}, firstPage(t, cache, source).Items)

	require.NoError(t, orchestrator.DragStart(x, "NEW"))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "dragging", Dragging.String())
	assert.Equal(t, "committing", Committing.String())
}
