package board

import (
	"context"
	"crm/source/schemas"
	"crm/source/utils"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type fakeRemote struct {
	mu      sync.Mutex
	moves   []schemas.TransitionRequest
	moveErr error
	// during runs while the move request is outstanding
	during func()
}

func (f *fakeRemote) GetStagePage(ctx context.Context, request schemas.StagePageRequest) (schemas.StagePage, error) {
	return schemas.StagePage{Items: []schemas.KanbanItem{}}, nil
}

func (f *fakeRemote) GetBatch(ctx context.Context, requests []schemas.StagePageRequest) ([]schemas.BatchItem, error) {
	return nil, nil
}

func (f *fakeRemote) MoveToStage(ctx context.Context, request schemas.TransitionRequest) (schemas.TransitionResult, error) {
	f.mu.Lock()
	f.moves = append(f.moves, request)
	f.mu.Unlock()

	if f.during != nil {
		f.during()
	}
	if f.moveErr != nil {
		return schemas.TransitionResult{}, f.moveErr
	}
	return schemas.TransitionResult{ID: request.FunnelReferenceID}, nil
}

func (f *fakeRemote) moveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.moves)
}

var testFunnel = bson.NewObjectID()

func card(name, stageID string) schemas.KanbanItem {
	return schemas.KanbanItem{ReferenceID: bson.NewObjectID(), OpportunityID: bson.NewObjectID(), FunnelID: testFunnel, StageID: stageID, Name: name}
}

func seed(t *testing.T, cache *QueryCache, key Key, items ...schemas.KanbanItem) {
	t.Helper()
	_, err := cache.Load(context.Background(), key, 1, func(ctx context.Context) (schemas.StagePage, error) {
		return schemas.StagePage{Items: items, ItemsMatched: int64(len(items))}, nil
	})
	require.NoError(t, err)
}

func firstPage(t *testing.T, cache *QueryCache, key Key) schemas.StagePage {
	t.Helper()
	page, ok := cache.Get(key).Page(1)
	require.True(t, ok, "page 1 of %s not cached", key.StageID)
	return page
}

func containsCard(page schemas.StagePage, item schemas.KanbanItem) bool {
	for _, cached := range page.Items {
		if cached.ReferenceID == item.ReferenceID {
			return true
		}
	}
	return false
}

func TestCommitRollsBackOnConflict(t *testing.T) {
	cache := NewQueryCache()
	filters := schemas.StageFilters{}
	source := KeyFor(testFunnel, "NEW", filters)
	target := KeyFor(testFunnel, "CONTACTED", filters)

	x, y := card("X", "NEW"), card("Y", "NEW")
	seed(t, cache, source, x, y)
	seed(t, cache, target)
	before := cache.Snapshot(source, target)

	remote := &fakeRemote{moveErr: &RemoteError{Status: http.StatusConflict, Kind: utils.ErrConflict}}
	remote.during = func() {
		sourcePage := firstPage(t, cache, source)
		targetPage := firstPage(t, cache, target)
		assert.False(t, containsCard(sourcePage, x))
		assert.True(t, containsCard(targetPage, x))
		assert.Equal(t, int64(1), sourcePage.ItemsMatched)
		assert.Equal(t, int64(1), targetPage.ItemsMatched)
		assert.Equal(t, "CONTACTED", targetPage.Items[0].StageID)
	}

	_, err := NewSynchronizer(cache, remote).Commit(context.Background(), Move{
		Item:          x,
		FunnelID:      testFunnel,
		SourceStageID: "NEW",
		TargetStageID: "CONTACTED",
		Filters:       filters,
	})
	require.ErrorIs(t, err, utils.ErrConflict)

	sourcePage := firstPage(t, cache, source)
	targetPage := firstPage(t, cache, target)
	assert.Equal(t, before[source].Pages, cache.Get(source).Pages)
	assert.Equal(t, []schemas.KanbanItem{x, y}, sourcePage.Items)
	assert.Equal(t, int64(2), sourcePage.ItemsMatched)
	assert.Empty(t, targetPage.Items)
	assert.Zero(t, targetPage.ItemsMatched)

	assert.True(t, cache.Get(source).Stale)
	assert.True(t, cache.Get(target).Stale)
	assert.Equal(t, 1, remote.moveCount())
}

func TestCommitKeepsSpeculativeStateUntilRefetch(t *testing.T) {
	cache := NewQueryCache()
	source := KeyFor(testFunnel, "NEW", schemas.StageFilters{})
	target := KeyFor(testFunnel, "CONTACTED", schemas.StageFilters{})

	x := card("X", "NEW")
	seed(t, cache, source, x)

	remote := &fakeRemote{}
	result, err := NewSynchronizer(cache, remote).Commit(context.Background(), Move{
		Item:          x,
		FunnelID:      testFunnel,
		SourceStageID: "NEW",
		TargetStageID: "CONTACTED",
	})
	require.NoError(t, err)
	assert.Equal(t, x.ReferenceID, result.ID)

	require.Len(t, remote.moves, 1)
	assert.Equal(t, "NEW", remote.moves[0].PreviousStageID)
	assert.Equal(t, "CONTACTED", remote.moves[0].NewStageID)

	targetPage := firstPage(t, cache, target)
	require.Len(t, targetPage.Items, 1)
	assert.Equal(t, x.ReferenceID, targetPage.Items[0].ReferenceID)
	assert.Equal(t, int64(1), targetPage.ItemsMatched)
	assert.Empty(t, firstPage(t, cache, source).Items)

	fetched := 0
	_, err = cache.Load(context.Background(), target, 1, func(ctx context.Context) (schemas.StagePage, error) {
		fetched++
		return schemas.StagePage{Items: []schemas.KanbanItem{x}, ItemsMatched: 1}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, fetched)
	assert.False(t, cache.Get(target).Stale)
}

func TestCommitCancelsInFlightReads(t *testing.T) {
	cache := NewQueryCache()
	source := KeyFor(testFunnel, "NEW", schemas.StageFilters{})

	x := card("X", "NEW")
	seed(t, cache, source, x)
	cache.Invalidate(source)

	started := make(chan struct{})
	readErr := make(chan error, 1)
	go func() {
		_, err := cache.Load(context.Background(), source, 1, func(ctx context.Context) (schemas.StagePage, error) {
			close(started)
			<-ctx.Done()
			return schemas.StagePage{}, ctx.Err()
		})
		readErr <- err
	}()
	<-started

	_, err := NewSynchronizer(cache, &fakeRemote{}).Commit(context.Background(), Move{
		Item:          x,
		FunnelID:      testFunnel,
		SourceStageID: "NEW",
		TargetStageID: "WON",
	})
	require.NoError(t, err)

	select {
	case err := <-readErr:
		assert.ErrorIs(t, err, ErrReadSuperseded)
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight read was not cancelled")
	}
	assert.Empty(t, firstPage(t, cache, source).Items)
}

func TestQueryCacheDropsReadsSupersededByWrites(t *testing.T) {
	cache := NewQueryCache()
	key := KeyFor(testFunnel, "NEW", schemas.StageFilters{})

	_, err := cache.Load(context.Background(), key, 1, func(ctx context.Context) (schemas.StagePage, error) {
		cache.Apply(func(current Snapshot) Snapshot {
			return Snapshot{key: prependItem(current[key], card("speculative", "NEW"))}
		}, key)
		return schemas.StagePage{Items: []schemas.KanbanItem{card("stale", "NEW")}}, nil
	})
	assert.ErrorIs(t, err, ErrReadSuperseded)
	assert.Equal(t, "speculative", firstPage(t, cache, key).Items[0].Name)
}

func TestQueryCacheServesFreshPagesWithoutFetching(t *testing.T) {
	cache := NewQueryCache()
	key := KeyFor(testFunnel, "NEW", schemas.StageFilters{})
	seed(t, cache, key, card("X", "NEW"))

	page, err := cache.Load(context.Background(), key, 1, func(ctx context.Context) (schemas.StagePage, error) {
		t.Fatal("fresh page fetched again")
		return schemas.StagePage{}, nil
	})
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)

	_, ok := cache.Get(key).Page(2)
	assert.False(t, ok)
}

func TestKeyIgnoresFilterOrder(t *testing.T) {
	a, b := bson.NewObjectID(), bson.NewObjectID()
	first := KeyFor(testFunnel, "NEW", schemas.StageFilters{Responsibles: []bson.ObjectID{a, b}, Segments: []string{"x", "y"}})
	second := KeyFor(testFunnel, "NEW", schemas.StageFilters{Responsibles: []bson.ObjectID{b, a}, Segments: []string{"y", "x"}})

	assert.Equal(t, first, second)
}
