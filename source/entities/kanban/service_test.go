package kanban

import (
	"context"
	funnelreferences "crm/source/entities/funnel_references"
	"crm/source/schemas"
	"crm/source/utils"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

var (
	funnelID    = bson.NewObjectID()
	seller      = bson.NewObjectID()
	otherSeller = bson.NewObjectID()
	partner     = bson.NewObjectID()
	baseTime    = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
)

type board struct {
	references    *funnelreferences.MemoryStore
	opportunities *MemoryOpportunities
	// newest first, the order pages are served in
	ids []bson.ObjectID
}

// newBoard places n opportunities on stage NEW; every third one belongs to
// otherSeller and every fourth one is won.
func newBoard(t *testing.T, n int) *board {
	t.Helper()
	b := &board{
		references:    funnelreferences.NewMemoryStore(),
		opportunities: NewMemoryOpportunities(),
	}

	for i := 0; i < n; i++ {
		opportunity := schemas.Opportunity{
			Name:         fmt.Sprintf("Oportunidade %02d", i),
			Type:         "b2b",
			Segment:      "esporte",
			Responsibles: []bson.ObjectID{seller},
			PartnerID:    partner,
			CreatedAt:    baseTime.AddDate(0, 0, i),
		}
		if i%3 == 0 {
			opportunity.Responsibles = []bson.ObjectID{otherSeller}
		}
		if i%4 == 0 {
			wonAt := baseTime.AddDate(0, 1, 0)
			opportunity.WonAt = &wonAt
		}
		opportunityID := b.opportunities.Put(opportunity)

		reference, err := schemas.NewFunnelReference(opportunityID, funnelID, partner, "NEW", baseTime)
		require.NoError(t, err)
		require.NoError(t, b.references.InsertOne(context.Background(), &reference))
		b.ids = append([]bson.ObjectID{reference.ID}, b.ids...)
	}
	return b
}

func (b *board) service(opts ...Option) *Service {
	return NewService(b.references, b.opportunities, Config{DefaultPageSize: 4}, opts...)
}

func referenceIDs(page schemas.StagePage) []bson.ObjectID {
	ids := []bson.ObjectID{}
	for _, item := range page.Items {
		ids = append(ids, item.ReferenceID)
	}
	return ids
}

func TestStagePagesAreDisjointAndNewestFirst(t *testing.T) {
	b := newBoard(t, 10)
	service := b.service()
	ctx := context.Background()

	request := schemas.StagePageRequest{FunnelID: funnelID, StageID: "NEW"}
	seen := []bson.ObjectID{}

	page, err := service.GetStagePage(ctx, 1, request)
	require.NoError(t, err)
	assert.Equal(t, int64(10), page.ItemsMatched)
	assert.True(t, page.HasNextPage)
	assert.False(t, page.HasPreviousPage)
	assert.Nil(t, page.PreviousCursor)
	require.NotNil(t, page.NextCursor)
	assert.Equal(t, 2, *page.NextCursor)
	seen = append(seen, referenceIDs(page)...)

	for page.NextCursor != nil {
		request.Page = *page.NextCursor
		page, err = service.GetStagePage(ctx, 1, request)
		require.NoError(t, err)
		assert.True(t, page.HasPreviousPage)
		assert.Equal(t, request.Page-1, *page.PreviousCursor)
		seen = append(seen, referenceIDs(page)...)
	}

	assert.Equal(t, 3, request.Page)
	assert.Len(t, page.Items, 2)
	assert.False(t, page.HasNextPage)
	assert.Equal(t, b.ids, seen)
}

func TestStagePageExactlyFullHasNoNextPage(t *testing.T) {
	b := newBoard(t, 4)

	page, err := b.service().GetStagePage(context.Background(), 1, schemas.StagePageRequest{FunnelID: funnelID, StageID: "NEW"})
	require.NoError(t, err)

	assert.Len(t, page.Items, 4)
	assert.False(t, page.HasNextPage)
	assert.Nil(t, page.NextCursor)
}

func TestStagePageJoinsOpportunityData(t *testing.T) {
	b := newBoard(t, 1)

	page, err := b.service().GetStagePage(context.Background(), 1, schemas.StagePageRequest{FunnelID: funnelID, StageID: "NEW"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)

	item := page.Items[0]
	assert.Equal(t, "Oportunidade 00", item.Name)
	assert.Equal(t, schemas.OPPORTUNITY_STATUS_WON, item.Status)
	assert.Equal(t, "NEW", item.StageID)
	require.NotNil(t, item.StageEnteredAt)
	assert.Equal(t, baseTime, *item.StageEnteredAt)
}

func TestStagePageFilters(t *testing.T) {
	b := newBoard(t, 12)
	service := b.service()

	tests := []struct {
		name    string
		filters schemas.StageFilters
		matched int64
	}{
		{"no filters", schemas.StageFilters{}, 12},
		{"responsible", schemas.StageFilters{Responsibles: []bson.ObjectID{otherSeller}}, 4},
		{"won", schemas.StageFilters{Status: schemas.OPPORTUNITY_STATUS_WON}, 3},
		{"ongoing", schemas.StageFilters{Status: schemas.OPPORTUNITY_STATUS_ONGOING}, 9},
		{"lost", schemas.StageFilters{Status: schemas.OPPORTUNITY_STATUS_LOST}, 0},
		{"type and segment", schemas.StageFilters{OpportunityTypes: []string{"b2b"}, Segments: []string{"esporte"}}, 12},
		{"other segment", schemas.StageFilters{Segments: []string{"escolar"}}, 0},
		{"marketing", schemas.StageFilters{IsFromMarketing: true}, 0},
		{"created in first week", schemas.StageFilters{Period: &schemas.PeriodFilter{After: "2024-03-01", Before: "2024-03-07"}}, 7},
		{"won in april", schemas.StageFilters{Period: &schemas.PeriodFilter{Field: schemas.PERIOD_FIELD_WON_AT, After: "2024-04-01T00:00:00Z"}}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := service.GetStagePage(context.Background(), 1, schemas.StagePageRequest{
				FunnelID: funnelID,
				StageID:  "NEW",
				Filters:  tt.filters,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.matched, page.ItemsMatched)
		})
	}
}

func TestStagePageRejectsInvalidRequests(t *testing.T) {
	service := newBoard(t, 1).service()

	tests := map[string]schemas.StagePageRequest{
		"missing funnel":  {StageID: "NEW"},
		"missing stage":   {FunnelID: funnelID},
		"reserved stage":  {FunnelID: funnelID, StageID: "$where"},
		"negative page":   {FunnelID: funnelID, StageID: "NEW", Page: -1},
		"page size":       {FunnelID: funnelID, StageID: "NEW", PageSize: 500},
		"page overflow":   {FunnelID: funnelID, StageID: "NEW", Page: 1 << 62, PageSize: 100},
		"status":          {FunnelID: funnelID, StageID: "NEW", Filters: schemas.StageFilters{Status: "paused"}},
		"period field":    {FunnelID: funnelID, StageID: "NEW", Filters: schemas.StageFilters{Period: &schemas.PeriodFilter{Field: "updated_at", After: "2024-01-01"}}},
		"period date":     {FunnelID: funnelID, StageID: "NEW", Filters: schemas.StageFilters{Period: &schemas.PeriodFilter{After: "ontem"}}},
		"inverted period": {FunnelID: funnelID, StageID: "NEW", Filters: schemas.StageFilters{Period: &schemas.PeriodFilter{After: "2024-03-10", Before: "2024-03-01"}}},
	}

	for name, request := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := service.GetStagePage(context.Background(), 1, request)
			assert.ErrorIs(t, err, utils.ErrValidation)
		})
	}
}

func TestStagePageScope(t *testing.T) {
	b := newBoard(t, 9)
	scopes := ScopeResolverFunc(func(ctx context.Context, userID int) (Scope, error) {
		switch userID {
		case 1:
			return Scope{Responsibles: []bson.ObjectID{otherSeller}}, nil
		case 2:
			return Scope{Responsibles: []bson.ObjectID{}}, nil
		}
		return Scope{}, nil
	})
	service := b.service(WithScopes(scopes))
	ctx := context.Background()
	request := schemas.StagePageRequest{FunnelID: funnelID, StageID: "NEW"}

	page, err := service.GetStagePage(ctx, 1, request)
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.ItemsMatched)

	page, err = service.GetStagePage(ctx, 2, request)
	require.NoError(t, err)
	assert.Zero(t, page.ItemsMatched)
	assert.Empty(t, page.Items)

	page, err = service.GetStagePage(ctx, 3, request)
	require.NoError(t, err)
	assert.Equal(t, int64(9), page.ItemsMatched)

	request.Filters.Responsibles = []bson.ObjectID{seller}
	_, err = service.GetStagePage(ctx, 1, request)
	assert.ErrorIs(t, err, utils.ErrForbidden)
}

func TestInvalidRequestsAreRejectedBeforeScopeLookup(t *testing.T) {
	b := newBoard(t, 2)
	var mu sync.Mutex
	lookups := 0
	scopes := ScopeResolverFunc(func(ctx context.Context, userID int) (Scope, error) {
		mu.Lock()
		defer mu.Unlock()
		lookups++
		return Scope{}, nil
	})
	service := b.service(WithScopes(scopes))
	ctx := context.Background()

	_, err := service.GetStagePage(ctx, 1, schemas.StagePageRequest{FunnelID: funnelID, StageID: "NEW", Page: 1 << 62, PageSize: 100})
	assert.ErrorIs(t, err, utils.ErrValidation)

	results, err := service.GetBatch(ctx, 1, []schemas.StagePageRequest{
		{FunnelID: funnelID, StageID: "$where"},
		{FunnelID: funnelID, StageID: "NEW", Page: 1 << 62, PageSize: 100},
	})
	require.NoError(t, err)
	assert.ErrorIs(t, results[0].Err, utils.ErrValidation)
	assert.ErrorIs(t, results[1].Err, utils.ErrValidation)
	assert.Zero(t, lookups)

	page, err := service.GetStagePage(ctx, 1, schemas.StagePageRequest{FunnelID: funnelID, StageID: "NEW"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.ItemsMatched)
	assert.Equal(t, 1, lookups)
}

type delayedStore struct {
	*funnelreferences.MemoryStore
	delays map[string]time.Duration

	mu       sync.Mutex
	finished []string
}

func (d *delayedStore) FindInStage(ctx context.Context, query funnelreferences.StageQuery) ([]schemas.FunnelReference, error) {
	time.Sleep(d.delays[query.StageID])
	d.mu.Lock()
	d.finished = append(d.finished, query.StageID)
	d.mu.Unlock()
	return d.MemoryStore.FindInStage(ctx, query)
}

func TestBatchKeepsRequestOrder(t *testing.T) {
	store := &delayedStore{
		MemoryStore: funnelreferences.NewMemoryStore(),
		delays:      map[string]time.Duration{"A": 150 * time.Millisecond, "B": 75 * time.Millisecond, "C": 0},
	}
	opportunities := NewMemoryOpportunities()
	for i, stageID := range []string{"A", "B", "B", "C", "C", "C"} {
		opportunityID := opportunities.Put(schemas.Opportunity{Name: fmt.Sprint(i)})
		reference, err := schemas.NewFunnelReference(opportunityID, funnelID, partner, stageID, baseTime)
		require.NoError(t, err)
		require.NoError(t, store.InsertOne(context.Background(), &reference))
	}
	service := NewService(store, opportunities, Config{})

	results, err := service.GetBatch(context.Background(), 1, []schemas.StagePageRequest{
		{FunnelID: funnelID, StageID: "A"},
		{FunnelID: funnelID, StageID: "B"},
		{FunnelID: funnelID, StageID: "C"},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i, want := range []int64{1, 2, 3} {
		require.NotNil(t, results[i].Data, "result %d", i)
		assert.Equal(t, want, results[i].Data.ItemsMatched)
	}
	assert.Equal(t, "A", results[0].Data.Items[0].StageID)
	assert.Equal(t, "C", results[2].Data.Items[0].StageID)
	assert.Equal(t, []string{"C", "B", "A"}, store.finished)
}

func TestBatchFailuresArePerItem(t *testing.T) {
	b := newBoard(t, 3)
	service := b.service()

	results, err := service.GetBatch(context.Background(), 1, []schemas.StagePageRequest{
		{FunnelID: funnelID, StageID: "NEW"},
		{FunnelID: funnelID, StageID: "bad.stage"},
		{FunnelID: funnelID, StageID: "NEW", Page: 2},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	require.NotNil(t, results[0].Data)
	assert.Equal(t, int64(3), results[0].Data.ItemsMatched)

	assert.Nil(t, results[1].Data)
	assert.Equal(t, "validation", results[1].Error)
	assert.NotEmpty(t, results[1].Message)
	assert.ErrorIs(t, results[1].Err, utils.ErrValidation)

	require.NotNil(t, results[2].Data)
	assert.Empty(t, results[2].Data.Items)
	assert.True(t, results[2].Data.HasPreviousPage)
}

func TestBatchLimits(t *testing.T) {
	b := newBoard(t, 1)
	service := NewService(b.references, b.opportunities, Config{MaxBatchRequests: 2, BatchConcurrency: 1})

	_, err := service.GetBatch(context.Background(), 1, nil)
	assert.ErrorIs(t, err, utils.ErrValidation)

	request := schemas.StagePageRequest{FunnelID: funnelID, StageID: "NEW"}
	_, err = service.GetBatch(context.Background(), 1, []schemas.StagePageRequest{request, request, request})
	assert.ErrorIs(t, err, utils.ErrValidation)

	results, err := service.GetBatch(context.Background(), 1, []schemas.StagePageRequest{request, request})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestPageCacheServesUntilStageChanges(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	b := newBoard(t, 2)
	cache := NewPageCache(client, time.Minute)
	service := b.service(WithPageCache(cache))
	ctx := context.Background()
	request := schemas.StagePageRequest{FunnelID: funnelID, StageID: "NEW"}

	page, err := service.GetStagePage(ctx, 1, request)
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.ItemsMatched)

	opportunityID := b.opportunities.Put(schemas.Opportunity{Name: "Nova"})
	reference, err := schemas.NewFunnelReference(opportunityID, funnelID, partner, "NEW", baseTime)
	require.NoError(t, err)
	require.NoError(t, b.references.InsertOne(ctx, &reference))

	page, err = service.GetStagePage(ctx, 1, request)
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.ItemsMatched, "served from cache")

	require.NoError(t, cache.Notify(ctx, schemas.FunnelEvent{
		Action:    schemas.FUNNEL_EVENT_CREATE,
		FunnelID:  funnelID,
		ToStageID: "NEW",
	}))
	version, err := cache.Version(ctx, funnelID, "NEW")
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	page, err = service.GetStagePage(ctx, 1, request)
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.ItemsMatched)
}
