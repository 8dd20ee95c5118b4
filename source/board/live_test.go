package board

import (
	"context"
	funnelreferences "crm/source/entities/funnel_references"
	"crm/source/schemas"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListenInvalidatesAffectedStages(t *testing.T) {
	hub := funnelreferences.NewHub()
	server := httptest.NewServer(hub)
	defer server.Close()

	cache := NewQueryCache()
	filtered := schemas.StageFilters{Segments: []string{"esporte"}}
	newKey := KeyFor(testFunnel, "NEW", schemas.StageFilters{})
	newFilteredKey := KeyFor(testFunnel, "NEW", filtered)
	contactedKey := KeyFor(testFunnel, "CONTACTED", schemas.StageFilters{})
	wonKey := KeyFor(testFunnel, "WON", schemas.StageFilters{})
	for _, key := range []Key{newKey, newFilteredKey, contactedKey, wonKey} {
		seed(t, cache, key, card("X", key.StageID))
	}

	ctx, cancel := context.WithCancel(context.Background())
	listenErr := make(chan error, 1)
	go func() {
		listenErr <- Listen(ctx, "ws"+strings.TrimPrefix(server.URL, "http"), nil, cache)
	}()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Notify(context.Background(), schemas.FunnelEvent{
		Action:      schemas.FUNNEL_EVENT_MOVE,
		FunnelID:    testFunnel,
		FromStageID: "NEW",
		ToStageID:   "CONTACTED",
	}))

	require.Eventually(t, func() bool { return cache.Get(contactedKey).Stale }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, cache.Get(newKey).Stale)
	assert.True(t, cache.Get(newFilteredKey).Stale)
	assert.False(t, cache.Get(wonKey).Stale)

	cancel()
	select {
	case err := <-listenErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Listen did not stop")
	}
}
