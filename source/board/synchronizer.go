package board

import (
	"context"
	"crm/source/schemas"
	"slices"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Move is one card drop the board wants the server to apply.
type Move struct {
	Item          schemas.KanbanItem
	FunnelID      bson.ObjectID
	SourceStageID string
	TargetStageID string
	Filters       schemas.StageFilters
}

func (m Move) keys() (Key, Key) {
	return KeyFor(m.FunnelID, m.SourceStageID, m.Filters), KeyFor(m.FunnelID, m.TargetStageID, m.Filters)
}

// Synchronizer applies a move to the cache before the server confirms it,
// and rolls it back when the server refuses.
type Synchronizer struct {
	cache  *QueryCache
	remote Remote
}

func NewSynchronizer(cache *QueryCache, remote Remote) *Synchronizer {
	return &Synchronizer{cache: cache, remote: remote}
}

// Commit moves the card in the cache, asks the server to move it and, once
// the server answered, invalidates both columns. On failure both columns are
// restored exactly as they were before the move.
func (s *Synchronizer) Commit(ctx context.Context, move Move) (schemas.TransitionResult, error) {
	source, target := move.keys()

	s.cache.Cancel(source, target)
	snapshot := s.cache.Snapshot(source, target)

	s.cache.Apply(func(current Snapshot) Snapshot {
		item := move.Item
		if found, ok := findItem(current[source], item.ReferenceID); ok {
			item = found
		}
		item.StageID = move.TargetStageID

		return Snapshot{
			source: removeItem(current[source], item.ReferenceID),
			target: prependItem(current[target], item),
		}
	}, source, target)

	result, err := s.remote.MoveToStage(ctx, schemas.TransitionRequest{
		FunnelReferenceID: move.Item.ReferenceID,
		FunnelID:          move.FunnelID,
		NewStageID:        move.TargetStageID,
		PreviousStageID:   move.SourceStageID,
	})
	if err != nil {
		s.cache.Restore(snapshot)
	}

	s.cache.Invalidate(source, target)
	return result, err
}

func findItem(entry *Entry, referenceID bson.ObjectID) (schemas.KanbanItem, bool) {
	if entry == nil {
		return schemas.KanbanItem{}, false
	}
	for _, page := range entry.Pages {
		for _, item := range page.Items {
			if item.ReferenceID == referenceID {
				return item, true
			}
		}
	}
	return schemas.KanbanItem{}, false
}

// removeItem returns entry without the item, decrementing the count of the
// page it was found on.
func removeItem(entry *Entry, referenceID bson.ObjectID) *Entry {
	if entry == nil {
		return nil
	}

	for i, page := range entry.Pages {
		index := slices.IndexFunc(page.Items, func(item schemas.KanbanItem) bool {
			return item.ReferenceID == referenceID
		})
		if index < 0 {
			continue
		}

		updated := page
		updated.Items = slices.Delete(slices.Clone(page.Items), index, index+1)
		if updated.ItemsMatched > 0 {
			updated.ItemsMatched--
		}
		return entry.withPage(i+1, updated)
	}
	return entry
}

// prependItem returns entry with item first on its first page, creating the
// page when the column was never loaded.
func prependItem(entry *Entry, item schemas.KanbanItem) *Entry {
	first, ok := entry.Page(1)
	if !ok {
		first = schemas.StagePage{Items: []schemas.KanbanItem{}}
	}

	updated := first
	updated.Items = append([]schemas.KanbanItem{item}, first.Items...)
	updated.ItemsMatched++
	return entry.withPage(1, updated)
}
