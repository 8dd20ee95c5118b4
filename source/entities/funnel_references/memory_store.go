package funnelreferences

import (
	"context"
	"crm/source/schemas"
	"crm/source/utils"
	"slices"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// MemoryStore keeps references in process memory. It backs the --in-memory
// demo server and the tests; SwapStage holds the write lock for the whole
// compare-and-swap.
type MemoryStore struct {
	mu         sync.RWMutex
	references map[bson.ObjectID]schemas.FunnelReference
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{references: make(map[bson.ObjectID]schemas.FunnelReference)}
}

func (s *MemoryStore) InsertOne(ctx context.Context, reference *schemas.FunnelReference) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.references {
		if existing.FunnelID == reference.FunnelID && existing.OpportunityID == reference.OpportunityID {
			return utils.Conflict(utils.FUNNEL_REFERENCE_ALREADY_EXISTS, "Oportunidade já está neste funil")
		}
	}

	if reference.ID.IsZero() {
		reference.ID = bson.NewObjectID()
	}
	s.references[reference.ID] = reference.Clone()
	return nil
}

func (s *MemoryStore) FindOne(ctx context.Context, id bson.ObjectID) (schemas.FunnelReference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reference, ok := s.references[id]
	if !ok {
		return schemas.FunnelReference{}, utils.NotFound(utils.CANNOT_FIND_FUNNEL_REFERENCE_IN_MONGODB, "Referência de funil não encontrada")
	}
	return reference.Clone(), nil
}

func (s *MemoryStore) SwapStage(ctx context.Context, id bson.ObjectID, expected, next string, at time.Time) (schemas.FunnelReference, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reference, ok := s.references[id]
	if !ok {
		return schemas.FunnelReference{}, false, utils.NotFound(utils.CANNOT_FIND_FUNNEL_REFERENCE_IN_MONGODB, "Referência de funil não encontrada")
	}
	if reference.CurrentStageID == next {
		return reference.Clone(), false, nil
	}
	if reference.CurrentStageID != expected {
		return schemas.FunnelReference{}, false, utils.Conflict(utils.FUNNEL_REFERENCE_STAGE_CONFLICT, "A oportunidade já foi movida para outro estágio")
	}

	moved, err := reference.ApplyTransition(next, at)
	if err != nil {
		// expected was re-entered after at was computed
		return schemas.FunnelReference{}, false, utils.Conflict(utils.FUNNEL_REFERENCE_STAGE_CONFLICT, "A oportunidade já foi movida para outro estágio")
	}

	s.references[id] = moved
	return moved.Clone(), true, nil
}

func (s *MemoryStore) FindInStage(ctx context.Context, query StageQuery) ([]schemas.FunnelReference, error) {
	if query.Skip < 0 || query.Limit < 0 {
		return nil, utils.Validation(utils.KANBAN_INVALID_REQUEST_DATA, "skip e limit não podem ser negativos")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := s.matchStage(query)
	if query.Skip >= int64(len(matched)) {
		return []schemas.FunnelReference{}, nil
	}
	matched = matched[query.Skip:]
	if query.Limit > 0 && query.Limit < int64(len(matched)) {
		matched = matched[:query.Limit]
	}

	references := make([]schemas.FunnelReference, 0, len(matched))
	for _, reference := range matched {
		references = append(references, reference.Clone())
	}
	return references, nil
}

func (s *MemoryStore) CountInStage(ctx context.Context, query StageQuery) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.matchStage(query))), nil
}

// matchStage returns the matching references, most recently created first.
func (s *MemoryStore) matchStage(query StageQuery) []schemas.FunnelReference {
	matched := []schemas.FunnelReference{}
	for _, reference := range s.references {
		if reference.FunnelID != query.FunnelID || reference.CurrentStageID != query.StageID {
			continue
		}
		if query.OpportunityIDs != nil && !slices.Contains(query.OpportunityIDs, reference.OpportunityID) {
			continue
		}
		matched = append(matched, reference)
	}

	slices.SortFunc(matched, func(a, b schemas.FunnelReference) int {
		return slices.Compare(b.ID[:], a.ID[:])
	})
	return matched
}

func (s *MemoryStore) DeleteByOpportunity(ctx context.Context, opportunityID bson.ObjectID) ([]schemas.FunnelReference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := []schemas.FunnelReference{}
	for id, reference := range s.references {
		if reference.OpportunityID == opportunityID {
			deleted = append(deleted, reference)
			delete(s.references, id)
		}
	}
	return deleted, nil
}
