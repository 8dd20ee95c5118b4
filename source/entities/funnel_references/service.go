package funnelreferences

import (
	"context"
	"crm/source/schemas"
	"crm/source/utils"
	"errors"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

type FunnelReader interface {
	FindOne(ctx context.Context, id bson.ObjectID) (schemas.Funnel, error)
}

// OpportunityLabeler resolves the display names sent along with events.
type OpportunityLabeler interface {
	GetNames(ctx context.Context, ids []bson.ObjectID) (map[bson.ObjectID]string, error)
}

type Option func(*Service)

func WithFunnels(funnels FunnelReader) Option {
	return func(s *Service) { s.funnels = funnels }
}

func WithLabeler(labeler OpportunityLabeler) Option {
	return func(s *Service) { s.labeler = labeler }
}

func WithNotifier(notifier Notifier) Option {
	return func(s *Service) { s.notifier = notifier }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service is the stage transition engine: the only writer of a reference's
// current stage and stage history.
type Service struct {
	store    Store
	funnels  FunnelReader
	labeler  OpportunityLabeler
	notifier Notifier
	now      func() time.Time
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type EnterFunnelInput struct {
	OpportunityID bson.ObjectID `json:"opportunity_id" validate:"required"`
	FunnelID      bson.ObjectID `json:"funnel_id" validate:"required"`
	PartnerID     bson.ObjectID `json:"partner_id"`
	StageID       string        `json:"stage_id,omitempty"`
}

// EnterFunnel creates the reference of an opportunity entering a funnel for
// the first time. Without a stage id the funnel's first stage is used.
func (s *Service) EnterFunnel(ctx context.Context, input EnterFunnelInput, userID int) (schemas.FunnelReference, error) {
	if err := utils.ValidateStruct(input, utils.FUNNEL_REFERENCES_INVALID_REQUEST_DATA); err != nil {
		return schemas.FunnelReference{}, err
	}

	stageID := input.StageID
	if s.funnels != nil {
		funnel, err := s.funnel(ctx, input.FunnelID)
		if err != nil {
			return schemas.FunnelReference{}, err
		}
		if stageID == "" {
			stageID, _ = funnel.EntryStage()
		}
		if !funnel.HasStage(stageID) {
			return schemas.FunnelReference{}, utils.Validation(utils.FUNNEL_STAGE_NOT_IN_FUNNEL, "Estágio não pertence ao funil")
		}
	}

	at := s.now().UTC().Truncate(time.Millisecond)
	reference, err := schemas.NewFunnelReference(input.OpportunityID, input.FunnelID, input.PartnerID, stageID, at)
	if err != nil {
		return schemas.FunnelReference{}, utils.Validation(utils.FUNNEL_REFERENCES_INVALID_REQUEST_DATA, err.Error())
	}

	if err := s.store.InsertOne(ctx, &reference); err != nil {
		return schemas.FunnelReference{}, err
	}

	s.emit(ctx, schemas.FunnelEvent{
		Action:        schemas.FUNNEL_EVENT_CREATE,
		ReferenceID:   reference.ID,
		OpportunityID: reference.OpportunityID,
		FunnelID:      reference.FunnelID,
		ToStageID:     reference.CurrentStageID,
		UserID:        userID,
		At:            at,
	})

	return reference, nil
}

func (s *Service) GetOne(ctx context.Context, id bson.ObjectID) (schemas.FunnelReference, error) {
	return s.store.FindOne(ctx, id)
}

// MoveToStage moves the reference from expected to next. Moving to the stage
// the reference already occupies returns it untouched. When the stored stage
// is no longer expected the move fails with utils.ErrConflict and nothing is
// written; callers must refetch before retrying.
func (s *Service) MoveToStage(ctx context.Context, id bson.ObjectID, expected, next string, userID int) (schemas.FunnelReference, error) {
	if err := schemas.ValidateStageID(next); err != nil {
		return schemas.FunnelReference{}, utils.Validation(utils.FUNNEL_REFERENCES_INVALID_REQUEST_DATA, err.Error())
	}
	if err := schemas.ValidateStageID(expected); err != nil {
		return schemas.FunnelReference{}, utils.Validation(utils.FUNNEL_REFERENCES_INVALID_REQUEST_DATA, err.Error())
	}

	reference, err := s.store.FindOne(ctx, id)
	if err != nil {
		return schemas.FunnelReference{}, err
	}

	if reference.CurrentStageID == next {
		return reference, nil
	}

	if s.funnels != nil {
		funnel, err := s.funnel(ctx, reference.FunnelID)
		if err != nil {
			return schemas.FunnelReference{}, err
		}
		if !funnel.HasStage(next) {
			return schemas.FunnelReference{}, utils.Validation(utils.FUNNEL_STAGE_NOT_IN_FUNNEL, "Estágio não pertence ao funil")
		}
	}

	if reference.CurrentStageID != expected {
		return schemas.FunnelReference{}, utils.Conflict(utils.FUNNEL_REFERENCE_STAGE_CONFLICT, "A oportunidade já foi movida para outro estágio")
	}

	at := reference.TransitionInstant(s.now())
	moved, swapped, err := s.store.SwapStage(ctx, id, expected, next, at)
	if err != nil {
		return schemas.FunnelReference{}, err
	}
	if !swapped {
		return moved, nil
	}

	s.emit(ctx, schemas.FunnelEvent{
		Action:        schemas.FUNNEL_EVENT_MOVE,
		ReferenceID:   moved.ID,
		OpportunityID: moved.OpportunityID,
		FunnelID:      moved.FunnelID,
		FromStageID:   expected,
		ToStageID:     next,
		UserID:        userID,
		At:            at,
	})

	return moved, nil
}

// RemoveOpportunity deletes every reference of an opportunity that was
// removed by its owner. It returns how many references were deleted.
func (s *Service) RemoveOpportunity(ctx context.Context, opportunityID bson.ObjectID, userID int) (int, error) {
	deleted, err := s.store.DeleteByOpportunity(ctx, opportunityID)
	if err != nil {
		return 0, err
	}

	at := s.now().UTC().Truncate(time.Millisecond)
	for _, reference := range deleted {
		s.emit(ctx, schemas.FunnelEvent{
			Action:        schemas.FUNNEL_EVENT_DELETE,
			ReferenceID:   reference.ID,
			OpportunityID: reference.OpportunityID,
			FunnelID:      reference.FunnelID,
			FromStageID:   reference.CurrentStageID,
			UserID:        userID,
			At:            at,
		})
	}

	return len(deleted), nil
}

func (s *Service) funnel(ctx context.Context, id bson.ObjectID) (schemas.Funnel, error) {
	funnel, err := s.funnels.FindOne(ctx, id)
	if errors.Is(err, utils.ErrNotFound) {
		return funnel, utils.Validation(utils.INVALID_FUNNEL_ID_FORMAT, "Funil não encontrado")
	}
	return funnel, err
}

func (s *Service) emit(ctx context.Context, event schemas.FunnelEvent) {
	if s.notifier == nil {
		return
	}

	ctx = context.WithoutCancel(ctx)

	if s.labeler != nil && event.Action != schemas.FUNNEL_EVENT_DELETE {
		names, err := s.labeler.GetNames(ctx, []bson.ObjectID{event.OpportunityID})
		if err != nil {
			log.Printf("[Funnels] Erro ao buscar nome da oportunidade %s: %v", event.OpportunityID.Hex(), err)
		}
		event.OpportunityName = names[event.OpportunityID]
	}

	if err := s.notifier.Notify(ctx, event); err != nil {
		log.Printf("[Funnels] Erro ao notificar evento %s da referência %s: %v", event.Action, event.ReferenceID.Hex(), err)
	}
}
