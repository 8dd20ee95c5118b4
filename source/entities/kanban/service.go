package kanban

import (
	"context"
	funnelreferences "crm/source/entities/funnel_references"
	"crm/source/schemas"
	"crm/source/utils"
	"fmt"
	"math"

	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/sync/errgroup"
)

const (
	DEFAULT_PAGE_SIZE          = 25
	MAX_PAGE_SIZE              = 100
	DEFAULT_BATCH_MAX_REQUESTS = 50
)

type Config struct {
	DefaultPageSize  int
	MaxBatchRequests int
	// BatchConcurrency bounds the stage reads of one batch running at once;
	// zero runs them all at once.
	BatchConcurrency int
}

type Option func(*Service)

func WithScopes(scopes ScopeResolver) Option {
	return func(s *Service) { s.scopes = scopes }
}

func WithPageCache(cache *PageCache) Option {
	return func(s *Service) { s.cache = cache }
}

// Service answers the paginated, filtered reads of kanban columns.
type Service struct {
	references    funnelreferences.Store
	opportunities OpportunityReader
	scopes        ScopeResolver
	cache         *PageCache
	config        Config
}

func NewService(references funnelreferences.Store, opportunities OpportunityReader, config Config, opts ...Option) *Service {
	if config.DefaultPageSize <= 0 || config.DefaultPageSize > MAX_PAGE_SIZE {
		config.DefaultPageSize = DEFAULT_PAGE_SIZE
	}
	if config.MaxBatchRequests <= 0 {
		config.MaxBatchRequests = DEFAULT_BATCH_MAX_REQUESTS
	}

	s := &Service{
		references:    references,
		opportunities: opportunities,
		scopes:        Unrestricted,
		config:        config,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetStagePage returns one page of the references sitting in a stage,
// newest first, joined with their opportunity data.
func (s *Service) GetStagePage(ctx context.Context, userID int, request schemas.StagePageRequest) (schemas.StagePage, error) {
	read, err := s.prepare(request)
	if err != nil {
		return schemas.StagePage{}, err
	}

	scope, err := s.scopes.Resolve(ctx, userID)
	if err != nil {
		return schemas.StagePage{}, err
	}
	return s.stagePage(ctx, scope, read)
}

// GetBatch reads every request concurrently. results[i] answers requests[i]
// and fails on its own; the returned error only reports a batch that could
// not be attempted at all.
func (s *Service) GetBatch(ctx context.Context, userID int, requests []schemas.StagePageRequest) ([]schemas.BatchItem, error) {
	if len(requests) == 0 {
		return nil, utils.Validation(utils.KANBAN_INVALID_REQUEST_DATA, "Nenhuma requisição informada")
	}
	if len(requests) > s.config.MaxBatchRequests {
		return nil, utils.Validation(utils.KANBAN_INVALID_REQUEST_DATA, fmt.Sprintf("Máximo de %d requisições por lote", s.config.MaxBatchRequests))
	}

	results := make([]schemas.BatchItem, len(requests))
	reads := make([]stageRead, len(requests))
	valid := 0
	for i, request := range requests {
		read, err := s.prepare(request)
		if err != nil {
			results[i] = failedItem(err)
			continue
		}
		reads[i] = read
		valid++
	}
	if valid == 0 {
		return results, nil
	}

	scope, err := s.scopes.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}

	g := errgroup.Group{}
	if s.config.BatchConcurrency > 0 {
		g.SetLimit(s.config.BatchConcurrency)
	}
	for i, read := range reads {
		if results[i].Err != nil {
			continue
		}
		g.Go(func() error {
			page, err := s.stagePage(ctx, scope, read)
			if err != nil {
				results[i] = failedItem(err)
				return nil
			}
			results[i] = schemas.BatchItem{Data: &page}
			return nil
		})
	}
	g.Wait()

	return results, nil
}

func failedItem(err error) schemas.BatchItem {
	_, message, kind := utils.DescribeError(err, utils.CANNOT_FIND_KANBAN_STAGE_PAGE)
	return schemas.BatchItem{Error: kind, Message: message, Err: err}
}

// stageRead is a request that passed validation, with its defaults applied.
type stageRead struct {
	request schemas.StagePageRequest
	period  *periodRange
}

// prepare applies the paging defaults and rejects malformed requests before
// anything is read.
func (s *Service) prepare(request schemas.StagePageRequest) (stageRead, error) {
	if request.Page == 0 {
		request.Page = 1
	}
	if request.PageSize == 0 {
		request.PageSize = s.config.DefaultPageSize
	}
	if err := utils.ValidateStruct(request, utils.KANBAN_INVALID_REQUEST_DATA); err != nil {
		return stageRead{}, err
	}
	if err := schemas.ValidateStageID(request.StageID); err != nil {
		return stageRead{}, utils.Validation(utils.KANBAN_INVALID_REQUEST_DATA, err.Error())
	}
	// skip = page_size * (page - 1) must fit in an int64
	if int64(request.Page-1) > math.MaxInt64/int64(request.PageSize) {
		return stageRead{}, utils.Validation(utils.KANBAN_INVALID_REQUEST_DATA, "page fora do intervalo permitido")
	}

	period, err := validateFilters(request.Filters)
	if err != nil {
		return stageRead{}, err
	}
	return stageRead{request: request, period: period}, nil
}

func (s *Service) stagePage(ctx context.Context, scope Scope, read stageRead) (schemas.StagePage, error) {
	request, period := read.request, read.period

	filters, visible, err := applyScope(request.Filters, scope)
	if err != nil {
		return schemas.StagePage{}, err
	}
	if !visible {
		return emptyPage(request.Page), nil
	}
	request.Filters = filters

	cacheKey := ""
	if s.cache != nil {
		page, key, ok := s.cache.Get(ctx, request)
		if ok {
			return page, nil
		}
		cacheKey = key
	}

	opportunityIDs, err := s.opportunities.MatchingIDs(ctx, filters, period)
	if err != nil {
		return schemas.StagePage{}, err
	}

	pageSize := int64(request.PageSize)
	query := funnelreferences.StageQuery{
		FunnelID:       request.FunnelID,
		StageID:        request.StageID,
		OpportunityIDs: opportunityIDs,
		Skip:           pageSize * int64(request.Page-1),
		Limit:          pageSize + 1,
	}

	var references []schemas.FunnelReference
	var matched int64

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		references, err = s.references.FindInStage(gctx, query)
		return err
	})
	g.Go(func() error {
		var err error
		matched, err = s.references.CountInStage(gctx, query)
		return err
	})
	if err := g.Wait(); err != nil {
		return schemas.StagePage{}, err
	}

	hasNextPage := int64(len(references)) > pageSize
	if hasNextPage {
		references = references[:pageSize]
	}

	items, err := s.join(ctx, references)
	if err != nil {
		return schemas.StagePage{}, err
	}

	page := schemas.StagePage{
		Items:           items,
		ItemsMatched:    matched,
		HasNextPage:     hasNextPage,
		HasPreviousPage: request.Page > 1,
	}
	if page.HasPreviousPage {
		page.PreviousCursor = intPtr(request.Page - 1)
	}
	if page.HasNextPage {
		page.NextCursor = intPtr(request.Page + 1)
	}

	if s.cache != nil {
		s.cache.Set(ctx, cacheKey, page)
	}
	return page, nil
}

func (s *Service) join(ctx context.Context, references []schemas.FunnelReference) ([]schemas.KanbanItem, error) {
	ids := make([]bson.ObjectID, 0, len(references))
	for _, reference := range references {
		ids = append(ids, reference.OpportunityID)
	}

	opportunities, err := s.opportunities.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	items := make([]schemas.KanbanItem, 0, len(references))
	for _, reference := range references {
		item := schemas.KanbanItem{
			ReferenceID:   reference.ID,
			OpportunityID: reference.OpportunityID,
			FunnelID:      reference.FunnelID,
			StageID:       reference.CurrentStageID,
			PartnerID:     reference.PartnerID,
			CreatedAt:     reference.CreatedAt,
		}
		if entry, ok := reference.Stages[reference.CurrentStageID]; ok {
			item.StageEnteredAt = entry.EnteredAt
		}
		if opportunity, ok := opportunities[reference.OpportunityID]; ok {
			item.Name = opportunity.Name
			item.Identifier = opportunity.Identifier
			item.Type = opportunity.Type
			item.Segment = opportunity.Segment
			item.Status = opportunity.Status()
			item.Responsibles = opportunity.Responsibles
		}
		items = append(items, item)
	}
	return items, nil
}

func emptyPage(page int) schemas.StagePage {
	result := schemas.StagePage{Items: []schemas.KanbanItem{}, HasPreviousPage: page > 1}
	if result.HasPreviousPage {
		result.PreviousCursor = intPtr(page - 1)
	}
	return result
}

func intPtr(v int) *int {
	return &v
}
