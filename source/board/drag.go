package board

import (
	"context"
	"crm/source/schemas"
	"errors"
	"sync"

	"go.mongodb.org/mongo-driver/v2/bson"
)

var (
	ErrDragInProgress = errors.New("a drag is already in progress")
	ErrNotDragging    = errors.New("no drag in progress")
)

type State int

const (
	Idle State = iota
	Dragging
	Committing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Dragging:
		return "dragging"
	case Committing:
		return "committing"
	}
	return "unknown"
}

// Settlement is the outcome of one drop. Skipped drops never reached the
// server.
type Settlement struct {
	Item          schemas.KanbanItem
	SourceStageID string
	TargetStageID string
	Skipped       bool
	Result        schemas.TransitionResult
	Err           error
}

// Orchestrator is the drag state machine of one board. Only one drag is
// active at a time; a new drag is refused until the previous drop settled.
type Orchestrator struct {
	mu           sync.Mutex
	state        State
	item         schemas.KanbanItem
	source       string
	target       string
	funnelID     bson.ObjectID
	filters      schemas.StageFilters
	synchronizer *Synchronizer
	onSettle     func(Settlement)
}

func NewOrchestrator(synchronizer *Synchronizer, funnelID bson.ObjectID, filters schemas.StageFilters, onSettle func(Settlement)) *Orchestrator {
	return &Orchestrator{synchronizer: synchronizer, funnelID: funnelID, filters: filters, onSettle: onSettle}
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) DragStart(item schemas.KanbanItem, sourceStageID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != Idle {
		return ErrDragInProgress
	}
	o.state = Dragging
	o.item = item
	o.source = sourceStageID
	return nil
}

func (o *Orchestrator) DragCancel() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.state {
	case Committing:
		return ErrDragInProgress
	case Dragging:
		o.reset()
	}
	return nil
}

// DragEnd drops the card on targetStageID. Dropping it back on its own stage
// settles at once without a request. Otherwise the move is committed in the
// background and the returned channel yields its settlement.
func (o *Orchestrator) DragEnd(ctx context.Context, targetStageID string) (<-chan Settlement, error) {
	o.mu.Lock()

	if o.state != Dragging {
		o.mu.Unlock()
		return nil, ErrNotDragging
	}

	done := make(chan Settlement, 1)
	settlement := Settlement{Item: o.item, SourceStageID: o.source, TargetStageID: targetStageID}

	if targetStageID == o.source {
		o.reset()
		o.mu.Unlock()
		settlement.Skipped = true
		o.settle(done, settlement)
		return done, nil
	}

	o.state = Committing
	o.target = targetStageID
	move := Move{
		Item:          o.item,
		FunnelID:      o.funnelID,
		SourceStageID: o.source,
		TargetStageID: targetStageID,
		Filters:       o.filters,
	}
	o.mu.Unlock()

	go func() {
		settlement.Result, settlement.Err = o.synchronizer.Commit(ctx, move)

		o.mu.Lock()
		o.reset()
		o.mu.Unlock()

		o.settle(done, settlement)
	}()
	return done, nil
}

func (o *Orchestrator) settle(done chan Settlement, settlement Settlement) {
	if o.onSettle != nil {
		o.onSettle(settlement)
	}
	done <- settlement
	close(done)
}

func (o *Orchestrator) reset() {
	o.state = Idle
	o.item = schemas.KanbanItem{}
	o.source = ""
	o.target = ""
}
