package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harshangpate/hospital-crm/internal/application/dispatcher"
	"github.com/harshangpate/hospital-crm/internal/application/port"
	appwf "github.com/harshangpate/hospital-crm/internal/application/workflow"
	"github.com/harshangpate/hospital-crm/internal/domain/entity"
	"github.com/harshangpate/hospital-crm/internal/domain/event"
	domainwf "github.com/harshangpate/hospital-crm/internal/domain/workflow"
)

// Listing bounds
const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// OrderService owns workflow entities: it loads them, runs the engine and
// commits the result with compare-and-swap on updated_at.
type OrderService interface {
	Create(ctx context.Context, session Session, req appwf.CreateRequest) (*Outcome, error)
	Get(ctx context.Context, id string) (*entity.WorkflowEntity, error)
	List(ctx context.Context, filter port.OrderFilter) (*OrderPage, error)
	History(ctx context.Context, id string) ([]*entity.TransitionRecord, error)

	Confirm(ctx context.Context, session Session, req TransitionRequest) (*Outcome, error)
	Advance(ctx context.Context, session Session, req TransitionRequest) (*Outcome, error)
	MarkCritical(ctx context.Context, session Session, req TransitionRequest) (*Outcome, error)
	Cancel(ctx context.Context, session Session, req TransitionRequest) (*Outcome, error)
}

// TransitionRequest addresses one entity. ExpectedUpdatedAt, when set,
// must match the stored value or the request is rejected before the engine runs.
type TransitionRequest struct {
	ID                string
	ExpectedUpdatedAt *time.Time
	Target            domainwf.State
	Reason            string
}

// Outcome is the committed result of an operation
type Outcome struct {
	Entity         *entity.WorkflowEntity `json:"entity"`
	Action         string                 `json:"action"`
	PreviousStatus domainwf.State         `json:"previous_status,omitempty"`
	Changed        bool                   `json:"changed"`
	Warnings       []string               `json:"warnings,omitempty"`
}

// OrderPage is one page of a listing
type OrderPage struct {
	Items  []*entity.WorkflowEntity `json:"items"`
	Total  int                      `json:"total"`
	Limit  int                      `json:"limit"`
	Offset int                      `json:"offset"`
}

// TransitionObserver is told about every mutating operation
type TransitionObserver func(entityType domainwf.EntityType, action string, err error, elapsed time.Duration)

type orderServiceImpl struct {
	engine     appwf.Engine
	orders     port.OrderRepository
	history    port.HistoryRepository
	txManager  port.TransactionManager
	beds       port.BedInventoryService
	dispatcher dispatcher.Dispatcher
	logger     Logger
	observer   TransitionObserver
}

// OrderServiceOption configures the order service
type OrderServiceOption func(*orderServiceImpl)

// WithDispatcher publishes order events after each commit
func WithDispatcher(d dispatcher.Dispatcher) OrderServiceOption {
	return func(s *orderServiceImpl) {
		s.dispatcher = d
	}
}

// WithTransitionObserver registers a callback for operation outcomes
func WithTransitionObserver(observer TransitionObserver) OrderServiceOption {
	return func(s *orderServiceImpl) {
		s.observer = observer
	}
}

// NewOrderService creates a new OrderService.
// beds is used to undo reservations and releases that could not be committed.
func NewOrderService(
	engine appwf.Engine,
	orders port.OrderRepository,
	history port.HistoryRepository,
	txManager port.TransactionManager,
	beds port.BedInventoryService,
	logger Logger,
	opts ...OrderServiceOption,
) OrderService {
	s := &orderServiceImpl{
		engine:    engine,
		orders:    orders,
		history:   history,
		txManager: txManager,
		beds:      beds,
		logger:    logger,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Create builds a new entity and stores it with its first history row
func (s *orderServiceImpl) Create(ctx context.Context, session Session, req appwf.CreateRequest) (*Outcome, error) {
	start := time.Now()
	if err := session.Validate(); err != nil {
		return nil, err
	}
	if req.OrderedBy == "" {
		req.OrderedBy = session.ActorID
	}

	result, err := s.engine.Create(ctx, req)
	if err != nil {
		s.observe(req.EntityType, entity.ActionCreate, err, start)
		s.logger.Error("Failed to create order", "error", err, "entity_type", req.EntityType)
		return nil, err
	}
	created := result.Entity

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.orders.Create(txCtx, created); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		return s.history.Create(txCtx, &entity.TransitionRecord{
			EntityID:  created.ID,
			ActorID:   session.ActorID,
			ActorRole: session.Role,
			NewStatus: string(created.Status),
			Action:    entity.ActionCreate,
			Detail:    created.Description,
			Timestamp: created.OrderedAt,
		})
	})
	if err != nil {
		if created.BedRef != "" {
			s.undoBed(ctx, created, false)
		}
		s.observe(created.EntityType, entity.ActionCreate, err, start)
		s.logger.Error("Failed to persist order", "error", err, "entity_id", created.ID)
		return nil, err
	}

	s.observe(created.EntityType, entity.ActionCreate, nil, start)
	s.publish(ctx, event.TypeOrderCreated, session, result)

	s.logger.Info("Order created",
		"entity_id", created.ID,
		"entity_type", created.EntityType,
		"actor_id", session.ActorID,
	)
	return toOutcome(result), nil
}

// Get retrieves an entity by ID
func (s *orderServiceImpl) Get(ctx context.Context, id string) (*entity.WorkflowEntity, error) {
	e, err := s.orders.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("Failed to get order", "error", err, "id", id)
		return nil, err
	}
	if e == nil {
		return nil, notFound("order", id)
	}
	return e, nil
}

// List returns one page of entities matching the filter
func (s *orderServiceImpl) List(ctx context.Context, filter port.OrderFilter) (*OrderPage, error) {
	if filter.EntityType != "" && !filter.EntityType.IsValid() {
		return nil, fmt.Errorf("%w: entity type %q", ErrInvalidFilter, filter.EntityType)
	}
	if filter.Status != "" && !filter.Status.IsKnown() {
		return nil, fmt.Errorf("%w: status %q", ErrInvalidFilter, filter.Status)
	}
	if filter.Offset < 0 {
		return nil, fmt.Errorf("%w: negative offset", ErrInvalidFilter)
	}
	switch {
	case filter.Limit <= 0:
		filter.Limit = DefaultPageSize
	case filter.Limit > MaxPageSize:
		filter.Limit = MaxPageSize
	}

	items, total, err := s.orders.List(ctx, filter)
	if err != nil {
		s.logger.Error("Failed to list orders", "error", err)
		return nil, err
	}
	if items == nil {
		items = []*entity.WorkflowEntity{}
	}

	return &OrderPage{
		Items:  items,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}

// History returns the transition records of an entity, oldest first
func (s *orderServiceImpl) History(ctx context.Context, id string) ([]*entity.TransitionRecord, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	records, err := s.history.GetByEntityID(ctx, id)
	if err != nil {
		s.logger.Error("Failed to get history", "error", err, "id", id)
		return nil, err
	}
	if records == nil {
		records = []*entity.TransitionRecord{}
	}
	return records, nil
}

// Confirm moves an entity through its confirmation gate
func (s *orderServiceImpl) Confirm(ctx context.Context, session Session, req TransitionRequest) (*Outcome, error) {
	return s.transition(ctx, session, req, entity.ActionConfirm, func(ctx context.Context, e *entity.WorkflowEntity) (*appwf.Result, error) {
		return s.engine.Confirm(ctx, e)
	})
}

// Advance moves an entity to its next or actor-selected state
func (s *orderServiceImpl) Advance(ctx context.Context, session Session, req TransitionRequest) (*Outcome, error) {
	return s.transition(ctx, session, req, entity.ActionAdvance, func(ctx context.Context, e *entity.WorkflowEntity) (*appwf.Result, error) {
		return s.engine.Advance(ctx, e, req.Target)
	})
}

// MarkCritical flags an entity for urgent handling
func (s *orderServiceImpl) MarkCritical(ctx context.Context, session Session, req TransitionRequest) (*Outcome, error) {
	return s.transition(ctx, session, req, entity.ActionMarkCritical, func(ctx context.Context, e *entity.WorkflowEntity) (*appwf.Result, error) {
		return s.engine.MarkCritical(ctx, e)
	})
}

// Cancel terminates an entity
func (s *orderServiceImpl) Cancel(ctx context.Context, session Session, req TransitionRequest) (*Outcome, error) {
	return s.transition(ctx, session, req, entity.ActionCancel, func(ctx context.Context, e *entity.WorkflowEntity) (*appwf.Result, error) {
		return s.engine.Cancel(ctx, e, req.Reason)
	})
}

type engineOp func(ctx context.Context, e *entity.WorkflowEntity) (*appwf.Result, error)

// transition loads the entity, applies op and commits the result.
// Collaborators run before the transaction opens so no lock is held during them.
func (s *orderServiceImpl) transition(ctx context.Context, session Session, req TransitionRequest, action string, op engineOp) (*Outcome, error) {
	start := time.Now()
	if err := session.Validate(); err != nil {
		return nil, err
	}

	current, err := s.Get(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	if req.ExpectedUpdatedAt != nil && !req.ExpectedUpdatedAt.Equal(current.UpdatedAt) {
		err := domainwf.NewTransitionError(domainwf.ErrConcurrentModification,
			current.EntityType, current.Status, strings.ToLower(action), "")
		s.observe(current.EntityType, action, err, start)
		return nil, err
	}

	result, err := op(ctx, current)
	if err != nil {
		s.observe(current.EntityType, action, err, start)
		s.logger.Error("Transition rejected",
			"error", err,
			"entity_id", current.ID,
			"action", action,
			"status", current.Status,
		)
		return nil, err
	}

	if !result.Changed {
		s.observe(current.EntityType, action, nil, start)
		return toOutcome(result), nil
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		swapped, err := s.orders.CompareAndSwap(txCtx, result.Entity, current.UpdatedAt)
		if err != nil {
			return err
		}
		if !swapped {
			return domainwf.NewTransitionError(domainwf.ErrConcurrentModification,
				current.EntityType, current.Status, strings.ToLower(result.Action), result.Entity.Status)
		}

		return s.history.Create(txCtx, &entity.TransitionRecord{
			EntityID:       current.ID,
			ActorID:        session.ActorID,
			ActorRole:      session.Role,
			PreviousStatus: string(current.Status),
			NewStatus:      string(result.Entity.Status),
			Action:         result.Action,
			Detail:         historyDetail(result),
			Timestamp:      result.Entity.UpdatedAt,
		})
	})
	if err != nil {
		if s.releasedBed(current, result.Entity) {
			s.restoreBed(ctx, current)
		}
		s.observe(current.EntityType, action, err, start)
		s.logger.Error("Failed to commit transition",
			"error", err,
			"entity_id", current.ID,
			"action", result.Action,
		)
		return nil, err
	}

	s.observe(current.EntityType, action, nil, start)
	s.publish(ctx, eventTypeFor(result.Action), session, result)

	s.logger.Info("Transition committed",
		"entity_id", current.ID,
		"action", result.Action,
		"from", current.Status,
		"to", result.Entity.Status,
		"actor_id", session.ActorID,
		"warnings", len(result.Warnings),
	)
	return toOutcome(result), nil
}

// releasedBed reports whether the engine let go of an admission's bed
func (s *orderServiceImpl) releasedBed(before, after *entity.WorkflowEntity) bool {
	return before.BedRef != "" && !before.Status.IsTerminal() && after.Status.IsTerminal()
}

// restoreBed re-reserves a bed released by an uncommitted transition, but only
// while the stored admission is still active and still names the bed. A winner
// that ended the admission has already released it for good.
func (s *orderServiceImpl) restoreBed(ctx context.Context, e *entity.WorkflowEntity) {
	stored, err := s.orders.GetByID(ctx, e.ID)
	if err != nil || stored == nil {
		s.logger.Error("Failed to reload admission before restoring bed",
			"error", err,
			"entity_id", e.ID,
			"bed_ref", e.BedRef,
		)
		return
	}
	if stored.Status.IsTerminal() || stored.BedRef != e.BedRef {
		s.logger.Info("Bed left released, admission already ended",
			"entity_id", e.ID,
			"bed_ref", e.BedRef,
			"status", stored.Status,
		)
		return
	}
	s.undoBed(ctx, e, true)
}

// undoBed reverses a bed side effect whose transition was not committed.
// reserve=true re-reserves a released bed, otherwise a new reservation is released.
func (s *orderServiceImpl) undoBed(ctx context.Context, e *entity.WorkflowEntity, reserve bool) {
	if s.beds == nil {
		return
	}

	var err error
	if reserve {
		err = s.beds.Reserve(ctx, e.BedRef, e.ID)
	} else {
		err = s.beds.Release(ctx, e.BedRef)
	}
	if err != nil {
		s.logger.Error("Failed to undo bed change",
			"error", err,
			"entity_id", e.ID,
			"bed_ref", e.BedRef,
			"reserve", reserve,
		)
	}
}

func (s *orderServiceImpl) observe(entityType domainwf.EntityType, action string, err error, start time.Time) {
	if s.observer != nil {
		s.observer(entityType, action, err, time.Since(start))
	}
}

func (s *orderServiceImpl) publish(ctx context.Context, eventType event.Type, session Session, result *appwf.Result) {
	if s.dispatcher == nil {
		return
	}

	e := result.Entity
	payload := map[string]interface{}{
		event.KeyEntityType:     e.EntityType,
		event.KeyPreviousStatus: result.PreviousStatus,
		event.KeyNewStatus:      e.Status,
		event.KeyAction:         result.Action,
		event.KeyActorID:        session.ActorID,
	}
	if e.InvoiceID != "" {
		payload[event.KeyInvoiceID] = e.InvoiceID
	}
	if e.CancelReason != "" {
		payload[event.KeyReason] = e.CancelReason
	}

	s.dispatcher.DispatchAsync(ctx, event.NewEvent(eventType, e.ID, payload))
}

func eventTypeFor(action string) event.Type {
	switch action {
	case entity.ActionConfirm:
		return event.TypeOrderConfirmed
	case entity.ActionMarkCritical:
		return event.TypeCriticalMarked
	case entity.ActionCancel:
		return event.TypeOrderCancelled
	default:
		return event.TypeStatusChanged
	}
}

func historyDetail(result *appwf.Result) string {
	var parts []string
	switch result.Action {
	case entity.ActionConfirm:
		if result.Entity.InvoiceID != "" {
			parts = append(parts, "invoice "+result.Entity.InvoiceID)
		}
		if result.Entity.BillingPending {
			parts = append(parts, "billing pending")
		}
	case entity.ActionCancel:
		if result.Entity.CancelReason != "" {
			parts = append(parts, result.Entity.CancelReason)
		}
	}
	for _, w := range result.Warnings {
		parts = append(parts, "warning: "+w.Error())
	}
	return strings.Join(parts, "; ")
}

func toOutcome(result *appwf.Result) *Outcome {
	out := &Outcome{
		Entity:         result.Entity,
		Action:         result.Action,
		PreviousStatus: result.PreviousStatus,
		Changed:        result.Changed,
	}
	for _, w := range result.Warnings {
		out.Warnings = append(out.Warnings, w.Error())
	}
	return out
}

// IsConflict reports whether err means the caller should reload and retry
func IsConflict(err error) bool {
	return errors.Is(err, domainwf.ErrConcurrentModification)
}
