package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mohae/deepcopy"

	"github.com/harshangpate/hospital-crm/internal/application/port"
	"github.com/harshangpate/hospital-crm/internal/domain/entity"
	domainwf "github.com/harshangpate/hospital-crm/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// CollaboratorObserver is told about every collaborator call
type CollaboratorObserver func(collaborator string, err error, elapsed time.Duration)

// engineImpl is the concrete implementation of Engine
type engineImpl struct {
	billing  port.BillingService
	notifier port.NotificationService
	beds     port.BedInventoryService

	policy   FailurePolicy
	timeout  time.Duration
	now      func() time.Time
	logger   Logger
	observer CollaboratorObserver
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithFailurePolicy sets how collaborator failures are handled
func WithFailurePolicy(policy FailurePolicy) EngineOption {
	return func(e *engineImpl) {
		e.policy = policy
	}
}

// WithCollaboratorTimeout bounds every collaborator call
func WithCollaboratorTimeout(timeout time.Duration) EngineOption {
	return func(e *engineImpl) {
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}

// WithLogger sets a logger for the engine
func WithLogger(logger Logger) EngineOption {
	return func(e *engineImpl) {
		e.logger = logger
	}
}

// WithCollaboratorObserver registers a callback for collaborator outcomes
func WithCollaboratorObserver(observer CollaboratorObserver) EngineOption {
	return func(e *engineImpl) {
		e.observer = observer
	}
}

// NewEngine creates a new workflow engine
func NewEngine(
	billing port.BillingService,
	notifier port.NotificationService,
	beds port.BedInventoryService,
	opts ...EngineOption,
) Engine {
	e := &engineImpl{
		billing:  billing,
		notifier: notifier,
		beds:     beds,
		policy:   PolicyTolerate,
		timeout:  5 * time.Second,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Create builds a new entity in the initial state of its table
func (e *engineImpl) Create(ctx context.Context, req CreateRequest) (*Result, error) {
	table, err := domainwf.TableFor(req.EntityType)
	if err != nil {
		return nil, err
	}

	patientID := strings.TrimSpace(req.PatientID)
	if patientID == "" {
		return nil, fmt.Errorf("%w: patient_id is required", ErrInvalidRequest)
	}

	bedRef := strings.TrimSpace(req.BedRef)
	isAdmission := req.EntityType == domainwf.EntityAdmission
	switch {
	case isAdmission && bedRef == "":
		return nil, fmt.Errorf("%w: bed_ref is required for admissions", ErrInvalidRequest)
	case !isAdmission && bedRef != "":
		return nil, fmt.Errorf("%w: bed_ref is only valid for admissions", ErrInvalidRequest)
	}

	now := e.now()
	created := &entity.WorkflowEntity{
		ID:          uuid.NewString(),
		EntityType:  req.EntityType,
		Status:      table.Initial(),
		PatientID:   patientID,
		Description: strings.TrimSpace(req.Description),
		OrderedBy:   req.OrderedBy,
		BedRef:      bedRef,
		OrderedAt:   now,
		UpdatedAt:   now,
	}

	// A bed that cannot be reserved fails the admission regardless of policy
	if isAdmission {
		err := e.call(ctx, CollaboratorBeds, func(ctx context.Context) error {
			return e.beds.Reserve(ctx, bedRef, created.ID)
		})
		if err != nil {
			return nil, fmt.Errorf("%w: reserve bed %s: %w", ErrCollaboratorFailed, bedRef, err)
		}
	}

	e.info("Entity created",
		"entity_id", created.ID,
		"entity_type", created.EntityType,
		"status", created.Status,
	)

	return &Result{
		Entity:  created,
		Action:  entity.ActionCreate,
		Changed: true,
	}, nil
}

// Confirm is only legal at a confirmation gate
func (e *engineImpl) Confirm(ctx context.Context, current *entity.WorkflowEntity) (*Result, error) {
	table, err := e.tableFor(current, "confirm")
	if err != nil {
		return nil, err
	}

	if current.Status != domainwf.StatePendingConfirmation {
		return nil, domainwf.NewTransitionError(domainwf.ErrInvalidState,
			current.EntityType, current.Status, "confirm", "")
	}

	targets := table.Targets(current.Status, domainwf.TriggerConfirm)
	if len(targets) != 1 {
		return nil, domainwf.NewTransitionError(domainwf.ErrInvalidState,
			current.EntityType, current.Status, "confirm", "")
	}

	return e.confirm(ctx, current, targets[0])
}

// Advance resolves the target from the table, or validates the supplied one.
// Advancing out of a confirmation gate performs the confirm.
func (e *engineImpl) Advance(ctx context.Context, current *entity.WorkflowEntity, target domainwf.State) (*Result, error) {
	table, err := e.tableFor(current, "advance")
	if err != nil {
		return nil, err
	}

	if table.IsTerminal(current.Status) {
		return nil, domainwf.NewTransitionError(domainwf.ErrInvalidState,
			current.EntityType, current.Status, "advance", target)
	}

	next, trigger, ok := table.Next(current.Status)
	switch {
	case target == "" && !ok:
		return nil, domainwf.NewTransitionError(domainwf.ErrAmbiguousTransition,
			current.EntityType, current.Status, "advance", "")
	case target == "":
		target = next
	case ok && target == next:
		// explicit target equal to the table's choice
	case containsState(table.BranchTargets(current.Status), target):
		trigger = domainwf.TriggerAdvance
	default:
		return nil, domainwf.NewTransitionError(domainwf.ErrInvalidTarget,
			current.EntityType, current.Status, "advance", target)
	}

	if trigger == domainwf.TriggerConfirm {
		return e.confirm(ctx, current, target)
	}

	updated := clone(current)
	updated.Status = target

	var warnings []Warning
	if e.releasesBed(current, target) {
		w, err := e.releaseBed(ctx, current)
		if err != nil {
			return nil, err
		}
		warnings = append(warnings, w...)
	}

	e.touch(updated, current.UpdatedAt)

	e.info("Entity advanced",
		"entity_id", updated.ID,
		"entity_type", updated.EntityType,
		"from", current.Status,
		"to", updated.Status,
	)

	return &Result{
		Entity:         updated,
		Action:         entity.ActionAdvance,
		PreviousStatus: current.Status,
		Changed:        true,
		Warnings:       warnings,
	}, nil
}

// MarkCritical sets the flag and notifies unless this status was already notified
func (e *engineImpl) MarkCritical(ctx context.Context, current *entity.WorkflowEntity) (*Result, error) {
	table, err := e.tableFor(current, "mark_critical")
	if err != nil {
		return nil, err
	}

	if table.IsTerminal(current.Status) {
		return nil, domainwf.NewTransitionError(domainwf.ErrInvalidState,
			current.EntityType, current.Status, "mark_critical", "")
	}

	updated := clone(current)
	result := &Result{
		Entity:         updated,
		Action:         entity.ActionMarkCritical,
		PreviousStatus: current.Status,
	}

	if current.IsCritical && current.CriticalNotifiedStatus == current.Status {
		return result, nil
	}

	updated.IsCritical = true

	err = e.call(ctx, CollaboratorNotification, func(ctx context.Context) error {
		return e.notifier.NotifyCritical(ctx, updated.Ref())
	})
	switch {
	case err == nil:
		updated.CriticalNotifiedStatus = updated.Status
	case e.policy == PolicyStrict:
		return nil, fmt.Errorf("%w: notify critical: %w", ErrCollaboratorFailed, err)
	default:
		result.Warnings = append(result.Warnings, Warning{Collaborator: CollaboratorNotification, Err: err})
	}

	result.Changed = updated.IsCritical != current.IsCritical ||
		updated.CriticalNotifiedStatus != current.CriticalNotifiedStatus
	if result.Changed {
		e.touch(updated, current.UpdatedAt)
	}

	return result, nil
}

// Cancel terminates any non-terminal entity
func (e *engineImpl) Cancel(ctx context.Context, current *entity.WorkflowEntity, reason string) (*Result, error) {
	table, err := e.tableFor(current, "cancel")
	if err != nil {
		return nil, err
	}

	if !table.Permits(current.Status, domainwf.TriggerCancel, domainwf.StateCancelled) {
		return nil, domainwf.NewTransitionError(domainwf.ErrInvalidState,
			current.EntityType, current.Status, "cancel", domainwf.StateCancelled)
	}

	updated := clone(current)
	updated.Status = domainwf.StateCancelled
	updated.CancelReason = strings.TrimSpace(reason)

	var warnings []Warning
	if e.releasesBed(current, domainwf.StateCancelled) {
		w, err := e.releaseBed(ctx, current)
		if err != nil {
			return nil, err
		}
		warnings = append(warnings, w...)
	}

	e.touch(updated, current.UpdatedAt)

	e.info("Entity cancelled",
		"entity_id", updated.ID,
		"entity_type", updated.EntityType,
		"from", current.Status,
		"reason", updated.CancelReason,
	)

	return &Result{
		Entity:         updated,
		Action:         entity.ActionCancel,
		PreviousStatus: current.Status,
		Changed:        true,
		Warnings:       warnings,
	}, nil
}

// confirm moves through the gate and raises the invoice
func (e *engineImpl) confirm(ctx context.Context, current *entity.WorkflowEntity, to domainwf.State) (*Result, error) {
	updated := clone(current)
	updated.Status = to

	result := &Result{
		Entity:         updated,
		Action:         entity.ActionConfirm,
		PreviousStatus: current.Status,
		Changed:        true,
	}

	var invoiceID string
	err := e.call(ctx, CollaboratorBilling, func(ctx context.Context) error {
		id, err := e.billing.CreateInvoice(ctx, updated.Ref())
		invoiceID = id
		return err
	})
	switch {
	case err == nil:
		updated.InvoiceID = invoiceID
		updated.BillingPending = false
	case e.policy == PolicyStrict:
		return nil, fmt.Errorf("%w: create invoice: %w", ErrCollaboratorFailed, err)
	default:
		updated.BillingPending = true
		result.Warnings = append(result.Warnings, Warning{Collaborator: CollaboratorBilling, Err: err})
	}

	e.touch(updated, current.UpdatedAt)

	e.info("Entity confirmed",
		"entity_id", updated.ID,
		"entity_type", updated.EntityType,
		"to", updated.Status,
		"invoice_id", updated.InvoiceID,
		"billing_pending", updated.BillingPending,
	)

	return result, nil
}

// releasesBed reports whether moving to target ends an admission's bed hold
func (e *engineImpl) releasesBed(current *entity.WorkflowEntity, target domainwf.State) bool {
	return current.EntityType == domainwf.EntityAdmission &&
		current.BedRef != "" &&
		target.IsTerminal()
}

func (e *engineImpl) releaseBed(ctx context.Context, current *entity.WorkflowEntity) ([]Warning, error) {
	err := e.call(ctx, CollaboratorBeds, func(ctx context.Context) error {
		return e.beds.Release(ctx, current.BedRef)
	})
	switch {
	case err == nil:
		return nil, nil
	case e.policy == PolicyStrict:
		return nil, fmt.Errorf("%w: release bed %s: %w", ErrCollaboratorFailed, current.BedRef, err)
	default:
		return []Warning{{Collaborator: CollaboratorBeds, Err: err}}, nil
	}
}

// call runs one collaborator request under the configured timeout
func (e *engineImpl) call(ctx context.Context, collaborator string, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	err := fn(callCtx)
	if e.observer != nil {
		e.observer(collaborator, err, time.Since(start))
	}

	if err != nil {
		e.error("Collaborator call failed",
			"collaborator", collaborator,
			"policy", e.policy,
			"error", err,
		)
	}
	return err
}

// tableFor validates the entity against its table
func (e *engineImpl) tableFor(current *entity.WorkflowEntity, action string) (domainwf.Table, error) {
	if current == nil {
		return nil, fmt.Errorf("%w: entity is nil", ErrInvalidRequest)
	}

	table, err := domainwf.TableFor(current.EntityType)
	if err != nil {
		return nil, err
	}

	if !table.IsValid(current.Status) {
		return nil, domainwf.NewTransitionError(domainwf.ErrInvalidState,
			current.EntityType, current.Status, action, "")
	}

	return table, nil
}

// touch advances UpdatedAt strictly past the previous value so a
// compare-and-swap against the old timestamp can never match the new row
func (e *engineImpl) touch(updated *entity.WorkflowEntity, previous time.Time) {
	now := e.now()
	if !now.After(previous) {
		now = previous.Add(time.Nanosecond)
	}
	updated.UpdatedAt = now
}

func (e *engineImpl) info(msg string, keysAndValues ...interface{}) {
	if e.logger != nil {
		e.logger.Info(msg, keysAndValues...)
	}
}

func (e *engineImpl) error(msg string, keysAndValues ...interface{}) {
	if e.logger != nil {
		e.logger.Error(msg, keysAndValues...)
	}
}

func clone(e *entity.WorkflowEntity) *entity.WorkflowEntity {
	return deepcopy.Copy(e).(*entity.WorkflowEntity)
}

func containsState(states []domainwf.State, s domainwf.State) bool {
	for _, candidate := range states {
		if candidate == s {
			return true
		}
	}
	return false
}
