package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harshangpate/hospital-crm/internal/application/dispatcher"
	"github.com/harshangpate/hospital-crm/internal/application/port"
	appwf "github.com/harshangpate/hospital-crm/internal/application/workflow"
	"github.com/harshangpate/hospital-crm/internal/domain/entity"
	"github.com/harshangpate/hospital-crm/internal/domain/event"
	domainwf "github.com/harshangpate/hospital-crm/internal/domain/workflow"
)

var nurse = Session{ActorID: "nurse-7", Role: "nurse"}

type orderFixture struct {
	svc      OrderService
	orders   *memOrderRepo
	history  *memHistoryRepo
	billing  *fakeBilling
	notifier *fakeNotifier
	beds     *fakeBeds
	events   *eventRecorder
	disp     dispatcher.Dispatcher
}

// eventRecorder collects dispatched event types
type eventRecorder struct {
	mu    sync.Mutex
	types []event.Type
}

func (r *eventRecorder) handle(ctx context.Context, evt *event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, evt.Type)
	return nil
}

func newOrderFixture(t *testing.T, opts ...appwf.EngineOption) *orderFixture {
	t.Helper()
	f := &orderFixture{
		orders:   newMemOrderRepo(),
		history:  &memHistoryRepo{},
		billing:  &fakeBilling{},
		notifier: &fakeNotifier{},
		beds:     newFakeBeds(),
		events:   &eventRecorder{},
		disp:     dispatcher.NewDispatcher(),
	}
	f.disp.SubscribeAll("recorder", f.events.handle)

	engine := appwf.NewEngine(f.billing, f.notifier, f.beds, opts...)
	f.svc = NewOrderService(engine, f.orders, f.history, passthroughTx{}, f.beds, testLogger{},
		WithDispatcher(f.disp))
	return f
}

// flushEvents waits for async handlers and returns what was published
func (f *orderFixture) flushEvents(t *testing.T) []event.Type {
	t.Helper()
	require.NoError(t, f.disp.Close())
	f.events.mu.Lock()
	defer f.events.mu.Unlock()
	return append([]event.Type{}, f.events.types...)
}

func (f *orderFixture) create(t *testing.T, req appwf.CreateRequest) *entity.WorkflowEntity {
	t.Helper()
	out, err := f.svc.Create(context.Background(), nurse, req)
	require.NoError(t, err)
	return out.Entity
}

func TestOrderService_Create(t *testing.T) {
	f := newOrderFixture(t)

	out, err := f.svc.Create(context.Background(), nurse, appwf.CreateRequest{
		EntityType:  domainwf.EntityLabTest,
		PatientID:   "patient-1",
		Description: "HbA1c",
	})
	require.NoError(t, err)

	stored := f.orders.get(out.Entity.ID)
	assert.Equal(t, domainwf.StatePendingConfirmation, stored.Status)
	assert.Equal(t, "nurse-7", stored.OrderedBy, "defaults to acting session")

	records, err := f.svc.History(context.Background(), out.Entity.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, entity.ActionCreate, records[0].Action)
	assert.Equal(t, "nurse", records[0].ActorRole)

	assert.Equal(t, []event.Type{event.TypeOrderCreated}, f.flushEvents(t))
}

func TestOrderService_CreateRequiresActor(t *testing.T) {
	f := newOrderFixture(t)
	_, err := f.svc.Create(context.Background(), Session{}, appwf.CreateRequest{
		EntityType: domainwf.EntityLabTest,
		PatientID:  "p",
	})
	assert.ErrorIs(t, err, ErrMissingActor)
}

func TestOrderService_CreateAdmissionReleasesBedWhenStoreFails(t *testing.T) {
	f := newOrderFixture(t)
	f.orders.createErr = errors.New("disk full")

	_, err := f.svc.Create(context.Background(), nurse, appwf.CreateRequest{
		EntityType: domainwf.EntityAdmission,
		PatientID:  "p",
		BedRef:     "W1-01",
	})
	require.Error(t, err)
	assert.Empty(t, f.beds.holder("W1-01"))
}

func TestOrderService_LabTestLifecycle(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	order := f.create(t, appwf.CreateRequest{EntityType: domainwf.EntityLabTest, PatientID: "p"})

	out, err := f.svc.Confirm(ctx, nurse, TransitionRequest{ID: order.ID})
	require.NoError(t, err)
	assert.Equal(t, domainwf.StateOrdered, out.Entity.Status)
	assert.Equal(t, "inv-"+order.ID, out.Entity.InvoiceID)

	want := []domainwf.State{
		domainwf.StateSampleCollected,
		domainwf.StateInProgress,
		domainwf.StatePendingApproval,
		domainwf.StateCompleted,
	}
	for _, state := range want {
		out, err = f.svc.Advance(ctx, nurse, TransitionRequest{ID: order.ID})
		require.NoError(t, err)
		assert.Equal(t, state, out.Entity.Status)
	}

	_, err = f.svc.Cancel(ctx, nurse, TransitionRequest{ID: order.ID, Reason: "late"})
	assert.ErrorIs(t, err, domainwf.ErrInvalidState)

	assert.Equal(t, []string{
		entity.ActionCreate,
		entity.ActionConfirm,
		entity.ActionAdvance,
		entity.ActionAdvance,
		entity.ActionAdvance,
		entity.ActionAdvance,
	}, f.history.actions(order.ID))
	assert.Equal(t, 1, f.billing.calls)

	events := f.flushEvents(t)
	assert.Contains(t, events, event.TypeOrderConfirmed)
	assert.Contains(t, events, event.TypeStatusChanged)
}

func TestOrderService_StaleExpectedUpdatedAt(t *testing.T) {
	f := newOrderFixture(t)
	order := f.create(t, appwf.CreateRequest{EntityType: domainwf.EntityLabTest, PatientID: "p"})

	stale := order.UpdatedAt.Add(-time.Second)
	_, err := f.svc.Confirm(context.Background(), nurse, TransitionRequest{ID: order.ID, ExpectedUpdatedAt: &stale})
	assert.ErrorIs(t, err, domainwf.ErrConcurrentModification)
	assert.True(t, IsConflict(err))
	assert.Equal(t, 0, f.billing.calls, "rejected before collaborators run")

	fresh := order.UpdatedAt
	_, err = f.svc.Confirm(context.Background(), nurse, TransitionRequest{ID: order.ID, ExpectedUpdatedAt: &fresh})
	assert.NoError(t, err)
}

func TestOrderService_LostCompareAndSwap(t *testing.T) {
	f := newOrderFixture(t)
	order := f.create(t, appwf.CreateRequest{EntityType: domainwf.EntityRadiologyTest, PatientID: "p"})

	f.orders.beforeCAS = func(rows map[string]entity.WorkflowEntity) {
		row := rows[order.ID]
		row.UpdatedAt = row.UpdatedAt.Add(time.Minute)
		rows[order.ID] = row
	}

	_, err := f.svc.Advance(context.Background(), nurse, TransitionRequest{ID: order.ID})
	assert.ErrorIs(t, err, domainwf.ErrConcurrentModification)
	assert.Equal(t, domainwf.StateOrdered, f.orders.get(order.ID).Status)
	assert.Equal(t, []string{entity.ActionCreate}, f.history.actions(order.ID))
}

func TestOrderService_LostDischargeKeepsBed(t *testing.T) {
	f := newOrderFixture(t)
	admission := f.create(t, appwf.CreateRequest{
		EntityType: domainwf.EntityAdmission,
		PatientID:  "p",
		BedRef:     "W3-02",
	})
	require.Equal(t, admission.ID, f.beds.holder("W3-02"))

	f.orders.beforeCAS = func(rows map[string]entity.WorkflowEntity) {
		row := rows[admission.ID]
		row.IsCritical = true
		row.UpdatedAt = row.UpdatedAt.Add(time.Minute)
		rows[admission.ID] = row
	}

	_, err := f.svc.Advance(context.Background(), nurse, TransitionRequest{ID: admission.ID, Target: domainwf.StateDischarged})
	require.ErrorIs(t, err, domainwf.ErrConcurrentModification)
	assert.Equal(t, admission.ID, f.beds.holder("W3-02"), "bed re-reserved after lost race")
}

func TestOrderService_LostDischargeToCancelLeavesBedFree(t *testing.T) {
	f := newOrderFixture(t)
	admission := f.create(t, appwf.CreateRequest{
		EntityType: domainwf.EntityAdmission,
		PatientID:  "p",
		BedRef:     "W3-02",
	})

	// a cancel commits first: status CANCELLED, bed already released by it
	f.orders.beforeCAS = func(rows map[string]entity.WorkflowEntity) {
		row := rows[admission.ID]
		row.Status = domainwf.StateCancelled
		row.CancelReason = "patient left"
		row.UpdatedAt = row.UpdatedAt.Add(time.Minute)
		rows[admission.ID] = row
		delete(f.beds.occupied, "W3-02")
	}

	_, err := f.svc.Advance(context.Background(), nurse, TransitionRequest{ID: admission.ID, Target: domainwf.StateDischarged})
	require.ErrorIs(t, err, domainwf.ErrConcurrentModification)

	f.orders.beforeCAS = nil
	assert.Equal(t, domainwf.StateCancelled, f.orders.get(admission.ID).Status)
	assert.Empty(t, f.beds.holder("W3-02"), "bed must not return to a cancelled admission")
}

func TestOrderService_ReconciledInvoiceSurvivesStaleTransition(t *testing.T) {
	f := newOrderFixture(t)
	f.billing.setErr(errors.New("billing unreachable"))
	order := f.create(t, appwf.CreateRequest{EntityType: domainwf.EntityLabTest, PatientID: "p"})
	_, err := f.svc.Confirm(context.Background(), nurse, TransitionRequest{ID: order.ID})
	require.NoError(t, err)
	require.True(t, f.orders.get(order.ID).BillingPending)

	// the reconciler settles the invoice after Advance loaded the row
	f.orders.beforeCAS = func(rows map[string]entity.WorkflowEntity) {
		row := rows[order.ID]
		row.InvoiceID = "inv-1"
		row.BillingPending = false
		row.UpdatedAt = row.UpdatedAt.Add(time.Minute)
		rows[order.ID] = row
	}

	_, err = f.svc.Advance(context.Background(), nurse, TransitionRequest{ID: order.ID})
	require.ErrorIs(t, err, domainwf.ErrConcurrentModification)

	f.orders.beforeCAS = nil
	stored := f.orders.get(order.ID)
	assert.Equal(t, "inv-1", stored.InvoiceID)
	assert.False(t, stored.BillingPending)
	assert.Equal(t, domainwf.StateOrdered, stored.Status)
}

func TestOrderService_AdmissionDisposition(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	admission := f.create(t, appwf.CreateRequest{
		EntityType: domainwf.EntityAdmission,
		PatientID:  "p",
		BedRef:     "W3-02",
	})

	_, err := f.svc.Advance(ctx, nurse, TransitionRequest{ID: admission.ID})
	assert.ErrorIs(t, err, domainwf.ErrAmbiguousTransition)

	_, err = f.svc.Advance(ctx, nurse, TransitionRequest{ID: admission.ID, Target: domainwf.StateCompleted})
	assert.ErrorIs(t, err, domainwf.ErrInvalidTarget)

	out, err := f.svc.Advance(ctx, nurse, TransitionRequest{ID: admission.ID, Target: domainwf.StateTransferred})
	require.NoError(t, err)
	assert.Equal(t, domainwf.StateTransferred, out.Entity.Status)
	assert.Empty(t, f.beds.holder("W3-02"))
}

func TestOrderService_MarkCriticalIdempotent(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	order := f.create(t, appwf.CreateRequest{EntityType: domainwf.EntityRadiologyTest, PatientID: "p"})

	first, err := f.svc.MarkCritical(ctx, nurse, TransitionRequest{ID: order.ID})
	require.NoError(t, err)
	assert.True(t, first.Changed)

	second, err := f.svc.MarkCritical(ctx, nurse, TransitionRequest{ID: order.ID})
	require.NoError(t, err)
	assert.False(t, second.Changed)
	assert.True(t, second.Entity.IsCritical)

	assert.Equal(t, 1, f.notifier.calls)
	assert.Equal(t, []string{entity.ActionCreate, entity.ActionMarkCritical}, f.history.actions(order.ID))
}

func TestOrderService_TolerantBillingFailureIsCommittedWithWarning(t *testing.T) {
	f := newOrderFixture(t)
	f.billing.setErr(errors.New("billing unreachable"))
	order := f.create(t, appwf.CreateRequest{EntityType: domainwf.EntitySurgery, PatientID: "p"})

	out, err := f.svc.Confirm(context.Background(), nurse, TransitionRequest{ID: order.ID})
	require.NoError(t, err)
	assert.Equal(t, domainwf.StateScheduled, out.Entity.Status)
	require.Len(t, out.Warnings, 1)
	assert.Contains(t, out.Warnings[0], "billing")

	stored := f.orders.get(order.ID)
	assert.True(t, stored.BillingPending)

	records := f.history.records
	assert.Contains(t, records[len(records)-1].Detail, "billing pending")
}

func TestOrderService_StrictBillingFailureLeavesStoreUntouched(t *testing.T) {
	f := newOrderFixture(t, appwf.WithFailurePolicy(appwf.PolicyStrict))
	f.billing.setErr(errors.New("billing unreachable"))
	order := f.create(t, appwf.CreateRequest{EntityType: domainwf.EntityLabTest, PatientID: "p"})

	_, err := f.svc.Confirm(context.Background(), nurse, TransitionRequest{ID: order.ID})
	assert.ErrorIs(t, err, appwf.ErrCollaboratorFailed)
	assert.Equal(t, *order, f.orders.get(order.ID))
}

func TestOrderService_NotFound(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()

	_, err := f.svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.Advance(ctx, nurse, TransitionRequest{ID: "missing"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.History(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOrderService_List(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		f.create(t, appwf.CreateRequest{EntityType: domainwf.EntityLabTest, PatientID: "p"})
	}
	f.create(t, appwf.CreateRequest{EntityType: domainwf.EntityRadiologyTest, PatientID: "p"})

	page, err := f.svc.List(ctx, port.OrderFilter{EntityType: domainwf.EntityLabTest, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, 2, page.Limit)

	page, err = f.svc.List(ctx, port.OrderFilter{})
	require.NoError(t, err)
	assert.Equal(t, DefaultPageSize, page.Limit)
	assert.Equal(t, 4, page.Total)

	page, err = f.svc.List(ctx, port.OrderFilter{Limit: MaxPageSize + 1})
	require.NoError(t, err)
	assert.Equal(t, MaxPageSize, page.Limit)

	_, err = f.svc.List(ctx, port.OrderFilter{EntityType: "PHARMACY"})
	assert.ErrorIs(t, err, ErrInvalidFilter)
	_, err = f.svc.List(ctx, port.OrderFilter{Status: "LOST"})
	assert.ErrorIs(t, err, ErrInvalidFilter)
	_, err = f.svc.List(ctx, port.OrderFilter{Offset: -1})
	assert.ErrorIs(t, err, ErrInvalidFilter)
}

func TestOrderService_TransitionObserver(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]int{}
	engine := appwf.NewEngine(&fakeBilling{}, &fakeNotifier{}, newFakeBeds())
	orders := newMemOrderRepo()
	svc := NewOrderService(engine, orders, &memHistoryRepo{}, passthroughTx{}, nil, testLogger{},
		WithTransitionObserver(func(entityType domainwf.EntityType, action string, err error, elapsed time.Duration) {
			mu.Lock()
			defer mu.Unlock()
			key := action
			if err != nil {
				key += ":error"
			}
			seen[key]++
		}))

	ctx := context.Background()
	out, err := svc.Create(ctx, nurse, appwf.CreateRequest{EntityType: domainwf.EntityLabTest, PatientID: "p"})
	require.NoError(t, err)
	_, err = svc.Advance(ctx, nurse, TransitionRequest{ID: out.Entity.ID})
	require.NoError(t, err)
	_, err = svc.Confirm(ctx, nurse, TransitionRequest{ID: out.Entity.ID})
	require.Error(t, err)

	assert.Equal(t, 1, seen[entity.ActionCreate])
	assert.Equal(t, 1, seen[entity.ActionAdvance])
	assert.Equal(t, 1, seen[entity.ActionConfirm+":error"])
}
