package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/harshangpate/hospital-crm/internal/application/port"
	"github.com/harshangpate/hospital-crm/internal/domain/entity"
	"github.com/harshangpate/hospital-crm/internal/domain/workflow"
	"github.com/harshangpate/hospital-crm/internal/infrastructure/persistence/sqlite"
	"github.com/harshangpate/hospital-crm/pkg/database"
)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(database.Config{
		Driver:       database.DriverPure,
		Path:         filepath.Join(t.TempDir(), "repo.db"),
		MaxOpenConns: 1,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.NewMigrator(db, zap.NewNop()).RunMigrations())
	return db
}

func sampleOrder(id string, orderedAt time.Time) *entity.WorkflowEntity {
	return &entity.WorkflowEntity{
		ID:          id,
		EntityType:  workflow.EntityLabTest,
		Status:      workflow.StatePendingConfirmation,
		PatientID:   "patient-1",
		Description: "Lipid panel",
		OrderedBy:   "dr-house",
		OrderedAt:   orderedAt,
		UpdatedAt:   orderedAt,
	}
}

func TestOrderRepository_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewOrderRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	at := time.Date(2026, 4, 2, 10, 30, 0, 123456789, time.UTC)
	order := sampleOrder("o-1", at)
	order.IsCritical = true
	order.CriticalNotifiedStatus = workflow.StatePendingConfirmation
	require.NoError(t, repo.Create(ctx, order))

	got, err := repo.GetByID(ctx, "o-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, order, got)
	assert.Equal(t, at.UnixNano(), got.UpdatedAt.UnixNano())

	missing, err := repo.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestOrderRepository_CompareAndSwap(t *testing.T) {
	db := setupTestDB(t)
	repo := NewOrderRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	at := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Create(ctx, sampleOrder("o-1", at)))

	updated := sampleOrder("o-1", at)
	updated.Status = workflow.StateOrdered
	updated.InvoiceID = "inv-1"
	updated.UpdatedAt = at.Add(time.Nanosecond)

	ok, err := repo.CompareAndSwap(ctx, updated, at)
	require.NoError(t, err)
	assert.True(t, ok)

	// stale writer still holding the original timestamp
	stale := sampleOrder("o-1", at)
	stale.Status = workflow.StateCancelled
	stale.UpdatedAt = at.Add(time.Second)
	ok, err = repo.CompareAndSwap(ctx, stale, at)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.GetByID(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateOrdered, got.Status)
	assert.Equal(t, "inv-1", got.InvoiceID)
	assert.Equal(t, at.Add(time.Nanosecond), got.UpdatedAt)
}

func TestOrderRepository_List(t *testing.T) {
	db := setupTestDB(t)
	repo := NewOrderRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	base := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c", "d"} {
		o := sampleOrder(id, base.Add(time.Duration(i)*time.Hour))
		if id == "c" {
			o.EntityType = workflow.EntityRadiologyTest
			o.Status = workflow.StateOrdered
			o.IsCritical = true
		}
		if id == "d" {
			o.PatientID = "patient-2"
		}
		require.NoError(t, repo.Create(ctx, o))
	}

	all, total, err := repo.List(ctx, port.OrderFilter{})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	require.Len(t, all, 4)
	assert.Equal(t, "d", all[0].ID, "newest first")

	page, total, err := repo.List(ctx, port.OrderFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	require.Len(t, page, 2)
	assert.Equal(t, "c", page[0].ID)
	assert.Equal(t, "b", page[1].ID)

	labs, total, err := repo.List(ctx, port.OrderFilter{EntityType: workflow.EntityLabTest, PatientID: "patient-1"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, labs, 2)

	critical := true
	crit, _, err := repo.List(ctx, port.OrderFilter{Critical: &critical})
	require.NoError(t, err)
	require.Len(t, crit, 1)
	assert.Equal(t, "c", crit[0].ID)

	byStatus, _, err := repo.List(ctx, port.OrderFilter{Status: workflow.StateOrdered})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
}

func TestOrderRepository_BillingPending(t *testing.T) {
	db := setupTestDB(t)
	repo := NewOrderRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	at := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	pending := sampleOrder("p", at)
	pending.Status = workflow.StateOrdered
	pending.BillingPending = true
	require.NoError(t, repo.Create(ctx, pending))
	require.NoError(t, repo.Create(ctx, sampleOrder("q", at)))

	list, err := repo.ListBillingPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "p", list[0].ID)

	later := at.Add(time.Second)

	ok, err := repo.SetInvoice(ctx, "p", "inv-stale", at.Add(-time.Second), later)
	require.NoError(t, err)
	assert.False(t, ok, "stale updated_at must not be overwritten")

	ok, err = repo.SetInvoice(ctx, "p", "inv-9", at, later)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := repo.GetByID(ctx, "p")
	require.NoError(t, err)
	assert.False(t, got.BillingPending)
	assert.Equal(t, "inv-9", got.InvoiceID)
	assert.Equal(t, later, got.UpdatedAt)

	// a writer that loaded the row before reconciliation now loses its swap
	stale := *pending
	stale.Status = workflow.StateSampleCollected
	stale.UpdatedAt = later.Add(time.Second)
	swapped, err := repo.CompareAndSwap(ctx, &stale, at)
	require.NoError(t, err)
	assert.False(t, swapped)

	ok, err = repo.SetInvoice(ctx, "missing", "inv-0", at, later)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHistoryRepository(t *testing.T) {
	db := setupTestDB(t)
	orders := NewOrderRepository(db.DB, zap.NewNop())
	repo := NewHistoryRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	at := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, orders.Create(ctx, sampleOrder("o-1", at)))

	first := &entity.TransitionRecord{
		EntityID:  "o-1",
		ActorID:   "nurse-1",
		ActorRole: "nurse",
		NewStatus: string(workflow.StatePendingConfirmation),
		Action:    entity.ActionCreate,
		Timestamp: at,
	}
	second := &entity.TransitionRecord{
		EntityID:       "o-1",
		ActorID:        "dr-1",
		PreviousStatus: string(workflow.StatePendingConfirmation),
		NewStatus:      string(workflow.StateOrdered),
		Action:         entity.ActionConfirm,
		Detail:         "invoice inv-1",
		Timestamp:      at.Add(time.Minute),
	}
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, second))
	assert.NotZero(t, first.ID)
	assert.Greater(t, second.ID, first.ID)

	records, err := repo.GetByEntityID(ctx, "o-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, entity.ActionCreate, records[0].Action)
	assert.Equal(t, "invoice inv-1", records[1].Detail)
	assert.Equal(t, at.Add(time.Minute), records[1].Timestamp)

	none, err := repo.GetByEntityID(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestInvoiceRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewInvoiceRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	at := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	inv := &entity.Invoice{
		ID:          "inv-1",
		EntityID:    "o-1",
		EntityType:  workflow.EntityLabTest,
		PatientID:   "patient-1",
		AmountCents: 4500,
		Status:      entity.InvoiceStatusUnpaid,
		CreatedAt:   at,
	}
	require.NoError(t, repo.Create(ctx, inv))

	dup := *inv
	dup.ID = "inv-2"
	assert.Error(t, repo.Create(ctx, &dup), "one invoice per entity")

	byEntity, err := repo.GetByEntityID(ctx, "o-1")
	require.NoError(t, err)
	require.NotNil(t, byEntity)
	assert.Equal(t, "inv-1", byEntity.ID)
	assert.Nil(t, byEntity.PaidAt)

	paidAt := at.Add(time.Hour)
	ok, err := repo.MarkPaid(ctx, "inv-1", paidAt)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkPaid(ctx, "inv-1", paidAt)
	require.NoError(t, err)
	assert.False(t, ok, "already paid")

	got, err := repo.GetByID(ctx, "inv-1")
	require.NoError(t, err)
	assert.True(t, got.IsPaid())
	require.NotNil(t, got.PaidAt)
	assert.Equal(t, paidAt, *got.PaidAt)

	paid, err := repo.List(ctx, entity.InvoiceStatusPaid, 10, 0)
	require.NoError(t, err)
	assert.Len(t, paid, 1)
	unpaid, err := repo.List(ctx, entity.InvoiceStatusUnpaid, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, unpaid)

	missing, err := repo.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestBedRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBedRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, &entity.Bed{Ref: "W1-01", Ward: "W1"}))
	require.NoError(t, repo.Upsert(ctx, &entity.Bed{Ref: "W2-01", Ward: "W2"}))

	ok, err := repo.Occupy(ctx, "W1-01", "adm-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Occupy(ctx, "W1-01", "adm-2")
	require.NoError(t, err)
	assert.False(t, ok, "occupied bed cannot be claimed twice")

	// upsert keeps occupancy
	require.NoError(t, repo.Upsert(ctx, &entity.Bed{Ref: "W1-01", Ward: "W1-East"}))
	bed, err := repo.Get(ctx, "W1-01")
	require.NoError(t, err)
	assert.Equal(t, "adm-1", bed.OccupiedBy)
	assert.Equal(t, "W1-East", bed.Ward)

	require.NoError(t, repo.Vacate(ctx, "W1-01"))
	bed, err = repo.Get(ctx, "W1-01")
	require.NoError(t, err)
	assert.True(t, bed.IsFree())

	w2, err := repo.List(ctx, "W2")
	require.NoError(t, err)
	assert.Len(t, w2, 1)

	all, err := repo.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	missing, err := repo.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestTransactionRollback(t *testing.T) {
	db := setupTestDB(t)
	txm := sqlite.NewDB(db.DB, zap.NewNop())
	orders := NewOrderRepository(db.DB, zap.NewNop())
	history := NewHistoryRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	at := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	boom := errors.New("boom")

	err := txm.WithTransaction(ctx, func(ctx context.Context) error {
		if err := orders.Create(ctx, sampleOrder("o-tx", at)); err != nil {
			return err
		}
		if err := history.Create(ctx, &entity.TransitionRecord{
			EntityID: "o-tx", NewStatus: "PENDING_CONFIRMATION", Action: entity.ActionCreate, Timestamp: at,
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := orders.GetByID(ctx, "o-tx")
	require.NoError(t, err)
	assert.Nil(t, got)

	records, err := history.GetByEntityID(ctx, "o-tx")
	require.NoError(t, err)
	assert.Empty(t, records)

	// committed path
	require.NoError(t, txm.WithTransaction(ctx, func(ctx context.Context) error {
		return orders.Create(ctx, sampleOrder("o-ok", at))
	}))
	got, err = orders.GetByID(ctx, "o-ok")
	require.NoError(t, err)
	assert.NotNil(t, got)
}
