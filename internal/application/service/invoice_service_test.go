package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harshangpate/hospital-crm/internal/domain/entity"
	domainwf "github.com/harshangpate/hospital-crm/internal/domain/workflow"
)

func TestInvoiceService_ReconcilePending(t *testing.T) {
	orders := newMemOrderRepo()
	history := &memHistoryRepo{}
	billing := &fakeBilling{}
	svc := NewInvoiceService(newMemInvoiceRepo(), orders, history, passthroughTx{}, billing, nil, testLogger{})

	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	orders.put(entity.WorkflowEntity{
		ID: "o-1", EntityType: domainwf.EntityLabTest, Status: domainwf.StateOrdered,
		PatientID: "p", BillingPending: true, UpdatedAt: at,
	})
	orders.put(entity.WorkflowEntity{
		ID: "o-2", EntityType: domainwf.EntityLabTest, Status: domainwf.StateOrdered,
		PatientID: "p", InvoiceID: "inv-x", UpdatedAt: at,
	})

	billing.setErr(errors.New("still down"))
	n, err := svc.ReconcilePending(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.True(t, orders.get("o-1").BillingPending)

	billing.setErr(nil)
	n, err = svc.ReconcilePending(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored := orders.get("o-1")
	assert.False(t, stored.BillingPending)
	assert.Equal(t, "inv-o-1", stored.InvoiceID)
	assert.True(t, stored.UpdatedAt.After(at), "reconcile moves updated_at")
	assert.Equal(t, []string{entity.ActionInvoiceReconcile}, history.actions("o-1"))

	n, err = svc.ReconcilePending(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestInvoiceService_ReconcileLosesToConcurrentTransition(t *testing.T) {
	orders := newMemOrderRepo()
	history := &memHistoryRepo{}
	svc := NewInvoiceService(newMemInvoiceRepo(), orders, history, passthroughTx{}, &fakeBilling{}, nil, testLogger{})

	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	orders.put(entity.WorkflowEntity{
		ID: "o-1", EntityType: domainwf.EntityLabTest, Status: domainwf.StateOrdered,
		PatientID: "p", BillingPending: true, UpdatedAt: at,
	})

	// an advance commits between the pending scan and the invoice write
	orders.beforeSetInvoice = func(rows map[string]entity.WorkflowEntity) {
		row := rows["o-1"]
		row.Status = domainwf.StateSampleCollected
		row.UpdatedAt = at.Add(time.Minute)
		rows["o-1"] = row
	}

	n, err := svc.ReconcilePending(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	stored := orders.get("o-1")
	assert.True(t, stored.BillingPending)
	assert.Equal(t, domainwf.StateSampleCollected, stored.Status)
	assert.Empty(t, history.actions("o-1"), "no reconcile history for a lost write")

	orders.beforeSetInvoice = nil
	n, err = svc.ReconcilePending(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "inv-o-1", orders.get("o-1").InvoiceID)
	assert.Equal(t, domainwf.StateSampleCollected, orders.get("o-1").Status)
}

func TestInvoiceService_MarkPaid(t *testing.T) {
	invoices := newMemInvoiceRepo()
	svc := NewInvoiceService(invoices, newMemOrderRepo(), &memHistoryRepo{}, passthroughTx{}, &fakeBilling{}, nil, testLogger{})
	ctx := context.Background()

	require.NoError(t, invoices.Create(ctx, &entity.Invoice{
		ID: "inv-1", EntityID: "o-1", Status: entity.InvoiceStatusUnpaid, AmountCents: 1200,
	}))

	_, err := svc.MarkPaid(ctx, Session{}, "inv-1")
	assert.ErrorIs(t, err, ErrMissingActor)

	paid, err := svc.MarkPaid(ctx, Session{ActorID: "acct-1", Role: "accountant"}, "inv-1")
	require.NoError(t, err)
	assert.True(t, paid.IsPaid())
	assert.NotNil(t, paid.PaidAt)

	_, err = svc.MarkPaid(ctx, Session{ActorID: "acct-1"}, "inv-1")
	assert.ErrorIs(t, err, ErrInvoiceAlreadyPaid)

	_, err = svc.MarkPaid(ctx, Session{ActorID: "acct-1"}, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	byEntity, err := svc.GetByEntity(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, "inv-1", byEntity.ID)

	_, err = svc.List(ctx, "OVERDUE", 10, 0)
	assert.ErrorIs(t, err, ErrInvalidFilter)

	list, err := svc.List(ctx, entity.InvoiceStatusPaid, 0, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
