package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/harshangpate/hospital-crm/internal/application/port"
	"github.com/harshangpate/hospital-crm/internal/domain/entity"
)

// testLogger discards everything
type testLogger struct{}

func (testLogger) Info(msg string, keysAndValues ...interface{})  {}
func (testLogger) Error(msg string, keysAndValues ...interface{}) {}

// memOrderRepo is an in-memory port.OrderRepository with real CAS semantics
type memOrderRepo struct {
	mu        sync.Mutex
	rows      map[string]entity.WorkflowEntity
	createErr error
	// beforeCAS runs inside CompareAndSwap to simulate a concurrent writer
	beforeCAS func(rows map[string]entity.WorkflowEntity)
	// beforeSetInvoice runs inside SetInvoice to simulate a concurrent transition
	beforeSetInvoice func(rows map[string]entity.WorkflowEntity)
}

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{rows: make(map[string]entity.WorkflowEntity)}
}

func (r *memOrderRepo) Create(ctx context.Context, e *entity.WorkflowEntity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	if _, exists := r.rows[e.ID]; exists {
		return errors.New("duplicate id")
	}
	r.rows[e.ID] = *e
	return nil
}

func (r *memOrderRepo) GetByID(ctx context.Context, id string) (*entity.WorkflowEntity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, exists := r.rows[id]
	if !exists {
		return nil, nil
	}
	return &row, nil
}

func (r *memOrderRepo) List(ctx context.Context, filter port.OrderFilter) ([]*entity.WorkflowEntity, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []*entity.WorkflowEntity
	for _, row := range r.rows {
		row := row
		if filter.EntityType != "" && row.EntityType != filter.EntityType {
			continue
		}
		if filter.Status != "" && row.Status != filter.Status {
			continue
		}
		matched = append(matched, &row)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	total := len(matched)
	if filter.Offset < len(matched) {
		matched = matched[filter.Offset:]
	} else {
		matched = nil
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (r *memOrderRepo) CompareAndSwap(ctx context.Context, e *entity.WorkflowEntity, expected time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.beforeCAS != nil {
		r.beforeCAS(r.rows)
	}
	row, exists := r.rows[e.ID]
	if !exists || !row.UpdatedAt.Equal(expected) {
		return false, nil
	}
	r.rows[e.ID] = *e
	return true, nil
}

func (r *memOrderRepo) ListBillingPending(ctx context.Context, limit int) ([]*entity.WorkflowEntity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var pending []*entity.WorkflowEntity
	for _, row := range r.rows {
		row := row
		if row.BillingPending {
			pending = append(pending, &row)
		}
	}
	if len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (r *memOrderRepo) SetInvoice(ctx context.Context, id string, invoiceID string, expected, updatedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.beforeSetInvoice != nil {
		r.beforeSetInvoice(r.rows)
	}
	row, exists := r.rows[id]
	if !exists || !row.UpdatedAt.Equal(expected) {
		return false, nil
	}
	row.InvoiceID = invoiceID
	row.BillingPending = false
	row.UpdatedAt = updatedAt
	r.rows[id] = row
	return true, nil
}

func (r *memOrderRepo) put(e entity.WorkflowEntity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[e.ID] = e
}

func (r *memOrderRepo) get(id string) entity.WorkflowEntity {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows[id]
}

// memHistoryRepo is an in-memory port.HistoryRepository
type memHistoryRepo struct {
	mu      sync.Mutex
	records []*entity.TransitionRecord
}

func (r *memHistoryRepo) Create(ctx context.Context, record *entity.TransitionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	record.ID = int64(len(r.records) + 1)
	r.records = append(r.records, record)
	return nil
}

func (r *memHistoryRepo) GetByEntityID(ctx context.Context, entityID string) ([]*entity.TransitionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*entity.TransitionRecord
	for _, rec := range r.records {
		if rec.EntityID == entityID {
			result = append(result, rec)
		}
	}
	return result, nil
}

func (r *memHistoryRepo) actions(entityID string) []string {
	records, _ := r.GetByEntityID(context.Background(), entityID)
	var actions []string
	for _, rec := range records {
		actions = append(actions, rec.Action)
	}
	return actions
}

// memInvoiceRepo is an in-memory port.InvoiceRepository
type memInvoiceRepo struct {
	mu   sync.Mutex
	rows map[string]*entity.Invoice
}

func newMemInvoiceRepo() *memInvoiceRepo {
	return &memInvoiceRepo{rows: make(map[string]*entity.Invoice)}
}

func (r *memInvoiceRepo) Create(ctx context.Context, invoice *entity.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *invoice
	r.rows[invoice.ID] = &cp
	return nil
}

func (r *memInvoiceRepo) GetByID(ctx context.Context, id string) (*entity.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if inv, ok := r.rows[id]; ok {
		cp := *inv
		return &cp, nil
	}
	return nil, nil
}

func (r *memInvoiceRepo) GetByEntityID(ctx context.Context, entityID string) (*entity.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inv := range r.rows {
		if inv.EntityID == entityID {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memInvoiceRepo) List(ctx context.Context, status string, limit, offset int) ([]*entity.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*entity.Invoice
	for _, inv := range r.rows {
		if status == "" || inv.Status == status {
			cp := *inv
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (r *memInvoiceRepo) MarkPaid(ctx context.Context, id string, paidAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.rows[id]
	if !ok || inv.Status != entity.InvoiceStatusUnpaid {
		return false, nil
	}
	inv.Status = entity.InvoiceStatusPaid
	inv.PaidAt = &paidAt
	return true, nil
}

// passthroughTx runs fn directly; memory fakes need no transaction
type passthroughTx struct{}

func (passthroughTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// fakeBilling implements port.BillingService
type fakeBilling struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (b *fakeBilling) CreateInvoice(ctx context.Context, ref entity.EntityRef) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.err != nil {
		return "", b.err
	}
	return "inv-" + ref.ID, nil
}

func (b *fakeBilling) setErr(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.err = err
}

// fakeNotifier implements port.NotificationService
type fakeNotifier struct {
	mu    sync.Mutex
	calls int
}

func (n *fakeNotifier) NotifyCritical(ctx context.Context, ref entity.EntityRef) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	return nil
}

// fakeBeds implements port.BedInventoryService
type fakeBeds struct {
	mu       sync.Mutex
	occupied map[string]string
}

func newFakeBeds() *fakeBeds {
	return &fakeBeds{occupied: make(map[string]string)}
}

func (b *fakeBeds) Reserve(ctx context.Context, bedRef, entityID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if holder, ok := b.occupied[bedRef]; ok && holder != entityID {
		return port.ErrBedUnavailable
	}
	b.occupied[bedRef] = entityID
	return nil
}

func (b *fakeBeds) Release(ctx context.Context, bedRef string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.occupied, bedRef)
	return nil
}

func (b *fakeBeds) holder(bedRef string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.occupied[bedRef]
}
