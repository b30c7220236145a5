package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/harshangpate/hospital-crm/internal/application/port"
	"github.com/harshangpate/hospital-crm/internal/domain/entity"
)

type flakyBilling struct {
	calls int
	err   error
}

func (f *flakyBilling) CreateInvoice(ctx context.Context, ref entity.EntityRef) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "inv-" + ref.ID, nil
}

type stubBeds struct {
	calls int
	err   error
}

func (s *stubBeds) Reserve(ctx context.Context, bedRef, entityID string) error {
	s.calls++
	return s.err
}

func (s *stubBeds) Release(ctx context.Context, bedRef string) error {
	s.calls++
	return s.err
}

type stubNotifier struct{ err error }

func (s *stubNotifier) NotifyCritical(ctx context.Context, ref entity.EntityRef) error {
	return s.err
}

func testConfig() Config {
	return Config{ConsecutiveFailures: 2, OpenTimeout: time.Hour, HalfOpenRequests: 1}
}

func TestBilling_OpensAfterConsecutiveFailures(t *testing.T) {
	next := &flakyBilling{err: errors.New("503")}
	var transitions []gobreaker.State
	b := NewBilling(next, testConfig(), func(name string, from, to gobreaker.State) {
		assert.Equal(t, "billing", name)
		transitions = append(transitions, to)
	}, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := b.CreateInvoice(ctx, entity.EntityRef{ID: "o-1"})
		assert.ErrorIs(t, err, next.err)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())
	assert.Equal(t, []gobreaker.State{gobreaker.StateOpen}, transitions)

	_, err := b.CreateInvoice(ctx, entity.EntityRef{ID: "o-1"})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, next.calls)
}

func TestBilling_PassesResult(t *testing.T) {
	b := NewBilling(&flakyBilling{}, testConfig(), nil, zap.NewNop())

	id, err := b.CreateInvoice(context.Background(), entity.EntityRef{ID: "o-2"})
	require.NoError(t, err)
	assert.Equal(t, "inv-o-2", id)
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBeds_OccupancyConflictsDoNotTrip(t *testing.T) {
	next := &stubBeds{err: port.ErrBedUnavailable}
	b := NewBeds(next, testConfig(), nil, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, b.Reserve(ctx, "ICU-1", "adm-1"), port.ErrBedUnavailable)
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
	assert.Equal(t, 5, next.calls)

	next.err = errors.New("connection reset")
	assert.Error(t, b.Release(ctx, "ICU-1"))
	assert.Error(t, b.Release(ctx, "ICU-1"))
	assert.Equal(t, gobreaker.StateOpen, b.State())
}

func TestNotifications_ZeroThresholdNeverTrips(t *testing.T) {
	cfg := testConfig()
	cfg.ConsecutiveFailures = 0
	n := NewNotifications(&stubNotifier{err: errors.New("down")}, cfg, nil, zap.NewNop())

	for i := 0; i < 10; i++ {
		assert.Error(t, n.NotifyCritical(context.Background(), entity.EntityRef{ID: "o-3"}))
	}
	assert.Equal(t, gobreaker.StateClosed, n.State())
}
