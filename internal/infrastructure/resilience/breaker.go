// Package resilience wraps collaborator ports in circuit breakers so a
// failing downstream is not called on every transition.
package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/harshangpate/hospital-crm/internal/application/port"
	"github.com/harshangpate/hospital-crm/internal/domain/entity"
)

// Config holds circuit breaker settings shared by all collaborators
type Config struct {
	// ConsecutiveFailures trips the breaker; zero disables breaking
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before probing
	OpenTimeout time.Duration
	// HalfOpenRequests is the number of probes let through when half-open
	HalfOpenRequests uint32
	// Interval clears closed-state counts periodically; zero never clears
	Interval time.Duration
}

// DefaultConfig returns the default breaker settings
func DefaultConfig() Config {
	return Config{
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
		HalfOpenRequests:    1,
	}
}

// StateObserver is told about breaker state changes
type StateObserver func(name string, from, to gobreaker.State)

type none struct{}

func newBreaker[T any](name string, cfg Config, isSuccessful func(error) bool, observe StateObserver, logger *zap.Logger) *gobreaker.CircuitBreaker[T] {
	threshold := cfg.ConsecutiveFailures
	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return threshold > 0 && counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			if observe != nil {
				observe(name, from, to)
			}
		},
		IsSuccessful: isSuccessful,
	})
}

// businessOutcome keeps caller-side rejections from counting as downstream failures
func businessOutcome(err error) bool {
	return err == nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, port.ErrBedNotFound) ||
		errors.Is(err, port.ErrBedUnavailable)
}

// Billing guards a port.BillingService
type Billing struct {
	next port.BillingService
	cb   *gobreaker.CircuitBreaker[string]
}

// NewBilling wraps next in a breaker named "billing"
func NewBilling(next port.BillingService, cfg Config, observe StateObserver, logger *zap.Logger) *Billing {
	return &Billing{
		next: next,
		cb:   newBreaker[string]("billing", cfg, businessOutcome, observe, logger),
	}
}

// CreateInvoice calls the wrapped service unless the breaker is open
func (b *Billing) CreateInvoice(ctx context.Context, ref entity.EntityRef) (string, error) {
	return b.cb.Execute(func() (string, error) {
		return b.next.CreateInvoice(ctx, ref)
	})
}

// State returns the breaker state
func (b *Billing) State() gobreaker.State {
	return b.cb.State()
}

// Notifications guards a port.NotificationService
type Notifications struct {
	next port.NotificationService
	cb   *gobreaker.CircuitBreaker[none]
}

// NewNotifications wraps next in a breaker named "notification"
func NewNotifications(next port.NotificationService, cfg Config, observe StateObserver, logger *zap.Logger) *Notifications {
	return &Notifications{
		next: next,
		cb:   newBreaker[none]("notification", cfg, businessOutcome, observe, logger),
	}
}

// NotifyCritical calls the wrapped service unless the breaker is open
func (n *Notifications) NotifyCritical(ctx context.Context, ref entity.EntityRef) error {
	_, err := n.cb.Execute(func() (none, error) {
		return none{}, n.next.NotifyCritical(ctx, ref)
	})
	return err
}

// State returns the breaker state
func (n *Notifications) State() gobreaker.State {
	return n.cb.State()
}

// Beds guards a port.BedInventoryService. Occupancy conflicts do not
// count as failures.
type Beds struct {
	next port.BedInventoryService
	cb   *gobreaker.CircuitBreaker[none]
}

// NewBeds wraps next in a breaker named "beds"
func NewBeds(next port.BedInventoryService, cfg Config, observe StateObserver, logger *zap.Logger) *Beds {
	return &Beds{
		next: next,
		cb:   newBreaker[none]("beds", cfg, businessOutcome, observe, logger),
	}
}

// Reserve calls the wrapped inventory unless the breaker is open
func (b *Beds) Reserve(ctx context.Context, bedRef string, entityID string) error {
	_, err := b.cb.Execute(func() (none, error) {
		return none{}, b.next.Reserve(ctx, bedRef, entityID)
	})
	return err
}

// Release calls the wrapped inventory unless the breaker is open
func (b *Beds) Release(ctx context.Context, bedRef string) error {
	_, err := b.cb.Execute(func() (none, error) {
		return none{}, b.next.Release(ctx, bedRef)
	})
	return err
}

// State returns the breaker state
func (b *Beds) State() gobreaker.State {
	return b.cb.State()
}

var (
	_ port.BillingService      = (*Billing)(nil)
	_ port.NotificationService = (*Notifications)(nil)
	_ port.BedInventoryService = (*Beds)(nil)
)
