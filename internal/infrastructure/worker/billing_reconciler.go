package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Reconciler retries invoice creation for confirmed orders still marked billing-pending
type Reconciler interface {
	ReconcilePending(ctx context.Context, limit int) (int, error)
}

// ReconcilerConfig holds configuration for the billing reconciler
type ReconcilerConfig struct {
	PollInterval time.Duration
	BatchSize    int
	RunTimeout   time.Duration
}

// DefaultReconcilerConfig returns default configuration
func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		PollInterval: time.Minute,
		BatchSize:    50,
		RunTimeout:   30 * time.Second,
	}
}

// ReconcilerStats is a snapshot of reconciler progress
type ReconcilerStats struct {
	Runs       int
	Reconciled int
	LastRun    time.Time
	LastError  error
}

// BillingReconciler periodically invoices orders whose billing was
// deferred under the tolerate failure policy.
type BillingReconciler struct {
	config     ReconcilerConfig
	reconciler Reconciler
	onRun      func(reconciled int, err error)
	logger     *zap.Logger

	mu        sync.Mutex
	isRunning bool
	cancel    context.CancelFunc
	done      chan struct{}
	stats     ReconcilerStats
}

// NewBillingReconciler creates a billing reconciler. onRun may be nil.
func NewBillingReconciler(config ReconcilerConfig, reconciler Reconciler, onRun func(int, error), logger *zap.Logger) *BillingReconciler {
	def := DefaultReconcilerConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.RunTimeout <= 0 {
		config.RunTimeout = def.RunTimeout
	}
	return &BillingReconciler{
		config:     config,
		reconciler: reconciler,
		onRun:      onRun,
		logger:     logger,
	}
}

// Name returns the worker name for identification
func (w *BillingReconciler) Name() string {
	return "BillingReconciler"
}

// Start begins the polling loop
func (w *BillingReconciler) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.isRunning {
		return fmt.Errorf("billing reconciler already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.isRunning = true

	w.logger.Info("BillingReconciler started",
		zap.Duration("poll_interval", w.config.PollInterval),
		zap.Int("batch_size", w.config.BatchSize))

	go w.pollLoop(loopCtx, w.done)
	return nil
}

// Stop cancels the loop and waits for an in-flight run to finish
func (w *BillingReconciler) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = false
	w.cancel()
	done := w.done
	w.mu.Unlock()

	<-done

	stats := w.Stats()
	w.logger.Info("BillingReconciler stopped",
		zap.Int("runs", stats.Runs),
		zap.Int("reconciled", stats.Reconciled))
	return nil
}

func (w *BillingReconciler) pollLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = w.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single reconciliation pass
func (w *BillingReconciler) RunOnce(ctx context.Context) (int, error) {
	runCtx, cancel := context.WithTimeout(ctx, w.config.RunTimeout)
	defer cancel()

	n, err := w.reconciler.ReconcilePending(runCtx, w.config.BatchSize)

	w.mu.Lock()
	w.stats.Runs++
	w.stats.Reconciled += n
	w.stats.LastRun = time.Now()
	w.stats.LastError = err
	w.mu.Unlock()

	if err != nil {
		w.logger.Error("Billing reconciliation failed", zap.Error(err))
	} else if n > 0 {
		w.logger.Info("Billing reconciled", zap.Int("count", n))
	}
	if w.onRun != nil {
		w.onRun(n, err)
	}
	return n, err
}

// Stats returns a snapshot of reconciler progress
func (w *BillingReconciler) Stats() ReconcilerStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}
