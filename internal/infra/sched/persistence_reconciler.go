package sched

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"event-billing/internal/domain"
	"event-billing/internal/domain/ports/adapter"
	ucport "event-billing/internal/domain/ports/usecase"
	"event-billing/internal/infra/logging"
	"event-billing/internal/infra/metrics"
)

const reconcilerLockKey = "lock:persistence_reconciler"

// Locker keeps concurrent instances from draining the queue at the same time.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, error)
	Unlock(ctx context.Context, key, token string) error
}

// PersistenceReconciler drains subscription creates that failed after the
// payment was captured. Create is idempotent on the merchant reference, so a
// retry of a create that did land is harmless.
type PersistenceReconciler struct {
	queue    adapter.RetryQueue
	subs     ucport.SubscriptionManager
	alerter  adapter.Alerter
	locker   Locker
	interval time.Duration
	maxTries int
	log      *zerolog.Logger
}

func NewPersistenceReconciler(queue adapter.RetryQueue, subs ucport.SubscriptionManager, alerter adapter.Alerter, interval time.Duration, maxTries int, logger *zerolog.Logger) *PersistenceReconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if maxTries <= 0 {
		maxTries = 20
	}
	return &PersistenceReconciler{
		queue:    queue,
		subs:     subs,
		alerter:  alerter,
		interval: interval,
		maxTries: maxTries,
		log:      logging.Component(logger, "PersistenceReconciler"),
	}
}

// WithLocker enables the cross-instance lock.
func (w *PersistenceReconciler) WithLocker(l Locker) *PersistenceReconciler {
	w.locker = l
	return w
}

func (w *PersistenceReconciler) Start(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.tick(ctx)
		}
	}
}

// TickResult counts what one pass did.
type TickResult struct {
	Recorded  int
	Requeued  int
	Exhausted int
}

func (w *PersistenceReconciler) tick(ctx context.Context) TickResult {
	var res TickResult
	if w.locker != nil {
		token, err := w.locker.TryLock(ctx, reconcilerLockKey, w.interval)
		if err != nil {
			if !errors.Is(err, domain.ErrAlreadyExists) {
				w.log.Warn().Err(err).Msg("reconciler lock unavailable")
			}
			return res
		}
		defer func() {
			if err := w.locker.Unlock(context.WithoutCancel(ctx), reconcilerLockKey, token); err != nil {
				w.log.Warn().Err(err).Msg("reconciler unlock failed")
			}
		}()
	}

	// Only what was queued at the start: failures go back to the tail and
	// must wait for the next tick.
	n, err := w.queue.Len(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("retry queue length failed")
		return res
	}
	for i := int64(0); i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		p, err := w.queue.Pop(ctx)
		if err != nil {
			w.log.Error().Err(err).Msg("retry queue pop failed")
			break
		}
		if p == nil {
			break
		}
		switch w.retry(ctx, p) {
		case retryRecorded:
			res.Recorded++
		case retryRequeued:
			res.Requeued++
		case retryExhausted:
			res.Exhausted++
		}
	}

	if depth, err := w.queue.Len(ctx); err == nil {
		metrics.SetRetryQueueDepth(depth)
	}
	if res != (TickResult{}) {
		w.log.Info().
			Int("recorded", res.Recorded).
			Int("requeued", res.Requeued).
			Int("exhausted", res.Exhausted).
			Msg("persistence reconcile pass")
	}
	return res
}

type retryResult int

const (
	retryRecorded retryResult = iota
	retryRequeued
	retryExhausted
)

func (w *PersistenceReconciler) retry(ctx context.Context, p *adapter.PendingCreate) retryResult {
	ctx = logging.WithMerchantRef(logging.WithUserID(ctx, p.UserID), p.MerchantReference)
	_, err := w.subs.Create(ctx, ucport.CreateSubscriptionInput{
		UserID:             p.UserID,
		PlanName:           p.PlanName,
		PlanAmount:         p.PlanAmount,
		Currency:           p.Currency,
		PaymentID:          p.PaymentID,
		MerchantReference:  p.MerchantReference,
		TransactionID:      p.TransactionID,
		RetrievalReference: p.RetrievalReference,
	})
	if err == nil {
		logging.With(ctx, w.log).Info().Int("attempts", p.Attempts).Msg("queued subscription recorded")
		return retryRecorded
	}

	p.Attempts++
	p.LastError = err.Error()
	if permanent(err) || p.Attempts >= w.maxTries {
		metrics.IncPersistenceFailure("exhausted")
		logging.With(ctx, w.log).Error().Err(err).Int("attempts", p.Attempts).Msg("giving up on queued subscription")
		w.alert(ctx, fmt.Sprintf("subscription for %s dropped from retry after %d attempts (first failure %s): %v",
			p.MerchantReference, p.Attempts, p.FirstFailedAt.Format(time.RFC3339), err))
		return retryExhausted
	}

	if perr := w.queue.Push(ctx, *p); perr != nil {
		metrics.IncPersistenceFailure("retry_queue")
		logging.With(ctx, w.log).Error().Err(perr).Msg("requeue failed")
		w.alert(ctx, fmt.Sprintf("subscription for %s lost from retry queue: %v", p.MerchantReference, perr))
		return retryExhausted
	}
	logging.With(ctx, w.log).Warn().Err(err).Int("attempts", p.Attempts).Msg("queued subscription still failing")
	return retryRequeued
}

// permanent errors will fail the same way on every retry.
func permanent(err error) bool {
	return errors.Is(err, domain.ErrInvalidArgument) ||
		errors.Is(err, domain.ErrAmountInvalid) ||
		errors.Is(err, domain.ErrAlreadyExists)
}

func (w *PersistenceReconciler) alert(ctx context.Context, text string) {
	if w.alerter == nil {
		return
	}
	if err := w.alerter.Alert(ctx, text); err != nil {
		w.log.Warn().Err(err).Msg("alert delivery failed")
	}
}
