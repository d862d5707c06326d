package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"event-billing/internal/domain/model"
	"event-billing/internal/domain/ports/adapter"
	"event-billing/internal/infra/logging"
	"event-billing/internal/infra/metrics"
)

// StateCounter reports how many subscriptions are in each derived state.
type StateCounter interface {
	CountByState(ctx context.Context) (map[model.SubscriptionState]int, error)
}

// StatsWorker periodically refreshes gauges that are too expensive to keep
// current on every request. Expiry is derived on read, so this worker never
// writes subscription rows.
type StatsWorker struct {
	interval time.Duration
	subs     StateCounter
	queue    adapter.RetryQueue
	extra    []func()
	log      *zerolog.Logger
}

func NewStatsWorker(interval time.Duration, subs StateCounter, queue adapter.RetryQueue, logger *zerolog.Logger) *StatsWorker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &StatsWorker{
		interval: interval,
		subs:     subs,
		queue:    queue,
		log:      logging.Component(logger, "StatsWorker"),
	}
}

// Also adds a collector that runs on every tick, e.g. pool stats.
func (w *StatsWorker) Also(fn func()) *StatsWorker {
	w.extra = append(w.extra, fn)
	return w
}

func (w *StatsWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting stats worker")
	w.collect(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping stats worker")
			return ctx.Err()
		case <-ticker.C:
			w.collect(ctx)
		}
	}
}

func (w *StatsWorker) collect(ctx context.Context) {
	if w.subs != nil {
		counts, err := w.subs.CountByState(ctx)
		if err != nil {
			w.log.Error().Err(err).Msg("count subscriptions by state failed")
		} else {
			metrics.SetSubscriptionsTotal(counts)
			w.log.Debug().Interface("counts", counts).Msg("subscription gauges refreshed")
		}
	}
	if w.queue != nil {
		if n, err := w.queue.Len(ctx); err != nil {
			w.log.Warn().Err(err).Msg("retry queue length unavailable")
		} else {
			metrics.SetRetryQueueDepth(n)
		}
	}
	for _, fn := range w.extra {
		fn()
	}
}
