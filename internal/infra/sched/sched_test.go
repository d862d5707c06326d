//go:build !integration

package sched

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"event-billing/internal/domain"
	"event-billing/internal/domain/model"
	"event-billing/internal/domain/ports/adapter"
	ucport "event-billing/internal/domain/ports/usecase"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

type sliceQueue struct {
	mu    sync.Mutex
	items []adapter.PendingCreate
}

func (q *sliceQueue) Push(ctx context.Context, p adapter.PendingCreate) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, p)
	return nil
}

func (q *sliceQueue) Pop(ctx context.Context) (*adapter.PendingCreate, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, nil
	}
	p := q.items[0]
	q.items = q.items[1:]
	return &p, nil
}

func (q *sliceQueue) Len(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.items)), nil
}

// scriptedManager fails Create for references listed in failWith.
type scriptedManager struct {
	failWith map[string]error
	created  []string
}

func (m *scriptedManager) Create(ctx context.Context, in ucport.CreateSubscriptionInput) (*model.Subscription, error) {
	if err := m.failWith[in.MerchantReference]; err != nil {
		return nil, err
	}
	m.created = append(m.created, in.MerchantReference)
	return &model.Subscription{MerchantReference: in.MerchantReference}, nil
}

func (m *scriptedManager) GetActive(ctx context.Context, userID string) (*model.Subscription, error) {
	return nil, domain.ErrNoActiveSubscription
}

type countingAlerter struct{ texts []string }

func (a *countingAlerter) Alert(ctx context.Context, text string) error {
	a.texts = append(a.texts, text)
	return nil
}

type stubLocker struct {
	held     bool
	unlocked int
}

func (l *stubLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if l.held {
		return "", domain.ErrAlreadyExists
	}
	return "tok", nil
}

func (l *stubLocker) Unlock(ctx context.Context, key, token string) error {
	l.unlocked++
	return nil
}

func pending(ref string, attempts int) adapter.PendingCreate {
	return adapter.PendingCreate{
		UserID:            "user-1",
		PlanName:          "monthly",
		PlanAmount:        decimal.RequireFromString("49.5"),
		Currency:          "AED",
		PaymentID:         "P-" + ref,
		MerchantReference: ref,
		Attempts:          attempts,
		FirstFailedAt:     time.Now().Add(-time.Hour),
	}
}

func TestPersistenceReconciler_Tick(t *testing.T) {
	ctx := context.Background()
	q := &sliceQueue{}
	require.NoError(t, q.Push(ctx, pending("ok", 1)))
	require.NoError(t, q.Push(ctx, pending("flaky", 1)))
	require.NoError(t, q.Push(ctx, pending("worn-out", 2)))
	require.NoError(t, q.Push(ctx, pending("bad", 1)))

	subs := &scriptedManager{failWith: map[string]error{
		"flaky":    errors.New("connection reset"),
		"worn-out": errors.New("connection reset"),
		"bad":      domain.ErrAlreadyExists,
	}}
	alerter := &countingAlerter{}
	w := NewPersistenceReconciler(q, subs, alerter, time.Minute, 3, newTestLogger())

	res := w.tick(ctx)
	assert.Equal(t, TickResult{Recorded: 1, Requeued: 1, Exhausted: 2}, res)
	assert.Equal(t, []string{"ok"}, subs.created)
	assert.Len(t, alerter.texts, 2)

	require.Len(t, q.items, 1)
	assert.Equal(t, "flaky", q.items[0].MerchantReference)
	assert.Equal(t, 2, q.items[0].Attempts)
	assert.Equal(t, "connection reset", q.items[0].LastError)

	// The requeued item is picked up on the next pass.
	delete(subs.failWith, "flaky")
	res = w.tick(ctx)
	assert.Equal(t, TickResult{Recorded: 1}, res)
	assert.Empty(t, q.items)
}

func TestPersistenceReconciler_Lock(t *testing.T) {
	ctx := context.Background()
	q := &sliceQueue{}
	require.NoError(t, q.Push(ctx, pending("ok", 1)))
	subs := &scriptedManager{}
	locker := &stubLocker{held: true}
	w := NewPersistenceReconciler(q, subs, nil, time.Minute, 3, newTestLogger()).WithLocker(locker)

	assert.Equal(t, TickResult{}, w.tick(ctx))
	assert.Empty(t, subs.created)

	locker.held = false
	assert.Equal(t, TickResult{Recorded: 1}, w.tick(ctx))
	assert.Equal(t, 1, locker.unlocked)
}

type fixedCounter struct {
	calls int
	err   error
}

func (c *fixedCounter) CountByState(ctx context.Context) (map[model.SubscriptionState]int, error) {
	c.calls++
	return map[model.SubscriptionState]int{model.SubscriptionStateActive: 3}, c.err
}

func TestStatsWorker_Collect(t *testing.T) {
	counter := &fixedCounter{}
	var extra int
	w := NewStatsWorker(time.Minute, counter, &sliceQueue{}, newTestLogger()).Also(func() { extra++ })

	w.collect(context.Background())
	counter.err = errors.New("db down")
	w.collect(context.Background())

	assert.Equal(t, 2, counter.calls)
	assert.Equal(t, 2, extra)
}

func TestStatsWorker_RunStopsWithContext(t *testing.T) {
	counter := &fixedCounter{}
	w := NewStatsWorker(time.Hour, counter, nil, newTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}
