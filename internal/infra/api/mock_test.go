//go:build !integration

package api_test

import (
	"context"
	"io"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"event-billing/internal/domain"
	"event-billing/internal/domain/model"
	ucport "event-billing/internal/domain/ports/usecase"
	"event-billing/internal/usecase"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

// mockSubscriptionUC is a func-field mock; unset funcs return ErrNotFound.
type mockSubscriptionUC struct {
	CreateFn       func(ctx context.Context, in ucport.CreateSubscriptionInput) (*model.Subscription, error)
	GetActiveFn    func(ctx context.Context, userID string) (*model.Subscription, error)
	CancelFn       func(ctx context.Context, userID, id string) (*model.Subscription, error)
	ReactivateFn   func(ctx context.Context, userID, id string) (*model.Subscription, error)
	CountByStateFn func(ctx context.Context) (map[model.SubscriptionState]int, error)
}

var _ usecase.SubscriptionUseCase = (*mockSubscriptionUC)(nil)

func (m *mockSubscriptionUC) Create(ctx context.Context, in ucport.CreateSubscriptionInput) (*model.Subscription, error) {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, in)
	}
	return nil, domain.ErrNotFound
}

func (m *mockSubscriptionUC) GetActive(ctx context.Context, userID string) (*model.Subscription, error) {
	if m.GetActiveFn != nil {
		return m.GetActiveFn(ctx, userID)
	}
	return nil, domain.ErrNoActiveSubscription
}

func (m *mockSubscriptionUC) Cancel(ctx context.Context, userID, id string) (*model.Subscription, error) {
	if m.CancelFn != nil {
		return m.CancelFn(ctx, userID, id)
	}
	return nil, domain.ErrNotFound
}

func (m *mockSubscriptionUC) Reactivate(ctx context.Context, userID, id string) (*model.Subscription, error) {
	if m.ReactivateFn != nil {
		return m.ReactivateFn(ctx, userID, id)
	}
	return nil, domain.ErrNotFound
}

func (m *mockSubscriptionUC) CountByState(ctx context.Context) (map[model.SubscriptionState]int, error) {
	if m.CountByStateFn != nil {
		return m.CountByStateFn(ctx)
	}
	return map[model.SubscriptionState]int{}, nil
}

type counterIssuer struct {
	mu sync.Mutex
	n  int
}

func (c *counterIssuer) Issue(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return "REF-" + strconv.Itoa(c.n), nil
}
