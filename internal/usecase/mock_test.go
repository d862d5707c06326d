//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"io"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"event-billing/internal/domain"
	"event-billing/internal/domain/model"
	"event-billing/internal/domain/ports/adapter"
	"event-billing/internal/domain/ports/repository"
	ucport "event-billing/internal/domain/ports/usecase"
)

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// =============================
// Repositories
// =============================

// memSubscriptionRepo is an in-memory store with the same conditional-update
// semantics as the Postgres one.
type memSubscriptionRepo struct {
	mu    sync.Mutex
	byID  map[string]*model.Subscription
	byRef map[string]string

	// AfterFind runs after FindByID returns, outside the lock.
	AfterFind func(id string)
	// CreateErr forces CreateOrGet to fail.
	CreateErr error
}

var _ repository.SubscriptionRepository = (*memSubscriptionRepo)(nil)

func newMemSubscriptionRepo() *memSubscriptionRepo {
	return &memSubscriptionRepo{byID: map[string]*model.Subscription{}, byRef: map[string]string{}}
}

func (r *memSubscriptionRepo) put(s *model.Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.byID[s.ID] = &cp
	r.byRef[s.MerchantReference] = s.ID
}

func (r *memSubscriptionRepo) get(id string) *model.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return nil
	}
	cp := *s
	return &cp
}

func (r *memSubscriptionRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

func (r *memSubscriptionRepo) CreateOrGet(ctx context.Context, tx repository.Tx, s *model.Subscription) (*model.Subscription, bool, error) {
	if r.CreateErr != nil {
		return nil, false, r.CreateErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byRef[s.MerchantReference]; ok {
		cp := *r.byID[id]
		return &cp, false, nil
	}
	cp := *s
	r.byID[s.ID] = &cp
	r.byRef[s.MerchantReference] = s.ID
	out := cp
	return &out, true, nil
}

func (r *memSubscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	s := r.get(id)
	if r.AfterFind != nil {
		r.AfterFind(id)
	}
	if s == nil {
		return nil, domain.ErrNotFound
	}
	return s, nil
}

func (r *memSubscriptionRepo) FindByMerchantReference(ctx context.Context, tx repository.Tx, ref string) (*model.Subscription, error) {
	r.mu.Lock()
	id, ok := r.byRef[ref]
	r.mu.Unlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r.get(id), nil
}

func (r *memSubscriptionRepo) FindLatestByUser(ctx context.Context, tx repository.Tx, userID string) (*model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []*model.Subscription
	for _, s := range r.byID {
		if s.UserID == userID {
			all = append(all, s)
		}
	}
	if len(all) == 0 {
		return nil, domain.ErrNotFound
	}
	sort.Slice(all, func(i, j int) bool { return all[i].StartDate.After(all[j].StartDate) })
	cp := *all[0]
	return &cp, nil
}

func (r *memSubscriptionRepo) Transition(ctx context.Context, tx repository.Tx, t model.StatusTransition) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[t.ID]
	if !ok || s.UserID != t.UserID || s.Status != t.From {
		return false, nil
	}
	if t.ValidAt != nil && s.EndDate.Before(*t.ValidAt) {
		return false, nil
	}
	s.Status = t.To
	s.UpdatedAt = t.At
	return true, nil
}

func (r *memSubscriptionRepo) CountByState(ctx context.Context, tx repository.Tx, now time.Time) (map[model.SubscriptionState]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[model.SubscriptionState]int{}
	for _, s := range r.byID {
		out[s.State(now)]++
	}
	return out, nil
}

// =============================
// Adapters
// =============================

// fakeGateway captures the handlers registered per reference.
type fakeGateway struct {
	mu        sync.Mutex
	handlers  map[string]adapter.OutcomeHandlers
	requests  map[string]*model.PaymentRequest
	opened    []string
	released  []string
	ConfigErr error
	OpenErr   error
}

var (
	_ adapter.CheckoutGateway  = (*fakeGateway)(nil)
	_ adapter.CheckoutOpener   = (*fakeGateway)(nil)
	_ adapter.CheckoutReleaser = (*fakeGateway)(nil)
)

func newFakeGateway() *fakeGateway {
	return &fakeGateway{handlers: map[string]adapter.OutcomeHandlers{}, requests: map[string]*model.PaymentRequest{}}
}

func (g *fakeGateway) Name() string { return "fake" }

func (g *fakeGateway) Configure(ctx context.Context, req *model.PaymentRequest, h adapter.OutcomeHandlers) error {
	if g.ConfigErr != nil {
		return g.ConfigErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handlers[req.MerchantReference] = h
	g.requests[req.MerchantReference] = req
	return nil
}

func (g *fakeGateway) Open(ctx context.Context, ref string) error {
	if g.OpenErr != nil {
		return g.OpenErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.opened = append(g.opened, ref)
	return nil
}

func (g *fakeGateway) Release(ref string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.released = append(g.released, ref)
}

func (g *fakeGateway) h(ref string) adapter.OutcomeHandlers {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.handlers[ref]
}

// configureOnlyGateway has no open entry point.
type configureOnlyGateway struct{}

func (configureOnlyGateway) Name() string { return "configure-only" }
func (configureOnlyGateway) Configure(ctx context.Context, req *model.PaymentRequest, h adapter.OutcomeHandlers) error {
	return nil
}

// seqIssuer hands out REF-1, REF-2, ...
type seqIssuer struct {
	mu  sync.Mutex
	n   int
	Err error
}

func (s *seqIssuer) Issue(ctx context.Context) (string, error) {
	if s.Err != nil {
		return "", s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return "REF-" + strconv.Itoa(s.n), nil
}

// recordingManager records creates and can be told to fail.
type recordingManager struct {
	mu      sync.Mutex
	calls   []ucport.CreateSubscriptionInput
	created chan ucport.CreateSubscriptionInput
	Err     error
	Block   chan struct{}
}

func newRecordingManager() *recordingManager {
	return &recordingManager{created: make(chan ucport.CreateSubscriptionInput, 16)}
}

func (m *recordingManager) Create(ctx context.Context, in ucport.CreateSubscriptionInput) (*model.Subscription, error) {
	if m.Block != nil {
		<-m.Block
	}
	m.mu.Lock()
	m.calls = append(m.calls, in)
	m.mu.Unlock()
	m.created <- in
	if m.Err != nil {
		return nil, m.Err
	}
	return &model.Subscription{ID: "sub-" + in.MerchantReference, MerchantReference: in.MerchantReference}, nil
}

func (m *recordingManager) GetActive(ctx context.Context, userID string) (*model.Subscription, error) {
	return nil, domain.ErrNoActiveSubscription
}

// memRetryQueue is a slice-backed retry queue.
type memRetryQueue struct {
	mu      sync.Mutex
	items   []adapter.PendingCreate
	PushErr error
	pushed  chan adapter.PendingCreate
}

var _ adapter.RetryQueue = (*memRetryQueue)(nil)

func newMemRetryQueue() *memRetryQueue {
	return &memRetryQueue{pushed: make(chan adapter.PendingCreate, 16)}
}

func (q *memRetryQueue) Push(ctx context.Context, p adapter.PendingCreate) error {
	if q.PushErr != nil {
		return q.PushErr
	}
	q.mu.Lock()
	q.items = append(q.items, p)
	q.mu.Unlock()
	q.pushed <- p
	return nil
}

func (q *memRetryQueue) Pop(ctx context.Context) (*adapter.PendingCreate, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, nil
	}
	p := q.items[0]
	q.items = q.items[1:]
	return &p, nil
}

func (q *memRetryQueue) Len(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.items)), nil
}

// fakeAlerter records alert texts.
type fakeAlerter struct {
	mu    sync.Mutex
	texts []string
}

func (a *fakeAlerter) Alert(ctx context.Context, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.texts = append(a.texts, text)
	return nil
}

func (a *fakeAlerter) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.texts)
}

// limiterFunc adapts a function to usecase.Limiter.
type limiterFunc func(ctx context.Context, key string, limit int, window time.Duration) (bool, error)

func (f limiterFunc) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return f(ctx, key, limit, window)
}

var errBoom = errors.New("boom")
