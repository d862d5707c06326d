package usecase

import (
	"sync"
	"sync/atomic"
	"time"

	"event-billing/internal/domain/model"
	"event-billing/internal/domain/ports/adapter"
	"event-billing/internal/infra/metrics"
)

// SessionState is where a checkout attempt is in its lifecycle.
type SessionState int32

const (
	SessionIdle SessionState = iota
	SessionConfiguring
	SessionAwaitingOpen
	SessionCheckoutOpen
	SessionResolved
)

func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "idle"
	case SessionConfiguring:
		return "configuring"
	case SessionAwaitingOpen:
		return "awaiting_open"
	case SessionCheckoutOpen:
		return "checkout_open"
	case SessionResolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// CheckoutSession is one payment attempt. Its outcome is a single-assignment
// latch: the first compare-and-swap wins and every later callback is dropped.
type CheckoutSession struct {
	ref       string
	order     model.CheckoutOrder
	request   *model.PaymentRequest
	grace     time.Duration
	createdAt time.Time

	state   atomic.Int32
	outcome atomic.Pointer[model.Outcome]
	done    chan struct{}

	mu          sync.Mutex
	cancelTimer *time.Timer
	resolvedAt  time.Time

	onResolve func(*CheckoutSession, *model.Outcome)
}

func newCheckoutSession(ref string, order model.CheckoutOrder, req *model.PaymentRequest, grace time.Duration, now time.Time, onResolve func(*CheckoutSession, *model.Outcome)) *CheckoutSession {
	s := &CheckoutSession{
		ref:       ref,
		order:     order,
		request:   req,
		grace:     grace,
		createdAt: now,
		done:      make(chan struct{}),
		onResolve: onResolve,
	}
	s.state.Store(int32(SessionIdle))
	return s
}

func (s *CheckoutSession) MerchantReference() string { return s.ref }
func (s *CheckoutSession) UserID() string            { return s.order.UserID }
func (s *CheckoutSession) Order() model.CheckoutOrder { return s.order }
func (s *CheckoutSession) Request() *model.PaymentRequest {
	return s.request
}
func (s *CheckoutSession) State() SessionState    { return SessionState(s.state.Load()) }
func (s *CheckoutSession) Outcome() *model.Outcome { return s.outcome.Load() }

// Done is closed once the outcome is latched.
func (s *CheckoutSession) Done() <-chan struct{} { return s.done }

func (s *CheckoutSession) advance(from, to SessionState) bool {
	return s.state.CompareAndSwap(int32(from), int32(to))
}

// handlers are what the gateway gets. They may run on any goroutine.
func (s *CheckoutSession) handlers() adapter.OutcomeHandlers {
	return adapter.OutcomeHandlers{
		OnSuccess: func(raw map[string]any) { s.succeed(DecodeSuccess(raw)) },
		OnError:   func(raw map[string]any) { s.fail(DecodeFailure(raw)) },
		OnCancel:  s.cancel,
	}
}

func (s *CheckoutSession) succeed(p model.PaymentSuccess) {
	s.stopPendingCancel()
	if !s.resolve(model.SuccessOutcome(p)) {
		metrics.IncDiscardedCallback("success")
	}
}

func (s *CheckoutSession) fail(f model.PaymentFailure) {
	s.stopPendingCancel()
	if !s.resolve(model.FailureOutcome(f)) {
		metrics.IncDiscardedCallback("error")
	}
}

// cancel does not latch right away: a success that logically came first may
// still be in flight. It arms one grace timer; repeated cancels reuse it.
func (s *CheckoutSession) cancel() {
	if s.outcome.Load() != nil {
		metrics.IncDiscardedCallback("cancel")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelTimer != nil {
		return
	}
	// A success or error may have latched while waiting for the lock.
	if s.outcome.Load() != nil {
		metrics.IncDiscardedCallback("cancel")
		return
	}
	s.cancelTimer = time.AfterFunc(s.grace, func() {
		if !s.resolve(model.CancelledOutcome()) {
			metrics.IncDiscardedCallback("cancel")
		}
	})
}

func (s *CheckoutSession) stopPendingCancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelTimer != nil && s.cancelTimer.Stop() {
		metrics.IncCancelPreempted()
	}
}

// resolve latches o if nothing is latched yet. Only the winning call closes
// Done and notifies onResolve.
func (s *CheckoutSession) resolve(o *model.Outcome) bool {
	if !s.outcome.CompareAndSwap(nil, o) {
		return false
	}
	s.state.Store(int32(SessionResolved))
	s.mu.Lock()
	s.resolvedAt = time.Now()
	s.mu.Unlock()
	close(s.done)
	if s.onResolve != nil {
		s.onResolve(s, o)
	}
	return true
}

func (s *CheckoutSession) resolvedSince() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolvedAt, !s.resolvedAt.IsZero()
}

// CheckoutView is a read-only snapshot of a session.
type CheckoutView struct {
	MerchantReference string                `json:"merchantReference"`
	UserID            string                `json:"userId"`
	PlanName          string                `json:"plan"`
	State             string                `json:"state"`
	Request           *model.PaymentRequest `json:"request,omitempty"`
	Outcome           *model.Outcome        `json:"outcome,omitempty"`
	CreatedAt         time.Time             `json:"createdAt"`
}

func (s *CheckoutSession) View() CheckoutView {
	return CheckoutView{
		MerchantReference: s.ref,
		UserID:            s.order.UserID,
		PlanName:          s.order.PlanName,
		State:             s.State().String(),
		Request:           s.request,
		Outcome:           s.outcome.Load(),
		CreatedAt:         s.createdAt,
	}
}
