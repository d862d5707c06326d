package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"event-billing/internal/domain"
	"event-billing/internal/domain/model"
	"event-billing/internal/domain/ports/adapter"
	ucport "event-billing/internal/domain/ports/usecase"
	"event-billing/internal/infra/logging"
	"event-billing/internal/infra/metrics"
	"event-billing/internal/infra/security"
	"event-billing/internal/infra/worker"
)

// Compile-time check
var _ CheckoutUseCase = (*checkoutUC)(nil)

type CheckoutUseCase interface {
	// Start picks a plan from the catalogue and configures a checkout for it.
	Start(ctx context.Context, userID, planName, sessionToken string) (*CheckoutSession, error)
	// Configure signs a fresh request and registers the outcome handlers.
	Configure(ctx context.Context, order model.CheckoutOrder) (*CheckoutSession, error)
	// Open launches a configured checkout.
	Open(ctx context.Context, userID, ref string) error
	// Session returns the caller's session for ref.
	Session(userID, ref string) (*CheckoutSession, error)
	// Wait blocks until the outcome is latched or ctx ends.
	Wait(ctx context.Context, userID, ref string) (*CheckoutSession, error)
}

// TaskRunner runs detached work.
type TaskRunner interface {
	Submit(task worker.Task) error
}

// Limiter is a per-key fixed window limiter.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// CheckoutSettings are the gateway and checkout knobs the use case needs.
type CheckoutSettings struct {
	MerchantID       string
	TerminalID       string
	CurrencyID       int
	LanguageID       string
	ViewType         model.PaymentViewType
	ContactInfoType  int
	CancelGrace      time.Duration
	SessionRetention time.Duration
	AbandonAfter     time.Duration
	PersistTimeout   time.Duration
	RateLimit        int
	RateWindow       time.Duration
}

// CheckoutDeps groups collaborators. Gateway may be nil when no checkout
// capability is wired; Limiter, Alerter and Retry are optional.
type CheckoutDeps struct {
	Gateway       adapter.CheckoutGateway
	Signer        adapter.RequestSigner
	References    adapter.ReferenceIssuer
	Plans         *PlanCatalogue
	Subscriptions ucport.SubscriptionManager
	Runner        TaskRunner
	Retry         adapter.RetryQueue
	Alerter       adapter.Alerter
	Limiter       Limiter
}

type checkoutUC struct {
	deps CheckoutDeps
	cfg  CheckoutSettings
	log  *zerolog.Logger
	now  func() time.Time

	mu       sync.RWMutex
	sessions map[string]*CheckoutSession
}

func NewCheckoutUseCase(deps CheckoutDeps, cfg CheckoutSettings, logger *zerolog.Logger) *checkoutUC {
	if cfg.CancelGrace <= 0 {
		cfg.CancelGrace = 500 * time.Millisecond
	}
	if cfg.SessionRetention <= 0 {
		cfg.SessionRetention = 10 * time.Minute
	}
	if cfg.AbandonAfter <= 0 {
		cfg.AbandonAfter = time.Hour
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 10 * time.Second
	}
	return &checkoutUC{
		deps:     deps,
		cfg:      cfg,
		log:      logging.Component(logger, "CheckoutUC"),
		now:      time.Now,
		sessions: make(map[string]*CheckoutSession),
	}
}

func (u *checkoutUC) Start(ctx context.Context, userID, planName, sessionToken string) (*CheckoutSession, error) {
	if u.deps.Limiter != nil && u.cfg.RateLimit > 0 {
		ok, err := u.deps.Limiter.Allow(ctx, checkoutStartKey(userID), u.cfg.RateLimit, u.cfg.RateWindow)
		if err != nil {
			// Fail open: a limiter outage must not block payments.
			logging.With(ctx, u.log).Warn().Err(err).Msg("rate limiter unavailable")
		} else if !ok {
			return nil, domain.ErrRateLimited
		}
	}
	plan, err := u.deps.Plans.Find(planName)
	if err != nil {
		return nil, err
	}
	return u.Configure(ctx, model.OrderForPlan(userID, plan, sessionToken))
}

func checkoutStartKey(userID string) string { return "rate_limit:checkout:" + userID }

func (u *checkoutUC) Configure(ctx context.Context, order model.CheckoutOrder) (*CheckoutSession, error) {
	defer logging.TraceDuration(u.log, "CheckoutUC.Configure")()

	if u.deps.Gateway == nil {
		metrics.IncCheckoutSession("failed")
		return nil, domain.ErrGatewayUnavailable
	}
	if order.UserID == "" {
		return nil, domain.ErrInvalidArgument
	}

	// Formatting errors fail before a reference is spent or a session exists.
	amount, err := security.FormatAmount(order.Amount)
	if err != nil {
		return nil, err
	}
	items := make([]model.OrderItem, 0, len(order.Items))
	for _, line := range order.Items {
		price, err := security.FormatPrice(order.Currency, line.Price)
		if err != nil {
			return nil, err
		}
		items = append(items, model.OrderItem{
			Name:           line.Name,
			DescriptionOne: line.DescriptionOne,
			DescriptionTwo: line.DescriptionTwo,
			Price:          price,
		})
	}

	ref, err := u.deps.References.Issue(ctx)
	if err != nil {
		return nil, err
	}
	ctx = logging.WithMerchantRef(ctx, ref)

	now := u.now()
	req := &model.PaymentRequest{
		Amount:            amount,
		CurrencyID:        u.cfg.CurrencyID,
		MerchantID:        u.cfg.MerchantID,
		TerminalID:        u.cfg.TerminalID,
		MerchantReference: ref,
		LanguageID:        u.cfg.LanguageID,
		PaymentViewType:   u.cfg.ViewType,
		TrxDateTime:       now.Format(model.TrxDateTimeLayout),
		SessionToken:      order.SessionToken,
		ContactInfoType:   u.cfg.ContactInfoType,
		OrderItems:        items,
	}
	req.SecureHash = u.deps.Signer.SignRequest(req)

	sess := newCheckoutSession(ref, order, req, u.cfg.CancelGrace, now, u.onResolve)
	sess.advance(SessionIdle, SessionConfiguring)

	// Registered before the gateway sees the handlers so an immediate
	// callback always finds its session.
	u.mu.Lock()
	u.sessions[ref] = sess
	u.mu.Unlock()

	if err := u.deps.Gateway.Configure(ctx, req, sess.handlers()); err != nil {
		u.forget(ref)
		metrics.IncCheckoutSession("failed")
		logging.With(ctx, u.log).Error().Err(err).Str("gateway", u.deps.Gateway.Name()).Msg("gateway configure failed")
		return nil, fmt.Errorf("%w: %w", domain.ErrGatewayUnavailable, err)
	}
	sess.advance(SessionConfiguring, SessionAwaitingOpen)

	metrics.IncCheckoutSession("configured")
	logging.With(ctx, u.log).Info().
		Str("user_id", order.UserID).
		Str("plan", order.PlanName).
		Str("amount", amount).
		Msg("checkout configured")
	return sess, nil
}

func (u *checkoutUC) Open(ctx context.Context, userID, ref string) error {
	sess, err := u.Session(userID, ref)
	if err != nil {
		return err
	}
	opener, ok := u.deps.Gateway.(adapter.CheckoutOpener)
	if !ok {
		return domain.ErrGatewayMisconfigured
	}
	if !sess.advance(SessionAwaitingOpen, SessionCheckoutOpen) {
		return fmt.Errorf("%w: %s", domain.ErrSessionState, sess.State())
	}
	if err := opener.Open(ctx, ref); err != nil {
		// Back to awaiting so the caller may retry the same attempt.
		sess.advance(SessionCheckoutOpen, SessionAwaitingOpen)
		metrics.IncCheckoutSession("failed")
		return fmt.Errorf("%w: %w", domain.ErrGatewayUnavailable, err)
	}
	metrics.IncCheckoutSession("opened")
	return nil
}

func (u *checkoutUC) Session(userID, ref string) (*CheckoutSession, error) {
	u.mu.RLock()
	sess, ok := u.sessions[ref]
	u.mu.RUnlock()
	if !ok || sess.UserID() != userID {
		return nil, domain.ErrNotFound
	}
	return sess, nil
}

func (u *checkoutUC) Wait(ctx context.Context, userID, ref string) (*CheckoutSession, error) {
	sess, err := u.Session(userID, ref)
	if err != nil {
		return nil, err
	}
	select {
	case <-sess.Done():
		return sess, nil
	case <-ctx.Done():
		return sess, ctx.Err()
	}
}

// onResolve runs once per session on whichever goroutine latched the outcome.
func (u *checkoutUC) onResolve(sess *CheckoutSession, o *model.Outcome) {
	ctx := logging.WithMerchantRef(logging.WithUserID(context.Background(), sess.UserID()), sess.MerchantReference())
	elapsed := u.now().Sub(sess.createdAt)

	metrics.IncCheckoutOutcome(string(o.Kind))
	metrics.ObserveCheckoutResolve(string(o.Kind), elapsed.Seconds())

	ev := logging.With(ctx, u.log).Info().Str("outcome", string(o.Kind)).Dur("elapsed", elapsed)
	if o.Kind == model.OutcomeError && o.Failure != nil {
		ev = ev.Str("reason", o.Failure.Reason)
	}
	ev.Msg("checkout resolved")

	if o.Kind == model.OutcomeSuccess {
		revenue, _ := sess.order.Amount.Float64()
		metrics.AddPaymentRevenue(sess.order.Currency, revenue)
		u.persist(ctx, sess, o.Success)
	}

	ref := sess.MerchantReference()
	time.AfterFunc(u.cfg.SessionRetention, func() { u.evict(ref) })
}

// persist records the subscription off the success path. The payment is
// already captured, so failures only log, alert and queue a retry.
func (u *checkoutUC) persist(ctx context.Context, sess *CheckoutSession, p *model.PaymentSuccess) {
	order := sess.Order()
	in := ucport.CreateSubscriptionInput{
		UserID:             order.UserID,
		PlanName:           order.PlanName,
		PlanAmount:         order.Amount,
		Currency:           order.Currency,
		PaymentID:          p.PaymentID,
		MerchantReference:  sess.MerchantReference(),
		TransactionID:      p.TransactionID,
		RetrievalReference: p.RetrievalReference,
	}

	task := func(tctx context.Context) error {
		tctx, cancel := context.WithTimeout(tctx, u.cfg.PersistTimeout)
		defer cancel()
		tctx = logging.WithMerchantRef(logging.WithUserID(tctx, in.UserID), in.MerchantReference)
		if _, err := u.deps.Subscriptions.Create(tctx, in); err != nil {
			u.persistFailed(tctx, in, "detached", err)
			return err
		}
		return nil
	}
	if u.deps.Runner == nil {
		go func() { _ = task(context.Background()) }()
		return
	}
	if err := u.deps.Runner.Submit(task); err != nil {
		u.persistFailed(ctx, in, "enqueue", err)
	}
}

func (u *checkoutUC) persistFailed(ctx context.Context, in ucport.CreateSubscriptionInput, stage string, cause error) {
	metrics.IncPersistenceFailure(stage)
	logging.With(ctx, u.log).Error().
		Err(cause).
		Str("stage", stage).
		Str("payment_id", in.PaymentID).
		Msg(domain.ErrPersistenceFailed.Error())

	// A background context: the caller's may already be done.
	bg := context.WithoutCancel(ctx)

	if errors.Is(cause, domain.ErrInvalidArgument) || errors.Is(cause, domain.ErrAmountInvalid) || errors.Is(cause, domain.ErrAlreadyExists) {
		u.alert(bg, fmt.Sprintf("subscription for %s cannot be recorded and needs manual review: %v", in.MerchantReference, cause))
		return
	}

	u.alert(bg, fmt.Sprintf("subscription for %s not recorded (%s): %v; queued for retry", in.MerchantReference, stage, cause))
	if u.deps.Retry == nil {
		return
	}
	pending := adapter.PendingCreate{
		UserID:             in.UserID,
		PlanName:           in.PlanName,
		PlanAmount:         in.PlanAmount,
		Currency:           in.Currency,
		PaymentID:          in.PaymentID,
		MerchantReference:  in.MerchantReference,
		TransactionID:      in.TransactionID,
		RetrievalReference: in.RetrievalReference,
		Attempts:           1,
		FirstFailedAt:      u.now().UTC(),
		LastError:          cause.Error(),
	}
	if err := u.deps.Retry.Push(bg, pending); err != nil {
		metrics.IncPersistenceFailure("retry_queue")
		logging.With(ctx, u.log).Error().Err(err).Msg("retry queue push failed")
		u.alert(bg, fmt.Sprintf("subscription for %s could not be queued for retry: %v", in.MerchantReference, err))
	}
}

func (u *checkoutUC) alert(ctx context.Context, text string) {
	if u.deps.Alerter == nil {
		return
	}
	if err := u.deps.Alerter.Alert(ctx, text); err != nil {
		u.log.Warn().Err(err).Msg("alert delivery failed")
	}
}

func (u *checkoutUC) evict(ref string) {
	if u.forget(ref) {
		if r, ok := u.deps.Gateway.(adapter.CheckoutReleaser); ok {
			r.Release(ref)
		}
	}
}

func (u *checkoutUC) forget(ref string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.sessions[ref]; !ok {
		return false
	}
	delete(u.sessions, ref)
	return true
}

// Sweep drops sessions that never resolved within AbandonAfter and resolved
// sessions past their retention. It returns how many were dropped.
func (u *checkoutUC) Sweep(now time.Time) int {
	var stale []string
	u.mu.RLock()
	for ref, s := range u.sessions {
		if at, ok := s.resolvedSince(); ok {
			if now.Sub(at) >= u.cfg.SessionRetention {
				stale = append(stale, ref)
			}
			continue
		}
		if now.Sub(s.createdAt) >= u.cfg.AbandonAfter {
			stale = append(stale, ref)
		}
	}
	u.mu.RUnlock()

	for _, ref := range stale {
		u.evict(ref)
	}
	return len(stale)
}

// RunJanitor calls Sweep every interval until ctx ends.
func (u *checkoutUC) RunJanitor(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := u.Sweep(u.now()); n > 0 {
				u.log.Debug().Int("count", n).Msg("checkout sessions evicted")
			}
		}
	}
}
