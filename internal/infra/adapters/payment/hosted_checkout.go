package payment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"event-billing/internal/domain"
	"event-billing/internal/domain/model"
	"event-billing/internal/domain/ports/adapter"
)

// Event names the widget relays back through the bridge.
const (
	EventSuccess = "success"
	EventError   = "error"
	EventCancel  = "cancel"
)

var (
	_ adapter.CheckoutGateway  = (*HostedCheckout)(nil)
	_ adapter.CheckoutOpener   = (*HostedCheckout)(nil)
	_ adapter.CheckoutReleaser = (*HostedCheckout)(nil)
)

type hostedAttempt struct {
	req          *model.PaymentRequest
	handlers     adapter.OutcomeHandlers
	configuredAt time.Time
	openedAt     time.Time
}

// HostedCheckout is the server side of the hosted checkout widget. The signed
// request is served to the browser; the widget callbacks come back over HTTP
// and are relayed to the handlers registered for that reference.
type HostedCheckout struct {
	log *zerolog.Logger

	mu       sync.Mutex
	attempts map[string]*hostedAttempt
}

func NewHostedCheckout(logger *zerolog.Logger) *HostedCheckout {
	l := logger.With().Str("component", "HostedCheckout").Logger()
	return &HostedCheckout{log: &l, attempts: make(map[string]*hostedAttempt)}
}

func (g *HostedCheckout) Name() string { return "hosted" }

func (g *HostedCheckout) Configure(ctx context.Context, req *model.PaymentRequest, h adapter.OutcomeHandlers) error {
	if req == nil || req.MerchantReference == "" || req.SecureHash == "" {
		return domain.ErrInvalidArgument
	}
	if h.OnSuccess == nil || h.OnError == nil || h.OnCancel == nil {
		return fmt.Errorf("%w: all three outcome handlers are required", domain.ErrInvalidArgument)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, dup := g.attempts[req.MerchantReference]; dup {
		return domain.ErrAlreadyExists
	}
	g.attempts[req.MerchantReference] = &hostedAttempt{req: req, handlers: h, configuredAt: time.Now()}
	return nil
}

// Open marks the attempt as launched. The browser renders the widget from
// the request returned by Request.
func (g *HostedCheckout) Open(ctx context.Context, ref string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	a, ok := g.attempts[ref]
	if !ok {
		return domain.ErrNotFound
	}
	a.openedAt = time.Now()
	return nil
}

// Request returns the signed request the widget is initialised with.
func (g *HostedCheckout) Request(ref string) (*model.PaymentRequest, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	a, ok := g.attempts[ref]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return a.req, nil
}

// Deliver relays one widget callback. Handlers run outside the lock; the
// orchestrator decides which of several callbacks counts.
func (g *HostedCheckout) Deliver(ref, event string, raw map[string]any) error {
	g.mu.Lock()
	a, ok := g.attempts[ref]
	var opened bool
	if ok {
		opened = !a.openedAt.IsZero()
	}
	g.mu.Unlock()
	if !ok {
		return domain.ErrNotFound
	}
	if !opened {
		g.log.Warn().Str("merchant_ref", ref).Str("event", event).Msg("callback for a checkout that was never opened")
	}
	if raw == nil {
		raw = map[string]any{}
	}

	switch event {
	case EventSuccess:
		a.handlers.OnSuccess(raw)
	case EventError:
		a.handlers.OnError(raw)
	case EventCancel:
		a.handlers.OnCancel()
	default:
		return fmt.Errorf("%w: unknown checkout event %q", domain.ErrInvalidArgument, event)
	}
	g.log.Debug().Str("merchant_ref", ref).Str("event", event).Msg("checkout callback relayed")
	return nil
}

func (g *HostedCheckout) Release(ref string) {
	g.mu.Lock()
	delete(g.attempts, ref)
	g.mu.Unlock()
}
