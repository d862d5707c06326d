package payment

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"event-billing/internal/domain"
	"event-billing/internal/domain/model"
	"event-billing/internal/domain/ports/adapter"
)

// Script is the callback sequence the sandbox plays after Open.
type Script string

const (
	ScriptSuccess           Script = "success"
	ScriptError             Script = "error"
	ScriptCancel            Script = "cancel"
	ScriptSuccessThenCancel Script = "success_then_cancel"
	ScriptCancelThenSuccess Script = "cancel_then_success"
)

func ParseScript(s string) (Script, error) {
	switch sc := Script(strings.ToLower(strings.TrimSpace(s))); sc {
	case ScriptSuccess, ScriptError, ScriptCancel, ScriptSuccessThenCancel, ScriptCancelThenSuccess:
		return sc, nil
	default:
		return "", fmt.Errorf("%w: unknown sandbox script %q", domain.ErrInvalidArgument, s)
	}
}

var (
	_ adapter.CheckoutGateway  = (*SandboxCheckout)(nil)
	_ adapter.CheckoutOpener   = (*SandboxCheckout)(nil)
	_ adapter.CheckoutReleaser = (*SandboxCheckout)(nil)
)

type sandboxAttempt struct {
	req      *model.PaymentRequest
	handlers adapter.OutcomeHandlers
}

// SandboxCheckout is an in-memory gateway for development and tests. It
// plays a fixed script of callbacks on its own goroutine, like the real
// widget does, and rejects requests whose SecureHash does not verify.
type SandboxCheckout struct {
	script Script
	step   time.Duration
	verify func(*model.PaymentRequest) bool
	log    *zerolog.Logger

	mu       sync.Mutex
	seq      int64
	attempts map[string]*sandboxAttempt
	wg       sync.WaitGroup
}

// NewSandboxCheckout builds a sandbox; step is the delay before and between
// callbacks. verify may be nil.
func NewSandboxCheckout(script Script, step time.Duration, verify func(*model.PaymentRequest) bool, logger *zerolog.Logger) *SandboxCheckout {
	l := logger.With().Str("component", "SandboxCheckout").Str("script", string(script)).Logger()
	return &SandboxCheckout{
		script:   script,
		step:     step,
		verify:   verify,
		log:      &l,
		attempts: make(map[string]*sandboxAttempt),
	}
}

func (g *SandboxCheckout) Name() string { return "sandbox" }

func (g *SandboxCheckout) Configure(ctx context.Context, req *model.PaymentRequest, h adapter.OutcomeHandlers) error {
	if req == nil || req.MerchantReference == "" {
		return domain.ErrInvalidArgument
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, dup := g.attempts[req.MerchantReference]; dup {
		return domain.ErrAlreadyExists
	}
	g.attempts[req.MerchantReference] = &sandboxAttempt{req: req, handlers: h}
	return nil
}

func (g *SandboxCheckout) Open(ctx context.Context, ref string) error {
	g.mu.Lock()
	a, ok := g.attempts[ref]
	g.seq++
	n := g.seq
	g.mu.Unlock()
	if !ok {
		return domain.ErrNotFound
	}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.play(a, n)
	}()
	return nil
}

func (g *SandboxCheckout) play(a *sandboxAttempt, n int64) {
	ref := a.req.MerchantReference
	time.Sleep(g.step)

	if g.verify != nil && !g.verify(a.req) {
		g.log.Warn().Str("merchant_ref", ref).Msg("secure hash mismatch")
		a.handlers.OnError(map[string]any{"ResponseCode": "96", "ResponseMessage": "SecureHash mismatch"})
		return
	}

	success := map[string]any{
		"PaymentId": fmt.Sprintf("SBX-P-%d", n),
		"Transaction": map[string]any{
			"TransactionId":            fmt.Sprintf("SBX-T-%d", n),
			"RetrievalReferenceNumber": fmt.Sprintf("%012d", n),
		},
	}

	switch g.script {
	case ScriptSuccess:
		a.handlers.OnSuccess(success)
	case ScriptError:
		a.handlers.OnError(map[string]any{"ResponseCode": "05", "ResponseMessage": "Do not honour"})
	case ScriptCancel:
		a.handlers.OnCancel()
	case ScriptSuccessThenCancel:
		a.handlers.OnSuccess(success)
		time.Sleep(g.step)
		a.handlers.OnCancel()
	case ScriptCancelThenSuccess:
		a.handlers.OnCancel()
		time.Sleep(g.step)
		a.handlers.OnSuccess(success)
	}
	g.log.Debug().Str("merchant_ref", ref).Msg("sandbox script played")
}

func (g *SandboxCheckout) Release(ref string) {
	g.mu.Lock()
	delete(g.attempts, ref)
	g.mu.Unlock()
}

// Wait blocks until every script started by Open has finished.
func (g *SandboxCheckout) Wait() { g.wg.Wait() }
