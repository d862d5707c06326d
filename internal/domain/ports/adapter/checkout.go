package adapter

import (
	"context"

	"event-billing/internal/domain/model"
)

// OutcomeHandlers are registered with a checkout gateway for one attempt. The
// gateway may call them asynchronously, more than once, in any order.
type OutcomeHandlers struct {
	OnSuccess func(raw map[string]any)
	OnError   func(raw map[string]any)
	OnCancel  func()
}

// CheckoutGateway is the external checkout capability.
type CheckoutGateway interface {
	Name() string
	// Configure hands the signed request and the outcome handlers to the gateway.
	Configure(ctx context.Context, req *model.PaymentRequest, h OutcomeHandlers) error
}

// CheckoutOpener is the gateway entry point that launches a configured checkout.
// A gateway that does not implement it cannot be opened.
type CheckoutOpener interface {
	Open(ctx context.Context, merchantReference string) error
}

// CheckoutReleaser is implemented by gateways that hold per-attempt state and
// want to drop it once the attempt is resolved.
type CheckoutReleaser interface {
	Release(merchantReference string)
}

// RequestSigner computes the SecureHash of a payment request.
type RequestSigner interface {
	SignRequest(req *model.PaymentRequest) string
}

// ReferenceIssuer hands out merchant references that were never issued before.
type ReferenceIssuer interface {
	Issue(ctx context.Context) (string, error)
}
