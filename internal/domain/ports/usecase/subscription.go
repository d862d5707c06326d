package usecase

import (
	"context"

	"github.com/shopspring/decimal"

	"event-billing/internal/domain/model"
)

// CreateSubscriptionInput is the createSubscription contract. The period is
// always computed by the store (start = now, end = start + 30 days).
type CreateSubscriptionInput struct {
	UserID             string
	PlanName           string
	PlanAmount         decimal.Decimal
	Currency           string
	PaymentID          string
	MerchantReference  string
	TransactionID      string
	RetrievalReference string
}

// SubscriptionManager is what the checkout orchestrator and background workers
// need from the subscription store.
type SubscriptionManager interface {
	Create(ctx context.Context, in CreateSubscriptionInput) (*model.Subscription, error)
	GetActive(ctx context.Context, userID string) (*model.Subscription, error)
}
