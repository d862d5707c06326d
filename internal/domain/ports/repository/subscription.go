package repository

import (
	"context"
	"time"

	"event-billing/internal/domain/model"
)

// SubscriptionRepository is the port for persisted subscriptions.
type SubscriptionRepository interface {
	// CreateOrGet inserts s unless a row with the same merchant reference exists,
	// in which case the existing row is returned and created is false.
	CreateOrGet(ctx context.Context, tx Tx, s *model.Subscription) (stored *model.Subscription, created bool, err error)
	FindByID(ctx context.Context, tx Tx, id string) (*model.Subscription, error)
	FindByMerchantReference(ctx context.Context, tx Tx, ref string) (*model.Subscription, error)
	// FindLatestByUser returns the user's most recently started subscription.
	FindLatestByUser(ctx context.Context, tx Tx, userID string) (*model.Subscription, error)
	// Transition applies t only if the stored status still equals t.From.
	// applied is false when the condition did not hold.
	Transition(ctx context.Context, tx Tx, t model.StatusTransition) (applied bool, err error)

	// CountByState counts subscriptions by their derived state at now.
	CountByState(ctx context.Context, tx Tx, now time.Time) (map[model.SubscriptionState]int, error)
}
