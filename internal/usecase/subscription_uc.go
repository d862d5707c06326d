package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"event-billing/internal/domain"
	"event-billing/internal/domain/model"
	"event-billing/internal/domain/ports/repository"
	ucport "event-billing/internal/domain/ports/usecase"
	"event-billing/internal/infra/logging"
	"event-billing/internal/infra/metrics"
)

// Compile-time check
var _ SubscriptionUseCase = (*subscriptionUC)(nil)
var _ ucport.SubscriptionManager = (*subscriptionUC)(nil)

type SubscriptionUseCase interface {
	// Create stores a subscription for a captured payment. A second call with
	// the same merchant reference returns the stored record.
	Create(ctx context.Context, in ucport.CreateSubscriptionInput) (*model.Subscription, error)
	// GetActive returns the user's latest subscription unless it has expired.
	GetActive(ctx context.Context, userID string) (*model.Subscription, error)
	Cancel(ctx context.Context, userID, id string) (*model.Subscription, error)
	Reactivate(ctx context.Context, userID, id string) (*model.Subscription, error)
	CountByState(ctx context.Context) (map[model.SubscriptionState]int, error)
}

type subscriptionUC struct {
	subs repository.SubscriptionRepository
	log  *zerolog.Logger
	now  func() time.Time
}

func NewSubscriptionUseCase(subs repository.SubscriptionRepository, logger *zerolog.Logger) *subscriptionUC {
	return &subscriptionUC{
		subs: subs,
		log:  logging.Component(logger, "SubscriptionUC"),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source.
func (u *subscriptionUC) WithClock(now func() time.Time) *subscriptionUC {
	u.now = now
	return u
}

func (u *subscriptionUC) Create(ctx context.Context, in ucport.CreateSubscriptionInput) (*model.Subscription, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.Create")()

	s, err := model.NewSubscription(uuid.NewString(), in.UserID, in.PlanName, in.PlanAmount, in.Currency, in.PaymentID, in.MerchantReference, u.now())
	if err != nil {
		return nil, err
	}
	s.TransactionID = in.TransactionID
	s.RetrievalReference = in.RetrievalReference

	stored, created, err := u.subs.CreateOrGet(ctx, repository.NoTX, s)
	if err != nil {
		metrics.IncSubscriptionTransition("create", "error")
		return nil, fmt.Errorf("%w: %w", domain.ErrPersistenceFailed, err)
	}
	if !created {
		if stored.UserID != in.UserID {
			// Same reference, different owner: never hand out someone else's row.
			metrics.IncSubscriptionTransition("create", "conflict")
			return nil, domain.ErrAlreadyExists
		}
		metrics.IncSubscriptionTransition("create", "existing")
		logging.With(ctx, u.log).Info().
			Str("subscription_id", stored.ID).
			Str("merchant_ref", stored.MerchantReference).
			Msg("subscription already recorded for reference")
		return stored, nil
	}

	metrics.IncSubscriptionTransition("create", "created")
	logging.With(ctx, u.log).Info().
		Str("subscription_id", stored.ID).
		Str("plan", stored.PlanName).
		Time("end_date", stored.EndDate).
		Msg("subscription created")
	return stored, nil
}

func (u *subscriptionUC) GetActive(ctx context.Context, userID string) (*model.Subscription, error) {
	s, err := u.subs.FindLatestByUser(ctx, repository.NoTX, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNoActiveSubscription
		}
		return nil, err
	}
	if s.State(u.now()) == model.SubscriptionStateExpired {
		return nil, domain.ErrNoActiveSubscription
	}
	return s, nil
}

func (u *subscriptionUC) Cancel(ctx context.Context, userID, id string) (*model.Subscription, error) {
	return u.transition(ctx, "cancel", userID, id, model.SubscriptionStatusActive, model.SubscriptionStatusCancelled)
}

func (u *subscriptionUC) Reactivate(ctx context.Context, userID, id string) (*model.Subscription, error) {
	return u.transition(ctx, "reactivate", userID, id, model.SubscriptionStatusCancelled, model.SubscriptionStatusActive)
}

// transition validates against the current row, then applies a conditional
// update keyed on the status it validated. When the update loses a race the
// row is read again so the caller gets the error matching what won.
func (u *subscriptionUC) transition(ctx context.Context, op, userID, id string, from, to model.SubscriptionStatus) (*model.Subscription, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC."+op)()

	s, err := u.owned(ctx, userID, id)
	if err != nil {
		metrics.IncSubscriptionTransition(op, "not_found")
		return nil, err
	}
	now := u.now()
	if err := checkTransition(s, from, now); err != nil {
		metrics.IncSubscriptionTransition(op, "rejected")
		return nil, err
	}

	applied, err := u.subs.Transition(ctx, repository.NoTX, model.StatusTransition{
		ID:      id,
		UserID:  userID,
		From:    from,
		To:      to,
		ValidAt: &now,
		At:      now,
	})
	if err != nil {
		metrics.IncSubscriptionTransition(op, "error")
		return nil, err
	}
	if !applied {
		metrics.IncSubscriptionTransition(op, "conflict")
		return nil, u.lostTransition(ctx, userID, id, from)
	}

	metrics.IncSubscriptionTransition(op, "ok")
	s.Status = to
	s.UpdatedAt = now
	logging.With(ctx, u.log).Info().
		Str("subscription_id", id).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("subscription status changed")
	return s, nil
}

func (u *subscriptionUC) owned(ctx context.Context, userID, id string) (*model.Subscription, error) {
	s, err := u.subs.FindByID(ctx, repository.NoTX, id)
	if err != nil {
		return nil, err
	}
	if s.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return s, nil
}

// checkTransition reports why s cannot leave status from at now.
func checkTransition(s *model.Subscription, from model.SubscriptionStatus, now time.Time) error {
	if s.Status != from {
		if s.Status == model.SubscriptionStatusCancelled {
			return domain.ErrAlreadyCancelled
		}
		return domain.ErrNotCancelled
	}
	if s.State(now) == model.SubscriptionStateExpired {
		return domain.ErrExpired
	}
	return nil
}

func (u *subscriptionUC) lostTransition(ctx context.Context, userID, id string, from model.SubscriptionStatus) error {
	s, err := u.owned(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := checkTransition(s, from, u.now()); err != nil {
		return err
	}
	// The row matches again; another writer flipped it twice in between.
	return fmt.Errorf("%w: subscription %s changed concurrently", domain.ErrStatusConflict, id)
}

func (u *subscriptionUC) CountByState(ctx context.Context) (map[model.SubscriptionState]int, error) {
	return u.subs.CountByState(ctx, repository.NoTX, u.now())
}
