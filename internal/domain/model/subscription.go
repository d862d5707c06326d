package model

import (
	"time"

	"github.com/shopspring/decimal"

	"event-billing/internal/domain"
)

// BillingPeriod is the fixed length of one paid period. It does not follow
// calendar months.
const BillingPeriod = 30 * 24 * time.Hour

// SubscriptionStatus is the persisted status. Expired is never stored.
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

func (s SubscriptionStatus) Valid() bool {
	return s == SubscriptionStatusActive || s == SubscriptionStatusCancelled
}

// SubscriptionState is the status as observed at a point in time.
type SubscriptionState string

const (
	SubscriptionStateActive    SubscriptionState = "active"
	SubscriptionStateCancelled SubscriptionState = "cancelled"
	SubscriptionStateExpired   SubscriptionState = "expired"
)

// DeriveState computes the observable state from stored fields. A subscription
// whose end date has passed is expired whatever its stored status.
func DeriveState(status SubscriptionStatus, endDate, now time.Time) SubscriptionState {
	if now.After(endDate) {
		return SubscriptionStateExpired
	}
	if status == SubscriptionStatusCancelled {
		return SubscriptionStateCancelled
	}
	return SubscriptionStateActive
}

// Subscription is one paid billing period bought with a captured payment.
type Subscription struct {
	ID                 string // UUID
	UserID             string
	PlanName           string
	PlanAmount         decimal.Decimal
	Currency           string
	PaymentID          string
	MerchantReference  string // unique per payment attempt
	TransactionID      string
	RetrievalReference string
	StartDate          time.Time
	EndDate            time.Time
	Status             SubscriptionStatus
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// State returns the derived state at now.
func (s *Subscription) State(now time.Time) SubscriptionState {
	return DeriveState(s.Status, s.EndDate, now)
}

// NewSubscription validates input and builds an active subscription starting at now.
func NewSubscription(id, userID, planName string, amount decimal.Decimal, currency, paymentID, merchantRef string, now time.Time) (*Subscription, error) {
	if id == "" || userID == "" || planName == "" || merchantRef == "" || paymentID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if amount.IsNegative() {
		return nil, domain.ErrAmountInvalid
	}
	return &Subscription{
		ID:                id,
		UserID:            userID,
		PlanName:          planName,
		PlanAmount:        amount,
		Currency:          currency,
		PaymentID:         paymentID,
		MerchantReference: merchantRef,
		StartDate:         now,
		EndDate:           now.Add(BillingPeriod),
		Status:            SubscriptionStatusActive,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// StatusTransition is a conditional status change: it applies only while the
// stored status still equals From. ValidAt, when set, also requires the period
// not to have ended at that instant. At stamps updated_at.
type StatusTransition struct {
	ID      string
	UserID  string
	From    SubscriptionStatus
	To      SubscriptionStatus
	ValidAt *time.Time
	At      time.Time
}
