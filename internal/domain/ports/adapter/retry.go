package adapter

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PendingCreate is a subscription create that failed after the payment was
// captured and must be retried.
type PendingCreate struct {
	UserID             string          `json:"userId"`
	PlanName           string          `json:"planName"`
	PlanAmount         decimal.Decimal `json:"planAmount"`
	Currency           string          `json:"currency"`
	PaymentID          string          `json:"paymentId"`
	MerchantReference  string          `json:"merchantReference"`
	TransactionID      string          `json:"transactionId"`
	RetrievalReference string          `json:"retrievalReference"`
	Attempts           int             `json:"attempts"`
	FirstFailedAt      time.Time       `json:"firstFailedAt"`
	LastError          string          `json:"lastError"`
}

// RetryQueue stores pending creates until a reconciler drains them.
type RetryQueue interface {
	Push(ctx context.Context, p PendingCreate) error
	// Pop returns (nil, nil) when the queue is empty.
	Pop(ctx context.Context) (*PendingCreate, error)
	Len(ctx context.Context) (int64, error)
}
