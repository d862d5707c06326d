package model

import (
	"fmt"

	"event-billing/internal/domain"
)

// TrxDateTimeLayout is ISO-8601 with millisecond precision and a zone offset.
const TrxDateTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// PaymentViewType selects how the checkout widget is rendered.
type PaymentViewType int

const (
	PaymentViewPopup    PaymentViewType = 1
	PaymentViewFullPage PaymentViewType = 2
)

// OrderItem is one priced line of the outbound request.
type OrderItem struct {
	Name           string `json:"Name"`
	DescriptionOne string `json:"DescriptionOne"`
	DescriptionTwo string `json:"DescriptionTwo"`
	Price          string `json:"Price"` // "<CURRENCY> <amount>"
}

// PaymentRequest is the signed request handed to the checkout gateway. It is
// built once per attempt and never persisted.
type PaymentRequest struct {
	Amount            string          `json:"Amount"`
	CurrencyID        int             `json:"CurrencyId"`
	MerchantID        string          `json:"MerchantId"`
	TerminalID        string          `json:"TerminalId"`
	MerchantReference string          `json:"MerchantReference"`
	LanguageID        string          `json:"LanguageId"`
	PaymentViewType   PaymentViewType `json:"PaymentViewType"`
	TrxDateTime       string          `json:"TrxDateTime"`
	SessionToken      string          `json:"SessionToken"`
	ContactInfoType   int             `json:"ContactInfoType"`
	OrderItems        []OrderItem     `json:"OrderItems"`
	SecureHash        string          `json:"SecureHash"`
}

// OutcomeKind tags which variant of Outcome is set.
type OutcomeKind string

const (
	OutcomeSuccess   OutcomeKind = "success"
	OutcomeError     OutcomeKind = "error"
	OutcomeCancelled OutcomeKind = "cancelled"
)

// PaymentSuccess carries the identifiers decoded from a success callback.
type PaymentSuccess struct {
	PaymentID          string         `json:"paymentId"`
	TransactionID      string         `json:"transactionId"`
	RetrievalReference string         `json:"retrievalReference"`
	Raw                map[string]any `json:"-"`
}

// PaymentFailure carries the decoded reason of an error callback.
type PaymentFailure struct {
	Reason string         `json:"reason"`
	Raw    map[string]any `json:"-"`
}

// Outcome is the single authoritative result of a checkout attempt.
type Outcome struct {
	Kind    OutcomeKind     `json:"kind"`
	Success *PaymentSuccess `json:"success,omitempty"`
	Failure *PaymentFailure `json:"failure,omitempty"`
}

func SuccessOutcome(s PaymentSuccess) *Outcome { return &Outcome{Kind: OutcomeSuccess, Success: &s} }
func FailureOutcome(f PaymentFailure) *Outcome { return &Outcome{Kind: OutcomeError, Failure: &f} }
func CancelledOutcome() *Outcome               { return &Outcome{Kind: OutcomeCancelled} }

// Err returns a *PaymentFailedError for error outcomes and nil otherwise.
func (o *Outcome) Err() error {
	if o == nil || o.Kind != OutcomeError {
		return nil
	}
	reason := ""
	if o.Failure != nil {
		reason = o.Failure.Reason
	}
	return &PaymentFailedError{Reason: reason}
}

// PaymentFailedError is the terminal, user-visible failure of an attempt.
type PaymentFailedError struct {
	Reason string
}

func (e *PaymentFailedError) Error() string {
	if e.Reason == "" {
		return domain.ErrPaymentFailed.Error()
	}
	return fmt.Sprintf("%s: %s", domain.ErrPaymentFailed, e.Reason)
}

func (e *PaymentFailedError) Unwrap() error { return domain.ErrPaymentFailed }
