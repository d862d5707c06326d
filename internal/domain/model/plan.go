package model

import (
	"strings"

	"github.com/shopspring/decimal"

	"event-billing/internal/domain"
)

// Plan is a purchasable billing plan from the configured catalogue.
type Plan struct {
	Name        string
	Amount      decimal.Decimal
	Currency    string // ISO 4217 alpha code, e.g. "AED"
	Description string
}

// NewPlan validates and constructs a plan.
func NewPlan(name string, amount decimal.Decimal, currency, description string) (*Plan, error) {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(currency) == "" {
		return nil, domain.ErrInvalidArgument
	}
	if amount.IsNegative() {
		return nil, domain.ErrAmountInvalid
	}
	return &Plan{
		Name:        name,
		Amount:      amount,
		Currency:    strings.ToUpper(currency),
		Description: description,
	}, nil
}

// CheckoutOrder is what a caller asks to pay for in one attempt.
type CheckoutOrder struct {
	UserID       string
	PlanName     string
	Amount       decimal.Decimal
	Currency     string
	SessionToken string
	Items        []OrderLine
}

// OrderLine is an unformatted order item.
type OrderLine struct {
	Name           string
	DescriptionOne string
	DescriptionTwo string
	Price          decimal.Decimal
}

// OrderForPlan builds a single-line order for a plan.
func OrderForPlan(userID string, p *Plan, sessionToken string) CheckoutOrder {
	return CheckoutOrder{
		UserID:       userID,
		PlanName:     p.Name,
		Amount:       p.Amount,
		Currency:     p.Currency,
		SessionToken: sessionToken,
		Items: []OrderLine{{
			Name:           p.Name,
			DescriptionOne: p.Description,
			DescriptionTwo: "30 days",
			Price:          p.Amount,
		}},
	}
}
