package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"event-billing/internal/domain/model"
	ucport "event-billing/internal/domain/ports/usecase"
)

type subscriptionView struct {
	ID                 string    `json:"id"`
	PlanName           string    `json:"plan"`
	PlanAmount         string    `json:"planAmount"`
	Currency           string    `json:"currency"`
	PaymentID          string    `json:"paymentId"`
	MerchantReference  string    `json:"merchantReference"`
	TransactionID      string    `json:"transactionId,omitempty"`
	RetrievalReference string    `json:"retrievalReference,omitempty"`
	StartDate          time.Time `json:"startDate"`
	EndDate            time.Time `json:"endDate"`
	Status             string    `json:"status"`
	State              string    `json:"state"`
}

func toSubscriptionView(s *model.Subscription, now time.Time) subscriptionView {
	return subscriptionView{
		ID:                 s.ID,
		PlanName:           s.PlanName,
		PlanAmount:         s.PlanAmount.String(),
		Currency:           s.Currency,
		PaymentID:          s.PaymentID,
		MerchantReference:  s.MerchantReference,
		TransactionID:      s.TransactionID,
		RetrievalReference: s.RetrievalReference,
		StartDate:          s.StartDate,
		EndDate:            s.EndDate,
		Status:             string(s.Status),
		State:              string(s.State(now)),
	}
}

// createSubscriptionRequest carries the fields a captured payment yields. The
// period is never taken from the caller.
type createSubscriptionRequest struct {
	PlanName           string          `json:"plan"`
	PlanAmount         decimal.Decimal `json:"planAmount"`
	Currency           string          `json:"currency"`
	PaymentID          string          `json:"paymentId"`
	MerchantReference  string          `json:"merchantReference"`
	TransactionID      string          `json:"transactionId"`
	RetrievalReference string          `json:"retrievalReference"`
}

func (s *Server) createSubscription(w http.ResponseWriter, r *http.Request) {
	var req createSubscriptionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	sub, err := s.deps.Subscriptions.Create(r.Context(), ucport.CreateSubscriptionInput{
		UserID:             userID(r),
		PlanName:           req.PlanName,
		PlanAmount:         req.PlanAmount,
		Currency:           req.Currency,
		PaymentID:          req.PaymentID,
		MerchantReference:  req.MerchantReference,
		TransactionID:      req.TransactionID,
		RetrievalReference: req.RetrievalReference,
	})
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSubscriptionView(sub, time.Now()))
}

func (s *Server) activeSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := s.deps.Subscriptions.GetActive(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubscriptionView(sub, time.Now()))
}

func (s *Server) cancelSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := s.deps.Subscriptions.Cancel(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubscriptionView(sub, time.Now()))
}

func (s *Server) reactivateSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := s.deps.Subscriptions.Reactivate(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubscriptionView(sub, time.Now()))
}
