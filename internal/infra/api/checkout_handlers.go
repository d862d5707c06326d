package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"event-billing/internal/domain"
	"event-billing/internal/usecase"
)

type planView struct {
	Name        string `json:"name"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description,omitempty"`
}

func (s *Server) listPlans(w http.ResponseWriter, r *http.Request) {
	plans := s.deps.Plans.List()
	out := make([]planView, 0, len(plans))
	for _, p := range plans {
		out = append(out, planView{Name: p.Name, Amount: p.Amount.String(), Currency: p.Currency, Description: p.Description})
	}
	writeJSON(w, http.StatusOK, out)
}

type startCheckoutRequest struct {
	Plan         string `json:"plan"`
	SessionToken string `json:"sessionToken"`
}

// checkoutResponse is a session view plus the payer-facing error, if any.
type checkoutResponse struct {
	usecase.CheckoutView
	Error string `json:"error,omitempty"`
}

func viewOf(sess *usecase.CheckoutSession) checkoutResponse {
	resp := checkoutResponse{CheckoutView: sess.View()}
	if err := sess.Outcome().Err(); err != nil {
		resp.Error = err.Error()
	}
	return resp
}

func (s *Server) startCheckout(w http.ResponseWriter, r *http.Request) {
	var req startCheckoutRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	if req.Plan == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "plan is required"})
		return
	}
	sess, err := s.deps.Checkout.Start(r.Context(), userID(r), req.Plan, req.SessionToken)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(sess))
}

func (s *Server) openCheckout(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	if err := s.deps.Checkout.Open(r.Context(), userID(r), ref); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	sess, err := s.deps.Checkout.Session(userID(r), ref)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusAccepted, viewOf(sess))
}

// getCheckout returns the session. With ?wait=<duration> it long-polls until
// the outcome is latched, bounded by the request timeout.
func (s *Server) getCheckout(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	uid := userID(r)

	raw := r.URL.Query().Get("wait")
	if raw == "" {
		sess, err := s.deps.Checkout.Session(uid, ref)
		if err != nil {
			writeError(w, r, s.log, err)
			return
		}
		writeJSON(w, http.StatusOK, viewOf(sess))
		return
	}

	wait, err := time.ParseDuration(raw)
	if err != nil || wait < 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "wait must be a non-negative duration"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), wait)
	defer cancel()
	sess, err := s.deps.Checkout.Wait(ctx, uid, ref)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(sess))
}

var checkoutEvents = map[string]bool{"success": true, "error": true, "cancel": true}

// checkoutEvent relays a widget callback into the hosted gateway. The body is
// the gateway payload as-is.
func (s *Server) checkoutEvent(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	event := chi.URLParam(r, "event")
	if !checkoutEvents[event] {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "unknown checkout event"})
		return
	}
	if s.deps.Bridge == nil {
		writeError(w, r, s.log, domain.ErrGatewayMisconfigured)
		return
	}
	if _, err := s.deps.Checkout.Session(userID(r), ref); err != nil {
		writeError(w, r, s.log, err)
		return
	}

	var payload map[string]any
	if err := decodeBody(w, r, &payload); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	if err := s.deps.Bridge.Deliver(ref, event, payload); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
