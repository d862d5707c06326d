package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"event-billing/internal/infra/logging"
	"event-billing/internal/usecase"
)

// EventSink receives widget callbacks relayed by the browser. Only the
// hosted gateway has one.
type EventSink interface {
	Deliver(ref, event string, raw map[string]any) error
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

type ServerDeps struct {
	Checkout      usecase.CheckoutUseCase
	Subscriptions usecase.SubscriptionUseCase
	Plans         *usecase.PlanCatalogue
	Bridge        EventSink
	Tokens        *TokenManager
	Health        map[string]HealthCheck
}

// Server exposes checkout and subscription operations over HTTP.
type Server struct {
	deps    ServerDeps
	timeout time.Duration
	log     *zerolog.Logger
}

func NewServer(deps ServerDeps, requestTimeout time.Duration, logger *zerolog.Logger) *Server {
	if requestTimeout <= 0 {
		requestTimeout = 15 * time.Second
	}
	return &Server{deps: deps, timeout: requestTimeout, log: logging.Component(logger, "HTTP")}
}

// Router builds the full route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), Recover(s.log), RequestLog(s.log))

	r.Get("/health", s.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(Timeout(s.timeout), Authenticate(s.deps.Tokens))

		r.Get("/plans", s.listPlans)

		r.Post("/checkout", s.startCheckout)
		r.Get("/checkout/{ref}", s.getCheckout)
		r.Post("/checkout/{ref}/open", s.openCheckout)
		r.Post("/checkout/{ref}/events/{event}", s.checkoutEvent)

		r.Post("/subscriptions", s.createSubscription)
		r.Get("/subscriptions/active", s.activeSubscription)
		r.Post("/subscriptions/{id}/cancel", s.cancelSubscription)
		r.Post("/subscriptions/{id}/reactivate", s.reactivateSubscription)
	})
	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failed := map[string]string{}
	for name, check := range s.deps.Health {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		logging.With(ctx, s.log).Warn().Interface("failed", failed).Msg("health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "failed": failed})
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func userID(r *http.Request) string {
	id, _ := logging.UserID(r.Context())
	return id
}
