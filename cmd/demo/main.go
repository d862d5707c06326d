// Command demo drives a running API through the checkout callback scenarios
// against the hosted gateway bridge.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"event-billing/internal/config"
	"event-billing/internal/infra/api"
)

type step struct {
	event string
	delay time.Duration
	body  map[string]any
}

func successBody() map[string]any {
	return map[string]any{
		"PaymentId": "PAY-" + uuid.NewString()[:8],
		"Transaction": map[string]any{
			"TransactionId":            uuid.NewString()[:12],
			"RetrievalReferenceNumber": fmt.Sprint(time.Now().UnixNano() % 1_000_000_000_000),
		},
	}
}

var scenarios = map[string]func() []step{
	"success": func() []step { return []step{{event: "success", body: successBody()}} },
	"error": func() []step {
		return []step{{event: "error", body: map[string]any{"ResponseCode": "05", "ResponseMessage": "Do not honor"}}}
	},
	"cancel": func() []step { return []step{{event: "cancel"}} },
	"success_then_cancel": func() []step {
		return []step{{event: "success", body: successBody()}, {event: "cancel", delay: 50 * time.Millisecond}}
	},
	"cancel_then_success": func() []step {
		return []step{{event: "cancel"}, {event: "success", delay: 100 * time.Millisecond, body: successBody()}}
	},
}

type client struct {
	base  string
	token string
	http  *http.Client
}

func (c *client) call(ctx context.Context, method, path string, body any) (int, map[string]any, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out, nil
}

func main() {
	addr := flag.String("addr", "http://localhost:8080", "API base URL")
	cfgPath := flag.String("config", "config.yaml", "config file holding auth.jwt_secret")
	user := flag.String("user", "demo-user", "user id to act as")
	plan := flag.String("plan", "monthly", "plan name")
	scenario := flag.String("scenario", "all", "success|error|cancel|success_then_cancel|cancel_then_success|all")
	flag.Parse()

	out := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	logger := zerolog.New(out).With().Timestamp().Logger()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		logger.Fatal().Err(err).Msg("config")
	}
	token, err := api.NewTokenManager(cfg.Auth).Mint(*user, time.Hour)
	if err != nil {
		logger.Fatal().Err(err).Msg("mint token")
	}
	c := &client{base: strings.TrimRight(*addr, "/"), token: token, http: &http.Client{Timeout: 30 * time.Second}}

	names := []string{*scenario}
	if *scenario == "all" {
		names = []string{"success", "error", "cancel", "success_then_cancel", "cancel_then_success"}
	}
	ctx := context.Background()
	for _, name := range names {
		build, ok := scenarios[name]
		if !ok {
			logger.Fatal().Str("scenario", name).Msg("unknown scenario")
		}
		if err := runScenario(ctx, c, *plan, build(), logger.With().Str("scenario", name).Logger()); err != nil {
			logger.Error().Err(err).Str("scenario", name).Msg("scenario failed")
		}
	}

	code, body, err := c.call(ctx, http.MethodGet, "/api/v1/subscriptions/active", nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("active subscription")
	}
	logger.Info().Int("status", code).Interface("subscription", body).Msg("active subscription")
}

func runScenario(ctx context.Context, c *client, plan string, steps []step, log zerolog.Logger) error {
	code, body, err := c.call(ctx, http.MethodPost, "/api/v1/checkout", map[string]string{"plan": plan})
	if err != nil {
		return err
	}
	if code != http.StatusCreated {
		return fmt.Errorf("start checkout: status %d: %v", code, body["error"])
	}
	ref, _ := body["merchantReference"].(string)
	log = log.With().Str("merchant_ref", ref).Logger()

	if code, body, err = c.call(ctx, http.MethodPost, "/api/v1/checkout/"+ref+"/open", nil); err != nil {
		return err
	} else if code != http.StatusAccepted {
		return fmt.Errorf("open checkout: status %d: %v", code, body["error"])
	}

	// Each step fires on its own goroutine so callbacks can overlap the way
	// a real widget's do.
	var wg sync.WaitGroup
	for _, s := range steps {
		wg.Add(1)
		go func(s step) {
			defer wg.Done()
			time.Sleep(s.delay)
			code, _, err := c.call(ctx, http.MethodPost, "/api/v1/checkout/"+ref+"/events/"+s.event, s.body)
			if err != nil {
				log.Error().Err(err).Str("event", s.event).Msg("relay failed")
				return
			}
			log.Debug().Str("event", s.event).Int("status", code).Msg("callback relayed")
		}(s)
	}
	wg.Wait()

	code, body, err = c.call(ctx, http.MethodGet, "/api/v1/checkout/"+ref+"?wait=5s", nil)
	if err != nil {
		return err
	}
	ev := log.Info().Int("status", code).Interface("state", body["state"]).Interface("outcome", body["outcome"])
	if e, ok := body["error"]; ok {
		ev = ev.Interface("error", e)
	}
	ev.Msg("checkout finished")
	return nil
}
