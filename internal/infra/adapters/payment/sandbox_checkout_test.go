package payment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"event-billing/internal/domain"
	"event-billing/internal/domain/model"
	"event-billing/internal/domain/ports/adapter"
)

type syncRecorder struct {
	mu     sync.Mutex
	events []string
	raws   []map[string]any
}

func (r *syncRecorder) handlers() adapter.OutcomeHandlers {
	add := func(ev string, raw map[string]any) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, ev)
		r.raws = append(r.raws, raw)
	}
	return adapter.OutcomeHandlers{
		OnSuccess: func(raw map[string]any) { add("success", raw) },
		OnError:   func(raw map[string]any) { add("error", raw) },
		OnCancel:  func() { add("cancel", nil) },
	}
}

func TestSandboxCheckout_Scripts(t *testing.T) {
	cases := []struct {
		script Script
		want   []string
	}{
		{ScriptSuccess, []string{"success"}},
		{ScriptError, []string{"error"}},
		{ScriptCancel, []string{"cancel"}},
		{ScriptSuccessThenCancel, []string{"success", "cancel"}},
		{ScriptCancelThenSuccess, []string{"cancel", "success"}},
	}
	for _, tc := range cases {
		t.Run(string(tc.script), func(t *testing.T) {
			ctx := context.Background()
			g := NewSandboxCheckout(tc.script, time.Millisecond, nil, newTestLogger())
			rec := &syncRecorder{}

			require.NoError(t, g.Configure(ctx, signedRequest("R"), rec.handlers()))
			require.NoError(t, g.Open(ctx, "R"))
			g.Wait()

			rec.mu.Lock()
			defer rec.mu.Unlock()
			assert.Equal(t, tc.want, rec.events)
		})
	}
}

func TestSandboxCheckout_RejectsBadHash(t *testing.T) {
	ctx := context.Background()
	verify := func(*model.PaymentRequest) bool { return false }
	g := NewSandboxCheckout(ScriptSuccess, time.Millisecond, verify, newTestLogger())
	rec := &syncRecorder{}

	require.NoError(t, g.Configure(ctx, signedRequest("R"), rec.handlers()))
	require.NoError(t, g.Open(ctx, "R"))
	g.Wait()

	require.Equal(t, []string{"error"}, rec.events)
	assert.Equal(t, "SecureHash mismatch", rec.raws[0]["ResponseMessage"])
}

func TestSandboxCheckout_OpenUnknown(t *testing.T) {
	g := NewSandboxCheckout(ScriptSuccess, time.Millisecond, nil, newTestLogger())
	assert.ErrorIs(t, g.Open(context.Background(), "nope"), domain.ErrNotFound)
}

func TestParseScript(t *testing.T) {
	s, err := ParseScript(" Success_Then_Cancel ")
	require.NoError(t, err)
	assert.Equal(t, ScriptSuccessThenCancel, s)

	_, err = ParseScript("refund")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}
