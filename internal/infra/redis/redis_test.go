package redis

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"event-billing/internal/domain"
	"event-billing/internal/domain/ports/adapter"

	"github.com/go-redis/redismock/v8"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func TestReferenceRegistry_Issue(t *testing.T) {
	db, mock := redismock.NewClientMock()
	reg := NewReferenceRegistry(NewClientFromRedis(db), time.Hour, newTestLogger())

	refs := []string{"01REFA", "01REFB"}
	reg.newRef = func() string {
		r := refs[0]
		refs = refs[1:]
		return r
	}

	mock.ExpectSetNX("checkout:ref:01REFA", 1, time.Hour).SetVal(false)
	mock.ExpectSetNX("checkout:ref:01REFB", 1, time.Hour).SetVal(true)

	ref, err := reg.Issue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "01REFB", ref)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReferenceRegistry_GivesUpAfterCollisions(t *testing.T) {
	db, mock := redismock.NewClientMock()
	reg := NewReferenceRegistry(NewClientFromRedis(db), time.Hour, newTestLogger())
	reg.newRef = func() string { return "01SAME" }

	for i := 0; i < maxIssueAttempts; i++ {
		mock.ExpectSetNX("checkout:ref:01SAME", 1, time.Hour).SetVal(false)
	}

	_, err := reg.Issue(context.Background())
	assert.ErrorIs(t, err, domain.ErrReferenceCollision)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReferenceRegistry_RedisError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	reg := NewReferenceRegistry(NewClientFromRedis(db), time.Hour, newTestLogger())
	reg.newRef = func() string { return "01X" }

	mock.ExpectSetNX("checkout:ref:01X", 1, time.Hour).SetErr(errors.New("conn refused"))

	_, err := reg.Issue(context.Background())
	assert.ErrorContains(t, err, "conn refused")
}

func TestReferenceRegistry_ULIDsAreUnique(t *testing.T) {
	reg := NewReferenceRegistry(nil, time.Hour, newTestLogger())
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		ref := reg.nextULID()
		_, dup := seen[ref]
		require.False(t, dup, "duplicate reference %s", ref)
		seen[ref] = struct{}{}
	}
}

func TestRetryQueue_PushPop(t *testing.T) {
	db, mock := redismock.NewClientMock()
	q := NewRetryQueue(NewClientFromRedis(db))
	ctx := context.Background()

	p := adapter.PendingCreate{
		UserID:            "u-1",
		PlanName:          "monthly",
		PlanAmount:        decimal.RequireFromString("49.5"),
		Currency:          "AED",
		PaymentID:         "P-1",
		MerchantReference: "01REF",
		Attempts:          1,
	}
	data, err := json.Marshal(p)
	require.NoError(t, err)

	mock.ExpectRPush(retryQueueKey, string(data)).SetVal(1)
	require.NoError(t, q.Push(ctx, p))

	mock.ExpectLPop(retryQueueKey).SetVal(string(data))
	got, err := q.Pop(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "01REF", got.MerchantReference)
	assert.True(t, got.PlanAmount.Equal(decimal.RequireFromString("49.5")))

	mock.ExpectLPop(retryQueueKey).RedisNil()
	got, err = q.Pop(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	mock.ExpectLLen(retryQueueKey).SetVal(3)
	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRetryQueue_PopCorrupt(t *testing.T) {
	db, mock := redismock.NewClientMock()
	q := NewRetryQueue(NewClientFromRedis(db))

	mock.ExpectLPop(retryQueueKey).SetVal("{not json")
	_, err := q.Pop(context.Background())
	assert.ErrorContains(t, err, "decode pending create")
}

func TestRateLimiter_Allow(t *testing.T) {
	db, mock := redismock.NewClientMock()
	rl := NewRateLimiter(NewClientFromRedis(db))
	ctx := context.Background()
	key := "rate_limit:checkout:u-1"

	mock.ExpectIncr(key).SetVal(1)
	mock.ExpectExpire(key, time.Minute).SetVal(true)
	ok, err := rl.Allow(ctx, key, 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectIncr(key).SetVal(2)
	ok, err = rl.Allow(ctx, key, 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectIncr(key).SetVal(3)
	ok, err = rl.Allow(ctx, key, 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}
