//go:build !integration

package postgres

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"event-billing/internal/domain/model"
	"event-billing/internal/domain/ports/repository"
	red "event-billing/internal/infra/redis"
)

// --- Mocks for Cache Decorator Tests ---

// mockInnerSubscriptionRepo mocks the database repository that the decorator wraps.
type mockInnerSubscriptionRepo struct {
	CreateOrGetFunc             func(ctx context.Context, tx repository.Tx, s *model.Subscription) (*model.Subscription, bool, error)
	FindByIDFunc                func(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error)
	FindByMerchantReferenceFunc func(ctx context.Context, tx repository.Tx, ref string) (*model.Subscription, error)
	FindLatestByUserFunc        func(ctx context.Context, tx repository.Tx, userID string) (*model.Subscription, error)
	TransitionFunc              func(ctx context.Context, tx repository.Tx, t model.StatusTransition) (bool, error)
	CountByStateFunc            func(ctx context.Context, tx repository.Tx, now time.Time) (map[model.SubscriptionState]int, error)
}

func (m *mockInnerSubscriptionRepo) CreateOrGet(ctx context.Context, tx repository.Tx, s *model.Subscription) (*model.Subscription, bool, error) {
	return m.CreateOrGetFunc(ctx, tx, s)
}
func (m *mockInnerSubscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	return m.FindByIDFunc(ctx, tx, id)
}
func (m *mockInnerSubscriptionRepo) FindByMerchantReference(ctx context.Context, tx repository.Tx, ref string) (*model.Subscription, error) {
	return m.FindByMerchantReferenceFunc(ctx, tx, ref)
}
func (m *mockInnerSubscriptionRepo) FindLatestByUser(ctx context.Context, tx repository.Tx, userID string) (*model.Subscription, error) {
	return m.FindLatestByUserFunc(ctx, tx, userID)
}
func (m *mockInnerSubscriptionRepo) Transition(ctx context.Context, tx repository.Tx, t model.StatusTransition) (bool, error) {
	return m.TransitionFunc(ctx, tx, t)
}
func (m *mockInnerSubscriptionRepo) CountByState(ctx context.Context, tx repository.Tx, now time.Time) (map[model.SubscriptionState]int, error) {
	return m.CountByStateFunc(ctx, tx, now)
}

// mockRedisClient mocks our Redis client wrapper.
type mockRedisClient struct {
	GetFunc    func(ctx context.Context, key string) (string, error)
	SetFunc    func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc    func(ctx context.Context, keys ...string) error
	PingFunc   func(ctx context.Context) error
	IncrFunc   func(ctx context.Context, key string) (int64, error)
	ExpireFunc func(ctx context.Context, key string, expiration time.Duration) error
	CloseFunc  func() error
}

var _ red.RedisClient = &mockRedisClient{}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.SetFunc == nil {
		return nil
	}
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	return true, nil
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	if m.DelFunc == nil {
		return nil
	}
	return m.DelFunc(ctx, keys...)
}
func (m *mockRedisClient) Ping(ctx context.Context) error { return m.PingFunc(ctx) }
func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) {
	if m.IncrFunc == nil {
		return 1, nil
	}
	return m.IncrFunc(ctx, key)
}
func (m *mockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	if m.ExpireFunc == nil {
		return nil
	}
	return m.ExpireFunc(ctx, key, expiration)
}
func (m *mockRedisClient) RPush(ctx context.Context, key string, values ...interface{}) error {
	return nil
}
func (m *mockRedisClient) LPop(ctx context.Context, key string) (string, error) { return "", nil }
func (m *mockRedisClient) LLen(ctx context.Context, key string) (int64, error) { return 0, nil }
func (m *mockRedisClient) Close() error                                         { return m.CloseFunc() }

// memRedisClient is a map-backed RedisClient for the cache tests; TTLs are ignored.
type memRedisClient struct {
	mu   sync.Mutex
	data map[string]string
}

var _ red.RedisClient = (*memRedisClient)(nil)

func newMemRedisClient() *memRedisClient {
	return &memRedisClient{data: map[string]string{}}
}

func (m *memRedisClient) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}
func (m *memRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = asString(value)
	return nil
}
func (m *memRedisClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = asString(value)
	return true, nil
}
func (m *memRedisClient) Incr(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, _ := strconv.ParseInt(m.data[key], 10, 64)
	n++
	m.data[key] = strconv.FormatInt(n, 10)
	return n, nil
}
func (m *memRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return nil
}
func (m *memRedisClient) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}
func (m *memRedisClient) Ping(ctx context.Context) error { return nil }
func (m *memRedisClient) RPush(ctx context.Context, key string, values ...interface{}) error {
	return nil
}
func (m *memRedisClient) LPop(ctx context.Context, key string) (string, error) { return "", redis.Nil }
func (m *memRedisClient) LLen(ctx context.Context, key string) (int64, error) { return 0, nil }
func (m *memRedisClient) Close() error                                         { return nil }

func asString(v interface{}) string {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return fmt.Sprint(v)
}
