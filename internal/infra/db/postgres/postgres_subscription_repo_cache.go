package postgres

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"event-billing/internal/domain/model"
	"event-billing/internal/domain/ports/repository"
	"event-billing/internal/infra/metrics"
	red "event-billing/internal/infra/redis"
)

var _ repository.SubscriptionRepository = (*subscriptionRepoCacheDecorator)(nil)

// subscriptionRepoCacheDecorator caches the per-user latest subscription. The
// stored row is cached, never the derived state, so expiry stays exact.
//
// Every entry is stamped with the user's generation read before the database
// query. Writes bump the generation, so a fill that raced a write carries a
// stale stamp and is ignored by later reads.
type subscriptionRepoCacheDecorator struct {
	inner repository.SubscriptionRepository
	cache red.RedisClient
	ttl   time.Duration
	log   *zerolog.Logger
}

type cachedSubscription struct {
	Gen          int64               `json:"gen"`
	Subscription *model.Subscription `json:"subscription"`
}

func NewSubscriptionRepoCacheDecorator(inner repository.SubscriptionRepository, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) repository.SubscriptionRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &subscriptionRepoCacheDecorator{
		inner: inner,
		cache: cache,
		ttl:   ttl,
		log:   logger,
	}
}

func latestKey(userID string) string { return "subscription:latest:" + userID }
func genKey(userID string) string    { return "subscription:gen:" + userID }

// generation returns the user's current write generation; a missing key is 0.
func (d *subscriptionRepoCacheDecorator) generation(ctx context.Context, userID string) (int64, error) {
	val, err := d.cache.Get(ctx, genKey(userID))
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(val, 10, 64)
}

func (d *subscriptionRepoCacheDecorator) FindLatestByUser(ctx context.Context, tx repository.Tx, userID string) (*model.Subscription, error) {
	key := latestKey(userID)
	gen, err := d.generation(ctx, userID)
	if err != nil {
		// Without a generation a fill cannot be checked, so go straight to the database.
		d.log.Warn().Err(err).Str("user_id", userID).Msg("subscription cache generation read failed")
		metrics.IncCacheRequest("subscription", "miss")
		return d.inner.FindLatestByUser(ctx, tx, userID)
	}

	val, err := d.cache.Get(ctx, key)
	if err == nil {
		var entry cachedSubscription
		if json.Unmarshal([]byte(val), &entry) == nil && entry.Subscription != nil && entry.Gen == gen {
			metrics.IncCacheRequest("subscription", "hit")
			return entry.Subscription, nil
		}
	} else if err != redis.Nil {
		d.log.Warn().Err(err).Str("key", key).Msg("subscription cache read failed")
	}

	metrics.IncCacheRequest("subscription", "miss")
	s, err := d.inner.FindLatestByUser(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if bytes, err := json.Marshal(cachedSubscription{Gen: gen, Subscription: s}); err == nil {
		_ = d.cache.Set(ctx, key, bytes, d.ttl)
	}
	return s, nil
}

// Writes invalidate the user's entry.
func (d *subscriptionRepoCacheDecorator) CreateOrGet(ctx context.Context, tx repository.Tx, s *model.Subscription) (*model.Subscription, bool, error) {
	stored, created, err := d.inner.CreateOrGet(ctx, tx, s)
	if err != nil {
		return nil, false, err
	}
	if created {
		d.invalidate(ctx, stored.UserID)
	}
	return stored, created, nil
}

func (d *subscriptionRepoCacheDecorator) Transition(ctx context.Context, tx repository.Tx, t model.StatusTransition) (bool, error) {
	applied, err := d.inner.Transition(ctx, tx, t)
	if err != nil {
		return false, err
	}
	if applied {
		d.invalidate(ctx, t.UserID)
	}
	return applied, nil
}

// invalidate bumps the generation before deleting the entry. The generation
// key outlives any entry stamped with the previous value.
func (d *subscriptionRepoCacheDecorator) invalidate(ctx context.Context, userID string) {
	log := d.log.With().Str("user_id", userID).Logger()
	if _, err := d.cache.Incr(ctx, genKey(userID)); err != nil {
		log.Warn().Err(err).Msg("subscription cache generation bump failed")
	} else if err := d.cache.Expire(ctx, genKey(userID), d.ttl+time.Hour); err != nil {
		log.Warn().Err(err).Msg("subscription cache generation expiry failed")
	}
	if err := d.cache.Del(ctx, latestKey(userID)); err != nil {
		log.Warn().Err(err).Msg("subscription cache invalidation failed")
	}
}

func (d *subscriptionRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	return d.inner.FindByID(ctx, tx, id)
}

func (d *subscriptionRepoCacheDecorator) FindByMerchantReference(ctx context.Context, tx repository.Tx, ref string) (*model.Subscription, error) {
	return d.inner.FindByMerchantReference(ctx, tx, ref)
}

func (d *subscriptionRepoCacheDecorator) CountByState(ctx context.Context, tx repository.Tx, now time.Time) (map[model.SubscriptionState]int, error) {
	return d.inner.CountByState(ctx, tx, now)
}
