package redis

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"event-billing/internal/domain"
	"event-billing/internal/domain/ports/adapter"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

const referenceKeyPrefix = "checkout:ref:"

// maxIssueAttempts bounds how many fresh ULIDs are tried before giving up.
const maxIssueAttempts = 5

var _ adapter.ReferenceIssuer = (*ReferenceRegistry)(nil)

// ReferenceRegistry mints merchant references and reserves each one in Redis
// so no two checkout attempts can share a reference, even across instances.
type ReferenceRegistry struct {
	client RedisClient
	ttl    time.Duration
	log    *zerolog.Logger

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	newRef  func() string
}

func NewReferenceRegistry(client RedisClient, ttl time.Duration, logger *zerolog.Logger) *ReferenceRegistry {
	r := &ReferenceRegistry{
		client:  client,
		ttl:     ttl,
		log:     logger,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
	r.newRef = r.nextULID
	return r
}

func (r *ReferenceRegistry) nextULID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), r.entropy).String()
}

// Issue returns a reference no previous Issue call (on any instance sharing
// this Redis) has returned while its reservation is alive.
func (r *ReferenceRegistry) Issue(ctx context.Context) (string, error) {
	for i := 0; i < maxIssueAttempts; i++ {
		ref := r.newRef()
		ok, err := r.client.SetNX(ctx, referenceKeyPrefix+ref, 1, r.ttl)
		if err != nil {
			return "", fmt.Errorf("reserve merchant reference: %w", err)
		}
		if ok {
			return ref, nil
		}
		r.log.Warn().Str("merchant_ref", ref).Int("attempt", i+1).Msg("merchant reference already reserved")
	}
	return "", domain.ErrReferenceCollision
}
