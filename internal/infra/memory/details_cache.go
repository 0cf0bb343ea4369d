package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"grindolympiads/internal/domain"
)

// DetailsLoader builds challenge details from the backing store.
type DetailsLoader interface {
	LoadChallengeDetails(ctx context.Context, challengeID string) (domain.ChallengeDetails, error)
}

// DetailsCache caches challenge details with TTL so flattening runs once per challenge.
type DetailsCache struct {
	loader DetailsLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedDetails
}

type cachedDetails struct {
	details   domain.ChallengeDetails
	expiresAt time.Time
}

func NewDetailsCache(loader DetailsLoader, ttl time.Duration) *DetailsCache {
	return &DetailsCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedDetails),
	}
}

func (c *DetailsCache) GetChallengeDetails(ctx context.Context, challengeID string) (domain.ChallengeDetails, error) {
	if details, ok := c.lookup(challengeID); ok {
		return details, nil
	}

	result, err, _ := c.sf.Do(challengeID, func() (interface{}, error) {
		if details, ok := c.lookup(challengeID); ok {
			return details, nil
		}

		details, err := c.loader.LoadChallengeDetails(ctx, challengeID)
		if err != nil {
			return domain.ChallengeDetails{}, err
		}

		c.mu.Lock()
		c.cache[challengeID] = cachedDetails{
			details:   details,
			expiresAt: c.clock().Add(c.ttlWithJitter()),
		}
		c.mu.Unlock()
		return details, nil
	})
	if err != nil {
		return domain.ChallengeDetails{}, err
	}
	return result.(domain.ChallengeDetails), nil
}

// Invalidate drops a cached entry.
func (c *DetailsCache) Invalidate(_ context.Context, challengeID string) error {
	c.mu.Lock()
	delete(c.cache, challengeID)
	c.mu.Unlock()
	return nil
}

func (c *DetailsCache) lookup(challengeID string) (domain.ChallengeDetails, bool) {
	now := c.clock()
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.cache[challengeID]
	if !ok || !entry.expiresAt.After(now) {
		return domain.ChallengeDetails{}, false
	}
	return entry.details, true
}

func (c *DetailsCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// up to 10% jitter spreads expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
