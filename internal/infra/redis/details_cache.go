package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"grindolympiads/internal/domain"
)

// DetailsLoader builds challenge details from the backing store.
type DetailsLoader interface {
	LoadChallengeDetails(ctx context.Context, challengeID string) (domain.ChallengeDetails, error)
}

// DetailsCache caches flattened challenge details in Redis and falls back to a loader on miss.
// Details are stored as JSON: SET challenge:{challengeID}:details {json} EX ttl
type DetailsCache struct {
	client *redis.Client
	loader DetailsLoader
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewDetailsCache(client *redis.Client, loader DetailsLoader, ttl time.Duration) *DetailsCache {
	return &DetailsCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *DetailsCache) GetChallengeDetails(ctx context.Context, challengeID string) (domain.ChallengeDetails, error) {
	if details, ok := c.cached(ctx, challengeID); ok {
		return details, nil
	}

	result, err, _ := c.sf.Do(challengeID, func() (interface{}, error) {
		// another caller may have filled the cache meanwhile
		if details, ok := c.cached(ctx, challengeID); ok {
			return details, nil
		}

		details, err := c.loader.LoadChallengeDetails(ctx, challengeID)
		if err != nil {
			return domain.ChallengeDetails{}, err
		}

		payload, err := json.Marshal(details)
		if err != nil {
			return domain.ChallengeDetails{}, err
		}
		if err := c.client.Set(ctx, c.key(challengeID), payload, c.ttlWithJitter()).Err(); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("challenge_id", challengeID).Msg("cache challenge details")
		}
		return details, nil
	})
	if err != nil {
		return domain.ChallengeDetails{}, err
	}
	return result.(domain.ChallengeDetails), nil
}

// Invalidate drops the cached details of a challenge.
func (c *DetailsCache) Invalidate(ctx context.Context, challengeID string) error {
	return c.client.Del(ctx, c.key(challengeID)).Err()
}

func (c *DetailsCache) cached(ctx context.Context, challengeID string) (domain.ChallengeDetails, bool) {
	raw, err := c.client.Get(ctx, c.key(challengeID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Ctx(ctx).Warn().Err(err).Str("challenge_id", challengeID).Msg("read cached challenge details")
		}
		return domain.ChallengeDetails{}, false
	}
	var details domain.ChallengeDetails
	if err := json.Unmarshal(raw, &details); err != nil {
		return domain.ChallengeDetails{}, false
	}
	return details, true
}

func (c *DetailsCache) key(challengeID string) string {
	return "challenge:" + challengeID + ":details"
}

func (c *DetailsCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
