package eligibility

import (
	"context"
	"fmt"

	"github.com/capiscio/pledge-core/pkg/crypto"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the set key used when none is configured.
const DefaultRedisKey = "pledge:eligible"

// RedisOracle tests membership in a Redis set of lowercase 0x addresses.
type RedisOracle struct {
	rdb *redis.Client
	key string
}

// NewRedisOracle creates a RedisOracle over the set at key.
func NewRedisOracle(rdb *redis.Client, key string) *RedisOracle {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisOracle{rdb: rdb, key: key}
}

// IsEligible implements Oracle.
func (o *RedisOracle) IsEligible(ctx context.Context, account crypto.Address) (bool, error) {
	ok, err := o.rdb.SIsMember(ctx, o.key, account.String()).Result()
	if err != nil {
		return false, fmt.Errorf("failed to query eligible set: %w", err)
	}
	return ok, nil
}

// Add marks accounts eligible.
func (o *RedisOracle) Add(ctx context.Context, accounts ...crypto.Address) error {
	if len(accounts) == 0 {
		return nil
	}
	members := make([]interface{}, len(accounts))
	for i, a := range accounts {
		members[i] = a.String()
	}
	if err := o.rdb.SAdd(ctx, o.key, members...).Err(); err != nil {
		return fmt.Errorf("failed to add to eligible set: %w", err)
	}
	return nil
}

// Remove marks accounts ineligible.
func (o *RedisOracle) Remove(ctx context.Context, accounts ...crypto.Address) error {
	if len(accounts) == 0 {
		return nil
	}
	members := make([]interface{}, len(accounts))
	for i, a := range accounts {
		members[i] = a.String()
	}
	if err := o.rdb.SRem(ctx, o.key, members...).Err(); err != nil {
		return fmt.Errorf("failed to remove from eligible set: %w", err)
	}
	return nil
}
