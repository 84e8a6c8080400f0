package repo

import (
	"context"
	"strconv"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func balanceKey(accountID uuid.UUID) string { return "balance:" + accountID.String() }

// cacheBalanceScript stores {v, b} under KEYS[1] unless the cached version is
// already at or above ARGV[1]. ARGV[3] is the TTL in milliseconds.
var cacheBalanceScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'v')
if cur and tonumber(cur) >= tonumber(ARGV[1]) then
  return 0
end
redis.call('HSET', KEYS[1], 'v', ARGV[1], 'b', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// CacheBalance writes the balance read at version. A write carrying an older
// version than the cached one is dropped, so a slow reader cannot replace a
// balance a later commit already published.
func (r *Repository) CacheBalance(ctx context.Context, accountID uuid.UUID, bal decimal.Decimal, version uint64) error {
	if r.rdb == nil {
		return ErrCacheDisabled
	}
	return cacheBalanceScript.Run(ctx, r.rdb, []string{balanceKey(accountID)},
		strconv.FormatUint(version, 10), bal.String(), r.cacheTTL.Milliseconds()).Err()
}

// GetCachedBalance reads Redis. A miss surfaces as redis.Nil.
func (r *Repository) GetCachedBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	if r.rdb == nil {
		return decimal.Zero, ErrCacheDisabled
	}
	str, err := r.rdb.HGet(ctx, balanceKey(accountID), "b").Result()
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(str)
}
