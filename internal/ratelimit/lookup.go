package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/verigate/verigate/internal/config"
)

const (
	keyLookupOfficer = "lookup:officer:%s"
	keySweepLock     = "ledger:sweep:lock"
)

// LookupLimiter throttles PRO lookup submissions per officer. When Redis is
// not configured the limiter is nil and every request is allowed.
type LookupLimiter struct {
	bucket *TokenBucket
	locker *Locker

	rate  float64
	burst int
}

func NewLookupLimiter(cfg config.Config) *LookupLimiter {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.RedisPassword,
	})

	return &LookupLimiter{
		bucket: NewTokenBucket(client),
		locker: NewLocker(client),
		rate:   cfg.LookupRate,
		burst:  cfg.LookupBurst,
	}
}

func (l *LookupLimiter) Allow(ctx context.Context, officerID snowflake.ID) (*Result, error) {
	if l == nil {
		return &Result{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyLookupOfficer, officerID.String())
	return l.bucket.Allow(ctx, key, l.rate, l.burst)
}

// AcquireSweepLock guards the reservation sweep so only one instance runs
// it. Without Redis the lock is a no-op grant.
func (l *LookupLimiter) AcquireSweepLock(ctx context.Context, ttl time.Duration) (string, bool, error) {
	if l == nil {
		return "", true, nil
	}
	return l.locker.TryLock(ctx, keySweepLock, ttl)
}

func (l *LookupLimiter) ReleaseSweepLock(ctx context.Context, token string) error {
	if l == nil {
		return nil
	}
	return l.locker.Release(ctx, keySweepLock, token)
}
