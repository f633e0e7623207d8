package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/svcops/spareparts_backend/config"
)

// ErrLockNotObtained is surfaced to workflows so they can report a retryable
// contention error instead of blocking.
var ErrLockNotObtained = errors.New("could not obtain location lock")

// LocationLock serializes inventory posting against one location across
// instances. Returns a release func on success, ErrLockNotObtained when the
// lock is held elsewhere past the bounded retry window.
func LocationLock(ctx context.Context, locationType string, locationId int, moduleName string, functionName string) (func(), error) {
	logger := config.GetLogger()
	locker := config.GetRedisLock()
	if locker == nil {
		config.LogError(logger, moduleName, functionName, "Redis lock not initialized", nil, errors.New("redis lock is nil"))
		return nil, errors.New("service not ready (redis lock not initialized)")
	}

	lockKey := fmt.Sprintf("posting:%s:%d", locationType, locationId)
	lock, err := locker.Obtain(ctx, lockKey, 30*time.Second, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 20),
	})
	if err == redislock.ErrNotObtained {
		config.LogError(logger, moduleName, functionName, "Could not obtain lock for location", lockKey, err)
		return nil, ErrLockNotObtained
	} else if err != nil {
		config.LogError(logger, moduleName, functionName, "Error obtaining lock for location", lockKey, err)
		return nil, err
	}

	release := func() {
		_ = lock.Release(ctx)
	}
	return release, nil
}

func GetCacheLifespan() time.Duration {
	return 20 * time.Minute
}
