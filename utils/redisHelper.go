package utils

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bsm/redislock"
	"github.com/mmdatafocus/purchasing_backend/config"
)

var ErrResourceLocked = errors.New("resource is locked by another operation")

// IdLockedError names the id whose lock was held elsewhere. It matches ErrResourceLocked.
type IdLockedError struct {
	Key string
	Id  int
}

func (e *IdLockedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Key, ErrResourceLocked)
}

func (e *IdLockedError) Unwrap() error {
	return ErrResourceLocked
}

// ObtainIdLocks takes one redislock per id ("<prefix>:<id>") in ascending id order.
// On failure every lock obtained so far is released. The returned release func is safe to call once.
func ObtainIdLocks(ctx context.Context, locker *redislock.Client, prefix string, ids []int, ttl time.Duration) (func(), error) {
	logger := config.GetLogger()
	if locker == nil {
		return nil, errors.New("service not ready (redis lock not initialized)")
	}
	sorted := UniqueIds(ids)
	sort.Ints(sorted)

	locks := make([]*redislock.Lock, 0, len(sorted))
	release := func() {
		for _, lock := range locks {
			_ = lock.Release(context.Background())
		}
	}
	for _, id := range sorted {
		lockKey := fmt.Sprintf("%s:%d", prefix, id)
		lock, err := locker.Obtain(ctx, lockKey, ttl, nil)
		if err == redislock.ErrNotObtained {
			config.LogError(logger, "redisHelper.go", "ObtainIdLocks", "Could not obtain lock", lockKey, err)
			release()
			return nil, &IdLockedError{Key: lockKey, Id: id}
		} else if err != nil {
			config.LogError(logger, "redisHelper.go", "ObtainIdLocks", "Error obtaining lock", lockKey, err)
			release()
			return nil, err
		}
		locks = append(locks, lock)
	}
	return release, nil
}
