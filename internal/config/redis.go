package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

var (
	rdb    *redis.Client
	locker *redislock.Client
)

func GetRedisDB() *redis.Client {
	return rdb
}

func GetRedisLock() *redislock.Client {
	return locker
}

// ConnectRedis sets the global Redis client and lock client. An empty
// address leaves both nil, which turns every helper below into a no-op.
func ConnectRedis(ctx context.Context, cfg RedisConfig) error {
	if cfg.Address == "" {
		logg.Info("REDIS_ADDRESS not set; template cache and update lock disabled")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       0,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis at %s: %w", cfg.Address, err)
	}

	rdb = client
	locker = redislock.New(rdb)
	logg.WithField("addr", cfg.Address).Info("connected to redis")
	return nil
}

func CloseRedis() error {
	if rdb == nil {
		return nil
	}
	err := rdb.Close()
	rdb, locker = nil, nil
	return err
}

func GetRedisObject(ctx context.Context, key string, dest any) (bool, error) {
	if rdb == nil {
		return false, nil
	}
	val, err := rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return false, err
	}
	return true, nil
}

func SetRedisObject(ctx context.Context, key string, obj any, exp time.Duration) error {
	if rdb == nil {
		return nil
	}
	objInByte, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	return rdb.Set(ctx, key, objInByte, exp).Err()
}

func RemoveRedisKey(ctx context.Context, keys ...string) error {
	if rdb == nil {
		return nil
	}
	return rdb.Del(ctx, keys...).Err()
}

// ObtainLock takes a distributed lock, retrying for about five seconds. Without
// Redis it returns a nil lock and no error; ReleaseLock accepts nil.
func ObtainLock(ctx context.Context, key string, ttl time.Duration) (*redislock.Lock, error) {
	if locker == nil {
		return nil, nil
	}
	lock, err := locker.Obtain(ctx, key, ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 50),
	})
	if err != nil {
		return nil, err
	}
	return lock, nil
}

func ReleaseLock(ctx context.Context, lock *redislock.Lock) {
	if lock == nil {
		return
	}
	if err := lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
		LogError(logg, "config", "ReleaseLock", "release redis lock", lock.Key(), err)
	}
}
