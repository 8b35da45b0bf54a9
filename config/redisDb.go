package config

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var (
	rdb    *redis.Client
	locker *redislock.Client
)

// GetRedisLock is nil until ConnectRedis succeeds.
func GetRedisLock() *redislock.Client {
	return locker
}

// GetRedisObject decodes the JSON value stored at key into dest.
// A missing key, or redis not being configured, reports (false, nil).
func GetRedisObject(ctx context.Context, key string, dest interface{}) (bool, error) {
	if rdb == nil {
		return false, nil
	}
	val, err := rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return true, json.Unmarshal(val, dest)
}

func SetRedisObject(ctx context.Context, key string, obj interface{}, exp time.Duration) error {
	if rdb == nil {
		return nil
	}
	b, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	return rdb.Set(ctx, key, b, exp).Err()
}

func RemoveRedisKey(ctx context.Context, keys ...string) error {
	if rdb == nil {
		return nil
	}
	return rdb.Del(ctx, keys...).Err()
}

// ConnectRedis connects to REDIS_ADDRESS, retrying until ctx ends. Without an
// address the service runs unlocked and uncached, which is only safe for a
// single instance.
func ConnectRedis(ctx context.Context) error {
	addr := os.Getenv("REDIS_ADDRESS")
	if addr == "" {
		logg.WithFields(logrus.Fields{"field": "redis"}).Warn("REDIS_ADDRESS not set; locks and count cache disabled")
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
	})
	for attempt := 1; ; attempt++ {
		err := client.Ping(ctx).Err()
		if err == nil {
			rdb = client
			locker = redislock.New(client)
			logg.WithFields(logrus.Fields{"field": "redis", "addr": addr, "attempt": attempt}).Info("connected")
			return nil
		}
		if err := waitRetry(ctx, "redis", attempt, err); err != nil {
			_ = client.Close()
			return err
		}
	}
}
