package utils

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/go-playground/validator/v10"
	"github.com/mmdatafocus/hotel_migration/config"
	"github.com/ttacon/libphonenumber"
)

// DefaultPhoneRegion is used when a partner has no country.
var DefaultPhoneRegion = "ES"

var ErrLockNotObtained = errors.New("could not obtain lock")

// NormalizePhoneNumber formats a phone as E.164 when it parses as a valid number
// for the region; anything else is returned trimmed and untouched.
func NormalizePhoneNumber(phoneNumber, countryCode string) string {
	raw := strings.TrimSpace(phoneNumber)
	if raw == "" {
		return ""
	}
	region := strings.ToUpper(strings.TrimSpace(countryCode))
	if region == "" {
		region = DefaultPhoneRegion
	}
	p, err := libphonenumber.Parse(raw, region)
	if err != nil || !libphonenumber.IsValidNumber(p) {
		return raw
	}
	return libphonenumber.Format(p, libphonenumber.E164)
}

func ProcessValidationErrors(err error) map[string]string {
	errorResponse := make(map[string]string)

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		if err != nil {
			errorResponse["_"] = err.Error()
		}
		return errorResponse
	}
	for _, ve := range validationErrors {
		errorResponse[ve.Field()] = ve.Tag()
	}
	return errorResponse
}

func DereferencePtr[T any](ptr *T, defaults ...T) T {
	if ptr != nil {
		return *ptr
	}
	var zero T
	if len(defaults) > 0 {
		return defaults[0]
	}
	return zero
}

// NilIfZero returns nil for the zero value so optional foreign keys stay NULL.
func NilIfZero[T comparable](v T) *T {
	var zero T
	if v == zero {
		return nil
	}
	return &v
}

// DateOnly truncates t to midnight UTC of its calendar day.
func DateOnly(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ObtainLock takes a redis lock on key and refreshes it every ttl/2 until the
// returned release is called. When redis is not configured the release is a
// no-op so single-process runs keep working.
func ObtainLock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	locker := config.GetRedisLock()
	if locker == nil {
		return func() {}, nil
	}
	lock, err := locker.Obtain(ctx, key, ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(250*time.Millisecond), 20),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: %s", ErrLockNotObtained, key)
	} else if err != nil {
		return nil, err
	}
	stop := keepAlive(ctx, ttl, func(ctx context.Context) error {
		return lock.Refresh(ctx, ttl, nil)
	})
	return func() {
		stop()
		_ = lock.Release(context.WithoutCancel(ctx))
	}, nil
}

// keepAlive calls refresh every ttl/2 until stop is called, ctx ends or a
// refresh fails. stop waits for the loop to exit.
func keepAlive(ctx context.Context, ttl time.Duration, refresh func(context.Context) error) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		interval := ttl / 2
		if interval <= 0 {
			interval = time.Second
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := refresh(ctx); err != nil {
					if ctx.Err() == nil {
						if logger := config.GetLogger(); logger != nil {
							config.LogWarning(logger, "utils", "keepAlive", "refresh lock", nil, err.Error())
						}
					}
					return
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
