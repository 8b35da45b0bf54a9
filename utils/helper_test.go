package utils

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestKeepAliveRefreshesUntilStopped(t *testing.T) {
	var calls atomic.Int32
	stop := keepAlive(context.Background(), 20*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return nil
	})
	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	stop()
	seen := calls.Load()
	if seen < 3 {
		t.Fatalf("expected at least 3 refreshes, got %d", seen)
	}
	time.Sleep(50 * time.Millisecond)
	if got := calls.Load(); got != seen {
		t.Fatalf("refreshed after stop: %d -> %d", seen, got)
	}
}

func TestKeepAliveGivesUpOnLostLock(t *testing.T) {
	var calls atomic.Int32
	stop := keepAlive(context.Background(), 10*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return errors.New("lock lost")
	})
	time.Sleep(80 * time.Millisecond)
	stop()
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected one failed refresh, got %d", got)
	}
}

func TestKeepAliveEndsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stop := keepAlive(ctx, time.Hour, func(context.Context) error { return nil })
	cancel()
	done := make(chan struct{})
	go func() {
		stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("stop did not return after the context ended")
	}
}
