package providers

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRateLimiter(t *testing.T) {
	t.Run("unlimited", func(t *testing.T) {
		rl := NewRateLimiter(0)
		for i := 0; i < 5; i++ {
			if err := rl.Wait(context.Background()); err != nil {
				t.Fatalf("Wait() error = %v", err)
			}
		}
		status := rl.Status()
		if !status.Unlimited {
			t.Error("Status().Unlimited = false for rps 0")
		}
		if status.TotalConsumed != 5 {
			t.Errorf("TotalConsumed = %d, want 5", status.TotalConsumed)
		}
	})

	t.Run("paced", func(t *testing.T) {
		rl := NewRateLimiter(20)
		start := time.Now()
		for i := 0; i < 3; i++ {
			if err := rl.Wait(context.Background()); err != nil {
				t.Fatalf("Wait() error = %v", err)
			}
		}
		// Burst of one: the second and third requests each wait ~50ms.
		if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
			t.Errorf("3 requests at 20 rps took %v, want >= 80ms", elapsed)
		}
		status := rl.Status()
		if status.Unlimited || status.RequestsPerSecond != 20 {
			t.Errorf("Status() = %+v", status)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		rl := NewRateLimiter(0.001)
		if err := rl.Wait(context.Background()); err != nil {
			t.Fatalf("first Wait() error = %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		if err := rl.Wait(ctx); err == nil {
			t.Error("Wait() succeeded past an exhausted bucket")
		}
		if rl.Status().TotalConsumed != 1 {
			t.Errorf("TotalConsumed = %d, want 1", rl.Status().TotalConsumed)
		}
	})

	t.Run("nil", func(t *testing.T) {
		var rl *RateLimiter
		ctx, cancel := context.WithCancel(context.Background())
		if err := rl.Wait(ctx); err != nil {
			t.Errorf("nil Wait() error = %v", err)
		}
		cancel()
		if err := rl.Wait(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("nil Wait() after cancel = %v, want context.Canceled", err)
		}
		if !rl.Status().Unlimited {
			t.Error("nil Status().Unlimited = false")
		}
	})
}
