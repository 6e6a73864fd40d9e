package bridge

import (
	"errors"
	"testing"
	"time"

	"github.com/danmuck/remoteflow/internal/testutil/testlog"
)

func TestBackoffDelayGrowsToMax(t *testing.T) {
	testlog.Start(t)
	b := Backoff{InitialDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond, Multiplier: 2}
	want := []time.Duration{10, 20, 40, 50, 50}
	for i, w := range want {
		if got := b.Delay(i+1, nil); got != w*time.Millisecond {
			t.Fatalf("attempt %d: got %v want %v", i+1, got, w*time.Millisecond)
		}
	}
	b.Jitter = true
	if got := b.Delay(2, nil); got != 10*time.Millisecond {
		t.Fatalf("jitter without rng should halve: %v", got)
	}
}

func TestDialRetryWaitsForHost(t *testing.T) {
	testlog.Start(t)
	ctx := testContext(t)
	locator := testLocator(t)
	target := Target{ProcessID: "late", Service: "main"}
	server := New(Options[string]{Name: "server"})
	defer server.Close()

	go func() {
		time.Sleep(50 * time.Millisecond)
		host, err := Listen(ctx, locator, target, server.LocalHandle())
		if err != nil {
			return
		}
		t.Cleanup(func() { _ = host.Close() })
	}()

	b := Backoff{InitialDelay: 20 * time.Millisecond, MaxDelay: 100 * time.Millisecond, Multiplier: 2}
	c, err := DialRetry(ctx, NewBinder(locator), target, Options[string]{Name: "client"}, b, 20)
	if err != nil {
		t.Fatalf("dial retry: %v", err)
	}
	defer c.Close()
	if err := c.WaitReady(ctx); err != nil {
		t.Fatalf("ready: %v", err)
	}
}

func TestDialRetryGivesUp(t *testing.T) {
	testlog.Start(t)
	ctx := testContext(t)
	b := Backoff{InitialDelay: time.Millisecond, Multiplier: 1}
	_, err := DialRetry(ctx, NewBinder(testLocator(t)), Target{ProcessID: "never", Service: "main"}, Options[string]{}, b, 3)
	if !errors.Is(err, ErrBindRejected) {
		t.Fatalf("expected ErrBindRejected, got %v", err)
	}
	_, err = DialRetry(ctx, NewBinder(testLocator(t)), Target{ProcessID: "bad id", Service: "main"}, Options[string]{}, b, 3)
	if !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("expected ErrInvalidTarget, got %v", err)
	}
}
