package bridge

import (
	"context"
	"os"
	"testing"
	"time"
)

const testTimeout = 2 * time.Second

// testLocator uses a short temp dir; t.TempDir paths can exceed the unix socket path limit.
func testLocator(t *testing.T) Locator {
	t.Helper()
	dir, err := os.MkdirTemp("", "rf")
	if err != nil {
		t.Fatalf("mkdir temp: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return NewLocator(dir)
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatalf("stream closed")
		}
		return v
	case <-time.After(testTimeout):
		t.Fatalf("timed out waiting for value")
	}
	var zero T
	return zero
}

func expectNothing[T any](t *testing.T, ch <-chan T, wait time.Duration) {
	t.Helper()
	select {
	case v, ok := <-ch:
		if ok {
			t.Fatalf("unexpected value: %v", v)
		}
	case <-time.After(wait):
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type pair struct {
	server  *Channel[string]
	client  *Channel[string]
	host    *Host
	locator Locator
}

// connectPair hosts a server channel and dials it, waiting for both sides to be ready.
func connectPair(t *testing.T, ctx context.Context) pair {
	t.Helper()
	locator := testLocator(t)
	target := Target{ProcessID: "remoteflow", Service: "main"}

	server := New(Options[string]{Name: "server", ProcessID: target.ProcessID, Service: target.Service})
	host, err := Listen(ctx, locator, target, server.LocalHandle())
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	client, err := Dial(ctx, NewBinder(locator), target, Options[string]{Name: "client", ProcessID: "client"})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
		_ = host.Close()
		server.Close()
	})
	if err := client.WaitReady(ctx); err != nil {
		t.Fatalf("client ready: %v", err)
	}
	if err := server.WaitReady(ctx); err != nil {
		t.Fatalf("server ready: %v", err)
	}
	return pair{server: server, client: client, host: host, locator: locator}
}
