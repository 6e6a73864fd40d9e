package bridge

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/remoteflow/internal/testutil/testlog"
)

func TestConnectUnknownTargetFailsSynchronously(t *testing.T) {
	testlog.Start(t)
	ctx := testContext(t)
	binder := NewBinder(testLocator(t))

	_, err := binder.Connect(ctx, Target{ProcessID: "missing", Service: "main"})
	if !errors.Is(err, ErrBindRejected) {
		t.Fatalf("expected ErrBindRejected, got %v", err)
	}
	var bindErr *BindError
	if !errors.As(err, &bindErr) || bindErr.Target.ProcessID != "missing" {
		t.Fatalf("expected *BindError for target, got %#v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected cause to be preserved, got %v", err)
	}

	if _, err := binder.Connect(ctx, Target{ProcessID: "bad/id", Service: "main"}); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("expected ErrInvalidTarget, got %v", err)
	}
}

func TestConnectRejectsNonSocket(t *testing.T) {
	testlog.Start(t)
	locator := testLocator(t)
	target := Target{ProcessID: "app", Service: "main"}
	path, _ := locator.SocketPath(target)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := NewBinder(locator).Connect(testContext(t), target); !errors.Is(err, ErrBindRejected) {
		t.Fatalf("expected ErrBindRejected, got %v", err)
	}
}

func TestPendingConnLifecycle(t *testing.T) {
	testlog.Start(t)
	ctx := testContext(t)
	locator := testLocator(t)
	target := Target{ProcessID: "app", Service: "main"}
	server := New(Options[string]{Name: "server"})
	defer server.Close()
	host, err := Listen(ctx, locator, target, server.LocalHandle())
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer host.Close()

	pc, err := NewBinder(locator).Connect(ctx, target)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if ev := recv(t, pc.Events()); ev.State != ConnBinding {
		t.Fatalf("expected binding, got %s", ev.State)
	}
	ev := recv(t, pc.Events())
	if ev.State != ConnBound || ev.Conn == nil {
		t.Fatalf("expected bound with conn, got %+v", ev)
	}

	pc.Disconnect()
	pc.Disconnect()
	if ev := recv(t, pc.Events()); ev.State != ConnUnbound {
		t.Fatalf("expected unbound, got %s", ev.State)
	}
	if _, ok := <-pc.Events(); ok {
		t.Fatalf("expected events closed after terminal state")
	}
	if pc.State() != ConnUnbound {
		t.Fatalf("unexpected state %s", pc.State())
	}
}

func TestPendingConnReportsDisconnect(t *testing.T) {
	testlog.Start(t)
	ctx := testContext(t)
	locator := testLocator(t)
	target := Target{ProcessID: "app", Service: "main"}
	server := New(Options[string]{Name: "server"})
	defer server.Close()
	host, err := Listen(ctx, locator, target, server.LocalHandle())
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	pc, err := NewBinder(locator).Connect(ctx, target)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	recv(t, pc.Events())
	bound := recv(t, pc.Events())
	if bound.State != ConnBound {
		t.Fatalf("expected bound, got %s", bound.State)
	}
	go func() {
		buf := make([]byte, 1)
		_, _ = bound.Conn.Read(buf)
	}()

	if err := host.Close(); err != nil {
		t.Fatalf("close host: %v", err)
	}
	ev := recv(t, pc.Events())
	if ev.State != ConnDisconnected || !errors.Is(ev.Err, ErrDisconnected) {
		t.Fatalf("expected disconnected, got %+v", ev)
	}
	// safe after the connection is already gone
	pc.Disconnect()
	if _, ok := <-pc.Events(); ok {
		t.Fatalf("expected events closed")
	}
}

func TestDisconnectBeforeBound(t *testing.T) {
	testlog.Start(t)
	ctx := testContext(t)
	locator := testLocator(t)
	target := Target{ProcessID: "app", Service: "main"}
	server := New(Options[string]{Name: "server"})
	defer server.Close()
	host, err := Listen(ctx, locator, target, server.LocalHandle())
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer host.Close()

	pc, err := NewBinder(locator).Connect(ctx, target)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	pc.Disconnect()

	var last ConnEvent
	timeout := time.After(testTimeout)
	for {
		select {
		case ev, ok := <-pc.Events():
			if !ok {
				if last.State != ConnUnbound {
					t.Fatalf("expected unbound terminal state, got %s", last.State)
				}
				return
			}
			last = ev
		case <-timeout:
			t.Fatalf("events never closed")
		}
	}
}

func TestListenRefusesLiveSocketAndReplacesStale(t *testing.T) {
	testlog.Start(t)
	ctx := testContext(t)
	locator := testLocator(t)
	target := Target{ProcessID: "app", Service: "main"}
	a := New(Options[string]{Name: "a"})
	defer a.Close()
	host, err := Listen(ctx, locator, target, a.LocalHandle())
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	if _, err := Listen(ctx, locator, target, a.LocalHandle()); !errors.Is(err, ErrAddressInUse) {
		t.Fatalf("expected ErrAddressInUse, got %v", err)
	}
	if err := host.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := host.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if _, err := os.Stat(host.Path()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected socket removed, got %v", err)
	}
	again, err := Listen(ctx, locator, target, a.LocalHandle())
	if err != nil {
		t.Fatalf("relisten: %v", err)
	}
	_ = again.Close()
}
