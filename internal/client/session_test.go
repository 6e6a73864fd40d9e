package client

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/remoteflow/internal/control"
	"github.com/danmuck/remoteflow/internal/service"
	"github.com/danmuck/remoteflow/internal/testutil/testlog"
)

func startServer(t *testing.T, ctx context.Context) (*service.Service, <-chan error) {
	t.Helper()
	dir, err := os.MkdirTemp("", "rfc")
	if err != nil {
		t.Fatalf("mkdir temp: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	cfg := service.DefaultConfig()
	cfg.RuntimeDir = dir
	cfg.ControlAddr = "127.0.0.1:0"
	cfg.StatusFile = false
	cfg.Foreground.HeartbeatInterval = 10 * time.Millisecond

	svc := service.New(cfg)
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	select {
	case <-svc.Ready():
	case err := <-done:
		t.Fatalf("server run: %v", err)
	case <-ctx.Done():
		t.Fatalf("server never became ready")
	}
	return svc, done
}

func TestSessionAgainstServer(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	svc, done := startServer(t, ctx)

	session := NewSession(Config{
		Count:     3,
		Interval:  20 * time.Millisecond,
		ReadLimit: 2,
		Linger:    100 * time.Millisecond,
	}, svc.Registry(), control.NewClient(svc.ControlAddr()))

	if err := session.Run(ctx); err != nil {
		t.Fatalf("session: %v", err)
	}
	sum := session.Summary()
	if sum.Sent != 3 {
		t.Fatalf("expected 3 sent, got %d", sum.Sent)
	}
	if !strings.HasPrefix(sum.LastResponse, service.ReplyPrefix) {
		t.Fatalf("unexpected last response %q", sum.LastResponse)
	}
	if len(sum.Read) != 2 {
		t.Fatalf("bounded reader kept %d values: %v", len(sum.Read), sum.Read)
	}
	if sum.Read[0] != "Received: Hello there (1)" {
		t.Fatalf("unexpected first value %q", sum.Read[0])
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("server run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("server did not terminate after STOP")
	}
}

func TestSessionWithoutServer(t *testing.T) {
	testlog.Start(t)
	dir, err := os.MkdirTemp("", "rfc")
	if err != nil {
		t.Fatalf("mkdir temp: %v", err)
	}
	defer os.RemoveAll(dir)
	cfg := service.DefaultConfig()
	cfg.RuntimeDir = dir
	svc := service.New(cfg)

	session := NewSession(Config{Count: 1, ConnectAttempts: 1}, svc.Registry(), nil)
	if err := session.Run(context.Background()); err == nil {
		t.Fatalf("expected bind error without a server")
	}
}
