package bridge

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/danmuck/remoteflow/internal/testutil/testlog"
)

func TestLocatorSocketPath(t *testing.T) {
	testlog.Start(t)
	l := NewLocator("/run/user/1000/remoteflow")
	got, err := l.SocketPath(Target{ProcessID: "com.example.remoteflow", Service: "MainService"})
	if err != nil {
		t.Fatalf("socket path: %v", err)
	}
	want := filepath.Join("/run/user/1000/remoteflow", "com.example.remoteflow", "MainService.sock")
	if got != want {
		t.Fatalf("unexpected path: %s", got)
	}
}

func TestLocatorRejectsBadTargets(t *testing.T) {
	testlog.Start(t)
	l := NewLocator("/tmp/rf")
	bad := []Target{
		{ProcessID: "", Service: "main"},
		{ProcessID: "app", Service: " "},
		{ProcessID: "..", Service: "main"},
		{ProcessID: "app", Service: "../etc"},
		{ProcessID: "a/b", Service: "main"},
	}
	for _, target := range bad {
		if _, err := l.SocketPath(target); !errors.Is(err, ErrInvalidTarget) {
			t.Fatalf("target %+v: expected ErrInvalidTarget, got %v", target, err)
		}
	}
}

func TestNewLocatorDefaultsRuntimeDir(t *testing.T) {
	testlog.Start(t)
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/42")
	if got := NewLocator("").RuntimeDir; got != filepath.Join("/run/user/42", "remoteflow") {
		t.Fatalf("unexpected runtime dir: %s", got)
	}
}
