package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/remoteflow/internal/bridge"
	"github.com/danmuck/remoteflow/internal/config"
	"github.com/danmuck/remoteflow/internal/service"
	"github.com/danmuck/remoteflow/internal/testutil/testlog"
	"github.com/rs/zerolog"
)

func TestExampleConfigsLoad(t *testing.T) {
	testlog.Start(t)
	cfg, err := config.LoadServerConfig("ex.server.toml")
	if err != nil {
		t.Fatalf("load server config: %v", err)
	}
	if cfg.ControlAddr != service.DefaultControlAddr {
		t.Fatalf("unexpected control addr: %q", cfg.ControlAddr)
	}

	p, err := loadProfile("ex.profile.toml", true)
	if err != nil {
		t.Fatalf("load profile: %v", err)
	}
	if p.LogLevel != "warn" || p.ControlAddr != "127.0.0.1:7420" {
		t.Fatalf("unexpected profile: %+v", p)
	}
	if p.RuntimeDir != bridge.DefaultRuntimeDir() {
		t.Fatalf("expected default runtime dir, got %q", p.RuntimeDir)
	}
}

func TestLoadProfileOverridesOnlyDefinedKeys(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "profile.toml")
	if err := os.WriteFile(path, []byte(`process_id = "other"`), 0o644); err != nil {
		t.Fatalf("write profile: %v", err)
	}
	p, err := loadProfile(path, true)
	if err != nil {
		t.Fatalf("load profile: %v", err)
	}
	if p.ProcessID != "other" {
		t.Fatalf("unexpected process id: %q", p.ProcessID)
	}
	if p.Service != service.DefaultServiceName || p.ControlAddr != service.DefaultControlAddr {
		t.Fatalf("expected defaults kept: %+v", p)
	}
}

func TestLoadProfileErrors(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	if _, err := loadProfile(filepath.Join(dir, "missing.toml"), false); err != nil {
		t.Fatalf("optional missing profile: %v", err)
	}
	if _, err := loadProfile(filepath.Join(dir, "missing.toml"), true); err == nil {
		t.Fatalf("expected error for required missing profile")
	}

	cases := map[string]string{
		"unknown key": `colour = "blue"`,
		"bad target":  `service = "a/b"`,
		"syntax":      `service = `,
	}
	for name, body := range cases {
		path := filepath.Join(dir, strings.ReplaceAll(name, " ", "_")+".toml")
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("write profile: %v", err)
		}
		if _, err := loadProfile(path, true); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestConfigCommands(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "client.toml")

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"config", "init", "--kind", "client", path})
	if err := root.Execute(); err != nil {
		t.Fatalf("config init: %v", err)
	}

	root = newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"config", "validate", "--kind", "client", path})
	if err := root.Execute(); err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(out.String(), "validated client config") {
		t.Fatalf("unexpected output: %q", out.String())
	}
}

func TestActionRejectsUnknown(t *testing.T) {
	testlog.Start(t)
	root := newRootCmd()
	root.SetArgs([]string{"action", "pause"})
	if err := root.Execute(); err == nil {
		t.Fatalf("expected unknown action error")
	}
}

func TestSendCommandPrintsReplies(t *testing.T) {
	testlog.Start(t)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir, err := os.MkdirTemp("", "rfm")
	if err != nil {
		t.Fatalf("mkdir temp: %v", err)
	}
	defer os.RemoveAll(dir)

	cfg := service.DefaultConfig()
	cfg.RuntimeDir = dir
	cfg.ControlAddr = ""
	cfg.StatusFile = false
	cfg.AutoStart = true
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	svc := service.New(cfg)
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	<-svc.Ready()

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"send", "--runtime-dir", dir, "--wait", "500ms", "hi"})
	if err := root.ExecuteContext(ctx); err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.Contains(out.String(), "Received: hi") {
		t.Fatalf("unexpected output: %q", out.String())
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("server run: %v", err)
	}
}

func TestServeUsesProfileAndPersistentFlags(t *testing.T) {
	testlog.Start(t)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir, err := os.MkdirTemp("", "rfv")
	if err != nil {
		t.Fatalf("mkdir temp: %v", err)
	}
	defer os.RemoveAll(dir)
	profilePath := filepath.Join(dir, "profile.toml")
	body := "runtime_dir = \"" + dir + "\"\nprocess_id = \"fromprofile\"\ncontrol_addr = \"\"\n"
	if err := os.WriteFile(profilePath, []byte(body), 0o600); err != nil {
		t.Fatalf("write profile: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	serve := newRootCmd()
	serve.SetArgs([]string{"serve", "--profile", profilePath, "--service", "flagged", "--auto-start"})
	done := make(chan error, 1)
	go func() { done <- serve.ExecuteContext(ctx) }()

	socket := filepath.Join(dir, "fromprofile", "flagged.sock")
	deadline := time.Now().Add(2 * time.Second)
	for {
		if info, err := os.Stat(socket); err == nil && info.Mode()&os.ModeSocket != 0 {
			break
		}
		select {
		case err := <-done:
			t.Fatalf("serve exited early: %v", err)
		default:
		}
		if time.Now().After(deadline) {
			t.Fatalf("serve did not listen at %s", socket)
		}
		time.Sleep(10 * time.Millisecond)
	}

	var out bytes.Buffer
	send := newRootCmd()
	send.SetOut(&out)
	send.SetArgs([]string{"send", "--profile", profilePath, "--service", "flagged", "--wait", "500ms", "hi"})
	if err := send.ExecuteContext(ctx); err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.Contains(out.String(), "Received: hi") {
		t.Fatalf("unexpected output: %q", out.String())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("serve did not stop")
	}
}

func TestDemoAppliesClientConfigFile(t *testing.T) {
	testlog.Start(t)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("REMOTEFLOW_LOG_LEVEL", "")
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })
	dir, err := os.MkdirTemp("", "rfd")
	if err != nil {
		t.Fatalf("mkdir temp: %v", err)
	}
	defer os.RemoveAll(dir)

	cfg := service.DefaultConfig()
	cfg.RuntimeDir = dir
	cfg.ControlAddr = ""
	cfg.StatusFile = false
	cfg.AutoStart = true
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	svc := service.New(cfg)
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	<-svc.Ready()

	clientPath := filepath.Join(dir, "client.toml")
	body := "runtime_dir = \"" + dir + "\"\ncount = 0\nlinger = \"50ms\"\nconnect_attempts = 1\n\n[log]\nlevel = \"error\"\n"
	if err := os.WriteFile(clientPath, []byte(body), 0o600); err != nil {
		t.Fatalf("write client config: %v", err)
	}

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"demo", "--config", clientPath, "--no-control"})
	if err := root.ExecuteContext(ctx); err != nil {
		t.Fatalf("demo: %v", err)
	}
	if !strings.Contains(out.String(), "sent: 0") {
		t.Fatalf("unexpected output: %q", out.String())
	}
	if got := zerolog.GlobalLevel(); got != zerolog.ErrorLevel {
		t.Fatalf("log level from client config not applied: %s", got)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("server run: %v", err)
	}
}
