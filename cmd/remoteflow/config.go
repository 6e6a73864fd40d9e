package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/remoteflow/internal/bridge"
	"github.com/danmuck/remoteflow/internal/service"
)

// profile holds the connection defaults shared by the client-side commands.
type profile struct {
	RuntimeDir  string
	ProcessID   string
	Service     string
	ControlAddr string
	LogLevel    string
}

type profileFile struct {
	RuntimeDir  string `toml:"runtime_dir"`
	ProcessID   string `toml:"process_id"`
	Service     string `toml:"service"`
	ControlAddr string `toml:"control_addr"`
	LogLevel    string `toml:"log_level"`
}

func defaultProfile() profile {
	return profile{
		RuntimeDir:  bridge.DefaultRuntimeDir(),
		ProcessID:   service.DefaultProcessID,
		Service:     service.DefaultServiceName,
		ControlAddr: service.DefaultControlAddr,
	}
}

// defaultProfilePath is $XDG_CONFIG_HOME/remoteflow/profile.toml or its home equivalent.
func defaultProfilePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "remoteflow", "profile.toml")
}

// loadProfile overlays the keys defined in path onto the defaults. A missing file at
// the default location is not an error.
func loadProfile(path string, required bool) (profile, error) {
	p := defaultProfile()
	if strings.TrimSpace(path) == "" {
		return p, nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) && !required {
			return p, nil
		}
		return profile{}, fmt.Errorf("load profile: %w", err)
	}

	var raw profileFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return profile{}, fmt.Errorf("load profile: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return profile{}, fmt.Errorf("load profile: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("runtime_dir") {
		if dir := strings.TrimSpace(raw.RuntimeDir); dir != "" {
			p.RuntimeDir = dir
		}
	}
	if meta.IsDefined("process_id") {
		p.ProcessID = strings.TrimSpace(raw.ProcessID)
	}
	if meta.IsDefined("service") {
		p.Service = strings.TrimSpace(raw.Service)
	}
	if meta.IsDefined("control_addr") {
		p.ControlAddr = strings.TrimSpace(raw.ControlAddr)
	}
	if meta.IsDefined("log_level") {
		p.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	if err := p.target().Validate(); err != nil {
		return profile{}, fmt.Errorf("load profile: %w", err)
	}
	return p, nil
}

func (p profile) target() bridge.Target {
	return bridge.Target{ProcessID: p.ProcessID, Service: p.Service}
}

// serviceConfig is the server configuration addressed by the profile.
func (p profile) serviceConfig() service.Config {
	cfg := service.DefaultConfig()
	cfg.RuntimeDir = p.RuntimeDir
	cfg.ProcessID = p.ProcessID
	cfg.Service = p.Service
	cfg.ControlAddr = p.ControlAddr
	return cfg
}

func (p profile) registry() *service.Registry {
	return service.NewRegistry(bridge.NewLocator(p.RuntimeDir), p.target())
}
