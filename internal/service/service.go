// Package service runs the server process: it hosts the bridge endpoint, maps
// lifecycle actions onto the receive loop and owns the foreground coordinator.
package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/danmuck/remoteflow/internal/bridge"
	"github.com/danmuck/remoteflow/internal/control"
	"github.com/danmuck/remoteflow/internal/foreground"
	"github.com/danmuck/remoteflow/internal/task"
	"github.com/rs/zerolog/log"
)

const (
	DefaultProcessID   = "remoteflow"
	DefaultServiceName = "main"
	DefaultControlAddr = "127.0.0.1:7420"
	statusFileName     = "foreground.toml"
)

// Config configures the server process.
type Config struct {
	RuntimeDir  string
	ProcessID   string
	Service     string
	ControlAddr string
	CORSOrigins []string
	// AutoStart launches the receive loop at boot as if ACTION_START had been received.
	AutoStart  bool
	StatusFile bool
	Foreground foreground.Config
}

func DefaultConfig() Config {
	return Config{
		RuntimeDir:  bridge.DefaultRuntimeDir(),
		ProcessID:   DefaultProcessID,
		Service:     DefaultServiceName,
		ControlAddr: DefaultControlAddr,
		StatusFile:  true,
		Foreground:  foreground.DefaultConfig(),
	}
}

func (c Config) Target() bridge.Target {
	return bridge.Target{ProcessID: c.ProcessID, Service: c.Service}
}

func (c Config) Validate() error {
	if err := c.Target().Validate(); err != nil {
		return fmt.Errorf("service: %w", err)
	}
	return nil
}

// Service composes the bridge host, the server channel, the coordinator, the state
// machine and the control server for one process lifetime.
type Service struct {
	cfg      Config
	registry *Registry

	mu          sync.Mutex
	controlAddr string
	ready       chan struct{}
}

func New(cfg Config) *Service {
	locator := bridge.NewLocator(cfg.RuntimeDir)
	cfg.RuntimeDir = locator.RuntimeDir
	return &Service{
		cfg:      cfg,
		registry: NewRegistry(locator, cfg.Target()),
		ready:    make(chan struct{}),
	}
}

func (s *Service) Registry() *Registry {
	return s.registry
}

// Ready is closed once the bridge endpoint and the control server accept connections.
func (s *Service) Ready() <-chan struct{} {
	return s.ready
}

// ControlAddr is the bound control address, valid after Ready.
func (s *Service) ControlAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.controlAddr
}

// Run blocks until a shutdown signal, ctx end or a termination request, then tears
// the process down.
func (s *Service) Run(ctx context.Context) error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	channel := bridge.New(bridge.Options[string]{
		Name:      "server",
		ProcessID: s.cfg.ProcessID,
		Service:   s.cfg.Service,
	})
	defer channel.Close()

	host, err := bridge.Listen(ctx, s.registry.Locator, s.registry.Target, channel.LocalHandle())
	if err != nil {
		return err
	}
	defer host.Close()

	elevator, err := s.elevator()
	if err != nil {
		return err
	}
	coord := foreground.NewCoordinator(s.cfg.Foreground, s.registry.State, elevator, channel)
	machine := NewStateMachine(channel, coord)
	defer machine.Teardown(context.Background())

	controlErr := make(chan error, 1)
	if addr := strings.TrimSpace(s.cfg.ControlAddr); addr != "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("service: control listen: %w", err)
		}
		s.mu.Lock()
		s.controlAddr = ln.Addr().String()
		s.mu.Unlock()
		srv := control.NewServer(control.Config{CORSOrigins: s.cfg.CORSOrigins}, machine, s.registry.State)
		ctl := task.Go(ctx, "service.control", func(ctx context.Context) {
			controlErr <- srv.Serve(ctx, ln)
		})
		defer ctl.Stop()
	}

	if s.cfg.AutoStart {
		_ = machine.Handle(ctx, ActionStart)
	}
	close(s.ready)
	log.Info().
		Str("target", s.registry.Target.String()).
		Str("socket", host.Path()).
		Str("control", s.ControlAddr()).
		Msg("service.Service running")

	select {
	case <-ctx.Done():
		log.Info().Msg("service.Service shutdown")
		return nil
	case <-machine.Terminated():
		log.Info().Msg("service.Service terminated by request")
		return nil
	case <-host.Done():
		if ctx.Err() != nil {
			return nil
		}
		return errors.New("service: bridge host stopped")
	case err := <-controlErr:
		if err != nil {
			return fmt.Errorf("service: control server: %w", err)
		}
		return nil
	}
}

func (s *Service) elevator() (foreground.Elevator, error) {
	if !s.cfg.StatusFile {
		return foreground.NopElevator{}, nil
	}
	path, err := s.registry.StatusPath()
	if err != nil {
		return nil, err
	}
	return foreground.NewFileElevator(path), nil
}

func statusPath(locator bridge.Locator, processID string) (string, error) {
	dir, err := locator.ProcessDir(processID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, statusFileName), nil
}
