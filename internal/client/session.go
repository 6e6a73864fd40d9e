// Package client drives the reference client scenario against a running server:
// it greets the server on an interval, watches replies and heartbeats, and stops
// the server when done.
package client

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/remoteflow/internal/bridge"
	"github.com/danmuck/remoteflow/internal/control"
	"github.com/danmuck/remoteflow/internal/service"
	"github.com/danmuck/remoteflow/internal/task"
	"github.com/rs/zerolog/log"
)

const EndMessage = "end"

type Config struct {
	Name      string
	Count     int
	Interval  time.Duration
	ReadLimit int
	// Linger is how long the session keeps the channel bound after "end".
	Linger time.Duration
	// ConnectAttempts bounds the binds tried while the server is still starting.
	ConnectAttempts int
}

func DefaultConfig() Config {
	return Config{
		Name:            "client",
		Count:           120,
		Interval:        time.Second,
		ReadLimit:       10,
		Linger:          time.Second,
		ConnectAttempts: 10,
	}
}

// Summary is what the session observed.
type Summary struct {
	Sent          int
	LastResponse  string
	LastHeartbeat int
	Read          []string
}

// Session is one run of the reference client.
type Session struct {
	cfg      Config
	registry *service.Registry
	ctl      *control.Client

	mu      sync.Mutex
	summary Summary
}

// NewSession prepares a session. ctl may be nil when the server is started elsewhere.
func NewSession(cfg Config, registry *service.Registry, ctl *control.Client) *Session {
	d := DefaultConfig()
	if cfg.Name == "" {
		cfg.Name = d.Name
	}
	if cfg.Count < 0 {
		cfg.Count = 0
	}
	if cfg.Interval <= 0 {
		cfg.Interval = d.Interval
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = d.ReadLimit
	}
	if cfg.ConnectAttempts <= 0 {
		cfg.ConnectAttempts = d.ConnectAttempts
	}
	return &Session{cfg: cfg, registry: registry, ctl: ctl}
}

// Run sends START, greets the server Count times, sends "end", unbinds and sends STOP.
func (s *Session) Run(ctx context.Context) error {
	if s.ctl != nil {
		if err := s.ctl.Send(ctx, control.ActionStart); err != nil {
			return err
		}
	}
	ch, err := s.registry.DialRetry(ctx, nil, s.cfg.Name, s.cfg.ConnectAttempts)
	if err != nil {
		return err
	}
	defer ch.Close()

	watchCtx, stopWatch := context.WithCancel(ctx)
	replies := ch.Subscribe(watchCtx)
	readCtx, stopRead := context.WithCancel(watchCtx)
	firstN := ch.Subscribe(readCtx)
	classifier := task.Go(watchCtx, "client.classify", func(context.Context) {
		s.classify(replies)
	})
	reader := task.Go(readCtx, "client.read", func(ctx context.Context) {
		defer stopRead()
		s.readBounded(ctx, firstN)
	})
	defer func() {
		stopWatch()
		classifier.Wait()
		reader.Wait()
	}()

	if err := ch.WaitReady(ctx); err != nil {
		return fmt.Errorf("client: bind: %w", err)
	}
	if err := s.greet(ctx, ch); err != nil {
		return err
	}

	if err := ch.Publish(EndMessage).Wait(ctx); err != nil {
		log.Warn().Err(err).Msg("client.Session end not delivered")
	}
	if s.cfg.Linger > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(s.cfg.Linger):
		}
	}
	ch.Unbind()

	if s.ctl != nil {
		if err := s.ctl.Send(context.WithoutCancel(ctx), control.ActionStop); err != nil {
			return err
		}
	}
	log.Info().Int("sent", s.Summary().Sent).Msg("client.Session finished")
	return nil
}

func (s *Session) greet(ctx context.Context, ch *bridge.Channel[string]) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for i := 1; i <= s.cfg.Count; i++ {
		msg := fmt.Sprintf("Hello there (%d)", i)
		ch.Publish(msg)
		s.mu.Lock()
		s.summary.Sent = i
		s.mu.Unlock()
		log.Debug().Str("value", msg).Msg("client.Session sent")
		if i == s.cfg.Count {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch.Disconnected():
			return ch.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// classify separates text replies from heartbeat numbers.
func (s *Session) classify(values <-chan string) {
	for v := range values {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		s.mu.Lock()
		if err == nil {
			s.summary.LastHeartbeat = n
		} else {
			s.summary.LastResponse = v
		}
		s.mu.Unlock()
	}
}

// readBounded keeps the first ReadLimit values and then stops reading.
func (s *Session) readBounded(ctx context.Context, values <-chan string) {
	for n := 0; n < s.cfg.ReadLimit; n++ {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-values:
			if !ok {
				return
			}
			s.mu.Lock()
			s.summary.Read = append(s.summary.Read, v)
			s.mu.Unlock()
		}
	}
}

func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.summary
	out.Read = append([]string(nil), s.summary.Read...)
	return out
}
