// Package foreground elevates the process while a long-running job is active and
// publishes a heartbeat counter to the counterpart for as long as it is.
package foreground

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/danmuck/remoteflow/internal/bridge"
	"github.com/danmuck/remoteflow/internal/observability"
	"github.com/danmuck/remoteflow/internal/task"
	"github.com/rs/zerolog/log"
)

const (
	DefaultNotificationID    = 1
	DefaultChannelID         = "in_service_channel"
	DefaultChannelName       = "in service"
	DefaultHeartbeatInterval = time.Second
)

type Config struct {
	NotificationID    int
	ChannelID         string
	ChannelName       string
	Importance        Importance
	HeartbeatInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		NotificationID:    DefaultNotificationID,
		ChannelID:         DefaultChannelID,
		ChannelName:       DefaultChannelName,
		Importance:        ImportanceLow,
		HeartbeatInterval: DefaultHeartbeatInterval,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.NotificationID == 0 {
		c.NotificationID = d.NotificationID
	}
	if c.ChannelID == "" {
		c.ChannelID = d.ChannelID
	}
	if c.ChannelName == "" {
		c.ChannelName = d.ChannelName
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	return c
}

// Publisher is the outbound side of the bridge; *bridge.Channel[string] satisfies it.
type Publisher interface {
	Publish(v string) *bridge.Delivery
}

// Coordinator owns the elevated state and the heartbeat task. Start and Stop are
// serialized; at most one heartbeat runs at a time.
type Coordinator struct {
	cfg      Config
	state    *State
	elevator Elevator
	out      Publisher

	mu        sync.Mutex
	active    bool
	heartbeat *task.Task
}

func NewCoordinator(cfg Config, state *State, elevator Elevator, out Publisher) *Coordinator {
	if elevator == nil {
		elevator = NopElevator{}
	}
	return &Coordinator{
		cfg:      cfg.withDefaults(),
		state:    state,
		elevator: elevator,
		out:      out,
	}
}

func (c *Coordinator) Config() Config {
	return c.cfg
}

// Active reports whether the process is currently elevated.
func (c *Coordinator) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Start elevates the process and starts the heartbeat. It does nothing while already
// active. customize may adjust the indicator before it is shown.
func (c *Coordinator) Start(ctx context.Context, customize func(*Descriptor)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		return nil
	}

	c.state.set(true)
	desc := Descriptor{Title: c.cfg.ChannelName, Ongoing: true}
	if customize != nil {
		customize(&desc)
	}
	req := ElevationRequest{
		NotificationID: c.cfg.NotificationID,
		ChannelID:      c.cfg.ChannelID,
		ChannelName:    c.cfg.ChannelName,
		Importance:     c.cfg.Importance.String(),
		Descriptor:     desc,
	}
	if err := c.elevator.Elevate(ctx, req); err != nil {
		c.state.set(false)
		log.Warn().Err(err).Int("notification_id", req.NotificationID).Msg("foreground.Coordinator elevation failed")
		return fmt.Errorf("foreground: elevate: %w", err)
	}

	c.active = true
	observability.SetForegroundActive(true)
	// The heartbeat outlives the request that started it.
	c.heartbeat = task.Go(context.WithoutCancel(ctx), "foreground.heartbeat", c.runHeartbeat)
	log.Info().Str("title", desc.Title).Dur("interval", c.cfg.HeartbeatInterval).Msg("foreground.Coordinator started")
	return nil
}

// Stop cancels the heartbeat, waits for it to drain and demotes the process.
// It does nothing while inactive.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return nil
	}

	c.heartbeat.Stop()
	c.heartbeat = nil
	err := c.elevator.Demote(ctx, c.cfg.NotificationID)
	if err != nil {
		log.Warn().Err(err).Msg("foreground.Coordinator demote failed")
		err = fmt.Errorf("foreground: demote: %w", err)
	}
	c.active = false
	c.state.set(false)
	observability.SetForegroundActive(false)
	log.Info().Msg("foreground.Coordinator stopped")
	return err
}

func (c *Coordinator) runHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	var counter uint64
	for {
		counter++
		c.out.Publish(strconv.FormatUint(counter, 10))
		observability.RecordHeartbeat()
		log.Debug().Uint64("tick", counter).Msg("foreground.Coordinator heartbeat")

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			return
		}
	}
}
