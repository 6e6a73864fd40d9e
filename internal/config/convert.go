package config

import (
	"time"

	"github.com/danmuck/remoteflow/internal/bridge"
	"github.com/danmuck/remoteflow/internal/client"
	"github.com/danmuck/remoteflow/internal/foreground"
	"github.com/danmuck/remoteflow/internal/service"
)

// ServiceConfig maps a validated server file onto the runtime configuration.
func (c ServerConfig) ServiceConfig() (service.Config, error) {
	out := service.DefaultConfig()
	if c.RuntimeDir != "" {
		out.RuntimeDir = c.RuntimeDir
	}
	out.ProcessID = c.ProcessID
	out.Service = c.Service
	out.ControlAddr = c.ControlAddr
	out.CORSOrigins = c.CorsOrigins
	out.AutoStart = c.AutoStart
	if c.StatusFile != nil {
		out.StatusFile = *c.StatusFile
	}

	importance, err := foreground.ParseImportance(c.Foreground.Importance)
	if err != nil {
		return service.Config{}, err
	}
	interval, err := c.Foreground.interval()
	if err != nil {
		return service.Config{}, err
	}
	out.Foreground = foreground.Config{
		NotificationID:    c.Foreground.NotificationID,
		ChannelID:         c.Foreground.ChannelID,
		ChannelName:       c.Foreground.ChannelName,
		Importance:        importance,
		HeartbeatInterval: interval,
	}
	return out, nil
}

// Registry resolves the server a client config points at.
func (c ClientConfig) Registry() *service.Registry {
	locator := bridge.NewLocator(c.RuntimeDir)
	return service.NewRegistry(locator, bridge.Target{ProcessID: c.ProcessID, Service: c.Service})
}

func (c ClientConfig) SessionConfig() client.Config {
	interval, _ := time.ParseDuration(c.Interval)
	linger, _ := time.ParseDuration(c.Linger)
	count := 0
	if c.Count != nil {
		count = *c.Count
	}
	return client.Config{
		Name:            c.Name,
		Count:           count,
		Interval:        interval,
		ReadLimit:       c.ReadLimit,
		Linger:          linger,
		ConnectAttempts: c.Attempts,
	}
}
