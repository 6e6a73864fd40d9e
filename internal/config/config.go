package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/danmuck/remoteflow/internal/bridge"
	"github.com/danmuck/remoteflow/internal/foreground"
	"github.com/pelletier/go-toml/v2"
)

type ServerConfig struct {
	RuntimeDir  string           `toml:"runtime_dir"`
	ProcessID   string           `toml:"process_id"`
	Service     string           `toml:"service"`
	ControlAddr string           `toml:"control_addr"`
	CorsOrigins []string         `toml:"cors_origins"`
	AutoStart   bool             `toml:"auto_start"`
	StatusFile  *bool            `toml:"status_file"`
	Foreground  ForegroundConfig `toml:"foreground"`
	Log         LogConfig        `toml:"log"`
}

type ForegroundConfig struct {
	NotificationID      int    `toml:"notification_id"`
	ChannelID           string `toml:"channel_id"`
	ChannelName         string `toml:"channel_name"`
	Importance          string `toml:"importance"`
	HeartbeatInterval   string `toml:"heartbeat_interval"`
	HeartbeatIntervalMS int64  `toml:"heartbeat_interval_ms"`
}

type LogConfig struct {
	Level string `toml:"level"`
	JSON  bool   `toml:"json"`
}

type ClientConfig struct {
	RuntimeDir  string    `toml:"runtime_dir"`
	ProcessID   string    `toml:"process_id"`
	Service     string    `toml:"service"`
	ControlAddr string    `toml:"control_addr"`
	Name        string    `toml:"name"`
	Count       *int      `toml:"count"`
	Interval    string    `toml:"interval"`
	ReadLimit   int       `toml:"read_limit"`
	Linger      string    `toml:"linger"`
	Attempts    int       `toml:"connect_attempts"`
	Log         LogConfig `toml:"log"`
}

func LoadServerConfig(path string) (ServerConfig, error) {
	var cfg ServerConfig
	if err := loadToml(path, &cfg); err != nil {
		return ServerConfig{}, err
	}
	cfg = cfg.withDefaults()
	if err := ValidateServerConfig(cfg); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

func LoadClientConfig(path string) (ClientConfig, error) {
	var cfg ClientConfig
	if err := loadToml(path, &cfg); err != nil {
		return ClientConfig{}, err
	}
	cfg = cfg.withDefaults()
	if err := ValidateClientConfig(cfg); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func (c ServerConfig) withDefaults() ServerConfig {
	if c.ProcessID == "" {
		c.ProcessID = "remoteflow"
	}
	if c.Service == "" {
		c.Service = "main"
	}
	if c.StatusFile == nil {
		enabled := true
		c.StatusFile = &enabled
	}
	if c.Foreground.NotificationID == 0 {
		c.Foreground.NotificationID = foreground.DefaultNotificationID
	}
	if c.Foreground.ChannelID == "" {
		c.Foreground.ChannelID = foreground.DefaultChannelID
	}
	if c.Foreground.ChannelName == "" {
		c.Foreground.ChannelName = foreground.DefaultChannelName
	}
	if c.Foreground.Importance == "" {
		c.Foreground.Importance = foreground.ImportanceLow.String()
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	return c
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.ProcessID == "" {
		c.ProcessID = "remoteflow"
	}
	if c.Service == "" {
		c.Service = "main"
	}
	if c.Name == "" {
		c.Name = "client"
	}
	if c.Count == nil {
		count := 120
		c.Count = &count
	}
	if c.Interval == "" {
		c.Interval = "1s"
	}
	if c.ReadLimit == 0 {
		c.ReadLimit = 10
	}
	if c.Linger == "" {
		c.Linger = "1s"
	}
	if c.Attempts == 0 {
		c.Attempts = 10
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	return c
}

func ValidateServerConfig(cfg ServerConfig) error {
	if err := validateTarget(cfg.ProcessID, cfg.Service); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if _, err := foreground.ParseImportance(cfg.Foreground.Importance); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if cfg.Foreground.NotificationID < 0 {
		return fmt.Errorf("server config: foreground.notification_id must not be negative")
	}
	if _, err := cfg.Foreground.interval(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	return nil
}

func ValidateClientConfig(cfg ClientConfig) error {
	if err := validateTarget(cfg.ProcessID, cfg.Service); err != nil {
		return fmt.Errorf("client config: %w", err)
	}
	if cfg.Count != nil && *cfg.Count < 0 {
		return fmt.Errorf("client config: count must not be negative")
	}
	if cfg.ReadLimit < 0 {
		return fmt.Errorf("client config: read_limit must not be negative")
	}
	if _, err := parsePositiveDuration("interval", cfg.Interval); err != nil {
		return fmt.Errorf("client config: %w", err)
	}
	if _, err := parsePositiveDuration("linger", cfg.Linger); err != nil {
		return fmt.Errorf("client config: %w", err)
	}
	return nil
}

func validateTarget(processID, service string) error {
	return bridge.Target{ProcessID: processID, Service: service}.Validate()
}

// interval prefers heartbeat_interval_ms over heartbeat_interval; zero means default.
func (f ForegroundConfig) interval() (time.Duration, error) {
	if f.HeartbeatIntervalMS < 0 {
		return 0, fmt.Errorf("foreground.heartbeat_interval_ms must not be negative")
	}
	if f.HeartbeatIntervalMS > 0 {
		return time.Duration(f.HeartbeatIntervalMS) * time.Millisecond, nil
	}
	if strings.TrimSpace(f.HeartbeatInterval) == "" {
		return foreground.DefaultHeartbeatInterval, nil
	}
	return parsePositiveDuration("foreground.heartbeat_interval", f.HeartbeatInterval)
}

func parsePositiveDuration(field, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", field, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", field)
	}
	return d, nil
}
