package foreground

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog/log"
)

type Importance int

const (
	ImportanceMin Importance = iota
	ImportanceLow
	ImportanceDefault
	ImportanceHigh
)

func (i Importance) String() string {
	switch i {
	case ImportanceMin:
		return "min"
	case ImportanceLow:
		return "low"
	case ImportanceDefault:
		return "default"
	case ImportanceHigh:
		return "high"
	default:
		return fmt.Sprintf("importance(%d)", int(i))
	}
}

// ParseImportance accepts the names produced by Importance.String.
func ParseImportance(raw string) (Importance, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "min":
		return ImportanceMin, nil
	case "low", "":
		return ImportanceLow, nil
	case "default":
		return ImportanceDefault, nil
	case "high":
		return ImportanceHigh, nil
	default:
		return ImportanceLow, fmt.Errorf("foreground: unknown importance %q", raw)
	}
}

// Descriptor is the user-visible indicator shown while the process is elevated.
type Descriptor struct {
	Title     string `toml:"title"`
	Icon      string `toml:"icon"`
	TapTarget string `toml:"tap_target"`
	Ongoing   bool   `toml:"ongoing"`
}

// ElevationRequest is what the host environment receives when the process asks
// to run in the foreground.
type ElevationRequest struct {
	NotificationID int        `toml:"notification_id"`
	ChannelID      string     `toml:"channel_id"`
	ChannelName    string     `toml:"channel_name"`
	Importance     string     `toml:"importance"`
	Descriptor     Descriptor `toml:"descriptor"`
}

// Elevator is the host environment's foreground facility.
type Elevator interface {
	Elevate(ctx context.Context, req ElevationRequest) error
	Demote(ctx context.Context, notificationID int) error
}

// NopElevator accepts every request.
type NopElevator struct{}

func (NopElevator) Elevate(context.Context, ElevationRequest) error { return nil }
func (NopElevator) Demote(context.Context, int) error               { return nil }

// FileElevator advertises elevation as a status file that supervisors and the
// control surface can read. Demote removes it.
type FileElevator struct {
	Path string

	mu sync.Mutex
}

func NewFileElevator(path string) *FileElevator {
	return &FileElevator{Path: path}
}

type statusFile struct {
	PID       int              `toml:"pid"`
	Since     time.Time        `toml:"since"`
	Elevation ElevationRequest `toml:"elevation"`
}

func (e *FileElevator) Elevate(ctx context.Context, req ElevationRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(e.Path), 0o700); err != nil {
		return fmt.Errorf("foreground: create status dir: %w", err)
	}
	tmp := e.Path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("foreground: open status file: %w", err)
	}
	status := statusFile{PID: os.Getpid(), Since: time.Now().UTC(), Elevation: req}
	if err := toml.NewEncoder(f).Encode(status); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("foreground: encode status file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, e.Path); err != nil {
		return fmt.Errorf("foreground: publish status file: %w", err)
	}
	log.Debug().Str("path", e.Path).Int("notification_id", req.NotificationID).Msg("foreground.FileElevator elevated")
	return nil
}

func (e *FileElevator) Demote(ctx context.Context, notificationID int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := os.Remove(e.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("foreground: remove status file: %w", err)
	}
	log.Debug().Str("path", e.Path).Int("notification_id", notificationID).Msg("foreground.FileElevator demoted")
	return nil
}

// ReadStatus loads a status file written by FileElevator. It reports false when the
// process is not elevated.
func ReadStatus(path string) (ElevationRequest, bool, error) {
	var status statusFile
	if _, err := toml.DecodeFile(path, &status); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ElevationRequest{}, false, nil
		}
		return ElevationRequest{}, false, err
	}
	return status.Elevation, true, nil
}
