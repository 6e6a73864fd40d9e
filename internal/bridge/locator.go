package bridge

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var targetNamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Target names a counterpart: the process that hosts it and the service inside it.
type Target struct {
	ProcessID string
	Service   string
}

func (t Target) String() string {
	return t.ProcessID + "/" + t.Service
}

func (t Target) Validate() error {
	if err := validateTargetName("process_id", t.ProcessID); err != nil {
		return err
	}
	return validateTargetName("service", t.Service)
}

func validateTargetName(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("%w: missing %s", ErrInvalidTarget, field)
	}
	if v == "." || v == ".." || !targetNamePattern.MatchString(v) {
		return fmt.Errorf("%w: %s=%q", ErrInvalidTarget, field, v)
	}
	return nil
}

// Locator resolves targets to Unix socket paths below one runtime directory:
// <runtimeDir>/<processID>/<service>.sock.
type Locator struct {
	RuntimeDir string
}

func NewLocator(runtimeDir string) Locator {
	if strings.TrimSpace(runtimeDir) == "" {
		runtimeDir = DefaultRuntimeDir()
	}
	return Locator{RuntimeDir: runtimeDir}
}

// DefaultRuntimeDir prefers $XDG_RUNTIME_DIR and falls back to a per-user temp directory.
func DefaultRuntimeDir() string {
	if dir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR")); dir != "" {
		return filepath.Join(dir, "remoteflow")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("remoteflow-%d", os.Getuid()))
}

func (l Locator) ProcessDir(processID string) (string, error) {
	if err := validateTargetName("process_id", processID); err != nil {
		return "", err
	}
	return filepath.Join(l.RuntimeDir, processID), nil
}

func (l Locator) SocketPath(t Target) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	return filepath.Join(l.RuntimeDir, t.ProcessID, t.Service+".sock"), nil
}
