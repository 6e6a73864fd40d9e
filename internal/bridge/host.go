package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/danmuck/remoteflow/internal/task"
	"github.com/rs/zerolog/log"
)

// Host publishes a local endpoint at a target's socket so that binders can reach it.
// Every accepted connection is served by the endpoint.
type Host struct {
	target Target
	path   string
	ln     net.Listener
	local  *LocalEndpoint
	accept *task.Task

	closeOnce sync.Once
}

// Listen serves local at target. A socket file left behind by a dead process is removed;
// a live one fails with ErrAddressInUse.
func Listen(ctx context.Context, locator Locator, target Target, local *LocalEndpoint) (*Host, error) {
	path, err := locator.SocketPath(target)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("bridge: create runtime dir: %w", err)
	}
	if err := removeStaleSocket(path); err != nil {
		return nil, err
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("bridge: listen %s: %w", path, err)
	}

	h := &Host{
		target: target,
		path:   path,
		ln:     ln,
		local:  local,
	}
	h.accept = task.Go(ctx, "bridge.host.accept", h.acceptLoop)
	log.Info().
		Str("target", target.String()).
		Str("path", path).
		Str("endpoint", local.Ref().ID).
		Msg("bridge.Host listening")
	return h, nil
}

func (h *Host) Path() string {
	return h.path
}

func (h *Host) Target() Target {
	return h.target
}

// Done is closed once the host stopped accepting.
func (h *Host) Done() <-chan struct{} {
	return h.accept.Done()
}

// Close stops accepting, closes served connections and removes the socket file.
func (h *Host) Close() error {
	var err error
	h.closeOnce.Do(func() {
		err = h.ln.Close()
		h.accept.Stop()
		h.local.closeConns()
		if rmErr := os.Remove(h.path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
			err = rmErr
		}
		log.Info().Str("target", h.target.String()).Msg("bridge.Host closed")
	})
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return err
}

func (h *Host) acceptLoop(ctx context.Context) {
	stop := context.AfterFunc(ctx, func() { _ = h.ln.Close() })
	defer stop()

	var served sync.WaitGroup
	defer served.Wait()
	for {
		conn, err := h.ln.Accept()
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
				log.Warn().Str("target", h.target.String()).Err(err).Msg("bridge.Host accept failed")
			}
			return
		}
		log.Debug().Str("target", h.target.String()).Msg("bridge.Host accepted connection")
		served.Add(1)
		go func() {
			defer served.Done()
			_ = h.local.Serve(ctx, conn)
		}()
	}
}

func removeStaleSocket(path string) error {
	info, err := os.Lstat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("bridge: %s exists and is not a socket", path)
	}
	conn, err := net.DialTimeout("unix", path, 250*time.Millisecond)
	if err == nil {
		_ = conn.Close()
		return fmt.Errorf("%w: %s", ErrAddressInUse, path)
	}
	return os.Remove(path)
}
