package ipc

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// SocketEnv overrides the owner socket path.
const SocketEnv = "PARLEY_SOCKET"

var (
	ErrAlreadyRunning = errors.New("parley owner already running")
	// ErrNotSocket guards against unlinking a file that merely sits on the
	// socket path.
	ErrNotSocket = errors.New("socket path is not a unix socket")
)

// RuntimeSocketPath returns $PARLEY_SOCKET, or parley.sock under
// $XDG_RUNTIME_DIR.
func RuntimeSocketPath() (string, error) {
	if override := strings.TrimSpace(os.Getenv(SocketEnv)); override != "" {
		return override, nil
	}
	runtimeDir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR"))
	if runtimeDir == "" {
		return "", fmt.Errorf("XDG_RUNTIME_DIR is not set (or set %s)", SocketEnv)
	}
	return filepath.Join(runtimeDir, "parley.sock"), nil
}

// Acquire claims the owner socket. A socket left behind by a dead owner is
// removed and the listen retried; a responsive owner yields ErrAlreadyRunning.
func Acquire(ctx context.Context, path string, checkTimeout time.Duration, retries int) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("ensure runtime socket dir: %w", err)
	}

	for attempt := 0; attempt <= retries; attempt++ {
		listener, err := net.Listen("unix", path)
		if err == nil {
			_ = os.Chmod(path, 0o600)
			return listener, nil
		}

		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("listen unix %s: %w", path, err)
		}

		alive, checkErr := OwnerAlive(ctx, path, checkTimeout)
		if alive {
			return nil, ErrAlreadyRunning
		}
		if checkErr != nil {
			return nil, fmt.Errorf("check existing socket %s: %w", path, checkErr)
		}

		if err := removeStaleSocket(path); err != nil {
			return nil, err
		}

		if attempt < retries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(25*(attempt+1)) * time.Millisecond):
			}
		}
	}

	return nil, fmt.Errorf("failed to acquire socket %s after %d retries", path, retries)
}

func removeStaleSocket(path string) error {
	info, err := os.Lstat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat stale socket %s: %w", path, err)
	}
	if info.Mode().Type() != fs.ModeSocket {
		return fmt.Errorf("%w: %s", ErrNotSocket, path)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket %s: %w", path, err)
	}
	return nil
}
