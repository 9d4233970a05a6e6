package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"time"
)

// ErrNoOwner is returned by Forward when no owner is listening on the socket.
var ErrNoOwner = errors.New("no owner listening")

// Send writes req to the owner at path and reads its one-line reply. The
// timeout bounds the dial and the whole exchange.
func Send(ctx context.Context, path string, req Request, timeout time.Duration) (Response, error) {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "unix", path)
	if err != nil {
		return Response{}, err
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return Response{}, fmt.Errorf("set deadline: %w", err)
	}
	return exchange(conn, req)
}

func exchange(conn net.Conn, req Request) (Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("encode request: %w", err)
	}
	if _, err := conn.Write(append(payload, '\n')); err != nil {
		return Response{}, fmt.Errorf("write request: %w", err)
	}

	line, err := bufio.NewReader(io.LimitReader(conn, maxRequestBytes)).ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return Response{}, fmt.Errorf("read response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	if !resp.OK && resp.Error == "" {
		resp.Error = "owner rejected " + req.Command
	}
	return resp, nil
}

// Forward validates req, sends it to the owner, and turns a rejected
// response into an error. It returns ErrNoOwner when nothing listens on path.
func Forward(ctx context.Context, path string, req Request, timeout time.Duration) (Response, error) {
	if err := req.Validate(); err != nil {
		return Response{}, err
	}

	resp, err := Send(ctx, path, req, timeout)
	if err != nil {
		if NoOwner(err) {
			return Response{}, ErrNoOwner
		}
		return Response{}, fmt.Errorf("forward command %q: %w", req.Command, err)
	}
	if !resp.OK {
		return resp, errors.New(resp.Error)
	}
	return resp, nil
}

// OwnerAlive reports whether a responsive owner is currently listening on path.
func OwnerAlive(ctx context.Context, path string, timeout time.Duration) (bool, error) {
	_, err := Send(ctx, path, Request{Command: CommandStatus}, timeout)
	if err == nil {
		return true, nil
	}
	if NoOwner(err) {
		return false, nil
	}
	return false, fmt.Errorf("check socket owner: %w", err)
}

// NoOwner reports dial failures meaning the socket is absent or stale.
func NoOwner(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ECONNREFUSED)
}
