package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

const (
	// requestReadTimeout bounds how long a client may take to send its line.
	requestReadTimeout = 2 * time.Second
	responseTimeout    = 2 * time.Second
	maxRequestBytes    = 64 << 10
)

// Handler processes one IPC command request.
type Handler interface {
	Handle(context.Context, Request) Response
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, Request) Response

func (f HandlerFunc) Handle(ctx context.Context, req Request) Response {
	return f(ctx, req)
}

// Serve accepts unix-socket clients until context cancellation or listener
// close. Each connection carries one validated request and one response.
func Serve(ctx context.Context, listener net.Listener, handler Handler) error {
	var wg sync.WaitGroup

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				wg.Wait()
				return nil
			}
			return fmt.Errorf("accept IPC connection: %w", err)
		}

		wg.Add(1)
		go func(c net.Conn) {
			defer wg.Done()
			defer c.Close()
			serveConn(ctx, c, handler)
		}(conn)
	}
}

func serveConn(ctx context.Context, conn net.Conn, handler Handler) {
	req, err := readRequest(conn)
	var resp Response
	if err != nil {
		resp = Response{OK: false, Error: err.Error()}
	} else {
		resp = handler.Handle(ctx, req)
	}

	// The handler may block on the session loop; only the reply write is bounded.
	_ = conn.SetWriteDeadline(time.Now().Add(responseTimeout))
	_ = json.NewEncoder(conn).Encode(resp)
}

func readRequest(conn net.Conn) (Request, error) {
	if err := conn.SetReadDeadline(time.Now().Add(requestReadTimeout)); err != nil {
		return Request{}, fmt.Errorf("set read deadline: %w", err)
	}

	reader := bufio.NewReader(io.LimitReader(conn, maxRequestBytes))
	line, err := reader.ReadBytes('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) >= maxRequestBytes {
			return Request{}, fmt.Errorf("read request: exceeds %d bytes", maxRequestBytes)
		}
		return Request{}, fmt.Errorf("read request: %w", err)
	}

	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return Request{}, fmt.Errorf("decode request: %w", err)
	}
	if err := req.Validate(); err != nil {
		return Request{}, err
	}
	return req, nil
}
