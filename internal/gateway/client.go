// Package gateway sends utterances to the chat backend and relays spoken
// replies.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

// RoleAssistant marks backend-authored history entries.
const RoleAssistant = "Assistant"

// ErrBackend wraps every failure reported by the chat backend itself.
var ErrBackend = errors.New("chat backend error")

// Message is one conversation history entry.
type Message struct {
	MsgNum    int    `json:"msg_num,omitempty"`
	Role      string `json:"role"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Reply is the backend response to one chat message.
type Reply struct {
	History []Message `json:"history"`
	Error   string    `json:"error,omitempty"`
}

// LastAssistant returns the most recent assistant entry in the history.
func (r Reply) LastAssistant() (Message, bool) {
	for i := len(r.History) - 1; i >= 0; i-- {
		if r.History[i].Role == RoleAssistant {
			return r.History[i], true
		}
	}
	return Message{}, false
}

// Config locates the backend.
type Config struct {
	BaseURL     string
	ChatPath    string
	HistoryPath string
	Token       string
	Timeout     time.Duration
}

// Client talks to the chat backend. The cookie jar keeps the backend session,
// and with it the server-side conversation, across messages.
type Client struct {
	http       *http.Client
	chatURL    string
	historyURL string
	token      string
}

// NewClient validates cfg and builds a client with its own cookie jar.
func NewClient(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse gateway base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("gateway base url %q must use http or https", cfg.BaseURL)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		http:       &http.Client{Jar: jar, Timeout: timeout},
		chatURL:    base.String() + cfg.ChatPath,
		historyURL: base.String() + cfg.HistoryPath,
		token:      strings.TrimSpace(cfg.Token),
	}, nil
}

// Send posts one message and returns the updated conversation.
func (c *Client) Send(ctx context.Context, text string) (Reply, error) {
	body, err := json.Marshal(struct {
		Message string `json:"message"`
	}{Message: text})
	if err != nil {
		return Reply{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.chatURL, bytes.NewReader(body))
	if err != nil {
		return Reply{}, fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var reply Reply
	if err := c.do(req, &reply); err != nil {
		return Reply{}, err
	}
	if reply.Error != "" {
		return reply, fmt.Errorf("%w: %s", ErrBackend, reply.Error)
	}
	return reply, nil
}

// History fetches the conversation held by the backend session.
func (c *Client) History(ctx context.Context) ([]Message, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.historyURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build history request: %w", err)
	}

	var payload struct {
		Success bool      `json:"success"`
		History []Message `json:"history"`
		Error   string    `json:"error"`
	}
	if err := c.do(req, &payload); err != nil {
		return nil, err
	}
	if payload.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrBackend, payload.Error)
	}
	return payload.History, nil
}

// Ping checks that the backend answers HTTP at all.
func (c *Client) Ping(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.historyURL, nil)
	if err != nil {
		return 0, err
	}
	c.authorize(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return resp.StatusCode, nil
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *Client) do(req *http.Request, out any) error {
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", req.URL.Path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var failure struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &failure) == nil && failure.Error != "" {
			return fmt.Errorf("%w: status %d: %s", ErrBackend, resp.StatusCode, failure.Error)
		}
		return fmt.Errorf("%w: status %d", ErrBackend, resp.StatusCode)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}
