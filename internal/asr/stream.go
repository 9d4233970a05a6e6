// Package asr streams PCM audio to a Deepgram-compatible recognition service
// over a websocket and surfaces interim and final transcripts.
package asr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	defaultEndpoint   = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	defaultLanguage   = "en"
	defaultSampleRate = 16000

	closeStreamMessage = `{"type":"CloseStream"}`
)

// ErrStreamClosed is returned when audio is sent after CloseSend or Cancel.
var ErrStreamClosed = errors.New("recognition stream closed for sending")

// Config describes one recognition stream.
type Config struct {
	Endpoint    string
	APIKey      string
	Model       string
	Language    string
	SampleRate  int
	Punctuate   bool
	Keywords    []string
	DialTimeout time.Duration
}

// Transcript is one recognized hypothesis. Finals may carry empty text.
type Transcript struct {
	Text  string
	Final bool
}

// Stream is a live recognition session.
type Stream struct {
	conn    *websocket.Conn
	results chan Transcript
	done    chan struct{}

	mu         sync.Mutex
	closedSend bool
	canceled   bool
	recvErr    error
}

// BuildURL renders the listen endpoint with query parameters for cfg.
func BuildURL(cfg Config) (string, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse recognizer endpoint: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("recognizer endpoint %q must use ws or wss", endpoint)
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	language := cfg.Language
	if language == "" {
		language = defaultLanguage
	}
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = defaultSampleRate
	}

	q := u.Query()
	q.Set("model", model)
	q.Set("language", language)
	q.Set("punctuate", strconv.FormatBool(cfg.Punctuate))
	q.Set("interim_results", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(rate))
	q.Set("channels", "1")
	for _, keyword := range cfg.Keywords {
		if keyword = strings.TrimSpace(keyword); keyword != "" {
			q.Add("keywords", keyword)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Dial opens a recognition stream and starts its receive loop.
func Dial(ctx context.Context, cfg Config) (*Stream, error) {
	wsURL, err := BuildURL(cfg)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if cfg.APIKey != "" {
		header.Set("Authorization", "Token "+cfg.APIKey)
	}

	dialCtx := ctx
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}

	conn, _, err := websocket.Dial(dialCtx, wsURL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, fmt.Errorf("dial recognizer: %w", err)
	}

	s := &Stream{
		conn:    conn,
		results: make(chan Transcript, 64),
		done:    make(chan struct{}),
	}
	go s.receiveLoop(ctx)
	return s, nil
}

// Results delivers transcripts until the service closes the stream.
func (s *Stream) Results() <-chan Transcript {
	return s.results
}

// Done is closed once the receive loop exits.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Err reports the receive failure, if any, once Done is closed.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recvErr
}

// SendAudio sends one chunk of linear16 PCM.
func (s *Stream) SendAudio(ctx context.Context, chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	s.mu.Lock()
	closed := s.closedSend
	recvErr := s.recvErr
	s.mu.Unlock()

	if closed {
		return ErrStreamClosed
	}
	if recvErr != nil {
		return fmt.Errorf("stream receive loop failed: %w", recvErr)
	}
	return s.conn.Write(ctx, websocket.MessageBinary, chunk)
}

// CloseSend asks the service to flush pending results and waits for it to
// close the stream.
func (s *Stream) CloseSend(ctx context.Context) error {
	s.mu.Lock()
	already := s.closedSend
	s.closedSend = true
	s.mu.Unlock()

	if !already {
		if err := s.conn.Write(ctx, websocket.MessageText, []byte(closeStreamMessage)); err != nil {
			s.Cancel()
			return fmt.Errorf("close recognition stream: %w", err)
		}
	}

	select {
	case <-s.done:
	case <-ctx.Done():
		s.Cancel()
		return ctx.Err()
	}
	return s.Err()
}

// Cancel drops the connection without waiting for pending results.
func (s *Stream) Cancel() {
	s.mu.Lock()
	s.closedSend = true
	s.canceled = true
	s.mu.Unlock()
	_ = s.conn.CloseNow()
}

func (s *Stream) receiveLoop(ctx context.Context) {
	defer close(s.done)
	defer close(s.results)

	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			s.mu.Lock()
			if !s.canceled && !isNormalClose(err) {
				s.recvErr = err
			}
			s.mu.Unlock()
			return
		}

		transcript, ok, perr := parseMessage(msg)
		if perr != nil {
			s.mu.Lock()
			s.recvErr = perr
			s.mu.Unlock()
			_ = s.conn.Close(websocket.StatusInternalError, "recognizer error")
			return
		}
		if !ok {
			continue
		}
		select {
		case s.results <- transcript:
		case <-ctx.Done():
			return
		}
	}
}

func isNormalClose(err error) bool {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return false
}

type message struct {
	Type        string `json:"type"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
	Channel     struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
	Description string `json:"description"`
	Message     string `json:"message"`
}

// parseMessage maps one service message to a transcript. ok is false for
// messages that carry no transcript.
func parseMessage(data []byte) (Transcript, bool, error) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Transcript{}, false, nil
	}

	switch msg.Type {
	case "Results":
	case "Error":
		detail := msg.Description
		if detail == "" {
			detail = msg.Message
		}
		return Transcript{}, false, fmt.Errorf("recognizer error: %s", detail)
	default:
		return Transcript{}, false, nil
	}

	if len(msg.Channel.Alternatives) == 0 {
		return Transcript{}, false, nil
	}
	text := strings.TrimSpace(msg.Channel.Alternatives[0].Transcript)
	if text == "" && !msg.IsFinal {
		return Transcript{}, false, nil
	}
	// An empty final closes a segment with no recognized speech.
	return Transcript{Text: text, Final: msg.IsFinal}, true, nil
}
