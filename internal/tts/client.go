// Package tts synthesizes reply text to PCM over an ElevenLabs-compatible
// stream-input websocket and plays it.
package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/coder/websocket"
)

const (
	defaultEndpoint = "wss://api.elevenlabs.io"
	defaultModel    = "eleven_flash_v2_5"
)

// Config describes the synthesis service and voice.
type Config struct {
	Endpoint   string
	APIKey     string
	VoiceID    string
	ModelID    string
	SampleRate int
}

// Client opens one websocket per utterance.
type Client struct {
	cfg Config
}

// NewClient validates cfg and returns a client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.VoiceID) == "" {
		return nil, errors.New("tts voice id must not be empty")
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	return &Client{cfg: cfg}, nil
}

// OutputFormat names the raw PCM format requested from the service.
func (c *Client) OutputFormat() string {
	return "pcm_" + strconv.Itoa(c.cfg.SampleRate)
}

// URL renders the stream-input endpoint for the configured voice.
func (c *Client) URL() (string, error) {
	base := strings.TrimRight(strings.TrimSpace(c.cfg.Endpoint), "/")
	if base == "" {
		base = defaultEndpoint
	}
	u, err := url.Parse(base + "/v1/text-to-speech/" + url.PathEscape(c.cfg.VoiceID) + "/stream-input")
	if err != nil {
		return "", fmt.Errorf("parse synthesizer endpoint: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("synthesizer endpoint %q must use ws or wss", base)
	}

	model := c.cfg.ModelID
	if model == "" {
		model = defaultModel
	}
	q := u.Query()
	q.Set("model_id", model)
	q.Set("output_format", c.OutputFormat())
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type textMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XIAPIKey      string         `json:"xi_api_key,omitempty"`
	Flush         bool           `json:"flush,omitempty"`
}

type audioMessage struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// Stream synthesizes text and sends decoded PCM chunks to out until the
// service signals the final chunk. It does not close out.
func (c *Client) Stream(ctx context.Context, text string, out chan<- []byte) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	wsURL, err := c.URL()
	if err != nil {
		return err
	}
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial synthesizer: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(1 << 22)

	messages := []textMessage{
		{
			Text:          " ",
			VoiceSettings: &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75},
			XIAPIKey:      c.cfg.APIKey,
		},
		{Text: text + " ", Flush: true},
		{Text: ""},
	}
	for _, msg := range messages {
		payload, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
			return fmt.Errorf("send synthesis text: %w", err)
		}
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return fmt.Errorf("read synthesis audio: %w", err)
		}

		var msg audioMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Error != "" {
			return fmt.Errorf("synthesizer error: %s", msg.Error)
		}
		if msg.Audio != "" {
			pcm, err := base64.StdEncoding.DecodeString(msg.Audio)
			if err != nil {
				return fmt.Errorf("decode synthesis audio: %w", err)
			}
			select {
			case out <- pcm:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if msg.IsFinal {
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return nil
		}
	}
}
