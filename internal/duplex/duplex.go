// Package duplex keeps reply playback and microphone input mutually
// exclusive.
package duplex

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rbright/parley/internal/observe"
)

const resumeTimeout = 2 * time.Second

// Synthesizer plays text aloud and returns when playback has ended.
type Synthesizer interface {
	Speak(context.Context, string) error
}

// Input is the push-to-talk surface suspended while speaking.
type Input interface {
	DisableInput(context.Context) error
	EnableInput(context.Context) error
	VoiceMode() bool
}

// Coordinator owns the speaking flag.
type Coordinator struct {
	logger  *slog.Logger
	synth   Synthesizer
	metrics *observe.Metrics

	speaking atomic.Bool
	playMu   sync.Mutex

	inputMu sync.RWMutex
	input   Input
}

// New constructs a coordinator. Bind must be called before the first Speak
// for input to be suspended during playback.
func New(logger *slog.Logger, synth Synthesizer, metrics *observe.Metrics) *Coordinator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Coordinator{logger: logger, synth: synth, metrics: metrics}
}

// Bind attaches the input surface to suspend during playback.
func (c *Coordinator) Bind(input Input) {
	c.inputMu.Lock()
	defer c.inputMu.Unlock()
	c.input = input
}

// Speaking reports whether a reply is currently being played.
func (c *Coordinator) Speaking() bool {
	return c.speaking.Load()
}

// Speak plays text with input disabled. Input is re-enabled afterwards,
// whether playback succeeded or not, but only while still in voice mode.
func (c *Coordinator) Speak(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" || c.synth == nil {
		return nil
	}

	c.playMu.Lock()
	defer c.playMu.Unlock()

	input := c.boundInput()
	c.speaking.Store(true)
	if input != nil {
		if err := input.DisableInput(ctx); err != nil {
			c.logger.Warn("disable input before playback failed", "error", err.Error())
		}
	}

	started := time.Now()
	err := c.synth.Speak(ctx, text)
	c.metrics.RecordSpeech(ctx, time.Since(started), err)
	c.speaking.Store(false)

	if input != nil && input.VoiceMode() {
		resumeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), resumeTimeout)
		if rerr := input.EnableInput(resumeCtx); rerr != nil {
			c.logger.Warn("re-enable input after playback failed", "error", rerr.Error())
		}
		cancel()
	}

	if err != nil {
		c.logger.Error("reply playback failed", "error", err.Error())
		return fmt.Errorf("speak reply: %w", err)
	}
	return nil
}

func (c *Coordinator) boundInput() Input {
	c.inputMu.RLock()
	defer c.inputMu.RUnlock()
	return c.input
}
