package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rbright/parley/internal/fsm"
	"github.com/rbright/parley/internal/observe"
)

// Source identifies the input surface that produced an edge.
type Source string

const (
	SourceKey   Source = "key"
	SourceTouch Source = "touch"
	SourceMouse Source = "mouse"
)

// ParseSource maps a CLI/IPC source name to a Source. Empty means key.
func ParseSource(raw string) (Source, error) {
	switch Source(strings.ToLower(strings.TrimSpace(raw))) {
	case "", SourceKey:
		return SourceKey, nil
	case SourceTouch:
		return SourceTouch, nil
	case SourceMouse:
		return SourceMouse, nil
	default:
		return "", fmt.Errorf("unknown input source %q", raw)
	}
}

// ParseMode maps a CLI/IPC mode name to a Mode.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeText:
		return ModeText, nil
	case ModeVoice:
		return ModeVoice, nil
	default:
		return "", fmt.Errorf("unknown mode %q (expected text or voice)", raw)
	}
}

// Gesture is one press or release edge.
type Gesture struct {
	Source Source
	// Repeat marks auto-repeated key-down events.
	Repeat bool
	// InTextField marks key edges delivered while a text input has focus.
	InTextField bool
}

// Press starts a session when push-to-talk is enabled. It reports whether
// the press was accepted; rejected presses are silent no-ops.
func (c *Controller) Press(ctx context.Context, g Gesture) (bool, error) {
	var accepted bool
	err := c.do(ctx, func() { accepted = c.press(g) })
	return accepted, err
}

// Release flushes the session held by the same source.
func (c *Controller) Release(ctx context.Context, g Gesture) (bool, error) {
	var accepted bool
	err := c.do(ctx, func() { accepted = c.release(g) })
	return accepted, err
}

// Blur flushes any held session, whichever source holds it.
func (c *Controller) Blur(ctx context.Context) (bool, error) {
	var accepted bool
	err := c.do(ctx, func() { accepted = c.blur() })
	return accepted, err
}

// SetMode switches between text and voice input. Leaving voice mode abandons
// a held session without sending it.
func (c *Controller) SetMode(ctx context.Context, mode Mode) error {
	return c.do(ctx, func() { c.switchMode(mode) })
}

// DisableInput suspends push-to-talk while a reply is being spoken and stops
// any live recognition.
func (c *Controller) DisableInput(ctx context.Context) error {
	return c.do(ctx, func() {
		c.suspended = true
		if c.State() == fsm.StateActive {
			c.abandon()
		}
		c.stopListening()
	})
}

// EnableInput lifts the suspension set by DisableInput.
func (c *Controller) EnableInput(ctx context.Context) error {
	return c.do(ctx, func() { c.suspended = false })
}

// Listen starts continuous recognition outside push-to-talk; each final is
// sent as its own message.
func (c *Controller) Listen(ctx context.Context) (bool, error) {
	var accepted bool
	err := c.do(ctx, func() { accepted = c.listen() })
	return accepted, err
}

// Unlisten stops continuous recognition.
func (c *Controller) Unlisten(ctx context.Context) (bool, error) {
	var accepted bool
	err := c.do(ctx, func() {
		accepted = c.stopListening()
	})
	return accepted, err
}

// SendText dispatches typed text through the same gateway as speech.
func (c *Controller) SendText(ctx context.Context, text string) (bool, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return false, nil
	}
	err := c.do(ctx, func() {
		c.status(StatusSending, "")
		c.dispatchStandalone(text)
	})
	return err == nil, err
}

func (c *Controller) pttEnabled() bool {
	return c.Mode() == ModeVoice && !c.suspended
}

func (c *Controller) press(g Gesture) bool {
	switch {
	case g.Repeat:
		return false
	case g.Source == SourceKey && g.InTextField:
		return false
	case !c.pttEnabled() || c.floor.Speaking():
		return false
	case c.listening:
		return false
	case c.State() != fsm.StateIdle:
		return false
	}

	if err := c.transition(fsm.EventPress); err != nil {
		return false
	}

	c.nextID++
	cur := &activeSession{
		id:        c.nextID,
		source:    g.Source,
		startedAt: time.Now(),
		startDone: make(chan struct{}),
	}
	c.cur = cur
	c.buffer.Reset()
	c.metrics.SessionStarted(c.runCtx)
	c.indicator.ShowRecording(c.runCtx)
	c.logger.Debug("ptt session started", "session", cur.id, "source", string(g.Source))

	ctx := c.runCtx
	stopping := c.stopping
	go func() {
		err := c.startRecognizer(ctx, stopping)
		c.post(func() { c.onStartResolved(cur.id, err) })
		close(cur.startDone)
	}()
	return true
}

// startRecognizer waits for a pending teardown stop before starting a new
// stream.
func (c *Controller) startRecognizer(ctx context.Context, stopping <-chan struct{}) error {
	if stopping != nil {
		select {
		case <-stopping:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return c.recognizer.Start(ctx)
}

func (c *Controller) onStartResolved(id uint64, err error) {
	cur := c.cur
	if err == nil {
		if cur != nil && cur.id == id {
			c.recognizing = true
			c.status(StatusRecording, "")
		}
		return
	}

	c.logger.Error("recognizer start failed", "session", id, "error", err.Error())
	c.status(StatusStartFailed, err.Error())
	if cur == nil || cur.id != id {
		return
	}

	// No stream was opened, so no drain marker will ever arrive.
	cur.drained = true
	if c.State() != fsm.StateActive {
		return
	}

	if terr := c.transition(fsm.EventStartFailed); terr != nil {
		return
	}
	c.indicator.Hide(c.runCtx)
	c.indicator.ShowError(c.runCtx, "")
	c.finish(c.resultFor(cur, fmt.Errorf("start recognizer: %w", err)), observe.OutcomeStartFailed)
}

func (c *Controller) release(g Gesture) bool {
	cur := c.cur
	if cur == nil || cur.finalizing || c.State() != fsm.StateActive {
		return false
	}
	if g.Source == SourceKey && g.InTextField {
		return false
	}
	if g.Source != cur.source {
		return false
	}
	return c.beginFlush(fsm.EventRelease)
}

func (c *Controller) blur() bool {
	cur := c.cur
	if cur == nil || cur.finalizing || c.State() != fsm.StateActive {
		return false
	}
	return c.beginFlush(fsm.EventBlur)
}

func (c *Controller) switchMode(mode Mode) {
	if mode == c.Mode() {
		return
	}
	c.setMode(mode)

	if mode == ModeVoice {
		// A suspension left behind by playback that ended in text mode.
		if c.suspended && !c.floor.Speaking() {
			c.suspended = false
		}
		c.status(StatusVoiceMode, "")
		return
	}

	if c.State() == fsm.StateActive {
		c.abandon()
	}
	c.stopListening()
	c.status(StatusTextMode, "")
}

// abandon tears down a held session without sending anything.
func (c *Controller) abandon() {
	cur := c.cur
	if cur == nil {
		return
	}
	if err := c.transition(fsm.EventAbandon); err != nil {
		return
	}

	c.stopRecognizerDetached(cur.startDone)
	c.indicator.Hide(c.runCtx)
	c.indicator.CueCancel(c.runCtx)
	c.logger.Info("ptt session abandoned", "session", cur.id)

	result := c.resultFor(cur, ErrAbandoned)
	result.Abandoned = true
	c.finish(result, observe.OutcomeAbandoned)
}

func (c *Controller) listen() bool {
	if c.listening || c.State() != fsm.StateIdle || c.floor.Speaking() || c.suspended {
		return false
	}
	c.listening = true
	started := make(chan struct{})
	c.listenStarted = started

	ctx := c.runCtx
	stopping := c.stopping
	go func() {
		err := c.startRecognizer(ctx, stopping)
		c.post(func() { c.onListenStarted(err) })
		close(started)
	}()
	return true
}

func (c *Controller) stopListening() bool {
	if !c.listening {
		return false
	}
	c.listening = false
	c.stopRecognizerDetached(c.listenStarted)
	return true
}

func (c *Controller) onListenStarted(err error) {
	if err != nil {
		c.listening = false
		c.logger.Error("recognizer start failed", "error", err.Error())
		c.status(StatusStartFailed, err.Error())
		return
	}
	if !c.listening {
		// stopped before the start resolved; the pending stop covers it
		return
	}
	c.recognizing = true
	c.status(StatusListening, "")
}
