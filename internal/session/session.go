// Package session coordinates push-to-talk lifecycle state, recognizer
// events, and utterance dispatch.
//
// All session state is owned by the goroutine running Controller.Run. Input
// edges and IPC commands are posted to it; recognizer start/stop and
// dispatch run on their own goroutines and post their completion back, so
// the loop never blocks on a suspension point.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rbright/parley/internal/fsm"
	"github.com/rbright/parley/internal/observe"
	"github.com/rbright/parley/internal/transcript"
)

const (
	defaultFlushGrace  = 300 * time.Millisecond
	defaultStopTimeout = 3 * time.Second
	resultBuffer       = 32
)

// Mode is the conversation input mode.
type Mode string

const (
	ModeText  Mode = "text"
	ModeVoice Mode = "voice"
)

// Result summarizes one finished push-to-talk session.
type Result struct {
	ID         uint64
	State      fsm.State
	Source     Source
	Utterance  string
	Dispatched bool
	Abandoned  bool
	Err        error
	Segments   int
	Duplicates int
	StartedAt  time.Time
	ReleasedAt time.Time
	FinishedAt time.Time
}

// Indicator is the session-facing live preview and status surface. Calls are
// made from the controller loop and must not block.
type Indicator interface {
	ShowRecording(context.Context)
	UpdatePreview(ctx context.Context, text string)
	Status(context.Context, Status)
	ShowError(context.Context, string)
	CueStop(context.Context)
	CueComplete(context.Context)
	CueCancel(context.Context)
	Hide(context.Context)
}

// noopIndicator preserves session flow when no indicator is wired.
type noopIndicator struct{}

func (noopIndicator) ShowRecording(context.Context)         {}
func (noopIndicator) UpdatePreview(context.Context, string) {}
func (noopIndicator) Status(context.Context, Status)        {}
func (noopIndicator) ShowError(context.Context, string)     {}
func (noopIndicator) CueStop(context.Context)               {}
func (noopIndicator) CueComplete(context.Context)           {}
func (noopIndicator) CueCancel(context.Context)             {}
func (noopIndicator) Hide(context.Context)                  {}

// Floor reports whether reply playback currently holds the audio floor.
type Floor interface {
	Speaking() bool
}

type silentFloor struct{}

func (silentFloor) Speaking() bool { return false }

// Option customizes a Controller.
type Option func(*Controller)

// WithFloor sets the speaking-state source consulted on press.
func WithFloor(floor Floor) Option {
	return func(c *Controller) {
		if floor != nil {
			c.floor = floor
		}
	}
}

// WithMetrics records session metrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithMode sets the initial input mode. The default is ModeVoice.
func WithMode(mode Mode) Option {
	return func(c *Controller) {
		if mode == ModeText || mode == ModeVoice {
			c.mode = mode
		}
	}
}

// WithFlushGrace bounds how long a flush waits for the recognizer stream to
// drain after stop resolves.
func WithFlushGrace(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.flushGrace = d
		}
	}
}

// WithStopTimeout bounds each recognizer stop call.
func WithStopTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.stopTimeout = d
		}
	}
}

// Controller is the single push-to-talk session controller.
type Controller struct {
	logger     *slog.Logger
	recognizer Recognizer
	dispatch   Dispatcher
	indicator  Indicator
	floor      Floor
	metrics    *observe.Metrics

	flushGrace  time.Duration
	stopTimeout time.Duration

	inbox   chan func()
	results chan Result
	stopped chan struct{}
	runOnce sync.Once

	// snapshot for readers outside the loop
	mu         sync.RWMutex
	state      fsm.State
	mode       Mode
	lastStatus Status

	// loop-owned
	runCtx        context.Context
	suspended     bool
	listening     bool
	listenStarted chan struct{}
	stopping      chan struct{}
	recognizing   bool
	buffer        transcript.Buffer
	cur           *activeSession
	nextID        uint64
}

type activeSession struct {
	id         uint64
	source     Source
	startedAt  time.Time
	releasedAt time.Time
	startDone  chan struct{}

	finalizing   bool
	stopResolved bool
	drained      bool
	reading      bool
	duplicates   int
	utterance    string
	grace        *time.Timer
}

// NewController constructs a session controller with safe default fallbacks.
func NewController(
	logger *slog.Logger,
	recognizer Recognizer,
	dispatcher Dispatcher,
	indicator Indicator,
	opts ...Option,
) *Controller {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if recognizer == nil {
		recognizer = nullRecognizer{}
	}
	if dispatcher == nil {
		dispatcher = DispatchFunc(func(context.Context, string) error { return nil })
	}
	if indicator == nil {
		indicator = noopIndicator{}
	}

	c := &Controller{
		logger:      logger,
		recognizer:  recognizer,
		dispatch:    dispatcher,
		indicator:   indicator,
		floor:       silentFloor{},
		flushGrace:  defaultFlushGrace,
		stopTimeout: defaultStopTimeout,
		inbox:       make(chan func(), 64),
		results:     make(chan Result, resultBuffer),
		stopped:     make(chan struct{}),
		state:       fsm.StateIdle,
		mode:        ModeVoice,
		runCtx:      context.Background(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current FSM state snapshot.
func (c *Controller) State() fsm.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Mode returns the current input mode snapshot.
func (c *Controller) Mode() Mode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mode
}

// VoiceMode reports whether the controller is in voice mode.
func (c *Controller) VoiceMode() bool {
	return c.Mode() == ModeVoice
}

// LastStatus returns the most recent status surfaced to the user.
func (c *Controller) LastStatus() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastStatus
}

// Results delivers one Result per finished session.
func (c *Controller) Results() <-chan Result {
	return c.results
}

// Run owns all session state until ctx is cancelled. It must be called once.
func (c *Controller) Run(ctx context.Context) error {
	started := false
	c.runOnce.Do(func() { started = true })
	if !started {
		return ErrNotRunning
	}

	c.runCtx = ctx
	defer close(c.stopped)

	events := c.recognizer.Events()
	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return nil
		case fn := <-c.inbox:
			fn()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			c.onRecognition(ev)
		}
	}
}

// do runs fn on the loop goroutine and waits for it to complete.
func (c *Controller) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case c.inbox <- func() { fn(); close(done) }:
	case <-c.stopped:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-c.stopped:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post schedules fn on the loop without waiting. Used by continuations.
func (c *Controller) post(fn func()) {
	select {
	case c.inbox <- fn:
	case <-c.stopped:
	}
}

// transition applies one FSM event to the controller state.
func (c *Controller) transition(event fsm.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, err := fsm.Transition(c.state, event)
	if err != nil {
		c.logger.Error("rejected session transition", "error", err.Error())
		return err
	}
	c.state = next
	return nil
}

func (c *Controller) setMode(mode Mode) {
	c.mu.Lock()
	c.mode = mode
	c.mu.Unlock()
}

// status records and surfaces a user-facing status.
func (c *Controller) status(kind StatusKind, detail string) {
	st := Status{Kind: kind, Detail: detail}
	c.mu.Lock()
	c.lastStatus = st
	c.mu.Unlock()
	c.indicator.Status(c.runCtx, st)
}

// finish tears the current session down and publishes its result.
func (c *Controller) finish(result Result, outcome string) {
	cur := c.cur
	if cur != nil && cur.grace != nil {
		cur.grace.Stop()
	}
	c.cur = nil
	c.buffer.Reset()

	result.State = c.State()
	result.FinishedAt = time.Now()
	c.metrics.SessionFinished(c.runCtx, outcome)

	select {
	case c.results <- result:
	default:
		c.logger.Warn("session result dropped", "session", result.ID)
	}
}

// shutdown abandons any live session when the loop exits.
func (c *Controller) shutdown() {
	cur := c.cur
	if cur == nil {
		if c.listening || c.recognizing {
			c.listening = false
			c.stopRecognizerDetached(c.listenStarted)
		}
		return
	}

	c.stopRecognizerDetached(cur.startDone)
	cleanupCtx, cancel := context.WithTimeout(context.Background(), 800*time.Millisecond)
	defer cancel()
	c.indicator.Hide(cleanupCtx)

	c.mu.Lock()
	c.state = fsm.StateIdle
	c.mu.Unlock()

	c.finish(c.resultFor(cur, context.Canceled), observe.OutcomeShutdown)
}

// stopRecognizerDetached stops the recognizer without waiting for, or
// reacting to, its completion. The next recognizer start waits on
// c.stopping so a late teardown never stops a newer stream.
func (c *Controller) stopRecognizerDetached(startDone <-chan struct{}) {
	c.recognizing = false
	stopTimeout := c.stopTimeout
	prev := c.stopping
	stopped := make(chan struct{})
	c.stopping = stopped
	go func() {
		defer close(stopped)
		if prev != nil {
			<-prev
		}
		if startDone != nil {
			<-startDone
		}
		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		if err := c.recognizer.Stop(ctx); err != nil {
			c.logger.Warn("recognizer stop failed", "error", err.Error())
		}
	}()
}

func (c *Controller) resultFor(cur *activeSession, err error) Result {
	return Result{
		ID:         cur.id,
		Source:     cur.source,
		Utterance:  cur.utterance,
		Err:        err,
		Segments:   c.buffer.Segments(),
		Duplicates: cur.duplicates,
		StartedAt:  cur.startedAt,
		ReleasedAt: cur.releasedAt,
	}
}
