package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rbright/parley/internal/fsm"
	"github.com/stretchr/testify/require"
)

type fakeIndicator struct {
	recordings   atomic.Int32
	hides        atomic.Int32
	errors       atomic.Int32
	stopCues     atomic.Int32
	completeCues atomic.Int32
	cancelCues   atomic.Int32

	mu       sync.Mutex
	statuses []Status
	previews []string
}

func (f *fakeIndicator) ShowRecording(context.Context) { f.recordings.Add(1) }
func (f *fakeIndicator) UpdatePreview(_ context.Context, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.previews = append(f.previews, text)
}
func (f *fakeIndicator) Status(_ context.Context, st Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, st)
}
func (f *fakeIndicator) ShowError(context.Context, string) { f.errors.Add(1) }
func (f *fakeIndicator) CueStop(context.Context)           { f.stopCues.Add(1) }
func (f *fakeIndicator) CueComplete(context.Context)       { f.completeCues.Add(1) }
func (f *fakeIndicator) CueCancel(context.Context)         { f.cancelCues.Add(1) }
func (f *fakeIndicator) Hide(context.Context)              { f.hides.Add(1) }

func (f *fakeIndicator) hasStatus(kind StatusKind) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, st := range f.statuses {
		if st.Kind == kind {
			return true
		}
	}
	return false
}

func (f *fakeIndicator) lastPreview() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.previews) == 0 {
		return ""
	}
	return f.previews[len(f.previews)-1]
}

// fakeRecognizer emits whatever onStop pushes, then a stopped marker unless
// silentStop is set.
type fakeRecognizer struct {
	events     chan RecognitionEvent
	startErr   error
	stopErr    error
	silentStop bool
	onStop     func(*fakeRecognizer)

	starts atomic.Int32
	stops  atomic.Int32
}

func newFakeRecognizer() *fakeRecognizer {
	return &fakeRecognizer{events: make(chan RecognitionEvent, 64)}
}

func (f *fakeRecognizer) Start(context.Context) error {
	f.starts.Add(1)
	return f.startErr
}

func (f *fakeRecognizer) Stop(context.Context) error {
	f.stops.Add(1)
	if f.onStop != nil {
		f.onStop(f)
	}
	if !f.silentStop {
		f.events <- RecognitionEvent{Kind: RecognitionStopped}
	}
	return f.stopErr
}

func (f *fakeRecognizer) Events() <-chan RecognitionEvent { return f.events }

func (f *fakeRecognizer) final(text string) {
	f.events <- RecognitionEvent{Kind: RecognitionFinal, Text: text, OK: true}
}

func (f *fakeRecognizer) partial(text string) {
	f.events <- RecognitionEvent{Kind: RecognitionPartial, Text: text}
}

type fakeDispatcher struct {
	err error

	mu   sync.Mutex
	sent []string
}

func (f *fakeDispatcher) Dispatch(_ context.Context, utterance string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, utterance)
	return f.err
}

func (f *fakeDispatcher) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

type fakeFloor struct {
	speaking atomic.Bool
}

func (f *fakeFloor) Speaking() bool { return f.speaking.Load() }

var key = Gesture{Source: SourceKey}

func startController(t *testing.T, ctrl *Controller) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func waitResult(t *testing.T, ctrl *Controller) Result {
	t.Helper()
	select {
	case result := <-ctrl.Results():
		return result
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session result")
		return Result{}
	}
}

func newTestController(t *testing.T, opts ...Option) (*Controller, *fakeRecognizer, *fakeDispatcher, *fakeIndicator) {
	t.Helper()
	rec := newFakeRecognizer()
	disp := &fakeDispatcher{}
	ind := &fakeIndicator{}
	opts = append([]Option{WithFlushGrace(50 * time.Millisecond)}, opts...)
	ctrl := NewController(nil, rec, disp, ind, opts...)
	startController(t, ctrl)
	return ctrl, rec, disp, ind
}

func press(t *testing.T, ctrl *Controller, g Gesture) bool {
	t.Helper()
	ok, err := ctrl.Press(context.Background(), g)
	require.NoError(t, err)
	return ok
}

func release(t *testing.T, ctrl *Controller, g Gesture) bool {
	t.Helper()
	ok, err := ctrl.Release(context.Background(), g)
	require.NoError(t, err)
	return ok
}

func TestPressReleaseDispatchesDeduplicatedUtterance(t *testing.T) {
	ctrl, rec, disp, ind := newTestController(t)

	require.True(t, press(t, ctrl, key))
	require.Equal(t, fsm.StateActive, ctrl.State())

	rec.final("Hello world.")
	rec.final("hello world")
	rec.final("How are you?")
	require.True(t, release(t, ctrl, key))

	result := waitResult(t, ctrl)
	require.NoError(t, result.Err)
	require.True(t, result.Dispatched)
	require.Equal(t, "Hello world How are you", result.Utterance)
	require.Equal(t, 2, result.Segments)
	require.Equal(t, 1, result.Duplicates)
	require.Equal(t, fsm.StateIdle, result.State)
	require.Equal(t, []string{"Hello world How are you"}, disp.messages())
	require.Equal(t, int32(1), rec.starts.Load())
	require.Equal(t, int32(1), rec.stops.Load())
	require.Equal(t, int32(1), ind.completeCues.Load())
	require.True(t, ind.hasStatus(StatusSending))
}

func TestLateFinalAfterReleaseIsIncluded(t *testing.T) {
	ctrl, rec, disp, _ := newTestController(t)
	rec.onStop = func(f *fakeRecognizer) { f.final("tail end") }

	require.True(t, press(t, ctrl, key))
	rec.final("first part")
	require.True(t, release(t, ctrl, key))

	result := waitResult(t, ctrl)
	require.Equal(t, "first part tail end", result.Utterance)
	require.Equal(t, []string{"first part tail end"}, disp.messages())
}

// singleStreamRecognizer refuses a second Start while a stream is live, like
// the pipeline recognizer. The first Start blocks until unblock is closed.
type singleStreamRecognizer struct {
	events  chan RecognitionEvent
	unblock chan struct{}

	mu     sync.Mutex
	starts int
	live   bool
}

func (r *singleStreamRecognizer) Start(ctx context.Context) error {
	r.mu.Lock()
	r.starts++
	first := r.starts == 1
	r.mu.Unlock()

	if first {
		select {
		case <-r.unblock:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.live {
		return errors.New("recognizer already started")
	}
	r.live = true
	return nil
}

func (r *singleStreamRecognizer) Stop(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live = false
	return nil
}

func (r *singleStreamRecognizer) Events() <-chan RecognitionEvent { return r.events }

func (r *singleStreamRecognizer) snapshot() (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts, r.live
}

func TestRepressAfterAbandonWaitsForPendingStop(t *testing.T) {
	rec := &singleStreamRecognizer{
		events:  make(chan RecognitionEvent, 8),
		unblock: make(chan struct{}),
	}
	ind := &fakeIndicator{}
	ctrl := NewController(nil, rec, &fakeDispatcher{}, ind, WithFlushGrace(50*time.Millisecond))
	startController(t, ctrl)
	ctx := context.Background()

	require.True(t, press(t, ctrl, key))
	require.NoError(t, ctrl.SetMode(ctx, ModeText))
	abandoned := waitResult(t, ctrl)
	require.True(t, abandoned.Abandoned)

	require.NoError(t, ctrl.SetMode(ctx, ModeVoice))
	require.True(t, press(t, ctrl, key))
	require.Equal(t, fsm.StateActive, ctrl.State())

	close(rec.unblock)

	require.Eventually(t, func() bool {
		starts, live := rec.snapshot()
		return starts == 2 && live
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, fsm.StateActive, ctrl.State())
	require.False(t, ind.hasStatus(StatusStartFailed))
}

func TestFinalAfterStopResolvesIsIncluded(t *testing.T) {
	ctrl, rec, disp, _ := newTestController(t, WithFlushGrace(200*time.Millisecond))
	rec.silentStop = true

	require.True(t, press(t, ctrl, key))
	rec.final("one")
	require.True(t, release(t, ctrl, key))
	require.Eventually(t, func() bool { return rec.stops.Load() == 1 }, time.Second, 2*time.Millisecond)

	rec.final("two")
	rec.events <- RecognitionEvent{Kind: RecognitionStopped}

	result := waitResult(t, ctrl)
	require.True(t, result.Dispatched)
	require.Equal(t, "one two", result.Utterance)
	require.Equal(t, []string{"one two"}, disp.messages())
}

func TestFlushGraceCoversMissingStopMarker(t *testing.T) {
	ctrl, rec, disp, _ := newTestController(t)
	rec.silentStop = true

	require.True(t, press(t, ctrl, key))
	rec.final("still sent")
	require.True(t, release(t, ctrl, key))

	result := waitResult(t, ctrl)
	require.True(t, result.Dispatched)
	require.Equal(t, []string{"still sent"}, disp.messages())
}

func TestPressWhileSpeakingIsIgnored(t *testing.T) {
	floor := &fakeFloor{}
	floor.speaking.Store(true)
	ctrl, rec, _, ind := newTestController(t, WithFloor(floor))

	require.False(t, press(t, ctrl, key))
	require.Equal(t, fsm.StateIdle, ctrl.State())
	require.Equal(t, int32(0), rec.starts.Load())
	require.Equal(t, int32(0), ind.recordings.Load())
}

func TestPressIgnoredInTextModeRepeatAndTextField(t *testing.T) {
	ctrl, rec, _, _ := newTestController(t)

	require.False(t, press(t, ctrl, Gesture{Source: SourceKey, Repeat: true}))
	require.False(t, press(t, ctrl, Gesture{Source: SourceKey, InTextField: true}))

	require.NoError(t, ctrl.SetMode(context.Background(), ModeText))
	require.False(t, press(t, ctrl, key))

	require.Equal(t, fsm.StateIdle, ctrl.State())
	require.Equal(t, int32(0), rec.starts.Load())
}

func TestSecondPressWhileHeldIsIgnored(t *testing.T) {
	ctrl, rec, _, _ := newTestController(t)

	require.True(t, press(t, ctrl, key))
	require.False(t, press(t, ctrl, key))
	require.False(t, press(t, ctrl, Gesture{Source: SourceTouch}))
	require.Eventually(t, func() bool { return rec.starts.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestReleaseAndBlurFlushOnce(t *testing.T) {
	ctrl, rec, disp, _ := newTestController(t)

	require.True(t, press(t, ctrl, key))
	rec.final("only once")
	require.True(t, release(t, ctrl, key))

	blurred, err := ctrl.Blur(context.Background())
	require.NoError(t, err)
	require.False(t, blurred)
	require.False(t, release(t, ctrl, key))

	result := waitResult(t, ctrl)
	require.True(t, result.Dispatched)
	require.Equal(t, []string{"only once"}, disp.messages())
	require.Equal(t, int32(1), rec.stops.Load())
}

func TestBlurFlushesHeldSession(t *testing.T) {
	ctrl, rec, disp, _ := newTestController(t)

	require.True(t, press(t, ctrl, Gesture{Source: SourceTouch}))
	rec.final("focus lost")
	blurred, err := ctrl.Blur(context.Background())
	require.NoError(t, err)
	require.True(t, blurred)

	waitResult(t, ctrl)
	require.Equal(t, []string{"focus lost"}, disp.messages())
}

func TestReleaseFromOtherSourceIsIgnored(t *testing.T) {
	ctrl, _, _, _ := newTestController(t)

	require.True(t, press(t, ctrl, Gesture{Source: SourceTouch}))
	require.False(t, release(t, ctrl, key))
	require.False(t, release(t, ctrl, Gesture{Source: SourceMouse}))
	require.Equal(t, fsm.StateActive, ctrl.State())
	require.True(t, release(t, ctrl, Gesture{Source: SourceTouch}))
}

func TestStartFailureReturnsToIdle(t *testing.T) {
	ctrl, rec, disp, ind := newTestController(t)
	rec.startErr = errors.New("microphone unavailable")

	require.True(t, press(t, ctrl, key))

	result := waitResult(t, ctrl)
	require.ErrorContains(t, result.Err, "microphone unavailable")
	require.Equal(t, fsm.StateIdle, result.State)
	require.Equal(t, int32(1), ind.hides.Load())
	require.True(t, ind.hasStatus(StatusStartFailed))
	require.Empty(t, disp.messages())

	rec.startErr = nil
	require.True(t, press(t, ctrl, key))
}

func TestStopFailureStillSendsBufferedText(t *testing.T) {
	ctrl, rec, disp, ind := newTestController(t)
	rec.stopErr = errors.New("device busy")
	rec.silentStop = true

	require.True(t, press(t, ctrl, key))
	rec.final("best effort")
	require.True(t, release(t, ctrl, key))

	result := waitResult(t, ctrl)
	require.True(t, result.Dispatched)
	require.Equal(t, []string{"best effort"}, disp.messages())
	require.True(t, ind.hasStatus(StatusStopFailed))
}

func TestModeSwitchWhileHeldAbandonsWithoutSending(t *testing.T) {
	ctrl, rec, disp, ind := newTestController(t)

	require.True(t, press(t, ctrl, key))
	rec.final("never sent")
	require.NoError(t, ctrl.SetMode(context.Background(), ModeText))

	result := waitResult(t, ctrl)
	require.True(t, result.Abandoned)
	require.ErrorIs(t, result.Err, ErrAbandoned)
	require.Equal(t, fsm.StateIdle, ctrl.State())
	require.Equal(t, ModeText, ctrl.Mode())
	require.Eventually(t, func() bool { return rec.stops.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return ind.hasStatus(StatusStopped) }, time.Second, 5*time.Millisecond)
	require.Equal(t, int32(1), ind.cancelCues.Load())
	require.Empty(t, disp.messages())

	require.NoError(t, ctrl.SetMode(context.Background(), ModeVoice))
	require.True(t, press(t, ctrl, key))
	require.True(t, release(t, ctrl, key))
	result = waitResult(t, ctrl)
	require.ErrorIs(t, result.Err, ErrNoText)
	require.Empty(t, disp.messages())
}

func TestDispatchFailureDropsUtteranceAndReenablesInput(t *testing.T) {
	ctrl, rec, disp, ind := newTestController(t)
	disp.err = errors.New("backend unreachable")

	require.True(t, press(t, ctrl, key))
	rec.final("lost message")
	require.True(t, release(t, ctrl, key))

	result := waitResult(t, ctrl)
	require.ErrorContains(t, result.Err, "backend unreachable")
	require.False(t, result.Dispatched)
	require.Equal(t, fsm.StateIdle, ctrl.State())
	require.True(t, ind.hasStatus(StatusDispatchFailed))
	require.Equal(t, int32(0), ind.completeCues.Load())

	require.True(t, press(t, ctrl, key))
}

func TestEmptyBufferSendsNothing(t *testing.T) {
	ctrl, rec, disp, ind := newTestController(t)

	require.True(t, press(t, ctrl, key))
	rec.partial("hello wor")
	rec.events <- RecognitionEvent{Kind: RecognitionFinal, Text: "", OK: false}
	require.True(t, release(t, ctrl, key))

	result := waitResult(t, ctrl)
	require.ErrorIs(t, result.Err, ErrNoText)
	require.Empty(t, disp.messages())
	require.True(t, ind.hasStatus(StatusNoText))
}

func TestPartialUpdatesPreviewOnly(t *testing.T) {
	ctrl, rec, disp, ind := newTestController(t)

	require.True(t, press(t, ctrl, key))
	rec.final("committed.")
	rec.partial("and more")
	require.Eventually(t, func() bool { return ind.lastPreview() == "committed and more" }, time.Second, 5*time.Millisecond)

	require.True(t, release(t, ctrl, key))
	waitResult(t, ctrl)
	require.Equal(t, []string{"committed"}, disp.messages())
}

func TestDuplicatedUtteranceIsSquashed(t *testing.T) {
	ctrl, rec, disp, _ := newTestController(t)

	require.True(t, press(t, ctrl, key))
	rec.final("Turn left nowturn left now.")
	require.True(t, release(t, ctrl, key))

	result := waitResult(t, ctrl)
	require.Equal(t, "Turn left now", result.Utterance)
	require.Equal(t, []string{"Turn left now"}, disp.messages())
}

func TestSpaceJoinedDoubledPhraseIsSquashed(t *testing.T) {
	ctrl, rec, disp, _ := newTestController(t)

	require.True(t, press(t, ctrl, key))
	rec.final("bonjour le monde bonjour le monde")
	require.True(t, release(t, ctrl, key))

	result := waitResult(t, ctrl)
	require.Equal(t, "bonjour le monde", result.Utterance)
	require.Equal(t, []string{"bonjour le monde"}, disp.messages())
}

func TestDisableInputAbandonsHeldSession(t *testing.T) {
	ctrl, rec, disp, _ := newTestController(t)

	require.True(t, press(t, ctrl, key))
	rec.final("interrupted")
	require.NoError(t, ctrl.DisableInput(context.Background()))

	result := waitResult(t, ctrl)
	require.True(t, result.Abandoned)
	require.False(t, press(t, ctrl, key))

	require.NoError(t, ctrl.EnableInput(context.Background()))
	require.True(t, press(t, ctrl, key))
	require.Empty(t, disp.messages())
}

func TestListenDispatchesEachFinal(t *testing.T) {
	ctrl, rec, disp, ind := newTestController(t)

	ok, err := ctrl.Listen(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, press(t, ctrl, key))

	rec.final("first message.")
	rec.final("second message")
	require.Eventually(t, func() bool { return len(disp.messages()) == 2 }, time.Second, 5*time.Millisecond)
	require.ElementsMatch(t, []string{"first message", "second message"}, disp.messages())
	require.True(t, ind.hasStatus(StatusRecognized))

	ok, err = ctrl.Unlisten(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Eventually(t, func() bool { return rec.stops.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestSendTextDispatchesTrimmedText(t *testing.T) {
	ctrl, _, disp, _ := newTestController(t, WithMode(ModeText))

	ok, err := ctrl.SendText(context.Background(), "  typed message  ")
	require.NoError(t, err)
	require.True(t, ok)
	require.Eventually(t, func() bool { return len(disp.messages()) == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, "typed message", disp.messages()[0])

	ok, err = ctrl.SendText(context.Background(), "   ")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestControllerNotRunning(t *testing.T) {
	ctrl := NewController(nil, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ctrl.Press(ctx, key)
	require.Error(t, err)
}

func TestRunTwiceFails(t *testing.T) {
	ctrl, _, _, _ := newTestController(t)
	require.Eventually(t, func() bool {
		_, err := ctrl.Blur(context.Background())
		return err == nil
	}, time.Second, 5*time.Millisecond)
	require.ErrorIs(t, ctrl.Run(context.Background()), ErrNotRunning)
}

func TestShutdownAbandonsHeldSession(t *testing.T) {
	rec := newFakeRecognizer()
	ctrl := NewController(nil, rec, &fakeDispatcher{}, &fakeIndicator{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx) }()

	ok, err := ctrl.Press(context.Background(), key)
	require.NoError(t, err)
	require.True(t, ok)

	cancel()
	require.NoError(t, <-done)

	result := waitResult(t, ctrl)
	require.ErrorIs(t, result.Err, context.Canceled)
	require.Equal(t, fsm.StateIdle, ctrl.State())

	_, err = ctrl.Press(context.Background(), key)
	require.ErrorIs(t, err, ErrNotRunning)
}
