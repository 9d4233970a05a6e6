// Package indicator renders session state as desktop notifications and
// audio cues.
package indicator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rbright/parley/internal/config"
	"github.com/rbright/parley/internal/hypr"
	"github.com/rbright/parley/internal/session"
)

const (
	queueSize        = 32
	opTimeout        = 400 * time.Millisecond
	recordingTimeout = 300000
	statusTimeout    = 2000
	replyTimeout     = 8000
	maxReplyRunes    = 240

	hyprIconInfo  = 1
	hyprIconError = 3

	colorRecording = "rgb(89b4fa)"
	colorStatus    = "rgb(cba6f7)"
	colorError     = "rgb(f38ba8)"
	colorReply     = "rgb(a6e3a1)"
)

var _ session.Indicator = (*HyprNotify)(nil)

// HyprNotify is the indicator used by the runtime controller. It routes
// notifications via Hyprland or desktop DBus based on config backend.
//
// Every method returns immediately. Notifications are applied in order by
// one worker goroutine; when the queue is full the update is dropped.
type HyprNotify struct {
	cfg      config.IndicatorConfig
	logger   *slog.Logger
	messages messages

	queue     chan func(context.Context)
	closed    chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	mu                    sync.Mutex
	desktopNotificationID uint32
	preview               string
	previewQueued         bool

	soundMu sync.Mutex
}

// NewHyprNotify creates an indicator from config and starts its worker.
func NewHyprNotify(cfg config.IndicatorConfig, logger *slog.Logger) *HyprNotify {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	h := &HyprNotify{
		cfg:      cfg,
		logger:   logger,
		messages: indicatorMessagesFromEnv(),
		queue:    make(chan func(context.Context), queueSize),
		closed:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	go h.work()
	return h
}

// Close applies queued updates and stops the worker.
func (h *HyprNotify) Close() {
	h.closeOnce.Do(func() { close(h.closed) })
	<-h.done
}

// ShowRecording signals recording start and emits the start cue.
func (h *HyprNotify) ShowRecording(context.Context) {
	h.playCue(cueStart)
	h.enqueue(func(ctx context.Context) error {
		return h.notify(ctx, hyprIconInfo, recordingTimeout, colorRecording, h.messages.recording)
	})
}

// UpdatePreview shows the live transcript while recording. Bursts of
// updates collapse into the latest one.
func (h *HyprNotify) UpdatePreview(_ context.Context, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	h.mu.Lock()
	h.preview = text
	queued := h.previewQueued
	h.previewQueued = true
	h.mu.Unlock()
	if queued {
		return
	}

	ok := h.enqueue(func(ctx context.Context) error {
		h.mu.Lock()
		text := h.preview
		h.previewQueued = false
		h.mu.Unlock()
		return h.replace(ctx, hyprIconInfo, recordingTimeout, colorRecording, h.messages.recording+" "+text)
	})
	if !ok {
		h.mu.Lock()
		h.previewQueued = false
		h.mu.Unlock()
	}
}

// Status renders one status update in the user's locale.
func (h *HyprNotify) Status(_ context.Context, st session.Status) {
	text, sev, ok := h.messages.render(st)
	if !ok {
		return
	}
	if sev == severityError {
		h.showError(text)
		return
	}
	h.enqueue(func(ctx context.Context) error {
		return h.notify(ctx, hyprIconInfo, statusTimeout, colorStatus, text)
	})
}

// ShowReply shows the assistant's reply, shortened to fit a notification.
func (h *HyprNotify) ShowReply(text string) {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return
	}
	if runes := []rune(text); len(runes) > maxReplyRunes {
		text = strings.TrimSpace(string(runes[:maxReplyRunes-1])) + "…"
	}
	line := strings.ReplaceAll(h.messages.reply, "%s", text)
	h.enqueue(func(ctx context.Context) error {
		return h.notify(ctx, hyprIconInfo, replyTimeout, colorReply, line)
	})
}

// ShowError displays an error-state indicator message.
func (h *HyprNotify) ShowError(_ context.Context, text string) {
	if text == "" {
		text = h.messages.errorText
	}
	h.showError(text)
}

// CueStop emits the stop cue.
func (h *HyprNotify) CueStop(context.Context) {
	h.playCue(cueStop)
}

// CueComplete emits the delivered cue.
func (h *HyprNotify) CueComplete(context.Context) {
	h.playCue(cueComplete)
}

// CueCancel emits the cancel cue.
func (h *HyprNotify) CueCancel(context.Context) {
	h.playCue(cueCancel)
}

// Hide dismisses the active indicator surface.
func (h *HyprNotify) Hide(context.Context) {
	h.enqueue(h.dismiss)
}

func (h *HyprNotify) showError(text string) {
	timeout := h.cfg.ErrorTimeoutMS
	if timeout <= 0 {
		timeout = 1200
	}
	h.enqueue(func(ctx context.Context) error {
		return h.notify(ctx, hyprIconError, timeout, colorError, text)
	})
}

// enqueue hands fn to the worker without blocking.
func (h *HyprNotify) enqueue(fn func(context.Context) error) bool {
	if !h.cfg.Enable {
		return false
	}
	select {
	case <-h.closed:
		return false
	default:
	}

	select {
	case h.queue <- func(ctx context.Context) {
		if err := fn(ctx); err != nil {
			h.log("indicator dispatch failed", err)
		}
	}:
		return true
	default:
		h.logger.Debug("indicator queue full; update dropped")
		return false
	}
}

func (h *HyprNotify) work() {
	defer close(h.done)
	for {
		select {
		case op := <-h.queue:
			h.run(op)
		case <-h.closed:
			for {
				select {
				case op := <-h.queue:
					h.run(op)
				default:
					return
				}
			}
		}
	}
}

// run executes an indicator operation with a bounded timeout.
func (h *HyprNotify) run(op func(context.Context)) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	op(ctx)
}

func (h *HyprNotify) desktop() bool {
	return strings.EqualFold(strings.TrimSpace(h.cfg.Backend), "desktop")
}

// notify dispatches indicator output through the configured backend.
func (h *HyprNotify) notify(ctx context.Context, icon int, timeoutMS int, color string, text string) error {
	if h.desktop() {
		return h.notifyDesktop(ctx, icon, timeoutMS, text)
	}
	return hypr.Notify(ctx, icon, timeoutMS, color, text)
}

// replace swaps the visible notification for a new one. Hyprland stacks
// notifications, so the old one is dismissed first.
func (h *HyprNotify) replace(ctx context.Context, icon int, timeoutMS int, color string, text string) error {
	if !h.desktop() {
		if err := hypr.DismissNotify(ctx); err != nil {
			return err
		}
	}
	return h.notify(ctx, icon, timeoutMS, color, text)
}

// dismiss removes indicator output from the configured backend.
func (h *HyprNotify) dismiss(ctx context.Context) error {
	if h.desktop() {
		return h.dismissDesktop(ctx)
	}
	return hypr.DismissNotify(ctx)
}

// notifyDesktop sends a replaceable desktop notification and stores its ID.
// Error updates are raised as critical.
func (h *HyprNotify) notifyDesktop(ctx context.Context, hyprIcon int, timeoutMS int, text string) error {
	h.mu.Lock()
	replaceID := h.desktopNotificationID
	h.mu.Unlock()

	appName := strings.TrimSpace(h.cfg.DesktopAppName)
	if appName == "" {
		appName = "parley-indicator"
	}

	note := desktopNote{
		appName:   appName,
		replaceID: replaceID,
		icon:      iconMicrophone,
		summary:   text,
		urgency:   urgencyNormal,
		timeoutMS: timeoutMS,
	}
	if hyprIcon == hyprIconError {
		note.icon = iconError
		note.urgency = urgencyCritical
	}

	id, err := sendDesktopNote(ctx, note)
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.desktopNotificationID = id
	h.mu.Unlock()
	return nil
}

// dismissDesktop closes the current desktop notification ID when present.
func (h *HyprNotify) dismissDesktop(ctx context.Context) error {
	h.mu.Lock()
	id := h.desktopNotificationID
	h.desktopNotificationID = 0
	h.mu.Unlock()

	if id == 0 {
		return nil
	}
	return closeDesktopNote(ctx, id)
}

// playCue serializes cue playback and emits audio asynchronously.
func (h *HyprNotify) playCue(kind cueKind) {
	if !h.cfg.SoundEnable {
		return
	}
	go func() {
		h.soundMu.Lock()
		defer h.soundMu.Unlock()
		ctx, cancel := context.WithTimeout(context.Background(), cueTimeout)
		defer cancel()
		if err := emitCue(ctx, kind, h.cfg); err != nil {
			h.log("indicator audio cue failed", err)
		}
	}()
}

// log emits debug-only indicator failures to the runtime logger.
func (h *HyprNotify) log(message string, err error) {
	if err == nil {
		return
	}
	h.logger.Debug(message, "error", err.Error())
}
