// Package pipeline wires microphone capture to the streaming recognizer and
// exposes the result as a session.Recognizer.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rbright/parley/internal/asr"
	"github.com/rbright/parley/internal/audio"
	"github.com/rbright/parley/internal/config"
	"github.com/rbright/parley/internal/session"
)

const eventBuffer = 128

// ErrAlreadyStarted is returned by Start while a stream is live.
var ErrAlreadyStarted = errors.New("recognizer already started")

type captureClient interface {
	Stop() error
	Chunks() <-chan []byte
	BytesCaptured() int64
	Duration() time.Duration
	RawPCM() []byte
}

type streamClient interface {
	SendAudio(context.Context, []byte) error
	CloseSend(context.Context) error
	Cancel()
	Results() <-chan asr.Transcript
	Err() error
}

// Recognizer owns one capture -> recognition stream at a time. Its event
// channel outlives individual streams.
type Recognizer struct {
	cfg    config.Config
	apiKey string
	logger *slog.Logger

	events chan session.RecognitionEvent
	closed chan struct{}
	close  sync.Once

	selectDevice func(context.Context, string, string) (audio.Selection, error)
	dialStream   func(context.Context, asr.Config) (streamClient, error)
	startCapture func(context.Context, audio.Device) (captureClient, error)

	mu  sync.Mutex
	cur *streamRun
}

// streamRun is one started capture plus its recognition stream.
type streamRun struct {
	ctx       context.Context
	selection audio.Selection
	capture   captureClient
	stream    streamClient
	sendDone  chan error
	dump      *os.File
	startedAt time.Time
}

// NewRecognizer constructs a recognizer from runtime config. apiKey is the
// resolved recognizer credential (may be empty).
func NewRecognizer(cfg config.Config, apiKey string, logger *slog.Logger) *Recognizer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Recognizer{
		cfg:          cfg,
		apiKey:       apiKey,
		logger:       logger,
		events:       make(chan session.RecognitionEvent, eventBuffer),
		closed:       make(chan struct{}),
		selectDevice: audio.SelectDevice,
		dialStream: func(ctx context.Context, c asr.Config) (streamClient, error) {
			return asr.Dial(ctx, c)
		},
		startCapture: func(ctx context.Context, d audio.Device) (captureClient, error) {
			return audio.StartCapture(ctx, d, audio.CaptureOptions{
				SampleRate: cfg.Recognizer.SampleRate,
				KeepRaw:    cfg.Debug.EnableAudioDump,
			})
		},
	}
}

// Events delivers recognition callbacks for every stream this recognizer runs.
func (r *Recognizer) Events() <-chan session.RecognitionEvent {
	return r.events
}

// Close releases goroutines blocked on event delivery. Call after the
// consumer has stopped reading.
func (r *Recognizer) Close() {
	r.close.Do(func() { close(r.closed) })
	r.mu.Lock()
	run := r.cur
	r.cur = nil
	r.mu.Unlock()
	if run != nil {
		_ = run.capture.Stop()
		run.stream.Cancel()
	}
}

// Start resolves the input device, opens the recognition stream, and starts
// microphone capture.
func (r *Recognizer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cur != nil {
		return ErrAlreadyStarted
	}

	selection, err := r.selectDevice(ctx, r.cfg.Audio.Input, r.cfg.Audio.Fallback)
	if err != nil {
		return err
	}
	if selection.Warning != "" {
		r.logger.Warn(selection.Warning)
	}

	phrases, _, err := config.BuildSpeechPhrases(r.cfg)
	if err != nil {
		return fmt.Errorf("build recognizer keywords: %w", err)
	}

	stream, err := r.dialStream(ctx, asr.Config{
		Endpoint:    r.cfg.Recognizer.Endpoint,
		APIKey:      r.apiKey,
		Model:       r.cfg.Recognizer.Model,
		Language:    r.cfg.Recognizer.Language,
		SampleRate:  r.cfg.Recognizer.SampleRate,
		Punctuate:   r.cfg.Recognizer.Punctuate,
		Keywords:    config.Keywords(phrases),
		DialTimeout: time.Duration(r.cfg.Recognizer.DialTimeoutMS) * time.Millisecond,
	})
	if err != nil {
		return err
	}

	capture, err := r.startCapture(ctx, selection.Device)
	if err != nil {
		stream.Cancel()
		return err
	}

	run := &streamRun{
		ctx:       ctx,
		selection: selection,
		capture:   capture,
		stream:    stream,
		sendDone:  make(chan error, 1),
		startedAt: time.Now(),
	}
	if r.cfg.Debug.EnableTranscriptDump {
		file, ferr := createDebugFile("transcript", "jsonl")
		if ferr != nil {
			r.logger.Warn("unable to create transcript dump", "error", ferr.Error())
		} else {
			run.dump = file
		}
	}

	r.cur = run
	go r.sendLoop(run)
	go r.receiveLoop(run)

	r.logger.Debug("recognizer started", "device", describeDevice(selection.Device))
	return nil
}

// Stop ends capture and asks the service to flush. Residual finals and the
// terminal stopped/canceled event are delivered on Events. Stopping an
// idle recognizer is a no-op.
func (r *Recognizer) Stop(ctx context.Context) error {
	r.mu.Lock()
	run := r.cur
	r.cur = nil
	r.mu.Unlock()

	if run == nil {
		return nil
	}

	_ = run.capture.Stop()
	defer r.writeDebugAudio(run.capture.RawPCM())

	var sendErr error
	select {
	case sendErr = <-run.sendDone:
	case <-ctx.Done():
		run.stream.Cancel()
		return fmt.Errorf("drain audio stream: %w", ctx.Err())
	}

	if sendErr != nil {
		run.stream.Cancel()
		return fmt.Errorf("send audio stream: %w", sendErr)
	}

	if err := run.stream.CloseSend(ctx); err != nil {
		return fmt.Errorf("close recognition stream: %w", err)
	}

	r.logger.Debug("recognizer stopped",
		"device", describeDevice(run.selection.Device),
		"audio_bytes", run.capture.BytesCaptured(),
		"audio_ms", run.capture.Duration().Milliseconds(),
		"elapsed_ms", time.Since(run.startedAt).Milliseconds(),
	)
	return nil
}

// sendLoop forwards capture chunks to the stream and reports the first send
// failure.
func (r *Recognizer) sendLoop(run *streamRun) {
	var sendErr error
	defer func() { run.sendDone <- sendErr }()

	for chunk := range run.capture.Chunks() {
		if len(chunk) == 0 || sendErr != nil {
			continue
		}
		if err := run.stream.SendAudio(run.ctx, chunk); err != nil {
			sendErr = err
			_ = run.capture.Stop()
		}
	}
}

// receiveLoop maps stream transcripts to recognition events and terminates
// with exactly one stopped or canceled event.
func (r *Recognizer) receiveLoop(run *streamRun) {
	defer func() {
		if run.dump != nil {
			_ = run.dump.Close()
		}
	}()

	for tr := range run.stream.Results() {
		run.writeDump(tr)
		if tr.Final {
			r.emit(session.RecognitionEvent{Kind: session.RecognitionFinal, Text: tr.Text, OK: tr.Text != ""})
			continue
		}
		r.emit(session.RecognitionEvent{Kind: session.RecognitionPartial, Text: tr.Text})
	}

	if err := run.stream.Err(); err != nil {
		r.emit(session.RecognitionEvent{Kind: session.RecognitionCanceled, Err: err})
		return
	}
	r.emit(session.RecognitionEvent{Kind: session.RecognitionStopped})
}

func (r *Recognizer) emit(ev session.RecognitionEvent) {
	select {
	case r.events <- ev:
	case <-r.closed:
	}
}

func (run *streamRun) writeDump(tr asr.Transcript) {
	if run.dump == nil {
		return
	}
	line, err := json.Marshal(struct {
		At    time.Time `json:"at"`
		Text  string    `json:"text"`
		Final bool      `json:"final"`
	}{At: time.Now(), Text: tr.Text, Final: tr.Final})
	if err != nil {
		return
	}
	_, _ = run.dump.Write(append(line, '\n'))
}

// describeDevice formats device metadata for logs.
func describeDevice(device audio.Device) string {
	description := strings.TrimSpace(device.Description)
	id := strings.TrimSpace(device.ID)
	if description == "" {
		return id
	}
	if id == "" {
		return description
	}
	return fmt.Sprintf("%s (%s)", description, id)
}

// writeDebugAudio writes raw PCM to WAV when debug.audio_dump is enabled.
func (r *Recognizer) writeDebugAudio(rawPCM []byte) {
	if !r.cfg.Debug.EnableAudioDump || len(rawPCM) == 0 {
		return
	}

	file, err := createDebugFile("audio", "wav")
	if err != nil {
		r.logger.Warn("unable to create debug audio dump", "error", err.Error())
		return
	}
	defer file.Close()

	if err := writePCM16WAV(file, rawPCM, r.cfg.Recognizer.SampleRate, 1); err != nil {
		r.logger.Warn("unable to write debug audio dump", "error", err.Error())
	}
}
