package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"github.com/rbright/parley/internal/audio"
	"github.com/rbright/parley/internal/config"
	"github.com/rbright/parley/internal/duplex"
	"github.com/rbright/parley/internal/gateway"
	"github.com/rbright/parley/internal/indicator"
	"github.com/rbright/parley/internal/ipc"
	"github.com/rbright/parley/internal/observe"
	"github.com/rbright/parley/internal/pipeline"
	"github.com/rbright/parley/internal/session"
	"github.com/rbright/parley/internal/tts"
	"github.com/rbright/parley/internal/version"
	"golang.org/x/sync/errgroup"
)

// owner is the long-lived process that holds the microphone, the recognizer
// stream, and the backend session.
type owner struct {
	logger     *slog.Logger
	controller *session.Controller
	recognizer *pipeline.Recognizer
	indicator  *indicator.HyprNotify
	gateway    *gateway.Client

	metricsListen   string
	shutdownMetrics func(context.Context) error
}

func (r Runner) commandServe(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	listener, err := ipc.Acquire(ctx, socketPath, 180*time.Millisecond, 8)
	if err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			fmt.Fprintln(r.Stderr, "error: parley is already running")
			return 1
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	o, err := newOwner(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("owner setup failed", "error", err.Error())
		return 1
	}
	defer o.close()

	logger.Info("owner serving", "socket", socketPath, "mode", string(o.controller.Mode()))
	if err := o.run(ctx, listener); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("owner stopped", "error", err.Error())
		return 1
	}
	logger.Info("owner stopped")
	return 0
}

func newOwner(ctx context.Context, cfg config.Config, logger *slog.Logger) (*owner, error) {
	metrics, shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "parley",
		ServiceVersion: version.Version,
	})
	if err != nil {
		return nil, err
	}

	gw, err := gateway.NewClient(gateway.Config{
		BaseURL:     cfg.Gateway.BaseURL,
		ChatPath:    cfg.Gateway.ChatPath,
		HistoryPath: cfg.Gateway.HistoryPath,
		Token:       os.Getenv(cfg.Gateway.TokenEnv),
		Timeout:     time.Duration(cfg.Gateway.TimeoutMS) * time.Millisecond,
	})
	if err != nil {
		_ = shutdownMetrics(ctx)
		return nil, err
	}

	var synth duplex.Synthesizer
	if cfg.Synthesizer.Enable {
		client, err := tts.NewClient(tts.Config{
			Endpoint:   cfg.Synthesizer.Endpoint,
			APIKey:     os.Getenv(cfg.Synthesizer.APIKeyEnv),
			VoiceID:    cfg.Synthesizer.VoiceID,
			ModelID:    cfg.Synthesizer.ModelID,
			SampleRate: cfg.Synthesizer.SampleRate,
		})
		if err != nil {
			_ = shutdownMetrics(ctx)
			return nil, err
		}
		synth = tts.NewSpeaker(client, audio.NewPlayer(cfg.Audio.Output, cfg.Synthesizer.SampleRate))
	}
	coordinator := duplex.New(logger, synth, metrics)

	mode, err := session.ParseMode(cfg.PTT.StartMode)
	if err != nil {
		mode = session.ModeVoice
	}

	recognizer := pipeline.NewRecognizer(cfg, os.Getenv(cfg.Recognizer.APIKeyEnv), logger)
	notify := indicator.NewHyprNotify(cfg.Indicator, logger)

	var controller *session.Controller
	relay := gateway.NewRelay(gw, coordinator, func() bool { return controller.VoiceMode() }, logger)
	relay.OnReply(func(msg gateway.Message) { notify.ShowReply(msg.Text) })
	controller = session.NewController(
		logger,
		recognizer,
		relay,
		notify,
		session.WithFloor(coordinator),
		session.WithMetrics(metrics),
		session.WithMode(mode),
		session.WithFlushGrace(time.Duration(cfg.PTT.FlushGraceMS)*time.Millisecond),
		session.WithStopTimeout(time.Duration(cfg.PTT.StopTimeoutMS)*time.Millisecond),
	)
	coordinator.Bind(controller)

	return &owner{
		logger:          logger,
		controller:      controller,
		recognizer:      recognizer,
		indicator:       notify,
		gateway:         gw,
		metricsListen:   strings.TrimSpace(cfg.Metrics.Listen),
		shutdownMetrics: shutdownMetrics,
	}, nil
}

// run serves IPC and drives the controller until ctx is cancelled or one of
// the loops fails.
func (o *owner) run(ctx context.Context, listener net.Listener) error {
	var metricsListener net.Listener
	if o.metricsListen != "" {
		l, err := net.Listen("tcp", o.metricsListen)
		if err != nil {
			return fmt.Errorf("listen metrics %s: %w", o.metricsListen, err)
		}
		metricsListener = l
		o.logger.Info("metrics listening", "addr", l.Addr().String())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return o.controller.Run(gctx)
	})
	g.Go(func() error {
		return ipc.Serve(gctx, listener, ipc.HandlerFunc(o.handle))
	})
	g.Go(func() error {
		o.logResults(gctx)
		return nil
	})
	if metricsListener != nil {
		g.Go(func() error {
			return observe.Serve(gctx, metricsListener)
		})
	}
	return g.Wait()
}

// handle answers owner-level commands and hands the rest to the controller.
func (o *owner) handle(ctx context.Context, req ipc.Request) ipc.Response {
	if req.Command != ipc.CommandHistory {
		return o.controller.Handle(ctx, req)
	}

	history, err := o.gateway.History(ctx)
	if err != nil {
		return ipc.Response{OK: false, Error: err.Error()}
	}
	return ipc.Response{
		OK:      true,
		State:   string(o.controller.State()),
		Mode:    string(o.controller.Mode()),
		Message: formatHistory(history),
	}
}

func (o *owner) logResults(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case result := <-o.controller.Results():
			logSessionResult(o.logger, result)
		}
	}
}

func (o *owner) close() {
	o.recognizer.Close()
	o.indicator.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := o.shutdownMetrics(ctx); err != nil {
		o.logger.Warn("metrics shutdown failed", "error", err.Error())
	}
}

func formatHistory(history []gateway.Message) string {
	if len(history) == 0 {
		return "(no messages)"
	}
	lines := make([]string, 0, len(history))
	for _, msg := range history {
		role := strings.ToLower(strings.TrimSpace(msg.Role))
		if role == "" {
			role = "unknown"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", role, strings.TrimSpace(msg.Text)))
	}
	return strings.Join(lines, "\n")
}

func logSessionResult(logger *slog.Logger, result session.Result) {
	if logger == nil {
		return
	}
	fields := []any{
		"session", result.ID,
		"state", string(result.State),
		"source", string(result.Source),
		"dispatched", result.Dispatched,
		"abandoned", result.Abandoned,
		"segments", result.Segments,
		"duplicates", result.Duplicates,
		"utterance_length", len(result.Utterance),
		"started_at", result.StartedAt.Format(time.RFC3339Nano),
		"finished_at", result.FinishedAt.Format(time.RFC3339Nano),
		"duration_ms", result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
	}
	if !result.ReleasedAt.IsZero() {
		fields = append(fields, "flush_ms", result.FinishedAt.Sub(result.ReleasedAt).Milliseconds())
	}

	switch {
	case result.Err == nil:
		logger.Info("session complete", fields...)
	case errors.Is(result.Err, session.ErrNoText), errors.Is(result.Err, session.ErrAbandoned):
		logger.Info("session ended without dispatch", append(fields, "reason", result.Err.Error())...)
	default:
		logger.Error("session failed", append(fields, "error", result.Err.Error())...)
	}
}
