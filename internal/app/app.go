package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/rbright/parley/internal/audio"
	"github.com/rbright/parley/internal/cli"
	"github.com/rbright/parley/internal/config"
	"github.com/rbright/parley/internal/doctor"
	"github.com/rbright/parley/internal/ipc"
	"github.com/rbright/parley/internal/logging"
	"github.com/rbright/parley/internal/version"
)

const (
	forwardTimeout = 2 * time.Second
	historyTimeout = 15 * time.Second
)

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("parley"))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText("parley"))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	logRuntime, err := logging.New()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("load config failed", "error", err.Error())
		return 1
	}
	logRuntime.SetLevel(cfgLoaded.Config.Debug.LogLevel)
	for _, w := range cfgLoaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandServe:
		return r.commandServe(ctx, cfgLoaded.Config, logger)
	case cli.CommandDoctor:
		report := doctor.Run(ctx, cfgLoaded)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandDevices:
		return r.commandDevices(ctx)
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	default:
		if parsed.Forwarded() {
			return r.forwardOrFail(ctx, parsed)
		}
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func (r Runner) commandDevices(ctx context.Context) int {
	inputs, err := audio.ListDevices(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	sinks, err := audio.ListSinks(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(inputs) == 0 && len(sinks) == 0 {
		fmt.Fprintln(r.Stdout, "no audio devices found")
		return 1
	}

	r.printDevices("input", inputs)
	r.printDevices("output", sinks)
	return 0
}

func (r Runner) printDevices(kind string, devices []audio.Device) {
	for _, device := range devices {
		defaultMark := " "
		if device.Default {
			defaultMark = "*"
		}
		availability := "yes"
		if !device.Available {
			availability = "no"
		}
		muted := "no"
		if device.Muted {
			muted = "yes"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s %-6s id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			defaultMark,
			kind,
			device.ID,
			device.Description,
			device.State,
			availability,
			muted,
		)
	}
}

func (r Runner) commandStatus(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	}

	resp, handled, err := tryForward(ctx, socketPath, ipc.Request{Command: ipc.CommandStatus}, forwardTimeout)
	if !handled {
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	fmt.Fprintln(r.Stdout, formatStatus(resp))
	return 0
}

func formatStatus(resp ipc.Response) string {
	state := resp.State
	if state == "" {
		state = "idle"
	}
	parts := []string{state}
	if resp.Mode != "" {
		parts = append(parts, "mode="+resp.Mode)
	}
	if resp.Message != "" {
		parts = append(parts, "status="+resp.Message)
	}
	return strings.Join(parts, " ")
}

func (r Runner) forwardOrFail(ctx context.Context, parsed cli.Parsed) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	req := ipc.NewRequest(string(parsed.Command), parsed.Argument, ipc.Edge{
		Source:      parsed.Source,
		Repeat:      parsed.Repeat,
		InTextField: parsed.InTextField,
	})
	timeout := forwardTimeout
	if parsed.Command == cli.CommandHistory {
		timeout = historyTimeout
	}

	resp, handled, err := tryForward(ctx, socketPath, req, timeout)
	if !handled {
		fmt.Fprintln(r.Stderr, "error: parley is not running (start it with `parley serve`)")
		return 1
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

// tryForward reports handled=false when no owner is listening.
func tryForward(ctx context.Context, socketPath string, req ipc.Request, timeout time.Duration) (ipc.Response, bool, error) {
	resp, err := ipc.Forward(ctx, socketPath, req, timeout)
	if errors.Is(err, ipc.ErrNoOwner) {
		return ipc.Response{}, false, nil
	}
	return resp, true, err
}
