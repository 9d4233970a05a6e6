// Package doctor runs runtime readiness diagnostics for config, tools, audio,
// the recognizer, and the chat gateway.
package doctor

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rbright/parley/internal/asr"
	"github.com/rbright/parley/internal/audio"
	"github.com/rbright/parley/internal/config"
	"github.com/rbright/parley/internal/gateway"
	"github.com/rbright/parley/internal/hypr"
)

const checkTimeout = 2 * time.Second

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, cfg config.Loaded) Report {
	checks := []Check{{
		Name:    "config",
		Pass:    true,
		Message: fmt.Sprintf("loaded %q", cfg.Path),
	}}

	c := cfg.Config
	checks = append(checks, checkSecret("recognizer.api_key_env", c.Recognizer.APIKeyEnv))
	if c.Synthesizer.Enable {
		checks = append(checks, checkSecret("synthesizer.api_key_env", c.Synthesizer.APIKeyEnv))
	}

	if c.Indicator.Enable {
		checks = append(checks, checkIndicator(ctx, c.Indicator)...)
	}
	if c.Indicator.SoundEnable && hasCueFiles(c.Indicator) {
		checks = append(checks, checkCommand(c.Indicator.CuePlayer.Argv, "cue_player_cmd"))
	}

	checks = append(checks, checkAudioSelection(ctx, c))
	if c.Synthesizer.Enable {
		checks = append(checks, checkAudioOutput(ctx, c))
	}
	if strings.TrimSpace(c.Recognizer.HealthGRPC) != "" {
		checks = append(checks, checkRecognizerHealth(ctx, c))
	}
	checks = append(checks, checkGateway(ctx, c))

	return Report{Checks: checks}
}

// checkEnv validates an environment variable through a caller-supplied predicate.
func checkEnv(name string, predicate func(string) bool, okMsg, failMsg string) Check {
	value := os.Getenv(name)
	if predicate(value) {
		return Check{Name: name, Pass: true, Message: okMsg}
	}
	return Check{Name: name, Pass: false, Message: failMsg}
}

// checkSecret verifies that the env var named by a config key is populated
// without echoing its value.
func checkSecret(name string, envName string) Check {
	envName = strings.TrimSpace(envName)
	if envName == "" {
		return Check{Name: name, Pass: false, Message: "no environment variable configured"}
	}
	return checkEnv(envName, func(v string) bool { return strings.TrimSpace(v) != "" },
		fmt.Sprintf("%s is set", envName),
		fmt.Sprintf("%s is empty", envName))
}

func checkIndicator(ctx context.Context, cfg config.IndicatorConfig) []Check {
	if strings.EqualFold(strings.TrimSpace(cfg.Backend), "desktop") {
		return []Check{checkBinary("busctl", "desktop notifications go through DBus")}
	}

	checks := []Check{checkEnv("HYPRLAND_INSTANCE_SIGNATURE", func(v string) bool {
		return strings.TrimSpace(v) != ""
	}, "Hyprland session detected", "HYPRLAND_INSTANCE_SIGNATURE is empty")}

	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	tag, err := hypr.Version(checkCtx)
	if err != nil {
		return append(checks, Check{Name: "hyprctl", Pass: false, Message: err.Error()})
	}
	return append(checks, Check{Name: "hyprctl", Pass: true, Message: fmt.Sprintf("Hyprland %s", tag)})
}

func hasCueFiles(cfg config.IndicatorConfig) bool {
	for _, path := range []string{cfg.SoundStartFile, cfg.SoundStopFile, cfg.SoundCompleteFile, cfg.SoundCancelFile} {
		if strings.TrimSpace(path) != "" {
			return true
		}
	}
	return false
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(ctx context.Context, cfg config.Config) Check {
	selection, err := audio.SelectDevice(ctx, cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

// checkAudioOutput confirms the configured playback sink exists.
func checkAudioOutput(ctx context.Context, cfg config.Config) Check {
	sinks, err := audio.ListSinks(ctx)
	if err != nil {
		return Check{Name: "audio.output", Pass: false, Message: err.Error()}
	}
	want := strings.TrimSpace(cfg.Audio.Output)
	if want == "" || want == "default" {
		for _, sink := range sinks {
			if sink.Default {
				return Check{Name: "audio.output", Pass: true, Message: fmt.Sprintf("default sink %q", sink.ID)}
			}
		}
		return Check{Name: "audio.output", Pass: len(sinks) > 0, Message: fmt.Sprintf("%d sinks, none marked default", len(sinks))}
	}
	for _, sink := range sinks {
		if sink.ID == want {
			return Check{Name: "audio.output", Pass: true, Message: fmt.Sprintf("sink %q found", want)}
		}
	}
	return Check{Name: "audio.output", Pass: false, Message: fmt.Sprintf("sink %q not found", want)}
}

// checkRecognizerHealth queries the gRPC health service next to the recognizer.
func checkRecognizerHealth(ctx context.Context, cfg config.Config) Check {
	report, err := asr.CheckHealth(ctx, cfg.Recognizer.HealthGRPC, "", checkTimeout)
	if err != nil {
		return Check{Name: "recognizer.health", Pass: false, Message: err.Error()}
	}
	if !report.Serving {
		return Check{Name: "recognizer.health", Pass: false, Message: fmt.Sprintf("%s reports %s", report.Endpoint, report.Status)}
	}
	return Check{
		Name:    "recognizer.health",
		Pass:    true,
		Message: fmt.Sprintf("serving at %s (%dms)", report.Endpoint, report.Latency.Milliseconds()),
	}
}

// checkGateway confirms the chat backend answers HTTP. Auth failures still
// pass the reachability check but are called out.
func checkGateway(ctx context.Context, cfg config.Config) Check {
	client, err := gateway.NewClient(gateway.Config{
		BaseURL:     cfg.Gateway.BaseURL,
		ChatPath:    cfg.Gateway.ChatPath,
		HistoryPath: cfg.Gateway.HistoryPath,
		Token:       os.Getenv(cfg.Gateway.TokenEnv),
		Timeout:     checkTimeout,
	})
	if err != nil {
		return Check{Name: "gateway", Pass: false, Message: err.Error()}
	}

	status, err := client.Ping(ctx)
	if err != nil {
		return Check{Name: "gateway", Pass: false, Message: fmt.Sprintf("request failed: %v", err)}
	}
	switch {
	case status >= http.StatusInternalServerError:
		return Check{Name: "gateway", Pass: false, Message: fmt.Sprintf("HTTP %d from %s", status, cfg.Gateway.BaseURL)}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return Check{Name: "gateway", Pass: true, Message: fmt.Sprintf("reachable, HTTP %d (check %s)", status, cfg.Gateway.TokenEnv)}
	default:
		return Check{Name: "gateway", Pass: true, Message: fmt.Sprintf("reachable at %s", cfg.Gateway.BaseURL)}
	}
}
