package indicator

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rbright/parley/internal/audio"
	"github.com/rbright/parley/internal/config"
)

type cueKind int

const (
	cueStart cueKind = iota + 1
	cueStop
	cueComplete
	cueCancel
)

const (
	cueSampleRate = 16000
	cueTimeout    = 4 * time.Second
)

type toneSpec struct {
	frequencyHz float64
	duration    time.Duration
	volume      float64
}

var (
	startCuePCM = synthesizeCue([]toneSpec{
		{frequencyHz: 880, duration: 70 * time.Millisecond, volume: 0.18},
		{frequencyHz: 1175, duration: 70 * time.Millisecond, volume: 0.18},
	})
	stopCuePCM = synthesizeCue([]toneSpec{
		{frequencyHz: 620, duration: 120 * time.Millisecond, volume: 0.18},
	})
	completeCuePCM = synthesizeCue([]toneSpec{
		{frequencyHz: 740, duration: 65 * time.Millisecond, volume: 0.18},
		{frequencyHz: 988, duration: 90 * time.Millisecond, volume: 0.18},
	})
	cancelCuePCM = synthesizeCue([]toneSpec{
		{frequencyHz: 480, duration: 75 * time.Millisecond, volume: 0.18},
		{frequencyHz: 360, duration: 90 * time.Millisecond, volume: 0.18},
	})
)

var cuePlayer = audio.NewPlayer("default", cueSampleRate).ForCues()

// emitCue plays the configured cue file, falling back to a synthesized tone.
func emitCue(ctx context.Context, kind cueKind, cfg config.IndicatorConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if path := cuePath(kind, cfg); path != "" {
		err := playCueFile(ctx, cfg.CuePlayer, path)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
	}

	samples := cueSamples(kind)
	if len(samples) == 0 {
		return nil
	}
	return cuePlayer.Play(ctx, pcmChunks(samples))
}

func cuePath(kind cueKind, cfg config.IndicatorConfig) string {
	var raw string
	switch kind {
	case cueStart:
		raw = cfg.SoundStartFile
	case cueStop:
		raw = cfg.SoundStopFile
	case cueComplete:
		raw = cfg.SoundCompleteFile
	case cueCancel:
		raw = cfg.SoundCancelFile
	default:
		return ""
	}
	return expandUserPath(raw)
}

func expandUserPath(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if raw != "~" && !strings.HasPrefix(raw, "~/") {
		return raw
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return raw
	}
	return filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(raw, "~"), "/"))
}

// playCueFile runs the configured player command on the cue path.
func playCueFile(ctx context.Context, player config.CommandConfig, path string) error {
	argv := player.Args(path)
	if len(argv) == 0 {
		return errors.New("cue player command is not configured")
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("stat cue file %q: %w", path, err)
	}

	out, err := exec.CommandContext(ctx, argv[0], argv[1:]...).CombinedOutput()
	if err != nil {
		trimmed := strings.TrimSpace(string(out))
		if trimmed == "" {
			return fmt.Errorf("play cue file %q: %w", path, err)
		}
		return fmt.Errorf("play cue file %q: %w (%s)", path, err, trimmed)
	}
	return nil
}

// pcmChunks emits samples as one little-endian chunk on a closed channel.
func pcmChunks(samples []int16) <-chan []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	ch := make(chan []byte, 1)
	ch <- buf
	close(ch)
	return ch
}

func cueSamples(kind cueKind) []int16 {
	switch kind {
	case cueStart:
		return startCuePCM
	case cueStop:
		return stopCuePCM
	case cueComplete:
		return completeCuePCM
	case cueCancel:
		return cancelCuePCM
	default:
		return nil
	}
}

func synthesizeCue(parts []toneSpec) []int16 {
	if len(parts) == 0 {
		return nil
	}
	gapSamples := samplesForDuration(22 * time.Millisecond)

	var pcm []int16
	for i, part := range parts {
		pcm = append(pcm, synthesizeTone(part)...)
		if i < len(parts)-1 {
			pcm = append(pcm, make([]int16, gapSamples)...)
		}
	}
	return pcm
}

func synthesizeTone(spec toneSpec) []int16 {
	n := samplesForDuration(spec.duration)
	if n <= 0 || spec.frequencyHz <= 0 || spec.volume <= 0 {
		return nil
	}

	ramp := min(n/10, cueSampleRate/200) // at most 5ms
	ramp = max(ramp, 1)

	pcm := make([]int16, n)
	for i := range n {
		envelope := 1.0
		if i < ramp {
			envelope = float64(i) / float64(ramp)
		}
		if tail := n - i - 1; tail < ramp {
			envelope = min(envelope, float64(tail)/float64(ramp))
		}
		t := float64(i) / cueSampleRate
		sample := math.Sin(2 * math.Pi * spec.frequencyHz * t)
		pcm[i] = int16(math.Round(sample * spec.volume * envelope * 32767))
	}
	return pcm
}

func samplesForDuration(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * cueSampleRate))
}
