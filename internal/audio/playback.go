package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/jfreymuth/pulse"
)

// Player plays 16-bit little-endian mono PCM on one Pulse sink.
type Player struct {
	sink       string
	sampleRate int
	mediaName  string
	latency    float64
}

// NewPlayer builds a player for sink ("" or "default" uses the server default).
func NewPlayer(sink string, sampleRate int) *Player {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return &Player{
		sink:       strings.TrimSpace(sink),
		sampleRate: sampleRate,
		mediaName:  "parley reply",
		latency:    0.1,
	}
}

// ForCues returns a copy tuned for short notification sounds.
func (p *Player) ForCues() *Player {
	cp := *p
	cp.mediaName = "parley indicator cue"
	cp.latency = 0.02
	return &cp
}

// SampleRate reports the playback rate callers must produce PCM at.
func (p *Player) SampleRate() int {
	return p.sampleRate
}

// Play streams chunks until the channel is closed or ctx is cancelled, then
// waits for buffered audio to finish.
func (p *Player) Play(ctx context.Context, chunks <-chan []byte) error {
	client, err := newClient(iconSpeakers)
	if err != nil {
		return err
	}
	defer client.Close()

	opts := []pulse.PlaybackOption{
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(p.sampleRate),
		pulse.PlaybackLatency(p.latency),
		pulse.PlaybackMediaName(p.mediaName),
	}
	if p.sink != "" && p.sink != "default" {
		sink, err := client.SinkByID(p.sink)
		if err != nil {
			return fmt.Errorf("resolve sink %q: %w", p.sink, err)
		}
		opts = append(opts, pulse.PlaybackSink(sink))
	}

	feed := &pcmFeed{ctx: ctx, chunks: chunks}
	stream, err := client.NewPlayback(pulse.Int16Reader(feed.read), opts...)
	if err != nil {
		return fmt.Errorf("create pulse playback stream: %w", err)
	}
	defer stream.Close()

	stream.Start()
	stream.Drain()
	if err := stream.Error(); err != nil {
		return fmt.Errorf("play %s stream: %w", p.mediaName, err)
	}
	return ctx.Err()
}

// pcmFeed adapts a channel of byte chunks to pulse's pull-based reader.
type pcmFeed struct {
	ctx     context.Context
	chunks  <-chan []byte
	pending []byte
}

func (f *pcmFeed) read(buf []int16) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}

	n := 0
	for n == 0 {
		for len(f.pending) < 2 {
			select {
			case chunk, ok := <-f.chunks:
				if !ok {
					return 0, pulse.EndOfData
				}
				f.pending = append(f.pending, chunk...)
			case <-f.ctx.Done():
				return 0, pulse.EndOfData
			}
		}

		for n < len(buf) && len(f.pending) >= 2 {
			buf[n] = int16(binary.LittleEndian.Uint16(f.pending))
			f.pending = f.pending[2:]
			n++
		}
	}
	return n, nil
}
