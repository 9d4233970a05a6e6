package tts

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Player consumes PCM chunks until the channel closes.
type Player interface {
	Play(context.Context, <-chan []byte) error
}

// Streamer produces PCM chunks for text.
type Streamer interface {
	Stream(context.Context, string, chan<- []byte) error
}

// Speaker pipes synthesized audio straight into playback.
type Speaker struct {
	streamer Streamer
	player   Player
}

// NewSpeaker joins a synthesis stream to a player.
func NewSpeaker(streamer Streamer, player Player) *Speaker {
	return &Speaker{streamer: streamer, player: player}
}

// Speak returns once the reply has finished playing or either side failed.
func (s *Speaker) Speak(ctx context.Context, text string) error {
	chunks := make(chan []byte, 64)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(chunks)
		if err := s.streamer.Stream(gctx, text, chunks); err != nil {
			return fmt.Errorf("synthesize reply: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := s.player.Play(gctx, chunks); err != nil {
			return fmt.Errorf("play reply: %w", err)
		}
		return nil
	})
	return g.Wait()
}
