package gateway

import (
	"context"
	"log/slog"
	"strings"
)

// Sender posts one message to the backend.
type Sender interface {
	Send(context.Context, string) (Reply, error)
}

// Speaker reads a reply aloud.
type Speaker interface {
	Speak(context.Context, string) error
}

// Relay sends finished utterances and typed text to the backend, then
// speaks the newest assistant reply while voice mode is on.
type Relay struct {
	sender    Sender
	speaker   Speaker
	voiceMode func() bool
	logger    *slog.Logger
	onReply   func(Message)
}

// NewRelay builds a relay. A nil speaker or voiceMode disables playback.
func NewRelay(sender Sender, speaker Speaker, voiceMode func() bool, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Relay{sender: sender, speaker: speaker, voiceMode: voiceMode, logger: logger}
}

// OnReply registers a callback for each assistant reply received.
func (r *Relay) OnReply(fn func(Message)) {
	r.onReply = fn
}

// Dispatch sends text and, in voice mode, speaks the reply. Playback
// failures are logged; the message itself was delivered.
func (r *Relay) Dispatch(ctx context.Context, text string) error {
	reply, err := r.sender.Send(ctx, text)
	if err != nil {
		return err
	}

	msg, ok := reply.LastAssistant()
	if !ok || strings.TrimSpace(msg.Text) == "" {
		r.logger.Debug("backend reply carried no assistant message", "history", len(reply.History))
		return nil
	}
	r.logger.Info("assistant reply received", "msg_num", msg.MsgNum, "chars", len(msg.Text))
	if r.onReply != nil {
		r.onReply(msg)
	}

	if r.speaker == nil || r.voiceMode == nil || !r.voiceMode() {
		return nil
	}
	if err := r.speaker.Speak(ctx, msg.Text); err != nil {
		r.logger.Error("speak assistant reply failed", "error", err.Error())
	}
	return nil
}
