package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	reply Reply
	err   error
	sent  []string
}

func (f *fakeSender) Send(_ context.Context, text string) (Reply, error) {
	f.sent = append(f.sent, text)
	return f.reply, f.err
}

type fakeSpeaker struct {
	spoken []string
	err    error
}

func (f *fakeSpeaker) Speak(_ context.Context, text string) error {
	f.spoken = append(f.spoken, text)
	return f.err
}

func assistantReply(text string) Reply {
	return Reply{History: []Message{
		{MsgNum: 1, Role: "User", Text: "question"},
		{MsgNum: 2, Role: RoleAssistant, Text: text},
	}}
}

func TestRelaySpeaksReplyInVoiceMode(t *testing.T) {
	sender := &fakeSender{reply: assistantReply("answer")}
	speaker := &fakeSpeaker{}
	relay := NewRelay(sender, speaker, func() bool { return true }, nil)

	var replies []Message
	relay.OnReply(func(m Message) { replies = append(replies, m) })

	require.NoError(t, relay.Dispatch(context.Background(), "question"))
	require.Equal(t, []string{"question"}, sender.sent)
	require.Equal(t, []string{"answer"}, speaker.spoken)
	require.Len(t, replies, 1)
}

func TestRelayStaysQuietInTextMode(t *testing.T) {
	speaker := &fakeSpeaker{}
	relay := NewRelay(&fakeSender{reply: assistantReply("answer")}, speaker, func() bool { return false }, nil)

	require.NoError(t, relay.Dispatch(context.Background(), "question"))
	require.Empty(t, speaker.spoken)
}

func TestRelayReturnsSendFailure(t *testing.T) {
	speaker := &fakeSpeaker{}
	relay := NewRelay(&fakeSender{err: ErrBackend}, speaker, func() bool { return true }, nil)

	err := relay.Dispatch(context.Background(), "question")
	require.ErrorIs(t, err, ErrBackend)
	require.Empty(t, speaker.spoken)
}

func TestRelayLogsPlaybackFailure(t *testing.T) {
	speaker := &fakeSpeaker{err: errors.New("no sink")}
	relay := NewRelay(&fakeSender{reply: assistantReply("answer")}, speaker, func() bool { return true }, nil)

	require.NoError(t, relay.Dispatch(context.Background(), "question"))
	require.Equal(t, []string{"answer"}, speaker.spoken)
}

func TestRelaySkipsEmptyAssistantReply(t *testing.T) {
	speaker := &fakeSpeaker{}
	relay := NewRelay(&fakeSender{reply: assistantReply("  ")}, speaker, func() bool { return true }, nil)

	require.NoError(t, relay.Dispatch(context.Background(), "question"))
	require.Empty(t, speaker.spoken)
}
