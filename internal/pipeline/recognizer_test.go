package pipeline

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rbright/parley/internal/asr"
	"github.com/rbright/parley/internal/audio"
	"github.com/rbright/parley/internal/config"
	"github.com/rbright/parley/internal/session"
	"github.com/stretchr/testify/require"
)

func TestDescribeDevice(t *testing.T) {
	require.Equal(t, "Elgato (alsa_input.wave3)", describeDevice(audio.Device{Description: "Elgato", ID: "alsa_input.wave3"}))
	require.Equal(t, "Elgato", describeDevice(audio.Device{Description: "Elgato"}))
	require.Equal(t, "alsa_input.wave3", describeDevice(audio.Device{ID: "alsa_input.wave3"}))
}

func TestResolveStateDirUsesXDGStateHome(t *testing.T) {
	xdgStateHome := t.TempDir()
	t.Setenv("XDG_STATE_HOME", xdgStateHome)

	dir, err := resolveStateDir()
	require.NoError(t, err)
	require.Equal(t, xdgStateHome, dir)
}

func TestResolveStateDirFallsBackToHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("XDG_STATE_HOME", "")
	t.Setenv("HOME", home)

	dir, err := resolveStateDir()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".local", "state"), dir)
}

func TestCreateDebugFileCreatesExpectedPath(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())

	file, err := createDebugFile("transcript", "jsonl")
	require.NoError(t, err)
	path := file.Name()
	require.NoError(t, file.Close())

	require.FileExists(t, path)
	require.Contains(t, path, string(filepath.Separator)+"parley"+string(filepath.Separator)+"debug"+string(filepath.Separator))
	require.Contains(t, filepath.Base(path), "transcript-")
	require.Equal(t, ".jsonl", filepath.Ext(path))

	stat, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), stat.Mode().Perm())
}

func TestWritePCM16WAVWritesHeaderAndPCM(t *testing.T) {
	file, err := os.CreateTemp(t.TempDir(), "*.wav")
	require.NoError(t, err)

	pcm := []byte{0x01, 0x00, 0xFF, 0x7F}
	require.NoError(t, writePCM16WAV(file, pcm, 16000, 0))
	require.NoError(t, file.Close())

	data, err := os.ReadFile(file.Name())
	require.NoError(t, err)
	require.Len(t, data, 44+len(pcm))
	require.Equal(t, "RIFF", string(data[0:4]))
	require.Equal(t, "WAVE", string(data[8:12]))
	require.Equal(t, "data", string(data[36:40]))
	require.Equal(t, uint16(1), binary.LittleEndian.Uint16(data[22:24]))
	require.Equal(t, uint32(16000), binary.LittleEndian.Uint32(data[24:28]))
	require.Equal(t, uint32(len(pcm)), binary.LittleEndian.Uint32(data[40:44]))
}

func TestStartWiresDependenciesAndStreamsAudio(t *testing.T) {
	cfg := config.Default()
	cfg.Vocab.GlobalSets = []string{"names"}
	cfg.Vocab.Sets["names"] = config.VocabSet{Name: "names", Boost: 2, Phrases: []string{"Parley"}}

	capture := newFakeCapture()
	stream := newFakeStream()
	var dialed asr.Config
	r := newTestRecognizer(cfg, capture, stream, func(c asr.Config) { dialed = c })

	require.NoError(t, r.Start(context.Background()))
	require.ErrorIs(t, r.Start(context.Background()), ErrAlreadyStarted)
	require.Equal(t, "secret", dialed.APIKey)
	require.Equal(t, []string{"Parley:2"}, dialed.Keywords)
	require.Equal(t, 3*time.Second, dialed.DialTimeout)

	capture.chunks <- []byte{1, 2}
	capture.chunks <- []byte{}
	capture.chunks <- []byte{3, 4}

	stream.results <- asr.Transcript{Text: "hello"}
	stream.results <- asr.Transcript{Text: "hello world", Final: true}
	stream.results <- asr.Transcript{Final: true}

	require.Equal(t, session.RecognitionEvent{Kind: session.RecognitionPartial, Text: "hello"}, <-r.Events())
	require.Equal(t, session.RecognitionEvent{Kind: session.RecognitionFinal, Text: "hello world", OK: true}, <-r.Events())
	require.Equal(t, session.RecognitionEvent{Kind: session.RecognitionFinal}, <-r.Events())

	require.NoError(t, r.Stop(context.Background()))
	require.Equal(t, session.RecognitionEvent{Kind: session.RecognitionStopped}, <-r.Events())
	require.True(t, capture.stopped())
	require.Equal(t, [][]byte{{1, 2}, {3, 4}}, stream.sent())

	// idle stop is a no-op
	require.NoError(t, r.Stop(context.Background()))
}

func TestStreamErrorEmitsCanceled(t *testing.T) {
	capture := newFakeCapture()
	stream := newFakeStream()
	r := newTestRecognizer(config.Default(), capture, stream, nil)

	require.NoError(t, r.Start(context.Background()))
	stream.fail(errors.New("socket reset"))

	ev := <-r.Events()
	require.Equal(t, session.RecognitionCanceled, ev.Kind)
	require.EqualError(t, ev.Err, "socket reset")
	require.NoError(t, r.Stop(context.Background()))
}

func TestStopSendErrorCancelsStream(t *testing.T) {
	capture := newFakeCapture()
	stream := newFakeStream()
	stream.sendErr = errors.New("broken pipe")
	r := newTestRecognizer(config.Default(), capture, stream, nil)

	require.NoError(t, r.Start(context.Background()))
	capture.chunks <- []byte{1, 2}

	err := r.Stop(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "send audio stream")
	require.True(t, stream.canceled())
}

func TestStartFailsWhenDeviceSelectionFails(t *testing.T) {
	r := NewRecognizer(config.Default(), "", nil)
	r.selectDevice = func(context.Context, string, string) (audio.Selection, error) {
		return audio.Selection{}, errors.New("no audio input devices found")
	}
	r.dialStream = func(context.Context, asr.Config) (streamClient, error) {
		t.Fatal("dialStream should not be called")
		return nil, nil
	}

	err := r.Start(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "no audio input")
}

func TestStartCancelsStreamWhenCaptureFails(t *testing.T) {
	stream := newFakeStream()
	r := NewRecognizer(config.Default(), "", nil)
	r.selectDevice = func(context.Context, string, string) (audio.Selection, error) {
		return audio.Selection{Device: audio.Device{ID: "mic"}}, nil
	}
	r.dialStream = func(context.Context, asr.Config) (streamClient, error) { return stream, nil }
	r.startCapture = func(context.Context, audio.Device) (captureClient, error) {
		return nil, errors.New("pulse busy")
	}

	require.Error(t, r.Start(context.Background()))
	require.True(t, stream.canceled())
	require.Nil(t, r.cur)
}

func TestTranscriptDumpWritesJSONL(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())
	cfg := config.Default()
	cfg.Debug.EnableTranscriptDump = true

	capture := newFakeCapture()
	stream := newFakeStream()
	r := newTestRecognizer(cfg, capture, stream, nil)

	require.NoError(t, r.Start(context.Background()))
	stream.results <- asr.Transcript{Text: "dumped", Final: true}
	<-r.Events()
	require.NoError(t, r.Stop(context.Background()))
	<-r.Events()

	matches, err := filepath.Glob(filepath.Join(os.Getenv("XDG_STATE_HOME"), "parley", "debug", "transcript-*.jsonl"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	require.Contains(t, string(data), `"text":"dumped"`)
}

func TestCloseUnblocksPendingEmits(t *testing.T) {
	capture := newFakeCapture()
	stream := newFakeStream()
	r := newTestRecognizer(config.Default(), capture, stream, nil)
	r.events = make(chan session.RecognitionEvent)

	require.NoError(t, r.Start(context.Background()))
	stream.results <- asr.Transcript{Text: "nobody listening", Final: true}

	r.Close()
	require.True(t, capture.stopped())
	require.True(t, stream.canceled())
}

func newTestRecognizer(cfg config.Config, capture *fakeCapture, stream *fakeStream, onDial func(asr.Config)) *Recognizer {
	r := NewRecognizer(cfg, "secret", nil)
	r.selectDevice = func(context.Context, string, string) (audio.Selection, error) {
		return audio.Selection{Device: audio.Device{ID: "mic-1", Description: "Mic"}}, nil
	}
	r.dialStream = func(_ context.Context, c asr.Config) (streamClient, error) {
		if onDial != nil {
			onDial(c)
		}
		return stream, nil
	}
	r.startCapture = func(context.Context, audio.Device) (captureClient, error) {
		return capture, nil
	}
	return r
}

type fakeCapture struct {
	chunks chan []byte
	once   sync.Once
	mu     sync.Mutex
	stop   bool
}

func newFakeCapture() *fakeCapture {
	return &fakeCapture{chunks: make(chan []byte, 8)}
}

func (f *fakeCapture) Stop() error {
	f.once.Do(func() {
		f.mu.Lock()
		f.stop = true
		f.mu.Unlock()
		close(f.chunks)
	})
	return nil
}

func (f *fakeCapture) stopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stop
}

func (f *fakeCapture) Chunks() <-chan []byte { return f.chunks }
func (f *fakeCapture) BytesCaptured() int64     { return 0 }
func (f *fakeCapture) Duration() time.Duration { return 0 }
func (f *fakeCapture) RawPCM() []byte           { return nil }

type fakeStream struct {
	results chan asr.Transcript
	sendErr error

	mu       sync.Mutex
	chunks   [][]byte
	err      error
	cancel   bool
	finished bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{results: make(chan asr.Transcript, 8)}
}

func (f *fakeStream) SendAudio(_ context.Context, chunk []byte) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunks = append(f.chunks, append([]byte(nil), chunk...))
	return nil
}

func (f *fakeStream) CloseSend(context.Context) error {
	f.end(nil)
	return nil
}

func (f *fakeStream) Cancel() {
	f.mu.Lock()
	f.cancel = true
	f.mu.Unlock()
	f.end(nil)
}

func (f *fakeStream) fail(err error) { f.end(err) }

func (f *fakeStream) end(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finished {
		return
	}
	f.finished = true
	f.err = err
	close(f.results)
}

func (f *fakeStream) Results() <-chan asr.Transcript { return f.results }

func (f *fakeStream) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeStream) sent() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.chunks...)
}

func (f *fakeStream) canceled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancel
}
