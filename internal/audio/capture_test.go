package audio

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCaptureOptionsFrameBytes(t *testing.T) {
	require.Equal(t, 640, CaptureOptions{}.frameBytes())
	require.Equal(t, 960, CaptureOptions{SampleRate: 24000}.frameBytes())
	require.Equal(t, 1600, CaptureOptions{SampleRate: 16000, Frame: 50 * time.Millisecond}.frameBytes())
	require.Equal(t, 2, CaptureOptions{SampleRate: 8000, Frame: time.Microsecond}.frameBytes())
}

func TestCaptureSplitsIntoFramesAndFlushesTailOnStop(t *testing.T) {
	c := newCapture(Device{ID: "mic-1"}, CaptureOptions{SampleRate: 24000, KeepRaw: true})

	pcm := bytes.Repeat([]byte{1, 2, 3}, 400) // 1200 bytes: one 960-byte frame plus 240
	n, err := c.write(pcm)
	require.NoError(t, err)
	require.Equal(t, len(pcm), n)
	require.Equal(t, int64(len(pcm)), c.BytesCaptured())
	require.Equal(t, 25*time.Millisecond, c.Duration())
	require.Equal(t, pcm, c.RawPCM())

	require.Len(t, <-c.Chunks(), 960)
	require.NoError(t, c.Stop())
	require.NoError(t, c.Stop())

	tail, ok := <-c.Chunks()
	require.True(t, ok)
	require.Equal(t, pcm[960:], tail)

	_, ok = <-c.Chunks()
	require.False(t, ok)
}

func TestCaptureDropsRawTakeUnlessKept(t *testing.T) {
	c := newCapture(Device{}, CaptureOptions{})
	_, err := c.write(make([]byte, 100))
	require.NoError(t, err)
	require.Nil(t, c.RawPCM())
	require.Equal(t, int64(100), c.BytesCaptured())
}

func TestCaptureWriteAfterStopReturnsEOF(t *testing.T) {
	c := newCapture(Device{ID: "mic-1"}, CaptureOptions{})
	require.Equal(t, "mic-1", c.Device().ID)
	require.NoError(t, c.Stop())

	n, err := c.write([]byte{1, 2, 3})
	require.Equal(t, 0, n)
	require.ErrorIs(t, err, io.EOF)
	require.Zero(t, c.BytesCaptured())
}

func TestCaptureStopUnblocksWriterOnFullQueue(t *testing.T) {
	c := newCapture(Device{}, CaptureOptions{})
	for range chunkQueue {
		_, err := c.write(make([]byte, 640))
		require.NoError(t, err)
	}

	blocked := make(chan error, 1)
	go func() {
		_, err := c.write(make([]byte, 640))
		blocked <- err
	}()

	select {
	case <-blocked:
		t.Fatal("write returned while the chunk queue was full")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, c.Stop())
	require.ErrorIs(t, <-blocked, io.EOF)
}

func TestWriterFuncDelegatesWrite(t *testing.T) {
	var got []byte
	w := writerFunc(func(b []byte) (int, error) {
		got = b
		return len(b), nil
	})

	n, err := w.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, []byte{1, 2, 3}, got)
}
