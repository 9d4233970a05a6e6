package audio

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

const (
	bytesPerSample    = 2
	defaultSampleRate = 16000
	defaultFrame      = 20 * time.Millisecond
	chunkQueue        = 128
)

// CaptureOptions shapes the mono s16le stream sent to the recognizer.
type CaptureOptions struct {
	// SampleRate in Hz; zero means 16 kHz.
	SampleRate int
	// Frame is the audio length of each chunk; zero means 20ms.
	Frame time.Duration
	// KeepRaw retains the whole take for debug dumps.
	KeepRaw bool
}

func (o CaptureOptions) sampleRate() int {
	if o.SampleRate <= 0 {
		return defaultSampleRate
	}
	return o.SampleRate
}

// frameBytes is the chunk size in bytes, at least one sample.
func (o CaptureOptions) frameBytes() int {
	frame := o.Frame
	if frame <= 0 {
		frame = defaultFrame
	}
	samples := int(int64(o.sampleRate()) * int64(frame) / int64(time.Second))
	if samples < 1 {
		samples = 1
	}
	return samples * bytesPerSample
}

// Capture records one push-to-talk take from a Pulse source and hands it out
// as fixed-size chunks. The last chunk may be short.
type Capture struct {
	device     Device
	sampleRate int
	frameBytes int
	keepRaw    bool

	client *pulse.Client
	stream *pulse.RecordStream

	chunks chan []byte
	done   chan struct{}

	mu       sync.Mutex
	stopped  bool
	partial  []byte
	take     []byte
	writers  sync.WaitGroup
	received atomic.Int64
}

func newCapture(device Device, opts CaptureOptions) *Capture {
	return &Capture{
		device:     device,
		sampleRate: opts.sampleRate(),
		frameBytes: opts.frameBytes(),
		keepRaw:    opts.KeepRaw,
		chunks:     make(chan []byte, chunkQueue),
		done:       make(chan struct{}),
	}
}

// StartCapture opens a record stream on device. The capture stops itself when
// ctx ends.
func StartCapture(ctx context.Context, device Device, opts CaptureOptions) (*Capture, error) {
	client, err := newClient(iconMicrophone)
	if err != nil {
		return nil, err
	}

	source, err := client.SourceByID(device.ID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("resolve source %q: %w", device.ID, err)
	}

	c := newCapture(device, opts)
	c.client = client

	stream, err := client.NewRecord(
		pulse.NewWriter(writerFunc(c.write), pulseproto.FormatInt16LE),
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(c.sampleRate),
		pulse.RecordBufferFragmentSize(uint32(c.frameBytes)),
		pulse.RecordMediaName("parley voice input"),
	)
	if err != nil {
		_ = c.Stop()
		return nil, fmt.Errorf("create pulse record stream: %w", err)
	}
	c.stream = stream
	stream.Start()

	go func() {
		select {
		case <-ctx.Done():
			_ = c.Stop()
		case <-c.done:
		}
	}()
	return c, nil
}

// Device returns the source being recorded.
func (c *Capture) Device() Device {
	return c.device
}

// Chunks is closed once Stop has flushed the final partial chunk.
func (c *Capture) Chunks() <-chan []byte {
	return c.chunks
}

// BytesCaptured reports how much PCM Pulse has delivered.
func (c *Capture) BytesCaptured() int64 {
	return c.received.Load()
}

// Duration converts BytesCaptured to audio time.
func (c *Capture) Duration() time.Duration {
	samples := c.BytesCaptured() / bytesPerSample
	return time.Duration(samples) * time.Second / time.Duration(c.sampleRate)
}

// RawPCM returns a copy of the take, or nil unless KeepRaw was set.
func (c *Capture) RawPCM() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.take == nil {
		return nil
	}
	return append([]byte(nil), c.take...)
}

// Stop ends the record stream. It is safe to call more than once.
func (c *Capture) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	close(c.done)
	c.mu.Unlock()

	if c.stream != nil {
		c.stream.Stop()
		c.stream.Close()
	}
	if c.client != nil {
		c.client.Close()
	}

	// No write is in flight past this point, so partial is stable.
	c.writers.Wait()
	if tail := c.partial; len(tail) > 0 {
		c.partial = nil
		select {
		case c.chunks <- tail:
		default:
		}
	}
	close(c.chunks)
	return nil
}

// write is the Pulse record callback. It blocks while the chunk queue is full
// and reports io.EOF once the capture is stopped.
func (c *Capture) write(pcm []byte) (int, error) {
	if len(pcm) == 0 {
		return 0, nil
	}

	ready, ok := c.split(pcm)
	if !ok {
		return 0, io.EOF
	}
	defer c.writers.Done()

	for _, chunk := range ready {
		select {
		case c.chunks <- chunk:
		case <-c.done:
			return 0, io.EOF
		}
	}
	return len(pcm), nil
}

// split appends pcm to the pending partial chunk and cuts off every full
// chunk. On success the caller owns one writers slot.
func (c *Capture) split(pcm []byte) ([][]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return nil, false
	}
	c.writers.Add(1)
	c.received.Add(int64(len(pcm)))

	if c.keepRaw {
		c.take = append(c.take, pcm...)
	}
	c.partial = append(c.partial, pcm...)

	var ready [][]byte
	for len(c.partial) >= c.frameBytes {
		chunk := make([]byte, c.frameBytes)
		copy(chunk, c.partial)
		c.partial = c.partial[c.frameBytes:]
		ready = append(ready, chunk)
	}
	return ready, true
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}
