package audio

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"
)

// ErrDeviceUnavailable is returned by [OpenCapture] when no input device
// exists or the stream cannot be opened. At session start this is fatal;
// mid-session it should be treated as a transient audio error.
var ErrDeviceUnavailable = errors.New("audio: input device unavailable")

// ErrCaptureClosed is returned by [Capture.ReadFrame] after Close.
var ErrCaptureClosed = errors.New("audio: capture is closed")

// nowFunc is swapped out in tests to produce deterministic frame timestamps.
var nowFunc = time.Now

// captureActive enforces at most one open [Capture] per process. Opening two
// input streams on the same device is undefined behaviour on most audio
// backends.
var captureActive atomic.Bool

// CaptureConfig describes the stream format for a [Capture].
type CaptureConfig struct {
	// SampleRate in Hz. Must be one of 8000, 16000, 32000, 48000 so that the
	// frames are also valid VAD input.
	SampleRate int

	// FrameDurationMs is the duration of each frame in milliseconds.
	// VAD backends typically require 10, 20, or 30 ms.
	FrameDurationMs int
}

// Validate reports whether the configuration is usable.
func (c CaptureConfig) Validate() error {
	switch c.SampleRate {
	case 8000, 16000, 32000, 48000:
	default:
		return fmt.Errorf("audio: sample rate %d is not one of 8000, 16000, 32000, 48000", c.SampleRate)
	}
	switch c.FrameDurationMs {
	case 10, 20, 30:
	default:
		return fmt.Errorf("audio: frame duration %d ms is not one of 10, 20, 30", c.FrameDurationMs)
	}
	return nil
}

// samplesPerFrame returns the number of int16 samples in one frame.
func (c CaptureConfig) samplesPerFrame() int {
	return c.SampleRate * c.FrameDurationMs / 1000
}

// Capture owns one exclusive mono microphone stream and yields fixed-size
// frames. ReadFrame blocks until a full frame is available and never returns
// a partial frame. The device is released on every exit path via Close,
// which is safe to call more than once and from a different goroutine than
// the reader.
//
// Capture is not safe for concurrent ReadFrame calls; the conversation
// controller owns the single read loop.
type Capture struct {
	cfg    CaptureConfig
	stream *portaudio.Stream
	buf    []int16

	mu     sync.Mutex
	closed bool
}

// OpenCapture initialises portaudio, opens the default input device as a
// mono stream at cfg.SampleRate, and starts it. The returned Capture must be
// closed by the caller. Returns [ErrDeviceUnavailable] (wrapped) when the
// device cannot be opened, and a plain error for invalid configuration.
func OpenCapture(cfg CaptureConfig) (*Capture, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !captureActive.CompareAndSwap(false, true) {
		return nil, errors.New("audio: another capture is already active in this process")
	}

	if err := portaudio.Initialize(); err != nil {
		captureActive.Store(false)
		return nil, fmt.Errorf("%w: initialize: %v", ErrDeviceUnavailable, err)
	}

	c := &Capture{
		cfg: cfg,
		buf: make([]int16, cfg.samplesPerFrame()),
	}

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(cfg.SampleRate), len(c.buf), c.buf)
	if err != nil {
		portaudio.Terminate()
		captureActive.Store(false)
		return nil, fmt.Errorf("%w: open stream: %v", ErrDeviceUnavailable, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		captureActive.Store(false)
		return nil, fmt.Errorf("%w: start stream: %v", ErrDeviceUnavailable, err)
	}

	c.stream = stream
	return c, nil
}

// Config returns the stream format the capture was opened with.
func (c *Capture) Config() CaptureConfig { return c.cfg }

// ReadFrame blocks until one full frame has been read from the device and
// returns it as 16-bit LE PCM bytes with a capture timestamp. It returns
// [ErrCaptureClosed] after Close. Transient device read errors are returned
// as-is; the caller decides whether to retry.
func (c *Capture) ReadFrame() (Frame, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Frame{}, ErrCaptureClosed
	}
	stream := c.stream
	c.mu.Unlock()

	if err := stream.Read(); err != nil {
		// Close may have raced with the blocking read.
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return Frame{}, ErrCaptureClosed
		}
		return Frame{}, fmt.Errorf("audio: read frame: %w", err)
	}

	return Frame{PCM: Int16ToPCM(c.buf), Captured: nowFunc()}, nil
}

// Close stops and closes the stream, terminates portaudio, and clears the
// process-level exclusivity flag. Safe to call multiple times.
func (c *Capture) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	stream := c.stream
	c.stream = nil
	c.mu.Unlock()

	var errs []error
	if stream != nil {
		if err := stream.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("audio: stop stream: %w", err))
		}
		if err := stream.Close(); err != nil {
			errs = append(errs, fmt.Errorf("audio: close stream: %w", err))
		}
	}
	if err := portaudio.Terminate(); err != nil {
		errs = append(errs, fmt.Errorf("audio: terminate: %w", err))
	}
	captureActive.Store(false)
	return errors.Join(errs...)
}
