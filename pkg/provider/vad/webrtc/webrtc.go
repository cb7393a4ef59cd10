// Package webrtc implements vad.Detector on top of the WebRTC VAD, the same
// GMM-based classifier used by browsers for echo-free capture. It is the
// primary detector: fast, dependency-light, and tuned for telephony-band
// speech.
package webrtc

import (
	"fmt"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"

	"github.com/banglarag/banglarag/pkg/audio"
	"github.com/banglarag/banglarag/pkg/provider/vad"
)

// Option configures a Detector.
type Option func(*Detector)

// WithMode sets the VAD aggressiveness, 0 (least aggressive, most
// speech-permissive) through 3 (most aggressive). The default is 2.
func WithMode(mode int) Option {
	return func(d *Detector) {
		d.mode = mode
	}
}

// Detector wraps the WebRTC voice activity detector. It is not safe for
// concurrent use; each capture loop must own its own Detector.
type Detector struct {
	inner      *webrtcvad.VAD
	mode       int
	sampleRate int
	frameBytes int
}

// New creates a WebRTC detector for the given audio format. The sample rate
// must be 8, 16, 32, or 48 kHz and the frame duration 10, 20, or 30 ms; other
// formats are rejected by the underlying library.
func New(cfg vad.Config, opts ...Option) (*Detector, error) {
	inner, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("creating webrtc vad: %w", err)
	}
	d := &Detector{
		inner:      inner,
		mode:       2,
		sampleRate: cfg.SampleRate,
		frameBytes: audio.FrameBytes(cfg.SampleRate, cfg.FrameDurationMs),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.mode < 0 || d.mode > 3 {
		return nil, fmt.Errorf("webrtc vad mode %d out of range [0,3]", d.mode)
	}
	if err := inner.SetMode(d.mode); err != nil {
		return nil, fmt.Errorf("setting webrtc vad mode %d: %w", d.mode, err)
	}
	if ok := webrtcvad.ValidRateAndFrameLength(cfg.SampleRate, d.frameBytes/2); !ok {
		return nil, fmt.Errorf("webrtc vad does not support %d Hz / %d ms frames",
			cfg.SampleRate, cfg.FrameDurationMs)
	}
	return d, nil
}

// IsSpeech classifies one PCM frame.
func (d *Detector) IsSpeech(frame []byte) (bool, error) {
	if len(frame) != d.frameBytes {
		return false, fmt.Errorf("frame is %d bytes, want %d", len(frame), d.frameBytes)
	}
	active, err := d.inner.Process(d.sampleRate, frame)
	if err != nil {
		return false, fmt.Errorf("webrtc vad process: %w", err)
	}
	return active, nil
}

// Mode returns the configured aggressiveness.
func (d *Detector) Mode() int { return d.mode }

var _ vad.Detector = (*Detector)(nil)
