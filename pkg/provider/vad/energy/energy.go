// Package energy implements vad.Detector with a plain RMS energy threshold.
//
// It has no model and no external dependency, which makes it the fallback of
// last resort: any microphone that produces samples at all can be segmented
// with it, at the cost of misclassifying loud non-speech noise as speech.
package energy

import (
	"fmt"

	"github.com/banglarag/banglarag/pkg/audio"
	"github.com/banglarag/banglarag/pkg/provider/vad"
)

// DefaultThreshold is the normalized RMS level above which a frame counts as
// speech. Quiet rooms sit well below 0.01; normal speech at arm's length from
// a consumer microphone sits well above it.
const DefaultThreshold = 0.01

// Option configures a Detector.
type Option func(*Detector)

// WithThreshold overrides the RMS speech threshold. The value is on the
// normalized [0, 1] scale of audio.RMS.
func WithThreshold(t float64) Option {
	return func(d *Detector) {
		d.threshold = t
	}
}

// Detector classifies frames by comparing their RMS energy against a fixed
// threshold. It is stateless and safe for concurrent use.
type Detector struct {
	threshold  float64
	frameBytes int
}

// New creates an energy detector for the given audio format.
func New(cfg vad.Config, opts ...Option) (*Detector, error) {
	d := &Detector{
		threshold:  DefaultThreshold,
		frameBytes: audio.FrameBytes(cfg.SampleRate, cfg.FrameDurationMs),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.threshold < 0 || d.threshold > 1 {
		return nil, fmt.Errorf("energy threshold %v out of range [0,1]", d.threshold)
	}
	return d, nil
}

// IsSpeech reports whether the frame's RMS energy exceeds the threshold.
func (d *Detector) IsSpeech(frame []byte) (bool, error) {
	if len(frame) != d.frameBytes {
		return false, fmt.Errorf("frame is %d bytes, want %d", len(frame), d.frameBytes)
	}
	return audio.RMS(frame) > d.threshold, nil
}

// Threshold returns the configured RMS threshold.
func (d *Detector) Threshold() float64 { return d.threshold }

var _ vad.Detector = (*Detector)(nil)
