// Package voice implements the continuous listening loop: utterance
// segmentation over VAD-classified microphone frames, and the conversation
// controller that turns completed utterances into answered questions.
package voice

import (
	"fmt"
	"time"

	"github.com/banglarag/banglarag/pkg/audio"
)

// Outcome is the terminal classification of one segmentation step.
type Outcome int

const (
	// OutcomeNone means the step produced no terminal event.
	OutcomeNone Outcome = iota

	// OutcomeComplete means a full utterance ended with enough trailing
	// silence.
	OutcomeComplete

	// OutcomeAborted means the speech run was too short to be a real
	// utterance (a cough, a click) and was discarded.
	OutcomeAborted

	// OutcomeForcedCutoff means the utterance hit the maximum duration with
	// silence never arriving and was cut off.
	OutcomeForcedCutoff
)

// String returns the outcome name for logs and metrics labels.
func (o Outcome) String() string {
	switch o {
	case OutcomeComplete:
		return "complete"
	case OutcomeAborted:
		return "aborted"
	case OutcomeForcedCutoff:
		return "forced_cutoff"
	default:
		return "none"
	}
}

// Utterance is one spoken turn: the buffered PCM of every frame from the
// first speech frame through the trailing silence, handed off exactly once.
type Utterance struct {
	// PCM is the concatenated 16-bit mono sample data of all buffered frames,
	// trailing silence included.
	PCM []byte

	// Start is the capture time of the first speech frame.
	Start time.Time

	// Duration is the total play time of the buffered frames.
	Duration time.Duration

	// FrameCount is the number of buffered frames.
	FrameCount int
}

// Event is the result of feeding one frame to the [Segmenter]. Utterance is
// populated only for [OutcomeComplete] and [OutcomeForcedCutoff].
type Event struct {
	Outcome   Outcome
	Utterance Utterance
}

// SegmenterConfig tunes the turn segmentation state machine. All durations
// must be positive.
type SegmenterConfig struct {
	// SilenceThreshold is the contiguous trailing silence that ends an
	// utterance.
	SilenceThreshold time.Duration

	// MinSpeech is the minimum speech duration (before the trailing silence
	// began) for an utterance to count; shorter runs are aborted.
	MinSpeech time.Duration

	// MaxUtterance caps a single utterance; when reached the buffer is cut
	// off as-is.
	MaxUtterance time.Duration

	// SampleRate is the PCM sample rate of the incoming frames.
	SampleRate int
}

// Validate checks the configuration. Errors here are fatal at session start.
func (c SegmenterConfig) Validate() error {
	if c.SilenceThreshold <= 0 {
		return fmt.Errorf("voice: silence threshold must be positive, got %v", c.SilenceThreshold)
	}
	if c.MinSpeech <= 0 {
		return fmt.Errorf("voice: min speech duration must be positive, got %v", c.MinSpeech)
	}
	if c.MaxUtterance <= c.SilenceThreshold {
		return fmt.Errorf("voice: max utterance duration %v must exceed silence threshold %v", c.MaxUtterance, c.SilenceThreshold)
	}
	switch c.SampleRate {
	case 8000, 16000, 32000, 48000:
	default:
		return fmt.Errorf("voice: sample rate must be 8000, 16000, 32000, or 48000, got %d", c.SampleRate)
	}
	return nil
}

// Segmenter is the turn segmentation state machine. It consumes one frame
// plus its VAD verdict per step and decides when an utterance is complete,
// aborted, or cut off.
//
// While idle, silence frames are discarded so memory stays bounded. While
// accumulating, every frame is buffered, silence included: trailing silence
// belongs to the recording, and a single speech frame fully resets the
// silence clock, so an utterance only ends after one contiguous silence run
// of at least the threshold.
//
// After every terminal event the Segmenter returns to idle with no state
// carried over. It is not safe for concurrent use; the conversation loop is
// its single caller.
type Segmenter struct {
	cfg SegmenterConfig

	accumulating bool
	buf          []byte
	frameCount   int
	start        time.Time
	total        time.Duration // play time of buffered frames
	silenceRun   time.Duration // contiguous trailing silence, 0 while speech
}

// NewSegmenter creates a Segmenter, validating cfg.
func NewSegmenter(cfg SegmenterConfig) (*Segmenter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Segmenter{cfg: cfg}, nil
}

// Feed advances the state machine by one frame.
//
// Durations are accounted from frame play time rather than wall-clock
// arrival, so segmentation is deterministic under scheduling jitter. A
// silence run of exactly the threshold completes the turn, and a forced
// cutoff fires on the first frame that carries the total to the maximum,
// never later than one frame past it.
func (s *Segmenter) Feed(frame audio.Frame, isSpeech bool) Event {
	frameDur := frame.Duration(s.cfg.SampleRate)

	if !s.accumulating {
		if !isSpeech {
			return Event{Outcome: OutcomeNone}
		}
		s.accumulating = true
		s.start = frame.Captured
		s.buf = append(s.buf[:0], frame.PCM...)
		s.frameCount = 1
		s.total = frameDur
		s.silenceRun = 0
		return Event{Outcome: OutcomeNone}
	}

	s.buf = append(s.buf, frame.PCM...)
	s.frameCount++
	s.total += frameDur

	if isSpeech {
		s.silenceRun = 0
	} else {
		s.silenceRun += frameDur
		if s.silenceRun >= s.cfg.SilenceThreshold {
			if s.total-s.silenceRun >= s.cfg.MinSpeech {
				return s.finish(OutcomeComplete)
			}
			return s.finish(OutcomeAborted)
		}
	}

	if s.total >= s.cfg.MaxUtterance {
		return s.finish(OutcomeForcedCutoff)
	}
	return Event{Outcome: OutcomeNone}
}

// Accumulating reports whether an utterance is currently being buffered.
func (s *Segmenter) Accumulating() bool { return s.accumulating }

// Reset returns the Segmenter to idle, discarding any partial utterance.
func (s *Segmenter) Reset() {
	s.accumulating = false
	s.buf = nil
	s.frameCount = 0
	s.total = 0
	s.silenceRun = 0
}

// finish emits the terminal event and resets to idle. The buffer is moved
// into the event for complete and cutoff outcomes and dropped otherwise.
func (s *Segmenter) finish(outcome Outcome) Event {
	ev := Event{Outcome: outcome}
	if outcome != OutcomeAborted {
		ev.Utterance = Utterance{
			PCM:        s.buf,
			Start:      s.start,
			Duration:   s.total,
			FrameCount: s.frameCount,
		}
		s.buf = nil // moved, not shared
	}
	s.Reset()
	return ev
}
