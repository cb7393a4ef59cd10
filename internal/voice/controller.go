package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banglarag/banglarag/internal/observe"
	"github.com/banglarag/banglarag/internal/rag"
	"github.com/banglarag/banglarag/internal/transcribe"
	"github.com/banglarag/banglarag/pkg/audio"
	"github.com/banglarag/banglarag/pkg/provider/vad"
)

// statusMisheard is surfaced when transcription fails or hears nothing.
const statusMisheard = "Sorry, I couldn't understand your question. Please try again."

// answerOnError stands in for the answer when generation fails. The turn is
// still recorded; a failed answer must never silently drop a question.
const answerOnError = "An error occurred while processing your question."

// defaultReadRetryDelay is the pause after a transient frame-read error.
const defaultReadRetryDelay = 100 * time.Millisecond

// FrameReader is the audio source consumed by the [Controller].
// *audio.Capture satisfies it.
type FrameReader interface {
	ReadFrame() (audio.Frame, error)
	Close() error
}

// Transcriber converts one complete utterance of PCM into text.
// *transcribe.Gateway satisfies it.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte) (transcribe.Result, error)
}

// Answerer answers one question. *rag.Processor satisfies it.
type Answerer interface {
	Answer(ctx context.Context, question string) (rag.Answer, error)
}

// Callbacks notify the caller of conversation progress. All fields are
// optional. They are invoked synchronously from the processing path and in a
// fixed order per turn (question detected, answer ready, status), so callers
// must not block them indefinitely.
type Callbacks struct {
	// OnQuestionDetected fires when an utterance transcribes to a question.
	OnQuestionDetected func(question string)

	// OnAnswerReady fires when an answer (or the error stand-in) is ready.
	OnAnswerReady func(question, answer string)

	// OnStatus fires for user-facing status messages, e.g. when an utterance
	// could not be understood.
	OnStatus func(message string)
}

// ControllerOption is a functional option for configuring a [Controller].
type ControllerOption func(*Controller)

// WithCallbacks sets the progress callbacks.
func WithCallbacks(cb Callbacks) ControllerOption {
	return func(c *Controller) { c.callbacks = cb }
}

// WithControllerLogger sets the logger. Default: [slog.Default].
func WithControllerLogger(l *slog.Logger) ControllerOption {
	return func(c *Controller) { c.logger = l }
}

// WithControllerMetrics attaches metrics instruments. Default: no metrics.
func WithControllerMetrics(m *observe.Metrics) ControllerOption {
	return func(c *Controller) { c.metrics = m }
}

// WithReadRetryDelay sets the pause before retrying after a transient
// frame-read error. Default: 100ms.
func WithReadRetryDelay(d time.Duration) ControllerOption {
	return func(c *Controller) { c.readRetryDelay = d }
}

// Controller drives the continuous conversation loop: read a frame, classify
// it, feed the segmenter, and on a completed utterance transcribe it, answer
// it, and record the turn.
//
// The frame-read loop never waits on processing. A completed utterance is
// handed to a single in-flight processing goroutine while the loop keeps
// draining the device; drained frames are discarded, not segmented, so
// nothing said during processing starts a new turn and no slow answer can
// corrupt the next utterance's segmentation.
type Controller struct {
	capture     FrameReader
	detector    vad.Detector
	transcriber Transcriber
	answerer    Answerer
	segmenter   *Segmenter

	history        *History
	callbacks      Callbacks
	logger         *slog.Logger
	metrics        *observe.Metrics
	readRetryDelay time.Duration

	processing atomic.Bool
	wg         sync.WaitGroup
}

// NewController wires a conversation loop. The capture is owned by the
// controller from here on: [Controller.Run] closes it on every exit path.
func NewController(
	capture FrameReader,
	detector vad.Detector,
	transcriber Transcriber,
	answerer Answerer,
	cfg SegmenterConfig,
	opts ...ControllerOption,
) (*Controller, error) {
	if capture == nil || detector == nil || transcriber == nil || answerer == nil {
		return nil, fmt.Errorf("voice: capture, detector, transcriber, and answerer must not be nil")
	}
	seg, err := NewSegmenter(cfg)
	if err != nil {
		return nil, err
	}
	c := &Controller{
		capture:        capture,
		detector:       detector,
		transcriber:    transcriber,
		answerer:       answerer,
		segmenter:      seg,
		history:        &History{},
		logger:         slog.Default(),
		readRetryDelay: defaultReadRetryDelay,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// History returns the conversation history. Safe to read while Run is active.
func (c *Controller) History() *History { return c.history }

// Run executes the conversation loop until ctx is cancelled or the capture
// is closed. The audio device is released on every exit path, and any
// in-flight turn is allowed to finish appending before Run returns, so the
// history is never left mid-write.
func (c *Controller) Run(ctx context.Context) error {
	defer c.capture.Close()
	defer c.wg.Wait()

	if c.metrics != nil {
		c.metrics.ActiveSessions.Add(ctx, 1)
		defer c.metrics.ActiveSessions.Add(context.WithoutCancel(ctx), -1)
	}
	c.logger.Info("conversation loop started")

	for {
		if err := ctx.Err(); err != nil {
			c.logger.Info("conversation loop stopped", "reason", "cancelled")
			return err
		}

		frame, err := c.capture.ReadFrame()
		if err != nil {
			if errors.Is(err, audio.ErrCaptureClosed) {
				c.logger.Info("conversation loop stopped", "reason", "capture closed")
				return nil
			}
			// A single corrupted read must not kill the session.
			c.logger.Warn("frame read failed, retrying", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.readRetryDelay):
			}
			continue
		}

		// Drain-but-discard while a turn is being processed.
		if c.processing.Load() {
			continue
		}

		isSpeech, err := c.detector.IsSpeech(frame.PCM)
		if err != nil {
			// The fallback detector already degraded; a hard error here means
			// both strategies failed. Treat the frame as silence.
			c.logger.Warn("vad failed, treating frame as silence", "error", err)
			isSpeech = false
		}

		ev := c.segmenter.Feed(frame, isSpeech)
		switch ev.Outcome {
		case OutcomeNone:
		case OutcomeAborted:
			c.recordUtterance(ctx, ev.Outcome)
			c.logger.Debug("utterance aborted, speech too short")
		case OutcomeComplete, OutcomeForcedCutoff:
			c.recordUtterance(ctx, ev.Outcome)
			if ev.Outcome == OutcomeForcedCutoff {
				c.logger.Warn("utterance cut off at max duration",
					"duration", ev.Utterance.Duration)
			}
			c.processing.Store(true)
			c.wg.Add(1)
			go func(u Utterance) {
				defer c.wg.Done()
				defer c.processing.Store(false)
				c.process(ctx, u)
			}(ev.Utterance)
		}
	}
}

// process handles one completed utterance: transcribe, answer, record,
// notify. It runs off the read loop; at most one invocation is in flight.
func (c *Controller) process(ctx context.Context, u Utterance) {
	c.logger.Info("processing utterance",
		"duration", u.Duration, "frames", u.FrameCount)

	res, err := c.transcriber.Transcribe(ctx, u.PCM)
	if err != nil || res.Text == "" {
		if err != nil {
			c.logger.Warn("transcription failed", "error", err, "utterance_duration", u.Duration)
		} else {
			c.logger.Info("transcription empty", "utterance_duration", u.Duration)
		}
		c.status(statusMisheard)
		return
	}

	c.logger.Info("question detected", "language", res.Language, "length", len(res.Text))
	if c.callbacks.OnQuestionDetected != nil {
		c.callbacks.OnQuestionDetected(res.Text)
	}

	answer, err := c.answerer.Answer(ctx, res.Text)
	if err != nil {
		// Graceful degradation: the error text becomes the answer.
		c.logger.Error("answer generation failed", "error", err)
		answer = rag.Answer{Text: answerOnError, Language: res.Language, Citations: []rag.Citation{}}
	}

	c.history.Append(Turn{
		Question:  res.Text,
		Answer:    answer.Text,
		Citations: answer.Citations,
		Language:  answer.Language,
		Timestamp: u.Start,
	})

	if c.callbacks.OnAnswerReady != nil {
		c.callbacks.OnAnswerReady(res.Text, answer.Text)
	}
}

func (c *Controller) status(message string) {
	if c.callbacks.OnStatus != nil {
		c.callbacks.OnStatus(message)
	}
}

func (c *Controller) recordUtterance(ctx context.Context, o Outcome) {
	if c.metrics != nil {
		c.metrics.RecordUtterance(ctx, o.String())
	}
}
