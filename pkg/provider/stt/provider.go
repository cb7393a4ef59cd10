// Package stt defines the Provider interface for Speech-to-Text backends.
//
// Transcription in BanglaRAG is batch oriented: the voice pipeline segments
// the microphone stream into complete utterances before any provider is
// invoked, so a provider receives one finished utterance of PCM audio and
// returns one transcript. There are no partials and no streaming session to
// manage.
//
// Implementations must be safe for concurrent use; the web layer and the
// voice loop may transcribe simultaneously.
package stt

import (
	"context"
	"time"
)

// Config describes the audio format and recognition hints for a single
// transcription request.
type Config struct {
	// SampleRate is the audio sample rate in Hz of the PCM payload.
	// Defaults to 16000 when zero.
	SampleRate int

	// Language is the ISO 639-1 language code for recognition (e.g. "en",
	// "bn"). An empty string lets the provider auto-detect the language, if
	// supported.
	Language string

	// Prompt is an optional text hint carried over from earlier turns of the
	// conversation. Providers that do not support prompting ignore it.
	Prompt string
}

// Result is the transcript of one utterance.
type Result struct {
	// Text is the transcribed speech content, whitespace-trimmed. An empty
	// Text with a nil error means the provider heard no speech.
	Text string

	// Language is the ISO 639-1 code of the language the provider detected
	// or was told to use. May be empty if unknown.
	Language string

	// Duration is the audio duration of the transcribed utterance.
	Duration time.Duration
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe submits one complete utterance of raw mono 16-bit
	// little-endian PCM audio and returns its transcript. The call blocks
	// until inference finishes or ctx is cancelled.
	Transcribe(ctx context.Context, pcm []byte, cfg Config) (Result, error)
}
