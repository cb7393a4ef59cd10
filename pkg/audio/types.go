// Package audio provides microphone capture and PCM utility types for the
// BanglaRAG voice pipeline.
//
// The central type is [Capture], an exclusive portaudio-backed microphone
// stream that yields fixed-size [Frame] values. Frames are mono 16-bit
// little-endian signed PCM; their duration is fixed at stream-open time so
// that downstream voice-activity detection always sees uniform input.
package audio

import "time"

// Frame is a fixed-duration slice of mono 16-bit LE PCM samples together
// with the wall-clock time it was captured. Frames are ephemeral: they are
// produced by [Capture.ReadFrame] and consumed immediately by the turn
// segmenter, which copies them into an utterance buffer when needed.
type Frame struct {
	// PCM is the raw sample data: 16-bit little-endian signed, mono.
	PCM []byte

	// Captured is the wall-clock time the frame was read from the device.
	Captured time.Time
}

// Duration returns the play-time length of the frame at the given sample
// rate. Returns 0 for an invalid rate.
func (f Frame) Duration(sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := len(f.PCM) / bytesPerSample
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

// bytesPerSample is fixed at 2 for 16-bit PCM.
const bytesPerSample = 2

// FrameBytes returns the byte length of a single frame for the given sample
// rate and frame duration. All capture and VAD code must agree on this value.
func FrameBytes(sampleRate, frameDurationMs int) int {
	return sampleRate * frameDurationMs / 1000 * bytesPerSample
}
