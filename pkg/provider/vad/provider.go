// Package vad defines the Detector interface for Voice Activity Detection
// backends.
//
// A detector classifies one fixed-size audio frame at a time as speech or
// silence. Detection is synchronous by design: IsSpeech returns immediately,
// making it suitable for the low-latency capture loop that gates turn
// segmentation.
//
// Two backends ship with BanglaRAG: a WebRTC VAD wrapper (the primary,
// accurate classifier) and an energy-based detector (the fallback). The
// [Fallback] wrapper composes the two so that a failing primary silently
// degrades to the energy detector instead of aborting the session.
//
// A single Detector is owned by one capture loop and need not be safe for
// concurrent use unless the implementation documents otherwise.
package vad

// Config holds the audio format parameters a detector is constructed with.
// Frames passed to IsSpeech must match this format exactly.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Supported values are
	// 8000, 16000, 32000, and 48000.
	SampleRate int

	// FrameDurationMs is the duration of each audio frame in milliseconds.
	// WebRTC VAD operates on 10, 20, or 30 ms frames.
	FrameDurationMs int
}

// Detector classifies audio frames as speech or silence.
type Detector interface {
	// IsSpeech reports whether the frame contains speech. The frame must be
	// raw mono 16-bit little-endian PCM matching the Config the detector was
	// created with. Returns an error if the frame size is wrong or the
	// backend fails.
	//
	// IsSpeech is called once per frame from the capture loop and must not
	// block.
	IsSpeech(frame []byte) (bool, error)
}
