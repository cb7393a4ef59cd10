// Package mock provides a test double for the vad.Detector interface.
//
// A Detector can be scripted either with a fixed result or with a per-frame
// sequence, and records every frame submitted for inspection.
//
// Example:
//
//	det := &mock.Detector{Results: []bool{true, true, false}}
//	speech, _ := det.IsSpeech(frame)
package mock

import (
	"sync"

	"github.com/banglarag/banglarag/pkg/provider/vad"
)

// Detector is a mock implementation of vad.Detector.
type Detector struct {
	mu sync.Mutex

	// Result is returned by IsSpeech when Results is exhausted or empty.
	Result bool

	// Results, if non-empty, scripts per-call return values. Calls beyond
	// the end of the slice fall back to Result.
	Results []bool

	// Err, if non-nil, is returned by every IsSpeech call.
	Err error

	// Frames records a copy of every frame passed to IsSpeech, in order.
	Frames [][]byte

	calls int
}

// IsSpeech records the frame and returns the next scripted result.
func (d *Detector) IsSpeech(frame []byte) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := make([]byte, len(frame))
	copy(cp, frame)
	d.Frames = append(d.Frames, cp)
	i := d.calls
	d.calls++
	if d.Err != nil {
		return false, d.Err
	}
	if i < len(d.Results) {
		return d.Results[i], nil
	}
	return d.Result, nil
}

// CallCount returns the number of IsSpeech invocations so far. Thread-safe.
func (d *Detector) CallCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// Reset clears all recorded frames and the call counter. Thread-safe.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Frames = nil
	d.calls = 0
}

// Ensure Detector implements vad.Detector at compile time.
var _ vad.Detector = (*Detector)(nil)
