package vad

import (
	"log/slog"
	"sync"
)

// Fallback composes a primary detector with a secondary one. Frames are
// classified by the primary; if the primary returns an error the frame is
// re-classified by the secondary and the session keeps running. The first
// degradation is logged at warn level, subsequent ones at debug to keep a
// persistently broken primary from flooding the log.
type Fallback struct {
	primary   Detector
	secondary Detector
	logger    *slog.Logger
	warnOnce  sync.Once
}

// NewFallback wires primary and secondary detectors together. logger may be
// nil, in which case slog.Default() is used.
func NewFallback(primary, secondary Detector, logger *slog.Logger) *Fallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{primary: primary, secondary: secondary, logger: logger}
}

// IsSpeech classifies the frame with the primary detector, degrading to the
// secondary on error. An error is only returned if both detectors fail.
func (f *Fallback) IsSpeech(frame []byte) (bool, error) {
	active, err := f.primary.IsSpeech(frame)
	if err == nil {
		return active, nil
	}
	logged := false
	f.warnOnce.Do(func() {
		f.logger.Warn("primary vad failed, degrading to fallback detector", "error", err)
		logged = true
	})
	if !logged {
		f.logger.Debug("primary vad failed, using fallback detector", "error", err)
	}
	return f.secondary.IsSpeech(frame)
}

var _ Detector = (*Fallback)(nil)
