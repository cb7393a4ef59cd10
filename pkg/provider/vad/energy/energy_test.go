package energy

import (
	"testing"

	"github.com/banglarag/banglarag/pkg/audio"
	"github.com/banglarag/banglarag/pkg/provider/vad"
)

func frameOf(sample int16, n int) []byte {
	s := make([]int16, n)
	for i := range s {
		s[i] = sample
	}
	return audio.Int16ToPCM(s)
}

func TestIsSpeech(t *testing.T) {
	cfg := vad.Config{SampleRate: 16000, FrameDurationMs: 30}
	d, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	silence := frameOf(0, 480)
	if active, err := d.IsSpeech(silence); err != nil || active {
		t.Errorf("silence frame: active=%v err=%v, want false, nil", active, err)
	}

	loud := frameOf(8000, 480)
	if active, err := d.IsSpeech(loud); err != nil || !active {
		t.Errorf("loud frame: active=%v err=%v, want true, nil", active, err)
	}
}

func TestIsSpeechRejectsWrongFrameSize(t *testing.T) {
	d, err := New(vad.Config{SampleRate: 16000, FrameDurationMs: 30})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := d.IsSpeech(make([]byte, 100)); err == nil {
		t.Error("expected error for wrong frame size")
	}
}

func TestWithThreshold(t *testing.T) {
	cfg := vad.Config{SampleRate: 16000, FrameDurationMs: 30}
	d, err := New(cfg, WithThreshold(0.9))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// RMS of a constant 16384 signal is 0.5, below the raised threshold.
	if active, _ := d.IsSpeech(frameOf(16384, 480)); active {
		t.Error("expected frame below raised threshold to be silence")
	}

	if _, err := New(cfg, WithThreshold(1.5)); err == nil {
		t.Error("expected error for out-of-range threshold")
	}
}
