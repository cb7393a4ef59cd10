package vad_test

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/banglarag/banglarag/pkg/provider/vad"
	"github.com/banglarag/banglarag/pkg/provider/vad/mock"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFallbackUsesPrimary(t *testing.T) {
	primary := &mock.Detector{Result: true}
	secondary := &mock.Detector{Result: false}
	f := vad.NewFallback(primary, secondary, discardLogger())

	active, err := f.IsSpeech(make([]byte, 960))
	if err != nil {
		t.Fatalf("IsSpeech: %v", err)
	}
	if !active {
		t.Error("expected primary result true")
	}
	if secondary.CallCount() != 0 {
		t.Errorf("secondary called %d times, want 0", secondary.CallCount())
	}
}

func TestFallbackDegradesOnPrimaryError(t *testing.T) {
	primary := &mock.Detector{Err: errors.New("model crashed")}
	secondary := &mock.Detector{Result: true}
	f := vad.NewFallback(primary, secondary, discardLogger())

	for i := 0; i < 3; i++ {
		active, err := f.IsSpeech(make([]byte, 960))
		if err != nil {
			t.Fatalf("call %d: IsSpeech: %v", i, err)
		}
		if !active {
			t.Errorf("call %d: expected fallback result true", i)
		}
	}
	if secondary.CallCount() != 3 {
		t.Errorf("secondary called %d times, want 3", secondary.CallCount())
	}
}

func TestFallbackPropagatesSecondaryError(t *testing.T) {
	wantErr := errors.New("no detector left")
	primary := &mock.Detector{Err: errors.New("primary down")}
	secondary := &mock.Detector{Err: wantErr}
	f := vad.NewFallback(primary, secondary, discardLogger())

	if _, err := f.IsSpeech(make([]byte, 960)); !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want %v", err, wantErr)
	}
}
