package whisper

import "testing"

func TestNewNativeRequiresModelPath(t *testing.T) {
	if _, err := NewNative(""); err == nil {
		t.Fatal("expected error for empty modelPath")
	}
}

func TestTrimText(t *testing.T) {
	if got := trimText("  hello "); got != "hello" {
		t.Errorf("trimText = %q, want %q", got, "hello")
	}
	if got := trimText(""); got != "" {
		t.Errorf("trimText(\"\") = %q, want empty", got)
	}
}
