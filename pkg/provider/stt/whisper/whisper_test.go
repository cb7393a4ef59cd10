package whisper

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/banglarag/banglarag/pkg/provider/stt"
)

func TestNewRequiresServerURL(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty serverURL")
	}
}

func TestTranscribe(t *testing.T) {
	var gotLanguage, gotModel, gotPrompt string
	var gotWAV []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/inference" {
			t.Errorf("path = %q, want /inference", r.URL.Path)
		}
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Fatalf("parse multipart form: %v", err)
		}
		gotLanguage = r.FormValue("language")
		gotModel = r.FormValue("model")
		gotPrompt = r.FormValue("prompt")

		f, _, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer f.Close()
		gotWAV, _ = io.ReadAll(f)

		json.NewEncoder(w).Encode(map[string]string{"text": " What is an algorithm? "})
	}))
	defer srv.Close()

	p, err := New(srv.URL, WithModel("base"), WithLanguage("en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	pcm := make([]byte, 16000*2) // one second at 16 kHz
	res, err := p.Transcribe(context.Background(), pcm, stt.Config{
		SampleRate: 16000,
		Language:   "bn",
		Prompt:     "previous turn",
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if res.Text != "What is an algorithm?" {
		t.Errorf("Text = %q, want trimmed transcript", res.Text)
	}
	if res.Language != "bn" {
		t.Errorf("Language = %q, want bn (request overrides default)", res.Language)
	}
	if res.Duration != time.Second {
		t.Errorf("Duration = %v, want 1s", res.Duration)
	}
	if gotLanguage != "bn" || gotModel != "base" || gotPrompt != "previous turn" {
		t.Errorf("form fields language=%q model=%q prompt=%q", gotLanguage, gotModel, gotPrompt)
	}
	if len(gotWAV) != 44+len(pcm) {
		t.Errorf("wav upload is %d bytes, want %d", len(gotWAV), 44+len(pcm))
	}
	if string(gotWAV[:4]) != "RIFF" {
		t.Errorf("wav upload missing RIFF magic")
	}
	if rate := binary.LittleEndian.Uint32(gotWAV[24:28]); rate != 16000 {
		t.Errorf("wav sample rate = %d, want 16000", rate)
	}
}

func TestTranscribeDefaultLanguage(t *testing.T) {
	var gotLanguage string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseMultipartForm(10 << 20)
		gotLanguage = r.FormValue("language")
		json.NewEncoder(w).Encode(map[string]string{"text": "ok"})
	}))
	defer srv.Close()

	p, err := New(srv.URL, WithLanguage("bn"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := p.Transcribe(context.Background(), make([]byte, 320), stt.Config{})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if gotLanguage != "bn" {
		t.Errorf("language field = %q, want provider default bn", gotLanguage)
	}
	if res.Language != "bn" {
		t.Errorf("Language = %q, want bn", res.Language)
	}
}

func TestTranscribeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Transcribe(context.Background(), make([]byte, 320), stt.Config{}); err == nil {
		t.Fatal("expected error for HTTP 503")
	}
}

func TestTranscribeContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	p, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := p.Transcribe(ctx, make([]byte, 320), stt.Config{}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
