package transcribe_test

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/banglarag/banglarag/internal/observe"
	"github.com/banglarag/banglarag/internal/transcribe"
	"github.com/banglarag/banglarag/pkg/provider/stt"
	sttmock "github.com/banglarag/banglarag/pkg/provider/stt/mock"
)

func TestGateway_PassesHintAndVerifiesLanguage(t *testing.T) {
	provider := &sttmock.Provider{
		Result: stt.Result{Text: "  বাইনারি সার্চ ট্রি কী?  ", Language: "en", Duration: 2 * time.Second},
	}
	g, err := transcribe.New(provider, 16000, transcribe.WithPolicy(transcribe.ByHint(transcribe.LangEnglish)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := g.Transcribe(context.Background(), []byte{0, 0, 0, 0})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if res.Text != "বাইনারি সার্চ ট্রি কী?" {
		t.Errorf("Text: got %q", res.Text)
	}
	// Detection overrides the backend-reported language.
	if res.Language != transcribe.LangBangla {
		t.Errorf("Language: want bn, got %q", res.Language)
	}
	if res.Duration != 2*time.Second {
		t.Errorf("Duration: got %v", res.Duration)
	}

	if len(provider.Calls) != 1 {
		t.Fatalf("calls: want 1, got %d", len(provider.Calls))
	}
	cfg := provider.Calls[0].Cfg
	if cfg.Language != transcribe.LangEnglish {
		t.Errorf("hint: want en, got %q", cfg.Language)
	}
	if cfg.SampleRate != 16000 {
		t.Errorf("sample rate: want 16000, got %d", cfg.SampleRate)
	}
}

func TestGateway_AutoDetectPolicyPassesNoHint(t *testing.T) {
	provider := &sttmock.Provider{Result: stt.Result{Text: "hello there"}}
	g, err := transcribe.New(provider, 16000, transcribe.WithPolicy(transcribe.AutoDetect()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := g.Transcribe(context.Background(), []byte{1, 2}); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got := provider.Calls[0].Cfg.Language; got != "" {
		t.Errorf("hint: want empty, got %q", got)
	}
}

func TestGateway_EmptyTranscriptIsNotAnError(t *testing.T) {
	provider := &sttmock.Provider{Result: stt.Result{Text: "   "}}
	g, err := transcribe.New(provider, 16000)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := g.Transcribe(context.Background(), []byte{1, 2})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "" || res.Language != "" {
		t.Errorf("want empty result, got %+v", res)
	}
}

func TestGateway_ProviderErrorPropagates(t *testing.T) {
	wantErr := errors.New("server unavailable")
	provider := &sttmock.Provider{Err: wantErr}
	g, err := transcribe.New(provider, 16000)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = g.Transcribe(context.Background(), []byte{1, 2})
	if !errors.Is(err, wantErr) {
		t.Errorf("want wrapped provider error, got %v", err)
	}
}

func TestGateway_CorrectorAppliesToEnglishOnly(t *testing.T) {
	corrector := transcribe.NewCorrector(transcribe.DefaultVocabulary)

	provider := &sttmock.Provider{Results: []stt.Result{
		{Text: "explain quick sort please"},
		{Text: "কুইক সর্ট কী"},
	}}
	g, err := transcribe.New(provider, 16000, transcribe.WithCorrector(corrector))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	en, err := g.Transcribe(context.Background(), []byte{1, 2})
	if err != nil {
		t.Fatalf("Transcribe en: %v", err)
	}
	if en.Text != "explain quicksort please" {
		t.Errorf("english correction: got %q", en.Text)
	}

	bn, err := g.Transcribe(context.Background(), []byte{1, 2})
	if err != nil {
		t.Fatalf("Transcribe bn: %v", err)
	}
	if bn.Text != "কুইক সর্ট কী" {
		t.Errorf("bangla text must pass through, got %q", bn.Text)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := transcribe.New(nil, 16000); err == nil {
		t.Error("nil provider: want error")
	}
	if _, err := transcribe.New(&sttmock.Provider{}, 0); err == nil {
		t.Error("zero sample rate: want error")
	}
}

func TestGateway_RecordsTranscriptionDuration(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	provider := &sttmock.Provider{Result: stt.Result{Text: "hello"}}
	g, err := transcribe.New(provider, 16000, transcribe.WithMetrics(m))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := g.Transcribe(context.Background(), []byte{1, 2}); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != "banglarag.stt.duration" {
				continue
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("stt.duration is not a float64 histogram")
			}
			var count uint64
			for _, dp := range hist.DataPoints {
				count += dp.Count
			}
			if count != 1 {
				t.Errorf("stt.duration samples = %d, want 1", count)
			}
			return
		}
	}
	t.Fatal("banglarag.stt.duration was not recorded")
}
