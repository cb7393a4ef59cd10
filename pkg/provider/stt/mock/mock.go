// Package mock provides a test double for the stt.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/banglarag/banglarag/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// PCM is a copy of the audio passed to Transcribe.
	PCM []byte

	// Cfg is the Config passed to Transcribe.
	Cfg stt.Config
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned by Transcribe when Results is exhausted or empty.
	Result stt.Result

	// Results, if non-empty, scripts per-call return values. Calls beyond
	// the end of the slice fall back to Result.
	Results []stt.Result

	// Err, if non-nil, is returned by every Transcribe call.
	Err error

	// Calls records every call to Transcribe in order.
	Calls []TranscribeCall

	calls int
}

// Transcribe records the call and returns the next scripted result.
func (p *Provider) Transcribe(_ context.Context, pcm []byte, cfg stt.Config) (stt.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	p.Calls = append(p.Calls, TranscribeCall{PCM: cp, Cfg: cfg})
	i := p.calls
	p.calls++
	if p.Err != nil {
		return stt.Result{}, p.Err
	}
	if i < len(p.Results) {
		return p.Results[i], nil
	}
	return p.Result, nil
}

// CallCount returns the number of Transcribe invocations so far. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
	p.calls = 0
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
