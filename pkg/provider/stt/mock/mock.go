// Package mock provides a test double for the stt.Provider interface.
//
// Use Provider in unit tests to feed controlled transcription results to the
// pipeline without a live backend. All response fields must be set before the
// first call; call records can be read back after the test.
//
// Example:
//
//	p := &mock.Provider{
//	    Results: []stt.Result{{Text: "hello", IsFinal: true}},
//	}
//	ch, _ := p.Transcribe(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/freyahq/intervox/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Req is the Request passed to Transcribe, with Audio copied.
	Req stt.Request
}

// Provider is a mock implementation of stt.Provider.
// Zero values cause Transcribe to return an immediately closed channel.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Results is the sequence of Result values emitted on the returned channel
	// before it is closed.
	Results []stt.Result

	// StartErr, if non-nil, is returned from Transcribe instead of a channel.
	StartErr error

	// Block, if non-nil, delays result emission until the channel is closed or
	// the call's context is cancelled. Use to simulate a slow backend.
	Block chan struct{}

	// --- Call records (read after test) ---

	// Calls records every invocation of Transcribe in order.
	Calls []TranscribeCall
}

var _ stt.Provider = (*Provider)(nil)

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (<-chan stt.Result, error) {
	p.mu.Lock()
	audio := make([]byte, len(req.Audio))
	copy(audio, req.Audio)
	rec := req
	rec.Audio = audio
	p.Calls = append(p.Calls, TranscribeCall{Ctx: ctx, Req: rec})
	results := make([]stt.Result, len(p.Results))
	copy(results, p.Results)
	block := p.Block
	startErr := p.StartErr
	p.mu.Unlock()

	if startErr != nil {
		return nil, startErr
	}

	ch := make(chan stt.Result, len(results))
	go func() {
		defer close(ch)
		if block != nil {
			select {
			case <-block:
			case <-ctx.Done():
				return
			}
		}
		for _, r := range results {
			select {
			case ch <- r:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// CallCount returns the number of recorded Transcribe invocations.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}
