// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to feed controlled audio frames to consumers and to verify the
// text fragments and SpeechOptions passed to the backend.
//
// Example:
//
//	p := &mock.Provider{
//	    Frames: [][]byte{[]byte("audio1"), []byte("audio2")},
//	}
//	ch, _ := p.SynthesizeStream(ctx, textCh, opts)
package mock

import (
	"context"
	"sync"

	"github.com/freyahq/intervox/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of SynthesizeStream.
type SynthesizeCall struct {
	// Ctx is the context passed to SynthesizeStream.
	Ctx context.Context
	// Opts is the SpeechOptions passed to SynthesizeStream.
	Opts tts.SpeechOptions
	// Text collects every fragment read from the text channel. Populated
	// asynchronously; synchronise on the returned audio channel closing
	// before reading.
	Text []string

	mu *sync.Mutex
}

// Fragments returns a snapshot of the text fragments consumed so far.
func (c *SynthesizeCall) Fragments() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.Text))
	copy(out, c.Text)
	return out
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Frames is the sequence of audio frames emitted after the text channel
	// has been fully consumed.
	Frames [][]byte

	// StartErr, if non-nil, is returned from SynthesizeStream instead of a
	// channel.
	StartErr error

	// Block, if non-nil, delays frame emission until the channel is closed or
	// the call's context is cancelled. The text channel is still consumed.
	Block chan struct{}

	// --- Call records (read after test) ---

	// Calls records every invocation of SynthesizeStream in order.
	Calls []*SynthesizeCall
}

var _ tts.Provider = (*Provider)(nil)

// SynthesizeStream implements tts.Provider.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, opts tts.SpeechOptions) (<-chan []byte, error) {
	p.mu.Lock()
	call := &SynthesizeCall{Ctx: ctx, Opts: opts, mu: &p.mu}
	p.Calls = append(p.Calls, call)
	frames := make([][]byte, len(p.Frames))
	copy(frames, p.Frames)
	block := p.Block
	startErr := p.StartErr
	p.mu.Unlock()

	if startErr != nil {
		return nil, startErr
	}

	audio := make(chan []byte, len(frames))
	go func() {
		defer close(audio)

		for {
			select {
			case fragment, ok := <-text:
				if !ok {
					goto emit
				}
				p.mu.Lock()
				call.Text = append(call.Text, fragment)
				p.mu.Unlock()
			case <-ctx.Done():
				return
			}
		}

	emit:
		if block != nil {
			select {
			case <-block:
			case <-ctx.Done():
				return
			}
		}
		for _, f := range frames {
			select {
			case audio <- f:
			case <-ctx.Done():
				return
			}
		}
	}()
	return audio, nil
}

// CallCount returns the number of recorded SynthesizeStream invocations.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}
