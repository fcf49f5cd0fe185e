// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service and presents a uniform
// streaming interface: SynthesizeStream accepts a channel of text fragments
// and returns a channel of raw PCM16 audio frames as they become available,
// enabling low-latency pipelining between the reply-generation stage and the
// client-bound audio stream.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// SpeechOptions carries per-utterance synthesis parameters.
type SpeechOptions struct {
	// Speed is the speaking-rate multiplier in [0.5, 2.0]. Zero means the
	// provider default (1.0).
	Speed float64

	// Voice is the provider-specific voice identifier. Empty means the
	// provider's default voice.
	Voice string
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// SynthesizeStream consumes text fragments from the text channel and
	// returns a channel that emits raw PCM16 audio frames as they are
	// synthesised. This lets the caller pipe streaming reply text directly
	// into synthesis without waiting for the full reply.
	//
	// The returned audio channel is closed by the implementation when all text
	// has been synthesised or when ctx is cancelled. The caller must drain the
	// audio channel to avoid blocking the provider's internal goroutines.
	//
	// Returns a non-nil error only if the stream cannot be started. Errors
	// during synthesis are signalled by closing the audio channel early;
	// callers should check ctx.Err() to distinguish cancellation from
	// provider failure.
	SynthesizeStream(ctx context.Context, text <-chan string, opts SpeechOptions) (<-chan []byte, error)
}
