// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription service (a hosted inference endpoint
// or a local whisper server) behind a uniform batch-with-streaming-results
// interface: the caller submits one complete utterance and receives a channel
// of Result values — zero or more low-latency partials followed by exactly one
// final. The pipeline treats the final result as authoritative; partials are
// only suitable for driving client-side activity indicators.
//
// Implementations must be safe for concurrent use and must close the result
// channel promptly when the supplied context is cancelled. A cancelled call
// must never emit a final result.
package stt

import "context"

// Request carries one complete utterance to be transcribed.
type Request struct {
	// Audio is the raw PCM16 little-endian utterance bytes.
	Audio []byte

	// SampleRate is the audio sample rate in Hz (e.g., 16000).
	SampleRate int

	// Language is the BCP-47 recognition language tag (e.g., "en", "tr").
	// An empty string lets the provider auto-detect, if supported.
	Language string
}

// Result is a single transcription result emitted on the stream.
type Result struct {
	// Text is the transcribed speech content.
	Text string

	// IsFinal marks the authoritative end-of-utterance transcript. At most
	// one final is emitted per Transcribe call, always as the last value
	// before the channel closes.
	IsFinal bool

	// Confidence is the provider's overall confidence score (0.0–1.0).
	// Zero when the provider does not report confidence.
	Confidence float64

	// Err is non-nil when transcription failed after the stream was opened.
	// A Result carrying Err is the last value on the channel.
	Err error
}

// Provider is the abstraction over any STT backend.
//
// Implementations must be safe for concurrent use; multiple utterances may be
// in flight simultaneously across sessions.
type Provider interface {
	// Transcribe submits a complete utterance and returns a read-only channel
	// of Result values. The channel is closed by the implementation when the
	// final result has been delivered, when an error Result is emitted, or
	// when ctx is cancelled.
	//
	// The returned channel is never nil when error is nil. A non-nil error is
	// returned only for failures that prevent the request from starting.
	Transcribe(ctx context.Context, req Request) (<-chan Result, error)
}
