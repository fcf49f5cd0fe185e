package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrBufferClosed is returned when an audio chunk arrives while the
	// buffer is not armed, i.e. outside the listening state.
	ErrBufferClosed = errors.New("pipeline: audio buffer closed")

	// ErrAlreadyClosed is returned by a second FrameBuffer.Close without an
	// intervening Reset.
	ErrAlreadyClosed = errors.New("pipeline: audio buffer already closed")

	// ErrEmptyUtterance marks a submitted utterance that contained no speech
	// or was too short to transcribe. It is handled as a no-op: the buffer is
	// rearmed and the machine stays in listening.
	ErrEmptyUtterance = errors.New("pipeline: empty utterance")

	// ErrClosed is returned by handler methods after the pipeline shut down.
	ErrClosed = errors.New("pipeline: closed")
)

// OutOfOrderChunkError reports a gap or regression in audio chunk sequence
// numbers. The transport delivers in order, so any gap is a hard protocol
// violation rather than a reordering opportunity.
type OutOfOrderChunkError struct {
	// Expected is the sequence number the buffer was waiting for.
	Expected uint64

	// Got is the sequence number that actually arrived.
	Got uint64
}

func (e *OutOfOrderChunkError) Error() string {
	return fmt.Sprintf("pipeline: out-of-order audio chunk: expected seq %d, got %d", e.Expected, e.Got)
}

// StageError wraps a failure of one pipeline stage. Stage is "transcription",
// "generation" or "synthesis"; Timeout distinguishes a deadline expiry from an
// upstream service failure.
type StageError struct {
	Stage   string
	Timeout bool
	Err     error
}

func (e *StageError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("pipeline: %s timed out: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("pipeline: %s unavailable: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Message returns the human-readable text sent to the client in an error
// event. It names the stage and cause without leaking provider internals.
func (e *StageError) Message() string {
	if e.Timeout {
		return e.Stage + " timed out"
	}
	return e.Stage + " unavailable"
}
