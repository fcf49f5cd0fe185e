package pipeline

// State is the turn state machine's position in the conversation cycle.
//
// The machine cycles for the session's lifetime:
//
//	idle → listening → processing → speaking → idle
//
// An interrupt from any active state returns to listening with a fresh turn;
// a fatal stage error returns to idle.
type State int

const (
	// StateIdle means no turn is in flight and the audio buffer is disarmed.
	StateIdle State = iota

	// StateListening means the audio buffer is armed and accumulating chunks.
	StateListening

	// StateProcessing means an utterance was submitted and transcription or
	// reply generation is running.
	StateProcessing

	// StateSpeaking means synthesised reply audio is streaming to the client.
	StateSpeaking
)

// String returns the wire representation used in state_change messages.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateProcessing:
		return "processing"
	case StateSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}
