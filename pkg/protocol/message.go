// Package protocol defines the JSON wire messages exchanged between an
// interview client and the voice pipeline server.
//
// Every message is a single flat JSON object with a "type" discriminator.
// Client messages drive the turn state machine (audio delivery, listening
// control, interruption); server messages publish pipeline events back to the
// client (transcripts, reply text deltas, synthesised audio frames, state
// changes). Binary audio payloads travel as base64-encoded PCM16 in the
// "data" field.
package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// ClientMessageType identifies a client → server message.
type ClientMessageType string

const (
	// TypeAudioChunk carries one base64 PCM16 audio chunk plus its sequence number.
	TypeAudioChunk ClientMessageType = "audio_chunk"

	// TypeStartListening opens a new turn and arms the audio buffer.
	TypeStartListening ClientMessageType = "start_listening"

	// TypeStopListening explicitly ends the current utterance.
	TypeStopListening ClientMessageType = "stop_listening"

	// TypeInterrupt cancels the in-flight pipeline stage (barge-in).
	TypeInterrupt ClientMessageType = "interrupt"

	// TypeConfig updates session configuration (language, speech speed).
	TypeConfig ClientMessageType = "config"

	// TypeHintRequest asks the interviewer for an escalating hint.
	TypeHintRequest ClientMessageType = "hint_request"
)

// ServerMessageType identifies a server → client message.
type ServerMessageType string

const (
	// TypeTranscript carries a partial or final utterance transcript.
	TypeTranscript ServerMessageType = "transcript"

	// TypeAIText carries one reply-text delta; Done marks the end of the stream.
	TypeAIText ServerMessageType = "ai_text"

	// TypeAIAudio carries one base64 PCM16 synthesised audio frame.
	TypeAIAudio ServerMessageType = "ai_audio"

	// TypeAIAudioDone marks the end of synthesised audio for the turn.
	TypeAIAudioDone ServerMessageType = "ai_audio_done"

	// TypeStateChange announces a turn state machine transition.
	TypeStateChange ServerMessageType = "state_change"

	// TypeError reports a recoverable pipeline or protocol error.
	TypeError ServerMessageType = "error"

	// TypeHintGiven reports the hint level just granted.
	TypeHintGiven ServerMessageType = "hint_given"

	// TypeQuestionUpdate reports question progress in a phone-screen interview.
	TypeQuestionUpdate ServerMessageType = "question_update"

	// TypeTimeWarning warns that the interview clock is running out.
	TypeTimeWarning ServerMessageType = "time_warning"
)

// ClientMessage is the decoded form of any client → server message.
// Only the fields relevant to Type are populated.
type ClientMessage struct {
	Type ClientMessageType `json:"type"`

	// Data is the base64-encoded PCM16 payload of an audio_chunk message.
	Data string `json:"data,omitempty"`

	// Seq is the zero-based sequence number of an audio_chunk message.
	// Chunks must arrive with strictly consecutive sequence numbers.
	Seq uint64 `json:"seq"`

	// Language is the BCP-47 recognition language of a config message.
	Language string `json:"language,omitempty"`

	// Speed is the speech-rate multiplier of a config message (0 = unchanged).
	Speed float64 `json:"speed,omitempty"`
}

// Audio decodes the base64 audio payload of an audio_chunk message.
func (m *ClientMessage) Audio() ([]byte, error) {
	if m.Type != TypeAudioChunk {
		return nil, fmt.Errorf("protocol: message type %q carries no audio", m.Type)
	}
	pcm, err := base64.StdEncoding.DecodeString(m.Data)
	if err != nil {
		return nil, fmt.Errorf("protocol: decode audio chunk: %w", err)
	}
	return pcm, nil
}

// DecodeClient parses a raw client frame. Unknown message types decode
// without error so the caller can reject them with a protocol error rather
// than tearing down the connection.
func DecodeClient(raw []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("protocol: decode client message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("protocol: client message missing type")
	}
	return &msg, nil
}

// ServerMessage is the encoded form of any server → client message.
// Only the fields relevant to Type are serialised.
type ServerMessage struct {
	Type ServerMessageType `json:"type"`

	// Text carries transcript text or a reply-text delta.
	Text string `json:"text,omitempty"`

	// Final marks a transcript as authoritative.
	Final bool `json:"final,omitempty"`

	// Done marks the last ai_text delta of a turn.
	Done bool `json:"done,omitempty"`

	// Data is the base64-encoded PCM16 payload of an ai_audio message.
	Data string `json:"data,omitempty"`

	// State is the new pipeline state of a state_change message.
	State string `json:"state,omitempty"`

	// Message is the human-readable description of an error message.
	Message string `json:"message,omitempty"`

	// Level and TotalHints describe a hint_given message.
	Level      int `json:"level,omitempty"`
	TotalHints int `json:"totalHints,omitempty"`

	// Current and Total describe a question_update message.
	Current int `json:"current,omitempty"`
	Total   int `json:"total,omitempty"`

	// MinutesLeft describes a time_warning message.
	MinutesLeft int `json:"minutesLeft,omitempty"`
}

// Encode serialises the message to a JSON frame.
func (m *ServerMessage) Encode() ([]byte, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode server message: %w", err)
	}
	return raw, nil
}

// Transcript builds a transcript message.
func Transcript(text string, final bool) *ServerMessage {
	return &ServerMessage{Type: TypeTranscript, Text: text, Final: final}
}

// AIText builds a reply-text delta message.
func AIText(text string, done bool) *ServerMessage {
	return &ServerMessage{Type: TypeAIText, Text: text, Done: done}
}

// AIAudio builds an audio-frame message from raw PCM16 bytes.
func AIAudio(pcm []byte) *ServerMessage {
	return &ServerMessage{Type: TypeAIAudio, Data: base64.StdEncoding.EncodeToString(pcm)}
}

// AIAudioDone builds the end-of-audio marker message.
func AIAudioDone() *ServerMessage {
	return &ServerMessage{Type: TypeAIAudioDone}
}

// StateChange builds a state_change message.
func StateChange(state string) *ServerMessage {
	return &ServerMessage{Type: TypeStateChange, State: state}
}

// Error builds an error message.
func Error(message string) *ServerMessage {
	return &ServerMessage{Type: TypeError, Message: message}
}

// HintGiven builds a hint_given message.
func HintGiven(level, totalHints int) *ServerMessage {
	return &ServerMessage{Type: TypeHintGiven, Level: level, TotalHints: totalHints}
}

// QuestionUpdate builds a question_update message.
func QuestionUpdate(current, total int) *ServerMessage {
	return &ServerMessage{Type: TypeQuestionUpdate, Current: current, Total: total}
}

// TimeWarning builds a time_warning message.
func TimeWarning(minutesLeft int) *ServerMessage {
	return &ServerMessage{Type: TypeTimeWarning, MinutesLeft: minutesLeft}
}
