package protocol_test

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/freyahq/intervox/pkg/protocol"
)

func TestDecodeClient_AudioChunk(t *testing.T) {
	t.Parallel()

	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	raw := []byte(`{"type":"audio_chunk","data":"` + base64.StdEncoding.EncodeToString(pcm) + `","seq":3}`)

	msg, err := protocol.DecodeClient(raw)
	if err != nil {
		t.Fatalf("DecodeClient: unexpected error: %v", err)
	}
	if msg.Type != protocol.TypeAudioChunk {
		t.Errorf("Type: want %q, got %q", protocol.TypeAudioChunk, msg.Type)
	}
	if msg.Seq != 3 {
		t.Errorf("Seq: want 3, got %d", msg.Seq)
	}

	got, err := msg.Audio()
	if err != nil {
		t.Fatalf("Audio: unexpected error: %v", err)
	}
	if !bytes.Equal(got, pcm) {
		t.Errorf("Audio: want %v, got %v", pcm, got)
	}
}

func TestDecodeClient_MissingType(t *testing.T) {
	t.Parallel()

	if _, err := protocol.DecodeClient([]byte(`{"data":"aGk="}`)); err == nil {
		t.Error("DecodeClient: want error for missing type, got nil")
	}
}

func TestDecodeClient_InvalidJSON(t *testing.T) {
	t.Parallel()

	if _, err := protocol.DecodeClient([]byte(`{"type":`)); err == nil {
		t.Error("DecodeClient: want error for invalid JSON, got nil")
	}
}

func TestDecodeClient_UnknownTypePasses(t *testing.T) {
	t.Parallel()

	msg, err := protocol.DecodeClient([]byte(`{"type":"whiteboard_update"}`))
	if err != nil {
		t.Fatalf("DecodeClient: unexpected error: %v", err)
	}
	if msg.Type != "whiteboard_update" {
		t.Errorf("Type: want whiteboard_update, got %q", msg.Type)
	}
}

func TestAudio_WrongType(t *testing.T) {
	t.Parallel()

	msg := &protocol.ClientMessage{Type: protocol.TypeInterrupt}
	if _, err := msg.Audio(); err == nil {
		t.Error("Audio: want error for non-audio message, got nil")
	}
}

func TestDecodeClient_Config(t *testing.T) {
	t.Parallel()

	msg, err := protocol.DecodeClient([]byte(`{"type":"config","language":"en-US","speed":1.25}`))
	if err != nil {
		t.Fatalf("DecodeClient: unexpected error: %v", err)
	}
	if msg.Language != "en-US" {
		t.Errorf("Language: want en-US, got %q", msg.Language)
	}
	if msg.Speed != 1.25 {
		t.Errorf("Speed: want 1.25, got %f", msg.Speed)
	}
}

// TestServerMessages_OmitUnusedFields checks that builder messages serialise
// only the fields relevant to their type.
func TestServerMessages_OmitUnusedFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		msg  *protocol.ServerMessage
		want map[string]any
	}{
		{
			name: "transcript final",
			msg:  protocol.Transcript("hello", true),
			want: map[string]any{"type": "transcript", "text": "hello", "final": true},
		},
		{
			name: "ai_text delta",
			msg:  protocol.AIText("tok", false),
			want: map[string]any{"type": "ai_text", "text": "tok"},
		},
		{
			name: "ai_audio_done",
			msg:  protocol.AIAudioDone(),
			want: map[string]any{"type": "ai_audio_done"},
		},
		{
			name: "state_change",
			msg:  protocol.StateChange("listening"),
			want: map[string]any{"type": "state_change", "state": "listening"},
		},
		{
			name: "error",
			msg:  protocol.Error("boom"),
			want: map[string]any{"type": "error", "message": "boom"},
		},
		{
			name: "hint_given",
			msg:  protocol.HintGiven(2, 4),
			want: map[string]any{"type": "hint_given", "level": float64(2), "totalHints": float64(4)},
		},
		{
			name: "time_warning",
			msg:  protocol.TimeWarning(5),
			want: map[string]any{"type": "time_warning", "minutesLeft": float64(5)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			raw, err := tt.msg.Encode()
			if err != nil {
				t.Fatalf("Encode: unexpected error: %v", err)
			}
			var got map[string]any
			if err := json.Unmarshal(raw, &got); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Errorf("field count: want %d got %d (%v)", len(tt.want), len(got), got)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("field %q: want %v, got %v", k, v, got[k])
				}
			}
		})
	}
}

func TestAIAudio_RoundTrip(t *testing.T) {
	t.Parallel()

	pcm := []byte{0xFF, 0x00, 0x7F, 0x80}
	raw, err := protocol.AIAudio(pcm).Encode()
	if err != nil {
		t.Fatalf("Encode: unexpected error: %v", err)
	}

	var decoded struct {
		Type string `json:"type"`
		Data string `json:"data"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	got, err := base64.StdEncoding.DecodeString(decoded.Data)
	if err != nil {
		t.Fatalf("base64 decode: %v", err)
	}
	if !bytes.Equal(got, pcm) {
		t.Errorf("audio payload: want %v, got %v", pcm, got)
	}
}
