// Package falspeech provides a TTS provider backed by a fal.ai-style speech
// synthesis deployment.
//
// Two server routes are used:
//
//   - POST /stream — chunked-streaming synthesis. The response body is a
//     sequence of newline-delimited JSON events, each carrying a base64 PCM16
//     audio fragment ({"audio": "..."}), a terminal marker ({"done": true}),
//     or an error ({"error": {"message": "..."}}).
//
//   - POST /audio/speech — batch fallback. Returns the complete raw PCM16
//     audio in the response body. Used per sentence when the streaming route
//     fails, so a transient streaming outage degrades latency rather than
//     silencing the interviewer.
//
// Because synthesis quality degrades on long inputs, SynthesizeStream
// accumulates incoming text fragments into complete sentences and dispatches
// one request per sentence, emitting audio in sentence order.
package falspeech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/freyahq/intervox/pkg/provider/tts"
)

const (
	streamPath = "/stream"
	speechPath = "/audio/speech"

	defaultTimeout = 30 * time.Second

	// audioChanBuf is the buffer depth of the returned audio channel.
	audioChanBuf = 64

	// pcmChunkSize is the size of each PCM frame emitted for batch-fallback
	// responses, so playback can begin before the full sentence is decoded.
	pcmChunkSize = 4096
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithAPIKey sets the key sent in the Authorization header ("Key <value>").
func WithAPIKey(key string) Option {
	return func(p *Provider) { p.apiKey = key }
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.httpClient.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client. Primarily for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements tts.Provider against a fal.ai-style speech endpoint.
type Provider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a Provider targeting the given deployment base URL
// (e.g., "https://fal.run/freya/kokoro").
func New(baseURL string, opts ...Option) *Provider {
	p := &Provider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// streamEvent is one newline-delimited JSON event from the /stream route.
type streamEvent struct {
	Audio string `json:"audio,omitempty"`
	Done  bool   `json:"done,omitempty"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// synthesisRequest is the JSON body for both routes.
type synthesisRequest struct {
	Input          string  `json:"input"`
	Speed          float64 `json:"speed,omitempty"`
	Voice          string  `json:"voice,omitempty"`
	ResponseFormat string  `json:"response_format,omitempty"`
}

// SynthesizeStream implements tts.Provider. Incoming text fragments are
// accumulated into sentences; each sentence is synthesised via the streaming
// route with a per-sentence batch fallback.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, opts tts.SpeechOptions) (<-chan []byte, error) {
	if text == nil {
		return nil, errors.New("falspeech: text channel must not be nil")
	}

	audio := make(chan []byte, audioChanBuf)
	go func() {
		defer close(audio)

		var buf strings.Builder
		flush := func(s string) bool {
			s = strings.TrimSpace(s)
			if s == "" {
				return true
			}
			return p.synthesizeSentence(ctx, s, opts, audio)
		}

		for {
			select {
			case <-ctx.Done():
				return
			case fragment, ok := <-text:
				if !ok {
					flush(buf.String())
					return
				}
				buf.WriteString(fragment)

				// Dispatch every complete sentence eagerly.
				for {
					idx := sentenceBoundary(buf.String())
					if idx < 0 {
						break
					}
					sentence := buf.String()[:idx+1]
					rest := buf.String()[idx+1:]
					buf.Reset()
					buf.WriteString(strings.TrimLeft(rest, " \t\n\r"))
					if !flush(sentence) {
						return
					}
				}
			}
		}
	}()

	return audio, nil
}

// synthesizeSentence synthesises one sentence and forwards its PCM frames to
// out. It tries the streaming route first and falls back to the batch route.
// Returns false when the context was cancelled.
func (p *Provider) synthesizeSentence(ctx context.Context, sentence string, opts tts.SpeechOptions, out chan<- []byte) bool {
	if err := p.streamSentence(ctx, sentence, opts, out); err != nil {
		if ctx.Err() != nil {
			return false
		}
		// Batch fallback; errors here are dropped — the next sentence may
		// still succeed, and the session surfaces synthesis failure through
		// an empty audio stream.
		_ = p.batchSentence(ctx, sentence, opts, out)
	}
	return ctx.Err() == nil
}

// streamSentence calls the /stream route and forwards decoded audio events.
func (p *Provider) streamSentence(ctx context.Context, sentence string, opts tts.SpeechOptions, out chan<- []byte) error {
	body, err := json.Marshal(synthesisRequest{
		Input: sentence,
		Speed: opts.Speed,
		Voice: opts.Voice,
	})
	if err != nil {
		return fmt.Errorf("falspeech: marshal request: %w", err)
	}

	resp, err := p.post(ctx, streamPath, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("falspeech: stream route returned %d", resp.StatusCode)
	}

	dec := json.NewDecoder(resp.Body)
	for {
		var ev streamEvent
		if err := dec.Decode(&ev); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("falspeech: decode stream event: %w", err)
		}

		if ev.Error != nil {
			return fmt.Errorf("falspeech: server error: %s", ev.Error.Message)
		}
		if ev.Audio != "" {
			pcm, err := base64.StdEncoding.DecodeString(ev.Audio)
			if err != nil {
				return fmt.Errorf("falspeech: decode audio event: %w", err)
			}
			select {
			case out <- pcm:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if ev.Done {
			return nil
		}
	}
}

// batchSentence calls the /audio/speech route and forwards the response body
// as fixed-size PCM frames.
func (p *Provider) batchSentence(ctx context.Context, sentence string, opts tts.SpeechOptions, out chan<- []byte) error {
	body, err := json.Marshal(synthesisRequest{
		Input:          sentence,
		Speed:          opts.Speed,
		Voice:          opts.Voice,
		ResponseFormat: "pcm",
	})
	if err != nil {
		return fmt.Errorf("falspeech: marshal request: %w", err)
	}

	resp, err := p.post(ctx, speechPath, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("falspeech: speech route returned %d", resp.StatusCode)
	}

	for {
		frame := make([]byte, pcmChunkSize)
		n, err := io.ReadFull(resp.Body, frame)
		if n > 0 {
			select {
			case out <- frame[:n]:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return fmt.Errorf("falspeech: read speech body: %w", err)
		}
	}
}

// post issues a JSON POST to the given route.
func (p *Provider) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("falspeech: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Key "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("falspeech: request %s: %w", path, err)
	}
	return resp, nil
}

// sentenceBoundary returns the index of the first '.', '!', or '?' that is
// immediately followed by whitespace, or -1 when no boundary exists in s.
func sentenceBoundary(s string) int {
	for i := 0; i < len(s)-1; i++ {
		switch s[i] {
		case '.', '!', '?':
			switch s[i+1] {
			case ' ', '\n', '\r', '\t':
				return i
			}
		}
	}
	return -1
}
