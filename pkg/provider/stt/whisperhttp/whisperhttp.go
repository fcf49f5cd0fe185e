// Package whisperhttp provides an STT provider backed by a whisper-compatible
// HTTP transcription endpoint (a hosted fal.run deployment or a local
// whisper-server binary exposing the OpenAI-style /audio/transcriptions route).
//
// The endpoint is a batch API: one multipart POST per utterance, returning a
// JSON body with the recognised text. Because the backend cannot stream interim
// hypotheses, the provider emits a single partial with the full text followed
// by the final — still useful for driving client activity indicators while the
// authoritative final feeds the conversation history.
//
// Usage:
//
//	p := whisperhttp.New("https://fal.run/freya/whisper",
//	    whisperhttp.WithAPIKey(key),
//	    whisperhttp.WithTimeout(30*time.Second),
//	)
//	results, err := p.Transcribe(ctx, stt.Request{Audio: pcm, SampleRate: 16000, Language: "en"})
package whisperhttp

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/freyahq/intervox/pkg/provider/stt"
)

const (
	transcriptionsPath = "/audio/transcriptions"

	// bitsPerSample is fixed at 16 for the little-endian PCM16 audio the
	// pipeline produces.
	bitsPerSample = 16

	defaultTimeout    = 30 * time.Second
	defaultSampleRate = 16000
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithAPIKey sets the key sent in the Authorization header ("Key <value>").
// Leave unset for local whisper-server deployments without authentication.
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

// Provider implements stt.Provider against a whisper-compatible HTTP server.
type Provider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a Provider targeting the given base URL
// (e.g., "https://fal.run/freya/whisper" or "http://localhost:8080").
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

// transcriptionResponse is the JSON body returned by the endpoint.
type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe implements stt.Provider. The utterance is wrapped in a WAV
// container (the endpoint rejects raw headerless PCM) and submitted as a
// multipart form with an optional language hint.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (<-chan stt.Result, error) {
	if len(req.Audio) == 0 {
		return nil, errors.New("whisperhttp: empty utterance")
	}

	sampleRate := req.SampleRate
	if sampleRate == 0 {
		sampleRate = defaultSampleRate
	}

	body, contentType, err := buildMultipart(req.Audio, sampleRate, req.Language)
	if err != nil {
		return nil, fmt.Errorf("whisperhttp: build request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+transcriptionsPath, body)
	if err != nil {
		return nil, fmt.Errorf("whisperhttp: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Key "+p.apiKey)
	}

	out := make(chan stt.Result, 2)
	go func() {
		defer close(out)

		resp, err := p.httpClient.Do(httpReq)
		if err != nil {
			// Cancellation closes the channel without a final.
			if ctx.Err() != nil {
				return
			}
			out <- stt.Result{Err: fmt.Errorf("whisperhttp: request: %w", err)}
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			out <- stt.Result{Err: fmt.Errorf("whisperhttp: server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))}
			return
		}

		var tr transcriptionResponse
		if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
			out <- stt.Result{Err: fmt.Errorf("whisperhttp: decode response: %w", err)}
			return
		}
		if ctx.Err() != nil {
			return
		}

		text := strings.TrimSpace(tr.Text)
		out <- stt.Result{Text: text, IsFinal: false}
		out <- stt.Result{Text: text, IsFinal: true}
	}()

	return out, nil
}

// buildMultipart assembles the multipart form body: a "file" part holding the
// WAV-wrapped utterance and an optional "language" field.
func buildMultipart(pcm []byte, sampleRate int, language string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(wavHeader(len(pcm), sampleRate)); err != nil {
		return nil, "", err
	}
	if _, err := part.Write(pcm); err != nil {
		return nil, "", err
	}

	if language != "" {
		if err := w.WriteField("language", language); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// wavHeader produces the 44-byte canonical RIFF/WAVE header for mono PCM16
// data of the given byte length.
func wavHeader(dataLen, sampleRate int) []byte {
	const (
		channels      = 1
		bytesPerBlock = channels * bitsPerSample / 8
	)

	h := make([]byte, 44)
	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], uint32(36+dataLen))
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16) // PCM fmt chunk size
	binary.LittleEndian.PutUint16(h[20:22], 1)  // PCM format
	binary.LittleEndian.PutUint16(h[22:24], channels)
	binary.LittleEndian.PutUint32(h[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(h[28:32], uint32(sampleRate*bytesPerBlock))
	binary.LittleEndian.PutUint16(h[32:34], bytesPerBlock)
	binary.LittleEndian.PutUint16(h[34:36], bitsPerSample)
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], uint32(dataLen))
	return h
}
