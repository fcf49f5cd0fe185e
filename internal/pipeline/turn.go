package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/freyahq/intervox/internal/observe"
	"github.com/freyahq/intervox/internal/prompts"
	"github.com/freyahq/intervox/pkg/protocol"
	"github.com/freyahq/intervox/pkg/provider/llm"
	"github.com/freyahq/intervox/pkg/provider/stt"
	"github.com/freyahq/intervox/pkg/provider/tts"
	"github.com/freyahq/intervox/pkg/store"
)

// runTurn drives one utterance through transcription, generation and
// synthesis. Exactly one runTurn or runSystemTurn goroutine is active per
// pipeline at a time; the state machine guarantees this by only spawning from
// listening or idle.
func (p *Pipeline) runTurn(ctx context.Context, id uint64, pcm []byte) {
	defer p.wg.Done()
	started := time.Now()

	ctx, span := observe.StartSpan(ctx, "pipeline.turn",
		trace.WithAttributes(attribute.Int64("turn.id", int64(id))))
	defer span.End()

	text, err := p.transcribe(ctx, id, pcm)
	if err != nil {
		p.failTurn(id, err)
		return
	}

	if p.corrector != nil {
		corrected, fixes := p.corrector.Correct(text)
		if len(fixes) > 0 {
			p.log.Debug("transcript corrected", "corrections", len(fixes), "turn", id)
		}
		text = corrected
	}
	if !p.emitTurn(id, "transcription", protocol.Transcript(text, true)) {
		return
	}

	reply, err := p.generate(ctx, id, p.messagesWithUser(text))
	if err != nil {
		p.failTurn(id, err)
		return
	}
	if !p.setSpeaking(id) {
		return
	}
	if err := p.synthesize(ctx, id, reply); err != nil {
		p.failTurn(id, err)
		return
	}

	p.finishTurn(id, text, reply, started)
}

// runSystemTurn drives a turn triggered by injected conversation content:
// the last history entry (a hint or wrap-up instruction) stands in for the
// utterance, so transcription is skipped.
func (p *Pipeline) runSystemTurn(ctx context.Context, id uint64) {
	defer p.wg.Done()
	started := time.Now()

	ctx, span := observe.StartSpan(ctx, "pipeline.system_turn",
		trace.WithAttributes(attribute.Int64("turn.id", int64(id))))
	defer span.End()

	reply, err := p.generate(ctx, id, p.messagesSnapshot())
	if err != nil {
		p.failTurn(id, err)
		return
	}
	if !p.setSpeaking(id) {
		return
	}
	if err := p.synthesize(ctx, id, reply); err != nil {
		p.failTurn(id, err)
		return
	}

	p.finishTurn(id, "", reply, started)
}

// ─── Stages ───────────────────────────────────────────────────────────────────

// transcribe submits the utterance to the STT provider and returns the final
// transcript. Partial results are forwarded to the client as non-final
// transcript events. A cancelled call never yields a final transcript.
func (p *Pipeline) transcribe(ctx context.Context, id uint64, pcm []byte) (string, error) {
	sctx, cancel := context.WithTimeout(ctx, p.cfg.STTTimeout)
	defer cancel()

	p.mu.Lock()
	language := p.cfg.Language
	p.mu.Unlock()

	start := time.Now()
	ch, err := p.sttP.Transcribe(sctx, stt.Request{
		Audio:      pcm,
		SampleRate: p.cfg.SampleRate,
		Language:   language,
	})
	if err != nil {
		return "", stageError("transcription", ctx, sctx, err)
	}

	var final string
	sawFinal := false
	for res := range ch {
		if res.Err != nil {
			return "", stageError("transcription", ctx, sctx, res.Err)
		}
		if res.IsFinal {
			final = res.Text
			sawFinal = true
		} else if res.Text != "" {
			p.emitTurn(id, "transcription", protocol.Transcript(res.Text, false))
		}
	}
	if !sawFinal {
		return "", stageError("transcription", ctx, sctx, errors.New("stream closed without final transcript"))
	}

	if p.metrics != nil {
		p.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	}
	return final, nil
}

// generate streams the interviewer's reply, forwarding each text delta to the
// client, and returns the concatenated reply. The done marker is emitted as
// the last ai_text event before synthesis begins.
func (p *Pipeline) generate(ctx context.Context, id uint64, msgs []llm.Message) (string, error) {
	sctx, cancel := context.WithTimeout(ctx, p.cfg.LLMTimeout)
	defer cancel()

	start := time.Now()
	ch, err := p.llmP.StreamCompletion(sctx, llm.CompletionRequest{
		Messages:     msgs,
		SystemPrompt: p.cfg.SystemPrompt,
	})
	if err != nil {
		return "", stageError("generation", ctx, sctx, err)
	}

	var reply strings.Builder
	for chunk := range ch {
		if chunk.FinishReason == "error" {
			return "", stageError("generation", ctx, sctx, errors.New(chunk.Text))
		}
		if chunk.Text != "" {
			reply.WriteString(chunk.Text)
			p.emitTurn(id, "generation", protocol.AIText(chunk.Text, false))
		}
	}
	if sctx.Err() != nil {
		return "", stageError("generation", ctx, sctx, sctx.Err())
	}
	if reply.Len() == 0 {
		return "", stageError("generation", ctx, sctx, errors.New("empty completion"))
	}

	p.emitTurn(id, "generation", protocol.AIText("", true))
	if p.metrics != nil {
		p.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
	}
	return reply.String(), nil
}

// synthesize streams the reply through the TTS provider, forwarding each
// PCM frame to the client in arrival order.
func (p *Pipeline) synthesize(ctx context.Context, id uint64, reply string) error {
	sctx, cancel := context.WithTimeout(ctx, p.cfg.TTSTimeout)
	defer cancel()

	p.mu.Lock()
	opts := tts.SpeechOptions{Speed: p.cfg.Speed, Voice: p.cfg.Voice}
	p.mu.Unlock()

	textCh := make(chan string, 1)
	textCh <- reply
	close(textCh)

	start := time.Now()
	audioCh, err := p.ttsP.SynthesizeStream(sctx, textCh, opts)
	if err != nil {
		return stageError("synthesis", ctx, sctx, err)
	}

	// Drain fully even when the turn goes stale so the provider's internal
	// goroutines are not left blocked on the channel.
	frames := 0
	for frame := range audioCh {
		if len(frame) == 0 {
			continue
		}
		frames++
		p.emitTurn(id, "synthesis", protocol.AIAudio(frame))
	}
	if sctx.Err() != nil {
		return stageError("synthesis", ctx, sctx, sctx.Err())
	}
	// Providers drop unsynthesizable fragments and just close the channel, so
	// total failure shows up here as a clean stream with zero frames.
	if frames == 0 && reply != "" {
		return stageError("synthesis", ctx, sctx, errors.New("no audio produced"))
	}

	if p.metrics != nil {
		p.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	}
	return nil
}

// stageError classifies a stage failure. A cancellation of the parent turn
// context (interrupt or shutdown) passes through as context.Canceled so the
// caller can discard the turn silently; a stage deadline expiry becomes a
// timeout StageError.
func stageError(stage string, parent, stageCtx context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	timeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(stageCtx.Err(), context.DeadlineExceeded)
	return &StageError{Stage: stage, Timeout: timeout, Err: err}
}

// ─── Turn completion ──────────────────────────────────────────────────────────

// setSpeaking transitions processing→speaking for the given turn. Returns
// false when the turn has been superseded.
func (p *Pipeline) setSpeaking(id uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.turnID != id {
		return false
	}
	p.state = StateSpeaking
	p.sendLocked(protocol.StateChange(StateSpeaking.String()))
	return true
}

// finishTurn commits a successful turn: the exchange is appended to the
// conversation history and persisted, question progress is tracked, and the
// machine returns to idle. userText is empty for system-triggered turns.
func (p *Pipeline) finishTurn(id uint64, userText, reply string, started time.Time) {
	p.mu.Lock()
	if p.closed || p.turnID != id {
		p.mu.Unlock()
		if p.metrics != nil {
			p.metrics.RecordStale(context.Background(), "completion")
		}
		return
	}

	if userText != "" {
		p.history = append(p.history, llm.Message{Role: "user", Content: userText})
	}
	p.history = append(p.history, llm.Message{Role: "assistant", Content: reply})

	asked := false
	if questionInReply(reply) {
		p.questionsAsked++
		asked = true
	}
	q := p.questionsAsked

	p.state = StateIdle
	p.cancelTurn = nil
	p.sendLocked(protocol.AIAudioDone())
	p.sendLocked(protocol.StateChange(StateIdle.String()))

	if asked && p.cfg.TotalQuestions > 0 {
		p.sendLocked(protocol.QuestionUpdate(q, p.cfg.TotalQuestions))
		if q >= p.cfg.TotalQuestions && !p.wrappedUp {
			p.wrappedUp = true
			p.history = append(p.history, llm.Message{Role: "system", Content: prompts.WrapUp()})
			p.startSystemTurnLocked()
		}
	}
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.RecordTurn(context.Background(), "completed")
		p.metrics.TurnDuration.Record(context.Background(), time.Since(started).Seconds())
	}
	p.persistTurn(id, userText, reply)
}

// failTurn surfaces a stage failure: an error event followed by
// state_change idle, history untouched. Interrupt-driven cancellations pass
// through silently; the turn was already superseded.
func (p *Pipeline) failTurn(id uint64, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}

	var se *StageError
	message := "pipeline error"
	stage := "pipeline"
	if errors.As(err, &se) {
		message = se.Message()
		stage = se.Stage
	}

	p.mu.Lock()
	if p.closed || p.turnID != id {
		p.mu.Unlock()
		if p.metrics != nil {
			p.metrics.RecordStale(context.Background(), stage)
		}
		return
	}
	p.state = StateIdle
	p.cancelTurn = nil
	p.sendLocked(protocol.Error(message))
	p.sendLocked(protocol.StateChange(StateIdle.String()))
	p.mu.Unlock()

	p.log.Error("turn failed", "stage", stage, "error", err, "turn", id)
	if p.metrics != nil {
		p.metrics.RecordTurn(context.Background(), "failed")
		p.metrics.RecordProviderError(context.Background(), p.providerName(stage), stage)
	}
}

// persistTurn writes the completed exchange to the record store in the
// background so synthesis latency never waits on the database.
func (p *Pipeline) persistTurn(id uint64, userText, reply string) {
	if p.recordStore == nil {
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), storeWriteTimeout)
		defer cancel()

		now := time.Now()
		if userText != "" {
			entry := store.Entry{Role: store.RoleCandidate, Content: userText, Turn: id, Timestamp: now}
			if err := p.recordStore.AppendEntry(ctx, p.interviewID, entry); err != nil {
				p.log.Error("persist candidate entry", "error", err, "turn", id)
			}
		}
		entry := store.Entry{Role: store.RoleInterviewer, Content: reply, Turn: id, Timestamp: now}
		if err := p.recordStore.AppendEntry(ctx, p.interviewID, entry); err != nil {
			p.log.Error("persist interviewer entry", "error", err, "turn", id)
		}
	}()
}

// providerName maps a stage to the configured provider name for error
// attribution.
func (p *Pipeline) providerName(stage string) string {
	switch stage {
	case "transcription":
		return p.cfg.STTProvider
	case "generation":
		return p.cfg.LLMProvider
	case "synthesis":
		return p.cfg.TTSProvider
	default:
		return "unknown"
	}
}

// messagesSnapshot copies the conversation history for a generation request.
func (p *Pipeline) messagesSnapshot() []llm.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	msgs := make([]llm.Message, len(p.history))
	copy(msgs, p.history)
	return msgs
}

// messagesWithUser copies the history and appends the candidate's new
// utterance. The history itself is only committed once the turn completes.
func (p *Pipeline) messagesWithUser(text string) []llm.Message {
	msgs := p.messagesSnapshot()
	return append(msgs, llm.Message{Role: "user", Content: text})
}

// HistoryFromEntries converts stored transcript entries into conversation
// messages for preloading a reconnected session.
func HistoryFromEntries(entries []store.Entry) []llm.Message {
	msgs := make([]llm.Message, 0, len(entries))
	for _, e := range entries {
		role := "system"
		switch e.Role {
		case store.RoleCandidate:
			role = "user"
		case store.RoleInterviewer:
			role = "assistant"
		}
		msgs = append(msgs, llm.Message{Role: role, Content: e.Content})
	}
	return msgs
}
