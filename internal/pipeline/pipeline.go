// Package pipeline implements the real-time voice interview turn pipeline.
//
// One Pipeline serves one client connection. Inbound client messages arm the
// audio frame buffer and drive the turn state machine; each completed
// utterance flows through transcription, reply generation and speech
// synthesis in sequence, publishing wire-protocol events on a single ordered
// outbound channel. A barge-in interrupt cancels the in-flight stage,
// discards the turn and rearms the buffer.
//
// Correctness hinges on turn identity: every stage runs tagged with the
// monotonic turn id it belongs to, and every outbound event is gated on that
// id still being current. A result from a superseded turn is silently
// discarded no matter how late it arrives.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/freyahq/intervox/internal/observe"
	"github.com/freyahq/intervox/internal/prompts"
	"github.com/freyahq/intervox/internal/transcript"
	"github.com/freyahq/intervox/pkg/protocol"
	"github.com/freyahq/intervox/pkg/provider/llm"
	"github.com/freyahq/intervox/pkg/provider/stt"
	"github.com/freyahq/intervox/pkg/provider/tts"
	"github.com/freyahq/intervox/pkg/store"
)

const (
	// defaultEventBuf is the buffer depth of the outbound event channel.
	// Sized to absorb a burst of synthesis frames without stalling the turn
	// goroutine while the session's write loop drains.
	defaultEventBuf = 256

	// defaultTotalHints caps hint escalation per session.
	defaultTotalHints = 3

	// storeWriteTimeout bounds the background transcript write after a turn
	// completes.
	storeWriteTimeout = 5 * time.Second
)

// Config carries the per-session tuning of a Pipeline. Zero values fall back
// to the defaults documented on each field.
type Config struct {
	// SampleRate is the inbound PCM16 sample rate in Hz. Default: 16000.
	SampleRate int

	// EnergyThreshold is the RMS level below which a chunk counts as
	// silence. Default: 300.
	EnergyThreshold int

	// Silence is the trailing-silence duration that ends an utterance.
	// Default: 500ms.
	Silence time.Duration

	// MinUtterance is the minimum buffered speech duration for an utterance
	// to be transcribed. Shorter bursts are dropped as noise. Default: 200ms.
	MinUtterance time.Duration

	// STTTimeout, LLMTimeout and TTSTimeout bound the respective stage
	// calls. Defaults: 30s, 60s, 60s.
	STTTimeout time.Duration
	LLMTimeout time.Duration
	TTSTimeout time.Duration

	// SystemPrompt is the interviewer instruction sent with every
	// generation request.
	SystemPrompt string

	// Language is the transcription language hint. Clients may change it
	// over the wire mid-session.
	Language string

	// Speed is the synthesis speaking-rate multiplier.
	Speed float64

	// Voice is the provider-specific synthesis voice identifier.
	Voice string

	// STTProvider, LLMProvider and TTSProvider are the configured provider
	// names, used for log and metric attribution only.
	STTProvider string
	LLMProvider string
	TTSProvider string

	// TimeLimit caps the interview duration. Zero disables the clock.
	TimeLimit time.Duration

	// TotalQuestions is the phone-screen question target. Zero disables
	// question progress tracking.
	TotalQuestions int

	// TotalHints caps hint escalation. Default: 3.
	TotalHints int
}

func (c *Config) applyDefaults() {
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.EnergyThreshold <= 0 {
		c.EnergyThreshold = 300
	}
	if c.Silence <= 0 {
		c.Silence = 500 * time.Millisecond
	}
	if c.MinUtterance <= 0 {
		c.MinUtterance = 200 * time.Millisecond
	}
	if c.STTTimeout <= 0 {
		c.STTTimeout = 30 * time.Second
	}
	if c.LLMTimeout <= 0 {
		c.LLMTimeout = 60 * time.Second
	}
	if c.TTSTimeout <= 0 {
		c.TTSTimeout = 60 * time.Second
	}
	if c.Speed <= 0 {
		c.Speed = 1.0
	}
	if c.TotalHints <= 0 {
		c.TotalHints = defaultTotalHints
	}
}

// Pipeline is the per-connection turn orchestrator. Handler methods are
// called from the session's inbound loop; stage work runs on a single
// background goroutine per turn. All mutable state is guarded by mu.
type Pipeline struct {
	cfg Config

	sttP stt.Provider
	llmP llm.Provider
	ttsP tts.Provider

	corrector   *transcript.Corrector
	recordStore store.Store
	interviewID string
	metrics     *observe.Metrics
	log         *slog.Logger

	events chan *protocol.ServerMessage

	mu             sync.Mutex
	state          State
	turnID         uint64 // id of the current turn; 0 before the first turn
	buffer         *FrameBuffer
	history        []llm.Message
	hintLevel      int
	questionsAsked int
	timeWarned     bool
	wrappedUp      bool
	closed         bool
	cancelTurn     context.CancelFunc

	baseCtx context.Context
	started time.Time
	wg      sync.WaitGroup

	// clockTick is the interview clock resolution. Overridable in tests.
	clockTick time.Duration
}

// Option configures a Pipeline during construction.
type Option func(*Pipeline)

// WithCorrector aligns final transcripts against a technical vocabulary
// before they reach the client and the generation stage.
func WithCorrector(c *transcript.Corrector) Option {
	return func(p *Pipeline) { p.corrector = c }
}

// WithStore persists completed turns to the interview record store under the
// given interview id.
func WithStore(s store.Store, interviewID string) Option {
	return func(p *Pipeline) {
		p.recordStore = s
		p.interviewID = interviewID
	}
}

// WithMetrics records stage latencies, turn outcomes, interrupts and stale
// results on the given instrument set.
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// WithHistory preloads the conversation with prior transcript entries, used
// when a client reconnects to an existing interview.
func WithHistory(msgs []llm.Message) Option {
	return func(p *Pipeline) { p.history = msgs }
}

// New constructs a Pipeline over the three stage providers. Call Start before
// dispatching client messages.
func New(cfg Config, sttP stt.Provider, llmP llm.Provider, ttsP tts.Provider, opts ...Option) *Pipeline {
	cfg.applyDefaults()
	p := &Pipeline{
		cfg:    cfg,
		sttP:   sttP,
		llmP:   llmP,
		ttsP:   ttsP,
		log:    slog.Default(),
		events: make(chan *protocol.ServerMessage, defaultEventBuf),
		buffer: NewFrameBuffer(cfg.SampleRate, cfg.EnergyThreshold, cfg.Silence),
		state:  StateIdle,

		clockTick: time.Second,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Events returns the ordered outbound event stream. The channel is closed by
// Close after all in-flight turn work has stopped.
func (p *Pipeline) Events() <-chan *protocol.ServerMessage {
	return p.events
}

// Start binds the pipeline to the session's context and starts the interview
// clock when a time limit is configured. Turn stage contexts derive from ctx,
// so cancelling it aborts any in-flight stage.
func (p *Pipeline) Start(ctx context.Context) {
	p.mu.Lock()
	p.baseCtx = ctx
	p.started = time.Now()
	p.mu.Unlock()

	if p.cfg.TimeLimit > 0 {
		p.wg.Add(1)
		go p.runClock(ctx)
	}
}

// Close cancels any in-flight stage, waits for background work to finish and
// closes the event channel. Safe to call once; handler calls after Close
// return ErrClosed.
func (p *Pipeline) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	if p.cancelTurn != nil {
		p.cancelTurn()
		p.cancelTurn = nil
	}
	p.mu.Unlock()

	p.wg.Wait()
	close(p.events)
}

// State returns the current turn state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// QuestionsAsked returns how many interviewer replies ended with a question.
func (p *Pipeline) QuestionsAsked() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.questionsAsked
}

// ─── Inbound message handlers ─────────────────────────────────────────────────

// StartListening opens a new turn: the buffer is rearmed, the turn id
// advances and the machine enters listening. A no-op when already listening;
// an error when a reply is still processing or speaking (the client must
// interrupt first).
func (p *Pipeline) StartListening() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	switch p.state {
	case StateListening:
		return nil
	case StateIdle:
		p.beginTurnLocked()
		return nil
	default:
		return errors.New("pipeline: cannot start listening while " + p.state.String())
	}
}

// PushAudio appends one sequenced PCM16 chunk to the armed buffer. A
// sequence gap or a chunk outside listening is a protocol violation: an
// error event is emitted and the machine is forced to idle. When the
// trailing-silence threshold is reached the utterance is submitted
// automatically.
func (p *Pipeline) PushAudio(seq uint64, pcm []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if p.state != StateListening {
		p.failProtocolLocked(ErrBufferClosed)
		return ErrBufferClosed
	}
	end, err := p.buffer.Append(seq, pcm)
	if err != nil {
		p.failProtocolLocked(err)
		return err
	}
	if end {
		p.endUtteranceLocked()
	}
	return nil
}

// StopListening explicitly ends the current utterance. Converges with
// silence-based endpointing on the same submission path.
func (p *Pipeline) StopListening() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if p.state != StateListening {
		return errors.New("pipeline: cannot stop listening while " + p.state.String())
	}
	p.endUtteranceLocked()
	return nil
}

// Interrupt handles a barge-in: the in-flight stage is cancelled, the turn is
// discarded, the buffer is rearmed and the machine returns to listening with
// a fresh turn id. Any late result from the cancelled turn is suppressed by
// the id check on emission. A no-op in idle.
func (p *Pipeline) Interrupt() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.state == StateIdle {
		return
	}
	interrupted := p.state
	if p.cancelTurn != nil {
		p.cancelTurn()
		p.cancelTurn = nil
	}
	if p.metrics != nil {
		p.metrics.Interrupts.Add(context.Background(), 1)
		if interrupted == StateProcessing || interrupted == StateSpeaking {
			p.metrics.RecordTurn(context.Background(), "interrupted")
		}
	}
	p.log.Debug("barge-in interrupt", "from_state", interrupted.String(), "turn", p.turnID)
	p.beginTurnLocked()
}

// SetLanguage updates the transcription language hint for subsequent turns.
func (p *Pipeline) SetLanguage(language string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if language != "" {
		p.cfg.Language = language
	}
}

// SetSpeed updates the synthesis speaking rate for subsequent turns. Values
// outside [0.5, 2.0] are ignored.
func (p *Pipeline) SetSpeed(speed float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if speed >= 0.5 && speed <= 2.0 {
		p.cfg.Speed = speed
	}
}

// RequestHint escalates the hint level, injects the hint instruction into the
// conversation and, when the machine is idle, immediately runs a
// system-triggered turn so the interviewer speaks the hint.
func (p *Pipeline) RequestHint() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	if p.hintLevel < p.cfg.TotalHints {
		p.hintLevel++
	}
	level := p.hintLevel
	p.history = append(p.history, llm.Message{Role: "user", Content: prompts.Hint(level, p.cfg.TotalHints)})
	p.sendLocked(protocol.HintGiven(level, p.cfg.TotalHints))
	if p.metrics != nil {
		p.metrics.RecordHint(context.Background(), level)
	}
	if p.state == StateIdle {
		p.startSystemTurnLocked()
	}
}

// ─── Internal state transitions (mu held) ─────────────────────────────────────

// beginTurnLocked advances the turn id, rearms the buffer and enters
// listening. The id bump supersedes any in-flight stage of the previous turn.
func (p *Pipeline) beginTurnLocked() {
	p.turnID++
	p.buffer.Reset()
	p.state = StateListening
	p.sendLocked(protocol.StateChange(StateListening.String()))
}

// endUtteranceLocked closes the buffer and submits the utterance. An empty or
// too-short utterance is a no-op: the buffer is rearmed and the machine stays
// in listening without calling transcription.
func (p *Pipeline) endUtteranceLocked() {
	pcm, err := p.buffer.Close()
	if err != nil {
		p.failProtocolLocked(err)
		return
	}
	if !p.buffer.HadSpeech() || p.buffer.Duration() < p.cfg.MinUtterance {
		p.log.Debug("utterance dropped", "reason", ErrEmptyUtterance, "duration", p.buffer.Duration(), "turn", p.turnID)
		p.buffer.Reset()
		return
	}

	p.state = StateProcessing
	p.sendLocked(protocol.StateChange(StateProcessing.String()))

	id := p.turnID
	ctx, cancel := context.WithCancel(p.turnContextLocked())
	p.cancelTurn = cancel
	p.wg.Add(1)
	go p.runTurn(ctx, id, pcm)
}

// startSystemTurnLocked runs a turn triggered by injected conversation
// content rather than an utterance: generation and synthesis only, no
// transcription stage.
func (p *Pipeline) startSystemTurnLocked() {
	p.turnID++
	p.state = StateProcessing
	p.sendLocked(protocol.StateChange(StateProcessing.String()))

	id := p.turnID
	ctx, cancel := context.WithCancel(p.turnContextLocked())
	p.cancelTurn = cancel
	p.wg.Add(1)
	go p.runSystemTurn(ctx, id)
}

// turnContextLocked returns the context stage work derives from.
func (p *Pipeline) turnContextLocked() context.Context {
	if p.baseCtx != nil {
		return p.baseCtx
	}
	return context.Background()
}

// failProtocolLocked forces the machine to idle after a client protocol
// violation, cancelling any in-flight stage. The turn id is advanced so a
// stage that already finished before the cancel landed cannot commit the
// discarded turn.
func (p *Pipeline) failProtocolLocked(err error) {
	if p.cancelTurn != nil {
		p.cancelTurn()
		p.cancelTurn = nil
	}
	p.turnID++
	p.log.Warn("protocol violation", "error", err, "turn", p.turnID)
	p.state = StateIdle
	p.sendLocked(protocol.Error(err.Error()))
	p.sendLocked(protocol.StateChange(StateIdle.String()))
}

// sendLocked places msg on the outbound channel. Caller must hold mu; the
// lock serialises the turn-identity check and the channel send so no event of
// a superseded turn can slip out after an interrupt. The send is non-blocking:
// the channel is buffered, and if the session's write loop has stalled long
// enough to fill it we drop rather than deadlock.
func (p *Pipeline) sendLocked(msg *protocol.ServerMessage) {
	if p.closed {
		return
	}
	select {
	case p.events <- msg:
	default:
		p.log.Warn("outbound event dropped: channel full", "type", msg.Type)
	}
}

// emitTurn publishes a turn-tagged event. Returns false without sending when
// the turn has been superseded; the drop is counted as a stale result for the
// given stage.
func (p *Pipeline) emitTurn(id uint64, stage string, msg *protocol.ServerMessage) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.turnID != id {
		if p.metrics != nil {
			p.metrics.RecordStale(context.Background(), stage)
		}
		return false
	}
	p.sendLocked(msg)
	return true
}

// ─── Interview clock ──────────────────────────────────────────────────────────

// runClock watches the interview time limit: at 80% elapsed it warns the
// client and steers the interviewer toward concluding; at the limit it
// injects a wrap-up instruction and triggers a closing turn.
func (p *Pipeline) runClock(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.clockTick)
	defer ticker.Stop()

	warnAt := p.cfg.TimeLimit * 8 / 10
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return
		}
		elapsed := time.Since(p.started)

		if !p.timeWarned && elapsed >= warnAt {
			p.timeWarned = true
			minutesLeft := int((p.cfg.TimeLimit - elapsed + time.Minute - 1) / time.Minute)
			if minutesLeft < 1 {
				minutesLeft = 1
			}
			p.sendLocked(protocol.TimeWarning(minutesLeft))
			p.history = append(p.history, llm.Message{Role: "system", Content: prompts.TimeWarning(minutesLeft)})
			p.log.Info("interview time warning", "minutes_left", minutesLeft)
		}

		if !p.wrappedUp && elapsed >= p.cfg.TimeLimit {
			p.wrappedUp = true
			p.history = append(p.history, llm.Message{Role: "system", Content: prompts.WrapUp()})
			p.log.Info("interview time limit reached")
			if p.state == StateIdle {
				p.startSystemTurnLocked()
			}
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()
	}
}

// questionInReply reports whether the interviewer's reply poses a question.
func questionInReply(reply string) bool {
	return strings.HasSuffix(strings.TrimSpace(reply), "?")
}
