package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/freyahq/intervox/internal/config"
	"github.com/freyahq/intervox/internal/health"
	"github.com/freyahq/intervox/internal/observe"
	"github.com/freyahq/intervox/internal/pipeline"
	"github.com/freyahq/intervox/internal/prompts"
	"github.com/freyahq/intervox/internal/transcript"
	"github.com/freyahq/intervox/pkg/provider/llm"
	"github.com/freyahq/intervox/pkg/provider/stt"
	"github.com/freyahq/intervox/pkg/provider/tts"
	"github.com/freyahq/intervox/pkg/store"
)

// storeOpTimeout bounds the interview record reads and writes performed
// around a session's lifecycle.
const storeOpTimeout = 5 * time.Second

// Deps carries the collaborators a Server needs. STT, LLM and TTS are
// required; the rest may be nil.
type Deps struct {
	STT       stt.Provider
	LLM       llm.Provider
	TTS       tts.Provider
	Store     store.Store
	Corrector *transcript.Corrector
	Metrics   *observe.Metrics
	Health    *health.Handler
	Logger    *slog.Logger
}

// Server is the HTTP front of the voice pipeline: the /ws websocket endpoint
// plus health and metrics routes.
type Server struct {
	cfg     *config.Config
	deps    Deps
	manager *SessionManager
	log     *slog.Logger
}

// New constructs a Server from the loaded configuration and its
// collaborators.
func New(cfg *config.Config, deps Deps) *Server {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		cfg:     cfg,
		deps:    deps,
		manager: NewSessionManager(deps.Metrics, log),
		log:     log,
	}
}

// Handler builds the route table. The websocket endpoint is mounted outside
// the metrics middleware: the middleware's response recorder does not
// implement http.Hijacker, which the upgrade needs.
func (s *Server) Handler() http.Handler {
	instrumented := http.NewServeMux()
	if s.deps.Health != nil {
		s.deps.Health.Register(instrumented)
	}
	instrumented.Handle("/metrics", promhttp.Handler())

	var inner http.Handler = instrumented
	if s.deps.Metrics != nil {
		inner = observe.Middleware(s.deps.Metrics)(instrumented)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.Handle("/", inner)
	return mux
}

// Run serves HTTP until ctx is cancelled, then drains: live sessions are
// force-closed and the listener shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Server.ListenAddr,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		if tls := s.cfg.Server.TLS; tls != nil {
			errCh <- srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
			return
		}
		errCh <- srv.ListenAndServe()
	}()
	s.log.Info("server listening", "addr", s.cfg.Server.ListenAddr, "tls", s.cfg.Server.TLS != nil)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down", "active_sessions", s.manager.Count())
	s.manager.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handleWS upgrades the connection, prepares the interview record and runs
// the session to completion.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // origin policy is the proxy's concern
	})
	if err != nil {
		s.log.Warn("websocket accept failed", "error", err)
		return
	}

	sessionID := uuid.NewString()
	interviewID, history, err := s.prepareInterview(r)
	if err != nil {
		s.log.Error("interview setup failed", "error", err, "session", sessionID)
		_ = conn.Close(websocket.StatusInternalError, "interview setup failed")
		return
	}

	pipeOpts := []pipeline.Option{
		pipeline.WithLogger(s.log.With("session", sessionID)),
	}
	if s.deps.Corrector != nil {
		pipeOpts = append(pipeOpts, pipeline.WithCorrector(s.deps.Corrector))
	}
	if s.deps.Metrics != nil {
		pipeOpts = append(pipeOpts, pipeline.WithMetrics(s.deps.Metrics))
	}
	if s.deps.Store != nil {
		pipeOpts = append(pipeOpts, pipeline.WithStore(s.deps.Store, interviewID))
	}
	if len(history) > 0 {
		pipeOpts = append(pipeOpts, pipeline.WithHistory(history))
	}

	pipe := pipeline.New(s.pipelineConfig(), s.deps.STT, s.deps.LLM, s.deps.TTS, pipeOpts...)
	sess := newSession(sessionID, interviewID, conn, pipe, s.log.With("session", sessionID))

	s.manager.Add(sess)
	defer s.manager.Remove(sessionID)

	if err := sess.Run(r.Context()); err != nil {
		s.log.Warn("session ended with error", "error", err, "session", sessionID)
	}
	s.finishInterview(interviewID, sess.QuestionsAsked())
	_ = conn.Close(websocket.StatusNormalClosure, "")
}

// prepareInterview resolves the interview record for a new connection. A
// client reconnecting with ?interview=<id> gets its prior transcript
// preloaded; otherwise a fresh record is created.
func (s *Server) prepareInterview(r *http.Request) (string, []llm.Message, error) {
	interviewID := r.URL.Query().Get("interview")
	if s.deps.Store == nil {
		if interviewID == "" {
			interviewID = uuid.NewString()
		}
		return interviewID, nil, nil
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeOpTimeout)
	defer cancel()

	if interviewID != "" {
		_, err := s.deps.Store.Interview(ctx, interviewID)
		if err == nil {
			entries, err := s.deps.Store.History(ctx, interviewID, s.historyLimit())
			if err != nil {
				return "", nil, err
			}
			return interviewID, pipeline.HistoryFromEntries(entries), nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return "", nil, err
		}
		// Unknown id: fall through and create the record under it.
	} else {
		interviewID = uuid.NewString()
	}

	iv := store.Interview{
		ID:        interviewID,
		Language:  s.cfg.Interview.Language,
		StartedAt: time.Now(),
	}
	if err := s.deps.Store.CreateInterview(ctx, iv); err != nil {
		return "", nil, err
	}
	return interviewID, nil, nil
}

// finishInterview stamps the interview record when the session ends.
func (s *Server) finishInterview(interviewID string, questionsAsked int) {
	if s.deps.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeOpTimeout)
	defer cancel()
	if err := s.deps.Store.FinishInterview(ctx, interviewID, time.Now(), questionsAsked); err != nil {
		s.log.Error("finish interview record", "error", err, "interview", interviewID)
	}
}

func (s *Server) historyLimit() int {
	if s.cfg.Interview.HistoryLimit > 0 {
		return s.cfg.Interview.HistoryLimit
	}
	return 50
}

// pipelineConfig maps the deployment configuration onto per-session pipeline
// tuning, including the interviewer system prompt.
func (s *Server) pipelineConfig() pipeline.Config {
	iv := s.cfg.Interview
	ivType := prompts.InterviewType(iv.Type)
	if !ivType.Valid() {
		ivType = prompts.PhoneScreen
	}
	difficulty := prompts.Difficulty(iv.Difficulty)
	if !difficulty.Valid() {
		difficulty = prompts.Medium
	}
	language := iv.Language
	if language == "" {
		language = "en"
	}

	return pipeline.Config{
		SampleRate:      s.cfg.Pipeline.Rate(),
		EnergyThreshold: s.cfg.Pipeline.Energy(),
		Silence:         s.cfg.Pipeline.Silence(),
		MinUtterance:    s.cfg.Pipeline.MinUtterance(),
		STTTimeout:      s.cfg.Pipeline.STTTimeout(),
		LLMTimeout:      s.cfg.Pipeline.LLMTimeout(),
		TTSTimeout:      s.cfg.Pipeline.TTSTimeout(),

		SystemPrompt:   prompts.System(ivType, difficulty, language),
		Language:       language,
		Speed:          iv.Speed,
		TimeLimit:      iv.TimeLimit(),
		TotalQuestions: iv.Questions,

		STTProvider: s.cfg.Providers.STT.Name,
		LLMProvider: s.cfg.Providers.LLM.Name,
		TTSProvider: s.cfg.Providers.TTS.Name,
	}
}
