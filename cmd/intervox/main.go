// Command intervox is the main entry point for the intervox voice interview
// server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"go.opentelemetry.io/otel"

	"github.com/freyahq/intervox/internal/config"
	"github.com/freyahq/intervox/internal/health"
	"github.com/freyahq/intervox/internal/observe"
	"github.com/freyahq/intervox/internal/resilience"
	"github.com/freyahq/intervox/internal/server"
	"github.com/freyahq/intervox/internal/transcript"
	"github.com/freyahq/intervox/pkg/provider/llm"
	"github.com/freyahq/intervox/pkg/provider/llm/anyllm"
	openaillm "github.com/freyahq/intervox/pkg/provider/llm/openai"
	"github.com/freyahq/intervox/pkg/provider/stt"
	"github.com/freyahq/intervox/pkg/provider/stt/whisperhttp"
	"github.com/freyahq/intervox/pkg/provider/tts"
	"github.com/freyahq/intervox/pkg/provider/tts/falspeech"
	"github.com/freyahq/intervox/pkg/store"
	"github.com/freyahq/intervox/pkg/store/memory"
	"github.com/freyahq/intervox/pkg/store/postgres"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "intervox: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "intervox: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("intervox starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "intervox",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Store ─────────────────────────────────────────────────────────────────
	var (
		st       store.Store
		checkers []health.Checker
	)
	if dsn := cfg.Store.PostgresDSN; dsn != "" {
		pg, err := postgres.NewStore(ctx, dsn)
		if err != nil {
			slog.Error("failed to connect to postgres", "err", err)
			return 1
		}
		st = pg
		checkers = append(checkers, health.Checker{Name: "store", Check: pg.Ping})
		slog.Info("using postgres store")
	} else {
		st = memory.NewStore()
		slog.Warn("no postgres_dsn configured — transcripts will not survive a restart")
	}
	defer st.Close()

	// ── Transcript corrector ──────────────────────────────────────────────────
	var corrector *transcript.Corrector
	if len(cfg.Interview.Vocabulary) > 0 {
		corrector = transcript.New(cfg.Interview.Vocabulary)
		slog.Info("transcript corrector enabled", "vocabulary_terms", len(cfg.Interview.Vocabulary))
	}

	// ── Server ────────────────────────────────────────────────────────────────
	srv := server.New(cfg, server.Deps{
		STT:       providers.STT,
		LLM:       providers.LLM,
		TTS:       providers.TTS,
		Store:     st,
		Corrector: corrector,
		Metrics:   metrics,
		Health:    health.New(checkers...),
		Logger:    logger,
	})

	slog.Info("server ready — press Ctrl+C to shut down")
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("server error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// anyLLMProviders lists the hosted LLM backends reachable through the
// any-llm-go client with the shared APIKey + BaseURL pattern.
var anyLLMProviders = []string{
	"anthropic", "gemini", "deepseek", "mistral", "groq",
}

// openRouterBaseURL is the OpenAI-compatible chat completions endpoint used
// when no base_url override is configured for the openrouter provider.
const openRouterBaseURL = "https://openrouter.ai/api/v1"

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────

	// openai goes through the official SDK for first-class streaming support.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, openaillm.WithBaseURL(entry.BaseURL))
		}
		return openaillm.New(entry.APIKey, entry.Model, opts...)
	})

	// openrouter is OpenAI-compatible; it reuses the same provider with a
	// different default endpoint.
	reg.RegisterLLM("openrouter", func(entry config.ProviderEntry) (llm.Provider, error) {
		baseURL := entry.BaseURL
		if baseURL == "" {
			baseURL = openRouterBaseURL
		}
		return openaillm.New(entry.APIKey, entry.Model, openaillm.WithBaseURL(baseURL))
	})

	for _, providerName := range anyLLMProviders {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	// "whisper" targets a self-hosted whisper-server; "fal" targets a fal.ai
	// whisper deployment. Both speak the same HTTP surface.
	for _, providerName := range []string{"whisper", "fal"} {
		reg.RegisterSTT(providerName, func(entry config.ProviderEntry) (stt.Provider, error) {
			var opts []whisperhttp.Option
			if entry.APIKey != "" {
				opts = append(opts, whisperhttp.WithAPIKey(entry.APIKey))
			}
			return whisperhttp.New(entry.BaseURL, opts...), nil
		})
	}

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("fal", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []falspeech.Option
		if entry.APIKey != "" {
			opts = append(opts, falspeech.WithAPIKey(entry.APIKey))
		}
		return falspeech.New(entry.BaseURL, opts...), nil
	})
}

// providerSet holds the instantiated pipeline stage providers.
type providerSet struct {
	STT stt.Provider
	LLM llm.Provider
	TTS tts.Provider
}

// buildProviders instantiates the providers named in cfg. All three pipeline
// stages are required; the optional fallback LLM is layered behind a circuit
// breaker when configured.
func buildProviders(cfg *config.Config, reg *config.Registry) (*providerSet, error) {
	ps := &providerSet{}

	sttProvider, err := reg.CreateSTT(cfg.Providers.STT)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", cfg.Providers.STT.Name, err)
	}
	ps.STT = sttProvider
	slog.Info("provider created", "kind", "stt", "name", cfg.Providers.STT.Name)

	llmProvider, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", cfg.Providers.LLM.Name, err)
	}
	ps.LLM = llmProvider
	slog.Info("provider created", "kind", "llm", "name", cfg.Providers.LLM.Name)

	if name := cfg.Providers.FallbackLLM.Name; name != "" {
		fb, err := reg.CreateLLM(cfg.Providers.FallbackLLM)
		if err != nil {
			return nil, fmt.Errorf("create fallback llm provider %q: %w", name, err)
		}
		group := resilience.NewLLMFallback(llmProvider, cfg.Providers.LLM.Name, resilience.FallbackConfig{})
		group.AddFallback(name, fb)
		ps.LLM = group
		slog.Info("fallback llm enabled", "primary", cfg.Providers.LLM.Name, "fallback", name)
	}

	ttsProvider, err := reg.CreateTTS(cfg.Providers.TTS)
	if err != nil {
		return nil, fmt.Errorf("create tts provider %q: %w", cfg.Providers.TTS.Name, err)
	}
	ps.TTS = ttsProvider
	slog.Info("provider created", "kind", "tts", "name", cfg.Providers.TTS.Name)

	return ps, nil
}

// ── Logger ────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
