package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/freyahq/intervox/internal/prompts"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"whisper", "fal"},
	"llm": {"openai", "openrouter", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq"},
	"tts": {"fal"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("llm", cfg.Providers.FallbackLLM.Name)

	// Provider availability
	if cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt is required: sessions cannot transcribe audio without one"))
	}
	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm is required: sessions cannot generate responses without one"))
	}
	if cfg.Providers.TTS.Name == "" {
		errs = append(errs, errors.New("providers.tts is required: sessions cannot speak without one"))
	}

	// Pipeline tuning
	if cfg.Pipeline.EnergyThreshold > 32767 {
		errs = append(errs, fmt.Errorf("pipeline.energy_threshold %d exceeds the int16 amplitude ceiling 32767", cfg.Pipeline.EnergyThreshold))
	}
	if cfg.Pipeline.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("pipeline.sample_rate %d is negative", cfg.Pipeline.SampleRate))
	}

	// Interview defaults
	if cfg.Interview.Type != "" && !prompts.InterviewType(cfg.Interview.Type).Valid() {
		errs = append(errs, fmt.Errorf("interview.type %q is invalid; valid values: live-coding, system-design, phone-screen, practice", cfg.Interview.Type))
	}
	if cfg.Interview.Difficulty != "" && !prompts.Difficulty(cfg.Interview.Difficulty).Valid() {
		errs = append(errs, fmt.Errorf("interview.difficulty %q is invalid; valid values: easy, medium, hard", cfg.Interview.Difficulty))
	}
	if cfg.Interview.Speed != 0 {
		if cfg.Interview.Speed < 0.5 || cfg.Interview.Speed > 2.0 {
			errs = append(errs, fmt.Errorf("interview.speed %.2f is out of range [0.5, 2.0]", cfg.Interview.Speed))
		}
	}
	if cfg.Interview.TimeLimitMin < 0 {
		errs = append(errs, fmt.Errorf("interview.time_limit_min %d is negative", cfg.Interview.TimeLimitMin))
	}
	if cfg.Interview.Questions < 0 {
		errs = append(errs, fmt.Errorf("interview.questions %d is negative", cfg.Interview.Questions))
	}

	// Store availability
	if cfg.Store.PostgresDSN == "" {
		slog.Warn("store.postgres_dsn is empty; transcripts will not survive a restart")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
