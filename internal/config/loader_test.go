package config

import (
	"strings"
	"testing"
	"time"
)

const validYAML = `
server:
  listen_addr: ":8080"
  log_level: info
providers:
  stt:
    name: whisper
    base_url: http://localhost:9000
  llm:
    name: openrouter
    api_key: sk-test
    base_url: https://openrouter.ai/api/v1
    model: openai/gpt-4o-mini
  tts:
    name: fal
    api_key: fal-test
pipeline:
  sample_rate: 16000
  energy_threshold: 300
  silence_ms: 500
interview:
  type: phone-screen
  difficulty: medium
  language: en
  speed: 1.0
  time_limit_min: 45
  vocabulary:
    - Kubernetes
    - PostgreSQL
store:
  postgres_dsn: "postgres://localhost/intervox"
`

func TestLoadFromReaderValid(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Providers.LLM.Model != "openai/gpt-4o-mini" {
		t.Errorf("LLM.Model = %q", cfg.Providers.LLM.Model)
	}
	if got := cfg.Interview.TimeLimit(); got != 45*time.Minute {
		t.Errorf("TimeLimit() = %v, want 45m", got)
	}
	if len(cfg.Interview.Vocabulary) != 2 {
		t.Errorf("len(Vocabulary) = %d, want 2", len(cfg.Interview.Vocabulary))
	}
}

func TestLoadFromReaderUnknownField(t *testing.T) {
	t.Parallel()

	_, err := LoadFromReader(strings.NewReader(validYAML + "\nbogus_key: true\n"))
	if err == nil {
		t.Fatal("unknown top-level field should be rejected")
	}
}

func TestValidateMissingProviders(t *testing.T) {
	t.Parallel()

	err := Validate(&Config{})
	if err == nil {
		t.Fatal("empty config should fail validation")
	}
	for _, want := range []string{"providers.stt", "providers.llm", "providers.tts"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q: %v", want, err)
		}
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad log level", func(c *Config) { c.Server.LogLevel = "loud" }, "log_level"},
		{"tls missing key", func(c *Config) { c.Server.TLS = &TLSConfig{CertFile: "cert.pem"} }, "tls"},
		{"energy above ceiling", func(c *Config) { c.Pipeline.EnergyThreshold = 40000 }, "energy_threshold"},
		{"bad interview type", func(c *Config) { c.Interview.Type = "panel" }, "interview.type"},
		{"bad difficulty", func(c *Config) { c.Interview.Difficulty = "extreme" }, "interview.difficulty"},
		{"speed out of range", func(c *Config) { c.Interview.Speed = 3.0 }, "interview.speed"},
		{"negative questions", func(c *Config) { c.Interview.Questions = -1 }, "interview.questions"},
		{"negative time limit", func(c *Config) { c.Interview.TimeLimitMin = -1 }, "time_limit_min"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := LoadFromReader(strings.NewReader(validYAML))
			if err != nil {
				t.Fatalf("base config invalid: %v", err)
			}
			tt.mutate(cfg)
			err = Validate(cfg)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load("/nonexistent/intervox.yaml")
	if err == nil {
		t.Fatal("Load of missing file should fail")
	}
}

func TestPipelineDefaults(t *testing.T) {
	t.Parallel()

	var p PipelineConfig
	if got := p.Rate(); got != 16000 {
		t.Errorf("Rate() = %d, want 16000", got)
	}
	if got := p.Energy(); got != 300 {
		t.Errorf("Energy() = %d, want 300", got)
	}
	if got := p.Silence(); got != 500*time.Millisecond {
		t.Errorf("Silence() = %v, want 500ms", got)
	}
	if got := p.MinUtterance(); got != 200*time.Millisecond {
		t.Errorf("MinUtterance() = %v, want 200ms", got)
	}
	if got := p.STTTimeout(); got != 30*time.Second {
		t.Errorf("STTTimeout() = %v, want 30s", got)
	}
	if got := p.LLMTimeout(); got != 60*time.Second {
		t.Errorf("LLMTimeout() = %v, want 60s", got)
	}

	p = PipelineConfig{SilenceMS: 800, STTTimeoutS: 10}
	if got := p.Silence(); got != 800*time.Millisecond {
		t.Errorf("Silence() = %v, want 800ms", got)
	}
	if got := p.STTTimeout(); got != 10*time.Second {
		t.Errorf("STTTimeout() = %v, want 10s", got)
	}
}

func TestInterviewTimeLimitDisabled(t *testing.T) {
	t.Parallel()

	var c InterviewConfig
	if got := c.TimeLimit(); got != 0 {
		t.Errorf("TimeLimit() = %v, want 0", got)
	}
}
