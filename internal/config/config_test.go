package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Enabled {
		t.Fatal("expected bus disabled by default")
	}
	if cfg.TTS.MaxChars != 4000 {
		t.Fatalf("expected 4000 max chars, got %d", cfg.TTS.MaxChars)
	}
	if cfg.LLM.Temperature != 0.3 {
		t.Fatalf("expected temperature 0.3, got %v", cfg.LLM.Temperature)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LOQA_READER_BUS_ENABLED", "true")
	t.Setenv("LOQA_READER_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("LOQA_READER_BUS_USERNAME", "alice")
	t.Setenv("LOQA_READER_BUS_PASSWORD", "secret")
	t.Setenv("LOQA_READER_BUS_TLS_INSECURE", "true")
	t.Setenv("LOQA_READER_BUS_CONNECT_TIMEOUT_MS", "5000")
	t.Setenv("LOQA_READER_HISTORY_PATH", "./tmp.db")
	t.Setenv("LOQA_READER_HISTORY_RETENTION_MODE", "ephemeral")
	t.Setenv("LOQA_READER_HISTORY_MAX_ITEMS", "12")
	t.Setenv("LOQA_READER_HISTORY_VACUUM_ON_START", "true")
	t.Setenv("LOQA_READER_LLM_MODE", "mock")
	t.Setenv("LOQA_READER_LLM_TEMPERATURE", "0.7")
	t.Setenv("LOQA_READER_TTS_VOICE", "Puck")
	t.Setenv("LOQA_READER_API_KEY", "key-from-env")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !cfg.Bus.Enabled || len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected bus override, got %+v", cfg.Bus)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if !cfg.Bus.TLSInsecure {
		t.Fatal("expected tls insecure override true")
	}
	if cfg.Bus.ConnectTimeout != 5000 {
		t.Fatalf("expected timeout 5000, got %d", cfg.Bus.ConnectTimeout)
	}
	if cfg.History.Path != "./tmp.db" || cfg.History.RetentionMode != "ephemeral" {
		t.Fatalf("expected history override, got %+v", cfg.History)
	}
	if cfg.History.MaxItems != 12 || !cfg.History.VacuumOnStart {
		t.Fatalf("expected history limits override, got %+v", cfg.History)
	}
	if cfg.LLM.Mode != "mock" || cfg.LLM.Temperature != 0.7 {
		t.Fatalf("expected llm override, got %+v", cfg.LLM)
	}
	if cfg.TTS.Voice != "Puck" {
		t.Fatalf("expected voice override")
	}
	if cfg.Session.APIKey != "key-from-env" {
		t.Fatalf("expected api key override")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reader.yaml")
	data := []byte("http:\n  port: 9090\nllm:\n  mode: exec\n  command: my-llm --json\ntts:\n  enabled: false\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Port != 9090 || cfg.LLM.Command != "my-llm --json" || cfg.TTS.Enabled {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Audio.URLPrefix != "/audio/" {
		t.Fatalf("expected default audio prefix to survive, got %q", cfg.Audio.URLPrefix)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"port":           func(c *Config) { c.HTTP.Port = 0 },
		"retention mode": func(c *Config) { c.History.RetentionMode = "session" },
		"llm mode":       func(c *Config) { c.LLM.Mode = "ollama" },
		"exec command":   func(c *Config) { c.LLM.Mode = "exec"; c.LLM.Command = "" },
		"tts chars":      func(c *Config) { c.TTS.MaxChars = 0 },
		"audio prefix":   func(c *Config) { c.Audio.URLPrefix = "audio" },
		"bus servers":    func(c *Config) { c.Bus.Enabled = true; c.Bus.Embedded = false; c.Bus.Servers = nil },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			if err := validate(cfg); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
