package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
	// TraceStdout prints spans to stderr when no OTLP endpoint is set.
	TraceStdout bool    `yaml:"trace_stdout"`
	SampleRatio float64 `yaml:"sample_ratio"`
	// PrometheusBind serves /metrics on a separate listener when set;
	// otherwise metrics are served by the API server.
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind          string `yaml:"bind"`
	Port          int    `yaml:"port"`
	RatePerMinute int    `yaml:"rate_per_minute"`
}

type Config struct {
	RuntimeName string          `yaml:"runtime_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	History     HistoryConfig   `yaml:"history"`
	LLM         LLMConfig       `yaml:"llm"`
	TTS         TTSConfig       `yaml:"tts"`
	Session     SessionConfig   `yaml:"session"`
	Audio       AudioConfig     `yaml:"audio"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
	StoreDir       string   `yaml:"store_dir"`
}

type HistoryConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"` // ephemeral, persistent
	MaxItems      int    `yaml:"max_items"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type LLMConfig struct {
	Mode        string  `yaml:"mode"` // gemini, exec, mock
	Endpoint    string  `yaml:"endpoint"`
	Command     string  `yaml:"command"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	TimeoutMS   int     `yaml:"timeout_ms"`
}

type TTSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Mode       string `yaml:"mode"` // gemini, exec, mock
	Endpoint   string `yaml:"endpoint"`
	Command    string `yaml:"command"`
	Model      string `yaml:"model"`
	Voice      string `yaml:"voice"`
	SampleRate int    `yaml:"sample_rate"`
	MaxChars   int    `yaml:"max_chars"`
	TimeoutMS  int    `yaml:"timeout_ms"`
}

type SessionConfig struct {
	APIKey          string `yaml:"api_key"`
	DefaultLanguage string `yaml:"default_language"`
	DefaultTone     string `yaml:"default_tone"`
	DefaultMode     string `yaml:"default_mode"`
}

type AudioConfig struct {
	URLPrefix  string `yaml:"url_prefix"`
	MaxHandles int    `yaml:"max_handles"`
}

func Default() Config {
	return Config{
		RuntimeName: "loqa-reader",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind:          "127.0.0.1",
			Port:          8080,
			RatePerMinute: 10,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
			SampleRatio:  1,
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		History: HistoryConfig{
			Path:          "./data/loqa-reader.db",
			RetentionMode: "persistent",
			MaxItems:      200,
		},
		LLM: LLMConfig{
			Mode:        "gemini",
			Endpoint:    "https://generativelanguage.googleapis.com/v1beta",
			Model:       "gemini-2.5-flash",
			Temperature: 0.3,
			TimeoutMS:   120000,
		},
		TTS: TTSConfig{
			Enabled:    true,
			Mode:       "gemini",
			Endpoint:   "https://generativelanguage.googleapis.com/v1beta",
			Model:      "gemini-2.5-flash-preview-tts",
			Voice:      "Kore",
			SampleRate: 24000,
			MaxChars:   4000,
			TimeoutMS:  120000,
		},
		Session: SessionConfig{
			DefaultLanguage: "FRENCH",
			DefaultTone:     "NEUTRAL",
			DefaultMode:     "FULL",
		},
		Audio: AudioConfig{
			URLPrefix:  "/audio/",
			MaxHandles: 16,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "LOQA_READER_RUNTIME_NAME")
	overrideString(&cfg.Environment, "LOQA_READER_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "LOQA_READER_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "LOQA_READER_HTTP_PORT")
	overrideInt(&cfg.HTTP.RatePerMinute, "LOQA_READER_HTTP_RATE_PER_MINUTE")
	overrideString(&cfg.Telemetry.LogLevel, "LOQA_READER_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "LOQA_READER_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "LOQA_READER_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "LOQA_READER_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Telemetry.TraceStdout, "LOQA_READER_TELEMETRY_TRACE_STDOUT")
	overrideFloat(&cfg.Telemetry.SampleRatio, "LOQA_READER_TELEMETRY_SAMPLE_RATIO")
	overrideBool(&cfg.Bus.Enabled, "LOQA_READER_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "LOQA_READER_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "LOQA_READER_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "LOQA_READER_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "LOQA_READER_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "LOQA_READER_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "LOQA_READER_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "LOQA_READER_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "LOQA_READER_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Bus.StoreDir, "LOQA_READER_BUS_STORE_DIR")
	overrideString(&cfg.History.Path, "LOQA_READER_HISTORY_PATH")
	overrideString(&cfg.History.RetentionMode, "LOQA_READER_HISTORY_RETENTION_MODE")
	overrideInt(&cfg.History.MaxItems, "LOQA_READER_HISTORY_MAX_ITEMS")
	overrideBool(&cfg.History.VacuumOnStart, "LOQA_READER_HISTORY_VACUUM_ON_START")
	overrideString(&cfg.LLM.Mode, "LOQA_READER_LLM_MODE")
	overrideString(&cfg.LLM.Endpoint, "LOQA_READER_LLM_ENDPOINT")
	overrideString(&cfg.LLM.Command, "LOQA_READER_LLM_COMMAND")
	overrideString(&cfg.LLM.Model, "LOQA_READER_LLM_MODEL")
	overrideFloat(&cfg.LLM.Temperature, "LOQA_READER_LLM_TEMPERATURE")
	overrideInt(&cfg.LLM.TimeoutMS, "LOQA_READER_LLM_TIMEOUT_MS")
	overrideBool(&cfg.TTS.Enabled, "LOQA_READER_TTS_ENABLED")
	overrideString(&cfg.TTS.Mode, "LOQA_READER_TTS_MODE")
	overrideString(&cfg.TTS.Endpoint, "LOQA_READER_TTS_ENDPOINT")
	overrideString(&cfg.TTS.Command, "LOQA_READER_TTS_COMMAND")
	overrideString(&cfg.TTS.Model, "LOQA_READER_TTS_MODEL")
	overrideString(&cfg.TTS.Voice, "LOQA_READER_TTS_VOICE")
	overrideInt(&cfg.TTS.SampleRate, "LOQA_READER_TTS_SAMPLE_RATE")
	overrideInt(&cfg.TTS.MaxChars, "LOQA_READER_TTS_MAX_CHARS")
	overrideInt(&cfg.TTS.TimeoutMS, "LOQA_READER_TTS_TIMEOUT_MS")
	overrideString(&cfg.Session.APIKey, "LOQA_READER_API_KEY")
	overrideString(&cfg.Session.DefaultLanguage, "LOQA_READER_DEFAULT_LANGUAGE")
	overrideString(&cfg.Session.DefaultTone, "LOQA_READER_DEFAULT_TONE")
	overrideString(&cfg.Session.DefaultMode, "LOQA_READER_DEFAULT_MODE")
	overrideString(&cfg.Audio.URLPrefix, "LOQA_READER_AUDIO_URL_PREFIX")
	overrideInt(&cfg.Audio.MaxHandles, "LOQA_READER_AUDIO_MAX_HANDLES")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.HTTP.RatePerMinute < 0 {
		return errors.New("http.rate_per_minute must be >= 0")
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		return errors.New("telemetry.sample_ratio must be between 0 and 1")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	switch cfg.History.RetentionMode {
	case "ephemeral":
	case "persistent":
		if cfg.History.Path == "" {
			return errors.New("history.path must not be empty when retention_mode=persistent")
		}
	default:
		return errors.New("history.retention_mode must be one of ephemeral|persistent")
	}
	if cfg.History.MaxItems < 0 {
		return errors.New("history.max_items must be >= 0")
	}
	if err := validateBackend("llm", cfg.LLM.Mode, cfg.LLM.Endpoint, cfg.LLM.Command); err != nil {
		return err
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		return errors.New("llm.temperature must be between 0 and 2")
	}
	if cfg.TTS.Enabled {
		if err := validateBackend("tts", cfg.TTS.Mode, cfg.TTS.Endpoint, cfg.TTS.Command); err != nil {
			return err
		}
		if cfg.TTS.SampleRate <= 0 {
			return errors.New("tts.sample_rate must be positive")
		}
		if cfg.TTS.MaxChars <= 0 {
			return errors.New("tts.max_chars must be positive")
		}
	}
	if cfg.Audio.URLPrefix == "" || !strings.HasPrefix(cfg.Audio.URLPrefix, "/") {
		return errors.New("audio.url_prefix must start with /")
	}
	if cfg.Audio.MaxHandles < 0 {
		return errors.New("audio.max_handles must be >= 0")
	}
	return nil
}

func validateBackend(section, mode, endpoint, command string) error {
	switch mode {
	case "gemini":
		if endpoint == "" {
			return fmt.Errorf("%s.endpoint must be set when mode=gemini", section)
		}
	case "exec":
		if command == "" {
			return fmt.Errorf("%s.command must be set when mode=exec", section)
		}
	case "mock":
	default:
		return fmt.Errorf("%s.mode must be one of gemini|exec|mock", section)
	}
	return nil
}
