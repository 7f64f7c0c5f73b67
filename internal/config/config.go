package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultPort           = 3000
	DefaultOpenAIBaseURL  = "https://api.openai.com/v1"
	DefaultChatModel      = "gpt-4o"
	DefaultSTTModel       = "whisper-1"
	DefaultTTSModel       = "tts-1"
	DefaultTTSVoice       = "alloy"
	DefaultSystemPrompt   = "You are a helpful voice assistant for website visitors."
	DefaultMaxUploadBytes = 25 << 20
)

// Config contains all runtime settings for the relay service.
type Config struct {
	BindAddr         string
	Port             int
	ShutdownTimeout  time.Duration
	UpstreamTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool
	CORSOrigins    []string

	StaticDir      string
	UploadDir      string
	MaxUploadBytes int64

	OpenAIAPIKey  string
	OpenAIBaseURL string
	ChatModel     string
	STTModel      string
	TTSModel      string
	TTSVoice      string
	SystemPrompt  string
}

// HasAPIKey reports whether an upstream credential is configured.
func (c Config) HasAPIKey() bool {
	return strings.TrimSpace(c.OpenAIAPIKey) != ""
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("stat %s: %w", p, err)
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		Port:             DefaultPort,
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "voicerelay"),
		// Matches the permissive cors() default of the web front end.
		AllowAnyOrigin:  true,
		StaticDir:       envTrimmed("APP_STATIC_DIR"),
		UploadDir:       envOrDefault("APP_UPLOAD_DIR", filepath.Join(os.TempDir(), "voicerelay-uploads")),
		MaxUploadBytes:  DefaultMaxUploadBytes,
		OpenAIAPIKey:    envTrimmed("OPENAI_API_KEY"),
		OpenAIBaseURL:   strings.TrimRight(envOrDefault("OPENAI_BASE_URL", DefaultOpenAIBaseURL), "/"),
		ChatModel:       envOrDefault("OPENAI_CHAT_MODEL", DefaultChatModel),
		STTModel:        envOrDefault("OPENAI_STT_MODEL", DefaultSTTModel),
		TTSModel:        envOrDefault("OPENAI_TTS_MODEL", DefaultTTSModel),
		TTSVoice:        envOrDefault("OPENAI_TTS_VOICE", DefaultTTSVoice),
		SystemPrompt:    envOrDefault("OPENAI_SYSTEM_PROMPT", DefaultSystemPrompt),
		ShutdownTimeout: 15 * time.Second,
		UpstreamTimeout: 120 * time.Second,
	}

	var err error
	cfg.Port, err = intFromEnv("PORT", cfg.Port)
	if err != nil {
		return Config{}, err
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return Config{}, fmt.Errorf("PORT must be in [1,65535]")
	}
	cfg.BindAddr = envOrDefault("APP_BIND_ADDR", ":"+strconv.Itoa(cfg.Port))

	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.UpstreamTimeout, err = durationFromEnv("APP_UPSTREAM_TIMEOUT", cfg.UpstreamTimeout)
	if err != nil {
		return Config{}, err
	}
	if cfg.UpstreamTimeout <= 0 {
		return Config{}, fmt.Errorf("APP_UPSTREAM_TIMEOUT must be positive")
	}

	maxUpload, err := intFromEnv("APP_MAX_UPLOAD_BYTES", int(cfg.MaxUploadBytes))
	if err != nil {
		return Config{}, err
	}
	if maxUpload <= 0 {
		return Config{}, fmt.Errorf("APP_MAX_UPLOAD_BYTES must be positive")
	}
	cfg.MaxUploadBytes = int64(maxUpload)

	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.CORSOrigins = listFromEnv("APP_CORS_ORIGINS")
	if len(cfg.CORSOrigins) > 0 {
		// An explicit allow-list wins over the permissive default.
		cfg.AllowAnyOrigin = false
	}

	if strings.TrimSpace(cfg.OpenAIBaseURL) == "" {
		return Config{}, fmt.Errorf("OPENAI_BASE_URL must not be empty")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envTrimmed(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(envTrimmed(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}

func listFromEnv(key string) []string {
	v := envTrimmed(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
