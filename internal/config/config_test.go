package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 3000 {
		t.Fatalf("Port = %d, want 3000", cfg.Port)
	}
	if cfg.BindAddr != ":3000" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":3000")
	}
	if cfg.HasAPIKey() {
		t.Fatalf("HasAPIKey() = true, want false with empty OPENAI_API_KEY")
	}
	if cfg.OpenAIBaseURL != DefaultOpenAIBaseURL {
		t.Fatalf("OpenAIBaseURL = %q, want %q", cfg.OpenAIBaseURL, DefaultOpenAIBaseURL)
	}
	if cfg.ChatModel != "gpt-4o" || cfg.STTModel != "whisper-1" || cfg.TTSVoice != "alloy" {
		t.Fatalf("unexpected model defaults: chat=%q stt=%q voice=%q", cfg.ChatModel, cfg.STTModel, cfg.TTSVoice)
	}
	if cfg.SystemPrompt != DefaultSystemPrompt {
		t.Fatalf("SystemPrompt = %q, want default", cfg.SystemPrompt)
	}
	if !cfg.AllowAnyOrigin {
		t.Fatalf("AllowAnyOrigin = false, want true by default")
	}
	if cfg.ShutdownTimeout != 15*time.Second {
		t.Fatalf("ShutdownTimeout = %v, want 15s", cfg.ShutdownTimeout)
	}
}

func TestLoadUsesPortAndKey(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("PORT", "8181")
	t.Setenv("OPENAI_API_KEY", "  sk-test  ")
	t.Setenv("OPENAI_BASE_URL", "http://localhost:9999/v1/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8181" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":8181")
	}
	if cfg.OpenAIAPIKey != "sk-test" {
		t.Fatalf("OpenAIAPIKey = %q, want trimmed value", cfg.OpenAIAPIKey)
	}
	if cfg.OpenAIBaseURL != "http://localhost:9999/v1" {
		t.Fatalf("OpenAIBaseURL = %q, want trailing slash trimmed", cfg.OpenAIBaseURL)
	}
}

func TestLoadBindAddrOverridesPort(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("PORT", "8181")
	t.Setenv("APP_BIND_ADDR", "127.0.0.1:7000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != "127.0.0.1:7000" {
		t.Fatalf("BindAddr = %q, want explicit value", cfg.BindAddr)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"PORT":                 "abc",
		"APP_SHUTDOWN_TIMEOUT": "soon",
		"APP_MAX_UPLOAD_BYTES": "0",
		"APP_ALLOW_ANY_ORIGIN": "maybe",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			setCoreEnvEmpty(t)
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() error = nil, want error for %s=%q", key, value)
			}
		})
	}

	setCoreEnvEmpty(t)
	t.Setenv("PORT", "70000")
	if _, err := Load(); err == nil {
		t.Fatalf("Load() error = nil, want error for out-of-range port")
	}
}

func TestLoadCORSOriginsDisableAnyOrigin(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_CORS_ORIGINS", "https://a.example, https://b.example,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AllowAnyOrigin {
		t.Fatalf("AllowAnyOrigin = true, want false when an allow-list is set")
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("CORSOrigins = %v, want two trimmed origins", cfg.CORSOrigins)
	}
}

func TestLoadLockdownWithoutAllowList(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_ALLOW_ANY_ORIGIN", "false")
	t.Setenv("OPENAI_API_KEY", "  sk-padded \n")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AllowAnyOrigin || len(cfg.CORSOrigins) != 0 {
		t.Fatalf("AllowAnyOrigin = %v CORSOrigins = %v, want same-host only", cfg.AllowAnyOrigin, cfg.CORSOrigins)
	}
	if cfg.OpenAIAPIKey != "sk-padded" {
		t.Fatalf("OpenAIAPIKey = %q, want trimmed key", cfg.OpenAIAPIKey)
	}
}

func TestLoadDotEnvDoesNotOverride(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("OPENAI_API_KEY", "from-env")
	t.Setenv("OPENAI_TTS_VOICE", "")
	os.Unsetenv("OPENAI_TTS_VOICE")

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("OPENAI_API_KEY=from-file\nOPENAI_TTS_VOICE=nova\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	if err := LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.OpenAIAPIKey != "from-env" {
		t.Fatalf("OpenAIAPIKey = %q, want process env to win", cfg.OpenAIAPIKey)
	}
	if cfg.TTSVoice != "nova" {
		t.Fatalf("TTSVoice = %q, want value from .env", cfg.TTSVoice)
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"PORT",
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_UPSTREAM_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"APP_CORS_ORIGINS",
		"APP_STATIC_DIR",
		"APP_UPLOAD_DIR",
		"APP_MAX_UPLOAD_BYTES",
		"OPENAI_API_KEY",
		"OPENAI_BASE_URL",
		"OPENAI_CHAT_MODEL",
		"OPENAI_STT_MODEL",
		"OPENAI_TTS_MODEL",
		"OPENAI_TTS_VOICE",
		"OPENAI_SYSTEM_PROMPT",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
