package config

import (
	"os"
	"testing"
	"time"
)

func setEnv(t *testing.T, kv map[string]string) {
	t.Helper()
	for k, v := range kv {
		os.Setenv(k, v)
	}
	t.Cleanup(func() {
		for k := range kv {
			os.Unsetenv(k)
		}
	})
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}

	if cfg.Port != "3000" {
		t.Errorf("Expected default Port '3000', got '%s'", cfg.Port)
	}
	if cfg.ConversationModel != "anthropic.claude-3-5-sonnet-20241022-v2:0" {
		t.Errorf("Unexpected conversation model '%s'", cfg.ConversationModel)
	}
	if cfg.MaxToolIterations != 5 {
		t.Errorf("Expected MaxToolIterations 5, got %d", cfg.MaxToolIterations)
	}
	if cfg.UtteranceDebounce() != 700*time.Millisecond {
		t.Errorf("Expected 700ms debounce, got %v", cfg.UtteranceDebounce())
	}
	if cfg.UtteranceEndWindow() != 300*time.Millisecond {
		t.Errorf("Expected 300ms utterance end window, got %v", cfg.UtteranceEndWindow())
	}
	if cfg.PollyVoiceID != "Ruth" {
		t.Errorf("Expected Polly voice 'Ruth', got '%s'", cfg.PollyVoiceID)
	}
	if cfg.TTSChunkMs != 100 {
		t.Errorf("Expected 100ms TTS chunks, got %d", cfg.TTSChunkMs)
	}
	if cfg.TurnEndSignal != "debounce" {
		t.Errorf("Expected debounce to end turns, got '%s'", cfg.TurnEndSignal)
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	setEnv(t, map[string]string{
		"STT_PROVIDER":          "deepgram",
		"DEEPGRAM_API_KEY":      "test-deepgram-key",
		"UTTERANCE_DEBOUNCE_MS": "900",
		"LOG_PRETTY":            "true",
	})

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}
	if cfg.STTProvider != "deepgram" {
		t.Errorf("Expected STTProvider 'deepgram', got '%s'", cfg.STTProvider)
	}
	if cfg.DeepgramAPIKey != "test-deepgram-key" {
		t.Errorf("Expected DeepgramAPIKey 'test-deepgram-key', got '%s'", cfg.DeepgramAPIKey)
	}
	if cfg.UtteranceDebounce() != 900*time.Millisecond {
		t.Errorf("Expected 900ms debounce, got %v", cfg.UtteranceDebounce())
	}
	if !cfg.LogPretty {
		t.Error("Expected LogPretty true")
	}
}

func TestLoadFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown stt provider", map[string]string{"STT_PROVIDER": "whisper"}},
		{"unknown tts provider", map[string]string{"TTS_PROVIDER": "espeak"}},
		{"postgres without url", map[string]string{"STORE_DRIVER": "postgres"}},
		{"zero iterations", map[string]string{"MAX_TOOL_ITERATIONS": "0"}},
		{"unknown turn end signal", map[string]string{"TURN_END_SIGNAL": "vad"}},
		{"debounce turn end without window", map[string]string{"UTTERANCE_DEBOUNCE_MS": "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setEnv(t, tt.env)
			if _, err := LoadFromEnv(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestMediaStreamURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"https://abc.ngrok-free.app", "wss://abc.ngrok-free.app/voice/stream"},
		{"http://localhost:3000", "ws://localhost:3000/voice/stream"},
	}
	for _, tt := range tests {
		cfg := &Config{PublicBaseURL: tt.base}
		if got := cfg.MediaStreamURL(); got != tt.want {
			t.Errorf("MediaStreamURL(%s) = %s, want %s", tt.base, got, tt.want)
		}
	}
}

func TestGetEnv(t *testing.T) {
	setEnv(t, map[string]string{"BARBERBOT_TEST_KEY": "value"})
	if GetEnv("BARBERBOT_TEST_KEY", "default") != "value" {
		t.Error("Expected value from environment")
	}
	if GetEnv("BARBERBOT_MISSING_KEY", "default") != "default" {
		t.Error("Expected default value")
	}
}
