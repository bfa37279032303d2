package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the barberbot service
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"3000"`

	// Public base URL the carrier reaches us on (e.g. https://xxx.ngrok-free.app).
	// The media stream URL handed out in TwiML is derived from it.
	PublicBaseURL  string `envconfig:"PUBLIC_BASE_URL" default:"http://localhost:3000"`
	GRPCHealthPort string `envconfig:"GRPC_HEALTH_PORT" default:""` // empty disables the gRPC health server

	// AWS (Bedrock, Polly, Transcribe). Credentials come from the default chain.
	AWSRegion string `envconfig:"AWS_REGION" default:"us-east-1"`

	// Conversation model
	ConversationModel string  `envconfig:"BEDROCK_CONVERSATION_MODEL" default:"anthropic.claude-3-5-sonnet-20241022-v2:0"`
	SummaryModel      string  `envconfig:"BEDROCK_SUMMARY_MODEL" default:"anthropic.claude-3-5-haiku-20241022-v1:0"`
	LLMMaxTokens      int     `envconfig:"LLM_MAX_TOKENS" default:"200"`
	LLMTemperature    float64 `envconfig:"LLM_TEMPERATURE" default:"0.7"`
	MaxToolIterations int     `envconfig:"MAX_TOOL_ITERATIONS" default:"5"`

	// Speech-to-text
	STTProvider          string `envconfig:"STT_PROVIDER" default:"transcribe"` // transcribe, deepgram
	DeepgramAPIKey       string `envconfig:"DEEPGRAM_API_KEY" default:""`
	DeepgramModel        string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`
	DeepgramLanguage     string `envconfig:"DEEPGRAM_LANGUAGE" default:"en-US"`
	TranscribeLanguage   string `envconfig:"TRANSCRIBE_LANGUAGE" default:"en-US"`
	TranscribeSampleRate int    `envconfig:"TRANSCRIBE_SAMPLE_RATE" default:"8000"`
	UtteranceEndMs       int    `envconfig:"STT_UTTERANCE_END_MS" default:"300"` // silence after last final

	// Text-to-speech
	TTSProvider     string `envconfig:"TTS_PROVIDER" default:"polly"` // polly, cartesia
	PollyVoiceID    string `envconfig:"POLLY_VOICE_ID" default:"Ruth"`
	PollyEngine     string `envconfig:"POLLY_ENGINE" default:"generative"`
	CartesiaAPIKey  string `envconfig:"CARTESIA_API_KEY" default:""`
	CartesiaVoiceID string `envconfig:"CARTESIA_VOICE_ID" default:""`
	CartesiaModelID string `envconfig:"CARTESIA_MODEL_ID" default:"sonic-english"`
	TTSChunkMs      int    `envconfig:"TTS_CHUNK_MS" default:"100"`

	// Call timing
	UtteranceDebounceMs int    `envconfig:"UTTERANCE_DEBOUNCE_MS" default:"700"`
	TurnEndSignal       string `envconfig:"TURN_END_SIGNAL" default:"debounce"` // debounce, stt
	GreetingDelayMs     int    `envconfig:"GREETING_DELAY_MS" default:"500"`

	// Persistence and business data
	StoreDriver         string `envconfig:"STORE_DRIVER" default:"memory"` // memory, postgres
	DatabaseURL         string `envconfig:"DATABASE_URL" default:""`
	BusinessProfilePath string `envconfig:"BUSINESS_PROFILE_PATH" default:"data/business-profiles/classic-cuts.json"`

	// Carrier webhooks; signature validation is skipped when empty
	TwilioAuthToken string `envconfig:"TWILIO_AUTH_TOKEN" default:""`
	// Outbound dialing needs all three Twilio settings
	TwilioAccountSID  string `envconfig:"TWILIO_ACCOUNT_SID" default:""`
	TwilioPhoneNumber string `envconfig:"TWILIO_PHONE_NUMBER" default:""`

	// Bearer key for the /calls admin routes; empty disables them
	AdminAPIKey string `envconfig:"ADMIN_API_KEY" default:""`

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // seconds
	RetryBackoffMs             int `envconfig:"RETRY_BACKOFF_MS" default:"200"`
	ReconnectMaxAttempts       int `envconfig:"RECONNECT_MAX_ATTEMPTS" default:"3"`
	ReconnectBackoffMs         int `envconfig:"RECONNECT_BACKOFF_MS" default:"500"`

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
}

// Load reads configuration from environment variables.
// The .env file named by ENV_FILE (default .env) is applied first when present.
func Load() (*Config, error) {
	_ = godotenv.Load(GetEnv("ENV_FILE", ".env"))
	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks enumerations and cross-field requirements.
// Missing provider credentials are not fatal here; the affected adapter
// reports a configuration error and the call runs degraded.
func (c *Config) Validate() error {
	switch c.STTProvider {
	case "transcribe", "deepgram":
	default:
		return fmt.Errorf("STT_PROVIDER must be transcribe or deepgram, got %q", c.STTProvider)
	}
	if c.TranscribeSampleRate != 8000 && c.TranscribeSampleRate != 16000 {
		return fmt.Errorf("TRANSCRIBE_SAMPLE_RATE must be 8000 or 16000, got %d", c.TranscribeSampleRate)
	}
	switch c.TTSProvider {
	case "polly", "cartesia":
	default:
		return fmt.Errorf("TTS_PROVIDER must be polly or cartesia, got %q", c.TTSProvider)
	}
	switch c.TurnEndSignal {
	case "debounce":
		if c.UtteranceDebounceMs <= 0 {
			return fmt.Errorf("UTTERANCE_DEBOUNCE_MS must be positive when TURN_END_SIGNAL=debounce")
		}
	case "stt":
	default:
		return fmt.Errorf("TURN_END_SIGNAL must be debounce or stt, got %q", c.TurnEndSignal)
	}
	switch c.StoreDriver {
	case "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be memory or postgres, got %q", c.StoreDriver)
	}
	if c.BusinessProfilePath == "" {
		return fmt.Errorf("BUSINESS_PROFILE_PATH is required")
	}
	if c.MaxToolIterations <= 0 {
		return fmt.Errorf("MAX_TOOL_ITERATIONS must be positive")
	}
	if c.TTSChunkMs <= 0 {
		return fmt.Errorf("TTS_CHUNK_MS must be positive")
	}
	return nil
}

// UtteranceDebounce is the silence after the last final transcript before a turn is flushed
func (c *Config) UtteranceDebounce() time.Duration {
	return time.Duration(c.UtteranceDebounceMs) * time.Millisecond
}

// UtteranceEndWindow is the STT adapter's own end-of-utterance silence window
func (c *Config) UtteranceEndWindow() time.Duration {
	return time.Duration(c.UtteranceEndMs) * time.Millisecond
}

// GreetingDelay is the pause between stream start and the greeting
func (c *Config) GreetingDelay() time.Duration {
	return time.Duration(c.GreetingDelayMs) * time.Millisecond
}

// CircuitResetTimeout is how long an open circuit waits before probing
func (c *Config) CircuitResetTimeout() time.Duration {
	return time.Duration(c.CircuitBreakerResetTimeout) * time.Second
}

// MediaStreamURL is the websocket URL the carrier connects its media stream to
func (c *Config) MediaStreamURL() string {
	return WebsocketURL(c.PublicBaseURL, "/voice/stream")
}

// WebsocketURL swaps an http(s) scheme for ws(s) and appends path
func WebsocketURL(baseURL, path string) string {
	baseURL = strings.TrimSuffix(baseURL, "/")
	switch {
	case strings.HasPrefix(baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(baseURL, "https://") + path
	case strings.HasPrefix(baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(baseURL, "http://") + path
	default:
		return baseURL + path
	}
}

// AWSConfig resolves the shared AWS configuration used by Bedrock, Polly and Transcribe
func (c *Config) AWSConfig(ctx context.Context) (aws.Config, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(c.AWSRegion))
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cfg, nil
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
