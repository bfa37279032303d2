package stt

import (
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/transcribestreaming"

	"github.com/b00y0h/barberbot/internal/config"
	"github.com/b00y0h/barberbot/internal/resilience"
)

// NewFactory selects the provider named by STT_PROVIDER. The Deepgram circuit
// breaker and the Transcribe client are shared by every call.
func NewFactory(cfg *config.Config, awsCfg aws.Config) Factory {
	reconnect := resilience.DefaultReconnectConfig()
	reconnect.MaxAttempts = cfg.ReconnectMaxAttempts
	reconnect.Backoff = time.Duration(cfg.ReconnectBackoffMs) * time.Millisecond
	reconnect.MaxBackoff = 5 * time.Second

	switch cfg.STTProvider {
	case "deepgram":
		breaker := resilience.NewCircuitBreaker("deepgram", cfg.CircuitBreakerMaxFailures, cfg.CircuitResetTimeout())
		return func() (Adapter, error) {
			return NewDeepgram(DeepgramConfig{
				APIKey:         cfg.DeepgramAPIKey,
				Model:          cfg.DeepgramModel,
				Language:       cfg.DeepgramLanguage,
				UtteranceEnd:   cfg.UtteranceEndWindow(),
				Reconnect:      reconnect,
				CircuitBreaker: breaker,
			})
		}
	default:
		client := transcribestreaming.NewFromConfig(awsCfg)
		retry := resilience.RetryOnce(time.Duration(cfg.RetryBackoffMs) * time.Millisecond)
		return func() (Adapter, error) {
			return NewTranscribe(client, TranscribeConfig{
				Language:     cfg.TranscribeLanguage,
				SampleRate:   cfg.TranscribeSampleRate,
				UtteranceEnd: cfg.UtteranceEndWindow(),
				Retry:        retry,
			}), nil
		}
	}
}
