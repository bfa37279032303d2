package tts

import (
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/polly"

	"github.com/b00y0h/barberbot/internal/config"
	"github.com/b00y0h/barberbot/internal/resilience"
)

// NewFactory selects the provider named by TTS_PROVIDER. Sources are shared;
// each call gets its own Streamer so interrupts stay per call.
func NewFactory(cfg *config.Config, awsCfg aws.Config) (Factory, error) {
	var source Source
	switch cfg.TTSProvider {
	case "cartesia":
		c, err := NewCartesia(cfg.CartesiaAPIKey, cfg.CartesiaVoiceID, cfg.CartesiaModelID)
		if err != nil {
			return nil, err
		}
		source = c
	default:
		source = NewPolly(polly.NewFromConfig(awsCfg), cfg.PollyVoiceID, cfg.PollyEngine)
	}

	opts := Options{
		Chunk: time.Duration(cfg.TTSChunkMs) * time.Millisecond,
		Retry: resilience.RetryOnce(time.Duration(cfg.RetryBackoffMs) * time.Millisecond),
	}
	return func() (Adapter, error) {
		return NewStreamer(source, opts), nil
	}, nil
}
