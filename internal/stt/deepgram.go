package stt

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	websocketv1api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/b00y0h/barberbot/internal/audio"
	"github.com/b00y0h/barberbot/internal/observability"
	"github.com/b00y0h/barberbot/internal/resilience"
)

var errDeepgramConnect = errors.New("deepgram websocket did not connect")

// DeepgramConfig configures a live Deepgram session
type DeepgramConfig struct {
	APIKey         string
	Model          string
	Language       string
	UtteranceEnd   time.Duration
	Reconnect      resilience.ReconnectConfig
	CircuitBreaker *resilience.CircuitBreaker // shared across calls; may be nil
}

// messageCallbackHandler embeds the default handler and overrides the
// callbacks that carry transcripts and lifecycle signals
type messageCallbackHandler struct {
	*websocketv1api.DefaultCallbackHandler
	d *Deepgram
}

func (m *messageCallbackHandler) Message(mr *msginterfaces.MessageResponse) error {
	if mr == nil || len(mr.Channel.Alternatives) == 0 {
		return nil
	}
	m.d.emitter.transcript(mr.Channel.Alternatives[0].Transcript, mr.IsFinal)
	return nil
}

func (m *messageCallbackHandler) UtteranceEnd(ur *msginterfaces.UtteranceEndResponse) error {
	m.d.logger.Debug().Msg("Deepgram utterance end")
	m.d.emitter.utteranceEnd()
	return nil
}

func (m *messageCallbackHandler) Error(er *msginterfaces.ErrorResponse) error {
	if m.d.breaker != nil {
		m.d.breaker.RecordResult(false)
	}
	m.d.emitter.fail(fmt.Errorf("deepgram: %+v", er))
	return nil
}

func (m *messageCallbackHandler) Close(cr *msginterfaces.CloseResponse) error {
	m.d.logger.Info().Msg("Deepgram connection closed")
	go func() { _ = m.d.Stop() }()
	return nil
}

// Deepgram implements Adapter over Deepgram's live websocket API
type Deepgram struct {
	*emitter
	cfg     DeepgramConfig
	breaker *resilience.CircuitBreaker
	logger  zerolog.Logger

	stopOnce sync.Once

	mu     sync.Mutex
	client *listenClient.WSCallback
	cancel context.CancelFunc
}

// NewDeepgram returns an unstarted adapter. A missing API key is a configuration error.
func NewDeepgram(cfg DeepgramConfig) (*Deepgram, error) {
	if cfg.APIKey == "" {
		return nil, &resilience.ConfigurationError{Provider: "deepgram", Field: "DEEPGRAM_API_KEY"}
	}
	logger := observability.ForComponent("stt.deepgram")
	return &Deepgram{
		emitter: newEmitter(cfg.UtteranceEnd, logger),
		cfg:     cfg,
		breaker: cfg.CircuitBreaker,
		logger:  logger,
	}, nil
}

// Start opens the websocket session, retrying the handshake per the reconnect policy
func (d *Deepgram) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client != nil {
		return fmt.Errorf("deepgram session already started")
	}

	// the websocket lives as long as the call, not the caller's ctx
	sessionCtx, cancel := context.WithCancel(context.Background())

	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          d.cfg.Model,
		Language:       d.cfg.Language,
		Punctuate:      true,
		SmartFormat:    true,
		InterimResults: true,
		UtteranceEndMs: "1000",
		VadEvents:      true,
		Endpointing:    strconv.Itoa(int(d.emitter.silence.Milliseconds())),
		Encoding:       "mulaw",
		Channels:       1,
		SampleRate:     audio.TelephonyRate,
	}
	callback := &messageCallbackHandler{
		DefaultCallbackHandler: websocketv1api.NewDefaultCallbackHandler(),
		d:                      d,
	}

	client, err := listenClient.NewWSUsingCallback(
		sessionCtx,
		d.cfg.APIKey,
		&interfaces.ClientOptions{EnableKeepAlive: true},
		tOptions,
		callback,
	)
	if err != nil {
		cancel()
		return resilience.NewConnectionError("deepgram", err)
	}

	connect := func(ctx context.Context) error {
		if !client.Connect() {
			return errDeepgramConnect
		}
		return nil
	}
	err = resilience.Reconnect(ctx, "stt.deepgram", func(ctx context.Context) error {
		if d.breaker == nil {
			return connect(ctx)
		}
		return d.breaker.Execute(ctx, connect)
	}, d.cfg.Reconnect)
	if d.breaker != nil {
		observability.UpdateCircuitBreakerState(d.breaker.Name(), int(d.breaker.State()))
	}
	if err != nil {
		cancel()
		return resilience.NewConnectionError("deepgram", err)
	}

	d.client = client
	d.cancel = cancel
	d.logger.Info().Str("model", d.cfg.Model).Str("language", d.cfg.Language).Msg("Deepgram session started")
	return nil
}

// SendAudio writes raw μ-law; Deepgram is configured for the carrier format
func (d *Deepgram) SendAudio(frame audio.Frame) error {
	if d.isStopped() {
		return nil
	}
	d.mu.Lock()
	client := d.client
	d.mu.Unlock()
	if client == nil {
		return nil
	}

	data := frame.Data
	if frame.Encoding != audio.EncodingMulaw {
		pcm, err := audio.BytesToSamples(frame.Data)
		if err != nil {
			return err
		}
		samples := audio.Resample(pcm, frame.SampleRate, audio.TelephonyRate)
		if data, err = audio.PCMToMulaw(audio.SamplesToBytes(samples)); err != nil {
			return err
		}
	}
	if _, err := client.Write(data); err != nil {
		return resilience.NewConnectionError("deepgram", err)
	}
	return nil
}

// Stop finishes the websocket and closes the event stream
func (d *Deepgram) Stop() error {
	d.stopOnce.Do(d.stop)
	return nil
}

func (d *Deepgram) stop() {
	d.mu.Lock()
	client, cancel := d.client, d.cancel
	d.client, d.cancel = nil, nil
	d.mu.Unlock()

	// Finish flushes pending results before the emitter stops accepting them
	if client != nil {
		client.Finish()
	}
	d.markStopped()
	if cancel != nil {
		cancel()
	}
	d.emitter.close()
	d.logger.Info().Msg("Deepgram session stopped")
}
