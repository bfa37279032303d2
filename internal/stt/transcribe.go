package stt

import (
	"context"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/transcribestreaming"
	"github.com/aws/aws-sdk-go-v2/service/transcribestreaming/types"
	"github.com/rs/zerolog"

	"github.com/b00y0h/barberbot/internal/audio"
	"github.com/b00y0h/barberbot/internal/observability"
	"github.com/b00y0h/barberbot/internal/resilience"
)

const (
	audioQueueSize = 256
	drainTimeout   = 2 * time.Second
)

// TranscribeAPI is the subset of the Transcribe Streaming client used here
type TranscribeAPI interface {
	StartStreamTranscription(ctx context.Context, params *transcribestreaming.StartStreamTranscriptionInput, optFns ...func(*transcribestreaming.Options)) (*transcribestreaming.StartStreamTranscriptionOutput, error)
}

// TranscribeConfig configures an AWS Transcribe Streaming session
type TranscribeConfig struct {
	Language     string
	SampleRate   int // 8000 or 16000; defaults to the carrier rate
	UtteranceEnd time.Duration
	Retry        resilience.RetryConfig
}

// Transcribe implements Adapter over AWS Transcribe Streaming. Carrier μ-law is
// decoded to PCM16 at the configured rate before it is sent.
type Transcribe struct {
	*emitter
	client TranscribeAPI
	cfg    TranscribeConfig
	logger zerolog.Logger

	stopOnce sync.Once

	mu      sync.Mutex
	stream  *transcribestreaming.StartStreamTranscriptionEventStream
	audioCh chan []byte
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewTranscribe returns an unstarted adapter
func NewTranscribe(client TranscribeAPI, cfg TranscribeConfig) *Transcribe {
	if cfg.Language == "" {
		cfg.Language = string(types.LanguageCodeEnUs)
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audio.TelephonyRate
	}
	logger := observability.ForComponent("stt.transcribe")
	return &Transcribe{
		emitter: newEmitter(cfg.UtteranceEnd, logger),
		client:  client,
		cfg:     cfg,
		logger:  logger,
	}
}

// Start opens the bidirectional stream and begins pumping audio and results
func (t *Transcribe) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	sessionCtx, cancel := context.WithCancel(context.Background())
	input := &transcribestreaming.StartStreamTranscriptionInput{
		LanguageCode:                      types.LanguageCode(t.cfg.Language),
		MediaEncoding:                     types.MediaEncodingPcm,
		MediaSampleRateHertz:              aws.Int32(int32(t.cfg.SampleRate)),
		EnablePartialResultsStabilization: true,
		PartialResultsStability:           types.PartialResultsStabilityHigh,
	}

	var out *transcribestreaming.StartStreamTranscriptionOutput
	err := resilience.Retry(ctx, t.cfg.Retry, func(context.Context) error {
		var err error
		out, err = t.client.StartStreamTranscription(sessionCtx, input)
		return err
	}, resilience.IsTransient)
	if err != nil {
		cancel()
		return resilience.NewConnectionError("transcribe", err)
	}

	t.stream = out.GetStream()
	t.audioCh = make(chan []byte, audioQueueSize)
	t.cancel = cancel
	t.done = make(chan struct{})

	go t.writeLoop(sessionCtx, t.stream, t.audioCh)
	go t.readLoop(t.stream, t.done)

	t.logger.Info().Str("language", t.cfg.Language).Msg("Transcribe stream opened")
	return nil
}

// SendAudio queues one frame. Frames are dropped when the queue is full.
func (t *Transcribe) SendAudio(frame audio.Frame) error {
	if t.isStopped() {
		return nil
	}

	var pcm []byte
	switch frame.Encoding {
	case audio.EncodingMulaw:
		pcm = audio.ConvertMulawToPCM(frame.Data, t.cfg.SampleRate)
	default:
		samples, err := audio.BytesToSamples(frame.Data)
		if err != nil {
			return err
		}
		pcm = audio.SamplesToBytes(audio.Resample(samples, frame.SampleRate, t.cfg.SampleRate))
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.audioCh == nil || t.isStopped() {
		return nil
	}
	select {
	case t.audioCh <- pcm:
	default:
		t.logger.Warn().Int("bytes", len(pcm)).Msg("Transcribe audio queue full, dropping frame")
	}
	return nil
}

func (t *Transcribe) writeLoop(ctx context.Context, stream *transcribestreaming.StartStreamTranscriptionEventStream, audioCh <-chan []byte) {
	for chunk := range audioCh {
		err := stream.Send(ctx, &types.AudioStreamMemberAudioEvent{
			Value: types.AudioEvent{AudioChunk: chunk},
		})
		if err != nil {
			if ctx.Err() == nil {
				t.emitter.fail(resilience.NewConnectionError("transcribe", err))
			}
			return
		}
	}
	// no more audio: let the service flush its final results
	if err := stream.Writer.Close(); err != nil {
		t.logger.Debug().Err(err).Msg("Transcribe writer close")
	}
}

func (t *Transcribe) readLoop(stream *transcribestreaming.StartStreamTranscriptionEventStream, done chan struct{}) {
	defer close(done)
	for ev := range stream.Events() {
		if te, ok := ev.(*types.TranscriptResultStreamMemberTranscriptEvent); ok {
			t.handleTranscriptEvent(te.Value)
		}
	}
	if err := stream.Err(); err != nil {
		t.emitter.fail(resilience.NewConnectionError("transcribe", err))
	}
	if !t.isStopped() {
		go func() { _ = t.Stop() }()
	}
}

func (t *Transcribe) handleTranscriptEvent(ev types.TranscriptEvent) {
	if ev.Transcript == nil {
		return
	}
	for _, result := range ev.Transcript.Results {
		if len(result.Alternatives) == 0 {
			continue
		}
		t.emitter.transcript(aws.ToString(result.Alternatives[0].Transcript), !result.IsPartial)
	}
}

// Stop ends the audio stream, waits briefly for final results and closes Events
func (t *Transcribe) Stop() error {
	t.stopOnce.Do(t.stop)
	return nil
}

func (t *Transcribe) stop() {
	t.mu.Lock()
	stream, audioCh, cancel, done := t.stream, t.audioCh, t.cancel, t.done
	t.audioCh = nil
	t.mu.Unlock()

	if audioCh != nil {
		close(audioCh)
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(drainTimeout):
			t.logger.Warn().Msg("Transcribe did not drain before timeout")
		}
	}
	t.markStopped()
	if stream != nil {
		_ = stream.Close()
	}
	if cancel != nil {
		cancel()
	}
	t.emitter.close()
	t.logger.Info().Msg("Transcribe stream closed")
}
