package tts

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/b00y0h/barberbot/internal/audio"
	"github.com/b00y0h/barberbot/internal/observability"
	"github.com/b00y0h/barberbot/internal/resilience"
)

const (
	// DefaultChunk is the playout quantum sent to the carrier
	DefaultChunk = 100 * time.Millisecond

	readBufferSize = 4096
	eventBuffer    = 16
)

// Options tune a Streamer
type Options struct {
	Chunk time.Duration
	Retry resilience.RetryConfig
}

// Streamer implements Adapter on top of any PCM Source. Provider audio is
// accumulated in a ring buffer and released in fixed-size μ-law quanta.
type Streamer struct {
	source Source
	chunk  time.Duration
	retry  resilience.RetryConfig
	logger zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewStreamer wraps a source. A zero Retry opens the provider exactly twice
// at most, retrying only transient failures.
func NewStreamer(source Source, opts Options) *Streamer {
	if opts.Chunk <= 0 {
		opts.Chunk = DefaultChunk
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = resilience.RetryOnce(200 * time.Millisecond)
	}
	return &Streamer{
		source: source,
		chunk:  opts.Chunk,
		retry:  opts.Retry,
		logger: observability.ForComponent("tts." + source.Name()),
	}
}

// Synthesize starts a new synthesis, cancelling any previous one
func (s *Streamer) Synthesize(ctx context.Context, text string) <-chan Event {
	out := make(chan Event, eventBuffer)
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.mu.Unlock()

	go s.run(ctx, cancel, text, out)
	return out
}

// Interrupt cancels the synthesis in flight
func (s *Streamer) Interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Streamer) run(ctx context.Context, cancel context.CancelFunc, text string, out chan<- Event) {
	defer func() {
		out <- Event{Type: EventDone}
		close(out)
		cancel()
	}()

	var (
		body io.ReadCloser
		rate int
	)
	err := resilience.Retry(ctx, s.retry, func(ctx context.Context) error {
		var err error
		body, rate, err = s.source.Open(ctx, text)
		if err != nil {
			s.logger.Warn().Err(err).Bool("transient", resilience.IsTransient(err)).Msg("Synthesis request failed")
		}
		return err
	}, resilience.IsTransient)
	if err != nil {
		if ctx.Err() == nil {
			emit(ctx, out, Event{Type: EventError, Err: err})
		}
		return
	}
	defer body.Close()

	// unblock a pending Read when interrupted
	stop := context.AfterFunc(ctx, func() { _ = body.Close() })
	defer stop()

	if err := s.pump(ctx, body, rate, out); err != nil && ctx.Err() == nil {
		s.logger.Error().Err(err).Msg("Synthesis stream failed")
		emit(ctx, out, Event{Type: EventError, Err: err})
	}
}

// pump reads provider PCM and emits μ-law quanta until EOF or cancellation
func (s *Streamer) pump(ctx context.Context, body io.Reader, rate int, out chan<- Event) error {
	if rate <= 0 {
		rate = audio.TelephonyRate
	}
	quantum := int(int64(rate)*s.chunk.Milliseconds()/1000) * 2
	if quantum <= 0 {
		quantum = 2
	}
	ring := audio.NewRingBuffer(quantum + readBufferSize)
	buf := make([]byte, readBufferSize)

	for {
		n, readErr := body.Read(buf[:min(len(buf), ring.Free())])
		if n > 0 {
			ring.Write(buf[:n])
			for {
				pcm, ok := ring.Next(quantum)
				if !ok {
					break
				}
				if !s.emitPCM(ctx, pcm, rate, out) {
					return nil
				}
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return readErr
		}
	}

	if ring.Len() < 2 {
		return nil
	}
	tail := ring.Drain()
	if len(tail)%2 == 1 {
		tail = tail[:len(tail)-1]
	}
	s.emitPCM(ctx, tail, rate, out)
	return nil
}

func (s *Streamer) emitPCM(ctx context.Context, pcm []byte, rate int, out chan<- Event) bool {
	mulaw, err := audio.ConvertPCMToMulaw(pcm, rate, audio.TelephonyRate)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Dropping unconvertible audio")
		return true
	}
	return emit(ctx, out, Event{Type: EventAudio, Frame: audio.MulawFrame(mulaw)})
}

// emit reports false once ctx is cancelled; nothing is sent after that
func emit(ctx context.Context, out chan<- Event, ev Event) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
