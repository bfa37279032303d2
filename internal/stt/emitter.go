package stt

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultUtteranceEnd is the silence after the last final transcript
	// that ends an utterance
	DefaultUtteranceEnd = 300 * time.Millisecond

	eventBufferSize = 64
)

var fillerPattern = regexp.MustCompile(`(?i)\b(um|uh|uh-huh|mm-hmm|er|ah|hmm|you know|i mean|like)\b`)

// FilterFillers strips filler words and collapses whitespace
func FilterFillers(text string) string {
	return strings.Join(strings.Fields(fillerPattern.ReplaceAllString(text, "")), " ")
}

// emitter holds the event plumbing shared by every provider adapter
type emitter struct {
	events chan Event
	quit   chan struct{}
	logger zerolog.Logger

	// mu guards events against close while a send is in flight
	mu     sync.RWMutex
	closed bool

	stateMu      sync.Mutex
	stopped      bool
	silence      time.Duration
	silenceTimer *time.Timer
	closeOnce    sync.Once
}

func newEmitter(silence time.Duration, logger zerolog.Logger) *emitter {
	if silence <= 0 {
		silence = DefaultUtteranceEnd
	}
	return &emitter{
		events:  make(chan Event, eventBufferSize),
		quit:    make(chan struct{}),
		logger:  logger,
		silence: silence,
	}
}

func (e *emitter) Events() <-chan Event {
	return e.events
}

// transcript filters the text and emits it. Finals re-arm the silence window.
func (e *emitter) transcript(raw string, isFinal bool) {
	if e.isStopped() {
		return
	}
	text := FilterFillers(strings.TrimSpace(raw))
	if text == "" {
		return
	}
	e.send(Event{Type: EventTranscript, Text: text, IsFinal: isFinal})
	if isFinal {
		e.armSilence()
	}
}

// utteranceEnd emits an end-of-utterance signal from the provider or the silence window
func (e *emitter) utteranceEnd() {
	if e.isStopped() {
		return
	}
	e.stateMu.Lock()
	if e.silenceTimer != nil {
		e.silenceTimer.Stop()
		e.silenceTimer = nil
	}
	e.stateMu.Unlock()
	e.send(Event{Type: EventUtteranceEnd})
}

func (e *emitter) fail(err error) {
	if err == nil {
		return
	}
	e.logger.Error().Err(err).Msg("STT provider error")
	e.send(Event{Type: EventError, Err: err})
}

func (e *emitter) armSilence() {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	if e.stopped {
		return
	}
	if e.silenceTimer != nil {
		e.silenceTimer.Stop()
	}
	e.silenceTimer = time.AfterFunc(e.silence, e.utteranceEnd)
}

func (e *emitter) isStopped() bool {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.stopped
}

// markStopped reports false when the emitter was already stopped
func (e *emitter) markStopped() bool {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	if e.stopped {
		return false
	}
	e.stopped = true
	if e.silenceTimer != nil {
		e.silenceTimer.Stop()
		e.silenceTimer = nil
	}
	return true
}

// close emits EventClose and closes the channel. Only the first call has any effect.
func (e *emitter) close() {
	e.closeOnce.Do(func() {
		e.markStopped()
		e.send(Event{Type: EventClose})
		close(e.quit)

		e.mu.Lock()
		e.closed = true
		close(e.events)
		e.mu.Unlock()
	})
}

func (e *emitter) send(ev Event) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}
	select {
	case e.events <- ev:
	case <-e.quit:
	}
}
