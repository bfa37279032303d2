// Package stt streams caller audio to a speech-to-text provider and turns
// its results into a uniform event stream.
package stt

import (
	"context"

	"github.com/b00y0h/barberbot/internal/audio"
)

// EventType identifies an STT event
type EventType int

const (
	EventTranscript   EventType = iota // Text and IsFinal are set
	EventUtteranceEnd                  // caller stopped talking
	EventError                         // Err is set; the session keeps running
	EventClose                         // last event, emitted exactly once
)

func (t EventType) String() string {
	switch t {
	case EventTranscript:
		return "transcript"
	case EventUtteranceEnd:
		return "utterance_end"
	case EventError:
		return "error"
	case EventClose:
		return "close"
	default:
		return "unknown"
	}
}

// Event is delivered on Adapter.Events
type Event struct {
	Type    EventType
	Text    string
	IsFinal bool
	Err     error
}

// Adapter is a streaming transcription session for one call
type Adapter interface {
	// Start opens the provider session. Missing credentials or a failed
	// handshake are reported as resilience.ConnectionError.
	Start(ctx context.Context) error

	// SendAudio forwards one carrier frame. Frames sent after Stop are dropped.
	SendAudio(frame audio.Frame) error

	// Stop flushes the provider, emits EventClose and closes Events.
	// Safe to call more than once.
	Stop() error

	// Events is closed after EventClose
	Events() <-chan Event
}

// Factory creates one adapter per call
type Factory func() (Adapter, error)
