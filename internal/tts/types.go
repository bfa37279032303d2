// Package tts turns reply text into carrier-ready μ-law audio.
package tts

import (
	"context"
	"io"

	"github.com/b00y0h/barberbot/internal/audio"
)

// EventType identifies a synthesis event
type EventType int

const (
	EventAudio EventType = iota // Frame holds one playout quantum
	EventError                  // Err is set; EventDone follows
	EventDone                   // always the last event
)

func (t EventType) String() string {
	switch t {
	case EventAudio:
		return "audio"
	case EventError:
		return "error"
	case EventDone:
		return "done"
	default:
		return "unknown"
	}
}

// Event is delivered on the channel returned by Synthesize
type Event struct {
	Type  EventType
	Frame audio.Frame
	Err   error
}

// Adapter synthesizes speech for one call
type Adapter interface {
	// Synthesize streams audio for text. The channel always ends with
	// EventDone and is then closed.
	Synthesize(ctx context.Context, text string) <-chan Event

	// Interrupt cancels the synthesis in flight. Chunks already delivered
	// are not retracted. Safe to call at any time.
	Interrupt()
}

// Source is a provider that renders text as a 16-bit little-endian PCM stream
type Source interface {
	Name() string
	// Open starts synthesis and returns the PCM body with its sample rate
	Open(ctx context.Context, text string) (io.ReadCloser, int, error)
}

// Factory creates one adapter per call
type Factory func() (Adapter, error)
