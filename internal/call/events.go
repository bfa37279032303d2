package call

import (
	"errors"
	"time"

	"github.com/b00y0h/barberbot/internal/audio"
)

var (
	// ErrCallNotFound is returned for ids that are not active, including calls already ended
	ErrCallNotFound = errors.New("call: not found")
	// ErrCallExists is returned when a session id is initialized twice
	ErrCallExists = errors.New("call: already active")
)

// EventType identifies an inbound transport event
type EventType int

const (
	EventStart EventType = iota
	EventMedia
	EventMark
	EventStop
)

func (t EventType) String() string {
	switch t {
	case EventStart:
		return "start"
	case EventMedia:
		return "media"
	case EventMark:
		return "mark"
	case EventStop:
		return "stop"
	default:
		return "unknown"
	}
}

// Event is one message from the carrier stream
type Event struct {
	Type  EventType
	Frame audio.Frame // media
	Mark  string      // mark name
}

// Sink accepts outbound audio and playout markers for one call
type Sink interface {
	SendMedia(frame audio.Frame) error
	SendMark(name string) error
}

// Result is what remains of a call after it ends
type Result struct {
	Transcript string
	Summary    string
	Duration   time.Duration
}

// Snapshot describes an active call for listings
type Snapshot struct {
	CallSID     string    `json:"call_sid"`
	PhoneNumber string    `json:"phone_number"`
	Direction   string    `json:"direction"`
	State       string    `json:"state"`
	StartedAt   time.Time `json:"started_at"`
	Duration    int       `json:"duration"`
	BotSpeaking bool      `json:"bot_speaking"`
}
