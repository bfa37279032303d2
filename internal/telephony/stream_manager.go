// Package telephony adapts Twilio voice webhooks and Media Streams to the
// call manager.
package telephony

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/b00y0h/barberbot/internal/audio"
	"github.com/b00y0h/barberbot/internal/call"
	"github.com/b00y0h/barberbot/internal/observability"
	"github.com/b00y0h/barberbot/internal/store"
)

const (
	writeWait      = 5 * time.Second
	endCallTimeout = 30 * time.Second
)

// ErrStreamClosed is returned when writing to a media stream that has gone away
var ErrStreamClosed = errors.New("telephony: media stream closed")

var upgrader = websocket.Upgrader{
	// Twilio does not send an Origin header; the stream URL is only handed out in signed TwiML
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// TwilioMessage represents a message from Twilio Media Streams
type TwilioMessage struct {
	Event          string       `json:"event"`
	SequenceNumber string       `json:"sequenceNumber,omitempty"`
	StreamSid      string       `json:"streamSid,omitempty"`
	Media          *TwilioMedia `json:"media,omitempty"`
	Start          *TwilioStart `json:"start,omitempty"`
	Stop           *TwilioStop  `json:"stop,omitempty"`
	Mark           *TwilioMark  `json:"mark,omitempty"`
}

// TwilioMedia represents the media payload in a media event
type TwilioMedia struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"` // base64 μ-law
}

// TwilioStart represents the start event payload
type TwilioStart struct {
	AccountSid       string            `json:"accountSid"`
	CallSid          string            `json:"callSid"`
	StreamSid        string            `json:"streamSid"`
	Tracks           []string          `json:"tracks"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
	MediaFormat      *MediaFormat      `json:"mediaFormat,omitempty"`
}

// MediaFormat describes the audio Twilio streams
type MediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

// TwilioStop represents the stop event payload
type TwilioStop struct {
	AccountSid string `json:"accountSid"`
	CallSid    string `json:"callSid"`
}

// TwilioMark names a playout marker, in both directions
type TwilioMark struct {
	Name string `json:"name"`
}

// CallManager is the part of call.Manager the media stream drives
type CallManager interface {
	InitializeCall(ctx context.Context, sessionID, phone, direction string, sink call.Sink) (*call.Session, error)
	Feed(ctx context.Context, sessionID string, ev call.Event)
	EndCall(ctx context.Context, sessionID string) (*call.Result, error)
}

// MediaStreamHandler serves the Twilio Media Streams websocket
type MediaStreamHandler struct {
	calls  CallManager
	logger zerolog.Logger
}

// NewMediaStreamHandler creates the websocket endpoint handler
func NewMediaStreamHandler(calls CallManager) *MediaStreamHandler {
	return &MediaStreamHandler{
		calls:  calls,
		logger: observability.ForComponent("media_stream"),
	}
}

// ServeHTTP upgrades the connection and pumps stream events until Twilio hangs up
func (h *MediaStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade connection to WebSocket")
		return
	}
	defer conn.Close()

	sink := &streamSink{conn: conn}

	h.logger.Info().Str("remote", r.RemoteAddr).Msg("New Twilio WebSocket connection established")
	callSid := h.readLoop(r.Context(), conn, sink)
	sink.close()

	if callSid == "" {
		return
	}
	ctx, cancel := endContext(r.Context())
	defer cancel()
	if _, err := h.calls.EndCall(ctx, callSid); err != nil && !errors.Is(err, call.ErrCallNotFound) {
		h.logger.Error().Err(err).Str("call_sid", callSid).Msg("Error ending call on close")
	}
}

// readLoop handles incoming messages and returns the call sid once the stream ends
func (h *MediaStreamHandler) readLoop(ctx context.Context, conn *websocket.Conn, sink *streamSink) string {
	var callSid string

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn().Err(err).Str("call_sid", callSid).Msg("WebSocket read error")
			}
			return callSid
		}

		var msg TwilioMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			h.logger.Error().Err(err).Msg("Failed to parse Twilio message")
			continue
		}

		switch msg.Event {
		case "connected":
			h.logger.Debug().Msg("Twilio stream connected")

		case "start":
			if msg.Start == nil {
				h.logger.Warn().Msg("Start event without payload")
				continue
			}
			callSid = msg.Start.CallSid
			streamSid := msg.Start.StreamSid
			if streamSid == "" {
				streamSid = msg.StreamSid
			}
			sink.setStreamSid(streamSid)

			phone := callerPhone(msg.Start.CustomParameters)
			direction := msg.Start.CustomParameters["direction"]
			if direction == "" {
				direction = store.DirectionInbound
			}
			h.logger.Info().
				Str("call_sid", callSid).
				Str("stream_sid", streamSid).
				Str("direction", direction).
				Msg("Stream started")

			if _, err := h.calls.InitializeCall(ctx, callSid, phone, direction, sink); err != nil {
				h.logger.Error().Err(err).Str("call_sid", callSid).Msg("Failed to initialize call")
			}

		case "media":
			if callSid == "" || msg.Media == nil {
				continue
			}
			payload := msg.Media.Payload
			if payload == "" {
				payload = msg.Media.Chunk
			}
			data, err := base64.StdEncoding.DecodeString(payload)
			if err != nil {
				h.logger.Warn().Err(err).Msg("Failed to decode base64 audio")
				continue
			}
			h.calls.Feed(ctx, callSid, call.Event{Type: call.EventMedia, Frame: audio.MulawFrame(data)})

		case "mark":
			if callSid == "" || msg.Mark == nil {
				continue
			}
			h.calls.Feed(ctx, callSid, call.Event{Type: call.EventMark, Mark: msg.Mark.Name})

		case "stop":
			h.logger.Info().Str("call_sid", callSid).Msg("Stream stopped")
			if callSid != "" {
				endCtx, cancel := endContext(ctx)
				h.calls.Feed(endCtx, callSid, call.Event{Type: call.EventStop})
				cancel()
			}

		default:
			h.logger.Debug().Str("event", msg.Event).Msg("Unknown Twilio event")
		}
	}
}

// endContext outlives the websocket request so the summary and final write can finish
func endContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), endCallTimeout)
}

// callerPhone prefers the number forwarded by our TwiML, then Twilio's own To.
// It is empty when the caller withheld their number.
func callerPhone(params map[string]string) string {
	if from := params["from"]; from != "" {
		return store.CallerID(from)
	}
	return store.CallerID(params["To"])
}

type outboundMessage struct {
	Event     string         `json:"event"`
	StreamSid string         `json:"streamSid"`
	Media     *outboundMedia `json:"media,omitempty"`
	Mark      *TwilioMark    `json:"mark,omitempty"`
}

type outboundMedia struct {
	Payload string `json:"payload"`
}

// streamSink writes bot audio back to Twilio. Writes are serialized because
// gorilla connections support one concurrent writer.
type streamSink struct {
	conn *websocket.Conn

	mu        sync.Mutex
	streamSid string
	closed    bool
}

func (s *streamSink) setStreamSid(sid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamSid = sid
}

func (s *streamSink) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// SendMedia sends one audio frame. PCM frames are encoded to 8kHz μ-law first.
func (s *streamSink) SendMedia(frame audio.Frame) error {
	data := frame.Data
	if frame.Encoding == audio.EncodingPCM16 {
		var err error
		data, err = audio.ConvertPCMToMulaw(data, frame.SampleRate, audio.TelephonyRate)
		if err != nil {
			return fmt.Errorf("encode outbound audio: %w", err)
		}
	}
	return s.write(func(sid string) outboundMessage {
		return outboundMessage{
			Event:     "media",
			StreamSid: sid,
			Media:     &outboundMedia{Payload: base64.StdEncoding.EncodeToString(data)},
		}
	})
}

// SendMark asks Twilio to echo name back once playout reaches this point
func (s *streamSink) SendMark(name string) error {
	return s.write(func(sid string) outboundMessage {
		return outboundMessage{Event: "mark", StreamSid: sid, Mark: &TwilioMark{Name: name}}
	})
}

func (s *streamSink) write(build func(streamSid string) outboundMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteJSON(build(s.streamSid))
}
