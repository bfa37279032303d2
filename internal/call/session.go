package call

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/b00y0h/barberbot/internal/audio"
	"github.com/b00y0h/barberbot/internal/dialogue"
	"github.com/b00y0h/barberbot/internal/observability"
	"github.com/b00y0h/barberbot/internal/stt"
	"github.com/b00y0h/barberbot/internal/tts"
)

// sttDrainTimeout bounds how long teardown waits for the STT event stream to close
const sttDrainTimeout = 5 * time.Second

type turn struct {
	greeting bool
	text     string
}

// Session holds the state of a single phone call
type Session struct {
	id        string
	phone     string
	direction string
	startedAt time.Time

	engine *dialogue.Engine
	sink   Sink
	stt    stt.Adapter // nil when transcription could not start
	tts    tts.Adapter // nil when synthesis is unavailable
	conv   *dialogue.ConversationState

	debounceWindow time.Duration
	turnEnd        TurnEnd

	logger  zerolog.Logger
	metrics *observability.CallMetrics

	mediaMu  sync.Mutex
	activity *audio.ActivityDetector

	mu            sync.Mutex
	state         State
	pending       []string
	debounce      *time.Timer
	debounceGen   uint64
	greetingTimer *time.Timer
	speaking      bool
	speakGen      uint64
	pendingMark   string

	turns      chan turn
	ctx        context.Context
	cancel     context.CancelFunc
	workerDone chan struct{}
	eventsDone chan struct{}
}

// ID returns the carrier call id
func (s *Session) ID() string { return s.id }

// PhoneNumber returns the caller's number
func (s *Session) PhoneNumber() string { return s.phone }

// Direction returns inbound or outbound
func (s *Session) Direction() string { return s.direction }

// StartedAt returns when the session was created
func (s *Session) StartedAt() time.Time { return s.startedAt }

// Conversation exposes the dialogue state for inspection
func (s *Session) Conversation() *dialogue.ConversationState { return s.conv }

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// BotSpeaking reports whether synthesized speech is being streamed
func (s *Session) BotSpeaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}

func (s *Session) snapshot(now time.Time) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		CallSID:     s.id,
		PhoneNumber: s.phone,
		Direction:   s.direction,
		State:       s.state.String(),
		StartedAt:   s.startedAt,
		Duration:    int(now.Sub(s.startedAt) / time.Second),
		BotSpeaking: s.speaking,
	}
}

func (s *Session) transition(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !transitionValid(s.state, to) {
		return &InvalidTransitionError{From: s.state, To: to}
	}
	s.logger.Debug().Stringer("from", s.state).Stringer("to", to).Msg("Call state changed")
	s.state = to
	return nil
}

// start launches the turn worker and the transcript loop
func (s *Session) start() {
	go s.runTurns()
	if s.stt != nil {
		go s.runTranscripts()
	} else {
		close(s.eventsDone)
	}
}

func (s *Session) scheduleGreeting(delay time.Duration) {
	if delay < 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.greetingTimer = time.AfterFunc(delay, func() {
		s.enqueue(turn{greeting: true})
	})
}

func (s *Session) enqueue(t turn) {
	if s.State() != StateActive {
		return
	}
	select {
	case s.turns <- t:
	case <-s.ctx.Done():
	}
}

func (s *Session) handleMedia(frame audio.Frame) {
	s.mediaMu.Lock()
	change := s.activity.ProcessMulaw(frame.Data)
	level := s.activity.LastLevel()
	s.mediaMu.Unlock()

	s.metrics.RecordAudioBytes("in", len(frame.Data))
	s.metrics.RecordInboundLevel(level, change == audio.ActivityStarted)

	if s.stt == nil {
		return
	}
	if err := s.stt.SendAudio(frame); err != nil {
		s.logger.Warn().Err(err).Msg("Error sending audio to STT")
		s.metrics.RecordError("stt_send_error", "stt")
	}
}

func (s *Session) handleMark(name string) {
	s.mu.Lock()
	if name == s.pendingMark {
		s.pendingMark = ""
	}
	s.mu.Unlock()
	s.logger.Debug().Str("mark", name).Msg("Playout reached mark")
}

// runTranscripts consumes STT events until the adapter closes its stream
func (s *Session) runTranscripts() {
	defer close(s.eventsDone)

	for ev := range s.stt.Events() {
		switch ev.Type {
		case stt.EventTranscript:
			s.onTranscript(ev.Text, ev.IsFinal)
		case stt.EventUtteranceEnd:
			if s.turnEnd != TurnEndSTT {
				s.logger.Debug().Msg("STT utterance end ignored, debounce ends turns")
				continue
			}
			s.dispatch(s.takeUtterance(), "utterance_end")
		case stt.EventError:
			s.logger.Warn().Err(ev.Err).Msg("STT error")
			s.metrics.RecordError("stt_error", "stt")
		case stt.EventClose:
			s.logger.Debug().Msg("STT stream closed")
		}
	}
}

func (s *Session) onTranscript(text string, isFinal bool) {
	s.metrics.RecordTranscript(isFinal)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return
	}

	if s.speaking {
		s.logger.Info().Msg("Caller interrupted bot")
		s.interruptLocked()
		s.metrics.RecordBargeIn()
	}

	text = strings.TrimSpace(text)
	if !isFinal || text == "" {
		return
	}
	s.logger.Debug().Str("text", text).Msg("Final transcript")
	s.pending = append(s.pending, text)
	if s.turnEnd == TurnEndSTT {
		return
	}

	if s.debounce != nil {
		s.debounce.Stop()
	}
	s.debounceGen++
	gen := s.debounceGen
	s.debounce = time.AfterFunc(s.debounceWindow, func() {
		s.dispatch(s.takeUtteranceIf(gen), "debounce")
	})
}

// interruptLocked stops bot speech. Callers hold s.mu.
func (s *Session) interruptLocked() {
	s.speaking = false
	if s.tts != nil {
		s.tts.Interrupt()
	}
}

// takeUtteranceIf claims the accumulator for the debounce timer armed at gen.
// A timer superseded by a newer transcript or by teardown gets nothing.
func (s *Session) takeUtteranceIf(gen uint64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.debounceGen {
		return ""
	}
	return s.takeLocked()
}

func (s *Session) takeUtterance() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.takeLocked()
}

// takeLocked empties the accumulator and cancels the debounce timer so each
// utterance is dispatched once.
func (s *Session) takeLocked() string {
	if s.debounce != nil {
		s.debounce.Stop()
		s.debounce = nil
	}
	s.debounceGen++

	if s.state != StateActive || len(s.pending) == 0 {
		s.pending = nil
		return ""
	}
	text := strings.Join(s.pending, " ")
	s.pending = nil

	// a new turn cancels the reply still playing rather than queueing behind it
	if s.speaking {
		s.interruptLocked()
	}
	return text
}

func (s *Session) dispatch(text, reason string) {
	if text == "" {
		return
	}
	s.logger.Info().Str("text", text).Str("trigger", reason).Msg("Processing utterance")
	s.enqueue(turn{text: text})
}

// runTurns serializes greeting and utterance handling for the call
func (s *Session) runTurns() {
	defer close(s.workerDone)

	for {
		select {
		case <-s.ctx.Done():
			return
		case t := <-s.turns:
			s.handleTurn(t)
		}
	}
}

func (s *Session) handleTurn(t turn) {
	if t.greeting {
		greeting := s.engine.Greeting(s.ctx, s.conv)
		s.logger.Info().Str("text", greeting).Msg("Greeting")
		s.speak(s.ctx, greeting)
		return
	}

	reply, err := s.engine.ProcessUtterance(s.ctx, s.conv, t.text)
	if err != nil {
		if s.ctx.Err() != nil {
			return
		}
		s.logger.Error().Err(err).Msg("Error processing utterance")
		s.metrics.RecordError("utterance_error", "dialogue")
		if !errors.Is(err, dialogue.ErrLoopExceeded) {
			reply = dialogue.FallbackNotHeard
		}
	}
	s.logger.Info().Str("text", reply).Msg("Bot response")
	s.speak(s.ctx, reply)
}

func (s *Session) stillSpeaking(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking && s.speakGen == gen
}

// speak streams synthesized audio to the sink sentence by sentence.
// Chunks already sent stay sent; once interrupted the rest is dropped and no mark follows.
func (s *Session) speak(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if s.tts == nil {
		s.logger.Warn().Str("text", text).Msg("Cannot speak, no TTS available")
		return
	}

	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return
	}
	s.speakGen++
	gen := s.speakGen
	s.speaking = true
	s.mu.Unlock()

	start := time.Now()
	var firstChunk time.Duration
	var ttsErr error
	sent, audioMs := 0, 0

	for _, sentence := range dialogue.SplitSentences(text) {
		if !s.stillSpeaking(gen) {
			break
		}
		for ev := range s.tts.Synthesize(ctx, sentence) {
			switch ev.Type {
			case tts.EventAudio:
				if !s.stillSpeaking(gen) {
					continue
				}
				if firstChunk == 0 {
					firstChunk = time.Since(start)
				}
				if err := s.sink.SendMedia(ev.Frame); err != nil {
					s.logger.Warn().Err(err).Msg("Error sending audio to carrier")
					s.metrics.RecordError("media_send_error", "telephony")
					continue
				}
				sent++
				audioMs += ev.Frame.Duration()
				s.metrics.RecordAudioBytes("out", len(ev.Frame.Data))
			case tts.EventError:
				ttsErr = ev.Err
			}
		}
		if ttsErr != nil {
			break
		}
	}
	s.metrics.RecordTTS(firstChunk, ttsErr)

	s.mu.Lock()
	completed := s.speaking && s.speakGen == gen
	if completed {
		s.speaking = false
	}
	s.mu.Unlock()

	if ttsErr != nil {
		s.logger.Error().Err(ttsErr).Msg("TTS error")
		s.metrics.RecordError("tts_error", "tts")
		return
	}
	if !completed {
		s.logger.Debug().Int("chunks", sent).Int("audio_ms", audioMs).Msg("Speech interrupted")
		return
	}

	mark := fmt.Sprintf("response-%d", sent)
	s.mu.Lock()
	s.pendingMark = mark
	s.mu.Unlock()
	if err := s.sink.SendMark(mark); err != nil {
		s.logger.Warn().Err(err).Str("mark", mark).Msg("Error sending mark")
		return
	}
	s.logger.Debug().Str("mark", mark).Int("audio_ms", audioMs).Msg("Response queued for playout")
}

// teardown cancels timers, silences the bot, stops STT and waits for the
// session goroutines. The session must already be Ending.
func (s *Session) teardown() {
	s.mu.Lock()
	if s.greetingTimer != nil {
		s.greetingTimer.Stop()
		s.greetingTimer = nil
	}
	if s.debounce != nil {
		s.debounce.Stop()
		s.debounce = nil
	}
	s.debounceGen++
	s.pending = nil
	if s.speaking {
		s.interruptLocked()
	}
	s.mu.Unlock()

	if s.stt != nil {
		if err := s.stt.Stop(); err != nil {
			s.logger.Warn().Err(err).Msg("Error stopping STT")
		}
	}
	s.cancel()
	<-s.workerDone

	select {
	case <-s.eventsDone:
	case <-time.After(sttDrainTimeout):
		s.logger.Warn().Msg("STT events did not close before timeout")
	}

	s.mediaMu.Lock()
	segments := s.activity.Segments()
	s.mediaMu.Unlock()
	s.logger.Debug().Int("speech_segments", segments).Msg("Session torn down")
}
