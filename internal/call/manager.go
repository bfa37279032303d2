// Package call orchestrates live phone calls: it owns the registry of active
// sessions and drives each one from carrier audio through transcription,
// the dialogue engine and synthesized speech.
package call

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/b00y0h/barberbot/internal/audio"
	"github.com/b00y0h/barberbot/internal/dialogue"
	"github.com/b00y0h/barberbot/internal/observability"
	"github.com/b00y0h/barberbot/internal/store"
	"github.com/b00y0h/barberbot/internal/stt"
	"github.com/b00y0h/barberbot/internal/tts"
)

const (
	DefaultDebounce      = 700 * time.Millisecond
	DefaultGreetingDelay = 500 * time.Millisecond

	turnQueueSize = 8
)

// TurnEnd names the one signal that ends a caller's turn
type TurnEnd string

const (
	// TurnEndDebounce flushes after the debounce window passes with no new final
	// transcript. Utterance end events from the STT adapter are ignored.
	TurnEndDebounce TurnEnd = "debounce"
	// TurnEndSTT flushes on the STT adapter's utterance end event and arms no timer
	TurnEndSTT TurnEnd = "stt"
)

// Options wires a Manager to its collaborators
type Options struct {
	Engine *dialogue.Engine
	Store  store.Store
	STT    stt.Factory // optional; calls run without transcription when nil
	TTS    tts.Factory // optional; calls run silent when nil

	Debounce time.Duration
	TurnEnd  TurnEnd // defaults to TurnEndDebounce
	// GreetingDelay is the pause before the bot greets. Negative disables the greeting.
	GreetingDelay time.Duration

	Now func() time.Time
}

// Manager is the registry of active calls
type Manager struct {
	opts   Options
	logger zerolog.Logger

	mu    sync.RWMutex
	calls map[string]*Session
}

// NewManager creates an empty registry
func NewManager(opts Options) *Manager {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.TurnEnd != TurnEndSTT {
		opts.TurnEnd = TurnEndDebounce
	}
	if opts.GreetingDelay == 0 {
		opts.GreetingDelay = DefaultGreetingDelay
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		opts:   opts,
		logger: observability.ForComponent("call_manager"),
		calls:  make(map[string]*Session),
	}
}

// InitializeCall builds a session for a started carrier stream and registers it.
// Persistence and STT failures are logged and the call proceeds degraded.
func (m *Manager) InitializeCall(ctx context.Context, sessionID, phone, direction string, sink Sink) (*Session, error) {
	if sessionID == "" {
		return nil, errors.New("call: session id required")
	}
	if sink == nil {
		return nil, errors.New("call: sink required")
	}
	if _, ok := m.GetActiveCall(sessionID); ok {
		return nil, ErrCallExists
	}
	if direction == "" {
		direction = store.DirectionInbound
	}

	phone = store.CallerID(phone)

	logger := observability.ForCall(sessionID).With().Str("direction", direction).Logger()
	logger.Info().Str("phone", phone).Msg("Initializing call")

	var customer *store.Customer
	if phone == "" {
		logger.Info().Msg("Caller ID withheld, skipping customer lookup")
	} else {
		found, err := m.opts.Store.FindCustomerByPhone(ctx, phone)
		if err != nil {
			logger.Warn().Err(err).Msg("Customer lookup failed")
			observability.RecordError("customer_lookup_error", "store")
		} else {
			customer = found
		}
	}

	fields := store.CallRecordFields{CallSID: sessionID, PhoneNumber: phone, Direction: direction}
	if customer != nil {
		id := customer.ID
		fields.CustomerID = &id
		logger.Info().Int64("customer_id", id).Str("name", customer.Name).Msg("Returning customer")
	}
	if _, err := m.opts.Store.CreateCallRecord(ctx, fields); err != nil {
		logger.Error().Err(err).Msg("Failed to create call record")
		observability.RecordError("call_record_error", "store")
	}

	sessCtx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:             sessionID,
		phone:          phone,
		direction:      direction,
		startedAt:      m.opts.Now(),
		engine:         m.opts.Engine,
		sink:           sink,
		conv:           dialogue.NewConversation(m.opts.Engine.Profile(), phone, customer, m.opts.Now()),
		debounceWindow: m.opts.Debounce,
		turnEnd:        m.opts.TurnEnd,
		logger:         logger,
		metrics:        observability.NewCallMetrics(direction),
		activity:       audio.NewActivityDetector(audio.DefaultActivityConfig()),
		state:          StateInitializing,
		turns:          make(chan turn, turnQueueSize),
		ctx:            sessCtx,
		cancel:         cancel,
		workerDone:     make(chan struct{}),
		eventsDone:     make(chan struct{}),
	}

	if m.opts.TTS != nil {
		adapter, err := m.opts.TTS()
		if err != nil {
			logger.Error().Err(err).Msg("TTS unavailable, call continues without speech")
			s.metrics.RecordError("tts_init_error", "tts")
		} else {
			s.tts = adapter
		}
	}

	if m.opts.STT != nil {
		adapter, err := m.opts.STT()
		if err == nil {
			err = adapter.Start(sessCtx)
			if err != nil {
				_ = adapter.Stop()
			}
		}
		if err != nil {
			logger.Error().Err(err).Msg("STT failed to start, call continues without transcription")
			s.metrics.RecordError("stt_start_error", "stt")
		} else {
			s.stt = adapter
		}
	}

	if err := s.transition(StateActive); err != nil {
		cancel()
		return nil, err
	}
	s.start()

	m.mu.Lock()
	if _, exists := m.calls[sessionID]; exists {
		m.mu.Unlock()
		_ = s.transition(StateEnding)
		s.teardown()
		_ = s.transition(StateEnded)
		s.metrics.RecordCallEnd(false, false)
		return nil, ErrCallExists
	}
	m.calls[sessionID] = s
	m.mu.Unlock()

	s.scheduleGreeting(m.opts.GreetingDelay)
	return s, nil
}

// Feed delivers a carrier event to a session. Unknown or ended ids are ignored.
func (m *Manager) Feed(ctx context.Context, sessionID string, ev Event) {
	s, ok := m.GetActiveCall(sessionID)
	if !ok || s.State() != StateActive {
		return
	}

	switch ev.Type {
	case EventMedia:
		s.handleMedia(ev.Frame)
	case EventMark:
		s.handleMark(ev.Mark)
	case EventStop:
		s.logger.Info().Msg("Stream stopped")
		if _, err := m.EndCall(ctx, sessionID); err != nil && !errors.Is(err, ErrCallNotFound) {
			s.logger.Error().Err(err).Msg("Error ending call")
		}
	case EventStart:
		s.logger.Debug().Msg("Duplicate start ignored")
	}
}

// GetActiveCall returns the registered session for id
func (m *Manager) GetActiveCall(sessionID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.calls[sessionID]
	return s, ok
}

// ActiveCount returns the number of registered sessions
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.calls)
}

// ListActiveCalls describes every registered session, oldest first
func (m *Manager) ListActiveCalls() []Snapshot {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.calls))
	for _, s := range m.calls {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	now := m.opts.Now()
	out := make([]Snapshot, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.snapshot(now))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].CallSID < out[j].CallSID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// EndCall tears a session down and persists the final call record.
// A failed update is returned as a store.PersistenceError after teardown completes.
func (m *Manager) EndCall(ctx context.Context, sessionID string) (*Result, error) {
	s, ok := m.GetActiveCall(sessionID)
	if !ok {
		return nil, ErrCallNotFound
	}
	if err := s.transition(StateEnding); err != nil {
		return nil, ErrCallNotFound
	}
	s.logger.Info().Msg("Ending call")

	s.teardown()

	transcript := s.conv.Transcript()
	summary := m.opts.Engine.Summarize(ctx, transcript)
	duration := m.opts.Now().Sub(s.startedAt)
	seconds := int(duration / time.Second)
	flags := s.conv.Flags()

	var persistErr error
	err := m.opts.Store.UpdateCallRecord(ctx, sessionID, store.CallUpdate{
		Duration:          store.Ptr(seconds),
		Transcript:        store.Ptr(transcript),
		Summary:           store.Ptr(summary),
		LeadCaptured:      store.Ptr(flags.LeadCaptured),
		AppointmentBooked: store.Ptr(flags.AppointmentBooked),
		Status:            store.Ptr(store.CallCompleted),
		CustomerID:        flags.CustomerID,
	})
	if err != nil {
		persistErr = err
		s.logger.Error().Err(err).Msg("Failed to update call record")
		s.metrics.RecordError("call_record_error", "store")
	}
	s.metrics.RecordCallEnd(flags.LeadCaptured, flags.AppointmentBooked)

	m.mu.Lock()
	delete(m.calls, sessionID)
	m.mu.Unlock()
	_ = s.transition(StateEnded)

	s.logger.Info().
		Int("duration", seconds).
		Bool("lead_captured", flags.LeadCaptured).
		Bool("appointment_booked", flags.AppointmentBooked).
		Msg("Call ended")

	return &Result{Transcript: transcript, Summary: summary, Duration: duration}, persistErr
}

// HandleStatus applies a carrier status callback. Terminal statuses end the
// call; when the carrier reports a duration it overrides the measured one.
func (m *Manager) HandleStatus(ctx context.Context, sessionID, status string, duration *int) error {
	switch status {
	case "completed", "failed", "no-answer", "busy":
	default:
		m.logger.Debug().Str("call_sid", sessionID).Str("status", status).Msg("Non-terminal call status")
		return nil
	}

	if _, err := m.EndCall(ctx, sessionID); err != nil && !errors.Is(err, ErrCallNotFound) {
		m.logger.Warn().Err(err).Str("call_sid", sessionID).Msg("Error ending call on status")
	}
	if duration == nil {
		return nil
	}

	final := store.CallCompleted
	if status != "completed" {
		final = store.CallFailed
	}
	return m.opts.Store.UpdateCallRecord(ctx, sessionID, store.CallUpdate{
		Duration: duration,
		Status:   &final,
	})
}

// Shutdown ends every active call. It stops early if ctx is done.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	ids := make([]string, 0, len(m.calls))
	for id := range m.calls {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if _, err := m.EndCall(ctx, id); err != nil && !errors.Is(err, ErrCallNotFound) {
			errs = append(errs, err)
		}
	}
	m.logger.Info().Int("calls", len(ids)).Msg("Active calls ended")
	return errors.Join(errs...)
}
