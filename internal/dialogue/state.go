// Package dialogue runs the receptionist conversation: history, the
// tool-calling loop, greeting, transcript export and call summaries.
package dialogue

import (
	"sync"
	"time"

	"github.com/b00y0h/barberbot/internal/business"
	"github.com/b00y0h/barberbot/internal/llm"
	"github.com/b00y0h/barberbot/internal/store"
)

// ConversationState is the per-call dialogue memory. History only grows.
type ConversationState struct {
	mu                sync.Mutex
	messages          []llm.Message
	systemPrompt      string
	callerPhone       string
	customerName      string
	customerPhone     string
	customerEmail     string
	customerID        *int64
	leadCaptured      bool
	appointmentBooked bool
}

// Flags is a point-in-time copy of what the call has achieved
type Flags struct {
	CustomerName      string
	CustomerID        *int64
	LeadCaptured      bool
	AppointmentBooked bool
}

// NewConversation builds state for a caller. existing is nil for a new caller;
// a known customer counts as a captured lead.
func NewConversation(profile *business.Profile, callerPhone string, existing *store.Customer, now time.Time) *ConversationState {
	callerPhone = store.CallerID(callerPhone)
	s := &ConversationState{
		callerPhone:   callerPhone,
		customerPhone: callerPhone,
	}
	if existing != nil {
		s.customerName = existing.Name
		s.customerEmail = existing.Email
		id := existing.ID
		s.customerID = &id
		s.leadCaptured = true
	}
	s.systemPrompt = business.BuildSystemPrompt(profile, s.customerName, now)
	return s
}

// Append adds a message to the history
func (s *ConversationState) Append(m llm.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
}

// Messages returns a copy of the history
func (s *ConversationState) Messages() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]llm.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// SystemPrompt returns the prompt fixed at call start
func (s *ConversationState) SystemPrompt() string {
	return s.systemPrompt
}

// Flags returns a snapshot of the outcome fields
func (s *ConversationState) Flags() Flags {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Flags{
		CustomerName:      s.customerName,
		CustomerID:        s.customerID,
		LeadCaptured:      s.leadCaptured,
		AppointmentBooked: s.appointmentBooked,
	}
}

// Transcript renders the history as Caller/Bot lines
func (s *ConversationState) Transcript() string {
	return ExportTranscript(s.Messages())
}

func (s *ConversationState) noteCustomer(name, phone, email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name != "" {
		s.customerName = name
	}
	if phone != "" {
		s.customerPhone = phone
	}
	if email != "" {
		s.customerEmail = email
	}
}

// contact returns the best known phone, name and email, preferring explicit arguments
func (s *ConversationState) contact(phone, name, email string) (string, string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return firstNonEmpty(phone, s.customerPhone, s.callerPhone),
		firstNonEmpty(name, s.customerName),
		firstNonEmpty(email, s.customerEmail)
}

func (s *ConversationState) markLead(customerID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customerID = &customerID
	s.leadCaptured = true
}

func (s *ConversationState) markBooked() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appointmentBooked = true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
