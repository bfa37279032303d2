package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Store used for local runs and tests
type Memory struct {
	mu           sync.RWMutex
	nextID       int64
	customers    map[string]*Customer // by phone
	appointments []*Appointment
	calls        map[string]*CallRecord // by call sid
	now          func() time.Time
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		customers: make(map[string]*Customer),
		calls:     make(map[string]*CallRecord),
		now:       time.Now,
	}
}

func (m *Memory) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *Memory) FindCustomerByPhone(ctx context.Context, phone string) (*Customer, error) {
	if phone == "" {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.customers[phone]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *Memory) UpsertCustomer(ctx context.Context, fields CustomerFields) (*Customer, error) {
	if fields.Phone == "" {
		return nil, wrap("upsert customer", errPhoneRequired)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	c, ok := m.customers[fields.Phone]
	if !ok {
		c = &Customer{ID: m.id(), Phone: fields.Phone, CreatedAt: now}
		m.customers[fields.Phone] = c
	}
	c.Name = coalesce(fields.Name, c.Name)
	c.Email = coalesce(fields.Email, c.Email)
	c.Notes = coalesce(fields.Notes, c.Notes)
	c.UpdatedAt = now

	cp := *c
	return &cp, nil
}

func (m *Memory) CreateAppointment(ctx context.Context, fields AppointmentFields) (*Appointment, error) {
	if err := fields.validate(); err != nil {
		return nil, wrap("create appointment", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	a := &Appointment{
		ID:         m.id(),
		CustomerID: fields.CustomerID,
		Service:    fields.Service,
		Staff:      fields.Staff,
		Date:       fields.Date,
		Time:       fields.Time,
		Duration:   fields.duration(),
		Status:     AppointmentScheduled,
		Notes:      fields.Notes,
		CreatedAt:  m.now(),
	}
	m.appointments = append(m.appointments, a)

	cp := *a
	return &cp, nil
}

func (m *Memory) ListAppointments(ctx context.Context, date, staff string) ([]Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Appointment, 0)
	for _, a := range m.appointments {
		if a.Date != date || a.Status == AppointmentCancelled {
			continue
		}
		if staff != "" && a.Staff != staff {
			continue
		}
		out = append(out, *a)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out, nil
}

func (m *Memory) CreateCallRecord(ctx context.Context, fields CallRecordFields) (*CallRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.calls[fields.CallSID]; exists {
		return nil, wrap("create call record", errDuplicateCall)
	}
	direction := fields.Direction
	if direction == "" {
		direction = DirectionInbound
	}
	r := &CallRecord{
		ID:          m.id(),
		CallSID:     fields.CallSID,
		PhoneNumber: fields.PhoneNumber,
		Direction:   direction,
		CustomerID:  fields.CustomerID,
		Status:      CallInProgress,
		StartedAt:   m.now(),
	}
	m.calls[fields.CallSID] = r

	cp := *r
	return &cp, nil
}

func (m *Memory) UpdateCallRecord(ctx context.Context, callSID string, u CallUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.calls[callSID]
	if !ok {
		return wrap("update call record", ErrNotFound)
	}
	if u.Duration != nil {
		r.Duration = *u.Duration
	}
	if u.Transcript != nil {
		r.Transcript = *u.Transcript
	}
	if u.Summary != nil {
		r.Summary = *u.Summary
	}
	if u.LeadCaptured != nil {
		r.LeadCaptured = *u.LeadCaptured
	}
	if u.AppointmentBooked != nil {
		r.AppointmentBooked = *u.AppointmentBooked
	}
	if u.CustomerID != nil {
		id := *u.CustomerID
		r.CustomerID = &id
	}
	if u.Status != nil {
		r.Status = *u.Status
		if *u.Status == CallCompleted {
			ended := m.now()
			r.EndedAt = &ended
		}
	}
	return nil
}

func (m *Memory) GetCallRecord(ctx context.Context, callSID string) (*CallRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.calls[callSID]
	if !ok {
		return nil, wrap("get call record", ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (m *Memory) Ping(ctx context.Context) error { return ctx.Err() }

func (m *Memory) Close() {}

func coalesce(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
