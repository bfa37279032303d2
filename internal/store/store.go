// Package store persists customers, appointments and call records.
package store

import (
	"context"
	"fmt"
	"time"
)

// Customer is a caller known to the business
type Customer struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name,omitempty"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CustomerFields are merged into an existing customer by phone.
// Empty strings leave the stored value untouched.
type CustomerFields struct {
	Name  string
	Phone string
	Email string
	Notes string
}

// Appointment is a booked service slot
type Appointment struct {
	ID         int64     `json:"id"`
	CustomerID *int64    `json:"customer_id,omitempty"`
	Service    string    `json:"service"`
	Staff      string    `json:"staff,omitempty"`
	Date       string    `json:"date"`
	Time       string    `json:"time"`
	Duration   int       `json:"duration"`
	Status     string    `json:"status"`
	Notes      string    `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// AppointmentFields describe a new appointment. Duration defaults to 30 minutes.
type AppointmentFields struct {
	CustomerID *int64
	Service    string
	Staff      string
	Date       string
	Time       string
	Duration   int
	Notes      string
}

const (
	AppointmentScheduled = "scheduled"
	AppointmentCancelled = "cancelled"

	DefaultAppointmentMinutes = 30
)

// CallRecord is the persisted log of one phone call
type CallRecord struct {
	ID                int64      `json:"id"`
	CallSID           string     `json:"call_sid"`
	PhoneNumber       string     `json:"phone_number"`
	Direction         string     `json:"direction"`
	Duration          int        `json:"duration"`
	Transcript        string     `json:"transcript,omitempty"`
	Summary           string     `json:"summary,omitempty"`
	LeadCaptured      bool       `json:"lead_captured"`
	AppointmentBooked bool       `json:"appointment_booked"`
	CustomerID        *int64     `json:"customer_id,omitempty"`
	Status            string     `json:"status"`
	StartedAt         time.Time  `json:"started_at"`
	EndedAt           *time.Time `json:"ended_at,omitempty"`
}

// CallRecordFields describe a call at creation time
type CallRecordFields struct {
	CallSID     string
	PhoneNumber string
	Direction   string
	CustomerID  *int64
}

// CallUpdate carries the fields to change; nil pointers are left as they are.
// Setting Status to CallCompleted also stamps EndedAt.
type CallUpdate struct {
	Duration          *int
	Transcript        *string
	Summary           *string
	LeadCaptured      *bool
	AppointmentBooked *bool
	Status            *string
	CustomerID        *int64
}

const (
	CallInProgress = "in-progress"
	CallCompleted  = "completed"
	CallFailed     = "failed"

	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Store is the booking and directory collaborator used by calls and dialogue tools
type Store interface {
	FindCustomerByPhone(ctx context.Context, phone string) (*Customer, error)
	UpsertCustomer(ctx context.Context, fields CustomerFields) (*Customer, error)
	CreateAppointment(ctx context.Context, fields AppointmentFields) (*Appointment, error)
	// ListAppointments returns non-cancelled appointments on date ordered by time.
	// An empty staff matches every barber.
	ListAppointments(ctx context.Context, date, staff string) ([]Appointment, error)
	CreateCallRecord(ctx context.Context, fields CallRecordFields) (*CallRecord, error)
	UpdateCallRecord(ctx context.Context, callSID string, update CallUpdate) error
	GetCallRecord(ctx context.Context, callSID string) (*CallRecord, error)
	Ping(ctx context.Context) error
	Close()
}

// PersistenceError wraps a failed store operation
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}

// Ptr returns a pointer to v; handy for building CallUpdate values
func Ptr[T any](v T) *T { return &v }
