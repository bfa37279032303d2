package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is the production Store backed by a pgx connection pool
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to databaseURL, applies migrations and returns the store
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, wrap("connect", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, wrap("ping", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Postgres{pool: pool}, nil
}

const customerColumns = `id, COALESCE(name, ''), phone, COALESCE(email, ''), COALESCE(notes, ''), created_at, updated_at`

func scanCustomer(row pgx.Row) (*Customer, error) {
	var c Customer
	if err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.Notes, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (p *Postgres) FindCustomerByPhone(ctx context.Context, phone string) (*Customer, error) {
	if phone == "" {
		return nil, nil
	}
	query := `SELECT ` + customerColumns + ` FROM customers WHERE phone = $1`
	c, err := scanCustomer(p.pool.QueryRow(ctx, query, phone))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("find customer", err)
	}
	return c, nil
}

func (p *Postgres) UpsertCustomer(ctx context.Context, f CustomerFields) (*Customer, error) {
	if f.Phone == "" {
		return nil, wrap("upsert customer", errPhoneRequired)
	}
	query := `
		INSERT INTO customers (name, phone, email, notes)
		VALUES (NULLIF($1, ''), $2, NULLIF($3, ''), NULLIF($4, ''))
		ON CONFLICT (phone) DO UPDATE SET
			name = COALESCE(EXCLUDED.name, customers.name),
			email = COALESCE(EXCLUDED.email, customers.email),
			notes = COALESCE(EXCLUDED.notes, customers.notes),
			updated_at = now()
		RETURNING ` + customerColumns
	c, err := scanCustomer(p.pool.QueryRow(ctx, query, f.Name, f.Phone, f.Email, f.Notes))
	if err != nil {
		return nil, wrap("upsert customer", err)
	}
	return c, nil
}

const appointmentColumns = `id, customer_id, service, COALESCE(staff, ''), date, time, duration, status, COALESCE(notes, ''), created_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.CustomerID, &a.Service, &a.Staff, &a.Date, &a.Time,
		&a.Duration, &a.Status, &a.Notes, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (p *Postgres) CreateAppointment(ctx context.Context, f AppointmentFields) (*Appointment, error) {
	if err := f.validate(); err != nil {
		return nil, wrap("create appointment", err)
	}
	query := `
		INSERT INTO appointments (customer_id, service, staff, date, time, duration, notes)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, NULLIF($7, ''))
		RETURNING ` + appointmentColumns
	a, err := scanAppointment(p.pool.QueryRow(ctx, query,
		f.CustomerID, f.Service, f.Staff, f.Date, f.Time, f.duration(), f.Notes))
	if err != nil {
		return nil, wrap("create appointment", err)
	}
	return a, nil
}

func (p *Postgres) ListAppointments(ctx context.Context, date, staff string) ([]Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE date = $1 AND ($2 = '' OR staff = $2) AND status <> 'cancelled'
		ORDER BY time ASC`
	rows, err := p.pool.Query(ctx, query, date, staff)
	if err != nil {
		return nil, wrap("list appointments", err)
	}
	defer rows.Close()

	out := make([]Appointment, 0)
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, wrap("list appointments", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list appointments", err)
	}
	return out, nil
}

const callColumns = `id, call_sid, COALESCE(phone_number, ''), direction, duration, COALESCE(transcript, ''),
	COALESCE(summary, ''), lead_captured, appointment_booked, customer_id, status, started_at, ended_at`

func scanCall(row pgx.Row) (*CallRecord, error) {
	var r CallRecord
	err := row.Scan(&r.ID, &r.CallSID, &r.PhoneNumber, &r.Direction, &r.Duration, &r.Transcript,
		&r.Summary, &r.LeadCaptured, &r.AppointmentBooked, &r.CustomerID, &r.Status, &r.StartedAt, &r.EndedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (p *Postgres) CreateCallRecord(ctx context.Context, f CallRecordFields) (*CallRecord, error) {
	direction := f.Direction
	if direction == "" {
		direction = DirectionInbound
	}
	query := `
		INSERT INTO calls (call_sid, phone_number, direction, customer_id)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + callColumns
	r, err := scanCall(p.pool.QueryRow(ctx, query, f.CallSID, f.PhoneNumber, direction, f.CustomerID))
	if err != nil {
		return nil, wrap("create call record", err)
	}
	return r, nil
}

func (p *Postgres) UpdateCallRecord(ctx context.Context, callSID string, u CallUpdate) error {
	sets, args := buildCallUpdate(u)
	if len(sets) == 0 {
		return nil
	}
	args = append(args, callSID)
	query := fmt.Sprintf(`UPDATE calls SET %s WHERE call_sid = $%d`, strings.Join(sets, ", "), len(args))

	tag, err := p.pool.Exec(ctx, query, args...)
	if err != nil {
		return wrap("update call record", err)
	}
	if tag.RowsAffected() == 0 {
		return wrap("update call record", ErrNotFound)
	}
	return nil
}

// buildCallUpdate renders the SET clause for the non-nil fields of u
func buildCallUpdate(u CallUpdate) ([]string, []any) {
	var sets []string
	var args []any
	add := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if u.Duration != nil {
		add("duration", *u.Duration)
	}
	if u.Transcript != nil {
		add("transcript", *u.Transcript)
	}
	if u.Summary != nil {
		add("summary", *u.Summary)
	}
	if u.LeadCaptured != nil {
		add("lead_captured", *u.LeadCaptured)
	}
	if u.AppointmentBooked != nil {
		add("appointment_booked", *u.AppointmentBooked)
	}
	if u.Status != nil {
		add("status", *u.Status)
	}
	if u.CustomerID != nil {
		add("customer_id", *u.CustomerID)
	}
	if u.Status != nil && *u.Status == CallCompleted {
		sets = append(sets, "ended_at = now()")
	}
	return sets, args
}

func (p *Postgres) GetCallRecord(ctx context.Context, callSID string) (*CallRecord, error) {
	query := `SELECT ` + callColumns + ` FROM calls WHERE call_sid = $1`
	r, err := scanCall(p.pool.QueryRow(ctx, query, callSID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, wrap("get call record", ErrNotFound)
	}
	if err != nil {
		return nil, wrap("get call record", err)
	}
	return r, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return wrap("ping", p.pool.Ping(ctx))
}

func (p *Postgres) Close() {
	p.pool.Close()
}
