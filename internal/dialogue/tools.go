package dialogue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/b00y0h/barberbot/internal/llm"
	"github.com/b00y0h/barberbot/internal/observability"
	"github.com/b00y0h/barberbot/internal/store"
)

// Tool names offered to the model
const (
	ToolCollectCustomerInfo = "collect_customer_info"
	ToolCheckAvailability   = "check_availability"
	ToolBookAppointment     = "book_appointment"
	ToolGetBusinessInfo     = "get_business_info"
)

// ToolExecutionError is a tool failure reported back to the model as a result
type ToolExecutionError struct {
	Tool string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

var errUnknownTool = errors.New("unknown tool")

// Tools returns the fixed tool schema
func Tools() []llm.ToolSpec {
	str := func(desc string) map[string]any {
		return map[string]any{"type": "string", "description": desc}
	}
	return []llm.ToolSpec{
		{
			Name:        ToolCollectCustomerInfo,
			Description: "Save or update customer information when they provide their name, phone, or email",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":  str("Customer name"),
					"phone": str("Customer phone number"),
					"email": str("Customer email address"),
				},
				"required": []string{},
			},
		},
		{
			Name:        ToolCheckAvailability,
			Description: "Check appointment availability for a specific date, optionally for a specific barber",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"date":  str("Date to check (YYYY-MM-DD format)"),
					"staff": str("Optional: specific barber name"),
				},
				"required": []string{"date"},
			},
		},
		{
			Name:        ToolBookAppointment,
			Description: "Book an appointment for the customer",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"service":        str(`Service name (e.g., "Fade", "Regular Haircut")`),
					"date":           str("Appointment date (YYYY-MM-DD)"),
					"time":           str(`Appointment time (e.g., "2:00 PM")`),
					"staff":          str("Preferred barber name"),
					"customer_name":  str("Customer name"),
					"customer_phone": str("Customer phone number"),
				},
				"required": []string{"service", "date", "time"},
			},
		},
		{
			Name:        ToolGetBusinessInfo,
			Description: "Get specific business information like hours, services, pricing, location, or policies",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"topic": map[string]any{
						"type":        "string",
						"enum":        []string{"hours", "services", "location", "policies", "staff", "pricing"},
						"description": "What info to retrieve",
					},
				},
				"required": []string{"topic"},
			},
		},
	}
}

// runTool executes one tool call. Failures come back as a ToolExecutionError
// alongside an {error: ...} payload the model can read.
func (e *Engine) runTool(ctx context.Context, state *ConversationState, call llm.ToolUse) (any, error) {
	var (
		result any
		err    error
	)
	switch call.Name {
	case ToolCollectCustomerInfo:
		result, err = e.collectCustomerInfo(ctx, state, call.Input)
	case ToolCheckAvailability:
		result, err = e.checkAvailability(ctx, call.Input)
	case ToolBookAppointment:
		result, err = e.bookAppointment(ctx, state, call.Input)
	case ToolGetBusinessInfo:
		result, err = e.getBusinessInfo(call.Input)
	default:
		observability.RecordToolInvocation(call.Name, "unknown")
		return map[string]any{"error": "Unknown tool: " + call.Name}, &ToolExecutionError{Tool: call.Name, Err: errUnknownTool}
	}

	outcome := "success"
	if err != nil {
		outcome = "error"
		err = &ToolExecutionError{Tool: call.Name, Err: err}
		result = map[string]any{"error": errorMessage(err)}
	}
	observability.RecordToolInvocation(call.Name, outcome)
	return result, err
}

// errorMessage is the text the model sees for a failed tool
func errorMessage(err error) string {
	var te *ToolExecutionError
	if errors.As(err, &te) {
		return te.Err.Error()
	}
	return err.Error()
}

func (e *Engine) collectCustomerInfo(ctx context.Context, state *ConversationState, args map[string]any) (any, error) {
	name, phone, email := stringArg(args, "name"), stringArg(args, "phone"), stringArg(args, "email")
	state.noteCustomer(name, phone, email)

	phone, name, email = state.contact(phone, name, email)
	if phone == "" {
		return map[string]any{"success": true, "message": "Info noted, but no phone number to save yet"}, nil
	}

	customer, err := e.store.UpsertCustomer(ctx, store.CustomerFields{Name: name, Phone: phone, Email: email})
	if err != nil {
		return nil, err
	}
	state.markLead(customer.ID)
	return map[string]any{"success": true, "customer_id": customer.ID, "message": "Customer info saved"}, nil
}

func (e *Engine) checkAvailability(ctx context.Context, args map[string]any) (any, error) {
	date := stringArg(args, "date")
	if date == "" {
		return nil, errors.New("date is required")
	}
	staff := stringArg(args, "staff")

	existing, err := e.store.ListAppointments(ctx, date, staff)
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		return map[string]any{"available": true, "message": fmt.Sprintf("%s is wide open! All time slots available.", date)}, nil
	}

	booked := make([]string, 0, len(existing))
	for _, a := range existing {
		barber := a.Staff
		if barber == "" {
			barber = "any barber"
		}
		booked = append(booked, fmt.Sprintf("%s (%s with %s)", a.Time, a.Service, barber))
	}
	return map[string]any{
		"available":    true,
		"booked_slots": booked,
		"message":      fmt.Sprintf("Some slots are booked on %s: %s. Other times are available.", date, strings.Join(booked, ", ")),
	}, nil
}

func (e *Engine) bookAppointment(ctx context.Context, state *ConversationState, args map[string]any) (any, error) {
	service, date, at := stringArg(args, "service"), stringArg(args, "date"), stringArg(args, "time")
	var missing []string
	for k, v := range map[string]string{"service": service, "date": date, "time": at} {
		if v == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	staff := stringArg(args, "staff")

	phone, name, _ := state.contact(stringArg(args, "customer_phone"), stringArg(args, "customer_name"), "")
	var customerID *int64
	if phone != "" {
		customer, err := e.store.UpsertCustomer(ctx, store.CustomerFields{Name: name, Phone: phone})
		if err != nil {
			return nil, err
		}
		state.markLead(customer.ID)
		customerID = &customer.ID
	}

	duration := store.DefaultAppointmentMinutes
	if svc, ok := e.profile.ServiceByName(service); ok && svc.Duration > 0 {
		duration = svc.Duration
	}

	appt, err := e.store.CreateAppointment(ctx, store.AppointmentFields{
		CustomerID: customerID,
		Service:    service,
		Staff:      staff,
		Date:       date,
		Time:       at,
		Duration:   duration,
	})
	if err != nil {
		return nil, err
	}
	state.markBooked()

	msg := fmt.Sprintf("Appointment booked: %s on %s at %s", service, date, at)
	if staff != "" {
		msg += " with " + staff
	}
	return map[string]any{"success": true, "appointment_id": appt.ID, "message": msg}, nil
}

func (e *Engine) getBusinessInfo(args map[string]any) (any, error) {
	topic := stringArg(args, "topic")
	info, ok := e.profile.Lookup(topic)
	if !ok {
		return map[string]any{"error": "Unknown topic"}, nil
	}
	return info, nil
}

func stringArg(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}
