package dialogue

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/b00y0h/barberbot/internal/business"
	"github.com/b00y0h/barberbot/internal/llm"
	"github.com/b00y0h/barberbot/internal/resilience"
	"github.com/b00y0h/barberbot/internal/store"
)

// scriptedProvider replays responses in order and repeats the last one
type scriptedProvider struct {
	mu        sync.Mutex
	responses []*llm.Response
	err       error
	requests  []llm.Request
}

func (p *scriptedProvider) Converse(ctx context.Context, req llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	i := len(p.requests) - 1
	if i >= len(p.responses) {
		i = len(p.responses) - 1
	}
	return p.responses[i], nil
}

func textResponse(text string) *llm.Response {
	return &llm.Response{Content: []llm.ContentBlock{llm.TextBlock(text)}, StopReason: llm.StopEndTurn}
}

func toolResponse(id, name string, input map[string]any) *llm.Response {
	return &llm.Response{
		Content:    []llm.ContentBlock{{ToolUse: &llm.ToolUse{ID: id, Name: name, Input: input}}},
		StopReason: llm.StopToolUse,
	}
}

func testProfile() *business.Profile {
	return &business.Profile{
		Name:     "Classic Cuts",
		Type:     "barbershop",
		Phone:    "+18045550100",
		Address:  "1420 W Broad St",
		Timezone: "America/New_York",
		Hours: map[string]business.DayHours{
			"monday":  {Closed: true},
			"tuesday": {Open: "9:00 AM", Close: "7:00 PM"},
		},
		Services: []business.Service{
			{Name: "Regular Haircut", Duration: 30, Price: 25},
			{Name: "Fade", Duration: 35, Price: 30},
		},
		Staff: []business.StaffMember{
			{Name: "Marcus", Role: "Owner", Specialties: []string{"fades"}},
			{Name: "Tony", Role: "Senior Barber", Specialties: []string{"classic cuts"}},
		},
		Policies: business.Policies{Payment: []string{"cash"}},
	}
}

func lastToolResult(t *testing.T, state *ConversationState) *llm.ToolResult {
	t.Helper()
	msgs := state.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		for _, b := range msgs[i].Content {
			if b.ToolResult != nil {
				return b.ToolResult
			}
		}
	}
	t.Fatal("no tool result in history")
	return nil
}

func TestProcessUtteranceLoopCutoff(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.Response{
		toolResponse("t", ToolGetBusinessInfo, map[string]any{"topic": "hours"}),
	}}
	engine := NewEngine(provider, store.NewMemory(), testProfile(), Config{})
	state := NewConversation(testProfile(), "+15550001111", nil, time.Now())

	reply, err := engine.ProcessUtterance(context.Background(), state, "What are your hours?")
	if !errors.Is(err, ErrLoopExceeded) {
		t.Fatalf("expected ErrLoopExceeded, got %v", err)
	}
	if reply != FallbackTrouble {
		t.Errorf("reply = %q", reply)
	}
	if len(provider.requests) != 5 {
		t.Errorf("converse called %d times, want 5", len(provider.requests))
	}
	// user turn plus five assistant/tool-result pairs
	if got := len(state.Messages()); got != 11 {
		t.Errorf("history length = %d, want 11", got)
	}
}

func TestProcessUtteranceProviderError(t *testing.T) {
	provider := &scriptedProvider{err: errors.New("throttled")}
	engine := NewEngine(provider, store.NewMemory(), testProfile(), Config{})
	state := NewConversation(testProfile(), "+15550001111", nil, time.Now())

	reply, err := engine.ProcessUtterance(context.Background(), state, "Hello?")
	var connErr *resilience.ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected ConnectionError, got %v", err)
	}
	if reply != FallbackTrouble {
		t.Errorf("reply = %q", reply)
	}
}

func TestProcessUtteranceEmptyReply(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.Response{{StopReason: llm.StopEndTurn}}}
	engine := NewEngine(provider, store.NewMemory(), testProfile(), Config{})
	state := NewConversation(testProfile(), "", nil, time.Now())

	reply, err := engine.ProcessUtterance(context.Background(), state, "hi")
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if reply != FallbackRepeat {
		t.Errorf("reply = %q, want %q", reply, FallbackRepeat)
	}
}

func TestReturningCallerBooksFade(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	james, err := st.UpsertCustomer(ctx, store.CustomerFields{Name: "James Wilson", Phone: "+18045551234"})
	if err != nil {
		t.Fatalf("seed customer: %v", err)
	}

	provider := &scriptedProvider{responses: []*llm.Response{
		textResponse("Hey James, welcome back to Classic Cuts! What can I do for you?"),
		toolResponse("b1", ToolBookAppointment, map[string]any{
			"service": "Fade", "date": "2025-06-03", "time": "10:00 AM", "staff": "Marcus",
		}),
		textResponse("You're all set for a fade with Marcus at 10."),
	}}
	profile := testProfile()
	engine := NewEngine(provider, st, profile, Config{Model: "sonnet"})

	existing, _ := st.FindCustomerByPhone(ctx, "+18045551234")
	state := NewConversation(profile, "+18045551234", existing, time.Now())
	if !strings.Contains(state.SystemPrompt(), `returning customer named "James Wilson"`) {
		t.Error("system prompt should greet James by name")
	}
	if !state.Flags().LeadCaptured {
		t.Error("known customer should count as a captured lead")
	}

	greeting := engine.Greeting(ctx, state)
	if !strings.Contains(greeting, "James") {
		t.Errorf("greeting = %q", greeting)
	}
	if provider.requests[0].MaxTokens != 150 {
		t.Errorf("greeting MaxTokens = %d, want 150", provider.requests[0].MaxTokens)
	}

	reply, err := engine.ProcessUtterance(ctx, state, "Can I get a fade with Marcus tomorrow at 10?")
	if err != nil {
		t.Fatalf("ProcessUtterance() error = %v", err)
	}
	if reply != "You're all set for a fade with Marcus at 10." {
		t.Errorf("reply = %q", reply)
	}
	if req := provider.requests[1]; req.MaxTokens != 200 || req.Temperature != 0.7 || req.Model != "sonnet" || len(req.Tools) != 4 {
		t.Errorf("converse request = %+v", req)
	}

	result := lastToolResult(t, state)
	payload := result.Content.(map[string]any)
	if payload["message"] != "Appointment booked: Fade on 2025-06-03 at 10:00 AM with Marcus" {
		t.Errorf("tool message = %v", payload["message"])
	}

	appts, _ := st.ListAppointments(ctx, "2025-06-03", "Marcus")
	if len(appts) != 1 {
		t.Fatalf("appointments = %d, want 1", len(appts))
	}
	if appts[0].Duration != 35 {
		t.Errorf("Duration = %d, want 35", appts[0].Duration)
	}
	if appts[0].CustomerID == nil || *appts[0].CustomerID != james.ID {
		t.Errorf("appointment customer = %v, want %d", appts[0].CustomerID, james.ID)
	}
	if !state.Flags().AppointmentBooked {
		t.Error("AppointmentBooked should be set")
	}

	transcript := state.Transcript()
	want := "Bot: Hey James, welcome back to Classic Cuts! What can I do for you?\n" +
		"Caller: Can I get a fade with Marcus tomorrow at 10?\n" +
		"Bot: You're all set for a fade with Marcus at 10."
	if transcript != want {
		t.Errorf("Transcript() =\n%s\nwant\n%s", transcript, want)
	}
}

func TestCheckAvailabilityForTony(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	if _, err := st.CreateAppointment(ctx, store.AppointmentFields{
		Service: "Regular Haircut", Staff: "Tony", Date: "2025-06-03", Time: "2:00 PM",
	}); err != nil {
		t.Fatalf("seed appointment: %v", err)
	}

	provider := &scriptedProvider{responses: []*llm.Response{
		toolResponse("a1", ToolCheckAvailability, map[string]any{"date": "2025-06-03", "staff": "Tony"}),
		textResponse("Tony's booked at 2 but free otherwise."),
	}}
	engine := NewEngine(provider, st, testProfile(), Config{})
	state := NewConversation(testProfile(), "+15550001111", nil, time.Now())

	if _, err := engine.ProcessUtterance(ctx, state, "Is Tony free on Tuesday?"); err != nil {
		t.Fatalf("ProcessUtterance() error = %v", err)
	}

	payload := lastToolResult(t, state).Content.(map[string]any)
	slots := payload["booked_slots"].([]string)
	if len(slots) != 1 || slots[0] != "2:00 PM (Regular Haircut with Tony)" {
		t.Errorf("booked_slots = %v", slots)
	}
	wantMsg := "Some slots are booked on 2025-06-03: 2:00 PM (Regular Haircut with Tony). Other times are available."
	if payload["message"] != wantMsg {
		t.Errorf("message = %v", payload["message"])
	}

	// a free day
	result, err := engine.checkAvailability(ctx, map[string]any{"date": "2025-06-04"})
	if err != nil {
		t.Fatalf("checkAvailability() error = %v", err)
	}
	if msg := result.(map[string]any)["message"]; msg != "2025-06-04 is wide open! All time slots available." {
		t.Errorf("message = %v", msg)
	}
}

func TestToolFailuresAreResults(t *testing.T) {
	ctx := context.Background()
	engine := NewEngine(&scriptedProvider{}, store.NewMemory(), testProfile(), Config{})
	state := NewConversation(testProfile(), "", nil, time.Now())

	tests := []struct {
		name    string
		call    llm.ToolUse
		wantErr bool
		wantMsg string
	}{
		{"unknown tool", llm.ToolUse{Name: "cancel_everything"}, true, "Unknown tool: cancel_everything"},
		{"missing date", llm.ToolUse{Name: ToolCheckAvailability, Input: map[string]any{}}, true, "date is required"},
		{"booking without time", llm.ToolUse{Name: ToolBookAppointment, Input: map[string]any{"service": "Fade", "date": "2025-06-03"}}, true, "missing required fields: time"},
		{"unknown topic", llm.ToolUse{Name: ToolGetBusinessInfo, Input: map[string]any{"topic": "parking"}}, false, "Unknown topic"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := engine.runTool(ctx, state, tt.call)
			var toolErr *ToolExecutionError
			if tt.wantErr != errors.As(err, &toolErr) {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got := result.(map[string]any)["error"]; got != tt.wantMsg {
				t.Errorf("error payload = %v, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestCollectCustomerInfo(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	engine := NewEngine(&scriptedProvider{}, st, testProfile(), Config{})

	t.Run("no phone known", func(t *testing.T) {
		state := NewConversation(testProfile(), "", nil, time.Now())
		result, err := engine.runTool(ctx, state, llm.ToolUse{Name: ToolCollectCustomerInfo, Input: map[string]any{"name": "Sam"}})
		if err != nil {
			t.Fatalf("runTool() error = %v", err)
		}
		if msg := result.(map[string]any)["message"]; msg != "Info noted, but no phone number to save yet" {
			t.Errorf("message = %v", msg)
		}
		if state.Flags().LeadCaptured {
			t.Error("lead should not be captured without a phone")
		}
	})

	t.Run("withheld caller id is not a phone", func(t *testing.T) {
		state := NewConversation(testProfile(), "+266696687", nil, time.Now())
		result, err := engine.runTool(ctx, state, llm.ToolUse{Name: ToolCollectCustomerInfo, Input: map[string]any{"name": "Alice Smith"}})
		if err != nil {
			t.Fatalf("runTool() error = %v", err)
		}
		if msg := result.(map[string]any)["message"]; msg != "Info noted, but no phone number to save yet" {
			t.Errorf("message = %v", msg)
		}
		if c, _ := st.FindCustomerByPhone(ctx, "+266696687"); c != nil {
			t.Errorf("customer saved under placeholder number: %+v", c)
		}
	})

	t.Run("caller phone used", func(t *testing.T) {
		state := NewConversation(testProfile(), "+18045559999", nil, time.Now())
		result, err := engine.runTool(ctx, state, llm.ToolUse{Name: ToolCollectCustomerInfo, Input: map[string]any{"name": "Dee", "email": "dee@example.com"}})
		if err != nil {
			t.Fatalf("runTool() error = %v", err)
		}
		if msg := result.(map[string]any)["message"]; msg != "Customer info saved" {
			t.Errorf("message = %v", msg)
		}
		c, _ := st.FindCustomerByPhone(ctx, "+18045559999")
		if c == nil || c.Name != "Dee" || c.Email != "dee@example.com" {
			t.Errorf("stored customer = %+v", c)
		}
		if flags := state.Flags(); !flags.LeadCaptured || flags.CustomerName != "Dee" {
			t.Errorf("flags = %+v", flags)
		}
	})
}

func TestGreetingFallback(t *testing.T) {
	engine := NewEngine(&scriptedProvider{err: errors.New("down")}, store.NewMemory(), testProfile(), Config{})
	state := NewConversation(testProfile(), "+15550001111", nil, time.Now())

	if got := engine.Greeting(context.Background(), state); got != FallbackGreeting {
		t.Errorf("Greeting() = %q", got)
	}
	if len(state.Messages()) != 0 {
		t.Error("fallback greeting should not be recorded")
	}
}

func TestSummarize(t *testing.T) {
	ctx := context.Background()

	provider := &scriptedProvider{responses: []*llm.Response{textResponse("James booked a fade.")}}
	engine := NewEngine(provider, store.NewMemory(), testProfile(), Config{SummaryModel: "haiku"})

	if got := engine.Summarize(ctx, ""); got != NoSummary {
		t.Errorf("empty transcript = %q", got)
	}
	if len(provider.requests) != 0 {
		t.Error("empty transcript should not call the model")
	}

	if got := engine.Summarize(ctx, "Caller: hi\nBot: hello"); got != "James booked a fade." {
		t.Errorf("Summarize() = %q", got)
	}
	req := provider.requests[0]
	if req.Model != "haiku" || req.Temperature != 0.3 || req.MaxTokens != 200 || !strings.HasPrefix(req.System, "Summarize this phone call") {
		t.Errorf("summary request = %+v", req)
	}

	failing := NewEngine(&scriptedProvider{err: errors.New("boom")}, store.NewMemory(), testProfile(), Config{})
	if got := failing.Summarize(ctx, "Caller: hi"); got != SummaryFailed {
		t.Errorf("failed summary = %q", got)
	}
}
