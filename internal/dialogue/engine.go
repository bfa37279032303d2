package dialogue

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/b00y0h/barberbot/internal/business"
	"github.com/b00y0h/barberbot/internal/llm"
	"github.com/b00y0h/barberbot/internal/observability"
	"github.com/b00y0h/barberbot/internal/resilience"
	"github.com/b00y0h/barberbot/internal/store"
)

// Spoken when the model cannot produce a usable reply
const (
	FallbackTrouble  = "I'm sorry, I'm having a bit of trouble. Could you repeat that?"
	FallbackRepeat   = "I'm sorry, could you repeat that?"
	FallbackGreeting = "Thanks for calling, how can I help you?"
	FallbackNotHeard = "I'm sorry, I didn't catch that. Could you say that again?"

	NoSummary     = "No summary available"
	SummaryFailed = "Summary generation failed"

	summaryPrompt = "Summarize this phone call transcript in 2-3 sentences. Include: caller intent, outcome, and any action items."
)

// ErrLoopExceeded is returned when the model keeps calling tools past the iteration cap
var ErrLoopExceeded = errors.New("dialogue: tool loop exceeded")

// Config tunes the engine
type Config struct {
	Model             string
	SummaryModel      string
	MaxTokens         int32
	GreetingMaxTokens int32
	SummaryMaxTokens  int32
	Temperature       float32
	SummaryTemp       float32
	MaxToolIterations int
}

// DefaultConfig mirrors the production settings
func DefaultConfig() Config {
	return Config{
		MaxTokens:         200,
		GreetingMaxTokens: 150,
		SummaryMaxTokens:  200,
		Temperature:       0.7,
		SummaryTemp:       0.3,
		MaxToolIterations: 5,
	}
}

// Engine drives model turns for every call. It holds no per-call state.
type Engine struct {
	provider llm.Provider
	store    store.Store
	profile  *business.Profile
	cfg      Config
	logger   zerolog.Logger
}

// NewEngine creates an engine. Zero values in cfg fall back to DefaultConfig.
func NewEngine(provider llm.Provider, st store.Store, profile *business.Profile, cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.GreetingMaxTokens <= 0 {
		cfg.GreetingMaxTokens = def.GreetingMaxTokens
	}
	if cfg.SummaryMaxTokens <= 0 {
		cfg.SummaryMaxTokens = def.SummaryMaxTokens
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = def.Temperature
	}
	if cfg.SummaryTemp <= 0 {
		cfg.SummaryTemp = def.SummaryTemp
	}
	if cfg.MaxToolIterations <= 0 {
		cfg.MaxToolIterations = def.MaxToolIterations
	}
	return &Engine{
		provider: provider,
		store:    st,
		profile:  profile,
		cfg:      cfg,
		logger:   observability.ForComponent("dialogue"),
	}
}

// Profile is the business the engine answers for
func (e *Engine) Profile() *business.Profile {
	return e.profile
}

// Greeting asks the model to open the call. The greeting is recorded as an
// assistant turn; on failure the fallback is spoken and nothing is recorded.
func (e *Engine) Greeting(ctx context.Context, state *ConversationState) string {
	resp, err := e.converse(ctx, "greeting", llm.Request{
		Model:       e.cfg.Model,
		System:      state.SystemPrompt(),
		Messages:    state.Messages(),
		Tools:       Tools(),
		MaxTokens:   e.cfg.GreetingMaxTokens,
		Temperature: e.cfg.Temperature,
	})
	if err != nil {
		e.logger.Error().Err(err).Msg("Greeting generation failed")
		return FallbackGreeting
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return FallbackGreeting
	}
	state.Append(llm.Message{Role: llm.RoleAssistant, Content: []llm.ContentBlock{llm.TextBlock(text)}})
	return text
}

// ProcessUtterance runs one caller turn through the tool loop and returns the
// reply to speak. When an error is returned the text is still a speakable fallback.
func (e *Engine) ProcessUtterance(ctx context.Context, state *ConversationState, text string) (string, error) {
	state.Append(llm.Message{Role: llm.RoleUser, Content: []llm.ContentBlock{llm.TextBlock(text)}})

	for iteration := 1; iteration <= e.cfg.MaxToolIterations; iteration++ {
		resp, err := e.converse(ctx, "converse", llm.Request{
			Model:       e.cfg.Model,
			System:      state.SystemPrompt(),
			Messages:    state.Messages(),
			Tools:       Tools(),
			MaxTokens:   e.cfg.MaxTokens,
			Temperature: e.cfg.Temperature,
		})
		if err != nil {
			var connErr *resilience.ConnectionError
			if !errors.As(err, &connErr) {
				err = resilience.NewConnectionError("llm", err)
			}
			e.logger.Error().Err(err).Int("iteration", iteration).Msg("Converse failed")
			return FallbackTrouble, err
		}

		calls := resp.ToolCalls()
		if len(calls) == 0 {
			reply := strings.TrimSpace(resp.Text())
			if reply == "" {
				reply = FallbackRepeat
			}
			state.Append(llm.Message{Role: llm.RoleAssistant, Content: []llm.ContentBlock{llm.TextBlock(reply)}})
			return reply, nil
		}

		assistant := llm.Message{Role: llm.RoleAssistant}
		if t := resp.Text(); t != "" {
			assistant.Content = append(assistant.Content, llm.TextBlock(t))
		}
		results := llm.Message{Role: llm.RoleUser}
		for i := range calls {
			call := calls[i]
			assistant.Content = append(assistant.Content, llm.ContentBlock{ToolUse: &call})

			result, toolErr := e.runTool(ctx, state, call)
			if toolErr != nil {
				e.logger.Warn().Err(toolErr).Str("tool", call.Name).Msg("Tool failed")
			} else {
				e.logger.Info().Str("tool", call.Name).Msg("Tool executed")
			}
			results.Content = append(results.Content, llm.ContentBlock{ToolResult: &llm.ToolResult{
				ToolUseID: call.ID,
				Content:   result,
				IsError:   toolErr != nil,
			}})
		}
		state.Append(assistant)
		state.Append(results)
	}

	e.logger.Warn().Int("max_iterations", e.cfg.MaxToolIterations).Msg("Tool loop exceeded")
	return FallbackTrouble, ErrLoopExceeded
}

// Summarize condenses a transcript. It never fails; errors become a fixed notice.
func (e *Engine) Summarize(ctx context.Context, transcript string) string {
	if strings.TrimSpace(transcript) == "" {
		return NoSummary
	}
	resp, err := e.converse(ctx, "summary", llm.Request{
		Model:  e.cfg.SummaryModel,
		System: summaryPrompt,
		Messages: []llm.Message{{
			Role:    llm.RoleUser,
			Content: []llm.ContentBlock{llm.TextBlock(transcript)},
		}},
		MaxTokens:   e.cfg.SummaryMaxTokens,
		Temperature: e.cfg.SummaryTemp,
	})
	if err != nil {
		e.logger.Error().Err(err).Msg("Summary generation failed")
		return SummaryFailed
	}
	if text := strings.TrimSpace(resp.Text()); text != "" {
		return text
	}
	return NoSummary
}

func (e *Engine) converse(ctx context.Context, op string, req llm.Request) (*llm.Response, error) {
	start := time.Now()
	resp, err := e.provider.Converse(ctx, req)
	observability.ObserveLLM(op, time.Since(start), err)
	if err == nil && resp == nil {
		err = llm.ErrEmptyResponse
	}
	return resp, err
}
