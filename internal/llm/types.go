// Package llm is the single message model shared by the dialogue engine and
// the model providers. Provider wire types never leak past this package.
package llm

import (
	"context"
	"errors"
)

// Role identifies the speaker of a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// StopReason tells the caller why the model stopped generating
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopToolUse   StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
	StopOther     StopReason = "other"
)

// ToolUse is a model request to invoke a tool
type ToolUse struct {
	ID    string
	Name  string
	Input map[string]any
}

// ToolResult answers a ToolUse. Content must be JSON-encodable.
type ToolResult struct {
	ToolUseID string
	Content   any
	IsError   bool
}

// ContentBlock holds exactly one of Text, ToolUse or ToolResult
type ContentBlock struct {
	Text       string
	ToolUse    *ToolUse
	ToolResult *ToolResult
}

// TextBlock builds a text content block
func TextBlock(text string) ContentBlock {
	return ContentBlock{Text: text}
}

// IsText reports whether the block carries text
func (b ContentBlock) IsText() bool {
	return b.ToolUse == nil && b.ToolResult == nil && b.Text != ""
}

// Message is one turn in the conversation
type Message struct {
	Role    Role
	Content []ContentBlock
}

// FirstText returns the first text block of the message, if any
func (m Message) FirstText() (string, bool) {
	for _, b := range m.Content {
		if b.IsText() {
			return b.Text, true
		}
	}
	return "", false
}

// ToolSpec describes a tool the model may call. InputSchema is a JSON schema.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Request is a single converse call
type Request struct {
	Model       string
	System      string
	Messages    []Message
	Tools       []ToolSpec
	MaxTokens   int32
	Temperature float32
}

// Response is the assistant turn returned by a provider
type Response struct {
	Content    []ContentBlock
	StopReason StopReason
}

// Text returns the first text block, or "" when there is none
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	for _, b := range r.Content {
		if b.IsText() {
			return b.Text
		}
	}
	return ""
}

// ToolCalls returns the tool-use blocks in order
func (r *Response) ToolCalls() []ToolUse {
	if r == nil {
		return nil
	}
	var calls []ToolUse
	for _, b := range r.Content {
		if b.ToolUse != nil {
			calls = append(calls, *b.ToolUse)
		}
	}
	return calls
}

// Provider is a model backend
type Provider interface {
	Converse(ctx context.Context, req Request) (*Response, error)
}

// ErrEmptyResponse is returned when the provider answers with no message
var ErrEmptyResponse = errors.New("llm: provider returned no message")
