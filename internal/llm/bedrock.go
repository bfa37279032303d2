package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/rs/zerolog"

	"github.com/b00y0h/barberbot/internal/observability"
	"github.com/b00y0h/barberbot/internal/resilience"
)

// callConnectedText opens a history that would otherwise start with the assistant.
// Bedrock rejects conversations whose first message is not from the user.
const callConnectedText = "(call connected)"

// ConverseAPI is the subset of the Bedrock runtime client used here
type ConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Bedrock talks to Anthropic models through the Bedrock Converse API
type Bedrock struct {
	client       ConverseAPI
	defaultModel string
	logger       zerolog.Logger
}

// NewBedrock creates a provider. defaultModel is used when a request names none.
func NewBedrock(cfg aws.Config, defaultModel string) *Bedrock {
	return NewBedrockWithClient(bedrockruntime.NewFromConfig(cfg), defaultModel)
}

// NewBedrockWithClient wraps an existing client
func NewBedrockWithClient(client ConverseAPI, defaultModel string) *Bedrock {
	return &Bedrock{
		client:       client,
		defaultModel: defaultModel,
		logger:       observability.ForComponent("bedrock"),
	}
}

// Converse sends one request and maps the reply back to the internal model
func (b *Bedrock) Converse(ctx context.Context, req Request) (*Response, error) {
	input, err := b.buildInput(req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	out, err := b.client.Converse(ctx, input)
	elapsed := time.Since(start)
	if err != nil {
		b.logger.Error().Err(err).Str("model", aws.ToString(input.ModelId)).Dur("elapsed", elapsed).Msg("Converse failed")
		return nil, resilience.NewConnectionError("bedrock", err)
	}

	resp, err := fromConverseOutput(out)
	if err != nil {
		return nil, err
	}
	b.logger.Debug().
		Str("model", aws.ToString(input.ModelId)).
		Str("stop_reason", string(resp.StopReason)).
		Int("blocks", len(resp.Content)).
		Dur("elapsed", elapsed).
		Msg("Converse completed")
	return resp, nil
}

func (b *Bedrock) buildInput(req Request) (*bedrockruntime.ConverseInput, error) {
	model := req.Model
	if model == "" {
		model = b.defaultModel
	}

	messages, err := toWireMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(model),
		Messages: messages,
	}
	if req.System != "" {
		input.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: req.System},
		}
	}

	inference := &types.InferenceConfiguration{Temperature: aws.Float32(req.Temperature)}
	if req.MaxTokens > 0 {
		inference.MaxTokens = aws.Int32(req.MaxTokens)
	}
	input.InferenceConfig = inference

	if len(req.Tools) > 0 {
		tools := make([]types.Tool, 0, len(req.Tools))
		for _, t := range req.Tools {
			tools = append(tools, &types.ToolMemberToolSpec{Value: types.ToolSpecification{
				Name:        aws.String(t.Name),
				Description: aws.String(t.Description),
				InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(t.InputSchema)},
			}})
		}
		input.ToolConfig = &types.ToolConfiguration{Tools: tools}
	}
	return input, nil
}

// toWireMessages converts history, prefixing a user turn when the history
// is empty or opens with the assistant
func toWireMessages(msgs []Message) ([]types.Message, error) {
	out := make([]types.Message, 0, len(msgs)+1)
	if len(msgs) == 0 || msgs[0].Role != RoleUser {
		out = append(out, types.Message{
			Role:    types.ConversationRoleUser,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: callConnectedText}},
		})
	}

	for i, m := range msgs {
		content := make([]types.ContentBlock, 0, len(m.Content))
		for _, block := range m.Content {
			wire, err := toWireBlock(block)
			if err != nil {
				return nil, fmt.Errorf("message %d: %w", i, err)
			}
			if wire != nil {
				content = append(content, wire)
			}
		}
		if len(content) == 0 {
			continue
		}
		role := types.ConversationRoleUser
		if m.Role == RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		out = append(out, types.Message{Role: role, Content: content})
	}
	return out, nil
}

func toWireBlock(b ContentBlock) (types.ContentBlock, error) {
	switch {
	case b.ToolUse != nil:
		input := b.ToolUse.Input
		if input == nil {
			input = map[string]any{}
		}
		return &types.ContentBlockMemberToolUse{Value: types.ToolUseBlock{
			ToolUseId: aws.String(b.ToolUse.ID),
			Name:      aws.String(b.ToolUse.Name),
			Input:     document.NewLazyDocument(input),
		}}, nil
	case b.ToolResult != nil:
		status := types.ToolResultStatusSuccess
		if b.ToolResult.IsError {
			status = types.ToolResultStatusError
		}
		return &types.ContentBlockMemberToolResult{Value: types.ToolResultBlock{
			ToolUseId: aws.String(b.ToolResult.ToolUseID),
			Content:   []types.ToolResultContentBlock{toolResultContent(b.ToolResult.Content)},
			Status:    status,
		}}, nil
	case b.Text != "":
		return &types.ContentBlockMemberText{Value: b.Text}, nil
	default:
		return nil, nil
	}
}

func toolResultContent(content any) types.ToolResultContentBlock {
	if s, ok := content.(string); ok {
		return &types.ToolResultContentBlockMemberText{Value: s}
	}
	return &types.ToolResultContentBlockMemberJson{Value: document.NewLazyDocument(content)}
}

func fromConverseOutput(out *bedrockruntime.ConverseOutput) (*Response, error) {
	if out == nil {
		return nil, ErrEmptyResponse
	}
	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return nil, ErrEmptyResponse
	}

	resp := &Response{StopReason: fromStopReason(out.StopReason)}
	for _, block := range msg.Value.Content {
		switch v := block.(type) {
		case *types.ContentBlockMemberText:
			resp.Content = append(resp.Content, TextBlock(v.Value))
		case *types.ContentBlockMemberToolUse:
			input := map[string]any{}
			if v.Value.Input != nil {
				if err := v.Value.Input.UnmarshalSmithyDocument(&input); err != nil {
					return nil, fmt.Errorf("decode tool input for %s: %w", aws.ToString(v.Value.Name), err)
				}
			}
			resp.Content = append(resp.Content, ContentBlock{ToolUse: &ToolUse{
				ID:    aws.ToString(v.Value.ToolUseId),
				Name:  aws.ToString(v.Value.Name),
				Input: input,
			}})
		}
	}
	return resp, nil
}

func fromStopReason(r types.StopReason) StopReason {
	switch r {
	case types.StopReasonEndTurn, types.StopReasonStopSequence:
		return StopEndTurn
	case types.StopReasonToolUse:
		return StopToolUse
	case types.StopReasonMaxTokens:
		return StopMaxTokens
	default:
		return StopOther
	}
}
