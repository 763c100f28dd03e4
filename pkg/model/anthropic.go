package model

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/davin/easel/internal/observability"
)

// AnthropicService implements Service for Anthropic Claude
type AnthropicService struct {
	apiKey string
	cfg    Config

	mu      sync.Mutex
	state   State
	client  anthropic.Client
	history []anthropic.MessageParam
}

// NewAnthropicService creates a new Anthropic-backed session
func NewAnthropicService(apiKey string, cfg Config) *AnthropicService {
	return &AnthropicService{
		apiKey: apiKey,
		cfg:    cfg,
		state:  StateDisconnected,
	}
}

// Provider returns the provider name
func (s *AnthropicService) Provider() string {
	return "anthropic"
}

// State reports the session lifecycle state
func (s *AnthropicService) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect establishes the session
func (s *AnthropicService) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateConnected {
		return nil
	}

	s.state = StateConnecting
	s.client = anthropic.NewClient(option.WithAPIKey(s.apiKey))
	s.history = nil
	s.state = StateConnected
	return nil
}

// Close tears the session down, dropping conversation history. Idempotent.
func (s *AnthropicService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = nil
	s.state = StateDisconnected
	return nil
}

// Send performs one round trip against the Anthropic Messages API
func (s *AnthropicService) Send(ctx context.Context, req Request) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConnected {
		return nil, fmt.Errorf("anthropic session is %s, not connected", s.state)
	}

	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(req.Parts))
	for _, part := range req.Parts {
		switch p := part.(type) {
		case AckPart:
			blocks = append(blocks, anthropic.NewToolResultBlock(p.CallID, p.Output, false))
		case TextPart:
			blocks = append(blocks, anthropic.NewTextBlock(p.Text))
		case ImagePart:
			encoded := base64.StdEncoding.EncodeToString(p.Data)
			blocks = append(blocks, anthropic.NewImageBlockBase64(p.MediaType, encoded))
		}
	}
	if len(blocks) == 0 {
		return nil, fmt.Errorf("request has no parts")
	}

	s.history = append(s.history, anthropic.NewUserMessage(blocks...))

	reqParams := anthropic.MessageNewParams{
		Model:     anthropic.Model(s.cfg.Model),
		Messages:  s.history,
		MaxTokens: int64(s.cfg.MaxTokens),
	}

	if s.cfg.SystemPrompt != "" {
		reqParams.System = []anthropic.TextBlockParam{
			{Text: s.cfg.SystemPrompt},
		}
	}

	if s.cfg.Temperature > 0 {
		reqParams.Temperature = anthropic.Float(s.cfg.Temperature)
	}

	if len(s.cfg.Tools) > 0 {
		tools := make([]anthropic.ToolUnionParam, 0, len(s.cfg.Tools))
		for _, def := range s.cfg.Tools {
			toolParam := anthropic.ToolParam{
				Name:        def.Name,
				Description: anthropic.String(def.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: def.InputSchema["properties"],
				},
			}
			if required, ok := def.InputSchema["required"].([]interface{}); ok {
				strSlice := make([]string, len(required))
				for i, v := range required {
					strSlice[i] = v.(string)
				}
				toolParam.InputSchema.Required = strSlice
			}
			tools = append(tools, anthropic.ToolUnionParam{OfTool: &toolParam})
		}
		reqParams.Tools = tools
	}

	response, err := s.client.Messages.New(ctx, reqParams)
	observability.RecordModelRoundTrip(s.Provider(), err == nil)
	if err != nil {
		s.state = StateError
		return nil, err
	}

	text := ""
	toolCalls := []ToolCall{}
	assistantBlocks := []anthropic.ContentBlockParamUnion{}

	for _, block := range response.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			text += b.Text
			assistantBlocks = append(assistantBlocks, anthropic.NewTextBlock(b.Text))
		case anthropic.ToolUseBlock:
			var args map[string]interface{}
			if err := json.Unmarshal([]byte(b.JSON.Input.Raw()), &args); err != nil {
				return nil, fmt.Errorf("failed to parse tool input: %w", err)
			}
			toolCalls = append(toolCalls, ToolCall{
				ID:   b.ID,
				Name: b.Name,
				Args: args,
			})
			assistantBlocks = append(assistantBlocks, anthropic.NewToolUseBlock(b.ID, args, b.Name))
		}
	}

	// The assistant turn must land in history before the next Send carries
	// tool results for it.
	s.history = append(s.history, anthropic.MessageParam{
		Role:    anthropic.MessageParamRoleAssistant,
		Content: assistantBlocks,
	})

	return &Response{
		Text:      text,
		ToolCalls: toolCalls,
	}, nil
}
