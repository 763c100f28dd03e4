package model

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/davin/easel/internal/observability"
)

// OpenAIService implements Service for OpenAI
type OpenAIService struct {
	apiKey string
	cfg    Config

	mu      sync.Mutex
	state   State
	client  openai.Client
	history []openai.ChatCompletionMessageParamUnion
}

// NewOpenAIService creates a new OpenAI-backed session
func NewOpenAIService(apiKey string, cfg Config) *OpenAIService {
	return &OpenAIService{
		apiKey: apiKey,
		cfg:    cfg,
		state:  StateDisconnected,
	}
}

// Provider returns the provider name
func (s *OpenAIService) Provider() string {
	return "openai"
}

// State reports the session lifecycle state
func (s *OpenAIService) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect establishes the session
func (s *OpenAIService) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateConnected {
		return nil
	}

	s.state = StateConnecting
	s.client = openai.NewClient(option.WithAPIKey(s.apiKey))
	s.history = nil
	if s.cfg.SystemPrompt != "" {
		s.history = append(s.history, openai.SystemMessage(s.cfg.SystemPrompt))
	}
	s.state = StateConnected
	return nil
}

// Close tears the session down, dropping conversation history. Idempotent.
func (s *OpenAIService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = nil
	s.state = StateDisconnected
	return nil
}

// Send performs one round trip against the OpenAI chat completions API
func (s *OpenAIService) Send(ctx context.Context, req Request) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConnected {
		return nil, fmt.Errorf("openai session is %s, not connected", s.state)
	}

	// Acknowledgments become tool messages; text and images fold into one
	// multi-part user message that follows them.
	userParts := []openai.ChatCompletionContentPartUnionParam{}
	for _, part := range req.Parts {
		switch p := part.(type) {
		case AckPart:
			s.history = append(s.history, openai.ToolMessage(p.CallID, p.Output))
		case TextPart:
			userParts = append(userParts, openai.TextContentPart(p.Text))
		case ImagePart:
			dataURL := fmt.Sprintf("data:%s;base64,%s", p.MediaType, base64.StdEncoding.EncodeToString(p.Data))
			userParts = append(userParts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL: dataURL,
			}))
		}
	}
	if len(userParts) > 0 {
		s.history = append(s.history, openai.UserMessage(userParts))
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(s.cfg.Model),
		Messages: s.history,
	}

	if s.cfg.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(s.cfg.MaxTokens))
	}
	if s.cfg.Temperature > 0 {
		params.Temperature = openai.Float(s.cfg.Temperature)
	}

	if len(s.cfg.Tools) > 0 {
		tools := make([]openai.ChatCompletionToolParam, 0, len(s.cfg.Tools))
		for _, def := range s.cfg.Tools {
			tools = append(tools, openai.ChatCompletionToolParam{
				Type: "function",
				Function: openai.FunctionDefinitionParam{
					Name:        def.Name,
					Description: openai.String(def.Description),
					Parameters:  openai.FunctionParameters(def.InputSchema),
				},
			})
		}
		params.Tools = tools
	}

	response, err := s.client.Chat.Completions.New(ctx, params)
	observability.RecordModelRoundTrip(s.Provider(), err == nil)
	if err != nil {
		s.state = StateError
		return nil, err
	}

	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("no response choices returned")
	}

	choice := response.Choices[0]
	text := choice.Message.Content

	toolCalls := []ToolCall{}
	for _, tc := range choice.Message.ToolCalls {
		var args map[string]interface{}
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			return nil, fmt.Errorf("failed to parse tool arguments: %w", err)
		}
		toolCalls = append(toolCalls, ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: args,
		})
	}

	s.history = append(s.history, choice.Message.ToParam())

	return &Response{
		Text:      text,
		ToolCalls: toolCalls,
	}, nil
}
