package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

const OpenAIName = "openai"

// OpenAIConfig holds configuration for the OpenAI client.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	Timeout      time.Duration
	RPS          float64 // Requests per second (default: 8)
	MaxRetries   int     // Max retry attempts (default: 3)
}

// OpenAIClient implements LLMClient using the official OpenAI SDK.
// Unlike OpenRouter, structured output is requested through a forced
// function call whose parameters are the output schema; the model's
// arguments string is the structured value.
type OpenAIClient struct {
	client       openai.Client
	apiKey       string
	baseURL      string
	defaultModel string
	rps          float64
}

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gpt-4o"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.RPS == 0 {
		cfg.RPS = 8.0
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIClient{
		client:       openai.NewClient(opts...),
		apiKey:       cfg.APIKey,
		baseURL:      cfg.BaseURL,
		defaultModel: cfg.DefaultModel,
		rps:          cfg.RPS,
	}
}

// Name returns the client identifier.
func (c *OpenAIClient) Name() string {
	return OpenAIName
}

// RequestsPerSecond returns the RPS limit for rate limiting.
func (c *OpenAIClient) RequestsPerSecond() float64 {
	return c.rps
}

// Chat sends a chat completion request.
func (c *OpenAIClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	return c.doChat(ctx, req, nil)
}

// ChatWithTools sends a chat request with tool definitions.
func (c *OpenAIClient) ChatWithTools(ctx context.Context, req *ChatRequest, tools []Tool) (*ChatResult, error) {
	return c.doChat(ctx, req, tools)
}

// structuredOutputToolName is the function the model is forced to call when
// a ResponseFormat is set.
const structuredOutputToolName = "record_output"

func (c *OpenAIClient) doChat(ctx context.Context, req *ChatRequest, tools []Tool) (*ChatResult, error) {
	start := time.Now()

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(model),
		Messages:    make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)),
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}

	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			params.Messages = append(params.Messages, openai.SystemMessage(m.Content))
		case "assistant":
			params.Messages = append(params.Messages, openai.AssistantMessage(m.Content))
		default:
			if len(m.Images) > 0 {
				parts := []openai.ChatCompletionContentPartUnionParam{
					openai.TextContentPart(m.Content),
				}
				for _, img := range m.Images {
					parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
						URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(img),
					}))
				}
				params.Messages = append(params.Messages, openai.UserMessage(parts))
			} else {
				params.Messages = append(params.Messages, openai.UserMessage(m.Content))
			}
		}
	}

	structured := req.ResponseFormat != nil

	for _, t := range tools {
		var fnParams shared.FunctionParameters
		if len(t.Function.Parameters) > 0 {
			if err := json.Unmarshal(t.Function.Parameters, &fnParams); err != nil {
				return nil, fmt.Errorf("invalid tool parameters for %q: %w", t.Function.Name, err)
			}
		}
		params.Tools = append(params.Tools, openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name:        t.Function.Name,
			Description: openai.String(t.Function.Description),
			Parameters:  fnParams,
		}))
	}

	if structured {
		schema, err := extractValidationSchema(req.ResponseFormat.JSONSchema)
		if err != nil {
			return nil, fmt.Errorf("invalid response format schema: %w", err)
		}
		var fnParams shared.FunctionParameters
		if len(schema) > 0 {
			if err := json.Unmarshal(schema, &fnParams); err != nil {
				return nil, fmt.Errorf("invalid response format schema: %w", err)
			}
		}
		params.Tools = append(params.Tools, openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name:        structuredOutputToolName,
			Description: openai.String("Record the structured result of the task."),
			Parameters:  fnParams,
		}))
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
			OfFunctionToolChoice: &openai.ChatCompletionNamedToolChoiceParam{
				Function: openai.ChatCompletionNamedToolChoiceFunctionParam{
					Name: structuredOutputToolName,
				},
			},
		}
	}

	result := &ChatResult{
		RequestID: requestID,
		Provider:  OpenAIName,
		Attempts:  1,
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		if isOpenAIContentPolicy(err) {
			result.Success = false
			result.ErrorType = ErrorTypeContentPolicy
			result.ErrorMessage = err.Error()
			result.TotalTime = time.Since(start)
			return result, nil
		}
		result.Success = false
		result.ErrorType = "http_error"
		result.ErrorMessage = err.Error()
		result.TotalTime = time.Since(start)
		return result, fmt.Errorf("openai request failed: %w", err)
	}

	if len(completion.Choices) == 0 {
		result.Success = false
		result.ErrorType = ErrorTypeEmpty
		result.ErrorMessage = "no choices in response"
		result.TotalTime = time.Since(start)
		return result, nil
	}

	choice := completion.Choices[0]

	if choice.FinishReason == "content_filter" || choice.Message.Refusal != "" {
		result.Success = false
		result.ErrorType = ErrorTypeContentPolicy
		result.ErrorMessage = refusalMessage(choice.Message.Refusal)
		result.TotalTime = time.Since(start)
		return result, nil
	}

	result.Success = true
	result.Content = choice.Message.Content
	result.ModelUsed = completion.Model
	result.PromptTokens = int(completion.Usage.PromptTokens)
	result.CompletionTokens = int(completion.Usage.CompletionTokens)
	result.TotalTokens = int(completion.Usage.TotalTokens)
	result.ExecutionTime = time.Since(start)
	result.TotalTime = result.ExecutionTime

	for _, tc := range choice.Message.ToolCalls {
		call := ToolCall{
			ID:   tc.ID,
			Type: string(tc.Type),
		}
		call.Function.Name = tc.Function.Name
		call.Function.Arguments = tc.Function.Arguments
		result.ToolCalls = append(result.ToolCalls, call)
	}

	// The forced function call carries the structured value in its
	// arguments. Missing or malformed arguments are a null outcome.
	if structured {
		args := ""
		for _, tc := range result.ToolCalls {
			if tc.Function.Name == structuredOutputToolName {
				args = tc.Function.Arguments
				break
			}
		}
		if args == "" {
			args = choice.Message.Content
		}
		parsed, perr := parseStructuredJSON(args)
		if perr != nil {
			result.Success = false
			result.ErrorType = ErrorTypeParse
			result.ErrorMessage = fmt.Sprintf("failed to parse structured response: %v", perr)
			return result, nil
		}
		result.ParsedJSON = parsed
		result.Content = string(parsed)
	}

	return result, nil
}

func refusalMessage(refusal string) string {
	if refusal == "" {
		return "response stopped by content filter"
	}
	return refusal
}

// isOpenAIContentPolicy reports whether an SDK error is a moderation
// rejection rather than a transport or request failure.
func isOpenAIContentPolicy(err error) bool {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		if apierr.StatusCode == http.StatusForbidden {
			return true
		}
		lower := strings.ToLower(apierr.Error())
		return strings.Contains(lower, "content_policy") ||
			strings.Contains(lower, "content management policy")
	}
	return false
}

// Verify interface
var _ LLMClient = (*OpenAIClient)(nil)
