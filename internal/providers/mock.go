package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

const MockClientName = "mock"

// MockOutcome is one scripted response from a MockLLMClient.
type MockOutcome struct {
	Result *ChatResult
	Err    error
}

// MockSuccess scripts a successful text response.
func MockSuccess(content string) MockOutcome {
	return MockOutcome{Result: &ChatResult{
		Success:  true,
		Content:  content,
		Provider: MockClientName,
	}}
}

// MockSuccessJSON scripts a successful structured response.
func MockSuccessJSON(raw string) MockOutcome {
	return MockOutcome{Result: &ChatResult{
		Success:    true,
		Content:    raw,
		ParsedJSON: json.RawMessage(raw),
		Provider:   MockClientName,
	}}
}

// MockNull scripts a null outcome with the given error type.
func MockNull(errorType string) MockOutcome {
	return MockOutcome{Result: &ChatResult{
		Success:   false,
		ErrorType: errorType,
		Provider:  MockClientName,
	}}
}

// MockTransportError scripts a transport failure.
func MockTransportError(msg string) MockOutcome {
	return MockOutcome{
		Result: &ChatResult{
			Success:      false,
			ErrorType:    "http_error",
			ErrorMessage: msg,
			Provider:     MockClientName,
		},
		Err: fmt.Errorf("%s", msg),
	}
}

// MockLLMClient is an LLMClient for testing. Responses are consumed from
// Script in order; when the script is exhausted the last outcome repeats.
// An empty script yields successful text responses.
type MockLLMClient struct {
	ClientName   string
	RPS          float64
	ResponseText string
	Script       []MockOutcome

	mu    sync.Mutex
	calls int
}

// NewMockLLMClient creates a mock client with sensible defaults.
func NewMockLLMClient(name string, script ...MockOutcome) *MockLLMClient {
	if name == "" {
		name = MockClientName
	}
	return &MockLLMClient{
		ClientName:   name,
		RPS:          1000,
		ResponseText: "mock response",
		Script:       script,
	}
}

// Name returns the client identifier.
func (c *MockLLMClient) Name() string {
	return c.ClientName
}

// RequestsPerSecond returns the RPS limit for rate limiting.
func (c *MockLLMClient) RequestsPerSecond() float64 {
	return c.RPS
}

// Chat sends a mock chat request.
func (c *MockLLMClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	return c.next(ctx, req)
}

// ChatWithTools sends a mock chat request with tools.
func (c *MockLLMClient) ChatWithTools(ctx context.Context, req *ChatRequest, tools []Tool) (*ChatResult, error) {
	return c.next(ctx, req)
}

func (c *MockLLMClient) next(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	idx := c.calls
	c.calls++
	script := c.Script
	c.mu.Unlock()

	if len(script) == 0 {
		res := &ChatResult{
			Success:   true,
			Content:   c.ResponseText,
			Provider:  c.ClientName,
			ModelUsed: req.Model,
			RequestID: fmt.Sprintf("%s-%d", c.ClientName, idx),
			Attempts:  1,
		}
		return res, nil
	}

	if idx >= len(script) {
		idx = len(script) - 1
	}
	out := script[idx]

	// Copy so callers cannot mutate the script.
	if out.Result == nil {
		return nil, out.Err
	}
	res := *out.Result
	if res.Provider == "" || res.Provider == MockClientName {
		res.Provider = c.ClientName
	}
	return &res, out.Err
}

// CallCount returns the number of requests made.
func (c *MockLLMClient) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Reset resets the request counter.
func (c *MockLLMClient) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = 0
}

// Verify interface
var _ LLMClient = (*MockLLMClient)(nil)

// MockOCRProvider is an OCRProvider for testing.
type MockOCRProvider struct {
	ProviderName string
	Latency      time.Duration
	ShouldFail   bool
	ResponseText string
	RPS          float64

	mu    sync.Mutex
	calls int
}

// NewMockOCRProvider creates a new mock OCR provider.
func NewMockOCRProvider() *MockOCRProvider {
	return &MockOCRProvider{
		ProviderName: "mock-ocr",
		ResponseText: "mock OCR text",
		RPS:          1000,
	}
}

// Name returns the provider identifier.
func (p *MockOCRProvider) Name() string {
	return p.ProviderName
}

// RequestsPerSecond returns the rate limit.
func (p *MockOCRProvider) RequestsPerSecond() float64 {
	return p.RPS
}

// ProcessImage extracts text from an image.
func (p *MockOCRProvider) ProcessImage(ctx context.Context, image []byte, pageNum int) (*OCRResult, error) {
	start := time.Now()

	p.mu.Lock()
	p.calls++
	p.mu.Unlock()

	if p.ShouldFail {
		return &OCRResult{
			Success:       false,
			ErrorMessage:  "mock OCR provider configured to fail",
			ExecutionTime: time.Since(start),
		}, fmt.Errorf("mock OCR provider configured to fail")
	}

	if p.Latency > 0 {
		select {
		case <-time.After(p.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return &OCRResult{
		Success:       true,
		Text:          fmt.Sprintf("Page %d: %s", pageNum, p.ResponseText),
		ExecutionTime: time.Since(start),
		Metadata: map[string]any{
			"page_num":    pageNum,
			"image_bytes": len(image),
		},
	}, nil
}

// CallCount returns the number of requests made.
func (p *MockOCRProvider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Verify interface
var _ OCRProvider = (*MockOCRProvider)(nil)
