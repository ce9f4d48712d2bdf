package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/scriptorium/folio/internal/providers"
)

type stubRenderer struct {
	image []byte
	err   error
	calls int
}

func (s *stubRenderer) RenderImage(ctx context.Context, url string, pageIndex int) ([]byte, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.image, nil
}

// newTestRunner wires a runner over a mock OCR provider and a single mock
// LLM client playing the given script.
func newTestRunner(t *testing.T, script ...providers.MockOutcome) (*Runner, *providers.MockLLMClient) {
	t.Helper()

	llm := providers.NewMockLLMClient("mock-llm", script...)
	registry := providers.NewRegistry()
	registry.RegisterLLM("mock-llm", llm)
	registry.RegisterOCR("mock-ocr", providers.NewMockOCRProvider())

	caller := providers.NewCaller(registry, "mock-llm", "", nil)
	renderer := &stubRenderer{image: []byte("png-bytes")}
	return NewRunner(renderer, registry, caller, "mock-ocr", nil), llm
}

// recordingClient captures every request it receives.
type recordingClient struct {
	*providers.MockLLMClient
	requests []*providers.ChatRequest
}

func (c *recordingClient) Chat(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResult, error) {
	c.requests = append(c.requests, req)
	return c.MockLLMClient.Chat(ctx, req)
}

func (c *recordingClient) ChatWithTools(ctx context.Context, req *providers.ChatRequest, tools []providers.Tool) (*providers.ChatResult, error) {
	c.requests = append(c.requests, req)
	return c.MockLLMClient.ChatWithTools(ctx, req, tools)
}

func TestProcessPageEveryStageCarriesImage(t *testing.T) {
	llm := &recordingClient{MockLLMClient: providers.NewMockLLMClient("mock-llm",
		providers.MockSuccess("corrected"),
		providers.MockSuccess("<p>corrected</p>"),
		providers.MockSuccessJSON(`{"header":"","body":"<p>corrected</p>","footnotes":"","pageNumber":null}`),
	)}
	registry := providers.NewRegistry()
	registry.RegisterLLM("mock-llm", llm)
	registry.RegisterOCR("mock-ocr", providers.NewMockOCRProvider())
	caller := providers.NewCaller(registry, "mock-llm", "", nil)
	runner := NewRunner(&stubRenderer{image: []byte("png-bytes")}, registry, caller, "mock-ocr", nil)

	res, err := runner.ProcessPage(context.Background(), "http://example.com/b.pdf", 0, "")
	if err != nil {
		t.Fatalf("ProcessPage() error = %v", err)
	}
	if !res.Complete() {
		t.Fatalf("result not complete: %+v", res)
	}
	if len(llm.requests) != 3 {
		t.Fatalf("requests = %d, want 3", len(llm.requests))
	}
	for i, req := range llm.requests {
		user := req.Messages[len(req.Messages)-1]
		if len(user.Images) != 1 || string(user.Images[0]) != "png-bytes" {
			t.Errorf("stage %d request does not carry the page image", i+1)
		}
	}
}

func TestProcessPageSegmentSchemaViolation(t *testing.T) {
	// JSON that decodes into the struct but violates the schema (missing a
	// required key) halts the chain as a null outcome.
	runner, _ := newTestRunner(t,
		providers.MockSuccess("corrected text"),
		providers.MockSuccess("<p>html</p>"),
		providers.MockSuccessJSON(`{"header":"","body":"<p>html</p>","footnotes":""}`),
	)

	res, err := runner.ProcessPage(context.Background(), "http://example.com/b.pdf", 0, "")
	if err != nil {
		t.Fatalf("ProcessPage() error = %v", err)
	}
	if res.FailedStage != StageSegment {
		t.Errorf("failed stage = %s, want segment", res.FailedStage)
	}
	if res.PartialText != "<p>html</p>" {
		t.Errorf("partial text = %q, want the htmlify output", res.PartialText)
	}
}

func TestProcessPageComplete(t *testing.T) {
	page := 7
	runner, llm := newTestRunner(t,
		providers.MockSuccess("corrected text"),
		providers.MockSuccess("<p>corrected text</p>"),
		providers.MockSuccessJSON(`{"header":"","body":"<p>corrected text</p>","footnotes":"","pageNumber":`+"42"+`}`),
	)

	res, err := runner.ProcessPage(context.Background(), "http://example.com/b.pdf", page, "")
	if err != nil {
		t.Fatalf("ProcessPage() error = %v", err)
	}
	if !res.Complete() {
		t.Fatalf("result not complete: %+v", res)
	}
	if res.Segments.Body != "<p>corrected text</p>" {
		t.Errorf("body = %q", res.Segments.Body)
	}
	if res.Segments.PageNumber == nil || *res.Segments.PageNumber != 42 {
		t.Errorf("page number = %v, want 42", res.Segments.PageNumber)
	}
	if llm.CallCount() != 3 {
		t.Errorf("llm calls = %d, want 3", llm.CallCount())
	}
}

func TestProcessPageHaltsAtHTMLify(t *testing.T) {
	// The chain stops at the first null outcome and keeps the corrected text.
	runner, llm := newTestRunner(t,
		providers.MockSuccess("corrected text"),
		providers.MockNull(providers.ErrorTypeContentPolicy),
	)

	res, err := runner.ProcessPage(context.Background(), "http://example.com/b.pdf", 0, "")
	if err != nil {
		t.Fatalf("ProcessPage() error = %v", err)
	}
	if res.Complete() {
		t.Fatal("result unexpectedly complete")
	}
	if res.FailedStage != StageHTMLify {
		t.Errorf("failed stage = %s, want htmlify", res.FailedStage)
	}
	if res.PartialText != "corrected text" {
		t.Errorf("partial text = %q, want corrected text", res.PartialText)
	}
	if !res.ContentPolicy {
		t.Error("content policy flag not set")
	}
	if llm.CallCount() != 2 {
		t.Errorf("llm calls = %d, want 2 (no segment call)", llm.CallCount())
	}
}

func TestProcessPageHaltsAtCorrect(t *testing.T) {
	runner, _ := newTestRunner(t, providers.MockNull(providers.ErrorTypeEmpty))

	res, err := runner.ProcessPage(context.Background(), "http://example.com/b.pdf", 3, "")
	if err != nil {
		t.Fatalf("ProcessPage() error = %v", err)
	}
	if res.FailedStage != StageCorrect {
		t.Errorf("failed stage = %s, want correct", res.FailedStage)
	}
	// Best-so-far text is the raw OCR output.
	if res.PartialText == "" {
		t.Error("partial text is empty, want raw OCR text")
	}
	if res.ContentPolicy {
		t.Error("content policy flag set for empty response")
	}
}

func TestProcessPageSegmentParseNull(t *testing.T) {
	// Malformed structured output is a null outcome, never an error.
	runner, _ := newTestRunner(t,
		providers.MockSuccess("corrected text"),
		providers.MockSuccess("<p>html</p>"),
		providers.MockNull(providers.ErrorTypeParse),
	)

	res, err := runner.ProcessPage(context.Background(), "http://example.com/b.pdf", 0, "")
	if err != nil {
		t.Fatalf("ProcessPage() error = %v", err)
	}
	if res.FailedStage != StageSegment {
		t.Errorf("failed stage = %s, want segment", res.FailedStage)
	}
	if res.PartialText != "<p>html</p>" {
		t.Errorf("partial text = %q, want the htmlify output", res.PartialText)
	}
}

func TestProcessPageSegmentWrongShape(t *testing.T) {
	// Structured JSON that does not match the schema shape also halts the
	// chain as a null outcome.
	runner, _ := newTestRunner(t,
		providers.MockSuccess("corrected text"),
		providers.MockSuccess("<p>html</p>"),
		providers.MockSuccessJSON(`{"header":1,"body":2}`),
	)

	res, err := runner.ProcessPage(context.Background(), "http://example.com/b.pdf", 0, "")
	if err != nil {
		t.Fatalf("ProcessPage() error = %v", err)
	}
	if res.FailedStage != StageSegment {
		t.Errorf("failed stage = %s, want segment", res.FailedStage)
	}
}

func TestProcessPageTransportError(t *testing.T) {
	runner, _ := newTestRunner(t, providers.MockTransportError("connection refused"))

	if _, err := runner.ProcessPage(context.Background(), "http://example.com/b.pdf", 0, ""); err == nil {
		t.Fatal("expected transport error")
	}
}

func TestProcessPageOCRFailureIsHard(t *testing.T) {
	llm := providers.NewMockLLMClient("mock-llm")
	registry := providers.NewRegistry()
	registry.RegisterLLM("mock-llm", llm)
	registry.RegisterOCR("mock-ocr", &providers.MockOCRProvider{
		ProviderName: "mock-ocr",
		ShouldFail:   true,
		RPS:          1000,
	})
	caller := providers.NewCaller(registry, "mock-llm", "", nil)
	runner := NewRunner(&stubRenderer{image: []byte("png")}, registry, caller, "mock-ocr", nil)

	if _, err := runner.ProcessPage(context.Background(), "http://example.com/b.pdf", 0, ""); err == nil {
		t.Fatal("expected OCR failure to be a hard error")
	}
	if llm.CallCount() != 0 {
		t.Errorf("llm called %d times after OCR failure, want 0", llm.CallCount())
	}
}

func TestProcessPageRenderFailureIsHard(t *testing.T) {
	runner, llm := newTestRunner(t)
	runner.renderer = &stubRenderer{err: errors.New("pdftoppm exited 1")}

	if _, err := runner.ProcessPage(context.Background(), "http://example.com/b.pdf", 0, ""); err == nil {
		t.Fatal("expected render failure to be a hard error")
	}
	if llm.CallCount() != 0 {
		t.Errorf("llm calls = %d, want 0", llm.CallCount())
	}
}

func TestProcessPagePinnedProvider(t *testing.T) {
	// A pinned request must only ever touch the pinned provider.
	def := providers.NewMockLLMClient("default-llm", providers.MockNull(providers.ErrorTypeContentPolicy))
	alt := providers.NewMockLLMClient("alt-llm",
		providers.MockSuccess("corrected"),
		providers.MockSuccess("<p>corrected</p>"),
		providers.MockSuccessJSON(`{"header":"","body":"<p>corrected</p>","footnotes":"","pageNumber":null}`),
	)
	registry := providers.NewRegistry()
	registry.RegisterLLM("default-llm", def)
	registry.RegisterLLM("alt-llm", alt)
	registry.RegisterOCR("mock-ocr", providers.NewMockOCRProvider())
	caller := providers.NewCaller(registry, "default-llm", "alt-llm", nil)
	runner := NewRunner(&stubRenderer{image: []byte("png")}, registry, caller, "mock-ocr", nil)

	res, err := runner.ProcessPage(context.Background(), "http://example.com/b.pdf", 0, "alt-llm")
	if err != nil {
		t.Fatalf("ProcessPage() error = %v", err)
	}
	if !res.Complete() {
		t.Fatalf("result not complete: %+v", res)
	}
	if def.CallCount() != 0 {
		t.Errorf("default provider called %d times on pinned request, want 0", def.CallCount())
	}
	if alt.CallCount() != 3 {
		t.Errorf("pinned provider calls = %d, want 3", alt.CallCount())
	}
}
