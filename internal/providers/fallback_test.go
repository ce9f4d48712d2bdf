package providers

import (
	"context"
	"testing"
)

func newTestCaller(def, alt *MockLLMClient) *Caller {
	r := NewRegistry()
	r.RegisterLLM(def.ClientName, def)
	if alt != nil {
		r.RegisterLLM(alt.ClientName, alt)
	}
	altName := ""
	if alt != nil {
		altName = alt.ClientName
	}
	return NewCaller(r, def.ClientName, altName, nil)
}

func TestCallerDefaultSuccess(t *testing.T) {
	def := NewMockLLMClient("primary", MockSuccess("hello"))
	alt := NewMockLLMClient("secondary", MockSuccess("unused"))
	caller := newTestCaller(def, alt)

	res, err := caller.Invoke(context.Background(), &ChatRequest{}, "")
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if !res.Success || res.Content != "hello" {
		t.Errorf("got %+v, want success from primary", res)
	}
	if alt.CallCount() != 0 {
		t.Errorf("alternate called %d times, want 0", alt.CallCount())
	}
}

func TestCallerFallsBackOnceOnNull(t *testing.T) {
	def := NewMockLLMClient("primary", MockNull(ErrorTypeContentPolicy))
	alt := NewMockLLMClient("secondary", MockSuccess("recovered"))
	caller := newTestCaller(def, alt)

	res, err := caller.Invoke(context.Background(), &ChatRequest{}, "")
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if !res.Success || res.Content != "recovered" {
		t.Errorf("got %+v, want alternate success", res)
	}
	if def.CallCount() != 1 {
		t.Errorf("default called %d times, want 1", def.CallCount())
	}
	if alt.CallCount() != 1 {
		t.Errorf("alternate called %d times, want 1", alt.CallCount())
	}
}

func TestCallerBothNull(t *testing.T) {
	def := NewMockLLMClient("primary", MockNull(ErrorTypeParse))
	alt := NewMockLLMClient("secondary", MockNull(ErrorTypeContentPolicy))
	caller := newTestCaller(def, alt)

	res, err := caller.Invoke(context.Background(), &ChatRequest{}, "")
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if !res.Null() {
		t.Errorf("got %+v, want null outcome", res)
	}
	// Never more than one fallback.
	if alt.CallCount() != 1 {
		t.Errorf("alternate called %d times, want 1", alt.CallCount())
	}
}

func TestCallerPinnedNeverFallsBack(t *testing.T) {
	def := NewMockLLMClient("primary", MockSuccess("unused"))
	alt := NewMockLLMClient("secondary", MockNull(ErrorTypeContentPolicy))
	caller := newTestCaller(def, alt)

	res, err := caller.Invoke(context.Background(), &ChatRequest{}, "secondary")
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if !res.Null() {
		t.Errorf("got %+v, want pinned provider's null outcome", res)
	}
	if def.CallCount() != 0 {
		t.Errorf("default called %d times, want 0 for pinned request", def.CallCount())
	}
	if alt.CallCount() != 1 {
		t.Errorf("pinned provider called %d times, want 1", alt.CallCount())
	}
}

func TestCallerTransportErrorDoesNotFallBack(t *testing.T) {
	def := NewMockLLMClient("primary", MockTransportError("connection reset"))
	alt := NewMockLLMClient("secondary", MockSuccess("unused"))
	caller := newTestCaller(def, alt)

	_, err := caller.Invoke(context.Background(), &ChatRequest{}, "")
	if err == nil {
		t.Fatal("Invoke() error = nil, want transport error")
	}
	if alt.CallCount() != 0 {
		t.Errorf("alternate called %d times, want 0 on transport error", alt.CallCount())
	}
}

func TestCallerUnknownPinnedProvider(t *testing.T) {
	def := NewMockLLMClient("primary", MockSuccess("unused"))
	caller := newTestCaller(def, nil)

	_, err := caller.Invoke(context.Background(), &ChatRequest{}, "missing")
	if err == nil {
		t.Fatal("Invoke() error = nil, want unknown provider error")
	}
}

func TestChatResultNull(t *testing.T) {
	tests := []struct {
		name   string
		result *ChatResult
		want   bool
	}{
		{"nil", nil, false},
		{"success", &ChatResult{Success: true}, false},
		{"content policy", &ChatResult{ErrorType: ErrorTypeContentPolicy}, true},
		{"parse failure", &ChatResult{ErrorType: ErrorTypeParse}, true},
		{"empty response", &ChatResult{ErrorType: ErrorTypeEmpty}, true},
		{"http error", &ChatResult{ErrorType: "http_error"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.result.Null(); got != tt.want {
				t.Errorf("Null() = %v, want %v", got, tt.want)
			}
		})
	}
}
