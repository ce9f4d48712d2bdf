package providers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Caller routes chat requests through the registry with single-step
// fallback. A pinned request goes to exactly that provider and never falls
// back. An unpinned request goes to the default provider; if the default
// returns a null outcome, the alternate is tried exactly once. Transport
// errors propagate to the caller without fallback so the job layer can
// retry the whole page.
type Caller struct {
	registry      *Registry
	defaultName   string
	alternateName string
	logger        *slog.Logger

	mu       sync.Mutex
	limiters map[string]*RateLimiter
}

// NewCaller creates a caller over the registry.
func NewCaller(registry *Registry, defaultName, alternateName string, logger *slog.Logger) *Caller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Caller{
		registry:      registry,
		defaultName:   defaultName,
		alternateName: alternateName,
		logger:        logger,
		limiters:      make(map[string]*RateLimiter),
	}
}

// Invoke sends the request. pinned selects a single provider with no
// fallback; empty pinned uses the default/alternate chain.
func (c *Caller) Invoke(ctx context.Context, req *ChatRequest, pinned string) (*ChatResult, error) {
	if pinned != "" {
		return c.call(ctx, pinned, req)
	}

	res, err := c.call(ctx, c.defaultName, req)
	if err != nil {
		return res, err
	}
	if !res.Null() {
		return res, nil
	}

	if c.alternateName == "" || c.alternateName == c.defaultName {
		return res, nil
	}

	c.logger.Info("provider returned null outcome, trying alternate",
		"default", c.defaultName,
		"alternate", c.alternateName,
		"error_type", res.ErrorType)

	altRes, err := c.call(ctx, c.alternateName, req)
	if err != nil {
		return altRes, err
	}
	return altRes, nil
}

func (c *Caller) call(ctx context.Context, name string, req *ChatRequest) (*ChatResult, error) {
	client, err := c.registry.GetLLM(name)
	if err != nil {
		return nil, fmt.Errorf("provider %q unavailable: %w", name, err)
	}

	if err := c.limiterFor(client).Wait(ctx); err != nil {
		return nil, err
	}

	return client.Chat(ctx, req)
}

// limiterFor returns the per-provider rate limiter, creating it on first use.
func (c *Caller) limiterFor(client LLMClient) *RateLimiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	name := client.Name()
	if l, ok := c.limiters[name]; ok {
		return l
	}
	l := NewRateLimiter(client.RequestsPerSecond())
	c.limiters[name] = l
	return l
}
