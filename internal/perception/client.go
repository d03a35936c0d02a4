// Package perception provides the narrow LLM capability the engine depends
// on. Classification and enrichment see only LLMClient; deterministic stubs
// substitute for it in tests without touching orchestration logic.
package perception

import (
	"context"
	"fmt"
)

// LLMClient defines the interface for LLM providers.
// Implementations make exactly one provider call per invocation; all retry
// and timeout behavior belongs to the transport, not to callers.
type LLMClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// InvocationError wraps a transport or provider failure. Callers treat it
// as non-fatal: the affected step records a failure and the batch goes on.
type InvocationError struct {
	Provider string
	Err      error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("llm invocation via %s failed: %v", e.Provider, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }
