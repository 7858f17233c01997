package agent

import (
	"context"
	"iter"
)

// Processor defines the interface for generative model calls.
// This interface is implemented by the Gemini client and the Service decorator.
type Processor interface {
	// AnalyzeImage describes an image for a clinical reader.
	AnalyzeImage(ctx context.Context, req ImageRequest) (string, error)

	// Diagnose returns the raw JSON text of a structured differential diagnosis.
	Diagnose(ctx context.Context, prompt string) (string, error)

	// ManagementPlan returns search-grounded guideline text plus citations.
	ManagementPlan(ctx context.Context, prompt string) (*PlanResult, error)

	// StartChat opens a conversation seeded with a system instruction.
	StartChat(ctx context.Context, systemInstruction string) (ChatSession, error)

	// Close releases resources
	Close()
}

// ChatSession is an open multi-turn conversation with the model.
type ChatSession interface {
	// SendStream sends one user message and yields response text fragments in order.
	SendStream(ctx context.Context, message string) iter.Seq2[string, error]
}

// Ensure GeminiClient and Service implement Processor.
var (
	_ Processor = (*GeminiClient)(nil)
	_ Processor = (*Service)(nil)
)
