// Package llm is the Criteria Compiler's model-invocation backend. It
// defines the narrow Client interface the Compiler depends
// on, plus a GenAIClient implementation backed by Google's Gemini API.
package llm

import "context"

// Client is the collaborator the Compiler calls to draft a criterion tree
// from free text. Implementations must honor ctx cancellation/timeout.
type Client interface {
	// Generate sends systemPrompt (schema + enums + few-shot examples) and
	// userPrompt (the criteria_text) to the model at the given temperature
	// and returns its raw text response. The Compiler is responsible for
	// extracting JSON from whatever prose wraps it.
	Generate(ctx context.Context, systemPrompt, userPrompt string, temperature float64) (string, error)
}
