package types

import (
	"context"
)

// CapabilityUnit is a pluggable component performing one workflow stage.
// Concrete units are registered in a units.Registry keyed by stage ID;
// dispatch is by registry lookup, not a type hierarchy.
type CapabilityUnit interface {
	// ID returns the stable stage identifier for this unit.
	ID() string
	// Invoke performs the unit's work for one stage attempt.
	Invoke(ctx context.Context, uc UnitContext) (*UnitResult, error)
	// DeclaredCapabilities returns the capability keywords used for
	// handoff compatibility scoring.
	DeclaredCapabilities() []string
	// RequiredInputs returns the artifact kinds this unit needs present
	// before it can run.
	RequiredInputs() []string
}

// GenerationClient defines the interface for text generation providers.
// Implementations must honor ctx cancellation and deadline.
type GenerationClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// ContextStore stores and retrieves prior artifacts for units to build on.
type ContextStore interface {
	// Search returns up to k artifacts ranked by relevance to query.
	Search(ctx context.Context, query string, k int) ([]Artifact, error)
	// Save stores an artifact and returns its assigned ID.
	Save(ctx context.Context, artifact Artifact) (string, error)
}
