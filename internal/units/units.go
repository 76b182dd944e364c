package units

import (
	"context"
	"fmt"
	"strings"
	"time"

	"stagehand/internal/logging"
	"stagehand/internal/types"
)

// baseUnit carries the declaration shared by the built-in units.
type baseUnit struct {
	id           string
	capabilities []string
	requires     []string
	client       types.GenerationClient
}

func (u *baseUnit) ID() string                     { return u.id }
func (u *baseUnit) DeclaredCapabilities() []string { return u.capabilities }
func (u *baseUnit) RequiredInputs() []string       { return u.requires }

func (u *baseUnit) artifactBlock(uc types.UnitContext) string {
	if len(uc.Artifacts) == 0 {
		return ""
	}
	var sb strings.Builder
	for kind, content := range uc.Artifacts {
		fmt.Fprintf(&sb, "\n--- %s ---\n%s\n", kind, content)
	}
	return sb.String()
}

// GeneratorUnit produces the primary artifact for a task.
type GeneratorUnit struct {
	baseUnit
	store types.ContextStore
}

// NewGeneratorUnit creates the generation unit. store may be nil.
func NewGeneratorUnit(client types.GenerationClient, store types.ContextStore) *GeneratorUnit {
	return &GeneratorUnit{
		baseUnit: baseUnit{
			id:           "generate",
			capabilities: []string{"generate", "create", "draft", "write", "implement"},
			requires:     []string{"task"},
			client:       client,
		},
		store: store,
	}
}

// Invoke generates output for the task, seeding the prompt with prior
// artifacts from the context store when available.
func (u *GeneratorUnit) Invoke(ctx context.Context, uc types.UnitContext) (*types.UnitResult, error) {
	var prior string
	if u.store != nil {
		artifacts, err := u.store.Search(ctx, uc.Task, 3)
		if err != nil {
			logging.UnitsDebug("Context search failed for %s, generating cold: %v", uc.Stage, err)
		}
		for _, a := range artifacts {
			prior += fmt.Sprintf("\n[prior %s]\n%s\n", a.Kind, a.Content)
		}
	}

	prompt := fmt.Sprintf(`Task: %s
%s%s
Produce the requested artifact. Output only the artifact content.`, uc.Task, u.artifactBlock(uc), prior)

	output, err := u.client.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate stage: %w", err)
	}

	if u.store != nil {
		_, saveErr := u.store.Save(ctx, types.Artifact{
			Kind:      "generated",
			Content:   output,
			Tier:      types.TierNormal,
			UpdatedAt: time.Now(),
		})
		if saveErr != nil {
			logging.UnitsDebug("Failed to save generated artifact: %v", saveErr)
		}
	}

	return &types.UnitResult{
		Output:    output,
		Artifacts: map[string]string{"draft": output},
		Tier:      types.TierNormal,
	}, nil
}

// ReviewerUnit reviews an artifact and reports a verdict.
type ReviewerUnit struct {
	baseUnit
}

// NewReviewerUnit creates the review unit.
func NewReviewerUnit(client types.GenerationClient) *ReviewerUnit {
	return &ReviewerUnit{
		baseUnit: baseUnit{
			id:           "review",
			capabilities: []string{"review", "critique", "security", "audit", "verify"},
			requires:     []string{"draft"},
			client:       client,
		},
	}
}

// Invoke reviews the draft artifact. The result carries verdict and
// findings fields for the quality engine's completeness check.
func (u *ReviewerUnit) Invoke(ctx context.Context, uc types.UnitContext) (*types.UnitResult, error) {
	system := "You are a meticulous reviewer. Respond with VERDICT: pass|fail on the first line, then findings."
	prompt := fmt.Sprintf("Review the following artifact for task %q.%s", uc.Task, u.artifactBlock(uc))

	output, err := u.client.CompleteWithSystem(ctx, system, prompt)
	if err != nil {
		return nil, fmt.Errorf("review stage: %w", err)
	}

	verdict, findings := splitVerdict(output)
	return &types.UnitResult{
		Output: output,
		Fields: map[string]string{
			"verdict":  verdict,
			"findings": findings,
		},
		Artifacts: map[string]string{"review": output},
		Tier:      types.TierNormal,
	}, nil
}

// splitVerdict parses a "VERDICT: x" first line; everything after is findings.
func splitVerdict(output string) (verdict, findings string) {
	verdict = "unknown"
	lines := strings.SplitN(strings.TrimSpace(output), "\n", 2)
	first := strings.ToLower(strings.TrimSpace(lines[0]))
	if after, ok := strings.CutPrefix(first, "verdict:"); ok {
		verdict = strings.TrimSpace(after)
	}
	if len(lines) > 1 {
		findings = strings.TrimSpace(lines[1])
	}
	return verdict, findings
}

// ResearcherUnit gathers background context for a task.
type ResearcherUnit struct {
	baseUnit
	store types.ContextStore
}

// NewResearcherUnit creates the research unit. store may be nil.
func NewResearcherUnit(client types.GenerationClient, store types.ContextStore) *ResearcherUnit {
	return &ResearcherUnit{
		baseUnit: baseUnit{
			id:           "research",
			capabilities: []string{"research", "investigate", "analyze", "explore"},
			requires:     []string{"task"},
			client:       client,
		},
		store: store,
	}
}

// Invoke summarizes what is known about the task from the context store,
// then asks the generation client to fill gaps.
func (u *ResearcherUnit) Invoke(ctx context.Context, uc types.UnitContext) (*types.UnitResult, error) {
	var known strings.Builder
	if u.store != nil {
		artifacts, err := u.store.Search(ctx, uc.Task, 5)
		if err == nil {
			for _, a := range artifacts {
				fmt.Fprintf(&known, "\n[%s] %s\n", a.Kind, a.Content)
			}
		}
	}

	prompt := fmt.Sprintf(`Research task: %s

Known material:%s

Summarize the relevant background and list open questions.`, uc.Task, known.String())

	output, err := u.client.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("research stage: %w", err)
	}

	return &types.UnitResult{
		Output:    output,
		Artifacts: map[string]string{"research": output},
		Tier:      types.TierNormal,
	}, nil
}

// DocumenterUnit writes documentation for a completed artifact.
type DocumenterUnit struct {
	baseUnit
}

// NewDocumenterUnit creates the documentation unit.
func NewDocumenterUnit(client types.GenerationClient) *DocumenterUnit {
	return &DocumenterUnit{
		baseUnit: baseUnit{
			id:           "document",
			capabilities: []string{"document", "describe", "explain", "summarize"},
			requires:     []string{"draft"},
			client:       client,
		},
	}
}

// Invoke documents the draft artifact.
func (u *DocumenterUnit) Invoke(ctx context.Context, uc types.UnitContext) (*types.UnitResult, error) {
	prompt := fmt.Sprintf("Write concise documentation for the artifact produced by task %q.%s",
		uc.Task, u.artifactBlock(uc))

	output, err := u.client.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("document stage: %w", err)
	}

	return &types.UnitResult{
		Output:    output,
		Artifacts: map[string]string{"docs": output},
		Tier:      types.TierNormal,
	}, nil
}

// RegisterBuiltins registers the standard unit set in pipeline order:
// research, generate, review, document.
func RegisterBuiltins(r *Registry, client types.GenerationClient, store types.ContextStore) error {
	all := []types.CapabilityUnit{
		NewResearcherUnit(client, store),
		NewGeneratorUnit(client, store),
		NewReviewerUnit(client),
		NewDocumenterUnit(client),
	}
	for _, unit := range all {
		if err := r.Register(unit); err != nil {
			return err
		}
	}
	return nil
}
