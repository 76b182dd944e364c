package quality

import (
	"fmt"
	"strings"
	"sync"

	"stagehand/internal/logging"
	"stagehand/internal/types"
)

// structuralCap is the maximum score for output whose structure is missing
// or invalid, regardless of other checks.
const structuralCap = 20

// HeuristicCheck is a unit-specific scoring hook. It returns a score in
// [0,100] and any issues found.
type HeuristicCheck func(result *types.UnitResult) (float64, []string)

// Manifest declares the fields a stage's output is expected to carry.
type Manifest struct {
	ExpectedFields []string `yaml:"expected_fields"`
	MinOutputLen   int      `yaml:"min_output_len"`
}

// Engine scores stage outputs. Scores are computed once per stage attempt;
// retries are scored independently and only the latest result is used for
// gate evaluation.
type Engine struct {
	mu         sync.RWMutex
	manifests  map[string]Manifest
	heuristics map[string]HeuristicCheck
}

// NewEngine creates an engine with per-stage manifests.
func NewEngine(manifests map[string]Manifest) *Engine {
	if manifests == nil {
		manifests = make(map[string]Manifest)
	}
	return &Engine{
		manifests:  manifests,
		heuristics: make(map[string]HeuristicCheck),
	}
}

// RegisterHeuristic installs a unit-specific check for a stage.
func (e *Engine) RegisterHeuristic(stage string, check HeuristicCheck) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.heuristics[stage] = check
}

// Evaluate computes a 0-100 score for a stage output from structural
// validity, completeness against the stage manifest, and any registered
// heuristic check. Missing or invalid structure caps the score at 20.
func (e *Engine) Evaluate(result *types.UnitResult, stage string) Result {
	timer := logging.StartTimer(logging.CategoryQuality, fmt.Sprintf("evaluate %s", stage))
	defer timer.Stop()

	e.mu.RLock()
	manifest := e.manifests[stage]
	heuristic := e.heuristics[stage]
	e.mu.RUnlock()

	var issues []string
	var recommendations []string

	structureValid := result != nil && strings.TrimSpace(result.Output) != ""
	if !structureValid {
		issues = append(issues, "output is empty or missing")
		recommendations = append(recommendations, "regenerate the stage output")
		return Result{
			Status:          StatusFailed,
			Score:           0,
			Issues:          issues,
			Recommendations: recommendations,
			Severity:        SeverityHigh,
		}
	}
	if manifest.MinOutputLen > 0 && len(result.Output) < manifest.MinOutputLen {
		structureValid = false
		issues = append(issues, fmt.Sprintf("output shorter than %d characters", manifest.MinOutputLen))
		recommendations = append(recommendations, "expand the output to cover the task")
	}

	// Completeness against the manifest of expected fields.
	completeness := 1.0
	if len(manifest.ExpectedFields) > 0 {
		present := 0
		for _, field := range manifest.ExpectedFields {
			if _, ok := result.Fields[field]; ok {
				present++
				continue
			}
			issues = append(issues, fmt.Sprintf("missing expected field %q", field))
		}
		completeness = float64(present) / float64(len(manifest.ExpectedFields))
		if completeness < 1.0 {
			recommendations = append(recommendations, "populate all expected fields")
		}
	}

	heuristicScore := 100.0
	if heuristic != nil {
		var heuristicIssues []string
		heuristicScore, heuristicIssues = heuristic(result)
		issues = append(issues, heuristicIssues...)
	}

	// Structure 40 points, completeness 40, heuristics 20.
	score := 0.0
	if structureValid {
		score += 40
	}
	score += completeness * 40
	score += heuristicScore / 100 * 20

	if !structureValid && score > structuralCap {
		score = structuralCap
	}

	status := StatusPassed
	severity := SeverityLow
	switch {
	case !structureValid:
		status = StatusFailed
		severity = SeverityHigh
	case len(issues) > 0:
		status = StatusPartial
		severity = SeverityMedium
	}

	logging.QualityDebug("Stage %s scored %.1f (%s, %d issues)", stage, score, status, len(issues))
	return Result{
		Status:          status,
		Score:           score,
		Issues:          issues,
		Recommendations: recommendations,
		Severity:        severity,
	}
}
