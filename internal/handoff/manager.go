package handoff

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"stagehand/internal/logging"
	"stagehand/internal/types"
)

const (
	// DefaultMinScore is the compatibility floor below which a request
	// is rejected as a poor fit for the target unit.
	DefaultMinScore = 0.3

	// DefaultTTL bounds how long a request may sit pending before it
	// expires without execution.
	DefaultTTL = 10 * time.Minute

	exactMatchWeight = 1.0
	stemMatchWeight  = 0.5
	minStemLen       = 4
)

// UnitDirectory is the view of the unit registry the manager needs.
type UnitDirectory interface {
	Units() []types.CapabilityUnit
	Get(id string) (types.CapabilityUnit, bool)
	Enabled(id string) bool
}

// Manager validates, scores, and executes handoff requests.
type Manager struct {
	directory UnitDirectory
	minScore  float64
	ttl       time.Duration
	now       func() time.Time
}

// NewManager creates a manager over the given unit directory.
func NewManager(directory UnitDirectory) *Manager {
	return &Manager{
		directory: directory,
		minScore:  DefaultMinScore,
		ttl:       DefaultTTL,
		now:       time.Now,
	}
}

// SetMinScore overrides the compatibility floor.
func (m *Manager) SetMinScore(min float64) { m.minScore = min }

// SetTTL overrides the pending-request lifetime.
func (m *Manager) SetTTL(ttl time.Duration) { m.ttl = ttl }

// Validate checks a request against the target unit: the unit must exist
// and be enabled, its required inputs must all appear in the payload, and
// the task description must score at least the configured minimum against
// the unit's capability keywords. Rejections carry ranked alternatives.
func (m *Manager) Validate(req *Request) ValidationResult {
	if req.FromUnit == req.ToUnit {
		return m.reject(req, "no-op handoff")
	}

	target, ok := m.directory.Get(req.ToUnit)
	if !ok {
		return m.reject(req, fmt.Sprintf("unknown unit %q", req.ToUnit))
	}
	if !m.directory.Enabled(req.ToUnit) {
		return m.reject(req, fmt.Sprintf("unit %q is disabled", req.ToUnit))
	}

	for _, input := range target.RequiredInputs() {
		if _, present := req.Payload[input]; !present {
			return m.reject(req, "missing required inputs")
		}
	}

	score := CompatibilityScore(req.TaskDescription, target.DeclaredCapabilities())
	if score < m.minScore {
		return m.reject(req, fmt.Sprintf("compatibility score %.2f below minimum %.2f", score, m.minScore))
	}

	req.Status = StatusValidated
	return ValidationResult{IsValid: true}
}

func (m *Manager) reject(req *Request, reason string) ValidationResult {
	req.Status = StatusRejected
	req.Reason = reason
	return ValidationResult{
		IsValid:               false,
		Reason:                reason,
		SuggestedAlternatives: m.SuggestAlternatives(req.TaskDescription, []string{req.FromUnit, req.ToUnit}, 3),
	}
}

// SuggestAlternatives scores every enabled unit not in exclude against the
// task description and returns up to n candidates, sorted by descending
// score with ties broken by unit declaration order. n <= 0 returns all.
func (m *Manager) SuggestAlternatives(task string, exclude []string, n int) []Alternative {
	excluded := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}

	var alts []Alternative
	for _, unit := range m.directory.Units() {
		id := unit.ID()
		if excluded[id] || !m.directory.Enabled(id) {
			continue
		}
		alts = append(alts, Alternative{
			UnitID: id,
			Score:  CompatibilityScore(task, unit.DeclaredCapabilities()),
		})
	}

	sort.SliceStable(alts, func(i, j int) bool { return alts[i].Score > alts[j].Score })
	if n > 0 && len(alts) > n {
		alts = alts[:n]
	}
	return alts
}

// Execute turns a validated request into an executed decision carrying
// the stage move and payload artifacts. It fails on any other status.
func (m *Manager) Execute(req *Request) (*Decision, error) {
	if req.Status != StatusValidated {
		return nil, fmt.Errorf("cannot execute handoff %s in status %s", req.ID, req.Status)
	}

	req.Status = StatusExecuted
	req.CompletedAt = m.now()
	logging.Handoff("Handoff %s: %s -> %s", req.ID, req.FromUnit, req.ToUnit)

	return &Decision{
		Request:   req,
		Action:    ActionExecuted,
		NextStage: req.ToUnit,
		Artifacts: req.Payload,
	}, nil
}

// ProcessQueue drains pending requests in priority order, highest first
// and FIFO among equals. Requests older than the TTL expire without
// execution; rejected requests keep their reason and are not retried.
func (m *Manager) ProcessQueue(queue []*Request) []Decision {
	ordered := make([]*Request, len(queue))
	copy(ordered, queue)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority > ordered[j].Priority })

	now := m.now()
	decisions := make([]Decision, 0, len(ordered))
	for _, req := range ordered {
		if now.Sub(req.CreatedAt) > m.ttl {
			req.Status = StatusExpired
			req.CompletedAt = now
			decisions = append(decisions, Decision{Request: req, Action: ActionExpired, Reason: "request expired"})
			continue
		}

		vr := m.Validate(req)
		if !vr.IsValid {
			logging.Handoff("Handoff %s rejected: %s", req.ID, vr.Reason)
			decisions = append(decisions, Decision{
				Request:      req,
				Action:       ActionRejected,
				Reason:       vr.Reason,
				Alternatives: vr.SuggestedAlternatives,
			})
			continue
		}

		dec, err := m.Execute(req)
		if err != nil {
			decisions = append(decisions, Decision{Request: req, Action: ActionRejected, Reason: err.Error()})
			continue
		}
		decisions = append(decisions, *dec)
	}
	return decisions
}

// CompatibilityScore measures how well a task description fits a unit's
// capability keywords. Each task token contributes its best match weight
// (1.0 exact, 0.5 shared stem); the sum is normalized by the number of
// task tokens and capped at 1.0.
func CompatibilityScore(task string, keywords []string) float64 {
	tokens := tokenize(task)
	if len(tokens) == 0 || len(keywords) == 0 {
		return 0
	}

	lowered := make([]string, len(keywords))
	for i, kw := range keywords {
		lowered[i] = strings.ToLower(kw)
	}

	var total float64
	for _, tok := range tokens {
		best := 0.0
		for _, kw := range lowered {
			switch {
			case tok == kw:
				best = exactMatchWeight
			case best < stemMatchWeight && sharesStem(tok, kw):
				best = stemMatchWeight
			}
			if best == exactMatchWeight {
				break
			}
		}
		total += best
	}

	score := total / float64(len(tokens))
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// sharesStem reports whether one word is a prefix of the other, with the
// shorter word long enough to be a meaningful stem.
func sharesStem(a, b string) bool {
	short, long := a, b
	if len(short) > len(long) {
		short, long = long, short
	}
	return len(short) >= minStemLen && strings.HasPrefix(long, short)
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "for": true, "in": true,
	"is": true, "it": true, "of": true, "on": true, "or": true,
	"that": true, "the": true, "this": true, "to": true, "with": true,
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := fields[:0]
	for _, f := range fields {
		if len(f) >= 2 && !stopwords[f] {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
