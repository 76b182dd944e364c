// Package handoff validates and routes requests to reassign the current
// task to a different capability unit. The manager owns each request from
// creation to terminal status; workflow state only references them.
package handoff

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a handoff request.
type Status string

const (
	StatusPending   Status = "pending"
	StatusValidated Status = "validated"
	StatusRejected  Status = "rejected"
	StatusExecuted  Status = "executed"
	StatusExpired   Status = "expired"
)

// Request asks to move the current task from one unit to another.
type Request struct {
	ID              string            `json:"id"`
	FromUnit        string            `json:"from_unit"`
	ToUnit          string            `json:"to_unit"`
	TaskDescription string            `json:"task_description"`
	Payload         map[string]string `json:"payload,omitempty"`
	Priority        int               `json:"priority"`
	Status          Status            `json:"status"`
	Reason          string            `json:"reason,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	CompletedAt     time.Time         `json:"completed_at,omitempty"`
}

// NewRequest builds a pending request with a fresh ID.
func NewRequest(from, to, task string, payload map[string]string, priority int) *Request {
	return &Request{
		ID:              uuid.New().String(),
		FromUnit:        from,
		ToUnit:          to,
		TaskDescription: task,
		Payload:         payload,
		Priority:        priority,
		Status:          StatusPending,
		CreatedAt:       time.Now(),
	}
}

// Clone returns a copy that shares nothing with the receiver.
func (r *Request) Clone() *Request {
	cp := *r
	if r.Payload != nil {
		cp.Payload = make(map[string]string, len(r.Payload))
		for k, v := range r.Payload {
			cp.Payload[k] = v
		}
	}
	return &cp
}

// Alternative is a candidate unit with its compatibility score.
type Alternative struct {
	UnitID string  `json:"unit_id"`
	Score  float64 `json:"score"`
}

// ValidationResult reports whether a request may execute and, when it may
// not, which units would have been a better fit.
type ValidationResult struct {
	IsValid               bool          `json:"is_valid"`
	Reason                string        `json:"reason,omitempty"`
	SuggestedAlternatives []Alternative `json:"suggested_alternatives,omitempty"`
}

// Action is the outcome of processing a request.
type Action string

const (
	ActionExecuted Action = "executed"
	ActionRejected Action = "rejected"
	ActionExpired  Action = "expired"
)

// Decision records the outcome of one request. Executed decisions carry
// the stage move and artifact updates for the orchestrator to apply; the
// manager itself never mutates workflow state.
type Decision struct {
	Request      *Request          `json:"request"`
	Action       Action            `json:"action"`
	Reason       string            `json:"reason,omitempty"`
	NextStage    string            `json:"next_stage,omitempty"`
	Artifacts    map[string]string `json:"artifacts,omitempty"`
	Alternatives []Alternative     `json:"alternatives,omitempty"`
}
