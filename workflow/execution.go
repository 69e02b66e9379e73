package workflow

import (
	"maps"
	"time"
)

// Status is the lifecycle state of an execution.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// StepStatus is the lifecycle state of a step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepCancelled StepStatus = "cancelled"
)

// StepRuntime is the per-step state of an execution.
type StepRuntime struct {
	StepID     string     `json:"stepId"`
	Service    string     `json:"service"`
	Status     StepStatus `json:"status"`
	StartTime  *time.Time `json:"startTime,omitempty"`
	EndTime    *time.Time `json:"endTime,omitempty"`
	RetryCount int        `json:"retryCount"`
	Result     any        `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Execution is the record of one workflow run.
type Execution struct {
	ID           string        `json:"id"`
	WorkflowName string        `json:"workflowName"`
	Status       Status        `json:"status"`
	Steps        []StepRuntime `json:"steps"`
	StartTime    time.Time     `json:"startTime"`
	EndTime      *time.Time    `json:"endTime,omitempty"`

	// Params are the caller parameters, addressable as ${params.<key>}.
	Params map[string]any `json:"params,omitempty"`

	// Context holds the caller context plus each completed step result
	// under its step ID.
	Context map[string]any `json:"context"`

	// Output maps step IDs to results once the execution completes.
	Output map[string]any `json:"output,omitempty"`

	Error string `json:"error,omitempty"`
}

// Done reports whether the execution reached a terminal status.
func (e *Execution) Done() bool {
	return e.Status != StatusRunning
}

// Duration is the wall time of a finished execution, or zero.
func (e *Execution) Duration() time.Duration {
	if e.EndTime == nil {
		return 0
	}
	return e.EndTime.Sub(e.StartTime)
}

// clone returns a copy that shares no mutable state with e.
// Step results and context values are copied by reference.
func (e *Execution) clone() *Execution {
	cp := *e
	cp.Steps = append([]StepRuntime(nil), e.Steps...)
	cp.Params = maps.Clone(e.Params)
	cp.Context = maps.Clone(e.Context)
	cp.Output = maps.Clone(e.Output)
	return &cp
}

func timePtr(t time.Time) *time.Time {
	return &t
}
