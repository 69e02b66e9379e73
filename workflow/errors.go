package workflow

import (
	"errors"
	"fmt"

	"github.com/jonwraymond/flowops/resilience"
)

// Sentinel errors for workflow operations.
var (
	// ErrWorkflowNotFound is returned for an unknown workflow or execution.
	ErrWorkflowNotFound = errors.New("workflow: not found")

	// ErrConditionNotMet is returned when a precondition is false.
	ErrConditionNotMet = errors.New("workflow: condition not met")

	// ErrStepFailed is returned when a step exhausts its retries.
	ErrStepFailed = errors.New("workflow: step execution failed")

	// ErrNotCancelable is returned when cancelling an execution that is not running.
	ErrNotCancelable = errors.New("workflow: execution is not running")

	// ErrCancelled is returned by Execute when the execution was cancelled.
	ErrCancelled = errors.New("workflow: execution cancelled")

	// ErrExecutionRunning is returned when evicting an execution that is still running.
	ErrExecutionRunning = errors.New("workflow: execution is still running")

	// ErrInvalidDefinition is returned by Register for a malformed definition.
	ErrInvalidDefinition = errors.New("workflow: invalid definition")

	// ErrNilRouter is returned by NewEngine without a router.
	ErrNilRouter = errors.New("workflow: router is required")
)

// CodeWorkflowCancelled is the envelope code for a cancelled execution.
const CodeWorkflowCancelled = "WORKFLOW_CANCELLED"

func notFound(kind, name string) error {
	return &resilience.Error{
		Code:     resilience.CodeWorkflowNotFound,
		Category: resilience.CategoryValidation,
		Message:  fmt.Sprintf("%s %q not found", kind, name),
		Details:  map[string]any{kind: name},
		Err:      ErrWorkflowNotFound,
	}
}

func conditionNotMet(workflow string, c Condition) error {
	return &resilience.Error{
		Code:     resilience.CodeWorkflowConditionNotMet,
		Category: resilience.CategoryValidation,
		Message:  fmt.Sprintf("workflow %q: condition %s not met", workflow, c),
		Details:  map[string]any{"workflow": workflow, "condition": string(c.Type), "service": c.Service},
		Err:      ErrConditionNotMet,
	}
}

func stepFailed(executionID, stepID string, cause error) error {
	return &resilience.Error{
		Code:     resilience.CodeStepExecutionFailed,
		Category: resilience.Classify(cause),
		Message:  fmt.Sprintf("step %q failed", stepID),
		Details:  map[string]any{"executionId": executionID, "step": stepID},
		Err:      errors.Join(ErrStepFailed, cause),
	}
}

func notCancelable(executionID string, status Status) error {
	return &resilience.Error{
		Code:     resilience.CodeWorkflowNotCancelable,
		Category: resilience.CategoryValidation,
		Message:  fmt.Sprintf("execution %q is %s", executionID, status),
		Details:  map[string]any{"executionId": executionID, "status": string(status)},
		Err:      ErrNotCancelable,
	}
}

func cancelled(executionID string) error {
	return &resilience.Error{
		Code:     CodeWorkflowCancelled,
		Category: resilience.CategoryUnknown,
		Message:  fmt.Sprintf("execution %q cancelled", executionID),
		Details:  map[string]any{"executionId": executionID},
		Err:      ErrCancelled,
	}
}
