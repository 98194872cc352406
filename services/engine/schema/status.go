// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package schema

// ExecutionStatus is the observable status of an executable node.
//
// Every executable node must end an execution cycle in a terminal
// status (Succeeded, Failed, Cancelled or Empty). A node left Pending
// or Running after the run returns is a bug.
type ExecutionStatus string

const (
	// StatusPending indicates the node is scheduled but has not started.
	StatusPending ExecutionStatus = "pending"

	// StatusRunning indicates the node is currently executing.
	StatusRunning ExecutionStatus = "running"

	// StatusSucceeded indicates the most recent execution succeeded.
	StatusSucceeded ExecutionStatus = "succeeded"

	// StatusFailed indicates the most recent execution failed.
	StatusFailed ExecutionStatus = "failed"

	// StatusCancelled indicates the run was aborted before this node
	// completed.
	StatusCancelled ExecutionStatus = "cancelled"

	// StatusEmpty indicates the node has nothing to execute.
	StatusEmpty ExecutionStatus = "empty"
)

// IsTerminal returns true if the status is a valid end-of-run state.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCancelled, StatusEmpty:
		return true
	}
	return false
}

// ExecutionRequired records why a node needs (re-)execution.
type ExecutionRequired string

const (
	// RequiredNo indicates the node is up to date.
	RequiredNo ExecutionRequired = "no"

	// RequiredNeverExecuted indicates the node has never run.
	RequiredNeverExecuted ExecutionRequired = "never-executed"

	// RequiredSemanticsChanged indicates the node's code or relations
	// changed since the last successful execution.
	RequiredSemanticsChanged ExecutionRequired = "semantics-changed"

	// RequiredDependenciesChanged indicates an upstream resource changed.
	RequiredDependenciesChanged ExecutionRequired = "dependencies-changed"

	// RequiredDependenciesFailed indicates an upstream resource failed,
	// so this node must re-run on the next attempt even if it appeared
	// to succeed with stale inputs.
	RequiredDependenciesFailed ExecutionRequired = "dependencies-failed"

	// RequiredFailed indicates the node itself failed.
	RequiredFailed ExecutionRequired = "failed"

	// RequiredCancelled indicates the node was cancelled before running.
	RequiredCancelled ExecutionRequired = "cancelled"
)

// MessageLevel classifies execution diagnostics.
type MessageLevel string

const (
	MessageLevelInfo    MessageLevel = "info"
	MessageLevelWarning MessageLevel = "warning"
	MessageLevelError   MessageLevel = "error"
)

// ExecutionMessage is a diagnostic produced while compiling or
// executing a node. Kernel errors are recorded here via a patch,
// exactly like successful results, never as a process fault.
type ExecutionMessage struct {
	Level   MessageLevel `json:"level"`
	Message string       `json:"message"`

	// Source identifies the producer, e.g. a kernel name or "compile".
	Source string `json:"source,omitempty"`
}

// ExecutionState holds the per-node execution bookkeeping persisted in
// the document itself.
type ExecutionState struct {
	ExecutionStatus   ExecutionStatus   `json:"executionStatus,omitempty"`
	ExecutionRequired ExecutionRequired `json:"executionRequired,omitempty"`

	// ExecutionCount is the number of completed executions (successful
	// or not) since the node was created.
	ExecutionCount int `json:"executionCount,omitempty"`

	// ExecutionDurationMilli is the wall-clock duration of the most
	// recent execution in milliseconds.
	ExecutionDurationMilli int64 `json:"executionDurationMilli,omitempty"`

	// ExecutionEndedMilli is the Unix timestamp in milliseconds when the
	// most recent execution finished.
	ExecutionEndedMilli int64 `json:"executionEndedMilli,omitempty"`

	// CompileDigest is the content hash of the node's code plus its
	// normalized relations, set at compile time.
	CompileDigest string `json:"compileDigest,omitempty"`

	// ExecuteDigest is the CompileDigest recorded at the most recent
	// successful execution. The node is skippable when the two are equal
	// and nothing upstream requires execution.
	ExecuteDigest string `json:"executeDigest,omitempty"`

	// ExecuteFailed indicates the most recent execution failed. The
	// digest is left at the last known-good compile so the node retries
	// as soon as anything about it changes.
	ExecuteFailed bool `json:"executeFailed,omitempty"`

	// Messages holds diagnostics from the most recent compile/execute.
	Messages []ExecutionMessage `json:"messages,omitempty"`
}
