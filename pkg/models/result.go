package models

import "fmt"

// ResultKind tags the populated variant of an ExecutionResult.
type ResultKind string

const (
	ResultSuccess ResultKind = "success"
	ResultFailed  ResultKind = "failed"
	ResultWaiting ResultKind = "waiting"
)

// ResumeKind identifies the external event a waiting run is suspended on.
type ResumeKind string

const (
	ResumeKindTimer    ResumeKind = "timer"
	ResumeKindApproval ResumeKind = "approval"
	ResumeKindOther    ResumeKind = "other"
)

// ExecutionResult is the outcome of one node execution. Build it with
// Success, Failed or Waiting so that exactly one variant is populated.
type ExecutionResult struct {
	Kind       ResultKind     `json:"kind"`
	Port       string         `json:"port,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	Message    string         `json:"message,omitempty"`
	ResumeKind ResumeKind     `json:"resume_kind,omitempty"`
}

// Success reports that the node finished and execution continues on port.
func Success(port string, data map[string]any) ExecutionResult {
	return ExecutionResult{Kind: ResultSuccess, Port: port, Data: data}
}

// Failed reports a business or configuration failure of the node.
func Failed(message string) ExecutionResult {
	return ExecutionResult{Kind: ResultFailed, Message: message}
}

// Failedf is Failed with a formatted message.
func Failedf(format string, args ...any) ExecutionResult {
	return Failed(fmt.Sprintf(format, args...))
}

// Waiting suspends the run until an external event of the given kind resumes it.
func Waiting(kind ResumeKind, data map[string]any) ExecutionResult {
	return ExecutionResult{Kind: ResultWaiting, ResumeKind: kind, Data: data}
}

func (r ExecutionResult) IsSuccess() bool { return r.Kind == ResultSuccess }
func (r ExecutionResult) IsFailed() bool  { return r.Kind == ResultFailed }
func (r ExecutionResult) IsWaiting() bool { return r.Kind == ResultWaiting }
