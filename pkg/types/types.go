// Package types contains the front-end facing types shared by the session
// bridge and the front ends built on it (DAP and MCP).
package types

import "time"

// SessionStatus represents the state of a debug session
type SessionStatus string

const (
	SessionStatusUninitialized SessionStatus = "uninitialized"
	SessionStatusInitialized   SessionStatus = "initialized"
	SessionStatusRunning       SessionStatus = "running"
	SessionStatusStopped       SessionStatus = "stopped"
	SessionStatusTerminated    SessionStatus = "terminated"
)

// Capabilities are the features a session declares on initialize
type Capabilities struct {
	SupportsConfigurationDone   bool `json:"supportsConfigurationDoneRequest"`
	SupportsConditionalBreaks   bool `json:"supportsConditionalBreakpoints"`
	SupportsHitConditionalBreak bool `json:"supportsHitConditionalBreakpoints"`
	SupportsSetVariable         bool `json:"supportsSetVariable"`
	SupportsEvaluateForHovers   bool `json:"supportsEvaluateForHovers"`
	SupportsTerminateRequest    bool `json:"supportsTerminateRequest"`
}

// LaunchRequest contains parameters for launching a program under gdb
type LaunchRequest struct {
	// GDBPath is the gdb executable; empty means the configured default
	GDBPath     string            `json:"gdbpath,omitempty"`
	Program     string            `json:"target"`
	Args        []string          `json:"args,omitempty"`
	Cwd         string            `json:"cwd,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	StopOnEntry bool              `json:"stopOnEntry,omitempty"`
}

// SessionInfo contains information about a debug session
type SessionInfo struct {
	SessionID string        `json:"sessionId"`
	Status    SessionStatus `json:"status"`
	PID       int           `json:"pid,omitempty"`
	Program   string        `json:"program,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
	LastStop  *StoppedInfo  `json:"lastStop,omitempty"`
	ExitCode  *int          `json:"exitCode,omitempty"`
}

// ThreadInfo contains information about a thread
type ThreadInfo struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status,omitempty"`
}

// StackFrame represents a stack frame. ID is an encoded frame reference.
type StackFrame struct {
	ID      int         `json:"id"`
	Name    string      `json:"name"`
	Source  *SourceInfo `json:"source,omitempty"`
	Line    int         `json:"line"`
	Column  int         `json:"column,omitempty"`
	Address string      `json:"instructionPointerReference,omitempty"`
	Module  string      `json:"module,omitempty"`
}

// SourceInfo contains source file information
type SourceInfo struct {
	Name string `json:"name,omitempty"`
	Path string `json:"path,omitempty"`
}

// Scope represents a variable scope
type Scope struct {
	Name               string `json:"name"`
	VariablesReference int    `json:"variablesReference"`
	NamedVariables     int    `json:"namedVariables,omitempty"`
	Expensive          bool   `json:"expensive,omitempty"`
}

// Variable represents a variable. A non-zero VariablesReference means it has children.
type Variable struct {
	Name               string `json:"name"`
	Value              string `json:"value"`
	Type               string `json:"type,omitempty"`
	EvaluateName       string `json:"evaluateName,omitempty"`
	VariablesReference int    `json:"variablesReference"`
	NamedVariables     int    `json:"namedVariables,omitempty"`
}

// Breakpoint represents a breakpoint as reported to the front end
type Breakpoint struct {
	ID       int         `json:"id,omitempty"`
	Verified bool        `json:"verified"`
	Message  string      `json:"message,omitempty"`
	Source   *SourceInfo `json:"source,omitempty"`
	Line     int         `json:"line,omitempty"`
}

// BreakpointRequest contains parameters for setting a breakpoint
type BreakpointRequest struct {
	Line         int    `json:"line"`
	Condition    string `json:"condition,omitempty"`
	HitCondition string `json:"hitCondition,omitempty"`
}

// EvaluateResult contains the result of an expression evaluation
type EvaluateResult struct {
	Result             string `json:"result"`
	Type               string `json:"type,omitempty"`
	VariablesReference int    `json:"variablesReference"`
	NamedVariables     int    `json:"namedVariables,omitempty"`
}

// StoppedInfo describes why execution stopped
type StoppedInfo struct {
	Reason            string `json:"reason"`
	ThreadID          int    `json:"threadId"`
	AllThreadsStopped bool   `json:"allThreadsStopped,omitempty"`
	HitBreakpointIDs  []int  `json:"hitBreakpointIds,omitempty"`

	// Description is gdb's own stop reason, e.g. "end-stepping-range"
	Description string      `json:"description,omitempty"`
	Function    string      `json:"function,omitempty"`
	Source      *SourceInfo `json:"source,omitempty"`
	Line        int         `json:"line,omitempty"`
}
