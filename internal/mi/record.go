// Package mi implements the GDB machine interface (MI) output model, its
// record grammar and the framing of the raw output stream into record batches.
package mi

import "strconv"

// AsyncState identifies the kind of an async out-of-band record.
type AsyncState byte

const (
	// AsyncExec is an exec-async record (prefix '*').
	AsyncExec AsyncState = '*'
	// AsyncStatus is a status-async record (prefix '+').
	AsyncStatus AsyncState = '+'
	// AsyncNotify is a notify-async record (prefix '=').
	AsyncNotify AsyncState = '='
)

// String returns the state's name.
func (s AsyncState) String() string {
	switch s {
	case AsyncExec:
		return "exec"
	case AsyncStatus:
		return "status"
	case AsyncNotify:
		return "notify"
	default:
		return "unknown"
	}
}

// StreamType identifies the kind of a stream out-of-band record.
type StreamType byte

const (
	// StreamConsole is CLI console output (prefix '~').
	StreamConsole StreamType = '~'
	// StreamTarget is output of the running target (prefix '@').
	StreamTarget StreamType = '@'
	// StreamLog is GDB's internal log output (prefix '&').
	StreamLog StreamType = '&'
)

// String returns the stream's name.
func (s StreamType) String() string {
	switch s {
	case StreamConsole:
		return "console"
	case StreamTarget:
		return "target"
	case StreamLog:
		return "log"
	default:
		return "unknown"
	}
}

// ResultClass is the class of a result record.
type ResultClass string

// Result classes defined by MI.
const (
	ClassDone      ResultClass = "done"
	ClassRunning   ResultClass = "running"
	ClassConnected ResultClass = "connected"
	ClassError     ResultClass = "error"
	ClassExit      ResultClass = "exit"
)

// OutOfBand is either an *AsyncRecord or a *StreamRecord.
type OutOfBand interface {
	outOfBand()
}

// AsyncRecord is an asynchronous notification such as *stopped or =thread-created.
type AsyncRecord struct {
	Token  string
	State  AsyncState
	Class  string
	Result Tuple
}

// StreamRecord carries text printed by the console, the target or the log.
type StreamRecord struct {
	Type StreamType
	Text string
}

func (*AsyncRecord) outOfBand()  {}
func (*StreamRecord) outOfBand() {}

// ResultRecord is the reply to a command.
type ResultRecord struct {
	Token  string
	Class  ResultClass
	Result Tuple
}

// TokenValue returns the numeric token, if the record carries one.
func (r *ResultRecord) TokenValue() (int, bool) {
	if r == nil || r.Token == "" {
		return 0, false
	}
	n, err := strconv.Atoi(r.Token)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Record is the parsed content of one output batch.
type Record struct {
	OutOfBand []OutOfBand
	Result    *ResultRecord
}

// Empty reports whether the record holds nothing.
func (r *Record) Empty() bool {
	return len(r.OutOfBand) == 0 && r.Result == nil
}
