package gdb

import (
	"strconv"

	"github.com/ctagard/gdbmi-dap/internal/mi"
)

// EventKind identifies what an Event reports.
type EventKind int

const (
	// EventStop reports that the inferior stopped and can be inspected.
	EventStop EventKind = iota + 1
	// EventExit reports that the inferior is gone.
	EventExit
	// EventStream carries console, target or log output.
	EventStream
)

func (k EventKind) String() string {
	switch k {
	case EventStop:
		return "stop"
	case EventExit:
		return "exit"
	case EventStream:
		return "stream"
	default:
		return "unknown"
	}
}

// Event is an asynchronous notification from gdb.
type Event struct {
	Kind EventKind

	// Reason is the *stopped reason for stop and exit events.
	Reason   string
	ThreadID int
	// AllStopped is set when gdb reports stopped-threads="all".
	AllStopped       bool
	Frame            *Frame
	BreakpointNumber int

	// ExitCode is set for exit events that carry exit-code.
	ExitCode    int
	HasExitCode bool

	Stream *mi.StreamRecord
	Record *mi.AsyncRecord
}

// ReasonInterrupt is the stop reason given to a reasonless *stopped that
// carries a signal, which is how gdb reports exec-interrupt.
const ReasonInterrupt = "interrupt"

var stopReasons = map[string]bool{
	"breakpoint-hit":            true,
	"watchpoint-trigger":        true,
	"read-watchpoint-trigger":   true,
	"access-watchpoint-trigger": true,
	"function-finished":         true,
	"location-reached":          true,
	"watchpoint-scope":          true,
	"end-stepping-range":        true,
}

var exitReasons = map[string]bool{
	"exited":           true,
	"exited-normally":  true,
	"exited-signalled": true,
	"signal-received":  true,
}

// classify turns an out-of-band record into an event. Records that are not
// stream output or a *stopped with a known reason produce no event.
func classify(oob mi.OutOfBand) (Event, bool) {
	switch r := oob.(type) {
	case *mi.StreamRecord:
		return Event{Kind: EventStream, Stream: r}, true
	case *mi.AsyncRecord:
		if r.State != mi.AsyncExec || r.Class != "stopped" {
			return Event{}, false
		}
		reason := r.Result.String("reason")
		var kind EventKind
		switch {
		case stopReasons[reason]:
			kind = EventStop
		case exitReasons[reason]:
			kind = EventExit
		case reason == "" && r.Result.Has("signal-name"):
			// exec-interrupt in all-stop mode reports the signal without a reason.
			kind, reason = EventStop, ReasonInterrupt
		default:
			return Event{}, false
		}

		ev := Event{Kind: kind, Reason: reason, Record: r}
		ev.ThreadID, _ = r.Result.Int("thread-id")
		ev.AllStopped = r.Result.String("stopped-threads") == "all"
		ev.BreakpointNumber, _ = r.Result.Int("bkptno")
		if ft := r.Result.Tuple("frame"); ft != nil {
			f := parseFrame(ft)
			ev.Frame = &f
		}
		if code := r.Result.String("exit-code"); code != "" {
			// gdb prints the exit code in octal.
			if n, err := strconv.ParseInt(code, 8, 32); err == nil {
				ev.ExitCode, ev.HasExitCode = int(n), true
			}
		}
		return ev, true
	}
	return Event{}, false
}
