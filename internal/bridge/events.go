package bridge

import (
	"github.com/ctagard/gdbmi-dap/internal/gdb"
	"github.com/ctagard/gdbmi-dap/internal/mi"
	"github.com/ctagard/gdbmi-dap/pkg/types"
)

// Front-end stop reasons.
const (
	StopReasonBreakpoint     = "breakpoint"
	StopReasonDataBreakpoint = "data breakpoint"
	StopReasonStep           = "step"
	StopReasonPause          = "pause"
	StopReasonEntry          = "entry"
)

// Output categories.
const (
	OutputConsole = "console"
	OutputStdout  = "stdout"
)

var stopReasons = map[string]string{
	"breakpoint-hit":            StopReasonBreakpoint,
	"watchpoint-trigger":        StopReasonDataBreakpoint,
	"read-watchpoint-trigger":   StopReasonDataBreakpoint,
	"access-watchpoint-trigger": StopReasonDataBreakpoint,
	"watchpoint-scope":          StopReasonDataBreakpoint,
	"function-finished":         StopReasonStep,
	"location-reached":          StopReasonStep,
	"end-stepping-range":        StopReasonStep,
	gdb.ReasonInterrupt:         StopReasonPause,
}

// watch consumes c's events until gdb's output ends.
func (s *Session) watch(c *gdb.Client) {
	for ev := range c.Events() {
		switch ev.Kind {
		case gdb.EventStop:
			s.stopped(ev)
		case gdb.EventExit:
			s.exited(ev)
		case gdb.EventStream:
			s.output(ev.Stream)
		}
	}
	s.log.Info("gdb output ended")
	s.finish(true)
}

func (s *Session) stopped(ev gdb.Event) {
	reason, ok := stopReasons[ev.Reason]
	if !ok {
		reason = ev.Reason
	}

	info := types.StoppedInfo{
		Reason:            reason,
		ThreadID:          ev.ThreadID,
		AllThreadsStopped: ev.AllStopped,
		Description:       ev.Reason,
	}
	if ev.Frame != nil {
		info.Function = ev.Frame.Func
		info.Line = ev.Frame.Line
		if ev.Frame.File != "" || ev.Frame.FullName != "" {
			info.Source = &types.SourceInfo{Name: ev.Frame.File, Path: ev.Frame.FullName}
		}
	}

	s.mu.Lock()
	if ev.BreakpointNumber > 0 {
		info.HitBreakpointIDs = []int{ev.BreakpointNumber}
		if ev.BreakpointNumber == s.entryBkpt {
			info.Reason = StopReasonEntry
			s.entryBkpt = 0
		}
	}
	if s.status == types.SessionStatusTerminated {
		s.mu.Unlock()
		return
	}
	s.status = types.SessionStatusStopped
	s.lastStop = &info
	s.broadcastLocked()
	s.mu.Unlock()

	s.log.V(1).Info("program stopped", "reason", ev.Reason, "thread", ev.ThreadID)
	s.notify.Stopped(info)
}

// exited ends the session. Only exits with a known code produce an exited
// notification: gdb gives no exit-code for a normal exit, which is 0, nor for
// a program killed by a signal, which has no code to report.
func (s *Session) exited(ev gdb.Event) {
	code, known := ev.ExitCode, ev.HasExitCode
	if !known && ev.Reason == "exited-normally" {
		code, known = 0, true
	}
	if !known {
		var signal string
		if ev.Record != nil {
			signal = ev.Record.Result.String("signal-name")
		}
		s.log.Info("program terminated", "reason", ev.Reason, "signal", signal)
		s.finish(true)
		return
	}

	s.mu.Lock()
	s.exitCode = &code
	s.mu.Unlock()

	s.log.Info("program exited", "reason", ev.Reason, "code", code)
	s.notify.Exited(code)
	s.finish(true)
}

func (s *Session) output(rec *mi.StreamRecord) {
	if rec == nil || rec.Text == "" {
		return
	}
	category := OutputConsole
	if rec.Type == mi.StreamTarget {
		category = OutputStdout
	}
	s.notify.Output(category, rec.Text)
}
