package gdb

import (
	"strconv"

	"github.com/ctagard/gdbmi-dap/internal/mi"
)

// Breakpoint is a breakpoint gdb has accepted.
type Breakpoint struct {
	Number    int
	Type      string
	Disp      string
	Enabled   bool
	Addr      string
	Func      string
	File      string
	FullName  string
	Line      int
	Cond      string
	Ignore    int
	HitCount  int
	Temporary bool
}

// BreakpointSpec describes a breakpoint to insert. Either Address or File and Line must be set.
type BreakpointSpec struct {
	Address   string
	File      string
	Line      int
	Function  string
	Condition string
	Ignore    int
	Temporary bool
}

// Frame is one stack frame.
type Frame struct {
	Level    int
	Func     string
	Addr     string
	File     string
	FullName string
	Line     int
	From     string
}

// ThreadState is the run state of a thread.
type ThreadState string

const (
	ThreadStopped ThreadState = "stopped"
	ThreadRunning ThreadState = "running"
)

// Thread is one inferior thread.
type Thread struct {
	ID       int
	TargetID string
	Name     string
	State    ThreadState
	Frame    *Frame
	Core     string
}

// ThreadList is the reply to thread-info.
type ThreadList struct {
	Threads         []Thread
	CurrentThreadID int
}

// Variable is a gdb variable object.
type Variable struct {
	Name       string
	Expression string
	Value      string
	Type       string
	NumChild   int
	ThreadID   int
	// ObjectName addresses the variable object in later var-* commands.
	ObjectName string
	HasMore    bool
}

// LocalVariable is one entry of stack-list-variables.
type LocalVariable struct {
	Name  string
	Type  string
	Value string
	Arg   bool
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// parseBreakpoint reads a bkpt tuple. A breakpoint with several locations
// (addr="<MULTIPLE>") takes its source position from the first one.
func parseBreakpoint(t mi.Tuple) Breakpoint {
	bp := Breakpoint{
		Number:    atoi(t.String("number")),
		Type:      t.String("type"),
		Disp:      t.String("disp"),
		Enabled:   t.String("enabled") == "y",
		Addr:      t.String("addr"),
		Func:      t.String("func"),
		File:      t.Text("file"),
		FullName:  t.Text("fullname"),
		Line:      atoi(t.String("line")),
		Cond:      t.Text("cond"),
		Ignore:    atoi(t.String("ignore")),
		HitCount:  atoi(t.String("times")),
		Temporary: t.String("disp") == "del",
	}
	if locs := t.List("locations").Tuples(); len(locs) > 0 && bp.FullName == "" && bp.File == "" {
		first := locs[0]
		bp.File = first.Text("file")
		bp.FullName = first.Text("fullname")
		bp.Line = atoi(first.String("line"))
		if bp.Func == "" {
			bp.Func = first.String("func")
		}
	}
	return bp
}

func parseFrame(t mi.Tuple) Frame {
	return Frame{
		Level:    atoi(t.String("level")),
		Func:     t.String("func"),
		Addr:     t.String("addr"),
		File:     t.Text("file"),
		FullName: t.Text("fullname"),
		Line:     atoi(t.String("line")),
		From:     t.Text("from"),
	}
}

func parseThread(t mi.Tuple) Thread {
	th := Thread{
		ID:       atoi(t.String("id")),
		TargetID: t.Text("target-id"),
		Name:     t.Text("name"),
		State:    ThreadState(t.String("state")),
		Core:     t.String("core"),
	}
	if ft := t.Tuple("frame"); ft != nil {
		f := parseFrame(ft)
		th.Frame = &f
	}
	return th
}

func parseVariable(t mi.Tuple) Variable {
	return Variable{
		Name:       t.Text("exp"),
		Expression: t.Text("exp"),
		Value:      t.Text("value"),
		Type:       t.Text("type"),
		NumChild:   atoi(t.String("numchild")),
		ThreadID:   atoi(t.String("thread-id")),
		ObjectName: t.String("name"),
		HasMore:    t.String("has_more") == "1",
	}
}
