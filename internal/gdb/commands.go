package gdb

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ctagard/gdbmi-dap/internal/mi"
)

// expect sends command and checks that gdb answered with one of classes.
func (c *Client) expect(command string, classes ...mi.ResultClass) (*mi.ResultRecord, error) {
	rec, err := c.Send(command)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(classes, rec.Class) {
		return rec, fmt.Errorf("%w: %q answered %s", ErrUnexpectedClass, command, rec.Class)
	}
	return rec, nil
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

// threadOption scopes a command to a thread. Thread 0 means the current thread.
func threadOption(thread int) string {
	if thread <= 0 {
		return ""
	}
	return " --thread " + strconv.Itoa(thread)
}

// SetAsync toggles asynchronous execution of the target.
func (c *Client) SetAsync(on bool) error {
	_, err := c.expect("gdb-set target-async "+onOff(on), mi.ClassDone)
	return err
}

// SetExecutable loads the program and its symbols.
func (c *Client) SetExecutable(path string) error {
	_, err := c.expect("file-exec-and-symbols "+mi.Quote(path), mi.ClassDone)
	return err
}

// NewConsole gives the inferior its own console window. Only meaningful on Windows.
func (c *Client) NewConsole() error {
	_, err := c.expect("gdb-set new-console on", mi.ClassDone)
	return err
}

// SetArgs sets the arguments the program is run with.
func (c *Client) SetArgs(args []string) error {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = mi.Quote(a)
	}
	_, err := c.expect(strings.TrimSpace("exec-arguments "+strings.Join(quoted, " ")), mi.ClassDone)
	return err
}

// SetCwd sets the working directory of the program.
func (c *Client) SetCwd(dir string) error {
	_, err := c.expect("environment-cd "+mi.Quote(dir), mi.ClassDone)
	return err
}

// Exit asks gdb to quit.
func (c *Client) Exit() error {
	_, err := c.expect("gdb-exit", mi.ClassExit, mi.ClassDone)
	return err
}

// --- Breakpoints ---

func (s BreakpointSpec) location() (string, error) {
	switch {
	case s.Address != "":
		return "*" + s.Address, nil
	case s.File != "" && s.Line > 0:
		return mi.Quote(s.File + ":" + strconv.Itoa(s.Line)), nil
	case s.Function != "":
		return s.Function, nil
	default:
		return "", ErrInvalidLocation
	}
}

// InsertBreakpoint inserts a breakpoint and adds it to the tracked set.
func (c *Client) InsertBreakpoint(spec BreakpointSpec) (Breakpoint, error) {
	loc, err := spec.location()
	if err != nil {
		return Breakpoint{}, err
	}

	var b strings.Builder
	b.WriteString("break-insert")
	if spec.Temporary {
		b.WriteString(" -t")
	}
	if spec.Condition != "" {
		b.WriteString(" -c ")
		b.WriteString(mi.Quote(spec.Condition))
	}
	if spec.Ignore > 0 {
		b.WriteString(" -i ")
		b.WriteString(strconv.Itoa(spec.Ignore))
	}
	b.WriteByte(' ')
	b.WriteString(loc)

	var bp Breakpoint
	_, err = c.call(b.String(), func(rec *mi.ResultRecord) error {
		if rec.Class != mi.ClassDone {
			return fmt.Errorf("%w: break-insert answered %s", ErrUnexpectedClass, rec.Class)
		}
		t := rec.Result.Tuple("bkpt")
		if t == nil {
			return fmt.Errorf("break-insert reply has no bkpt")
		}
		bp = parseBreakpoint(t)

		c.bpMu.Lock()
		c.breakpoints = append(c.breakpoints, bp)
		c.bpMu.Unlock()
		return nil
	})
	if err != nil {
		return Breakpoint{}, err
	}
	return bp, nil
}

// DeleteBreakpoint deletes a breakpoint and drops it from the tracked set. A
// breakpoint gdb no longer knows is already gone, so that reply counts as
// success.
func (c *Client) DeleteBreakpoint(number int) error {
	_, err := c.call("break-delete "+strconv.Itoa(number), func(rec *mi.ResultRecord) error {
		if rec.Class != mi.ClassDone {
			return fmt.Errorf("%w: break-delete answered %s", ErrUnexpectedClass, rec.Class)
		}
		c.untrack(number)
		return nil
	})
	var cerr *CommandError
	if errors.As(err, &cerr) && strings.HasPrefix(cerr.Message, "No breakpoint number") {
		c.log.V(1).Info("breakpoint already deleted", "number", number)
		c.untrack(number)
		return nil
	}
	return err
}

func (c *Client) untrack(number int) {
	c.bpMu.Lock()
	c.breakpoints = slices.DeleteFunc(c.breakpoints, func(bp Breakpoint) bool {
		return bp.Number == number
	})
	c.bpMu.Unlock()
}

// untrackDeleted drops breakpoints gdb deleted by itself: those reported by
// =breakpoint-deleted and temporary ones once they are hit.
func (c *Client) untrackDeleted(oob mi.OutOfBand) {
	r, ok := oob.(*mi.AsyncRecord)
	if !ok {
		return
	}
	switch {
	case r.State == mi.AsyncNotify && r.Class == "breakpoint-deleted":
		if n, ok := r.Result.Int("id"); ok {
			c.untrack(n)
		}
	case r.State == mi.AsyncExec && r.Class == "stopped":
		n, ok := r.Result.Int("bkptno")
		if !ok {
			return
		}
		c.bpMu.Lock()
		c.breakpoints = slices.DeleteFunc(c.breakpoints, func(bp Breakpoint) bool {
			return bp.Number == n && (bp.Temporary || r.Result.String("disp") == "del")
		})
		c.bpMu.Unlock()
	}
}

// DeleteBreakpointsByFile deletes every tracked breakpoint whose full path
// matches path, ignoring case. Deletions run concurrently; all of them finish
// before it returns. Breakpoints whose deletion failed stay tracked.
func (c *Client) DeleteBreakpointsByFile(path string) error {
	var numbers []int
	for _, bp := range c.Breakpoints() {
		name := bp.FullName
		if name == "" {
			name = bp.File
		}
		if strings.EqualFold(name, path) {
			numbers = append(numbers, bp.Number)
		}
	}

	var g errgroup.Group
	for _, n := range numbers {
		g.Go(func() error {
			return c.DeleteBreakpoint(n)
		})
	}
	return g.Wait()
}

// Breakpoints returns a copy of the tracked breakpoint set.
func (c *Client) Breakpoints() []Breakpoint {
	c.bpMu.Lock()
	defer c.bpMu.Unlock()
	return slices.Clone(c.breakpoints)
}

// --- Execution control ---

// Run starts the program.
func (c *Client) Run() error {
	_, err := c.expect("exec-run", mi.ClassRunning)
	return err
}

// Continue resumes the thread.
func (c *Client) Continue(thread int) error {
	_, err := c.expect("exec-continue"+threadOption(thread), mi.ClassRunning)
	return err
}

// Next steps over one source line.
func (c *Client) Next(thread int) error {
	_, err := c.expect("exec-next"+threadOption(thread), mi.ClassRunning)
	return err
}

// StepIn steps into the next call.
func (c *Client) StepIn(thread int) error {
	_, err := c.expect("exec-step"+threadOption(thread), mi.ClassRunning)
	return err
}

// StepOut runs until the current function returns.
func (c *Client) StepOut(thread int) error {
	_, err := c.expect("exec-finish"+threadOption(thread), mi.ClassRunning)
	return err
}

// Interrupt stops the thread.
func (c *Client) Interrupt(thread int) error {
	_, err := c.expect("exec-interrupt"+threadOption(thread), mi.ClassDone)
	return err
}

// --- Inspection ---

// StackFrames lists the frames of thread, innermost first. A positive
// maxDepth limits the listing to that many frames.
func (c *Client) StackFrames(thread, maxDepth int) ([]Frame, error) {
	cmd := "stack-list-frames" + threadOption(thread)
	if maxDepth > 0 {
		cmd += " 0 " + strconv.Itoa(maxDepth-1)
	}
	rec, err := c.expect(cmd, mi.ClassDone)
	if err != nil {
		return nil, err
	}
	tuples := rec.Result.List("stack").Tuples()
	frames := make([]Frame, 0, len(tuples))
	for _, t := range tuples {
		frames = append(frames, parseFrame(t))
	}
	return frames, nil
}

// Threads lists all threads and reports the current one.
func (c *Client) Threads() (ThreadList, error) {
	rec, err := c.expect("thread-info", mi.ClassDone)
	if err != nil {
		return ThreadList{}, err
	}
	var list ThreadList
	for _, t := range rec.Result.List("threads").Tuples() {
		list.Threads = append(list.Threads, parseThread(t))
	}
	list.CurrentThreadID, _ = rec.Result.Int("current-thread-id")
	return list, nil
}

// Locals lists the arguments and locals of a frame.
func (c *Client) Locals(thread, frame int) ([]LocalVariable, error) {
	cmd := fmt.Sprintf("stack-list-variables%s --frame %d --simple-values", threadOption(thread), frame)
	rec, err := c.expect(cmd, mi.ClassDone)
	if err != nil {
		return nil, err
	}
	var vars []LocalVariable
	for _, t := range rec.Result.List("variables").Tuples() {
		vars = append(vars, LocalVariable{
			Name:  t.Text("name"),
			Type:  t.Text("type"),
			Value: t.Text("value"),
			Arg:   t.String("arg") == "1",
		})
	}
	return vars, nil
}

// CreateVariable creates a variable object for expression. With a positive
// thread it is bound to that thread and frame; otherwise to the current frame.
func (c *Client) CreateVariable(expression string, thread, frame int) (Variable, error) {
	cmd := "var-create"
	if thread > 0 {
		cmd += fmt.Sprintf("%s --frame %d", threadOption(thread), frame)
	}
	cmd += " - * " + mi.Quote(expression)

	rec, err := c.expect(cmd, mi.ClassDone)
	if err != nil {
		return Variable{}, err
	}
	v := parseVariable(rec.Result)
	v.Name = expression
	v.Expression = expression
	return v, nil
}

// DeleteVariable deletes a variable object and its children.
func (c *Client) DeleteVariable(object string) error {
	_, err := c.expect("var-delete "+object, mi.ClassDone)
	return err
}

// VariableChange is one entry of a var-update changelist.
type VariableChange struct {
	ObjectName  string
	Value       string
	InScope     string
	TypeChanged bool
}

// UpdateVariable refreshes a variable object and reports what changed.
func (c *Client) UpdateVariable(object string) ([]VariableChange, error) {
	rec, err := c.expect("var-update --all-values "+object, mi.ClassDone)
	if err != nil {
		return nil, err
	}
	var changes []VariableChange
	for _, t := range rec.Result.List("changelist").Tuples() {
		changes = append(changes, VariableChange{
			ObjectName:  t.String("name"),
			Value:       t.Text("value"),
			InScope:     t.String("in_scope"),
			TypeChanged: t.String("type_changed") == "true",
		})
	}
	return changes, nil
}

// AssignVariable assigns expression to a variable object and returns its new value.
func (c *Client) AssignVariable(object, expression string) (string, error) {
	rec, err := c.expect("var-assign "+object+" "+mi.Quote(expression), mi.ClassDone)
	if err != nil {
		return "", err
	}
	return rec.Result.Text("value"), nil
}

// EvaluateExpression returns the current value of a variable object.
func (c *Client) EvaluateExpression(object string) (string, error) {
	rec, err := c.expect("var-evaluate-expression "+object, mi.ClassDone)
	if err != nil {
		return "", err
	}
	return rec.Result.Text("value"), nil
}

// ListChildren lists the children of a variable object with their values.
func (c *Client) ListChildren(object string) ([]Variable, error) {
	rec, err := c.expect("var-list-children --all-values "+object, mi.ClassDone)
	if err != nil {
		return nil, err
	}
	var children []Variable
	for _, t := range rec.Result.List("children").Tuples() {
		children = append(children, parseVariable(t))
	}
	return children, nil
}

// SelectFrame makes frame level the current frame.
func (c *Client) SelectFrame(level int) error {
	_, err := c.expect("stack-select-frame "+strconv.Itoa(level), mi.ClassDone)
	return err
}

// SelectThread makes thread the current thread.
func (c *Client) SelectThread(thread int) error {
	_, err := c.expect("thread-select "+strconv.Itoa(thread), mi.ClassDone)
	return err
}
