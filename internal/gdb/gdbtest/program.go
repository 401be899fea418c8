package gdbtest

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
)

// Program is a Handler that behaves like gdb debugging a small two-thread C
// program. Execution commands reply ^running and then report a stop on
// thread 1; the locals of every frame are "count" (an int) and "point" (a
// struct with members x and y).
type Program struct {
	// Files maps a source path to the lines gdb would report as holding code.
	Files map[string][]int

	// Fail makes commands with one of these prefixes answer ^error.
	Fail map[string]string

	// StopReason is reported after execution commands. Empty means
	// end-stepping-range; breakpoint-hit names the most recently inserted
	// breakpoint that still exists, and deletes it if it is temporary. With
	// no breakpoints left the stop is end-stepping-range.
	StopReason string

	mu      sync.Mutex
	nextBkp int
	live    map[int]string // breakpoint number to disposition
	nextVar int
	vars    map[string]string
}

// NewProgram returns a Program knowing the given files.
func NewProgram(files map[string][]int) *Program {
	return &Program{Files: files, Fail: map[string]string{}, live: map[int]string{}, vars: map[string]string{}}
}

// Attach starts a fake driven by p.
func (p *Program) Attach() *Fake {
	return New(p.Handle)
}

// Breakpoints returns the numbers of the breakpoints that exist, in ascending order.
func (p *Program) Breakpoints() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]int, 0, len(p.live))
	for n := range p.live {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

// LiveVariables returns the variable objects that exist and were not deleted.
func (p *Program) LiveVariables() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.vars))
	for name := range p.vars {
		if !strings.Contains(name, ".") {
			out = append(out, name)
		}
	}
	return out
}

var (
	quotedArg   = regexp.MustCompile(`"((?:[^"\\]|\\.)*)"`)
	varCreateRe = regexp.MustCompile(`^var-create(?: --thread (\d+) --frame (\d+))? - \* "(.*)"$`)
)

// Handle implements Handler.
func (p *Program) Handle(token int, command string) string {
	for prefix, msg := range p.Fail {
		if strings.HasPrefix(command, prefix) {
			return Error(token, msg)
		}
	}

	op, _, _ := strings.Cut(command, " ")
	switch op {
	case "gdb-set", "file-exec-and-symbols", "exec-arguments", "environment-cd",
		"thread-select", "stack-select-frame":
		return Done(token, "")

	case "gdb-exit":
		return Result(token, "exit", "")

	case "symbol-list-lines":
		path := unquote(command)
		lines, ok := p.Files[path]
		if !ok {
			return Error(token, fmt.Sprintf("-symbol-list-lines: Unknown source file name %s.", path))
		}
		items := make([]string, len(lines))
		for i, n := range lines {
			items[i] = fmt.Sprintf(`{pc="0x%x",line="%d"}`, 0x1000+n*4, n)
		}
		return Done(token, "lines=["+strings.Join(items, ",")+"]")

	case "break-insert":
		return p.breakInsert(token, command)

	case "break-delete":
		return p.breakDelete(token, command)

	case "exec-run", "exec-continue", "exec-next", "exec-step", "exec-finish":
		reason, bkpt := p.stop()
		return Running(token) + Batch(
			`*running,thread-id="all"`,
		) + Batch(
			fmt.Sprintf(`*stopped,reason=%q,%sframe={addr="0x1130",func="main",args=[],file="main.c",fullname="/src/main.c",line="5"},thread-id="1",stopped-threads="all"`, reason, bkpt),
		)

	case "exec-interrupt":
		return Done(token, "") + Batch(
			`*stopped,signal-name="SIGINT",signal-meaning="Interrupt",frame={addr="0x1130",func="main",args=[]},thread-id="1",stopped-threads="all"`,
		)

	case "thread-info":
		return Done(token, `threads=[{id="1",target-id="Thread 0x7ffff7d8a740 (LWP 100)",name="demo",frame={level="0",addr="0x1130",func="main",args=[],file="main.c",fullname="/src/main.c",line="5"},state="stopped",core="0"},{id="2",target-id="Thread 0x7ffff7589640 (LWP 101)",frame={level="0",addr="0x1200",func="worker",args=[]},state="stopped",core="1"}],current-thread-id="1"`)

	case "stack-list-frames":
		return Done(token, `stack=[frame={level="0",addr="0x1150",func="add",file="math.c",fullname="/src/math.c",line="3"},frame={level="1",addr="0x1130",func="main",file="main.c",fullname="/src/main.c",line="5"}]`)

	case "stack-list-variables":
		return Done(token, `variables=[{name="count",type="int",value="3"},{name="point",type="struct point"}]`)

	case "var-create":
		return p.varCreate(token, command)

	case "var-list-children":
		fields := strings.Fields(command)
		obj := fields[len(fields)-1]
		return Done(token, fmt.Sprintf(`numchild="2",children=[child={name="%[1]s.x",exp="x",numchild="0",value="1",type="int",thread-id="1"},child={name="%[1]s.y",exp="y",numchild="0",value="2",type="int",thread-id="1"}],has_more="0"`, obj))

	case "var-assign":
		return Done(token, fmt.Sprintf(`value="%s"`, unquote(command)))

	case "var-evaluate-expression":
		return Done(token, `value="3"`)

	case "var-update":
		return Done(token, `changelist=[]`)

	case "var-delete":
		obj := strings.TrimSpace(strings.TrimPrefix(command, "var-delete"))
		p.mu.Lock()
		for name := range p.vars {
			if name == obj || strings.HasPrefix(name, obj+".") {
				delete(p.vars, name)
			}
		}
		p.mu.Unlock()
		return Done(token, `ndeleted="1"`)
	}
	return Error(token, fmt.Sprintf("Undefined MI command: %s", op))
}

// stop picks the reason of the next *stopped and the breakpoint fields it carries.
func (p *Program) stop() (reason, bkpt string) {
	reason = p.StopReason
	if reason == "" {
		reason = "end-stepping-range"
	}
	if reason != "breakpoint-hit" {
		return reason, ""
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	hit := 0
	for n := range p.live {
		hit = max(hit, n)
	}
	if hit == 0 {
		return "end-stepping-range", ""
	}
	disp := p.live[hit]
	if disp == "del" {
		delete(p.live, hit)
	}
	return reason, fmt.Sprintf(`disp="%s",bkptno="%d",`, disp, hit)
}

func (p *Program) breakDelete(token int, command string) string {
	n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(command, "break-delete")))
	if err != nil {
		return Error(token, "-break-delete: bad breakpoint number")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.live[n]; !ok {
		return Error(token, fmt.Sprintf("No breakpoint number %d.", n))
	}
	delete(p.live, n)
	return Done(token, "")
}

func (p *Program) breakInsert(token int, command string) string {
	disp := "keep"
	if strings.Contains(command, " -t ") {
		disp = "del"
	}

	// The location is the last quoted argument, or a bare function name.
	loc := unquote(command)
	if loc != "" && !strings.Contains(loc, ":") {
		return Error(token, "Function \""+loc+"\" not defined.")
	}

	p.mu.Lock()
	p.nextBkp++
	n := p.nextBkp
	p.live[n] = disp
	p.mu.Unlock()

	if loc == "" {
		fields := strings.Fields(command)
		fn := fields[len(fields)-1]
		return Done(token, fmt.Sprintf(`bkpt={number="%d",type="breakpoint",disp="%s",enabled="y",addr="0x1130",func="%s",file="main.c",fullname="/src/main.c",line="5",times="0"}`,
			n, disp, fn))
	}
	file, lineText, _ := strings.Cut(loc, ":")
	line, _ := strconv.Atoi(lineText)

	cond := ""
	if i := strings.Index(command, " -c "); i >= 0 {
		if m := quotedArg.FindStringSubmatch(command[i:]); m != nil {
			cond = fmt.Sprintf(`cond="%s",`, m[1])
		}
	}

	base := file[strings.LastIndexAny(file, `/\`)+1:]
	return Done(token, fmt.Sprintf(`bkpt={number="%d",type="breakpoint",disp="%s",enabled="y",addr="0x%x",func="main",file="%s",fullname="%s",line="%d",%stimes="0"}`,
		n, disp, 0x1000+line*4, base, strings.ReplaceAll(file, `\`, `\\`), line, cond))
}

func (p *Program) varCreate(token int, command string) string {
	m := varCreateRe.FindStringSubmatch(command)
	if m == nil {
		return Error(token, "-var-create: usage")
	}
	expr := m[3]
	if expr == "missing" {
		return Error(token, `-var-create: unable to create variable object`)
	}
	thread := m[1]
	if thread == "" {
		thread = "1"
	}

	p.mu.Lock()
	p.nextVar++
	name := fmt.Sprintf("var%d", p.nextVar)
	p.vars[name] = expr
	p.mu.Unlock()

	switch expr {
	case "point":
		return Done(token, fmt.Sprintf(`name="%s",numchild="2",value="{...}",type="struct point",thread-id="%s",has_more="0"`, name, thread))
	default:
		return Done(token, fmt.Sprintf(`name="%s",numchild="0",value="3",type="int",thread-id="%s",has_more="0"`, name, thread))
	}
}

// unquote returns the contents of the last quoted argument of command.
func unquote(command string) string {
	m := quotedArg.FindAllStringSubmatch(command, -1)
	if len(m) == 0 {
		return ""
	}
	return strings.ReplaceAll(m[len(m)-1][1], `\\`, `\`)
}
