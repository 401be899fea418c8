package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/gdbmi-dap/internal/bridge"
	"github.com/ctagard/gdbmi-dap/internal/config"
	"github.com/ctagard/gdbmi-dap/internal/gdb"
	"github.com/ctagard/gdbmi-dap/internal/gdb/gdbtest"
	"github.com/ctagard/gdbmi-dap/pkg/types"
)

type fixture struct {
	server  *Server
	program *gdbtest.Program

	mu    sync.Mutex
	fakes []*gdbtest.Fake
}

func newFixture(t *testing.T, configure ...func(*config.MCPConfig)) *fixture {
	t.Helper()

	f := &fixture{program: gdbtest.NewProgram(map[string][]int{"/src/main.c": {3, 5, 9}})}
	cfg := config.DefaultConfig().MCP
	for _, fn := range configure {
		fn(&cfg)
	}

	f.server = NewServer(cfg, bridge.Config{
		Client:        gdb.Config{Timeout: 2 * time.Second, Sentinel: gdbtest.Sentinel},
		ShutdownGrace: time.Second,
		Start: func(_ context.Context, _ types.LaunchRequest, c gdb.Config) (*gdb.Client, error) {
			fake := f.program.Attach()
			f.mu.Lock()
			f.fakes = append(f.fakes, fake)
			f.mu.Unlock()
			return gdb.NewClient(fake.Stdin(), fake.Stdout(), c), nil
		},
	})

	t.Cleanup(func() {
		f.server.Close()
		f.mu.Lock()
		defer f.mu.Unlock()
		for _, fake := range f.fakes {
			fake.Close()
		}
	})
	return f
}

func (f *fixture) lastFake(t *testing.T) *gdbtest.Fake {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.fakes)
	return f.fakes[len(f.fakes)-1]
}

type handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)

func call(t *testing.T, h handler, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	res, err := h(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	switch c := res.Content[0].(type) {
	case mcp.TextContent:
		return c.Text
	case *mcp.TextContent:
		return c.Text
	}
	t.Fatalf("unexpected content %T", res.Content[0])
	return ""
}

// ok calls h, requires success and decodes the JSON result into out.
func ok(t *testing.T, h handler, args map[string]any, out any) {
	t.Helper()
	res := call(t, h, args)
	require.False(t, res.IsError, text(t, res))
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), out))
}

// fails calls h and requires an error result with the given code.
func fails(t *testing.T, h handler, args map[string]any, code string) string {
	t.Helper()
	res := call(t, h, args)
	msg := text(t, res)
	require.True(t, res.IsError, msg)
	assert.Contains(t, msg, "error "+code+":")
	return msg
}

type launchResult struct {
	SessionID   string                        `json:"sessionId"`
	Status      string                        `json:"status"`
	Breakpoints map[string][]types.Breakpoint `json:"breakpoints"`
}

type waitResult struct {
	Status        string             `json:"status"`
	Stopped       *types.StoppedInfo `json:"stopped"`
	TimedOut      bool               `json:"timedOut"`
	ExitCode      *int               `json:"exitCode"`
	Output        []OutputLine       `json:"output"`
	OutputDropped int                `json:"outputDropped"`
}

func (f *fixture) launch(t *testing.T, args map[string]any) launchResult {
	t.Helper()
	if args == nil {
		args = map[string]any{}
	}
	if _, set := args["program"]; !set {
		args["program"] = "/src/demo"
	}
	var res launchResult
	ok(t, f.server.handleLaunch, args, &res)
	require.NotEmpty(t, res.SessionID)
	return res
}

func TestLaunch_WithBreakpoints(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.program.StopReason = "breakpoint-hit"

	res := f.launch(t, map[string]any{
		"args":        `["-v"]`,
		"cwd":         "/work",
		"breakpoints": `[{"path": "/src/main.c", "line": 5}, {"path": "/src/main.c", "line": 4}]`,
	})
	bps := res.Breakpoints["/src/main.c"]
	require.Len(t, bps, 2)
	assert.True(t, bps[0].Verified)
	assert.False(t, bps[1].Verified)

	fake := f.lastFake(t)
	assert.Contains(t, fake.Commands(), `exec-arguments "-v"`)
	assert.Contains(t, fake.Commands(), `environment-cd "/work"`)
	assert.Equal(t, []string{"exec-run"}, fake.CommandsWithPrefix("exec-r"))

	var wait waitResult
	ok(t, f.server.handleWaitStopped, map[string]any{"sessionId": res.SessionID}, &wait)
	assert.Equal(t, "stopped", wait.Status)
	require.NotNil(t, wait.Stopped)
	assert.Equal(t, bridge.StopReasonBreakpoint, wait.Stopped.Reason)
	assert.Equal(t, []int{1}, wait.Stopped.HitBreakpointIDs)
	assert.False(t, wait.TimedOut)
}

func TestLaunch_Failures(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	fails(t, f.server.handleLaunch, map[string]any{}, "202")
	fails(t, f.server.handleLaunch, map[string]any{"program": "/src/demo", "args": "-v"}, "202")
	fails(t, f.server.handleLaunch, map[string]any{"program": "/src/demo", "breakpoints": `{"line": 3}`}, "202")

	f.program.Fail["file-exec-and-symbols"] = "/src/demo: No such file or directory."
	msg := fails(t, f.server.handleLaunch, map[string]any{"program": "/src/demo"}, "101")
	assert.Contains(t, msg, "No such file or directory")
	assert.Empty(t, f.server.Sessions().ListSessions(), "failed launches leave no session behind")
}

func TestLaunch_FromConfiguration(t *testing.T) {
	t.Parallel()

	workspace := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(workspace, ".vscode"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(workspace, ".vscode", "launch.json"), []byte(`{
		"version": "0.2.0",
		"configurations": [
			{"type": "cppdbg", "request": "launch", "name": "demo", "MIMode": "gdb",
			 "program": "${workspaceFolder}/demo", "args": ["-v"], "stopAtEntry": true},
			{"type": "python", "request": "launch", "name": "script", "program": "main.py"}
		]
	}`), 0o644))

	f := newFixture(t)
	f.program.StopReason = "breakpoint-hit"

	var configs struct {
		LaunchJSON     string `json:"launchJson"`
		Configurations []struct {
			Name      string `json:"name"`
			Supported bool   `json:"supported"`
		} `json:"configurations"`
	}
	ok(t, f.server.handleListConfigurations, map[string]any{"workspace": workspace}, &configs)
	require.Len(t, configs.Configurations, 2)
	assert.True(t, configs.Configurations[0].Supported)
	assert.False(t, configs.Configurations[1].Supported)

	res := f.launch(t, map[string]any{"configuration": "demo", "workspace": workspace, "program": ""})
	commands := f.lastFake(t).Commands()
	assert.Contains(t, commands, `file-exec-and-symbols "`+workspace+`/demo"`)
	assert.Contains(t, commands, `exec-arguments "-v"`)

	var wait waitResult
	ok(t, f.server.handleWaitStopped, map[string]any{"sessionId": res.SessionID}, &wait)
	require.NotNil(t, wait.Stopped)
	assert.Equal(t, bridge.StopReasonEntry, wait.Stopped.Reason)

	fails(t, f.server.handleLaunch, map[string]any{"configuration": "script", "workspace": workspace}, "202")
	fails(t, f.server.handleLaunch, map[string]any{"configuration": "nope", "workspace": workspace}, "202")
}

func TestInspection(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	id := f.launch(t, nil).SessionID
	session := map[string]any{"sessionId": id}

	var wait waitResult
	ok(t, f.server.handleWaitStopped, session, &wait)
	require.Equal(t, "stopped", wait.Status)

	var threads struct {
		Threads []types.ThreadInfo `json:"threads"`
	}
	ok(t, f.server.handleThreads, session, &threads)
	require.Len(t, threads.Threads, 2)
	assert.Equal(t, "demo", threads.Threads[0].Name)

	var stack struct {
		StackFrames []types.StackFrame `json:"stackFrames"`
		TotalFrames int                `json:"totalFrames"`
	}
	ok(t, f.server.handleStack, map[string]any{"sessionId": id, "threadId": float64(1)}, &stack)
	require.Len(t, stack.StackFrames, 2)
	assert.Equal(t, 2, stack.TotalFrames)
	frameID := stack.StackFrames[0].ID

	var scopes struct {
		Scopes []types.Scope `json:"scopes"`
	}
	ok(t, f.server.handleScopes, map[string]any{"sessionId": id, "frameId": float64(frameID)}, &scopes)
	require.Len(t, scopes.Scopes, 1)
	locals := scopes.Scopes[0].VariablesReference

	var vars struct {
		Variables []types.Variable `json:"variables"`
	}
	ok(t, f.server.handleVariables, map[string]any{"sessionId": id, "variablesReference": float64(locals)}, &vars)
	require.Len(t, vars.Variables, 2)
	assert.Equal(t, "count", vars.Variables[0].Name)
	assert.Equal(t, "3", vars.Variables[0].Value)

	var single types.EvaluateResult
	ok(t, f.server.handleEvaluate, map[string]any{"sessionId": id, "expression": "point", "frameId": float64(frameID)}, &single)
	assert.Equal(t, "{...}", single.Result)
	assert.NotZero(t, single.VariablesReference)

	var batch struct {
		Evaluations []map[string]any `json:"evaluations"`
		FrameID     int              `json:"frameId"`
	}
	ok(t, f.server.handleEvaluate, map[string]any{"sessionId": id, "expressions": `["count", "missing"]`}, &batch)
	require.Len(t, batch.Evaluations, 2)
	assert.Equal(t, "3", batch.Evaluations[0]["result"])
	assert.Contains(t, batch.Evaluations[1]["error"], "evaluate failed")
	assert.Equal(t, frameID, batch.FrameID, "the top frame of thread 1 is the default")

	var set types.Variable
	ok(t, f.server.handleSetVariable, map[string]any{
		"sessionId": id, "variablesReference": float64(locals), "name": "count", "value": "11",
	}, &set)
	assert.Equal(t, "11", set.Value)

	fails(t, f.server.handleScopes, session, "202")
	fails(t, f.server.handleVariables, map[string]any{"sessionId": id, "variablesReference": float64(42)}, "11")
	fails(t, f.server.handleEvaluate, session, "202")
}

func TestExecutionControl(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	id := f.launch(t, nil).SessionID

	var wait waitResult
	ok(t, f.server.handleStep, map[string]any{"sessionId": id, "type": "over", "threadId": float64(2)}, &wait)
	assert.Equal(t, "stopped", wait.Status)
	require.NotNil(t, wait.Stopped)
	assert.Equal(t, bridge.StopReasonStep, wait.Stopped.Reason)
	assert.Contains(t, f.lastFake(t).Commands(), "exec-next --thread 2")

	ok(t, f.server.handleStep, map[string]any{"sessionId": id, "type": "out"}, &wait)
	assert.Contains(t, f.lastFake(t).Commands(), "exec-finish --thread 1")

	ok(t, f.server.handleContinue, map[string]any{"sessionId": id}, &wait)
	assert.Equal(t, "stopped", wait.Status)

	var noWait struct {
		Status string `json:"status"`
	}
	ok(t, f.server.handleStep, map[string]any{"sessionId": id, "type": "into", "wait": false}, &noWait)
	assert.NotEmpty(t, noWait.Status)
	assert.Contains(t, f.lastFake(t).Commands(), "exec-step --thread 1")

	ok(t, f.server.handlePause, map[string]any{"sessionId": id}, &wait)
	assert.Equal(t, "stopped", wait.Status)

	fails(t, f.server.handleStep, map[string]any{"sessionId": id, "type": "sideways"}, "202")

	f.program.Fail["exec-continue"] = "The program is not being run."
	fails(t, f.server.handleContinue, map[string]any{"sessionId": id}, "14")
}

func TestBreakpoints(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	id := f.launch(t, map[string]any{"stopOnEntry": true}).SessionID

	var res struct {
		Breakpoints []types.Breakpoint `json:"breakpoints"`
	}
	ok(t, f.server.handleBreakpoints, map[string]any{
		"sessionId":   id,
		"path":        "/src/main.c",
		"breakpoints": `[{"line": 9, "hitCondition": "2"}, {"line": 10}]`,
	}, &res)
	require.Len(t, res.Breakpoints, 2)
	assert.True(t, res.Breakpoints[0].Verified)
	assert.False(t, res.Breakpoints[1].Verified)
	assert.Contains(t, f.lastFake(t).Commands(), `break-insert -i 1 "/src/main.c:9"`)

	fails(t, f.server.handleBreakpoints, map[string]any{"sessionId": id, "path": "/src/other.c", "breakpoints": `[{"line": 1}]`}, "20")
	fails(t, f.server.handleBreakpoints, map[string]any{"sessionId": id, "path": "/src/main.c", "breakpoints": `[`}, "202")
}

func TestSessions(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(c *config.MCPConfig) { c.MaxSessions = 1 })
	id := f.launch(t, nil).SessionID

	fails(t, f.server.handleLaunch, map[string]any{"program": "/src/demo"}, "201")
	fails(t, f.server.handleThreads, map[string]any{"sessionId": "nope"}, "200")
	fails(t, f.server.handleThreads, map[string]any{}, "202")

	var list struct {
		Sessions []types.SessionInfo `json:"sessions"`
	}
	ok(t, f.server.handleListSessions, nil, &list)
	require.Len(t, list.Sessions, 1)
	assert.Equal(t, id, list.Sessions[0].SessionID)
	assert.Equal(t, "/src/demo", list.Sessions[0].Program)

	var disc map[string]string
	ok(t, f.server.handleDisconnect, map[string]any{"sessionId": id}, &disc)
	assert.Equal(t, "disconnected", disc["status"])
	assert.Contains(t, f.lastFake(t).Commands(), "gdb-exit")

	ok(t, f.server.handleListSessions, nil, &list)
	assert.Empty(t, list.Sessions)
	fails(t, f.server.handleDisconnect, map[string]any{"sessionId": id}, "200")

	// The slot is free again.
	f.launch(t, nil)
}

func TestWaitStopped_OutputAndExit(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	id := f.launch(t, nil).SessionID
	session := map[string]any{"sessionId": id}

	var wait waitResult
	ok(t, f.server.handleWaitStopped, session, &wait)
	require.Equal(t, "stopped", wait.Status)

	f.lastFake(t).Emit(gdbtest.Batch(
		`@"result: 42\n"`,
		`~"[Inferior 1 (process 100) exited with code 02]\n"`,
		`*stopped,reason="exited",exit-code="02"`,
	))

	require.Eventually(t, func() bool {
		entry, err := f.server.Sessions().GetSession(id)
		return err == nil && entry.Status() == types.SessionStatusTerminated
	}, 2*time.Second, 10*time.Millisecond)

	ok(t, f.server.handleWaitStopped, map[string]any{"sessionId": id, "timeoutMs": float64(100)}, &wait)
	assert.Equal(t, "terminated", wait.Status)
	require.NotNil(t, wait.ExitCode)
	assert.Equal(t, 2, *wait.ExitCode)
	assert.Equal(t, []OutputLine{
		{Category: bridge.OutputStdout, Text: "result: 42\n"},
		{Category: bridge.OutputConsole, Text: "[Inferior 1 (process 100) exited with code 02]\n"},
	}, wait.Output)

	// Output is handed out once.
	ok(t, f.server.handleWaitStopped, session, &wait)
	assert.Empty(t, wait.Output)
}

func TestWaitStopped_Timeout(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	entry, err := f.server.Sessions().CreateSession()
	require.NoError(t, err)

	var wait waitResult
	ok(t, f.server.handleWaitStopped, map[string]any{"sessionId": entry.ID(), "timeoutMs": float64(50)}, &wait)
	assert.True(t, wait.TimedOut)
	assert.Equal(t, "uninitialized", wait.Status)
}

func TestReadOnlyMode(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(c *config.MCPConfig) {
		c.Mode = config.ModeReadOnly
		c.AllowEvaluate = false
	})

	msg := f.server.MCPServer().HandleMessage(context.Background(),
		json.RawMessage(`{"jsonrpc": "2.0", "id": 1, "method": "tools/list"}`))
	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	var list struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(raw, &list))
	names := make([]string, 0, len(list.Result.Tools))
	for _, tool := range list.Result.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"gdb_launch", "gdb_disconnect", "gdb_list_sessions", "gdb_list_configurations",
		"gdb_threads", "gdb_stack", "gdb_scopes", "gdb_variables", "gdb_evaluate", "gdb_wait_stopped",
	}, names)

	id := f.launch(t, nil).SessionID
	msg2 := fails(t, f.server.handleEvaluate, map[string]any{"sessionId": id, "expression": "count"}, "22")
	assert.Contains(t, msg2, "not allowed")
	fails(t, f.server.handleSetVariable, map[string]any{"sessionId": id}, "21")
}

func TestFullModeTools(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	msg := f.server.MCPServer().HandleMessage(context.Background(),
		json.RawMessage(`{"jsonrpc": "2.0", "id": 1, "method": "tools/list"}`))
	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	for _, name := range []string{
		"gdb_launch", "gdb_breakpoints", "gdb_continue", "gdb_step", "gdb_pause",
		"gdb_threads", "gdb_stack", "gdb_scopes", "gdb_variables", "gdb_evaluate",
		"gdb_set_variable", "gdb_wait_stopped", "gdb_list_sessions", "gdb_disconnect",
	} {
		assert.Contains(t, string(raw), `"`+name+`"`)
	}
}
