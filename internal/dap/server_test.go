package dap

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/gdbmi-dap/internal/bridge"
	"github.com/ctagard/gdbmi-dap/internal/gdb"
	"github.com/ctagard/gdbmi-dap/internal/gdb/gdbtest"
	"github.com/ctagard/gdbmi-dap/pkg/types"
)

// frontEnd plays the editor's side of a DAP connection.
type frontEnd struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
	seq    int
	events []dap.Message
}

type fixture struct {
	fe      *frontEnd
	server  *Server
	program *gdbtest.Program
	fake    *gdbtest.Fake
	served  chan error
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	program := gdbtest.NewProgram(map[string][]int{"/src/main.c": {3, 5, 9}})
	fake := program.Attach()

	serverConn, clientConn := net.Pipe()
	server := NewServer(NewTransport(serverConn), bridge.Config{
		Client:        gdb.Config{Timeout: 2 * time.Second, Sentinel: gdbtest.Sentinel},
		ShutdownGrace: time.Second,
		Start: func(_ context.Context, _ types.LaunchRequest, cfg gdb.Config) (*gdb.Client, error) {
			return gdb.NewClient(fake.Stdin(), fake.Stdout(), cfg), nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() {
		served <- server.Serve(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		_ = clientConn.Close()
		fake.Close()
	})

	return &fixture{
		fe:      &frontEnd{t: t, conn: clientConn, reader: bufio.NewReader(clientConn)},
		server:  server,
		program: program,
		fake:    fake,
		served:  served,
	}
}

func (f *frontEnd) request(command string) dap.Request {
	f.seq++
	return dap.Request{ProtocolMessage: dap.ProtocolMessage{Seq: f.seq, Type: "request"}, Command: command}
}

func (f *frontEnd) send(msg dap.Message) {
	f.t.Helper()
	require.NoError(f.t, dap.WriteProtocolMessage(f.conn, msg))
}

func (f *frontEnd) read() dap.Message {
	f.t.Helper()
	require.NoError(f.t, f.conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	msg, err := dap.ReadProtocolMessage(f.reader)
	require.NoError(f.t, err)
	return msg
}

// response reads until the next response, keeping events that come first.
func (f *frontEnd) response() dap.ResponseMessage {
	f.t.Helper()
	for {
		msg := f.read()
		if resp, ok := msg.(dap.ResponseMessage); ok {
			return resp
		}
		f.events = append(f.events, msg)
	}
}

// event returns the first event named name, reading more if needed.
func (f *frontEnd) event(name string) dap.EventMessage {
	f.t.Helper()
	for i, msg := range f.events {
		if ev, ok := msg.(dap.EventMessage); ok && ev.GetEvent().Event == name {
			f.events = append(f.events[:i], f.events[i+1:]...)
			return ev
		}
	}
	for {
		msg := f.read()
		if ev, ok := msg.(dap.EventMessage); ok && ev.GetEvent().Event == name {
			return ev
		}
		f.events = append(f.events, msg)
	}
}

func requireErrorCode(t *testing.T, resp dap.ResponseMessage, code int) *dap.ErrorResponse {
	t.Helper()
	er, ok := resp.(*dap.ErrorResponse)
	require.True(t, ok, "expected error response, got %T", resp)
	assert.False(t, er.Success)
	require.NotNil(t, er.Body.Error)
	assert.Equal(t, code, er.Body.Error.Id)
	return er
}

// start runs initialize, launch, setBreakpoints and configurationDone.
func (fx *fixture) start(t *testing.T) {
	t.Helper()
	fe := fx.fe

	fe.send(&dap.InitializeRequest{Request: fe.request("initialize"), Arguments: dap.InitializeRequestArguments{AdapterID: "gdb"}})
	init, ok := fe.response().(*dap.InitializeResponse)
	require.True(t, ok)
	assert.True(t, init.Success)
	assert.True(t, init.Body.SupportsConfigurationDoneRequest)
	assert.True(t, init.Body.SupportsConditionalBreakpoints)
	assert.True(t, init.Body.SupportsHitConditionalBreakpoints)
	assert.True(t, init.Body.SupportsSetVariable)

	args, err := json.Marshal(map[string]any{"program": "/src/demo", "args": []string{"-v"}})
	require.NoError(t, err)
	fe.send(&dap.LaunchRequest{Request: fe.request("launch"), Arguments: args})
	launch := fe.response()
	require.True(t, launch.GetResponse().Success, "%+v", launch)
	fe.event("initialized")
	assert.Contains(t, fx.fake.Commands(), `file-exec-and-symbols "/src/demo"`)

	fe.send(&dap.SetBreakpointsRequest{
		Request: fe.request("setBreakpoints"),
		Arguments: dap.SetBreakpointsArguments{
			Source:      dap.Source{Path: "/src/main.c"},
			Breakpoints: []dap.SourceBreakpoint{{Line: 5}, {Line: 6}},
		},
	})
	bps, ok := fe.response().(*dap.SetBreakpointsResponse)
	require.True(t, ok)
	require.Len(t, bps.Body.Breakpoints, 2)
	assert.True(t, bps.Body.Breakpoints[0].Verified)
	assert.Equal(t, 1, bps.Body.Breakpoints[0].Id)
	assert.False(t, bps.Body.Breakpoints[1].Verified)

	fx.program.StopReason = "breakpoint-hit"
	fe.send(&dap.ConfigurationDoneRequest{Request: fe.request("configurationDone")})
	_, ok = fe.response().(*dap.ConfigurationDoneResponse)
	require.True(t, ok)

	stopped, ok := fe.event("stopped").(*dap.StoppedEvent)
	require.True(t, ok)
	assert.Equal(t, "breakpoint", stopped.Body.Reason)
	assert.Equal(t, 1, stopped.Body.ThreadId)
	assert.Equal(t, []int{1}, stopped.Body.HitBreakpointIds)
}

func TestServer_Session(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	fe := fx.fe
	fx.start(t)

	fe.send(&dap.ThreadsRequest{Request: fe.request("threads")})
	threads, ok := fe.response().(*dap.ThreadsResponse)
	require.True(t, ok)
	assert.Equal(t, []dap.Thread{{Id: 1, Name: "demo"}, {Id: 2, Name: "thread2"}}, threads.Body.Threads)

	fe.send(&dap.StackTraceRequest{Request: fe.request("stackTrace"), Arguments: dap.StackTraceArguments{ThreadId: 1}})
	stack, ok := fe.response().(*dap.StackTraceResponse)
	require.True(t, ok)
	require.Len(t, stack.Body.StackFrames, 2)
	assert.Equal(t, 2, stack.Body.TotalFrames)
	top := stack.Body.StackFrames[0]
	assert.Equal(t, "add", top.Name)
	require.NotNil(t, top.Source)
	assert.Equal(t, "/src/math.c", top.Source.Path)

	fe.send(&dap.ScopesRequest{Request: fe.request("scopes"), Arguments: dap.ScopesArguments{FrameId: top.Id}})
	scopes, ok := fe.response().(*dap.ScopesResponse)
	require.True(t, ok)
	require.Len(t, scopes.Body.Scopes, 1)
	assert.Equal(t, "Locals", scopes.Body.Scopes[0].Name)

	fe.send(&dap.VariablesRequest{Request: fe.request("variables"), Arguments: dap.VariablesArguments{VariablesReference: scopes.Body.Scopes[0].VariablesReference}})
	vars, ok := fe.response().(*dap.VariablesResponse)
	require.True(t, ok)
	require.Len(t, vars.Body.Variables, 2)
	assert.Equal(t, "count", vars.Body.Variables[0].Name)
	assert.Equal(t, "3", vars.Body.Variables[0].Value)
	assert.NotZero(t, vars.Body.Variables[1].VariablesReference)

	fe.send(&dap.EvaluateRequest{Request: fe.request("evaluate"), Arguments: dap.EvaluateArguments{Expression: "count", FrameId: top.Id}})
	eval, ok := fe.response().(*dap.EvaluateResponse)
	require.True(t, ok)
	assert.Equal(t, "3", eval.Body.Result)

	fe.send(&dap.SetVariableRequest{Request: fe.request("setVariable"), Arguments: dap.SetVariableArguments{
		VariablesReference: scopes.Body.Scopes[0].VariablesReference, Name: "count", Value: "10",
	}})
	set, ok := fe.response().(*dap.SetVariableResponse)
	require.True(t, ok)
	assert.Equal(t, "10", set.Body.Value)

	fx.program.StopReason = ""
	fe.send(&dap.NextRequest{Request: fe.request("next"), Arguments: dap.NextArguments{ThreadId: 1}})
	_, ok = fe.response().(*dap.NextResponse)
	require.True(t, ok)
	stopped := fe.event("stopped").(*dap.StoppedEvent)
	assert.Equal(t, "step", stopped.Body.Reason)

	fe.send(&dap.DisconnectRequest{Request: fe.request("disconnect")})
	_, ok = fe.response().(*dap.DisconnectResponse)
	require.True(t, ok)

	select {
	case err := <-fx.served:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop after disconnect")
	}
	assert.Contains(t, fx.fake.Commands(), "gdb-exit")
}

func TestServer_Failures(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	fe := fx.fe
	fx.start(t)

	fx.program.Fail["exec-continue"] = "The program is not being run."
	fe.send(&dap.ContinueRequest{Request: fe.request("continue"), Arguments: dap.ContinueArguments{ThreadId: 1}})
	er := requireErrorCode(t, fe.response(), 14)
	assert.Equal(t, "continue", er.Command)
	assert.Contains(t, er.Body.Error.Format, "The program is not being run.")

	fe.send(&dap.SetBreakpointsRequest{
		Request:   fe.request("setBreakpoints"),
		Arguments: dap.SetBreakpointsArguments{Source: dap.Source{Path: "/src/nowhere.c"}, Breakpoints: []dap.SourceBreakpoint{{Line: 1}}},
	})
	requireErrorCode(t, fe.response(), 20)

	fe.send(&dap.VariablesRequest{Request: fe.request("variables"), Arguments: dap.VariablesArguments{VariablesReference: 999999}})
	requireErrorCode(t, fe.response(), 11)
}

func TestServer_LaunchErrors(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	fe := fx.fe

	fe.send(&dap.LaunchRequest{Request: fe.request("launch"), Arguments: json.RawMessage(`{"gdbpath": "gdb"}`)})
	requireErrorCode(t, fe.response(), 100)

	fx.program.Fail["gdb-set target-async"] = "Cannot change this setting while the inferior is running."
	fe.send(&dap.LaunchRequest{Request: fe.request("launch"), Arguments: json.RawMessage(`{"target": "/src/demo"}`)})
	requireErrorCode(t, fe.response(), 101)
	fe.event("terminated")
}

func TestServer_UnknownRequests(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	fe := fx.fe

	// A command go-dap cannot decode.
	body := `{"seq":40,"type":"request","command":"gdbCustomThing","arguments":{}}`
	_, err := fmt.Fprintf(fe.conn, "Content-Length: %d\r\n\r\n%s", len(body), body)
	require.NoError(t, err)
	er := requireErrorCode(t, fe.response(), 1014)
	assert.Equal(t, 40, er.RequestSeq)
	assert.Equal(t, "gdbCustomThing", er.Command)

	// A command go-dap knows but the server does not handle.
	fe.send(&dap.SourceRequest{Request: fe.request("source"), Arguments: dap.SourceArguments{SourceReference: 1}})
	requireErrorCode(t, fe.response(), 1014)

	// The session keeps serving.
	fe.send(&dap.InitializeRequest{Request: fe.request("initialize")})
	_, ok := fe.response().(*dap.InitializeResponse)
	assert.True(t, ok)
}

func TestServer_Extension(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	fe := fx.fe

	var seen []string
	fx.server.Extension = func(command string, request dap.Message) error {
		seen = append(seen, command)
		return nil
	}

	body := `{"seq":7,"type":"request","command":"gdbCustomThing"}`
	_, err := fmt.Fprintf(fe.conn, "Content-Length: %d\r\n\r\n%s", len(body), body)
	require.NoError(t, err)
	// go-dap cannot decode a response to an unknown command either.
	require.NoError(t, fe.conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	raw, err := dap.ReadBaseMessage(fe.reader)
	require.NoError(t, err)
	var custom dap.Response
	require.NoError(t, json.Unmarshal(raw, &custom))
	assert.True(t, custom.Success)
	assert.Equal(t, 7, custom.RequestSeq)
	assert.Equal(t, "gdbCustomThing", custom.Command)

	fe.send(&dap.ModulesRequest{Request: fe.request("modules")})
	resp := fe.response()
	assert.True(t, resp.GetResponse().Success)
	assert.Equal(t, "modules", resp.GetResponse().Command)

	assert.Equal(t, []string{"gdbCustomThing", "modules"}, seen)
}

func TestServer_TerminatedWhenGDBExits(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	fx.start(t)

	fx.fake.Emit(gdbtest.Batch(`@"bye\n"`, `*stopped,reason="exited-normally"`))

	out, ok := fx.fe.event("output").(*dap.OutputEvent)
	require.True(t, ok)
	assert.Equal(t, "stdout", out.Body.Category)
	assert.Equal(t, "bye\n", out.Body.Output)

	exited, ok := fx.fe.event("exited").(*dap.ExitedEvent)
	require.True(t, ok)
	assert.Equal(t, 0, exited.Body.ExitCode)
	fx.fe.event("terminated")
}
