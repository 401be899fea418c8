package gdb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/gdbmi-dap/internal/gdb/gdbtest"
	"github.com/ctagard/gdbmi-dap/internal/mi"
)

func nextEvent(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case ev, ok := <-c.Events():
		require.True(t, ok, "event channel closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestEvents_Classification(t *testing.T) {
	t.Parallel()

	c, f := newTestClient(t, nil, time.Second)

	f.Emit(gdbtest.Batch(`*stopped,reason="breakpoint-hit",thread-id="1",stopped-threads="all"`))
	ev := nextEvent(t, c)
	assert.Equal(t, EventStop, ev.Kind)
	assert.Equal(t, "breakpoint-hit", ev.Reason)
	assert.Equal(t, 1, ev.ThreadID)
	assert.True(t, ev.AllStopped)

	f.Emit(gdbtest.Batch(`*stopped,reason="exited-normally"`))
	ev = nextEvent(t, c)
	assert.Equal(t, EventExit, ev.Kind)
	assert.Equal(t, "exited-normally", ev.Reason)
	assert.False(t, ev.HasExitCode)

	// Unrecognized reasons and other async records produce nothing; the
	// marker after them must be the next event.
	f.Emit(gdbtest.Batch(
		`*stopped,reason="foo-unrecognized",thread-id="1"`,
		`=thread-created,id="2",group-id="i1"`,
		`*running,thread-id="all"`,
		`~"marker"`,
	))
	ev = nextEvent(t, c)
	assert.Equal(t, EventStream, ev.Kind)
	assert.Equal(t, mi.StreamConsole, ev.Stream.Type)
	assert.Equal(t, "marker", ev.Stream.Text)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		line   string
		kind   EventKind
		reason string
		ok     bool
	}{
		{`*stopped,reason="end-stepping-range",thread-id="2"`, EventStop, "end-stepping-range", true},
		{`*stopped,reason="watchpoint-trigger",wpt={number="2",exp="x"},thread-id="1"`, EventStop, "watchpoint-trigger", true},
		{`*stopped,reason="read-watchpoint-trigger",thread-id="1"`, EventStop, "read-watchpoint-trigger", true},
		{`*stopped,reason="access-watchpoint-trigger",thread-id="1"`, EventStop, "access-watchpoint-trigger", true},
		{`*stopped,reason="function-finished",thread-id="1"`, EventStop, "function-finished", true},
		{`*stopped,reason="location-reached",thread-id="1"`, EventStop, "location-reached", true},
		{`*stopped,reason="watchpoint-scope",thread-id="1"`, EventStop, "watchpoint-scope", true},
		{`*stopped,reason="exited",exit-code="01"`, EventExit, "exited", true},
		{`*stopped,reason="exited-signalled",signal-name="SIGSEGV"`, EventExit, "exited-signalled", true},
		{`*stopped,reason="signal-received",signal-name="SIGSEGV"`, EventExit, "signal-received", true},
		{`*stopped,signal-name="SIGINT",signal-meaning="Interrupt",thread-id="1"`, EventStop, ReasonInterrupt, true},
		{`*stopped,reason="foo-unrecognized"`, 0, "", false},
		{`*stopped`, 0, "", false},
		{`=stopped,reason="breakpoint-hit"`, 0, "", false},
		{`&"log line\n"`, EventStream, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			oob, _, err := mi.ParseLine(tt.line)
			require.NoError(t, err)
			ev, ok := classify(oob)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.kind, ev.Kind)
			assert.Equal(t, tt.reason, ev.Reason)
		})
	}
}

func TestClassify_Details(t *testing.T) {
	t.Parallel()

	oob, _, err := mi.ParseLine(`*stopped,reason="exited",exit-code="012"`)
	require.NoError(t, err)
	ev, ok := classify(oob)
	require.True(t, ok)
	assert.True(t, ev.HasExitCode)
	assert.Equal(t, 10, ev.ExitCode)

	oob, _, err = mi.ParseLine(`*stopped,reason="breakpoint-hit",disp="keep",bkptno="3",frame={addr="0x1",func="f",args=[],file="a.c",fullname="/x/a.c",line="9"},thread-id="4",stopped-threads="all"`)
	require.NoError(t, err)
	ev, ok = classify(oob)
	require.True(t, ok)
	assert.Equal(t, 3, ev.BreakpointNumber)
	assert.Equal(t, 4, ev.ThreadID)
	require.NotNil(t, ev.Frame)
	assert.Equal(t, "/x/a.c", ev.Frame.FullName)
	assert.Equal(t, 9, ev.Frame.Line)
	assert.Equal(t, "stop", ev.Kind.String())
}
