package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandName(t *testing.T) {
	assert.Equal(t, "break-insert", CommandName(`break-insert -c "x > 1" "main.c:3"`))
	assert.Equal(t, "exec-run", CommandName("exec-run"))
	assert.Equal(t, "", CommandName(""))
}

func TestMetricsBeforeRegister(t *testing.T) {
	if regOK.Load() {
		t.Skip("metrics already registered by another test")
	}
	// Must not panic while unregistered.
	ObserveCommand("exec-run", "running", time.Millisecond)
	SetPending(3)
	IncEvent("stop")
	IncParseError()
	IncRequest("threads", true)
}

func TestRegisterIdempotentAndCountersWork(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	require.NoError(t, Register(reg))

	ObserveCommand("break-insert main.c:3", "done", 2*time.Millisecond)
	ObserveCommand("exec-next --thread 1", "timeout", time.Second)
	SetPending(2)
	IncEvent("stop")
	IncParseError()
	IncRequest("setBreakpoints", false)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	want := map[string]bool{
		"gdbmi_dap_mi_commands_total":           false,
		"gdbmi_dap_mi_command_duration_seconds": false,
		"gdbmi_dap_mi_pending_commands":         false,
		"gdbmi_dap_mi_events_total":             false,
		"gdbmi_dap_mi_parse_errors_total":       false,
		"gdbmi_dap_frontend_requests_total":     false,
	}
	for _, mf := range mfs {
		if _, ok := want[mf.GetName()]; ok {
			want[mf.GetName()] = true
			assert.NotEmpty(t, mf.GetMetric(), mf.GetName())
		}
	}
	for name, found := range want {
		assert.True(t, found, "expected metric %s", name)
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	require.NoError(t, Register(prometheus.DefaultRegisterer))
	IncEvent("exit")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), "go_goroutines")
}
