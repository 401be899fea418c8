// Package metrics exposes Prometheus collectors for MI traffic and front-end
// requests. Collectors are package-level and only record after Register.
package metrics

import (
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	regOK atomic.Bool

	miCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gdbmi_dap",
			Subsystem: "mi",
			Name:      "commands_total",
			Help:      "MI commands sent to gdb, by command and outcome.",
		}, []string{"command", "result"},
	)
	miCommandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gdbmi_dap",
			Subsystem: "mi",
			Name:      "command_duration_seconds",
			Help:      "Time from writing an MI command to receiving its result record.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"command"},
	)
	miPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gdbmi_dap",
			Subsystem: "mi",
			Name:      "pending_commands",
			Help:      "MI commands waiting for a result record.",
		},
	)
	miEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gdbmi_dap",
			Subsystem: "mi",
			Name:      "events_total",
			Help:      "Asynchronous events published by the backend client, by kind.",
		}, []string{"kind"},
	)
	miParseErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gdbmi_dap",
			Subsystem: "mi",
			Name:      "parse_errors_total",
			Help:      "MI output lines that could not be parsed.",
		},
	)
	frontendRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gdbmi_dap",
			Subsystem: "frontend",
			Name:      "requests_total",
			Help:      "Front-end requests handled, by command and success.",
		}, []string{"command", "success"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{miCommands, miCommandDuration, miPending, miEvents, miParseErrors, frontendRequests}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler serving the default gatherer.
func Handler() http.Handler { return promhttp.Handler() }

// CommandName reduces an MI command line to its operation, e.g.
// "break-insert -c x main.c:3" to "break-insert".
func CommandName(command string) string {
	if i := strings.IndexByte(command, ' '); i >= 0 {
		return command[:i]
	}
	return command
}

// ObserveCommand records the outcome of one MI command.
func ObserveCommand(command, result string, elapsed time.Duration) {
	if !regOK.Load() {
		return
	}
	name := CommandName(command)
	miCommands.WithLabelValues(name, result).Inc()
	if result != "timeout" {
		miCommandDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	}
}

func SetPending(n int) {
	if regOK.Load() {
		miPending.Set(float64(n))
	}
}

func IncEvent(kind string) {
	if regOK.Load() {
		miEvents.WithLabelValues(kind).Inc()
	}
}

func IncParseError() {
	if regOK.Load() {
		miParseErrors.Inc()
	}
}

func IncRequest(command string, success bool) {
	if !regOK.Load() {
		return
	}
	s := "false"
	if success {
		s = "true"
	}
	frontendRequests.WithLabelValues(command, s).Inc()
}
