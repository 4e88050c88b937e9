// Package metrics counts volume operations and external tool runs. The
// recovery environment has no scrape endpoint, so the registry is exported
// in the node_exporter textfile format.
package metrics

import (
	"path/filepath"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "recovery"
	subsystem = "volume"

	ResultSuccess = "success"
	ResultFailure = "failure"
)

type Recorder struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	commands   *prometheus.HistogramVec
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "operations_total",
			Help:      "Volume operations by name and result.",
		}, []string{"operation", "result"}),
		commands: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "command_duration_seconds",
			Help:      "Duration of external filesystem tools by program and exit code.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"command", "exit_code"}),
	}
	r.registry.MustRegister(r.operations, r.commands)
	return r
}

// ObserveOperation counts one finished operation.
func (r *Recorder) ObserveOperation(operation string, err error) {
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}
	r.operations.WithLabelValues(operation, result).Inc()
}

// ObserveCommand implements command.Observer.
func (r *Recorder) ObserveCommand(path string, exitCode int, duration time.Duration) {
	r.commands.WithLabelValues(filepath.Base(path), strconv.Itoa(exitCode)).Observe(duration.Seconds())
}

func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// WriteTextfile atomically writes all metrics to path.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
