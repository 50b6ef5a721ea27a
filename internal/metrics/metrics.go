// Package metrics records the outcome of a run in Prometheus text format, for
// pickup by the node_exporter textfile collector.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/javanstorm/stasis/internal/timing"
)

const namespace = "stasis"

// Recorder holds the gauges of one run on a private registry.
type Recorder struct {
	logger   zerolog.Logger
	registry *prometheus.Registry

	lastRun     *prometheus.GaugeVec
	lastSuccess *prometheus.GaugeVec
	phase       *prometheus.GaugeVec
	frozen      prometheus.Gauge
	thawed      prometheus.Gauge
	agentWait   prometheus.Gauge
}

// NewRecorder creates a Recorder with all stasis gauges registered.
func NewRecorder(logger zerolog.Logger) *Recorder {
	r := &Recorder{
		logger:   logger.With().Str("component", "metrics").Logger(),
		registry: prometheus.NewRegistry(),
	}

	r.lastRun = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run of a command finished",
		},
		[]string{"command"},
	)
	r.lastSuccess = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success",
			Help:      "Whether the last run of a command succeeded (1) or failed (0)",
		},
		[]string{"command"},
	)
	r.phase = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Duration of each phase of the last snapshot run",
		},
		[]string{"phase"},
	)
	r.frozen = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "filesystems_frozen",
		Help:      "Filesystems frozen by the last run",
	})
	r.thawed = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "filesystems_thawed",
		Help:      "Filesystems thawed by the last run",
	})
	r.agentWait = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "agent_wait_seconds",
		Help:      "Time spent waiting for the guest agent in the last run",
	})

	r.registry.MustRegister(r.lastRun, r.lastSuccess, r.phase, r.frozen, r.thawed, r.agentWait)
	return r
}

// RecordRun stamps the end of a command run.
func (r *Recorder) RecordRun(command string, finished time.Time, err error) {
	r.lastRun.WithLabelValues(command).Set(float64(finished.Unix()))
	success := 0.0
	if err == nil {
		success = 1
	}
	r.lastSuccess.WithLabelValues(command).Set(success)
}

// RecordPhases sets one gauge per timed phase.
func (r *Recorder) RecordPhases(phases []timing.Phase) {
	for _, p := range phases {
		r.phase.WithLabelValues(p.Name).Set(p.Duration.Seconds())
	}
}

// RecordFilesystems sets the frozen and thawed counts.
func (r *Recorder) RecordFilesystems(frozen, thawed int) {
	r.frozen.Set(float64(frozen))
	r.thawed.Set(float64(thawed))
}

// RecordAgentWait sets how long the agent poller ran.
func (r *Recorder) RecordAgentWait(d time.Duration) {
	r.agentWait.Set(d.Seconds())
}

// WriteTextfile writes every gauge to path atomically. An empty path is a
// no-op.
func (r *Recorder) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	r.logger.Debug().Str("path", path).Msg("Metrics written")
	return nil
}
