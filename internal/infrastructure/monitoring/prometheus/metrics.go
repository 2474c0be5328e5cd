package prometheus

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/config"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/run"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/infrastructure/monitoring/logging"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/pkg/errors"
)

// DefaultStageDurationBuckets spans sub-second table writes to hour-long
// decay surfaces.
var DefaultStageDurationBuckets = []float64{.1, .5, 1, 5, 10, 30, 60, 300, 900, 3600}

// PipelineMetrics records per-stage metrics of a run. A batch process does
// not live long enough to be scraped, so Flush pushes the registry to a
// Pushgateway grouped by run id.
type PipelineMetrics struct {
	StageRunsTotal     CounterVec
	StageDuration      HistogramVec
	TablesWrittenTotal CounterVec
	GapsTotal          CounterVec
	RunDurationSeconds GaugeVec
	LastRunSuccess     GaugeVec

	collector MetricsCollector
	pushURL   string
	job       string
	logger    logging.Logger
}

var _ run.Recorder = (*PipelineMetrics)(nil)

// NewPipelineMetrics registers the pipeline metrics on collector. An empty
// pushURL turns Flush into a no-op.
func NewPipelineMetrics(collector MetricsCollector, pushURL, job string, logger logging.Logger) *PipelineMetrics {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &PipelineMetrics{
		StageRunsTotal:     collector.RegisterCounter("stage_runs_total", "Pipeline stage executions", "stage", "status"),
		StageDuration:      collector.RegisterHistogram("stage_duration_seconds", "Pipeline stage duration", DefaultStageDurationBuckets, "stage"),
		TablesWrittenTotal: collector.RegisterCounter("tables_written_total", "Tables persisted", "stage"),
		GapsTotal:          collector.RegisterCounter("gaps_total", "Recoverable lookup gaps", "kind"),
		RunDurationSeconds: collector.RegisterGauge("run_duration_seconds", "Duration of the last run", "status"),
		LastRunSuccess:     collector.RegisterGauge("last_run_success", "1 when the last run succeeded"),
		collector:          collector,
		pushURL:            pushURL,
		job:                job,
		logger:             logger.Named("metrics"),
	}
}

// NewFromConfig builds the collector and metrics described by cfg.
func NewFromConfig(cfg config.MetricsConfig, logger logging.Logger) (*PipelineMetrics, error) {
	collector, err := NewMetricsCollector(CollectorConfig{
		Namespace:       cfg.Namespace,
		EnableGoMetrics: false,
	}, logger)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeValidation, "invalid metrics configuration")
	}
	return NewPipelineMetrics(collector, cfg.PushgatewayURL, cfg.Job, logger), nil
}

// Collector returns the underlying collector.
func (m *PipelineMetrics) Collector() MetricsCollector { return m.collector }

func (m *PipelineMetrics) ObserveStage(stage, _ string, d time.Duration, err error) {
	status := run.StatusSucceeded
	if err != nil {
		status = run.StatusFailed
	}
	m.StageRunsTotal.WithLabelValues(stage, status).Inc()
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *PipelineMetrics) TablesWritten(stage string, n int) {
	if n > 0 {
		m.TablesWrittenTotal.WithLabelValues(stage).Add(float64(n))
	}
}

func (m *PipelineMetrics) GapsRecorded(kind string, n int) {
	if n > 0 {
		m.GapsTotal.WithLabelValues(kind).Add(float64(n))
	}
}

func (m *PipelineMetrics) RunFinished(status string, d time.Duration) {
	m.RunDurationSeconds.WithLabelValues(status).Set(d.Seconds())
	if status == run.StatusSucceeded {
		m.LastRunSuccess.WithLabelValues().Set(1)
	} else {
		m.LastRunSuccess.WithLabelValues().Set(0)
	}
}

// Flush pushes every metric to the Pushgateway under job and run_id.
func (m *PipelineMetrics) Flush(ctx context.Context, runID string) error {
	if m.pushURL == "" {
		return nil
	}
	pusher := push.New(m.pushURL, m.job).
		Gatherer(m.collector.Gatherer()).
		Grouping("run_id", runID)
	if err := pusher.PushContext(ctx); err != nil {
		return errors.Wrap(err, errors.ErrCodeExternal, "pushing metrics").WithDetail(m.pushURL)
	}
	m.logger.Debug("metrics pushed", logging.String("url", m.pushURL), logging.RunID(runID))
	return nil
}
