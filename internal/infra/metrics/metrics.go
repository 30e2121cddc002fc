package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"expiry_notifier/internal/domain/run"
)

// RunMetrics holds the gauges describing the last job run. The job is short
// lived, so the values are written to a node_exporter textfile instead of
// being served over HTTP.
type RunMetrics struct {
	registry *prometheus.Registry

	LastRunTimestamp prometheus.Gauge
	LastRunDuration  prometheus.Gauge
	LastRunSuccess   prometheus.Gauge
	Accounts         *prometheus.GaugeVec
	Notifications    *prometheus.GaugeVec
}

func NewRunMetrics() *RunMetrics {
	m := &RunMetrics{
		registry: prometheus.NewRegistry(),
		LastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "expiry_notifier_last_run_timestamp_seconds",
			Help: "Unix time the last run finished",
		}),
		LastRunDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "expiry_notifier_last_run_duration_seconds",
			Help: "Wall time of the last run",
		}),
		LastRunSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "expiry_notifier_last_run_success",
			Help: "1 if the last run succeeded, 0 otherwise",
		}),
		Accounts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "expiry_notifier_accounts",
			Help: "Accounts seen by the last run, by state (candidate, selected, unresolved)",
		}, []string{"state"}),
		Notifications: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "expiry_notifier_notifications",
			Help: "Notification emails of the last run, by result (sent, failed)",
		}, []string{"result"}),
	}
	m.registry.MustRegister(m.LastRunTimestamp, m.LastRunDuration, m.LastRunSuccess, m.Accounts, m.Notifications)
	return m
}

// Observe copies the report counters into the gauges.
func (m *RunMetrics) Observe(r *run.Report) {
	m.LastRunTimestamp.Set(float64(r.FinishedAt.Unix()))
	m.LastRunDuration.Set(r.Duration().Seconds())
	if r.Status() == run.StatusSuccess {
		m.LastRunSuccess.Set(1)
	} else {
		m.LastRunSuccess.Set(0)
	}
	m.Accounts.WithLabelValues("candidate").Set(float64(r.Candidates))
	m.Accounts.WithLabelValues("selected").Set(float64(r.Selected))
	m.Accounts.WithLabelValues("unresolved").Set(float64(r.Unresolved))
	m.Notifications.WithLabelValues("sent").Set(float64(r.Sent))
	m.Notifications.WithLabelValues("failed").Set(float64(r.SendFailed))
}

// WriteTextfile writes the registry in text exposition format to path.
func (m *RunMetrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile %s: %w", path, err)
	}
	return nil
}
