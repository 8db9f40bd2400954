// Package metrics exposes the LFRAS Prometheus counters. A nil *Metrics is
// valid and records nothing, which keeps tests and CLI runs free of a
// registry.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "lfras"

type Metrics struct {
	reminders           *prometheus.CounterVec
	reminderRuns        *prometheus.CounterVec
	reminderRunDuration *prometheus.HistogramVec
	uploadsValidated    *prometheus.CounterVec
	activitiesCompleted prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		reminders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_reminders_total", namespace),
			Help: "Reminder dispatches by job, trigger kind and result.",
		}, []string{"job", "kind", "result"}),
		reminderRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_reminder_runs_total", namespace),
			Help: "Reminder job runs by job and result.",
		}, []string{"job", "result"}),
		reminderRunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    fmt.Sprintf("%s_reminder_run_duration_seconds", namespace),
			Help:    "Wall time of reminder job runs.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
		uploadsValidated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_uploads_validated_total", namespace),
			Help: "Uploads that reached a final status, by status.",
		}, []string{"result"}),
		activitiesCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_activities_completed_total", namespace),
			Help: "Activities moved to COMPLETED.",
		}),
	}

	for _, c := range []prometheus.Collector{m.reminders, m.reminderRuns, m.reminderRunDuration, m.uploadsValidated, m.activitiesCompleted} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) Reminder(job, kind, result string) {
	if m == nil {
		return
	}
	m.reminders.WithLabelValues(job, kind, result).Inc()
}

func (m *Metrics) ReminderRun(job, result string, took time.Duration) {
	if m == nil {
		return
	}
	m.reminderRuns.WithLabelValues(job, result).Inc()
	m.reminderRunDuration.WithLabelValues(job).Observe(took.Seconds())
}

func (m *Metrics) UploadValidated(result string) {
	if m == nil {
		return
	}
	m.uploadsValidated.WithLabelValues(result).Inc()
}

func (m *Metrics) ActivityCompleted() {
	if m == nil {
		return
	}
	m.activitiesCompleted.Inc()
}
