package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

const namespace = "bookings"

// ReminderMetrics exposes counters/histograms for the reminder sweeps.
type ReminderMetrics struct {
	deliveriesTotal *prometheus.CounterVec
	sweepDuration   *prometheus.HistogramVec
	sweepScanned    *prometheus.CounterVec
}

func NewReminderMetrics(reg prometheus.Registerer) *ReminderMetrics {
	m := &ReminderMetrics{
		deliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminders",
			Name:      "deliveries_total",
			Help:      "Reminder outcomes per tier",
		}, []string{"tier", "outcome"}),
		sweepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reminders",
			Name:      "sweep_duration_seconds",
			Help:      "Wall time of a single sweep tick",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tier", "status"}),
		sweepScanned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminders",
			Name:      "scanned_total",
			Help:      "Bookings examined by sweeps",
		}, []string{"tier"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.deliveriesTotal, m.sweepDuration, m.sweepScanned)
	return m
}

// ObserveOutcome counts one booking handled by a sweep. outcome is one of
// delivered, skipped, failed.
func (m *ReminderMetrics) ObserveOutcome(tier, outcome string) {
	if m == nil {
		return
	}
	m.deliveriesTotal.WithLabelValues(tier, outcome).Inc()
}

func (m *ReminderMetrics) ObserveSweep(tier, status string, scanned int, seconds float64) {
	if m == nil {
		return
	}
	m.sweepDuration.WithLabelValues(tier, status).Observe(seconds)
	m.sweepScanned.WithLabelValues(tier).Add(float64(scanned))
}

// AdmissionMetrics counts admission decisions per call site.
type AdmissionMetrics struct {
	decisionsTotal *prometheus.CounterVec
}

func NewAdmissionMetrics(reg prometheus.Registerer) *AdmissionMetrics {
	m := &AdmissionMetrics{
		decisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "admission",
			Name:      "decisions_total",
			Help:      "Admission decisions by call site and outcome",
		}, []string{"site", "outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.decisionsTotal)
	return m
}

func (m *AdmissionMetrics) ObserveDecision(site, outcome string) {
	if m == nil {
		return
	}
	m.decisionsTotal.WithLabelValues(site, outcome).Inc()
}

// ReminderCounts is a tier → outcome → count view of deliveries_total.
type ReminderCounts map[string]map[string]float64

// SnapshotReminders reads the delivery counters back out of gatherer.
func SnapshotReminders(gatherer prometheus.Gatherer) ReminderCounts {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	out := ReminderCounts{}
	mfs, err := gatherer.Gather()
	if err != nil {
		return out
	}
	var family *dto.MetricFamily
	for _, mf := range mfs {
		if mf != nil && mf.GetName() == namespace+"_reminders_deliveries_total" {
			family = mf
			break
		}
	}
	if family == nil {
		return out
	}
	for _, metric := range family.Metric {
		if metric == nil || metric.GetCounter() == nil {
			continue
		}
		tier, outcome := labelValue(metric, "tier"), labelValue(metric, "outcome")
		if out[tier] == nil {
			out[tier] = map[string]float64{}
		}
		out[tier][outcome] += metric.GetCounter().GetValue()
	}
	return out
}

func labelValue(metric *dto.Metric, name string) string {
	for _, lp := range metric.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}
