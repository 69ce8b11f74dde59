package deskapp

import (
	"github.com/phillip-england/checkdesk/internal/checkin"
	"github.com/prometheus/client_golang/prometheus"
)

type deskMetrics struct {
	scans      *prometheus.CounterVec
	checkedIn  prometheus.Gauge
	expected   prometheus.Gauge
	rosterRows prometheus.Gauge
}

func newDeskMetrics(reg prometheus.Registerer) *deskMetrics {
	m := &deskMetrics{
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "checkdesk",
			Name:      "scans_total",
			Help:      "Scans processed by the desk, by scan kind and result.",
		}, []string{"kind", "result"}),
		checkedIn: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "checkdesk",
			Name:      "checked_in",
			Help:      "Roster rows currently checked in.",
		}),
		expected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "checkdesk",
			Name:      "expected_total",
			Help:      "Expected attendance configured at the desk.",
		}),
		rosterRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "checkdesk",
			Name:      "roster_rows",
			Help:      "Rows in the loaded roster.",
		}),
	}
	reg.MustRegister(m.scans, m.checkedIn, m.expected, m.rosterRows)
	return m
}

func (m *deskMetrics) observeScan(out checkin.Outcome) {
	m.scans.WithLabelValues(out.Kind.String(), scanResult(out)).Inc()
}

func (m *deskMetrics) setProgress(p Progress, rows int) {
	m.checkedIn.Set(float64(p.Checked))
	m.expected.Set(float64(p.Total))
	m.rosterRows.Set(float64(rows))
}

func scanResult(out checkin.Outcome) string {
	switch {
	case out.OK:
		return "ok"
	case out.Reason == checkin.ReasonFormat:
		return "format_error"
	default:
		return "not_found"
	}
}
