package accounting

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	admissions    *prometheus.CounterVec
	admittedBytes prometheus.Counter
	releasedBytes prometheus.Counter
	violations    prometheus.Counter
	cacheLookups  *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ecoleaf",
			Subsystem: "accounting",
			Name:      "admissions_total",
			Help:      "Quota admission decisions by result.",
		}, []string{"result"}),
		admittedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ecoleaf",
			Subsystem: "accounting",
			Name:      "admitted_bytes_total",
			Help:      "Bytes admitted against user quotas.",
		}),
		releasedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ecoleaf",
			Subsystem: "accounting",
			Name:      "released_bytes_total",
			Help:      "Bytes released by deletions and shrinks.",
		}),
		violations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ecoleaf",
			Subsystem: "accounting",
			Name:      "invariant_violations_total",
			Help:      "Accounting invariant violations detected.",
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ecoleaf",
			Subsystem: "accounting",
			Name:      "report_cache_lookups_total",
			Help:      "Report cache lookups by report and result.",
		}, []string{"report", "result"}),
	}

	if reg != nil {
		reg.MustRegister(m.admissions, m.admittedBytes, m.releasedBytes, m.violations, m.cacheLookups)
	}
	return m
}
