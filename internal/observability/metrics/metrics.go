package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters/histograms for the calendar scheduling
// layer.
type SchedulingMetrics struct {
	bookingsTotal     *prometheus.CounterVec
	fallbacksTotal    prometheus.Counter
	directoryLookups  *prometheus.CounterVec
	conflictQueries   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wellspring",
			Subsystem: "scheduling",
			Name:      "bookings_total",
			Help:      "Total booking attempts by outcome",
		}, []string{"outcome", "fallback"}),
		fallbacksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wellspring",
			Subsystem: "scheduling",
			Name:      "calendar_fallbacks_total",
			Help:      "Delegated-calendar failures that fell back to the administrative calendar",
		}),
		directoryLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wellspring",
			Subsystem: "scheduling",
			Name:      "directory_lookups_total",
			Help:      "Provider calendar directory lookups by cache result",
		}, []string{"result"}),
		conflictQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wellspring",
			Subsystem: "scheduling",
			Name:      "conflict_queries_total",
			Help:      "Busy-interval queries by whether the upstream calendar answered",
		}, []string{"calendar_checked"}),
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "wellspring",
			Subsystem: "scheduling",
			Name:      "operation_duration_seconds",
			Help:      "Latency of scheduling facade operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.fallbacksTotal, m.directoryLookups, m.conflictQueries, m.operationDuration)
	return m
}

func (m *SchedulingMetrics) ObserveBooking(outcome string, usedFallback bool) {
	if m == nil {
		return
	}
	label := "false"
	if usedFallback {
		label = "true"
	}
	m.bookingsTotal.WithLabelValues(outcome, label).Inc()
}

func (m *SchedulingMetrics) ObserveCalendarFallback() {
	if m == nil {
		return
	}
	m.fallbacksTotal.Inc()
}

func (m *SchedulingMetrics) ObserveDirectoryLookup(result string) {
	if m == nil {
		return
	}
	m.directoryLookups.WithLabelValues(result).Inc()
}

func (m *SchedulingMetrics) ObserveConflictQuery(calendarChecked bool) {
	if m == nil {
		return
	}
	label := "false"
	if calendarChecked {
		label = "true"
	}
	m.conflictQueries.WithLabelValues(label).Inc()
}

func (m *SchedulingMetrics) ObserveOperationDuration(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.operationDuration.WithLabelValues(operation).Observe(seconds)
}
