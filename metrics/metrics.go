// Package metrics holds the prometheus collectors for reminders and notification delivery.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics for the reminder pipeline. A nil *Metrics is valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	deliveries     *prometheus.CounterVec
	dispatchTime   *prometheus.HistogramVec
	timerFires     prometheus.Counter
	armedTimers    *prometheus.GaugeVec
	reconciles     *prometheus.CounterVec
	dueProcessed   *prometheus.CounterVec
	emailProviders *prometheus.CounterVec
}

// New registers the collectors with reg. The default registry is used when reg is nil.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medibot",
			Subsystem: "notify",
			Name:      "deliveries_total",
			Help:      "Notification deliveries by channel and outcome",
		}, []string{"channel", "status"}),
		dispatchTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "medibot",
			Subsystem: "notify",
			Name:      "dispatch_seconds",
			Help:      "Time spent dispatching a notification to every channel",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		timerFires: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "medibot",
			Subsystem: "reminder",
			Name:      "timer_fires_total",
			Help:      "Local reminder timers that fired",
		}),
		armedTimers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "medibot",
			Subsystem: "reminder",
			Name:      "armed_timers",
			Help:      "Local reminder timers currently armed per user",
		}, []string{"user_id"}),
		reconciles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medibot",
			Subsystem: "reminder",
			Name:      "reconciliations_total",
			Help:      "Reconciliation passes by trigger",
		}, []string{"trigger"}),
		dueProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medibot",
			Subsystem: "backup",
			Name:      "due_processed_total",
			Help:      "Server-side due reminders processed by outcome",
		}, []string{"status"}),
		emailProviders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medibot",
			Subsystem: "email",
			Name:      "provider_sends_total",
			Help:      "Email sends by provider and outcome",
		}, []string{"provider", "status"}),
	}

	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	m.gatherer = prometheus.DefaultGatherer
	if reg != nil {
		registerer = reg
		m.gatherer = reg
	}

	registerer.MustRegister(
		m.deliveries,
		m.dispatchTime,
		m.timerFires,
		m.armedTimers,
		m.reconciles,
		m.dueProcessed,
		m.emailProviders,
	)

	return m
}

// Handler serves the registered collectors in the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}

	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func status(err error) string {
	if err != nil {
		return "failure"
	}

	return "success"
}

// ObserveDelivery of one channel
func (m *Metrics) ObserveDelivery(channel string, err error) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(channel, status(err)).Inc()
}

// ObserveDispatch duration for a notification kind
func (m *Metrics) ObserveDispatch(kind string, seconds float64) {
	if m == nil {
		return
	}
	m.dispatchTime.WithLabelValues(kind).Observe(seconds)
}

// ObserveTimerFire counts a local timer firing
func (m *Metrics) ObserveTimerFire() {
	if m == nil {
		return
	}
	m.timerFires.Inc()
}

// SetArmedTimers for a user
func (m *Metrics) SetArmedTimers(userID string, armed int) {
	if m == nil {
		return
	}
	m.armedTimers.WithLabelValues(userID).Set(float64(armed))
}

// DeleteArmedTimers drops the gauge of a user whose session ended
func (m *Metrics) DeleteArmedTimers(userID string) {
	if m == nil {
		return
	}
	m.armedTimers.DeleteLabelValues(userID)
}

// ObserveReconcile counts a reconciliation pass
func (m *Metrics) ObserveReconcile(trigger string) {
	if m == nil {
		return
	}
	m.reconciles.WithLabelValues(trigger).Inc()
}

// ObserveDueProcessed counts a server-side due reminder
func (m *Metrics) ObserveDueProcessed(err error) {
	if m == nil {
		return
	}
	m.dueProcessed.WithLabelValues(status(err)).Inc()
}

// ObserveEmailProvider counts one provider attempt
func (m *Metrics) ObserveEmailProvider(provider string, err error) {
	if m == nil {
		return
	}
	m.emailProviders.WithLabelValues(provider, status(err)).Inc()
}
