package actionq

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors fed from a runner's log func.
type Metrics struct {
	events        *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	genericErrors *prometheus.CounterVec

	mu      sync.Mutex
	started map[ActionType]time.Time
	now     func() time.Time
}

// NewMetrics creates the collectors and registers them with reg. A nil reg skips registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "actionq",
			Name:      "action_events_total",
			Help:      "Action lifecycle events by event and action type.",
		}, []string{"event", "action"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "actionq",
			Name:      "action_duration_seconds",
			Help:      "Time from action start to its completion or failure.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action", "outcome"}),
		genericErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "actionq",
			Name:      "generic_errors_total",
			Help:      "Rejected execution attempts by reason.",
		}, []string{"reason"}),
		started: make(map[ActionType]time.Time),
		now:     time.Now,
	}
	if reg != nil {
		reg.MustRegister(m.events, m.duration, m.genericErrors)
	}
	return m
}

// LogFunc returns a log func that records metrics and then calls next, if set.
func (m *Metrics) LogFunc(next LogFunc) LogFunc {
	return func(logType LogType, action *Action, c *Controller) {
		m.observe(logType, action)
		if next != nil {
			next(logType, action, c)
		}
	}
}

func (m *Metrics) observe(logType LogType, action *Action) {
	if IsGenericError(logType) {
		m.genericErrors.WithLabelValues(string(logType)).Inc()
		return
	}
	var actionType ActionType
	if action != nil {
		actionType = action.Type
	}
	m.events.WithLabelValues(string(logType), string(actionType)).Inc()

	m.mu.Lock()
	defer m.mu.Unlock()
	switch logType {
	case LogStarted:
		m.started[actionType] = m.now()
	case LogCompleted, LogError:
		start, ok := m.started[actionType]
		if !ok {
			return
		}
		outcome := "completed"
		if logType == LogError {
			outcome = "error"
		}
		m.duration.WithLabelValues(string(actionType), outcome).Observe(m.now().Sub(start).Seconds())
		// synchronous completion logs completed twice, only the first one is timed
		delete(m.started, actionType)
	case LogReset:
		clear(m.started)
	}
}
