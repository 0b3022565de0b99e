package service

import (
	"github.com/prometheus/client_golang/prometheus"

	"debiasapi/internal/model"
	"debiasapi/internal/review"
)

// Metrics holds the review workflow counters. A nil *Metrics records nothing.
type Metrics struct {
	sessionsCreated prometheus.Counter
	transitions     *prometheus.CounterVec
	limitHits       prometheus.Counter
	swept           prometheus.Counter
}

// NewMetrics registers the review counters on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "review_sessions_created_total",
			Help: "Review sessions successfully created.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "review_item_transitions_total",
			Help: "Review item state transitions by event and resulting status.",
		}, []string{"event", "to"}),
		limitHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "review_regeneration_limit_total",
			Help: "Regeneration requests refused because the item hit its limit.",
		}),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "review_sessions_swept_total",
			Help: "Expired sessions removed by the background sweep.",
		}),
	}
	for _, c := range []prometheus.Collector{m.sessionsCreated, m.transitions, m.limitHits, m.swept} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) sessionCreated() {
	if m != nil {
		m.sessionsCreated.Inc()
	}
}

func (m *Metrics) transition(ev review.Event, to model.ItemStatus) {
	if m != nil {
		m.transitions.WithLabelValues(string(ev), string(to)).Inc()
	}
}

func (m *Metrics) limitHit() {
	if m != nil {
		m.limitHits.Inc()
	}
}

// Swept is meant to be passed to store.WithSweepObserver.
func (m *Metrics) Swept(n int) {
	if m != nil && n > 0 {
		m.swept.Add(float64(n))
	}
}
