// Package healthz exposes an HTTP surface for liveness and Prometheus
// metrics. It never influences request handling: every counter here is
// written to from the datagram and orchestrator paths but never read by
// them.
package healthz

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the process-wide counters. The zero value is unusable;
// construct with NewMetrics so every counter is registered exactly once.
type Metrics struct {
	DatagramsReceived  *prometheus.CounterVec
	DatagramsDiscarded *prometheus.CounterVec
	RepliesSent        *prometheus.CounterVec
	PoolExhausted      *prometheus.CounterVec
	DialogWriteFailed  prometheus.Counter
}

// NewMetrics registers all counters against reg and returns the handle
// used by the rest of the process to record events.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		DatagramsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "radiusd_datagrams_received_total",
			Help: "RADIUS datagrams received, labeled by packet code.",
		}, []string{"code"}),
		DatagramsDiscarded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "radiusd_datagrams_discarded_total",
			Help: "RADIUS datagrams discarded before a reply was attempted, labeled by reason.",
		}, []string{"reason"}),
		RepliesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "radiusd_replies_sent_total",
			Help: "RADIUS replies sent, labeled by reply code.",
		}, []string{"code"}),
		PoolExhausted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "radiusd_pool_exhausted_total",
			Help: "fromPool directive evaluations that failed because a pool was empty, labeled by pool name.",
		}, []string{"pool"}),
		DialogWriteFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "radiusd_dialog_store_write_failures_total",
			Help: "Dialog persistence attempts that returned an error from the Redis pipeline.",
		}),
	}
}

// ReceivedInc records one inbound datagram of the given packet code.
func (m *Metrics) ReceivedInc(code int) {
	m.DatagramsReceived.WithLabelValues(strconv.Itoa(code)).Inc()
}

// DiscardedInc records one datagram dropped before a reply was attempted.
func (m *Metrics) DiscardedInc(reason string) {
	m.DatagramsDiscarded.WithLabelValues(reason).Inc()
}

// ReplySentInc records one reply written back to the client.
func (m *Metrics) ReplySentInc(code uint8) {
	m.RepliesSent.WithLabelValues(strconv.Itoa(int(code))).Inc()
}

// PoolExhaustedInc records one fromPool failure for the named pool.
func (m *Metrics) PoolExhaustedInc(pool string) {
	m.PoolExhausted.WithLabelValues(pool).Inc()
}

// DialogWriteFailedInc records one failed dialog-store write.
func (m *Metrics) DialogWriteFailedInc() {
	m.DialogWriteFailed.Inc()
}
