package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/dspfactory/core/metrics"
)

// PromSink records factory events in Prometheus metrics.
type PromSink struct {
	ops     *prometheus.CounterVec
	bytes   *prometheus.HistogramVec
	latency *prometheus.HistogramVec
}

// NewPromSink registers factory metrics on the default Prometheus registerer.
// The metrics endpoint is served separately, see StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	ops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dspfactory_operations_total",
		Help: "Total number of factory operations by outcome",
	}, []string{"op", "backend", "result"})
	bytes := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dspfactory_payload_bytes",
		Help:    "Size of serialised factories",
		Buckets: prometheus.ExponentialBuckets(64, 4, 8),
	}, []string{"op", "backend"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dspfactory_operation_seconds",
		Help:    "Duration of factory operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	if err := reg.Register(ops); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			ops = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(bytes); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			bytes = are.ExistingCollector.(*prometheus.HistogramVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(latency); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			latency = are.ExistingCollector.(*prometheus.HistogramVec)
		} else {
			return nil, err
		}
	}
	return &PromSink{ops: ops, bytes: bytes, latency: latency}, nil
}

// RecordFactoryEvent increments the operation counter and, for successful
// operations carrying a payload, observes its size.
func (s *PromSink) RecordFactoryEvent(ev coremetrics.FactoryEvent) error {
	s.ops.WithLabelValues(string(ev.Op), ev.Backend, string(ev.Result)).Inc()
	if ev.Bytes > 0 && (ev.Result == coremetrics.ResultOK || ev.Result == coremetrics.ResultHit) {
		s.bytes.WithLabelValues(string(ev.Op), ev.Backend).Observe(float64(ev.Bytes))
	}
	if ev.Duration > 0 {
		s.latency.WithLabelValues(string(ev.Op)).Observe(ev.Duration.Seconds())
	}
	return nil
}
