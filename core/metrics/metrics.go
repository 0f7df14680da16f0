package metrics

import (
	"time"

	"github.com/kilianp07/dspfactory/core/module"
)

// Op names the observed factory operation.
type Op string

const (
	OpWrite Op = "write" // serialisation through Factory.Write
	OpRead  Op = "read"  // reconstruction through the reader registry
	OpStore Op = "store" // repository save
	OpLoad  Op = "load"  // repository load
)

// Result classifies the outcome of an operation.
type Result string

const (
	ResultOK     Result = "ok"
	ResultAbsent Result = "absent" // no reader claimed the stream
	ResultError  Result = "error"
	ResultHit    Result = "hit"  // served from cache
	ResultMiss   Result = "miss" // unknown SHA key
)

// FactoryEvent records a single factory operation.
type FactoryEvent struct {
	Op       Op
	Backend  string
	Result   Result
	Bytes    int
	Duration time.Duration
	Time     time.Time
}

// Sink records factory events for observability purposes.
type Sink interface {
	RecordFactoryEvent(ev FactoryEvent) error
}

// Config defines settings for metrics sinks.
type Config struct {
	Sinks []module.Config `json:"sinks"`
	// PrometheusAddr, when set, exposes /metrics on a dedicated listener.
	PrometheusAddr string `json:"prometheus_addr"`
}

// NopSink implements Sink with no-op methods.
type NopSink struct{}

func (NopSink) RecordFactoryEvent(FactoryEvent) error { return nil }

// MultiSink fans events out to multiple sinks.
type MultiSink struct {
	Sinks []Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordFactoryEvent forwards ev to every sink. All sinks are tried; the
// first error is returned.
func (m *MultiSink) RecordFactoryEvent(ev FactoryEvent) error {
	var first error
	for _, s := range m.Sinks {
		if err := s.RecordFactoryEvent(ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close closes every sink that holds resources.
func (m *MultiSink) Close() {
	for _, s := range m.Sinks {
		if c, ok := s.(interface{ Close() }); ok {
			c.Close()
		}
	}
}
