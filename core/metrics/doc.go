package metrics

// Package metrics defines the sink interface used to observe factory
// serialisation and storage. Sinks like PromSink and InfluxSink (infra/metrics)
// record one FactoryEvent per operation and can be combined with
// NewMultiSink. NewSink returns a MultiSink automatically when several sinks
// are configured.
