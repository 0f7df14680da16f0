package metrics

import "github.com/kilianp07/dspfactory/core/module"

var sinkRegistry = module.NewRegistry[Sink]()

// RegisterSink adds a metrics sink constructor identified by name.
func RegisterSink(name string, c module.Constructor[Sink]) error {
	return sinkRegistry.Register(name, c)
}

// NewSink creates a Sink from the provided configuration.
func NewSink(cfgs []module.Config) (Sink, error) {
	if len(cfgs) == 0 {
		return NopSink{}, nil
	}
	if len(cfgs) == 1 {
		return sinkRegistry.Create(cfgs[0])
	}
	sinks := make([]Sink, len(cfgs))
	for i, c := range cfgs {
		s, err := sinkRegistry.Create(c)
		if err != nil {
			return nil, err
		}
		sinks[i] = s
	}
	return NewMultiSink(sinks...), nil
}
