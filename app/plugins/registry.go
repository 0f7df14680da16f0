// Package plugins maps reader names from configuration to factory readers.
package plugins

import (
	"fmt"

	"github.com/kilianp07/dspfactory/core/factory"
	"github.com/kilianp07/dspfactory/core/module"
)

var readers = module.NewRegistry[factory.Reader]()

// RegisterReader makes a reader constructor available under name.
func RegisterReader(name string, c module.Constructor[factory.Reader]) error {
	return readers.Register(name, c)
}

// ReaderTypes lists the registered reader names.
func ReaderTypes() []string { return readers.Types() }

// NewReaders builds a reader registry in the order of cfgs. An empty list
// yields every registered reader.
func NewReaders(cfgs []module.Config) (*factory.Readers, error) {
	if len(cfgs) == 0 {
		for _, name := range readers.Types() {
			cfgs = append(cfgs, module.Config{Type: name})
		}
	}
	reg, err := factory.NewReaders()
	if err != nil {
		return nil, err
	}
	for _, c := range cfgs {
		rd, err := readers.Create(c)
		if err != nil {
			return nil, fmt.Errorf("reader %s: %w", c.Type, err)
		}
		if err := reg.Register(rd); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
