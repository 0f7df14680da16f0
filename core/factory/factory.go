package factory

import (
	"errors"
	"io"
)

// ErrNoFactory is returned by layers above the contract that need to turn an
// absent factory into an error (loaders, HTTP handlers).
var ErrNoFactory = errors.New("factory: no factory produced")

// Meta receives key/value metadata describing a compiled artifact.
type Meta interface {
	Declare(key, value string)
}

// DSP is a runnable unit created by a factory. Its processing semantics live
// outside this package.
type DSP interface {
	// Factory returns the factory handle the instance was created from.
	Factory() Factory
	// Metadata forwards the artifact metadata to m.
	Metadata(m Meta)
	// Clone returns an independent instance built from the same factory.
	Clone() DSP
}

// WriteOptions selects the serialisation variant. Binary requests a compact
// machine-oriented encoding, Small a reduced variant. Each backend documents
// what the flags mean for its format; backends with a single encoding ignore
// them.
type WriteOptions struct {
	Binary bool
	Small  bool
}

// Factory is the capability set every backend-specific compiled artifact
// exposes.
type Factory interface {
	Name() string

	SHAKey() string
	SetSHAKey(key string)

	DSPCode() string
	SetDSPCode(code string)

	// CreateDSPInstance returns a new instance owned by the caller, or nil
	// when the backend cannot instantiate without further setup. owner is the
	// handle the instance calls back into; nil means the receiver itself.
	CreateDSPInstance(owner Factory) DSP

	Metadata(m Meta)

	// Write serialises the factory. It must not mutate the receiver and may
	// be called any number of times.
	Write(w io.Writer, opts WriteOptions) error

	// LibraryList returns the library dependencies in load order.
	LibraryList() []string
}

// Reader reconstructs factories from a backend-specific stream.
type Reader interface {
	// Name identifies the backend format.
	Name() string
	// Read returns nil, nil when the stream is not in the reader's format or
	// cannot be parsed. Only failures of r itself are returned as errors.
	Read(r io.Reader) (Factory, error)
}

// ReaderFunc adapts a function to the Reader interface.
type ReaderFunc struct {
	ID string
	Fn func(r io.Reader) (Factory, error)
}

// Name implements Reader.
func (f ReaderFunc) Name() string { return f.ID }

// Read implements Reader.
func (f ReaderFunc) Read(r io.Reader) (Factory, error) {
	if f.Fn == nil {
		return nil, nil
	}
	return f.Fn(r)
}

// Read is the generic reconstruction entry point. No format is known at this
// level, so the stream is never claimed.
func Read(io.Reader) (Factory, error) { return nil, nil }
