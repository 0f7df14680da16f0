package archive

import (
	"io"
	"strings"

	"github.com/kilianp07/dspfactory/core/factory"
)

// Pair is one provenance metadata entry.
type Pair struct {
	Key   string `yaml:"key" cbor:"k"`
	Value string `yaml:"value" cbor:"v"`
}

// Option configures a Factory at construction.
type Option func(*Factory)

// WithCompileOptions records the options the program was compiled with.
func WithCompileOptions(opts ...string) Option {
	return func(f *Factory) { f.options = append(f.options, opts...) }
}

// WithMeta appends a provenance entry. Order is preserved.
func WithMeta(key, value string) Option {
	return func(f *Factory) { f.meta = append(f.meta, Pair{Key: key, Value: value}) }
}

// Factory is the archive backend factory.
type Factory struct {
	*factory.Base
	code    string
	options []string
	meta    []Pair
}

// New builds an archive factory from an identity record and generated code.
func New(id factory.Identity, code string, opts ...Option) *Factory {
	f := &Factory{Base: factory.NewBaseFromIdentity(id), code: code}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Code returns the generated code.
func (f *Factory) Code() string { return f.code }

// CompileOptions returns a copy of the compile options.
func (f *Factory) CompileOptions() []string {
	out := make([]string, len(f.options))
	copy(out, f.options)
	return out
}

// Provenance returns a copy of the metadata entries.
func (f *Factory) Provenance() []Pair {
	out := make([]Pair, len(f.meta))
	copy(out, f.meta)
	return out
}

// CreateDSPInstance returns an Instance bound to owner, or nil when the
// factory carries no generated code.
func (f *Factory) CreateDSPInstance(owner factory.Factory) factory.DSP {
	if f.code == "" {
		return nil
	}
	if owner == nil {
		owner = f
	}
	return newInstance(f, owner)
}

// Metadata declares the identity summary followed by the provenance entries.
func (f *Factory) Metadata(m factory.Meta) {
	m.Declare("name", f.Name())
	m.Declare("sha_key", f.SHAKey())
	if len(f.options) > 0 {
		m.Declare("compile_options", strings.Join(f.options, " "))
	}
	m.Declare("library_list", strings.Join(f.LibraryList(), ";"))
	for _, p := range f.meta {
		m.Declare(p.Key, p.Value)
	}
}

// Write serialises the factory; see the package documentation for the
// meaning of the flags.
func (f *Factory) Write(w io.Writer, opts factory.WriteOptions) error {
	doc, err := f.document(opts.Small)
	if err != nil {
		return err
	}
	if opts.Binary {
		return encodeBinary(w, doc)
	}
	return encodeText(w, doc)
}
