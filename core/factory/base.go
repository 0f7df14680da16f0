package factory

import "io"

// Base stores an Identity and gives every backend the shared bookkeeping.
// It has no executable representation: CreateDSPInstance returns nil and
// Metadata and Write do nothing.
type Base struct {
	id Identity
}

// NewBase builds a factory from front-end output. Omitted libraries yield an
// empty list.
func NewBase(name, shaKey, dspCode string, libraries ...string) *Base {
	return NewBaseFromIdentity(Identity{Name: name, SHAKey: shaKey, DSPCode: dspCode, Libraries: libraries})
}

// NewBaseFromIdentity builds a factory from a complete record.
func NewBaseFromIdentity(id Identity) *Base {
	return &Base{id: id.Clone()}
}

// Identity returns a copy of the stored record.
func (b *Base) Identity() Identity { return b.id.Clone() }

func (b *Base) Name() string { return b.id.Name }

func (b *Base) SHAKey() string { return b.id.SHAKey }

// SetSHAKey replaces the content hash. The value is not validated.
func (b *Base) SetSHAKey(key string) { b.id.SHAKey = key }

func (b *Base) DSPCode() string { return b.id.DSPCode }

// SetDSPCode replaces the expanded source. The value is not validated.
func (b *Base) SetDSPCode(code string) { b.id.DSPCode = code }

// CreateDSPInstance returns nil: a bare record cannot be executed.
func (b *Base) CreateDSPInstance(Factory) DSP { return nil }

// Metadata is a no-op.
func (b *Base) Metadata(Meta) {}

// Write is a no-op; a record without generated code has nothing to emit.
func (b *Base) Write(io.Writer, WriteOptions) error { return nil }

// LibraryList returns a copy of the dependency list in load order.
func (b *Base) LibraryList() []string { return cloneList(b.id.Libraries) }
