package archive

import (
	"github.com/google/uuid"

	"github.com/kilianp07/dspfactory/core/factory"
)

// Instance is a runnable unit created by an archive factory. Instances share
// the immutable generated code of their factory and nothing else.
type Instance struct {
	id     string
	source *Factory
	owner  factory.Factory
	code   string
}

func newInstance(source *Factory, owner factory.Factory) *Instance {
	return &Instance{
		id:     uuid.NewString(),
		source: source,
		owner:  owner,
		code:   source.code,
	}
}

// ID identifies this instance.
func (i *Instance) ID() string { return i.id }

// Code returns the generated code the instance runs.
func (i *Instance) Code() string { return i.code }

// Factory implements factory.DSP.
func (i *Instance) Factory() factory.Factory { return i.owner }

// Metadata implements factory.DSP by calling back into the owning factory.
func (i *Instance) Metadata(m factory.Meta) { i.owner.Metadata(m) }

// Clone implements factory.DSP.
func (i *Instance) Clone() factory.DSP { return newInstance(i.source, i.owner) }
