package scenarios

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/dspfactory/core/backend/archive"
	"github.com/kilianp07/dspfactory/core/factory"
)

type MetaDef struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

type FactoryDef struct {
	Name           string    `yaml:"name"`
	SHAKey         string    `yaml:"sha_key,omitempty"`
	DSPCode        string    `yaml:"dsp_code"`
	Code           string    `yaml:"code"`
	Libraries      []string  `yaml:"libraries,omitempty"`
	CompileOptions []string  `yaml:"compile_options,omitempty"`
	Meta           []MetaDef `yaml:"meta,omitempty"`
}

func (d FactoryDef) ToFactory() *archive.Factory {
	opts := []archive.Option{archive.WithCompileOptions(d.CompileOptions...)}
	for _, m := range d.Meta {
		opts = append(opts, archive.WithMeta(m.Key, m.Value))
	}
	return archive.New(factory.Identity{
		Name:      d.Name,
		SHAKey:    d.SHAKey,
		DSPCode:   d.DSPCode,
		Libraries: d.Libraries,
	}, d.Code, opts...)
}

type VariantDef struct {
	Binary bool `yaml:"binary"`
	Small  bool `yaml:"small"`
}

func (v VariantDef) ToOptions() factory.WriteOptions {
	return factory.WriteOptions{Binary: v.Binary, Small: v.Small}
}

type Expected struct {
	Stored       int `yaml:"stored"`
	Unrecognized int `yaml:"unrecognized"`
}

type Scenario struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description,omitempty"`
	Factories   []FactoryDef `yaml:"factories"`
	Variants    []VariantDef `yaml:"variants"`
	// Foreign lists raw payloads no reader should claim.
	Foreign  []string `yaml:"foreign,omitempty"`
	Expected Expected `yaml:"expected"`
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	if len(sc.Variants) == 0 {
		sc.Variants = []VariantDef{{}}
	}
	return &sc, nil
}
