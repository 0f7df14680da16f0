// Package module provides a small generic registry used to build pluggable
// components (catalogs, metrics sinks) from configuration. A component is
// described by a type string and a map of raw settings; constructors decode
// the settings into typed structs with Decode.
//
//	reg := module.NewRegistry[catalog.Catalog]()
//	_ = reg.Register("sqlite", func(conf map[string]any) (catalog.Catalog, error) {
//	    var c struct{ Path string `json:"path"` }
//	    if err := module.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return sqlite.New(c.Path)
//	})
//	cat, err := reg.Create(module.Config{Type: "sqlite", Conf: map[string]any{"path": "catalog.db"}})
package module
