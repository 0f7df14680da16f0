package catalog

import (
	"context"

	corecatalog "github.com/kilianp07/dspfactory/core/catalog"
	"github.com/kilianp07/dspfactory/core/module"
)

// init registers the SQL catalogs.
func init() {
	_ = corecatalog.Register("sqlite", func(conf map[string]any) (corecatalog.Catalog, error) {
		var c struct {
			Path string `json:"path"`
		}
		if err := module.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.Path == "" {
			c.Path = "dspfactory.db"
		}
		return OpenSQLite(c.Path)
	})

	_ = corecatalog.Register("postgres", func(conf map[string]any) (corecatalog.Catalog, error) {
		var c struct {
			DSN string `json:"dsn"`
		}
		if err := module.Decode(conf, &c); err != nil {
			return nil, err
		}
		return OpenPostgres(context.Background(), c.DSN)
	})
}
