package plugins

import (
	"github.com/kilianp07/dspfactory/core/backend/archive"
	"github.com/kilianp07/dspfactory/core/factory"
)

func init() {
	_ = RegisterReader(archive.Name, func(map[string]any) (factory.Reader, error) {
		return archive.NewReader(), nil
	})
}
