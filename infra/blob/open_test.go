package blob

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreblob "github.com/kilianp07/dspfactory/core/blob"
)

func TestConfig_Defaults(t *testing.T) {
	var c Config
	c.SetDefaults()
	assert.Equal(t, "fs", c.Driver)
	assert.Equal(t, "./factories", c.Root)
	assert.NoError(t, c.Validate())

	m := Config{Driver: "memory"}
	m.SetDefaults()
	assert.Empty(t, m.Root)
}

func TestConfig_Validate(t *testing.T) {
	assert.Error(t, Config{Driver: "ftp"}.Validate())
	assert.Error(t, Config{Driver: "s3"}.Validate())
	c := Config{Driver: "s3"}
	c.S3.Bucket = "factories"
	assert.NoError(t, c.Validate())
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, Config{Driver: "fs", Root: filepath.Join(t.TempDir(), "blobs")})
	require.NoError(t, err)
	assert.Equal(t, coreblob.DriverFilesystem, s.Driver())

	s, err = Open(ctx, Config{Driver: "memory"})
	require.NoError(t, err)
	assert.Equal(t, coreblob.DriverMemory, s.Driver())

	_, err = Open(ctx, Config{Driver: "ftp"})
	assert.Error(t, err)
}
