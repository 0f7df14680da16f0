package fs

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/dspfactory/core/blob"
)

func TestStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := New(root)
	require.NoError(t, err)
	assert.Equal(t, blob.DriverFilesystem, s.Driver())

	info, err := s.Put(ctx, "factories/ABC.txt", strings.NewReader("DSPARCHIVE 1 text\n"), blob.PutOptions{
		ContentType: "text/yaml",
		Metadata:    map[string]string{"name": "sine"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(18), info.Size)
	assert.Len(t, info.ETag, 64)
	assert.FileExists(t, filepath.Join(root, "factories", "ABC.txt"))
	assert.FileExists(t, filepath.Join(root, "factories", "ABC.txt.meta"))

	_, err = s.Put(ctx, "factories/ABC.txt", strings.NewReader("replaced"), blob.PutOptions{ContentType: "text/yaml"})
	require.NoError(t, err)

	got, rc, err := s.Get(ctx, "factories/ABC.txt")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "replaced", string(data))
	assert.Equal(t, "text/yaml", got.ContentType)
	assert.Equal(t, int64(8), got.Size)

	_, err = s.Put(ctx, "factories/DEF.bin", strings.NewReader("x"), blob.PutOptions{})
	require.NoError(t, err)
	_, err = s.Put(ctx, "scratch/z", strings.NewReader("x"), blob.PutOptions{})
	require.NoError(t, err)

	list, err := s.List(ctx, "factories/")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "factories/ABC.txt", list[0].Key)
	assert.Equal(t, "factories/DEF.bin", list[1].Key)

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	ok, err := s.Delete(ctx, "factories/ABC.txt")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Delete(ctx, "factories/ABC.txt")
	require.NoError(t, err)
	assert.False(t, ok)
	_, _, err = s.Get(ctx, "factories/ABC.txt")
	assert.True(t, errors.Is(err, blob.ErrNotFound))
}

func TestStore_RejectsUnsafeKeys(t *testing.T) {
	ctx := context.Background()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	for _, key := range []string{"", "  ", "../escape", "a/../../b", "/abs", "x.meta"} {
		_, err := s.Put(ctx, key, strings.NewReader("x"), blob.PutOptions{})
		assert.Error(t, err, "key %q", key)
	}
}

func TestStore_CorruptSidecar(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := New(root)
	require.NoError(t, err)
	_, err = s.Put(ctx, "k", strings.NewReader("x"), blob.PutOptions{})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "k.meta"), []byte("{"), 0o644))

	_, _, err = s.Get(ctx, "k")
	assert.Error(t, err)
	_, err = s.List(ctx, "")
	assert.Error(t, err)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestStore_PutStreamFailureLeavesNothing(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := New(root)
	require.NoError(t, err)
	_, err = s.Put(ctx, "k", failingReader{}, blob.PutOptions{})
	assert.Error(t, err)
	list, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, list)
	_, err = os.Stat(filepath.Join(root, "k"))
	assert.True(t, os.IsNotExist(err))
}
