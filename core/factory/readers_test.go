package factory

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// prefixReader claims streams starting with its prefix; the rest of the
// stream becomes the factory name.
func prefixReader(name, prefix string) Reader {
	return ReaderFunc{ID: name, Fn: func(r io.Reader) (Factory, error) {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		s := string(data)
		if !strings.HasPrefix(s, prefix) {
			return nil, nil
		}
		return NewBase(strings.TrimPrefix(s, prefix), "", ""), nil
	}}
}

func TestReaders_OrderedTrial(t *testing.T) {
	reg, err := NewReaders(prefixReader("first", "A:"), prefixReader("second", "B:"), prefixReader("greedy", ""))
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "greedy"}, reg.Names())

	f, by, err := reg.Read(strings.NewReader("B:osc"))
	require.NoError(t, err)
	assert.Equal(t, "second", by)
	assert.Equal(t, "osc", f.Name())

	f, by, err = reg.Read(strings.NewReader("A:B:x"))
	require.NoError(t, err)
	assert.Equal(t, "first", by)
	assert.Equal(t, "B:x", f.Name())

	f, by, err = reg.Read(strings.NewReader("zzz"))
	require.NoError(t, err)
	assert.Equal(t, "greedy", by)
	assert.Equal(t, "zzz", f.Name())
}

func TestReaders_Unrecognised(t *testing.T) {
	reg, err := NewReaders(prefixReader("first", "A:"))
	require.NoError(t, err)
	f, by, err := reg.Read(strings.NewReader("garbage"))
	assert.NoError(t, err)
	assert.Nil(t, f)
	assert.Empty(t, by)

	empty := &Readers{}
	f, _, err = empty.Read(strings.NewReader("garbage"))
	assert.NoError(t, err)
	assert.Nil(t, f)
}

func TestReaders_RegisterErrors(t *testing.T) {
	reg := &Readers{}
	require.NoError(t, reg.Register(prefixReader("a", "A")))
	assert.Error(t, reg.Register(prefixReader("a", "B")))
	assert.Error(t, reg.Register(nil))
	_, err := NewReaders(prefixReader("x", ""), prefixReader("x", ""))
	assert.Error(t, err)
}

type brokenStream struct{}

func (brokenStream) Read([]byte) (int, error) { return 0, errors.New("medium unreadable") }

func TestReaders_StreamFailure(t *testing.T) {
	reg, err := NewReaders(prefixReader("a", "A"))
	require.NoError(t, err)
	_, _, err = reg.Read(brokenStream{})
	assert.Error(t, err)
}

func TestReaders_ReaderFailure(t *testing.T) {
	bad := ReaderFunc{ID: "bad", Fn: func(io.Reader) (Factory, error) { return nil, errors.New("io") }}
	reg, err := NewReaders(bad, prefixReader("later", ""))
	require.NoError(t, err)
	f, _, err := reg.Read(strings.NewReader("x"))
	assert.Error(t, err)
	assert.Nil(t, f)
}

func TestReaderFunc_NilFn(t *testing.T) {
	f, err := ReaderFunc{ID: "nil"}.Read(strings.NewReader("x"))
	assert.NoError(t, err)
	assert.Nil(t, f)
}
