package source

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/dspfactory/core/factory"
)

func TestGenerate(t *testing.T) {
	id := factory.Identity{Name: "sine", SHAKey: "sha123", DSPCode: "<expanded>", Libraries: []string{"stdfaust.lib"}}
	tests := []struct {
		lang Lang
		want string
	}{
		{LangC, "/* name: sine */\n/* sha_key: sha123 */\n/* library: stdfaust.lib */\n\nfloat process(){...}"},
		{LangCPP, "// name: sine\n// sha_key: sha123\n// library: stdfaust.lib\n\nfloat process(){...}"},
		{"cobol", "float process(){...}"},
	}
	for _, tt := range tests {
		t.Run(string(tt.lang), func(t *testing.T) {
			f := Generate(id, tt.lang, "float process(){...}")
			var buf bytes.Buffer
			require.NoError(t, f.Write(&buf, factory.WriteOptions{Binary: true, Small: true}))
			assert.Equal(t, tt.want, buf.String())
			assert.Equal(t, "sine", f.Name())
			assert.Equal(t, "<expanded>", f.DSPCode())
			assert.Equal(t, []string{"stdfaust.lib"}, f.LibraryList())
		})
	}
}

func TestLangs(t *testing.T) {
	assert.Equal(t, []string{"c", "cpp", "rust"}, Langs())
}
