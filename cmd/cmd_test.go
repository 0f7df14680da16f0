package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/dspfactory/core/backend/archive"
	"github.com/kilianp07/dspfactory/core/catalog"
	"github.com/kilianp07/dspfactory/core/factory"
)

// resetFlags restores every flag to its default so commands can run more
// than once in a process.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeInputs(t *testing.T) (dir, dsp, code string) {
	t.Helper()
	dir = t.TempDir()
	dsp = filepath.Join(dir, "osc.dsp")
	code = filepath.Join(dir, "osc.c")
	require.NoError(t, os.WriteFile(dsp, []byte("process = os.osc(440);"), 0o644))
	require.NoError(t, os.WriteFile(code, []byte("void compute(void) {}\n"), 0o644))
	return dir, dsp, code
}

func TestPackInspectConvertEmit(t *testing.T) {
	dir, dsp, code := writeInputs(t)
	cfg := filepath.Join(dir, "absent.yaml")
	bin := filepath.Join(dir, "osc.bin")

	_, err := run(t, "pack", "-c", cfg, "--name", "osc", "--dsp", dsp, "--code", code,
		"--lib", "stdfaust.lib", "--option", "-vec", "--meta", "author=me", "--binary", "-o", bin)
	// An explicitly named config that does not exist is not required by pack.
	require.NoError(t, err)

	data, err := os.ReadFile(bin)
	require.NoError(t, err)
	isArchive, binary := archive.Sniff(data)
	require.True(t, isArchive)
	require.True(t, binary)

	out, err := run(t, "inspect", "--json", bin)
	require.NoError(t, err)
	var doc struct {
		Name     string `json:"name"`
		SHAKey   string `json:"sha_key"`
		Backend  string `json:"backend"`
		Metadata []struct {
			Key   string `json:"key"`
			Value string `json:"value"`
		} `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "osc", doc.Name)
	assert.Equal(t, factory.ComputeSHAKey("process = os.osc(440);", "-vec"), doc.SHAKey)
	assert.Equal(t, archive.Name, doc.Backend)
	assert.Equal(t, "author", doc.Metadata[len(doc.Metadata)-1].Key)

	out, err = run(t, "convert", bin)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "DSPARCHIVE 1 text\n"))

	out, err = run(t, "emit", "--lang", "cpp", bin)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "// name: osc\n"))
	assert.True(t, strings.HasSuffix(out, "void compute(void) {}\n"))

	_, err = run(t, "pack", "--name", "osc", "--dsp", dsp, "--code", code, "--meta", "novalue")
	assert.Error(t, err)

	junk := filepath.Join(dir, "junk")
	require.NoError(t, os.WriteFile(junk, []byte("garbage"), 0o644))
	_, err = run(t, "inspect", junk)
	assert.Error(t, err)
}

func TestStoreCommands(t *testing.T) {
	dir, dsp, code := writeInputs(t)
	cfg := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte(`store:
  driver: "fs"
  root: "`+filepath.Join(dir, "blobs")+`"
catalog:
  type: "sqlite"
  conf:
    path: "`+filepath.Join(dir, "catalog.db")+`"
`), 0o644))
	art := filepath.Join(dir, "osc.txt")
	_, err := run(t, "pack", "--name", "osc", "--sha", "C0FFEE", "--dsp", dsp, "--code", code, "-o", art)
	require.NoError(t, err)

	out, err := run(t, "store", "put", "-c", cfg, "--binary", art)
	require.NoError(t, err)
	assert.Equal(t, "C0FFEE\n", out)

	out, err = run(t, "store", "list", "-c", cfg, "--name", "osc")
	require.NoError(t, err)
	var entries []catalog.Entry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Binary)

	out, err = run(t, "store", "list", "-c", cfg, "--format", "csv")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "sha_key,name,backend,"))
	assert.Contains(t, out, "C0FFEE,osc,archive,")

	out, err = run(t, "store", "get", "-c", cfg, "C0FFEE")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "DSPARCHIVE 1 text\n"))

	_, err = run(t, "store", "delete", "-c", cfg, "C0FFEE")
	require.NoError(t, err)
	_, err = run(t, "store", "delete", "-c", cfg, "C0FFEE")
	assert.Error(t, err)

	_, err = run(t, "store", "list", "-c", cfg, "--remote")
	assert.Error(t, err)
}

func TestPack_KeyDependsOnCompileOptions(t *testing.T) {
	dir, dsp, code := writeInputs(t)
	cfg := filepath.Join(dir, "absent.yaml")
	keyOf := func(out string, opts ...string) string {
		t.Helper()
		args := []string{"pack", "-c", cfg, "--name", "osc", "--dsp", dsp, "--code", code, "-o", out}
		for _, o := range opts {
			args = append(args, "--option", o)
		}
		_, err := run(t, args...)
		require.NoError(t, err)
		data, err := os.ReadFile(out)
		require.NoError(t, err)
		f, ok := archive.Decode(data)
		require.True(t, ok)
		return f.SHAKey()
	}

	plain := keyOf(filepath.Join(dir, "plain.txt"))
	double := keyOf(filepath.Join(dir, "double.txt"), "-double")
	vec := keyOf(filepath.Join(dir, "vec.txt"), "-vec", "-vs", "32")

	assert.Equal(t, factory.ComputeSHAKey("process = os.osc(440);"), plain)
	assert.Equal(t, factory.ComputeSHAKey("process = os.osc(440);", "-double"), double)
	assert.NotEqual(t, plain, double)
	assert.NotEqual(t, double, vec)
}
