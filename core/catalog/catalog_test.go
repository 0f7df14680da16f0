package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/dspfactory/core/module"
)

func entry(sha, name string, at time.Time) Entry {
	return Entry{
		SHAKey:    sha,
		Name:      name,
		Backend:   "archive",
		Libraries: []string{"stdfaust.lib"},
		Key:       "factories/" + sha + ".txt",
		Size:      42,
		StoredAt:  at,
	}
}

func TestMemory_Lifecycle(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	e := entry("AAA", "sine", t0)
	require.NoError(t, c.Upsert(ctx, e))
	e.Libraries[0] = "mutated"

	got, ok, err := c.Get(ctx, "AAA")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"stdfaust.lib"}, got.Libraries)

	_, ok, err = c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Upsert(ctx, entry("BBB", "noise", t0.Add(time.Minute))))
	require.NoError(t, c.Upsert(ctx, entry("CCC", "sine", t0.Add(2*time.Minute))))

	all, err := c.List(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"CCC", "BBB", "AAA"}, []string{all[0].SHAKey, all[1].SHAKey, all[2].SHAKey})

	sines, err := c.List(ctx, Query{Name: "sine", Limit: 1})
	require.NoError(t, err)
	require.Len(t, sines, 1)
	assert.Equal(t, "CCC", sines[0].SHAKey)

	replaced := entry("AAA", "sine", t0.Add(3*time.Minute))
	replaced.Binary = true
	require.NoError(t, c.Upsert(ctx, replaced))
	all, err = c.List(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "AAA", all[0].SHAKey)
	assert.True(t, all[0].Binary)

	ok, err = c.Delete(ctx, "AAA")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = c.Delete(ctx, "AAA")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, c.Close())
}

func TestSortNewestFirst_TieBreak(t *testing.T) {
	at := time.Unix(100, 0)
	es := []Entry{entry("B", "x", at), entry("A", "x", at), entry("C", "x", at.Add(time.Second))}
	SortNewestFirst(es)
	assert.Equal(t, "C", es[0].SHAKey)
	assert.Equal(t, "A", es[1].SHAKey)
	assert.Equal(t, "B", es[2].SHAKey)
}

func TestNew_Registry(t *testing.T) {
	c, err := New(module.Config{})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, c)

	c, err = New(module.Config{Type: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, c)

	_, err = New(module.Config{Type: "oracle"})
	assert.Error(t, err)
	assert.Contains(t, Types(), "memory")
	assert.Error(t, Register("memory", func(map[string]any) (Catalog, error) { return NewMemory(), nil }))
}
