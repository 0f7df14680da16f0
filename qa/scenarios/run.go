package scenarios

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kilianp07/dspfactory/core/backend/archive"
	"github.com/kilianp07/dspfactory/core/catalog"
	"github.com/kilianp07/dspfactory/core/factory"
	"github.com/kilianp07/dspfactory/core/repository"
	"github.com/kilianp07/dspfactory/infra/blob/memory"
	"github.com/kilianp07/dspfactory/infra/cache"
	"github.com/kilianp07/dspfactory/infra/logger"
	"github.com/kilianp07/dspfactory/infra/metrics"
)

// RunScenario stores every factory of sc in every variant, reloads it and
// checks that the reloaded factory writes the same bytes.
func RunScenario(t *testing.T, sc *Scenario) {
	reg := prometheus.NewRegistry()
	sink, err := metrics.NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("prom sink: %v", err)
	}
	readers, err := factory.NewReaders(archive.NewReader())
	if err != nil {
		t.Fatalf("readers: %v", err)
	}
	lru, err := cache.New(len(sc.Factories), logger.NopLogger{})
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	repo, err := repository.New(repository.Options{
		Readers: readers,
		Store:   memory.New(),
		Catalog: catalog.NewMemory(),
		Cache:   lru,
		Sink:    sink,
	})
	if err != nil {
		t.Fatalf("repository: %v", err)
	}
	defer repo.Close()
	ctx := context.Background()

	stored := map[string]bool{}
	for _, def := range sc.Factories {
		for _, v := range sc.Variants {
			f := def.ToFactory()
			var want bytes.Buffer
			entry, err := repo.Save(ctx, f, v.ToOptions())
			if err != nil {
				t.Fatalf("%s save %+v: %v", def.Name, v, err)
			}
			if err := f.Write(&want, v.ToOptions()); err != nil {
				t.Fatalf("%s write: %v", def.Name, err)
			}
			// Drop the cached instance so Load goes through the blob store.
			lru.Remove(entry.SHAKey)
			back, err := repo.Load(ctx, entry.SHAKey)
			if err != nil {
				t.Fatalf("%s load: %v", def.Name, err)
			}
			if !factory.IdentityOf(back).Equal(factory.IdentityOf(f)) {
				t.Errorf("%s identity changed: %+v", def.Name, factory.IdentityOf(back))
			}
			var got bytes.Buffer
			if err := back.Write(&got, v.ToOptions()); err != nil {
				t.Fatalf("%s rewrite: %v", def.Name, err)
			}
			if !bytes.Equal(got.Bytes(), want.Bytes()) {
				t.Errorf("%s variant %+v does not round-trip", def.Name, v)
			}
			stored[entry.SHAKey] = true
		}
	}

	unrecognized := 0
	for _, raw := range sc.Foreign {
		_, err := repo.Import(ctx, strings.NewReader(raw), factory.WriteOptions{})
		if errors.Is(err, repository.ErrUnrecognized) {
			unrecognized++
		}
	}

	if len(stored) != sc.Expected.Stored {
		t.Errorf("scenario %s expected %d stored, got %d", sc.Name, sc.Expected.Stored, len(stored))
	}
	if unrecognized != sc.Expected.Unrecognized {
		t.Errorf("scenario %s expected %d unrecognized, got %d", sc.Name, sc.Expected.Unrecognized, unrecognized)
	}
	if n := testutil.CollectAndCount(reg, "dspfactory_operations_total"); n == 0 {
		t.Errorf("scenario %s recorded no operations", sc.Name)
	}
}
