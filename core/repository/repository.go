// Package repository stores serialised factories in a blob store, indexes
// them in a catalog and reconstructs them through the reader registry.
package repository

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/dspfactory/core/blob"
	"github.com/kilianp07/dspfactory/core/catalog"
	"github.com/kilianp07/dspfactory/core/factory"
	"github.com/kilianp07/dspfactory/core/metrics"
	"github.com/kilianp07/dspfactory/infra/logger"
	"github.com/kilianp07/dspfactory/internal/eventbus"
)

var (
	// ErrNotFound is returned when no factory is stored under a SHA key.
	ErrNotFound = errors.New("repository: factory not found")
	// ErrUnrecognized is returned when no registered reader claims an artifact.
	ErrUnrecognized = errors.New("repository: artifact not recognized")
)

// DefaultPrefix is the blob key prefix for stored artifacts.
const DefaultPrefix = "factories/"

// Cache is the subset of infra/cache.Factories the repository uses.
type Cache interface {
	Get(sha string) factory.Factory
	Add(sha string, f factory.Factory)
	Remove(sha string) bool
}

// EventOp names a repository change.
type EventOp string

const (
	EventStored  EventOp = "stored"
	EventDeleted EventOp = "deleted"
)

// Event is published on every successful Save or Delete.
type Event struct {
	ID    string
	Op    EventOp
	Entry catalog.Entry
	Time  time.Time
}

// Options wires a Repository. Readers, Store and Catalog are required.
type Options struct {
	Readers *factory.Readers
	Store   blob.Store
	Catalog catalog.Catalog
	Cache   Cache
	Sink    metrics.Sink
	Logger  logger.Logger
	Prefix  string
	Now     func() time.Time
}

// Repository persists factories. It is safe for concurrent use when its
// collaborators are.
type Repository struct {
	readers *factory.Readers
	store   blob.Store
	catalog catalog.Catalog
	cache   Cache
	sink    metrics.Sink
	log     logger.Logger
	prefix  string
	now     func() time.Time
	bus     *eventbus.Bus[Event]
}

// New validates opts and returns a repository.
func New(opts Options) (*Repository, error) {
	if opts.Readers == nil {
		return nil, fmt.Errorf("readers required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("blob store required")
	}
	if opts.Catalog == nil {
		return nil, fmt.Errorf("catalog required")
	}
	r := &Repository{
		readers: opts.Readers,
		store:   opts.Store,
		catalog: opts.Catalog,
		cache:   opts.Cache,
		sink:    opts.Sink,
		log:     opts.Logger,
		prefix:  opts.Prefix,
		now:     opts.Now,
		bus:     eventbus.New[Event](0),
	}
	if r.sink == nil {
		r.sink = metrics.NopSink{}
	}
	if r.log == nil {
		r.log = logger.NopLogger{}
	}
	if r.prefix == "" {
		r.prefix = DefaultPrefix
	}
	if r.now == nil {
		r.now = func() time.Time { return time.Now().UTC() }
	}
	return r, nil
}

// Readers returns the reader registry used to reconstruct artifacts.
func (r *Repository) Readers() *factory.Readers { return r.readers }

// Key returns the blob key used for sha in the given encoding.
func (r *Repository) Key(sha string, binary bool) string {
	ext := ".txt"
	if binary {
		ext = ".bin"
	}
	return r.prefix + sha + ext
}

// Save serialises f with opts and stores it. A factory without a SHA key is
// assigned one derived from its DSP code and compile options. The serialised
// form must be claimed by one of the registered readers, otherwise nothing is
// stored and ErrUnrecognized is returned.
func (r *Repository) Save(ctx context.Context, f factory.Factory, opts factory.WriteOptions) (catalog.Entry, error) {
	if f == nil {
		return catalog.Entry{}, factory.ErrNoFactory
	}
	start := time.Now()
	sha := f.SHAKey()
	if sha == "" {
		sha = factory.ComputeSHAKey(f.DSPCode(), factory.CompileOptionsOf(f)...)
		f.SetSHAKey(sha)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf, opts); err != nil {
		r.record(metrics.OpWrite, "", metrics.ResultError, 0, time.Since(start))
		return catalog.Entry{}, fmt.Errorf("write %s: %w", sha, err)
	}
	data := buf.Bytes()

	stored, backend, err := r.readers.ReadBytes(data)
	if err != nil {
		r.record(metrics.OpWrite, "", metrics.ResultError, len(data), time.Since(start))
		return catalog.Entry{}, err
	}
	if stored == nil {
		r.record(metrics.OpWrite, "", metrics.ResultAbsent, len(data), time.Since(start))
		return catalog.Entry{}, fmt.Errorf("save %s: %w", sha, ErrUnrecognized)
	}
	r.record(metrics.OpWrite, backend, metrics.ResultOK, len(data), time.Since(start))

	prev, hadPrev, err := r.catalog.Get(ctx, sha)
	if err != nil {
		return catalog.Entry{}, err
	}

	key := r.Key(sha, opts.Binary)
	contentType := "text/plain; charset=utf-8"
	if opts.Binary {
		contentType = "application/octet-stream"
	}
	if _, err := r.store.Put(ctx, key, bytes.NewReader(data), blob.PutOptions{
		ContentType: contentType,
		Metadata:    map[string]string{"name": f.Name(), "sha_key": sha, "backend": backend},
	}); err != nil {
		r.record(metrics.OpStore, backend, metrics.ResultError, len(data), time.Since(start))
		return catalog.Entry{}, fmt.Errorf("store %s: %w", sha, err)
	}

	entry := catalog.Entry{
		SHAKey:    sha,
		Name:      f.Name(),
		Backend:   backend,
		Libraries: f.LibraryList(),
		Key:       key,
		Size:      int64(len(data)),
		Binary:    opts.Binary,
		Small:     opts.Small,
		StoredAt:  r.now(),
	}
	if err := r.catalog.Upsert(ctx, entry); err != nil {
		r.record(metrics.OpStore, backend, metrics.ResultError, len(data), time.Since(start))
		return catalog.Entry{}, fmt.Errorf("index %s: %w", sha, err)
	}
	if hadPrev && prev.Key != key {
		if _, err := r.store.Delete(ctx, prev.Key); err != nil {
			r.log.Warnf("remove superseded blob %s: %v", prev.Key, err)
		}
	}
	if r.cache != nil {
		r.cache.Add(sha, stored)
	}
	r.record(metrics.OpStore, backend, metrics.ResultOK, len(data), time.Since(start))
	r.publish(EventStored, entry)
	r.log.Debugw("factory stored", map[string]any{"sha_key": sha, "name": entry.Name, "backend": backend, "key": key})
	return entry, nil
}

// Import reconstructs a factory from an artifact stream and saves it with
// opts. Streams no reader claims yield ErrUnrecognized.
func (r *Repository) Import(ctx context.Context, in io.Reader, opts factory.WriteOptions) (catalog.Entry, error) {
	f, _, err := r.readers.Read(in)
	if err != nil {
		return catalog.Entry{}, err
	}
	if f == nil {
		r.record(metrics.OpRead, "", metrics.ResultAbsent, 0, 0)
		return catalog.Entry{}, ErrUnrecognized
	}
	return r.Save(ctx, f, opts)
}

// Load returns the factory stored under sha.
func (r *Repository) Load(ctx context.Context, sha string) (factory.Factory, error) {
	start := time.Now()
	if r.cache != nil {
		if f := r.cache.Get(sha); f != nil {
			r.record(metrics.OpLoad, "", metrics.ResultHit, 0, time.Since(start))
			return f, nil
		}
	}
	entry, ok, err := r.catalog.Get(ctx, sha)
	if err != nil {
		r.record(metrics.OpLoad, "", metrics.ResultError, 0, time.Since(start))
		return nil, err
	}
	if !ok {
		r.record(metrics.OpLoad, "", metrics.ResultMiss, 0, time.Since(start))
		return nil, fmt.Errorf("%s: %w", sha, ErrNotFound)
	}
	_, rc, err := r.store.Get(ctx, entry.Key)
	if errors.Is(err, blob.ErrNotFound) {
		r.log.Warnf("catalog entry %s points at missing blob %s", sha, entry.Key)
		r.record(metrics.OpLoad, entry.Backend, metrics.ResultMiss, 0, time.Since(start))
		return nil, fmt.Errorf("%s: %w", sha, ErrNotFound)
	}
	if err != nil {
		r.record(metrics.OpLoad, entry.Backend, metrics.ResultError, 0, time.Since(start))
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	f, backend, err := r.readers.Read(rc)
	if err != nil {
		r.record(metrics.OpRead, entry.Backend, metrics.ResultError, 0, time.Since(start))
		return nil, err
	}
	if f == nil {
		r.record(metrics.OpRead, entry.Backend, metrics.ResultAbsent, int(entry.Size), time.Since(start))
		return nil, fmt.Errorf("%s: %w", sha, ErrUnrecognized)
	}
	r.record(metrics.OpRead, backend, metrics.ResultOK, int(entry.Size), time.Since(start))
	if r.cache != nil {
		r.cache.Add(sha, f)
	}
	r.record(metrics.OpLoad, backend, metrics.ResultOK, int(entry.Size), time.Since(start))
	return f, nil
}

// Entry returns the catalog entry for sha.
func (r *Repository) Entry(ctx context.Context, sha string) (catalog.Entry, error) {
	e, ok, err := r.catalog.Get(ctx, sha)
	if err != nil {
		return catalog.Entry{}, err
	}
	if !ok {
		return catalog.Entry{}, fmt.Errorf("%s: %w", sha, ErrNotFound)
	}
	return e, nil
}

// List returns catalog entries newest first.
func (r *Repository) List(ctx context.Context, q catalog.Query) ([]catalog.Entry, error) {
	return r.catalog.List(ctx, q)
}

// Delete removes the factory stored under sha, reporting whether it existed.
func (r *Repository) Delete(ctx context.Context, sha string) (bool, error) {
	entry, ok, err := r.catalog.Get(ctx, sha)
	if err != nil {
		return false, err
	}
	if r.cache != nil {
		r.cache.Remove(sha)
	}
	if !ok {
		return false, nil
	}
	if _, err := r.store.Delete(ctx, entry.Key); err != nil {
		return false, fmt.Errorf("delete blob %s: %w", entry.Key, err)
	}
	if _, err := r.catalog.Delete(ctx, sha); err != nil {
		return false, err
	}
	r.publish(EventDeleted, entry)
	return true, nil
}

// Events subscribes to repository changes. Slow subscribers miss events
// rather than blocking Save or Delete.
func (r *Repository) Events() <-chan Event { return r.bus.Subscribe() }

// Invalidate drops sha from the cache. It reports whether an entry was
// cached.
func (r *Repository) Invalidate(sha string) bool {
	if r.cache == nil {
		return false
	}
	return r.cache.Remove(sha)
}

// Unsubscribe releases a channel returned by Events.
func (r *Repository) Unsubscribe(ch <-chan Event) { r.bus.Unsubscribe(ch) }

// Close closes event subscriptions and the catalog.
func (r *Repository) Close() error {
	r.bus.Close()
	return r.catalog.Close()
}

func (r *Repository) publish(op EventOp, e catalog.Entry) {
	r.bus.Publish(Event{ID: uuid.NewString(), Op: op, Entry: e.Clone(), Time: r.now()})
}

func (r *Repository) record(op metrics.Op, backend string, res metrics.Result, n int, d time.Duration) {
	if err := r.sink.RecordFactoryEvent(metrics.FactoryEvent{
		Op: op, Backend: backend, Result: res, Bytes: n, Duration: d, Time: time.Now(),
	}); err != nil {
		r.log.Warnf("record metric: %v", err)
	}
}
