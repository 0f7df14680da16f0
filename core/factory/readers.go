package factory

import (
	"bytes"
	"fmt"
	"io"
	"sync"
)

// Readers is an ordered list of backend readers. Read offers the stream to
// each reader in registration order; the first one to return a factory wins.
type Readers struct {
	mu      sync.RWMutex
	readers []Reader
}

// NewReaders returns a registry holding rs in order. Duplicate names are
// rejected.
func NewReaders(rs ...Reader) (*Readers, error) {
	reg := &Readers{}
	for _, r := range rs {
		if err := reg.Register(r); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Register appends a reader.
func (r *Readers) Register(rd Reader) error {
	if rd == nil {
		return fmt.Errorf("reader nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.readers {
		if existing.Name() == rd.Name() {
			return fmt.Errorf("reader already registered for %s", rd.Name())
		}
	}
	r.readers = append(r.readers, rd)
	return nil
}

// Names lists the registered readers in trial order.
func (r *Readers) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.readers))
	for i, rd := range r.readers {
		out[i] = rd.Name()
	}
	return out
}

// Read consumes in once and returns the first factory a reader claims,
// together with the reader name. When no reader recognises the stream the
// result is nil, "", nil. Errors come from reading in or from a reader
// reporting an I/O failure.
func (r *Readers) Read(in io.Reader) (Factory, string, error) {
	data, err := io.ReadAll(in)
	if err != nil {
		return nil, "", fmt.Errorf("read stream: %w", err)
	}
	return r.ReadBytes(data)
}

// ReadBytes is Read over an in-memory payload.
func (r *Readers) ReadBytes(data []byte) (Factory, string, error) {
	r.mu.RLock()
	readers := make([]Reader, len(r.readers))
	copy(readers, r.readers)
	r.mu.RUnlock()

	for _, rd := range readers {
		f, err := rd.Read(bytes.NewReader(data))
		if err != nil {
			return nil, "", fmt.Errorf("%s reader: %w", rd.Name(), err)
		}
		if f != nil {
			return f, rd.Name(), nil
		}
	}
	f, err := Read(bytes.NewReader(data))
	return f, "", err
}
