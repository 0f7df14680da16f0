package archive

import (
	"fmt"
	"io"

	"github.com/kilianp07/dspfactory/core/factory"
)

// Name is the reader and backend identifier.
const Name = "archive"

// Reader reconstructs archive factories.
type Reader struct{}

// NewReader returns the archive reader.
func NewReader() Reader { return Reader{} }

// Name implements factory.Reader.
func (Reader) Name() string { return Name }

// Read implements factory.Reader. Streams in another format, or archives
// that fail to decode, yield nil, nil.
func (Reader) Read(r io.Reader) (factory.Factory, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}
	f, ok := Decode(data)
	if !ok {
		return nil, nil
	}
	return f, nil
}

// Decode parses an in-memory archive.
func Decode(data []byte) (*Factory, bool) {
	doc, ok := decode(data)
	if !ok {
		return nil, false
	}
	return doc.build()
}

// Sniff reports whether data starts with an archive envelope and whether
// that envelope is binary. The body is not validated.
func Sniff(data []byte) (isArchive, binary bool) {
	if len(data) >= len(textMagic) && string(data[:len(textMagic)]) == textMagic {
		return true, false
	}
	if len(data) > len(binaryMagic) && string(data[:len(binaryMagic)]) == binaryMagic {
		return true, true
	}
	return false, false
}

// Register adds the archive reader to reg.
func Register(reg *factory.Readers) error {
	return reg.Register(NewReader())
}
