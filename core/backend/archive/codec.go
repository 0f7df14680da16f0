package archive

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"

	"github.com/kilianp07/dspfactory/core/factory"
)

const (
	// Version is the envelope version written by this package.
	Version = 1

	textMagic   = "DSPARCHIVE 1 text\n"
	binaryMagic = "DSPA"

	// MaxCodeBytes bounds the decompressed generated code of a small
	// archive. Larger payloads are treated as malformed.
	MaxCodeBytes = 64 << 20
)

// document is the serialised form shared by both encodings.
type document struct {
	Name      string   `yaml:"name" cbor:"name"`
	SHAKey    string   `yaml:"sha_key" cbor:"sha_key"`
	DSPCode   string   `yaml:"dsp_code" cbor:"dsp_code"`
	Libraries []string `yaml:"libraries" cbor:"libraries"`
	Options   []string `yaml:"compile_options,omitempty" cbor:"compile_options,omitempty"`
	Meta      []Pair   `yaml:"meta,omitempty" cbor:"meta,omitempty"`
	Code      string   `yaml:"code,omitempty" cbor:"code,omitempty"`
	// Small variants carry the code compressed. Text keeps it base64 encoded.
	CodeZstd    []byte `yaml:"-" cbor:"code_zstd,omitempty"`
	CodeZstdB64 string `yaml:"code_zstd,omitempty" cbor:"-"`
	Small       bool   `yaml:"small,omitempty" cbor:"small,omitempty"`
}

var (
	encoder = sync.OnceValues(func() (*zstd.Encoder, error) {
		return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	})
	decoder = sync.OnceValues(func() (*zstd.Decoder, error) {
		return zstd.NewReader(nil,
			zstd.WithDecoderConcurrency(0),
			zstd.WithDecoderMaxMemory(MaxCodeBytes),
		)
	})
	// Sources and library paths are byte strings; they need not be UTF-8.
	decMode = sync.OnceValues(func() (cbor.DecMode, error) {
		return cbor.DecOptions{
			ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
			UTF8:              cbor.UTF8DecodeInvalid,
		}.DecMode()
	})
)

func (f *Factory) document(small bool) (document, error) {
	doc := document{
		Name:      f.Name(),
		SHAKey:    f.SHAKey(),
		DSPCode:   f.DSPCode(),
		Libraries: f.LibraryList(),
		Options:   f.CompileOptions(),
	}
	if !small {
		doc.Meta = f.Provenance()
		doc.Code = f.code
		return doc, nil
	}
	doc.Small = true
	if f.code == "" {
		return doc, nil
	}
	enc, err := encoder()
	if err != nil {
		return document{}, fmt.Errorf("zstd encoder: %w", err)
	}
	doc.CodeZstd = enc.EncodeAll([]byte(f.code), nil)
	return doc, nil
}

func encodeText(w io.Writer, doc document) error {
	if doc.Small {
		doc.CodeZstdB64 = base64.StdEncoding.EncodeToString(doc.CodeZstd)
	}
	body, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	if _, err := io.WriteString(w, textMagic); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

func encodeBinary(w io.Writer, doc document) error {
	body, err := cbor.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode cbor: %w", err)
	}
	header := append([]byte(binaryMagic), Version)
	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

// decode returns the document held in data, or false when data is not a
// well-formed archive.
func decode(data []byte) (document, bool) {
	switch {
	case bytes.HasPrefix(data, []byte(textMagic)):
		return decodeText(data[len(textMagic):])
	case bytes.HasPrefix(data, []byte(binaryMagic)):
		rest := data[len(binaryMagic):]
		if len(rest) == 0 || rest[0] != Version {
			return document{}, false
		}
		return decodeBinary(rest[1:])
	default:
		return document{}, false
	}
}

func decodeText(body []byte) (document, bool) {
	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(body))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return document{}, false
	}
	if doc.Small {
		raw, err := base64.StdEncoding.DecodeString(doc.CodeZstdB64)
		if err != nil {
			return document{}, false
		}
		doc.CodeZstd = raw
	}
	return doc, true
}

func decodeBinary(body []byte) (document, bool) {
	dm, err := decMode()
	if err != nil {
		return document{}, false
	}
	var doc document
	if err := dm.Unmarshal(body, &doc); err != nil {
		return document{}, false
	}
	return doc, true
}

// build turns a decoded document into a factory.
func (doc document) build() (*Factory, bool) {
	code := doc.Code
	if doc.Small && len(doc.CodeZstd) > 0 {
		dec, err := decoder()
		if err != nil {
			return nil, false
		}
		raw, err := dec.DecodeAll(doc.CodeZstd, nil)
		if err != nil || len(raw) > MaxCodeBytes {
			return nil, false
		}
		code = string(raw)
	}
	id := factory.Identity{
		Name:      doc.Name,
		SHAKey:    doc.SHAKey,
		DSPCode:   doc.DSPCode,
		Libraries: doc.Libraries,
	}
	f := New(id, code, WithCompileOptions(doc.Options...))
	f.meta = append(f.meta, doc.Meta...)
	return f, true
}
