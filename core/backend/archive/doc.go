// Package archive is a self-describing factory backend. An archive factory
// keeps the identity record, the generated code, the compile options and
// ordered provenance metadata, and writes them in one of four variants:
//
//   - text: the line "DSPARCHIVE 1 text" followed by a YAML document;
//   - binary: the bytes "DSPA", a version byte, then a CBOR document;
//   - small (either encoding): provenance metadata is dropped and the
//     generated code is stored zstd-compressed.
//
// Identity fields and generated code survive every variant. Reader claims
// both envelopes and returns nil for anything else, including truncated or
// corrupt documents. A small archive whose code decompresses to more than
// MaxCodeBytes is also treated as corrupt.
//
// Strings are carried as bytes: a source or library path that is not valid
// UTF-8 round-trips unchanged in both encodings.
package archive
