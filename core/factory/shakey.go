package factory

import (
	"crypto/sha1" //nolint:gosec // content key, not a security primitive
	"encoding/binary"
	"encoding/hex"
	"strings"
)

// ComputeSHAKey derives the content key of an expanded program: a SHA-1 over
// the expanded source followed by the compile options. Every part is
// length-prefixed, so moving text between the source and the options always
// changes the key.
func ComputeSHAKey(dspCode string, options ...string) string {
	h := sha1.New() //nolint:gosec
	var n [8]byte
	for _, part := range append([]string{dspCode}, options...) {
		binary.BigEndian.PutUint64(n[:], uint64(len(part)))
		_, _ = h.Write(n[:])
		_, _ = h.Write([]byte(part))
	}
	return strings.ToUpper(hex.EncodeToString(h.Sum(nil)))
}

// CompileOptionsOf returns the compile options of f when its backend records
// them, nil otherwise.
func CompileOptionsOf(f Factory) []string {
	if o, ok := f.(interface{ CompileOptions() []string }); ok {
		return o.CompileOptions()
	}
	return nil
}
