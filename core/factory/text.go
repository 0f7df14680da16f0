package factory

import "io"

// Text is a factory whose backend representation is generated source text.
// Pairing the text with an execution engine (an external compiler, a JIT) is
// left to the caller, so CreateDSPInstance still returns nil.
type Text struct {
	*Base
	code string
}

// NewText builds a text factory. code is immutable afterwards.
func NewText(name, shaKey, dspCode string, libraries []string, code string) *Text {
	return &Text{
		Base: NewBase(name, shaKey, dspCode, libraries...),
		code: code,
	}
}

// Code returns the generated text.
func (t *Text) Code() string { return t.code }

// Write emits the generated code verbatim. Both flags are ignored: text has
// a single encoding.
func (t *Text) Write(w io.Writer, _ WriteOptions) error {
	_, err := io.WriteString(w, t.code)
	return err
}
