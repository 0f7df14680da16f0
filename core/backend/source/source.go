// Package source wraps generated target-language code in text factories. The
// emitted text starts with a provenance comment so an external toolchain can
// compile it while a reader can still tell which program produced it.
package source

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kilianp07/dspfactory/core/factory"
)

// Lang is a target language.
type Lang string

const (
	LangC    Lang = "c"
	LangCPP  Lang = "cpp"
	LangRust Lang = "rust"
)

var commentStyle = map[Lang][2]string{
	LangC:    {"/* ", " */"},
	LangCPP:  {"// ", ""},
	LangRust: {"// ", ""},
}

// Langs lists the languages that receive a provenance header.
func Langs() []string {
	out := make([]string, 0, len(commentStyle))
	for l := range commentStyle {
		out = append(out, string(l))
	}
	sort.Strings(out)
	return out
}

// Generate builds a text factory for code generated from id. Unknown
// languages get the code unchanged.
func Generate(id factory.Identity, lang Lang, code string) *factory.Text {
	return factory.NewText(id.Name, id.SHAKey, id.DSPCode, id.Libraries, Header(id, lang)+code)
}

// Header renders the provenance comment for lang, or "" when lang is unknown.
func Header(id factory.Identity, lang Lang) string {
	style, ok := commentStyle[lang]
	if !ok {
		return ""
	}
	lines := []string{
		fmt.Sprintf("name: %s", id.Name),
		fmt.Sprintf("sha_key: %s", id.SHAKey),
	}
	for _, lib := range id.Libraries {
		lines = append(lines, "library: "+lib)
	}
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(style[0])
		b.WriteString(l)
		b.WriteString(style[1])
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return b.String()
}
