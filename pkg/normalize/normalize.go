// Package normalize cleans up the text encodings found in legacy transaction
// exports: alternate quote glyphs, byte order marks and Windows-1252 bytes.
package normalize

import (
	"bytes"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	xunicode "golang.org/x/text/encoding/unicode"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16BE = []byte{0xFE, 0xFF}
	bomUTF16LE = []byte{0xFF, 0xFE}
)

// quoteMapper rewrites every glyph in the closed set to its ASCII quote.
// Only quotation marks are in the set: guillemets and primes are ordinary
// text and survive the whole-document pass unchanged.
var quoteMapper = runes.Map(func(r rune) rune {
	if q, ok := asciiQuote(r); ok {
		return q
	}
	return r
})

func asciiQuote(r rune) (rune, bool) {
	switch r {
	case '“', '”', '„', '‟':
		return '"', true
	case '‘', '’', '‚', '‛':
		return '\'', true
	}
	return r, false
}

func isQuoteGlyph(r rune) bool {
	_, ok := asciiQuote(r)
	return ok
}

// Text replaces curly and alternate quote glyphs with straight ASCII quotes.
// Applying it twice gives the same result as applying it once.
func Text(s string) string {
	if !strings.ContainsFunc(s, isQuoteGlyph) {
		return s
	}
	out, _, err := transform.String(quoteMapper, s)
	if err != nil {
		// runes.Map never fails on a complete string
		return s
	}
	return out
}

// Field normalizes a single field value: Text, then leading and trailing
// whitespace and straight double quotes are removed.
func Field(s string) string {
	return strings.TrimFunc(Text(s), func(r rune) bool {
		return r == '"' || unicode.IsSpace(r)
	})
}

// Decode turns a raw upload into text. A UTF-8 or UTF-16 byte order mark
// selects that encoding; otherwise valid UTF-8 is kept as is and anything
// else is read as Windows-1252. The decision covers all of b, so callers
// pass the whole upload rather than a prefix.
func Decode(b []byte) string {
	if hasBOM(b) {
		out, _, err := transform.Bytes(xunicode.BOMOverride(xunicode.UTF8.NewDecoder()), b)
		if err == nil {
			return string(out)
		}
	}
	if utf8.Valid(b) {
		return string(b)
	}
	out, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), b)
	if err != nil {
		return string(b)
	}
	return string(out)
}

func hasBOM(b []byte) bool {
	return bytes.HasPrefix(b, bomUTF8) ||
		bytes.HasPrefix(b, bomUTF16BE) ||
		bytes.HasPrefix(b, bomUTF16LE)
}
