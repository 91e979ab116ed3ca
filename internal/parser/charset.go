package parser

import (
	"bytes"
	"io"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// NewUTF8Reader wraps an io.Reader with automatic character encoding detection
// and conversion to UTF-8, so HTML in any declared encoding can be handed to
// goquery. Content that is already UTF-8 passes through unchanged.
func NewUTF8Reader(body io.Reader) (io.Reader, error) {
	return charset.NewReader(body, "")
}

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}

	// utf8Replacement is the encoded form of U+FFFD, the telltale of a file
	// that was already decoded with the wrong charset once.
	utf8Replacement = []byte{0xEF, 0xBF, 0xBD}
)

// NormalizeSubtitleText converts raw subtitle bytes to UTF-8 without a BOM.
// UTF-8 and UTF-16LE byte order marks are honored directly. Otherwise the
// bytes are probed for UTF-8 validity; text that is not plausible UTF-8 is
// re-decoded as Windows-1250, the single-byte code page titulky.com archives
// historically use. Valid BOM-less UTF-8 passes through byte for byte.
func NormalizeSubtitleText(raw []byte) []byte {
	switch {
	case bytes.HasPrefix(raw, bomUTF8):
		return raw[len(bomUTF8):]
	case bytes.HasPrefix(raw, bomUTF16LE):
		decoder := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
		if decoded, err := decoder.Bytes(raw); err == nil {
			return decoded
		}
		return raw
	}

	if plausibleUTF8(raw) {
		return raw
	}

	decoded, err := charmap.Windows1250.NewDecoder().Bytes(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// plausibleUTF8 reports whether the bytes look like text that was genuinely
// authored as UTF-8: structurally valid, free of replacement characters, and
// without a suspicious density of runes far outside the Latin ranges Czech
// and Slovak subtitles actually use.
func plausibleUTF8(raw []byte) bool {
	if !utf8.Valid(raw) {
		return false
	}
	if bytes.Contains(raw, utf8Replacement) {
		return false
	}

	var total, outlandish int
	for _, r := range string(raw) {
		if r < 0x80 {
			continue
		}
		total++
		// Latin-1 Supplement through Latin Extended-B plus general
		// punctuation covers everything these subtitles legitimately carry.
		if r > 0x024F && !(r >= 0x2000 && r <= 0x206F) {
			outlandish++
		}
	}
	if total == 0 {
		return true
	}
	return float64(outlandish)/float64(total) < 0.10
}
