// Package richbody extracts plain text from the store's rich-text payload
// column. The payload is a typed-attribute archive whose format is not
// published; this is a best-effort extractor keyed on the NSString marker
// that precedes the visible text run, not a deserializer. Anything that
// does not match the marker layout decodes to "no text".
package richbody

import (
	"bytes"
	"encoding/binary"
	"unicode/utf8"
)

var marker = []byte("NSString")

// Layout after the marker: a fixed 5-byte attribute header, then either a
// one-byte length or 0x81 followed by a little-endian uint16 length, then
// the UTF-8 text run.
const headerSkip = 5

// Decode returns the plain text embedded in blob. The second return is
// false when no text run can be recovered.
func Decode(blob []byte) (string, bool) {
	idx := bytes.Index(blob, marker)
	if idx < 0 {
		return "", false
	}
	pos := idx + len(marker) + headerSkip
	if pos >= len(blob) {
		return "", false
	}

	var length, start int
	switch b := blob[pos]; {
	case b == 0x81:
		if pos+3 > len(blob) {
			return "", false
		}
		length = int(binary.LittleEndian.Uint16(blob[pos+1 : pos+3]))
		start = pos + 3
	default:
		length = int(b)
		start = pos + 1
	}
	if length == 0 || start+length > len(blob) {
		return "", false
	}

	text := blob[start : start+length]
	if !utf8.Valid(text) {
		return "", false
	}
	return string(text), true
}
