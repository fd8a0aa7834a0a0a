package richbody

import (
	"encoding/binary"
	"strings"
	"testing"
)

// archive builds a payload in the shape Decode understands: junk, the
// NSString marker, a 5-byte header, a length, then the text.
func archive(text string) []byte {
	blob := []byte("streamtyped\x84\x01")
	blob = append(blob, []byte("NSString")...)
	blob = append(blob, 0x01, 0x94, 0x84, 0x01, 0x2b) // attribute header
	if len(text) < 0x80 {
		blob = append(blob, byte(len(text)))
	} else {
		blob = append(blob, 0x81)
		blob = binary.LittleEndian.AppendUint16(blob, uint16(len(text)))
	}
	blob = append(blob, []byte(text)...)
	blob = append(blob, 0x86, 0x84) // trailing attributes
	return blob
}

func TestDecodeShortText(t *testing.T) {
	got, ok := Decode(archive("Let's get dinner?"))
	if !ok {
		t.Fatal("ok = false")
	}
	if got != "Let's get dinner?" {
		t.Errorf("got %q", got)
	}
}

func TestDecodeLongText(t *testing.T) {
	text := strings.Repeat("long message body ", 20) // > 0x80 bytes
	got, ok := Decode(archive(text))
	if !ok {
		t.Fatal("ok = false")
	}
	if got != text {
		t.Errorf("got %d bytes, want %d", len(got), len(text))
	}
}

func TestDecodeUnicode(t *testing.T) {
	got, ok := Decode(archive("café ☕"))
	if !ok || got != "café ☕" {
		t.Errorf("got %q, ok=%v", got, ok)
	}
}

func TestDecodeMalformed(t *testing.T) {
	cases := map[string][]byte{
		"nil":              nil,
		"empty":            {},
		"no marker":        []byte("streamtyped no text here"),
		"marker at end":    []byte("NSString"),
		"truncated length": append([]byte("NSString\x01\x94\x84\x01\x2b"), 0x81, 0x10),
		"length past end":  append([]byte("NSString\x01\x94\x84\x01\x2b"), 0x40, 'h', 'i'),
		"zero length":      append([]byte("NSString\x01\x94\x84\x01\x2b"), 0x00),
	}
	for name, blob := range cases {
		if got, ok := Decode(blob); ok {
			t.Errorf("%s: decoded %q, want no text", name, got)
		}
	}
}
