package wire

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/ianaindex"
)

// decodeText interprets b under the named text encoding. UTF-8 and ASCII are
// validated directly; every other name is resolved through the IANA charset
// registry.
func decodeText(b []byte, name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "utf-8", "utf8":
		if !utf8.Valid(b) {
			return "", fmt.Errorf("invalid UTF-8 sequence")
		}
		return string(b), nil
	case "ascii", "us-ascii":
		for i, c := range b {
			if c > 0x7f {
				return "", fmt.Errorf("byte 0x%02x at offset %d is not ASCII", c, i)
			}
		}
		return string(b), nil
	}

	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return "", fmt.Errorf("unknown encoding %q", name)
	}
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// encodeText converts text into bytes under the named encoding, the inverse
// of decodeText.
func encodeText(text, name string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "utf-8", "utf8":
		return []byte(text), nil
	case "ascii", "us-ascii":
		for i, c := range []byte(text) {
			if c > 0x7f {
				return nil, fmt.Errorf("byte 0x%02x at offset %d is not ASCII", c, i)
			}
		}
		return []byte(text), nil
	}

	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("unknown encoding %q", name)
	}
	return enc.NewEncoder().Bytes([]byte(text))
}
