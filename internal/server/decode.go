package server

import (
	"strings"

	"golang.org/x/text/encoding/unicode"
)

// decodeLossy converts raw bytes read from a client into text. Invalid UTF-8
// sequences are replaced with U+FFFD instead of failing the read.
func decodeLossy(b []byte) string {
	// The UTF-8 decoder substitutes invalid input rather than failing.
	out, _ := unicode.UTF8.NewDecoder().Bytes(b)
	return string(out)
}

// parseName turns the handshake reply into a display name by dropping the
// line terminator the client typed. No other validation happens.
func parseName(b []byte) string {
	name := decodeLossy(b)
	name = strings.TrimSuffix(name, "\n")
	return strings.TrimSuffix(name, "\r")
}
