// Package util holds small byte and string helpers shared by the transport
// and device layers.
package util

import "strings"

// DecodeLatin1 decodes raw wire bytes into a string one byte per rune.
//
// The device protocols use control characters (XON, XOFF, CR, LF) as framing,
// so the decode must be exactly one-to-one; a UTF-8 interpretation could fold
// or reject bytes above 0x7F.
func DecodeLatin1(data []byte) string {
	var sb strings.Builder
	sb.Grow(len(data))
	for _, b := range data {
		sb.WriteRune(rune(b))
	}

	return sb.String()
}

// EncodeLatin1 encodes a string into raw wire bytes one byte per rune.
//
// Runes above 0xFF cannot be represented in the device charset and are
// replaced by '?'. Commands and parameters are plain ASCII in practice.
func EncodeLatin1(s string) []byte {
	data := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0xFF {
			r = '?'
		}
		data = append(data, byte(r))
	}

	return data
}

// TrimControl removes the control characters that devices embed in response
// tokens: start-of-text, line feed, carriage return and NUL.
func TrimControl(s string) string {
	return strings.Trim(s, "\x01\n\r\x00")
}

// StripFlowControl removes XON/XOFF software flow-control bytes from a
// received frame.
func StripFlowControl(s string) string {
	return strings.Trim(s, "\x11\x13")
}
