// Package shared holds small helpers for handling sensitive bytes.
package shared

// WipeByteArray overwrites the contents of the provided byte slice with zeros.
// Used for access tokens read from the terminal once they have been handed
// to the transport.
//
// If the slice is nil, the function does nothing.
func WipeByteArray(b []byte) {
	if b == nil {
		return
	}
	for i := range b {
		b[i] = 0
	}
}
