package common

import (
	"crypto/rand"
	"encoding/base64"
)

// MakeRandURLSafeString reads size random bytes and returns them encoded as
// unpadded base64url, so 32 bytes yield a 43-character, 256-bit secret.
func MakeRandURLSafeString(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// WipeByteArray overwrites b with zeros. Used for passwords read from the
// terminal once they have been hashed. A nil slice is ignored.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
