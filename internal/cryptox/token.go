package cryptox

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/lexivault/lexivault/internal/common"
)

// RefreshSecretBytes is the entropy of a refresh secret: 256 bits.
const RefreshSecretBytes = 32

const refreshHashPrefix = "sha256:"

// NewRefreshSecret returns a fresh base64url refresh secret. This raw value is
// the bearer credential and must only ever be handed to the client.
func NewRefreshSecret() (string, error) {
	return common.MakeRandURLSafeString(RefreshSecretBytes)
}

// HashRefreshToken returns "sha256:" + hex(sha256(salt + ":" + token)). Only
// this digest is persisted.
func HashRefreshToken(token, salt string) string {
	sum := sha256.Sum256([]byte(salt + ":" + token))
	return refreshHashPrefix + hex.EncodeToString(sum[:])
}

// NewTokenID returns "tok_" followed by 128 random bits.
func NewTokenID() (string, error) {
	return prefixedID("tok_")
}

// NewFamilyID returns "fam_" followed by 128 random bits.
func NewFamilyID() (string, error) {
	return prefixedID("fam_")
}

func prefixedID(prefix string) (string, error) {
	s, err := common.MakeRandURLSafeString(16)
	if err != nil {
		return "", err
	}
	return prefix + s, nil
}
