package session

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
)

const idSize = 16

// NewID returns a random session identifier, 16 bytes in unpadded base64url.
func NewID() (string, error) {
	var raw [idSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// ValidID reports whether id has the shape produced by NewID. Cookie values
// that fail this check are rejected before any Redis round trip.
func ValidID(id string) bool {
	raw, err := base64.RawURLEncoding.Strict().DecodeString(id)
	return err == nil && len(raw) == idSize
}

var errInvalidID = errors.New("invalid session id")
