package password

import "errors"

// ErrSchemeMismatch reports that a stored hash is not in a scheme's format.
// The Verifier treats it as "ask the next scheme", never as a failed login.
var ErrSchemeMismatch = errors.New("password: hash is not in this scheme's format")

// Scheme verifies plaintext secrets against one hash format.
//
// Matches returns (false, nil) for a well-formed hash that does not match, and
// an error wrapping ErrSchemeMismatch when the hash belongs to another format.
type Scheme interface {
	Name() string
	Matches(plaintext, hash string) (bool, error)
}

// Hasher is implemented by schemes that can produce new hashes.
type Hasher interface {
	Hash(plaintext string) (string, error)
}
