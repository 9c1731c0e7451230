package password

import (
	"errors"
	"fmt"
)

// Verifier checks a plaintext secret against a stored hash of unknown scheme
// by asking each configured scheme in order.
//
// A Verifier is immutable after construction and safe for concurrent use.
type Verifier struct {
	schemes []Scheme
}

// NewVerifier returns a Verifier over schemes, consulted in the given order.
// The first scheme implementing Hasher is used for new hashes.
func NewVerifier(schemes ...Scheme) (*Verifier, error) {
	if len(schemes) == 0 {
		return nil, errors.New("password: verifier needs at least one scheme")
	}
	for i, s := range schemes {
		if s == nil {
			return nil, fmt.Errorf("password: scheme %d is nil", i)
		}
	}
	return &Verifier{schemes: append([]Scheme(nil), schemes...)}, nil
}

// NewDefaultVerifier returns the production ordering: bcrypt first, then Argon2id.
func NewDefaultVerifier(bcryptCost int, argon Config) (*Verifier, error) {
	b, err := NewBcrypt(bcryptCost)
	if err != nil {
		return nil, err
	}
	a, err := NewArgon2(argon)
	if err != nil {
		return nil, err
	}
	return NewVerifier(b, a)
}

// Matches reports whether plaintext matches the stored hash under any scheme.
//
// An empty stored hash never matches: such accounts can only authenticate
// through federation. Format errors from one scheme do not stop the next one.
func (v *Verifier) Matches(plaintext, stored string) bool {
	if stored == "" {
		return false
	}
	for _, s := range v.schemes {
		ok, err := s.Matches(plaintext, stored)
		if err != nil {
			continue
		}
		if ok {
			return true
		}
	}
	return false
}

// SchemeNames lists the configured schemes in verification order.
func (v *Verifier) SchemeNames() []string {
	names := make([]string, len(v.schemes))
	for i, s := range v.schemes {
		names[i] = s.Name()
	}
	return names
}

// Hash hashes plaintext with the first scheme able to produce hashes.
func (v *Verifier) Hash(plaintext string) (string, error) {
	for _, s := range v.schemes {
		if h, ok := s.(Hasher); ok {
			return h.Hash(plaintext)
		}
	}
	return "", errors.New("password: no configured scheme can hash")
}

// HashWith hashes plaintext with the named scheme.
func (v *Verifier) HashWith(name, plaintext string) (string, error) {
	for _, s := range v.schemes {
		if s.Name() != name {
			continue
		}
		h, ok := s.(Hasher)
		if !ok {
			return "", fmt.Errorf("password: scheme %q cannot hash", name)
		}
		return h.Hash(plaintext)
	}
	return "", fmt.Errorf("password: unknown scheme %q", name)
}
