package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const argon2Name = "argon2id"

// Lower bounds enforced on both configured and stored parameters. A stored
// hash below them is treated as foreign rather than computed.
const (
	minMemoryKB    = 8 * 1024
	minTime        = 1
	minParallelism = 1
	minSaltBytes   = 16
	minKeyBytes    = 16
)

// Config holds the Argon2id cost parameters used when hashing.
type Config struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Config returns the parameters the imported accounts were hashed with.
func DefaultArgon2Config() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func (c Config) validate() error {
	switch {
	case c.Memory < minMemoryKB:
		return fmt.Errorf("password: argon2 memory must be >= %d KiB", minMemoryKB)
	case c.Time < minTime:
		return errors.New("password: argon2 time must be >= 1")
	case c.Parallelism < minParallelism:
		return errors.New("password: argon2 parallelism must be >= 1")
	case c.SaltLength < minSaltBytes:
		return fmt.Errorf("password: argon2 salt must be >= %d bytes", minSaltBytes)
	case c.KeyLength < minKeyBytes:
		return fmt.Errorf("password: argon2 key must be >= %d bytes", minKeyBytes)
	}
	return nil
}

// Argon2 verifies the PHC-encoded Argon2id hashes carried by accounts imported
// from the previous identity system.
type Argon2 struct {
	config Config
}

// NewArgon2 validates cfg and returns the scheme.
func NewArgon2(cfg Config) (*Argon2, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Argon2{config: cfg}, nil
}

// Name implements Scheme.
func (a *Argon2) Name() string { return argon2Name }

// Hash implements Hasher. Password bytes are used exactly as provided.
func (a *Argon2) Hash(plaintext string) (string, error) {
	salt := make([]byte, a.config.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("password: salt: %w", err)
	}
	h := phc{
		memory:      a.config.Memory,
		time:        a.config.Time,
		parallelism: a.config.Parallelism,
		salt:        salt,
	}
	h.key = h.derive(plaintext, a.config.KeyLength)
	return h.String(), nil
}

// Matches implements Scheme. Parameters are read from the stored hash, so
// hashes produced with other costs still verify.
func (a *Argon2) Matches(plaintext, stored string) (bool, error) {
	h, err := parsePHC(stored)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrSchemeMismatch, err)
	}
	got := h.derive(plaintext, uint32(len(h.key)))
	return subtle.ConstantTimeCompare(got, h.key) == 1, nil
}

// phc is a decoded $argon2id$v=19$m=..,t=..,p=..$salt$key string.
type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func (h phc) derive(plaintext string, keyLen uint32) []byte {
	return argon2.IDKey([]byte(plaintext), h.salt, h.time, h.memory, h.parallelism, keyLen)
}

func (h phc) params() string {
	return fmt.Sprintf("m=%d,t=%d,p=%d", h.memory, h.time, h.parallelism)
}

func (h phc) String() string {
	return fmt.Sprintf("$%s$v=%d$%s$%s$%s",
		argon2Name,
		argon2.Version,
		h.params(),
		base64.RawStdEncoding.EncodeToString(h.salt),
		base64.RawStdEncoding.EncodeToString(h.key),
	)
}

func parsePHC(s string) (phc, error) {
	var h phc

	rest, ok := strings.CutPrefix(s, "$"+argon2Name+"$")
	if !ok {
		return h, errors.New("not an argon2id PHC string")
	}
	fields := strings.Split(rest, "$")
	if len(fields) != 4 {
		return h, errors.New("PHC string must have four fields after the id")
	}
	version, params, salt, key := fields[0], fields[1], fields[2], fields[3]

	if version != fmt.Sprintf("v=%d", argon2.Version) {
		return h, fmt.Errorf("unsupported version %q", version)
	}

	// Sscanf stops at the first mismatch; re-rendering rejects trailing or
	// reordered parameters.
	if _, err := fmt.Sscanf(params, "m=%d,t=%d,p=%d", &h.memory, &h.time, &h.parallelism); err != nil || h.params() != params {
		return h, fmt.Errorf("malformed parameters %q", params)
	}
	if h.memory < minMemoryKB || h.time < minTime || h.parallelism < minParallelism {
		return h, fmt.Errorf("parameters below minimum %q", params)
	}

	var err error
	if h.salt, err = decodeSegment(salt); err != nil || len(h.salt) < minSaltBytes {
		return h, errors.New("bad salt")
	}
	if h.key, err = decodeSegment(key); err != nil || len(h.key) == 0 {
		return h, errors.New("bad key")
	}
	return h, nil
}

// decodeSegment accepts the unpadded PHC encoding and the padded variant
// some exporters emit.
func decodeSegment(seg string) ([]byte, error) {
	if strings.HasSuffix(seg, "=") {
		return base64.StdEncoding.DecodeString(seg)
	}
	return base64.RawStdEncoding.DecodeString(seg)
}
